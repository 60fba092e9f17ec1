package template

import (
	"strings"
)

type node interface{}

type (
	textNode struct {
		text string
	}
	interpNode struct {
		x expr
	}
	groupNode struct {
		open, close string
		body        []node
	}
	ifNode struct {
		cond      expr
		then      []node
		otherwise []node
	}
	eachNode struct {
		coll  expr
		item  string
		index string
		body  []node
	}
)

var closerFor = map[string]string{"{": "}", "(": ")", "[": "]"}

// termSet is the set of tokens allowed to end a sequence.
type termSet uint32

func terms(kinds ...tokKind) termSet {
	var s termSet
	for _, k := range kinds {
		s |= 1 << k
	}
	return s
}

func (s termSet) has(k tokKind) bool { return s&(1<<k) != 0 }

type parser struct {
	src   string
	toks  []token
	pos   int
	funcs FuncMap
}

func parse(src string, funcs FuncMap) ([]node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks, funcs: funcs}
	nodes, _, err := p.seq(terms(tokEOF), token{Kind: tokEOF})
	return nodes, err
}

// seq parses nodes until a token from stop. It returns the terminator so
// the caller can tell {:else} from {/if}. opener is the construct being
// parsed, for messages about premature EOF.
func (p *parser) seq(stop termSet, opener token) ([]node, token, error) {
	var nodes []node
	for {
		t := p.toks[p.pos]
		if stop.has(t.Kind) {
			p.pos++
			return nodes, t, nil
		}
		switch t.Kind {
		case tokEOF:
			return nil, t, p.unclosed(opener)
		case tokText:
			p.pos++
			nodes = append(nodes, &textNode{text: t.Text})
		case tokInterp:
			p.pos++
			x, err := parseExpr(p.src, t.ArgOff, t.Text, p.funcs)
			if err != nil {
				return nil, t, err
			}
			nodes = append(nodes, &interpNode{x: x})
		case tokOpen:
			p.pos++
			n, err := p.group(t)
			if err != nil {
				return nil, t, err
			}
			nodes = append(nodes, n)
		case tokIf:
			p.pos++
			n, err := p.ifBlock(t)
			if err != nil {
				return nil, t, err
			}
			nodes = append(nodes, n)
		case tokEach, tokFor:
			p.pos++
			n, err := p.eachBlock(t)
			if err != nil {
				return nil, t, err
			}
			nodes = append(nodes, n)
		case tokClose:
			return nil, t, errorf(p.src, t.Off, "unmatched %q", t.Text)
		default:
			return nil, t, errorf(p.src, t.Off, "unexpected %s", t.Kind)
		}
	}
}

func (p *parser) unclosed(opener token) error {
	switch opener.Kind {
	case tokEOF:
		return errorf(p.src, len(p.src), "unexpected end of template")
	case tokOpen:
		return errorf(p.src, opener.Off, "unclosed %q", opener.Text)
	default:
		return errorf(p.src, opener.Off, "unclosed %s", opener.Kind)
	}
}

func (p *parser) group(open token) (node, error) {
	body, end, err := p.seq(terms(tokClose), open)
	if err != nil {
		return nil, err
	}
	if want := closerFor[open.Text]; end.Text != want {
		return nil, errorf(p.src, end.Off, "expected %q to close %q, found %q", want, open.Text, end.Text)
	}
	return &groupNode{open: open.Text, close: end.Text, body: body}, nil
}

func (p *parser) ifBlock(open token) (node, error) {
	cond, err := parseExpr(p.src, open.ArgOff, open.Text, p.funcs)
	if err != nil {
		return nil, err
	}
	n := &ifNode{cond: cond}
	n.then, err = p.branch(n, open)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// branch parses the then-part of n and whatever else chain follows it.
func (p *parser) branch(n *ifNode, open token) ([]node, error) {
	body, end, err := p.seq(terms(tokElse, tokElseIf, tokEndIf), open)
	if err != nil {
		return nil, err
	}
	switch end.Kind {
	case tokElse:
		n.otherwise, _, err = p.seq(terms(tokEndIf), open)
		if err != nil {
			return nil, err
		}
	case tokElseIf:
		// {:else if c} is an if nested in the else branch that shares {/if}
		cond, err := parseExpr(p.src, end.ArgOff, end.Text, p.funcs)
		if err != nil {
			return nil, err
		}
		nested := &ifNode{cond: cond}
		nested.then, err = p.branch(nested, open)
		if err != nil {
			return nil, err
		}
		n.otherwise = []node{nested}
	}
	return body, nil
}

func (p *parser) eachBlock(open token) (node, error) {
	n := &eachNode{}
	var collText string
	var collOff int
	header := open.Text
	if open.Kind == tokEach {
		idx := lastWordIndex(header, "as")
		if idx < 0 {
			return nil, errorf(p.src, open.Off, "{#each} expects 'collection as item'")
		}
		collText, collOff = header[:idx], open.ArgOff
		if err := n.bind(header[idx+2:]); err != nil {
			return nil, errorf(p.src, open.Off, "{#each}: %s", err.Msg)
		}
	} else {
		idx := firstWordIndex(header, "in")
		if idx < 0 {
			return nil, errorf(p.src, open.Off, "{#for} expects 'item in collection'")
		}
		if err := n.bind(header[:idx]); err != nil {
			return nil, errorf(p.src, open.Off, "{#for}: %s", err.Msg)
		}
		collText, collOff = header[idx+2:], open.ArgOff+idx+2
	}

	coll, err := parseExpr(p.src, collOff, collText, p.funcs)
	if err != nil {
		return nil, err
	}
	n.coll = coll

	endKind := tokEndEach
	if open.Kind == tokFor {
		endKind = tokEndFor
	}
	n.body, _, err = p.seq(terms(endKind), open)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// bind reads "item" or "item, index".
func (n *eachNode) bind(s string) *Error {
	parts := strings.Split(s, ",")
	if len(parts) > 2 {
		return &Error{Msg: "too many loop variables"}
	}
	for i, part := range parts {
		name := strings.TrimSpace(part)
		if !isIdent(name) {
			return &Error{Msg: "invalid loop variable " + quote(name)}
		}
		if i == 0 {
			n.item = name
		} else {
			n.index = name
		}
	}
	return nil
}

func isIdent(s string) bool {
	if s == "" || s[0] >= '0' && s[0] <= '9' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i]) {
			return false
		}
	}
	return true
}

func quote(s string) string { return "\"" + s + "\"" }

// lastWordIndex finds the last standalone occurrence of word in s.
func lastWordIndex(s, word string) int {
	for i := len(s) - len(word); i >= 0; i-- {
		if isWordAt(s, word, i) {
			return i
		}
	}
	return -1
}

func firstWordIndex(s, word string) int {
	for i := 0; i+len(word) <= len(s); i++ {
		if isWordAt(s, word, i) {
			return i
		}
	}
	return -1
}

func isWordAt(s, word string, i int) bool {
	if !strings.HasPrefix(s[i:], word) {
		return false
	}
	if i > 0 && isIdentByte(s[i-1]) {
		return false
	}
	end := i + len(word)
	return end == len(s) || !isIdentByte(s[end])
}
