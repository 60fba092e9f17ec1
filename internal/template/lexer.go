package template

import (
	"strings"
)

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokText
	tokInterp
	tokOpen  // ( [ { that is not a tag
	tokClose // ) ] }
	tokIf
	tokElseIf
	tokElse
	tokEndIf
	tokEach
	tokEndEach
	tokFor
	tokEndFor
)

func (k tokKind) String() string {
	switch k {
	case tokEOF:
		return "end of template"
	case tokText:
		return "text"
	case tokInterp:
		return "interpolation"
	case tokOpen:
		return "group"
	case tokClose:
		return "closing delimiter"
	case tokIf:
		return "{#if}"
	case tokElseIf:
		return "{:else if}"
	case tokElse:
		return "{:else}"
	case tokEndIf:
		return "{/if}"
	case tokEach:
		return "{#each}"
	case tokEndEach:
		return "{/each}"
	case tokFor:
		return "{#for}"
	case tokEndFor:
		return "{/for}"
	default:
		return "unknown"
	}
}

// token is one lexical unit of the template. For tags Text holds the raw
// argument text (condition, or the each/for header); ArgOff is its offset.
type token struct {
	Kind   tokKind
	Text   string
	Off    int
	ArgOff int
}

type lexer struct {
	src  string
	pos  int
	text strings.Builder
	// textOff is where the pending text run started
	textOff int
	toks    []token
}

func lex(src string) ([]token, error) {
	lx := &lexer{src: src}
	if err := lx.run(); err != nil {
		return nil, err
	}
	lx.flush()
	lx.toks = append(lx.toks, token{Kind: tokEOF, Off: len(src)})
	return lx.toks, nil
}

func (lx *lexer) flush() {
	if lx.text.Len() == 0 {
		return
	}
	lx.toks = append(lx.toks, token{Kind: tokText, Text: lx.text.String(), Off: lx.textOff})
	lx.text.Reset()
}

func (lx *lexer) emit(t token) {
	lx.flush()
	lx.toks = append(lx.toks, t)
}

func (lx *lexer) literal(s string) {
	if lx.text.Len() == 0 {
		lx.textOff = lx.pos
	}
	lx.text.WriteString(s)
	lx.pos += len(s)
}

func (lx *lexer) run() error {
	src := lx.src
	for lx.pos < len(src) {
		c := src[lx.pos]
		rest := src[lx.pos:]
		switch {
		case (c == '@' || c == '#') && strings.HasPrefix(rest[1:], "{"):
			if err := lx.interp(); err != nil {
				return err
			}
		case c == '{':
			ok, err := lx.tag()
			if err != nil {
				return err
			}
			if !ok {
				lx.emit(token{Kind: tokOpen, Text: "{", Off: lx.pos})
				lx.pos++
			}
		case c == '(' || c == '[':
			lx.emit(token{Kind: tokOpen, Text: string(c), Off: lx.pos})
			lx.pos++
		case c == '}' || c == ')' || c == ']':
			lx.emit(token{Kind: tokClose, Text: string(c), Off: lx.pos})
			lx.pos++
		case strings.HasPrefix(rest, "//"):
			end := strings.IndexByte(rest, '\n')
			if end < 0 {
				end = len(rest)
			}
			lx.literal(rest[:end])
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				lx.literal(rest)
			} else {
				lx.literal(rest[:end+4])
			}
		case c == '"' || c == '\'' || c == '`':
			if err := lx.str(c); err != nil {
				return err
			}
		default:
			lx.literal(string(c))
		}
	}
	return nil
}

// interp lexes @{expr} / #{expr}.
func (lx *lexer) interp() error {
	start := lx.pos
	exprOff := start + 2
	end, ok := scanBalanced(lx.src, exprOff)
	if !ok {
		return errorf(lx.src, start, "unterminated interpolation")
	}
	expr := lx.src[exprOff:end]
	if strings.TrimSpace(expr) == "" {
		return errorf(lx.src, start, "empty interpolation")
	}
	lx.emit(token{Kind: tokInterp, Text: expr, Off: start, ArgOff: exprOff})
	lx.pos = end + 1
	return nil
}

var closingTags = map[string]tokKind{
	"if":   tokEndIf,
	"each": tokEndEach,
	"for":  tokEndFor,
}

// tag recognizes {#if}, {:else}, {/each} and friends at lx.pos. It reports
// false, leaving pos untouched, when the brace opens an ordinary group.
func (lx *lexer) tag() (bool, error) {
	src := lx.src
	start := lx.pos
	if start+1 >= len(src) {
		return false, nil
	}
	sigil := src[start+1]
	if sigil != '#' && sigil != ':' && sigil != '/' {
		return false, nil
	}
	word, wordEnd := readWord(src, start+2)

	var kind tokKind
	switch sigil {
	case '#':
		switch word {
		case "if":
			kind = tokIf
		case "each":
			kind = tokEach
		case "for":
			kind = tokFor
		default:
			return false, nil
		}
	case ':':
		if word != "else" {
			return false, nil
		}
		kind = tokElse
	case '/':
		k, ok := closingTags[word]
		if !ok {
			return false, nil
		}
		kind = k
	}

	end, ok := scanBalanced(src, wordEnd)
	if !ok {
		return false, errorf(src, start, "unterminated %s tag", kind)
	}
	arg := src[wordEnd:end]
	argOff := wordEnd + (len(arg) - len(strings.TrimLeft(arg, " \t\r\n")))
	arg = strings.TrimSpace(arg)

	switch kind {
	case tokElse:
		if rest, isIf := cutWord(arg, "if"); isIf {
			kind = tokElseIf
			argOff += len(arg) - len(strings.TrimLeft(rest, " \t\r\n"))
			arg = strings.TrimSpace(rest)
		}
	}

	switch kind {
	case tokIf, tokElseIf, tokEach, tokFor:
		if arg == "" {
			return false, errorf(src, start, "%s needs an argument", kind)
		}
	default:
		if arg != "" {
			return false, errorf(src, start, "unexpected text after %s: %q", kind, arg)
		}
	}
	lx.emit(token{Kind: kind, Text: arg, Off: start, ArgOff: argOff})
	lx.pos = end + 1
	return true, nil
}

// str lexes a quoted string. Interpolations inside it are still tokens.
// A ' or " string that reaches a newline was not a string; the quote is
// then kept as a plain character.
func (lx *lexer) str(q byte) error {
	src := lx.src
	i := lx.pos + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			i += 2
			continue
		case (c == '@' || c == '#') && i+1 < len(src) && src[i+1] == '{':
			if end, ok := scanBalanced(src, i+2); ok {
				i = end + 1
				continue
			}
		case c == q:
			return lx.strBody(lx.pos, i)
		case c == '\n' && q != '`':
			lx.literal(string(q))
			return nil
		}
		i++
	}
	if q != '`' {
		lx.literal(string(q))
		return nil
	}
	return lx.strBody(lx.pos, len(src)-1)
}

// strBody emits src[open:close+1] as text, splitting out interpolations.
func (lx *lexer) strBody(open, close int) error {
	src := lx.src
	stop := close + 1
	if stop > len(src) {
		stop = len(src)
	}
	lx.literal(string(src[open]))
	for lx.pos < stop {
		c := src[lx.pos]
		if c == '\\' && lx.pos+1 < stop {
			lx.literal(src[lx.pos : lx.pos+2])
			continue
		}
		if (c == '@' || c == '#') && lx.pos+1 < stop && src[lx.pos+1] == '{' {
			end, ok := scanBalanced(src, lx.pos+2)
			if ok && end < stop {
				if err := lx.interp(); err != nil {
					return err
				}
				continue
			}
		}
		lx.literal(string(c))
	}
	return nil
}

func readWord(src string, i int) (string, int) {
	j := i
	for j < len(src) && isIdentByte(src[j]) {
		j++
	}
	return src[i:j], j
}

// cutWord strips a leading keyword followed by a word boundary.
func cutWord(s, word string) (string, bool) {
	if !strings.HasPrefix(s, word) {
		return s, false
	}
	rest := s[len(word):]
	if rest != "" && isIdentByte(rest[0]) {
		return s, false
	}
	return rest, true
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// scanBalanced finds the '}' closing an expression that starts at i,
// skipping nested groups and quoted strings.
func scanBalanced(src string, i int) (int, bool) {
	depth := 0
	for i < len(src) {
		switch c := src[i]; c {
		case '{', '(', '[':
			depth++
		case ')', ']':
			depth--
		case '}':
			if depth == 0 {
				return i, true
			}
			depth--
		case '"', '\'':
			j := i + 1
			for j < len(src) && src[j] != c {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(src) {
				return 0, false
			}
			i = j
		}
		i++
	}
	return 0, false
}
