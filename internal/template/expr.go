package template

import (
	"strconv"
	"strings"
)

type expr interface {
	offset() int
}

type (
	litExpr struct {
		off int
		val any
	}
	pathExpr struct {
		off   int
		parts []string
	}
	notExpr struct {
		off int
		x   expr
	}
	binExpr struct {
		off  int
		op   string
		x, y expr
	}
	callExpr struct {
		off  int
		name string
		args []expr
	}
	listExpr struct {
		off   int
		elems []expr
	}
)

func (e *litExpr) offset() int  { return e.off }
func (e *pathExpr) offset() int { return e.off }
func (e *notExpr) offset() int  { return e.off }
func (e *binExpr) offset() int  { return e.off }
func (e *callExpr) offset() int { return e.off }
func (e *listExpr) offset() int { return e.off }

type etokKind uint8

const (
	etEOF etokKind = iota
	etIdent
	etNumber
	etString
	etOp
)

type etok struct {
	kind etokKind
	text string
	off  int // absolute offset in template source
}

// exprParser parses one expression. src is the whole template, base is
// where the expression text starts in it.
type exprParser struct {
	src   string
	toks  []etok
	pos   int
	funcs FuncMap
}

func parseExpr(src string, base int, text string, funcs FuncMap) (expr, error) {
	toks, err := lexExpr(src, base, text)
	if err != nil {
		return nil, err
	}
	p := &exprParser{src: src, toks: toks, funcs: funcs}
	e, err := p.or()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != etEOF {
		return nil, errorf(src, t.off, "unexpected %q in expression", t.text)
	}
	return e, nil
}

func lexExpr(src string, base int, text string) ([]etok, error) {
	var toks []etok
	i := 0
	for i < len(text) {
		c := text[i]
		off := base + i
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(text) && (text[j] >= '0' && text[j] <= '9' || text[j] == '.' || text[j] == '_') {
				j++
			}
			toks = append(toks, etok{kind: etNumber, text: text[i:j], off: off})
			i = j
		case isIdentByte(c):
			j := i
			for j < len(text) && isIdentByte(text[j]) {
				j++
			}
			toks = append(toks, etok{kind: etIdent, text: text[i:j], off: off})
			i = j
		case c == '"' || c == '\'':
			var sb strings.Builder
			j := i + 1
			closed := false
			for j < len(text) {
				ch := text[j]
				if ch == c {
					closed = true
					j++
					break
				}
				if ch == '\\' && j+1 < len(text) {
					j++
					switch text[j] {
					case 'n':
						sb.WriteByte('\n')
					case 't':
						sb.WriteByte('\t')
					case 'r':
						sb.WriteByte('\r')
					default:
						sb.WriteByte(text[j])
					}
					j++
					continue
				}
				sb.WriteByte(ch)
				j++
			}
			if !closed {
				return nil, errorf(src, off, "unterminated string in expression")
			}
			toks = append(toks, etok{kind: etString, text: sb.String(), off: off})
			i = j
		default:
			two := ""
			if i+1 < len(text) {
				two = text[i : i+2]
			}
			switch two {
			case "==", "!=", "&&", "||":
				toks = append(toks, etok{kind: etOp, text: two, off: off})
				i += 2
				continue
			}
			switch c {
			case '!', '(', ')', '[', ']', ',', '.':
				toks = append(toks, etok{kind: etOp, text: string(c), off: off})
				i++
			default:
				return nil, errorf(src, off, "unexpected character %q in expression", c)
			}
		}
	}
	toks = append(toks, etok{kind: etEOF, off: base + len(text)})
	return toks, nil
}

func (p *exprParser) peek() etok { return p.toks[p.pos] }

func (p *exprParser) next() etok {
	t := p.toks[p.pos]
	if t.kind != etEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) isOp(op string) bool {
	t := p.peek()
	return t.kind == etOp && t.text == op
}

func (p *exprParser) expect(op string) error {
	t := p.next()
	if t.kind != etOp || t.text != op {
		return errorf(p.src, t.off, "expected %q in expression", op)
	}
	return nil
}

func (p *exprParser) or() (expr, error) {
	x, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.isOp("||") {
		t := p.next()
		y, err := p.and()
		if err != nil {
			return nil, err
		}
		x = &binExpr{off: t.off, op: "||", x: x, y: y}
	}
	return x, nil
}

func (p *exprParser) and() (expr, error) {
	x, err := p.equality()
	if err != nil {
		return nil, err
	}
	for p.isOp("&&") {
		t := p.next()
		y, err := p.equality()
		if err != nil {
			return nil, err
		}
		x = &binExpr{off: t.off, op: "&&", x: x, y: y}
	}
	return x, nil
}

func (p *exprParser) equality() (expr, error) {
	x, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.isOp("==") || p.isOp("!=") {
		t := p.next()
		y, err := p.unary()
		if err != nil {
			return nil, err
		}
		x = &binExpr{off: t.off, op: t.text, x: x, y: y}
	}
	return x, nil
}

func (p *exprParser) unary() (expr, error) {
	if p.isOp("!") {
		t := p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &notExpr{off: t.off, x: x}, nil
	}
	return p.primary()
}

func (p *exprParser) primary() (expr, error) {
	t := p.next()
	switch t.kind {
	case etNumber:
		return parseNumber(p.src, t)
	case etString:
		return &litExpr{off: t.off, val: t.text}, nil
	case etIdent:
		switch t.text {
		case "true":
			return &litExpr{off: t.off, val: true}, nil
		case "false":
			return &litExpr{off: t.off, val: false}, nil
		case "nil", "null":
			return &litExpr{off: t.off, val: nil}, nil
		}
		if p.isOp("(") {
			return p.call(t)
		}
		parts := []string{t.text}
		for p.isOp(".") {
			p.next()
			f := p.next()
			if f.kind != etIdent {
				return nil, errorf(p.src, f.off, "expected field name after '.'")
			}
			parts = append(parts, f.text)
		}
		return &pathExpr{off: t.off, parts: parts}, nil
	case etOp:
		switch t.text {
		case "(":
			x, err := p.or()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return x, nil
		case "[":
			return p.list(t)
		}
	case etEOF:
		return nil, errorf(p.src, t.off, "unexpected end of expression")
	}
	return nil, errorf(p.src, t.off, "unexpected %q in expression", t.text)
}

func (p *exprParser) call(name etok) (expr, error) {
	if _, ok := p.funcs[name.text]; !ok {
		return nil, errorf(p.src, name.off, "unknown function %q", name.text)
	}
	p.next() // (
	c := &callExpr{off: name.off, name: name.text}
	if p.isOp(")") {
		p.next()
		return c, nil
	}
	for {
		arg, err := p.or()
		if err != nil {
			return nil, err
		}
		c.args = append(c.args, arg)
		if p.isOp(",") {
			p.next()
			continue
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func (p *exprParser) list(open etok) (expr, error) {
	l := &listExpr{off: open.off}
	if p.isOp("]") {
		p.next()
		return l, nil
	}
	for {
		el, err := p.or()
		if err != nil {
			return nil, err
		}
		l.elems = append(l.elems, el)
		if p.isOp(",") {
			p.next()
			continue
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		return l, nil
	}
}

func parseNumber(src string, t etok) (expr, error) {
	text := strings.ReplaceAll(t.text, "_", "")
	if strings.Contains(text, ".") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, errorf(src, t.off, "invalid number %q", t.text)
		}
		return &litExpr{off: t.off, val: f}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, errorf(src, t.off, "invalid number %q", t.text)
	}
	return &litExpr{off: t.off, val: int(n)}, nil
}
