// Package lower turns TypeScript source into macro invocations.
//
// Declarations are found with tree-sitter; macro annotations come from two
// places: TypeScript decorators (`@derive(Debug)` before a class) and tags in
// a JSDoc block directly above any declaration (`/** @derive(Debug) */`).
// A `/** import macro { Debug } from "pkg"; */` comment anywhere in the file
// binds a macro name to a module path; unbound names use ir.DynamicModule
// and are resolved through the registry fallback.
package lower

import (
	"errors"
	"regexp"
	"strings"

	"macroforge/internal/diag"
	"macroforge/internal/ir"
	"macroforge/internal/source"
)

// ErrNoCGO is returned when lowering is unavailable because the binary was
// built without cgo (tree-sitter).
var ErrNoCGO = errors.New("lowering requires CGO (tree-sitter)")

// DeriveDecorator is the annotation whose arguments name derive macros.
const DeriveDecorator = "derive"

// Import is one name bound by an import-macro comment.
type Import struct {
	Name   string // macro name as registered
	Module string
}

// Use is one macro invocation found on a declaration.
type Use struct {
	Kind      ir.MacroKind
	Name      string
	Module    string
	Decorator ir.Decorator
	NameSpan  source.Span
	// Strip is the range removed from the output when decorators are not kept.
	Strip source.Span
}

// Decl is a lowered declaration and the macros attached to it.
type Decl struct {
	Target ir.Target
	Uses   []Use
}

// Result is the lowering of one file.
type Result struct {
	File        source.FileID
	Decls       []Decl
	Imports     map[string]Import // local name -> import
	Diagnostics []diag.Diagnostic
}

// Invocation pairs a ready context with the decorator range it came from.
type Invocation struct {
	Context *ir.MacroContext
	Strip   source.Span
}

// Invocations builds one MacroContext per use, in source order.
func (r *Result) Invocations(fileName string, src []byte) []Invocation {
	var out []Invocation
	for _, d := range r.Decls {
		if len(d.Uses) == 0 {
			continue
		}
		span := d.Target.TargetSpan()
		text := string(src[span.Start:span.End])
		for _, u := range d.Uses {
			nameSpan := u.NameSpan
			out = append(out, Invocation{
				Context: &ir.MacroContext{
					ABIVersion:    ir.ABIVersion,
					MacroKind:     u.Kind,
					MacroName:     u.Name,
					ModulePath:    u.Module,
					DecoratorSpan: u.Decorator.Span,
					MacroNameSpan: &nameSpan,
					TargetSpan:    span,
					FileName:      fileName,
					Target:        d.Target,
					TargetSource:  text,
				},
				Strip: u.Strip,
			})
		}
	}
	return out
}

// UseCount returns the number of macro uses in the file.
func (r *Result) UseCount() int {
	n := 0
	for _, d := range r.Decls {
		n += len(d.Uses)
	}
	return n
}

var importRe = regexp.MustCompile(`import\s+macro\s*\{([^}]*)\}\s*from\s*["']([^"']+)["']`)

// parseImports reads every import-macro statement in one comment.
func (l *lowerer) parseImports(text string, base int) {
	for _, m := range importRe.FindAllStringSubmatchIndex(text, -1) {
		names := text[m[2]:m[3]]
		module := text[m[4]:m[5]]
		found := false
		for _, part := range strings.Split(names, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name, local := part, part
			if before, after, ok := strings.Cut(part, " as "); ok {
				name, local = strings.TrimSpace(before), strings.TrimSpace(after)
			}
			if !isIdent(name) || !isIdent(local) {
				l.report(diag.NewWarning(diag.LowerBadDecorator,
					source.NewSpan(l.file, base+m[0], base+m[1]),
					"invalid macro import "+quote(part)))
				continue
			}
			found = true
			if _, dup := l.res.Imports[local]; dup {
				continue
			}
			l.res.Imports[local] = Import{Name: name, Module: module}
		}
		if !found {
			l.report(diag.NewWarning(diag.LowerUnknownMacroUse,
				source.NewSpan(l.file, base+m[0], base+m[1]),
				"macro import from "+quote(module)+" names no macros"))
		}
	}
}

// resolve maps a local macro name to its registered name and module.
func (l *lowerer) resolve(local string) (name, module string) {
	if imp, ok := l.res.Imports[local]; ok {
		return imp.Name, imp.Module
	}
	return local, ir.DynamicModule
}

// tag is one `@name(args)` occurrence, offsets relative to the scanned text.
type tag struct {
	name      string
	args      string
	start     int
	nameStart int
	argsStart int
	end       int
}

type tagError struct {
	off int
	end int
	msg string
}

// scanTags finds annotations in decorator or JSDoc text. An '@' only starts
// a tag at the beginning of the text or after whitespace, '*' or '/'.
func scanTags(text string) ([]tag, []tagError) {
	var (
		tags []tag
		errs []tagError
	)
	for i := 0; i < len(text); i++ {
		if text[i] != '@' || (i > 0 && !tagBoundary(text[i-1])) {
			continue
		}
		j := i + 1
		if j >= len(text) || !isIdentStart(text[j]) {
			continue
		}
		for j < len(text) && (isIdentPart(text[j]) || text[j] == '.') {
			j++
		}
		name := strings.TrimRight(text[i+1:j], ".")
		t := tag{name: name, start: i, nameStart: i + 1, argsStart: -1, end: i + 1 + len(name)}
		if j < len(text) && text[j] == '(' {
			closeAt := matchParen(text, j)
			if closeAt < 0 {
				errs = append(errs, tagError{off: i, end: len(text), msg: "unclosed '(' in @" + name})
				break
			}
			t.argsStart = j + 1
			t.args = text[j+1 : closeAt]
			t.end = closeAt + 1
		}
		tags = append(tags, t)
		i = t.end - 1
	}
	return tags, errs
}

func tagBoundary(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '*', '/':
		return true
	}
	return false
}

// matchParen returns the index of the ')' closing text[open], skipping
// nested brackets and quoted strings, or -1.
func matchParen(text string, open int) int {
	depth := 0
	for i := open; i < len(text); i++ {
		switch c := text[i]; c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				if c != ')' {
					return -1
				}
				return i
			}
		case '"', '\'', '`':
			k := i + 1
			for k < len(text) && text[k] != c {
				if text[k] == '\\' {
					k++
				}
				k++
			}
			if k >= len(text) {
				return -1
			}
			i = k
		}
	}
	return -1
}

// piece is a top-level comma-separated argument with its offset in args.
type piece struct {
	text string
	off  int
}

func splitArgs(args string) []piece {
	var (
		out     []piece
		depth   int
		start   int
		inQuote byte
	)
	flush := func(end int) {
		raw := args[start:end]
		trimmed := strings.TrimLeft(raw, " \t\r\n*")
		off := start + len(raw) - len(trimmed)
		trimmed = strings.TrimRight(trimmed, " \t\r\n*")
		if trimmed != "" {
			out = append(out, piece{text: trimmed, off: off})
		}
	}
	for i := 0; i < len(args); i++ {
		c := args[i]
		if inQuote != 0 {
			if c == '\\' {
				i++
			} else if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			inQuote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(args))
	return out
}

// annotation is a parsed tag in absolute file offsets.
type annotation struct {
	dec      ir.Decorator
	nameSpan source.Span
	strip    source.Span
	derives  []piece // absolute offsets
}

// annotations converts the tags of one text chunk starting at base.
func (l *lowerer) annotations(text string, base int) []annotation {
	tags, errs := scanTags(text)
	for _, e := range errs {
		l.report(diag.NewError(diag.LowerBadDecorator,
			source.NewSpan(l.file, base+e.off, base+e.end), e.msg))
	}
	out := make([]annotation, 0, len(tags))
	for _, t := range tags {
		a := annotation{
			dec: ir.Decorator{
				Name: t.name,
				Args: t.args,
				Span: source.NewSpan(l.file, base+t.start, base+t.end),
			},
			nameSpan: source.NewSpan(l.file, base+t.nameStart, base+t.nameStart+len(t.name)),
		}
		a.strip = source.NewSpan(l.file, base+t.start, skipBlanks(l.src, base+t.end, false))
		if t.name == DeriveDecorator && t.argsStart >= 0 {
			for _, p := range splitArgs(t.args) {
				if !isIdent(p.text) {
					l.report(diag.NewError(diag.LowerBadDecorator,
						source.NewSpan(l.file, base+t.argsStart+p.off, base+t.argsStart+p.off+len(p.text)),
						"invalid derive entry "+quote(p.text)).
						WithHelp("derive takes a comma-separated list of macro names"))
					continue
				}
				a.derives = append(a.derives, piece{text: p.text, off: base + t.argsStart + p.off})
			}
		}
		out = append(out, a)
	}
	return out
}

// docAnnotations parses a JSDoc block. When the block holds nothing but
// derive tags the whole comment becomes the strip range of each of them.
func (l *lowerer) docAnnotations(start, end int) []annotation {
	text := string(l.src[start:end])
	if !strings.HasPrefix(text, "/**") {
		return nil
	}
	anns := l.annotations(text, start)
	if len(anns) == 0 {
		return nil
	}
	whole := true
	rest := text
	for i := len(anns) - 1; i >= 0; i-- {
		a := anns[i]
		if a.dec.Name != DeriveDecorator {
			whole = false
			break
		}
		s, e := int(a.dec.Span.Start)-start, int(a.dec.Span.End)-start
		rest = rest[:s] + rest[e:]
	}
	if whole && strings.Trim(strings.TrimSuffix(strings.TrimPrefix(rest, "/**"), "*/"), " \t\r\n*") == "" {
		strip := source.NewSpan(l.file, start, skipBlanks(l.src, end, true))
		for i := range anns {
			anns[i].strip = strip
		}
	}
	return anns
}

// uses expands annotations into macro uses. Every derive entry is its own
// use; any other annotation is a candidate attribute macro.
func (l *lowerer) uses(anns []annotation) []Use {
	var out []Use
	for _, a := range anns {
		if a.dec.Name == DeriveDecorator {
			for _, p := range a.derives {
				name, module := l.resolve(p.text)
				out = append(out, Use{
					Kind:      ir.MacroDerive,
					Name:      name,
					Module:    module,
					Decorator: a.dec,
					NameSpan:  source.NewSpan(l.file, p.off, p.off+len(p.text)),
					Strip:     a.strip,
				})
			}
			continue
		}
		name, module := l.resolve(a.dec.Name)
		out = append(out, Use{
			Kind:      ir.MacroAttribute,
			Name:      name,
			Module:    module,
			Decorator: a.dec,
			NameSpan:  a.nameSpan,
			Strip:     a.strip,
		})
	}
	return out
}

func decorators(anns []annotation) []ir.Decorator {
	if len(anns) == 0 {
		return nil
	}
	out := make([]ir.Decorator, len(anns))
	for i, a := range anns {
		out[i] = a.dec
	}
	return out
}

// skipBlanks advances past spaces and tabs, and with newline also past one
// line break and the indentation after it.
func skipBlanks(src []byte, off int, newline bool) int {
	for off < len(src) && (src[off] == ' ' || src[off] == '\t') {
		off++
	}
	if !newline {
		return off
	}
	if off < len(src) && src[off] == '\r' {
		off++
	}
	if off < len(src) && src[off] == '\n' {
		off++
		for off < len(src) && (src[off] == ' ' || src[off] == '\t') {
			off++
		}
	}
	return off
}

func blank(b []byte) bool {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			return false
		}
	}
	return true
}

func isIdentStart(b byte) bool {
	return b == '_' || b == '$' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func isIdent(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}

func quote(s string) string {
	return "'" + s + "'"
}

// lowerer holds per-file state shared by the parser-specific walk.
type lowerer struct {
	file source.FileID
	src  []byte
	res  *Result
}

func newLowerer(file source.FileID, src []byte) *lowerer {
	return &lowerer{
		file: file,
		src:  src,
		res:  &Result{File: file, Imports: make(map[string]Import)},
	}
}

func (l *lowerer) report(d diag.Diagnostic) {
	l.res.Diagnostics = append(l.res.Diagnostics, d)
}
