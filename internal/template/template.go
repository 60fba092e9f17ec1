package template

import (
	"fmt"
	"strings"
)

// Template is a compiled template. It is immutable and safe for
// concurrent Execute calls.
type Template struct {
	src   string
	nodes []node
	funcs FuncMap
}

// Option configures compilation.
type Option func(*compileOptions)

type compileOptions struct {
	funcs FuncMap
}

// WithFuncs adds functions to the built-in set, replacing same-named ones.
func WithFuncs(fm FuncMap) Option {
	return func(o *compileOptions) {
		for name, fn := range fm {
			o.funcs[name] = fn
		}
	}
}

// Compile parses src. Unbalanced groups, stray closing tags, unclosed
// blocks and malformed expressions are reported as *Error.
func Compile(src string, opts ...Option) (*Template, error) {
	o := compileOptions{funcs: DefaultFuncs()}
	for _, opt := range opts {
		opt(&o)
	}
	nodes, err := parse(src, o.funcs)
	if err != nil {
		return nil, err
	}
	return &Template{src: src, nodes: nodes, funcs: o.funcs}, nil
}

// MustCompile is Compile for templates fixed at build time; it panics on error.
func MustCompile(src string, opts ...Option) *Template {
	t, err := Compile(src, opts...)
	if err != nil {
		panic(fmt.Sprintf("template.MustCompile: %v", err))
	}
	return t
}

// Source returns the template text.
func (t *Template) Source() string { return t.src }

// Execute renders the template. Top-level names resolve against data
// (a map with string keys or a struct).
func (t *Template) Execute(data any) (string, error) {
	st := &state{t: t, root: data}
	if err := st.walk(t.nodes, nil); err != nil {
		return "", err
	}
	return st.out.String(), nil
}

// MustExecute panics on error.
func (t *Template) MustExecute(data any) string {
	out, err := t.Execute(data)
	if err != nil {
		panic(err)
	}
	return out
}

// Render compiles and executes src in one step.
func Render(src string, data any, opts ...Option) (string, error) {
	t, err := Compile(src, opts...)
	if err != nil {
		return "", err
	}
	return t.Execute(data)
}

// Indent prefixes every non-empty line of s with prefix.
func Indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
