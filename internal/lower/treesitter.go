//go:build cgo

package lower

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"macroforge/internal/diag"
	"macroforge/internal/ir"
	"macroforge/internal/source"
)

// Available reports whether lowering is compiled in.
func Available() bool { return true }

// Lower parses src as TypeScript and returns its declarations and macro uses.
// Syntax errors do not fail lowering; they are reported as warnings and
// tree-sitter's recovered tree is used.
func Lower(ctx context.Context, file source.FileID, src []byte) (*Result, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(typescript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	defer tree.Close()

	l := newLowerer(file, src)
	root := tree.RootNode()
	l.imports(root)
	if root.HasError() {
		l.syntaxError(root)
	}
	l.block(root)
	return l.res, nil
}

func (l *lowerer) text(n *sitter.Node) string {
	return string(l.src[n.StartByte():n.EndByte()])
}

func (l *lowerer) span(n *sitter.Node) source.Span {
	return source.Span{File: l.file, Start: n.StartByte(), End: n.EndByte()}
}

// imports scans every comment in the tree for import-macro statements.
func (l *lowerer) imports(root *sitter.Node) {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Type() == "comment" {
			l.parseImports(l.text(n), int(n.StartByte()))
			continue
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i))
		}
	}
}

func (l *lowerer) syntaxError(root *sitter.Node) {
	bad := firstError(root)
	if bad == nil {
		bad = root
	}
	p := bad.StartPoint()
	l.report(diag.NewWarning(diag.LowerSyntaxError, l.span(bad),
		fmt.Sprintf("syntax error at line %d; declarations near it may be skipped", p.Row+1)))
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if !c.HasError() && !c.IsMissing() {
			continue
		}
		if found := firstError(c); found != nil {
			return found
		}
	}
	return nil
}

// block lowers the statements of the program node, attaching each run of
// comments to the statement that directly follows it.
func (l *lowerer) block(parent *sitter.Node) {
	var pending []*sitter.Node
	for i := 0; i < int(parent.ChildCount()); i++ {
		n := parent.Child(i)
		if n.Type() == "comment" {
			if len(pending) > 0 && !l.adjacent(pending[len(pending)-1], n) {
				pending = pending[:0]
			}
			pending = append(pending, n)
			continue
		}
		docs := l.leading(pending, n)
		pending = nil
		l.statement(n, docs)
	}
}

// adjacent reports whether only whitespace separates a and b.
func (l *lowerer) adjacent(a, b *sitter.Node) bool {
	return a.EndByte() <= b.StartByte() && blank(l.src[a.EndByte():b.StartByte()])
}

// leading returns the JSDoc annotations of the comments touching n.
func (l *lowerer) leading(comments []*sitter.Node, n *sitter.Node) []annotation {
	if len(comments) == 0 || !l.adjacent(comments[len(comments)-1], n) {
		return nil
	}
	var out []annotation
	for _, c := range comments {
		out = append(out, l.docAnnotations(int(c.StartByte()), int(c.EndByte()))...)
	}
	return out
}

// decoratorNodes parses the decorator children of n.
func (l *lowerer) decoratorNodes(n *sitter.Node) []annotation {
	var out []annotation
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() != "decorator" {
			continue
		}
		anns := l.annotations(l.text(c), int(c.StartByte()))
		strip := source.NewSpan(l.file, int(c.StartByte()), skipBlanks(l.src, int(c.EndByte()), true))
		for j := range anns {
			anns[j].strip = strip
			anns[j].dec.Strip = strip
		}
		out = append(out, anns...)
	}
	return out
}

func (l *lowerer) statement(n *sitter.Node, docs []annotation) {
	switch n.Type() {
	case "export_statement":
		decl := n.ChildByFieldName("declaration")
		if decl == nil {
			return
		}
		outer := l.decoratorNodes(n)
		l.declaration(decl, append(docs, outer...))
	case "ambient_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); isDeclaration(c.Type()) {
				l.declaration(c, docs)
				return
			}
		}
	default:
		if isDeclaration(n.Type()) {
			l.declaration(n, docs)
		} else if len(docs) > 0 && (n.Type() == "lexical_declaration" || n.Type() == "variable_declaration") {
			l.other(n, docs)
		}
	}
}

func isDeclaration(kind string) bool {
	switch kind {
	case "class_declaration", "abstract_class_declaration", "interface_declaration",
		"enum_declaration", "type_alias_declaration", "function_declaration",
		"generator_function_declaration", "function_signature":
		return true
	}
	return false
}

func (l *lowerer) declaration(n *sitter.Node, anns []annotation) {
	anns = append(anns, l.decoratorNodes(n)...)
	decs := decorators(anns)
	span := l.declSpan(n)

	var target ir.Target
	switch n.Type() {
	case "class_declaration", "abstract_class_declaration":
		target = l.class(n, span, decs)
	case "interface_declaration":
		target = l.iface(n, span, decs)
	case "enum_declaration":
		target = l.enum(n, span, decs)
	case "type_alias_declaration":
		target = l.alias(n, span, decs)
	default:
		target = l.function(n, span, decs)
	}
	l.res.Decls = append(l.res.Decls, Decl{Target: target, Uses: l.uses(anns)})
}

func (l *lowerer) other(n *sitter.Node, anns []annotation) {
	o := &ir.Other{Span: l.span(n), Decorators: decorators(anns)}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "variable_declarator" {
			if name := c.ChildByFieldName("name"); name != nil {
				o.Name = l.text(name)
			}
			break
		}
	}
	l.res.Decls = append(l.res.Decls, Decl{Target: o, Uses: l.uses(anns)})
}

// declSpan is the declaration without leading decorators.
func (l *lowerer) declSpan(n *sitter.Node) source.Span {
	sp := l.span(n)
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "decorator" || c.Type() == "comment" {
			continue
		}
		sp.Start = c.StartByte()
		break
	}
	return sp
}

func (l *lowerer) name(n *sitter.Node) string {
	if c := n.ChildByFieldName("name"); c != nil {
		return l.text(c)
	}
	return ""
}

func (l *lowerer) typeParams(n *sitter.Node) []string {
	tp := n.ChildByFieldName("type_parameters")
	if tp == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(tp.NamedChildCount()); i++ {
		if c := tp.NamedChild(i); c.Type() == "type_parameter" {
			out = append(out, l.text(c))
		}
	}
	return out
}

// annotationText strips the leading ':' of a type_annotation.
func (l *lowerer) annotationText(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l.text(n)), ":"))
}

func (l *lowerer) class(n *sitter.Node, span source.Span, decs []ir.Decorator) *ir.Class {
	c := &ir.Class{
		Name:       l.name(n),
		Span:       span,
		IsAbstract: n.Type() == "abstract_class_declaration",
		TypeParams: l.typeParams(n),
		Decorators: decs,
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		ch := n.Child(i)
		if ch.Type() != "class_heritage" {
			continue
		}
		if ch.NamedChildCount() == 0 {
			c.Heritage = append(c.Heritage, l.text(ch))
		}
		for j := 0; j < int(ch.NamedChildCount()); j++ {
			c.Heritage = append(c.Heritage, l.text(ch.NamedChild(j)))
		}
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		return c
	}
	c.BodySpan = l.span(body)
	l.members(body, func(m *sitter.Node, docs []annotation) {
		switch m.Type() {
		case "public_field_definition", "property_signature":
			c.Fields = append(c.Fields, l.field(m, docs))
		case "method_definition", "method_signature", "abstract_method_signature":
			c.Methods = append(c.Methods, l.method(m, docs))
		}
	})
	return c
}

// members walks a class, interface or object type body, pairing each
// member with the JSDoc annotations directly above it.
func (l *lowerer) members(body *sitter.Node, visit func(m *sitter.Node, docs []annotation)) {
	var pending []*sitter.Node
	for i := 0; i < int(body.ChildCount()); i++ {
		m := body.Child(i)
		switch m.Type() {
		case "comment":
			if len(pending) > 0 && !l.adjacent(pending[len(pending)-1], m) {
				pending = pending[:0]
			}
			pending = append(pending, m)
			continue
		case "{", "}", ";", ",":
			continue
		}
		docs := l.leading(pending, m)
		pending = nil
		visit(m, docs)
	}
}

func visibilityOf(text string) ir.Visibility {
	switch text {
	case "private":
		return ir.VisibilityPrivate
	case "protected":
		return ir.VisibilityProtected
	}
	return ir.VisibilityPublic
}

func (l *lowerer) field(n *sitter.Node, docs []annotation) ir.Field {
	f := ir.Field{
		Span: l.span(n),
		Type: l.annotationText(n.ChildByFieldName("type")),
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "accessibility_modifier":
			f.Visibility = visibilityOf(l.text(c))
		case "static":
			f.Static = true
		case "readonly":
			f.Readonly = true
		case "?":
			f.Optional = true
		case "private_property_identifier":
			f.Visibility = ir.VisibilityPrivate
		}
	}
	f.Name = l.name(n)
	f.Decorators = decorators(append(docs, l.decoratorNodes(n)...))
	return f
}

func (l *lowerer) method(n *sitter.Node, docs []annotation) ir.Method {
	m := ir.Method{
		Name:       l.name(n),
		Span:       l.span(n),
		Params:     l.params(n.ChildByFieldName("parameters")),
		ReturnType: l.annotationText(n.ChildByFieldName("return_type")),
		Abstract:   n.Type() == "abstract_method_signature",
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "accessibility_modifier":
			m.Visibility = visibilityOf(l.text(c))
		case "static":
			m.Static = true
		case "async":
			m.Async = true
		case "abstract":
			m.Abstract = true
		}
	}
	if strings.HasPrefix(m.Name, "#") {
		m.Visibility = ir.VisibilityPrivate
	}
	m.Decorators = decorators(append(docs, l.decoratorNodes(n)...))
	return m
}

func (l *lowerer) params(n *sitter.Node) []ir.Param {
	if n == nil {
		return nil
	}
	var out []ir.Param
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "required_parameter", "optional_parameter":
		default:
			continue
		}
		p := ir.Param{
			Type:     l.annotationText(c.ChildByFieldName("type")),
			Optional: c.Type() == "optional_parameter",
		}
		if pat := c.ChildByFieldName("pattern"); pat != nil {
			p.Name = l.text(pat)
		} else if c.NamedChildCount() > 0 {
			p.Name = l.text(c.NamedChild(0))
		}
		out = append(out, p)
	}
	return out
}

func (l *lowerer) iface(n *sitter.Node, span source.Span, decs []ir.Decorator) *ir.Interface {
	it := &ir.Interface{
		Name:       l.name(n),
		Span:       span,
		TypeParams: l.typeParams(n),
		Decorators: decs,
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		ch := n.Child(i)
		switch ch.Type() {
		case "extends_type_clause", "extends_clause":
			it.Heritage = append(it.Heritage, l.text(ch))
		}
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		return it
	}
	it.BodySpan = l.span(body)
	l.members(body, func(m *sitter.Node, docs []annotation) {
		switch m.Type() {
		case "property_signature":
			it.Fields = append(it.Fields, l.field(m, docs))
		case "method_signature":
			it.Methods = append(it.Methods, l.method(m, docs))
		}
	})
	return it
}

func (l *lowerer) enum(n *sitter.Node, span source.Span, decs []ir.Decorator) *ir.Enum {
	e := &ir.Enum{Name: l.name(n), Span: span, Decorators: decs}
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "const" {
			e.IsConst = true
		}
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		return e
	}
	e.BodySpan = l.span(body)
	for i := 0; i < int(body.NamedChildCount()); i++ {
		c := body.NamedChild(i)
		switch c.Type() {
		case "property_identifier", "string":
			e.Variants = append(e.Variants, ir.EnumVariant{Name: l.text(c), Span: l.span(c)})
		case "enum_assignment":
			v := ir.EnumVariant{Name: l.name(c), Span: l.span(c)}
			if val := c.ChildByFieldName("value"); val != nil {
				v.Value = l.text(val)
			}
			if v.Name == "" && c.NamedChildCount() > 0 {
				v.Name = l.text(c.NamedChild(0))
			}
			e.Variants = append(e.Variants, v)
		}
	}
	return e
}

func (l *lowerer) alias(n *sitter.Node, span source.Span, decs []ir.Decorator) *ir.TypeAlias {
	a := &ir.TypeAlias{
		Name:       l.name(n),
		Span:       span,
		Decorators: decs,
		TypeParams: l.typeParams(n),
	}
	if v := n.ChildByFieldName("value"); v != nil {
		a.Body = l.typeBody(v)
	}
	return a
}

func (l *lowerer) typeBody(v *sitter.Node) ir.TypeBody {
	body := ir.TypeBody{Text: l.text(v)}
	inner := v
	for inner.Type() == "parenthesized_type" && inner.NamedChildCount() == 1 {
		inner = inner.NamedChild(0)
	}
	switch inner.Type() {
	case "union_type":
		body.Kind = ir.TypeBodyUnion
		body.Members = l.flatten(inner, "union_type")
	case "intersection_type":
		body.Kind = ir.TypeBodyIntersection
		body.Members = l.flatten(inner, "intersection_type")
	case "tuple_type":
		body.Kind = ir.TypeBodyTuple
		for i := 0; i < int(inner.NamedChildCount()); i++ {
			body.Members = append(body.Members, l.text(inner.NamedChild(i)))
		}
	case "object_type":
		body.Kind = ir.TypeBodyObject
		l.members(inner, func(m *sitter.Node, docs []annotation) {
			if m.Type() == "property_signature" {
				body.Fields = append(body.Fields, l.field(m, docs))
			}
		})
	case "type_identifier", "generic_type", "nested_type_identifier":
		body.Kind = ir.TypeBodyAlias
		body.Members = []string{l.text(inner)}
	}
	return body
}

// flatten collects the operands of a left-nested union or intersection.
func (l *lowerer) flatten(n *sitter.Node, kind string) []string {
	var out []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == kind {
			out = append(out, l.flatten(c, kind)...)
			continue
		}
		out = append(out, l.text(c))
	}
	return out
}

func (l *lowerer) function(n *sitter.Node, span source.Span, decs []ir.Decorator) *ir.Function {
	return &ir.Function{
		Name:       l.name(n),
		Span:       span,
		Decorators: decs,
		TypeParams: l.typeParams(n),
		Params:     l.params(n.ChildByFieldName("parameters")),
		ReturnType: l.annotationText(n.ChildByFieldName("return_type")),
	}
}
