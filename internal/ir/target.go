package ir

import (
	"macroforge/internal/source"
)

// TargetKind enumerates declaration shapes a macro can be attached to.
type TargetKind uint8

const (
	TargetOther TargetKind = iota
	TargetClass
	TargetEnum
	TargetInterface
	TargetTypeAlias
	TargetFunction
)

func (k TargetKind) String() string {
	switch k {
	case TargetClass:
		return "class"
	case TargetEnum:
		return "enum"
	case TargetInterface:
		return "interface"
	case TargetTypeAlias:
		return "type alias"
	case TargetFunction:
		return "function"
	default:
		return "other"
	}
}

// Target is implemented by every declaration variant.
type Target interface {
	Kind() TargetKind
	TargetName() string
	TargetSpan() source.Span
	TargetDecorators() []Decorator
}

// Decorator is a macro annotation. Args keeps the raw argument text between
// the parentheses; macros parse their own option syntax.
type Decorator struct {
	Name  string
	Args  string
	Span  source.Span
	// Strip is the decorator syntax plus trailing blanks; empty for JSDoc tags.
	Strip source.Span
}

type Visibility uint8

const (
	VisibilityPublic Visibility = iota
	VisibilityProtected
	VisibilityPrivate
)

func (v Visibility) String() string {
	switch v {
	case VisibilityProtected:
		return "protected"
	case VisibilityPrivate:
		return "private"
	default:
		return "public"
	}
}

// Field is a class property, interface property signature or object type member.
type Field struct {
	Name       string
	Type       string // текст аннотации типа без ':'
	Optional   bool
	Readonly   bool
	Static     bool
	Visibility Visibility
	Span       source.Span
	Decorators []Decorator
}

type Param struct {
	Name     string
	Type     string
	Optional bool
}

type Method struct {
	Name       string
	Params     []Param
	ReturnType string
	Static     bool
	Async      bool
	Abstract   bool
	Visibility Visibility
	Span       source.Span
	Decorators []Decorator
}

type Class struct {
	Name       string
	Span       source.Span
	BodySpan   source.Span // включая фигурные скобки
	IsAbstract bool
	TypeParams []string
	Heritage   []string // "extends X", "implements Y" clauses verbatim
	Decorators []Decorator
	Fields     []Field
	Methods    []Method
}

type EnumVariant struct {
	Name  string
	Value string // raw initializer text, empty when implicit
	Span  source.Span
}

type Enum struct {
	Name       string
	Span       source.Span
	BodySpan   source.Span
	Decorators []Decorator
	Variants   []EnumVariant
	IsConst    bool
}

type Interface struct {
	Name       string
	Span       source.Span
	BodySpan   source.Span
	TypeParams []string
	Heritage   []string
	Decorators []Decorator
	Fields     []Field
	Methods    []Method
}

// TypeBodyKind classifies the right-hand side of a type alias.
type TypeBodyKind uint8

const (
	TypeBodyOther TypeBodyKind = iota
	TypeBodyUnion
	TypeBodyIntersection
	TypeBodyObject
	TypeBodyTuple
	TypeBodyAlias
)

func (k TypeBodyKind) String() string {
	switch k {
	case TypeBodyUnion:
		return "union"
	case TypeBodyIntersection:
		return "intersection"
	case TypeBodyObject:
		return "object"
	case TypeBodyTuple:
		return "tuple"
	case TypeBodyAlias:
		return "alias"
	default:
		return "other"
	}
}

// TypeBody is the alias body. Members holds union/intersection/tuple
// elements, Fields holds object members, Text is always the raw body.
type TypeBody struct {
	Kind    TypeBodyKind
	Members []string
	Fields  []Field
	Text    string
}

type TypeAlias struct {
	Name       string
	Span       source.Span
	Decorators []Decorator
	TypeParams []string
	Body       TypeBody
}

type Function struct {
	Name       string
	Span       source.Span
	Decorators []Decorator
	TypeParams []string
	Params     []Param
	ReturnType string
}

// Other covers declarations lowering does not model.
type Other struct {
	Name       string
	Span       source.Span
	Decorators []Decorator
}

func (c *Class) Kind() TargetKind                  { return TargetClass }
func (c *Class) TargetName() string                { return c.Name }
func (c *Class) TargetSpan() source.Span           { return c.Span }
func (c *Class) TargetDecorators() []Decorator     { return c.Decorators }
func (e *Enum) Kind() TargetKind                   { return TargetEnum }
func (e *Enum) TargetName() string                 { return e.Name }
func (e *Enum) TargetSpan() source.Span            { return e.Span }
func (e *Enum) TargetDecorators() []Decorator      { return e.Decorators }
func (i *Interface) Kind() TargetKind              { return TargetInterface }
func (i *Interface) TargetName() string            { return i.Name }
func (i *Interface) TargetSpan() source.Span       { return i.Span }
func (i *Interface) TargetDecorators() []Decorator { return i.Decorators }
func (a *TypeAlias) Kind() TargetKind              { return TargetTypeAlias }
func (a *TypeAlias) TargetName() string            { return a.Name }
func (a *TypeAlias) TargetSpan() source.Span       { return a.Span }
func (a *TypeAlias) TargetDecorators() []Decorator { return a.Decorators }
func (f *Function) Kind() TargetKind               { return TargetFunction }
func (f *Function) TargetName() string             { return f.Name }
func (f *Function) TargetSpan() source.Span        { return f.Span }
func (f *Function) TargetDecorators() []Decorator  { return f.Decorators }
func (o *Other) Kind() TargetKind                  { return TargetOther }
func (o *Other) TargetName() string                { return o.Name }
func (o *Other) TargetSpan() source.Span           { return o.Span }
func (o *Other) TargetDecorators() []Decorator     { return o.Decorators }

// AsClass returns the target as a class, or ok == false for other shapes.
func AsClass(t Target) (*Class, bool) {
	c, ok := t.(*Class)
	return c, ok && c != nil
}

func AsEnum(t Target) (*Enum, bool) {
	e, ok := t.(*Enum)
	return e, ok && e != nil
}

func AsInterface(t Target) (*Interface, bool) {
	i, ok := t.(*Interface)
	return i, ok && i != nil
}

func AsTypeAlias(t Target) (*TypeAlias, bool) {
	a, ok := t.(*TypeAlias)
	return a, ok && a != nil
}

func AsFunction(t Target) (*Function, bool) {
	f, ok := t.(*Function)
	return f, ok && f != nil
}
