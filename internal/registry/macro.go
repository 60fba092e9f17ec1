package registry

import (
	"macroforge/internal/ir"
)

// Macro is the capability interface every macro implementation satisfies,
// whatever its kind or origin (built-in, native plugin).
type Macro interface {
	Name() string
	Kind() ir.MacroKind
	// ABIVersion is the context protocol version the implementation was built for.
	ABIVersion() int
	Run(ctx *ir.MacroContext) ir.MacroResult
}

// MemberAttributer is implemented by derive macros that read helper
// decorators on the members of their target, such as @debug(skip).
type MemberAttributer interface {
	MemberAttributes() []string
}

// MemberAttributes returns the helper decorator names m reads, if any.
func MemberAttributes(m Macro) []string {
	if ma, ok := m.(MemberAttributer); ok {
		return ma.MemberAttributes()
	}
	return nil
}

// RunFunc is the body of a function-backed macro.
type RunFunc func(ctx *ir.MacroContext) ir.MacroResult

// Func adapts a plain function to Macro at the host ABI version.
type Func struct {
	MacroName string
	MacroKind ir.MacroKind
	ABI       int
	Fn        RunFunc
	// Members lists helper decorators read on target members.
	Members   []string
}

// NewFunc builds a function-backed macro for the current ABI.
func NewFunc(kind ir.MacroKind, name string, fn RunFunc) *Func {
	return &Func{MacroName: name, MacroKind: kind, ABI: ir.ABIVersion, Fn: fn}
}

func (f *Func) Name() string       { return f.MacroName }
func (f *Func) Kind() ir.MacroKind { return f.MacroKind }
func (f *Func) ABIVersion() int    { return f.ABI }

func (f *Func) MemberAttributes() []string { return f.Members }

func (f *Func) Run(ctx *ir.MacroContext) ir.MacroResult {
	if f.Fn == nil {
		return ir.MacroResult{}
	}
	return f.Fn(ctx)
}
