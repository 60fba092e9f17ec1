package plugin

import (
	"slices"

	"macroforge/internal/ir"
	"macroforge/internal/registry"
)

// nativeMacro is how a package macro sits in the registry. Its description
// is read once at registration, inside the entry point's recover boundary;
// afterwards only Run calls into package code.
type nativeMacro struct {
	inner       registry.Macro
	name        string
	kind        ir.MacroKind
	abi         int
	members     []string
	charOffsets bool
}

func snapshot(impl registry.Macro, charOffsets bool) *nativeMacro {
	return &nativeMacro{
		inner:       impl,
		name:        impl.Name(),
		kind:        impl.Kind(),
		abi:         impl.ABIVersion(),
		members:     slices.Clone(registry.MemberAttributes(impl)),
		charOffsets: charOffsets,
	}
}

func (m *nativeMacro) Name() string               { return m.name }
func (m *nativeMacro) Kind() ir.MacroKind         { return m.kind }
func (m *nativeMacro) ABIVersion() int            { return m.abi }
func (m *nativeMacro) MemberAttributes() []string { return m.members }

func (m *nativeMacro) Run(mc *ir.MacroContext) ir.MacroResult {
	res := m.inner.Run(mc)
	if !m.charOffsets {
		return res
	}
	return toBytes(mc, res)
}
