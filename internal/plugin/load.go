package plugin

import (
	"fmt"
	goplugin "plugin"

	"macroforge/internal/ir"
	"macroforge/internal/manifest"
	"macroforge/internal/registry"
)

// Options controls native loading.
type Options struct {
	AllowNative bool
	// Open replaces plugin.Open; tests use it to inject symbols.
	Open func(path string) (Symbols, error)
}

// Symbols is the part of *plugin.Plugin the loader needs.
type Symbols interface {
	Lookup(name string) (goplugin.Symbol, error)
}

// Load registers the manifest of a native package, opens its library and
// runs its entry point. The manifest ABI is checked before the library is
// opened; afterwards every declared macro must have been registered.
func Load(reg *registry.Registry, m manifest.Manifest, opts Options) ([]registry.Key, error) {
	if !opts.AllowNative {
		return nil, fmt.Errorf("%s: %w", m.Name, ErrNativeDisabled)
	}
	if m.ABIVersion != ir.ABIVersion {
		return nil, &registry.AbiError{Package: m.Name, Expected: ir.ABIVersion, Got: m.ABIVersion}
	}
	if m.Native == nil {
		return nil, fmt.Errorf("%w: %s has no [native] section", manifest.ErrInvalidManifest, m.Name)
	}
	if err := reg.RegisterManifest(m.Name, m); err != nil {
		return nil, err
	}

	open := opts.Open
	if open == nil {
		open = func(path string) (Symbols, error) { return goplugin.Open(path) }
	}
	lib, err := open(m.LibraryPath())
	if err != nil {
		return nil, fmt.Errorf("plugin %s: open %s: %w", m.Name, m.LibraryPath(), err)
	}
	symName := m.Native.EntrySymbol
	if symName == "" {
		symName = manifest.DefaultEntrySymbol
	}
	sym, err := lib.Lookup(symName)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", m.Name, err)
	}
	entry, err := asEntry(sym)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: symbol %s: %w", m.Name, symName, err)
	}

	h := NewHandle(reg, m.Name, m.UsesCharOffsets())
	if err := Invoke(entry, h); err != nil {
		return h.Registered(), err
	}
	if err := checkDeclared(reg, m, h); err != nil {
		return h.Registered(), err
	}
	return h.Registered(), nil
}

// asEntry accepts an exported function or an exported function variable.
func asEntry(sym goplugin.Symbol) (EntryFunc, error) {
	switch fn := sym.(type) {
	case func(*Handle) error:
		return fn, nil
	case *func(*Handle) error:
		if fn == nil || *fn == nil {
			return nil, ErrBadSymbol
		}
		return *fn, nil
	case EntryFunc:
		return fn, nil
	case *EntryFunc:
		if fn == nil || *fn == nil {
			return nil, ErrBadSymbol
		}
		return *fn, nil
	}
	return nil, fmt.Errorf("%w: got %T", ErrBadSymbol, sym)
}

func checkDeclared(reg *registry.Registry, m manifest.Manifest, h *Handle) error {
	have := make(map[string]ir.MacroKind, len(h.registered))
	for _, key := range h.registered {
		if impl, err := reg.Lookup(key.Module, key.Name); err == nil {
			have[key.Name] = impl.Kind()
		}
	}
	for _, entry := range m.Macros {
		kind, err := ir.ParseMacroKind(entry.Kind)
		if err != nil {
			return fmt.Errorf("%w: %v", manifest.ErrInvalidManifest, err)
		}
		got, ok := have[entry.Name]
		if !ok {
			return fmt.Errorf("plugin %s: declared %s macro %q was not registered", m.Name, kind, entry.Name)
		}
		if got != kind {
			return fmt.Errorf("plugin %s: macro %q registered as %s, manifest declares %s", m.Name, entry.Name, got, kind)
		}
	}
	return nil
}
