// Package registry maps (module, name) keys to macro implementations and
// package names to manifests. It owns no execution logic; see dispatch.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"macroforge/internal/ir"
	"macroforge/internal/manifest"
)

// Key identifies a registered macro.
type Key struct {
	Module string
	Name   string
}

func (k Key) String() string { return k.Module + "::" + k.Name }

// Entry is a bookkeeping view of one registration.
type Entry struct {
	Module string
	Name   string
	Kind   ir.MacroKind
}

// Registry is safe for concurrent use. Registration normally happens once at
// startup; lookups afterwards are read-only.
type Registry struct {
	mu        sync.RWMutex
	macros    map[Key]Macro
	byName    map[string][]string // name -> modules, для fallback-поиска
	manifests map[string]manifest.Manifest
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		macros:    make(map[Key]Macro),
		byName:    make(map[string][]string),
		manifests: make(map[string]manifest.Manifest),
	}
}

// Register inserts impl under (module, name). A second registration of the
// same key fails and leaves the first one active.
func (r *Registry) Register(module, name string, impl Macro) error {
	if impl == nil {
		return fmt.Errorf("register %s::%s: nil implementation", module, name)
	}
	key := Key{Module: module, Name: name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.macros[key]; exists {
		return fmt.Errorf("%w: %s::%s", ErrDuplicateRegistration, module, name)
	}
	r.macros[key] = impl
	r.byName[name] = append(r.byName[name], module)
	return nil
}

// Lookup returns the implementation registered under exactly (module, name).
func (r *Registry) Lookup(module, name string) (Macro, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if impl, ok := r.macros[Key{Module: module, Name: name}]; ok {
		return impl, nil
	}
	return nil, &NotFoundError{Module: module, Name: name}
}

// LookupWithFallback tries Lookup, then any module registering name. When
// several modules register the name the result is an *AmbiguousError rather
// than an arbitrary pick.
func (r *Registry) LookupWithFallback(module, name string) (Macro, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if impl, ok := r.macros[Key{Module: module, Name: name}]; ok {
		return impl, nil
	}
	modules := r.byName[name]
	switch len(modules) {
	case 0:
		return nil, &NotFoundError{Module: module, Name: name}
	case 1:
		return r.macros[Key{Module: modules[0], Name: name}], nil
	default:
		sorted := append([]string(nil), modules...)
		sort.Strings(sorted)
		return nil, &AmbiguousError{Name: name, Modules: sorted}
	}
}

// Contains reports whether (module, name) is registered.
func (r *Registry) Contains(module, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.macros[Key{Module: module, Name: name}]
	return ok
}

// AllMacros returns every registration sorted by module, then name.
func (r *Registry) AllMacros() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.macros))
	for key, impl := range r.macros {
		out = append(out, Entry{Module: key.Module, Name: key.Name, Kind: impl.Kind()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Len returns the number of registered macros.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.macros)
}

// Clear drops all macros and manifests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.macros = make(map[Key]Macro)
	r.byName = make(map[string][]string)
	r.manifests = make(map[string]manifest.Manifest)
}

// RegisterManifest stores m for pkg after confirming the host speaks its ABI.
func (r *Registry) RegisterManifest(pkg string, m manifest.Manifest) error {
	if m.ABIVersion != ir.ABIVersion {
		return &AbiError{Package: pkg, Expected: ir.ABIVersion, Got: m.ABIVersion}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.manifests[pkg]; exists {
		return fmt.Errorf("%w: manifest for package %s", ErrDuplicateRegistration, pkg)
	}
	r.manifests[pkg] = m
	return nil
}

// Manifest returns the manifest stored for pkg.
func (r *Registry) Manifest(pkg string) (manifest.Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[pkg]
	return m, ok
}

// Manifests returns package names with stored manifests, sorted.
func (r *Registry) Manifests() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.manifests))
	for pkg := range r.manifests {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}
