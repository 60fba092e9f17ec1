// Package host assembles the macro registry for a project: built-in macros
// plus every package listed in the configuration.
package host

import (
	"errors"
	"fmt"

	"macroforge/internal/config"
	"macroforge/internal/diag"
	"macroforge/internal/dispatch"
	"macroforge/internal/macros/builtin"
	"macroforge/internal/manifest"
	"macroforge/internal/plugin"
	"macroforge/internal/registry"
)

// Options tune package loading.
type Options struct {
	// SkipBuiltins leaves the built-in macros out of the registry.
	SkipBuiltins bool
	// Open replaces plugin.Open for native packages.
	Open func(path string) (plugin.Symbols, error)
}

// Package records how one configured package was handled.
type Package struct {
	Name     string
	Dir      string
	Manifest manifest.Manifest
	Runtime  string
	Loaded   bool
	Macros   []registry.Key
}

// Host is the registry of one project together with the package outcomes.
type Host struct {
	Config      *config.Config
	Registry    *registry.Registry
	Packages    []Package
	Diagnostics []diag.Diagnostic
}

// New builds the registry for cfg. Packages that cannot run in this host
// are reported as diagnostics and skipped; a manifest that fails to load
// or registers conflicting macros aborts startup.
func New(cfg *config.Config, opts Options) (*Host, error) {
	h := &Host{Config: cfg, Registry: registry.New()}
	if !opts.SkipBuiltins {
		if err := builtin.Register(h.Registry); err != nil {
			return nil, fmt.Errorf("built-in macros: %w", err)
		}
	}
	for _, name := range cfg.Packages {
		pkg, err := h.load(name, opts)
		if err != nil {
			return nil, err
		}
		h.Packages = append(h.Packages, pkg)
	}
	return h, nil
}

// Dispatcher returns a dispatcher over the host registry honoring the
// configured diagnostic limit.
func (h *Host) Dispatcher() *dispatch.Dispatcher {
	return dispatch.New(h.Registry, dispatch.WithMaxDiagnostics(h.Config.Limits.MaxDiagnostics))
}

func (h *Host) load(name string, opts Options) (Package, error) {
	pkg := Package{Name: name}
	dir, err := h.Config.ResolvePackageDir(name)
	if err != nil {
		return pkg, fmt.Errorf("package %s: %w", name, err)
	}
	pkg.Dir = dir

	m, err := manifest.Load(dir)
	if err != nil {
		return pkg, fmt.Errorf("package %s: %w", name, err)
	}
	pkg.Manifest = m

	rt, err := h.Config.CheckPackage(m)
	if err != nil {
		if errors.Is(err, config.ErrPackageRejected) {
			h.report(diag.SevError, diag.HostPackageLoad, err.Error())
			return pkg, nil
		}
		return pkg, err
	}
	pkg.Runtime = rt

	if rt != manifest.RuntimeNative {
		h.report(diag.SevWarning, diag.HostRuntimeMismatch,
			fmt.Sprintf("package %s uses the %s runtime, which this host does not provide; its macros are unavailable", m.Name, rt))
		return pkg, nil
	}

	keys, err := plugin.Load(h.Registry, m, plugin.Options{AllowNative: h.Config.AllowNativeMacros, Open: opts.Open})
	pkg.Macros = keys
	switch {
	case err == nil:
		pkg.Loaded = true
	case errors.Is(err, plugin.ErrNativeDisabled):
		h.report(diag.SevError, diag.HostNativeDisabled, err.Error())
	case errors.Is(err, registry.ErrAbiVersionMismatch),
		errors.Is(err, registry.ErrDuplicateRegistration),
		errors.Is(err, manifest.ErrInvalidManifest):
		return pkg, err
	default:
		h.report(diag.SevError, diag.HostPackageLoad, err.Error())
	}
	return pkg, nil
}

func (h *Host) report(sev diag.Severity, code diag.Code, msg string) {
	h.Diagnostics = append(h.Diagnostics, diag.NewGlobal(sev, code, msg))
}

// HasErrors reports whether any package failed to load.
func (h *Host) HasErrors() bool {
	for _, d := range h.Diagnostics {
		if d.Severity >= diag.SevError {
			return true
		}
	}
	return false
}
