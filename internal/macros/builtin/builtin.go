// Package builtin holds the macros shipped with the host. They are
// registered under Module and reachable from any file through the
// dynamic-module fallback.
package builtin

import (
	"macroforge/internal/registry"
	"macroforge/internal/template"
)

// Module is the module path built-in macros register under.
const Module = "macroforge"

// templates is shared by every built-in; compiled templates are immutable.
var templates = template.NewCache(template.DefaultCacheSize)

// Register installs every built-in macro.
func Register(r *registry.Registry) error {
	return registry.Single(Module, Debug())(r)
}

// Add queues the built-ins on a registry builder.
func Add(b *registry.Builder) *registry.Builder {
	return b.Add("builtin", Register)
}
