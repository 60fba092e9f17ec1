// Package dispatch runs one macro invocation against the registry.
//
// Dispatch never fails: lookup misses, ABI mismatches and panics inside a
// macro all come back as an ir.MacroResult with a single error diagnostic
// and no patches, so one broken macro cannot take the file down with it.
package dispatch
