package ir

import (
	"macroforge/internal/diag"
	"macroforge/internal/source"
)

// MacroResult is what a macro returns for one context.
type MacroResult struct {
	RuntimePatches []Patch
	TypePatches    []Patch
	Diagnostics    []diag.Diagnostic
	Debug          string
}

// ErrorResult is a result with no patches and one error diagnostic.
func ErrorResult(code diag.Code, span source.Span, msg, help string) MacroResult {
	return MacroResult{
		Diagnostics: []diag.Diagnostic{diag.NewError(code, span, msg).WithHelp(help)},
	}
}

// HasErrors reports whether any diagnostic is an error.
func (r MacroResult) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity >= diag.SevError {
			return true
		}
	}
	return false
}

// Empty reports whether the result carries no patches.
func (r MacroResult) Empty() bool {
	return len(r.RuntimePatches) == 0 && len(r.TypePatches) == 0
}
