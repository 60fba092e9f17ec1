package diag

import (
	"macroforge/internal/source"
)

// Note attaches secondary context; Span is optional.
type Note struct {
	Span *source.Span
	Msg  string
}

// Diagnostic is a single finding. Primary is nil for file-less diagnostics
// (e.g. a package that failed to load).
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  *source.Span
	Notes    []Note
	Help     string
}

// HasSpan reports whether the diagnostic points into source.
func (d Diagnostic) HasSpan() bool {
	return d.Primary != nil
}
