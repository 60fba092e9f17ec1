package diag

import "macroforge/internal/source"

func New(sev Severity, code Code, primary source.Span, msg string) Diagnostic {
	sp := primary
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Primary:  &sp,
		Message:  msg,
	}
}

func NewError(code Code, primary source.Span, msg string) Diagnostic {
	return New(SevError, code, primary, msg)
}

func NewWarning(code Code, primary source.Span, msg string) Diagnostic {
	return New(SevWarning, code, primary, msg)
}

// NewGlobal builds a diagnostic that is not tied to a span.
func NewGlobal(sev Severity, code Code, msg string) Diagnostic {
	return Diagnostic{Severity: sev, Code: code, Message: msg}
}

func (d Diagnostic) WithNote(sp source.Span, msg string) Diagnostic {
	s := sp
	d.Notes = append(d.Notes, Note{Span: &s, Msg: msg})
	return d
}

// WithTextNote appends a note without a span.
func (d Diagnostic) WithTextNote(msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Msg: msg})
	return d
}

func (d Diagnostic) WithHelp(help string) Diagnostic {
	d.Help = help
	return d
}
