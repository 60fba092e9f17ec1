// Package diagfmt renders diagnostics: the one-line form used on stderr,
// a pretty form with source excerpts and a JSON document.
package diagfmt

import (
	"fmt"
	"io"

	"macroforge/internal/diag"
	"macroforge/internal/source"
)

// Plain печатает каждую диагностику одной строкой:
// <level> at <file>:<line>:<col>: <message>
// Диагностики без span печатаются как <level>: <message>.
func Plain(w io.Writer, bag *diag.Bag, fs *source.FileSet, mode PathMode) {
	for _, d := range bag.Items() {
		if loc, ok := location(d.Primary, fs, mode); ok {
			fmt.Fprintf(w, "%s at %s: %s\n", d.Severity, loc, d.Message)
		} else {
			fmt.Fprintf(w, "%s: %s\n", d.Severity, d.Message)
		}
	}
}

// location formats a span as path:line:col.
func location(sp *source.Span, fs *source.FileSet, mode PathMode) (string, bool) {
	if sp == nil || fs == nil {
		return "", false
	}
	f := fs.Get(sp.File)
	if f == nil {
		return "", false
	}
	pos := f.Position(sp.Start)
	return fmt.Sprintf("%s:%d:%d", displayPath(f, fs, mode), pos.Line, pos.Col), true
}

func displayPath(f *source.File, fs *source.FileSet, mode PathMode) string {
	baseDir := ""
	if mode == PathModeRelative {
		baseDir = fs.BaseDir()
	}
	return f.FormatPath(mode.format(), baseDir)
}
