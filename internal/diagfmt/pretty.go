package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"macroforge/internal/diag"
	"macroforge/internal/source"
)

const tabWidth = 4

type palette struct {
	err, warn, info, code, caret, note, dim *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:   color.New(color.FgRed, color.Bold),
		warn:  color.New(color.FgYellow, color.Bold),
		info:  color.New(color.FgCyan, color.Bold),
		code:  color.New(color.Bold),
		caret: color.New(color.FgGreen, color.Bold),
		note:  color.New(color.FgBlue),
		dim:   color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.code, p.caret, p.note, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	default:
		return p.info
	}
}

// Pretty форматирует диагностики в человекочитаемый вид.
// Для каждого diag печатает:
// <path>:<line>:<col>: <SEV> <CODE>: <Message>
// затем строку исходника с подчёркиванием ^~~~ по Span, затем Notes.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	p := newPalette(opts.Color)
	for i, d := range bag.Items() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		sev := p.severity(d.Severity).Sprint(strings.ToUpper(d.Severity.String()))
		header := fmt.Sprintf("%s %s: %s", sev, p.code.Sprint(d.Code.ID()), d.Message)
		if loc, ok := location(d.Primary, fs, opts.PathMode); ok {
			header = loc + ": " + header
		}
		fmt.Fprintln(w, header)
		if d.Primary != nil {
			excerpt(w, fs, *d.Primary, p)
		}

		if opts.ShowNotes {
			for _, n := range d.Notes {
				loc, ok := location(n.Span, fs, opts.PathMode)
				if !ok {
					fmt.Fprintf(w, "  %s %s\n", p.note.Sprint("note:"), n.Msg)
					continue
				}
				fmt.Fprintf(w, "  %s %s: %s\n", p.note.Sprint("note:"), loc, n.Msg)
				excerpt(w, fs, *n.Span, p)
			}
		}
		if opts.ShowHelp && d.Help != "" {
			fmt.Fprintf(w, "  %s %s\n", p.note.Sprint("help:"), d.Help)
		}
	}
}

// excerpt prints the first line of span with a caret underline. Spans
// running past the line are underlined to its end.
func excerpt(w io.Writer, fs *source.FileSet, span source.Span, p palette) {
	f := fs.Get(span.File)
	if f == nil {
		return
	}
	start, end := fs.Resolve(span)
	line := f.GetLine(start.Line)
	from := byteColumn(f, start.Line, span.Start)
	to := len(line)
	if end.Line == start.Line {
		to = from + int(span.Len())
	}
	from = min(max(from, 0), len(line))
	to = min(max(to, from), len(line))

	gutter := fmt.Sprintf("%4d | ", start.Line)
	fmt.Fprintf(w, "%s%s\n", p.dim.Sprint(gutter), expandTabs(line))

	pad := runewidth.StringWidth(expandTabs(line[:from]))
	width := max(runewidth.StringWidth(expandTabs(line[from:to])), 1)
	marks := "^" + strings.Repeat("~", width-1)
	fmt.Fprintf(w, "%s%s%s\n", p.dim.Sprint(strings.Repeat(" ", 4)+" | "), strings.Repeat(" ", pad), p.caret.Sprint(marks))
}

// byteColumn returns the byte distance of off from the start of line.
func byteColumn(f *source.File, line uint32, off uint32) int {
	var start uint32
	if line > 1 && int(line-2) < len(f.LineIdx) {
		start = f.LineIdx[line-2] + 1
	}
	if off < start {
		return 0
	}
	return int(off - start)
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", strings.Repeat(" ", tabWidth))
}
