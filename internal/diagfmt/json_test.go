package diagfmt

import (
	"bytes"
	"encoding/json"
	"testing"

	"macroforge/internal/diag"
	"macroforge/internal/source"
)

func decode(t *testing.T, buf *bytes.Buffer) DiagnosticsOutput {
	t.Helper()
	var output DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatalf("invalid JSON output: %v\noutput: %s", err, buf.String())
	}
	return output
}

// TestJSONBasic проверяет базовое JSON форматирование
func TestJSONBasic(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("src/user.ts", []byte("/** @derive(Nope) */\nclass User {}\n"))

	bag := diag.NewBag(10)
	bag.Add(diag.NewError(diag.MacroNotFound, source.Span{File: fileID, Start: 27, End: 31}, "macro Nope is not registered").
		WithNote(source.Span{File: fileID, Start: 12, End: 16}, "used here").
		WithHelp("add the package to macroforge.config.toml"))

	var buf bytes.Buffer
	if err := JSON(&buf, bag, fs, JSONOpts{IncludePositions: true, PathMode: PathModeBasename, IncludeNotes: true}); err != nil {
		t.Fatalf("JSON() error: %v", err)
	}
	output := decode(t, &buf)
	if output.Count != 1 || len(output.Diagnostics) != 1 {
		t.Fatalf("expected one diagnostic, got %+v", output)
	}

	d := output.Diagnostics[0]
	if d.Severity != "error" || d.Code != "MAC1001" || d.Message != "macro Nope is not registered" {
		t.Fatalf("unexpected header fields %+v", d)
	}
	if d.Help != "add the package to macroforge.config.toml" {
		t.Fatalf("help = %q", d.Help)
	}
	want := LocationJSON{File: "user.ts", StartByte: 27, EndByte: 31, StartLine: 2, StartCol: 7, EndLine: 2, EndCol: 11}
	if d.Location == nil || *d.Location != want {
		t.Fatalf("location = %+v, want %+v", d.Location, want)
	}
	if len(d.Notes) != 1 || d.Notes[0].Message != "used here" || d.Notes[0].Location.StartCol != 13 {
		t.Fatalf("notes = %+v", d.Notes)
	}
}

func TestJSONWithoutPositions(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("a.ts", []byte("class A {}\n"))
	bag := diag.NewBag(10)
	bag.Add(diag.NewWarning(diag.LowerSyntaxError, source.Span{File: fileID, Start: 6, End: 7}, "syntax error").
		WithNote(source.Span{File: fileID, Start: 0, End: 5}, "hidden"))

	var buf bytes.Buffer
	if err := JSON(&buf, bag, fs, JSONOpts{PathMode: PathModeBasename}); err != nil {
		t.Fatalf("JSON() error: %v", err)
	}
	d := decode(t, &buf).Diagnostics[0]
	if d.Location.StartLine != 0 || d.Location.StartCol != 0 {
		t.Fatalf("positions included without IncludePositions: %+v", d.Location)
	}
	if len(d.Notes) != 0 {
		t.Fatalf("notes included without IncludeNotes: %+v", d.Notes)
	}
	if bytes.Contains(buf.Bytes(), []byte("start_line")) {
		t.Fatalf("zero positions must be omitted:\n%s", buf.String())
	}
}

func TestJSONMaxLimit(t *testing.T) {
	bag := diag.NewBag(10)
	for range 5 {
		bag.Add(diag.NewGlobal(diag.SevInfo, diag.HostInfo, "info"))
	}
	output := BuildDiagnosticsOutput(bag, source.NewFileSet(), JSONOpts{Max: 3})
	if output.Count != 3 || len(output.Diagnostics) != 3 {
		t.Fatalf("expected 3 diagnostics, got %d", output.Count)
	}
}

func TestJSONGlobalDiagnostic(t *testing.T) {
	bag := diag.NewBag(1)
	bag.Add(diag.NewGlobal(diag.SevError, diag.HostPackageLoad, "package @acme/macros failed to load"))

	var buf bytes.Buffer
	if err := JSON(&buf, bag, nil, JSONOpts{IncludePositions: true}); err != nil {
		t.Fatalf("JSON() error: %v", err)
	}
	d := decode(t, &buf).Diagnostics[0]
	if d.Location != nil {
		t.Fatalf("global diagnostic must have no location, got %+v", d.Location)
	}
	if bytes.Contains(buf.Bytes(), []byte(`"location"`)) {
		t.Fatalf("location key must be omitted:\n%s", buf.String())
	}
}
