package ui

import (
	"strings"
	"testing"
)

func TestProgressModelEvents(t *testing.T) {
	files := []string{"src/a.ts", "src/b.ts"}
	m := NewProgressModel("expanding src", files, nil).(*progressModel)

	m.Update(eventMsg{File: "src/a.ts", Status: StatusWorking})
	if m.items[0].status != StatusWorking || m.finished != 0 {
		t.Fatalf("working event not applied: %+v", m.items[0])
	}
	m.Update(eventMsg{File: "src/a.ts", Status: StatusDone})
	m.Update(eventMsg{File: "src/b.ts", Status: StatusError})
	// повторное событие для завершённого файла игнорируется
	m.Update(eventMsg{File: "src/b.ts", Status: StatusDone})
	m.Update(eventMsg{File: "unknown.ts", Status: StatusDone})

	if m.finished != 2 {
		t.Fatalf("finished = %d, want 2", m.finished)
	}
	if m.items[1].status != StatusError {
		t.Fatalf("b.ts status = %s", m.items[1].status)
	}

	m.Update(doneMsg{})
	view := m.View()
	for _, want := range []string{"done: expanding src (2/2)", "src/a.ts", "error"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short.ts", 20, "short.ts"},
		{"a/very/long/path.ts", 10, "a/very/..."},
		{"abcdef", 3, "abc"},
		{"日本語.ts", 5, "日..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
