package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLevelShouldEmit(t *testing.T) {
	tests := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeSession, false},
		{LevelError, ScopeSession, false},
		{LevelPhase, ScopeSession, true},
		{LevelPhase, ScopeFile, false},
		{LevelDetail, ScopeFile, true},
		{LevelDetail, ScopeMacro, false},
		{LevelDebug, ScopeMacro, true},
	}
	for _, tt := range tests {
		if got := tt.level.ShouldEmit(tt.scope); got != tt.want {
			t.Errorf("%s.ShouldEmit(%s) = %v, want %v", tt.level, tt.scope, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for i, s := range []string{"off", "error", "phase", "detail", " DEBUG"} {
		got, err := ParseLevel(s)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", s, err)
		}
		if got != Level(i) {
			t.Fatalf("ParseLevel(%q) = %s", s, got)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestRingTracerWraps(t *testing.T) {
	r := NewRingTracer(3, LevelDebug)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		Point(r, ScopeMacro, name, 0, "")
	}
	got := r.Snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, want := range []string{"c", "d", "e"} {
		if got[i].Name != want {
			t.Fatalf("event %d: got %q, want %q", i, got[i].Name, want)
		}
	}
	if got[0].Seq != 3 || got[2].Seq != 5 {
		t.Fatalf("unexpected sequence numbers %d..%d", got[0].Seq, got[2].Seq)
	}
}

func TestErrorLevelKeepsFailuresOnly(t *testing.T) {
	r := NewRingTracer(16, LevelError)
	Point(r, ScopeSession, "ignored", 0, "")
	Fail(r, ScopeMacro, "macro:Debug", 0, "panicked")
	got := r.Snapshot()
	if len(got) != 1 || !got[0].Failure {
		t.Fatalf("expected a single failure event, got %+v", got)
	}
}

func TestSpanBeginEnd(t *testing.T) {
	r := NewRingTracer(16, LevelDebug)
	s := Begin(r, ScopeFile, "file:a.ts", 0)
	s.WithExtra("invocations", "2").End("ok")

	got := r.Snapshot()
	if len(got) != 2 {
		t.Fatalf("expected begin+end, got %d", len(got))
	}
	if got[0].Kind != KindSpanBegin || got[1].Kind != KindSpanEnd {
		t.Fatalf("unexpected kinds: %s %s", got[0].Kind, got[1].Kind)
	}
	if v, _ := got[1].Attr("invocations"); v != "2" || got[1].Detail != "ok" {
		t.Fatalf("end event lost data: %+v", got[1])
	}
	if got[0].SpanID != s.ID() || got[1].SpanID != s.ID() {
		t.Fatalf("span ids differ from %d", s.ID())
	}
}

func TestSpanFilteredByLevel(t *testing.T) {
	r := NewRingTracer(16, LevelPhase)
	s := Begin(r, ScopeMacro, "macro:Debug", 0)
	if s.ID() != 0 {
		t.Fatalf("filtered span should be inert")
	}
	s.WithExtra("k", "v").End("")
	if n := len(r.Snapshot()); n != 0 {
		t.Fatalf("expected nothing recorded, got %d", n)
	}
}

func TestStreamTracerText(t *testing.T) {
	var buf bytes.Buffer
	st := NewStreamTracer(&buf, LevelDebug, FormatText)
	st.Emit(&Event{Kind: KindPoint, Scope: ScopeFile, Name: "lower", Attrs: []Attr{{"b", "2"}, {"a", "1"}}})
	if got, want := buf.String(), "[     1]     . lower b=2 a=1\n"; got != want {
		t.Fatalf("text output %q, want %q", got, want)
	}
}

func TestStreamTracerNDJSON(t *testing.T) {
	var buf bytes.Buffer
	st := NewStreamTracer(&buf, LevelDebug, FormatNDJSON)
	st.Emit(&Event{Kind: KindSpanBegin, Scope: ScopeSession, Name: "session"})
	out := buf.String()
	if !strings.HasPrefix(out, "{") || !strings.Contains(out, `"name":"session"`) || !strings.HasSuffix(out, "\n") {
		t.Fatalf("unexpected ndjson output: %q", out)
	}
}

func TestNewOffIsNop(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr != Nop {
		t.Fatalf("expected Nop")
	}
}

func TestNewBothFansOut(t *testing.T) {
	var buf bytes.Buffer
	tr, err := New(Config{Level: LevelDebug, Mode: ModeBoth, Output: &buf, Format: FormatText})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	Point(tr, ScopeSession, "hello", 0, "")
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("stream side missed event: %q", buf.String())
	}
	ring := tr.(fanout)[1].(*RingTracer)
	if len(ring.Snapshot()) != 1 {
		t.Fatalf("ring side missed event")
	}
}

func TestDetectFormat(t *testing.T) {
	if DetectFormat("out.ndjson") != FormatNDJSON {
		t.Fatalf("expected ndjson for .ndjson")
	}
	if DetectFormat("-") != FormatText {
		t.Fatalf("expected text for stderr")
	}
}

func TestContextPropagation(t *testing.T) {
	if FromContext(context.Background()) != Nop {
		t.Fatalf("expected Nop from empty context")
	}
	r := NewRingTracer(8, LevelDebug)
	ctx := WithTracer(context.Background(), r)
	if FromContext(ctx) != Tracer(r) {
		t.Fatalf("tracer not propagated")
	}
	s := Begin(r, ScopeSession, "s", 0)
	ctx = WithSpan(ctx, s)
	if CurrentSpan(ctx).SpanID != s.ID() {
		t.Fatalf("span not propagated")
	}
	inner := Begin(r, ScopeFile, "f", CurrentSpan(ctx).SpanID)
	inner.End("")
	if got := r.Snapshot()[1].ParentID; got != s.ID() {
		t.Fatalf("parent = %d, want %d", got, s.ID())
	}
}
