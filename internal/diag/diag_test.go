package diag

import (
	"testing"

	"macroforge/internal/source"
)

func TestBagRespectsLimit(t *testing.T) {
	bag := NewBag(2)
	for range 3 {
		bag.Add(NewGlobal(SevWarning, HostInfo, "w"))
	}
	if bag.Len() != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", bag.Len())
	}
	if bag.HasErrors() {
		t.Fatalf("warnings only, HasErrors must be false")
	}

	unlimited := NewBag(0)
	for range 100 {
		unlimited.Add(NewGlobal(SevInfo, HostInfo, "i"))
	}
	if unlimited.Len() != 100 {
		t.Fatalf("unlimited bag dropped diagnostics: %d", unlimited.Len())
	}
}

func TestBagSortIsDeterministic(t *testing.T) {
	bag := NewBag(0)
	bag.Add(NewWarning(MacroReported, source.Span{Start: 10, End: 12}, "late warning"))
	bag.Add(NewError(MacroNotFound, source.Span{Start: 10, End: 12}, "late error"))
	bag.Add(NewError(MacroAbiMismatch, source.Span{Start: 1, End: 2}, "early"))
	bag.Add(NewGlobal(SevError, HostPackageLoad, "global"))
	bag.Sort()

	got := make([]string, 0, bag.Len())
	for _, d := range bag.Items() {
		got = append(got, d.Message)
	}
	want := []string{"global", "early", "late error", "late warning"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v, want %v", i, got, want)
		}
	}
}

func TestBagDedup(t *testing.T) {
	bag := NewBag(0)
	sp := source.Span{Start: 3, End: 4}
	bag.Add(NewError(MacroNotFound, sp, "macro not found: Foo"))
	bag.Add(NewError(MacroNotFound, sp, "macro not found: Foo"))
	bag.Add(NewError(MacroNotFound, sp, "macro not found: Bar"))
	bag.Dedup()
	if bag.Len() != 2 {
		t.Fatalf("expected 2 diagnostics after dedup, got %d", bag.Len())
	}
}

func TestBagCountsDropped(t *testing.T) {
	bag := NewBag(1)
	bag.AddAll([]Diagnostic{
		NewGlobal(SevWarning, HostInfo, "kept"),
		NewGlobal(SevError, HostIO, "dropped"),
		NewGlobal(SevError, HostIO, "dropped too"),
	})
	if bag.Len() != 1 || bag.Dropped() != 2 {
		t.Fatalf("len=%d dropped=%d, want 1 and 2", bag.Len(), bag.Dropped())
	}
	if !bag.HasErrors() {
		t.Fatalf("dropped errors must still fail the bag")
	}
	over, ok := bag.Overflow()
	if !ok || over.Severity != SevError || over.Message != "2 more diagnostic(s) suppressed by the limit of 1" {
		t.Fatalf("unexpected overflow %+v", over)
	}
	if _, ok := NewBag(0).Overflow(); ok {
		t.Fatalf("empty bag reported an overflow")
	}
}

func TestBuilderNotesAndHelp(t *testing.T) {
	d := NewError(MacroAbiMismatch, source.Span{}, "mismatch").
		WithHelp("rebuild").
		WithNote(source.Span{Start: 1, End: 2}, "declared here").
		WithTextNote("expected abi 1")
	if d.Help != "rebuild" || len(d.Notes) != 2 || d.Notes[1].Span != nil {
		t.Fatalf("builder lost details: %+v", d)
	}
}

func TestCodeID(t *testing.T) {
	if MacroNotFound.ID() != "MAC1001" {
		t.Fatalf("unexpected id %s", MacroNotFound.ID())
	}
	if PatchOverlapping.ID() != "PAT2001" {
		t.Fatalf("unexpected id %s", PatchOverlapping.ID())
	}
}
