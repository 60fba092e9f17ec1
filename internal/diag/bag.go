package diag

import (
	"cmp"
	"fmt"
	"slices"
)

// Bag collects diagnostics up to a limit and counts what it had to drop.
type Bag struct {
	items   []Diagnostic
	max     int
	dropped int
	worst   Severity // of dropped diagnostics
}

// NewBag creates a bag; max <= 0 means unlimited.
func NewBag(max int) *Bag {
	return &Bag{max: max}
}

// Add reports false once the limit is reached; the diagnostic is counted as dropped.
func (b *Bag) Add(d Diagnostic) bool {
	if b.max > 0 && len(b.items) >= b.max {
		b.dropped++
		b.worst = max(b.worst, d.Severity)
		return false
	}
	b.items = append(b.items, d)
	return true
}

// AddAll adds ds in order.
func (b *Bag) AddAll(ds []Diagnostic) {
	for _, d := range ds {
		b.Add(d)
	}
}

func (b *Bag) Len() int { return len(b.items) }

// Dropped counts diagnostics refused because of the limit.
func (b *Bag) Dropped() int { return b.dropped }

// Overflow summarizes the dropped diagnostics as one global diagnostic
// carrying the worst dropped severity.
func (b *Bag) Overflow() (Diagnostic, bool) {
	if b.dropped == 0 {
		return Diagnostic{}, false
	}
	return NewGlobal(b.worst, HostInfo, fmt.Sprintf("%d more diagnostic(s) suppressed by the limit of %d", b.dropped, b.max)), true
}

// HasErrors reports whether any diagnostic, kept or dropped, is an error.
func (b *Bag) HasErrors() bool {
	if b.dropped > 0 && b.worst >= SevError {
		return true
	}
	return slices.ContainsFunc(b.items, func(d Diagnostic) bool { return d.Severity >= SevError })
}

// Items returns the bag's backing slice; callers must not modify it.
func (b *Bag) Items() []Diagnostic {
	return b.items
}

// Sort orders diagnostics by file, start, end, severity (desc) and code.
// Span-less diagnostics come first.
func (b *Bag) Sort() {
	slices.SortStableFunc(b.items, func(x, y Diagnostic) int {
		if x.HasSpan() != y.HasSpan() {
			if x.HasSpan() {
				return 1
			}
			return -1
		}
		if x.HasSpan() {
			px, py := *x.Primary, *y.Primary
			if c := cmp.Or(cmp.Compare(px.File, py.File), cmp.Compare(px.Start, py.Start), cmp.Compare(px.End, py.End)); c != 0 {
				return c
			}
		}
		return cmp.Or(cmp.Compare(y.Severity, x.Severity), cmp.Compare(x.Code, y.Code))
	})
}

type dedupKey struct {
	code    Code
	span    string
	message string
}

// Dedup drops repeats of the same code, primary span and message, keeping the first.
func (b *Bag) Dedup() {
	seen := make(map[dedupKey]struct{}, len(b.items))
	b.items = slices.DeleteFunc(b.items, func(d Diagnostic) bool {
		k := dedupKey{code: d.Code, message: d.Message}
		if d.Primary != nil {
			k.span = d.Primary.String()
		}
		if _, dup := seen[k]; dup {
			return true
		}
		seen[k] = struct{}{}
		return false
	})
}
