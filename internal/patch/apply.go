package patch

import (
	"sort"

	"macroforge/internal/ir"
	"macroforge/internal/source"
)

// Output holds the expanded texts of one file.
type Output struct {
	Runtime  string
	Types    string
	HasTypes bool
}

type indexed struct {
	p     ir.Patch
	span  source.Span
	order int
}

// Apply applies patches to src atomically. Spans are byte offsets into
// src. On error the returned text is empty and src must be kept as is.
func Apply(src string, patches []ir.Patch) (string, error) {
	if len(patches) == 0 {
		return src, nil
	}

	items := make([]indexed, len(patches))
	for i, p := range patches {
		items[i] = indexed{p: p, span: p.AffectedSpan(), order: i}
	}

	// start ascending; at the same start zero-width inserts go first, then
	// collection order
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].span, items[j].span
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Empty() != b.Empty() {
			return a.Empty()
		}
		return items[i].order < items[j].order
	})

	if err := checkOverlaps(items); err != nil {
		return "", err
	}
	for _, it := range items {
		if err := checkRange(src, it); err != nil {
			return "", err
		}
	}

	// back-to-front so every span stays in original coordinates
	buf := []byte(src)
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		start, end := int(it.span.Start), int(it.span.End)
		var code string
		switch it.p.Kind {
		case ir.PatchInsert, ir.PatchReplace:
			code = it.p.Code
		}
		suffix := append([]byte(nil), buf[end:]...)
		buf = append(append(buf[:start], code...), suffix...)
	}
	return string(buf), nil
}

// checkOverlaps expects items sorted by Apply's order. open tracks the
// non-empty span reaching furthest right so far.
func checkOverlaps(items []indexed) error {
	var open *indexed
	for i := range items {
		cur := &items[i]
		if open != nil && spansConflict(open.span, cur.span) {
			a, b := open.p, cur.p
			if cur.order < open.order {
				a, b = b, a
			}
			return &OverlapError{A: a, B: b}
		}
		if !cur.span.Empty() && (open == nil || cur.span.End > open.span.End) {
			open = cur
		}
	}
	return nil
}

// spansConflict applies the half-open rule: neither ends at or before the
// other's start. Two zero-width spans never conflict; a zero-width span at
// either edge of a range does not conflict either.
func spansConflict(a, b source.Span) bool {
	if a.Empty() && b.Empty() {
		return false
	}
	return !(a.End <= b.Start || b.End <= a.Start)
}

func checkRange(src string, it indexed) error {
	start, end := int(it.span.Start), int(it.span.End)
	switch {
	case end < start:
		return &RangeError{Patch: it.p, Len: len(src), Reason: "end before start"}
	case end > len(src):
		return &RangeError{Patch: it.p, Len: len(src), Reason: "past end of source"}
	case !source.IsBoundary(src, start) || !source.IsBoundary(src, end):
		return &RangeError{Patch: it.p, Len: len(src), Reason: "splits a multi-byte character"}
	}
	return nil
}

// ApplyResult dedups and applies the runtime and type patch sets of c
// independently. The first failure aborts both.
func ApplyResult(src string, c *Collector) (Output, error) {
	runtime, err := Apply(src, Dedup(c.Runtime()))
	if err != nil {
		return Output{}, err
	}
	out := Output{Runtime: runtime}
	if types := Dedup(c.Types()); len(types) > 0 {
		// type patches target the same original source coordinates
		text, err := Apply(src, types)
		if err != nil {
			return Output{}, err
		}
		out.Types = text
		out.HasTypes = true
	}
	return out, nil
}
