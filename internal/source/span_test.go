package source

import (
	"testing"
)

func TestSpan_ShiftLeft(t *testing.T) {
	tests := []struct {
		name     string
		span     Span
		shift    uint32
		expected Span
	}{
		{
			name:     "shift normal span left by 5",
			span:     Span{File: 1, Start: 10, End: 20},
			shift:    5,
			expected: Span{File: 1, Start: 5, End: 15},
		},
		{
			name:     "shift equals start - boundary case",
			span:     Span{File: 1, Start: 10, End: 20},
			shift:    10,
			expected: Span{File: 1, Start: 0, End: 10},
		},
		{
			name:     "shift larger than start - returns original",
			span:     Span{File: 1, Start: 10, End: 20},
			shift:    15,
			expected: Span{File: 1, Start: 10, End: 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.span.ShiftLeft(tt.shift); got != tt.expected {
				t.Fatalf("ShiftLeft(%d) = %v, want %v", tt.shift, got, tt.expected)
			}
		})
	}
}

func TestSpan_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Span
		want bool
	}{
		{"disjoint", Span{Start: 0, End: 3}, Span{Start: 5, End: 8}, false},
		{"adjacent", Span{Start: 0, End: 3}, Span{Start: 3, End: 8}, false},
		{"intersecting", Span{Start: 0, End: 4}, Span{Start: 3, End: 8}, true},
		{"nested", Span{Start: 0, End: 10}, Span{Start: 3, End: 4}, true},
		{"two empty at same offset", Span{Start: 4, End: 4}, Span{Start: 4, End: 4}, false},
		{"empty inside non-empty", Span{Start: 4, End: 4}, Span{Start: 2, End: 6}, true},
		{"empty at start of non-empty", Span{Start: 2, End: 2}, Span{Start: 2, End: 6}, false},
		{"empty at end of non-empty", Span{Start: 6, End: 6}, Span{Start: 2, End: 6}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Fatalf("%v.Overlaps(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Fatalf("overlap is not symmetric for %v and %v", tt.a, tt.b)
			}
		})
	}
}

func TestSpan_CoverAndContains(t *testing.T) {
	a := Span{File: 1, Start: 4, End: 6}
	b := Span{File: 1, Start: 1, End: 5}
	got := a.Cover(b)
	if got != (Span{File: 1, Start: 1, End: 6}) {
		t.Fatalf("unexpected cover: %v", got)
	}
	if !got.Contains(a) || !got.Contains(b) {
		t.Fatalf("cover %v must contain both inputs", got)
	}
	if a.Cover(Span{File: 2, Start: 0, End: 100}) != a {
		t.Fatalf("cover across files must return receiver")
	}
}
