package source

import (
	"fmt"
)

// Span is a half-open byte range [Start, End) into one source snapshot.
type Span struct {
	File  FileID
	Start uint32 // в байтах включительно
	End   uint32 // в байтах не включительно
}

// NewSpan builds a span from int offsets, panicking on overflow.
func NewSpan(file FileID, start, end int) Span {
	return Span{File: file, Start: mustU32(start), End: mustU32(end)}
}

func (s Span) Empty() bool {
	return s.Start == s.End
}

func (s Span) Len() uint32 {
	return s.End - s.Start
}

// Valid reports whether End >= Start.
func (s Span) Valid() bool {
	return s.End >= s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

func (s Span) Cover(other Span) Span {
	if s.File != other.File {
		return s
	}
	if other.Start < s.Start {
		s.Start = other.Start
	}
	if other.End > s.End {
		s.End = other.End
	}
	return s
}

// Contains reports whether other lies fully inside s.
func (s Span) Contains(other Span) bool {
	return s.File == other.File && s.Start <= other.Start && other.End <= s.End
}

// Overlaps applies the half-open rule: spans overlap unless one ends
// at or before the other starts. Two empty spans at one offset do not overlap.
func (s Span) Overlaps(other Span) bool {
	if s.Empty() && other.Empty() {
		return false
	}
	return !(s.End <= other.Start || other.End <= s.Start)
}

func (s Span) ShiftLeft(n uint32) Span {
	if n > s.Start {
		return s
	}
	return Span{
		File:  s.File,
		Start: s.Start - n,
		End:   s.End - n,
	}
}

func (s Span) ShiftRight(n uint32) Span {
	return Span{
		File:  s.File,
		Start: s.Start + n,
		End:   s.End + n,
	}
}
