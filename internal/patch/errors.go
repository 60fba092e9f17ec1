package patch

import (
	"errors"
	"fmt"

	"macroforge/internal/ir"
)

var (
	// ErrOverlappingPatches is matched by *OverlapError.
	ErrOverlappingPatches = errors.New("overlapping patches")
	// ErrSpanOutOfRange is matched by *RangeError.
	ErrSpanOutOfRange = errors.New("patch span out of range")
)

// OverlapError names the first conflicting pair found.
type OverlapError struct {
	A, B ir.Patch
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlapping patches: %s and %s", e.A, e.B)
}

func (e *OverlapError) Is(target error) bool { return target == ErrOverlappingPatches }

// RangeError reports a patch whose offsets fall outside the source or
// inside a multi-byte character.
type RangeError struct {
	Patch  ir.Patch
	Len    int
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("patch span out of range: %s (source length %d): %s", e.Patch, e.Len, e.Reason)
}

func (e *RangeError) Is(target error) bool { return target == ErrSpanOutOfRange }
