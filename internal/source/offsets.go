package source

import (
	"fmt"
	"unicode/utf8"

	"fortio.org/safecast"
)

// Spans carry byte offsets everywhere inside the host. Character offsets
// only appear at serialization boundaries (plugins that declare them) and
// are converted with ByteOffset / CharOffset right there.

// IsBoundary reports whether off is a valid cut point in text: within
// bounds and not inside a multi-byte UTF-8 sequence.
func IsBoundary(text string, off int) bool {
	if off < 0 || off > len(text) {
		return false
	}
	if off == 0 || off == len(text) {
		return true
	}
	return utf8.RuneStart(text[off])
}

// ByteOffset converts a character (scalar value) offset into a byte offset.
// The second result is false when charOff is past the end of text.
func ByteOffset(text string, charOff int) (int, bool) {
	if charOff < 0 {
		return 0, false
	}
	n := 0
	for i := range text {
		if n == charOff {
			return i, true
		}
		n++
	}
	if n == charOff {
		return len(text), true
	}
	return 0, false
}

// CharOffset converts a byte offset into a character offset.
// The second result is false when byteOff splits a character or is out of range.
func CharOffset(text string, byteOff int) (int, bool) {
	if !IsBoundary(text, byteOff) {
		return 0, false
	}
	return utf8.RuneCountInString(text[:byteOff]), true
}

// Len32 returns len(s) as uint32, panicking on overflow.
func Len32[T any](s []T) uint32 {
	return mustU32(len(s))
}

// StrLen32 returns len(s) as uint32, panicking on overflow.
func StrLen32(s string) uint32 {
	return mustU32(len(s))
}

func mustU32(n int) uint32 {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		panic(fmt.Errorf("offset overflow: %w", err))
	}
	return v
}
