package source

import (
	"bytes"
	"sort"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func lineIndex(content []byte) []uint32 {
	idx := make([]uint32, 0, bytes.Count(content, []byte{'\n'}))
	for i, b := range content {
		if b == '\n' {
			idx = append(idx, mustU32(i))
		}
	}
	return idx
}

// lineStart is the offset of the first byte of 1-based line n, false when
// the file has fewer lines.
func (f *File) lineStart(n uint32) (uint32, bool) {
	switch {
	case n == 0:
		return 0, false
	case n == 1:
		return 0, true
	case int(n-2) < len(f.LineIdx):
		return f.LineIdx[n-2] + 1, true
	}
	return 0, false
}

// Position returns the line and character column of off. Offsets past the
// end clamp to the end; a '\r' before '\n' counts as a column.
func (f *File) Position(off uint32) LineCol {
	off = min(off, StrLen32(string(f.Content)))
	// число '\n' строго до off
	line := sort.Search(len(f.LineIdx), func(i int) bool { return f.LineIdx[i] >= off })
	start, _ := f.lineStart(mustU32(line + 1))
	col := utf8.RuneCount(f.Content[start:off])
	return LineCol{Line: mustU32(line + 1), Col: mustU32(col + 1)}
}

// GetLine returns 1-based line n without its terminator, "" when absent.
func (f *File) GetLine(n uint32) string {
	start, ok := f.lineStart(n)
	if !ok || int(start) > len(f.Content) {
		return ""
	}
	end := uint32(len(f.Content))
	if int(n-1) < len(f.LineIdx) {
		end = f.LineIdx[n-1]
	}
	return string(bytes.TrimSuffix(f.Content[start:end], []byte{'\r'}))
}
