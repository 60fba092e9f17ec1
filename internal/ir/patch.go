package ir

import (
	"fmt"

	"macroforge/internal/source"
)

type PatchKind uint8

const (
	PatchInsert PatchKind = iota
	PatchReplace
	PatchDelete
)

func (k PatchKind) String() string {
	switch k {
	case PatchInsert:
		return "insert"
	case PatchReplace:
		return "replace"
	case PatchDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Patch is one textual edit in original-file coordinates. For inserts Span
// is the zero-width insertion point; Code is empty for deletes.
type Patch struct {
	Kind PatchKind
	Span source.Span
	Code string
}

// Insert splices code at the position at.Start; at.End is ignored.
func Insert(at source.Span, code string) Patch {
	return Patch{Kind: PatchInsert, Span: source.Span{File: at.File, Start: at.Start, End: at.Start}, Code: code}
}

// InsertAt is Insert with a bare offset.
func InsertAt(file source.FileID, offset uint32, code string) Patch {
	return Insert(source.Span{File: file, Start: offset, End: offset}, code)
}

func Replace(span source.Span, code string) Patch {
	return Patch{Kind: PatchReplace, Span: span, Code: code}
}

func Delete(span source.Span) Patch {
	return Patch{Kind: PatchDelete, Span: span}
}

// AffectedSpan is the range the patch consumes; zero-width for inserts.
func (p Patch) AffectedSpan() source.Span {
	if p.Kind == PatchInsert {
		return source.Span{File: p.Span.File, Start: p.Span.Start, End: p.Span.Start}
	}
	return p.Span
}

func (p Patch) String() string {
	switch p.Kind {
	case PatchInsert:
		return fmt.Sprintf("insert@%d %q", p.Span.Start, p.Code)
	case PatchReplace:
		return fmt.Sprintf("replace[%d,%d) %q", p.Span.Start, p.Span.End, p.Code)
	default:
		return fmt.Sprintf("delete[%d,%d)", p.Span.Start, p.Span.End)
	}
}
