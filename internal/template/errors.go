package template

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTemplate is matched by every *Error.
var ErrTemplate = errors.New("template error")

// Pos is a position in template source. Line and Col are 1-based, Col in bytes.
type Pos struct {
	Offset int
	Line   int
	Col    int
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

// Error is a compile or execution error located in the template source.
type Error struct {
	Pos Pos
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("template:%s: %s", e.Pos, e.Msg)
}

func (e *Error) Is(target error) bool { return target == ErrTemplate }

func position(src string, off int) Pos {
	if off > len(src) {
		off = len(src)
	}
	before := src[:off]
	line := strings.Count(before, "\n") + 1
	col := off - strings.LastIndexByte(before, '\n')
	return Pos{Offset: off, Line: line, Col: col}
}

func errorf(src string, off int, format string, args ...any) *Error {
	return &Error{Pos: position(src, off), Msg: fmt.Sprintf(format, args...)}
}
