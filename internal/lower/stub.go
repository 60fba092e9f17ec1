//go:build !cgo

package lower

import (
	"context"

	"macroforge/internal/source"
)

// Available reports whether lowering is compiled in.
// Returns false when CGO is disabled.
func Available() bool { return false }

// Lower is a stub for non-CGO builds.
func Lower(ctx context.Context, file source.FileID, src []byte) (*Result, error) {
	return nil, ErrNoCGO
}
