package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMacroNotFound         = errors.New("macro not found")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrAbiVersionMismatch    = errors.New("ABI version mismatch")
	ErrAmbiguousMacro        = errors.New("ambiguous macro")
)

// NotFoundError is returned by Lookup and LookupWithFallback.
type NotFoundError struct {
	Module string
	Name   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("macro not found: %s::%s", e.Module, e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrMacroNotFound }

// AmbiguousError is returned when the name-only fallback finds the macro
// under more than one module.
type AmbiguousError struct {
	Name    string
	Modules []string // sorted
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("macro %q is registered by several modules: %s", e.Name, strings.Join(e.Modules, ", "))
}

func (e *AmbiguousError) Is(target error) bool { return target == ErrAmbiguousMacro }

// AbiError reports a manifest whose protocol version the host does not speak.
type AbiError struct {
	Package  string
	Expected int
	Got      int
}

func (e *AbiError) Error() string {
	return fmt.Sprintf("package %s: ABI version mismatch: expected %d, got %d", e.Package, e.Expected, e.Got)
}

func (e *AbiError) Is(target error) bool { return target == ErrAbiVersionMismatch }
