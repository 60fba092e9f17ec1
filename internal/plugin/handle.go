// Package plugin is the native macro package boundary. A package built with
// -buildmode=plugin exports one entry point that receives a *Handle,
// confirms the ABI version it was built against and registers its macros
// through the handle.
package plugin

import (
	"errors"
	"fmt"

	"macroforge/internal/ir"
	"macroforge/internal/registry"
)

var (
	// ErrNullHandle is returned for operations on a nil *Handle.
	ErrNullHandle = errors.New("plugin: null registry handle")
	// ErrUnconfirmed is returned when a package registers before Confirm.
	ErrUnconfirmed = errors.New("plugin: ABI version not confirmed")
	// ErrNativeDisabled is returned by Load unless native macros are allowed.
	ErrNativeDisabled = errors.New("plugin: native macros are disabled (set allow_native_macros)")
	// ErrEntryFaulted is returned when the entry point panics.
	ErrEntryFaulted = errors.New("plugin: entry point faulted")
	// ErrBadSymbol is returned when the entry symbol has the wrong type.
	ErrBadSymbol = errors.New("plugin: entry symbol has the wrong type")
)

// EntryFunc is the signature of the exported entry point.
type EntryFunc func(h *Handle) error

// Handle is the opaque registry handle a native package sees.
type Handle struct {
	reg         *registry.Registry
	pkg         string
	charOffsets bool
	confirmed   bool
	registered  []registry.Key
}

// NewHandle creates a handle registering into reg on behalf of pkg.
// With charOffsets the patch offsets of every registered macro are
// converted from characters to bytes.
func NewHandle(reg *registry.Registry, pkg string, charOffsets bool) *Handle {
	return &Handle{reg: reg, pkg: pkg, charOffsets: charOffsets}
}

// Confirm declares the ABI version the package was built against. Nothing
// else on the handle works until it succeeds.
func (h *Handle) Confirm(abi int) error {
	if h == nil || h.reg == nil {
		return ErrNullHandle
	}
	if abi != ir.ABIVersion {
		return &registry.AbiError{Package: h.pkg, Expected: ir.ABIVersion, Got: abi}
	}
	h.confirmed = true
	return nil
}

// Package returns the name the handle registers under.
func (h *Handle) Package() string {
	if h == nil {
		return ""
	}
	return h.pkg
}

// Register adds impl under module, or under the package name when module
// is empty.
func (h *Handle) Register(module string, impl registry.Macro) error {
	if h == nil || h.reg == nil {
		return ErrNullHandle
	}
	if !h.confirmed {
		return ErrUnconfirmed
	}
	if impl == nil {
		return fmt.Errorf("plugin %s: nil macro", h.pkg)
	}
	m := snapshot(impl, h.charOffsets)
	if m.abi != ir.ABIVersion {
		return &registry.AbiError{Package: h.pkg, Expected: ir.ABIVersion, Got: m.abi}
	}
	if module == "" {
		module = h.pkg
	}
	if err := h.reg.Register(module, m.name, m); err != nil {
		return err
	}
	h.registered = append(h.registered, registry.Key{Module: module, Name: m.name})
	return nil
}

// Registered lists what the package registered so far.
func (h *Handle) Registered() []registry.Key {
	if h == nil {
		return nil
	}
	return append([]registry.Key(nil), h.registered...)
}

// Invoke runs entry against h inside a recover boundary. The package must
// have confirmed its ABI by the time entry returns.
func Invoke(entry EntryFunc, h *Handle) (err error) {
	if h == nil || h.reg == nil {
		return ErrNullHandle
	}
	if entry == nil {
		return ErrBadSymbol
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrEntryFaulted, h.pkg, r)
		}
	}()
	if err := entry(h); err != nil {
		return fmt.Errorf("plugin %s: %w", h.pkg, err)
	}
	if !h.confirmed {
		return fmt.Errorf("plugin %s: %w", h.pkg, ErrUnconfirmed)
	}
	return nil
}
