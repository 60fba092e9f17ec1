// Package manifest describes what a macro package provides before any of its
// code is loaded.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"

	"macroforge/internal/ir"
)

// FileName is the manifest file looked up in a package directory.
const FileName = "macroforge.toml"

// DefaultEntrySymbol is the plugin entry point used when the manifest names none.
const DefaultEntrySymbol = "MacroforgeRegister"

// ErrInvalidManifest wraps every validation and decoding failure.
var ErrInvalidManifest = errors.New("invalid manifest")

const (
	RuntimeWasm   = "wasm"
	RuntimeNative = "native"

	OffsetsBytes = "bytes"
	OffsetsChars = "chars"
)

// MacroEntry declares one macro the package registers.
type MacroEntry struct {
	Kind string `toml:"kind"`
	Name string `toml:"name"`
}

// Native locates the dynamic library of a native package.
type Native struct {
	Path        string `toml:"path"`
	EntrySymbol string `toml:"entry_symbol"`
}

type Manifest struct {
	ABIVersion int          `toml:"abi_version"`
	Name       string       `toml:"name"`
	Version    string       `toml:"version"`
	Macros     []MacroEntry `toml:"macros"`
	Runtime    []string     `toml:"runtime"`
	Offsets    string       `toml:"offsets"`
	Native     *Native      `toml:"native"`

	// Dir is the directory the manifest was loaded from; not part of the file.
	Dir string `toml:"-"`
}

// Load reads and validates the manifest at path. A directory path is
// resolved to <dir>/macroforge.toml.
func Load(path string) (Manifest, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, FileName)
	}
	// #nosec G304 -- path is provided by the caller
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: %w", err)
	}
	m, err := Parse(data, path)
	if err != nil {
		return Manifest{}, err
	}
	m.Dir = filepath.Dir(path)
	return m, nil
}

// Parse decodes manifest TOML; path is used only in error messages.
func Parse(data []byte, path string) (Manifest, error) {
	var m Manifest
	meta, err := toml.Decode(string(data), &m)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: %s: failed to parse TOML: %v", ErrInvalidManifest, path, err)
	}
	if !meta.IsDefined("abi_version") {
		return Manifest{}, fmt.Errorf("%w: %s: missing abi_version", ErrInvalidManifest, path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Manifest{}, fmt.Errorf("%w: %s: unknown key %q", ErrInvalidManifest, path, undecoded[0].String())
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Validate checks field-level invariants. It does not compare the ABI
// version against the host; Registry.RegisterManifest does that.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidManifest)
	}
	if m.Version != "" {
		if _, err := semver.NewVersion(m.Version); err != nil {
			return fmt.Errorf("%w: version %q is not semver: %v", ErrInvalidManifest, m.Version, err)
		}
	}
	seen := make(map[string]bool, len(m.Macros))
	for i, entry := range m.Macros {
		kind, err := ir.ParseMacroKind(entry.Kind)
		if err != nil {
			return fmt.Errorf("%w: macros[%d]: %v", ErrInvalidManifest, i, err)
		}
		if strings.TrimSpace(entry.Name) == "" {
			return fmt.Errorf("%w: macros[%d]: missing name", ErrInvalidManifest, i)
		}
		key := kind.String() + "/" + entry.Name
		if seen[key] {
			return fmt.Errorf("%w: macro %s %q declared twice", ErrInvalidManifest, kind, entry.Name)
		}
		seen[key] = true
	}
	for _, rt := range m.Runtime {
		if rt != RuntimeWasm && rt != RuntimeNative {
			return fmt.Errorf("%w: unknown runtime %q (expected wasm|native)", ErrInvalidManifest, rt)
		}
	}
	switch m.Offsets {
	case "", OffsetsBytes, OffsetsChars:
	default:
		return fmt.Errorf("%w: offsets must be %q or %q, got %q", ErrInvalidManifest, OffsetsBytes, OffsetsChars, m.Offsets)
	}
	if m.Native != nil {
		if strings.TrimSpace(m.Native.Path) == "" {
			return fmt.Errorf("%w: [native] requires path", ErrInvalidManifest)
		}
		if m.Native.EntrySymbol == "" {
			m.Native.EntrySymbol = DefaultEntrySymbol
		}
	}
	if m.SupportsRuntime(RuntimeNative) && m.Native == nil {
		return fmt.Errorf("%w: runtime \"native\" requires a [native] section", ErrInvalidManifest)
	}
	return nil
}

// SupportsRuntime reports whether rt is listed.
func (m *Manifest) SupportsRuntime(rt string) bool {
	for _, r := range m.Runtime {
		if r == rt {
			return true
		}
	}
	return false
}

// SemVer returns the parsed version, or nil when the manifest has none.
func (m *Manifest) SemVer() *semver.Version {
	if m.Version == "" {
		return nil
	}
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return nil
	}
	return v
}

// UsesCharOffsets reports whether patches from this package carry
// character offsets that must be converted at the boundary.
func (m *Manifest) UsesCharOffsets() bool {
	return m.Offsets == OffsetsChars
}

// LibraryPath resolves the native library path relative to Dir.
func (m *Manifest) LibraryPath() string {
	if m.Native == nil {
		return ""
	}
	if filepath.IsAbs(m.Native.Path) || m.Dir == "" {
		return m.Native.Path
	}
	return filepath.Join(m.Dir, m.Native.Path)
}

// Declares reports whether the manifest lists a macro of kind with name.
func (m *Manifest) Declares(kind ir.MacroKind, name string) bool {
	for _, entry := range m.Macros {
		k, err := ir.ParseMacroKind(entry.Kind)
		if err == nil && k == kind && entry.Name == name {
			return true
		}
	}
	return false
}
