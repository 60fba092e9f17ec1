// Package config loads the host configuration, macroforge.config.toml.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"

	"macroforge/internal/manifest"
)

// FileName is the configuration file discovered by walking up.
const FileName = "macroforge.config.toml"

// PackageBoundary marks the root of a JS package; discovery stops there.
const PackageBoundary = "package.json"

var (
	// ErrInvalidConfig wraps decoding and validation failures.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrPackageRejected is returned by CheckPackage.
	ErrPackageRejected = errors.New("package rejected by config")
)

const (
	DefaultMaxExecutionTimeMS = 5000
	DefaultMaxMemoryBytes     = 100 * 1024 * 1024
	DefaultMaxOutputSize      = 10 * 1024 * 1024
	DefaultMaxDiagnostics     = 100
)

// Limits are resource limits handed to a sandboxing runtime. The host
// itself enforces only MaxDiagnostics.
type Limits struct {
	MaxExecutionTimeMS int   `toml:"max_execution_time_ms"`
	MaxMemoryBytes     int64 `toml:"max_memory_bytes"`
	MaxOutputSize      int64 `toml:"max_output_size"`
	MaxDiagnostics     int   `toml:"max_diagnostics"`
}

// Constraint pins the accepted versions of one package.
type Constraint struct {
	Package string `toml:"package"`
	Version string `toml:"version"`
}

type Config struct {
	Packages          []string          `toml:"packages"`
	AllowNativeMacros bool              `toml:"allow_native_macros"`
	KeepDecorators    bool              `toml:"keep_decorators"`
	Runtime           map[string]string `toml:"runtime"`
	Constraints       []Constraint      `toml:"constraints"`
	Limits            Limits            `toml:"limits"`

	// Path is the file the config came from, empty for defaults.
	Path string `toml:"-"`
	// Root is the directory packages resolve against.
	Root string `toml:"-"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Runtime: map[string]string{},
		Limits: Limits{
			MaxExecutionTimeMS: DefaultMaxExecutionTimeMS,
			MaxMemoryBytes:     DefaultMaxMemoryBytes,
			MaxOutputSize:      DefaultMaxOutputSize,
			MaxDiagnostics:     DefaultMaxDiagnostics,
		},
	}
}

// Find walks up from startDir to the first macroforge.config.toml. It stops
// without a result at the first directory holding package.json; root is
// then that directory (or startDir when no boundary exists).
func Find(startDir string) (path, root string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	start := dir
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, dir, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		if _, err := os.Stat(filepath.Join(dir, PackageBoundary)); err == nil {
			return "", dir, false, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", start, false, nil
}

// Discover finds and loads the configuration for startDir, falling back
// to Default.
func Discover(startDir string) (*Config, error) {
	path, root, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		cfg := Default()
		cfg.Root = root
		return cfg, nil
	}
	return Load(path)
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: %w", err)
		}
		return nil, fmt.Errorf("%w: %s: failed to parse TOML: %v", ErrInvalidConfig, path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: %s: unknown key %q", ErrInvalidConfig, path, undecoded[0].String())
	}
	if cfg.Runtime == nil {
		cfg.Runtime = map[string]string{}
	}
	cfg.Path = path
	cfg.Root = filepath.Dir(path)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes config TOML from memory; root is where packages resolve.
func Parse(data []byte, root string) (*Config, error) {
	cfg := Default()
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse TOML: %v", ErrInvalidConfig, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}
	if cfg.Runtime == nil {
		cfg.Runtime = map[string]string{}
	}
	cfg.Root = root
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and references between sections.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Packages))
	for i, pkg := range c.Packages {
		if strings.TrimSpace(pkg) == "" {
			return fmt.Errorf("%w: packages[%d] is empty", ErrInvalidConfig, i)
		}
		if seen[pkg] {
			return fmt.Errorf("%w: package %q listed twice", ErrInvalidConfig, pkg)
		}
		seen[pkg] = true
	}
	for pkg, rt := range c.Runtime {
		if rt != manifest.RuntimeWasm && rt != manifest.RuntimeNative {
			return fmt.Errorf("%w: runtime for %q must be wasm or native, got %q", ErrInvalidConfig, pkg, rt)
		}
	}
	for i, cons := range c.Constraints {
		if strings.TrimSpace(cons.Package) == "" {
			return fmt.Errorf("%w: constraints[%d]: missing package", ErrInvalidConfig, i)
		}
		if _, err := semver.NewConstraint(cons.Version); err != nil {
			return fmt.Errorf("%w: constraints[%d]: version %q: %v", ErrInvalidConfig, i, cons.Version, err)
		}
	}
	l := c.Limits
	switch {
	case l.MaxExecutionTimeMS < 0:
		return fmt.Errorf("%w: limits.max_execution_time_ms must not be negative", ErrInvalidConfig)
	case l.MaxMemoryBytes < 0:
		return fmt.Errorf("%w: limits.max_memory_bytes must not be negative", ErrInvalidConfig)
	case l.MaxOutputSize < 0:
		return fmt.Errorf("%w: limits.max_output_size must not be negative", ErrInvalidConfig)
	case l.MaxDiagnostics < 0:
		return fmt.Errorf("%w: limits.max_diagnostics must not be negative", ErrInvalidConfig)
	}
	return nil
}

// RuntimeFor picks the runtime of a package: the override if any, else
// wasm when the manifest lists it, else the first listed runtime.
func (c *Config) RuntimeFor(m manifest.Manifest) string {
	if rt, ok := c.Runtime[m.Name]; ok {
		return rt
	}
	if m.SupportsRuntime(manifest.RuntimeWasm) || len(m.Runtime) == 0 {
		return manifest.RuntimeWasm
	}
	return m.Runtime[0]
}

// CheckPackage applies the runtime override and version constraints to a
// loaded manifest and returns the runtime to use.
func (c *Config) CheckPackage(m manifest.Manifest) (string, error) {
	rt := c.RuntimeFor(m)
	if len(m.Runtime) > 0 && !m.SupportsRuntime(rt) {
		return "", fmt.Errorf("%w: %s does not support runtime %q (supports %s)",
			ErrPackageRejected, m.Name, rt, strings.Join(m.Runtime, ", "))
	}
	for _, cons := range c.Constraints {
		if cons.Package != m.Name {
			continue
		}
		v := m.SemVer()
		if v == nil {
			return "", fmt.Errorf("%w: %s has no version but config requires %s", ErrPackageRejected, m.Name, cons.Version)
		}
		constraint, err := semver.NewConstraint(cons.Version)
		if err != nil {
			return "", fmt.Errorf("%w: constraint for %s: %v", ErrInvalidConfig, m.Name, err)
		}
		if !constraint.Check(v) {
			return "", fmt.Errorf("%w: %s %s does not satisfy %s", ErrPackageRejected, m.Name, v, cons.Version)
		}
	}
	return rt, nil
}

// ResolvePackageDir maps a package entry to its directory. Entries starting
// with "." or "/" are paths relative to Root; anything else is looked up
// in Root/node_modules.
func (c *Config) ResolvePackageDir(pkg string) (string, error) {
	var dir string
	switch {
	case filepath.IsAbs(pkg):
		dir = pkg
	case strings.HasPrefix(pkg, "."):
		dir = filepath.Join(c.Root, filepath.FromSlash(pkg))
	default:
		dir = filepath.Join(c.Root, "node_modules", filepath.FromSlash(pkg))
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("package %s: %w", pkg, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("package %s: %s is not a directory", pkg, dir)
	}
	return dir, nil
}

// Fingerprint digests every setting that can change expansion output.
func (c *Config) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "packages=%s\n", strings.Join(c.Packages, ","))
	fmt.Fprintf(h, "native=%t keep=%t\n", c.AllowNativeMacros, c.KeepDecorators)
	keys := make([]string, 0, len(c.Runtime))
	for k := range c.Runtime {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "runtime %s=%s\n", k, c.Runtime[k])
	}
	for _, cons := range c.Constraints {
		fmt.Fprintf(h, "constraint %s=%s\n", cons.Package, cons.Version)
	}
	fmt.Fprintf(h, "max_diagnostics=%d\n", c.Limits.MaxDiagnostics)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
