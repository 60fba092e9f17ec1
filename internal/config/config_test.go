package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"macroforge/internal/manifest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.AllowNativeMacros || cfg.KeepDecorators || len(cfg.Packages) != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	want := Limits{MaxExecutionTimeMS: 5000, MaxMemoryBytes: 104857600, MaxOutputSize: 10485760, MaxDiagnostics: 100}
	if cfg.Limits != want {
		t.Fatalf("expected %+v, got %+v", want, cfg.Limits)
	}
}

func TestLoadFull(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	writeFile(t, path, `
packages = ["@acme/macros", "./local-macros"]
allow_native_macros = true
keep_decorators = true

[runtime]
"@acme/macros" = "native"

[[constraints]]
package = "@acme/macros"
version = "^1.0"

[limits]
max_diagnostics = 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Packages) != 2 || !cfg.AllowNativeMacros || !cfg.KeepDecorators {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Runtime["@acme/macros"] != "native" {
		t.Fatalf("runtime override lost: %+v", cfg.Runtime)
	}
	if cfg.Limits.MaxDiagnostics != 10 || cfg.Limits.MaxExecutionTimeMS != DefaultMaxExecutionTimeMS {
		t.Fatalf("partial limits should keep defaults: %+v", cfg.Limits)
	}
	if cfg.Root != dir || cfg.Path != path {
		t.Fatalf("unexpected root/path: %q %q", cfg.Root, cfg.Path)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "packages = ["},
		{"unknown key", "colour = true"},
		{"bad runtime", "[runtime]\nx = \"jvm\""},
		{"bad constraint", "[[constraints]]\npackage = \"x\"\nversion = \"not a range\""},
		{"negative limit", "[limits]\nmax_diagnostics = -1"},
		{"duplicate package", `packages = ["a", "a"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			writeFile(t, path, tt.content)
			if _, err := Load(path); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), "keep_decorators = true\n")
	nested := filepath.Join(root, "src", "models")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfg, err := Discover(nested)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if !cfg.KeepDecorators || cfg.Root != root {
		t.Fatalf("expected config from %s, got %+v", root, cfg)
	}
}

func TestDiscoverStopsAtPackageBoundary(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), "keep_decorators = true\n")
	pkg := filepath.Join(root, "packages", "app")
	writeFile(t, filepath.Join(pkg, PackageBoundary), "{}")
	src := filepath.Join(pkg, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cfg, err := Discover(src)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if cfg.KeepDecorators || cfg.Path != "" {
		t.Fatalf("config above the package boundary must not apply: %+v", cfg)
	}
	if cfg.Root != pkg {
		t.Fatalf("expected root %s, got %s", pkg, cfg.Root)
	}
}

func TestCheckPackage(t *testing.T) {
	m := manifest.Manifest{ABIVersion: 1, Name: "@acme/macros", Version: "1.4.0", Runtime: []string{"wasm", "native"}}

	cfg := Default()
	rt, err := cfg.CheckPackage(m)
	if err != nil || rt != manifest.RuntimeWasm {
		t.Fatalf("expected wasm by default, got %q %v", rt, err)
	}

	cfg.Runtime["@acme/macros"] = manifest.RuntimeNative
	if rt, _ := cfg.CheckPackage(m); rt != manifest.RuntimeNative {
		t.Fatalf("override ignored: %q", rt)
	}

	cfg.Constraints = []Constraint{{Package: "@acme/macros", Version: ">=2.0"}}
	if _, err := cfg.CheckPackage(m); !errors.Is(err, ErrPackageRejected) {
		t.Fatalf("expected version rejection, got %v", err)
	}

	cfg.Constraints = []Constraint{{Package: "@acme/macros", Version: "^1.2"}}
	if _, err := cfg.CheckPackage(m); err != nil {
		t.Fatalf("constraint should pass: %v", err)
	}

	wasmOnly := manifest.Manifest{ABIVersion: 1, Name: "w", Runtime: []string{"wasm"}}
	cfg.Runtime["w"] = manifest.RuntimeNative
	if _, err := cfg.CheckPackage(wasmOnly); !errors.Is(err, ErrPackageRejected) {
		t.Fatalf("expected unsupported runtime rejection, got %v", err)
	}
}

func TestResolvePackageDir(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Root = root
	nm := filepath.Join(root, "node_modules", "@acme", "macros")
	local := filepath.Join(root, "tools", "macros")
	for _, d := range []string{nm, local} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if got, err := cfg.ResolvePackageDir("@acme/macros"); err != nil || got != nm {
		t.Fatalf("node_modules lookup: %q %v", got, err)
	}
	if got, err := cfg.ResolvePackageDir("./tools/macros"); err != nil || got != local {
		t.Fatalf("relative lookup: %q %v", got, err)
	}
	if _, err := cfg.ResolvePackageDir("missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestFingerprintChangesWithSettings(t *testing.T) {
	a := Default()
	b := Default()
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("equal configs must share a fingerprint")
	}
	b.KeepDecorators = true
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatalf("keep_decorators must change the fingerprint")
	}
}
