package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"macroforge/internal/diag"
	"macroforge/internal/diagfmt"
	"macroforge/internal/expand"
	"macroforge/internal/source"
)

type outputStats struct {
	changed int
	cached  int
	failed  int
}

// typesSeparator separates the runtime and type declaration texts in --print output.
const typesSeparator = "\n// ---- type declarations ----\n"

// writeOutputs writes every successfully expanded file. Failed files are
// never written, so their previous outputs stay as they were.
func (s *session) writeOutputs(results []*expand.FileResult) outputStats {
	var stats outputStats
	for _, res := range results {
		if res.Err != nil {
			stats.failed++
			continue
		}
		if res.Changed {
			stats.changed++
		}
		if res.Cached {
			stats.cached++
		}

		if s.opts.print {
			printOutput(os.Stdout, res)
		}
		runtimePath, typesPath := outputPaths(s.opts, res.Path)
		if runtimePath != "" {
			if err := writeFile(runtimePath, res.Output.Runtime); err != nil {
				res.Err = err
				res.Diagnostics = append(res.Diagnostics, diag.NewGlobal(diag.SevError, diag.HostIO, err.Error()))
				stats.failed++
				continue
			}
		}
		if typesPath != "" && res.Output.HasTypes {
			if err := writeFile(typesPath, res.Output.Types); err != nil {
				res.Err = err
				res.Diagnostics = append(res.Diagnostics, diag.NewGlobal(diag.SevError, diag.HostIO, err.Error()))
				stats.failed++
			}
		}
	}
	return stats
}

func printOutput(w io.Writer, res *expand.FileResult) {
	fmt.Fprint(w, res.Output.Runtime)
	if res.Output.HasTypes {
		fmt.Fprint(w, typesSeparator)
		fmt.Fprint(w, res.Output.Types)
	}
}

// outputPaths maps an input file to its runtime and type declaration
// outputs. Directory input is mirrored below --out (and --types-out).
func outputPaths(opts expandOptions, file string) (runtimePath, typesPath string) {
	if !opts.isDir {
		runtimePath = opts.out
		typesPath = opts.typesOut
		if typesPath == "" && runtimePath != "" {
			typesPath = declPath(runtimePath)
		}
		return runtimePath, typesPath
	}

	rel, err := filepath.Rel(opts.input, filepath.FromSlash(file))
	if err != nil {
		rel = filepath.Base(file)
	}
	runtimePath = filepath.Join(opts.out, rel)
	typesDir := opts.typesOut
	if typesDir == "" {
		typesDir = opts.out
	}
	return runtimePath, declPath(filepath.Join(typesDir, rel))
}

// declPath turns a.ts into a.d.ts, a.mts into a.d.mts and a.cts into a.d.cts.
func declPath(path string) string {
	ext := filepath.Ext(path)
	switch ext {
	case ".ts", ".mts", ".cts":
		return strings.TrimSuffix(path, ext) + ".d" + ext
	}
	return path + ".d.ts"
}

func writeFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	// #nosec G306 -- generated sources are as readable as their inputs
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// report prints host and per-file diagnostics to stderr and returns
// whether any of them is an error.
func (s *session) report(fileSet *source.FileSet, results []*expand.FileResult) bool {
	bag := diag.NewBag(s.cfg.Limits.MaxDiagnostics)
	bag.AddAll(s.host.Diagnostics)
	failed := s.host.HasErrors()
	for _, res := range results {
		if res.HasErrors() {
			failed = true
		}
		bag.AddAll(res.Diagnostics)
	}
	bag.Dedup()
	bag.Sort()
	if over, ok := bag.Overflow(); ok {
		bag = appendUnbounded(bag, over)
	}
	if bag.Len() == 0 && s.opts.format != "json" {
		return failed
	}

	pathMode := diagfmt.PathModeAuto
	if s.opts.fullPath {
		pathMode = diagfmt.PathModeAbsolute
	}
	switch s.opts.format {
	case "pretty":
		diagfmt.Pretty(os.Stderr, bag, fileSet, diagfmt.PrettyOpts{
			Color:     !color.NoColor,
			PathMode:  pathMode,
			ShowNotes: true,
			ShowHelp:  true,
		})
	case "json":
		if err := diagfmt.JSON(os.Stderr, bag, fileSet, diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         pathMode,
			IncludeNotes:     true,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode diagnostics: %v\n", err)
		}
	default:
		diagfmt.Plain(os.Stderr, bag, fileSet, pathMode)
	}
	return failed
}

// appendUnbounded copies bag into an unlimited bag and adds d at the end.
func appendUnbounded(bag *diag.Bag, d diag.Diagnostic) *diag.Bag {
	out := diag.NewBag(0)
	out.AddAll(bag.Items())
	out.Add(d)
	return out
}
