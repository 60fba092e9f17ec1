package expand

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"macroforge/internal/diag"
	"macroforge/internal/source"
)

// sourceExts are the file kinds expanded from a directory.
var sourceExts = []string{".ts", ".mts", ".cts"}

// IsSource reports whether path is a TypeScript source file the expander
// handles. Declaration files are skipped.
func IsSource(path string) bool {
	if strings.HasSuffix(path, ".d.ts") {
		return false
	}
	for _, ext := range sourceExts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// ListFiles returns the sorted source files under dir, skipping
// node_modules, hidden directories and paths matched by dir/.gitignore.
func ListFiles(dir string) ([]string, error) {
	gi, err := loadGitignore(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		if gi != nil {
			if rel, relErr := filepath.Rel(dir, path); relErr == nil && gi.MatchesPath(filepath.ToSlash(rel)) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if d.IsDir() {
			name := d.Name()
			if name == "node_modules" || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsSource(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Сортируем для детерминированного порядка
	sort.Strings(files)
	return files, nil
}

// loadGitignore returns nil when dir has no .gitignore.
func loadGitignore(dir string) (*ignore.GitIgnore, error) {
	path := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return gi, nil
}

// Paths loads paths into a new FileSet and expands them concurrently.
// Files that fail to load come back as results carrying the I/O error.
func (e *Expander) Paths(ctx context.Context, baseDir string, paths []string) (*source.FileSet, []*FileResult, error) {
	fileSet := source.NewFileSetWithBase(baseDir)
	results := make([]*FileResult, len(paths))

	var (
		files []*source.File
		slots []int
	)
	for i, path := range paths {
		id, err := fileSet.Load(path)
		if err != nil {
			results[i] = &FileResult{
				Path: path,
				Err:  err,
				Diagnostics: []diag.Diagnostic{
					diag.NewGlobal(diag.SevError, diag.HostIO, "failed to load file: "+err.Error()),
				},
			}
			continue
		}
		files = append(files, fileSet.Get(id))
		slots = append(slots, i)
	}

	expanded, err := e.Files(ctx, files)
	for j, res := range expanded {
		results[slots[j]] = res
	}
	return fileSet, results, err
}
