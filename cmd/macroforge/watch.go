package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"macroforge/internal/expand"
)

// watchDebounce collects bursts of events (editors write in several steps).
const watchDebounce = 150 * time.Millisecond

// watch re-expands changed sources until ctx is cancelled.
func (s *session) watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()

	if err := s.addWatches(w); err != nil {
		return err
	}
	if !s.opts.quiet {
		fmt.Fprintf(os.Stderr, "watching %s for changes (ctrl+c to stop)\n", s.opts.input)
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(watchDebounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) && s.opts.isDir {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !s.skipDir(ev.Name) {
					if err := w.Add(ev.Name); err != nil {
						fmt.Fprintf(os.Stderr, "watch: %v\n", err)
					}
					continue
				}
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !s.watched(ev.Name) {
				continue
			}
			pending[filepath.Clean(ev.Name)] = struct{}{}
			timer.Reset(watchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)
			if _, err := s.run(ctx, paths); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
	}
}

// addWatches registers the input file's directory, or every directory of
// the input tree.
func (s *session) addWatches(w *fsnotify.Watcher) error {
	if !s.opts.isDir {
		return w.Add(filepath.Dir(s.opts.input))
	}
	return filepath.WalkDir(s.opts.input, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != s.opts.input && s.skipDir(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func (s *session) skipDir(path string) bool {
	name := filepath.Base(path)
	if name == "node_modules" || strings.HasPrefix(name, ".") {
		return true
	}
	return within(path, s.opts.out) || (s.opts.typesOut != "" && within(path, s.opts.typesOut))
}

// watched reports whether a change to path should trigger expansion.
func (s *session) watched(path string) bool {
	if !s.opts.isDir {
		return filepath.Clean(path) == s.opts.input
	}
	if !expand.IsSource(path) {
		return false
	}
	return !within(path, s.opts.out) && (s.opts.typesOut == "" || !within(path, s.opts.typesOut))
}
