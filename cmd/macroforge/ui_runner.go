package main

import (
	"context"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"macroforge/internal/expand"
	"macroforge/internal/source"
	"macroforge/internal/ui"
)

type expandOutcome struct {
	fileSet *source.FileSet
	results []*expand.FileResult
	err     error
}

func runExpandWithUI(ctx context.Context, title string, files []string, s *session, baseDir string) (*source.FileSet, []*expand.FileResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan ui.Event, 256)
	outcomeCh := make(chan expandOutcome, 1)
	send := func(ev ui.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		exp := s.expander(
			func(path string) { send(ui.Event{File: path, Status: ui.StatusWorking}) },
			func(res *expand.FileResult) { send(ui.Event{File: res.Path, Status: fileStatus(res)}) },
		)
		fileSet, results, err := exp.Paths(ctx, baseDir, files)
		outcomeCh <- expandOutcome{fileSet: fileSet, results: results, err: err}
		close(events)
	}()

	// FileSet хранит пути в slash-форме
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.ToSlash(filepath.Clean(f))
	}
	model := ui.NewProgressModel(title, names, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr), tea.WithContext(ctx))
	_, uiErr := program.Run()
	// ctrl+c в UI прерывает раскрытие
	cancel()
	outcome := <-outcomeCh
	if uiErr != nil && outcome.err == nil {
		return outcome.fileSet, outcome.results, uiErr
	}
	return outcome.fileSet, outcome.results, outcome.err
}

func fileStatus(res *expand.FileResult) ui.Status {
	switch {
	case res.HasErrors():
		return ui.StatusError
	case res.Cached:
		return ui.StatusCached
	case !res.Changed:
		return ui.StatusUnchanged
	default:
		return ui.StatusDone
	}
}
