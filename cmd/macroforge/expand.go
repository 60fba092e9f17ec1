package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"macroforge/internal/cache"
	"macroforge/internal/config"
	"macroforge/internal/dispatch"
	"macroforge/internal/expand"
	"macroforge/internal/host"
	"macroforge/internal/observ"
	"macroforge/internal/source"
	"macroforge/internal/trace"
)

var expandCmd = &cobra.Command{
	Use:   "expand [flags] <file.ts|directory>",
	Short: "Expand macros in a TypeScript file or directory",
	Long: `Expand derive and attribute macros. A file is printed to stdout unless --out is
given; a directory is expanded concurrently and mirrored into --out.`,
	Args: cobra.ExactArgs(1),
	RunE: runExpand,
}

func init() {
	expandCmd.Flags().String("out", "", "output file, or output directory for directory input")
	expandCmd.Flags().String("types-out", "", "output path for the type declaration text")
	expandCmd.Flags().Bool("print", false, "print the expanded text to stdout")
	expandCmd.Flags().String("format", "plain", "diagnostic format (plain|pretty|json)")
	expandCmd.Flags().Bool("cache", false, "reuse expansion results from the on-disk cache")
	expandCmd.Flags().Bool("watch", false, "re-expand when sources change")
	expandCmd.Flags().Int("jobs", 0, "max parallel workers for directory input (0=auto)")
	expandCmd.Flags().String("ui", "auto", "progress UI for directory input (auto|on|off)")
	expandCmd.Flags().Bool("fullpath", false, "emit absolute file paths in diagnostics")
}

// expandOptions are the resolved flags of one expand invocation.
type expandOptions struct {
	input    string
	isDir    bool
	out      string
	typesOut string
	print    bool
	format   string
	useCache bool
	watch    bool
	jobs     int
	ui       uiMode
	fullPath bool

	maxDiagnostics int
	timings        bool
	quiet          bool
}

func readExpandOptions(cmd *cobra.Command, input string) (expandOptions, error) {
	opts := expandOptions{input: filepath.Clean(input)}
	var err error
	flags := cmd.Flags()
	if opts.out, err = flags.GetString("out"); err != nil {
		return opts, fmt.Errorf("failed to get out flag: %w", err)
	}
	if opts.typesOut, err = flags.GetString("types-out"); err != nil {
		return opts, fmt.Errorf("failed to get types-out flag: %w", err)
	}
	if opts.print, err = flags.GetBool("print"); err != nil {
		return opts, fmt.Errorf("failed to get print flag: %w", err)
	}
	if opts.format, err = flags.GetString("format"); err != nil {
		return opts, fmt.Errorf("failed to get format flag: %w", err)
	}
	if opts.useCache, err = flags.GetBool("cache"); err != nil {
		return opts, fmt.Errorf("failed to get cache flag: %w", err)
	}
	if opts.watch, err = flags.GetBool("watch"); err != nil {
		return opts, fmt.Errorf("failed to get watch flag: %w", err)
	}
	if opts.jobs, err = flags.GetInt("jobs"); err != nil {
		return opts, fmt.Errorf("failed to get jobs flag: %w", err)
	}
	if opts.fullPath, err = flags.GetBool("fullpath"); err != nil {
		return opts, fmt.Errorf("failed to get fullpath flag: %w", err)
	}
	uiFlag, err := flags.GetString("ui")
	if err != nil {
		return opts, fmt.Errorf("failed to get ui flag: %w", err)
	}
	if opts.ui, err = readUIMode(uiFlag); err != nil {
		return opts, err
	}

	root := cmd.Root().PersistentFlags()
	if opts.maxDiagnostics, err = root.GetInt("max-diagnostics"); err != nil {
		return opts, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	if opts.timings, err = root.GetBool("timings"); err != nil {
		return opts, fmt.Errorf("failed to get timings flag: %w", err)
	}
	if opts.quiet, err = root.GetBool("quiet"); err != nil {
		return opts, fmt.Errorf("failed to get quiet flag: %w", err)
	}

	opts.format = strings.ToLower(opts.format)
	switch opts.format {
	case "plain", "pretty", "json":
	default:
		return opts, fmt.Errorf("unsupported format %q (must be plain, pretty or json)", opts.format)
	}

	info, err := os.Stat(opts.input)
	if err != nil {
		return opts, fmt.Errorf("cannot access %s: %w", opts.input, err)
	}
	opts.isDir = info.IsDir()
	if opts.isDir && opts.out == "" {
		return opts, fmt.Errorf("directory input requires --out")
	}
	if opts.isDir && opts.print {
		return opts, fmt.Errorf("--print is only supported for a single file")
	}
	if opts.out != "" && filepath.Clean(opts.out) == opts.input {
		return opts, fmt.Errorf("--out must differ from the input")
	}
	if !opts.isDir && opts.out == "" {
		opts.print = true
	}
	return opts, nil
}

func runExpand(cmd *cobra.Command, args []string) error {
	opts, err := readExpandOptions(cmd, args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	s, err := newSession(opts)
	if err != nil {
		return err
	}

	failed, err := s.run(ctx, nil)
	if err != nil {
		return err
	}
	if opts.watch {
		return s.watch(ctx)
	}
	if failed {
		return exitError{code: 1}
	}
	return nil
}

// session holds everything that survives between runs in watch mode.
type session struct {
	opts  expandOptions
	cfg   *config.Config
	host  *host.Host
	disp  *dispatch.Dispatcher
	cache *cache.Cache
	timer *observ.Timer
}

func newSession(opts expandOptions) (*session, error) {
	startDir := opts.input
	if !opts.isDir {
		startDir = filepath.Dir(opts.input)
	}
	cfg, err := config.Discover(startDir)
	if err != nil {
		return nil, err
	}
	if opts.maxDiagnostics > 0 {
		cfg.Limits.MaxDiagnostics = opts.maxDiagnostics
	}

	h, err := host.New(cfg, host.Options{})
	if err != nil {
		return nil, err
	}

	s := &session{opts: opts, cfg: cfg, host: h, disp: h.Dispatcher()}
	if opts.useCache {
		if s.cache, err = cache.Open("macroforge"); err != nil {
			return nil, err
		}
	}
	if opts.timings {
		s.timer = observ.NewTimer()
	}
	return s, nil
}

func (s *session) expander(onStart func(string), onFile func(*expand.FileResult)) *expand.Expander {
	return expand.New(s.disp, expand.Options{
		KeepDecorators: s.cfg.KeepDecorators,
		MaxDiagnostics: s.cfg.Limits.MaxDiagnostics,
		Jobs:           s.opts.jobs,
		Timer:          s.timer,
		Cache:          s.cache,
		CacheKey:       s.cfg.Fingerprint(),
		OnStart:        onStart,
		OnFile:         onFile,
	})
}

// run expands paths, or the whole input when paths is nil, writes the
// outputs and reports diagnostics. failed is set when any error diagnostic
// was reported.
func (s *session) run(ctx context.Context, paths []string) (failed bool, err error) {
	tracer := trace.FromContext(ctx)
	// run id связывает события одного прогона
	runID := uuid.NewString()
	span := trace.Begin(tracer, trace.ScopeSession, "expand", trace.CurrentSpan(ctx).SpanID).WithExtra("run", runID)
	ctx = trace.WithSpan(ctx, span)
	defer func() { span.End(fmt.Sprintf("failed=%t", failed)) }()

	if paths == nil {
		if paths, err = s.inputFiles(); err != nil {
			return false, err
		}
	}
	baseDir := s.opts.input
	if !s.opts.isDir {
		baseDir = filepath.Dir(s.opts.input)
	}

	var (
		fileSet *source.FileSet
		results []*expand.FileResult
	)
	if s.opts.isDir && shouldUseTUI(s.opts.ui) && !s.opts.quiet && len(paths) > 1 {
		fileSet, results, err = runExpandWithUI(ctx, "expanding "+s.opts.input, paths, s, baseDir)
	} else {
		fileSet, results, err = s.expander(nil, nil).Paths(ctx, baseDir, paths)
	}
	if err != nil {
		return true, err
	}

	stats := s.writeOutputs(results)
	failed = s.report(fileSet, results) || stats.failed > 0
	if !s.opts.quiet && s.opts.isDir {
		fmt.Fprintf(os.Stderr, "expanded %d file(s): %d changed, %d cached, %d failed\n",
			len(results), stats.changed, stats.cached, stats.failed)
	}
	if s.timer != nil {
		fmt.Fprint(os.Stderr, s.timer.Summary())
	}
	return failed, nil
}

// inputFiles lists the sources to expand, leaving out anything under the
// output directory.
func (s *session) inputFiles() ([]string, error) {
	if !s.opts.isDir {
		return []string{s.opts.input}, nil
	}
	all, err := expand.ListFiles(s.opts.input)
	if err != nil {
		return nil, err
	}
	files := all[:0]
	for _, f := range all {
		if !within(f, s.opts.out) && (s.opts.typesOut == "" || !within(f, s.opts.typesOut)) {
			files = append(files, f)
		}
	}
	return files, nil
}

// within reports whether path lies inside dir.
func within(path, dir string) bool {
	absPath, err1 := filepath.Abs(path)
	absDir, err2 := filepath.Abs(dir)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
