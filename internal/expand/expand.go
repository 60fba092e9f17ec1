// Package expand drives macro expansion of whole files: lowering, dispatch
// of every invocation, decorator stripping and patch application.
package expand

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"macroforge/internal/cache"
	"macroforge/internal/diag"
	"macroforge/internal/dispatch"
	"macroforge/internal/ir"
	"macroforge/internal/lower"
	"macroforge/internal/observ"
	"macroforge/internal/patch"
	"macroforge/internal/registry"
	"macroforge/internal/source"
	"macroforge/internal/trace"
)

// LowerFunc turns a file into declarations and macro uses.
type LowerFunc func(ctx context.Context, file source.FileID, src []byte) (*lower.Result, error)

// Options configure an Expander.
type Options struct {
	KeepDecorators bool
	MaxDiagnostics int
	Jobs           int
	Timer          *observ.Timer
	Cache          *cache.Cache
	// CacheKey is mixed into every cache key, normally the config fingerprint.
	CacheKey string
	// OnStart and OnFile are called from worker goroutines when a file is
	// picked up and once it is finished.
	OnStart func(path string)
	OnFile  func(*FileResult)
}

// Expander is safe for concurrent use; each file is expanded by one goroutine.
type Expander struct {
	disp     *dispatch.Dispatcher
	opts     Options
	lower    LowerFunc
	macroSet string
}

// New creates an expander dispatching through disp.
func New(disp *dispatch.Dispatcher, opts Options) *Expander {
	return &Expander{
		disp:     disp,
		opts:     opts,
		lower:    lower.Lower,
		macroSet: macroSet(disp.Registry()),
	}
}

// WithLowerer replaces the tree-sitter lowering.
func (e *Expander) WithLowerer(fn LowerFunc) *Expander {
	e.lower = fn
	return e
}

// FileResult is the outcome of expanding one file. When Err is set Output
// is empty and the file must be left untouched.
type FileResult struct {
	Path        string
	File        source.FileID
	Output      patch.Output
	Changed     bool
	Invocations int
	Cached      bool
	Diagnostics []diag.Diagnostic
	Debug       []string
	Err         error
}

// HasErrors reports a failed file or any error diagnostic.
func (r *FileResult) HasErrors() bool {
	if r.Err != nil {
		return true
	}
	for _, d := range r.Diagnostics {
		if d.Severity >= diag.SevError {
			return true
		}
	}
	return false
}

// File expands one source file.
func (e *Expander) File(ctx context.Context, f *source.File) *FileResult {
	if e.opts.OnStart != nil {
		e.opts.OnStart(f.Path)
	}
	tracer := trace.FromContext(ctx)
	name := "file:" + f.Path
	span := trace.Begin(tracer, trace.ScopeFile, name, trace.CurrentSpan(ctx).SpanID)
	ctx = trace.WithSpan(ctx, span)

	res := e.file(ctx, f)

	detail := "ok"
	switch {
	case res.Err != nil:
		detail = "failed"
		trace.Fail(tracer, trace.ScopeFile, name, span.ID(), res.Err.Error())
	case res.Cached:
		detail = "cached"
	}
	span.WithExtra("invocations", strconv.Itoa(res.Invocations)).
		WithExtra("diagnostics", strconv.Itoa(len(res.Diagnostics))).
		End(detail)

	if e.opts.OnFile != nil {
		e.opts.OnFile(res)
	}
	return res
}

func (e *Expander) file(ctx context.Context, f *source.File) *FileResult {
	res := &FileResult{Path: f.Path, File: f.ID}

	var key cache.Digest
	if e.opts.Cache != nil {
		key = cache.Key(f.Content, e.opts.CacheKey, e.macroSet)
		entry, ok, err := e.opts.Cache.Get(key)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics,
				diag.NewGlobal(diag.SevWarning, diag.HostIO, "cache read failed: "+err.Error()))
		} else if ok {
			res.Cached = true
			res.Output = patch.Output{Runtime: entry.Runtime, Types: entry.Types, HasTypes: entry.HasTypes}
			res.Changed = entry.Changed
			res.Diagnostics = cache.ToDiagnostics(entry.Diagnostics, f.ID)
			return res
		}
	}

	done := e.opts.Timer.Begin("lower")
	low, err := e.lower(ctx, f.ID, f.Content)
	done("")
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", f.Path, err)
		return res
	}

	col := patch.NewCollector(e.opts.MaxDiagnostics)
	col.Bag().AddAll(low.Diagnostics)

	done = e.opts.Timer.Begin("dispatch")
	for _, inv := range low.Invocations(f.Path, f.Content) {
		if err := ctx.Err(); err != nil {
			done("")
			res.Err = err
			return res
		}
		info, ok := e.applies(inv.Context, col.Bag())
		if !ok {
			continue
		}
		col.Add(e.disp.Dispatch(ctx, inv.Context))
		if !e.opts.KeepDecorators {
			col.AddRuntime(ir.Delete(inv.Strip))
			for _, sp := range memberStrips(inv.Context.Target, info.Members) {
				col.AddRuntime(ir.Delete(sp))
			}
		}
		res.Invocations++
	}
	done("")

	done = e.opts.Timer.Begin("apply")
	out, err := patch.ApplyResult(string(f.Content), col)
	done("")
	res.Diagnostics = append(res.Diagnostics, col.Diagnostics()...)
	if over, ok := col.Bag().Overflow(); ok {
		res.Diagnostics = append(res.Diagnostics, over)
	}
	res.Debug = col.Debug()
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", f.Path, err)
		res.Diagnostics = append(res.Diagnostics, patchDiagnostic(f.ID, err))
		return res
	}
	res.Output = out
	res.Changed = out.Runtime != string(f.Content) || out.HasTypes

	if e.opts.Cache != nil {
		entry := &cache.Entry{
			Runtime:     out.Runtime,
			Types:       out.Types,
			HasTypes:    out.HasTypes,
			Changed:     res.Changed,
			Diagnostics: cache.FromDiagnostics(res.Diagnostics),
		}
		if err := e.opts.Cache.Put(key, entry); err != nil {
			res.Diagnostics = append(res.Diagnostics,
				diag.NewGlobal(diag.SevWarning, diag.HostIO, "cache write failed: "+err.Error()))
		}
	}
	return res
}

// applies decides whether an invocation is dispatched. Attribute uses that
// no registered macro answers are ordinary decorators and stay in place.
func (e *Expander) applies(mc *ir.MacroContext, bag *diag.Bag) (dispatch.Info, bool) {
	impl, err := e.disp.Registry().LookupWithFallback(mc.ModulePath, mc.MacroName)
	switch {
	case err == nil:
		info, fault, faulted := dispatch.Inspect(impl, mc)
		if faulted {
			bag.AddAll(fault.Diagnostics)
			return info, false
		}
		if info.Kind != mc.MacroKind {
			bag.Add(diag.NewError(diag.MacroKindMismatch, mc.ErrorSpan(),
				fmt.Sprintf("%s is a %s macro, used as %s", mc.QualifiedName(), info.Kind, mc.MacroKind)))
			return info, false
		}
		return info, true
	case mc.MacroKind == ir.MacroAttribute && errors.Is(err, registry.ErrMacroNotFound):
		return dispatch.Info{}, false
	}
	// not found derives and ambiguous names are reported by the dispatcher
	return dispatch.Info{}, true
}

// memberStrips returns the decorator syntax on target members named by
// attrs. JSDoc tags carry no strip range and stay.
func memberStrips(target ir.Target, attrs []string) []source.Span {
	if len(attrs) == 0 {
		return nil
	}
	var out []source.Span
	add := func(decs []ir.Decorator) {
		for _, d := range decs {
			if d.Strip.Len() > 0 && slices.Contains(attrs, d.Name) {
				out = append(out, d.Strip)
			}
		}
	}
	switch t := target.(type) {
	case *ir.Class:
		for _, f := range t.Fields {
			add(f.Decorators)
		}
		for _, m := range t.Methods {
			add(m.Decorators)
		}
	case *ir.Interface:
		for _, f := range t.Fields {
			add(f.Decorators)
		}
	case *ir.TypeAlias:
		for _, f := range t.Body.Fields {
			add(f.Decorators)
		}
	}
	return out
}

func patchDiagnostic(file source.FileID, err error) diag.Diagnostic {
	var overlap *patch.OverlapError
	if errors.As(err, &overlap) {
		a, b := overlap.A.AffectedSpan(), overlap.B.AffectedSpan()
		a.File, b.File = file, file
		return diag.NewError(diag.PatchOverlapping, b, "macro patches overlap; file left unchanged").
			WithNote(a, "conflicts with this patch")
	}
	var rng *patch.RangeError
	if errors.As(err, &rng) {
		return diag.NewGlobal(diag.SevError, diag.PatchOutOfRange, rng.Error()+"; file left unchanged")
	}
	return diag.NewGlobal(diag.SevError, diag.UnknownCode, err.Error())
}

// macroSet fingerprints the registered macros, package versions and native
// library contents so cache entries are dropped when any of them changes.
func macroSet(reg *registry.Registry) string {
	var sb strings.Builder
	for _, m := range reg.AllMacros() {
		fmt.Fprintf(&sb, "%s::%s:%s;", m.Module, m.Name, m.Kind)
	}
	for _, pkg := range reg.Manifests() {
		m, ok := reg.Manifest(pkg)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "%s@%s", pkg, m.Version)
		if lib := m.LibraryPath(); lib != "" {
			fmt.Fprintf(&sb, "#%s", fileDigest(lib))
		}
		sb.WriteByte(';')
	}
	return sb.String()
}

// fileDigest hashes a file's content; unreadable files hash to "missing".
func fileDigest(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return "missing"
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "missing"
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Files expands files concurrently. Results keep the input order; the
// error is non-nil only when ctx is cancelled.
func (e *Expander) Files(ctx context.Context, files []*source.File) ([]*FileResult, error) {
	results := make([]*FileResult, len(files))
	if len(files) == 0 {
		return results, nil
	}

	jobs := e.opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(files)))

	for i, f := range files {
		g.Go(func(i int, f *source.File) func() error {
			return func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				// индекс i уникален для горутины, мьютекс не нужен
				results[i] = e.File(gctx, f)
				return nil
			}
		}(i, f))
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
