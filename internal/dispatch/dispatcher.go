package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"macroforge/internal/diag"
	"macroforge/internal/ir"
	"macroforge/internal/registry"
	"macroforge/internal/trace"
)

// Dispatcher is safe for concurrent use; it holds no mutable state of its own.
type Dispatcher struct {
	reg      *registry.Registry
	maxDiags int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxDiagnostics caps the diagnostics kept from one macro run. The
// excess is replaced by a single warning. n <= 0 disables the cap.
func WithMaxDiagnostics(n int) Option {
	return func(d *Dispatcher) { d.maxDiags = n }
}

// New creates a dispatcher over reg.
func New(reg *registry.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{reg: reg}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher resolves against.
func (d *Dispatcher) Registry() *registry.Registry { return d.reg }

// Dispatch resolves and runs the macro named by mc. ctx carries only the tracer.
func (d *Dispatcher) Dispatch(ctx context.Context, mc *ir.MacroContext) ir.MacroResult {
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeMacro, "macro:"+mc.MacroName, trace.CurrentSpan(ctx).SpanID)
	span.WithExtra("module", mc.ModulePath).WithExtra("kind", mc.MacroKind.String())

	res, outcome := d.dispatch(mc)
	if outcome != "ok" {
		trace.Fail(tracer, trace.ScopeMacro, "macro:"+mc.MacroName, span.ID(), outcome)
	}
	span.WithExtra("patches", strconv.Itoa(len(res.RuntimePatches)+len(res.TypePatches))).
		WithExtra("diagnostics", strconv.Itoa(len(res.Diagnostics))).
		End(outcome)
	return res
}

func (d *Dispatcher) dispatch(mc *ir.MacroContext) (ir.MacroResult, string) {
	impl, err := d.reg.LookupWithFallback(mc.ModulePath, mc.MacroName)
	if err != nil {
		return lookupFailure(mc, err), "not found"
	}

	got, fault, faulted := guard(mc, " reporting its ABI version", impl.ABIVersion)
	if faulted {
		return fault, "panicked"
	}
	if got != mc.ABIVersion {
		msg := fmt.Sprintf("ABI version mismatch: expected %d, got %d", mc.ABIVersion, got)
		help := fmt.Sprintf("rebuild the macro package against ABI version %d", mc.ABIVersion)
		return ir.ErrorResult(diag.MacroAbiMismatch, mc.ErrorSpan(), msg, help), "abi mismatch"
	}

	res, faulted := run(impl, mc)
	if faulted {
		return res, "panicked"
	}
	res.Diagnostics = d.truncate(mc, res.Diagnostics)
	return res, "ok"
}

func lookupFailure(mc *ir.MacroContext, err error) ir.MacroResult {
	msg := fmt.Sprintf("macro not found: %s::%s", mc.ModulePath, mc.MacroName)
	dg := diag.NewError(diag.MacroNotFound, mc.ErrorSpan(), msg)

	var amb *registry.AmbiguousError
	if errors.As(err, &amb) {
		dg.Code = diag.MacroAmbiguous
		for _, m := range amb.Modules {
			dg = dg.WithTextNote("candidate module: " + m)
		}
		dg = dg.WithHelp("import the macro from one module explicitly")
	}
	return ir.MacroResult{Diagnostics: []diag.Diagnostic{dg}}
}

// Info is what the host reads from an implementation besides running it.
type Info struct {
	Kind    ir.MacroKind
	ABI     int
	Members []string
}

// Inspect reads the descriptive methods of impl inside the fault boundary.
// A panic comes back as the single ExecutionFaulted result.
func Inspect(impl registry.Macro, mc *ir.MacroContext) (Info, ir.MacroResult, bool) {
	return guard(mc, " describing itself", func() Info {
		return Info{Kind: impl.Kind(), ABI: impl.ABIVersion(), Members: registry.MemberAttributes(impl)}
	})
}

func run(impl registry.Macro, mc *ir.MacroContext) (ir.MacroResult, bool) {
	res, fault, faulted := guard(mc, "", func() ir.MacroResult { return impl.Run(mc) })
	if faulted {
		return fault, true
	}
	return res, false
}

// guard is the fault boundary around every call into macro code.
func guard[T any](mc *ir.MacroContext, during string, fn func() T) (v T, fault ir.MacroResult, faulted bool) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("macro %s panicked%s: %s", mc.MacroName, during, panicMessage(r))
			fault = ir.ErrorResult(diag.MacroExecutionFaulted, mc.ErrorSpan(), msg, "")
			faulted = true
		}
	}()
	return fn(), ir.MacroResult{}, false
}

func panicMessage(r any) string {
	var msg string
	switch v := r.(type) {
	case *runtime.PanicNilError:
		msg = ""
	case string:
		msg = v
	case error:
		msg = v.Error()
	case fmt.Stringer:
		msg = v.String()
	default:
		msg = fmt.Sprint(v)
	}
	if msg == "" {
		return "unknown failure"
	}
	return msg
}

func (d *Dispatcher) truncate(mc *ir.MacroContext, ds []diag.Diagnostic) []diag.Diagnostic {
	if d.maxDiags <= 0 || len(ds) <= d.maxDiags {
		return ds
	}
	dropped := len(ds) - d.maxDiags
	out := append([]diag.Diagnostic(nil), ds[:d.maxDiags]...)
	return append(out, diag.NewWarning(diag.MacroTooManyDiags, mc.ErrorSpan(),
		fmt.Sprintf("macro %s reported too many diagnostics; %d omitted", mc.MacroName, dropped)))
}
