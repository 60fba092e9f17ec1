package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"macroforge/internal/diag"
	"macroforge/internal/ir"
	"macroforge/internal/registry"
	"macroforge/internal/source"
	"macroforge/internal/trace"
)

func newContext(module, name string) *ir.MacroContext {
	nameSpan := source.Span{File: 1, Start: 8, End: 13}
	return &ir.MacroContext{
		ABIVersion:    ir.ABIVersion,
		MacroKind:     ir.MacroDerive,
		MacroName:     name,
		ModulePath:    module,
		DecoratorSpan: source.Span{File: 1, Start: 0, End: 14},
		MacroNameSpan: &nameSpan,
		TargetSpan:    source.Span{File: 1, Start: 15, End: 25},
		FileName:      "user.ts",
		TargetSource:  "class A {}",
	}
}

func mustRegister(t *testing.T, reg *registry.Registry, module string, m registry.Macro) {
	t.Helper()
	if err := reg.Register(module, m.Name(), m); err != nil {
		t.Fatalf("register %s: %v", m.Name(), err)
	}
}

func singleError(t *testing.T, res ir.MacroResult) diag.Diagnostic {
	t.Helper()
	if !res.Empty() {
		t.Fatalf("expected no patches, got %+v", res)
	}
	if len(res.Diagnostics) != 1 {
		t.Fatalf("expected exactly one diagnostic, got %d", len(res.Diagnostics))
	}
	d := res.Diagnostics[0]
	if d.Severity != diag.SevError {
		t.Fatalf("expected error severity, got %s", d.Severity)
	}
	return d
}

func TestDispatchPassesResultThrough(t *testing.T) {
	reg := registry.New()
	want := ir.MacroResult{
		RuntimePatches: []ir.Patch{ir.InsertAt(1, 24, "toString() {}")},
		TypePatches:    []ir.Patch{ir.InsertAt(1, 24, "toString(): string;")},
		Debug:          "ok",
	}
	mustRegister(t, reg, "@acme/macros", registry.NewFunc(ir.MacroDerive, "Debug", func(mc *ir.MacroContext) ir.MacroResult {
		if mc.TargetSource != "class A {}" {
			t.Errorf("unexpected target source %q", mc.TargetSource)
		}
		return want
	}))

	res := New(reg).Dispatch(context.Background(), newContext("@acme/macros", "Debug"))
	if len(res.RuntimePatches) != 1 || res.RuntimePatches[0] != want.RuntimePatches[0] {
		t.Fatalf("runtime patches changed: %+v", res.RuntimePatches)
	}
	if len(res.TypePatches) != 1 || res.Debug != "ok" || len(res.Diagnostics) != 0 {
		t.Fatalf("result not passed through: %+v", res)
	}
}

func TestDispatchNotFound(t *testing.T) {
	res := New(registry.New()).Dispatch(context.Background(), newContext("@acme/macros", "Missing"))
	d := singleError(t, res)
	if d.Code != diag.MacroNotFound {
		t.Fatalf("expected MacroNotFound, got %s", d.Code)
	}
	if d.Message != "macro not found: @acme/macros::Missing" {
		t.Fatalf("unexpected message %q", d.Message)
	}
	if d.Primary == nil || d.Primary.Start != 8 || d.Primary.End != 13 {
		t.Fatalf("expected diagnostic at the macro name span, got %v", d.Primary)
	}
}

func TestDispatchNotFoundUsesDecoratorSpan(t *testing.T) {
	mc := newContext("m", "Missing")
	mc.MacroNameSpan = nil
	d := singleError(t, New(registry.New()).Dispatch(context.Background(), mc))
	if d.Primary == nil || *d.Primary != mc.DecoratorSpan {
		t.Fatalf("expected decorator span, got %v", d.Primary)
	}
}

func TestDispatchFallbackByName(t *testing.T) {
	reg := registry.New()
	mustRegister(t, reg, "@acme/macros", registry.NewFunc(ir.MacroDerive, "Debug", func(*ir.MacroContext) ir.MacroResult {
		return ir.MacroResult{Debug: "found"}
	}))
	res := New(reg).Dispatch(context.Background(), newContext(ir.DynamicModule, "Debug"))
	if res.Debug != "found" {
		t.Fatalf("fallback lookup did not run the macro: %+v", res)
	}
}

func TestDispatchAmbiguous(t *testing.T) {
	reg := registry.New()
	mustRegister(t, reg, "b", registry.NewFunc(ir.MacroDerive, "Debug", nil))
	mustRegister(t, reg, "a", registry.NewFunc(ir.MacroDerive, "Debug", nil))
	d := singleError(t, New(reg).Dispatch(context.Background(), newContext(ir.DynamicModule, "Debug")))
	if d.Code != diag.MacroAmbiguous {
		t.Fatalf("expected MacroAmbiguous, got %s", d.Code)
	}
	if len(d.Notes) != 2 || !strings.HasSuffix(d.Notes[0].Msg, "a") || !strings.HasSuffix(d.Notes[1].Msg, "b") {
		t.Fatalf("expected sorted candidate notes, got %+v", d.Notes)
	}
}

func TestDispatchAbiMismatchSkipsExecution(t *testing.T) {
	reg := registry.New()
	ran := false
	m := registry.NewFunc(ir.MacroDerive, "Old", func(*ir.MacroContext) ir.MacroResult {
		ran = true
		return ir.MacroResult{RuntimePatches: []ir.Patch{ir.InsertAt(1, 0, "x")}}
	})
	m.ABI = 0
	mustRegister(t, reg, "m", m)

	d := singleError(t, New(reg).Dispatch(context.Background(), newContext("m", "Old")))
	if ran {
		t.Fatalf("mismatched macro must not run")
	}
	if d.Code != diag.MacroAbiMismatch || d.Message != "ABI version mismatch: expected 1, got 0" {
		t.Fatalf("unexpected diagnostic: %s %q", d.Code, d.Message)
	}
	if d.Help != "rebuild the macro package against ABI version 1" {
		t.Fatalf("unexpected help %q", d.Help)
	}
}

type stringer struct{}

func (stringer) String() string { return "from stringer" }

func TestDispatchRecoversPanics(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "boom", "macro Bad panicked: boom"},
		{"error", errors.New("bad state"), "macro Bad panicked: bad state"},
		{"stringer", stringer{}, "macro Bad panicked: from stringer"},
		{"int", 42, "macro Bad panicked: 42"},
		{"empty string", "", "macro Bad panicked: unknown failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := registry.New()
			mustRegister(t, reg, "m", registry.NewFunc(ir.MacroDerive, "Bad", func(*ir.MacroContext) ir.MacroResult {
				panic(tt.value)
			}))
			d := singleError(t, New(reg).Dispatch(context.Background(), newContext("m", "Bad")))
			if d.Code != diag.MacroExecutionFaulted {
				t.Fatalf("expected MacroExecutionFaulted, got %s", d.Code)
			}
			if d.Message != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, d.Message)
			}
		})
	}
}

func TestDispatchRecoversNilPanic(t *testing.T) {
	reg := registry.New()
	mustRegister(t, reg, "m", registry.NewFunc(ir.MacroDerive, "Bad", func(*ir.MacroContext) ir.MacroResult {
		var m map[string]int
		m["x"] = 1 // nil map write
		return ir.MacroResult{}
	}))
	d := singleError(t, New(reg).Dispatch(context.Background(), newContext("m", "Bad")))
	if !strings.HasPrefix(d.Message, "macro Bad panicked: ") {
		t.Fatalf("unexpected message %q", d.Message)
	}
}

func TestDispatchMaxDiagnostics(t *testing.T) {
	reg := registry.New()
	mustRegister(t, reg, "m", registry.NewFunc(ir.MacroDerive, "Noisy", func(mc *ir.MacroContext) ir.MacroResult {
		var res ir.MacroResult
		for i := 0; i < 10; i++ {
			res.Diagnostics = append(res.Diagnostics, diag.NewWarning(diag.MacroReported, mc.TargetSpan, "w"))
		}
		return res
	}))
	res := New(reg, WithMaxDiagnostics(3)).Dispatch(context.Background(), newContext("m", "Noisy"))
	if len(res.Diagnostics) != 4 {
		t.Fatalf("expected 3 kept + 1 summary, got %d", len(res.Diagnostics))
	}
	if last := res.Diagnostics[3]; last.Code != diag.MacroTooManyDiags || !strings.Contains(last.Message, "7 omitted") {
		t.Fatalf("unexpected summary diagnostic: %+v", last)
	}
}

func TestDispatchConcurrent(t *testing.T) {
	reg := registry.New()
	mustRegister(t, reg, "m", registry.NewFunc(ir.MacroDerive, "Echo", func(mc *ir.MacroContext) ir.MacroResult {
		return ir.MacroResult{Debug: mc.FileName}
	}))
	d := New(reg)
	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mc := newContext("m", "Echo")
			mc.FileName = strings.Repeat("f", i%7+1)
			if got := d.Dispatch(context.Background(), mc).Debug; got != mc.FileName {
				errs <- got
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for got := range errs {
		t.Fatalf("cross-talk between dispatches: %q", got)
	}
}

func TestDispatchTracesFailures(t *testing.T) {
	ring := trace.NewRingTracer(64, trace.LevelError)
	ctx := trace.WithTracer(context.Background(), ring)
	New(registry.New()).Dispatch(ctx, newContext("m", "Missing"))

	events := ring.Snapshot()
	if len(events) != 1 || !events[0].Failure || events[0].Detail != "not found" {
		t.Fatalf("expected one failure event, got %+v", events)
	}
}

// brokenMacro panics from the descriptive method named by fail.
type brokenMacro struct {
	fail string
	ran  bool
}

func (m *brokenMacro) Name() string { return "Bad" }

func (m *brokenMacro) Kind() ir.MacroKind {
	if m.fail == "kind" {
		panic("kind boom")
	}
	return ir.MacroDerive
}

func (m *brokenMacro) ABIVersion() int {
	if m.fail == "abi" {
		panic("abi boom")
	}
	return ir.ABIVersion
}

func (m *brokenMacro) Run(*ir.MacroContext) ir.MacroResult {
	m.ran = true
	return ir.MacroResult{}
}

func TestDispatchRecoversABIVersionPanic(t *testing.T) {
	reg := registry.New()
	m := &brokenMacro{fail: "abi"}
	mustRegister(t, reg, "m", m)

	d := singleError(t, New(reg).Dispatch(context.Background(), newContext("m", "Bad")))
	if d.Code != diag.MacroExecutionFaulted {
		t.Fatalf("expected MacroExecutionFaulted, got %s", d.Code)
	}
	if d.Message != "macro Bad panicked reporting its ABI version: abi boom" {
		t.Fatalf("unexpected message %q", d.Message)
	}
	if m.ran {
		t.Fatalf("macro must not run after a faulted ABI check")
	}
}

func TestInspect(t *testing.T) {
	mc := newContext("m", "Bad")
	info, _, faulted := Inspect(&brokenMacro{}, mc)
	if faulted || info.Kind != ir.MacroDerive || info.ABI != ir.ABIVersion {
		t.Fatalf("unexpected info %+v faulted=%v", info, faulted)
	}

	members := registry.NewFunc(ir.MacroDerive, "Debug", nil)
	members.Members = []string{"debug"}
	if info, _, _ := Inspect(members, mc); len(info.Members) != 1 || info.Members[0] != "debug" {
		t.Fatalf("members = %v", info.Members)
	}

	_, fault, faulted := Inspect(&brokenMacro{fail: "kind"}, mc)
	if !faulted {
		t.Fatalf("expected a fault from Kind")
	}
	d := singleError(t, fault)
	if d.Code != diag.MacroExecutionFaulted || !strings.HasSuffix(d.Message, ": kind boom") {
		t.Fatalf("unexpected diagnostic %s %q", d.Code, d.Message)
	}
}
