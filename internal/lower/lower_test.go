package lower

import (
	"testing"

	"macroforge/internal/diag"
	"macroforge/internal/ir"
	"macroforge/internal/source"
)

func TestScanTags(t *testing.T) {
	tests := []struct {
		text  string
		names []string
		args  []string
	}{
		{"@derive(Debug)", []string{"derive"}, []string{"Debug"}},
		{"/** @derive(A, B) @serde */", []string{"derive", "serde"}, []string{"A, B", ""}},
		{"mail me at user@example.com", nil, nil},
		{"@Component({ selector: 'a)' })", []string{"Component"}, []string{"{ selector: 'a)' }"}},
		{"@ns.dec()", []string{"ns.dec"}, []string{""}},
		{"/**\n * @derive(Debug)\n */", []string{"derive"}, []string{"Debug"}},
	}
	for _, tt := range tests {
		tags, errs := scanTags(tt.text)
		if len(errs) != 0 {
			t.Fatalf("%q: unexpected errors %+v", tt.text, errs)
		}
		if len(tags) != len(tt.names) {
			t.Fatalf("%q: expected %d tags, got %+v", tt.text, len(tt.names), tags)
		}
		for i, tg := range tags {
			if tg.name != tt.names[i] || tg.args != tt.args[i] {
				t.Fatalf("%q: tag %d = %q(%q), want %q(%q)", tt.text, i, tg.name, tg.args, tt.names[i], tt.args[i])
			}
			if tt.text[tg.start] != '@' {
				t.Fatalf("%q: tag start %d is not '@'", tt.text, tg.start)
			}
		}
	}
}

func TestScanTagsUnclosed(t *testing.T) {
	_, errs := scanTags("@derive(Debug")
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %+v", errs)
	}
}

func TestSplitArgs(t *testing.T) {
	args := " Debug,\n *  Clone , fn(a, b), "
	got := splitArgs(args)
	want := []string{"Debug", "Clone", "fn(a, b)"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %+v", want, got)
	}
	for i, p := range got {
		if p.text != want[i] {
			t.Fatalf("piece %d = %q, want %q", i, p.text, want[i])
		}
		if args[p.off:p.off+len(p.text)] != p.text {
			t.Fatalf("piece %d offset %d does not point at %q", i, p.off, p.text)
		}
	}
}

func TestDocAnnotationsWholeComment(t *testing.T) {
	src := "/** @derive(Debug, Clone) */\nclass A {}"
	l := newLowerer(1, []byte(src))
	anns := l.docAnnotations(0, len("/** @derive(Debug, Clone) */"))
	if len(anns) != 1 {
		t.Fatalf("expected one annotation, got %d", len(anns))
	}
	uses := l.uses(anns)
	if len(uses) != 2 {
		t.Fatalf("expected two derive uses, got %d", len(uses))
	}
	for i, name := range []string{"Debug", "Clone"} {
		u := uses[i]
		if u.Kind != ir.MacroDerive || u.Name != name || u.Module != ir.DynamicModule {
			t.Fatalf("use %d = %+v", i, u)
		}
		if got := src[u.NameSpan.Start:u.NameSpan.End]; got != name {
			t.Fatalf("name span of %s covers %q", name, got)
		}
		if got := src[u.Strip.Start:u.Strip.End]; got != "/** @derive(Debug, Clone) */\n" {
			t.Fatalf("strip covers %q", got)
		}
	}
	if uses[0].Strip != uses[1].Strip {
		t.Fatalf("derives under one annotation must share the strip range")
	}
}

func TestDocAnnotationsKeepsProse(t *testing.T) {
	src := "/** User record. @derive(Debug) */\nclass A {}"
	l := newLowerer(1, []byte(src))
	end := len("/** User record. @derive(Debug) */")
	uses := l.uses(l.docAnnotations(0, end))
	if len(uses) != 1 {
		t.Fatalf("expected one use, got %d", len(uses))
	}
	if got := src[uses[0].Strip.Start:uses[0].Strip.End]; got != "@derive(Debug) " {
		t.Fatalf("strip covers %q", got)
	}
}

func TestDocAnnotationsIgnoresPlainComments(t *testing.T) {
	src := "/* @derive(Debug) */"
	l := newLowerer(1, []byte(src))
	if anns := l.docAnnotations(0, len(src)); anns != nil {
		t.Fatalf("block comments without '/**' carry no annotations, got %+v", anns)
	}
}

func TestBadDeriveEntry(t *testing.T) {
	src := "@derive(Debug, 1x)"
	l := newLowerer(1, []byte(src))
	uses := l.uses(l.annotations(src, 0))
	if len(uses) != 1 || uses[0].Name != "Debug" {
		t.Fatalf("expected only Debug, got %+v", uses)
	}
	if len(l.res.Diagnostics) != 1 || l.res.Diagnostics[0].Code != diag.LowerBadDecorator {
		t.Fatalf("expected bad decorator diagnostic, got %+v", l.res.Diagnostics)
	}
}

func TestParseImports(t *testing.T) {
	text := `/** import macro { Debug, Serialize as Ser } from "@acme/macros"; */`
	l := newLowerer(1, []byte(text))
	l.parseImports(text, 0)

	if name, module := l.resolve("Debug"); name != "Debug" || module != "@acme/macros" {
		t.Fatalf("Debug resolved to %s from %s", name, module)
	}
	if name, module := l.resolve("Ser"); name != "Serialize" || module != "@acme/macros" {
		t.Fatalf("Ser resolved to %s from %s", name, module)
	}
	if name, module := l.resolve("Other"); name != "Other" || module != ir.DynamicModule {
		t.Fatalf("unbound name resolved to %s from %s", name, module)
	}
}

func TestParseImportsEmpty(t *testing.T) {
	text := `/** import macro { } from "pkg"; */`
	l := newLowerer(1, []byte(text))
	l.parseImports(text, 0)
	if len(l.res.Diagnostics) != 1 || l.res.Diagnostics[0].Code != diag.LowerUnknownMacroUse {
		t.Fatalf("expected unknown macro use warning, got %+v", l.res.Diagnostics)
	}
}

func TestInvocations(t *testing.T) {
	src := "/** @derive(Debug) */\nclass A {}"
	span := source.NewSpan(1, 22, len(src))
	name := source.NewSpan(1, 12, 17)
	res := &Result{
		File: 1,
		Decls: []Decl{
			{Target: &ir.Class{Name: "A", Span: span}},
			{Target: &ir.Class{Name: "A", Span: span}, Uses: []Use{{
				Kind:      ir.MacroDerive,
				Name:      "Debug",
				Module:    ir.DynamicModule,
				Decorator: ir.Decorator{Name: "derive", Args: "Debug", Span: source.NewSpan(1, 4, 18)},
				NameSpan:  name,
				Strip:     source.NewSpan(1, 0, 22),
			}}},
		},
	}
	invs := res.Invocations("a.ts", []byte(src))
	if len(invs) != 1 {
		t.Fatalf("expected one invocation, got %d", len(invs))
	}
	mc := invs[0].Context
	if mc.ABIVersion != ir.ABIVersion || mc.FileName != "a.ts" || mc.TargetSource != "class A {}" {
		t.Fatalf("unexpected context %+v", mc)
	}
	if mc.MacroNameSpan == nil || *mc.MacroNameSpan != name {
		t.Fatalf("macro name span = %v", mc.MacroNameSpan)
	}
	if res.UseCount() != 1 {
		t.Fatalf("UseCount = %d", res.UseCount())
	}
}
