//go:build cgo

package lower

import (
	"context"
	"strings"
	"testing"

	"macroforge/internal/diag"
	"macroforge/internal/ir"
)

func lowerString(t *testing.T, src string) *Result {
	t.Helper()
	res, err := Lower(context.Background(), 1, []byte(src))
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	return res
}

func TestLowerExportedClassWithDocDerive(t *testing.T) {
	src := `/** import macro { Debug } from "@acme/macros"; */

/** @derive(Debug) */
export class User {
  private id: number;
  readonly name?: string;
  static count = 0;
  greet(who: string): string { return who; }
}
`
	res := lowerString(t, src)
	if len(res.Decls) != 1 {
		t.Fatalf("expected one declaration, got %d", len(res.Decls))
	}
	d := res.Decls[0]
	cls, ok := ir.AsClass(d.Target)
	if !ok {
		t.Fatalf("expected class, got %T", d.Target)
	}
	if cls.Name != "User" {
		t.Fatalf("class name = %q", cls.Name)
	}
	if got := src[cls.Span.Start:cls.Span.End]; !strings.HasPrefix(got, "class User") {
		t.Fatalf("class span starts at %q", got[:10])
	}
	if src[cls.BodySpan.Start] != '{' || src[cls.BodySpan.End-1] != '}' {
		t.Fatalf("body span does not cover braces")
	}
	if len(cls.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %+v", cls.Fields)
	}
	if f := cls.Fields[0]; f.Name != "id" || f.Type != "number" || f.Visibility != ir.VisibilityPrivate {
		t.Fatalf("field 0 = %+v", f)
	}
	if f := cls.Fields[1]; f.Name != "name" || !f.Readonly || !f.Optional {
		t.Fatalf("field 1 = %+v", f)
	}
	if f := cls.Fields[2]; f.Name != "count" || !f.Static {
		t.Fatalf("field 2 = %+v", f)
	}
	if len(cls.Methods) != 1 {
		t.Fatalf("expected one method, got %+v", cls.Methods)
	}
	m := cls.Methods[0]
	if m.Name != "greet" || m.ReturnType != "string" || len(m.Params) != 1 || m.Params[0].Name != "who" {
		t.Fatalf("method = %+v", m)
	}

	if len(d.Uses) != 1 {
		t.Fatalf("expected one use, got %+v", d.Uses)
	}
	u := d.Uses[0]
	if u.Kind != ir.MacroDerive || u.Name != "Debug" || u.Module != "@acme/macros" {
		t.Fatalf("use = %+v", u)
	}
	if got := src[u.Strip.Start:u.Strip.End]; got != "/** @derive(Debug) */\n" {
		t.Fatalf("strip covers %q", got)
	}
}

func TestLowerDecoratorSyntax(t *testing.T) {
	src := "@derive(Debug, Clone)\nclass Point { x: number; y: number }\n"
	res := lowerString(t, src)
	if len(res.Decls) != 1 {
		t.Fatalf("expected one declaration, got %d", len(res.Decls))
	}
	d := res.Decls[0]
	if got := src[d.Target.TargetSpan().Start:d.Target.TargetSpan().End]; got != "class Point { x: number; y: number }" {
		t.Fatalf("target span covers %q", got)
	}
	if len(d.Uses) != 2 {
		t.Fatalf("expected two uses, got %+v", d.Uses)
	}
	for _, u := range d.Uses {
		if u.Module != ir.DynamicModule {
			t.Fatalf("unbound macro should use the dynamic module, got %q", u.Module)
		}
		if got := src[u.Decorator.Span.Start:u.Decorator.Span.End]; got != "@derive(Debug, Clone)" {
			t.Fatalf("decorator span covers %q", got)
		}
		if got := src[u.Strip.Start:u.Strip.End]; got != "@derive(Debug, Clone)\n" {
			t.Fatalf("strip covers %q", got)
		}
	}
	if decs := d.Target.TargetDecorators(); len(decs) != 1 || decs[0].Args != "Debug, Clone" {
		t.Fatalf("decorators = %+v", decs)
	}
}

func TestLowerMemberDecoratorStrip(t *testing.T) {
	src := "@derive(Debug)\nclass A {\n  @debug(skip) secret: string;\n  /** @debug(skip) */\n  token: string;\n}\n"
	res := lowerString(t, src)
	if len(res.Decls) != 1 {
		t.Fatalf("expected one declaration, got %d", len(res.Decls))
	}
	cls, ok := res.Decls[0].Target.(*ir.Class)
	if !ok || len(cls.Fields) != 2 {
		t.Fatalf("unexpected target %+v", res.Decls[0].Target)
	}
	decs := cls.Fields[0].Decorators
	if len(decs) != 1 || decs[0].Name != "debug" {
		t.Fatalf("secret decorators = %+v", decs)
	}
	if got := src[decs[0].Strip.Start:decs[0].Strip.End]; got != "@debug(skip) " {
		t.Fatalf("strip covers %q", got)
	}
	for _, d := range cls.Fields[1].Decorators {
		if d.Strip.Len() != 0 {
			t.Fatalf("JSDoc tag must not carry a strip range, got %+v", d)
		}
	}
}

func TestLowerAttributeUse(t *testing.T) {
	src := "/** @serde */\ninterface Config { port: number }\n"
	res := lowerString(t, src)
	if len(res.Decls) != 1 || len(res.Decls[0].Uses) != 1 {
		t.Fatalf("unexpected lowering %+v", res.Decls)
	}
	if u := res.Decls[0].Uses[0]; u.Kind != ir.MacroAttribute || u.Name != "serde" {
		t.Fatalf("use = %+v", u)
	}
}

func TestLowerDeclarationKinds(t *testing.T) {
	src := `interface Shape extends Base { area(): number; name?: string }
const enum Color { Red, Green = "g" }
type Result = Ok | Err | Pending;
type Pair = [string, number];
type Opts = { verbose: boolean };
abstract class Animal { abstract speak(): void; }
function make<T>(x: T, y?: number): T { return x; }
`
	res := lowerString(t, src)
	if len(res.Decls) != 7 {
		t.Fatalf("expected 7 declarations, got %d", len(res.Decls))
	}

	it, ok := ir.AsInterface(res.Decls[0].Target)
	if !ok || it.Name != "Shape" || len(it.Heritage) != 1 || len(it.Methods) != 1 || len(it.Fields) != 1 {
		t.Fatalf("interface = %+v", res.Decls[0].Target)
	}
	if !it.Fields[0].Optional {
		t.Fatalf("interface field should be optional")
	}

	en, ok := ir.AsEnum(res.Decls[1].Target)
	if !ok || !en.IsConst || len(en.Variants) != 2 {
		t.Fatalf("enum = %+v", res.Decls[1].Target)
	}
	if en.Variants[0].Name != "Red" || en.Variants[1].Name != "Green" || en.Variants[1].Value != `"g"` {
		t.Fatalf("variants = %+v", en.Variants)
	}

	union, ok := ir.AsTypeAlias(res.Decls[2].Target)
	if !ok || union.Body.Kind != ir.TypeBodyUnion {
		t.Fatalf("union alias = %+v", res.Decls[2].Target)
	}
	if strings.Join(union.Body.Members, ",") != "Ok,Err,Pending" {
		t.Fatalf("union members = %v", union.Body.Members)
	}

	tuple, _ := ir.AsTypeAlias(res.Decls[3].Target)
	if tuple == nil || tuple.Body.Kind != ir.TypeBodyTuple || len(tuple.Body.Members) != 2 {
		t.Fatalf("tuple alias = %+v", res.Decls[3].Target)
	}

	obj, _ := ir.AsTypeAlias(res.Decls[4].Target)
	if obj == nil || obj.Body.Kind != ir.TypeBodyObject || len(obj.Body.Fields) != 1 || obj.Body.Fields[0].Type != "boolean" {
		t.Fatalf("object alias = %+v", res.Decls[4].Target)
	}

	abs, ok := ir.AsClass(res.Decls[5].Target)
	if !ok || !abs.IsAbstract || len(abs.Methods) != 1 || !abs.Methods[0].Abstract {
		t.Fatalf("abstract class = %+v", res.Decls[5].Target)
	}

	fn, ok := ir.AsFunction(res.Decls[6].Target)
	if !ok || fn.Name != "make" || len(fn.TypeParams) != 1 || len(fn.Params) != 2 || !fn.Params[1].Optional {
		t.Fatalf("function = %+v", res.Decls[6].Target)
	}
}

func TestLowerDetachedComment(t *testing.T) {
	src := "/** @derive(Debug) */\n\nconst x = 1;\n\nclass A {}\n"
	res := lowerString(t, src)
	for _, d := range res.Decls {
		if d.Target.TargetName() == "A" && len(d.Uses) != 0 {
			t.Fatalf("comment separated by a statement must not attach to A")
		}
	}
}

func TestLowerSyntaxError(t *testing.T) {
	res := lowerString(t, "class { \n")
	found := false
	for _, d := range res.Diagnostics {
		if d.Code == diag.LowerSyntaxError && d.Severity == diag.SevWarning {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected syntax error warning, got %+v", res.Diagnostics)
	}
}
