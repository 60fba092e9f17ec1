package builtin

import (
	"fmt"
	"strings"

	"macroforge/internal/diag"
	"macroforge/internal/ir"
	"macroforge/internal/registry"
)

// DebugAttr is the field annotation read by Debug: `@debug(skip)` or
// `/** @debug(skip) */` hides a field from the generated string. The
// decorator form is stripped along with the derive.
const DebugAttr = "debug"

const (
	classMethod = `

  toString(): string {
{#if len(fields) == 0}    return "@{name} {}";
{:else}    return "@{name} { " + [{#each fields as f, i}{#if i != 0}, {/if}"@{f.name}: " + String(this.@{f.name}){/each}].join(", ") + " }";
{/if}  }
`
	classSignature = `

  toString(): string;
`
	valueFunction = `

export function @{camel(name)}ToString(value: @{name}): string {
{#if len(fields) == 0}  return "@{name} {}";
{:else}  return "@{name} { " + [{#each fields as f, i}{#if i != 0}, {/if}"@{f.name}: " + String(value.@{f.name}){/each}].join(", ") + " }";
{/if}}
`
	enumFunction = `

export function @{camel(name)}ToString(value: @{name}): string {
  switch (value) {
{#each variants as v}    case @{v.ref}:
      return @{quote(v.label)};
{/each}  }
  return String(value);
}
`
	functionSignature = `

export declare function @{camel(name)}ToString(value: @{name}): string;
`
)

type fieldView struct {
	Name string
}

type variantView struct {
	Label string
	Ref   string
}

// Debug returns the derive macro generating a toString() rendering of the
// target's fields: a method for classes, a free function for interfaces,
// object type aliases and enums.
func Debug() registry.Macro {
	m := registry.NewFunc(ir.MacroDerive, "Debug", runDebug)
	m.Members = []string{DebugAttr}
	return m
}

func runDebug(mc *ir.MacroContext) ir.MacroResult {
	switch t := mc.Target.(type) {
	case *ir.Class:
		return debugClass(mc, t)
	case *ir.Interface:
		return debugValue(mc, t.Name, t.Fields)
	case *ir.TypeAlias:
		if t.Body.Kind != ir.TypeBodyObject {
			return unsupported(mc, fmt.Sprintf("type alias with a %s body", t.Body.Kind))
		}
		return debugValue(mc, t.Name, t.Body.Fields)
	case *ir.Enum:
		return debugEnum(mc, t)
	default:
		return unsupported(mc, mc.Target.Kind().String())
	}
}

func unsupported(mc *ir.MacroContext, what string) ir.MacroResult {
	return ir.MacroResult{Diagnostics: []diag.Diagnostic{
		diag.NewError(diag.MacroReported, mc.ErrorSpan(), "Debug cannot be derived for a "+what).
			WithHelp("derive Debug on a class, interface, enum or object type alias"),
	}}
}

func debugClass(mc *ir.MacroContext, c *ir.Class) ir.MacroResult {
	if c.BodySpan.Empty() {
		return unsupported(mc, "class without a body")
	}
	for _, m := range c.Methods {
		if m.Name == "toString" && !m.Static {
			return ir.MacroResult{Diagnostics: []diag.Diagnostic{
				diag.NewError(diag.MacroReported, mc.ErrorSpan(), "class "+c.Name+" already defines toString()").
					WithNote(m.Span, "defined here"),
			}}
		}
	}
	fields := visibleFields(c.Fields)
	data := map[string]any{"name": c.Name, "fields": fields}

	method, err := templates.Render(classMethod, data)
	if err != nil {
		return templateFailure(mc, err)
	}
	sig, err := templates.Render(classSignature, data)
	if err != nil {
		return templateFailure(mc, err)
	}
	// перед закрывающей фигурной скобкой тела
	at := c.BodySpan.End - 1
	return ir.MacroResult{
		RuntimePatches: []ir.Patch{ir.InsertAt(c.BodySpan.File, at, method)},
		TypePatches:    []ir.Patch{ir.InsertAt(c.BodySpan.File, at, sig)},
		Debug:          fmt.Sprintf("Debug(%s): %d fields", c.Name, len(fields)),
	}
}

func debugValue(mc *ir.MacroContext, name string, fields []ir.Field) ir.MacroResult {
	shown := visibleFields(fields)
	data := map[string]any{"name": name, "fields": shown}
	fn, err := templates.Render(valueFunction, data)
	if err != nil {
		return templateFailure(mc, err)
	}
	sig, err := templates.Render(functionSignature, data)
	if err != nil {
		return templateFailure(mc, err)
	}
	return ir.MacroResult{
		RuntimePatches: []ir.Patch{ir.InsertAt(mc.TargetSpan.File, mc.TargetSpan.End, fn)},
		TypePatches:    []ir.Patch{ir.InsertAt(mc.TargetSpan.File, mc.TargetSpan.End, sig)},
		Debug:          fmt.Sprintf("Debug(%s): %d fields", name, len(shown)),
	}
}

func debugEnum(mc *ir.MacroContext, e *ir.Enum) ir.MacroResult {
	variants := make([]variantView, 0, len(e.Variants))
	for _, v := range e.Variants {
		label := strings.Trim(v.Name, `"'`)
		ref := e.Name + "." + v.Name
		if label != v.Name {
			ref = e.Name + "[" + v.Name + "]"
		}
		variants = append(variants, variantView{Label: label, Ref: ref})
	}
	data := map[string]any{"name": e.Name, "variants": variants}
	fn, err := templates.Render(enumFunction, data)
	if err != nil {
		return templateFailure(mc, err)
	}
	sig, err := templates.Render(functionSignature, data)
	if err != nil {
		return templateFailure(mc, err)
	}
	return ir.MacroResult{
		RuntimePatches: []ir.Patch{ir.InsertAt(mc.TargetSpan.File, mc.TargetSpan.End, fn)},
		TypePatches:    []ir.Patch{ir.InsertAt(mc.TargetSpan.File, mc.TargetSpan.End, sig)},
		Debug:          fmt.Sprintf("Debug(%s): %d variants", e.Name, len(variants)),
	}
}

// visibleFields drops static members and fields marked @debug(skip).
func visibleFields(fields []ir.Field) []fieldView {
	out := make([]fieldView, 0, len(fields))
	for _, f := range fields {
		if f.Static || skipped(f) {
			continue
		}
		out = append(out, fieldView{Name: f.Name})
	}
	return out
}

func skipped(f ir.Field) bool {
	for _, d := range f.Decorators {
		if d.Name == DebugAttr && strings.TrimSpace(d.Args) == "skip" {
			return true
		}
	}
	return false
}

func templateFailure(mc *ir.MacroContext, err error) ir.MacroResult {
	return ir.ErrorResult(diag.MacroReported, mc.ErrorSpan(), "Debug template failed: "+err.Error(), "")
}
