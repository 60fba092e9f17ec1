package patch

import (
	"macroforge/internal/diag"
	"macroforge/internal/ir"
)

// Collector accumulates the results of every dispatch for one file.
// It is not safe for concurrent use; one file is expanded by one goroutine.
type Collector struct {
	runtime []ir.Patch
	types   []ir.Patch
	diags   *diag.Bag
	debug   []string
}

// NewCollector returns an empty collector. maxDiags bounds the diagnostic
// bag; zero or negative means unlimited.
func NewCollector(maxDiags int) *Collector {
	return &Collector{diags: diag.NewBag(maxDiags)}
}

// Add merges one macro result.
func (c *Collector) Add(res ir.MacroResult) {
	c.runtime = append(c.runtime, res.RuntimePatches...)
	c.types = append(c.types, res.TypePatches...)
	c.diags.AddAll(res.Diagnostics)
	if res.Debug != "" {
		c.debug = append(c.debug, res.Debug)
	}
}

// AddRuntime appends host-generated runtime patches such as decorator removal.
func (c *Collector) AddRuntime(ps ...ir.Patch) {
	c.runtime = append(c.runtime, ps...)
}

func (c *Collector) Runtime() []ir.Patch { return c.runtime }
func (c *Collector) Types() []ir.Patch   { return c.types }

// Diagnostics returns the collected diagnostics in arrival order.
func (c *Collector) Diagnostics() []diag.Diagnostic { return c.diags.Items() }

// Bag exposes the underlying diagnostic bag.
func (c *Collector) Bag() *diag.Bag { return c.diags }

// Debug returns the non-empty debug strings macros attached to their results.
func (c *Collector) Debug() []string { return c.debug }

type patchKey struct {
	kind       ir.PatchKind
	start, end uint32
	code       string
}

// Dedup drops structurally identical patches (same kind, span and code),
// keeping the first occurrence and the original order.
func Dedup(patches []ir.Patch) []ir.Patch {
	if len(patches) < 2 {
		return patches
	}
	seen := make(map[patchKey]struct{}, len(patches))
	out := make([]ir.Patch, 0, len(patches))
	for _, p := range patches {
		sp := p.AffectedSpan()
		k := patchKey{kind: p.Kind, start: sp.Start, end: sp.End, code: p.Code}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}
