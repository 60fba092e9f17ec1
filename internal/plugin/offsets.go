package plugin

import (
	"fmt"

	"macroforge/internal/diag"
	"macroforge/internal/ir"
	"macroforge/internal/source"
)

// toBytes converts a result whose spans are character offsets counted from
// the start of TargetSource.
func toBytes(mc *ir.MacroContext, res ir.MacroResult) ir.MacroResult {
	conv := converter{text: mc.TargetSource, base: mc.TargetSpan.Start, file: mc.TargetSpan.File}

	runtime, err := conv.patches(res.RuntimePatches)
	if err != nil {
		return conv.failure(mc, err)
	}
	types, err := conv.patches(res.TypePatches)
	if err != nil {
		return conv.failure(mc, err)
	}
	res.RuntimePatches, res.TypePatches = runtime, types
	for i := range res.Diagnostics {
		if sp := res.Diagnostics[i].Primary; sp != nil {
			if converted, err := conv.span(*sp); err == nil {
				res.Diagnostics[i].Primary = &converted
			} else {
				es := mc.ErrorSpan()
				res.Diagnostics[i].Primary = &es
			}
		}
	}
	return res
}

type converter struct {
	text string
	base uint32
	file source.FileID
}

func (c converter) offset(charOff uint32) (uint32, error) {
	b, ok := source.ByteOffset(c.text, int(charOff))
	if !ok {
		return 0, fmt.Errorf("character offset %d is outside the target (%d characters)", charOff, len([]rune(c.text)))
	}
	return c.base + source.StrLen32(c.text[:b]), nil
}

func (c converter) span(sp source.Span) (source.Span, error) {
	start, err := c.offset(sp.Start)
	if err != nil {
		return source.Span{}, err
	}
	end, err := c.offset(sp.End)
	if err != nil {
		return source.Span{}, err
	}
	return source.Span{File: c.file, Start: start, End: end}, nil
}

func (c converter) patches(ps []ir.Patch) ([]ir.Patch, error) {
	if len(ps) == 0 {
		return ps, nil
	}
	out := make([]ir.Patch, len(ps))
	for i, p := range ps {
		sp, err := c.span(p.Span)
		if err != nil {
			return nil, err
		}
		p.Span = sp
		out[i] = p
	}
	return out, nil
}

func (c converter) failure(mc *ir.MacroContext, err error) ir.MacroResult {
	return ir.ErrorResult(diag.HostRuntimeMismatch, mc.ErrorSpan(),
		fmt.Sprintf("macro %s returned an invalid patch: %v", mc.MacroName, err),
		"character offsets must be relative to the start of the target")
}
