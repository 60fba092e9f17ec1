package ir

import (
	"fmt"
	"strings"

	"macroforge/internal/source"
)

// ABIVersion is the macro context protocol version this host speaks.
const ABIVersion = 1

// DynamicModule marks a macro whose import path is resolved by the host at
// load time. Lookups against it go through the name-only fallback.
const DynamicModule = "__dynamic__"

// MacroKind is the invocation form of a macro.
type MacroKind uint8

const (
	MacroDerive MacroKind = iota
	MacroAttribute
	MacroCall
)

func (k MacroKind) String() string {
	switch k {
	case MacroDerive:
		return "derive"
	case MacroAttribute:
		return "attribute"
	case MacroCall:
		return "call"
	default:
		return "unknown"
	}
}

// ParseMacroKind accepts the names produced by String.
func ParseMacroKind(s string) (MacroKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "derive":
		return MacroDerive, nil
	case "attribute", "attr":
		return MacroAttribute, nil
	case "call":
		return MacroCall, nil
	}
	return MacroDerive, fmt.Errorf("unknown macro kind %q", s)
}

// MacroContext is everything one macro invocation sees.
type MacroContext struct {
	ABIVersion    int
	MacroKind     MacroKind
	MacroName     string
	ModulePath    string
	DecoratorSpan source.Span
	MacroNameSpan *source.Span
	TargetSpan    source.Span
	FileName      string
	Target        Target
	// TargetSource is exactly the file text covered by TargetSpan.
	TargetSource string
}

// ErrorSpan is the span diagnostics about this invocation should point at.
func (c *MacroContext) ErrorSpan() source.Span {
	if c.MacroNameSpan != nil {
		return *c.MacroNameSpan
	}
	return c.DecoratorSpan
}

// QualifiedName renders module::name for messages.
func (c *MacroContext) QualifiedName() string {
	if c.ModulePath == "" {
		return c.MacroName
	}
	return c.ModulePath + "::" + c.MacroName
}
