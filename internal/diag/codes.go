package diag

import (
	"fmt"
)

type Code uint16

const (
	// Неизвестная ошибка - на первое время
	UnknownCode Code = 0

	// Dispatch
	MacroInfo             Code = 1000
	MacroNotFound         Code = 1001
	MacroAmbiguous        Code = 1002
	MacroAbiMismatch      Code = 1003
	MacroExecutionFaulted Code = 1004
	MacroTooManyDiags     Code = 1005
	MacroReported         Code = 1006
	MacroKindMismatch     Code = 1007

	// Patch application
	PatchInfo        Code = 2000
	PatchOverlapping Code = 2001
	PatchOutOfRange  Code = 2002

	// Lowering
	LowerInfo            Code = 3000
	LowerSyntaxError     Code = 3001
	LowerBadDecorator    Code = 3002
	LowerUnknownMacroUse Code = 3003

	// Host / packages
	HostInfo            Code = 4000
	HostPackageLoad     Code = 4001
	HostNativeDisabled  Code = 4002
	HostRuntimeMismatch Code = 4003
	HostIO              Code = 4004
)

var (
	codeDescription = map[Code]string{
		UnknownCode:           "Unknown error",
		MacroInfo:             "Macro information",
		MacroNotFound:         "Macro not found",
		MacroAmbiguous:        "Macro name is registered by several modules",
		MacroAbiMismatch:      "Macro ABI version mismatch",
		MacroExecutionFaulted: "Macro execution faulted",
		MacroTooManyDiags:     "Macro reported too many diagnostics",
		MacroReported:         "Diagnostic reported by macro",
		MacroKindMismatch:     "Macro used with the wrong invocation kind",
		PatchInfo:             "Patch information",
		PatchOverlapping:      "Overlapping patches",
		PatchOutOfRange:       "Patch span out of range",
		LowerInfo:             "Lowering information",
		LowerSyntaxError:      "Source contains syntax errors",
		LowerBadDecorator:     "Malformed macro annotation",
		LowerUnknownMacroUse:  "Macro import does not name any macro",
		HostInfo:              "Host information",
		HostPackageLoad:       "Macro package failed to load",
		HostNativeDisabled:    "Native macros are disabled",
		HostRuntimeMismatch:   "Package runtime is not supported",
		HostIO:                "I/O error",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("MAC%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("PAT%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("LOW%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("HST%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
