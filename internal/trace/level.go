package trace

import (
	"fmt"
	"strings"
)

// Scope is the granularity of an event; smaller is coarser.
type Scope uint8

const (
	ScopeSession Scope = iota + 1
	ScopePhase
	ScopeFile
	ScopeMacro
)

var scopeNames = [...]string{ScopeSession: "session", ScopePhase: "phase", ScopeFile: "file", ScopeMacro: "macro"}

func (s Scope) String() string {
	if int(s) < len(scopeNames) && scopeNames[s] != "" {
		return scopeNames[s]
	}
	return "unknown"
}

// Level controls which scopes are recorded.
type Level uint8

const (
	LevelOff Level = iota
	LevelError
	LevelPhase
	LevelDetail
	LevelDebug
)

var levelNames = [...]string{"off", "error", "phase", "detail", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel accepts the level names case-insensitively.
func ParseLevel(s string) (Level, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for i, name := range levelNames {
		if name == want {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: %s)", s, strings.Join(levelNames[:], "|"))
}

// deepest is the finest scope recorded at l; zero records no spans.
func (l Level) deepest() Scope {
	switch l {
	case LevelPhase:
		return ScopePhase
	case LevelDetail:
		return ScopeFile
	case LevelDebug:
		return ScopeMacro
	}
	return 0
}

// ShouldEmit reports whether spans of scope are recorded at l.
func (l Level) ShouldEmit(scope Scope) bool {
	return scope <= l.deepest()
}

// accepts also lets failures through at LevelError.
func (l Level) accepts(ev *Event) bool {
	if l == LevelOff {
		return false
	}
	return ev.Failure || l.ShouldEmit(ev.Scope)
}
