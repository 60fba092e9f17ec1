package trace

import "time"

// Kind of an event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
)

func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	}
	return "unknown"
}

// Attr is a key/value pair attached to an end or point event. Order is
// preserved in the output.
type Attr struct {
	Key   string
	Value string
}

// Event is one trace record. Seq is assigned by the sink that stores it.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64
	Name     string // "file:src/user.ts", "macro:Debug"
	Detail   string
	Elapsed  time.Duration // span ends only
	Attrs    []Attr
	Failure  bool
}

// Attr returns the value stored under key.
func (ev *Event) Attr(key string) (string, bool) {
	for _, a := range ev.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}
