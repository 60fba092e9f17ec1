package template

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// scope is the chain of loop variables visible at a point of execution.
type scope struct {
	name   string
	val    any
	parent *scope
}

func (s *scope) lookup(name string) (any, bool) {
	for c := s; c != nil; c = c.parent {
		if c.name == name {
			return c.val, true
		}
	}
	return nil, false
}

type state struct {
	t    *Template
	root any
	out  strings.Builder
}

func (st *state) walk(nodes []node, sc *scope) error {
	for _, n := range nodes {
		if err := st.node(n, sc); err != nil {
			return err
		}
	}
	return nil
}

func (st *state) node(n node, sc *scope) error {
	switch n := n.(type) {
	case *textNode:
		st.out.WriteString(n.text)
	case *interpNode:
		v, err := st.eval(n.x, sc)
		if err != nil {
			return err
		}
		st.out.WriteString(toString(v))
	case *groupNode:
		st.out.WriteString(n.open)
		if err := st.walk(n.body, sc); err != nil {
			return err
		}
		st.out.WriteString(n.close)
	case *ifNode:
		v, err := st.eval(n.cond, sc)
		if err != nil {
			return err
		}
		if truthy(v) {
			return st.walk(n.then, sc)
		}
		return st.walk(n.otherwise, sc)
	case *eachNode:
		return st.each(n, sc)
	default:
		return fmt.Errorf("template: unknown node %T", n)
	}
	return nil
}

func (st *state) each(n *eachNode, sc *scope) error {
	coll, err := st.eval(n.coll, sc)
	if err != nil {
		return err
	}
	return iterate(coll, func(key, val any) error {
		inner := &scope{name: n.item, val: val, parent: sc}
		if n.index != "" {
			inner = &scope{name: n.index, val: key, parent: inner}
		}
		return st.walk(n.body, inner)
	}, func(kind string) error {
		return errorf(st.t.src, n.coll.offset(), "cannot iterate over %s", kind)
	})
}

func (st *state) eval(e expr, sc *scope) (any, error) {
	switch e := e.(type) {
	case *litExpr:
		return e.val, nil
	case *listExpr:
		out := make([]any, len(e.elems))
		for i, el := range e.elems {
			v, err := st.eval(el, sc)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *pathExpr:
		return st.path(e, sc)
	case *notExpr:
		v, err := st.eval(e.x, sc)
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	case *binExpr:
		x, err := st.eval(e.x, sc)
		if err != nil {
			return nil, err
		}
		switch e.op {
		case "&&":
			if !truthy(x) {
				return false, nil
			}
		case "||":
			if truthy(x) {
				return true, nil
			}
		}
		y, err := st.eval(e.y, sc)
		if err != nil {
			return nil, err
		}
		switch e.op {
		case "==":
			return equal(x, y), nil
		case "!=":
			return !equal(x, y), nil
		default:
			return truthy(y), nil
		}
	case *callExpr:
		args := make([]any, len(e.args))
		for i, a := range e.args {
			v, err := st.eval(a, sc)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		v, err := st.t.funcs[e.name](args...)
		if err != nil {
			return nil, errorf(st.t.src, e.off, "%s: %v", e.name, err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("template: unknown expression %T", e)
}

func (st *state) path(e *pathExpr, sc *scope) (any, error) {
	head := e.parts[0]
	v, ok := sc.lookup(head)
	if !ok {
		v, ok = field(st.root, head)
		if !ok {
			return nil, errorf(st.t.src, e.off, "undefined: %s", head)
		}
	}
	for i, name := range e.parts[1:] {
		if v == nil {
			return nil, nil
		}
		next, ok := field(v, name)
		if !ok {
			return nil, errorf(st.t.src, e.off, "%s has no field %s", strings.Join(e.parts[:i+1], "."), name)
		}
		v = next
	}
	return v, nil
}

// field resolves name against a map key, a zero-argument method or an
// exported struct field. Names match with the first letter case-folded.
func field(v any, name string) (any, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, false
	}
	exported := exportName(name)

	if m := rv.MethodByName(exported); m.IsValid() {
		if res, ok := callMethod(m); ok {
			return res, true
		}
	}

	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, true
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, true
		}
		return val.Interface(), true
	case reflect.Struct:
		f := rv.FieldByName(exported)
		if !f.IsValid() || !f.CanInterface() {
			return nil, false
		}
		return f.Interface(), true
	}
	return nil, false
}

func callMethod(m reflect.Value) (any, bool) {
	mt := m.Type()
	if mt.NumIn() != 0 || mt.NumOut() == 0 || mt.NumOut() > 2 {
		return nil, false
	}
	if mt.NumOut() == 2 && !mt.Out(1).Implements(reflect.TypeOf((*error)(nil)).Elem()) {
		return nil, false
	}
	out := m.Call(nil)
	return out[0].Interface(), true
}

func exportName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// iterate calls fn(key, value) per element of a slice, array or map. Maps
// run in sorted key order. nil iterates zero times.
func iterate(coll any, fn func(key, val any) error, bad func(kind string) error) error {
	if coll == nil {
		return nil
	}
	rv := reflect.ValueOf(coll)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := fn(i, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, k := range keys {
			if err := fn(k.Interface(), rv.MapIndex(k).Interface()); err != nil {
				return err
			}
		}
		return nil
	}
	return bad(rv.Type().String())
}

func truthy(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	}
	return true
}

func number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// equal compares numbers by value and Stringers against strings by their
// text, so kind == "derive" works for enum-like values.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return isNil(a) && isNil(b)
	}
	if s, ok := a.(string); ok {
		if o, ok := b.(fmt.Stringer); ok {
			return s == o.String()
		}
	}
	if s, ok := b.(string); ok {
		if o, ok := a.(fmt.Stringer); ok {
			return s == o.String()
		}
	}
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			return x == y
		}
	}
	return reflect.DeepEqual(a, b)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// toString renders a value for interpolation. nil renders as nothing.
func toString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []string:
		return strings.Join(v, ", ")
	}
	if isNil(v) {
		return ""
	}
	return fmt.Sprint(v)
}
