package template

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Func is a function callable from template expressions.
type Func func(args ...any) (any, error)

// FuncMap maps function names to implementations.
type FuncMap map[string]Func

// DefaultFuncs returns a fresh copy of the built-in functions.
func DefaultFuncs() FuncMap {
	return FuncMap{
		"len":    lenFunc,
		"join":   joinFunc,
		"upper":  stringFunc(func(s string) string { return cases.Upper(language.Und).String(s) }),
		"lower":  stringFunc(func(s string) string { return cases.Lower(language.Und).String(s) }),
		"title":  stringFunc(func(s string) string { return cases.Title(language.Und).String(s) }),
		"camel":  stringFunc(camelCase),
		"pascal": stringFunc(pascalCase),
		"snake":  stringFunc(snakeCase),
		"quote":  stringFunc(strconv.Quote),
	}
}

func stringFunc(fn func(string) string) Func {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		return fn(toString(args[0])), nil
	}
}

func lenFunc(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
	}
	if args[0] == nil {
		return 0, nil
	}
	if s, ok := args[0].(string); ok {
		return utf8.RuneCountInString(s), nil
	}
	rv := reflect.ValueOf(args[0])
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len(), nil
	}
	return nil, fmt.Errorf("cannot take length of %T", args[0])
}

func joinFunc(args ...any) (any, error) {
	if len(args) == 0 || len(args) > 2 {
		return nil, fmt.Errorf("expected 1 or 2 arguments, got %d", len(args))
	}
	sep := ""
	if len(args) == 2 {
		sep = toString(args[1])
	}
	var parts []string
	err := iterate(args[0], func(_, v any) error {
		parts = append(parts, toString(v))
		return nil
	}, func(kind string) error {
		return fmt.Errorf("cannot join %s", kind)
	})
	if err != nil {
		return nil, err
	}
	return strings.Join(parts, sep), nil
}

// words splits an identifier at case changes, digits-to-letters and
// separators: "userID_list" -> user, ID, list.
func words(s string) []string {
	var out []string
	var cur []rune
	rs := []rune(s)
	for i, r := range rs {
		if r == '_' || r == '-' || r == ' ' || r == '.' {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = cur[:0]
			}
			continue
		}
		if len(cur) > 0 && unicode.IsUpper(r) {
			prev := rs[i-1]
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				out = append(out, string(cur))
				cur = cur[:0]
			}
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

func pascalCase(s string) string {
	title := cases.Title(language.Und)
	var sb strings.Builder
	for _, w := range words(s) {
		sb.WriteString(title.String(w))
	}
	return sb.String()
}

func camelCase(s string) string {
	ws := words(s)
	if len(ws) == 0 {
		return ""
	}
	title := cases.Title(language.Und)
	lower := cases.Lower(language.Und)
	var sb strings.Builder
	sb.WriteString(lower.String(ws[0]))
	for _, w := range ws[1:] {
		sb.WriteString(title.String(w))
	}
	return sb.String()
}

func snakeCase(s string) string {
	lower := cases.Lower(language.Und)
	ws := words(s)
	for i, w := range ws {
		ws[i] = lower.String(w)
	}
	return strings.Join(ws, "_")
}
