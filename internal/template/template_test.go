package template

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

type member struct {
	Name     string
	Type     string
	Optional bool
}

type decl struct {
	Name   string
	Fields []member
}

func (d decl) FieldCount() int { return len(d.Fields) }

func render(t *testing.T, src string, data any) string {
	t.Helper()
	tmpl, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	out, err := tmpl.Execute(data)
	if err != nil {
		t.Fatalf("Execute(%q): %v", src, err)
	}
	return out
}

func TestEmptyBlocks(t *testing.T) {
	if got := render(t, "{#if false}X{/if}", nil); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
	if got := render(t, "{#each [] as x}X{/each}", nil); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}

func TestRender(t *testing.T) {
	data := map[string]any{
		"name":   "User",
		"kind":   "enum",
		"fields": []map[string]any{{"name": "id"}, {"name": "email"}},
		"tags":   []string{"x", "y"},
		"empty":  "",
		"zero":   0,
		"done":   false,
		"a":      false,
		"b":      true,
	}
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"text", "plain text", "plain text"},
		{"interp", "class @{name} {}", "class User {}"},
		{"hash interp", "type #{name}Id = string;", "type UserId = string;"},
		{"string interp", `toString() { return "@{name}(" + this.id + ")"; }`, `toString() { return "User(" + this.id + ")"; }`},
		{"nested groups", "f(a, [b, {c: @{name}}])", "f(a, [b, {c: User}])"},
		{"each with index", "{#each fields as f, i}@{i}:@{f.name};{/each}", "0:id;1:email;"},
		{"for", "{#for t in tags}<@{t}>{/for}", "<x><y>"},
		{"for with index", "{#for t, i in tags}@{i}@{t}{/for}", "0x1y"},
		{"if else", "{#if done}D{:else}N{/if}", "N"},
		{"else if", `{#if kind == "class"}C{:else if kind == "enum"}E{:else}O{/if}`, "E"},
		{"else if fallthrough", `{#if kind == "a"}A{:else if kind == "b"}B{:else}O{/if}`, "O"},
		{"logic", "{#if !done && (a || b)}Y{/if}", "Y"},
		{"not equal", `{#if name != "User"}no{:else}yes{/if}`, "yes"},
		{"falsy values", "{#if empty}1{/if}{#if zero}2{/if}{#if missing}3{/if}", ""},
		{"line comment", "// @{undefinedName} {#if}\nx", "// @{undefinedName} {#if}\nx"},
		{"block comment", "/* {/if} */@{name}", "/* {/if} */User"},
		{"decorator text", "@Debug class @{name} {}", "@Debug class User {}"},
		{"apostrophe", "it's @{name}", "it's User"},
		{"template literal", "`${this.x}-@{name}`", "`${this.x}-User`"},
		{"tag inside group", "{ {#if b}ok{/if} }", "{ ok }"},
		{"nil interp", "[@{nothing}]", "[]"},
		{"list literal", `{#each ["a", "b"] as s}@{s}{/each}`, "ab"},
		{"numbers", "@{1}+@{2.5}", "1+2.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := map[string]any{"nothing": nil}
			for k, v := range data {
				d[k] = v
			}
			if got := render(t, tt.src, d); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestStructData(t *testing.T) {
	d := decl{Name: "User", Fields: []member{{Name: "id", Type: "string"}, {Name: "age", Type: "number", Optional: true}}}
	src := "interface @{name} {{#each fields as f} @{f.name}{#if f.optional}?{/if}: @{f.type};{/each} } count=@{fieldCount}"
	want := "interface User { id: string; age?: number; } count=2"
	if got := render(t, src, d); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got := render(t, "@{name}", &d); got != "User" {
		t.Fatalf("pointer data: got %q", got)
	}
}

func TestFuncs(t *testing.T) {
	data := map[string]any{"xs": []string{"a", "b", "c"}, "ident": "userName"}
	tests := []struct {
		src  string
		want string
	}{
		{`@{pascal("user_name")}`, "UserName"},
		{`@{camel("UserName")}`, "userName"},
		{`@{snake(ident)}`, "user_name"},
		{`@{snake("HTTPServer")}`, "http_server"},
		{`@{upper("ab")}`, "AB"},
		{`@{lower("AB")}`, "ab"},
		{`@{title("hello world")}`, "Hello World"},
		{`@{join(xs, ", ")}`, "a, b, c"},
		{`@{join(xs)}`, "abc"},
		{`@{len(xs)}`, "3"},
		{`@{len("héllo")}`, "5"},
		{`@{quote(ident)}`, `"userName"`},
		{`{#if len(xs) == 3}three{/if}`, "three"},
	}
	for _, tt := range tests {
		if got := render(t, tt.src, data); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.src, tt.want, got)
		}
	}
}

func TestWithFuncs(t *testing.T) {
	tmpl, err := Compile(`@{shout(name)}`, WithFuncs(FuncMap{
		"shout": func(args ...any) (any, error) {
			return strings.ToUpper(fmt.Sprint(args[0])) + "!", nil
		},
	}))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	got, err := tmpl.Execute(map[string]string{"name": "hi"})
	if err != nil || got != "HI!" {
		t.Fatalf("expected HI!, got %q (%v)", got, err)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"stray end if", "x{/if}", "unexpected {/if}"},
		{"stray else", "{:else}", "unexpected {:else}"},
		{"unclosed if", "{#if a}x", "unclosed {#if}"},
		{"unclosed each", "{#each xs as x}x", "unclosed {#each}"},
		{"wrong end", "{#each xs as x}x{/if}", "unexpected {/if}"},
		{"for closed by each", "{#for x in xs}x{/each}", "unexpected {/each}"},
		{"unmatched close", "a)", "unmatched"},
		{"mismatched group", "(a]", "expected"},
		{"unclosed group", "{ a", "unclosed"},
		{"escape block from group", "{#if a}( {/if} )", "unexpected {/if}"},
		{"unknown func", "@{nope(x)}", "unknown function"},
		{"bad expr", "@{a ==}", "unexpected end of expression"},
		{"empty interp", "@{ }", "empty interpolation"},
		{"each without as", "{#each xs}x{/each}", "expects"},
		{"if without cond", "{#if}x{/if}", "needs an argument"},
		{"unterminated interp", "@{a", "unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.src)
			if err == nil {
				t.Fatalf("expected compile error for %q", tt.src)
			}
			if !errors.Is(err, ErrTemplate) {
				t.Fatalf("expected ErrTemplate, got %T %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Fatalf("expected %q in %q", tt.msg, err.Error())
			}
		})
	}
}

func TestErrorPosition(t *testing.T) {
	_, err := Compile("line one\n  {/if}")
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if te.Pos.Line != 2 || te.Pos.Col != 3 {
		t.Fatalf("expected 2:3, got %s", te.Pos)
	}
}

func TestMustCompilePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic")
		}
	}()
	MustCompile("{/if}")
}

func TestExecuteErrors(t *testing.T) {
	if _, err := MustCompile("@{user.name}").Execute(decl{}); err == nil || !strings.Contains(err.Error(), "undefined: user") {
		t.Fatalf("expected undefined error, got %v", err)
	}
	if got := MustCompile("[@{user.name}]").MustExecute(map[string]any{}); got != "[]" {
		t.Fatalf("missing map keys render empty, got %q", got)
	}
	if _, err := MustCompile("@{user.nope}").Execute(map[string]any{"user": decl{}}); err == nil || !strings.Contains(err.Error(), "no field") {
		t.Fatalf("expected missing field error, got %v", err)
	}
	if _, err := MustCompile("{#each n as x}{/each}").Execute(map[string]any{"n": 3}); err == nil {
		t.Fatalf("expected iteration error for int")
	}
}

func TestConcurrentExecute(t *testing.T) {
	tmpl := MustCompile("{#each xs as x}@{x}{/each}")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := strings.Repeat("a", i)
			xs := make([]string, i)
			for j := range xs {
				xs[j] = "a"
			}
			got, err := tmpl.Execute(map[string]any{"xs": xs})
			if err != nil || got != want {
				t.Errorf("goroutine %d: got %q (%v)", i, got, err)
			}
		}(i)
	}
	wg.Wait()
}

func TestCache(t *testing.T) {
	c := NewCache(2)
	a, err := c.Get("@{x}")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := c.Get("@{x}")
	if a != b {
		t.Fatalf("expected the cached template to be reused")
	}
	if _, err := c.Get("{/if}"); err == nil {
		t.Fatalf("expected compile error")
	}
	if c.Len() != 1 {
		t.Fatalf("compile errors must not be cached, len=%d", c.Len())
	}
	c.Get("a")
	c.Get("b")
	if c.Len() != 2 {
		t.Fatalf("expected eviction down to 2, got %d", c.Len())
	}
	out, err := c.Render("hi @{x}", map[string]int{"x": 1})
	if err != nil || out != "hi 1" {
		t.Fatalf("Render: %q %v", out, err)
	}
}

func TestWords(t *testing.T) {
	tests := map[string]string{
		"userName":    "user|Name",
		"HTTPServer":  "HTTP|Server",
		"user_id":     "user|id",
		"kebab-case":  "kebab|case",
		"Version2Api": "Version2|Api",
	}
	for in, want := range tests {
		if got := strings.Join(words(in), "|"); got != want {
			t.Errorf("words(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIndent(t *testing.T) {
	if got := Indent("a\n\nb", "  "); got != "  a\n\n  b" {
		t.Fatalf("unexpected indent %q", got)
	}
}
