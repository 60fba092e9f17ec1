// Package template is the code template language macros use to produce
// patch text.
//
// A template is ordinary target-language text with a few extra forms:
//
//	@{expr} or #{expr}            interpolate the string form of expr
//	{#if cond}...{:else if c}...{:else}...{/if}
//	{#each items as item, i}...{/each}
//	{#for item, i in items}...{/for}
//
// Every other {...}, (...) and [...] group is emitted with its delimiters
// and its contents are processed recursively. Quoted strings and comments
// are copied as they are, except that interpolations inside quotes still
// expand. Groups must balance; a closing tag without its opener, or an
// opener that never closes, is an error from Compile.
//
// Expressions support literals (strings, numbers, true, false, nil, [a, b]),
// dotted paths, !, ==, !=, &&, || and parentheses, and calls to the
// functions from DefaultFuncs or WithFuncs.
package template
