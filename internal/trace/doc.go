// Package trace records expansion as nested spans: one session span per CLI
// run, a file span per expanded file, a macro span per dispatch.
//
// Events go to a writer (text or NDJSON), to an in-memory ring, or both:
//
//	macroforge expand --trace=- --trace-level=detail src/user.ts
//
// Levels, from quiet to verbose: off, error (failures only), phase (session
// and phases), detail (adds files), debug (adds every dispatch).
//
// The tracer and the current span travel in a context:
//
//	ctx = trace.WithTracer(ctx, t)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeFile, "file:"+path, trace.CurrentSpan(ctx).SpanID)
//	ctx = trace.WithSpan(ctx, span)
//	defer span.End("")
package trace
