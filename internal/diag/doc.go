// Package diag defines the diagnostic model shared by the macro host.
//
// # Purpose
//
//   - Provide deterministic data structures for findings produced by lowering,
//     dispatch and patch application.
//   - Offer light-weight utilities (Reporter, Bag) so producers can emit
//     diagnostics without coupling to storage or formatting.
//
// # Scope
//
// Package diag does no formatting or IO. Rendering lives in internal/diagfmt;
// the dispatcher converts per-macro failures into Diagnostic values and the
// expander gathers them per file.
//
// # Data model
//
// Diagnostic is the central record:
//
//   - Severity – tri-level enum (Info, Warning, Error).
//   - Code – compact numeric identifier with a stable string form (codes.go).
//   - Message – short, actionable text.
//   - Primary – optional span; nil for diagnostics that are not tied to source,
//     such as a package that failed to load.
//   - Notes – secondary spans/messages.
//   - Help – a single hint line, e.g. "rebuild the macro package".
//
// Keep the model deterministic: Bag.Sort orders by span, then severity, then code.
package diag
