// Package ir is the contract between the lowering step, the dispatcher and
// macro implementations.
//
// Lowering produces one MacroContext per macro invocation. Its Target is a
// tagged union over declaration shapes (class, enum, interface, type alias,
// function, other); macros query it with AsClass, AsEnum and friends and get
// ok == false for any other shape. A macro answers with a MacroResult whose
// patches are expressed in byte offsets of the original file.
//
// Everything here is plain data. Values built by lowering are treated as
// immutable and are not retained after dispatch.
package ir
