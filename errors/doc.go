// Package errors provides structured error types for the capnp-layout module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, schema type name, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
//		Path("TestAllTypes", "int8Field").
//		Type("Int8").
//		Detail("got Text").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnresolvedType(path, "Foo.Bar")
//	err := errors.OutOfBounds(errors.PhaseDecode, path, 10, 5)
//
// All errors implement the standard error interface and support errors.Is/As.
// A target with an empty Phase matches the Kind in any phase:
//
//	errors.Is(err, &errors.Error{Kind: errors.KindCyclicReference})
package errors
