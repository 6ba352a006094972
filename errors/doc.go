// Package errors provides structured error types for the cas-bridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes the PV name, the hosted method that was
// being dispatched and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
//		PV("TEMP1").
//		Method("write").
//		Detail("handler returned %T, want bool or *AsyncWrite", v).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Dispatch("TEMP1", "read", cause)
//	err := errors.NotFound(errors.PhaseAttach, "pv", name)
//
// All errors implement the standard error interface and support errors.Is/As;
// Is matches on Phase and Kind.
package errors
