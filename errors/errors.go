package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseDispatch   Phase = "dispatch"   // hosted handler invocation
	PhaseExist      Phase = "exist"      // existence test
	PhaseAttach     Phase = "attach"     // PV attach
	PhaseEncode     Phase = "encode"     // attributes to typed buffer
	PhaseDecode     Phase = "decode"     // typed buffer to value
	PhaseEvent      Phase = "event"      // event posting
	PhaseCompletion Phase = "completion" // async write completion
	PhaseProcess    Phase = "process"    // engine io processing
)

// Kind categorizes the error
type Kind string

const (
	KindUnsupported     Kind = "unsupported"
	KindNotFound        Kind = "not_found"
	KindNoMemory        Kind = "no_memory"
	KindTypeMismatch    Kind = "type_mismatch"
	KindProtocol        Kind = "protocol"
	KindConsumedContext Kind = "consumed_context"
	KindRedundantPost   Kind = "redundant_post"
	KindEngineFailure   Kind = "engine_failure"
	KindInvalidEnum     Kind = "invalid_enum"
	KindInvalidData     Kind = "invalid_data"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindDestroyed       Kind = "destroyed"
	KindShutdown        Kind = "shutdown"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	PV     string
	Method string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.PV != "" {
		b.WriteString(" pv=")
		b.WriteString(e.PV)
	}
	if e.Method != "" {
		b.WriteString(" method=")
		b.WriteString(e.Method)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// PV sets the PV name
func (b *Builder) PV(name string) *Builder {
	b.err.PV = name
	return b
}

// Method sets the hosted method name
func (b *Builder) Method(name string) *Builder {
	b.err.Method = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Dispatch wraps a hosted handler failure
func Dispatch(pv, method string, cause error) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindUnsupported,
		PV:     pv,
		Method: method,
		Cause:  cause,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, detail string, value any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Detail: detail,
		Value:  value,
	}
}

// InvalidEnum creates an invalid enum value error
func InvalidEnum(phase Phase, value any, enumType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidEnum,
		Detail: fmt.Sprintf("invalid enum value %v for %s", value, enumType),
		Value:  value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Protocol creates a protocol violation error (caller broke the
// adapter's type contract)
func Protocol(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindProtocol,
		Detail: detail,
	}
}

// ConsumedContext reports use of an async context past its call scope
func ConsumedContext() *Error {
	return &Error{
		Phase:  PhaseCompletion,
		Kind:   KindConsumedContext,
		Detail: "async context is no longer valid; it must be captured before write returns",
	}
}

// EngineFailure wraps a native engine operation failure
func EngineFailure(phase Phase, op string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindEngineFailure,
		Detail: op,
		Cause:  cause,
	}
}

// Destroyed reports an operation on an already destroyed adapter
func Destroyed(phase Phase, pv string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindDestroyed,
		PV:    pv,
	}
}

// Shutdown reports an operation on a stopped server
func Shutdown(detail string) *Error {
	return &Error{
		Phase:  PhaseProcess,
		Kind:   KindShutdown,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
