package engine

import (
	"context"
	"time"

	"github.com/wippyai/cas-bridge/ca"
)

// Status is the Channel Access operation status an adapter returns to the
// engine. Every native callback must produce one of these; the bridge never
// lets an error escape past this boundary.
type Status int

const (
	// StatusSuccess completes the operation.
	StatusSuccess Status = iota
	// StatusNoSupport rejects the operation; the fail-safe default.
	StatusNoSupport
	// StatusAsyncCompletion defers the operation; the engine parks the
	// request until a completion is posted for its token.
	StatusAsyncCompletion
	// StatusPVNotFound reports that no PV answers to the requested name.
	StatusPVNotFound
	// StatusNoMemory reports a resource failure constructing a proxy.
	StatusNoMemory
	// StatusCanceled reports a hosted-initiated cancellation of a
	// deferred operation.
	StatusCanceled
)

var statusNames = map[Status]string{
	StatusSuccess:         "success",
	StatusNoSupport:       "no_support",
	StatusAsyncCompletion: "async_completion",
	StatusPVNotFound:      "pv_not_found",
	StatusNoMemory:        "no_memory",
	StatusCanceled:        "canceled",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// ExistsResponse answers an existence test.
type ExistsResponse int

const (
	// NotExistsHere is the zero value so that every ambiguous outcome
	// defaults to it.
	NotExistsHere ExistsResponse = iota
	ExistsHere
)

func (r ExistsResponse) String() string {
	if r == ExistsHere {
		return "exists_here"
	}
	return "not_exists_here"
}

// AttachResponse answers an attach request that did not produce a PV.
// It is only consulted when PVAttach returns a nil PV.
type AttachResponse int

const (
	// AttachNotFound is the zero value so that every failed attach
	// defaults to it.
	AttachNotFound AttachResponse = iota
	AttachNoMemory
)

func (r AttachResponse) String() string {
	if r == AttachNoMemory {
		return "no_memory"
	}
	return "not_found"
}

// PostResult is the outcome of delivering an async completion.
type PostResult int

const (
	// PostDelivered means the completion reached a parked request.
	PostDelivered PostResult = iota
	// PostRedundant means the request was already completed. Redundant
	// posts are not errors.
	PostRedundant
)

// Token identifies one parked request inside the engine. It is opaque to the
// bridge: tokens are produced by the engine, captured into an AsyncWrite and
// handed back unchanged through PostCompletion.
type Token any

// Addr is a client network address in host byte order.
type Addr struct {
	Host uint32
	Port uint16
}

// PV is the fixed per-variable virtual interface the engine drives. The
// engine serializes calls to a single PV per its own concurrency model but
// gives no thread-affinity guarantee: consecutive calls may arrive on
// different goroutines.
type PV interface {
	// Name returns the canonical PV name. It is immutable and may be
	// called without any dispatch into hosted code.
	Name() string

	// BestType returns the external data type of the PV.
	BestType(ctx context.Context) ca.DataType

	// ElementCount returns the number of elements, at least 1.
	ElementCount(ctx context.Context) int

	// MaxDimension returns 0 for scalars and 1 for arrays.
	MaxDimension(ctx context.Context) int

	// Read fills the caller-supplied buffer with the current attributes.
	Read(ctx context.Context, buf *TypedBuffer) Status

	// Write applies the value in buf. When the result is
	// StatusAsyncCompletion the engine parks the request under tok until
	// a completion is posted.
	Write(ctx context.Context, buf *TypedBuffer, tok Token) Status

	// InterestRegister asks the PV to post events on attribute changes.
	InterestRegister(ctx context.Context) Status

	// InterestDelete stops event posting. Failures are not reported to
	// the engine.
	InterestDelete(ctx context.Context)

	// Destroy signals that the engine no longer references the PV.
	// It must be idempotent.
	Destroy(ctx context.Context)
}

// Server is the server-wide virtual interface the engine drives to discover
// PVs.
type Server interface {
	// PVExistTest reports whether the named PV is served here. client is
	// the requesting client's address.
	PVExistTest(ctx context.Context, client Addr, name string) ExistsResponse

	// PVAttach binds the named PV and transfers its adapter to the
	// engine. The response is consulted only when the returned PV is nil.
	PVAttach(ctx context.Context, name string) (PV, AttachResponse)
}

// Engine is the surface of the native server engine the bridge consumes.
type Engine interface {
	// Attach registers the server-wide adapter with the engine
	// lifecycle. It must be called exactly once before Process.
	Attach(s Server) error

	// Process runs one iteration of the engine's io dispatch, invoking
	// zero or more adapter callbacks, and returns when the timeout
	// elapses or io completed. It never blocks past the timeout.
	Process(ctx context.Context, timeout time.Duration) error

	// PostEvent forwards an encoded attribute change for the named PV to
	// all interested clients.
	PostEvent(pvName string, mask ca.EventMask, buf *TypedBuffer) error

	// PostCompletion resolves the parked request identified by tok.
	// Posting to an already resolved request reports PostRedundant and
	// no error.
	PostCompletion(tok Token, status Status) (PostResult, error)

	// RegisteredEvents returns the set of event bits this engine
	// recognizes. PostEvent rejects masks outside this set.
	RegisteredEvents() ca.EventMask
}
