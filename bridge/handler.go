package bridge

import (
	"context"

	"github.com/wippyai/cas-bridge/ca"
	"github.com/wippyai/cas-bridge/engine"
)

// Handler is the capability set a hosted PV implements. Embed BaseHandler to
// pick up the defaults and override what the PV supports; the defaults
// describe a scalar string PV that rejects all read and write access.
//
// Handlers run under the hosted execution lock; the adapter enters it before
// every dispatch. A returned error never reaches the engine: the adapter
// reports it to the package logger and answers with the operation's
// fail-safe default.
type Handler interface {
	// Type returns the external data type of the PV.
	Type(ctx context.Context) (ca.DataType, error)

	// Count returns the number of elements.
	Count(ctx context.Context) (int, error)

	// Read returns the current attribute set. A nil result rejects the
	// read without raising a diagnostic.
	Read(ctx context.Context) (*ca.Attributes, error)

	// Write applies a decoded value. Recognized results are a bool
	// (accept or reject) and an *AsyncWrite built from actx to defer the
	// decision; anything else rejects the write. actx is only valid
	// until Write returns.
	Write(ctx context.Context, value any, ts ca.Time, actx *AsyncContext) (any, error)

	// InterestRegister asks the PV to start posting events on attribute
	// changes. It reports whether the request was honored.
	InterestRegister(ctx context.Context) (bool, error)

	// InterestDelete stops event posting.
	InterestDelete(ctx context.Context) error

	// Destroy is the teardown notification sent when the engine drops
	// its reference to the PV.
	Destroy(ctx context.Context) error
}

// BaseHandler provides the default capability set: a scalar string PV that
// rejects all access.
type BaseHandler struct{}

func (BaseHandler) Type(context.Context) (ca.DataType, error) {
	return ca.TypeString, nil
}

func (BaseHandler) Count(context.Context) (int, error) {
	return 1, nil
}

func (BaseHandler) Read(context.Context) (*ca.Attributes, error) {
	return nil, nil
}

func (BaseHandler) Write(context.Context, any, ca.Time, *AsyncContext) (any, error) {
	return false, nil
}

func (BaseHandler) InterestRegister(context.Context) (bool, error) {
	return false, nil
}

func (BaseHandler) InterestDelete(context.Context) error {
	return nil
}

func (BaseHandler) Destroy(context.Context) error {
	return nil
}

// ServerHandler is the capability set a hosted server object implements.
type ServerHandler interface {
	// PVExistTest reports whether the named PV is served here. client is
	// the requesting client's address in host byte order.
	PVExistTest(ctx context.Context, client engine.Addr, name string) (engine.ExistsResponse, error)

	// PVAttach binds the named PV. Recognized results are a *PV (which
	// transfers ownership to the engine) and an engine.AttachResponse;
	// anything else, including nil, answers "not found".
	PVAttach(ctx context.Context, name string) (any, error)
}

// BaseServerHandler provides the default server capability set: no PV exists
// and nothing can attach.
type BaseServerHandler struct{}

func (BaseServerHandler) PVExistTest(context.Context, engine.Addr, string) (engine.ExistsResponse, error) {
	return engine.NotExistsHere, nil
}

func (BaseServerHandler) PVAttach(context.Context, string) (any, error) {
	return nil, nil
}

// Codec converts between hosted attribute sets and the engine's typed
// buffers. Implementations must leave output buffers untouched on failure.
type Codec interface {
	// Encode builds a typed buffer of the given type from an attribute
	// snapshot.
	Encode(attrs ca.Attributes, t ca.DataType) (*engine.TypedBuffer, error)

	// Decode extracts the value and timestamp carried by a typed buffer.
	Decode(buf *engine.TypedBuffer) (value any, ts ca.Time, err error)
}
