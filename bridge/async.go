package bridge

import (
	"context"
	"sync/atomic"

	"github.com/wippyai/cas-bridge/engine"
	"github.com/wippyai/cas-bridge/errors"
)

const (
	actxLive int32 = iota
	actxCaptured
	actxInvalid
)

// AsyncContext identifies one pending write inside the engine. It is
// borrowed: the token it wraps belongs to the engine and stays valid only
// until the write dispatch that supplied it returns. The only way to keep it
// is to capture it into an AsyncWrite before then.
type AsyncContext struct {
	tok   engine.Token
	state atomic.Int32
}

func newAsyncContext(tok engine.Token) *AsyncContext {
	return &AsyncContext{tok: tok}
}

// capture consumes the context, handing its token to exactly one AsyncWrite.
func (c *AsyncContext) capture() (engine.Token, error) {
	if c == nil {
		return nil, errors.Protocol(errors.PhaseCompletion, "async context must not be nil")
	}
	if c.state.CompareAndSwap(actxLive, actxCaptured) {
		return c.tok, nil
	}
	if c.state.Load() == actxCaptured {
		return nil, errors.Protocol(errors.PhaseCompletion, "async context already captured")
	}
	return nil, errors.ConsumedContext()
}

// invalidate marks the end of the supplying call. A later capture fails.
func (c *AsyncContext) invalidate() {
	c.state.CompareAndSwap(actxLive, actxInvalid)
}

const (
	awPending int32 = iota
	awTorn
)

// AsyncWrite defers the outcome of one write. A handler builds it from the
// context passed to Write and returns it instead of a bool; the adapter then
// transfers it to the engine and answers "in progress". Hosted code finishes
// the write later, from any goroutine, with Complete or Fail.
//
// Completion runs in hosted caller context, so failures are returned rather
// than swallowed. Posting twice is safe: the engine treats a redundant post
// as success. After Complete or Fail the handle must not be used again.
type AsyncWrite struct {
	pv    *PV
	tok   engine.Token
	owned owned
	state atomic.Int32
}

// NewAsyncWrite captures an async context for the given PV. It fails with a
// protocol error if the context was already captured or if its supplying
// write call has returned.
func NewAsyncWrite(pv *PV, actx *AsyncContext) (*AsyncWrite, error) {
	if pv == nil {
		return nil, errors.Protocol(errors.PhaseCompletion, "pv must not be nil")
	}
	tok, err := actx.capture()
	if err != nil {
		return nil, err
	}

	w := &AsyncWrite{pv: pv, tok: tok}
	w.owned.ref = NewRef(nil)
	return w, nil
}

// Ref returns the shared reference handle.
func (w *AsyncWrite) Ref() *Ref { return w.owned.ref }

// HeldByServer reports whether the engine currently holds the handle.
func (w *AsyncWrite) HeldByServer() bool { return w.owned.heldByServer() }

// Complete posts a success completion for the deferred write.
func (w *AsyncWrite) Complete(ctx context.Context) error {
	return w.post(ctx, engine.StatusSuccess)
}

// Fail posts a cancellation completion for the deferred write.
func (w *AsyncWrite) Fail(ctx context.Context) error {
	return w.post(ctx, engine.StatusCanceled)
}

func (w *AsyncWrite) post(ctx context.Context, st engine.Status) error {
	if w.state.Load() == awTorn {
		return errors.Destroyed(errors.PhaseCompletion, w.pv.name)
	}
	srv := w.pv.adapter.srv.Load()
	if srv == nil {
		return errors.Protocol(errors.PhaseCompletion, "pv is not attached to a server")
	}

	_, release := EnterHosted(ctx)
	defer release()

	if _, err := srv.eng.PostCompletion(w.tok, st); err != nil {
		return errors.EngineFailure(errors.PhaseCompletion, "post completion", err)
	}

	// Delivered or redundant: either way the engine is done with this
	// handle, so the mirrored reference goes away. The release is
	// toggle-guarded and cannot run twice.
	w.pv.adapter.forgetAsyncWrite(w)
	w.owned.release()
	return nil
}

// teardown is the engine-driven destruction path, used when the PV is
// destroyed with the write still pending. It runs the same ownership release
// as a completion.
func (w *AsyncWrite) teardown() {
	w.state.Store(awTorn)
	w.owned.release()
}
