package bridge

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/wippyai/cas-bridge/ca"
	"github.com/wippyai/cas-bridge/engine"
	"github.com/wippyai/cas-bridge/errors"
)

// PV is the hosted side of one process variable: a handler plus the adapter
// the engine drives. The pair is created together and shares one lifetime;
// the name is fixed at construction.
type PV struct {
	name    string
	handler Handler
	adapter *PVAdapter
	owned   owned
}

// PVOption configures a PV at construction.
type PVOption func(*pvConfig)

type pvConfig struct {
	drop func()
}

// WithDrop installs a hook that runs when the last reference to the PV is
// released, hosted and engine side both counted.
func WithDrop(fn func()) PVOption {
	return func(c *pvConfig) { c.drop = fn }
}

// NewPV creates a hosted PV and its adapter. No hosted state is touched, so
// the hosted execution lock is not required.
func NewPV(name string, h Handler, opts ...PVOption) (*PV, error) {
	if name == "" {
		return nil, errors.Protocol(errors.PhaseAttach, "pv name must not be empty")
	}
	if h == nil {
		return nil, errors.Protocol(errors.PhaseAttach, "pv handler must not be nil")
	}

	var cfg pvConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &PV{
		name:    name,
		handler: h,
	}
	p.owned.ref = NewRef(cfg.drop)
	p.adapter = &PVAdapter{pv: p}
	return p, nil
}

// Name returns the PV name given at construction.
func (p *PV) Name() string { return p.name }

// Adapter returns the engine-facing adapter. Exactly one adapter exists per
// PV for its whole lifetime.
func (p *PV) Adapter() *PVAdapter { return p.adapter }

// Ref returns the shared reference handle.
func (p *PV) Ref() *Ref { return p.owned.ref }

// HeldByServer reports whether the engine currently holds the PV.
func (p *PV) HeldByServer() bool { return p.owned.heldByServer() }

// Release drops the creator's reference. Call when hosted code no longer
// needs the PV; the drop hook runs once the engine lets go too.
func (p *PV) Release() { p.owned.ref.Release() }

// PostEvent publishes an attribute change to all interested clients. Unlike
// the engine-driven operations this runs in hosted caller context, so every
// failure is returned instead of being swallowed.
func (p *PV) PostEvent(ctx context.Context, mask ca.EventMask, attrs ca.Attributes) error {
	a := p.adapter
	srv := a.srv.Load()
	if srv == nil {
		return errors.Protocol(errors.PhaseEvent, "pv is not attached to a server")
	}
	if a.destroyed.Load() {
		return errors.Destroyed(errors.PhaseEvent, p.name)
	}

	ctx, release := EnterHosted(ctx)
	defer release()

	t, err := p.handler.Type(ctx)
	if err != nil {
		return errors.Dispatch(p.name, "type", err)
	}
	if t == ca.TypeInvalid {
		return errors.InvalidEnum(errors.PhaseEvent, t, "DataType")
	}

	if mask == ca.EventNone {
		return errors.InvalidData(errors.PhaseEvent, "empty event mask")
	}
	if reg := srv.eng.RegisteredEvents(); mask&^reg != 0 {
		return errors.New(errors.PhaseEvent, errors.KindInvalidData).
			PV(p.name).
			Detail("event mask %b contains bits outside the registered set %b", mask, reg).
			Build()
	}

	buf, err := srv.codec.Encode(attrs, t)
	if err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "encode event attributes")
	}

	if err := srv.eng.PostEvent(p.name, mask, buf); err != nil {
		return errors.EngineFailure(errors.PhaseEvent, "post event", err)
	}
	return nil
}

// PVAdapter implements engine.PV by dispatching to the hosted handler. Every
// operation enters the hosted execution lock, translates the handler's
// answer and falls back to a conservative default on any failure; nothing
// ever unwinds into the engine.
type PVAdapter struct {
	pv        *PV
	srv       atomic.Pointer[ServerAdapter]
	destroyed atomic.Bool

	pendingMu sync.Mutex
	pending   map[*AsyncWrite]struct{}
}

var _ engine.PV = (*PVAdapter)(nil)

// Name returns the immutable PV name without dispatching into hosted code.
func (a *PVAdapter) Name() string { return a.pv.name }

// BestType reports the handler's data type, defaulting to string.
func (a *PVAdapter) BestType(ctx context.Context) ca.DataType {
	if a.destroyed.Load() {
		return ca.TypeString
	}
	ctx, release := EnterHosted(ctx)
	defer release()

	t, err := a.pv.handler.Type(ctx)
	if err != nil {
		reportUnraisable(a.pv.name, "type", err)
		return ca.TypeString
	}
	if t == ca.TypeInvalid {
		return ca.TypeString
	}
	return t
}

// ElementCount reports the handler's element count, never less than 1.
func (a *PVAdapter) ElementCount(ctx context.Context) int {
	if a.destroyed.Load() {
		return 1
	}
	ctx, release := EnterHosted(ctx)
	defer release()

	c, err := a.pv.handler.Count(ctx)
	if err != nil {
		reportUnraisable(a.pv.name, "count", err)
		return 1
	}
	if c < 1 {
		return 1
	}
	return c
}

// MaxDimension is 0 for scalars and 1 for arrays.
func (a *PVAdapter) MaxDimension(ctx context.Context) int {
	if a.ElementCount(ctx) > 1 {
		return 1
	}
	return 0
}

// Read resolves the current type, asks the handler for its attributes and
// encodes them into buf. The buffer is written only on full success.
func (a *PVAdapter) Read(ctx context.Context, buf *engine.TypedBuffer) engine.Status {
	if a.destroyed.Load() {
		return engine.StatusNoSupport
	}
	srv := a.srv.Load()
	if srv == nil {
		return engine.StatusNoSupport
	}

	ctx, release := EnterHosted(ctx)
	defer release()

	t, err := a.pv.handler.Type(ctx)
	if err != nil {
		reportUnraisable(a.pv.name, "type", err)
		return engine.StatusNoSupport
	}
	if t == ca.TypeInvalid {
		return engine.StatusNoSupport
	}

	attrs, err := a.pv.handler.Read(ctx)
	if err != nil {
		reportUnraisable(a.pv.name, "read", err)
		return engine.StatusNoSupport
	}
	if attrs == nil {
		return engine.StatusNoSupport
	}

	enc, err := srv.codec.Encode(*attrs, t)
	if err != nil {
		reportUnraisable(a.pv.name, "read", errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "encode read result"))
		return engine.StatusNoSupport
	}
	*buf = *enc
	return engine.StatusSuccess
}

// Write decodes buf and dispatches the handler's write. A bool answers
// immediately; an *AsyncWrite built from the supplied context defers the
// decision and transfers to the engine. Anything else rejects the write.
func (a *PVAdapter) Write(ctx context.Context, buf *engine.TypedBuffer, tok engine.Token) engine.Status {
	if a.destroyed.Load() {
		return engine.StatusNoSupport
	}
	srv := a.srv.Load()
	if srv == nil {
		return engine.StatusNoSupport
	}

	ctx, release := EnterHosted(ctx)
	defer release()

	value, ts, err := srv.codec.Decode(buf)
	if err != nil {
		reportUnraisable(a.pv.name, "write", errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode write value"))
		return engine.StatusNoSupport
	}

	actx := newAsyncContext(tok)
	defer actx.invalidate()

	res, err := a.pv.handler.Write(ctx, value, ts, actx)
	if err != nil {
		reportUnraisable(a.pv.name, "write", err)
		return engine.StatusNoSupport
	}

	switch v := res.(type) {
	case nil:
		return engine.StatusNoSupport
	case bool:
		if v {
			return engine.StatusSuccess
		}
		return engine.StatusNoSupport
	case *AsyncWrite:
		if v == nil {
			return engine.StatusNoSupport
		}
		if v.pv != a.pv {
			reportUnraisable(a.pv.name, "write", errors.Protocol(errors.PhaseDispatch, "async write belongs to a different pv"))
			return engine.StatusNoSupport
		}
		a.adoptAsyncWrite(v)
		return engine.StatusAsyncCompletion
	default:
		reportUnraisable(a.pv.name, "write",
			errors.TypeMismatch(errors.PhaseDispatch, "write result must be bool or *AsyncWrite", res))
		return engine.StatusNoSupport
	}
}

// InterestRegister dispatches the handler's interest registration.
func (a *PVAdapter) InterestRegister(ctx context.Context) engine.Status {
	if a.destroyed.Load() {
		return engine.StatusNoSupport
	}
	ctx, release := EnterHosted(ctx)
	defer release()

	ok, err := a.pv.handler.InterestRegister(ctx)
	if err != nil {
		reportUnraisable(a.pv.name, "interestRegister", err)
		return engine.StatusNoSupport
	}
	if ok {
		return engine.StatusSuccess
	}
	return engine.StatusNoSupport
}

// InterestDelete dispatches the handler's interest removal. There is no
// status to return; failures are only reported.
func (a *PVAdapter) InterestDelete(ctx context.Context) {
	if a.destroyed.Load() {
		return
	}
	ctx, release := EnterHosted(ctx)
	defer release()

	if err := a.pv.handler.InterestDelete(ctx); err != nil {
		reportUnraisable(a.pv.name, "interestDelete", err)
	}
}

// Destroy runs the handler's teardown and releases the engine's mirrored
// reference exactly once. Repeated calls are no-ops; after the first call no
// further dispatch occurs.
func (a *PVAdapter) Destroy(ctx context.Context) {
	if !a.destroyed.CompareAndSwap(false, true) {
		return
	}

	ctx, release := EnterHosted(ctx)
	defer release()

	if err := a.pv.handler.Destroy(ctx); err != nil {
		reportUnraisable(a.pv.name, "destroy", err)
	}

	// Outstanding async writes die with the PV: the engine abandons their
	// parked requests, so their mirrored references are dropped here.
	a.pendingMu.Lock()
	pending := a.pending
	a.pending = nil
	a.pendingMu.Unlock()
	for w := range pending {
		w.teardown()
	}

	a.pv.owned.release()
}

// bind attaches the adapter to the server that hands it to the engine.
// Rebinding to a different server is a protocol violation.
func (a *PVAdapter) bind(srv *ServerAdapter) error {
	if a.srv.CompareAndSwap(nil, srv) {
		return nil
	}
	if a.srv.Load() == srv {
		return nil
	}
	return errors.Protocol(errors.PhaseAttach, "pv is already attached to a different server")
}

func (a *PVAdapter) adoptAsyncWrite(w *AsyncWrite) {
	w.owned.transfer()
	a.pendingMu.Lock()
	if a.pending == nil {
		a.pending = make(map[*AsyncWrite]struct{})
	}
	a.pending[w] = struct{}{}
	a.pendingMu.Unlock()
}

func (a *PVAdapter) forgetAsyncWrite(w *AsyncWrite) {
	a.pendingMu.Lock()
	delete(a.pending, w)
	a.pendingMu.Unlock()
}
