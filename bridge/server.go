package bridge

import (
	"context"
	"time"

	"github.com/wippyai/cas-bridge/engine"
	"github.com/wippyai/cas-bridge/errors"
)

// ServerAdapter implements engine.Server on top of a hosted ServerHandler.
// It is the entry point the engine uses to discover PVs and the only place
// where a PVAdapter crosses into engine ownership. One instance serves the
// whole process lifetime.
type ServerAdapter struct {
	handler ServerHandler
	eng     engine.Engine
	codec   Codec
}

var _ engine.Server = (*ServerAdapter)(nil)

// NewServerAdapter builds the server-wide adapter and registers it with the
// engine lifecycle.
func NewServerAdapter(h ServerHandler, eng engine.Engine, c Codec) (*ServerAdapter, error) {
	if h == nil {
		return nil, errors.Protocol(errors.PhaseAttach, "server handler must not be nil")
	}
	if eng == nil {
		return nil, errors.Protocol(errors.PhaseAttach, "engine must not be nil")
	}
	if c == nil {
		return nil, errors.Protocol(errors.PhaseAttach, "codec must not be nil")
	}

	sa := &ServerAdapter{
		handler: h,
		eng:     eng,
		codec:   c,
	}
	if err := sa.eng.Attach(sa); err != nil {
		return nil, errors.EngineFailure(errors.PhaseProcess, "attach server adapter", err)
	}
	return sa, nil
}

// Engine returns the engine this adapter is registered with.
func (s *ServerAdapter) Engine() engine.Engine { return s.eng }

// Process drives one engine processing pass. When called from inside the
// hosted region, for instance by a handler driving the engine synchronously,
// the hosted execution lock is released around the blocking call so engine
// dispatches can enter it.
func (s *ServerAdapter) Process(ctx context.Context, timeout time.Duration) error {
	var err error
	YieldHosted(ctx, func(ctx context.Context) {
		err = s.eng.Process(ctx, timeout)
	})
	return err
}

// PVExistTest dispatches the hosted existence test. Any dispatch failure or
// out-of-range answer degrades to "does not exist here": an ambiguous answer
// must never create a phantom PV.
func (s *ServerAdapter) PVExistTest(ctx context.Context, client engine.Addr, name string) engine.ExistsResponse {
	ctx, release := EnterHosted(ctx)
	defer release()

	r, err := s.handler.PVExistTest(ctx, client, name)
	if err != nil {
		reportUnraisable(name, "pvExistTest", err)
		return engine.NotExistsHere
	}
	if r != engine.ExistsHere {
		return engine.NotExistsHere
	}
	return engine.ExistsHere
}

// PVAttach dispatches the hosted attach. A *PV answer transfers ownership to
// the engine and returns its adapter; an engine.AttachResponse passes
// through; every other outcome answers "not found".
func (s *ServerAdapter) PVAttach(ctx context.Context, name string) (engine.PV, engine.AttachResponse) {
	ctx, release := EnterHosted(ctx)
	defer release()

	res, err := s.handler.PVAttach(ctx, name)
	if err != nil {
		reportUnraisable(name, "pvAttach", err)
		return nil, engine.AttachNotFound
	}

	switch v := res.(type) {
	case nil:
		return nil, engine.AttachNotFound
	case *PV:
		if v == nil {
			return nil, engine.AttachNotFound
		}
		return s.giveToServer(name, v)
	case engine.AttachResponse:
		return nil, v
	default:
		reportUnraisable(name, "pvAttach",
			errors.TypeMismatch(errors.PhaseAttach, "attach result must be *PV or engine.AttachResponse", res))
		return nil, engine.AttachNotFound
	}
}

// giveToServer performs the ownership transfer: the engine now holds a
// logical reference to the PV, mirrored exactly once on the hosted side.
func (s *ServerAdapter) giveToServer(name string, pv *PV) (engine.PV, engine.AttachResponse) {
	if pv.adapter.destroyed.Load() {
		reportUnraisable(name, "pvAttach", errors.Destroyed(errors.PhaseAttach, pv.name))
		return nil, engine.AttachNotFound
	}
	if err := pv.adapter.bind(s); err != nil {
		reportUnraisable(name, "pvAttach", err)
		return nil, engine.AttachNotFound
	}
	pv.owned.transfer()
	return pv.adapter, engine.AttachNotFound
}
