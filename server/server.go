package server

import (
	"context"
	"sync"
	"time"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/cas-bridge/bridge"
	"github.com/wippyai/cas-bridge/ca"
	"github.com/wippyai/cas-bridge/engine"
	"github.com/wippyai/cas-bridge/errors"
)

// processInterval bounds how long one engine process call may block.
const processInterval = 100 * time.Millisecond

// Server is a threaded channel access server. It answers existence and
// attach requests from its PV registry and drives the engine's process loop
// on a dedicated goroutine until Shutdown.
type Server struct {
	eng engine.Engine
	sa  *bridge.ServerAdapter

	mu   sync.Mutex
	pvs  map[string]weak.Pointer[PV]
	down bool

	cancel context.CancelFunc
	done   chan struct{}
}

// ServerOption configures a Server at construction.
type ServerOption func(*serverConfig)

type serverConfig struct {
	codec bridge.Codec
}

// WithCodec replaces the value codec used for all attached PVs.
func WithCodec(c bridge.Codec) ServerOption {
	return func(cfg *serverConfig) { cfg.codec = c }
}

// NewServer attaches to the engine and starts the process loop.
func NewServer(eng engine.Engine, codec bridge.Codec, opts ...ServerOption) (*Server, error) {
	cfg := serverConfig{codec: codec}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		eng:  eng,
		pvs:  make(map[string]weak.Pointer[PV]),
		done: make(chan struct{}),
	}
	sa, err := bridge.NewServerAdapter(&serverHandler{s: s}, eng, cfg.codec)
	if err != nil {
		return nil, err
	}
	s.sa = sa

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.loop(ctx)
	return s, nil
}

// Engine returns the engine this server is attached to.
func (s *Server) Engine() engine.Engine { return s.eng }

// CreatePV creates a PV and registers it under its name. The registry holds
// only a weak reference: the caller keeps the PV alive. Creating a PV with
// an existing name shadows the old one for new connections; established
// connections keep using the old object.
func (s *Server) CreatePV(name string, typ ca.DataType, opts ...PVOption) (*PV, error) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return nil, errors.Shutdown("server is shut down")
	}

	pv, err := NewPV(name, typ, opts...)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.pvs[name] = weak.Make(pv)
	s.mu.Unlock()
	return pv, nil
}

// PVs returns all registered PVs that are still alive.
func (s *Server) PVs() []*PV {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*PV, 0, len(s.pvs))
	for name, wp := range s.pvs {
		if pv := wp.Value(); pv != nil {
			out = append(out, pv)
		} else {
			delete(s.pvs, name)
		}
	}
	return out
}

// Shutdown stops the process loop. No other methods may be called after it
// returns. ctx bounds the wait for the loop to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.down {
		s.mu.Unlock()
		return nil
	}
	s.down = true
	s.mu.Unlock()

	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) lookup(name string) *PV {
	s.mu.Lock()
	defer s.mu.Unlock()
	wp, ok := s.pvs[name]
	if !ok {
		return nil
	}
	pv := wp.Value()
	if pv == nil {
		delete(s.pvs, name)
	}
	return pv
}

func (s *Server) loop(ctx context.Context) {
	defer close(s.done)
	for ctx.Err() == nil {
		if err := s.sa.Process(ctx, processInterval); err != nil {
			if ctx.Err() != nil {
				return
			}
			bridge.Logger().Warn("engine process failed", zap.Error(err))
		}
	}
}

// serverHandler answers engine requests from the registry.
type serverHandler struct {
	bridge.BaseServerHandler
	s *Server
}

func (h *serverHandler) PVExistTest(_ context.Context, _ engine.Addr, name string) (engine.ExistsResponse, error) {
	if h.s.lookup(name) != nil {
		return engine.ExistsHere, nil
	}
	return engine.NotExistsHere, nil
}

func (h *serverHandler) PVAttach(_ context.Context, name string) (any, error) {
	if pv := h.s.lookup(name); pv != nil {
		return pv.bpv, nil
	}
	return nil, nil
}
