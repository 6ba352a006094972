package enginetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wippyai/cas-bridge/ca"
	"github.com/wippyai/cas-bridge/engine"
)

// DefaultClientAddr is the address loopback requests claim to come from.
var DefaultClientAddr = engine.Addr{Host: 0x7f000001, Port: 5064}

// PostedEvent is one event delivered through PostEvent.
type PostedEvent struct {
	PV   string
	Mask ca.EventMask
	Buf  engine.TypedBuffer
}

// Reply is a future resolved when the engine dispatches the request.
type Reply[T any] struct {
	ch chan T
}

func newReply[T any]() *Reply[T] {
	return &Reply[T]{ch: make(chan T, 1)}
}

func (r *Reply[T]) resolve(v T) {
	r.ch <- v
}

// Wait blocks until the reply is resolved.
func (r *Reply[T]) Wait() T {
	return <-r.ch
}

// TryWait waits up to d for the reply.
func (r *Reply[T]) TryWait(d time.Duration) (T, bool) {
	select {
	case v := <-r.ch:
		return v, true
	case <-time.After(d):
		var zero T
		return zero, false
	}
}

// GetResult is the outcome of a Get request.
type GetResult struct {
	Status engine.Status
	Buf    engine.TypedBuffer
}

// Loopback is an in-memory engine. Requests queue up until Process runs
// them on the calling goroutine.
type Loopback struct {
	mu       sync.Mutex
	server   engine.Server
	queue    []func(ctx context.Context)
	wake     chan struct{}
	events   []PostedEvent
	subs     map[*subscription]struct{}
	attached map[engine.PV]struct{}
}

type subscription struct {
	pv string
	ch chan PostedEvent
}

// NewLoopback creates an empty loopback engine.
func NewLoopback() *Loopback {
	return &Loopback{
		wake:     make(chan struct{}, 1),
		subs:     make(map[*subscription]struct{}),
		attached: make(map[engine.PV]struct{}),
	}
}

var _ engine.Engine = (*Loopback)(nil)

// Attach registers the server-wide adapter. It may be called once.
func (l *Loopback) Attach(s engine.Server) error {
	if s == nil {
		return fmt.Errorf("server must not be nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.server != nil {
		return fmt.Errorf("server already attached")
	}
	l.server = s
	return nil
}

// Process dispatches queued requests. It returns as soon as work was done,
// or when the timeout elapses with the queue empty.
func (l *Loopback) Process(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ops := l.take()
		if len(ops) > 0 {
			for _, op := range ops {
				op(ctx)
			}
			return nil
		}

		remain := time.Until(deadline)
		if remain <= 0 {
			return nil
		}
		timer := time.NewTimer(remain)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-l.wake:
			timer.Stop()
		case <-timer.C:
			return nil
		}
	}
}

// PostEvent records the event and fans it out to matching monitors.
func (l *Loopback) PostEvent(pvName string, mask ca.EventMask, buf *engine.TypedBuffer) error {
	if buf == nil {
		return fmt.Errorf("event buffer must not be nil")
	}
	ev := PostedEvent{PV: pvName, Mask: mask, Buf: *buf}

	l.mu.Lock()
	l.events = append(l.events, ev)
	var targets []chan PostedEvent
	for sub := range l.subs {
		if sub.pv == pvName {
			targets = append(targets, sub.ch)
		}
	}
	l.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- ev:
		default: // slow monitor, drop
		}
	}
	return nil
}

// PostCompletion resolves the parked request identified by tok.
func (l *Loopback) PostCompletion(tok engine.Token, status engine.Status) (engine.PostResult, error) {
	pp, ok := tok.(*pendingPut)
	if !ok {
		return engine.PostRedundant, fmt.Errorf("unknown completion token %T", tok)
	}
	return pp.complete(status), nil
}

// RegisteredEvents reports the full event set.
func (l *Loopback) RegisteredEvents() ca.EventMask {
	return ca.EventValue | ca.EventLog | ca.EventAlarm | ca.EventProperty
}

// Events returns a snapshot of every event posted so far.
func (l *Loopback) Events() []PostedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]PostedEvent(nil), l.events...)
}

// Shutdown destroys every attached PV, the engine-driven teardown path.
func (l *Loopback) Shutdown(ctx context.Context) {
	l.mu.Lock()
	pvs := l.attached
	l.attached = make(map[engine.PV]struct{})
	l.mu.Unlock()

	for pv := range pvs {
		pv.Destroy(ctx)
	}
}

// Search enqueues an existence test.
func (l *Loopback) Search(name string) *Reply[engine.ExistsResponse] {
	r := newReply[engine.ExistsResponse]()
	l.enqueue(func(ctx context.Context) {
		s := l.serverAdapter()
		if s == nil {
			r.resolve(engine.NotExistsHere)
			return
		}
		r.resolve(s.PVExistTest(ctx, DefaultClientAddr, name))
	})
	return r
}

// Connect enqueues an attach. The reply carries nil when nothing attached.
func (l *Loopback) Connect(name string) *Reply[*Channel] {
	r := newReply[*Channel]()
	l.enqueue(func(ctx context.Context) {
		s := l.serverAdapter()
		if s == nil {
			r.resolve(nil)
			return
		}
		pv, _ := s.PVAttach(ctx, name)
		if pv == nil {
			r.resolve(nil)
			return
		}
		l.mu.Lock()
		l.attached[pv] = struct{}{}
		l.mu.Unlock()
		r.resolve(&Channel{lb: l, pv: pv})
	})
	return r
}

func (l *Loopback) serverAdapter() engine.Server {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.server
}

func (l *Loopback) enqueue(op func(ctx context.Context)) {
	l.mu.Lock()
	l.queue = append(l.queue, op)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loopback) take() []func(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ops := l.queue
	l.queue = nil
	return ops
}

// Channel is a connected PV from the client's point of view.
type Channel struct {
	lb *Loopback
	pv engine.PV
}

// PV exposes the attached adapter for direct assertions.
func (c *Channel) PV() engine.PV { return c.pv }

// Name returns the PV name.
func (c *Channel) Name() string { return c.pv.Name() }

// Get enqueues a read.
func (c *Channel) Get() *Reply[GetResult] {
	r := newReply[GetResult]()
	c.lb.enqueue(func(ctx context.Context) {
		var res GetResult
		res.Status = c.pv.Read(ctx, &res.Buf)
		r.resolve(res)
	})
	return r
}

// Put enqueues a write. The reply resolves immediately for synchronous
// handlers, or when the deferred completion is posted.
func (c *Channel) Put(buf engine.TypedBuffer) *Reply[engine.Status] {
	r := newReply[engine.Status]()
	pp := &pendingPut{reply: r}
	c.lb.enqueue(func(ctx context.Context) {
		st := c.pv.Write(ctx, &buf, engine.Token(pp))
		if st != engine.StatusAsyncCompletion {
			pp.complete(st)
		}
	})
	return r
}

// Monitor enqueues an interest registration. Events for the PV flow into
// the returned channel until Unmonitor.
func (c *Channel) Monitor(buffer int) (*Reply[engine.Status], <-chan PostedEvent) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscription{pv: c.pv.Name(), ch: make(chan PostedEvent, buffer)}
	r := newReply[engine.Status]()
	c.lb.enqueue(func(ctx context.Context) {
		st := c.pv.InterestRegister(ctx)
		if st == engine.StatusSuccess {
			c.lb.mu.Lock()
			c.lb.subs[sub] = struct{}{}
			c.lb.mu.Unlock()
		}
		r.resolve(st)
	})
	return r, sub.ch
}

// Unmonitor enqueues an interest removal and stops all monitors for the PV.
func (c *Channel) Unmonitor() *Reply[struct{}] {
	r := newReply[struct{}]()
	c.lb.enqueue(func(ctx context.Context) {
		c.pv.InterestDelete(ctx)
		c.lb.mu.Lock()
		for sub := range c.lb.subs {
			if sub.pv == c.pv.Name() {
				delete(c.lb.subs, sub)
			}
		}
		c.lb.mu.Unlock()
		r.resolve(struct{}{})
	})
	return r
}

// Destroy enqueues the engine-side teardown of the PV.
func (c *Channel) Destroy() *Reply[struct{}] {
	r := newReply[struct{}]()
	c.lb.enqueue(func(ctx context.Context) {
		c.pv.Destroy(ctx)
		c.lb.mu.Lock()
		delete(c.lb.attached, c.pv)
		c.lb.mu.Unlock()
		r.resolve(struct{}{})
	})
	return r
}

// pendingPut parks one write until its completion is posted.
type pendingPut struct {
	done  atomic.Bool
	reply *Reply[engine.Status]
}

func (p *pendingPut) complete(st engine.Status) engine.PostResult {
	if !p.done.CompareAndSwap(false, true) {
		return engine.PostRedundant
	}
	p.reply.resolve(st)
	return engine.PostDelivered
}
