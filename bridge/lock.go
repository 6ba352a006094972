package bridge

import (
	"context"
	"sync"
)

// ExecLock is the hosted execution lock: a single mutual-exclusion lock that
// must be held whenever hosted handler state is touched. Entry is tracked on
// the context, so a dispatch that calls back into the bridge (a write handler
// posting an event, for example) re-enters without deadlocking.
type ExecLock struct {
	mu sync.Mutex
}

type lockKey struct{}

// Enter acquires the lock unless ctx already marks the hosted region. It
// returns the region context and a release function; the release is a no-op
// for nested entries so it is always safe to defer.
func (l *ExecLock) Enter(ctx context.Context) (context.Context, func()) {
	if l.Held(ctx) {
		return ctx, func() {}
	}
	l.mu.Lock()
	return context.WithValue(ctx, lockKey{}, l), l.mu.Unlock
}

// Held reports whether ctx is inside this lock's hosted region.
func (l *ExecLock) Held(ctx context.Context) bool {
	return ctx.Value(lockKey{}) == l
}

// Yield runs fn with the lock released, re-acquiring it before returning.
// fn receives a context stripped of the region mark, so any bridge call it
// makes takes the lock properly. When ctx does not hold the region, fn simply
// runs. Use this around engine operations that may block.
func (l *ExecLock) Yield(ctx context.Context, fn func(ctx context.Context)) {
	if !l.Held(ctx) {
		fn(ctx)
		return
	}
	l.mu.Unlock()
	defer l.mu.Lock()
	fn(context.WithValue(ctx, lockKey{}, nil))
}

// hostedLock is the process-wide hosted execution lock. Handlers belong to a
// single hosted runtime, so one lock guards them all.
var hostedLock ExecLock

// EnterHosted acquires the hosted execution lock for the returned context.
// See ExecLock.Enter.
func EnterHosted(ctx context.Context) (context.Context, func()) {
	return hostedLock.Enter(ctx)
}

// HostedHeld reports whether ctx is inside the hosted region.
func HostedHeld(ctx context.Context) bool {
	return hostedLock.Held(ctx)
}

// YieldHosted runs fn with the hosted execution lock released. See
// ExecLock.Yield.
func YieldHosted(ctx context.Context, fn func(ctx context.Context)) {
	hostedLock.Yield(ctx, fn)
}
