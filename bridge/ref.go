package bridge

import "sync/atomic"

// Ref is an explicit reference count shared between the hosted runtime's
// memory model and the engine-owned adapters. It starts at one (the
// creator's reference); when the count reaches zero the drop hook runs
// exactly once and the referent is considered collectible.
type Ref struct {
	count atomic.Int64
	drop  func()
}

// NewRef creates a reference handle with a count of one. drop may be nil.
func NewRef(drop func()) *Ref {
	r := &Ref{drop: drop}
	r.count.Store(1)
	return r
}

// Retain increments the count.
func (r *Ref) Retain() {
	r.count.Add(1)
}

// Release decrements the count, running the drop hook when it reaches zero.
func (r *Ref) Release() {
	if r.count.Add(-1) == 0 && r.drop != nil {
		r.drop()
	}
}

// Count returns the current count. It is advisory: the value may change
// concurrently.
func (r *Ref) Count() int64 {
	return r.count.Load()
}

// owned is the single ownership toggle used by every adapter that crosses
// the boundary. While held is set the engine's logical reference is mirrored
// by exactly one extra count on ref; transfer and release are idempotent so
// the mirror can never be added or removed twice.
type owned struct {
	held atomic.Bool
	ref  *Ref
}

// transfer marks the object as engine-held, taking the mirrored reference.
// It reports whether this call performed the transfer.
func (o *owned) transfer() bool {
	if !o.held.CompareAndSwap(false, true) {
		return false
	}
	o.ref.Retain()
	return true
}

// release drops the mirrored reference if the object is engine-held. It
// reports whether this call performed the release.
func (o *owned) release() bool {
	if !o.held.CompareAndSwap(true, false) {
		return false
	}
	o.ref.Release()
	return true
}

// heldByServer reports whether the engine currently holds the object.
func (o *owned) heldByServer() bool {
	return o.held.Load()
}
