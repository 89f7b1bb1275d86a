package chanselect

import (
	"sync"
	"sync/atomic"
	"time"
)

// Context is the per-call coordination object a selecting goroutine parks
// on, and the object peers race to commit an operation against. It carries
// the selection slot (the single atomic word that is this call's
// linearization point), a reusable wake signal, and a debug identifier.
//
// Go exposes no goroutine-local storage and no portable user-space
// park/unpark primitive, so unlike the per-thread, created-once,
// lives-forever Context described by the data model, instances here are
// drawn from a [sync.Pool] for the duration of one blocking call and
// returned afterward (see acquireContext/releaseContext). Every invariant
// that matters — exclusive ownership by the calling goroutine for the
// duration of the call, monotonic single-winner transitions, idempotent
// unregistration — holds regardless of whether the Context outlives the
// call or not.
type Context struct { //nolint:govet
	slot selSlot
	wake chan struct{} // 1-buffered; a send is a wakeup, draining resets it
	id   uint64
}

var contextIDCounter atomic.Uint64

// nextContextID returns a process-wide monotonic debug identifier. This is
// not a goroutine/thread id (Go has no public API for one); it merely gives
// log lines and panics something stable to correlate by.
func nextContextID() uint64 {
	return contextIDCounter.Add(1)
}

var contextPool = sync.Pool{
	New: func() any {
		cx := &Context{
			wake: make(chan struct{}, 1),
			id:   nextContextID(),
		}
		cx.slot.init()
		return cx
	},
}

// acquireContext borrows a Context for the duration of one blocking select
// or ready call.
func acquireContext() *Context {
	return contextPool.Get().(*Context)
}

// releaseContext returns a Context to the pool. The caller must have
// already called Reset and must hold no outstanding registrations.
func releaseContext(cx *Context) {
	contextPool.Put(cx)
}

// ID returns the Context's debug identifier, stable for its lifetime in the
// pool (which may span multiple select calls).
func (cx *Context) ID() uint64 {
	return cx.id
}

// TrySelect attempts to move the selection slot from waiting to desired.
// This is the single serialization point that picks the winner among any
// number of racing peers plus the owning goroutine's own timeout. On
// success it reports (desired, true). On failure it reports the state a
// peer (or a prior call) already committed, and false.
func (cx *Context) TrySelect(desired selState) (selState, bool) {
	return cx.slot.tryTransition(desired)
}

// Selected returns the current value of the selection slot without
// attempting a transition.
func (cx *Context) Selected() selState {
	return cx.slot.load()
}

// Unpark wakes the goroutine parked in WaitUntil. Called by a peer after it
// has CASed the slot away from waiting; safe to call even if nobody is
// currently parked (the buffered send is simply consumed by the next
// WaitUntil, which is harmless because WaitUntil always re-checks Selected
// first).
func (cx *Context) Unpark() {
	select {
	case cx.wake <- struct{}{}:
	default:
	}
}

// CommitOperation is the mechanism a flavor uses to hand a parked waiter a
// ready counterpart: it attempts to CAS cx's slot from waiting to op,
// returning true if this call won the race. On success the caller (the
// flavor) must also dequeue cx from its wait list and call Unpark.
func (cx *Context) CommitOperation(op Operation) bool {
	_, ok := cx.TrySelect(selState(op))
	return ok
}

// CommitDisconnected is CommitOperation's counterpart for disconnection: a
// flavor calls this on every waiter still on its list when it becomes
// permanently disconnected, since disconnection isn't any one waiter's
// specific operation. The driver resolves stateDisconnected by falling
// through to the outer loop's next poll, where the now-disconnected
// endpoint's TrySelect/IsReady reports ready.
func (cx *Context) CommitDisconnected() bool {
	_, ok := cx.TrySelect(stateDisconnected)
	return ok
}

// Reset restores the selection slot to waiting and drains any stale wakeup,
// readying the Context for reuse. Only the owning goroutine may call this,
// after every registration made during the just-finished round has been
// unwound.
func (cx *Context) Reset() {
	cx.slot.reset()
	select {
	case <-cx.wake:
	default:
	}
}

// WaitUntil parks the calling goroutine until either the selection slot is
// no longer waiting, or deadline elapses (when hasDeadline is true). On
// timeout it makes a single self-inflicted attempt to CAS the slot to
// stateAborted, then returns whatever is then observed: if a peer won the
// race in the meantime, that outcome is returned instead, so the caller
// always sees exactly one terminal state regardless of who set it.
func (cx *Context) WaitUntil(deadline time.Time, hasDeadline bool) selState {
	if s := cx.Selected(); s != stateWaiting {
		return s
	}

	if !hasDeadline {
		<-cx.wake
		return cx.Selected()
	}

	d := time.Until(deadline)
	if d <= 0 {
		if s, ok := cx.TrySelect(stateAborted); ok {
			return s
		}
		return cx.Selected()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-cx.wake:
		return cx.Selected()
	case <-timer.C:
		if s, ok := cx.TrySelect(stateAborted); ok {
			return s
		}
		return cx.Selected()
	}
}
