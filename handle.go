package chanselect

import "time"

// SelectHandle is the contract every channel endpoint (send or receive, any
// flavor) must satisfy so the driver can probe, register, wake, and commit
// operations against it. Implementations live in flavor packages (see
// [chanselect/flavors] for a reference set); this package only consumes the
// contract.
//
// Implementations must guarantee: if Register or Watch returns true, the
// Context passed to it has NOT been left enqueued on the endpoint's wait
// list (either it was never enqueued, or it was already dequeued before
// returning). For every call to Register that returned false, the selector
// will call Unregister exactly once before reusing the Context; Unregister
// and Unwatch must be idempotent, since a peer may have already dequeued
// the waiter by the time the selector calls them.
//
// A flavor whose Accept returns false after a genuinely non-stale wakeup
// (the Context's slot names an Operation belonging to this endpoint, yet
// Accept fails) must ensure that wakeup is nonetheless a stale one in
// practice — i.e. some other concurrent winner is making progress and a
// subsequent retry by this selector, or progress elsewhere, is guaranteed.
// The core treats such a case as stale and loops; it never livelocks on its
// own, but a flavor that violates this can.
type SelectHandle interface {
	// TrySelect makes a lock-free attempt to grab a ready counterpart for
	// this operation, populating tok on success. Must not block.
	TrySelect(tok *Token) bool

	// Deadline reports a flavor-imposed deadline (e.g. a timer channel),
	// if any.
	Deadline() (deadline time.Time, ok bool)

	// Register enqueues cx on the endpoint's wait list for op. Returns true
	// iff the endpoint was already ready, in which case no registration was
	// performed (per the contract above).
	Register(op Operation, cx *Context) bool

	// Unregister removes a previously registered waiter for op. Idempotent
	// if the waiter is no longer present.
	Unregister(op Operation)

	// Accept is called after cx has been woken for op; it finalizes the
	// handoff and populates tok. May return false if the wakeup was stale.
	Accept(tok *Token, cx *Context) bool

	// IsReady is a cheap, side-effect-free readiness probe.
	IsReady() bool

	// Watch is the readiness-only analogue of Register, used by the
	// run-ready driver: it requests notification without reserving a slot
	// or message.
	Watch(op Operation, cx *Context) bool

	// Unwatch is the readiness-only analogue of Unregister.
	Unwatch(op Operation)

	// State returns a monotone-ish activity counter for the opposite side
	// of the channel, used by the non-blocking driver to detect quiescence
	// without spinning forever.
	State() uint64
}
