package chanselect

import "sync/atomic"

// selState is the value carried by a Context's selection slot. It is one of
// the three sentinels below, or the uint64 form of an [Operation] (always
// >= 3, enforced by operationFromAddr).
//
// State Machine:
//
//	stateWaiting -> stateAborted       [Context.WaitUntil times out, or the owner self-CASes when Register reports ready]
//	stateWaiting -> stateDisconnected  [a flavor reports disconnection as "ready"]
//	stateWaiting -> Operation(op)      [a peer, or the owner itself, commits an operation]
//
// Transitions out of stateWaiting are monotonic: at most one CAS from
// stateWaiting to a terminal value succeeds per call, enforced by
// selSlot.tryTransition.
type selState uint64

const (
	stateWaiting      selState = 0
	stateAborted      selState = 1
	stateDisconnected selState = 2
)

// selSlot is a lock-free, single-writer-per-transition state machine
// modeled on [eventloop.FastState]: a cache-line-padded atomic word with
// CAS-only transitions out of the initial state, and a plain Store for the
// idempotent reset back to it.
type selSlot struct { //nolint:govet
	_ [64]byte // cache line padding before the value
	v atomic.Uint64
	_ [56]byte // pad to complete a 64-byte line (64 - 8)
}

func (s *selSlot) init() {
	s.v.Store(uint64(stateWaiting))
}

// load returns the current state.
func (s *selSlot) load() selState {
	return selState(s.v.Load())
}

// tryTransition attempts to move the slot from stateWaiting to desired. On
// success it returns (desired, true). On failure — the slot already holds a
// terminal value — it returns the observed value and false.
func (s *selSlot) tryTransition(desired selState) (selState, bool) {
	if s.v.CompareAndSwap(uint64(stateWaiting), uint64(desired)) {
		return desired, true
	}
	return selState(s.v.Load()), false
}

// reset restores the slot to stateWaiting. Only the owning goroutine may
// call this, and only once no peer can still be observing or racing on the
// previous terminal value (i.e. after every Register/Watch made during the
// previous round has been undone via Unregister/Unwatch).
func (s *selSlot) reset() {
	s.v.Store(uint64(stateWaiting))
}
