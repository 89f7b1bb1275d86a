package chanselect

import "unsafe"

// Operation identifies a (goroutine, pending channel operation) pair for
// the lifetime of a single select call. Values are derived from the address
// of a handle-list entry that is guaranteed to stay alive for the whole
// call, so peers can race to claim this waiter's specific pending operation
// by comparing integers, without holding a typed reference to it.
//
// Operation values are never equal to any of the three [selState] sentinels
// (stateWaiting, stateAborted, stateDisconnected): see operationFromAddr.
type Operation uintptr

// operationFromAddr turns a live pointer into an [Operation]. addr must
// point at memory that outlives the select call (a handle-list entry on the
// selector's stack, in practice). Panics if the resulting value would
// collide with a selState sentinel; in practice this is unreachable for any
// real address, and exists only to document and guard the invariant.
func operationFromAddr(addr unsafe.Pointer) Operation {
	op := Operation(uintptr(addr))
	if op < 3 {
		panic("chanselect: operation identity collides with a sentinel value")
	}
	return op
}
