package chanselect

import "unsafe"

// Token is opaque scratch space, populated by a flavor's TrySelect or
// Accept, and later consumed by that same flavor's low-level read/write to
// finish the handoff. Its contents are meaningless to the core; it exists
// purely so a flavor can stash whatever it needs (a slot pointer, a
// sequence number, a reservation handle) between winning the race and the
// caller actually invoking SelectedOperation.Complete.
//
// Flavors are free to use any subset of these fields. Ptr and Seq are
// provided as zero-allocation fast paths for the common "pointer to a slot
// plus a generation counter" shape; Value is an escape hatch for anything
// else.
type Token struct {
	Ptr   unsafe.Pointer
	Seq   uint64
	Value any
}
