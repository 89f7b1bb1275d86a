// Package chanselect implements the core of a multi-way channel selection
// facility: a mechanism by which a goroutine registers interest in a
// dynamic set of channel send/receive operations over heterogeneous channel
// flavors, waits until at least one is executable, and executes exactly
// one, atomically with respect to competing selectors on the same channels.
//
// # Architecture
//
// A [Select] accumulates [SelectHandle] entries (one per send or receive
// operation) in caller-assigned index order. [Select.TrySelect],
// [Select.Select] and [Select.SelectTimeout] dispatch to an internal driver
// that polls every handle, falls back to registering a per-call [Context] on
// each handle's wait list and parking the goroutine, then resolves exactly
// one winner. [Select.TryReady], [Select.Ready] and [Select.ReadyTimeout]
// run the same protocol in a cheaper, non-reserving "watch" mode that only
// reports which operation is ready.
//
// The channel flavors themselves (bounded, unbounded, rendezvous, never,
// tick, after) are not part of this package; package [chanselect/flavors]
// ships a reference implementation of each, used to exercise and test the
// driver end-to-end.
//
// # Concurrency
//
// [Context] is the only state shared between a selecting goroutine and the
// peers racing to complete an operation against it. Its selection slot
// transitions exactly once, monotonically, from waiting to a terminal
// state; that transition is the linearization point of the select call.
// See the [Context] and [SelectHandle] documentation for the full
// registration/commit protocol.
package chanselect
