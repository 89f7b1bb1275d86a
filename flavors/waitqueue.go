package flavors

import "github.com/joeycumines/go-chanselect"

// waiter is one registered (Register or Watch - the two are structurally
// identical from a flavor's point of view; the difference in driver
// behaviour after wakeup, Accept vs. plain readiness, lives in
// chanselect's driver, not here) entry on an endpoint's wait list.
type waiter struct {
	op chanselect.Operation
	cx *chanselect.Context
}

// waitQueue is an ordered set of parked waiters for one side of a channel.
// Every method here must be called while holding the owning core's mutex.
type waitQueue struct {
	list []waiter
}

func (q *waitQueue) push(op chanselect.Operation, cx *chanselect.Context) {
	q.list = append(q.list, waiter{op: op, cx: cx})
}

// remove is Unregister/Unwatch: idempotent, since a peer may have already
// popped this waiter out via wakeOne.
func (q *waitQueue) remove(op chanselect.Operation) {
	for i, w := range q.list {
		if w.op == op {
			q.list = append(q.list[:i], q.list[i+1:]...)
			return
		}
	}
}

// wakeOne hands one concrete ready counterpart to the first waiter able to
// win the CAS race for its own operation, per spec.md's "(a) CAS the target
// waiter's SelectionState from Waiting to Op(op_id), then (b) dequeue ...
// then (c) unpark". Waiters that lose (already resolved via timeout or a
// non-select direct call elsewhere) are dropped and the next is tried.
func (q *waitQueue) wakeOne() bool {
	for len(q.list) > 0 {
		w := q.list[0]
		q.list = q.list[1:]
		if w.cx.CommitOperation(w.op) {
			w.cx.Unpark()
			return true
		}
	}
	return false
}

// wakeAllDisconnected is called exactly once, when an endpoint becomes
// permanently disconnected: every still-parked waiter is resolved to
// Disconnected (not to any specific operation, since disconnection isn't
// any one waiter's operation) and the list is emptied.
func (q *waitQueue) wakeAllDisconnected() {
	for _, w := range q.list {
		if w.cx.CommitDisconnected() {
			w.cx.Unpark()
		}
	}
	q.list = q.list[:0]
}
