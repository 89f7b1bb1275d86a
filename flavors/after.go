package flavors

import (
	"sync"
	"time"

	chanselect "github.com/joeycumines/go-chanselect"
)

// After is a handle that becomes ready exactly once, at deadline, and never
// again afterward - the chanselect analogue of time.After. Grounded on
// crossbeam-channel's flavors::after, including its one-shot semantics (a
// real "after" channel delivers exactly one value, then blocks forever).
type After struct {
	mu       sync.Mutex
	deadline time.Time
	fired    bool

	waiters waitQueue
}

// NewAfter returns a handle that becomes ready once, after d elapses.
func NewAfter(d time.Duration) *After {
	return &After{deadline: time.Now().Add(d)}
}

// NewAfterAt returns a handle that becomes ready once, at the given instant.
func NewAfterAt(at time.Time) *After {
	return &After{deadline: at}
}

func (a *After) TrySelect(tok *chanselect.Token) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fired || time.Now().Before(a.deadline) {
		return false
	}
	a.fired = true
	tok.Value = a.deadline
	return true
}

func (a *After) Deadline() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fired {
		return time.Time{}, false
	}
	return a.deadline, true
}

func (a *After) Register(op chanselect.Operation, cx *chanselect.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fired {
		return false
	}
	if !time.Now().Before(a.deadline) {
		return true
	}
	a.waiters.push(op, cx)
	return false
}

func (a *After) Unregister(op chanselect.Operation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.waiters.remove(op)
}

func (a *After) Accept(tok *chanselect.Token, _ *chanselect.Context) bool {
	return a.TrySelect(tok)
}

func (a *After) IsReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.fired && !time.Now().Before(a.deadline)
}

func (a *After) Watch(op chanselect.Operation, cx *chanselect.Context) bool {
	return a.Register(op, cx)
}

func (a *After) Unwatch(op chanselect.Operation) { a.Unregister(op) }

// State is 1 while the deadline has passed and the value is unclaimed, and
// 0 otherwise, so it changes the instant the deadline is crossed, which is
// enough for the non-blocking driver's liveness snapshot: it only needs to
// notice that *something* changed to justify one more poll.
func (a *After) State() uint64 {
	if a.IsReady() {
		return 1
	}
	return 0
}

// Read returns the instant the timer fired.
func (a *After) Read(tok *chanselect.Token) (time.Time, error) {
	return tok.Value.(time.Time), nil
}
