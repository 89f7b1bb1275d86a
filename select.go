package chanselect

import (
	"runtime"
	"time"
	"unsafe"
)

// Select accumulates channel operations (of any flavor) and dispatches to
// the driver to wait until one is executable, then executes exactly one.
// Flavor packages layer typed Send/Recv helpers over [Select.Add]; see
// [chanselect/flavors] for a reference set.
//
// The zero value is ready to use.
type Select struct {
	handles []handleEntry
}

// New returns an empty Select. Equivalent to the zero value; provided for
// parity with the flavor-sugar constructors.
func New() *Select {
	return &Select{}
}

// Add registers a send or receive operation against h, identified
// externally by addr (the endpoint's own address, used only so
// SelectedOperation.Complete can assert the right endpoint was passed back
// in). Returns the operation's caller-visible, stable index.
func (s *Select) Add(h SelectHandle, addr unsafe.Pointer) int {
	i := len(s.handles)
	s.handles = append(s.handles, handleEntry{handle: h, index: i, addr: addr})
	return i
}

// Len reports the number of operations added so far.
func (s *Select) Len() int {
	return len(s.handles)
}

// TrySelect attempts to select one of the operations without blocking. If
// multiple are ready, a uniformly random one is chosen.
func (s *Select) TrySelect() (SelectedOperation, error) {
	res, ok := runSelect(s.handles, selTimeout{mode: timeoutNow})
	if !ok {
		return SelectedOperation{}, TrySelectError{}
	}
	return newSelectedOperation(res), nil
}

// Select blocks until one of the operations becomes ready, and selects it.
// Panics if no operations have been added.
func (s *Select) Select() SelectedOperation {
	if len(s.handles) == 0 {
		panic("chanselect: Select called with no operations registered")
	}
	res, ok := runSelect(s.handles, selTimeout{mode: timeoutNever})
	if !ok {
		// unreachable: with timeoutNever, runSelect loops until it has a
		// result (an empty handle list, rejected above, blocks forever).
		panic("chanselect: internal error: blocking select returned no result")
	}
	return newSelectedOperation(res)
}

// SelectTimeout blocks for up to timeout until one of the operations
// becomes ready, and selects it.
func (s *Select) SelectTimeout(timeout time.Duration) (SelectedOperation, error) {
	res, ok := runSelect(s.handles, selTimeout{mode: timeoutAt, at: time.Now().Add(timeout)})
	if !ok {
		return SelectedOperation{}, SelectTimeoutError{}
	}
	return newSelectedOperation(res), nil
}

// TryReady attempts to find a ready operation without blocking, reporting
// only its index: no Token is produced and no operation is reserved.
func (s *Select) TryReady() (int, error) {
	i, ok := runReady(s.handles, selTimeout{mode: timeoutNow})
	if !ok {
		return 0, TryReadyError{}
	}
	return i, nil
}

// Ready blocks until one of the operations becomes ready, reporting only
// its index. Panics if no operations have been added.
func (s *Select) Ready() int {
	if len(s.handles) == 0 {
		panic("chanselect: Ready called with no operations registered")
	}
	i, ok := runReady(s.handles, selTimeout{mode: timeoutNever})
	if !ok {
		panic("chanselect: internal error: blocking ready returned no result")
	}
	return i
}

// ReadyTimeout blocks for up to timeout until one of the operations becomes
// ready, reporting only its index.
func (s *Select) ReadyTimeout(timeout time.Duration) (int, error) {
	i, ok := runReady(s.handles, selTimeout{mode: timeoutAt, at: time.Now().Add(timeout)})
	if !ok {
		return 0, ReadyTimeoutError{}
	}
	return i, nil
}

// SelectedOperation is a one-shot completion token returned by a successful
// select call. It MUST be completed by calling Complete (or a flavor's
// typed Send/Recv sugar, which calls Complete internally) exactly once.
//
// Go has no synchronous destructors, so "dropping without completing" is
// enforced two ways: synchronously, any attempt to Complete an already-
// completed (or never-obtained) operation panics; and best-effort, via
// runtime.AddCleanup, which panics if the operation is garbage collected
// while still outstanding. The latter is inherently non-deterministic
// (GC-timing-dependent) and exists to catch the common "forgot to finish
// it" bug in tests and during development, not as a load-bearing guarantee.
type SelectedOperation struct {
	state *selectedOpState
}

type selectedOpState struct {
	token     Token
	index     int
	addr      unsafe.Pointer
	completed *bool
}

func newSelectedOperation(res selectResult) SelectedOperation {
	// completed is allocated separately from st, rather than as a field of
	// it, because runtime.AddCleanup's cleanup closure (and its argument)
	// must not reference the object it's attached to.
	completed := new(bool)
	st := &selectedOpState{token: res.token, index: res.index, addr: res.addr, completed: completed}
	runtime.AddCleanup(st, func(completed *bool) {
		if !*completed {
			panic("chanselect: SelectedOperation garbage collected without being completed")
		}
	}, completed)
	return SelectedOperation{state: st}
}

// Index returns the caller-assigned index of the selected operation.
func (op SelectedOperation) Index() int {
	return op.state.index
}

// Complete is the flavor-agnostic completion primitive: it asserts addr
// matches the endpoint originally passed to Select.Add, then invokes fn
// with the operation's Token, marking the operation completed regardless
// of fn's outcome. Flavor packages call this from their typed Send/Recv
// helpers; it is exported so a custom flavor outside this module can do
// the same.
func (op SelectedOperation) Complete(addr unsafe.Pointer, fn func(tok *Token) error) error {
	if addr != op.state.addr {
		panic("chanselect: completed a SelectedOperation with the wrong endpoint")
	}
	if *op.state.completed {
		panic("chanselect: SelectedOperation already completed")
	}
	*op.state.completed = true
	return fn(&op.state.token)
}
