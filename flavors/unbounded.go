package flavors

import (
	"sync"
	"time"
	"unsafe"

	chanselect "github.com/joeycumines/go-chanselect"
)

// unboundedCore backs one unlimited-capacity (list flavor) channel. Grounded
// on crossbeam-channel's flavors::list: the send side has no capacity limit,
// so it is unconditionally ready (Register/Watch/TrySelect never need to
// enqueue a sender); only the receive side ever waits.
type unboundedCore[T any] struct {
	mu     sync.Mutex
	q      []T
	closed bool

	recvWaiters waitQueue // receivers waiting for a message

	sendActivity uint64
	recvActivity uint64
}

// UnboundedSender is the send endpoint of an unbounded channel.
type UnboundedSender[T any] struct{ core *unboundedCore[T] }

// UnboundedReceiver is the receive endpoint of an unbounded channel.
type UnboundedReceiver[T any] struct{ core *unboundedCore[T] }

// NewUnbounded returns the two endpoints of a new unlimited-capacity
// channel.
func NewUnbounded[T any]() (*UnboundedSender[T], *UnboundedReceiver[T]) {
	core := &unboundedCore[T]{}
	return &UnboundedSender[T]{core: core}, &UnboundedReceiver[T]{core: core}
}

func (s *UnboundedSender[T]) Addr() unsafe.Pointer { return unsafe.Pointer(s) }
func (r *UnboundedReceiver[T]) Addr() unsafe.Pointer { return unsafe.Pointer(r) }

// Close marks the channel permanently disconnected.
func (s *UnboundedSender[T]) Close() { s.core.close() }

// Close marks the channel permanently disconnected.
func (r *UnboundedReceiver[T]) Close() { r.core.close() }

func (c *unboundedCore[T]) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.sendActivity++
	c.recvActivity++
	c.recvWaiters.wakeAllDisconnected()
}

func (s *UnboundedSender[T]) TrySelect(tok *chanselect.Token) bool {
	tok.Value = sendReady{}
	return true
}

func (s *UnboundedSender[T]) Deadline() (time.Time, bool) { return time.Time{}, false }

func (s *UnboundedSender[T]) Register(chanselect.Operation, *chanselect.Context) bool { return true }

func (s *UnboundedSender[T]) Unregister(chanselect.Operation) {}

func (s *UnboundedSender[T]) Accept(tok *chanselect.Token, _ *chanselect.Context) bool {
	return s.TrySelect(tok)
}

func (s *UnboundedSender[T]) IsReady() bool { return true }

func (s *UnboundedSender[T]) Watch(op chanselect.Operation, cx *chanselect.Context) bool {
	return true
}

func (s *UnboundedSender[T]) Unwatch(chanselect.Operation) {}

func (s *UnboundedSender[T]) State() uint64 {
	c := s.core
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recvActivity
}

// Write appends value to the queue, or reports SendError if the channel has
// been closed.
func (s *UnboundedSender[T]) Write(_ *chanselect.Token, value T) error {
	c := s.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return chanselect.SendError[T]{Value: value}
	}
	c.q = append(c.q, value)
	c.sendActivity++
	c.recvWaiters.wakeOne()
	return nil
}

// Send appends value, or reports SendError if the channel is closed. Never
// blocks waiting for room - there is none to wait for.
func (s *UnboundedSender[T]) Send(value T) error {
	sel := chanselect.New()
	sel.Add(s, s.Addr())
	op := sel.Select()
	return op.Complete(s.Addr(), func(tok *chanselect.Token) error {
		return s.Write(tok, value)
	})
}

func (r *UnboundedReceiver[T]) TrySelect(tok *chanselect.Token) bool {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.q) > 0 {
		v := c.q[0]
		c.q[0] = *new(T)
		c.q = c.q[1:]
		c.recvActivity++
		tok.Value = recvResult[T]{value: v}
		return true
	}
	if c.closed {
		tok.Value = recvResult[T]{closed: true}
		return true
	}
	return false
}

func (r *UnboundedReceiver[T]) Deadline() (time.Time, bool) { return time.Time{}, false }

func (r *UnboundedReceiver[T]) Register(op chanselect.Operation, cx *chanselect.Context) bool {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.q) > 0 || c.closed {
		return true
	}
	c.recvWaiters.push(op, cx)
	return false
}

func (r *UnboundedReceiver[T]) Unregister(op chanselect.Operation) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recvWaiters.remove(op)
}

func (r *UnboundedReceiver[T]) Accept(tok *chanselect.Token, _ *chanselect.Context) bool {
	return r.TrySelect(tok)
}

func (r *UnboundedReceiver[T]) IsReady() bool {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.q) > 0 || c.closed
}

func (r *UnboundedReceiver[T]) Watch(op chanselect.Operation, cx *chanselect.Context) bool {
	return r.Register(op, cx)
}

func (r *UnboundedReceiver[T]) Unwatch(op chanselect.Operation) { r.Unregister(op) }

func (r *UnboundedReceiver[T]) State() uint64 {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendActivity
}

// Read finishes a receive reserved by a prior successful TrySelect/Accept.
func (r *UnboundedReceiver[T]) Read(tok *chanselect.Token) (T, error) {
	res := tok.Value.(recvResult[T])
	if res.closed {
		var zero T
		return zero, chanselect.RecvError{}
	}
	return res.value, nil
}

// Recv blocks until a value is available or the channel is disconnected.
func (r *UnboundedReceiver[T]) Recv() (T, error) {
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
func (r *UnboundedReceiver[T]) TryRecv() (T, error) {
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
