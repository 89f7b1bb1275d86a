// Package ring implements a growable ring buffer used as the backing store
// for the bounded (array) channel flavor's message slots, and (via
// [github.com/joeycumines/go-chanselect/pacer]) for a single-event sliding
// window.
//
// Adapted from the original module's catrate package's
// ringBuffer[E constraints.Ordered]: the same mask-based wraparound
// indexing and power-of-2-doubling growth strategy, simplified to pure
// FIFO push/pop (Push at the back, Pop from the front) since neither
// caller needs catrate's arbitrary Insert-at-index or ordered Search -
// those existed there to keep a sorted sliding window of event timestamps
// for an arbitrary number of simultaneous rates, which neither caller here
// needs.
package ring

// Ring is a FIFO queue backed by a power-of-2-sized circular buffer that
// doubles in place when full. The zero value is not ready to use; construct
// with New.
type Ring[T any] struct {
	s    []T
	r, w uint
}

// New returns an empty Ring with the given initial capacity, rounded up to
// the next power of 2 (minimum 1).
func New[T any](capacityHint int) *Ring[T] {
	size := 1
	for size < capacityHint {
		size <<= 1
	}
	return &Ring[T]{s: make([]T, size)}
}

func (x *Ring[T]) mask(val uint) uint {
	return val & (uint(len(x.s)) - 1)
}

// Len reports the number of queued elements.
func (x *Ring[T]) Len() int {
	return int(x.w - x.r)
}

// Cap reports the current backing capacity (not a hard limit: Push grows
// it on demand).
func (x *Ring[T]) Cap() int {
	return len(x.s)
}

// Push enqueues value at the back of the queue, growing the backing array
// (doubling it) if it is full.
func (x *Ring[T]) Push(value T) {
	if x.Len() == len(x.s) {
		x.grow()
	}
	x.s[x.mask(x.w)] = value
	x.w++
}

// Pop dequeues and returns the element at the front of the queue. Panics if
// the queue is empty; callers must check Len first.
func (x *Ring[T]) Pop() T {
	if x.Len() == 0 {
		panic("ring: pop from empty queue")
	}
	var zero T
	i := x.mask(x.r)
	v := x.s[i]
	x.s[i] = zero // avoid pinning garbage behind the read cursor
	x.r++
	return v
}

func (x *Ring[T]) grow() {
	old := x.s
	n := len(old)
	if n == 0 {
		n = 1
	}
	s := make([]T, n<<1)
	for i := 0; i < x.Len(); i++ {
		s[i] = old[x.mask(x.r+uint(i))]
	}
	x.s = s
	x.r = 0
	x.w = uint(n)
}
