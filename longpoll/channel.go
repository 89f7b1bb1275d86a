package longpoll

import (
	"context"
	"io"
	"sync"
	"time"
	"unsafe"

	chanselect "github.com/joeycumines/go-chanselect"
)

// ChannelConfig models optional configuration for the Channel function.
type ChannelConfig struct {
	// MaxSize is the absolute maximum number of values to receive. Setting
	// this to a value < 0 will disable the maximum size constraint.
	//
	// Defaults to 16, if 0.
	MaxSize int

	// MinSize is the (target) minimum number of values to receive. If
	// PartialTimeout is configured, the effective minimum size will be 1, if
	// the PartialTimeout is reached.
	//
	// Setting this to a value < 0 will cause the PartialTimeout to start from
	// the call to Channel, and will allow returning without receiving any
	// values. In this scenario, PartialTimeout will apply to the first value.
	//
	// Defaults to 4, if 0.
	MinSize int

	// PartialTimeout is the maximum time to wait for a partial response,
	// defined as a number of received values less than the MinSize. After/if
	// this timeout is reached, the effective minimum size will be reduced, see
	// MinSize for details.
	//
	// Defaults to 50ms, if 0.
	PartialTimeout time.Duration
}

// Source is the chanselect-flavored receive endpoint Channel drains. Any
// flavor's receiver (e.g. *flavors.BoundedReceiver[T], *flavors.
// UnboundedReceiver[T]) satisfies this, which is the entire point of
// generalizing Channel from a native <-chan T: it now long-polls any
// SelectHandle that knows how to read a T, not only a built-in channel.
type Source[T any] interface {
	chanselect.SelectHandle
	Addr() unsafe.Pointer
	Read(tok *chanselect.Token) (T, error)
}

// Channel performs a blocking receive from src, returning as many values as
// possible, given the constraints. If ctx cancels, the error will be
// returned. The cfg parameter is optional, and may be nil, in which case the
// documented defaults will be used. Values will be received from src, and
// passed to handler. Errors from handler will be returned, and cause the call
// to Channel to return.
//
// If src disconnects, and all buffered values are received, Channel will
// return io.EOF. In this scenario, the minimum size may not be reached.
//
// Providing a nil ctx, src, or handler will cause a panic.
func Channel[T any](ctx context.Context, cfg *ChannelConfig, src Source[T], handler func(value T) error) error {
	if ctx == nil {
		panic(`longpoll: nil context`)
	}
	if src == nil {
		panic(`longpoll: nil source`)
	}
	if handler == nil {
		panic(`longpoll: nil handler`)
	}

	// guard context cancel - nice to have consistent behavior (avoid receive if canceled)
	if err := ctx.Err(); err != nil {
		return err
	}

	maxSize := 16
	minSize := 4
	partialTimeout := 50 * time.Millisecond
	if cfg != nil {
		if cfg.MaxSize != 0 {
			maxSize = cfg.MaxSize
		}
		if cfg.MinSize != 0 {
			minSize = cfg.MinSize
		}
		if cfg.PartialTimeout != 0 {
			partialTimeout = cfg.PartialTimeout
		}
	}

	var size int
	var partialDeadline time.Time
	hasPartialDeadline := false
	if partialTimeout > 0 && minSize < 0 {
		// we have a partial timeout, but no minimum size - special case, starts the timeout immediately
		partialDeadline = time.Now().Add(partialTimeout)
		hasPartialDeadline = true
	}

	// receive the minimum number of values (or first value) OR partial timeout OR context cancel
MinSizeLoop:
	for (maxSize < 0 || size < maxSize) && (size < minSize || (size == 0 && hasPartialDeadline)) {
		value, done, err := receiveOne(ctx, src, hasPartialDeadline, partialDeadline)
		if err != nil {
			return err
		}
		if done {
			if err := ctx.Err(); err != nil {
				return err
			}
			break MinSizeLoop
		}

		size++
		if size == 1 && partialTimeout > 0 && !hasPartialDeadline {
			// first value received, start the partial timeout
			partialDeadline = time.Now().Add(partialTimeout)
			hasPartialDeadline = true
		}

		if err := handler(value.(T)); err != nil { //nolint:forcetypeassert
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	// receive what additional values we can, up to the maximum size OR context cancel
MaxSizeLoop:
	for maxSize < 0 || size < maxSize {
		value, done, gotValue, err := tryReceiveOne(ctx, src)
		if err != nil {
			return err
		}
		if done {
			return io.EOF
		}
		if !gotValue {
			if err := ctx.Err(); err != nil {
				return err
			}
			break MaxSizeLoop
		}

		size++
		if err := handler(value.(T)); err != nil { //nolint:forcetypeassert
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}

// receiveOne blocks (optionally up to a partial-response deadline) for
// exactly one value from src, racing ctx's cancellation via ctxHandle. done
// reports a timed-out-without-a-value outcome, distinct from err.
func receiveOne[T any](ctx context.Context, src Source[T], hasDeadline bool, deadline time.Time) (value any, done bool, err error) {
	sel := chanselect.New()
	cxh := newCtxHandle(ctx)
	sel.Add(cxh, unsafe.Pointer(cxh))
	sel.Add(src, src.Addr())

	var op chanselect.SelectedOperation
	if hasDeadline {
		var selErr error
		op, selErr = sel.SelectTimeout(time.Until(deadline))
		if selErr != nil {
			return nil, true, nil
		}
	} else {
		op = sel.Select()
	}

	if op.Index() == 0 {
		cerr := op.Complete(unsafe.Pointer(cxh), func(tok *chanselect.Token) error { return nil })
		if cerr != nil {
			return nil, false, cerr
		}
		if cerr := ctx.Err(); cerr != nil {
			return nil, false, cerr
		}
		return nil, true, nil
	}

	var v T
	cerr := op.Complete(src.Addr(), func(tok *chanselect.Token) error {
		var rerr error
		v, rerr = src.Read(tok)
		return rerr
	})
	if cerr != nil {
		if _, ok := cerr.(chanselect.RecvError); ok {
			return nil, false, io.EOF
		}
		return nil, false, cerr
	}
	return v, false, nil
}

// tryReceiveOne is receiveOne's non-blocking counterpart for the drain-up-
// to-maxSize phase.
func tryReceiveOne[T any](ctx context.Context, src Source[T]) (value any, done bool, gotValue bool, err error) {
	sel := chanselect.New()
	sel.Add(src, src.Addr())
	op, selErr := sel.TrySelect()
	if selErr != nil {
		return nil, false, false, nil
	}

	var v T
	cerr := op.Complete(src.Addr(), func(tok *chanselect.Token) error {
		var rerr error
		v, rerr = src.Read(tok)
		return rerr
	})
	if cerr != nil {
		if _, ok := cerr.(chanselect.RecvError); ok {
			return nil, true, false, nil
		}
		return nil, false, false, cerr
	}
	return v, false, true, nil
}

// ctxHandle adapts a context.Context's cancellation into a chanselect
// SelectHandle, so Channel can race it against a receive in a single Select
// call instead of a hand-rolled native select over ctx.Done().
type ctxHandle struct {
	ctx  context.Context
	stop chan struct{}
	once sync.Once
}

func newCtxHandle(ctx context.Context) *ctxHandle {
	return &ctxHandle{ctx: ctx, stop: make(chan struct{})}
}

func (h *ctxHandle) TrySelect(tok *chanselect.Token) bool {
	if err := h.ctx.Err(); err != nil {
		tok.Value = err
		return true
	}
	return false
}

func (h *ctxHandle) Deadline() (time.Time, bool) { return h.ctx.Deadline() }

func (h *ctxHandle) Register(op chanselectOperation, cx *chanselectContext) bool {
	if h.ctx.Err() != nil {
		return true
	}
	go func() {
		select {
		case <-h.ctx.Done():
			if cx.CommitOperation(op) {
				cx.Unpark()
			}
		case <-h.stop:
		}
	}()
	return false
}

func (h *ctxHandle) Unregister(chanselectOperation) {
	h.once.Do(func() { close(h.stop) })
}

func (h *ctxHandle) Accept(tok *chanselect.Token, _ *chanselectContext) bool {
	return h.TrySelect(tok)
}

func (h *ctxHandle) IsReady() bool { return h.ctx.Err() != nil }

func (h *ctxHandle) Watch(op chanselectOperation, cx *chanselectContext) bool {
	return h.Register(op, cx)
}

func (h *ctxHandle) Unwatch(op chanselectOperation) { h.Unregister(op) }

func (h *ctxHandle) State() uint64 {
	if h.ctx.Err() != nil {
		return 1
	}
	return 0
}

// chanselectOperation/chanselectContext are local aliases so ctxHandle's
// method set reads identically to chanselect.SelectHandle without a second
// import line per method.
type (
	chanselectOperation = chanselect.Operation
	chanselectContext   = chanselect.Context
)
