package microbatch

import (
	"context"
	"sync"
	"time"
	"unsafe"

	chanselect "github.com/joeycumines/go-chanselect"
)

// FanInSource is a chanselect-flavored receive endpoint a FanInBatcher can
// drain jobs from, e.g. *flavors.UnboundedReceiver[Job].
type FanInSource[Job any] interface {
	chanselect.SelectHandle
	Addr() unsafe.Pointer
	Read(tok *chanselect.Token) (Job, error)
}

// FanInBatcher batches jobs arriving across a *dynamic* set of job sources,
// added and removed at any time via Add/Remove, into the same batching
// policy (MaxSize/FlushInterval/MaxConcurrency) as Batcher. Where Batcher
// has exactly one fixed jobCh, FanInBatcher builds a [chanselect.Select]
// fresh every poll round over whatever sources are currently registered -
// the dynamic-arity fan-in a fixed native select statement cannot express.
type FanInBatcher[Job any] struct {
	processor      BatchProcessor[Job]
	maxSize        int
	flushInterval  time.Duration
	maxConcurrency int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	sources []FanInSource[Job]
	wake    chan struct{} // buffered 1; a lost signal is harmless, see run
}

// NewFanInBatcher initializes a FanInBatcher, starting with the given
// sources (more may be added later via Add). Config and panic semantics
// mirror NewBatcher.
func NewFanInBatcher[Job any](config *BatcherConfig, processor BatchProcessor[Job], sources ...FanInSource[Job]) *FanInBatcher[Job] {
	if processor == nil {
		panic(`microbatch: nil processor`)
	}

	x := &FanInBatcher[Job]{
		processor:      processor,
		maxSize:        16,
		flushInterval:  time.Millisecond * 50,
		maxConcurrency: 1,
		done:           make(chan struct{}),
		wake:           make(chan struct{}, 1),
		sources:        append([]FanInSource[Job]{}, sources...),
	}

	if config != nil {
		if config.MaxSize != 0 {
			x.maxSize = config.MaxSize
		}
		if config.FlushInterval != 0 {
			x.flushInterval = config.FlushInterval
		}
		if config.MaxConcurrency != 0 {
			x.maxConcurrency = config.MaxConcurrency
		}
	}

	if x.flushInterval <= 0 && x.maxSize <= 0 {
		panic(`microbatch: one of MaxSize or FlushInterval must be specified`)
	}

	x.ctx, x.cancel = context.WithCancel(context.Background())

	go x.run()

	return x
}

// Add registers an additional job source, picked up by the next poll round.
func (x *FanInBatcher[Job]) Add(src FanInSource[Job]) {
	x.mu.Lock()
	x.sources = append(x.sources, src)
	x.mu.Unlock()
	x.signalWake()
}

// Remove unregisters a job source previously passed to Add or the
// constructor, identified by Addr(). A no-op if not currently registered.
func (x *FanInBatcher[Job]) Remove(src FanInSource[Job]) {
	x.mu.Lock()
	for i, s := range x.sources {
		if s.Addr() == src.Addr() {
			x.sources = append(x.sources[:i], x.sources[i+1:]...)
			break
		}
	}
	x.mu.Unlock()
	x.signalWake()
}

func (x *FanInBatcher[Job]) signalWake() {
	select {
	case x.wake <- struct{}{}:
	default:
	}
}

// Close immediately cancels all jobs, and prevents further polling,
// blocking until the FanInBatcher has finished closing.
func (x *FanInBatcher[Job]) Close() error {
	x.cancel()
	<-x.done
	return nil
}

func (x *FanInBatcher[Job]) snapshotSources() []FanInSource[Job] {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]FanInSource[Job]{}, x.sources...)
}

// wakeHandle adapts the signal-only rebuild channel into a SelectHandle. A
// lost race between a background receive and a concurrent deadline is
// harmless: run's loop always rebuilds its Select from the live,
// mutex-guarded source list on its next iteration regardless.
type wakeHandle struct {
	ch   chan struct{}
	stop chan struct{}
	once sync.Once
}

func newWakeHandle(ch chan struct{}) *wakeHandle {
	return &wakeHandle{ch: ch, stop: make(chan struct{})}
}

func (h *wakeHandle) TrySelect(tok *chanselect.Token) bool {
	select {
	case <-h.ch:
		return true
	default:
		return false
	}
}

func (h *wakeHandle) Deadline() (time.Time, bool) { return time.Time{}, false }

func (h *wakeHandle) Register(op chanselect.Operation, cx *chanselect.Context) bool {
	go func() {
		select {
		case <-h.ch:
			if cx.CommitOperation(op) {
				cx.Unpark()
			}
		case <-h.stop:
		}
	}()
	return false
}

func (h *wakeHandle) Unregister(chanselect.Operation) { h.once.Do(func() { close(h.stop) }) }
func (h *wakeHandle) Accept(tok *chanselect.Token, _ *chanselect.Context) bool {
	return h.TrySelect(tok)
}
func (h *wakeHandle) IsReady() bool { return len(h.ch) > 0 }
func (h *wakeHandle) Watch(op chanselect.Operation, cx *chanselect.Context) bool {
	return h.Register(op, cx)
}
func (h *wakeHandle) Unwatch(op chanselect.Operation) { h.Unregister(op) }
func (h *wakeHandle) State() uint64 {
	if len(h.ch) > 0 {
		return 1
	}
	return 0
}

// doneHandle adapts ctx.Done() into a SelectHandle, built fresh every poll
// round like wakeHandle, with the same per-round stop channel so Unregister
// can retire its background watcher goroutine rather than leaking one per
// round.
type doneHandle struct {
	ctx  context.Context
	stop chan struct{}
	once sync.Once
}

func newDoneHandle(ctx context.Context) *doneHandle {
	return &doneHandle{ctx: ctx, stop: make(chan struct{})}
}

func (h *doneHandle) TrySelect(tok *chanselect.Token) bool { return h.ctx.Err() != nil }
func (h *doneHandle) Deadline() (time.Time, bool)          { return time.Time{}, false }
func (h *doneHandle) Register(op chanselect.Operation, cx *chanselect.Context) bool {
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
func (h *doneHandle) Unregister(chanselect.Operation) { h.once.Do(func() { close(h.stop) }) }
func (h *doneHandle) Accept(tok *chanselect.Token, _ *chanselect.Context) bool {
	return h.TrySelect(tok)
}
func (h *doneHandle) IsReady() bool { return h.ctx.Err() != nil }
func (h *doneHandle) Watch(op chanselect.Operation, cx *chanselect.Context) bool {
	return h.Register(op, cx)
}
func (h *doneHandle) Unwatch(chanselect.Operation) {}
func (h *doneHandle) State() uint64 {
	if h.ctx.Err() != nil {
		return 1
	}
	return 0
}

func (x *FanInBatcher[Job]) run() {
	defer close(x.done)
	defer x.cancel()

	var wg sync.WaitGroup
	wg.Add(1)

	var runningBatchCh chan struct{}
	if x.maxConcurrency > 0 {
		runningBatchCh = make(chan struct{}, x.maxConcurrency)
	}

	state := newBatcherState[Job]()

	runBatch := func() {
		if len(state.jobs) == 0 {
			return
		}
		batch := state
		state = newBatcherState[Job]()

		wg.Add(1)
		if runningBatchCh != nil {
			runningBatchCh <- struct{}{}
		}
		go func() {
			defer func() {
				if runningBatchCh != nil {
					<-runningBatchCh
				}
				wg.Done()
			}()
			_ = batch.run(x.ctx, x.processor)
		}()
	}

	defer func() {
		x.cancel()
		runBatch()
		wg.Done()
		wg.Wait()
	}()

	var flushDeadline time.Time
	hasFlushDeadline := false

	for {
		if x.ctx.Err() != nil {
			return
		}

		sel := chanselect.New()
		dh := newDoneHandle(x.ctx)
		doneIdx := sel.Add(dh, unsafe.Pointer(x))
		wh := newWakeHandle(x.wake)
		wakeIdx := sel.Add(wh, unsafe.Pointer(wh))

		sources := x.snapshotSources()
		for _, src := range sources {
			sel.Add(src, src.Addr())
		}

		var op chanselect.SelectedOperation
		var selErr error
		if hasFlushDeadline {
			op, selErr = sel.SelectTimeout(time.Until(flushDeadline))
		} else {
			op = sel.Select()
		}

		if selErr != nil {
			// flush deadline elapsed
			hasFlushDeadline = false
			runBatch()
			continue
		}

		switch {
		case op.Index() == doneIdx:
			_ = op.Complete(unsafe.Pointer(x), func(*chanselect.Token) error { return nil })
			return

		case op.Index() == wakeIdx:
			_ = op.Complete(unsafe.Pointer(wh), func(*chanselect.Token) error { return nil })
			continue

		default:
			src := sources[op.Index()-2]
			var job Job
			cerr := op.Complete(src.Addr(), func(tok *chanselect.Token) error {
				var rerr error
				job, rerr = src.Read(tok)
				return rerr
			})
			if cerr != nil {
				// disconnected source: drop it, nothing more will ever arrive
				x.Remove(src)
				continue
			}

			state.jobs = append(state.jobs, job)

			if x.maxSize > 0 && len(state.jobs) >= x.maxSize {
				runBatch()
				hasFlushDeadline = false
			} else if x.flushInterval > 0 && len(state.jobs) == 1 {
				flushDeadline = time.Now().Add(x.flushInterval)
				hasFlushDeadline = true
			}
		}
	}
}
