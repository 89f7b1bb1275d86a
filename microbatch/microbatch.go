package microbatch

import (
	"context"
	"errors"
	"sync"
	"time"
	"unsafe"

	chanselect "github.com/joeycumines/go-chanselect"
	"github.com/joeycumines/go-chanselect/flavors"
)

type (
	// BatcherConfig models optional configuration, for NewBatcher.
	BatcherConfig struct {
		// MaxSize restricts the maximum number of jobs per batch, if positive.
		// **Defaults to 16, if 0, or BatcherConfig is nil.**
		//
		// WARNING: NewBatcher will panic if both MaxSize and FlushInterval are
		// disabled.
		MaxSize int

		// FlushInterval specifies the maximum duration before an "incomplete"
		// batch is passed to the BatchProcessor, if positive.
		// **Defaults to 50ms, if 0, or BatcherConfig is nil.**
		// If MaxSize is specified, time-based flushing can be disabled, by
		// setting this <= 0.
		//
		// WARNING: NewBatcher will panic if both MaxSize and FlushInterval are
		// disabled.
		FlushInterval time.Duration

		// MaxConcurrency specifies the maximum number of concurrent
		// BatchProcessor calls, able to be made by the Batcher, if positive.
		// **Defaults to 1, if 0, or BatcherConfig is nil.**
		MaxConcurrency int
	}

	// BatchProcessor runs jobs, using arbitrary behavior. Individual job
	// results (etc) should be assigned to the jobs themselves. Any returned
	// error will be propagated via JobResult.Wait.
	BatchProcessor[Job any] func(ctx context.Context, jobs []Job) error

	// Batcher accepts jobs, batching them into small groups.
	// Instances must be initialized using the NewBatcher factory.
	//
	// Submit and the batching loop (run) rendezvous through a
	// [flavors.UnboundedSender]/[flavors.UnboundedReceiver] pair rather than
	// a bare `chan jobEnvelope[Job]`: run's internal multiplexing (the next
	// submitted job, cancellation, a pending flush deadline) is expressed as
	// a [chanselect.Select] over those flavors, the same facility
	// [FanInBatcher] uses for its dynamic source list, rather than a native
	// Go select statement fixed to this one source.
	Batcher[Job any] struct {
		// betteralign:ignore

		processor      BatchProcessor[Job] // configurable
		maxSize        int                 // configurable
		flushInterval  time.Duration       // configurable
		maxConcurrency int                 // configurable
		ctx            context.Context
		cancel         context.CancelFunc
		done           chan struct{}
		stopped        chan struct{}
		stopOnce       sync.Once
		jobSender      *flavors.UnboundedSender[jobEnvelope[Job]]
		jobReceiver    *flavors.UnboundedReceiver[jobEnvelope[Job]]
		state          *batcherState[Job] // pending batch, also used for result
	}

	// jobEnvelope pairs a submitted job with the reply slot Submit is
	// parked on, so an arbitrary number of concurrent Submit calls can share
	// the single jobReceiver without needing a shared reply channel (and the
	// misattribution risk that would bring: two Submit calls could otherwise
	// race to receive each other's acknowledgement).
	jobEnvelope[Job any] struct {
		job   Job
		reply chan *batcherState[Job]
	}

	// batcherState models a pending batch / invocation
	batcherState[Job any] struct {
		err  error
		done chan struct{}
		jobs []Job
	}

	// JobResult models a scheduled job, providing a Wait method that should
	// be called prior to accessing any output/result, which the BatchProcessor
	// may set on the Job.
	//
	// WARNING: The actual value of the Job field will not be modified, meaning
	// any return values from BatchProcessor must be by references available
	// via the Job value.
	JobResult[Job any] struct {
		// Job is the pending job.
		//
		// WARNING: Consider that it may be accessed by the batch processor -
		// consider the implications, e.g. race conditions, if interacting with
		// internal state.
		Job Job

		// only done is allowed to be accessed, until done
		batch *batcherState[Job]
	}
)

// NewBatcher initializes a new Batcher, using the provided BatcherConfig and
// BatchProcessor. The provided config may be nil. A panic will occur if
// processor is nil, or invalid config is provided.
//
// The Batcher.Close method and/or Batcher.Shutdown method should be called
// when the Batcher is no longer needed.
func NewBatcher[Job any](config *BatcherConfig, processor BatchProcessor[Job]) *Batcher[Job] {
	if processor == nil {
		panic(`microbatch: nil processor`)
	}

	jobSender, jobReceiver := flavors.NewUnbounded[jobEnvelope[Job]]()

	batcher := Batcher[Job]{
		processor:      processor,
		maxSize:        16,
		flushInterval:  time.Millisecond * 50,
		maxConcurrency: 1,
		state:          newBatcherState[Job](),
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
		jobSender:      jobSender,
		jobReceiver:    jobReceiver,
	}

	if config != nil {
		if config.MaxSize != 0 {
			batcher.maxSize = config.MaxSize
		}
		if config.FlushInterval != 0 {
			batcher.flushInterval = config.FlushInterval
		}
		if config.MaxConcurrency != 0 {
			batcher.maxConcurrency = config.MaxConcurrency
		}
	}

	if batcher.flushInterval <= 0 && batcher.maxSize <= 0 {
		panic(`microbatch: one of MaxSize or FlushInterval must be specified`)
	}

	batcher.ctx, batcher.cancel = context.WithCancel(context.Background())

	go batcher.run()

	return &batcher
}

// Shutdown will immediately prevent further jobs via Submit, then wait for
// all already running or scheduled jobs to complete. An error will be returned
// if ctx is canceled prior to this, causing a forced Close.
//
// This method is unsafe to call from within a job or BatchProcessor.
func (x *Batcher[Job]) Shutdown(ctx context.Context) (err error) {
	x.stop()

	select {
	case <-ctx.Done():
		if x.ctx.Err() == nil {
			err = ctx.Err() // indicating we forcibly closed
		}
		x.cancel()
		<-x.done
	case <-x.done:
	}

	return err
}

// Close immediately cancels all jobs, and prevents further jobs via Submit,
// blocking until the Batcher has finished closing.
//
// This method is unsafe to call from within a job or BatchProcessor.
func (x *Batcher[Job]) Close() error {
	x.cancel()
	<-x.done
	return nil
}

// Submit schedules a job for processing, returning an error if ctx is
// canceled, or the Batcher is stopped.
//
// The JobResult.Wait method should be used to wait for the job's completion,
// after which any individual job result(s) may be accessed, on the job itself.
// The job is available via JobResult.Job, for convenience.
func (x *Batcher[Job]) Submit(ctx context.Context, job Job) (*JobResult[Job], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := x.ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-x.ctx.Done():
		return nil, x.ctx.Err()
	case <-x.stopped:
		return nil, context.Canceled
	default:
	}

	// UnboundedSender.Send never blocks (there is no capacity to wait for),
	// so unlike the enqueue itself, only the reply below needs to race
	// cancellation.
	reply := make(chan *batcherState[Job], 1)
	if err := x.jobSender.Send(jobEnvelope[Job]{job: job, reply: reply}); err != nil {
		return nil, x.ctx.Err()
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-x.ctx.Done():
		return nil, x.ctx.Err()
	case <-x.stopped:
		return nil, context.Canceled
	case batch := <-reply:
		return &JobResult[Job]{Job: job, batch: batch}, nil
	}
}

func (x *Batcher[Job]) stop() {
	x.stopOnce.Do(func() {
		close(x.stopped)
	})
}

// closedSignalHandle adapts a channel that is only ever closed, never sent
// to (ctx.Done(), Batcher's own stopped), into a [chanselect.SelectHandle].
// Safe to race from a freshly-built background watcher every round: reading
// a closed channel is idempotent, so there's no risk of a goroutine
// consuming a value that the winning operation never sees, unlike jobCh in
// the original native-select implementation this replaces (see
// jobReceiver, a proper chanselect flavor with its own reservation
// discipline, rather than a hand-adapted raw channel, for exactly that
// reason).
type closedSignalHandle struct {
	ch   <-chan struct{}
	stop chan struct{}
	once sync.Once
}

func newClosedSignalHandle(ch <-chan struct{}) *closedSignalHandle {
	return &closedSignalHandle{ch: ch, stop: make(chan struct{})}
}

func (h *closedSignalHandle) TrySelect(tok *chanselect.Token) bool {
	select {
	case <-h.ch:
		return true
	default:
		return false
	}
}

func (h *closedSignalHandle) Deadline() (time.Time, bool) { return time.Time{}, false }

func (h *closedSignalHandle) Register(op chanselect.Operation, cx *chanselect.Context) bool {
	if h.TrySelect(&chanselect.Token{}) {
		return true
	}
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

func (h *closedSignalHandle) Unregister(chanselect.Operation) { h.once.Do(func() { close(h.stop) }) }

func (h *closedSignalHandle) Accept(tok *chanselect.Token, _ *chanselect.Context) bool {
	return h.TrySelect(tok)
}

func (h *closedSignalHandle) IsReady() bool { return h.TrySelect(&chanselect.Token{}) }

func (h *closedSignalHandle) Watch(op chanselect.Operation, cx *chanselect.Context) bool {
	return h.Register(op, cx)
}

func (h *closedSignalHandle) Unwatch(op chanselect.Operation) { h.Unregister(op) }

func (h *closedSignalHandle) State() uint64 {
	if h.TrySelect(&chanselect.Token{}) {
		return 1
	}
	return 0
}

func (x *Batcher[Job]) run() {
	defer close(x.done)
	defer x.cancel()

	var wg sync.WaitGroup
	wg.Add(1) // decremented on exit

	var runningBatchCh chan struct{} // keeps track of running batches, allows waiting for them
	if x.maxConcurrency > 0 {
		runningBatchCh = make(chan struct{}, x.maxConcurrency)
	}

	// runs the next batch, blocking on max concurrency limiting
	runBatch := func() {
		if len(x.state.jobs) == 0 {
			return
		}

		batch := x.state
		x.state = newBatcherState[Job]()

		wg.Add(1)
		if runningBatchCh != nil {
			runningBatchCh <- struct{}{} // note: relies on the batch processor handling cancel
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

	// finalizes the last batch, and waits for all batches
	var wait func()
	wait = func() {
		wait = nil
		runBatch()
		wg.Done()
		wg.Wait()
	}

	defer func() {
		// cancel before waiting (unless wait has already been called)
		x.cancel()
		if wait != nil {
			wait()
		}
	}()

	var flushDeadline time.Time
	hasFlushDeadline := false

	for {
		sel := chanselect.New()
		doneH := newClosedSignalHandle(x.ctx.Done())
		doneIdx := sel.Add(doneH, unsafe.Pointer(doneH))
		stoppedH := newClosedSignalHandle(x.stopped)
		stoppedIdx := sel.Add(stoppedH, unsafe.Pointer(stoppedH))
		jobIdx := sel.Add(x.jobReceiver, x.jobReceiver.Addr())

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

		switch op.Index() {
		case doneIdx:
			_ = op.Complete(unsafe.Pointer(doneH), func(*chanselect.Token) error { return nil })
			return

		case stoppedIdx:
			_ = op.Complete(unsafe.Pointer(stoppedH), func(*chanselect.Token) error { return nil })

			// no more jobs will be submitted past this point, but one may
			// already be queued (UnboundedSender.Send never blocks); drain
			// it before the final flush, mirroring the guarantee the
			// original unbuffered jobCh gave for free.
			for {
				env, err := x.jobReceiver.TryRecv()
				if err != nil {
					break
				}
				x.state.jobs = append(x.state.jobs, env.job)
				env.reply <- x.state
			}

			wait()
			return

		case jobIdx:
			var env jobEnvelope[Job]
			cerr := op.Complete(x.jobReceiver.Addr(), func(tok *chanselect.Token) error {
				var rerr error
				env, rerr = x.jobReceiver.Read(tok)
				return rerr
			})
			if cerr != nil {
				// jobReceiver is never closed during Batcher's lifetime
				continue
			}

			env.reply <- x.state // pong

			x.state.jobs = append(x.state.jobs, env.job)

			if x.maxSize > 0 && len(x.state.jobs) >= x.maxSize {
				runBatch()
				hasFlushDeadline = false
			} else if x.flushInterval > 0 && len(x.state.jobs) == 1 {
				// first job -> start the flush deadline for this batch
				flushDeadline = time.Now().Add(x.flushInterval)
				hasFlushDeadline = true
			}
		}
	}
}

func newBatcherState[Job any]() *batcherState[Job] {
	return &batcherState[Job]{done: make(chan struct{})}
}

func (x *batcherState[Job]) run(ctx context.Context, processor BatchProcessor[Job]) error {
	// nice to make sure the context is cancelled right after processor exists
	// (helps deal with accidental resource leaks in external impl.)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	x.err = errors.New(`microbatch: panic in BatchProcessor`)
	defer close(x.done)

	x.err = processor(ctx, x.jobs)

	return x.err
}

// Wait for the Job to be processed. If the BatchProcessor failed with an
// error, that error will be returned. Handling of any implementation-specific
// behavior is via the JobResult.Job field.
func (x *JobResult[Job]) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()

	case <-x.batch.done:
		return x.batch.err
	}
}
