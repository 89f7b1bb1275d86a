package flavors

import (
	"sync"
	"time"

	chanselect "github.com/joeycumines/go-chanselect"
	"github.com/joeycumines/go-chanselect/pacer"
)

// Tick is a handle that becomes ready once per interval, repeating forever -
// the chanselect analogue of time.Ticker. Pacing is delegated to a
// [pacer.Pacer] rather than a bare time.Ticker: Tick's own refreshLocked
// already provides the single point of serialization a Pacer requires, so
// this reuses the same sliding-window throttling logic the module's other
// rate-governed behaviour is built from, instead of a second, parallel
// timer primitive.
//
// Readiness is latched: once the pacer allows an event, that readiness is
// held (not re-queried, which would otherwise silently consume additional
// ticks from the pacer's window) until a TrySelect/Accept call claims it.
type Tick struct {
	mu    sync.Mutex
	pace  *pacer.Pacer
	ready bool
	next  time.Time
	gen   uint64
}

// NewTick returns a handle that becomes ready once per interval, the first
// time one interval after creation.
func NewTick(interval time.Duration) *Tick {
	p := pacer.New(interval)
	p.Allow(time.Now()) // start the first window now, like time.NewTicker
	return &Tick{pace: p}
}

// refreshLocked queries the pacer at most once per latched readiness
// period. Must be called with t.mu held.
func (t *Tick) refreshLocked() {
	if t.ready {
		return
	}
	next, ok := t.pace.Allow(time.Now())
	if ok {
		t.ready = true
		t.gen++
		return
	}
	t.next = next
}

func (t *Tick) TrySelect(tok *chanselect.Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refreshLocked()
	if t.ready {
		t.ready = false
		tok.Value = time.Now()
		return true
	}
	return false
}

func (t *Tick) Deadline() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refreshLocked()
	if t.ready {
		return time.Time{}, false
	}
	return t.next, true
}

// Register reports current readiness; Tick never wakes a parked waiter
// itself; the blocking driver's own deadline timer (see Deadline) is what
// causes a re-poll once the interval elapses.
func (t *Tick) Register(chanselect.Operation, *chanselect.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refreshLocked()
	return t.ready
}

func (t *Tick) Unregister(chanselect.Operation) {}

func (t *Tick) Accept(tok *chanselect.Token, _ *chanselect.Context) bool {
	return t.TrySelect(tok)
}

func (t *Tick) IsReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refreshLocked()
	return t.ready
}

func (t *Tick) Watch(op chanselect.Operation, cx *chanselect.Context) bool {
	return t.Register(op, cx)
}

func (t *Tick) Unwatch(chanselect.Operation) {}

func (t *Tick) State() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// Read returns the instant the tick was claimed.
func (t *Tick) Read(tok *chanselect.Token) (time.Time, error) {
	return tok.Value.(time.Time), nil
}
