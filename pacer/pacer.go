package pacer

import (
	"time"

	"github.com/joeycumines/go-chanselect/internal/ring"
)

// Pacer allows at most one event per interval, using a sliding window of one
// remembered timestamp rather than a fixed-origin ticker: back-to-back calls
// separated by less than interval are throttled relative to the *last*
// allowed event, not some arbitrary earlier boundary.
//
// Grounded on catrate's single-rate case (see catrate/events.go's
// filterEvents and catrate/limiter.go's Allow), with the sorted-insert,
// arbitrary-index ringBuffer[E constraints.Ordered] it used for an
// unbounded multi-event window replaced by [ring.Ring], since a one-event
// window never needs anything past Push/Pop/Len.
//
// Not safe for concurrent use; callers that need that (catrate's Limiter
// did, guarding categoryData with its own mutex) must serialize Allow
// themselves, as [flavors.Tick] does via its own mutex.
type Pacer struct {
	interval time.Duration
	last     *ring.Ring[int64] // holds 0 or 1 timestamps (UnixNano) - the most recent allowed event
}

// New returns a Pacer that allows at most one event per interval. Panics if
// interval <= 0.
func New(interval time.Duration) *Pacer {
	if interval <= 0 {
		panic("pacer: interval must be positive")
	}
	return &Pacer{interval: interval, last: ring.New[int64](1)}
}

// Allow reports whether an event may occur at now, registering it if so. If
// not, it returns the earliest instant a subsequent call might succeed -
// callers that poll rather than block (e.g. [flavors.Tick]) use this to
// avoid spinning.
func (p *Pacer) Allow(now time.Time) (next time.Time, ok bool) {
	if p.last.Len() > 0 {
		prev := p.last.Pop()
		if next := time.Unix(0, prev).Add(p.interval); now.Before(next) {
			p.last.Push(prev) // still within the window; put it back
			return next, false
		}
	}
	p.last.Push(now.UnixNano())
	return time.Time{}, true
}
