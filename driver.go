package chanselect

import (
	"runtime"
	"time"
	"unsafe"

	"github.com/joeycumines/go-chanselect/internal/shuffle"
)

// timeoutMode distinguishes the three ways a select/ready call can be
// bounded in time.
type timeoutMode int

const (
	timeoutNow timeoutMode = iota
	timeoutNever
	timeoutAt
)

// selTimeout is the Go rendering of spec's Timeout {Now, Never, At(instant)}.
type selTimeout struct {
	mode timeoutMode
	at   time.Time
}

// handleEntry pairs a SelectHandle with its caller-assigned index and the
// address of the endpoint, used only as an identity check when the caller
// later completes the operation via SelectedOperation.
type handleEntry struct {
	handle SelectHandle
	index  int
	addr   unsafe.Pointer
}

// opID derives this entry's Operation identity from its own address. The
// handleEntry slice backing array must not be reallocated (e.g. via
// append growing it) for the duration of a driver call, or this address
// would no longer identify the same logical waiter.
func (h *handleEntry) opID() Operation {
	return operationFromAddr(unsafe.Pointer(h))
}

// selectResult is what runSelect hands back on success.
type selectResult struct {
	token Token
	index int
	addr  unsafe.Pointer
}

// runSelect implements the two-phase commit protocol: poll every handle,
// and if none are ready, register a Context on each, park, then resolve to
// exactly one winner. See spec.md §4.4 / SPEC_FULL.md §6.4 for the full
// narrative; this is a direct transliteration of
// crossbeam-channel/src/select.rs's run_select.
func runSelect(handles []handleEntry, timeout selTimeout) (selectResult, bool) {
	if len(handles) == 0 {
		switch timeout.mode {
		case timeoutNow:
			return selectResult{}, false
		case timeoutNever:
			select {} //nolint:staticcheck // block forever, mirrors utils::sleep_until(None)
		default:
			sleepUntil(timeout.at)
			return selectResult{}, false
		}
	}

	shuffle.Slice(handles)

	var tok Token

	if timeout.mode == timeoutNow {
		return runSelectNow(handles, tok)
	}

	for {
		for i := range handles {
			if handles[i].handle.TrySelect(&tok) {
				return selectResult{token: tok, index: handles[i].index, addr: handles[i].addr}, true
			}
		}

		if res, ok := runSelectBlockOnce(handles, timeout, &tok); ok {
			return res, true
		}

		if timeout.mode == timeoutAt && time.Now().Before(timeout.at) {
			continue
		}
		if timeout.mode == timeoutNever {
			continue
		}

		// Deadline reached: one final non-blocking pass, so the whole call
		// still appears from the outside as a single atomic poll.
		return runSelectNow(handles, tok)
	}
}

// runSelectNow is the Timeout::Now fast path: try once if there's at most
// one handle, otherwise retry until a liveness snapshot shows no more
// progress is being made by peers (see spec.md §4.4's "liveness snapshot").
func runSelectNow(handles []handleEntry, tok Token) (selectResult, bool) {
	if len(handles) <= 1 {
		for i := range handles {
			if handles[i].handle.TrySelect(&tok) {
				return selectResult{token: tok, index: handles[i].index, addr: handles[i].addr}, true
			}
		}
		return selectResult{}, false
	}

	states := make([]uint64, len(handles))
	for i := range handles {
		states[i] = handles[i].handle.State()
	}

	for {
		for i := range handles {
			if handles[i].handle.TrySelect(&tok) {
				return selectResult{token: tok, index: handles[i].index, addr: handles[i].addr}, true
			}
		}

		changed := false
		for i := range handles {
			if current := handles[i].handle.State(); current != states[i] {
				states[i] = current
				changed = true
			}
		}
		if !changed {
			return selectResult{}, false
		}
	}
}

// runSelectBlockOnce performs one register/park/unregister/resolve round
// for the blocking path, returning (result, true) if it produced a winner.
func runSelectBlockOnce(handles []handleEntry, timeout selTimeout, tok *Token) (selectResult, bool) {
	cx := acquireContext()
	defer releaseContext(cx)

	sel := stateWaiting
	registered := 0
	readyIndex := -1

	for i := range handles {
		op := handles[i].opID()
		registered = i + 1

		logEvent(LevelDebug, "register", cx, op, handles[i].index, "")

		if handles[i].handle.Register(op, cx) {
			s, ok := cx.TrySelect(stateAborted)
			sel = s
			if ok {
				readyIndex = i
			}
			break
		}

		sel = cx.Selected()
		if sel != stateWaiting {
			break
		}
	}

	if sel == stateWaiting {
		deadline, hasDeadline := effectiveDeadline(handles, timeout)
		logEvent(LevelDebug, "park", cx, 0, -1, "")
		sel = cx.WaitUntil(deadline, hasDeadline)
		logEvent(LevelDebug, "wake", cx, 0, -1, sel.String())
	}

	for i := 0; i < registered; i++ {
		handles[i].handle.Unregister(handles[i].opID())
	}

	defer cx.Reset()

	switch sel {
	case stateAborted:
		if readyIndex >= 0 {
			h := &handles[readyIndex]
			if h.handle.TrySelect(tok) {
				return selectResult{token: *tok, index: h.index, addr: h.addr}, true
			}
		}
		return selectResult{}, false

	case stateDisconnected:
		return selectResult{}, false

	default: // an Operation was committed
		for i := range handles {
			if sel == selState(handles[i].opID()) {
				if handles[i].handle.Accept(tok, cx) {
					return selectResult{token: *tok, index: handles[i].index, addr: handles[i].addr}, true
				}
				logEvent(LevelWarn, "accept", cx, handles[i].opID(), handles[i].index, "stale wakeup, retrying")
			}
		}
		return selectResult{}, false
	}
}

// runReady implements the readiness-only variant: same poll/register/park
// skeleton as runSelect, but using Watch/Unwatch (no slot reservation) and
// reporting only an index, per spec.md §4.5.
func runReady(handles []handleEntry, timeout selTimeout) (int, bool) {
	if len(handles) == 0 {
		switch timeout.mode {
		case timeoutNow:
			return 0, false
		case timeoutNever:
			select {}
		default:
			sleepUntil(timeout.at)
			return 0, false
		}
	}

	shuffle.Slice(handles)

	for {
		if i, ok := readyBackoffPoll(handles, timeout); ok {
			return handles[i].index, true
		}

		switch timeout.mode {
		case timeoutNow:
			return 0, false
		case timeoutAt:
			if !time.Now().Before(timeout.at) {
				return 0, false
			}
		}

		if idx, ok := runReadyBlockOnce(handles, timeout); ok {
			return handles[idx].index, true
		}
	}
}

// readyBackoffPoll spins, then yields, then falls through, giving a
// bounded number of cheap rounds before paying for registration. Mirrors
// the exponential-backoff-then-park shape of crossbeam's Backoff, used by
// run_ready's inner loop.
func readyBackoffPoll(handles []handleEntry, timeout selTimeout) (int, bool) {
	const spinRounds = 16
	const yieldRounds = 4

	for round := 0; round < spinRounds+yieldRounds; round++ {
		for i := range handles {
			if handles[i].handle.IsReady() {
				return i, true
			}
		}
		if round < spinRounds {
			continue
		}
		runtime.Gosched()
	}
	return 0, false
}

func runReadyBlockOnce(handles []handleEntry, timeout selTimeout) (int, bool) {
	cx := acquireContext()
	defer releaseContext(cx)
	defer cx.Reset()

	sel := stateWaiting
	registered := 0

	for i := range handles {
		op := handles[i].opID()
		registered = i + 1

		if handles[i].handle.Watch(op, cx) {
			s, _ := cx.TrySelect(selState(op))
			sel = s
			break
		}

		sel = cx.Selected()
		if sel != stateWaiting {
			break
		}
	}

	if sel == stateWaiting {
		deadline, hasDeadline := effectiveDeadline(handles, timeout)
		sel = cx.WaitUntil(deadline, hasDeadline)
	}

	for i := 0; i < registered; i++ {
		handles[i].handle.Unwatch(handles[i].opID())
	}

	switch sel {
	case stateWaiting, stateAborted, stateDisconnected:
		return 0, false
	default:
		for i := range handles {
			if sel == selState(handles[i].opID()) {
				return i, true
			}
		}
		return 0, false
	}
}

// effectiveDeadline computes the min of the caller's Timeout and every
// handle's own flavor-imposed deadline.
func effectiveDeadline(handles []handleEntry, timeout selTimeout) (time.Time, bool) {
	var deadline time.Time
	has := false
	if timeout.mode == timeoutAt {
		deadline = timeout.at
		has = true
	}
	for i := range handles {
		if d, ok := handles[i].handle.Deadline(); ok {
			if !has || d.Before(deadline) {
				deadline = d
				has = true
			}
		}
	}
	return deadline, has
}

func sleepUntil(when time.Time) {
	if d := time.Until(when); d > 0 {
		time.Sleep(d)
	}
}

// String renders a selState for log messages.
func (s selState) String() string {
	switch s {
	case stateWaiting:
		return "waiting"
	case stateAborted:
		return "aborted"
	case stateDisconnected:
		return "disconnected"
	default:
		return "operation"
	}
}
