package chanselect_test

import (
	"testing"
	"time"
	"unsafe"

	chanselect "github.com/joeycumines/go-chanselect"
	"github.com/joeycumines/go-chanselect/flavors"
)

// scenario 1: two ready receivers.
func TestScenario_twoReadyReceivers(t *testing.T) {
	s1, r1 := flavors.NewUnbounded[int]()
	s2, r2 := flavors.NewUnbounded[int]()
	if err := s1.Send(10); err != nil {
		t.Fatal(err)
	}
	if err := s2.Send(20); err != nil {
		t.Fatal(err)
	}

	sel := chanselect.New()
	sel.Add(r1, r1.Addr())
	sel.Add(r2, r2.Addr())

	op, err := sel.TrySelect()
	if err != nil {
		t.Fatal(err)
	}
	if op.Index() != 0 && op.Index() != 1 {
		t.Fatalf(`expected index 0 or 1, got %d`, op.Index())
	}

	var got int
	var addr unsafe.Pointer
	if op.Index() == 0 {
		addr = r1.Addr()
	} else {
		addr = r2.Addr()
	}
	if err := op.Complete(addr, func(tok *chanselect.Token) error {
		var rerr error
		if op.Index() == 0 {
			got, rerr = r1.Read(tok)
		} else {
			got, rerr = r2.Read(tok)
		}
		return rerr
	}); err != nil {
		t.Fatal(err)
	}

	if (op.Index() == 0 && got != 10) || (op.Index() == 1 && got != 20) {
		t.Fatalf(`unexpected value %d for index %d`, got, op.Index())
	}
}

// scenario 2: blocking until ready, with two concurrent senders: the first
// sends after a second, the second at once, so the second's receiver wins.
func TestScenario_blockingUntilReady(t *testing.T) {
	s1, r1 := flavors.NewUnbounded[int]()
	s2, r2 := flavors.NewUnbounded[int]()

	go func() {
		time.Sleep(1 * time.Second)
		_ = s1.Send(10)
	}()
	go func() {
		_ = s2.Send(20)
	}()

	sel := chanselect.New()
	sel.Add(r1, r1.Addr())
	sel.Add(r2, r2.Addr())

	op := sel.Select()
	if op.Index() != 1 {
		t.Fatalf(`expected index 1 (r2), got %d`, op.Index())
	}

	var got int
	if err := op.Complete(r2.Addr(), func(tok *chanselect.Token) error {
		var rerr error
		got, rerr = r2.Read(tok)
		return rerr
	}); err != nil {
		t.Fatal(err)
	}
	if got != 20 {
		t.Fatalf(`expected 20, got %d`, got)
	}
}

// scenario 3: timeout.
func TestScenario_timeout(t *testing.T) {
	_, r1 := flavors.NewUnbounded[int]()
	_, r2 := flavors.NewUnbounded[int]()

	sel := chanselect.New()
	sel.Add(r1, r1.Addr())
	sel.Add(r2, r2.Addr())

	start := time.Now()
	_, err := sel.SelectTimeout(200 * time.Millisecond)
	elapsed := time.Since(start)

	if _, ok := err.(chanselect.SelectTimeoutError); !ok {
		t.Fatalf(`expected SelectTimeoutError, got %v`, err)
	}
	if elapsed < 150*time.Millisecond || elapsed > 2*time.Second {
		t.Fatalf(`expected roughly 200ms, got %s`, elapsed)
	}
}

// scenario 4: disconnected recv is ready.
func TestScenario_disconnectedRecvIsReady(t *testing.T) {
	s, r := flavors.NewRendezvous[int]()
	s.Close()

	sel := chanselect.New()
	sel.Add(r, r.Addr())

	op := sel.Select()
	if op.Index() != 0 {
		t.Fatalf(`expected index 0, got %d`, op.Index())
	}

	err := op.Complete(r.Addr(), func(tok *chanselect.Token) error {
		_, rerr := r.Read(tok)
		return rerr
	})
	if _, ok := err.(chanselect.RecvError); !ok {
		t.Fatalf(`expected RecvError, got %v`, err)
	}
}

// scenario 5: disconnected send on zero-capacity (modeled as a closed
// one-slot rendezvous on the receive side).
func TestScenario_disconnectedSendOnRendezvous(t *testing.T) {
	s, r := flavors.NewRendezvous[int]()
	r.Close()

	sel := chanselect.New()
	sel.Add(s, s.Addr())

	op := sel.Select()
	if op.Index() != 0 {
		t.Fatalf(`expected index 0, got %d`, op.Index())
	}

	err := op.Complete(s.Addr(), func(tok *chanselect.Token) error {
		return s.Write(tok, 10)
	})
	sendErr, ok := err.(chanselect.SendError[int])
	if !ok {
		t.Fatalf(`expected SendError, got %v`, err)
	}
	if sendErr.Value != 10 {
		t.Fatalf(`expected the undelivered value to be preserved, got %d`, sendErr.Value)
	}
}

// scenario 6: ready index with disconnected preferred (disconnected counts
// as ready; an empty, open channel does not).
func TestScenario_readyIndexDisconnectedPreferred(t *testing.T) {
	s1, r1 := flavors.NewUnbounded[int]()
	s1.Close()
	_, r2 := flavors.NewRendezvous[int]() // open, empty

	sel := chanselect.New()
	sel.Add(r1, r1.Addr())
	sel.Add(r2, r2.Addr())

	idx := sel.Ready()
	if idx != 0 {
		t.Fatalf(`expected index 0 (disconnected), got %d`, idx)
	}

	if _, err := r1.TryRecv(); err == nil {
		t.Fatal(`expected TryRecv on the disconnected, empty channel to error`)
	}
}

// scenario 7: drop-without-complete panics. The enforcement is via
// runtime.AddCleanup (see select.go), which runs its cleanup function on a
// dedicated runtime goroutine; an unrecovered panic there terminates the
// whole test binary rather than failing a single test. There is no way to
// observe it synchronously or safely from within a test, so this is
// exercised manually instead: construct a SelectedOperation, drop every
// reference to it, force a GC, and confirm (by inspection, not assertion)
// that the process aborts. Left here as documentation of the behaviour
// rather than as a runnable assertion.
func TestScenario_dropWithoutCompletePanics(t *testing.T) {
	t.Skip(`drop-without-complete is enforced via runtime.AddCleanup; its cleanup panics on a background goroutine and cannot be observed or recovered from a test without crashing the process`)
}

// scenario 8: empty select panics (blocking), try_select reports an error
// (non-blocking).
func TestScenario_emptySelect(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal(`expected Select.Select to panic on an empty selector`)
		}
	}()
	chanselect.New().Select()
}

func TestScenario_emptyTrySelect(t *testing.T) {
	_, err := chanselect.New().TrySelect()
	if _, ok := err.(chanselect.TrySelectError); !ok {
		t.Fatalf(`expected TrySelectError, got %v`, err)
	}
}

// Quantified invariant: fairness. With k>1 operations all continuously
// ready, repeated TrySelect calls should not starve any one of them; over
// many iterations each index should win a roughly even share.
func TestInvariant_fairnessAcrossReadyOperations(t *testing.T) {
	const k = 4
	const iterations = 4000

	senders := make([]*flavors.UnboundedSender[int], k)
	receivers := make([]*flavors.UnboundedReceiver[int], k)
	for i := range senders {
		senders[i], receivers[i] = flavors.NewUnbounded[int]()
	}

	wins := make([]int, k)
	for n := 0; n < iterations; n++ {
		// keep every operation ready for this round.
		for i, s := range senders {
			if err := s.Send(i); err != nil {
				t.Fatal(err)
			}
		}

		sel := chanselect.New()
		for _, r := range receivers {
			sel.Add(r, r.Addr())
		}

		op, err := sel.TrySelect()
		if err != nil {
			t.Fatal(err)
		}
		idx := op.Index()
		wins[idx]++

		if err := op.Complete(receivers[idx].Addr(), func(tok *chanselect.Token) error {
			_, rerr := receivers[idx].Read(tok)
			return rerr
		}); err != nil {
			t.Fatal(err)
		}

		// drain the operations that weren't chosen this round, so the next
		// round starts from a clean, single-pending-item state per channel.
		for i, r := range receivers {
			if i == idx {
				continue
			}
			if _, err := r.TryRecv(); err != nil {
				t.Fatal(err)
			}
		}
	}

	// no index should win fewer than a small fraction of a perfectly even
	// share; this is a statistical sanity check, not a precision bound.
	min := iterations / k / 4
	for i, w := range wins {
		if w < min {
			t.Fatalf(`index %d won only %d/%d selections, suspect starvation: %v`, i, w, iterations, wins)
		}
	}
}

// Quantified invariant: completion obligation. A SelectedOperation is
// completed exactly once: after one successful Complete, a second Complete
// on the same operation panics (Complete's internal completed flag).
func TestInvariant_completionObligationSingleRead(t *testing.T) {
	s, r := flavors.NewUnbounded[string]()
	if err := s.Send(`only-once`); err != nil {
		t.Fatal(err)
	}

	sel := chanselect.New()
	sel.Add(r, r.Addr())
	op := sel.Select()

	if err := op.Complete(r.Addr(), func(tok *chanselect.Token) error {
		_, rerr := r.Read(tok)
		return rerr
	}); err != nil {
		t.Fatal(err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal(`expected completing the same SelectedOperation twice to panic`)
		}
	}()
	_ = op.Complete(r.Addr(), func(tok *chanselect.Token) error { return nil })
}
