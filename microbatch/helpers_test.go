package microbatch

import (
	"runtime"
	"testing"
	"time"
)

// checkNumGoroutines snapshots the current goroutine count, and returns a
// closure to be deferred, which polls (up to timeout) for the count to
// settle back down, failing the test if it never does. A reusable
// setup/teardown pair, since the Batcher tests in microbatch_test.go all
// need the same before/after bracketing.
func checkNumGoroutines(timeout time.Duration) func(t *testing.T) {
	runtime.GC()
	before := runtime.NumGoroutine()

	return func(t *testing.T) {
		t.Helper()

		deadline := time.Now().Add(timeout)
		for {
			runtime.GC()
			after := runtime.NumGoroutine()
			if after <= before {
				return
			}
			if time.Now().After(deadline) {
				t.Errorf(`goroutine leak: started with %d, ended with %d`, before, after)
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}
