package goroutine

import (
	"runtime"
	"testing"
	"time"
)

// AssertNoLeaks registers a cleanup that fails the test if the goroutine count
// has not returned to its baseline once the test finishes. Call it before
// starting anything that spawns background goroutines (health-check loops,
// rotation timers).
func AssertNoLeaks(t *testing.T) {
	t.Helper()
	AssertNoLeaksWithTimeout(t, 5*time.Second, 50*time.Millisecond)
}

// AssertNoLeaksWithTimeout is AssertNoLeaks with a custom settle deadline
func AssertNoLeaksWithTimeout(t *testing.T, timeout, poll time.Duration) {
	t.Helper()
	baseline := runtime.NumGoroutine()

	t.Cleanup(func() {
		deadline := time.Now().Add(timeout)
		for time.Now().Before(deadline) {
			if runtime.NumGoroutine() <= baseline {
				return
			}
			time.Sleep(poll)
		}

		current := runtime.NumGoroutine()
		if current > baseline {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			t.Errorf("goroutine leak: %d at start, %d at end", baseline, current)
			t.Logf("active goroutines:\n%s", buf[:n])
		}
	})
}
