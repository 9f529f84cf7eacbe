package goroutine

import (
	"sync"
	"testing"
	"time"
)

func TestAssertNoLeaks_CompletedGoroutines(t *testing.T) {
	AssertNoLeaks(t)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(10 * time.Millisecond)
		}()
	}
	wg.Wait()
}
