package goroutine

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
)

// stackBufferSize bounds stack trace collection for recovered panics
const stackBufferSize = 4096

// Recover logs panics in background goroutines instead of crashing the
// process. Deferred at the top of every spawned goroutine and around alert
// callbacks so one misbehaving branch cannot take down the rest.
// Falls back to stderr when no logger is available.
func Recover(name string, logger *zap.SugaredLogger) {
	if r := recover(); r != nil {
		buf := make([]byte, stackBufferSize)
		n := runtime.Stack(buf, false)

		if logger != nil {
			logger.Errorw("Goroutine panic recovered",
				"goroutine", name,
				"panic", r,
				"stack", string(buf[:n]))
		} else {
			fmt.Fprintf(os.Stderr, "PANIC in goroutine %s (no logger): %v\n%s\n",
				name, r, string(buf[:n]))
		}
	}
}
