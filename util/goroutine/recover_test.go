package goroutine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecover_NoPanicIsNoop(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	func() {
		defer Recover("quiet-goroutine", logger)
	}()
}

func TestRecover_LogsPanicWithStack(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core).Sugar()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer Recover("worker-goroutine", logger)
		panic("provider parser exploded")
	}()
	wg.Wait()

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Goroutine panic recovered", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "worker-goroutine", fields["goroutine"])
	assert.Equal(t, "provider parser exploded", fields["panic"])

	stack, ok := fields["stack"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, stack)
	assert.LessOrEqual(t, len(stack), stackBufferSize)
}

func TestRecover_NonStringPanicValues(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core).Sugar()

	func() {
		defer Recover("int-panic", logger)
		panic(42)
	}()
	func() {
		defer Recover("error-panic", logger)
		panic(assert.AnError)
	}()

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(42), entries[0].ContextMap()["panic"])
	assert.NotNil(t, entries[1].ContextMap()["panic"])
}

func TestRecover_NilLoggerFallsBackToStderr(t *testing.T) {
	assert.NotPanics(t, func() {
		defer Recover("no-logger", nil)
		panic("boom")
	})
}

func TestRecover_ConcurrentPanicsIsolated(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core).Sugar()

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			defer Recover("concurrent-worker", logger)
			panic(id)
		}(i)
	}
	wg.Wait()

	assert.Len(t, logs.All(), workers, "every panic should be recovered and logged")
}
