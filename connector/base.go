package connector

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"darkmon/core"
	"darkmon/credentials"
	"darkmon/metrics"
	"darkmon/ratelimit"
)

// Base carries the state and shared request plumbing every concrete connector
// embeds: the rate limiter, the credential reference, the health snapshot and
// the retry/backoff loop. Concrete connectors supply only provider-specific
// request building and response mapping.
type Base struct {
	source core.Source
	limit  *ratelimit.Limiter
	creds  *credentials.Store
	client *http.Client
	logger *zap.SugaredLogger

	mu          sync.RWMutex
	health      core.HealthStatus
	current     *core.Credentials
	initialized bool
}

// DefaultHTTPTimeout is the provider-level request timeout
const DefaultHTTPTimeout = 30 * time.Second

// NewBase builds the shared connector state for a source
func NewBase(source core.Source, store *credentials.Store, logger *zap.SugaredLogger) (*Base, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}

	limit, err := ratelimit.New(source.RateLimit, logger)
	if err != nil {
		return nil, err
	}

	return &Base{
		source: source,
		limit:  limit,
		creds:  store,
		client: &http.Client{Timeout: DefaultHTTPTimeout},
		logger: logger,
		health: core.HealthStatus{SourceID: source.ID},
	}, nil
}

// Source returns the immutable source registration
func (b *Base) Source() core.Source {
	return b.source
}

// HealthStatus returns the last recorded health snapshot
func (b *Base) HealthStatus() core.HealthStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.health
}

// HTTPClient exposes the shared client to embedding connectors
func (b *Base) HTTPClient() *http.Client {
	return b.client
}

// Limiter exposes the source's rate limiter for operator snapshots
func (b *Base) Limiter() *ratelimit.Limiter {
	return b.limit
}

// initialize fetches validated credentials and runs the given probe once.
// Called by the embedding connector's Initialize.
func (b *Base) initialize(ctx context.Context, probe func(ctx context.Context, creds *core.Credentials) error) error {
	creds, err := b.creds.GetValidated(b.source.ID)
	if err != nil {
		return fmt.Errorf("initializing connector %s: %w", b.source.ID, err)
	}

	b.mu.Lock()
	b.current = creds
	b.mu.Unlock()

	status := b.runHealthCheck(ctx, probe)
	if !status.IsHealthy {
		return fmt.Errorf("initializing connector %s: health check failed: %s", b.source.ID, status.LastError)
	}

	b.mu.Lock()
	b.initialized = true
	b.mu.Unlock()
	return nil
}

// ensureCredentials returns the transient credential reference, fetching only
// on absence. Revalidation happens on the rotation schedule, not per call.
func (b *Base) ensureCredentials() (*core.Credentials, error) {
	b.mu.RLock()
	current := b.current
	b.mu.RUnlock()

	if current != nil && !current.Expired(time.Now()) {
		return current, nil
	}

	creds, err := b.creds.GetValidated(b.source.ID)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.current = creds
	b.mu.Unlock()
	return creds, nil
}

// executeRequest routes one logical provider operation through credential
// lookup, rate limiting, classification and retry with exponential backoff.
// Transient and rate-limited failures share the same retry budget; auth and
// client errors are fatal on first sight.
func (b *Base) executeRequest(ctx context.Context, operation string, fn func(ctx context.Context, creds *core.Credentials) error) error {
	b.mu.RLock()
	ready := b.initialized
	b.mu.RUnlock()
	if !ready {
		return core.NewConnectorError(b.source.ID, core.ErrCodeClientError, core.ErrNotInitialized)
	}

	creds, err := b.ensureCredentials()
	if err != nil {
		b.recordFailure(err)
		return core.NewConnectorError(b.source.ID, core.ErrCodeCredentialsInvalid, err)
	}

	waitStart := time.Now()
	if err := b.limit.Acquire(ctx); err != nil {
		return err
	}
	metrics.RateLimiterWait.WithLabelValues(b.source.ID).Observe(time.Since(waitStart).Seconds())

	retry := b.source.Retry
	for attempt := 0; ; attempt++ {
		start := time.Now()
		err := fn(ctx, creds)
		elapsed := time.Since(start)

		if err == nil {
			b.recordSuccess(elapsed)
			metrics.ProviderRequests.WithLabelValues(b.source.ID, operation, metrics.OutcomeSuccess).Inc()
			metrics.ProviderRequestDuration.WithLabelValues(b.source.ID, operation).Observe(elapsed.Seconds())
			return nil
		}

		if isFatalContext(err) {
			return err
		}

		code := Classify(err)
		metrics.ProviderRequests.WithLabelValues(b.source.ID, operation, metrics.OutcomeFailure).Inc()

		if code == core.ErrCodeAuthFailed || code == core.ErrCodeClientError {
			b.recordFailure(err)
			return core.NewConnectorError(b.source.ID, code, err)
		}

		if attempt >= retry.MaxRetries {
			b.recordFailure(err)
			return core.NewConnectorError(b.source.ID, code, err)
		}

		reason := metrics.RetryReasonTransient
		if code == core.ErrCodeRateLimited {
			reason = metrics.RetryReasonRateLimited
		}
		metrics.ProviderRetries.WithLabelValues(b.source.ID, reason).Inc()

		delay := backoffDelay(retry, attempt)
		b.logger.Debugw("Retrying provider request",
			"source", b.source.ID,
			"operation", operation,
			"attempt", attempt+1,
			"delay", delay,
			"code", code)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// backoffDelay computes baseDelay * multiplier^attempt capped at maxDelay.
// Pure exponential, no jitter, so retry timing stays deterministic.
func backoffDelay(retry core.RetryConfig, attempt int) time.Duration {
	delay := time.Duration(float64(retry.BaseDelay) * math.Pow(retry.BackoffMultiplier, float64(attempt)))
	if delay > retry.MaxDelay {
		delay = retry.MaxDelay
	}
	return delay
}

// runHealthCheck executes the provider probe under the rate limiter and
// refreshes the health snapshot. This is the only path that can set
// IsHealthy back to true.
func (b *Base) runHealthCheck(ctx context.Context, probe func(ctx context.Context, creds *core.Credentials) error) core.HealthStatus {
	creds, err := b.ensureCredentials()
	if err == nil {
		if err = b.limit.Acquire(ctx); err == nil {
			start := time.Now()
			err = probe(ctx, creds)
			elapsed := time.Since(start)

			b.mu.Lock()
			b.health.LastCheck = time.Now()
			b.health.ResponseTime = elapsed
			if err == nil {
				b.health.IsHealthy = true
				b.health.ConsecutiveErrors = 0
				b.health.LastError = ""
			} else {
				b.health.IsHealthy = false
				b.health.ConsecutiveErrors++
				b.health.LastError = err.Error()
			}
			status := b.health
			b.mu.Unlock()
			return status
		}
	}

	b.mu.Lock()
	b.health.IsHealthy = false
	b.health.LastCheck = time.Now()
	b.health.ConsecutiveErrors++
	b.health.LastError = err.Error()
	status := b.health
	b.mu.Unlock()
	return status
}

// recordSuccess notes a passing observation from a search call. It resets the
// error streak but never flips an unhealthy connector back to healthy; only a
// passing health check does that.
func (b *Base) recordSuccess(elapsed time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.health.ResponseTime = elapsed
	b.health.ConsecutiveErrors = 0
	b.health.LastError = ""
}

// recordFailure marks the connector failing after a fatal error or retry
// exhaustion.
func (b *Base) recordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.health.IsHealthy = false
	b.health.ConsecutiveErrors++
	b.health.LastError = err.Error()
}

// Close releases the shared HTTP client's idle connections
func (b *Base) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
