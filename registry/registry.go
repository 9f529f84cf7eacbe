package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"darkmon/connector"
	"darkmon/core"
	"darkmon/health"
	"darkmon/util/goroutine"
)

// =============================================================================
// Connector Registry
// =============================================================================

var (
	// ErrAlreadyRegistered is returned when a source ID is registered twice
	ErrAlreadyRegistered = errors.New("connector already registered")
	// ErrNotRegistered is returned when unregistering an unknown source
	ErrNotRegistered = errors.New("connector not registered")
)

// DefaultHealthCheckInterval is how often the background loop re-probes all
// registered connectors
const DefaultHealthCheckInterval = 5 * time.Minute

// Registry owns the set of registered connectors. It fans queries out to all
// healthy connectors concurrently, merges and deduplicates their results, and
// aggregates health. The registry only reads connector snapshots; it never
// mutates connector-internal state.
type Registry struct {
	logger  *zap.SugaredLogger
	monitor *health.Monitor

	mu         sync.RWMutex
	connectors map[string]connector.Connector
	healthMap  map[string]core.HealthStatus
	lastCheck  time.Time

	loopCancel context.CancelFunc
	loopDone   chan struct{}
	closed     bool
}

// New creates an empty registry. The monitor is optional; when present, every
// recorded health status is fed into it.
func New(monitor *health.Monitor, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		logger:     logger,
		monitor:    monitor,
		connectors: make(map[string]connector.Connector),
		healthMap:  make(map[string]core.HealthStatus),
	}
}

// Register initializes the connector and records it with its current health.
// A connector that fails to initialize is not registered.
func (r *Registry) Register(ctx context.Context, conn connector.Connector) error {
	sourceID := conn.Source().ID

	r.mu.RLock()
	_, exists := r.connectors[sourceID]
	r.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, sourceID)
	}

	if err := conn.Initialize(ctx); err != nil {
		return fmt.Errorf("registering %s: %w", sourceID, err)
	}

	status := conn.HealthStatus()

	r.mu.Lock()
	r.connectors[sourceID] = conn
	r.healthMap[sourceID] = status
	r.mu.Unlock()

	r.recordHealth(status)
	r.logger.Infow("Connector registered",
		"source", sourceID,
		"provider", conn.Source().Provider,
		"healthy", status.IsHealthy)
	return nil
}

// Unregister removes the connector and its cached health
func (r *Registry) Unregister(sourceID string) error {
	r.mu.Lock()
	conn, ok := r.connectors[sourceID]
	delete(r.connectors, sourceID)
	delete(r.healthMap, sourceID)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, sourceID)
	}

	if err := conn.Close(); err != nil {
		r.logger.Warnf("Closing connector %s: %v", sourceID, err)
	}
	r.logger.Infow("Connector unregistered", "source", sourceID)
	return nil
}

// HealthyConnectors returns connectors whose last recorded health is passing
func (r *Registry) HealthyConnectors() []connector.Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	healthy := make([]connector.Connector, 0, len(r.connectors))
	for id, conn := range r.connectors {
		if r.healthMap[id].IsHealthy {
			healthy = append(healthy, conn)
		}
	}
	return healthy
}

// Stats summarizes the registry for operators
func (r *Registry) Stats() core.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := core.RegistryStats{
		TotalConnectors: len(r.connectors),
		LastHealthCheck: r.lastCheck,
	}
	for id := range r.connectors {
		if r.healthMap[id].IsHealthy {
			stats.HealthyConnectors++
		} else {
			stats.UnhealthyConnectors++
		}
	}
	return stats
}

// =============================================================================
// Fan-Out Search
// =============================================================================

// fanOut runs one operation per healthy connector concurrently, waits for all
// branches to settle, and returns the successes. A failing branch is logged
// and isolated; it never cancels or fails the others.
func fanOut[T any](r *Registry, ctx context.Context, operation string, run func(ctx context.Context, conn connector.Connector) (T, error)) []T {
	targets := r.HealthyConnectors()
	if len(targets) == 0 {
		return nil
	}

	queryID := uuid.New().String()[:8]

	type settled struct {
		value    T
		err      error
		sourceID string
	}

	results := make([]settled, len(targets))
	var wg sync.WaitGroup
	for i, conn := range targets {
		wg.Add(1)
		go func(idx int, conn connector.Connector) {
			defer wg.Done()
			defer goroutine.Recover("fanout-"+operation, r.logger)
			value, err := run(ctx, conn)
			results[idx] = settled{value: value, err: err, sourceID: conn.Source().ID}
		}(i, conn)
	}
	wg.Wait()

	collected := make([]T, 0, len(targets))
	for _, branch := range results {
		if branch.err != nil {
			r.logger.Warnw("Fan-out branch failed",
				"query", queryID,
				"operation", operation,
				"source", branch.sourceID,
				"error", branch.err)
			continue
		}
		collected = append(collected, branch.value)
	}
	return collected
}

// SearchCredentials fans the query out to all healthy connectors and returns
// the merged, deduplicated exposures. Always best-effort: source failures
// degrade the result set, they never fail the call.
func (r *Registry) SearchCredentials(ctx context.Context, q core.CredentialQuery) ([]core.CredentialResult, error) {
	if err := q.Range.Validate(); err != nil {
		return nil, err
	}

	branches := fanOut(r, ctx, "search_credentials", func(ctx context.Context, conn connector.Connector) ([]core.CredentialResult, error) {
		return conn.SearchCredentials(ctx, q)
	})

	seen := make(map[string]bool)
	var merged []core.CredentialResult
	for _, branch := range branches {
		for _, result := range branch {
			key := result.DedupKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, result)
		}
	}
	return merged, nil
}

// SearchMarketplaces fans the query out and deduplicates by url+title
func (r *Registry) SearchMarketplaces(ctx context.Context, q core.MarketplaceQuery) ([]core.MarketplaceResult, error) {
	if err := q.Range.Validate(); err != nil {
		return nil, err
	}

	branches := fanOut(r, ctx, "search_marketplaces", func(ctx context.Context, conn connector.Connector) ([]core.MarketplaceResult, error) {
		return conn.SearchMarketplaces(ctx, q)
	})

	seen := make(map[string]bool)
	var merged []core.MarketplaceResult
	for _, branch := range branches {
		for _, result := range branch {
			key := result.DedupKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, result)
		}
	}
	return merged, nil
}

// SearchBreachDatabases fans the query out and deduplicates by breach name
// plus affected domains
func (r *Registry) SearchBreachDatabases(ctx context.Context, q core.BreachQuery) ([]core.BreachResult, error) {
	if err := q.Range.Validate(); err != nil {
		return nil, err
	}

	branches := fanOut(r, ctx, "search_breaches", func(ctx context.Context, conn connector.Connector) ([]core.BreachResult, error) {
		return conn.SearchBreachDatabases(ctx, q)
	})

	seen := make(map[string]bool)
	var merged []core.BreachResult
	for _, branch := range branches {
		for _, result := range branch {
			key := result.DedupKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, result)
		}
	}
	return merged, nil
}

// MonitorKeywords fans the keyword set out and returns one aggregate per
// responding source
func (r *Registry) MonitorKeywords(ctx context.Context, keywords []string) ([]core.KeywordMonitorResult, error) {
	branches := fanOut(r, ctx, "monitor_keywords", func(ctx context.Context, conn connector.Connector) (*core.KeywordMonitorResult, error) {
		return conn.MonitorKeywords(ctx, keywords)
	})

	merged := make([]core.KeywordMonitorResult, 0, len(branches))
	for _, branch := range branches {
		if branch != nil {
			merged = append(merged, *branch)
		}
	}
	return merged, nil
}

// =============================================================================
// Health Checking
// =============================================================================

// PerformHealthChecks probes every registered connector concurrently and
// refreshes the registry's health map. Branch failures are isolated.
func (r *Registry) PerformHealthChecks(ctx context.Context) {
	r.mu.RLock()
	targets := make([]connector.Connector, 0, len(r.connectors))
	for _, conn := range r.connectors {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	statuses := make([]core.HealthStatus, len(targets))
	var wg sync.WaitGroup
	for i, conn := range targets {
		wg.Add(1)
		go func(idx int, conn connector.Connector) {
			defer wg.Done()
			defer goroutine.Recover("health-check-"+conn.Source().ID, r.logger)
			statuses[idx] = conn.PerformHealthCheck(ctx)
		}(i, conn)
	}
	wg.Wait()

	now := time.Now()
	r.mu.Lock()
	for _, status := range statuses {
		if status.SourceID == "" {
			continue // branch panicked before producing a status
		}
		if _, still := r.connectors[status.SourceID]; still {
			r.healthMap[status.SourceID] = status
		}
	}
	r.lastCheck = now
	r.mu.Unlock()

	for _, status := range statuses {
		if status.SourceID != "" {
			r.recordHealth(status)
		}
	}
}

// StartHealthCheckLoop runs PerformHealthChecks on a fixed interval for the
// lifetime of the registry. Stopped by Close.
func (r *Registry) StartHealthCheckLoop(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}

	r.mu.Lock()
	if r.closed || r.loopCancel != nil {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.loopCancel = cancel
	r.loopDone = make(chan struct{})
	done := r.loopDone
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer goroutine.Recover("health-check-loop", r.logger)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.PerformHealthChecks(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	r.logger.Infow("Health check loop started", "interval", interval)
}

// recordHealth feeds an observation into the monitor when one is attached
func (r *Registry) recordHealth(status core.HealthStatus) {
	if r.monitor != nil {
		r.monitor.Record(status)
	}
}

// Close stops the health-check loop and closes every connector
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	cancel := r.loopCancel
	done := r.loopDone
	connectors := make([]connector.Connector, 0, len(r.connectors))
	for _, conn := range r.connectors {
		connectors = append(connectors, conn)
	}
	r.connectors = make(map[string]connector.Connector)
	r.healthMap = make(map[string]core.HealthStatus)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	for _, conn := range connectors {
		if err := conn.Close(); err != nil {
			r.logger.Warnf("Closing connector %s: %v", conn.Source().ID, err)
		}
	}
}
