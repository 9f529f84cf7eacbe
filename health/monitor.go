package health

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"darkmon/core"
	"darkmon/metrics"
	"darkmon/util/goroutine"
)

// =============================================================================
// Alert Types
// =============================================================================

// AlertType identifies the threshold that fired
type AlertType string

const (
	AlertHighErrorRate       AlertType = "high_error_rate"
	AlertHighResponseTime    AlertType = "high_response_time"
	AlertConsecutiveFailures AlertType = "consecutive_failures"
	AlertSourceRecovered     AlertType = "source_recovered"
)

// Alert is delivered to registered callbacks when a threshold trips
type Alert struct {
	ID        string            `json:"id"`
	Type      AlertType         `json:"type"`
	SourceID  string            `json:"source_id"`
	Message   string            `json:"message"`
	Value     float64           `json:"value"`
	Threshold float64           `json:"threshold"`
	FiredAt   time.Time         `json:"fired_at"`
	Status    core.HealthStatus `json:"status"`
}

// Callback receives alerts of one type. Callback panics are isolated; they
// never interrupt other callbacks or the monitor's own state update.
type Callback func(alert Alert)

// Thresholds configures alert conditions
type Thresholds struct {
	// ErrorRate over the recent sub-window, 0-1
	ErrorRate float64 `json:"error_rate"`
	// ResponseTime above which the recent average alerts
	ResponseTime time.Duration `json:"response_time"`
	// ConsecutiveFailures streak length that alerts
	ConsecutiveFailures int `json:"consecutive_failures"`
}

// DefaultThresholds returns sensible defaults
func DefaultThresholds() Thresholds {
	return Thresholds{
		ErrorRate:           0.5,
		ResponseTime:        5 * time.Second,
		ConsecutiveFailures: 3,
	}
}

// =============================================================================
// Health Monitor
// =============================================================================

const (
	// historyCap bounds the per-source observation buffer; oldest dropped first
	historyCap = 100

	// recentWindow is how many trailing observations alert conditions examine
	recentWindow = 10
)

// Monitor records health-check outcomes over time, computes rolling metrics
// on demand, and fires threshold-based alerts.
type Monitor struct {
	thresholds Thresholds
	logger     *zap.SugaredLogger

	mu        sync.RWMutex
	history   map[string][]core.HealthStatus
	callbacks map[AlertType][]Callback
}

// NewMonitor creates a health monitor with the given thresholds
func NewMonitor(thresholds Thresholds, logger *zap.SugaredLogger) *Monitor {
	return &Monitor{
		thresholds: thresholds,
		logger:     logger,
		history:    make(map[string][]core.HealthStatus),
		callbacks:  make(map[AlertType][]Callback),
	}
}

// RegisterAlertCallback subscribes a callback to one alert type
func (m *Monitor) RegisterAlertCallback(alertType AlertType, cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks[alertType] = append(m.callbacks[alertType], cb)
}

// Record appends an observation to the source's bounded history and evaluates
// alert conditions.
func (m *Monitor) Record(status core.HealthStatus) {
	var alerts []Alert

	m.mu.Lock()
	buf := m.history[status.SourceID]
	wasHealthy := len(buf) == 0 || buf[len(buf)-1].IsHealthy

	buf = append(buf, status)
	if len(buf) > historyCap {
		buf = buf[len(buf)-historyCap:]
	}
	m.history[status.SourceID] = buf

	alerts = m.evaluateLocked(status, buf, wasHealthy)
	m.mu.Unlock()

	for _, alert := range alerts {
		m.deliver(alert)
	}
}

// evaluateLocked checks thresholds against the recent sub-window and the full
// trailing failure streak. Must hold the lock.
func (m *Monitor) evaluateLocked(status core.HealthStatus, buf []core.HealthStatus, wasHealthy bool) []Alert {
	var alerts []Alert

	recent := buf
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}

	failures := 0
	var totalRT time.Duration
	for _, obs := range recent {
		if !obs.IsHealthy {
			failures++
		}
		totalRT += obs.ResponseTime
	}
	errorRate := float64(failures) / float64(len(recent))
	avgRT := totalRT / time.Duration(len(recent))

	if m.thresholds.ErrorRate > 0 && errorRate >= m.thresholds.ErrorRate {
		alerts = append(alerts, m.newAlert(AlertHighErrorRate, status, errorRate, m.thresholds.ErrorRate,
			"error rate over recent window exceeded threshold"))
	}

	if m.thresholds.ResponseTime > 0 && avgRT >= m.thresholds.ResponseTime {
		alerts = append(alerts, m.newAlert(AlertHighResponseTime, status, avgRT.Seconds(), m.thresholds.ResponseTime.Seconds(),
			"average response time over recent window exceeded threshold"))
	}

	streak := trailingFailures(buf)
	if m.thresholds.ConsecutiveFailures > 0 && streak >= m.thresholds.ConsecutiveFailures {
		alerts = append(alerts, m.newAlert(AlertConsecutiveFailures, status, float64(streak), float64(m.thresholds.ConsecutiveFailures),
			"consecutive failure streak exceeded threshold"))
	}

	if status.IsHealthy && !wasHealthy {
		alerts = append(alerts, m.newAlert(AlertSourceRecovered, status, 0, 0,
			"source recovered after failing checks"))
	}

	return alerts
}

func (m *Monitor) newAlert(alertType AlertType, status core.HealthStatus, value, threshold float64, message string) Alert {
	return Alert{
		ID:        uuid.New().String(),
		Type:      alertType,
		SourceID:  status.SourceID,
		Message:   message,
		Value:     value,
		Threshold: threshold,
		FiredAt:   time.Now(),
		Status:    status,
	}
}

// deliver invokes every callback registered for the alert's type, isolating
// panics per callback.
func (m *Monitor) deliver(alert Alert) {
	metrics.HealthAlerts.WithLabelValues(alert.SourceID, string(alert.Type)).Inc()

	m.mu.RLock()
	callbacks := make([]Callback, len(m.callbacks[alert.Type]))
	copy(callbacks, m.callbacks[alert.Type])
	m.mu.RUnlock()

	for _, cb := range callbacks {
		func() {
			defer goroutine.Recover("alert-callback-"+string(alert.Type), m.logger)
			cb(alert)
		}()
	}

	if m.logger != nil {
		m.logger.Warnw("Health alert fired",
			"type", alert.Type,
			"source", alert.SourceID,
			"value", alert.Value,
			"threshold", alert.Threshold)
	}
}

// =============================================================================
// Metrics
// =============================================================================

// trailingFailures counts failures from the newest entry backward until a
// healthy entry is found
func trailingFailures(buf []core.HealthStatus) int {
	streak := 0
	for i := len(buf) - 1; i >= 0; i-- {
		if buf[i].IsHealthy {
			break
		}
		streak++
	}
	return streak
}

// Metrics computes a rolling aggregation over observations within the window.
// Derived on demand; never stored.
func (m *Monitor) Metrics(sourceID string, window time.Duration) core.HealthMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	cutoff := now.Add(-window)

	result := core.HealthMetrics{
		SourceID:    sourceID,
		WindowStart: cutoff,
	}

	buf := m.history[sourceID]
	var inWindow []core.HealthStatus
	for _, obs := range buf {
		if obs.LastCheck.After(cutoff) {
			inWindow = append(inWindow, obs)
		}
	}
	if len(inWindow) == 0 {
		return result
	}

	var totalRT time.Duration
	result.MinResponseTime = inWindow[0].ResponseTime
	for _, obs := range inWindow {
		result.TotalChecks++
		if obs.IsHealthy {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
		totalRT += obs.ResponseTime
		if obs.ResponseTime < result.MinResponseTime {
			result.MinResponseTime = obs.ResponseTime
		}
		if obs.ResponseTime > result.MaxResponseTime {
			result.MaxResponseTime = obs.ResponseTime
		}
	}

	result.ErrorRate = float64(result.FailureCount) / float64(result.TotalChecks)
	result.AvgResponseTime = totalRT / time.Duration(result.TotalChecks)
	result.ConsecutiveFailures = trailingFailures(inWindow)
	result.Uptime = float64(result.SuccessCount) / float64(result.TotalChecks)
	return result
}

// SystemHealth aggregates across all tracked sources
func (m *Monitor) SystemHealth() core.SystemHealthSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := core.SystemHealthSummary{GeneratedAt: time.Now()}

	var totalChecks, totalSuccess int
	var weightedRT time.Duration
	for _, buf := range m.history {
		if len(buf) == 0 {
			continue
		}
		summary.TotalSources++
		if buf[len(buf)-1].IsHealthy {
			summary.HealthySources++
		} else {
			summary.UnhealthySources++
		}
		for _, obs := range buf {
			totalChecks++
			if obs.IsHealthy {
				totalSuccess++
			}
			weightedRT += obs.ResponseTime
		}
	}

	if totalChecks > 0 {
		summary.OverallUptime = float64(totalSuccess) / float64(totalChecks)
		summary.AvgResponseTime = weightedRT / time.Duration(totalChecks)
	}
	return summary
}

// Reset drops one source's history, e.g. after re-registration
func (m *Monitor) Reset(sourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, sourceID)
}

// Close drops all state
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = make(map[string][]core.HealthStatus)
	m.callbacks = make(map[AlertType][]Callback)
}
