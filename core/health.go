package core

import "time"

// HealthStatus is a point-in-time snapshot of one source's usability.
// IsHealthy is only ever set true by a passing health check in the same
// update cycle.
type HealthStatus struct {
	SourceID          string        `json:"source_id"`
	IsHealthy         bool          `json:"is_healthy"`
	LastCheck         time.Time     `json:"last_check"`
	ResponseTime      time.Duration `json:"response_time"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
	LastError         string        `json:"last_error,omitempty"`
}

// HealthMetrics is a rolling-window aggregation derived on demand from a
// bounded observation history; it is never stored.
type HealthMetrics struct {
	SourceID            string        `json:"source_id"`
	WindowStart         time.Time     `json:"window_start"`
	TotalChecks         int           `json:"total_checks"`
	SuccessCount        int           `json:"success_count"`
	FailureCount        int           `json:"failure_count"`
	ErrorRate           float64       `json:"error_rate"` // 0-1
	MinResponseTime     time.Duration `json:"min_response_time"`
	AvgResponseTime     time.Duration `json:"avg_response_time"`
	MaxResponseTime     time.Duration `json:"max_response_time"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Uptime              float64       `json:"uptime"` // 0-1
}

// SystemHealthSummary aggregates across all tracked sources
type SystemHealthSummary struct {
	TotalSources     int           `json:"total_sources"`
	HealthySources   int           `json:"healthy_sources"`
	UnhealthySources int           `json:"unhealthy_sources"`
	OverallUptime    float64       `json:"overall_uptime"`
	AvgResponseTime  time.Duration `json:"avg_response_time"` // weighted by observation count
	GeneratedAt      time.Time     `json:"generated_at"`
}

// RegistryStats summarizes the registry for operators
type RegistryStats struct {
	TotalConnectors     int       `json:"total_connectors"`
	HealthyConnectors   int       `json:"healthy_connectors"`
	UnhealthyConnectors int       `json:"unhealthy_connectors"`
	LastHealthCheck     time.Time `json:"last_health_check"`
}
