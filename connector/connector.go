package connector

import (
	"context"

	"darkmon/core"
)

// Connector wraps one external threat-intelligence provider behind uniform
// search operations. Implementations route every provider call through the
// shared execute helper so retry, rate-limit and health semantics are
// identical across vendors.
//
// Search operations never fail for partial or empty results; they return an
// error only for fatal or connection-level failures, classified as a
// *core.ConnectorError.
type Connector interface {
	// Source returns the immutable source registration
	Source() core.Source

	// Initialize fetches credentials and performs one health check. It must
	// succeed before any search call; a connector that fails to initialize is
	// not registered.
	Initialize(ctx context.Context) error

	// SearchCredentials queries the provider for credential exposures
	SearchCredentials(ctx context.Context, q core.CredentialQuery) ([]core.CredentialResult, error)

	// SearchMarketplaces queries the provider for marketplace listings
	SearchMarketplaces(ctx context.Context, q core.MarketplaceQuery) ([]core.MarketplaceResult, error)

	// SearchBreachDatabases queries the provider for breach records
	SearchBreachDatabases(ctx context.Context, q core.BreachQuery) ([]core.BreachResult, error)

	// MonitorKeywords checks the provider for mentions of the given keywords
	MonitorKeywords(ctx context.Context, keywords []string) (*core.KeywordMonitorResult, error)

	// PerformHealthCheck runs the provider's lightweight probe under the same
	// rate limiter and updates the connector's health status
	PerformHealthCheck(ctx context.Context) core.HealthStatus

	// HealthStatus returns the last recorded health snapshot
	HealthStatus() core.HealthStatus

	// Close releases provider resources
	Close() error
}
