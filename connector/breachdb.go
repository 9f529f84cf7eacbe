package connector

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"darkmon/core"
	"darkmon/credentials"
)

// =============================================================================
// BreachDB Connector (breach repository)
// =============================================================================

// breachDBUserAgent identifies this client to the provider, which rejects
// anonymous agents
const breachDBUserAgent = "darkmon-aggregator"

// BreachDB queries a breach repository for catalogued incidents and breached
// accounts. Single API key header auth.
type BreachDB struct {
	*Base
}

// NewBreachDB creates a BreachDB connector for the given source
func NewBreachDB(source core.Source, store *credentials.Store, logger *zap.SugaredLogger) (*BreachDB, error) {
	base, err := NewBase(source, store, logger)
	if err != nil {
		return nil, err
	}
	return &BreachDB{Base: base}, nil
}

// Initialize fetches credentials and probes the API once
func (c *BreachDB) Initialize(ctx context.Context) error {
	return c.initialize(ctx, c.probe)
}

// PerformHealthCheck probes the subscription status endpoint, the cheapest
// authenticated call the provider offers
func (c *BreachDB) PerformHealthCheck(ctx context.Context) core.HealthStatus {
	return c.runHealthCheck(ctx, c.probe)
}

func (c *BreachDB) probe(ctx context.Context, creds *core.Credentials) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.source.BaseURL+"/api/v3/subscription/status", nil)
	if err != nil {
		return err
	}
	c.addAuth(req, creds)
	return doJSON(c.client, req, nil)
}

func (c *BreachDB) addAuth(req *http.Request, creds *core.Credentials) {
	req.Header.Set("X-Api-Key", creds.APIKey)
	req.Header.Set("User-Agent", breachDBUserAgent)
	for k, v := range creds.Headers {
		req.Header.Set(k, v)
	}
}

// =============================================================================
// Provider API Types
// =============================================================================

type breachDBBreach struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Domain      string   `json:"domain"`
	BreachDate  string   `json:"breach_date"`
	AddedDate   string   `json:"added_date"`
	PwnCount    int64    `json:"pwn_count"`
	DataClasses []string `json:"data_classes"`
	IsVerified  bool     `json:"is_verified"`
	IsSensitive bool     `json:"is_sensitive"`
	IsRetired   bool     `json:"is_retired"`
	Description string   `json:"description"`
}

// =============================================================================
// Search Operations
// =============================================================================

// SearchBreachDatabases queries the breach catalogue, one call per domain
// filter (or one unfiltered call when no domains are given).
func (c *BreachDB) SearchBreachDatabases(ctx context.Context, q core.BreachQuery) ([]core.BreachResult, error) {
	if err := q.Range.Validate(); err != nil {
		return nil, err
	}

	domains := q.Domains
	if len(domains) == 0 {
		domains = []string{""}
	}

	var results []core.BreachResult
	seen := make(map[string]bool)

	for _, domain := range domains {
		var breaches []breachDBBreach
		target := c.source.BaseURL + "/api/v3/breaches"
		if domain != "" {
			target += "?domain=" + url.QueryEscape(domain)
		}

		err := c.executeRequest(ctx, "search_breaches", func(ctx context.Context, creds *core.Credentials) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return err
			}
			c.addAuth(req, creds)
			return doJSON(c.client, req, &breaches)
		})
		if err != nil {
			return nil, err
		}

		for _, breach := range breaches {
			if seen[breach.Name] {
				continue
			}
			seen[breach.Name] = true

			occurred := parseProviderTime(breach.BreachDate)
			if !occurred.IsZero() && (occurred.Before(q.Range.Start) || occurred.After(q.Range.End)) {
				continue
			}
			if q.VerifiedOnly && !breach.IsVerified {
				continue
			}

			result := core.BreachResult{
				SourceID:     c.source.ID,
				BreachName:   breach.Name,
				RecordCount:  breach.PwnCount,
				DataClasses:  breach.DataClasses,
				Verified:     breach.IsVerified,
				RiskScore:    c.scoreBreach(breach),
				DiscoveredAt: parseProviderTime(breach.AddedDate),
				OccurredAt:   occurred,
				Metadata: map[string]interface{}{
					"breachdb_title":        breach.Title,
					"breachdb_is_sensitive": breach.IsSensitive,
					"breachdb_is_retired":   breach.IsRetired,
					"breachdb_description":  breach.Description,
				},
			}
			if breach.Domain != "" {
				result.AffectedDomains = []string{breach.Domain}
			}
			results = append(results, result)
		}
	}
	return results, nil
}

// scoreBreach weighs scale, sensitivity and exposed data classes
func (c *BreachDB) scoreBreach(breach breachDBBreach) int {
	score := 30
	if breach.IsVerified {
		score += 15
	}
	if breach.IsSensitive {
		score += 15
	}
	switch {
	case breach.PwnCount > 10_000_000:
		score += 20
	case breach.PwnCount > 100_000:
		score += 10
	}
	for _, class := range breach.DataClasses {
		lower := strings.ToLower(class)
		if strings.Contains(lower, "password") || strings.Contains(lower, "credit card") {
			score += 15
			break
		}
	}
	return core.ClampRiskScore(score)
}

// SearchCredentials maps per-account breach membership into credential
// exposures, one provider call per email.
func (c *BreachDB) SearchCredentials(ctx context.Context, q core.CredentialQuery) ([]core.CredentialResult, error) {
	if err := q.Range.Validate(); err != nil {
		return nil, err
	}

	var results []core.CredentialResult
	for _, email := range q.Emails {
		var breaches []breachDBBreach
		target := c.source.BaseURL + "/api/v3/breachedaccount/" + url.PathEscape(email) + "?truncateResponse=false"

		err := c.executeRequest(ctx, "search_credentials", func(ctx context.Context, creds *core.Credentials) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return err
			}
			c.addAuth(req, creds)
			err = doJSON(c.client, req, &breaches)
			// A 404 means the account is clean, not a failure
			var statusErr *HTTPStatusError
			if err != nil && errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
				breaches = nil
				return nil
			}
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, breach := range breaches {
			if q.VerifiedOnly && !breach.IsVerified {
				continue
			}
			occurred := parseProviderTime(breach.BreachDate)
			if !occurred.IsZero() && (occurred.Before(q.Range.Start) || occurred.After(q.Range.End)) {
				continue
			}

			results = append(results, core.CredentialResult{
				SourceID:     c.source.ID,
				Email:        email,
				Domain:       breach.Domain,
				BreachName:   breach.Name,
				Verified:     breach.IsVerified,
				Confidence:   95, // catalogue membership is near-certain
				RiskScore:    c.scoreBreach(breach),
				DiscoveredAt: parseProviderTime(breach.AddedDate),
				OccurredAt:   occurred,
				Metadata: map[string]interface{}{
					"breachdb_title":        breach.Title,
					"breachdb_data_classes": breach.DataClasses,
				},
			})
		}
	}
	return results, nil
}

// SearchMarketplaces is not a BreachDB capability
func (c *BreachDB) SearchMarketplaces(ctx context.Context, q core.MarketplaceQuery) ([]core.MarketplaceResult, error) {
	return []core.MarketplaceResult{}, nil
}

// MonitorKeywords is not a BreachDB capability
func (c *BreachDB) MonitorKeywords(ctx context.Context, keywords []string) (*core.KeywordMonitorResult, error) {
	return &core.KeywordMonitorResult{
		SourceID:     c.source.ID,
		Keywords:     keywords,
		DiscoveredAt: time.Now(),
	}, nil
}

// Ensure BreachDB satisfies the interface at compile time
var _ Connector = (*BreachDB)(nil)
