package connector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"darkmon/core"
	"darkmon/credentials"
)

// =============================================================================
// LeakWatch Connector (credential-exposure database)
// =============================================================================

// LeakWatch queries a credential-exposure database. Authentication is a
// per-request API key header; the API secret, when issued, rides along as a
// companion header.
type LeakWatch struct {
	*Base
}

// NewLeakWatch creates a LeakWatch connector for the given source
func NewLeakWatch(source core.Source, store *credentials.Store, logger *zap.SugaredLogger) (*LeakWatch, error) {
	base, err := NewBase(source, store, logger)
	if err != nil {
		return nil, err
	}

	// LeakWatch keys always ship with a companion secret
	store.SetValidator(source.ID, func(creds *core.Credentials) error {
		if err := credentials.DefaultValidator(creds); err != nil {
			return err
		}
		if creds.APISecret == "" {
			return fmt.Errorf("%w: missing API secret", credentials.ErrInvalidCredentials)
		}
		return nil
	})

	return &LeakWatch{Base: base}, nil
}

// Initialize fetches credentials and probes the API once
func (c *LeakWatch) Initialize(ctx context.Context) error {
	return c.initialize(ctx, c.probe)
}

// PerformHealthCheck probes the provider status endpoint
func (c *LeakWatch) PerformHealthCheck(ctx context.Context) core.HealthStatus {
	return c.runHealthCheck(ctx, c.probe)
}

func (c *LeakWatch) probe(ctx context.Context, creds *core.Credentials) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.source.BaseURL+"/v1/status", nil)
	if err != nil {
		return err
	}
	c.addAuth(req, creds)
	return doJSON(c.client, req, nil)
}

func (c *LeakWatch) addAuth(req *http.Request, creds *core.Credentials) {
	req.Header.Set("X-LeakWatch-Key", creds.APIKey)
	if creds.APISecret != "" {
		req.Header.Set("X-LeakWatch-Secret", creds.APISecret)
	}
	for k, v := range creds.Headers {
		req.Header.Set(k, v)
	}
}

// =============================================================================
// Provider API Types
// =============================================================================

type leakWatchSearchRequest struct {
	Emails    []string `json:"emails,omitempty"`
	Domains   []string `json:"domains,omitempty"`
	Usernames []string `json:"usernames,omitempty"`
	Hashes    []string `json:"hashes,omitempty"`
	Since     string   `json:"since"`
	Until     string   `json:"until"`
}

type leakWatchSearchResponse struct {
	Total   int             `json:"total"`
	Results []leakWatchLeak `json:"results"`
}

type leakWatchLeak struct {
	Email        string  `json:"email"`
	Username     string  `json:"username"`
	Domain       string  `json:"domain"`
	BreachName   string  `json:"breach_name"`
	PasswordHash string  `json:"password_hash"`
	Verified     bool    `json:"verified"`
	Confidence   float64 `json:"confidence"` // 0-1
	FoundAt      string  `json:"found_at"`
	LeakedAt     string  `json:"leaked_at"`
	SourceDump   string  `json:"source_dump"`
}

// =============================================================================
// Search Operations
// =============================================================================

// SearchCredentials queries the exposure index for the given identities
func (c *LeakWatch) SearchCredentials(ctx context.Context, q core.CredentialQuery) ([]core.CredentialResult, error) {
	if err := q.Range.Validate(); err != nil {
		return nil, err
	}

	payload := leakWatchSearchRequest{
		Emails:    q.Emails,
		Domains:   q.Domains,
		Usernames: q.Usernames,
		Hashes:    q.Hashes,
		Since:     q.Range.Start.UTC().Format(time.RFC3339),
		Until:     q.Range.End.UTC().Format(time.RFC3339),
	}

	var response leakWatchSearchResponse
	err := c.executeRequest(ctx, "search_credentials", func(ctx context.Context, creds *core.Credentials) error {
		req, err := jsonRequest(ctx, http.MethodPost, c.source.BaseURL+"/v1/search", payload)
		if err != nil {
			return err
		}
		c.addAuth(req, creds)
		return doJSON(c.client, req, &response)
	})
	if err != nil {
		return nil, err
	}

	results := make([]core.CredentialResult, 0, len(response.Results))
	for _, leak := range response.Results {
		confidence := leak.Confidence * 100
		if confidence < q.MinConfidence {
			continue
		}
		if q.VerifiedOnly && !leak.Verified {
			continue
		}

		result := core.CredentialResult{
			SourceID:     c.source.ID,
			Email:        leak.Email,
			Username:     leak.Username,
			Domain:       leak.Domain,
			BreachName:   leak.BreachName,
			PasswordHash: leak.PasswordHash,
			Verified:     leak.Verified,
			Confidence:   confidence,
			RiskScore:    c.scoreLeak(leak),
			DiscoveredAt: parseProviderTime(leak.FoundAt),
			OccurredAt:   parseProviderTime(leak.LeakedAt),
			Metadata: map[string]interface{}{
				"leakwatch_source_dump": leak.SourceDump,
			},
		}
		results = append(results, result)
	}
	return results, nil
}

// scoreLeak derives a 0-100 risk score. Verified exposures with recoverable
// password material score highest; recency adds weight.
func (c *LeakWatch) scoreLeak(leak leakWatchLeak) int {
	score := 40
	if leak.Verified {
		score += 20
	}
	if leak.PasswordHash != "" {
		score += 15
	}
	score += int(leak.Confidence * 15)

	if leaked := parseProviderTime(leak.LeakedAt); !leaked.IsZero() {
		if time.Since(leaked) < 30*24*time.Hour {
			score += 10
		}
	}
	return core.ClampRiskScore(score)
}

// SearchMarketplaces is not a LeakWatch capability; the provider indexes
// credential dumps only. Returns an empty set rather than an error.
func (c *LeakWatch) SearchMarketplaces(ctx context.Context, q core.MarketplaceQuery) ([]core.MarketplaceResult, error) {
	return []core.MarketplaceResult{}, nil
}

// SearchBreachDatabases maps the exposure index's per-dump view into breach
// records.
func (c *LeakWatch) SearchBreachDatabases(ctx context.Context, q core.BreachQuery) ([]core.BreachResult, error) {
	if err := q.Range.Validate(); err != nil {
		return nil, err
	}

	payload := leakWatchSearchRequest{
		Emails:  q.Emails,
		Domains: q.Domains,
		Since:   q.Range.Start.UTC().Format(time.RFC3339),
		Until:   q.Range.End.UTC().Format(time.RFC3339),
	}

	var response leakWatchSearchResponse
	err := c.executeRequest(ctx, "search_breaches", func(ctx context.Context, creds *core.Credentials) error {
		req, err := jsonRequest(ctx, http.MethodPost, c.source.BaseURL+"/v1/dumps/search", payload)
		if err != nil {
			return err
		}
		c.addAuth(req, creds)
		return doJSON(c.client, req, &response)
	})
	if err != nil {
		return nil, err
	}

	// Collapse per-account rows into one record per dump
	byDump := make(map[string]*core.BreachResult)
	order := make([]string, 0)
	for _, leak := range response.Results {
		if q.VerifiedOnly && !leak.Verified {
			continue
		}
		record, ok := byDump[leak.BreachName]
		if !ok {
			record = &core.BreachResult{
				SourceID:     c.source.ID,
				BreachName:   leak.BreachName,
				Verified:     leak.Verified,
				DiscoveredAt: parseProviderTime(leak.FoundAt),
				OccurredAt:   parseProviderTime(leak.LeakedAt),
				Metadata: map[string]interface{}{
					"leakwatch_source_dump": leak.SourceDump,
				},
			}
			byDump[leak.BreachName] = record
			order = append(order, leak.BreachName)
		}
		record.RecordCount++
		if leak.Domain != "" && !containsString(record.AffectedDomains, leak.Domain) {
			record.AffectedDomains = append(record.AffectedDomains, leak.Domain)
		}
		record.RiskScore = core.ClampRiskScore(maxInt(record.RiskScore, c.scoreLeak(leak)))
	}

	results := make([]core.BreachResult, 0, len(order))
	for _, name := range order {
		results = append(results, *byDump[name])
	}
	return results, nil
}

// MonitorKeywords is not a LeakWatch capability
func (c *LeakWatch) MonitorKeywords(ctx context.Context, keywords []string) (*core.KeywordMonitorResult, error) {
	return &core.KeywordMonitorResult{
		SourceID:     c.source.ID,
		Keywords:     keywords,
		DiscoveredAt: time.Now(),
	}, nil
}

// =============================================================================
// Helpers
// =============================================================================

func parseProviderTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t
	}
	return time.Time{}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Ensure LeakWatch satisfies the interface at compile time
var _ Connector = (*LeakWatch)(nil)
