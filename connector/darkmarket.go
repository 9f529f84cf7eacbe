package connector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"darkmon/core"
	"darkmon/credentials"
)

// =============================================================================
// DarkMarket Connector (marketplace scanner)
// =============================================================================

// DarkMarket queries a marketplace and forum scanner for listings and keyword
// mentions. Bearer token auth; the token is the primary key material and the
// API key acts as the account identifier.
type DarkMarket struct {
	*Base
}

// NewDarkMarket creates a DarkMarket connector for the given source
func NewDarkMarket(source core.Source, store *credentials.Store, logger *zap.SugaredLogger) (*DarkMarket, error) {
	base, err := NewBase(source, store, logger)
	if err != nil {
		return nil, err
	}

	// The scanner issues a bearer token alongside the account key
	store.SetValidator(source.ID, func(creds *core.Credentials) error {
		if err := credentials.DefaultValidator(creds); err != nil {
			return err
		}
		if creds.Token == "" {
			return fmt.Errorf("%w: missing bearer token", credentials.ErrInvalidCredentials)
		}
		return nil
	})

	return &DarkMarket{Base: base}, nil
}

// Initialize fetches credentials and probes the API once
func (c *DarkMarket) Initialize(ctx context.Context) error {
	return c.initialize(ctx, c.probe)
}

// PerformHealthCheck probes the scanner health endpoint
func (c *DarkMarket) PerformHealthCheck(ctx context.Context) core.HealthStatus {
	return c.runHealthCheck(ctx, c.probe)
}

func (c *DarkMarket) probe(ctx context.Context, creds *core.Credentials) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.source.BaseURL+"/api/health", nil)
	if err != nil {
		return err
	}
	c.addAuth(req, creds)
	return doJSON(c.client, req, nil)
}

func (c *DarkMarket) addAuth(req *http.Request, creds *core.Credentials) {
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	req.Header.Set("X-Account-Key", creds.APIKey)
	for k, v := range creds.Headers {
		req.Header.Set(k, v)
	}
}

// =============================================================================
// Provider API Types
// =============================================================================

type darkMarketSearchRequest struct {
	Keywords []string `json:"keywords,omitempty"`
	Domains  []string `json:"domains,omitempty"`
	Since    string   `json:"since"`
	Until    string   `json:"until"`
}

type darkMarketSearchResponse struct {
	Total    int                 `json:"total"`
	Listings []darkMarketListing `json:"listings"`
}

type darkMarketListing struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Marketplace string  `json:"marketplace"`
	Category    string  `json:"category"`
	PriceUSD    float64 `json:"price_usd"`
	Confidence  float64 `json:"confidence"` // 0-1
	FirstSeen   string  `json:"first_seen"`
	LastSeen    string  `json:"last_seen"`
	VendorName  string  `json:"vendor_name"`
	Escrow      bool    `json:"escrow"`
}

type darkMarketMentionsResponse struct {
	Total    int                 `json:"total"`
	Mentions []darkMarketMention `json:"mentions"`
}

type darkMarketMention struct {
	Keyword  string `json:"keyword"`
	Context  string `json:"context"`
	URL      string `json:"url"`
	SeenAt   string `json:"seen_at"`
	SiteKind string `json:"site_kind"` // market, forum, paste
}

// =============================================================================
// Search Operations
// =============================================================================

// SearchMarketplaces queries the scanner's listing index
func (c *DarkMarket) SearchMarketplaces(ctx context.Context, q core.MarketplaceQuery) ([]core.MarketplaceResult, error) {
	if err := q.Range.Validate(); err != nil {
		return nil, err
	}

	payload := darkMarketSearchRequest{
		Keywords: q.Keywords,
		Domains:  q.Domains,
		Since:    q.Range.Start.UTC().Format(time.RFC3339),
		Until:    q.Range.End.UTC().Format(time.RFC3339),
	}

	var response darkMarketSearchResponse
	err := c.executeRequest(ctx, "search_marketplaces", func(ctx context.Context, creds *core.Credentials) error {
		req, err := jsonRequest(ctx, http.MethodPost, c.source.BaseURL+"/api/listings/search", payload)
		if err != nil {
			return err
		}
		c.addAuth(req, creds)
		return doJSON(c.client, req, &response)
	})
	if err != nil {
		return nil, err
	}

	results := make([]core.MarketplaceResult, 0, len(response.Listings))
	for _, listing := range response.Listings {
		confidence := listing.Confidence * 100
		if confidence < q.MinConfidence {
			continue
		}

		results = append(results, core.MarketplaceResult{
			SourceID:     c.source.ID,
			URL:          listing.URL,
			Title:        listing.Title,
			Marketplace:  listing.Marketplace,
			Category:     listing.Category,
			PriceUSD:     listing.PriceUSD,
			Confidence:   confidence,
			RiskScore:    c.scoreListing(listing),
			DiscoveredAt: parseProviderTime(listing.FirstSeen),
			OccurredAt:   parseProviderTime(listing.LastSeen),
			Metadata: map[string]interface{}{
				"darkmarket_vendor": listing.VendorName,
				"darkmarket_escrow": listing.Escrow,
			},
		})
	}
	return results, nil
}

// scoreListing weighs category and listing freshness
func (c *DarkMarket) scoreListing(listing darkMarketListing) int {
	score := 35 + int(listing.Confidence*25)

	switch strings.ToLower(listing.Category) {
	case "credentials", "accounts", "databases":
		score += 25
	case "documents", "pii":
		score += 15
	}

	if seen := parseProviderTime(listing.LastSeen); !seen.IsZero() {
		if time.Since(seen) < 7*24*time.Hour {
			score += 10
		}
	}
	return core.ClampRiskScore(score)
}

// MonitorKeywords checks the scanner's mention index for the given keywords
func (c *DarkMarket) MonitorKeywords(ctx context.Context, keywords []string) (*core.KeywordMonitorResult, error) {
	if len(keywords) == 0 {
		return &core.KeywordMonitorResult{
			SourceID:     c.source.ID,
			DiscoveredAt: time.Now(),
		}, nil
	}

	params := url.Values{}
	params.Set("keywords", strings.Join(keywords, ","))
	target := c.source.BaseURL + "/api/mentions?" + params.Encode()

	var response darkMarketMentionsResponse
	err := c.executeRequest(ctx, "monitor_keywords", func(ctx context.Context, creds *core.Credentials) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		c.addAuth(req, creds)
		return doJSON(c.client, req, &response)
	})
	if err != nil {
		return nil, err
	}

	result := &core.KeywordMonitorResult{
		SourceID:     c.source.ID,
		Keywords:     keywords,
		TotalHits:    response.Total,
		DiscoveredAt: time.Now(),
	}
	for _, mention := range response.Mentions {
		result.Mentions = append(result.Mentions, core.KeywordHit{
			Keyword:    mention.Keyword,
			Context:    mention.Context,
			URL:        mention.URL,
			OccurredAt: parseProviderTime(mention.SeenAt),
		})
	}

	// More hits on more sites means more exposure
	score := 10 + response.Total*5
	result.RiskScore = core.ClampRiskScore(score)
	return result, nil
}

// SearchCredentials is not a DarkMarket capability; the scanner indexes
// listings and mentions, not account dumps.
func (c *DarkMarket) SearchCredentials(ctx context.Context, q core.CredentialQuery) ([]core.CredentialResult, error) {
	return []core.CredentialResult{}, nil
}

// SearchBreachDatabases is not a DarkMarket capability
func (c *DarkMarket) SearchBreachDatabases(ctx context.Context, q core.BreachQuery) ([]core.BreachResult, error) {
	return []core.BreachResult{}, nil
}

// Ensure DarkMarket satisfies the interface at compile time
var _ Connector = (*DarkMarket)(nil)
