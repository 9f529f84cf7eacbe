package core

import (
	"sort"
	"strings"
	"time"
)

// =============================================================================
// Risk Scoring
// =============================================================================

// RiskBand buckets a 0-100 risk score for display and routing
type RiskBand string

const (
	RiskBandInfo     RiskBand = "info"
	RiskBandLow      RiskBand = "low"
	RiskBandMedium   RiskBand = "medium"
	RiskBandHigh     RiskBand = "high"
	RiskBandCritical RiskBand = "critical"
)

// RiskBandFor maps a 0-100 score to its band
func RiskBandFor(score int) RiskBand {
	switch {
	case score >= 90:
		return RiskBandCritical
	case score >= 70:
		return RiskBandHigh
	case score >= 40:
		return RiskBandMedium
	case score >= 20:
		return RiskBandLow
	default:
		return RiskBandInfo
	}
}

// ClampRiskScore bounds a provider-derived score to 0-100
func ClampRiskScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// =============================================================================
// Result Types
// =============================================================================

// CredentialResult is a normalized credential-exposure finding
type CredentialResult struct {
	SourceID     string    `json:"source_id"`
	Email        string    `json:"email,omitempty"`
	Username     string    `json:"username,omitempty"`
	Domain       string    `json:"domain,omitempty"`
	BreachName   string    `json:"breach_name,omitempty"`
	PasswordHash string    `json:"password_hash,omitempty"` // only what the provider itself exposes
	Verified     bool      `json:"verified"`
	Confidence   float64   `json:"confidence"` // 0-100
	RiskScore    int       `json:"risk_score"` // 0-100
	DiscoveredAt time.Time `json:"discovered_at"`
	OccurredAt   time.Time `json:"occurred_at"`

	// Provider-specific fields preserved as returned
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// DedupKey collapses the same exposure reported by multiple sources
func (r *CredentialResult) DedupKey() string {
	return strings.ToLower(r.Email) + "|" + strings.ToLower(r.Username) + "|" + strings.ToLower(r.Domain)
}

// MarketplaceResult is a normalized marketplace listing or mention
type MarketplaceResult struct {
	SourceID     string    `json:"source_id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Marketplace  string    `json:"marketplace,omitempty"`
	Category     string    `json:"category,omitempty"`
	PriceUSD     float64   `json:"price_usd,omitempty"`
	Confidence   float64   `json:"confidence"`
	RiskScore    int       `json:"risk_score"`
	DiscoveredAt time.Time `json:"discovered_at"`
	OccurredAt   time.Time `json:"occurred_at"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// DedupKey collapses the same listing reported by multiple sources
func (r *MarketplaceResult) DedupKey() string {
	return strings.ToLower(r.URL) + "|" + strings.ToLower(r.Title)
}

// BreachResult is a normalized breach-repository record
type BreachResult struct {
	SourceID        string    `json:"source_id"`
	BreachName      string    `json:"breach_name"`
	AffectedDomains []string  `json:"affected_domains,omitempty"`
	RecordCount     int64     `json:"record_count,omitempty"`
	DataClasses     []string  `json:"data_classes,omitempty"`
	Verified        bool      `json:"verified"`
	RiskScore       int       `json:"risk_score"`
	DiscoveredAt    time.Time `json:"discovered_at"`
	OccurredAt      time.Time `json:"occurred_at"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// DedupKey collapses the same breach reported by multiple sources. Domains are
// sorted so ordering differences between providers do not defeat dedup.
func (r *BreachResult) DedupKey() string {
	domains := make([]string, len(r.AffectedDomains))
	for i, d := range r.AffectedDomains {
		domains[i] = strings.ToLower(d)
	}
	sort.Strings(domains)
	return strings.ToLower(r.BreachName) + "|" + strings.Join(domains, ",")
}

// KeywordMonitorResult aggregates keyword-monitoring hits from one source
type KeywordMonitorResult struct {
	SourceID     string         `json:"source_id"`
	Keywords     []string       `json:"keywords"`
	Mentions     []KeywordHit   `json:"mentions,omitempty"`
	TotalHits    int            `json:"total_hits"`
	RiskScore    int            `json:"risk_score"`
	DiscoveredAt time.Time      `json:"discovered_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// KeywordHit is a single keyword occurrence
type KeywordHit struct {
	Keyword    string    `json:"keyword"`
	Context    string    `json:"context,omitempty"`
	URL        string    `json:"url,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
