package core

import (
	"errors"
	"time"
)

// ErrInvalidTimeRange is returned when a query time range is missing or inverted
var ErrInvalidTimeRange = errors.New("invalid query time range")

// TimeRange bounds a query. Callers must always pass an explicit range; there
// is no implicit "all time".
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks the range is present and ordered
func (r TimeRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrInvalidTimeRange
	}
	if r.End.Before(r.Start) {
		return ErrInvalidTimeRange
	}
	return nil
}

// CredentialQuery searches credential-exposure databases
type CredentialQuery struct {
	Emails        []string  `json:"emails,omitempty"`
	Domains       []string  `json:"domains,omitempty"`
	Usernames     []string  `json:"usernames,omitempty"`
	Hashes        []string  `json:"hashes,omitempty"`
	Range         TimeRange `json:"range"`
	MinConfidence float64   `json:"min_confidence,omitempty"` // 0-100
	VerifiedOnly  bool      `json:"verified_only,omitempty"`
}

// MarketplaceQuery searches marketplace scanners for listings and mentions
type MarketplaceQuery struct {
	Keywords      []string  `json:"keywords,omitempty"`
	Domains       []string  `json:"domains,omitempty"`
	Range         TimeRange `json:"range"`
	MinConfidence float64   `json:"min_confidence,omitempty"`
}

// BreachQuery searches breach repositories
type BreachQuery struct {
	Emails       []string  `json:"emails,omitempty"`
	Domains      []string  `json:"domains,omitempty"`
	Range        TimeRange `json:"range"`
	VerifiedOnly bool      `json:"verified_only,omitempty"`
}
