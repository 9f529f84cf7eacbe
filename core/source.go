package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Source Types and Constants
// =============================================================================

// ProviderType represents the category of an external intelligence provider
type ProviderType string

const (
	ProviderTypeCredentialDB ProviderType = "credential_db" // Credential-exposure database
	ProviderTypeBreachRepo   ProviderType = "breach_repo"   // Breach repository
	ProviderTypeMarketplace  ProviderType = "marketplace"   // Dark-web marketplace scanner
)

// AllProviderTypes returns all valid provider types
var AllProviderTypes = []ProviderType{
	ProviderTypeCredentialDB, ProviderTypeBreachRepo, ProviderTypeMarketplace,
}

// IsValid checks if the provider type is valid
func (t ProviderType) IsValid() bool {
	for _, valid := range AllProviderTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// =============================================================================
// Source Configuration
// =============================================================================

// RateLimitConfig fixes the per-source request budget. Immutable after
// registration; changing limits means re-registering the source.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" validate:"gt=0"`
	RequestsPerHour   int `json:"requests_per_hour" validate:"gt=0"`
	RequestsPerDay    int `json:"requests_per_day" validate:"gt=0"`
	BurstCapacity     int `json:"burst_capacity" validate:"gte=1"`
}

// RetryConfig fixes the per-source retry policy for transient failures
type RetryConfig struct {
	MaxRetries        int           `json:"max_retries" validate:"gte=0"`
	BaseDelay         time.Duration `json:"base_delay" validate:"gt=0"`
	MaxDelay          time.Duration `json:"max_delay" validate:"gt=0"`
	BackoffMultiplier float64       `json:"backoff_multiplier" validate:"gte=1"`
}

// DefaultRetryConfig returns sensible defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
	}
}

// Source describes one registered external provider. Immutable after
// registration.
type Source struct {
	ID            string          `json:"id" validate:"required"`
	Name          string          `json:"name" validate:"required"`
	Provider      ProviderType    `json:"provider" validate:"required"`
	BaseURL       string          `json:"base_url" validate:"required,url"`
	RateLimit     RateLimitConfig `json:"rate_limit"`
	Retry         RetryConfig     `json:"retry"`
	CredentialRef string          `json:"credential_ref" validate:"required"`
	Enabled       bool            `json:"enabled"`
}

// ErrInvalidSource is returned when a source fails registration validation
var ErrInvalidSource = errors.New("invalid source configuration")

var sourceValidator = validator.New()

// Validate checks the source configuration before registration
func (s *Source) Validate() error {
	if !s.Provider.IsValid() {
		return fmt.Errorf("%w: unknown provider type %q", ErrInvalidSource, s.Provider)
	}
	if err := sourceValidator.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	return nil
}
