package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"darkmon/core"
	"darkmon/metrics"
	"darkmon/util/goroutine"
)

// =============================================================================
// Credential Store
// =============================================================================

const (
	// DefaultCacheTTL bounds how long fetched credentials are served without
	// revisiting the vault
	DefaultCacheTTL = time.Hour

	// DefaultLiveCheckTTL bounds how long a live-validation outcome is trusted,
	// so credential health checks do not hammer providers
	DefaultLiveCheckTTL = 5 * time.Minute

	// DefaultRotationInterval proactively rotates before expiry-driven failures
	DefaultRotationInterval = 24 * time.Hour

	cacheSize = 256
)

var (
	// ErrInvalidCredentials is returned when material fails the local shape check
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidAfterRotation is returned when rotated material also fails
	// validation; fatal for the source, never retried in a loop
	ErrInvalidAfterRotation = errors.New("credentials invalid after rotation")
	// ErrStoreClosed is returned after Close
	ErrStoreClosed = errors.New("credential store is closed")
)

// Validator performs the cheap local shape check for one provider's material.
// Distinct from a live API validation call.
type Validator func(creds *core.Credentials) error

// DefaultValidator requires a primary key of plausible length
func DefaultValidator(creds *core.Credentials) error {
	if creds == nil || creds.APIKey == "" {
		return fmt.Errorf("%w: missing API key", ErrInvalidCredentials)
	}
	if len(creds.APIKey) < 8 {
		return fmt.Errorf("%w: API key too short", ErrInvalidCredentials)
	}
	return nil
}

// LiveChecker probes a provider test endpoint with the given credentials
type LiveChecker func(ctx context.Context, creds *core.Credentials) error

// Store manages the fetch/cache/validate/rotate lifecycle for per-source API
// credentials backed by an external secret vault.
type Store struct {
	vault      SecretVault
	cache      *expirable.LRU[string, *core.Credentials]
	liveChecks *expirable.LRU[string, error]
	logger     *zap.SugaredLogger

	mu         sync.Mutex
	validators map[string]Validator
	timers     map[string]*rotationTimer
	closed     bool

	now func() time.Time
}

type rotationTimer struct {
	ticker *time.Ticker
	done   chan struct{}
}

// NewStore creates a credential store over the given vault
func NewStore(vault SecretVault, logger *zap.SugaredLogger) *Store {
	return &Store{
		vault:      vault,
		cache:      expirable.NewLRU[string, *core.Credentials](cacheSize, nil, DefaultCacheTTL),
		liveChecks: expirable.NewLRU[string, error](cacheSize, nil, DefaultLiveCheckTTL),
		logger:     logger,
		validators: make(map[string]Validator),
		timers:     make(map[string]*rotationTimer),
		now:        time.Now,
	}
}

// SetValidator installs a provider-specific shape check for a source
func (s *Store) SetValidator(sourceID string, v Validator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validators[sourceID] = v
}

func (s *Store) validatorFor(sourceID string) Validator {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.validators[sourceID]; ok {
		return v
	}
	return DefaultValidator
}

// Get returns cached credentials if present and unexpired, else fetches from
// the vault and caches with the store TTL. Vault unavailability is surfaced
// after a single fetch attempt.
func (s *Store) Get(sourceID string) (*core.Credentials, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}

	if creds, ok := s.cache.Get(sourceID); ok && !creds.Expired(s.now()) {
		return creds, nil
	}

	creds, err := s.vault.Fetch(sourceID)
	if err != nil {
		return nil, fmt.Errorf("fetching credentials for %s: %w", sourceID, err)
	}

	s.cache.Add(sourceID, creds)
	return creds, nil
}

// Store validates the material's shape, writes it to the vault and refreshes
// the cache entry.
func (s *Store) Store(sourceID string, creds *core.Credentials) error {
	if s.isClosed() {
		return ErrStoreClosed
	}

	if err := s.validatorFor(sourceID)(creds); err != nil {
		return err
	}

	if err := s.vault.Store(sourceID, creds); err != nil {
		return fmt.Errorf("storing credentials for %s: %w", sourceID, err)
	}

	s.cache.Add(sourceID, creds)
	s.liveChecks.Remove(sourceID)
	return nil
}

// Rotate requests fresh material from the vault's rotation mechanism, clears
// the cache so the next Get re-fetches, and returns the new credentials.
func (s *Store) Rotate(sourceID string) (*core.Credentials, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}

	s.cache.Remove(sourceID)
	s.liveChecks.Remove(sourceID)

	creds, err := s.vault.Rotate(sourceID)
	if err != nil {
		metrics.CredentialRotations.WithLabelValues(sourceID, metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("rotating credentials for %s: %w", sourceID, err)
	}
	metrics.CredentialRotations.WithLabelValues(sourceID, metrics.OutcomeSuccess).Inc()

	s.cache.Add(sourceID, creds)
	if s.logger != nil {
		s.logger.Infow("Credentials rotated", "source", sourceID)
	}
	return creds, nil
}

// Validate runs the local shape check for a source's material
func (s *Store) Validate(sourceID string, creds *core.Credentials) error {
	return s.validatorFor(sourceID)(creds)
}

// GetValidated returns validated credentials for the source. Material that
// fails validation triggers exactly one rotation attempt; if the rotated
// material also fails, ErrInvalidAfterRotation is returned rather than looping.
func (s *Store) GetValidated(sourceID string) (*core.Credentials, error) {
	creds, err := s.Get(sourceID)
	if err != nil {
		return nil, err
	}

	validate := s.validatorFor(sourceID)
	if err := validate(creds); err == nil {
		return creds, nil
	}

	if s.logger != nil {
		s.logger.Warnw("Credential validation failed, rotating", "source", sourceID)
	}

	rotated, err := s.Rotate(sourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: rotation failed: %v", ErrInvalidAfterRotation, err)
	}
	if err := validate(rotated); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAfterRotation, err)
	}
	return rotated, nil
}

// TestLive probes the provider's test endpoint, caching the outcome for a
// short window. Success and failure are both cached.
func (s *Store) TestLive(ctx context.Context, sourceID string, check LiveChecker) error {
	if s.isClosed() {
		return ErrStoreClosed
	}

	if outcome, ok := s.liveChecks.Get(sourceID); ok {
		return outcome
	}

	creds, err := s.Get(sourceID)
	if err != nil {
		return err
	}

	err = check(ctx, creds)
	s.liveChecks.Add(sourceID, err)
	return err
}

// =============================================================================
// Scheduled Rotation
// =============================================================================

// EnableRotation starts a proactive rotation timer for the source. Enabling
// again replaces the previous timer.
func (s *Store) EnableRotation(sourceID string, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRotationInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if existing, ok := s.timers[sourceID]; ok {
		existing.stop()
	}

	rt := &rotationTimer{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	s.timers[sourceID] = rt

	go func() {
		defer goroutine.Recover("credential-rotation-"+sourceID, s.logger)
		for {
			select {
			case <-rt.ticker.C:
				if _, err := s.Rotate(sourceID); err != nil && s.logger != nil {
					s.logger.Warnw("Scheduled rotation failed", "source", sourceID, "error", err)
				}
			case <-rt.done:
				return
			}
		}
	}()
}

// DisableRotation cancels the source's rotation timer if present
func (s *Store) DisableRotation(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.timers[sourceID]; ok {
		rt.stop()
		delete(s.timers, sourceID)
	}
}

func (rt *rotationTimer) stop() {
	rt.ticker.Stop()
	close(rt.done)
}

// Close cancels all rotation timers and wipes cached material
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	for id, rt := range s.timers {
		rt.stop()
		delete(s.timers, id)
	}
	s.cache.Purge()
	s.liveChecks.Purge()
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
