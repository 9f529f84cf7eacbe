package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"darkmon/core"
)

const testConfigYAML = `
log_level: debug
secrets:
  provider: vault
  vault:
    address: https://vault.internal:8200
    path: secret/darkmon
health:
  check_interval_minutes: 10
  error_rate_threshold: 0.25
  response_time_threshold_s: 3
  consecutive_failures: 5
sources:
  - id: leakwatch-prod
    name: LeakWatch
    provider: credential_db
    base_url: https://api.leakwatch.example
    credential_ref: leakwatch-prod
    enabled: true
    rate_limit:
      requests_per_minute: 60
      requests_per_hour: 1000
      requests_per_day: 10000
      burst_capacity: 5
    retry:
      max_retries: 2
      base_delay_ms: 100
      max_delay_ms: 5000
      backoff_multiplier: 2
    rotation_hours: 24
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "darkmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	viper.Reset()
	cfg, err := Load(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "vault", cfg.Secrets.Provider)
	assert.Equal(t, "https://vault.internal:8200", cfg.Secrets.Vault.Address)
	assert.Equal(t, 10*time.Minute, cfg.CheckInterval())

	thresholds := cfg.Thresholds()
	assert.Equal(t, 0.25, thresholds.ErrorRate)
	assert.Equal(t, 3*time.Second, thresholds.ResponseTime)
	assert.Equal(t, 5, thresholds.ConsecutiveFailures)

	require.Len(t, cfg.Sources, 1)
	source := cfg.Sources[0].Source()
	assert.Equal(t, "leakwatch-prod", source.ID)
	assert.Equal(t, core.ProviderTypeCredentialDB, source.Provider)
	assert.Equal(t, 2, source.Retry.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, source.Retry.BaseDelay)
	assert.Equal(t, 5*time.Second, source.Retry.MaxDelay)
	assert.True(t, source.Enabled)
	require.NoError(t, source.Validate())
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	viper.Reset()
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "env", cfg.Secrets.Provider)
	assert.Equal(t, 5*time.Minute, cfg.CheckInterval())
	assert.Equal(t, 0.5, cfg.Thresholds().ErrorRate)
	assert.Empty(t, cfg.Sources)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	viper.Reset()
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	viper.Reset()
	_, err := Load(writeConfig(t, `
log_level: shouting
`))
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidSourceEntry(t *testing.T) {
	viper.Reset()
	_, err := Load(writeConfig(t, `
sources:
  - id: broken
    name: Broken
    provider: paste_site
    base_url: https://api.example
    credential_ref: broken
`))
	assert.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	viper.Reset()
	t.Setenv("DARKMON_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestSourceConfig_RetryDefaultsApplied(t *testing.T) {
	sc := SourceConfig{
		ID:            "src-1",
		Name:          "Source",
		Provider:      "breach_repo",
		BaseURL:       "https://api.example",
		CredentialRef: "src-1",
	}

	source := sc.Source()
	assert.Equal(t, core.DefaultRetryConfig(), source.Retry)
}
