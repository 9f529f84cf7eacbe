package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"darkmon/core"
	"darkmon/health"
)

// SecretsConfig selects and configures the secret vault backend
type SecretsConfig struct {
	// Provider is env (default), vault, or aws
	Provider string `mapstructure:"provider" validate:"omitempty,oneof=env vault aws"`

	Vault struct {
		Address string `mapstructure:"address"`
		Token   string `mapstructure:"token"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"vault"`

	AWS struct {
		Region    string `mapstructure:"region"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
		Prefix    string `mapstructure:"prefix"`
	} `mapstructure:"aws"`
}

// SourceConfig describes one provider to register at startup
type SourceConfig struct {
	ID            string `mapstructure:"id" validate:"required"`
	Name          string `mapstructure:"name" validate:"required"`
	Provider      string `mapstructure:"provider" validate:"required,oneof=credential_db breach_repo marketplace"`
	BaseURL       string `mapstructure:"base_url" validate:"required,url"`
	CredentialRef string `mapstructure:"credential_ref" validate:"required"`
	Enabled       bool   `mapstructure:"enabled"`

	RateLimit struct {
		RequestsPerMinute int `mapstructure:"requests_per_minute"`
		RequestsPerHour   int `mapstructure:"requests_per_hour"`
		RequestsPerDay    int `mapstructure:"requests_per_day"`
		BurstCapacity     int `mapstructure:"burst_capacity"`
	} `mapstructure:"rate_limit"`

	Retry struct {
		MaxRetries        int     `mapstructure:"max_retries"`
		BaseDelayMs       int     `mapstructure:"base_delay_ms"`
		MaxDelayMs        int     `mapstructure:"max_delay_ms"`
		BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	} `mapstructure:"retry"`

	// RotationHours enables proactive credential rotation when positive
	RotationHours int `mapstructure:"rotation_hours"`
}

// Config holds all configuration for the aggregation service
type Config struct {
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	Secrets SecretsConfig `mapstructure:"secrets"`

	Health struct {
		CheckIntervalMinutes   int     `mapstructure:"check_interval_minutes"`
		ErrorRateThreshold     float64 `mapstructure:"error_rate_threshold"`
		ResponseTimeThresholdS int     `mapstructure:"response_time_threshold_s"`
		ConsecutiveFailures    int     `mapstructure:"consecutive_failures"`
	} `mapstructure:"health"`

	Sources []SourceConfig `mapstructure:"sources" validate:"dive"`
}

var configValidator = validator.New()

func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("secrets.provider", "env")
	viper.SetDefault("secrets.vault.path", "secret/darkmon")
	viper.SetDefault("secrets.aws.region", "us-east-1")
	viper.SetDefault("health.check_interval_minutes", 5)
	viper.SetDefault("health.error_rate_threshold", 0.5)
	viper.SetDefault("health.response_time_threshold_s", 5)
	viper.SetDefault("health.consecutive_failures", 3)
}

func loadFromEnv() {
	viper.SetEnvPrefix("DARKMON")
	viper.AutomaticEnv()

	_ = viper.BindEnv("log_level", "DARKMON_LOG_LEVEL")
	_ = viper.BindEnv("secrets.provider", "DARKMON_SECRETS_PROVIDER")
	_ = viper.BindEnv("secrets.vault.address", "DARKMON_VAULT_ADDR")
	_ = viper.BindEnv("secrets.vault.token", "DARKMON_VAULT_TOKEN")
	_ = viper.BindEnv("secrets.aws.region", "DARKMON_AWS_REGION")
}

// Load reads configuration from file and environment variables. A missing
// config file is not an error; defaults and env vars apply.
func Load(path string) (*Config, error) {
	viper.SetConfigName("darkmon")
	viper.SetConfigType("yaml")
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		// No config file found; defaults and env vars apply
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := configValidator.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Source converts a config entry into the immutable registration type,
// applying retry defaults for unset fields.
func (sc *SourceConfig) Source() core.Source {
	retry := core.DefaultRetryConfig()
	if sc.Retry.MaxRetries > 0 {
		retry.MaxRetries = sc.Retry.MaxRetries
	}
	if sc.Retry.BaseDelayMs > 0 {
		retry.BaseDelay = time.Duration(sc.Retry.BaseDelayMs) * time.Millisecond
	}
	if sc.Retry.MaxDelayMs > 0 {
		retry.MaxDelay = time.Duration(sc.Retry.MaxDelayMs) * time.Millisecond
	}
	if sc.Retry.BackoffMultiplier >= 1 {
		retry.BackoffMultiplier = sc.Retry.BackoffMultiplier
	}

	return core.Source{
		ID:       sc.ID,
		Name:     sc.Name,
		Provider: core.ProviderType(sc.Provider),
		BaseURL:  sc.BaseURL,
		RateLimit: core.RateLimitConfig{
			RequestsPerMinute: sc.RateLimit.RequestsPerMinute,
			RequestsPerHour:   sc.RateLimit.RequestsPerHour,
			RequestsPerDay:    sc.RateLimit.RequestsPerDay,
			BurstCapacity:     sc.RateLimit.BurstCapacity,
		},
		Retry:         retry,
		CredentialRef: sc.CredentialRef,
		Enabled:       sc.Enabled,
	}
}

// Thresholds converts the health section into monitor thresholds
func (c *Config) Thresholds() health.Thresholds {
	return health.Thresholds{
		ErrorRate:           c.Health.ErrorRateThreshold,
		ResponseTime:        time.Duration(c.Health.ResponseTimeThresholdS) * time.Second,
		ConsecutiveFailures: c.Health.ConsecutiveFailures,
	}
}

// CheckInterval returns the configured health-check loop interval
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Health.CheckIntervalMinutes) * time.Minute
}
