package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	awscreds "github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/hashicorp/vault/api"

	"darkmon/core"
)

// =============================================================================
// Secret Vault Interface
// =============================================================================

var (
	// ErrSecretNotFound is returned when the backend has no material for the ref
	ErrSecretNotFound = errors.New("secret not found")
	// ErrRotationUnsupported is returned by backends without a rotation mechanism
	ErrRotationUnsupported = errors.New("secret backend does not support rotation")
)

// SecretVault is the boundary to external secret storage. Each call is a
// network operation with its own latency and failure modes; callers decide
// whether to retry.
type SecretVault interface {
	Fetch(secretID string) (*core.Credentials, error)
	Store(secretID string, creds *core.Credentials) error
	Rotate(secretID string) (*core.Credentials, error)
}

// =============================================================================
// Environment Backend (default for development)
// =============================================================================

// EnvSecretVault reads credentials from DARKMON_<REF>_API_KEY style variables
type EnvSecretVault struct{}

func (e *EnvSecretVault) envKey(secretID, field string) string {
	ref := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(secretID))
	return "DARKMON_" + ref + "_" + field
}

func (e *EnvSecretVault) Fetch(secretID string) (*core.Credentials, error) {
	apiKey := os.Getenv(e.envKey(secretID, "API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrSecretNotFound, e.envKey(secretID, "API_KEY"))
	}

	creds := &core.Credentials{
		APIKey:    apiKey,
		APISecret: os.Getenv(e.envKey(secretID, "API_SECRET")),
		Token:     os.Getenv(e.envKey(secretID, "TOKEN")),
	}
	return creds, nil
}

func (e *EnvSecretVault) Store(secretID string, creds *core.Credentials) error {
	return errors.New("environment secret backend is read-only")
}

func (e *EnvSecretVault) Rotate(secretID string) (*core.Credentials, error) {
	return nil, ErrRotationUnsupported
}

// =============================================================================
// HashiCorp Vault Backend
// =============================================================================

// VaultConfig configures the HashiCorp Vault backend
type VaultConfig struct {
	Address string
	Token   string
	// Path is the mount prefix for per-source secrets (default secret/darkmon)
	Path string
}

// VaultSecretVault stores per-source credentials under <path>/<secretID>.
// With a dynamic secrets engine mounted at the path, a fresh read issues new
// material, which is what Rotate relies on.
type VaultSecretVault struct {
	client *api.Client
	path   string
}

// NewVaultSecretVault creates a Vault-backed secret store
func NewVaultSecretVault(cfg VaultConfig) (*VaultSecretVault, error) {
	client, err := api.NewClient(&api.Config{
		Address: cfg.Address,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	} else if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}

	path := cfg.Path
	if path == "" {
		path = "secret/darkmon"
	}

	return &VaultSecretVault{client: client, path: path}, nil
}

func (v *VaultSecretVault) secretPath(secretID string) string {
	return v.path + "/" + secretID
}

func (v *VaultSecretVault) Fetch(secretID string) (*core.Credentials, error) {
	secret, err := v.client.Logical().Read(v.secretPath(secretID))
	if err != nil {
		return nil, fmt.Errorf("failed to read from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: path %s", ErrSecretNotFound, v.secretPath(secretID))
	}
	return credentialsFromMap(secret.Data)
}

func (v *VaultSecretVault) Store(secretID string, creds *core.Credentials) error {
	_, err := v.client.Logical().Write(v.secretPath(secretID), credentialsToMap(creds))
	if err != nil {
		return fmt.Errorf("failed to write to Vault: %w", err)
	}
	return nil
}

// Rotate re-reads the secret path. Dynamic engines issue fresh credentials on
// every read; for static KV material the provider-issued replacement must be
// written first via Store.
func (v *VaultSecretVault) Rotate(secretID string) (*core.Credentials, error) {
	return v.Fetch(secretID)
}

// =============================================================================
// AWS Secrets Manager Backend
// =============================================================================

// AWSConfig configures the AWS Secrets Manager backend
type AWSConfig struct {
	Region    string
	AccessKey string
	SecretKey string
	// Prefix for per-source secret IDs (default darkmon/)
	Prefix string
}

// AWSSecretVault stores per-source credentials as JSON secrets
type AWSSecretVault struct {
	client *secretsmanager.SecretsManager
	prefix string
}

// NewAWSSecretVault creates an AWS-backed secret store
func NewAWSSecretVault(cfg AWSConfig) (*AWSSecretVault, error) {
	var sess *session.Session
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		sess, err = session.NewSession(&aws.Config{
			Region:      aws.String(cfg.Region),
			Credentials: awscreds.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		})
	} else {
		sess, err = session.NewSession(&aws.Config{
			Region: aws.String(cfg.Region),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "darkmon/"
	}

	return &AWSSecretVault{client: secretsmanager.New(sess), prefix: prefix}, nil
}

func (a *AWSSecretVault) Fetch(secretID string) (*core.Credentials, error) {
	result, err := a.client.GetSecretValue(&secretsmanager.GetSecretValueInput{
		SecretId: aws.String(a.prefix + secretID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret from AWS: %w", err)
	}

	var creds core.Credentials
	if err := json.Unmarshal([]byte(aws.StringValue(result.SecretString)), &creds); err != nil {
		return nil, fmt.Errorf("failed to parse AWS secret JSON: %w", err)
	}
	return &creds, nil
}

func (a *AWSSecretVault) Store(secretID string, creds *core.Credentials) error {
	payload, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	_, err = a.client.PutSecretValue(&secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(a.prefix + secretID),
		SecretString: aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("failed to store secret in AWS: %w", err)
	}
	return nil
}

func (a *AWSSecretVault) Rotate(secretID string) (*core.Credentials, error) {
	_, err := a.client.RotateSecret(&secretsmanager.RotateSecretInput{
		SecretId: aws.String(a.prefix + secretID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rotate secret in AWS: %w", err)
	}
	return a.Fetch(secretID)
}

// =============================================================================
// Helpers
// =============================================================================

func credentialsToMap(creds *core.Credentials) map[string]interface{} {
	data := map[string]interface{}{
		"api_key": creds.APIKey,
	}
	if creds.APISecret != "" {
		data["api_secret"] = creds.APISecret
	}
	if creds.Token != "" {
		data["token"] = creds.Token
	}
	if len(creds.Headers) > 0 {
		data["headers"] = creds.Headers
	}
	if !creds.ExpiresAt.IsZero() {
		data["expires_at"] = creds.ExpiresAt.Format(time.RFC3339)
	}
	return data
}

func credentialsFromMap(data map[string]interface{}) (*core.Credentials, error) {
	apiKey, _ := data["api_key"].(string)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing api_key", ErrSecretNotFound)
	}

	creds := &core.Credentials{APIKey: apiKey}
	if secret, ok := data["api_secret"].(string); ok {
		creds.APISecret = secret
	}
	if token, ok := data["token"].(string); ok {
		creds.Token = token
	}
	if headers, ok := data["headers"].(map[string]interface{}); ok {
		creds.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			if s, ok := v.(string); ok {
				creds.Headers[k] = s
			}
		}
	}
	if expires, ok := data["expires_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, expires); err == nil {
			creds.ExpiresAt = t
		}
	}
	return creds, nil
}

// NewSecretVault creates the backend selected by provider name
func NewSecretVault(provider string, vaultCfg VaultConfig, awsCfg AWSConfig) (SecretVault, error) {
	switch provider {
	case "", "env":
		return &EnvSecretVault{}, nil
	case "vault":
		return NewVaultSecretVault(vaultCfg)
	case "aws":
		return NewAWSSecretVault(awsCfg)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", provider)
	}
}
