package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCredentials_Expired(t *testing.T) {
	now := time.Now()

	noHint := &Credentials{APIKey: "key"}
	assert.False(t, noHint.Expired(now))

	future := &Credentials{APIKey: "key", ExpiresAt: now.Add(time.Hour)}
	assert.False(t, future.Expired(now))

	past := &Credentials{APIKey: "key", ExpiresAt: now.Add(-time.Minute)}
	assert.True(t, past.Expired(now))
}

func TestCredentials_StringRedactsSecrets(t *testing.T) {
	creds := &Credentials{
		APIKey:    "super-secret-key",
		APISecret: "super-secret-secret",
		Token:     "bearer-token",
	}

	formatted := fmt.Sprintf("%v %s", creds, creds)
	assert.NotContains(t, formatted, "super-secret-key")
	assert.NotContains(t, formatted, "super-secret-secret")
	assert.NotContains(t, formatted, "bearer-token")
	assert.Contains(t, formatted, "REDACTED")
}
