package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiresWithin(t *testing.T) {
	now := time.Now()
	window := 5 * time.Minute

	fresh := &TokenRecord{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, fresh.ExpiresWithin(window, now))

	near := &TokenRecord{ExpiresAt: now.Add(2 * time.Minute)}
	assert.True(t, near.ExpiresWithin(window, now))

	expired := &TokenRecord{ExpiresAt: now.Add(-time.Minute)}
	assert.True(t, expired.ExpiresWithin(window, now))

	boundary := &TokenRecord{ExpiresAt: now.Add(window)}
	assert.True(t, boundary.ExpiresWithin(window, now))
}

func TestTokenRecordSecretsNeverSerialized(t *testing.T) {
	rec := &TokenRecord{
		UserID:       "user-1",
		AccessToken:  "access",
		TokenSecret:  "secret",
		RefreshToken: "refresh",
	}

	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	assert.NotContains(t, string(raw), "access")
	assert.NotContains(t, string(raw), "secret")
	assert.NotContains(t, string(raw), "refresh")
	assert.Contains(t, string(raw), "user-1")
}
