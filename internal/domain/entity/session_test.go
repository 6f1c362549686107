package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_IsValid(t *testing.T) {
	now := time.Now()
	revokedAt := now.Add(-time.Minute)

	tests := []struct {
		name    string
		session Session
		want    bool
	}{
		{"active", Session{ExpiresAt: now.Add(time.Hour)}, true},
		{"expires right now still counts", Session{ExpiresAt: now}, true},
		{"expired", Session{ExpiresAt: now.Add(-time.Second)}, false},
		{"revoked", Session{ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.session.IsValid(now))
		})
	}
}

func TestSession_SessionInfoOmitsToken(t *testing.T) {
	session := Session{
		ID:           3,
		UserID:       7,
		SessionToken: "secret-token-value",
		DeviceInfo:   `{"device":"laptop"}`,
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	info := session.SessionInfo()
	data, err := json.Marshal(info)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "secret-token-value")
	assert.Contains(t, info, "device_info")
	assert.NotContains(t, info, "revoked_at", "only present once revoked")
}

func TestSession_TokenNeverMarshalled(t *testing.T) {
	data, err := json.Marshal(Session{SessionToken: "secret-token-value"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-token-value")
}
