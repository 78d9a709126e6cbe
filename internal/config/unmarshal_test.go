package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigValue(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		envVars       map[string]string
		expectedValue string
		expectedError bool
	}{
		{
			name:          "plain string",
			input:         `"hello world"`,
			expectedValue: "hello world",
		},
		{
			name:          "env reference",
			input:         `{"$env": "TEST_VAR"}`,
			envVars:       map[string]string{"TEST_VAR": "test value"},
			expectedValue: "test value",
		},
		{
			name:          "env reference with double quotes",
			input:         `{"$env": "QUOTED_VAR"}`,
			envVars:       map[string]string{"QUOTED_VAR": `"quoted value"`},
			expectedValue: "quoted value",
		},
		{
			name:          "env reference with mixed quotes not stripped",
			input:         `{"$env": "MIXED_QUOTES"}`,
			envVars:       map[string]string{"MIXED_QUOTES": `"mixed quotes'`},
			expectedValue: `"mixed quotes'`,
		},
		{
			name:          "missing env var",
			input:         `{"$env": "VAULTLINK_DOES_NOT_EXIST"}`,
			expectedError: true,
		},
		{
			name:          "unknown reference",
			input:         `{"$userToken": "x"}`,
			expectedError: true,
		},
		{
			name:          "number",
			input:         `42`,
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			got, err := ParseConfigValue(json.RawMessage(tt.input))
			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedValue, got)
		})
	}
}

func TestIdentityConfig_UnmarshalJSON(t *testing.T) {
	t.Setenv("TEST_CLIENT_ID", "client-123")
	t.Setenv("TEST_CLIENT_SECRET", "shh")

	var identity IdentityConfig
	err := json.Unmarshal([]byte(`{
		"provider": "cognito",
		"domain": "auth.example.com",
		"clientId": {"$env": "TEST_CLIENT_ID"},
		"clientSecret": {"$env": "TEST_CLIENT_SECRET"},
		"redirectUri": "https://files.example.com/",
		"scopes": ["openid", "email"]
	}`), &identity)
	require.NoError(t, err)

	assert.Equal(t, ProviderCognito, identity.Provider)
	assert.Equal(t, "auth.example.com", identity.Domain)
	assert.Equal(t, "client-123", identity.ClientID)
	assert.Equal(t, Secret("shh"), identity.ClientSecret)
	assert.Equal(t, "https://files.example.com/", identity.RedirectURI)
	assert.Equal(t, []string{"openid", "email"}, identity.Scopes)
}

func TestIdentityConfig_UnmarshalJSON_MissingEnv(t *testing.T) {
	var identity IdentityConfig
	err := json.Unmarshal([]byte(`{"provider": "oidc", "clientId": {"$env": "VAULTLINK_UNSET_CLIENT"}}`), &identity)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing clientId")
}

func TestObjectConfig_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantTTL time.Duration
		wantErr bool
	}{
		{name: "explicit ttl", input: `{"bucket": "b", "key": "k", "ttl": "60s"}`, wantTTL: 60 * time.Second},
		{name: "no ttl", input: `{"bucket": "b", "key": "k"}`, wantTTL: 0},
		{name: "bad ttl", input: `{"bucket": "b", "key": "k", "ttl": "soon"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var object ObjectConfig
			err := json.Unmarshal([]byte(tt.input), &object)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "b", object.Bucket)
			assert.Equal(t, "k", object.Key)
			assert.Equal(t, tt.wantTTL, object.TTL)
		})
	}
}

func TestSessionConfig_UnmarshalJSON(t *testing.T) {
	t.Setenv("TEST_ENC_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("TEST_STATE_KEY", "state-key-that-is-at-least-32-bytes")

	t.Run("reject_expired_defaults_true", func(t *testing.T) {
		var session SessionConfig
		err := json.Unmarshal([]byte(`{
			"storage": "bbolt",
			"path": "/var/lib/vaultlink/sessions.db",
			"encryptionKey": {"$env": "TEST_ENC_KEY"},
			"stateKey": {"$env": "TEST_STATE_KEY"},
			"cookieMaxAge": "24h"
		}`), &session)
		require.NoError(t, err)

		assert.Equal(t, StorageBolt, session.Storage)
		assert.True(t, session.RejectExpired)
		assert.Equal(t, 24*time.Hour, session.CookieMaxAge)
		assert.Len(t, session.EncryptionKey, 32)
	})

	t.Run("reject_expired_disabled", func(t *testing.T) {
		var session SessionConfig
		err := json.Unmarshal([]byte(`{
			"encryptionKey": {"$env": "TEST_ENC_KEY"},
			"stateKey": {"$env": "TEST_STATE_KEY"},
			"rejectExpired": false
		}`), &session)
		require.NoError(t, err)
		assert.False(t, session.RejectExpired)
	})

	t.Run("bad_duration", func(t *testing.T) {
		var session SessionConfig
		err := json.Unmarshal([]byte(`{"cookieMaxAge": "forever"}`), &session)
		assert.Error(t, err)
	})
}
