package internal

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dgellow/vaultlink/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{
			BaseURL: "https://files.example.com",
			Addr:    "127.0.0.1:0",
			Name:    "vaultlink",
			Title:   "Private download",
		},
		Identity: config.IdentityConfig{
			Provider:    config.ProviderCognito,
			Domain:      "auth.example.com",
			ClientID:    "client-123",
			RedirectURI: "https://files.example.com/auth/callback",
			Scopes:      config.DefaultScopes,
		},
		Federation: config.FederationConfig{
			Region:         "eu-west-1",
			IdentityPoolID: "eu-west-1:00000000-0000-0000-0000-000000000000",
			LoginProvider:  "cognito-idp.eu-west-1.amazonaws.com/eu-west-1_abc",
		},
		Object: config.ObjectConfig{
			Bucket: "private-files",
			Key:    "cv.pdf",
			Region: "eu-west-1",
			TTL:    60 * time.Second,
		},
		Session: config.SessionConfig{
			Storage:       config.StorageMemory,
			EncryptionKey: config.Secret("0123456789abcdef0123456789abcdef"),
			StateKey:      config.Secret("state-key-that-is-at-least-32-bytes"),
			CookieMaxAge:  time.Hour,
			RejectExpired: true,
		},
	}
}

func TestNew(t *testing.T) {
	v, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	require.NotNil(t, v.httpServer)
	require.NotNil(t, v.cleanup)
	assert.NoError(t, v.store.Close())
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
		errMsg string
	}{
		{
			name:   "short_encryption_key",
			mutate: func(cfg *config.Config) { cfg.Session.EncryptionKey = "short" },
			errMsg: "failed to create encryptor",
		},
		{
			name:   "unknown_storage",
			mutate: func(cfg *config.Config) { cfg.Session.Storage = "redis" },
			errMsg: "unsupported storage type",
		},
		{
			name:   "bad_redirect_uri",
			mutate: func(cfg *config.Config) { cfg.Identity.RedirectURI = "://nope" },
			errMsg: "invalid redirect URI",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			_, err := New(context.Background(), cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRedirectPath(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{uri: "https://files.example.com", want: "/"},
		{uri: "https://files.example.com/", want: "/"},
		{uri: "https://files.example.com/auth/callback", want: "/auth/callback"},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := redirectPath(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildWidgets(t *testing.T) {
	counter, ticker, mailer := buildWidgets(nil, http.DefaultClient)
	assert.Nil(t, counter)
	assert.Nil(t, ticker)
	assert.Nil(t, mailer)

	counter, ticker, mailer = buildWidgets(&config.WidgetsConfig{
		CounterURL: "https://counter.example.com",
		EmailURL:   "https://mail.example.com",
	}, http.DefaultClient)
	assert.NotNil(t, counter)
	assert.Nil(t, ticker, "an unset url leaves the interface nil")
	assert.NotNil(t, mailer)
}
