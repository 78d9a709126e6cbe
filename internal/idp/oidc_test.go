package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/dgellow/vaultlink/internal/testutil"
	"github.com/dgellow/vaultlink/internal/tokencodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientID    = "client-123"
	testRedirectURI = "https://files.example.com/"
)

func newTestProvider(t *testing.T, te *testutil.TokenEndpoint) *OIDCProvider {
	t.Helper()
	provider, err := NewOIDCProvider(context.Background(), OIDCConfig{
		AuthorizationURL: te.Server.URL + "/login",
		TokenURL:         te.URL(),
		ClientID:         testClientID,
		RedirectURI:      testRedirectURI,
	})
	require.NoError(t, err)
	return provider
}

func TestNewOIDCProvider_WithDiscovery(t *testing.T) {
	discovery := oidcDiscoveryDocument{
		Issuer:                "https://idp.example.com",
		AuthorizationEndpoint: "https://idp.example.com/authorize",
		TokenEndpoint:         "https://idp.example.com/token",
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(discovery)
	}))
	defer server.Close()

	provider, err := NewOIDCProvider(context.Background(), OIDCConfig{
		DiscoveryURL: server.URL,
		ClientID:     testClientID,
		RedirectURI:  testRedirectURI,
	})

	require.NoError(t, err)
	assert.Equal(t, "oidc", provider.Type())
	assert.Contains(t, provider.AuthURL("s"), "https://idp.example.com/authorize?")
}

func TestNewOIDCProvider_DiscoveryErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "missing endpoints",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(oidcDiscoveryDocument{Issuer: "https://idp.example.com"})
			},
			wantErr: "missing required endpoints",
		},
		{
			name: "non 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusServiceUnavailable)
			},
			wantErr: "503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewOIDCProvider(context.Background(), OIDCConfig{DiscoveryURL: server.URL, ClientID: testClientID})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewOIDCProvider_PartialEndpoints(t *testing.T) {
	_, err := NewOIDCProvider(context.Background(), OIDCConfig{
		AuthorizationURL: "https://idp.example.com/authorize",
		ClientID:         testClientID,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "discoveryUrl or both endpoints")
}

func TestOIDCProvider_AuthURL(t *testing.T) {
	provider, err := NewOIDCProvider(context.Background(), OIDCConfig{
		AuthorizationURL: "https://auth.example.com/login",
		TokenURL:         "https://auth.example.com/oauth2/token",
		ClientID:         testClientID,
		RedirectURI:      testRedirectURI,
	})
	require.NoError(t, err)

	u, err := url.Parse(provider.AuthURL("test-state"))
	require.NoError(t, err)

	assert.Equal(t, "auth.example.com", u.Host)
	assert.Equal(t, "/login", u.Path)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, testRedirectURI, q.Get("redirect_uri"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "test-state", q.Get("state"))
}

func TestOIDCProvider_Exchange(t *testing.T) {
	te := testutil.NewTokenEndpoint(testClientID, testRedirectURI)
	defer te.Close()

	idToken := testutil.IDToken(t, map[string]any{"name": "Ada"})
	te.Issue("abc123", idToken)

	provider := newTestProvider(t, te)

	tokens, err := provider.Exchange(context.Background(), "abc123")
	require.NoError(t, err)

	assert.Equal(t, idToken, tokens.IDToken)
	assert.Equal(t, "Ada", tokens.Claims.DisplayName())

	form := te.LastForm()
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, testClientID, form.Get("client_id"))
	assert.Equal(t, "abc123", form.Get("code"))
	assert.Equal(t, testRedirectURI, form.Get("redirect_uri"))
}

func TestOIDCProvider_ExchangeReusedCode(t *testing.T) {
	te := testutil.NewTokenEndpoint(testClientID, testRedirectURI)
	defer te.Close()
	te.Issue("abc123", testutil.IDToken(t, nil))

	provider := newTestProvider(t, te)

	_, err := provider.Exchange(context.Background(), "abc123")
	require.NoError(t, err)

	_, err = provider.Exchange(context.Background(), "abc123")
	require.ErrorIs(t, err, ErrAuthExchangeFailed)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestOIDCProvider_ExchangeFailures(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		code      string
		wantInErr string
		malformed bool
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			code:      "c",
			wantInErr: "500",
		},
		{
			name: "body not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte("{not json"))
			},
			code: "c",
		},
		{
			name: "no id token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"access_token":"a","token_type":"Bearer"}`))
			},
			code:      "c",
			wantInErr: "no id_token",
		},
		{
			name: "malformed id token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"access_token":"a","token_type":"Bearer","id_token":"not-a-jwt"}`))
			},
			code:      "c",
			malformed: true,
		},
		{
			name:      "empty code",
			handler:   func(w http.ResponseWriter, r *http.Request) { t.Error("token endpoint must not be called") },
			code:      "",
			wantInErr: "empty authorization code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			provider, err := NewOIDCProvider(context.Background(), OIDCConfig{
				AuthorizationURL: server.URL + "/login",
				TokenURL:         server.URL + "/oauth2/token",
				ClientID:         testClientID,
				RedirectURI:      testRedirectURI,
			})
			require.NoError(t, err)

			_, err = provider.Exchange(context.Background(), tt.code)
			require.ErrorIs(t, err, ErrAuthExchangeFailed)
			if tt.wantInErr != "" {
				assert.Contains(t, err.Error(), tt.wantInErr)
			}
			if tt.malformed {
				assert.ErrorIs(t, err, tokencodec.ErrTokenMalformed)
			}
		})
	}
}
