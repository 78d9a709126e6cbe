package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dgellow/vaultlink/internal/ioutil"
	"github.com/dgellow/vaultlink/internal/log"
	"github.com/dgellow/vaultlink/internal/tokencodec"
	"golang.org/x/oauth2"
)

// OIDCConfig configures a generic OIDC provider.
type OIDCConfig struct {
	// ProviderType identifies this provider (e.g., "oidc", "cognito").
	ProviderType string

	// Discovery URL for OIDC discovery (optional if endpoints are provided directly).
	DiscoveryURL string

	// Direct endpoint configuration (used if DiscoveryURL is not set).
	AuthorizationURL string
	TokenURL         string

	// OAuth client configuration. ClientSecret is empty for public clients.
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// HTTPClient is used for discovery and token requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// OIDCProvider implements the Provider interface for OIDC-compliant identity providers.
type OIDCProvider struct {
	providerType string
	config       oauth2.Config
	httpClient   *http.Client
}

// oidcDiscoveryDocument represents the OIDC discovery document.
type oidcDiscoveryDocument struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	Issuer                string `json:"issuer"`
}

// NewOIDCProvider creates a new OIDC provider.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var authURL, tokenURL string
	if cfg.DiscoveryURL != "" {
		discovery, err := fetchOIDCDiscovery(ctx, httpClient, cfg.DiscoveryURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch OIDC discovery: %w", err)
		}
		authURL = discovery.AuthorizationEndpoint
		tokenURL = discovery.TokenEndpoint
	} else {
		if cfg.AuthorizationURL == "" || cfg.TokenURL == "" {
			return nil, fmt.Errorf("either discoveryUrl or both endpoints (authorizationUrl, tokenUrl) must be provided")
		}
		authURL = cfg.AuthorizationURL
		tokenURL = cfg.TokenURL
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	providerType := cfg.ProviderType
	if providerType == "" {
		providerType = "oidc"
	}

	return &OIDCProvider{
		providerType: providerType,
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
				// client_id travels in the form body so public clients work
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}, nil
}

func fetchOIDCDiscovery(ctx context.Context, client *http.Client, discoveryURL string) (*oidcDiscoveryDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned %s", ioutil.Excerpt(resp))
	}

	var discovery oidcDiscoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&discovery); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}

	if discovery.AuthorizationEndpoint == "" || discovery.TokenEndpoint == "" {
		return nil, fmt.Errorf("discovery document missing required endpoints")
	}

	return &discovery, nil
}

// Type returns the provider type.
func (p *OIDCProvider) Type() string {
	return p.providerType
}

// AuthURL generates the authorization URL with response_type=code, the
// client id, the registered redirect URI and the configured scopes.
func (p *OIDCProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange posts grant_type=authorization_code, client_id, code and
// redirect_uri to the token endpoint and decodes the returned id token.
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*Tokens, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: empty authorization code", ErrAuthExchangeFailed)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			log.LogWarnWithFields("idp", "Token endpoint rejected code", map[string]any{
				"provider": p.providerType,
				"status":   status,
				"error":    retrieveErr.ErrorCode,
				"code":     log.Fingerprint(code),
			})
			body := ioutil.ReadLimited(bytes.NewReader(retrieveErr.Body), ioutil.ExcerptLimit)
			return nil, fmt.Errorf("%w: token endpoint returned %d: %s", ErrAuthExchangeFailed, status, body)
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthExchangeFailed, err)
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, fmt.Errorf("%w: token response carries no id_token", ErrAuthExchangeFailed)
	}

	claims, err := tokencodec.Decode(idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthExchangeFailed, err)
	}

	log.LogDebugWithFields("idp", "Exchanged authorization code", map[string]any{
		"provider": p.providerType,
		"code":     log.Fingerprint(code),
		"sub":      claims.Subject(),
	})

	return &Tokens{
		IDToken:     idToken,
		AccessToken: token.AccessToken,
		Expiry:      token.Expiry,
		Claims:      claims,
	}, nil
}
