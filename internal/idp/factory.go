package idp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dgellow/vaultlink/internal/config"
	"github.com/dgellow/vaultlink/internal/urlutil"
)

// NewProvider creates a Provider based on the identity config.
func NewProvider(ctx context.Context, cfg config.IdentityConfig, httpClient *http.Client) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderCognito:
		return NewCognitoProvider(cfg, httpClient)

	case config.ProviderOIDC:
		return NewOIDCProvider(ctx, OIDCConfig{
			ProviderType:     "oidc",
			DiscoveryURL:     cfg.DiscoveryURL,
			AuthorizationURL: cfg.AuthorizationURL,
			TokenURL:         cfg.TokenURL,
			ClientID:         cfg.ClientID,
			ClientSecret:     string(cfg.ClientSecret),
			RedirectURI:      cfg.RedirectURI,
			Scopes:           cfg.Scopes,
			HTTPClient:       httpClient,
		})

	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider)
	}
}

// NewCognitoProvider builds a provider for a Cognito hosted UI. The login
// page is <domain>/login and the token endpoint <domain>/oauth2/token.
func NewCognitoProvider(cfg config.IdentityConfig, httpClient *http.Client) (*OIDCProvider, error) {
	base, err := urlutil.HostedBase(cfg.Domain)
	if err != nil {
		return nil, fmt.Errorf("invalid cognito domain: %w", err)
	}
	authURL, err := urlutil.JoinPath(base, "login")
	if err != nil {
		return nil, err
	}
	tokenURL, err := urlutil.JoinPath(base, "oauth2", "token")
	if err != nil {
		return nil, err
	}

	return NewOIDCProvider(context.Background(), OIDCConfig{
		ProviderType:     "cognito",
		AuthorizationURL: authURL,
		TokenURL:         tokenURL,
		ClientID:         cfg.ClientID,
		ClientSecret:     string(cfg.ClientSecret),
		RedirectURI:      cfg.RedirectURI,
		Scopes:           cfg.Scopes,
		HTTPClient:       httpClient,
	})
}
