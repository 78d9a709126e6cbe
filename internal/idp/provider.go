package idp

import (
	"context"
	"errors"
	"time"

	"github.com/dgellow/vaultlink/internal/tokencodec"
)

// ErrAuthExchangeFailed covers every way trading a code for tokens can fail:
// transport errors, provider rejection and unusable responses. The code is
// spent either way, so the caller must restart login.
var ErrAuthExchangeFailed = errors.New("authorization code exchange failed")

// Tokens is the useful part of a token endpoint response
type Tokens struct {
	IDToken     string
	AccessToken string
	Expiry      time.Time
	Claims      tokencodec.Claims
}

// Provider abstracts identity provider operations.
type Provider interface {
	// Type returns the provider type identifier (e.g., "cognito", "oidc").
	Type() string

	// AuthURL returns the hosted login URL the whole page is sent to.
	AuthURL(state string) string

	// Exchange trades an authorization code for tokens. The id token is
	// decoded before returning so a malformed one fails here.
	Exchange(ctx context.Context, code string) (*Tokens, error)
}
