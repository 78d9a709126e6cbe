package tokencodec

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var ErrTokenMalformed = errors.New("identity token malformed")

// DefaultDisplayName is shown when the token carries no name claim
const DefaultDisplayName = "User"

// signatureAlgorithms lists every algorithm an identity provider may sign
// with. The signature itself is never checked here.
var signatureAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.HS256, jose.HS384, jose.HS512,
	jose.EdDSA,
}

// Claims is the decoded payload segment of an identity token
type Claims map[string]any

// Decode parses the payload of a compact JWS identity token without
// verifying its signature. The result is for display and local
// pre-checks only; it must never decide access on its own.
func Decode(token string) (Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("%w: expected three dot-separated segments", ErrTokenMalformed)
	}

	parsed, err := jwt.ParseSigned(token, signatureAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	var claims Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if claims == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrTokenMalformed)
	}
	return claims, nil
}

// String returns a string claim, or "" when absent or not a string
func (c Claims) String(name string) string {
	v, _ := c[name].(string)
	return v
}

// Subject returns the sub claim
func (c Claims) Subject() string {
	return c.String("sub")
}

// Issuer returns the iss claim
func (c Claims) Issuer() string {
	return c.String("iss")
}

// DisplayName returns the name claim, falling back to DefaultDisplayName
func (c Claims) DisplayName() string {
	if name := strings.TrimSpace(c.String("name")); name != "" {
		return name
	}
	return DefaultDisplayName
}

// Expiry returns the exp claim. ok is false when the claim is absent or
// not numeric.
func (c Claims) Expiry() (exp time.Time, ok bool) {
	switch v := c["exp"].(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	default:
		return time.Time{}, false
	}
}

// Expired reports whether exp is at or before now. A token without exp
// never expires locally.
func (c Claims) Expired(now time.Time) bool {
	exp, ok := c.Expiry()
	if !ok {
		return false
	}
	return !now.Before(exp)
}
