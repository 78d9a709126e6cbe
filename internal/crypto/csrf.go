package crypto

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CSRFProtection provides stateless HMAC-based CSRF tokens bound to a browser
// session. Tokens are self-contained: nonce:timestamp:signature.
type CSRFProtection struct {
	signingKey []byte
	ttl        time.Duration
}

// NewCSRFProtection creates a new CSRF protection instance
func NewCSRFProtection(signingKey []byte, ttl time.Duration) CSRFProtection {
	return CSRFProtection{
		signingKey: signingKey,
		ttl:        ttl,
	}
}

// Generate creates a token for the given binding, normally the session id.
func (c *CSRFProtection) Generate(binding string) (string, error) {
	nonce, err := GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := SignData(binding+":"+nonce+":"+timestamp, c.signingKey)

	return nonce + ":" + timestamp + ":" + signature, nil
}

// Validate checks a token against the binding it was generated for.
func (c *CSRFProtection) Validate(binding, token string) bool {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 {
		return false
	}

	nonce, timestampStr, signature := parts[0], parts[1], parts[2]

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return false
	}
	if time.Since(time.Unix(timestamp, 0)) > c.ttl {
		return false
	}

	return ValidateSignedData(binding+":"+nonce+":"+timestampStr, signature, c.signingKey)
}
