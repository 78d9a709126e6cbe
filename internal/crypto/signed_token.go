package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid signed token")
	ErrTokenExpired = errors.New("signed token expired")
)

// TokenSigner issues HMAC-signed JSON envelopes bound to a purpose. A token
// signed for one purpose never verifies under another.
type TokenSigner struct {
	signingKey []byte
	purpose    string
	ttl        time.Duration
}

// NewTokenSigner creates a signer. A zero ttl issues tokens without expiry.
func NewTokenSigner(signingKey []byte, purpose string, ttl time.Duration) TokenSigner {
	return TokenSigner{
		signingKey: signingKey,
		purpose:    purpose,
		ttl:        ttl,
	}
}

type envelope struct {
	Purpose   string          `json:"p"`
	Data      json.RawMessage `json:"d"`
	ExpiresAt int64           `json:"exp,omitempty"`
}

// Sign marshals v into a base64url envelope and appends its signature.
func (ts *TokenSigner) Sign(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}

	env := envelope{Purpose: ts.purpose, Data: data}
	if ts.ttl > 0 {
		env.ExpiresAt = time.Now().Add(ts.ttl).Unix()
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}

	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + "." + SignData(payload, ts.signingKey), nil
}

// Verify checks signature, purpose and expiry, then unmarshals into v.
func (ts *TokenSigner) Verify(token string, v any) error {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok || payload == "" || signature == "" {
		return ErrInvalidToken
	}
	if !ValidateSignedData(payload, signature, ts.signingKey) {
		return ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return ErrInvalidToken
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ErrInvalidToken
	}
	if env.Purpose != ts.purpose {
		return ErrInvalidToken
	}
	if env.ExpiresAt != 0 && time.Now().Unix() > env.ExpiresAt {
		return ErrTokenExpired
	}

	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return nil
}
