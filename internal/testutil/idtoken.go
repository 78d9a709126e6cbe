package testutil

import (
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("vaultlink-test-signing-key-0123456789")

// IDToken signs claims into a compact HS256 identity token. Defaults for
// sub, iss, and exp (one hour ahead) are filled when missing.
func IDToken(t testing.TB, claims map[string]any) string {
	t.Helper()

	merged := map[string]any{
		"sub": "user-1",
		"iss": "https://cognito-idp.eu-west-1.amazonaws.com/eu-west-1_test",
		"aud": "client-123",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: testSigningKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	token, err := jwt.Signed(signer).Claims(merged).Serialize()
	require.NoError(t, err)
	return token
}

// ExpiredIDToken returns a token whose exp is in the past
func ExpiredIDToken(t testing.TB, claims map[string]any) string {
	t.Helper()
	merged := map[string]any{"exp": time.Now().Add(-time.Minute).Unix()}
	for k, v := range claims {
		merged[k] = v
	}
	return IDToken(t, merged)
}
