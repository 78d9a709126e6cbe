package crypto

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.Len(t, token, 43)

	token2, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}

func TestSignData(t *testing.T) {
	key := []byte("a-signing-key-that-is-long-enough!!")

	sig := SignData("payload", key)
	assert.True(t, ValidateSignedData("payload", sig, key))
	assert.False(t, ValidateSignedData("payload2", sig, key))
	assert.False(t, ValidateSignedData("payload", sig, []byte("other-key")))
}

type loginState struct {
	Nonce string `json:"nonce"`
}

func TestTokenSigner(t *testing.T) {
	key := []byte("a-signing-key-that-is-long-enough!!")

	t.Run("round_trip", func(t *testing.T) {
		signer := NewTokenSigner(key, "login", time.Minute)
		token, err := signer.Sign(loginState{Nonce: "n1"})
		require.NoError(t, err)

		var got loginState
		require.NoError(t, signer.Verify(token, &got))
		assert.Equal(t, "n1", got.Nonce)
	})

	t.Run("tampered_payload", func(t *testing.T) {
		signer := NewTokenSigner(key, "login", time.Minute)
		token, err := signer.Sign(loginState{Nonce: "n1"})
		require.NoError(t, err)

		payload, sig, _ := strings.Cut(token, ".")
		forged := payload + "x." + sig
		assert.ErrorIs(t, signer.Verify(forged, &loginState{}), ErrInvalidToken)
	})

	t.Run("wrong_purpose", func(t *testing.T) {
		a := NewTokenSigner(key, "login", time.Minute)
		b := NewTokenSigner(key, "other", time.Minute)
		token, err := a.Sign(loginState{Nonce: "n1"})
		require.NoError(t, err)
		assert.ErrorIs(t, b.Verify(token, &loginState{}), ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		signer := NewTokenSigner(key, "login", time.Nanosecond)
		token, err := signer.Sign(loginState{Nonce: "n1"})
		require.NoError(t, err)

		time.Sleep(1100 * time.Millisecond)
		assert.ErrorIs(t, signer.Verify(token, &loginState{}), ErrTokenExpired)
	})

	t.Run("garbage", func(t *testing.T) {
		signer := NewTokenSigner(key, "login", 0)
		assert.ErrorIs(t, signer.Verify("not-a-token", &loginState{}), ErrInvalidToken)
		assert.ErrorIs(t, signer.Verify("", &loginState{}), ErrInvalidToken)
	})
}

func TestCSRFProtection(t *testing.T) {
	csrf := NewCSRFProtection([]byte("a-signing-key-that-is-long-enough!!"), time.Hour)

	token, err := csrf.Generate("sid-1")
	require.NoError(t, err)

	assert.True(t, csrf.Validate("sid-1", token))
	assert.False(t, csrf.Validate("sid-2", token))
	assert.False(t, csrf.Validate("sid-1", "a:b"))
	assert.False(t, csrf.Validate("sid-1", "nonce:notanumber:sig"))

	expired := NewCSRFProtection([]byte("a-signing-key-that-is-long-enough!!"), -time.Second)
	old, err := expired.Generate("sid-1")
	require.NoError(t, err)
	assert.False(t, expired.Validate("sid-1", old))
}

func TestEncryptor(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	enc, err := NewEncryptor(key)
	require.NoError(t, err)

	sealed, err := enc.Encrypt("header.payload.sig")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "payload")

	sealed2, err := enc.Encrypt("header.payload.sig")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, sealed2, "nonce must differ per call")

	plain, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "header.payload.sig", plain)

	other, err := NewEncryptor([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = enc.Decrypt("!!!")
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = NewEncryptor([]byte("short"))
	assert.Error(t, err)
}
