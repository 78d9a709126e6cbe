package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dgellow/vaultlink/internal/crypto"
	"github.com/dgellow/vaultlink/internal/log"
	"github.com/dgellow/vaultlink/internal/storage"
)

// Slot holds the identity token for each browser session. There is exactly
// one token per session id; Set replaces it wholesale.
type Slot struct {
	store     storage.Store
	encryptor crypto.Encryptor
}

// NewSlot creates a slot over store. Tokens are encrypted before they reach
// the store.
func NewSlot(store storage.Store, encryptor crypto.Encryptor) *Slot {
	return &Slot{store: store, encryptor: encryptor}
}

// NewID returns a fresh opaque session id for the browser cookie
func NewID() (string, error) {
	return crypto.GenerateSecureToken()
}

// storeKey derives the storage key so raw session ids never hit the backend
func storeKey(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return "sid_" + hex.EncodeToString(sum[:])
}

// Set persists token for sessionID
func (s *Slot) Set(ctx context.Context, sessionID, token string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	sealed, err := s.encryptor.Encrypt(token)
	if err != nil {
		return fmt.Errorf("encrypting identity token: %w", err)
	}
	if err := s.store.Put(ctx, storeKey(sessionID), sealed); err != nil {
		return fmt.Errorf("storing identity token: %w", err)
	}

	log.LogDebugWithFields("session", "Stored identity token", map[string]any{
		"session": log.Fingerprint(sessionID),
		"token":   log.Fingerprint(token),
	})
	return nil
}

// Get returns the token for sessionID. ok is false when the slot was never
// set. A value that no longer decrypts (rotated key) is reported as absent.
func (s *Slot) Get(ctx context.Context, sessionID string) (token string, ok bool, err error) {
	if sessionID == "" {
		return "", false, nil
	}

	sealed, err := s.store.Get(ctx, storeKey(sessionID))
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading identity token: %w", err)
	}

	token, err = s.encryptor.Decrypt(sealed)
	if err != nil {
		log.LogWarnWithFields("session", "Stored identity token does not decrypt, treating session as absent", map[string]any{
			"session": log.Fingerprint(sessionID),
		})
		return "", false, nil
	}
	return token, true, nil
}
