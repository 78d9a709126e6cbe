package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgellow/vaultlink/internal/config"
	"github.com/dgellow/vaultlink/internal/log"
)

// ErrNotFound is returned when a key has never been written
var ErrNotFound = errors.New("not found")

// Store is a flat key/value store for session slots. Values are opaque to
// the store; callers encrypt before writing.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Close() error
}

// Open creates the backend selected by the session config
func Open(ctx context.Context, cfg config.SessionConfig) (Store, error) {
	switch cfg.Storage {
	case config.StorageMemory, "":
		log.LogWarnWithFields("storage", "Using in-memory session storage, sessions will not survive a restart", nil)
		return NewMemoryStore(), nil
	case config.StorageBolt:
		store, err := NewBoltStoreFromFile(filepath.Clean(cfg.Path))
		if err != nil {
			return nil, err
		}
		log.LogInfoWithFields("storage", "Opened bbolt session storage", map[string]any{
			"path": cfg.Path,
		})
		return store, nil
	case config.StorageFirestore:
		store, err := NewFirestoreStore(ctx, cfg.GCPProject, cfg.FirestoreDatabase, cfg.FirestoreCollection)
		if err != nil {
			return nil, err
		}
		log.LogInfoWithFields("storage", "Connected to Firestore session storage", map[string]any{
			"project":    cfg.GCPProject,
			"database":   cfg.FirestoreDatabase,
			"collection": store.collection,
		})
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage)
	}
}
