package storage

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgellow/vaultlink/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStoreFromFile(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStores(t *testing.T) {
	backends := []struct {
		name  string
		store func(t *testing.T) Store
	}{
		{name: "memory", store: func(t *testing.T) Store { return NewMemoryStore() }},
		{name: "bbolt", store: func(t *testing.T) Store { return newBoltStore(t) }},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.store(t)

			_, err := store.Get(ctx, "sid-1")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Put(ctx, "sid-1", "first"))
			got, err := store.Get(ctx, "sid-1")
			require.NoError(t, err)
			assert.Equal(t, "first", got)

			// a new write replaces the slot wholesale
			require.NoError(t, store.Put(ctx, "sid-1", "second"))
			got, err = store.Get(ctx, "sid-1")
			require.NoError(t, err)
			assert.Equal(t, "second", got)

			_, err = store.Get(ctx, "sid-2")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBoltStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	store, err := NewBoltStoreFromFile(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "sid-1", "ciphertext"))
	require.NoError(t, store.Close())

	reopened, err := NewBoltStoreFromFile(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "ciphertext", got)
}

func TestFirestoreStoreConfig(t *testing.T) {
	t.Run("missing GCP project ID", func(t *testing.T) {
		_, err := NewFirestoreStore(context.Background(), "", "(default)", "sessions")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "projectID is required")
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, config.SessionConfig{Storage: config.StorageMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = Open(ctx, config.SessionConfig{
		Storage: config.StorageBolt,
		Path:    filepath.Join(t.TempDir(), "s.db"),
	})
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(ctx, config.SessionConfig{Storage: config.StorageFirestore})
	assert.Error(t, err)

	_, err = Open(ctx, config.SessionConfig{Storage: "redis"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage type")
}

func TestCodeLedger(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ledger := NewCodeLedger(10 * time.Minute)
	ledger.now = func() time.Time { return now }

	assert.True(t, ledger.Claim("abc123"))
	assert.False(t, ledger.Claim("abc123"), "second claim of the same code must fail")
	assert.True(t, ledger.Claim("def456"))
	assert.Equal(t, 2, ledger.Len())

	now = now.Add(5 * time.Minute)
	assert.Equal(t, 0, ledger.Sweep())
	assert.False(t, ledger.Claim("abc123"))

	now = now.Add(6 * time.Minute)
	assert.Equal(t, 2, ledger.Sweep())
	assert.Equal(t, 0, ledger.Len())
}

func TestCodeLedger_DefaultRetention(t *testing.T) {
	ledger := NewCodeLedger(0)
	assert.Equal(t, DefaultCodeRetention, ledger.retention)
}

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) Sweep() int {
	s.calls.Add(1)
	return 1
}

func TestCleanupManager(t *testing.T) {
	sweeper := &countingSweeper{}
	cm := NewCleanupManager(sweeper, 10*time.Millisecond)
	cm.Start(context.Background())

	assert.Eventually(t, func() bool {
		return sweeper.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	cm.Stop()
	stopped := sweeper.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, sweeper.calls.Load(), "no sweeps after Stop")
}

func TestCleanupManager_ContextCancel(t *testing.T) {
	sweeper := &countingSweeper{}
	cm := NewCleanupManager(sweeper, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cm.Start(ctx)
	cancel()

	select {
	case <-cm.doneChan:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not exit on context cancel")
	}
	assert.GreaterOrEqual(t, sweeper.calls.Load(), int32(1))
}
