package storage

import (
	"context"
	"time"

	"github.com/dgellow/vaultlink/internal/log"
)

// Sweeper drops expired entries and reports how many were removed
type Sweeper interface {
	Sweep() int
}

// CleanupManager handles periodic cleanup of expired code ledger entries
type CleanupManager struct {
	sweeper  Sweeper
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(sweeper Sweeper, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		sweeper:  sweeper,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the cleanup loop in a goroutine
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogInfoWithFields("cleanup", "Starting code ledger cleanup manager", map[string]any{
		"interval": cm.interval.String(),
	})

	go cm.run(ctx)
}

// Stop gracefully stops the cleanup loop
func (cm *CleanupManager) Stop() {
	close(cm.stopChan)
	<-cm.doneChan
	log.LogInfoWithFields("cleanup", "Code ledger cleanup manager stopped", nil)
}

func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.cleanup()

	for {
		select {
		case <-ticker.C:
			cm.cleanup()
		case <-cm.stopChan:
			// Final cleanup on shutdown
			cm.cleanup()
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) cleanup() {
	count := cm.sweeper.Sweep()
	if count > 0 {
		log.LogDebugWithFields("cleanup", "Dropped expired authorization code fingerprints", map[string]any{
			"count": count,
		})
	}
}
