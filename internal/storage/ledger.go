package storage

import (
	"sync"
	"time"

	"github.com/dgellow/vaultlink/internal/log"
)

// DefaultCodeRetention covers the lifetime of a provider-issued code
const DefaultCodeRetention = 10 * time.Minute

// CodeLedger remembers which authorization codes have already been presented.
// Only fingerprints are kept.
type CodeLedger struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewCodeLedger creates a ledger that forgets codes after retention
func NewCodeLedger(retention time.Duration) *CodeLedger {
	if retention <= 0 {
		retention = DefaultCodeRetention
	}
	return &CodeLedger{
		seen:      make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// Claim records code as consumed. It returns false if the code was already
// claimed within the retention window.
func (l *CodeLedger) Claim(code string) bool {
	fp := log.Fingerprint(code)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if at, ok := l.seen[fp]; ok && now.Sub(at) < l.retention {
		return false
	}
	l.seen[fp] = now
	return true
}

// Sweep drops entries older than the retention window and returns how many
// were removed
func (l *CodeLedger) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for fp, at := range l.seen {
		if now.Sub(at) >= l.retention {
			delete(l.seen, fp)
			removed++
		}
	}
	return removed
}

// Len returns the number of remembered codes
func (l *CodeLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
