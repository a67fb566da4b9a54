package matcher

import (
	"math"
	"sync"
	"time"
)

// UsageTracker is an in-memory SignalSource tracking how often each resource
// wins a match. Counts decay exponentially so a burst of historical wins
// fades instead of dominating forever. State is process-local and lost on
// restart.
type UsageTracker struct {
	mu       sync.Mutex
	halfLife time.Duration
	counts   map[string]*usageEntry

	now func() time.Time
}

type usageEntry struct {
	count   float64
	touched time.Time
}

// NewUsageTracker creates a tracker with the given decay half life. A zero
// half life defaults to 24h.
func NewUsageTracker(halfLife time.Duration) *UsageTracker {
	if halfLife <= 0 {
		halfLife = 24 * time.Hour
	}
	return &UsageTracker{
		halfLife: halfLife,
		counts:   make(map[string]*usageEntry),
		now:      time.Now,
	}
}

// RecordSuccess bumps a resource's usage after it won a match.
func (t *UsageTracker) RecordSuccess(resourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.counts[resourceID]
	if !ok {
		entry = &usageEntry{}
		t.counts[resourceID] = entry
	}
	t.decay(entry)
	entry.count++
}

// Score returns the decayed usage normalized to [0, 1). A resource with no
// history scores 0; the score approaches 1 as wins accumulate.
func (t *UsageTracker) Score(resourceID string, _ map[string]string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.counts[resourceID]
	if !ok {
		return 0
	}
	t.decay(entry)
	return entry.count / (entry.count + 1)
}

// decay applies exponential decay since the entry was last touched. Caller
// holds the lock.
func (t *UsageTracker) decay(entry *usageEntry) {
	now := t.now()
	if !entry.touched.IsZero() {
		elapsed := now.Sub(entry.touched)
		entry.count *= math.Exp2(-float64(elapsed) / float64(t.halfLife))
	}
	entry.touched = now
}
