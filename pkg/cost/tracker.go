// Package cost tracks synthesis spend and the savings attributed to caching.
package cost

import (
	"sync"

	"github.com/ffneuron/neuron/pkg/models"
)

// Tracker accumulates per-request costs. Construct one per process and pass
// it to every call site.
type Tracker struct {
	mu           sync.Mutex
	requests     int64
	hits         int64
	misses       int64
	spend        float64
	fallbackCost float64
}

// NewTracker returns a Tracker. fallbackCost prices each hit when no miss has
// been recorded yet; 0 means savings start at zero.
func NewTracker(fallbackCost float64) *Tracker {
	return &Tracker{fallbackCost: fallbackCost}
}

// Record adds one request. Hits add nothing to spend.
func (t *Tracker) Record(cost float64, wasHit bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.requests++
	if wasHit {
		t.hits++
		return
	}
	t.misses++
	t.spend += cost
}

// EstimateSavings is hits times the average miss cost.
func (t *Tracker) EstimateSavings() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.savingsLocked()
}

func (t *Tracker) savingsLocked() float64 {
	if t.misses == 0 {
		return float64(t.hits) * t.fallbackCost
	}
	return float64(t.hits) * (t.spend / float64(t.misses))
}

// Snapshot returns a consistent copy of the counters.
func (t *Tracker) Snapshot() models.CostSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := models.CostSnapshot{
		Requests: t.requests,
		Hits:     t.hits,
		Misses:   t.misses,
		Spend:    t.spend,
		Savings:  t.savingsLocked(),
	}
	if t.requests > 0 {
		s.HitRate = float64(t.hits) / float64(t.requests)
	}
	return s
}
