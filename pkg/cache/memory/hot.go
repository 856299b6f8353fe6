// Package memory is an in-process hot cache with per-entry expiry.
package memory

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ffneuron/neuron/pkg/cache"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/voicekey"
)

// DefaultCapacity bounds the number of entries.
const DefaultCapacity = 1000

type entry struct {
	artifact  *models.AudioArtifact
	expiresAt time.Time
}

// Hot is a bounded LRU with lazy expiry.
type Hot struct {
	lru    *lru.Cache[string, entry]
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Hot cache.
type Option func(*Hot)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Hot) { h.now = now }
}

// New creates a Hot cache holding at most capacity entries.
func New(capacity int, opts ...Option) (*Hot, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[string, entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	h := &Hot{lru: c, now: time.Now}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// Get returns the artifact, or cache.ErrMiss if absent or expired.
func (h *Hot) Get(_ context.Context, key voicekey.Key) (*models.AudioArtifact, error) {
	k := key.String()
	e, ok := h.lru.Get(k)
	if !ok {
		h.misses.Add(1)
		return nil, cache.ErrMiss
	}
	if !h.now().Before(e.expiresAt) {
		h.lru.Remove(k)
		h.misses.Add(1)
		return nil, cache.ErrMiss
	}
	h.hits.Add(1)
	return e.artifact, nil
}

// Put stores the artifact until ttl elapses.
func (h *Hot) Put(_ context.Context, key voicekey.Key, a *models.AudioArtifact, ttl time.Duration) error {
	h.lru.Add(key.String(), entry{artifact: a, expiresAt: h.now().Add(ttl)})
	return nil
}

// Stats returns hit/miss counters and the current entry count.
func (h *Hot) Stats(context.Context) (models.CacheStats, error) {
	var size int64
	for _, e := range h.lru.Values() {
		size += int64(len(e.artifact.Audio))
	}
	return models.CacheStats{
		Backend: "memory",
		Entries: int64(h.lru.Len()),
		Bytes:   size,
		Hits:    h.hits.Load(),
		Misses:  h.misses.Load(),
	}, nil
}

// Close drops all entries.
func (h *Hot) Close() error {
	h.lru.Purge()
	return nil
}
