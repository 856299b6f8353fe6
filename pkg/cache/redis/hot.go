// Package redis is a hot cache backed by Redis. Redis enforces the TTL.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ffneuron/neuron/pkg/cache"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/voicekey"
)

// Hot stores JSON-encoded artifacts under the key's string form.
type Hot struct {
	client *goredis.Client
	hits   atomic.Int64
	misses atomic.Int64
}

// New connects to the Redis server at url (redis://[:password@]host:port/db)
// and verifies the connection.
func New(ctx context.Context, url string) (*Hot, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Hot{client: client}, nil
}

// Get returns the artifact, or cache.ErrMiss if absent or expired.
func (h *Hot) Get(ctx context.Context, key voicekey.Key) (*models.AudioArtifact, error) {
	data, err := h.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, goredis.Nil) {
		h.misses.Add(1)
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	a, err := cache.Decode(data)
	if err != nil {
		return nil, err
	}
	h.hits.Add(1)
	return a, nil
}

// Put stores the artifact with SET EX.
func (h *Hot) Put(ctx context.Context, key voicekey.Key, a *models.AudioArtifact, ttl time.Duration) error {
	data, err := cache.Encode(a)
	if err != nil {
		return err
	}
	if err := h.client.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Stats counts voice keys with SCAN.
func (h *Hot) Stats(ctx context.Context) (models.CacheStats, error) {
	var count int64
	iter := h.client.Scan(ctx, 0, "voice:*", 500).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return models.CacheStats{}, fmt.Errorf("redis scan: %w", err)
	}
	return models.CacheStats{
		Backend: "redis",
		Entries: count,
		Hits:    h.hits.Load(),
		Misses:  h.misses.Load(),
	}, nil
}

// Close releases the connection pool.
func (h *Hot) Close() error {
	return h.client.Close()
}
