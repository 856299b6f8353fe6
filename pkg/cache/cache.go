// Package cache defines the two audio cache tiers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/voicekey"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// HotCache is the short-lived tier for frequently repeated phrases.
type HotCache interface {
	Get(ctx context.Context, key voicekey.Key) (*models.AudioArtifact, error)
	Put(ctx context.Context, key voicekey.Key, a *models.AudioArtifact, ttl time.Duration) error
	Stats(ctx context.Context) (models.CacheStats, error)
	Close() error
}

// ColdStore is the durable, authoritative tier.
type ColdStore interface {
	Get(ctx context.Context, key voicekey.Key) (*models.AudioArtifact, error)
	// Put stores a new artifact. An existing artifact under the same key is kept.
	Put(ctx context.Context, key voicekey.Key, a *models.AudioArtifact) error
	// GetPath fetches by object path, as handed out in audio URLs.
	GetPath(ctx context.Context, path string) (*models.AudioArtifact, error)
	Stats(ctx context.Context) (models.CacheStats, error)
	Close() error
}

// Sweeper is implemented by cold stores that apply the lifecycle themselves.
type Sweeper interface {
	Sweep(ctx context.Context) (models.SweepResult, error)
}

// Encode serializes an artifact for byte-oriented backends.
func Encode(a *models.AudioArtifact) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return data, nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (*models.AudioArtifact, error) {
	var a models.AudioArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &a, nil
}
