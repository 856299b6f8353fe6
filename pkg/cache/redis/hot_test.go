package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/ffneuron/neuron/pkg/cache"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/voicekey"
)

func newTestHot(t *testing.T) (*Hot, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	h, err := New(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h, mr
}

func TestPutAndGet(t *testing.T) {
	h, _ := newTestHot(t)
	ctx := context.Background()
	key := voicekey.Build("big_mike", "Let it ride", "excited", 1)

	in := &models.AudioArtifact{
		Audio:      []byte{0xff, 0xfb, 0x90},
		MimeType:   "audio/mpeg",
		Provider:   models.ProviderElevenLabs,
		Tier:       models.TierPremium,
		DurationMs: 900,
		Cost:       0.00033,
	}
	if err := h.Put(ctx, key, in, time.Hour); err != nil {
		t.Fatal(err)
	}

	got, err := h.Get(ctx, voicekey.Build("big_mike", "let it  RIDE", "excited", 1))
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Audio) != string(in.Audio) || got.DurationMs != 900 || got.Tier != models.TierPremium {
		t.Errorf("unexpected artifact: %+v", got)
	}
}

func TestTTLExpiration(t *testing.T) {
	h, mr := newTestHot(t)
	ctx := context.Background()
	key := voicekey.Build("leo", "why not go for it", "excited", 1)

	_ = h.Put(ctx, key, &models.AudioArtifact{Audio: []byte("a")}, time.Hour)
	mr.FastForward(61 * time.Minute)

	if _, err := h.Get(ctx, key); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestStats(t *testing.T) {
	h, mr := newTestHot(t)
	ctx := context.Background()
	_ = mr.Set("unrelated", "x")

	_ = h.Put(ctx, voicekey.Build("sam", "long game", "calm", 1), &models.AudioArtifact{}, time.Hour)
	_ = h.Put(ctx, voicekey.Build("sam", "process over results", "calm", 1), &models.AudioArtifact{}, time.Hour)
	_, _ = h.Get(ctx, voicekey.Build("sam", "long game", "calm", 1))
	_, _ = h.Get(ctx, voicekey.Build("sam", "nope", "calm", 1))

	stats, err := h.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 2 || stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestNewUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := New(ctx, "redis://"+addr); err == nil {
		t.Fatal("expected connection error")
	}
}
