// Package voice is the cached synthesis pipeline: key, hot tier, cold tier,
// router, provider.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/ffneuron/neuron/pkg/budget"
	"github.com/ffneuron/neuron/pkg/cache"
	"github.com/ffneuron/neuron/pkg/cost"
	"github.com/ffneuron/neuron/pkg/errs"
	"github.com/ffneuron/neuron/pkg/ledger"
	"github.com/ffneuron/neuron/pkg/metrics"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/retry"
	"github.com/ffneuron/neuron/pkg/synth"
	"github.com/ffneuron/neuron/pkg/voicekey"
)

// Where a result was served from.
const (
	CacheHot    = "hot"
	CacheCold   = "cold"
	CacheMiss   = "miss"
	CacheShared = "shared" // joined another caller's in-flight request
)

var (
	agentPattern   = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)
	emotionPattern = regexp.MustCompile(`^[a-z0-9_-]{0,32}$`)
)

// Request asks for one spoken line.
type Request struct {
	AgentID  string
	Text     string
	Emotion  string
	DebateID string
	UserID   string // attributed in the cost ledger
}

// Result describes the audio served for a Request.
type Result struct {
	Key        string           `json:"key"`
	Path       string           `json:"path"`
	Agent      string           `json:"agent"`
	Emotion    string           `json:"emotion"`
	Provider   models.Provider  `json:"provider"`
	VoiceID    string           `json:"voice_id"`
	Tier       models.VoiceTier `json:"tier"`
	CacheTier  string           `json:"cache"`
	Cost       float64          `json:"cost"`
	Saved      float64          `json:"saved,omitempty"`
	DurationMs int64            `json:"duration_ms"`
	Attempts   int              `json:"attempts,omitempty"`
	Degraded   bool             `json:"degraded,omitempty"`

	// Artifact is the audio itself, served separately.
	Artifact *models.AudioArtifact `json:"-"`
}

// Options wires a Service. Hot, Cold, Router, Registry and Tracker are
// required; the rest may be nil.
type Options struct {
	Hot      cache.HotCache
	Cold     cache.ColdStore
	Router   cost.Selector
	Registry *synth.Registry
	Tracker  *cost.Tracker
	Ledger   ledger.Ledger
	Budget   *budget.Enforcer
	Metrics  *metrics.Metrics

	SettingsVersion int
	HotTTL          time.Duration
	PrewarmTTL      time.Duration
	SynthTimeout    time.Duration
	Retry           *retry.Config // nil means retry.Default
}

// Service serves voice lines from cache, synthesizing on a miss.
type Service struct {
	opts  Options
	retry retry.Config
	group singleflight.Group
	now   func() time.Time
}

// New validates opts and returns a Service.
func New(opts Options) (*Service, error) {
	if opts.Hot == nil || opts.Cold == nil || opts.Router == nil || opts.Registry == nil || opts.Tracker == nil {
		return nil, fmt.Errorf("voice service: hot, cold, router, registry and tracker are required")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.SettingsVersion <= 0 {
		opts.SettingsVersion = 1
	}
	if opts.HotTTL <= 0 {
		opts.HotTTL = time.Hour
	}
	if opts.PrewarmTTL <= 0 {
		opts.PrewarmTTL = opts.HotTTL
	}
	if opts.SynthTimeout <= 0 {
		opts.SynthTimeout = 30 * time.Second
	}
	rc := retry.Default()
	if opts.Retry != nil {
		rc = *opts.Retry
	}
	return &Service{opts: opts, retry: rc, now: time.Now}, nil
}

// Key returns the cache key for a request without touching any tier.
func (s *Service) Key(req Request) (voicekey.Key, error) {
	agent := strings.ToLower(strings.TrimSpace(req.AgentID))
	if !agentPattern.MatchString(agent) {
		return voicekey.Key{}, errs.Invalid("agent id %q", req.AgentID)
	}
	if emotion := strings.ToLower(strings.TrimSpace(req.Emotion)); !emotionPattern.MatchString(emotion) {
		return voicekey.Key{}, errs.Invalid("emotion %q", req.Emotion)
	}
	key := voicekey.Build(agent, req.Text, req.Emotion, s.opts.SettingsVersion)
	if key.Text == "" {
		return voicekey.Key{}, errs.Invalid("text is empty")
	}
	return key, nil
}

// Generate returns audio for the request.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	return s.generate(ctx, req, s.opts.HotTTL)
}

type filled struct {
	artifact *models.AudioArtifact
	tier     string
	attempts int
	degraded bool
}

func (s *Service) generate(ctx context.Context, req Request, hotTTL time.Duration) (*Result, error) {
	key, err := s.Key(req)
	if err != nil {
		return nil, err
	}

	a, err := s.opts.Hot.Get(ctx, key)
	switch {
	case err == nil:
		return s.hit(ctx, req, key, a, CacheHot, false), nil
	case !errors.Is(err, cache.ErrMiss):
		s.degrade("hot", "get", err)
	}

	leader := false
	v, err, _ := s.group.Do(key.String(), func() (any, error) {
		leader = true
		// Waiters share this call, so it must outlive the leader's request.
		return s.fill(context.WithoutCancel(ctx), req, key, hotTTL)
	})
	if err != nil {
		return nil, err
	}
	f := v.(*filled)

	if !leader {
		return s.hit(ctx, req, key, f.artifact, CacheShared, f.degraded), nil
	}
	if f.tier == CacheCold {
		return s.hit(ctx, req, key, f.artifact, CacheCold, f.degraded), nil
	}
	return s.miss(ctx, req, key, f), nil
}

// fill runs once per key at a time: cold lookup, then synthesis.
func (s *Service) fill(ctx context.Context, req Request, key voicekey.Key, hotTTL time.Duration) (*filled, error) {
	var degraded bool
	a, err := s.opts.Cold.Get(ctx, key)
	switch {
	case err == nil:
		s.putHot(ctx, key, a, hotTTL)
		return &filled{artifact: a, tier: CacheCold}, nil
	case !errors.Is(err, cache.ErrMiss):
		degraded = true
		s.degrade("cold", "get", err)
	}

	if s.opts.Budget != nil {
		if err := s.opts.Budget.Check(ctx); err != nil {
			if errors.Is(err, budget.ErrBudgetExceeded) {
				return nil, err
			}
			slog.Warn("budget check failed, continuing", "error", err)
		}
	}

	choice := s.opts.Router.Select(key.AgentID, key.Emotion)
	client, err := s.opts.Registry.Lookup(choice)
	if err != nil {
		return nil, err
	}

	text := strings.Join(strings.Fields(req.Text), " ")
	start := time.Now()
	res, attempts, err := retry.Do(ctx, s.retry, func(ctx context.Context) (*synth.Result, error) {
		sctx, cancel := context.WithTimeout(ctx, s.opts.SynthTimeout)
		defer cancel()
		return client.Synthesize(sctx, text, choice.VoiceID, choice.Settings)
	})
	s.opts.Metrics.ObserveSynthesis(string(choice.Provider), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("synthesize %s: %w", key.AgentID, err)
	}

	artifact := &models.AudioArtifact{
		Audio:      res.Audio,
		MimeType:   res.MimeType,
		Provider:   choice.Provider,
		VoiceID:    choice.VoiceID,
		Tier:       choice.Tier,
		DurationMs: res.DurationMs,
		Cost:       res.Cost,
		CreatedAt:  s.now().UTC(),
	}

	if !degraded {
		if err := s.opts.Cold.Put(ctx, key, artifact); err != nil {
			degraded = true
			s.degrade("cold", "put", err)
		} else {
			s.putHot(ctx, key, artifact, hotTTL)
		}
	}
	return &filled{artifact: artifact, tier: CacheMiss, attempts: attempts, degraded: degraded}, nil
}

// putHot never lets the hot copy outlive the cold one.
func (s *Service) putHot(ctx context.Context, key voicekey.Key, a *models.AudioArtifact, ttl time.Duration) {
	if left := models.DeleteAfter - s.now().Sub(a.CreatedAt); left < ttl {
		if left <= 0 {
			return
		}
		ttl = left
	}
	if err := s.opts.Hot.Put(ctx, key, a, ttl); err != nil {
		s.degrade("hot", "put", err)
	}
}

func (s *Service) degrade(tier, op string, err error) {
	slog.Warn("cache tier unavailable, degraded mode", "tier", tier, "op", op, "error", errs.Storage(tier, op, err))
	s.opts.Metrics.Degraded(tier, op)
}

func (s *Service) hit(ctx context.Context, req Request, key voicekey.Key, a *models.AudioArtifact, tier string, degraded bool) *Result {
	s.opts.Tracker.Record(0, true)
	s.opts.Metrics.Request(tier, string(a.Provider))
	s.opts.Metrics.Saved(a.Cost)
	s.opts.Metrics.SetHitRate(s.opts.Tracker.Snapshot().HitRate)
	s.recordLedger(ctx, models.CostEvent{
		Service:   models.ServiceCache,
		Operation: models.OpCacheHit,
		Units:     float64(len(a.Audio)),
		Saved:     a.Cost,
		DebateID:  req.DebateID,
		Agent:     key.AgentID,
		UserID:    req.UserID,
		CacheHit:  true,
	})
	return s.result(key, a, tier, 0, degraded, 0)
}

func (s *Service) miss(ctx context.Context, req Request, key voicekey.Key, f *filled) *Result {
	a := f.artifact
	s.opts.Tracker.Record(a.Cost, false)
	s.opts.Metrics.Request(CacheMiss, string(a.Provider))
	s.opts.Metrics.Spend(string(a.Provider), string(a.Tier), a.Cost)
	s.opts.Metrics.SetHitRate(s.opts.Tracker.Snapshot().HitRate)
	s.recordLedger(ctx, models.CostEvent{
		Service:   string(a.Provider),
		Operation: cost.Operation(a.Tier),
		Units:     float64(utf8.RuneCountInString(req.Text)),
		Cost:      a.Cost,
		DebateID:  req.DebateID,
		Agent:     key.AgentID,
		UserID:    req.UserID,
	})
	return s.result(key, a, CacheMiss, a.Cost, f.degraded, f.attempts)
}

func (s *Service) recordLedger(ctx context.Context, ev models.CostEvent) {
	if s.opts.Ledger == nil {
		return
	}
	if err := s.opts.Ledger.Record(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("ledger record failed", "error", err)
	}
}

func (s *Service) result(key voicekey.Key, a *models.AudioArtifact, tier string, spent float64, degraded bool, attempts int) *Result {
	r := &Result{
		Key:        key.String(),
		Path:       key.Path(),
		Agent:      key.AgentID,
		Emotion:    key.Emotion,
		Provider:   a.Provider,
		VoiceID:    a.VoiceID,
		Tier:       a.Tier,
		CacheTier:  tier,
		Cost:       spent,
		DurationMs: a.DurationMs,
		Attempts:   attempts,
		Degraded:   degraded,
		Artifact:   a,
	}
	if tier != CacheMiss {
		r.Saved = a.Cost
	}
	return r
}

// Audio fetches stored audio by the path handed out in a Result.
func (s *Service) Audio(ctx context.Context, path string) (*models.AudioArtifact, error) {
	if path == "" || strings.Contains(path, "..") || !strings.HasSuffix(path, ".audio") {
		return nil, errs.Invalid("audio path %q", path)
	}
	a, err := s.opts.Cold.GetPath(ctx, path)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		return nil, errs.Storage("cold", "get", err)
	}
	return a, err
}

// Snapshot returns the process cost counters.
func (s *Service) Snapshot() models.CostSnapshot {
	return s.opts.Tracker.Snapshot()
}
