package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ffneuron/neuron/pkg/budget"
	"github.com/ffneuron/neuron/pkg/cache"
	"github.com/ffneuron/neuron/pkg/cache/memory"
	"github.com/ffneuron/neuron/pkg/cache/redis"
	"github.com/ffneuron/neuron/pkg/cache/s3"
	"github.com/ffneuron/neuron/pkg/cache/sqlite"
	"github.com/ffneuron/neuron/pkg/config"
	"github.com/ffneuron/neuron/pkg/cost"
	"github.com/ffneuron/neuron/pkg/debate"
	"github.com/ffneuron/neuron/pkg/ledger"
	"github.com/ffneuron/neuron/pkg/metrics"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/retry"
	"github.com/ffneuron/neuron/pkg/router"
	"github.com/ffneuron/neuron/pkg/synth"
	"github.com/ffneuron/neuron/pkg/textgen"
	"github.com/ffneuron/neuron/pkg/voice"
)

// app holds every long-lived component built from a Config.
type app struct {
	cfg      *config.Config
	hot      cache.HotCache
	cold     cache.ColdStore
	ledger   *ledger.SQLiteLedger
	router   *router.Router
	pricing  *cost.Pricing
	tracker  *cost.Tracker
	enforcer *budget.Enforcer
	metrics  *metrics.Metrics
	voice    *voice.Service
	debates  *debate.Orchestrator

	closers []io.Closer
}

func (a *app) Close() error {
	var errList []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errList = append(errList, a.closers[i].Close())
	}
	return errors.Join(errList...)
}

// openHot builds the Tier-1 cache.
func openHot(ctx context.Context, cfg *config.Config) (cache.HotCache, error) {
	switch cfg.Hot.Backend {
	case "redis":
		return redis.New(ctx, cfg.Hot.RedisURL)
	default:
		return memory.New(cfg.Hot.Capacity)
	}
}

// openCold builds the Tier-2 store.
func openCold(ctx context.Context, cfg *config.Config) (cache.ColdStore, error) {
	switch cfg.Cold.Backend {
	case "s3":
		c := cfg.Cold.S3
		return s3.New(ctx, s3.Config{
			Bucket:          c.Bucket,
			Region:          c.Region,
			Endpoint:        c.Endpoint,
			Prefix:          c.Prefix,
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			UsePathStyle:    c.UsePathStyle,
			TransitionClass: c.TransitionClass,
		})
	default:
		return sqlite.New(cfg.Cold.Path, cfg.Cold.CompressionLevel)
	}
}

// newRegistry registers a premium and a standard client for every provider
// that has an API key.
func newRegistry(cfg *config.Config) *synth.Registry {
	reg := synth.NewRegistry()
	register := func(p models.Provider, pc config.ProviderConfig, build func(synth.Config) synth.Client) {
		if pc.APIKey == "" {
			slog.Warn("provider disabled: no api key", "provider", p)
			return
		}
		base := synth.Config{
			APIKey:            pc.APIKey,
			BaseURL:           pc.BaseURL,
			DefaultVoice:      pc.DefaultVoice,
			RequestsPerSecond: pc.RequestsPerSecond,
			Timeout:           cfg.Voice.SynthTimeout,
		}
		premium := base
		premium.Model = pc.PremiumModel
		premium.RatePer1K = pc.Rates.Premium
		standard := base
		standard.Model = pc.Model
		standard.RatePer1K = pc.Rates.Standard

		reg.Register(p, models.TierPremium, build(premium))
		reg.Register(p, models.TierStandard, build(standard))
	}
	register(models.ProviderElevenLabs, cfg.Providers.ElevenLabs, func(c synth.Config) synth.Client { return synth.NewElevenLabs(c) })
	register(models.ProviderOpenAI, cfg.Providers.OpenAI, func(c synth.Config) synth.Client { return synth.NewOpenAI(c) })
	return reg
}

// newApp wires the full service graph. Callers must Close it.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.hot, err = openHot(ctx, cfg); err != nil {
		return nil, fmt.Errorf("init hot cache: %w", err)
	}
	a.closers = append(a.closers, a.hot)

	if a.cold, err = openCold(ctx, cfg); err != nil {
		return nil, fmt.Errorf("init cold store: %w", err)
	}
	a.closers = append(a.closers, a.cold)

	if a.ledger, err = ledger.New(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	a.closers = append(a.closers, a.ledger)

	if a.router, err = router.New(cfg.Router); err != nil {
		return nil, fmt.Errorf("init router: %w", err)
	}

	a.pricing = cost.NewPricing(cfg)
	a.tracker = cost.NewTracker(cfg.Voice.FallbackCost)
	a.metrics = metrics.New(nil)
	if cfg.Budget.Enabled {
		a.enforcer = budget.New(models.BudgetPolicy{
			DailyLimit:     cfg.Budget.DailyLimit,
			AlertThreshold: cfg.Budget.AlertThreshold,
		}, a.ledger)
	}

	a.voice, err = voice.New(voice.Options{
		Hot:             a.hot,
		Cold:            a.cold,
		Router:          a.router,
		Registry:        newRegistry(cfg),
		Tracker:         a.tracker,
		Ledger:          a.ledger,
		Budget:          a.enforcer,
		Metrics:         a.metrics,
		SettingsVersion: cfg.Voice.SettingsVersion,
		HotTTL:          cfg.Voice.HotTTL,
		PrewarmTTL:      cfg.Voice.PrewarmTTL,
		SynthTimeout:    cfg.Voice.SynthTimeout,
		Retry: &retry.Config{
			MaxRetries: cfg.Voice.Retries,
			BaseDelay:  cfg.Voice.RetryBaseDelay,
			MaxDelay:   10 * cfg.Voice.RetryBaseDelay,
		},
	})
	if err != nil {
		return nil, err
	}

	llmKey := cfg.LLM.APIKey
	if llmKey == "" {
		llmKey = cfg.Providers.OpenAI.APIKey
	}
	a.debates, err = debate.New(debate.Options{
		Generator: textgen.NewOpenAI(textgen.Config{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  llmKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}),
		Voice:    a.voice,
		Pricing:  a.pricing,
		Ledger:   a.ledger,
		MaxTurns: cfg.Debate.MaxTurns,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
