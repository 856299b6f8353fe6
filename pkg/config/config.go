package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ffneuron/neuron/pkg/models"
)

// Config holds all neuron configuration.
type Config struct {
	Listen    string          `yaml:"listen" env:"NEURON_LISTEN"`
	DBPath    string          `yaml:"db_path" env:"NEURON_DB_PATH"`
	LogLevel  string          `yaml:"log_level" env:"NEURON_LOG_LEVEL"`
	Voice     VoiceConfig     `yaml:"voice"`
	Hot       HotConfig       `yaml:"hot"`
	Cold      ColdConfig      `yaml:"cold"`
	Providers ProvidersConfig `yaml:"providers"`
	Router    RouterConfig    `yaml:"router"`
	LLM       LLMConfig       `yaml:"llm"`
	Budget    BudgetConfig    `yaml:"budget"`
	Server    ServerConfig    `yaml:"server"`
	Debate    DebateConfig    `yaml:"debate"`
}

// VoiceConfig controls the synthesis pipeline.
type VoiceConfig struct {
	SettingsVersion int           `yaml:"settings_version" env:"NEURON_VOICE_SETTINGS_VERSION"`
	HotTTL          time.Duration `yaml:"hot_ttl" env:"NEURON_VOICE_HOT_TTL"`
	PrewarmTTL      time.Duration `yaml:"prewarm_ttl" env:"NEURON_VOICE_PREWARM_TTL"`
	SynthTimeout    time.Duration `yaml:"synth_timeout" env:"NEURON_VOICE_SYNTH_TIMEOUT"`
	Retries         int           `yaml:"retries" env:"NEURON_VOICE_RETRIES"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay" env:"NEURON_VOICE_RETRY_BASE_DELAY"`
	// FallbackCost prices a cache hit for savings estimates before any miss
	// has been recorded.
	FallbackCost float64 `yaml:"fallback_cost" env:"NEURON_VOICE_FALLBACK_COST"`
}

// HotConfig selects the Tier-1 backend: "memory" or "redis".
type HotConfig struct {
	Backend  string `yaml:"backend" env:"NEURON_HOT_BACKEND"`
	Capacity int    `yaml:"capacity" env:"NEURON_HOT_CAPACITY"`
	RedisURL string `yaml:"redis_url" env:"NEURON_REDIS_URL"`
}

// ColdConfig selects the Tier-2 backend: "sqlite" or "s3".
type ColdConfig struct {
	Backend          string        `yaml:"backend" env:"NEURON_COLD_BACKEND"`
	Path             string        `yaml:"path" env:"NEURON_COLD_PATH"`
	CompressionLevel int           `yaml:"compression_level" env:"NEURON_COLD_COMPRESSION_LEVEL"`
	SweepInterval    time.Duration `yaml:"sweep_interval" env:"NEURON_COLD_SWEEP_INTERVAL"`
	S3               S3Config      `yaml:"s3"`
}

// S3Config points at an S3-compatible bucket.
type S3Config struct {
	Bucket          string `yaml:"bucket" env:"NEURON_S3_BUCKET"`
	Region          string `yaml:"region" env:"NEURON_S3_REGION"`
	Endpoint        string `yaml:"endpoint" env:"NEURON_S3_ENDPOINT"`
	Prefix          string `yaml:"prefix" env:"NEURON_S3_PREFIX"`
	AccessKeyID     string `yaml:"access_key_id" env:"NEURON_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"NEURON_S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `yaml:"use_path_style" env:"NEURON_S3_USE_PATH_STYLE"`
	TransitionClass string `yaml:"transition_class" env:"NEURON_S3_TRANSITION_CLASS"`
}

// ProvidersConfig holds credentials for each TTS vendor.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `yaml:"openai" envPrefix:"NEURON_OPENAI_"`
	ElevenLabs ProviderConfig `yaml:"elevenlabs" envPrefix:"NEURON_ELEVENLABS_"`
}

// ProviderConfig defines an upstream TTS provider. A provider without an
// API key is not registered.
type ProviderConfig struct {
	APIKey            string    `yaml:"api_key" env:"API_KEY"`
	BaseURL           string    `yaml:"base_url" env:"BASE_URL"`
	Model             string    `yaml:"model" env:"MODEL"`
	PremiumModel      string    `yaml:"premium_model" env:"PREMIUM_MODEL"`
	DefaultVoice      string    `yaml:"default_voice" env:"DEFAULT_VOICE"`
	RequestsPerSecond float64   `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Rates             TierRates `yaml:"rates"`
}

// TierRates are dollars per 1000 characters.
type TierRates struct {
	Premium  float64 `yaml:"premium"`
	Standard float64 `yaml:"standard"`
}

// RouterConfig is the static (agent, emotion) → voice table.
type RouterConfig struct {
	Default RouteTarget `yaml:"default"`
	Rules   []RouteRule `yaml:"rules"`
}

// RouteTarget is a provider, tier and voice.
type RouteTarget struct {
	Provider string               `yaml:"provider"`
	Tier     string               `yaml:"tier"`
	Voice    string               `yaml:"voice"`
	Settings models.VoiceSettings `yaml:"settings"`
}

// RouteRule matches an agent and emotion; "*" or empty matches any.
type RouteRule struct {
	Agent       string `yaml:"agent"`
	Emotion     string `yaml:"emotion"`
	RouteTarget `yaml:",inline"`
}

// LLMConfig configures the OpenAI-compatible text generator.
type LLMConfig struct {
	BaseURL        string        `yaml:"base_url" env:"NEURON_LLM_BASE_URL"`
	APIKey         string        `yaml:"api_key" env:"NEURON_LLM_API_KEY"`
	Model          string        `yaml:"model" env:"NEURON_LLM_MODEL"`
	Timeout        time.Duration `yaml:"timeout" env:"NEURON_LLM_TIMEOUT"`
	PromptCost     float64       `yaml:"prompt_cost_per_1k"`
	CompletionCost float64       `yaml:"completion_cost_per_1k"`
}

// BudgetConfig controls the daily spend budget.
type BudgetConfig struct {
	Enabled        bool          `yaml:"enabled" env:"NEURON_BUDGET_ENABLED"`
	DailyLimit     float64       `yaml:"daily_limit" env:"NEURON_DAILY_BUDGET"`
	AlertThreshold float64       `yaml:"alert_threshold" env:"NEURON_BUDGET_ALERT_THRESHOLD"`
	CheckInterval  time.Duration `yaml:"check_interval"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"NEURON_RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"NEURON_RATE_LIMIT_BURST"`
	// RateLimitClients bounds how many per-client limiters are kept.
	RateLimitClients int `yaml:"rate_limit_clients"`
	// TrustedProxies lists addresses or CIDRs whose X-Forwarded-For is honored.
	TrustedProxies []string `yaml:"trusted_proxies" env:"NEURON_TRUSTED_PROXIES"`
}

// TrustedPrefixes parses TrustedProxies. A bare address is a single-host prefix.
func (s ServerConfig) TrustedPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, raw := range s.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: invalid address %q", raw)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}

// DebateConfig controls debate pacing.
type DebateConfig struct {
	MaxTurns int `yaml:"max_turns"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		DBPath:   "neuron.db",
		LogLevel: "info",
		Voice: VoiceConfig{
			SettingsVersion: 1,
			HotTTL:          time.Hour,
			PrewarmTTL:      24 * time.Hour,
			SynthTimeout:    30 * time.Second,
			Retries:         1,
			RetryBaseDelay:  500 * time.Millisecond,
		},
		Hot: HotConfig{
			Backend:  "memory",
			Capacity: 1000,
		},
		Cold: ColdConfig{
			Backend:          "sqlite",
			Path:             "neuron-audio.db",
			CompressionLevel: 3,
			SweepInterval:    time.Hour,
			S3: S3Config{
				TransitionClass: "GLACIER_IR",
			},
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				Model:        "gpt-4o-mini-tts",
				PremiumModel: "tts-1-hd",
				DefaultVoice: "alloy",
				Rates:        TierRates{Premium: 0.030, Standard: 0.015},
			},
			ElevenLabs: ProviderConfig{
				Model:        "eleven_turbo_v2_5",
				PremiumModel: "eleven_multilingual_v2",
				DefaultVoice: "pNInz6obpgDQGcFmaJgB",
				Rates:        TierRates{Premium: 0.030, Standard: 0.018},
			},
		},
		Router: defaultRouter(),
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			Timeout:        30 * time.Second,
			PromptCost:     0.03,
			CompletionCost: 0.06,
		},
		Budget: BudgetConfig{
			Enabled:        false,
			DailyLimit:     50.0,
			AlertThreshold: 0.8,
			CheckInterval:  5 * time.Minute,
		},
		Server: ServerConfig{
			RateLimitRPS:     2,
			RateLimitBurst:   20,
			RateLimitClients: 10000,
		},
		Debate: DebateConfig{
			MaxTurns: 15,
		},
	}
}

// defaultRouter sends the four headline personas to premium ElevenLabs voices
// and everyone else to standard OpenAI voices.
func defaultRouter() RouterConfig {
	premium := func(agent, voice string) RouteRule {
		return RouteRule{Agent: agent, Emotion: "*", RouteTarget: RouteTarget{
			Provider: string(models.ProviderElevenLabs),
			Tier:     string(models.TierPremium),
			Voice:    voice,
		}}
	}
	return RouterConfig{
		Default: RouteTarget{
			Provider: string(models.ProviderOpenAI),
			Tier:     string(models.TierStandard),
			Voice:    "nova",
		},
		Rules: []RouteRule{
			premium("marcus", "pNInz6obpgDQGcFmaJgB"),
			premium("big_mike", "VR6AewLTigWG4xSOukaG"),
			premium("sam", "yoZ06aMxZJJ28mfd3POQ"),
			premium("leo", "TxGEqnHWrfWFTfGW9XjX"),
			{Agent: "architect", Emotion: "*", RouteTarget: RouteTarget{
				Provider: string(models.ProviderOpenAI),
				Tier:     string(models.TierStandard),
				Voice:    "onyx",
			}},
		},
	}
}

// Load reads a YAML config file, expands environment variables, and applies
// NEURON_* overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from NEURON_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Hot.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("hot.backend: unknown backend %q", c.Hot.Backend)
	}
	if c.Hot.Backend == "redis" && c.Hot.RedisURL == "" {
		return fmt.Errorf("hot.redis_url is required for the redis backend")
	}
	switch c.Cold.Backend {
	case "sqlite", "s3":
	default:
		return fmt.Errorf("cold.backend: unknown backend %q", c.Cold.Backend)
	}
	if c.Cold.Backend == "s3" && c.Cold.S3.Bucket == "" {
		return fmt.Errorf("cold.s3.bucket is required for the s3 backend")
	}
	if _, err := c.Server.TrustedPrefixes(); err != nil {
		return err
	}
	if c.Voice.Retries < 0 || c.Voice.RetryBaseDelay < 0 {
		return fmt.Errorf("voice.retries and voice.retry_base_delay must not be negative")
	}
	if c.Budget.AlertThreshold < 0 || c.Budget.AlertThreshold > 1 {
		return fmt.Errorf("budget.alert_threshold must be within [0, 1]")
	}
	return nil
}
