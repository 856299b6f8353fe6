package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "neuron.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Listen)
	}
	if cfg.Voice.HotTTL != time.Hour {
		t.Errorf("expected 1h hot TTL, got %v", cfg.Voice.HotTTL)
	}
	if cfg.Budget.DailyLimit != 50.0 || cfg.Budget.AlertThreshold != 0.8 {
		t.Errorf("unexpected budget defaults: %+v", cfg.Budget)
	}
	if cfg.Router.Default.Provider != "openai" {
		t.Errorf("expected openai default route, got %s", cfg.Router.Default.Provider)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_ELEVEN_KEY", "xi-test-123")

	path := writeConfig(t, `
listen: ":9090"
voice:
  hot_ttl: 30m
  settings_version: 2
providers:
  elevenlabs:
    api_key: ${TEST_ELEVEN_KEY}
router:
  default:
    provider: openai
    tier: standard
    voice: alloy
  rules:
    - agent: marcus
      emotion: "*"
      provider: elevenlabs
      tier: premium
      voice: adam
      settings:
        stability: 0.7
budget:
  enabled: true
  daily_limit: 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Listen)
	}
	if cfg.Providers.ElevenLabs.APIKey != "xi-test-123" {
		t.Errorf("env var not expanded: got %s", cfg.Providers.ElevenLabs.APIKey)
	}
	if cfg.Voice.HotTTL != 30*time.Minute || cfg.Voice.SettingsVersion != 2 {
		t.Errorf("unexpected voice config: %+v", cfg.Voice)
	}
	if cfg.Voice.SynthTimeout != 30*time.Second {
		t.Errorf("expected default synth timeout to survive, got %v", cfg.Voice.SynthTimeout)
	}
	if len(cfg.Router.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(cfg.Router.Rules))
	}
	rule := cfg.Router.Rules[0]
	if rule.Agent != "marcus" || rule.Provider != "elevenlabs" || rule.Voice != "adam" || rule.Settings.Stability != 0.7 {
		t.Errorf("unexpected rule: %+v", rule)
	}
	if !cfg.Budget.Enabled || cfg.Budget.DailyLimit != 10 {
		t.Errorf("unexpected budget: %+v", cfg.Budget)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NEURON_LISTEN", ":7070")
	t.Setenv("NEURON_OPENAI_API_KEY", "sk-env")
	t.Setenv("NEURON_HOT_BACKEND", "redis")
	t.Setenv("NEURON_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("NEURON_VOICE_SYNTH_TIMEOUT", "5s")

	cfg, err := Load(writeConfig(t, "listen: \":9090\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":7070" {
		t.Errorf("expected env to win, got %s", cfg.Listen)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-env" {
		t.Errorf("expected prefixed provider key, got %q", cfg.Providers.OpenAI.APIKey)
	}
	if cfg.Providers.ElevenLabs.APIKey != "" {
		t.Errorf("elevenlabs key should be unset, got %q", cfg.Providers.ElevenLabs.APIKey)
	}
	if cfg.Hot.Backend != "redis" || cfg.Voice.SynthTimeout != 5*time.Second {
		t.Errorf("unexpected overrides: %+v %+v", cfg.Hot, cfg.Voice)
	}
}

func TestLoadInvalidBackend(t *testing.T) {
	_, err := Load(writeConfig(t, "cold:\n  backend: gcs\n"))
	if err == nil {
		t.Error("expected error for unknown cold backend")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadRetriesOff(t *testing.T) {
	cfg, err := Load(writeConfig(t, "voice:\n  retries: 0\n  retry_base_delay: 0s\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Voice.Retries != 0 || cfg.Voice.RetryBaseDelay != 0 {
		t.Errorf("expected retries off, got %d / %s", cfg.Voice.Retries, cfg.Voice.RetryBaseDelay)
	}

	if _, err := Load(writeConfig(t, "voice:\n  retries: -1\n")); err == nil {
		t.Error("expected error for negative retries")
	}
}

func TestTrustedPrefixes(t *testing.T) {
	s := ServerConfig{TrustedProxies: []string{"10.0.0.0/8", " 192.0.2.1 "}}
	got, err := s.TrustedPrefixes()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Bits() != 32 {
		t.Errorf("unexpected prefixes %v", got)
	}

	if _, err := Load(writeConfig(t, "server:\n  trusted_proxies: [\"not-an-ip\"]\n")); err == nil {
		t.Error("expected error for invalid trusted proxy")
	}
}
