package models

import (
	"fmt"
	"time"
)

// Provider identifies a text-to-speech vendor. The set is closed.
type Provider string

const (
	ProviderElevenLabs Provider = "elevenlabs"
	ProviderOpenAI     Provider = "openai"
)

// Providers lists every supported provider.
var Providers = []Provider{ProviderElevenLabs, ProviderOpenAI}

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	for _, p := range Providers {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// VoiceTier is the pricing tier used for a synthesis.
type VoiceTier string

const (
	TierPremium  VoiceTier = "premium"
	TierStandard VoiceTier = "standard"
)

// ParseVoiceTier validates a tier name. Empty means standard.
func ParseVoiceTier(s string) (VoiceTier, error) {
	switch VoiceTier(s) {
	case TierPremium:
		return TierPremium, nil
	case TierStandard, "":
		return TierStandard, nil
	}
	return "", fmt.Errorf("unknown voice tier %q", s)
}

// VoiceSettings are the provider-specific synthesis parameters.
type VoiceSettings struct {
	Model           string  `json:"model,omitempty" yaml:"model"`
	Stability       float64 `json:"stability,omitempty" yaml:"stability"`
	SimilarityBoost float64 `json:"similarity_boost,omitempty" yaml:"similarity_boost"`
	Style           float64 `json:"style,omitempty" yaml:"style"`
	SpeakerBoost    bool    `json:"speaker_boost,omitempty" yaml:"speaker_boost"`
	Speed           float64 `json:"speed,omitempty" yaml:"speed"`
}

// ProviderChoice is the routing decision for one (agent, emotion) pair.
type ProviderChoice struct {
	Provider Provider      `json:"provider"`
	Tier     VoiceTier     `json:"tier"`
	VoiceID  string        `json:"voice_id"`
	Settings VoiceSettings `json:"settings"`
}

// AudioArtifact is a synthesized clip. It is never modified after creation.
type AudioArtifact struct {
	Audio      []byte    `json:"audio"`
	MimeType   string    `json:"mime_type"`
	Provider   Provider  `json:"provider"`
	VoiceID    string    `json:"voice_id"`
	Tier       VoiceTier `json:"tier"`
	DurationMs int64     `json:"duration_ms"`
	Cost       float64   `json:"cost"`
	CreatedAt  time.Time `json:"created_at"`
}
