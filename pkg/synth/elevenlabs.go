package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ffneuron/neuron/pkg/models"
)

const (
	elevenLabsFormat  = "mp3_44100_128"
	elevenLabsBitrate = 128
)

// ElevenLabs implements Client via the ElevenLabs text-to-speech API.
type ElevenLabs struct {
	httpClient
}

// NewElevenLabs creates an ElevenLabs client.
func NewElevenLabs(cfg Config) *ElevenLabs {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if cfg.Model == "" {
		cfg.Model = "eleven_multilingual_v2"
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = "pNInz6obpgDQGcFmaJgB"
	}
	return &ElevenLabs{httpClient: newHTTPClient(cfg)}
}

func (p *ElevenLabs) Name() string { return string(models.ProviderElevenLabs) }

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

// Synthesize calls POST {base}/v1/text-to-speech/{voice}.
func (p *ElevenLabs) Synthesize(ctx context.Context, text, voiceID string, settings models.VoiceSettings) (*Result, error) {
	if voiceID == "" {
		voiceID = p.cfg.DefaultVoice
	}
	model := settings.Model
	if model == "" {
		model = p.cfg.Model
	}

	vs := elevenLabsVoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Style:           settings.Style,
		UseSpeakerBoost: settings.SpeakerBoost,
		Speed:           settings.Speed,
	}
	if settings.Stability > 0 {
		vs.Stability = settings.Stability
	}
	if settings.SimilarityBoost > 0 {
		vs.SimilarityBoost = settings.SimilarityBoost
	}

	bodyJSON, err := json.Marshal(elevenLabsRequest{Text: text, ModelID: model, VoiceSettings: vs})
	if err != nil {
		return nil, fmt.Errorf("marshal elevenlabs tts request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", p.cfg.BaseURL, voiceID, elevenLabsFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("create elevenlabs tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", p.cfg.APIKey)

	audio, err := p.do(ctx, p.Name(), req)
	if err != nil {
		return nil, err
	}

	return &Result{
		Audio:      audio,
		MimeType:   "audio/mpeg",
		Cost:       CharCost(text, p.cfg.RatePer1K),
		DurationMs: durationFromBitrate(len(audio), elevenLabsBitrate),
	}, nil
}
