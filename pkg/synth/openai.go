package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ffneuron/neuron/pkg/models"
)

// OpenAI implements Client via the OpenAI audio/speech API.
type OpenAI struct {
	httpClient
}

// NewOpenAI creates an OpenAI TTS client.
func NewOpenAI(cfg Config) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini-tts"
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = "alloy"
	}
	return &OpenAI{httpClient: newHTTPClient(cfg)}
}

func (p *OpenAI) Name() string { return string(models.ProviderOpenAI) }

type openAISpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize calls POST {base}/audio/speech.
func (p *OpenAI) Synthesize(ctx context.Context, text, voiceID string, settings models.VoiceSettings) (*Result, error) {
	if voiceID == "" {
		voiceID = p.cfg.DefaultVoice
	}
	model := settings.Model
	if model == "" {
		model = p.cfg.Model
	}

	bodyJSON, err := json.Marshal(openAISpeechRequest{
		Model:          model,
		Input:          text,
		Voice:          voiceID,
		ResponseFormat: "mp3",
		Speed:          settings.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal openai tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/audio/speech", bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("create openai tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	audio, err := p.do(ctx, p.Name(), req)
	if err != nil {
		return nil, err
	}

	return &Result{
		Audio:      audio,
		MimeType:   "audio/mpeg",
		Cost:       CharCost(text, p.cfg.RatePer1K),
		DurationMs: durationFromWords(text),
	}, nil
}
