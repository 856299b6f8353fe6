// Package synth holds the text-to-speech provider clients.
package synth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/ffneuron/neuron/pkg/errs"
	"github.com/ffneuron/neuron/pkg/models"
)

// Client turns text into audio with one provider and voice tier.
type Client interface {
	Name() string
	Synthesize(ctx context.Context, text, voiceID string, settings models.VoiceSettings) (*Result, error)
}

// Result is the output of one synthesis call.
type Result struct {
	Audio      []byte
	MimeType   string
	Cost       float64
	DurationMs int64
}

// Registry maps (provider, tier) to a configured client.
type Registry struct {
	clients map[models.Provider]map[models.VoiceTier]Client
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[models.Provider]map[models.VoiceTier]Client)}
}

// Register adds a client for the provider and tier.
func (r *Registry) Register(p models.Provider, tier models.VoiceTier, c Client) {
	if r.clients[p] == nil {
		r.clients[p] = make(map[models.VoiceTier]Client)
	}
	r.clients[p][tier] = c
}

// Lookup returns the client for a routing decision. When the exact tier is
// missing, any client of the same provider is used.
func (r *Registry) Lookup(choice models.ProviderChoice) (Client, error) {
	tiers := r.clients[choice.Provider]
	if c, ok := tiers[choice.Tier]; ok {
		return c, nil
	}
	for _, c := range tiers {
		return c, nil
	}
	return nil, &errs.ProviderError{
		Provider: string(choice.Provider),
		Kind:     errs.KindProvider,
		Err:      fmt.Errorf("no client configured for %s/%s", choice.Provider, choice.Tier),
	}
}

// Config is shared by the HTTP provider clients.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	DefaultVoice      string
	RatePer1K         float64 // dollars per 1000 characters
	RequestsPerSecond float64 // 0 = unlimited
	Timeout           time.Duration
	HTTPClient        *http.Client
}

type httpClient struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPClient(cfg Config) httpClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return httpClient{cfg: cfg, client: hc, limiter: limiter}
}

// do sends req and returns the body of a 200 response. Every failure is a
// *errs.ProviderError.
func (h httpClient) do(ctx context.Context, provider string, req *http.Request) ([]byte, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, errs.FromTransport(provider, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errs.FromTransport(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errs.FromStatus(provider, resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.FromTransport(provider, fmt.Errorf("read response: %w", err))
	}
	return body, nil
}

// CharCost prices text at a per-1000-character rate.
func CharCost(text string, ratePer1K float64) float64 {
	return float64(utf8.RuneCountInString(text)) / 1000 * ratePer1K
}

// durationFromBitrate estimates playback length of constant-bitrate audio.
func durationFromBitrate(size int, kbps int) int64 {
	if kbps <= 0 {
		return 0
	}
	return int64(size) * 8 / int64(kbps)
}

// durationFromWords estimates speech length at about 150 words per minute.
func durationFromWords(text string) int64 {
	return int64(len(strings.Fields(text))) * 400
}
