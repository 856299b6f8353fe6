// Package textgen writes debate lines in a persona's voice.
package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ffneuron/neuron/pkg/errs"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/personas"
)

// Emotions a generated line may carry.
var Emotions = []string{"neutral", "confident", "excited", "angry", "skeptical", "thoughtful", "sarcastic"}

// DefaultEmotion is used when the model returns none or an unknown one.
const DefaultEmotion = "neutral"

// Prompt is everything a generator needs for one line.
type Prompt struct {
	Persona      personas.Persona
	Topic        string
	UserContext  map[string]string
	History      []models.Turn
	RespondingTo string
	Conclude     bool
}

// Line is one generated utterance.
type Line struct {
	Text    string
	Emotion string
	Usage   models.Usage
}

// Generator produces debate lines.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (*Line, error)
}

// Config configures the OpenAI-compatible generator.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAI implements Generator with an OpenAI-compatible /chat/completions endpoint.
type OpenAI struct {
	cfg    Config
	client *http.Client
}

// NewOpenAI creates a generator.
func NewOpenAI(cfg Config) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAI{cfg: cfg, client: hc}
}

const provider = "llm"

// Generate asks the model for a {"text","emotion"} JSON object.
func (g *OpenAI) Generate(ctx context.Context, p Prompt) (*Line, error) {
	temp := 0.9
	maxTokens := 200
	req := models.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []models.ChatMessage{
			{Role: "system", Content: SystemPrompt(p.Persona)},
			{Role: "user", Content: UserPrompt(p)},
		},
		Temperature:    &temp,
		MaxTokens:      &maxTokens,
		ResponseFormat: &models.ResponseFormat{Type: "json_object"},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(g.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, errs.FromTransport(provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.FromTransport(provider, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.FromStatus(provider, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var chat models.ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, errs.FromTransport(provider, fmt.Errorf("decode response: %w", err))
	}
	if len(chat.Choices) == 0 {
		return nil, errs.FromTransport(provider, fmt.Errorf("empty choices"))
	}

	line := ParseLine(chat.Choices[0].Message.Content)
	if line.Text == "" {
		return nil, errs.FromTransport(provider, fmt.Errorf("empty line"))
	}
	if chat.Usage != nil {
		line.Usage = *chat.Usage
	}
	return line, nil
}

// ParseLine reads a {"text","emotion"} object. Content that is not JSON is
// taken as plain text.
func ParseLine(content string) *Line {
	var out struct {
		Text    string `json:"text"`
		Emotion string `json:"emotion"`
	}
	content = strings.TrimSpace(content)
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return &Line{Text: content, Emotion: DefaultEmotion}
	}
	return &Line{Text: strings.TrimSpace(out.Text), Emotion: normalizeEmotion(out.Emotion)}
}

func normalizeEmotion(e string) string {
	e = strings.ToLower(strings.TrimSpace(e))
	for _, known := range Emotions {
		if e == known {
			return e
		}
	}
	return DefaultEmotion
}

// SystemPrompt sets up the persona.
func SystemPrompt(p personas.Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a fantasy football analyst on a live debate show.\n", p.FullName)
	fmt.Fprintf(&b, "Style: %s.\n", p.DebateStyle)
	if len(p.SignaturePhrases) > 0 {
		fmt.Fprintf(&b, "Lines you are known for: %s\n", strings.Join(p.SignaturePhrases, " | "))
	}
	fmt.Fprintf(&b, "Reply with JSON: {\"text\": <one or two spoken sentences>, \"emotion\": one of %s}.",
		strings.Join(Emotions, ", "))
	return b.String()
}

// UserPrompt describes the debate so far and what to say next.
func UserPrompt(p Prompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", p.Topic)
	if len(p.UserContext) > 0 {
		keys := make([]string, 0, len(p.UserContext))
		for k := range p.UserContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Listener context:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, p.UserContext[k])
		}
	}
	history := p.History
	if len(history) > 6 {
		history = history[len(history)-6:]
	}
	if len(history) > 0 {
		b.WriteString("Recent turns:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "%s: %s\n", t.Agent, t.Text)
		}
	}
	switch {
	case p.Conclude:
		b.WriteString("Wrap up the debate with a verdict the listener can act on.")
	case p.RespondingTo != "":
		fmt.Fprintf(&b, "Respond directly to %s.", p.RespondingTo)
	case len(p.History) == 0:
		b.WriteString("Give your opening position.")
	default:
		b.WriteString("Make your next point.")
	}
	return b.String()
}
