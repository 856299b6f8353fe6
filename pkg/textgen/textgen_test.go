package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ffneuron/neuron/pkg/errs"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/personas"
)

func marcus(t *testing.T) personas.Persona {
	t.Helper()
	p, err := personas.Get(personas.Marcus)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestGenerate(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("expected bearer key")
		}
		var req models.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Error("expected json_object response format")
		}
		if !strings.Contains(req.Messages[0].Content, "Marcus Chen") {
			t.Error("system prompt should name the persona")
		}
		json.NewEncoder(w).Encode(models.ChatCompletionResponse{
			Choices: []models.Choice{{Message: models.ChatMessage{
				Role:    "assistant",
				Content: `{"text":"The model favors the start.","emotion":"Confident"}`,
			}}},
			Usage: &models.Usage{PromptTokens: 120, CompletionTokens: 20, TotalTokens: 140},
		})
	}))
	defer upstream.Close()

	g := NewOpenAI(Config{BaseURL: upstream.URL, APIKey: "sk-test"})
	line, err := g.Generate(context.Background(), Prompt{Persona: marcus(t), Topic: "Start Mahomes?"})
	if err != nil {
		t.Fatal(err)
	}
	if line.Text != "The model favors the start." || line.Emotion != "confident" {
		t.Errorf("unexpected line %+v", line)
	}
	if line.Usage.CompletionTokens != 20 {
		t.Errorf("expected usage to be carried, got %+v", line.Usage)
	}
}

func TestGenerateUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer upstream.Close()

	g := NewOpenAI(Config{BaseURL: upstream.URL})
	_, err := g.Generate(context.Background(), Prompt{Persona: marcus(t), Topic: "x"})
	var pe *errs.ProviderError
	if !errors.As(err, &pe) || pe.Kind != errs.KindRateLimited {
		t.Fatalf("expected rate limited provider error, got %v", err)
	}
}

func TestParseLine(t *testing.T) {
	if l := ParseLine(`{"text":" hi ","emotion":"furious"}`); l.Text != "hi" || l.Emotion != DefaultEmotion {
		t.Errorf("unknown emotion should fall back: %+v", l)
	}
	if l := ParseLine("just words"); l.Text != "just words" || l.Emotion != DefaultEmotion {
		t.Errorf("plain text should pass through: %+v", l)
	}
}

func TestUserPrompt(t *testing.T) {
	p := Prompt{
		Persona:     marcus(t),
		Topic:       "Fade the chalk?",
		UserContext: map[string]string{"league": "ppr"},
		History: []models.Turn{
			{Agent: "zareena", Text: "Everyone is on him."},
		},
		RespondingTo: "zareena",
	}
	got := UserPrompt(p)
	for _, want := range []string{"Fade the chalk?", "league: ppr", "zareena: Everyone is on him.", "Respond directly to zareena."} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}
