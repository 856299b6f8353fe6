package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ffneuron/neuron/pkg/budget"
	"github.com/ffneuron/neuron/pkg/cache/memory"
	"github.com/ffneuron/neuron/pkg/cache/sqlite"
	"github.com/ffneuron/neuron/pkg/config"
	"github.com/ffneuron/neuron/pkg/cost"
	"github.com/ffneuron/neuron/pkg/debate"
	"github.com/ffneuron/neuron/pkg/errs"
	"github.com/ffneuron/neuron/pkg/ledger"
	"github.com/ffneuron/neuron/pkg/metrics"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/retry"
	"github.com/ffneuron/neuron/pkg/router"
	"github.com/ffneuron/neuron/pkg/synth"
	"github.com/ffneuron/neuron/pkg/textgen"
	"github.com/ffneuron/neuron/pkg/voice"
)

type stubSynth struct{ err error }

func (s stubSynth) Name() string { return "stub" }

func (s stubSynth) Synthesize(_ context.Context, text, _ string, _ models.VoiceSettings) (*synth.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &synth.Result{Audio: []byte("ID3" + text), MimeType: "audio/mpeg", Cost: synth.CharCost(text, 0.03), DurationMs: 900}, nil
}

type stubGen struct{}

func (stubGen) Generate(_ context.Context, p textgen.Prompt) (*textgen.Line, error) {
	return &textgen.Line{Text: fmt.Sprintf("%s point %d", p.Persona.Name, len(p.History)), Emotion: "confident"}, nil
}

type setup struct {
	cfg   *config.Config
	synth stubSynth
	spent float64
}

func setupServer(t *testing.T, s setup) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := s.cfg
	if cfg == nil {
		cfg = config.Default()
		cfg.Server.RateLimitRPS = 0
	}

	hot, err := memory.New(100)
	if err != nil {
		t.Fatal(err)
	}
	cold, err := sqlite.New(filepath.Join(dir, "audio.db"), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cold.Close() })
	l, err := ledger.New(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	if s.spent > 0 {
		l.Record(context.Background(), models.CostEvent{Service: "openai", Operation: models.OpTTSStandard, Cost: s.spent})
	}

	r, err := router.New(cfg.Router)
	if err != nil {
		t.Fatal(err)
	}
	reg := synth.NewRegistry()
	reg.Register(models.ProviderElevenLabs, models.TierPremium, s.synth)
	reg.Register(models.ProviderOpenAI, models.TierStandard, s.synth)

	enforcer := budget.New(models.BudgetPolicy{DailyLimit: 5, AlertThreshold: 0.8}, l)
	m := metrics.New(nil)
	svc, err := voice.New(voice.Options{
		Hot: hot, Cold: cold, Router: r, Registry: reg,
		Tracker: cost.NewTracker(0), Ledger: l, Budget: enforcer, Metrics: m,
		Retry: &retry.Config{MaxRetries: 0, BaseDelay: time.Millisecond},
	})
	if err != nil {
		t.Fatal(err)
	}
	orch, err := debate.New(debate.Options{Generator: stubGen{}, Voice: svc, Rand: rand.New(rand.NewPCG(3, 4))})
	if err != nil {
		t.Fatal(err)
	}

	return New(cfg, Deps{Debates: orch, Voice: svc, Budget: enforcer, Metrics: m, Hot: hot, Cold: cold})
}

func do(t *testing.T, srv http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func generateURL(agent, text, emotion string) string {
	q := url.Values{"agent": {agent}, "text": {text}, "emotion": {emotion}}
	return "/voice/generate?" + q.Encode()
}

func TestVoiceGenerateMissThenHit(t *testing.T) {
	srv := setupServer(t, setup{})
	target := generateURL("marcus", "The model favors the start.", "confident")

	w := do(t, srv, http.MethodGet, target, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Neuron-Cache") != "miss" {
		t.Error("expected cache miss on first request")
	}
	var res struct {
		Provider string  `json:"provider"`
		Cost     float64 `json:"cost"`
		AudioURL string  `json:"audio_url"`
	}
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Provider != "elevenlabs" || res.Cost <= 0 || !strings.HasPrefix(res.AudioURL, "/voice/audio/v1/marcus/") {
		t.Errorf("unexpected result %+v", res)
	}

	w2 := do(t, srv, http.MethodGet, target, "")
	if w2.Header().Get("X-Neuron-Cache") != "hot" {
		t.Error("expected cache hit on second request")
	}

	audio := do(t, srv, http.MethodGet, res.AudioURL, "")
	if audio.Code != http.StatusOK || audio.Header().Get("Content-Type") != "audio/mpeg" {
		t.Fatalf("unexpected audio response %d %s", audio.Code, audio.Header().Get("Content-Type"))
	}
	if audio.Body.String() != "ID3The model favors the start." {
		t.Errorf("unexpected audio body %q", audio.Body.String())
	}
}

func TestVoiceGenerateInvalid(t *testing.T) {
	srv := setupServer(t, setup{})
	w := do(t, srv, http.MethodGet, generateURL("Not Valid", "hi", ""), "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body struct {
		Error struct {
			Type string `json:"type"`
			Code int    `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Type != "neuron_error" || body.Error.Code != 400 {
		t.Errorf("unexpected error body %+v", body)
	}
}

func TestVoiceProviderFailure(t *testing.T) {
	srv := setupServer(t, setup{synth: stubSynth{err: errs.FromStatus("openai", 429, "slow down")}})
	w := do(t, srv, http.MethodGet, generateURL("zareena", "Fade the chalk.", "angry"), "")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
}

func TestBudgetExceeded(t *testing.T) {
	srv := setupServer(t, setup{spent: 6})
	w := do(t, srv, http.MethodGet, generateURL("sam", "Long game.", ""), "")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDebateLifecycle(t *testing.T) {
	srv := setupServer(t, setup{})

	w := do(t, srv, http.MethodPost, "/debates/start", `{"topic":"Start Mahomes?","agents":["marcus","big_mike","zareena"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var d struct {
		ID        string        `json:"debate_id"`
		Turns     []models.Turn `json:"turns"`
		TotalCost float64       `json:"total_cost"`
	}
	if err := json.NewDecoder(w.Body).Decode(&d); err != nil {
		t.Fatal(err)
	}
	if d.ID == "" || len(d.Turns) != 3 || d.TotalCost <= 0 {
		t.Fatalf("unexpected debate %+v", d)
	}
	for i, agent := range []string{"marcus", "big_mike", "zareena"} {
		if d.Turns[i].Agent != agent || d.Turns[i].AudioURL == "" {
			t.Errorf("turn %d: %+v", i, d.Turns[i])
		}
	}

	w = do(t, srv, http.MethodPost, "/debates/"+d.ID+"/continue", `{"num_turns":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("continue: %d %s", w.Code, w.Body.String())
	}
	w = do(t, srv, http.MethodPost, "/debates/"+d.ID+"/conclude", "")
	if w.Code != http.StatusOK {
		t.Fatalf("conclude: %d %s", w.Code, w.Body.String())
	}

	w = do(t, srv, http.MethodGet, "/debates/"+d.ID, "")
	if err := json.NewDecoder(w.Body).Decode(&d); err != nil {
		t.Fatal(err)
	}
	if len(d.Turns) != 6 || d.Turns[5].Agent != "architect" {
		t.Errorf("expected 6 turns ending with architect, got %d", len(d.Turns))
	}

	if w := do(t, srv, http.MethodGet, "/debates/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/debates/start", `{"topic":""}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/debates/start", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestStatsHealthMetrics(t *testing.T) {
	srv := setupServer(t, setup{})
	do(t, srv, http.MethodGet, generateURL("leo", "Ceiling play.", "excited"), "")
	do(t, srv, http.MethodGet, generateURL("leo", "Ceiling play.", "excited"), "")

	w := do(t, srv, http.MethodGet, "/stats", "")
	var stats struct {
		Cost   models.CostSnapshot `json:"cost"`
		Hot    models.CacheStats   `json:"hot"`
		Cold   models.CacheStats   `json:"cold"`
		Budget models.BudgetStatus `json:"budget"`
	}
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Cost.Hits != 1 || stats.Cost.Misses != 1 || stats.Cost.Savings <= 0 {
		t.Errorf("unexpected cost snapshot %+v", stats.Cost)
	}
	if stats.Cold.Entries != 1 || stats.Hot.Entries != 1 {
		t.Errorf("unexpected cache stats hot=%+v cold=%+v", stats.Hot, stats.Cold)
	}
	if stats.Budget.Policy.DailyLimit != 5 {
		t.Errorf("expected budget in stats, got %+v", stats.Budget)
	}

	if w := do(t, srv, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health: %d", w.Code)
	}
	w = do(t, srv, http.MethodGet, "/metrics", "")
	if !strings.Contains(w.Body.String(), `neuron_voice_requests_total{cache="hot",provider="elevenlabs"} 1`) {
		t.Errorf("metrics missing hot request counter:\n%s", w.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RateLimitRPS = 0.001
	cfg.Server.RateLimitBurst = 2
	srv := setupServer(t, setup{cfg: cfg})

	target := generateURL("marcus", "Statistical edge.", "")
	for i := 0; i < 2; i++ {
		if w := do(t, srv, http.MethodGet, target, ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	if w := do(t, srv, http.MethodGet, target, ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health should bypass the limiter, got %d", w.Code)
	}
}
