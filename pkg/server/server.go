package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/ffneuron/neuron/pkg/budget"
	"github.com/ffneuron/neuron/pkg/cache"
	"github.com/ffneuron/neuron/pkg/config"
	"github.com/ffneuron/neuron/pkg/debate"
	"github.com/ffneuron/neuron/pkg/errs"
	"github.com/ffneuron/neuron/pkg/metrics"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/voice"
)

const maxBodyBytes = 1 << 20

// Debates runs debates.
type Debates interface {
	Start(ctx context.Context, req debate.StartRequest) (*models.Debate, error)
	Continue(ctx context.Context, id string, n int) (*models.Debate, error)
	Conclude(ctx context.Context, id string) (*models.Debate, error)
	Get(id string) (*models.Debate, error)
}

// Voice serves cached speech.
type Voice interface {
	Generate(ctx context.Context, req voice.Request) (*voice.Result, error)
	Audio(ctx context.Context, path string) (*models.AudioArtifact, error)
	Snapshot() models.CostSnapshot
}

// StatsSource reports cache tier statistics.
type StatsSource interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// Deps are the services behind the HTTP surface. Budget, Metrics, Hot and
// Cold may be nil.
type Deps struct {
	Debates Debates
	Voice   Voice
	Budget  *budget.Enforcer
	Metrics *metrics.Metrics
	Hot     StatsSource
	Cold    StatsSource
}

// Server is the neuron HTTP API.
type Server struct {
	cfg     *config.Config
	deps    Deps
	mux     *http.ServeMux
	handler http.Handler
}

// New creates a Server wired with all dependencies.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps, mux: http.NewServeMux()}

	s.mux.HandleFunc("POST /debates/start", s.handleStart)
	s.mux.HandleFunc("GET /debates/{id}", s.handleGetDebate)
	s.mux.HandleFunc("POST /debates/{id}/continue", s.handleContinue)
	s.mux.HandleFunc("POST /debates/{id}/conclude", s.handleConclude)
	s.mux.HandleFunc("GET /ws/debate/{id}", s.handleDebateSocket)
	s.mux.HandleFunc("GET /voice/generate", s.handleGenerate)
	s.mux.HandleFunc("GET /voice/audio/{path...}", s.handleAudio)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if deps.Metrics != nil {
		s.mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	var h http.Handler = s.mux
	if cfg.Server.RateLimitRPS > 0 {
		trusted, err := cfg.Server.TrustedPrefixes()
		if err != nil {
			slog.Warn("ignoring trusted proxies", "error", err)
		}
		rl, err := NewIPRateLimiter(rate.Limit(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst,
			cfg.Server.RateLimitClients, trusted)
		if err != nil {
			slog.Warn("rate limiting disabled", "error", err)
		} else {
			h = rl.Limit(h)
		}
	}
	s.handler = logRequests(h)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("neuron listening", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

type debateResponse struct {
	*models.Debate
	TotalCost       float64 `json:"total_cost"`
	TotalDurationMs int64   `json:"total_duration_ms"`
}

func writeDebate(w http.ResponseWriter, code int, d *models.Debate) {
	writeJSON(w, code, newDebateResponse(d))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req debate.StartRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := s.deps.Debates.Start(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeDebate(w, http.StatusCreated, d)
}

func (s *Server) handleGetDebate(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Debates.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeDebate(w, http.StatusOK, d)
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NumTurns int `json:"num_turns"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	d, err := s.deps.Debates.Continue(r.Context(), r.PathValue("id"), req.NumTurns)
	if err != nil {
		writeError(w, err)
		return
	}
	writeDebate(w, http.StatusOK, d)
}

func (s *Server) handleConclude(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Debates.Conclude(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeDebate(w, http.StatusOK, d)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.deps.Voice.Generate(r.Context(), voice.Request{
		AgentID:  q.Get("agent"),
		Text:     q.Get("text"),
		Emotion:  q.Get("emotion"),
		DebateID: q.Get("debate_id"),
		UserID:   q.Get("user_id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Neuron-Cache", res.CacheTier)
	writeJSON(w, http.StatusOK, struct {
		*voice.Result
		AudioURL string `json:"audio_url"`
	}{res, "/voice/audio/" + res.Path})
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Voice.Audio(r.Context(), r.PathValue("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", a.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Audio)))
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(a.Audio)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := map[string]any{"cost": s.deps.Voice.Snapshot()}
	for name, src := range map[string]StatsSource{"hot": s.deps.Hot, "cold": s.deps.Cold} {
		if src == nil {
			continue
		}
		st, err := src.Stats(ctx)
		if err != nil {
			slog.Warn("cache stats unavailable", "tier", name, "error", err)
			continue
		}
		out[name] = st
	}
	if s.deps.Budget != nil {
		if st, err := s.deps.Budget.Status(ctx); err == nil {
			out["budget"] = st
		} else {
			slog.Warn("budget status unavailable", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}

// writeError maps a service error to a status code.
func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= 500 {
		slog.Error("request failed", "error", err)
	}
	writeJSONError(w, code, err.Error())
}

func statusFor(err error) int {
	var pe *errs.ProviderError
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, debate.ErrNotFound), errors.Is(err, cache.ErrMiss):
		return http.StatusNotFound
	case errors.Is(err, budget.ErrBudgetExceeded):
		return http.StatusTooManyRequests
	case errors.As(err, &pe):
		return pe.HTTPStatus()
	case errs.IsStorage(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"neuron_error","code":%d}}`, message, code)
}
