package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ffneuron/neuron/pkg/budget"
	"github.com/ffneuron/neuron/pkg/config"
	"github.com/ffneuron/neuron/pkg/cost"
	"github.com/ffneuron/neuron/pkg/ledger"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/router"
	"github.com/ffneuron/neuron/pkg/voicekey"
)

// fakeCache implements CacheStatter for testing.
type fakeCache struct {
	stats models.CacheStats
}

func (f *fakeCache) Stats(context.Context) (models.CacheStats, error) { return f.stats, nil }

func setupLedger(t *testing.T) *ledger.SQLiteLedger {
	t.Helper()
	l, err := ledger.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func setupDeps(t *testing.T) Deps {
	t.Helper()
	cfg := config.Default()
	r, err := router.New(cfg.Router)
	if err != nil {
		t.Fatal(err)
	}
	return Deps{
		Ledger:          setupLedger(t),
		Router:          r,
		Pricing:         cost.NewPricing(cfg),
		SettingsVersion: 1,
	}
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	p := ToolCallParams{Name: name}
	if args != "" {
		p.Arguments = json.RawMessage(args)
	}
	params, _ := json.Marshal(p)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	json.Unmarshal(data, &result)
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := New(Deps{}, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocol version = %s, want 2024-11-05", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "neuron" {
		t.Errorf("server name = %s, want neuron", result.ServerInfo.Name)
	}
	if result.Instructions == "" {
		t.Error("expected instructions")
	}
}

func TestPing(t *testing.T) {
	srv := New(Deps{}, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`3`),
		Method:  "ping",
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if string(resp.ID) != "3" {
		t.Errorf("id = %s, want 3", resp.ID)
	}
}

func TestToolsList(t *testing.T) {
	srv := New(Deps{}, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	if len(result.Tools) != len(toolHandlers) {
		t.Errorf("got %d tools, want %d", len(result.Tools), len(toolHandlers))
	}
	for _, tool := range result.Tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("tool %s has no handler", tool.Name)
		}
	}
}

func TestToolCallCostReport(t *testing.T) {
	deps := setupDeps(t)
	ctx := context.Background()
	now := time.Now()
	for _, ev := range []models.CostEvent{
		{Service: models.ServiceElevenLabs, Operation: models.OpTTSPremium, Units: 40, Cost: 0.0012, Agent: "marcus", CreatedAt: now},
		{Service: models.ServiceCache, Operation: models.OpCacheHit, Saved: 0.0012, Agent: "marcus", CacheHit: true, CreatedAt: now},
	} {
		if err := deps.Ledger.Record(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}
	srv := New(deps, "test")

	text := callTool(t, srv, "neuron_cost_report", `{}`).Content[0].Text
	for _, want := range []string{"elevenlabs", "tts_premium", "Cache hits:    1", "$0.0012"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got: %s", want, text)
		}
	}

	if res := callTool(t, srv, "neuron_cost_report", `{"since":"yesterday"}`); !res.IsError {
		t.Error("expected isError=true for bad since date")
	}

	text = callTool(t, srv, "neuron_recent_costs", `{"limit":1}`).Content[0].Text
	if got := strings.Count(text, "marcus"); got != 1 {
		t.Errorf("recent costs rows = %d, want 1:\n%s", got, text)
	}
}

func TestToolCallNotConfigured(t *testing.T) {
	srv := New(Deps{}, "test")
	for _, name := range []string{"neuron_cache_stats", "neuron_budget", "neuron_cost_report", "neuron_route"} {
		res := callTool(t, srv, name, "")
		if !strings.Contains(res.Content[0].Text, "not configured") {
			t.Errorf("%s: expected 'not configured', got: %s", name, res.Content[0].Text)
		}
	}
}

func TestToolCallBudget(t *testing.T) {
	deps := setupDeps(t)
	if err := deps.Ledger.Record(context.Background(), models.CostEvent{
		Service: models.ServiceOpenAI, Operation: models.OpChat, Cost: 4, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	deps.Enforcer = budget.New(models.BudgetPolicy{DailyLimit: 5, AlertThreshold: 0.8}, deps.Ledger)
	srv := New(deps, "test")

	text := callTool(t, srv, "neuron_budget", "").Content[0].Text
	if !strings.Contains(text, "80.0%") || !strings.Contains(text, "ALERT") {
		t.Errorf("unexpected budget output: %s", text)
	}
}

func TestToolCallCacheStats(t *testing.T) {
	hot := &fakeCache{stats: models.CacheStats{Backend: "memory", Entries: 42, Hits: 10, Misses: 5}}
	cold := &fakeCache{stats: models.CacheStats{
		Backend: "sqlite", Entries: 3, Bytes: 2048,
		Classes: map[models.StorageClass]int64{models.ClassStandard: 2, models.ClassNearline: 1},
	}}
	srv := New(Deps{Hot: hot, Cold: cold}, "test")

	text := callTool(t, srv, "neuron_cache_stats", "").Content[0].Text
	for _, want := range []string{"Hot Cache (memory)", "42", "66.7%", "Cold Cache (sqlite)", "2.0 kB", "NEARLINE: 1"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got: %s", want, text)
		}
	}
}

func TestToolCallRoute(t *testing.T) {
	srv := New(setupDeps(t), "test")

	text := callTool(t, srv, "neuron_route", `{"agent":"marcus","emotion":"angry"}`).Content[0].Text
	if !strings.Contains(text, "elevenlabs premium") {
		t.Errorf("marcus should route to premium elevenlabs, got: %s", text)
	}
	text = callTool(t, srv, "neuron_route", `{"agent":"zareena"}`).Content[0].Text
	if !strings.Contains(text, `openai standard voice "nova"`) {
		t.Errorf("zareena should use the default route, got: %s", text)
	}
	if res := callTool(t, srv, "neuron_route", `{}`); !res.IsError {
		t.Error("expected isError=true for missing agent")
	}
}

func TestToolCallVoiceKey(t *testing.T) {
	srv := New(setupDeps(t), "test")

	text := callTool(t, srv, "neuron_voice_key", `{"agent":"marcus","text":"  Trust   the DATA ","emotion":"confident"}`).Content[0].Text
	want := voicekey.Build("marcus", "trust the data", "confident", 1)
	if !strings.Contains(text, want.String()) || !strings.Contains(text, want.Path()) {
		t.Errorf("expected key %s in output, got: %s", want.String(), text)
	}
	if res := callTool(t, srv, "neuron_voice_key", `{"agent":"marcus"}`); !res.IsError {
		t.Error("expected isError=true for missing text")
	}
}

func TestToolCallEstimate(t *testing.T) {
	srv := New(setupDeps(t), "test")

	text := callTool(t, srv, "neuron_estimate_debate", `{"topic":"injury report","turns":6,"hit_rate":0.5}`).Content[0].Text
	if !strings.Contains(text, "marcus, big_mike, sam") || !strings.Contains(text, "6 turns") {
		t.Errorf("unexpected estimate output: %s", text)
	}
	if res := callTool(t, srv, "neuron_estimate_debate", `{"hit_rate":2}`); !res.IsError {
		t.Error("expected isError=true for hit_rate out of range")
	}
}

func TestToolCallPersonas(t *testing.T) {
	srv := New(setupDeps(t), "test")

	text := callTool(t, srv, "neuron_personas", "").Content[0].Text
	for _, want := range []string{"marcus", "big_mike", "zareena", "sam", "leo", "architect"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %s in output, got: %s", want, text)
		}
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv := New(Deps{}, "test")

	line, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	line = append(line, '\n')

	var out bytes.Buffer
	_ = srv.Run(context.Background(), bytes.NewReader(line), &out)

	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got: %s", out.String())
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := New(Deps{}, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`9`),
		Method:  "unknown/method",
	})

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestToolCallUserCosts(t *testing.T) {
	deps := setupDeps(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, ev := range []models.CostEvent{
		{Service: models.ServiceOpenAI, Operation: models.OpChat, Cost: 0.25, DebateID: "d1", UserID: "fan-7", CreatedAt: now},
		{Service: models.ServiceElevenLabs, Operation: models.OpTTSPremium, Cost: 0.5, DebateID: "d1", UserID: "fan-7", CreatedAt: now},
		{Service: models.ServiceOpenAI, Operation: models.OpChat, Cost: 9, DebateID: "d2", UserID: "someone-else", CreatedAt: now},
	} {
		if err := deps.Ledger.Record(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}
	srv := New(deps, "test")

	text := callTool(t, srv, "neuron_user_costs", `{"user_id":"fan-7"}`).Content[0].Text
	for _, want := range []string{"User fan-7", "$0.7500", "Debates:       1", now.Format("2006-01-02")} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got: %s", want, text)
		}
	}
	if res := callTool(t, srv, "neuron_user_costs", `{}`); !res.IsError {
		t.Error("expected isError=true for missing user_id")
	}
	if res := callTool(t, srv, "neuron_user_costs", `{"user_id":"fan-7","days":0}`); !res.IsError {
		t.Error("expected isError=true for days < 1")
	}
}
