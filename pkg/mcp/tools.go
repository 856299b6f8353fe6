package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ffneuron/neuron/pkg/ledger"
	"github.com/ffneuron/neuron/pkg/personas"
	"github.com/ffneuron/neuron/pkg/voicekey"
)

// Tool argument structs.

type costReportArgs struct {
	Since string `json:"since"`
}

type recentArgs struct {
	Limit int `json:"limit"`
}

type userCostsArgs struct {
	UserID string `json:"user_id"`
	Days   int    `json:"days"`
}

type routeArgs struct {
	Agent   string `json:"agent"`
	Emotion string `json:"emotion"`
}

type voiceKeyArgs struct {
	Agent   string `json:"agent"`
	Emotion string `json:"emotion"`
	Text    string `json:"text"`
}

type estimateArgs struct {
	Topic   string   `json:"topic"`
	Agents  []string `json:"agents"`
	Turns   int      `json:"turns"`
	HitRate float64  `json:"hit_rate"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"neuron_cost_report":     handleCostReport,
	"neuron_recent_costs":    handleRecentCosts,
	"neuron_user_costs":      handleUserCosts,
	"neuron_budget":          handleBudget,
	"neuron_cache_stats":     handleCacheStats,
	"neuron_route":           handleRoute,
	"neuron_voice_key":       handleVoiceKey,
	"neuron_estimate_debate": handleEstimate,
	"neuron_personas":        handlePersonas,
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "neuron_cost_report",
		Description: "Show spend and cache savings by service, operation and hour.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"since": stringProp("Start date in YYYY-MM-DD format (optional, defaults to today)"),
			},
		},
	},
	{
		Name:        "neuron_recent_costs",
		Description: "List the most recent cost events, newest first.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{"type": "integer", "description": "Maximum events (default 20)"},
			},
		},
	},
	{
		Name:        "neuron_user_costs",
		Description: "Show one user's spend per day and how many debates it covered.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"user_id"},
			"properties": map[string]any{
				"user_id": stringProp("User id recorded on debates and voice requests"),
				"days":    map[string]any{"type": "integer", "description": "Days to look back (default 7)"},
			},
		},
	},
	{
		Name:        "neuron_budget",
		Description: "Show today's spend against the daily budget.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "neuron_cache_stats",
		Description: "Show hot and cold audio cache statistics (entries, bytes, hits, storage classes).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "neuron_route",
		Description: "Show which provider and voice an agent speaks with for an emotion.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"agent"},
			"properties": map[string]any{
				"agent":   stringProp("Agent id, e.g. marcus"),
				"emotion": stringProp("Emotion (optional)"),
			},
		},
	},
	{
		Name:        "neuron_voice_key",
		Description: "Compute the cache key and storage path for a spoken line.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"agent", "text"},
			"properties": map[string]any{
				"agent":   stringProp("Agent id"),
				"emotion": stringProp("Emotion (optional)"),
				"text":    stringProp("Line text"),
			},
		},
	},
	{
		Name:        "neuron_estimate_debate",
		Description: "Project the cost of a debate before running it.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic":    stringProp("Topic, used to pick agents when none are given"),
				"agents":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"turns":    map[string]any{"type": "integer", "description": "Number of turns (default 10)"},
				"hit_rate": map[string]any{"type": "number", "description": "Expected cache hit rate 0-1"},
			},
		},
	},
	{
		Name:        "neuron_personas",
		Description: "List the debate personas and their voices.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleCostReport(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Ledger == nil {
		return textResult("Cost ledger is not configured.")
	}
	var args costReportArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	since, until := ledger.DayBounds(time.Now())
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		since = t
	}

	b, err := s.deps.Ledger.Breakdown(ctx, since, until)
	if err != nil {
		return errorResult("Error fetching cost report: " + err.Error())
	}
	return textResult(formatBreakdown(b))
}

func handleRecentCosts(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Ledger == nil {
		return textResult("Cost ledger is not configured.")
	}
	args := recentArgs{Limit: 20}
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	events, err := s.deps.Ledger.Recent(ctx, args.Limit)
	if err != nil {
		return errorResult("Error fetching cost events: " + err.Error())
	}
	return textResult(formatEvents(events))
}

func handleUserCosts(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Ledger == nil {
		return textResult("Cost ledger is not configured.")
	}
	args := userCostsArgs{Days: 7}
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if strings.TrimSpace(args.UserID) == "" {
		return errorResult("user_id is required.")
	}
	if args.Days < 1 {
		return errorResult("days must be at least 1.")
	}
	uc, err := s.deps.Ledger.UserCosts(ctx, strings.TrimSpace(args.UserID), time.Now().UTC().AddDate(0, 0, -args.Days))
	if err != nil {
		return errorResult("Error fetching user costs: " + err.Error())
	}
	return textResult(formatUserCosts(uc))
}

func handleBudget(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Enforcer == nil {
		return textResult("Budget enforcement is not configured.")
	}
	st, err := s.deps.Enforcer.Status(ctx)
	if err != nil {
		return errorResult("Error fetching budget status: " + err.Error())
	}
	return textResult(formatBudgetStatus(st))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Hot == nil && s.deps.Cold == nil {
		return textResult("Cache is not configured.")
	}
	var out string
	for _, tier := range []struct {
		name string
		src  CacheStatter
	}{{"Hot", s.deps.Hot}, {"Cold", s.deps.Cold}} {
		if tier.src == nil {
			continue
		}
		stats, err := tier.src.Stats(ctx)
		if err != nil {
			return errorResult("Error fetching cache stats: " + err.Error())
		}
		out += formatCacheStats(tier.name, stats)
	}
	return textResult(out)
}

func handleRoute(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Router == nil {
		return textResult("Router is not configured.")
	}
	var args routeArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Agent == "" {
		return errorResult("agent is required")
	}
	return textResult(formatChoice(args.Agent, args.Emotion, s.deps.Router.Select(args.Agent, args.Emotion)))
}

func handleVoiceKey(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args voiceKeyArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Agent == "" || args.Text == "" {
		return errorResult("agent and text are required")
	}
	k := voicekey.Build(args.Agent, args.Text, args.Emotion, s.deps.SettingsVersion)
	return textResult(formatKey(k))
}

func handleEstimate(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Pricing == nil || s.deps.Router == nil {
		return textResult("Pricing is not configured.")
	}
	args := estimateArgs{Turns: 10}
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.HitRate < 0 || args.HitRate > 1 {
		return errorResult("hit_rate must be within [0, 1]")
	}

	agents := args.Agents
	if len(agents) == 0 {
		for _, p := range personas.Matchup(args.Topic) {
			agents = append(agents, p.ID)
		}
	}
	est := s.deps.Pricing.EstimateDebate(s.deps.Router, agents, args.Turns, 150, args.HitRate)
	return textResult(formatEstimate(agents, args.Turns, est))
}

func handlePersonas(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatPersonas(personas.All(), s.deps.Router))
}
