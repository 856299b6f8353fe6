package models

import "time"

// Cost ledger services.
const (
	ServiceElevenLabs = "elevenlabs"
	ServiceOpenAI     = "openai"
	ServiceCache      = "cache"
)

// Cost ledger operations.
const (
	OpTTSPremium  = "tts_premium"
	OpTTSStandard = "tts_standard"
	OpChat        = "chat"
	OpCacheHit    = "hit"
)

// CostSnapshot is the process-wide cost record. It resets on restart.
type CostSnapshot struct {
	Requests int64   `json:"requests"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	Spend    float64 `json:"spend"`
	Savings  float64 `json:"estimated_savings"`
	HitRate  float64 `json:"hit_rate"`
}

// CostEvent is one billable (or avoided) operation in the ledger.
type CostEvent struct {
	ID        int64     `json:"id"`
	Service   string    `json:"service"`
	Operation string    `json:"operation"`
	Units     float64   `json:"units"`
	Cost      float64   `json:"cost"`
	Saved     float64   `json:"saved,omitempty"` // cost avoided by a cache hit
	DebateID  string    `json:"debate_id,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	CacheHit  bool      `json:"cache_hit"`
	CreatedAt time.Time `json:"created_at"`
}

// CostBreakdown aggregates ledger events over a time range.
type CostBreakdown struct {
	Since        time.Time          `json:"since"`
	Until        time.Time          `json:"until"`
	Total        float64            `json:"total"`
	Events       int64              `json:"events"`
	CacheHits    int64              `json:"cache_hits"`
	CacheSavings float64            `json:"cache_savings"`
	ByService    map[string]float64 `json:"by_service"`
	ByOperation  map[string]float64 `json:"by_operation"`
	ByHour       map[int]float64    `json:"by_hour"`
}

// UserCosts is one user's spend since a point in time. ByDay keys are UTC
// dates (2006-01-02).
type UserCosts struct {
	UserID  string             `json:"user_id"`
	Since   time.Time          `json:"since"`
	Total   float64            `json:"total"`
	Events  int64              `json:"events"`
	Debates int64              `json:"debate_count"`
	ByDay   map[string]float64 `json:"by_day"`
}

// DebateEstimate is a projected cost for a debate before it runs.
type DebateEstimate struct {
	LLM     float64 `json:"llm"`
	Voice   float64 `json:"voice"`
	Savings float64 `json:"cache_savings"`
	Total   float64 `json:"total"`
}
