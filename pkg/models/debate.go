package models

import "time"

// Turn is one spoken line in a debate.
type Turn struct {
	Seq          int       `json:"seq"`
	Agent        string    `json:"agent"`
	Text         string    `json:"text"`
	Emotion      string    `json:"emotion"`
	RespondingTo string    `json:"responding_to,omitempty"`
	AudioKey     string    `json:"audio_key,omitempty"`
	AudioURL     string    `json:"audio_url,omitempty"`
	Provider     Provider  `json:"provider,omitempty"`
	CacheTier    string    `json:"cache,omitempty"`
	DurationMs   int64     `json:"duration_ms,omitempty"`
	Cost         float64   `json:"cost"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Debate is an ordered exchange between agents on one topic.
type Debate struct {
	ID          string            `json:"debate_id"`
	Topic       string            `json:"topic"`
	Agents      []string          `json:"agents"`
	UserID      string            `json:"user_id,omitempty"`
	UserContext map[string]string `json:"user_context,omitempty"`
	Turns       []Turn            `json:"turns"`
	MaxTurns    int               `json:"max_turns"`
	Concluded   bool              `json:"concluded"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TotalCost sums the per-turn costs.
func (d *Debate) TotalCost() float64 {
	var total float64
	for _, t := range d.Turns {
		total += t.Cost
	}
	return total
}

// TotalDurationMs sums the audio duration of all turns.
func (d *Debate) TotalDurationMs() int64 {
	var total int64
	for _, t := range d.Turns {
		total += t.DurationMs
	}
	return total
}
