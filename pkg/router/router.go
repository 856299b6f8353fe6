package router

import (
	"fmt"
	"strings"

	"github.com/ffneuron/neuron/pkg/config"
	"github.com/ffneuron/neuron/pkg/models"
)

const wildcard = "*"

type ruleKey struct {
	agent   string
	emotion string
}

// Router resolves (agent, emotion) to a voice provider. The table is built
// once and never changes.
type Router struct {
	table map[ruleKey]models.ProviderChoice
	def   models.ProviderChoice
}

// New builds a Router from the given configuration. Unknown providers or
// tiers are rejected.
func New(cfg config.RouterConfig) (*Router, error) {
	def, err := toChoice(cfg.Default)
	if err != nil {
		return nil, fmt.Errorf("default route: %w", err)
	}

	r := &Router{table: make(map[ruleKey]models.ProviderChoice, len(cfg.Rules)), def: def}
	for i, rule := range cfg.Rules {
		choice, err := toChoice(rule.RouteTarget)
		if err != nil {
			return nil, fmt.Errorf("route %d (%s/%s): %w", i, rule.Agent, rule.Emotion, err)
		}
		k := ruleKey{agent: normalize(rule.Agent), emotion: normalize(rule.Emotion)}
		if _, dup := r.table[k]; dup {
			return nil, fmt.Errorf("route %d: duplicate rule for %s/%s", i, k.agent, k.emotion)
		}
		r.table[k] = choice
	}
	return r, nil
}

func toChoice(t config.RouteTarget) (models.ProviderChoice, error) {
	p, err := models.ParseProvider(t.Provider)
	if err != nil {
		return models.ProviderChoice{}, err
	}
	tier, err := models.ParseVoiceTier(t.Tier)
	if err != nil {
		return models.ProviderChoice{}, err
	}
	return models.ProviderChoice{Provider: p, Tier: tier, VoiceID: t.Voice, Settings: t.Settings}, nil
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return wildcard
	}
	return s
}

// Select returns the voice for an agent and emotion. Lookup order is the
// exact pair, then the agent with any emotion, then any agent with the
// emotion, then the default.
func (r *Router) Select(agentID, emotion string) models.ProviderChoice {
	agent, emo := normalize(agentID), normalize(emotion)
	for _, k := range []ruleKey{
		{agent, emo},
		{agent, wildcard},
		{wildcard, emo},
	} {
		if c, ok := r.table[k]; ok {
			return c
		}
	}
	return r.def
}

// Default returns the fallback choice.
func (r *Router) Default() models.ProviderChoice {
	return r.def
}
