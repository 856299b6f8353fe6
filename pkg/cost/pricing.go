package cost

import (
	"strings"
	"unicode/utf8"

	"github.com/ffneuron/neuron/pkg/config"
	"github.com/ffneuron/neuron/pkg/models"
)

// Pricing holds per-unit rates for every billable service.
type Pricing struct {
	voice          map[models.Provider]config.TierRates
	promptCost     float64 // per 1000 tokens
	completionCost float64 // per 1000 tokens
}

// NewPricing builds a Pricing table from configuration.
func NewPricing(cfg *config.Config) *Pricing {
	return &Pricing{
		voice: map[models.Provider]config.TierRates{
			models.ProviderOpenAI:     cfg.Providers.OpenAI.Rates,
			models.ProviderElevenLabs: cfg.Providers.ElevenLabs.Rates,
		},
		promptCost:     cfg.LLM.PromptCost,
		completionCost: cfg.LLM.CompletionCost,
	}
}

// VoiceRate returns dollars per 1000 characters for a provider and tier.
func (p *Pricing) VoiceRate(provider models.Provider, tier models.VoiceTier) float64 {
	r := p.voice[provider]
	if tier == models.TierPremium {
		return r.Premium
	}
	return r.Standard
}

// VoiceCost prices text for a routing decision.
func (p *Pricing) VoiceCost(choice models.ProviderChoice, text string) float64 {
	return float64(utf8.RuneCountInString(text)) / 1000 * p.VoiceRate(choice.Provider, choice.Tier)
}

// ChatCost prices an LLM completion.
func (p *Pricing) ChatCost(u models.Usage) float64 {
	return float64(u.PromptTokens)/1000*p.promptCost + float64(u.CompletionTokens)/1000*p.completionCost
}

// Operation names the ledger operation for a voice tier.
func Operation(tier models.VoiceTier) string {
	if tier == models.TierPremium {
		return models.OpTTSPremium
	}
	return models.OpTTSStandard
}

// Selector resolves the voice for an agent and emotion.
type Selector interface {
	Select(agentID, emotion string) models.ProviderChoice
}

// EstimateDebate projects the cost of a debate where each turn averages
// charsPerTurn characters. hitRate is the expected cache hit rate in [0, 1].
func (p *Pricing) EstimateDebate(sel Selector, agents []string, turns, charsPerTurn int, hitRate float64) models.DebateEstimate {
	var est models.DebateEstimate
	if len(agents) == 0 || turns <= 0 {
		return est
	}
	// about 1.3 tokens per word and 5 characters per word
	tokens := float64(turns*charsPerTurn) / 5 * 1.3
	est.LLM = tokens / 1000 * p.completionCost

	line := strings.Repeat("x", charsPerTurn)
	var voice float64
	for i := 0; i < turns; i++ {
		voice += p.VoiceCost(sel.Select(agents[i%len(agents)], ""), line)
	}
	est.Voice = voice * (1 - hitRate)
	est.Savings = voice * hitRate
	est.Total = est.LLM + est.Voice
	return est
}
