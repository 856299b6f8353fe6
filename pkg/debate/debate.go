// Package debate runs turn-ordered debates between personas and voices each
// turn through the voice pipeline.
package debate

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ffneuron/neuron/pkg/cost"
	"github.com/ffneuron/neuron/pkg/errs"
	"github.com/ffneuron/neuron/pkg/ledger"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/personas"
	"github.com/ffneuron/neuron/pkg/textgen"
	"github.com/ffneuron/neuron/pkg/voice"
)

// DefaultMaxTurns caps a debate, conclusion excluded.
const DefaultMaxTurns = 15

const (
	conclusionEmotion = "thoughtful"
	respondChance     = 0.7
	voiceWorkers      = 4
)

// Voicer turns a line into audio.
type Voicer interface {
	Generate(ctx context.Context, req voice.Request) (*voice.Result, error)
}

// StartRequest opens a debate. Empty Agents picks a matchup for the topic.
// The user is UserID, or else the user_id entry of UserContext.
type StartRequest struct {
	Topic       string            `json:"topic"`
	Agents      []string          `json:"agents"`
	UserID      string            `json:"userId"`
	UserContext map[string]string `json:"userContext"`
}

func (r StartRequest) user() string {
	if id := strings.TrimSpace(r.UserID); id != "" {
		return id
	}
	for _, k := range []string{"user_id", "userId"} {
		if id := strings.TrimSpace(r.UserContext[k]); id != "" {
			return id
		}
	}
	return ""
}

// Options wires an Orchestrator. Pricing, Ledger and Rand are optional.
type Options struct {
	Generator textgen.Generator
	Voice     Voicer
	Store     *Store
	Pricing   *cost.Pricing
	Ledger    ledger.Ledger
	MaxTurns  int
	Rand      *rand.Rand
}

// Orchestrator creates and advances debates.
type Orchestrator struct {
	gen      textgen.Generator
	voice    Voicer
	store    *Store
	pricing  *cost.Pricing
	ledger   ledger.Ledger
	maxTurns int

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
}

// New returns an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Generator == nil || opts.Voice == nil {
		return nil, fmt.Errorf("debate: generator and voice are required")
	}
	if opts.Store == nil {
		opts.Store = NewStore()
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return &Orchestrator{
		gen:      opts.Generator,
		voice:    opts.Voice,
		store:    opts.Store,
		pricing:  opts.Pricing,
		ledger:   opts.Ledger,
		maxTurns: opts.MaxTurns,
		rng:      opts.Rand,
		now:      time.Now,
	}, nil
}

// Start validates the request, writes one opening per agent in order and
// voices them concurrently.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*models.Debate, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, errs.Invalid("topic is empty")
	}

	var cast []personas.Persona
	if len(req.Agents) == 0 {
		cast = personas.Matchup(topic)
	} else {
		seen := make(map[string]bool)
		for _, name := range req.Agents {
			p, err := personas.Get(name)
			if err != nil {
				return nil, errs.Invalid("%v", err)
			}
			if seen[p.ID] {
				return nil, errs.Invalid("agent %q listed twice", p.ID)
			}
			seen[p.ID] = true
			cast = append(cast, p)
		}
	}
	if len(cast) < 2 {
		return nil, errs.Invalid("a debate needs at least two agents")
	}

	d := &models.Debate{
		ID:          uuid.NewString(),
		Topic:       topic,
		UserID:      req.user(),
		UserContext: req.UserContext,
		MaxTurns:    o.maxTurns,
		CreatedAt:   o.now().UTC(),
	}
	for _, p := range cast {
		d.Agents = append(d.Agents, p.ID)
	}

	var fresh []models.Turn
	for _, p := range cast {
		fresh = append(fresh, o.writeTurn(ctx, d, fresh, p, textgen.Prompt{}))
	}
	o.voiceTurns(ctx, d, fresh)
	d.Turns = fresh

	o.store.Save(d)
	slog.Info("debate started", "debate", d.ID, "agents", strings.Join(d.Agents, ","), "cost", d.TotalCost())
	return d, nil
}

// Continue adds up to n turns, stopping at the turn cap.
func (o *Orchestrator) Continue(ctx context.Context, id string, n int) (*models.Debate, error) {
	unlock, err := o.store.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := o.store.Get(id)
	if err != nil {
		return nil, err
	}
	if d.Concluded {
		return nil, errs.Invalid("debate %s is concluded", id)
	}
	if len(d.Turns) >= d.MaxTurns {
		return nil, errs.Invalid("debate %s reached %d turns", id, d.MaxTurns)
	}
	if n <= 0 {
		n = 1
	}
	if room := d.MaxTurns - len(d.Turns); n > room {
		n = room
	}

	var fresh []models.Turn
	for i := 0; i < n; i++ {
		history := append(append([]models.Turn(nil), d.Turns...), fresh...)
		speaker, respondingTo := o.nextSpeaker(d.Agents, history)
		p, err := personas.Get(speaker)
		if err != nil {
			return nil, err
		}
		fresh = append(fresh, o.writeTurn(ctx, d, history, p, textgen.Prompt{RespondingTo: respondingTo}))
	}
	o.voiceTurns(ctx, d, fresh)
	d.Turns = append(d.Turns, fresh...)

	o.store.Save(d)
	return d, nil
}

// Conclude adds the closing summary.
func (o *Orchestrator) Conclude(ctx context.Context, id string) (*models.Debate, error) {
	unlock, err := o.store.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := o.store.Get(id)
	if err != nil {
		return nil, err
	}
	if d.Concluded {
		return nil, errs.Invalid("debate %s is already concluded", id)
	}
	p, err := personas.Get(personas.Architect)
	if err != nil {
		return nil, err
	}

	turn := o.writeTurn(ctx, d, d.Turns, p, textgen.Prompt{Conclude: true})
	turn.Emotion = conclusionEmotion
	fresh := []models.Turn{turn}
	o.voiceTurns(ctx, d, fresh)

	d.Turns = append(d.Turns, fresh...)
	d.Concluded = true
	o.store.Save(d)
	slog.Info("debate concluded", "debate", d.ID, "turns", len(d.Turns), "cost", d.TotalCost())
	return d, nil
}

// Get returns a stored debate.
func (o *Orchestrator) Get(id string) (*models.Debate, error) {
	return o.store.Get(id)
}

// writeTurn generates the text for one turn. A failure is recorded on the
// turn and does not stop the debate.
func (o *Orchestrator) writeTurn(ctx context.Context, d *models.Debate, history []models.Turn, p personas.Persona, prompt textgen.Prompt) models.Turn {
	prompt.Persona = p
	prompt.Topic = d.Topic
	prompt.UserContext = d.UserContext
	prompt.History = history

	turn := models.Turn{
		Seq:          len(history),
		Agent:        p.ID,
		RespondingTo: prompt.RespondingTo,
		CreatedAt:    o.now().UTC(),
	}
	line, err := o.gen.Generate(ctx, prompt)
	if err != nil {
		slog.Warn("turn text failed", "debate", d.ID, "agent", p.ID, "error", err)
		turn.Error = err.Error()
		return turn
	}
	turn.Text = line.Text
	turn.Emotion = line.Emotion
	turn.Cost = o.chatCost(ctx, d, p.ID, line.Usage)
	return turn
}

func (o *Orchestrator) chatCost(ctx context.Context, d *models.Debate, agent string, u models.Usage) float64 {
	if o.pricing == nil {
		return 0
	}
	c := o.pricing.ChatCost(u)
	if o.ledger != nil {
		err := o.ledger.Record(ctx, models.CostEvent{
			Service:   models.ServiceOpenAI,
			Operation: models.OpChat,
			Units:     float64(u.TotalTokens),
			Cost:      c,
			DebateID:  d.ID,
			Agent:     agent,
			UserID:    d.UserID,
		})
		if err != nil {
			slog.Warn("ledger record failed", "error", err)
		}
	}
	return c
}

// voiceTurns voices turns concurrently. Each goroutine writes only its own
// slot, so order is kept.
func (o *Orchestrator) voiceTurns(ctx context.Context, d *models.Debate, turns []models.Turn) {
	var g errgroup.Group
	g.SetLimit(voiceWorkers)
	for i := range turns {
		if turns[i].Error != "" {
			continue
		}
		g.Go(func() error {
			t := &turns[i]
			res, err := o.voice.Generate(ctx, voice.Request{
				AgentID:  t.Agent,
				Text:     t.Text,
				Emotion:  t.Emotion,
				DebateID: d.ID,
				UserID:   d.UserID,
			})
			if err != nil {
				slog.Warn("turn voice failed", "debate", d.ID, "seq", t.Seq, "agent", t.Agent, "error", err)
				t.Error = err.Error()
				return nil
			}
			t.AudioKey = res.Key
			t.AudioURL = "/voice/audio/" + res.Path
			t.Provider = res.Provider
			t.CacheTier = res.CacheTier
			t.DurationMs = res.DurationMs
			t.Cost += res.Cost
			return nil
		})
	}
	g.Wait()
}

// nextSpeaker picks who talks next, weighted by personality. The previous
// speaker is never picked.
func (o *Orchestrator) nextSpeaker(agents []string, history []models.Turn) (speaker, respondingTo string) {
	var last models.Turn
	if len(history) > 0 {
		last = history[len(history)-1]
	}

	counts := make(map[string]int)
	for _, t := range history {
		counts[t.Agent]++
	}
	avg := float64(len(history)) / float64(len(agents))
	heated := last.Emotion == "angry" || last.Emotion == "excited"

	var candidates []string
	var weights []float64
	var total float64
	for _, id := range agents {
		if id == last.Agent {
			continue
		}
		p, err := personas.Get(id)
		if err != nil {
			continue
		}
		w := 1 + p.Personality.ContrarianTendency*0.5
		if float64(counts[id]) < avg {
			w += 0.3
		}
		if heated {
			w += p.Personality.EmotionalWeight * 0.4
		}
		candidates = append(candidates, id)
		weights = append(weights, w)
		total += w
	}

	o.rngMu.Lock()
	defer o.rngMu.Unlock()

	speaker = candidates[len(candidates)-1]
	r := o.rng.Float64() * total
	for i, w := range weights {
		if r < w {
			speaker = candidates[i]
			break
		}
		r -= w
	}
	if last.Agent != "" && o.rng.Float64() < respondChance {
		respondingTo = last.Agent
	}
	return speaker, respondingTo
}
