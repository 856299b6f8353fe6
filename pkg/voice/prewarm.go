package voice

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ffneuron/neuron/pkg/budget"
)

// PrewarmResult counts what a Prewarm run did.
type PrewarmResult struct {
	Cached    int     `json:"cached"`
	Generated int     `json:"generated"`
	Failed    int     `json:"failed"`
	Cost      float64 `json:"cost"`
}

const prewarmWorkers = 4

// Prewarm synthesizes every phrase (keyed by agent) ahead of time and keeps
// it in the hot tier for the prewarm TTL. Individual failures are counted;
// an exhausted budget stops the run.
func (s *Service) Prewarm(ctx context.Context, phrases map[string][]string, emotion string) (PrewarmResult, error) {
	agents := make([]string, 0, len(phrases))
	for a := range phrases {
		agents = append(agents, a)
	}
	sort.Strings(agents)

	var (
		mu  sync.Mutex
		out PrewarmResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prewarmWorkers)
	for _, agent := range agents {
		for _, text := range phrases[agent] {
			g.Go(func() error {
				res, err := s.generate(gctx, Request{AgentID: agent, Text: text, Emotion: emotion}, s.opts.PrewarmTTL)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case errors.Is(err, budget.ErrBudgetExceeded):
					return err
				case err != nil:
					out.Failed++
					slog.Warn("prewarm failed", "agent", agent, "text", text, "error", err)
				case res.CacheTier == CacheMiss:
					out.Generated++
					out.Cost += res.Cost
				default:
					out.Cached++
				}
				return nil
			})
		}
	}
	err := g.Wait()
	return out, err
}
