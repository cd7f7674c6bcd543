// Package classify assigns an execution lane to a repository snapshot
// through an ordered cascade of strategies that ends in a deterministic
// keyword heuristic, and corrects contradictory verdicts.
package classify

import (
	"context"

	"go.uber.org/zap"

	"kiri/internal/lane"
)

// Strategy is one classification tier. ok=false means the tier failed and
// the engine moves to the next one; the error detail stays inside the tier.
type Strategy interface {
	Name() string
	TryClassify(ctx context.Context, snap *lane.Snapshot) (lane.Verdict, bool)
}

// Result is an engine verdict with the tier that produced it.
type Result struct {
	Verdict lane.Verdict
	Tier    string
}

// TierFunc observes each tier attempt.
type TierFunc func(tier string, ok bool)

// Engine runs strategies in order. The last strategy is always the
// heuristic, so Classify always yields a verdict.
type Engine struct {
	strategies []Strategy
	logger     *zap.Logger
	onTier     TierFunc
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithTierObserver(fn TierFunc) Option {
	return func(e *Engine) { e.onTier = fn }
}

// NewEngine builds an engine over strategies; nil entries are skipped and a
// Heuristic is appended unless the list already ends with one.
func NewEngine(strategies []Strategy, opts ...Option) *Engine {
	e := &Engine{logger: zap.NewNop()}
	for _, s := range strategies {
		if s != nil {
			e.strategies = append(e.strategies, s)
		}
	}
	if n := len(e.strategies); n == 0 || !isHeuristic(e.strategies[n-1]) {
		e.strategies = append(e.strategies, Heuristic{})
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Tiers lists strategy names in cascade order.
func (e *Engine) Tiers() []string {
	out := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		out[i] = s.Name()
	}
	return out
}

// Classify returns the first successful tier's verdict.
func (e *Engine) Classify(ctx context.Context, snap *lane.Snapshot) Result {
	if snap == nil {
		snap = &lane.Snapshot{}
	}
	for i, s := range e.strategies {
		v, ok := s.TryClassify(ctx, snap)
		if ok && !v.Lane.Classified() {
			ok = false
		}
		if e.onTier != nil {
			e.onTier(s.Name(), ok)
		}
		if ok {
			return Result{Verdict: v, Tier: s.Name()}
		}
		if i < len(e.strategies)-1 {
			e.logger.Warn("classification tier failed; falling back",
				zap.String("tier", s.Name()),
				zap.String("next", e.strategies[i+1].Name()),
				zap.String("repo", snap.FullName()))
		}
	}
	// Unreachable: the heuristic always succeeds.
	return Result{Verdict: HeuristicVerdict(snap), Tier: HeuristicName}
}

func isHeuristic(s Strategy) bool {
	switch s.(type) {
	case Heuristic, *Heuristic:
		return true
	}
	return false
}
