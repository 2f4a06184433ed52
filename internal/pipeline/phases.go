package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/assay/internal/evidence"
	"github.com/ppiankov/assay/internal/graph"
	"github.com/ppiankov/assay/internal/logger"
	"github.com/ppiankov/assay/internal/metrics"
	"github.com/ppiankov/assay/internal/model"
)

// Outcome is what the component invoked for the current phase reported
type Outcome struct {
	Err error
}

// state bundles the per-run views over one session
type state struct {
	session *model.AnalysisSession
	store   *evidence.Store
	graph   *graph.Graph
	log     *logger.Logger
}

// Next returns the phase that follows the session's current phase. It
// depends only on the session, the outcome and the configured loop limit,
// and mutates nothing. A failed outcome or a finalized session stays put.
func (c *Controller) Next(s *model.AnalysisSession, o Outcome) model.Phase {
	if o.Err != nil || s.IsFinalized() {
		return s.Phase
	}
	switch s.Phase {
	case model.PhaseCrystallize:
		return model.PhaseMap
	case model.PhaseMap:
		if len(s.OpenQuestions) > 0 && s.LoopCount < c.maxLoopCount() {
			return model.PhaseCrystallize
		}
		return model.PhaseDecompose
	case model.PhaseDecompose:
		return model.PhaseEvaluate
	case model.PhaseEvaluate:
		return model.PhaseAssess
	default:
		return model.PhaseDone
	}
}

func (c *Controller) maxLoopCount() int {
	if c.cfg.MaxLoopCount < 0 {
		return 0
	}
	return c.cfg.MaxLoopCount
}

func (c *Controller) step(ctx context.Context, st *state) error {
	switch st.session.Phase {
	case model.PhaseCrystallize:
		return c.crystallize(ctx, st)
	case model.PhaseMap:
		return c.search(ctx, st)
	case model.PhaseDecompose:
		return c.decompose(ctx, st)
	case model.PhaseEvaluate:
		return c.evaluate(ctx, st)
	case model.PhaseAssess:
		return c.assess(ctx, st)
	default:
		return fmt.Errorf("unknown phase %q", st.session.Phase)
	}
}

func (c *Controller) crystallize(ctx context.Context, st *state) error {
	if c.clarifier == nil {
		return nil
	}
	if err := c.clarifier.Clarify(ctx, st.session); err != nil {
		return fmt.Errorf("clarify: %w", err)
	}
	st.log.Debug("crystallized",
		"open_questions", len(st.session.OpenQuestions),
		"resolved_questions", len(st.session.ResolvedQuestions))
	return nil
}

// search plans queries for the current claims and ingests the results.
// Queries already issued in this session are not repeated.
func (c *Controller) search(ctx context.Context, st *state) error {
	if c.fetcher == nil {
		return nil
	}
	queries := c.planner.Plan(st.session)
	if len(queries) == 0 {
		return nil
	}
	stats, err := c.fetcher.Run(ctx, st.session, st.store, queries)
	st.log.Info("search round",
		"phase", st.session.Phase,
		"queries", stats.Queries,
		"results", stats.Results,
		"added", stats.Added,
		"duplicates", stats.Duplicates,
		"gaps", stats.Gaps)
	return err
}

func (c *Controller) decompose(ctx context.Context, st *state) error {
	if c.decomposer == nil {
		return nil
	}
	d, err := c.decomposer.Decompose(ctx, st.session)
	if err != nil {
		return fmt.Errorf("decompose: %w", err)
	}
	if d == nil {
		return nil
	}
	return c.apply(st, d)
}

// evaluate propagates truth values, then searches for the sub-claims added
// during decomposition. Contradictions are recorded on the session and do
// not fail the phase.
func (c *Controller) evaluate(ctx context.Context, st *state) error {
	if err := st.graph.Propagate(); err != nil {
		if !errors.Is(err, model.ErrContradiction) {
			return fmt.Errorf("propagate: %w", err)
		}
		st.log.Warn("contradictions during propagation", "count", countContradictions(err), "error", err)
		metrics.Contradictions.Add(float64(countContradictions(err)))
	}
	return c.search(ctx, st)
}

func (c *Controller) assess(ctx context.Context, st *state) error {
	s := st.session
	if err := c.aggregator.Apply(s); err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	for _, d := range model.AllDimensions {
		if cd, ok := s.Dimensions[d]; ok {
			metrics.Posterior.WithLabelValues(string(d)).Observe(cd.Posterior)
		}
	}

	if c.narrator == nil {
		return nil
	}
	narrative, err := c.narrator.Narrate(ctx, s)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		st.log.Warn("narrative failed", "error", err)
		return nil
	}
	s.Narrative = narrative
	return nil
}

func countContradictions(err error) int {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		n := 0
		for _, e := range joined.Unwrap() {
			n += countContradictions(e)
		}
		return n
	}
	if errors.Is(err, model.ErrContradiction) {
		return 1
	}
	return 0
}
