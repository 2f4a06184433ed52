// Package pipeline drives an analysis session through its phases:
// CRYSTALLIZE → MAP → DECOMPOSE → EVALUATE → ASSESS → DONE.
//
// The controller keeps no per-session state; everything it needs is read
// from and written to the session passed to Run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/assay/internal/evidence"
	"github.com/ppiankov/assay/internal/graph"
	"github.com/ppiankov/assay/internal/logger"
	"github.com/ppiankov/assay/internal/metrics"
	"github.com/ppiankov/assay/internal/model"
	"github.com/ppiankov/assay/internal/query"
	"github.com/ppiankov/assay/internal/score"
	"github.com/ppiankov/assay/internal/search"
)

// Clarifier adds clarifying questions to a session and resolves the ones it
// can answer. It runs on every CRYSTALLIZE pass.
type Clarifier interface {
	Clarify(ctx context.Context, s *model.AnalysisSession) error
}

// Decomposer supplies the pre-extracted sub-claims, dependency edges, truth
// assertions and evidence records for a session
type Decomposer interface {
	Decompose(ctx context.Context, s *model.AnalysisSession) (*Decomposition, error)
}

// Narrator produces an optional prose confidence statement for an assessed
// session. It never changes scores.
type Narrator interface {
	Narrate(ctx context.Context, s *model.AnalysisSession) (*model.Narrative, error)
}

// Controller sequences the phases of an analysis
type Controller struct {
	cfg        model.AnalysisConfig
	clarifier  Clarifier
	decomposer Decomposer
	narrator   Narrator
	planner    *query.Planner
	fetcher    *query.Fetcher
	aggregator *score.Aggregator
	log        *logger.Logger
	now        func() time.Time
}

// Option configures a Controller
type Option func(*options)

type options struct {
	clarifier  Clarifier
	decomposer Decomposer
	narrator   Narrator
	policy     score.Policy
	log        *logger.Logger
	now        func() time.Time
	fetchOpts  []query.FetcherOption
}

// WithClarifier sets the clarifying-question source
func WithClarifier(c Clarifier) Option {
	return func(o *options) { o.clarifier = c }
}

// WithDecomposer sets the claim decomposition source
func WithDecomposer(d Decomposer) Option {
	return func(o *options) { o.decomposer = d }
}

// WithNarrator enables the narrative confidence statement
func WithNarrator(n Narrator) Option {
	return func(o *options) { o.narrator = n }
}

// WithPolicy replaces the default log-odds confidence policy
func WithPolicy(p score.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithClock sets the clock for session timestamps and recent-query ranges
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithFetcherOptions passes options through to the query fetcher
func WithFetcherOptions(opts ...query.FetcherOption) Option {
	return func(o *options) { o.fetchOpts = append(o.fetchOpts, opts...) }
}

// New creates a controller. A nil service disables searching; the session is
// then assessed on decomposition evidence and priors alone.
func New(cfg *model.Config, service search.Service, opts ...Option) *Controller {
	o := options{log: logger.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	policy := o.policy
	if policy == nil {
		policy = score.NewLogOddsPolicy(cfg.Scoring)
	}

	c := &Controller{
		cfg:        cfg.Analysis,
		clarifier:  o.clarifier,
		decomposer: o.decomposer,
		narrator:   o.narrator,
		planner:    query.NewPlanner(cfg.Planner).WithClock(o.now),
		aggregator: score.NewAggregator(policy, cfg.Scoring.Thresholds),
		log:        o.log,
		now:        o.now,
	}
	if service != nil {
		fetchOpts := append([]query.FetcherOption{query.WithFetchLogger(o.log)}, o.fetchOpts...)
		c.fetcher = query.NewFetcher(service, query.NewTierClassifier(&cfg.Tiers), cfg.Search, cfg.Planner, fetchOpts...)
	}
	return c
}

// Start validates the idea statement and creates a session in CRYSTALLIZE
func (c *Controller) Start(idea string, extraordinariness float64) (*model.AnalysisSession, error) {
	return model.NewSession(idea, extraordinariness, c.cfg.MinIdeaLength, c.now())
}

// Analyze creates a session for the idea and runs it to completion. The
// session is returned alongside any run error so partial results survive
// cancellation.
func (c *Controller) Analyze(ctx context.Context, idea string, extraordinariness float64) (*model.AnalysisSession, error) {
	s, err := c.Start(idea, extraordinariness)
	if err != nil {
		return nil, err
	}
	return s, c.Run(ctx, s)
}

// Run advances the session until DONE. On cancellation the evidence gathered
// so far is kept, dimensions are computed from it and the session is
// finalized as incomplete; the returned error wraps ErrSessionCancelled.
// Any other error leaves the session unfinalized in the failing phase.
func (c *Controller) Run(ctx context.Context, s *model.AnalysisSession) error {
	if err := s.CheckMutable(); err != nil {
		return err
	}
	log := c.log.With("session_id", s.ID)
	st := &state{
		session: s,
		store:   evidence.NewStore(s, evidence.WithClock(c.now)),
		graph:   graph.New(s),
		log:     log,
	}

	for !s.IsFinalized() {
		if err := ctx.Err(); err != nil {
			return c.cancel(st, err)
		}

		from := s.Phase
		err := c.step(ctx, st)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, model.ErrSessionCancelled) {
				return c.cancel(st, err)
			}
			metrics.SessionsFinalized.WithLabelValues("failed").Inc()
			log.Error("phase failed", "phase", from, "error", err)
			return fmt.Errorf("%s: %w", from, err)
		}

		next := c.Next(s, Outcome{})
		if from == model.PhaseMap && next == model.PhaseCrystallize {
			s.LoopCount++
		}
		metrics.PhaseTransitions.WithLabelValues(string(from), string(next)).Inc()
		log.Info("phase transition", "from", from, "to", next, "loop_count", s.LoopCount)

		if next == model.PhaseDone {
			s.Finalize(c.now(), false, "")
			metrics.SessionsFinalized.WithLabelValues("complete").Inc()
			break
		}
		s.Phase = next
	}
	return nil
}

func (c *Controller) cancel(st *state, cause error) error {
	s := st.session
	phase := s.Phase
	if err := c.aggregator.Apply(s); err != nil {
		st.log.Warn("partial assessment failed", "error", err)
	}
	s.Finalize(c.now(), true, fmt.Sprintf("cancelled during %s: %v", phase, cause))
	metrics.SessionsFinalized.WithLabelValues("incomplete").Inc()
	st.log.Warn("session cancelled", "phase", phase, "evidence", len(s.Evidence), "error", cause)

	if errors.Is(cause, model.ErrSessionCancelled) {
		return cause
	}
	return fmt.Errorf("%w during %s: %w", model.ErrSessionCancelled, phase, cause)
}
