package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ppiankov/assay/internal/evidence"
	"github.com/ppiankov/assay/internal/logger"
	"github.com/ppiankov/assay/internal/metrics"
	"github.com/ppiankov/assay/internal/model"
	"github.com/ppiankov/assay/internal/search"
	"github.com/ppiankov/assay/internal/worker"
)

// StanceOracle supplies a known stance for a result URL relative to a claim.
// Results without an annotation are neutral.
type StanceOracle interface {
	Stance(claimID, url string) (model.Stance, bool)
}

// SleepFunc waits between retries; it returns early with ctx's error
type SleepFunc func(ctx context.Context, d time.Duration) error

// Outcome is the final result of one query after retries
type Outcome struct {
	Query    Query
	Results  []search.Result
	Attempts int
	Err      error
}

// GetError returns the outcome error
func (o *Outcome) GetError() error { return o.Err }

// IngestStats summarizes one fetch round
type IngestStats struct {
	Queries    int
	Results    int
	Added      int
	Duplicates int
	Gaps       int
}

// Fetcher issues planned queries concurrently and feeds the results to the
// evidence store through a single writer
type Fetcher struct {
	service     search.Service
	classifier  *TierClassifier
	oracle      StanceOracle
	concurrency int
	timeout     time.Duration
	retries     int
	backoff     time.Duration
	maxResults  int
	rankDecay   float64
	sleep       SleepFunc
	log         *logger.Logger
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithStanceOracle sets the stance source
func WithStanceOracle(o StanceOracle) FetcherOption {
	return func(f *Fetcher) { f.oracle = o }
}

// WithSleep replaces the retry sleep, mainly for tests
func WithSleep(sleep SleepFunc) FetcherOption {
	return func(f *Fetcher) { f.sleep = sleep }
}

// WithFetchLogger sets the logger
func WithFetchLogger(l *logger.Logger) FetcherOption {
	return func(f *Fetcher) { f.log = l }
}

// NewFetcher creates a fetcher from search and planner settings
func NewFetcher(service search.Service, classifier *TierClassifier, sc model.SearchConfig, pc model.PlannerConfig, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		service:     service,
		classifier:  classifier,
		concurrency: sc.Concurrency,
		timeout:     sc.Timeout,
		retries:     sc.Retries,
		backoff:     500 * time.Millisecond,
		maxResults:  pc.MaxResults,
		rankDecay:   pc.RankDecay,
		sleep:       sleepCtx,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.classifier == nil {
		f.classifier = NewTierClassifier(nil)
	}
	if f.concurrency <= 0 {
		f.concurrency = 4
	}
	if f.timeout <= 0 {
		f.timeout = 10 * time.Second
	}
	if f.retries < 0 {
		f.retries = 0
	}
	return f
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Strength is the result strength for a zero-based rank
func (f *Fetcher) Strength(rank int) float64 {
	return 1 / (1 + float64(rank)*f.rankDecay)
}

// Run fetches the queries and ingests their results into store. On
// cancellation the completed outcomes are still ingested and ctx's error is
// returned.
func (f *Fetcher) Run(ctx context.Context, s *model.AnalysisSession, store *evidence.Store, queries []Query) (IngestStats, error) {
	outcomes := f.Fetch(ctx, queries)
	stats, err := f.Ingest(s, store, outcomes)
	if err != nil {
		return stats, err
	}
	return stats, ctx.Err()
}

type queryJob struct {
	f     *Fetcher
	query Query
}

func (j *queryJob) Execute(ctx context.Context) worker.Result {
	return j.f.fetchOne(ctx, j.query)
}

// Fetch runs every query through a bounded worker pool and returns the
// outcomes ordered by query index. Queries not started before cancellation
// are absent.
func (f *Fetcher) Fetch(ctx context.Context, queries []Query) []*Outcome {
	pool := worker.NewPool(ctx, f.concurrency)
	pool.Start()
	for _, q := range queries {
		if err := pool.Submit(&queryJob{f: f, query: q}); err != nil {
			break
		}
	}

	results := pool.Wait()
	outcomes := make([]*Outcome, 0, len(results))
	for _, r := range results {
		outcomes = append(outcomes, r.(*Outcome))
	}
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].Query.Index < outcomes[j].Query.Index
	})
	return outcomes
}

func (f *Fetcher) fetchOne(ctx context.Context, q Query) *Outcome {
	out := &Outcome{Query: q}
	req := search.Request{Query: q.Text, MaxResults: f.maxResults, DateRange: q.DateRange}
	strategy := string(q.Strategy)

	for attempt := 1; attempt <= f.retries+1; attempt++ {
		out.Attempts = attempt

		qctx, cancel := context.WithTimeout(ctx, f.timeout)
		start := time.Now()
		results, err := f.service.Search(qctx, req)
		cancel()
		metrics.SearchDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.SearchRequests.WithLabelValues(strategy, "ok").Inc()
			out.Results = results
			out.Err = nil
			return out
		}
		out.Err = err

		if ctx.Err() != nil {
			metrics.SearchRequests.WithLabelValues(strategy, "cancelled").Inc()
			out.Err = fmt.Errorf("%w: %w", model.ErrSessionCancelled, ctx.Err())
			return out
		}
		if !search.IsTransient(err) {
			metrics.SearchRequests.WithLabelValues(strategy, "error").Inc()
			return out
		}
		metrics.SearchRequests.WithLabelValues(strategy, "retry").Inc()

		if attempt <= f.retries {
			f.log.Debug("search attempt failed, retrying", "query", q.Text, "attempt", attempt, "error", err)
			if err := f.sleep(ctx, f.backoff*time.Duration(1<<(attempt-1))); err != nil {
				out.Err = fmt.Errorf("%w: %w", model.ErrSessionCancelled, err)
				return out
			}
		}
	}
	return out
}

// Ingest adds outcomes to the store in query order. Failed queries become
// evidence gaps with a neutral placeholder on the query's claim; cancelled
// queries are dropped.
func (f *Fetcher) Ingest(s *model.AnalysisSession, store *evidence.Store, outcomes []*Outcome) (IngestStats, error) {
	var stats IngestStats
	for _, o := range outcomes {
		if isCancellation(o.Err) {
			continue
		}
		stats.Queries++
		s.Queries = append(s.Queries, o.Query.Text)

		if o.Err != nil {
			if err := f.recordGap(s, store, o); err != nil {
				return stats, err
			}
			stats.Gaps++
			continue
		}

		claimID := targetClaim(s, o.Query)
		for rank, r := range o.Results {
			stats.Results++
			rec := evidence.Record{
				ClaimID:    claimID,
				Tier:       f.classifier.Classify(r.URL, r.VenueType),
				Stance:     model.StanceNeutral,
				Strength:   f.Strength(rank),
				Source:     r.URL,
				Title:      r.Title,
				Dimensions: o.Query.Dimensions,
				Query:      o.Query.Text,
				Strategy:   string(o.Query.Strategy),
			}
			if rec.Source == "" {
				rec.Source = r.Snippet
			}
			if f.oracle != nil {
				if st, ok := f.oracle.Stance(claimID, r.URL); ok {
					rec.Stance = st
				}
			}

			_, added, err := store.Add(rec)
			if err != nil {
				return stats, fmt.Errorf("ingest %q: %w", o.Query.Text, err)
			}
			result := "duplicate"
			if added {
				result = "added"
				stats.Added++
			} else {
				stats.Duplicates++
			}
			metrics.EvidenceIngested.WithLabelValues(string(rec.Tier), result).Inc()
		}
	}
	return stats, nil
}

func (f *Fetcher) recordGap(s *model.AnalysisSession, store *evidence.Store, o *Outcome) error {
	unavailable := &model.SearchUnavailableError{Query: o.Query.Text, Attempts: o.Attempts, Err: o.Err}
	f.log.Warn("evidence gap", "query", o.Query.Text, "strategy", o.Query.Strategy, "attempts", o.Attempts, "error", o.Err)

	item, _, err := store.Add(evidence.Record{
		ClaimID:    targetClaim(s, o.Query),
		Tier:       model.TierUnknown,
		Stance:     model.StanceNeutral,
		Strength:   0,
		Source:     "gap:" + o.Query.Text,
		Title:      "search unavailable",
		Dimensions: o.Query.Dimensions,
		Query:      o.Query.Text,
		Strategy:   string(o.Query.Strategy),
	})
	if err != nil {
		return fmt.Errorf("record gap: %w", err)
	}

	s.EvidenceGaps = append(s.EvidenceGaps, model.EvidenceGap{
		Query:      o.Query.Text,
		Strategy:   string(o.Query.Strategy),
		Reason:     unavailable.Error(),
		Attempts:   o.Attempts,
		EvidenceID: item.ID,
	})
	metrics.EvidenceGaps.Inc()
	return nil
}

// targetClaim is the claim a query gathers evidence for, the root when unset
func targetClaim(s *model.AnalysisSession, q Query) string {
	if q.ClaimID == "" {
		return s.RootClaimID
	}
	return q.ClaimID
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, model.ErrSessionCancelled)
}
