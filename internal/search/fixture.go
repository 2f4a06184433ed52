package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ppiankov/assay/internal/model"
)

// FixtureEntry is a canned result returned for queries containing every
// Match term. An entry with no terms matches every query.
type FixtureEntry struct {
	Match  []string `yaml:"match"`
	Result Result   `yaml:",inline"`
}

// FixtureOutage makes queries containing every Match term fail. Failures
// lists how many attempts fail before the query succeeds; 0 fails forever.
type FixtureOutage struct {
	Match    []string `yaml:"match"`
	Failures int      `yaml:"failures"`
}

// FixtureService answers queries from pre-collected results, for offline
// analysis and tests. Results keep their listed order as rank.
type FixtureService struct {
	entries  []FixtureEntry
	outages  []FixtureOutage
	mu       sync.Mutex
	attempts map[string]int
}

// NewFixtureService creates a fixture backend
func NewFixtureService(entries []FixtureEntry, outages []FixtureOutage) *FixtureService {
	return &FixtureService{
		entries:  entries,
		outages:  outages,
		attempts: make(map[string]int),
	}
}

func (f *FixtureService) Search(ctx context.Context, req Request) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := queryTerms(req.Query)

	for _, o := range f.outages {
		if !matches(terms, o.Match) {
			continue
		}
		f.mu.Lock()
		f.attempts[req.Query]++
		n := f.attempts[req.Query]
		f.mu.Unlock()
		if o.Failures == 0 || n <= o.Failures {
			return nil, &TransientError{Err: fmt.Errorf("fixture outage for %q (attempt %d)", req.Query, n)}
		}
	}

	var out []Result
	for _, e := range f.entries {
		if !matches(terms, e.Match) || !inRange(e.Result.PublishedDate, req.DateRange) {
			continue
		}
		out = append(out, e.Result)
		if req.MaxResults > 0 && len(out) == req.MaxResults {
			break
		}
	}
	return out, nil
}

func queryTerms(q string) map[string]bool {
	terms := make(map[string]bool)
	for _, t := range strings.Fields(model.NormalizeClaimText(q)) {
		terms[t] = true
	}
	return terms
}

func matches(terms map[string]bool, match []string) bool {
	for _, m := range match {
		for _, t := range strings.Fields(model.NormalizeClaimText(m)) {
			if !terms[t] {
				return false
			}
		}
	}
	return true
}
