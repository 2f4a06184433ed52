// Package query plans search queries for an idea and turns their results
// into evidence.
package query

import (
	"strings"
	"time"
	"unicode"

	"github.com/ppiankov/assay/internal/model"
	"github.com/ppiankov/assay/internal/search"
)

// Strategy is a query generation template family
type Strategy string

const (
	StrategyDirect         Strategy = "direct"
	StrategyConceptual     Strategy = "conceptual"
	StrategyCritical       Strategy = "critical"
	StrategyTemporal       Strategy = "temporal"
	StrategyDomainSpecific Strategy = "domain_specific"
)

// Strategies lists all strategies in planning order
var Strategies = []Strategy{
	StrategyDirect,
	StrategyConceptual,
	StrategyCritical,
	StrategyTemporal,
	StrategyDomainSpecific,
}

// Dimensions returns the dimensions evidence from this strategy counts toward
func (s Strategy) Dimensions() []model.Dimension {
	switch s {
	case StrategyDirect:
		return []model.Dimension{model.DimensionEmpiricalSupport}
	case StrategyConceptual:
		return []model.Dimension{model.DimensionTheoreticalSoundness}
	case StrategyCritical:
		return []model.Dimension{model.DimensionEmpiricalSupport, model.DimensionTheoreticalSoundness}
	case StrategyTemporal:
		return []model.Dimension{model.DimensionNovelty}
	case StrategyDomainSpecific:
		return []model.Dimension{model.DimensionFeasibility, model.DimensionImpact}
	default:
		return nil
	}
}

// Query is one planned search
type Query struct {
	Index      int
	Text       string
	Strategy   Strategy
	Dimensions []model.Dimension
	ClaimID    string // Claim the results attach to
	DateRange  *search.DateRange
}

// recentWindow bounds "recent" temporal queries
const recentWindow = 3 * 365 * 24 * time.Hour

type template struct {
	suffix string
	recent bool
}

// Suffixes are mostly two words so a query stays distinct from the bare
// subject under the Jaccard cutoff.
var templates = map[Strategy][]template{
	StrategyDirect: {
		{suffix: ""},
		{suffix: "experimental evidence"},
		{suffix: "empirical study"},
		{suffix: "measured results"},
		{suffix: "clinical trial"},
	},
	StrategyConceptual: {
		{suffix: "underlying mechanism"},
		{suffix: "theoretical model"},
		{suffix: "first principles"},
		{suffix: "conceptual framework"},
		{suffix: "theory explanation"},
	},
	StrategyCritical: {
		{suffix: "criticism limitations"},
		{suffix: "failed replication"},
		{suffix: "debunked claims"},
		{suffix: "contradicting evidence"},
		{suffix: "skeptical review"},
	},
	StrategyTemporal: {
		{suffix: "prior art"},
		{suffix: "history development"},
		{suffix: "recent advances", recent: true},
		{suffix: "state of the art"},
		{suffix: "systematic review"},
	},
	StrategyDomainSpecific: {
		{suffix: "practical feasibility"},
		{suffix: "cost analysis"},
		{suffix: "real applications"},
		{suffix: "industry adoption"},
		{suffix: "societal impact"},
	},
}

// Planner generates deduplicated queries. It does no I/O.
type Planner struct {
	cfg model.PlannerConfig
	now func() time.Time
}

// NewPlanner creates a planner
func NewPlanner(cfg model.PlannerConfig) *Planner {
	return &Planner{cfg: cfg, now: time.Now}
}

// WithClock sets the clock used for recent date ranges
func (p *Planner) WithClock(now func() time.Time) *Planner {
	p.now = now
	return p
}

// Plan returns the queries for the session's current claims. Queries that
// duplicate each other, or queries the session already issued, are dropped;
// the first occurrence wins. Each strategy contributes at most
// MaxQueriesPerStrategy queries.
func (p *Planner) Plan(s *model.AnalysisSession) []Query {
	threshold := p.cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.8
	}
	perStrategy := p.cfg.MaxQueriesPerStrategy
	if perStrategy <= 0 {
		perStrategy = 5
	}

	subject := strings.Join(KeyTerms(s.IdeaStatement, p.cfg.MaxKeyTerms), " ")
	if subject == "" {
		return nil
	}

	var seen []map[string]bool
	for _, issued := range s.Queries {
		seen = append(seen, tokenSet(issued))
	}

	var out []Query
	accept := func(text string, st Strategy, claimID string, dr *search.DateRange) bool {
		tokens := tokenSet(text)
		if len(tokens) == 0 {
			return false
		}
		for _, prior := range seen {
			if jaccard(tokens, prior) >= threshold {
				return false
			}
		}
		seen = append(seen, tokens)
		out = append(out, Query{
			Index:      len(out),
			Text:       text,
			Strategy:   st,
			Dimensions: st.Dimensions(),
			ClaimID:    claimID,
			DateRange:  dr,
		})
		return true
	}

	for _, st := range Strategies {
		n := 0
		for _, c := range p.candidates(s, st, subject) {
			if n == perStrategy {
				break
			}
			if accept(c.text, st, c.claimID, c.dateRange) {
				n++
			}
		}
	}
	return out
}

type candidate struct {
	text      string
	claimID   string
	dateRange *search.DateRange
}

func (p *Planner) candidates(s *model.AnalysisSession, st Strategy, subject string) []candidate {
	var out []candidate

	if st == StrategyDomainSpecific {
		for _, d := range p.cfg.Domains {
			if d = strings.TrimSpace(d); d != "" {
				out = append(out, candidate{text: subject + " " + d + " applications", claimID: s.RootClaimID})
			}
		}
	}

	for _, t := range templates[st] {
		c := candidate{text: strings.TrimSpace(subject + " " + t.suffix), claimID: s.RootClaimID}
		if t.recent {
			now := p.now().UTC()
			c.dateRange = &search.DateRange{From: now.Add(-recentWindow), To: now}
		}
		out = append(out, c)
	}

	// Sub-claims are searched directly so their evidence attaches to them
	if st == StrategyDirect {
		for _, id := range s.ClaimIDs() {
			if id == s.RootClaimID {
				continue
			}
			terms := KeyTerms(s.Claims[id].Text, p.cfg.MaxKeyTerms)
			if len(terms) > 0 {
				out = append(out, candidate{text: strings.Join(terms, " "), claimID: id})
			}
		}
	}
	return out
}

// KeyTerms returns up to max distinct non-stopword tokens in order of first
// appearance. max <= 0 means no limit.
func KeyTerms(text string, max int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tok := range Tokenize(text) {
		if stopwords[tok] || seen[tok] || len([]rune(tok)) < 2 {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// Tokenize normalizes text and splits it on anything but letters and digits
func Tokenize(text string) []string {
	return strings.FieldsFunc(model.NormalizeClaimText(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Similarity is the Jaccard index of two texts' token sets
func Similarity(a, b string) float64 {
	return jaccard(tokenSet(a), tokenSet(b))
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range Tokenize(text) {
		set[tok] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "could": true, "do": true, "does": true,
	"for": true, "from": true, "has": true, "have": true, "how": true, "if": true,
	"in": true, "into": true, "is": true, "it": true, "its": true, "may": true,
	"might": true, "of": true, "on": true, "or": true, "should": true, "so": true,
	"than": true, "that": true, "the": true, "their": true, "then": true,
	"there": true, "these": true, "this": true, "to": true, "was": true,
	"we": true, "were": true, "what": true, "when": true, "which": true,
	"will": true, "with": true, "would": true, "without": true, "our": true,
	"using": true, "via": true, "about": true, "all": true,
}
