// Package score turns a session's evidence and graph state into per-dimension
// posteriors. Scoring is pure: the same session always yields the same
// dimensions, regardless of the order evidence arrived in.
package score

import (
	"math"

	"github.com/ppiankov/assay/internal/model"
)

// Prior bounds. An idea is never assumed more likely than not, and never
// ruled out before evidence.
const (
	MaxPrior = 0.5
	MinPrior = 0.02
)

// Policy is a confidence update rule. Prior and Delta operate on probabilities
// and log-odds respectively; Structural returns a log-odds adjustment derived
// from graph state for one dimension.
type Policy interface {
	Prior(extraordinariness float64) float64
	Delta(item *model.EvidenceItem) float64
	Structural(s *model.AnalysisSession, d model.Dimension) float64
}

// LogOddsPolicy is the default additive log-odds update
type LogOddsPolicy struct {
	FallacyPenalty       float64
	ContradictionPenalty float64
	RootTruthWeight      float64
}

// NewLogOddsPolicy builds the default policy from scoring config
func NewLogOddsPolicy(cfg model.ScoringConfig) *LogOddsPolicy {
	return &LogOddsPolicy{
		FallacyPenalty:       cfg.FallacyPenalty,
		ContradictionPenalty: cfg.ContradictionPenalty,
		RootTruthWeight:      cfg.RootTruthWeight,
	}
}

// Prior maps extraordinariness in [0,1] to P0 = clamp(0.5 - 0.4e, 0.02, 0.5)
func (p *LogOddsPolicy) Prior(extraordinariness float64) float64 {
	e := model.ClampUnit(extraordinariness)
	return clamp(0.5-0.4*e, MinPrior, MaxPrior)
}

// Delta is qualityWeight(tier) * strength * sign(stance)
func (p *LogOddsPolicy) Delta(item *model.EvidenceItem) float64 {
	return item.Tier.Weight() * model.ClampStrength(item.Strength) * item.Stance.Sign()
}

// Structural penalizes theoretical soundness for circular reasoning and
// contradictions, and moves it with a derived truth value of the root claim.
// Other dimensions are unaffected.
func (p *LogOddsPolicy) Structural(s *model.AnalysisSession, d model.Dimension) float64 {
	if d != model.DimensionTheoreticalSoundness {
		return 0
	}
	adj := -p.FallacyPenalty*float64(len(s.Graph.Fallacies)) -
		p.ContradictionPenalty*float64(len(s.Graph.Contradictions))

	if root, ok := s.Claims[s.RootClaimID]; ok && derived(root.Origin) {
		switch root.TruthValue {
		case model.TruthTrue:
			adj += p.RootTruthWeight
		case model.TruthFalse:
			adj -= p.RootTruthWeight
		}
	}
	return adj
}

func derived(o model.TruthOrigin) bool {
	return o == model.OriginModusPonens || o == model.OriginModusTollens
}

// Logit returns ln(p/(1-p))
func Logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

// Sigmoid is the inverse of Logit
func Sigmoid(l float64) float64 {
	return 1 / (1 + math.Exp(-l))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
