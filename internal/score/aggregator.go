package score

import (
	"fmt"
	"math"
	"sort"

	"github.com/ppiankov/assay/internal/model"
)

// Aggregator computes confidence dimensions using a Policy
type Aggregator struct {
	policy     Policy
	thresholds model.BucketThresholds
}

// NewAggregator creates an aggregator. A nil policy selects LogOddsPolicy
// with default penalties.
func NewAggregator(policy Policy, thresholds model.BucketThresholds) *Aggregator {
	if policy == nil {
		policy = NewLogOddsPolicy(model.DefaultConfig().Scoring)
	}
	return &Aggregator{policy: policy, thresholds: thresholds}
}

// Apply recomputes every dimension and replaces the session's dimensions and
// signals. Finalized sessions are read-only.
func (a *Aggregator) Apply(s *model.AnalysisSession) error {
	if err := s.CheckMutable(); err != nil {
		return err
	}
	dims, signals := a.Aggregate(s)
	s.Dimensions = dims
	s.Signals = signals
	return nil
}

// Aggregate computes all five dimensions from scratch without touching the
// session. Evidence is summed in (claimId, evidenceId) order.
func (a *Aggregator) Aggregate(s *model.AnalysisSession) (map[model.Dimension]*model.ConfidenceDimension, []model.Signal) {
	evidence := s.EvidenceList()

	p0 := a.policy.Prior(s.ExtraordinarinessScore)
	l0 := Logit(p0)

	signals := []model.Signal{{
		Type:        model.SignalPrior,
		Severity:    model.SeverityInfo,
		Description: fmt.Sprintf("Prior %.3f from extraordinariness %.2f", p0, s.ExtraordinarinessScore),
		Data: map[string]any{
			"extraordinariness": s.ExtraordinarinessScore,
			"prior":             p0,
			"log_odds":          l0,
		},
	}}

	dims := make(map[model.Dimension]*model.ConfidenceDimension, len(model.AllDimensions))
	for _, d := range model.AllDimensions {
		var sum, supporting, contradicting float64
		count := 0
		for _, item := range evidence {
			if !item.AppliesTo(d) {
				continue
			}
			delta := a.policy.Delta(item)
			sum += delta
			count++
			if delta > 0 {
				supporting += delta
			} else if delta < 0 {
				contradicting -= delta
			}
		}

		structural := a.policy.Structural(s, d)
		l := l0 + sum + structural
		p := Sigmoid(l)

		dims[d] = &model.ConfidenceDimension{
			Name:          d,
			Prior:         p0,
			LogOdds:       l,
			Posterior:     p,
			Bucket:        Bucketize(p, a.thresholds),
			EvidenceCount: count,
			Structural:    structural,
		}

		signals = append(signals, balanceSignal(d, count, supporting, contradicting, l0, l, p))
		if structural != 0 {
			signals = append(signals, structuralSignal(s, d, structural))
		}
	}

	signals = append(signals, tierSignal(evidence))
	if n := len(s.EvidenceGaps); n > 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalEvidenceGap,
			Severity:    model.SeverityWarning,
			Description: fmt.Sprintf("%d queries failed; their evidence is missing from the assessment", n),
			Data:        map[string]any{"gaps": n},
		})
	}
	if n := len(s.OpenQuestions); n > 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalOpenQuestions,
			Severity:    model.SeverityInfo,
			Description: fmt.Sprintf("%d clarifying questions remain unresolved", n),
			Data:        map[string]any{"open_questions": n},
		})
	}

	return dims, signals
}

func balanceSignal(d model.Dimension, count int, supporting, contradicting, l0, l, p float64) model.Signal {
	data := map[string]any{
		"evidence_count":     count,
		"supporting_mass":    round3(supporting),
		"contradicting_mass": round3(contradicting),
		"prior_log_odds":     l0,
		"log_odds":           l,
		"posterior":          p,
	}
	if count == 0 {
		return model.Signal{
			Type:        model.SignalNoEvidence,
			Severity:    model.SeverityWarning,
			Dimension:   d,
			Description: fmt.Sprintf("No evidence for %s; posterior %.3f rests on the prior", d, p),
			Data:        data,
		}
	}

	severity := model.SeverityInfo
	if contradicting > supporting {
		severity = model.SeverityWarning
	}
	return model.Signal{
		Type:      model.SignalEvidenceBalance,
		Severity:  severity,
		Dimension: d,
		Description: fmt.Sprintf("%s: %d items, supporting %.2f vs contradicting %.2f, posterior %.3f",
			d, count, supporting, contradicting, p),
		Data: data,
	}
}

func structuralSignal(s *model.AnalysisSession, d model.Dimension, adj float64) model.Signal {
	severity := model.SeverityInfo
	if adj < 0 {
		severity = model.SeverityWarning
	}
	if len(s.Graph.Contradictions) > 0 {
		severity = model.SeverityCritical
	}
	return model.Signal{
		Type:        model.SignalStructural,
		Severity:    severity,
		Dimension:   d,
		Description: fmt.Sprintf("Graph state adjusts %s by %+.2f log-odds", d, adj),
		Data: map[string]any{
			"fallacies":      len(s.Graph.Fallacies),
			"contradictions": len(s.Graph.Contradictions),
			"adjustment":     adj,
		},
	}
}

func tierSignal(evidence []*model.EvidenceItem) model.Signal {
	counts := make(map[string]int)
	for _, item := range evidence {
		counts[string(item.Tier)]++
	}
	tiers := make([]string, 0, len(counts))
	for t := range counts {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool {
		return model.SourceTier(tiers[i]).Weight() > model.SourceTier(tiers[j]).Weight()
	})

	data := make(map[string]any, len(counts)+1)
	for t, n := range counts {
		data[t] = n
	}
	data["total"] = len(evidence)

	severity := model.SeverityInfo
	strong := counts[string(model.TierPeerReviewed)] + counts[string(model.TierPreprint)]
	if len(evidence) > 0 && strong == 0 {
		severity = model.SeverityWarning
	}

	desc := fmt.Sprintf("%d evidence items", len(evidence))
	for i, t := range tiers {
		if i == 0 {
			desc += ": "
		} else {
			desc += ", "
		}
		desc += fmt.Sprintf("%d %s", counts[t], t)
	}
	return model.Signal{
		Type:        model.SignalTierDistribution,
		Severity:    severity,
		Description: desc,
		Data:        data,
	}
}

// Bucketize labels a posterior. Each threshold is the exclusive upper bound
// of its bucket, so a posterior equal to a threshold falls in the next one.
func Bucketize(p float64, t model.BucketThresholds) model.Bucket {
	switch {
	case p < t.VeryLow:
		return model.BucketVeryLow
	case p < t.Low:
		return model.BucketLow
	case p < t.Moderate:
		return model.BucketModerate
	case p < t.High:
		return model.BucketHigh
	default:
		return model.BucketVeryHigh
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
