package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// EvidenceItem is a deduplicated evidence record attached to one claim
type EvidenceItem struct {
	ID          string      `json:"id"`
	ClaimID     string      `json:"claim_id"`
	Tier        SourceTier  `json:"source_tier"`
	Stance      Stance      `json:"stance"`
	Strength    float64     `json:"strength"`              // Clamped to [0,1]
	RetrievedAt time.Time   `json:"retrieved_at"`
	DedupKey    string      `json:"dedup_key"`
	Source      string      `json:"source,omitempty"`     // URL or snippet
	Title       string      `json:"title,omitempty"`
	Dimensions  []Dimension `json:"dimensions,omitempty"` // Tags assigned at ingestion
	Query       string      `json:"query,omitempty"`      // Query that produced the item
	Strategy    string      `json:"strategy,omitempty"`   // Planner strategy of that query
	Seq         int         `json:"seq"`                  // Insertion order within the session
}

// AppliesTo reports whether the item is tagged for the dimension.
// Untagged evidence counts toward empirical support only.
func (e *EvidenceItem) AppliesTo(d Dimension) bool {
	if len(e.Dimensions) == 0 {
		return d == DimensionEmpiricalSupport
	}
	for _, tag := range e.Dimensions {
		if tag == d {
			return true
		}
	}
	return false
}

// SourceTier is the coarse source-quality classification of evidence
type SourceTier string

const (
	TierPeerReviewed SourceTier = "peer_reviewed"
	TierPreprint     SourceTier = "preprint"
	TierGeneralWeb   SourceTier = "general_web"
	TierSocial       SourceTier = "social"
	TierUnknown      SourceTier = "unknown"
)

// Weight returns the fixed quality weight of the tier. It is used both for
// ordering evidence and as the likelihood-ratio input to the aggregator.
func (t SourceTier) Weight() float64 {
	switch t {
	case TierPeerReviewed:
		return 1.0
	case TierPreprint:
		return 0.7
	case TierGeneralWeb:
		return 0.3
	case TierSocial:
		return 0.1
	default:
		return 0.05
	}
}

// ParseSourceTier parses a tier name; empty input maps to unknown
func ParseSourceTier(s string) (SourceTier, error) {
	switch t := SourceTier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierPeerReviewed, TierPreprint, TierGeneralWeb, TierSocial, TierUnknown:
		return t, nil
	case "":
		return TierUnknown, nil
	default:
		return "", fmt.Errorf("unknown source tier %q", s)
	}
}

// Stance is the direction of evidence relative to its claim
type Stance string

const (
	StanceSupporting    Stance = "supporting"
	StanceContradicting Stance = "contradicting"
	StanceNeutral       Stance = "neutral"
)

// Sign returns +1 for supporting, -1 for contradicting and 0 otherwise
func (s Stance) Sign() float64 {
	switch s {
	case StanceSupporting:
		return 1
	case StanceContradicting:
		return -1
	default:
		return 0
	}
}

// ParseStance parses a stance; empty input maps to neutral
func ParseStance(s string) (Stance, error) {
	switch st := Stance(strings.ToLower(strings.TrimSpace(s))); st {
	case StanceSupporting, StanceContradicting, StanceNeutral:
		return st, nil
	case "":
		return StanceNeutral, nil
	default:
		return "", fmt.Errorf("unknown stance %q", s)
	}
}

// ClampStrength bounds strength to [0,1]; NaN becomes 0
func ClampStrength(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// EvidenceDedupKey builds (claimId, tier, strength rounded to 2 places, sourceHash)
func EvidenceDedupKey(claimID string, tier SourceTier, strength float64, source string) string {
	return fmt.Sprintf("%s|%s|%.2f|%s", claimID, tier, math.Round(ClampStrength(strength)*100)/100, SourceHash(source))
}

// SourceHash hashes a URL or snippet after trimming surrounding whitespace
func SourceHash(source string) string {
	return contentHash(domainSource, 16, strings.TrimSpace(source))
}

// EvidenceID derives the stable evidence id from its dedup key
func EvidenceID(dedupKey string) string {
	return "ev_" + contentHash(domainEvidence, 16, dedupKey)
}
