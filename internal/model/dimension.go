package model

import (
	"fmt"
	"strings"
)

// Dimension is one independent axis of the merit assessment
type Dimension string

const (
	DimensionNovelty              Dimension = "novelty"
	DimensionTheoreticalSoundness Dimension = "theoretical_soundness"
	DimensionEmpiricalSupport     Dimension = "empirical_support"
	DimensionFeasibility          Dimension = "feasibility"
	DimensionImpact               Dimension = "impact"
)

// AllDimensions lists every dimension in report order
var AllDimensions = []Dimension{
	DimensionNovelty,
	DimensionTheoreticalSoundness,
	DimensionEmpiricalSupport,
	DimensionFeasibility,
	DimensionImpact,
}

// ParseDimension parses a dimension name
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllDimensions {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown dimension %q", s)
}

// Bucket is the coarse label derived from a posterior
type Bucket string

const (
	BucketVeryLow  Bucket = "very_low"
	BucketLow      Bucket = "low"
	BucketModerate Bucket = "moderate"
	BucketHigh     Bucket = "high"
	BucketVeryHigh Bucket = "very_high"
)

// ConfidenceDimension holds the recomputed posterior for one dimension
type ConfidenceDimension struct {
	Name          Dimension `json:"name"`
	Prior         float64   `json:"prior"`
	LogOdds       float64   `json:"log_odds"`
	Posterior     float64   `json:"posterior"`
	Bucket        Bucket    `json:"bucket"`
	EvidenceCount int       `json:"evidence_count"`
	Structural    float64   `json:"structural_adjustment,omitempty"` // Log-odds contributed by graph state
}
