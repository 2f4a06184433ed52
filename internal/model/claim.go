package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Claim is a normalized proposition tracked by an analysis session
type Claim struct {
	ID         string      `json:"id"`
	Text       string      `json:"text"`                  // Normalized text, also the dedup key
	Polarity   Polarity    `json:"polarity"`              // assertion or negation
	TruthValue TruthValue  `json:"truth_value"`           // true, false or unknown
	Origin     TruthOrigin `json:"origin,omitempty"`      // How the truth value was fixed
	OriginEdge *Edge       `json:"origin_edge,omitempty"` // Edge that derived the value, if any
}

// Polarity marks whether a claim asserts or negates its proposition
type Polarity string

const (
	PolarityAssertion Polarity = "assertion"
	PolarityNegation  Polarity = "negation"
)

// ParsePolarity parses a polarity, defaulting to assertion for empty input
func ParsePolarity(s string) (Polarity, error) {
	switch Polarity(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolarityAssertion:
		return PolarityAssertion, nil
	case PolarityNegation:
		return PolarityNegation, nil
	default:
		return "", &InvalidClaimError{Reason: "unknown polarity " + s}
	}
}

// TruthValue is the three-valued truth state of a claim
type TruthValue string

const (
	TruthUnknown TruthValue = "unknown"
	TruthTrue    TruthValue = "true"
	TruthFalse   TruthValue = "false"
)

// IsKnown reports whether the value is true or false
func (v TruthValue) IsKnown() bool {
	return v == TruthTrue || v == TruthFalse
}

// ParseTruthValue parses true/false/unknown
func ParseTruthValue(s string) (TruthValue, error) {
	switch TruthValue(strings.ToLower(strings.TrimSpace(s))) {
	case "", TruthUnknown:
		return TruthUnknown, nil
	case TruthTrue:
		return TruthTrue, nil
	case TruthFalse:
		return TruthFalse, nil
	default:
		return "", &InvalidClaimError{Reason: "unknown truth value " + s}
	}
}

// TruthOrigin records how a claim's truth value was fixed
type TruthOrigin string

const (
	OriginAsserted     TruthOrigin = "asserted"
	OriginModusPonens  TruthOrigin = "modus_ponens"
	OriginModusTollens TruthOrigin = "modus_tollens"
)

// NormalizeClaimText canonicalizes claim text: NFC, case folded, whitespace
// collapsed, trailing sentence punctuation removed.
func NormalizeClaimText(text string) string {
	s := norm.NFC.String(text)
	s = cases.Fold().String(s) // Casers are stateful; one per call
	s = strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == ';' || unicode.IsSpace(r)
	})
	return s
}

// ClaimID derives the stable id for already-normalized claim text
func ClaimID(normalized string) string {
	return "cl_" + contentHash(domainClaim, 16, normalized)
}

// NewClaim normalizes text and builds a claim with unknown truth value
func NewClaim(text string, polarity Polarity) (*Claim, error) {
	normalized := NormalizeClaimText(text)
	if normalized == "" {
		return nil, &InvalidClaimError{Reason: "empty claim text"}
	}
	if polarity == "" {
		polarity = PolarityAssertion
	}
	return &Claim{
		ID:         ClaimID(normalized),
		Text:       normalized,
		Polarity:   polarity,
		TruthValue: TruthUnknown,
	}, nil
}
