package model

import (
	"fmt"
	"strings"
)

// EdgeKind is the logical relation carried by a dependency edge
type EdgeKind string

const (
	EdgeNecessary  EdgeKind = "necessary"
	EdgeSufficient EdgeKind = "sufficient"
	EdgeBoth       EdgeKind = "both"
)

// Necessary reports whether From is necessary for To
func (k EdgeKind) Necessary() bool { return k == EdgeNecessary || k == EdgeBoth }

// Sufficient reports whether From is sufficient for To
func (k EdgeKind) Sufficient() bool { return k == EdgeSufficient || k == EdgeBoth }

// ParseEdgeKind parses necessary/sufficient/both
func ParseEdgeKind(s string) (EdgeKind, error) {
	switch k := EdgeKind(strings.ToLower(strings.TrimSpace(s))); k {
	case EdgeNecessary, EdgeSufficient, EdgeBoth:
		return k, nil
	default:
		return "", fmt.Errorf("unknown edge kind %q", s)
	}
}

// EdgeStatus separates inference edges from edges caught in a cycle
type EdgeStatus string

const (
	EdgeValid    EdgeStatus = "valid"
	EdgeCircular EdgeStatus = "circular"
)

// Edge is a directed dependency between two claims
type Edge struct {
	From   string     `json:"from"`
	To     string     `json:"to"`
	Kind   EdgeKind   `json:"kind"`
	Status EdgeStatus `json:"status"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -[%s]-> %s", e.From, e.Kind, e.To)
}

// FallacyKind classifies a reasoning fallacy
type FallacyKind string

const FallacyCircularReasoning FallacyKind = "circular_reasoning"

// Fallacy is a recovered reasoning defect surfaced in the report
type Fallacy struct {
	Kind        FallacyKind `json:"kind"`
	Path        []string    `json:"path"`  // Claim ids, first == last
	Edges       []Edge      `json:"edges"` // Rejected edge first, then the cycle it closed
	Description string      `json:"description"`
}

// Assignment is one way a claim received a truth value
type Assignment struct {
	ClaimID string      `json:"claim_id"`
	Value   TruthValue  `json:"value"`
	Origin  TruthOrigin `json:"origin"`
	Edge    *Edge       `json:"edge,omitempty"`
}

// Contradiction records a claim forced both true and false. Existing is kept
// on the claim; Attempted is what propagation tried to set.
type Contradiction struct {
	ClaimID   string     `json:"claim_id"`
	Existing  Assignment `json:"existing"`
	Attempted Assignment `json:"attempted"`
	Edge      Edge       `json:"edge"`
}

// DependencyGraph is the serializable state of the session's claim graph
type DependencyGraph struct {
	Edges          []Edge          `json:"edges"`
	Fallacies      []Fallacy       `json:"fallacies"`
	Contradictions []Contradiction `json:"contradictions"`
}
