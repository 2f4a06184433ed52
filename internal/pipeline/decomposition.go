package pipeline

import (
	"errors"
	"fmt"

	"github.com/ppiankov/assay/internal/evidence"
	"github.com/ppiankov/assay/internal/metrics"
	"github.com/ppiankov/assay/internal/model"
)

// RootRef refers to the session's root claim in a Decomposition
const RootRef = "root"

// Decomposition is the structured output of claim decomposition. Claim
// references are keys of Claims, RootRef (or empty) for the idea itself, or
// existing claim ids.
type Decomposition struct {
	Claims     []ClaimSpec
	Edges      []EdgeSpec
	Assertions []AssertionSpec
	Evidence   []EvidenceSpec
}

// ClaimSpec is a sub-claim to add
type ClaimSpec struct {
	Key      string
	Text     string
	Polarity model.Polarity
}

// EdgeSpec is a dependency edge between two claim references
type EdgeSpec struct {
	From string
	To   string
	Kind model.EdgeKind
}

// AssertionSpec fixes the truth value of a referenced claim
type AssertionSpec struct {
	Claim string
	Value model.TruthValue
}

// EvidenceSpec is a pre-collected evidence record for a referenced claim.
// Record.ClaimID is ignored.
type EvidenceSpec struct {
	Claim  string
	Record evidence.Record
}

// apply adds claims, edges, assertions and evidence in that order. Cycles
// and contradictions are recovered; unknown references fail the phase.
func (c *Controller) apply(st *state, d *Decomposition) error {
	s := st.session
	refs := map[string]string{RootRef: s.RootClaimID}

	for _, cs := range d.Claims {
		claim, added, err := s.AddClaim(cs.Text, cs.Polarity)
		if err != nil {
			return fmt.Errorf("claim %q: %w", cs.Key, err)
		}
		if cs.Key != "" {
			refs[cs.Key] = claim.ID
		}
		if !added {
			st.log.Debug("claim already known", "key", cs.Key, "claim_id", claim.ID)
		}
	}

	resolve := func(ref string) (string, error) {
		if ref == "" {
			return s.RootClaimID, nil
		}
		if id, ok := refs[ref]; ok {
			return id, nil
		}
		if _, ok := s.Claims[ref]; ok {
			return ref, nil
		}
		return "", &model.InvalidClaimError{ClaimID: ref, Reason: "unknown claim reference"}
	}

	for _, e := range d.Edges {
		from, err := resolve(e.From)
		if err != nil {
			return err
		}
		to, err := resolve(e.To)
		if err != nil {
			return err
		}
		fallacy, err := st.graph.AddEdge(from, to, e.Kind)
		if err != nil {
			return fmt.Errorf("edge %s -> %s: %w", e.From, e.To, err)
		}
		if fallacy != nil {
			metrics.Fallacies.WithLabelValues(string(fallacy.Kind)).Inc()
			st.log.Warn("circular reasoning", "from", e.From, "to", e.To, "path", fallacy.Path)
		}
	}

	for _, a := range d.Assertions {
		id, err := resolve(a.Claim)
		if err != nil {
			return err
		}
		if err := st.graph.Assert(id, a.Value); err != nil {
			if !errors.Is(err, model.ErrContradiction) {
				return fmt.Errorf("assert %s: %w", a.Claim, err)
			}
			metrics.Contradictions.Inc()
			st.log.Warn("conflicting assertion", "claim", a.Claim, "error", err)
		}
	}

	added := 0
	for _, e := range d.Evidence {
		id, err := resolve(e.Claim)
		if err != nil {
			return err
		}
		rec := e.Record
		rec.ClaimID = id
		item, ok, err := st.store.Add(rec)
		if err != nil {
			return fmt.Errorf("evidence for %s: %w", e.Claim, err)
		}
		result := "duplicate"
		if ok {
			result = "added"
			added++
		}
		metrics.EvidenceIngested.WithLabelValues(string(item.Tier), result).Inc()
	}

	st.log.Info("decomposed",
		"claims", len(s.Claims),
		"edges", len(s.Graph.Edges),
		"fallacies", len(s.Graph.Fallacies),
		"evidence_added", added)
	return nil
}
