package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Phase is a state of the analysis state machine
type Phase string

const (
	PhaseCrystallize Phase = "CRYSTALLIZE"
	PhaseMap         Phase = "MAP"
	PhaseDecompose   Phase = "DECOMPOSE"
	PhaseEvaluate    Phase = "EVALUATE"
	PhaseAssess      Phase = "ASSESS"
	PhaseDone        Phase = "DONE"
)

// AnalysisSession is the aggregate root for one evaluated idea
type AnalysisSession struct {
	ID                     string                             `json:"id"`
	IdeaStatement          string                             `json:"idea_statement"`
	RootClaimID            string                             `json:"root_claim_id"`
	Phase                  Phase                              `json:"phase"`
	Claims                 map[string]*Claim                  `json:"claims"`
	Evidence               map[string]*EvidenceItem           `json:"evidence"`
	Graph                  DependencyGraph                    `json:"graph"`
	Dimensions             map[Dimension]*ConfidenceDimension `json:"dimensions"`
	Signals                []Signal                           `json:"signals,omitempty"`
	OpenQuestions          []string                           `json:"open_questions"`
	ResolvedQuestions      []string                           `json:"resolved_questions,omitempty"`
	ExtraordinarinessScore float64                            `json:"extraordinariness_score"`
	LoopCount              int                                `json:"loop_count"`
	Queries                []string                           `json:"queries,omitempty"`
	EvidenceGaps           []EvidenceGap                      `json:"evidence_gaps,omitempty"`
	Incomplete             bool                               `json:"incomplete"`
	CancelReason           string                             `json:"cancel_reason,omitempty"`
	CreatedAt              time.Time                          `json:"created_at"`
	FinalizedAt            *time.Time                         `json:"finalized_at,omitempty"`
	Narrative              *Narrative                         `json:"narrative,omitempty"` // Optional, never affects scores
}

// EvidenceGap records a query whose results could not be retrieved
type EvidenceGap struct {
	Query      string `json:"query"`
	Strategy   string `json:"strategy"`
	Reason     string `json:"reason"`
	Attempts   int    `json:"attempts"`
	EvidenceID string `json:"evidence_id,omitempty"` // Unknown-tier placeholder item
}

// Narrative is an optional prose confidence statement
type Narrative struct {
	Provider  string   `json:"provider"`
	Model     string   `json:"model,omitempty"`
	Text      string   `json:"text,omitempty"`
	CitedURLs []string `json:"cited_urls,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// NewSession validates the idea statement and creates a session in the
// CRYSTALLIZE phase with the idea as its root claim.
func NewSession(idea string, extraordinariness float64, minLength int, now time.Time) (*AnalysisSession, error) {
	statement := strings.TrimSpace(idea)
	if statement == "" || utf8.RuneCountInString(statement) < minLength {
		return nil, &AmbiguousIdeaError{Statement: statement, MinLength: minLength}
	}

	root, err := NewClaim(statement, PolarityAssertion)
	if err != nil {
		return nil, &AmbiguousIdeaError{Statement: statement, MinLength: minLength}
	}

	s := &AnalysisSession{
		ID:                     uuid.Must(uuid.NewV7()).String(),
		IdeaStatement:          statement,
		RootClaimID:            root.ID,
		Phase:                  PhaseCrystallize,
		Claims:                 map[string]*Claim{root.ID: root},
		Evidence:               make(map[string]*EvidenceItem),
		Dimensions:             make(map[Dimension]*ConfidenceDimension),
		OpenQuestions:          []string{},
		ExtraordinarinessScore: ClampUnit(extraordinariness),
		CreatedAt:              now.UTC(),
	}
	return s, nil
}

// ClampUnit bounds v to [0,1]
func ClampUnit(v float64) float64 {
	return ClampStrength(v)
}

// IsFinalized reports whether the session is read-only
func (s *AnalysisSession) IsFinalized() bool {
	return s.FinalizedAt != nil
}

// CheckMutable returns ErrSessionFinalized for read-only sessions
func (s *AnalysisSession) CheckMutable() error {
	if s.IsFinalized() {
		return fmt.Errorf("session %s: %w", s.ID, ErrSessionFinalized)
	}
	return nil
}

// Finalize marks the session read-only. Incomplete sessions keep the phase
// they were cancelled in.
func (s *AnalysisSession) Finalize(now time.Time, incomplete bool, reason string) {
	if s.IsFinalized() {
		return
	}
	t := now.UTC()
	s.FinalizedAt = &t
	s.Incomplete = incomplete
	s.CancelReason = reason
	if !incomplete {
		s.Phase = PhaseDone
	}
}

// AddClaim normalizes text and stores the claim, returning the existing claim
// when the normalized text is already known. A known text requested with the
// other polarity is rejected.
func (s *AnalysisSession) AddClaim(text string, polarity Polarity) (*Claim, bool, error) {
	if err := s.CheckMutable(); err != nil {
		return nil, false, err
	}
	c, err := NewClaim(text, polarity)
	if err != nil {
		return nil, false, err
	}
	if existing, ok := s.Claims[c.ID]; ok {
		if existing.Polarity != c.Polarity {
			return nil, false, &InvalidClaimError{
				ClaimID: c.ID,
				Reason:  fmt.Sprintf("polarity %s conflicts with existing %s claim", c.Polarity, existing.Polarity),
			}
		}
		return existing, false, nil
	}
	s.Claims[c.ID] = c
	return c, true, nil
}

// Claim looks up a claim by id
func (s *AnalysisSession) Claim(id string) (*Claim, bool) {
	c, ok := s.Claims[id]
	return c, ok
}

// ClaimIDs returns all claim ids sorted
func (s *AnalysisSession) ClaimIDs() []string {
	ids := make([]string, 0, len(s.Claims))
	for id := range s.Claims {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddOpenQuestion appends a clarifying question unless already open or resolved
func (s *AnalysisSession) AddOpenQuestion(q string) bool {
	q = strings.TrimSpace(q)
	if q == "" || containsFold(s.OpenQuestions, q) || containsFold(s.ResolvedQuestions, q) {
		return false
	}
	s.OpenQuestions = append(s.OpenQuestions, q)
	return true
}

// ResolveQuestion moves an open question to the resolved list
func (s *AnalysisSession) ResolveQuestion(q string) bool {
	q = strings.TrimSpace(q)
	for i, open := range s.OpenQuestions {
		if strings.EqualFold(open, q) {
			s.OpenQuestions = append(s.OpenQuestions[:i:i], s.OpenQuestions[i+1:]...)
			s.ResolvedQuestions = append(s.ResolvedQuestions, open)
			return true
		}
	}
	return false
}

// EvidenceList returns evidence sorted by (claimId, evidenceId)
func (s *AnalysisSession) EvidenceList() []*EvidenceItem {
	items := make([]*EvidenceItem, 0, len(s.Evidence))
	for _, item := range s.Evidence {
		items = append(items, item)
	}
	SortEvidenceCanonical(items)
	return items
}

// SortEvidenceCanonical orders evidence by (claimId, evidenceId)
func SortEvidenceCanonical(items []*EvidenceItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].ClaimID != items[j].ClaimID {
			return items[i].ClaimID < items[j].ClaimID
		}
		return items[i].ID < items[j].ID
	})
}

func containsFold(list []string, q string) bool {
	for _, item := range list {
		if strings.EqualFold(item, q) {
			return true
		}
	}
	return false
}
