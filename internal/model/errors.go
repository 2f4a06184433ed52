package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks
var (
	ErrAmbiguousIdea     = errors.New("ambiguous idea statement")
	ErrInvalidClaim      = errors.New("invalid claim")
	ErrContradiction     = errors.New("contradiction")
	ErrSearchUnavailable = errors.New("search unavailable")
	ErrSessionCancelled  = errors.New("session cancelled")
	ErrSessionFinalized  = errors.New("session finalized")
)

// AmbiguousIdeaError is returned when an idea statement is empty or too short.
// No session is created.
type AmbiguousIdeaError struct {
	Statement string
	MinLength int
}

func (e *AmbiguousIdeaError) Error() string {
	if e.Statement == "" {
		return "ambiguous idea: statement is empty"
	}
	return fmt.Sprintf("ambiguous idea: %q is shorter than %d characters", e.Statement, e.MinLength)
}

func (e *AmbiguousIdeaError) Unwrap() error { return ErrAmbiguousIdea }

// InvalidClaimError is returned when an operation references an unknown or
// malformed claim
type InvalidClaimError struct {
	ClaimID string
	Reason  string
}

func (e *InvalidClaimError) Error() string {
	if e.ClaimID == "" {
		return "invalid claim: " + e.Reason
	}
	return fmt.Sprintf("invalid claim %s: %s", e.ClaimID, e.Reason)
}

func (e *InvalidClaimError) Unwrap() error { return ErrInvalidClaim }

// ContradictionError is raised when propagation would flip a fixed truth value
type ContradictionError struct {
	Contradiction Contradiction
}

func (e *ContradictionError) Error() string {
	c := e.Contradiction
	return fmt.Sprintf("contradiction on %s: %s (%s) conflicts with %s (%s) via %s",
		c.ClaimID, c.Existing.Value, c.Existing.Origin, c.Attempted.Value, c.Attempted.Origin, c.Edge)
}

func (e *ContradictionError) Unwrap() error { return ErrContradiction }

// SearchUnavailableError reports a query that failed after all retries
type SearchUnavailableError struct {
	Query    string
	Attempts int
	Err      error
}

func (e *SearchUnavailableError) Error() string {
	return fmt.Sprintf("search unavailable for %q after %d attempts: %v", e.Query, e.Attempts, e.Err)
}

func (e *SearchUnavailableError) Unwrap() []error { return []error{ErrSearchUnavailable, e.Err} }
