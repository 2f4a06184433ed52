package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	s, err := NewSession("  Cold fusion can power a city.  ", 1.7, 8, testNow.In(time.FixedZone("X", 3600)))
	require.NoError(t, err)

	assert.Equal(t, "Cold fusion can power a city.", s.IdeaStatement)
	assert.Equal(t, PhaseCrystallize, s.Phase)
	assert.Equal(t, 1.0, s.ExtraordinarinessScore)
	assert.Equal(t, time.UTC, s.CreatedAt.Location())
	assert.NotEmpty(t, s.ID)
	assert.NotNil(t, s.OpenQuestions)

	root, ok := s.Claim(s.RootClaimID)
	require.True(t, ok)
	assert.Equal(t, "cold fusion can power a city", root.Text)
	assert.Len(t, s.Claims, 1)
}

func TestNewSession_Ambiguous(t *testing.T) {
	for _, idea := range []string{"", "   ", "short", "....."} {
		_, err := NewSession(idea, 0.5, 8, testNow)
		require.Error(t, err, idea)
		assert.True(t, errors.Is(err, ErrAmbiguousIdea), idea)

		var ae *AmbiguousIdeaError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, 8, ae.MinLength)
	}
}

func TestNewSession_UniqueIDs(t *testing.T) {
	a, err := NewSession("an idea worth testing", 0.5, 8, testNow)
	require.NoError(t, err)
	b, err := NewSession("an idea worth testing", 0.5, 8, testNow)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.RootClaimID, b.RootClaimID)
}

func TestAddClaim_Dedup(t *testing.T) {
	s, err := NewSession("an idea worth testing", 0.5, 8, testNow)
	require.NoError(t, err)

	c1, created, err := s.AddClaim("Plasma is stable.", PolarityAssertion)
	require.NoError(t, err)
	assert.True(t, created)

	c2, created, err := s.AddClaim("PLASMA is   stable", PolarityAssertion)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, c1, c2)

	_, _, err = s.AddClaim("   ", PolarityAssertion)
	assert.ErrorIs(t, err, ErrInvalidClaim)

	ids := s.ClaimIDs()
	assert.Len(t, ids, 2)
	assert.IsIncreasing(t, ids)
}

func TestAddClaim_PolarityConflict(t *testing.T) {
	s, err := NewSession("Graphene membranes desalinate water.", 0.5, 8, testNow)
	require.NoError(t, err)

	c, created, err := s.AddClaim("graphene membranes desalinate water", PolarityNegation)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidClaim)
	assert.Contains(t, err.Error(), "polarity negation conflicts")
	assert.Nil(t, c)
	assert.False(t, created)

	root := s.Claims[s.RootClaimID]
	assert.Equal(t, PolarityAssertion, root.Polarity)
	assert.Len(t, s.Claims, 1)
}

func TestQuestions(t *testing.T) {
	s, err := NewSession("an idea worth testing", 0.5, 8, testNow)
	require.NoError(t, err)

	assert.True(t, s.AddOpenQuestion("What scale?"))
	assert.False(t, s.AddOpenQuestion("what SCALE?"))
	assert.False(t, s.AddOpenQuestion("  "))
	assert.True(t, s.AddOpenQuestion("Which materials?"))

	assert.True(t, s.ResolveQuestion("WHAT scale?"))
	assert.False(t, s.ResolveQuestion("unknown"))
	assert.Equal(t, []string{"Which materials?"}, s.OpenQuestions)
	assert.Equal(t, []string{"What scale?"}, s.ResolvedQuestions)
	assert.False(t, s.AddOpenQuestion("what scale?"), "resolved questions are not reopened")
}

func TestFinalize(t *testing.T) {
	s, err := NewSession("an idea worth testing", 0.5, 8, testNow)
	require.NoError(t, err)
	s.Phase = PhaseEvaluate

	s.Finalize(testNow, true, "deadline")
	assert.True(t, s.IsFinalized())
	assert.True(t, s.Incomplete)
	assert.Equal(t, PhaseEvaluate, s.Phase)
	assert.Equal(t, "deadline", s.CancelReason)

	s.Finalize(testNow.Add(time.Hour), false, "")
	assert.True(t, s.Incomplete, "second finalize is ignored")
	assert.Equal(t, testNow, *s.FinalizedAt)

	_, _, err = s.AddClaim("late claim", PolarityAssertion)
	assert.ErrorIs(t, err, ErrSessionFinalized)
}

func TestFinalize_Complete(t *testing.T) {
	s, err := NewSession("an idea worth testing", 0.5, 8, testNow)
	require.NoError(t, err)
	s.Finalize(testNow, false, "")
	assert.Equal(t, PhaseDone, s.Phase)
	assert.False(t, s.Incomplete)
}

func TestEvidenceList_CanonicalOrder(t *testing.T) {
	s, err := NewSession("an idea worth testing", 0.5, 8, testNow)
	require.NoError(t, err)
	s.Evidence["ev_b"] = &EvidenceItem{ID: "ev_b", ClaimID: "cl_1"}
	s.Evidence["ev_a"] = &EvidenceItem{ID: "ev_a", ClaimID: "cl_2"}
	s.Evidence["ev_c"] = &EvidenceItem{ID: "ev_c", ClaimID: "cl_1"}

	var got []string
	for _, e := range s.EvidenceList() {
		got = append(got, e.ID)
	}
	assert.Equal(t, []string{"ev_b", "ev_c", "ev_a"}, got)
}

func TestSearchUnavailableError(t *testing.T) {
	cause := errors.New("503")
	err := error(&SearchUnavailableError{Query: "q", Attempts: 3, Err: cause})
	assert.ErrorIs(t, err, ErrSearchUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "3 attempts")
}
