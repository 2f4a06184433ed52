package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/assay/internal/model"
)

func newSession(t *testing.T) *model.AnalysisSession {
	t.Helper()
	s, err := model.NewSession("Quantum error correction scales below threshold", 0.5, 8, time.Unix(0, 0))
	require.NoError(t, err)
	return s
}

func addClaims(t *testing.T, s *model.AnalysisSession, texts ...string) []string {
	t.Helper()
	ids := make([]string, len(texts))
	for i, text := range texts {
		c, _, err := s.AddClaim(text, model.PolarityAssertion)
		require.NoError(t, err)
		ids[i] = c.ID
	}
	return ids
}

// TestAddEdge_CycleSafety tests that a two-claim cycle yields exactly one fallacy and no propagation.
func TestAddEdge_CycleSafety(t *testing.T) {
	s := newSession(t)
	ids := addClaims(t, s, "claim A", "claim B")
	a, b := ids[0], ids[1]
	g := New(s)

	f, err := g.AddEdge(a, b, model.EdgeNecessary)
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = g.AddEdge(b, a, model.EdgeNecessary)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, model.FallacyCircularReasoning, f.Kind)
	assert.Equal(t, []string{b, a, b}, f.Path)

	require.Len(t, g.Fallacies(), 1)
	assert.Empty(t, g.ValidEdges(), "both edges of the cycle are excluded from propagation")

	require.NoError(t, g.Assert(b, model.TruthFalse))
	require.NoError(t, g.Propagate())
	assert.Equal(t, model.TruthUnknown, s.Claims[a].TruthValue)

	require.NoError(t, g.Assert(a, model.TruthFalse))
	require.NoError(t, g.Propagate())
	assert.Equal(t, model.TruthFalse, s.Claims[b].TruthValue)
	assert.Equal(t, model.OriginAsserted, s.Claims[b].Origin)
}

// TestAddEdge_CircularPairStaysClosed tests that a new edge kind between a pair
// already caught in a cycle is rejected too.
func TestAddEdge_CircularPairStaysClosed(t *testing.T) {
	s := newSession(t)
	ids := addClaims(t, s, "claim A", "claim B")
	a, b := ids[0], ids[1]
	g := New(s)

	f, err := g.AddEdge(a, b, model.EdgeNecessary)
	require.NoError(t, err)
	assert.Nil(t, f)
	f, err = g.AddEdge(b, a, model.EdgeNecessary)
	require.NoError(t, err)
	require.NotNil(t, f)

	f, err = g.AddEdge(b, a, model.EdgeSufficient)
	require.NoError(t, err)
	require.NotNil(t, f, "edge back across a circular pair closes the same cycle")
	assert.Equal(t, model.FallacyCircularReasoning, f.Kind)
	assert.Equal(t, []string{b, a, b}, f.Path)
	assert.Len(t, g.Fallacies(), 2)
	assert.Empty(t, g.ValidEdges())

	require.NoError(t, g.Assert(b, model.TruthTrue))
	require.NoError(t, g.Propagate())
	assert.Equal(t, model.TruthUnknown, s.Claims[a].TruthValue)
	assert.Empty(t, s.Claims[a].Origin)
}

func TestAddEdge_RejectedEdgeStaysRejected(t *testing.T) {
	s := newSession(t)
	ids := addClaims(t, s, "claim A", "claim B")
	g := New(s)

	_, err := g.AddEdge(ids[0], ids[1], model.EdgeSufficient)
	require.NoError(t, err)
	_, err = g.AddEdge(ids[1], ids[0], model.EdgeSufficient)
	require.NoError(t, err)

	f, err := g.AddEdge(ids[1], ids[0], model.EdgeSufficient)
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Len(t, g.Fallacies(), 1)
	assert.Empty(t, g.ValidEdges())
}

func TestAddEdge_SelfLoop(t *testing.T) {
	s := newSession(t)
	ids := addClaims(t, s, "claim A")
	g := New(s)

	f, err := g.AddEdge(ids[0], ids[0], model.EdgeBoth)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, []string{ids[0], ids[0]}, f.Path)
	assert.Contains(t, f.Description, "depends on itself")
	assert.Empty(t, s.Graph.Edges)
}

// TestAddEdge_LongCycle tests that every edge on a longer cycle is excluded.
func TestAddEdge_LongCycle(t *testing.T) {
	s := newSession(t)
	ids := addClaims(t, s, "a", "b", "c", "d")
	g := New(s)

	_, err := g.AddEdge(ids[0], ids[1], model.EdgeSufficient)
	require.NoError(t, err)
	_, err = g.AddEdge(ids[1], ids[2], model.EdgeSufficient)
	require.NoError(t, err)
	_, err = g.AddEdge(ids[2], ids[3], model.EdgeSufficient)
	require.NoError(t, err)

	f, err := g.AddEdge(ids[2], ids[0], model.EdgeNecessary)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, []string{ids[2], ids[0], ids[1], ids[2]}, f.Path)
	assert.Len(t, f.Edges, 3)

	valid := g.ValidEdges()
	require.Len(t, valid, 1)
	assert.Equal(t, ids[2], valid[0].From)
	assert.Equal(t, ids[3], valid[0].To)
}

func TestAddEdge_MultipleKindsSamePair(t *testing.T) {
	s := newSession(t)
	ids := addClaims(t, s, "a", "b")
	g := New(s)

	for _, kind := range []model.EdgeKind{model.EdgeNecessary, model.EdgeSufficient, model.EdgeNecessary} {
		f, err := g.AddEdge(ids[0], ids[1], kind)
		require.NoError(t, err)
		assert.Nil(t, f)
	}
	assert.Len(t, g.ValidEdges(), 2)
}

func TestAddEdge_UnknownClaim(t *testing.T) {
	s := newSession(t)
	g := New(s)

	_, err := g.AddEdge(s.RootClaimID, "cl_nope", model.EdgeNecessary)
	assert.ErrorIs(t, err, model.ErrInvalidClaim)

	_, err = g.AddEdge(s.RootClaimID, s.RootClaimID, model.EdgeKind("entails"))
	assert.Error(t, err)
}

// TestPropagate_ModusTollens tests A necessary_for B with B false makes A false.
func TestPropagate_ModusTollens(t *testing.T) {
	s := newSession(t)
	ids := addClaims(t, s, "claim A", "claim B")
	g := New(s)

	_, err := g.AddEdge(ids[0], ids[1], model.EdgeNecessary)
	require.NoError(t, err)
	require.NoError(t, g.Assert(ids[1], model.TruthFalse))
	require.NoError(t, g.Propagate())

	a := s.Claims[ids[0]]
	assert.Equal(t, model.TruthFalse, a.TruthValue)
	assert.Equal(t, model.OriginModusTollens, a.Origin)
	require.NotNil(t, a.OriginEdge)
	assert.Equal(t, ids[1], a.OriginEdge.To)
}

func TestPropagate_ModusPonensChain(t *testing.T) {
	s := newSession(t)
	ids := addClaims(t, s, "a", "b", "c")
	g := New(s)

	_, err := g.AddEdge(ids[1], ids[2], model.EdgeSufficient)
	require.NoError(t, err)
	_, err = g.AddEdge(ids[0], ids[1], model.EdgeBoth)
	require.NoError(t, err)
	require.NoError(t, g.Assert(ids[0], model.TruthTrue))
	require.NoError(t, g.Propagate())

	assert.Equal(t, model.TruthTrue, s.Claims[ids[1]].TruthValue)
	assert.Equal(t, model.TruthTrue, s.Claims[ids[2]].TruthValue)
	assert.Equal(t, model.OriginModusPonens, s.Claims[ids[2]].Origin)
}

func TestPropagate_NoRuleFiresOnUnknownOrWrongDirection(t *testing.T) {
	s := newSession(t)
	ids := addClaims(t, s, "a", "b")
	g := New(s)

	_, err := g.AddEdge(ids[0], ids[1], model.EdgeNecessary)
	require.NoError(t, err)
	require.NoError(t, g.Assert(ids[1], model.TruthTrue))
	require.NoError(t, g.Propagate())
	assert.Equal(t, model.TruthUnknown, s.Claims[ids[0]].TruthValue, "B true says nothing about a necessary condition")
}

// TestPropagate_Contradiction tests that opposing derivations raise ContradictionError and keep both sides.
func TestPropagate_Contradiction(t *testing.T) {
	s := newSession(t)
	ids := addClaims(t, s, "x", "a", "y", "p", "q")
	x, a, y, p, q := ids[0], ids[1], ids[2], ids[3], ids[4]
	g := New(s)

	_, err := g.AddEdge(x, a, model.EdgeSufficient)
	require.NoError(t, err)
	_, err = g.AddEdge(a, y, model.EdgeNecessary)
	require.NoError(t, err)
	_, err = g.AddEdge(p, q, model.EdgeNecessary)
	require.NoError(t, err)

	require.NoError(t, g.Assert(x, model.TruthTrue))
	require.NoError(t, g.Assert(y, model.TruthFalse))
	require.NoError(t, g.Assert(q, model.TruthFalse))

	err = g.Propagate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrContradiction))

	var ce *model.ContradictionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, a, ce.Contradiction.ClaimID)

	require.Len(t, g.Contradictions(), 1)
	c := g.Contradictions()[0]
	assert.Equal(t, model.TruthTrue, c.Existing.Value)
	assert.Equal(t, model.OriginModusPonens, c.Existing.Origin)
	assert.Equal(t, model.TruthFalse, c.Attempted.Value)
	assert.Equal(t, model.OriginModusTollens, c.Attempted.Origin)
	assert.Equal(t, y, c.Edge.To)

	assert.Equal(t, model.TruthTrue, s.Claims[a].TruthValue, "existing value is not overwritten")
	assert.Equal(t, model.TruthFalse, s.Claims[p].TruthValue, "independent component keeps propagating")
}

func TestPropagate_ContradictionRecordedOnce(t *testing.T) {
	s := newSession(t)
	ids := addClaims(t, s, "x", "a", "y")
	g := New(s)

	_, err := g.AddEdge(ids[0], ids[1], model.EdgeSufficient)
	require.NoError(t, err)
	_, err = g.AddEdge(ids[1], ids[2], model.EdgeNecessary)
	require.NoError(t, err)
	require.NoError(t, g.Assert(ids[0], model.TruthTrue))
	require.NoError(t, g.Assert(ids[2], model.TruthFalse))

	require.Error(t, g.Propagate())
	require.Error(t, g.Propagate())
	assert.Len(t, g.Contradictions(), 1)
}

func TestAssert_Conflicting(t *testing.T) {
	s := newSession(t)
	g := New(s)

	require.NoError(t, g.Assert(s.RootClaimID, model.TruthTrue))
	err := g.Assert(s.RootClaimID, model.TruthFalse)
	require.ErrorIs(t, err, model.ErrContradiction)
	assert.Equal(t, model.TruthTrue, s.Claims[s.RootClaimID].TruthValue)
	require.Len(t, g.Contradictions(), 1)
	assert.Equal(t, model.OriginAsserted, g.Contradictions()[0].Attempted.Origin)
}

func TestComponents(t *testing.T) {
	s := newSession(t)
	ids := addClaims(t, s, "a", "b", "c")
	g := New(s)

	_, err := g.AddEdge(ids[0], ids[1], model.EdgeNecessary)
	require.NoError(t, err)

	comps := g.Components()
	assert.Len(t, comps, 3, "root, {a,b} and c")

	sizes := map[int]int{}
	for _, c := range comps {
		sizes[len(c)]++
	}
	assert.Equal(t, map[int]int{1: 2, 2: 1}, sizes)
}

func TestNew_ReattachKeepsRejectedEdges(t *testing.T) {
	s := newSession(t)
	ids := addClaims(t, s, "a", "b")
	g := New(s)
	_, err := g.AddEdge(ids[0], ids[1], model.EdgeNecessary)
	require.NoError(t, err)
	_, err = g.AddEdge(ids[1], ids[0], model.EdgeNecessary)
	require.NoError(t, err)

	reattached := New(s)
	f, err := reattached.AddEdge(ids[1], ids[0], model.EdgeNecessary)
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Len(t, s.Graph.Fallacies, 1)
}
