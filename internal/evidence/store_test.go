package evidence

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/assay/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *model.AnalysisSession) {
	t.Helper()
	s, err := model.NewSession("Room-temperature superconductivity in doped lead apatite", 0.5, 8, fixedNow)
	require.NoError(t, err)
	return NewStore(s, WithClock(func() time.Time { return fixedNow })), s
}

// TestStore_Add_Idempotent tests that identical records leave the store size unchanged.
func TestStore_Add_Idempotent(t *testing.T) {
	st, s := newTestStore(t)
	rec := Record{
		ClaimID:  s.RootClaimID,
		Tier:     model.TierPeerReviewed,
		Stance:   model.StanceSupporting,
		Strength: 0.9,
		Source:   "https://www.nature.com/articles/x1",
	}

	first, added, err := st.Add(rec)
	require.NoError(t, err)
	assert.True(t, added)

	second, added, err := st.Add(rec)
	require.NoError(t, err)
	assert.False(t, added, "duplicate must be a no-op")
	assert.Same(t, first, second)
	assert.Equal(t, 1, st.Len())
}

// TestStore_Add_DedupRoundsStrength tests that strengths equal at two decimals collide.
func TestStore_Add_DedupRoundsStrength(t *testing.T) {
	st, s := newTestStore(t)
	base := Record{ClaimID: s.RootClaimID, Tier: model.TierPreprint, Source: "https://arxiv.org/abs/1"}

	a := base
	a.Strength = 0.801
	b := base
	b.Strength = 0.799

	_, _, err := st.Add(a)
	require.NoError(t, err)
	_, added, err := st.Add(b)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, st.Len())
}

func TestStore_Add_ClampsStrength(t *testing.T) {
	st, s := newTestStore(t)

	hi, _, err := st.Add(Record{ClaimID: s.RootClaimID, Tier: model.TierGeneralWeb, Strength: 4.2, Source: "a"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, hi.Strength)

	lo, _, err := st.Add(Record{ClaimID: s.RootClaimID, Tier: model.TierGeneralWeb, Strength: -3, Source: "b"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, lo.Strength)
}

func TestStore_Add_UnknownClaim(t *testing.T) {
	st, _ := newTestStore(t)

	_, _, err := st.Add(Record{ClaimID: "cl_missing", Tier: model.TierPeerReviewed, Strength: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidClaim))

	var ice *model.InvalidClaimError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, "cl_missing", ice.ClaimID)
	assert.Equal(t, 0, st.Len())
}

func TestStore_Add_Defaults(t *testing.T) {
	st, s := newTestStore(t)

	item, _, err := st.Add(Record{ClaimID: s.RootClaimID, Strength: 0.5, Source: "snippet text"})
	require.NoError(t, err)
	assert.Equal(t, model.TierUnknown, item.Tier)
	assert.Equal(t, model.StanceNeutral, item.Stance)
	assert.Equal(t, fixedNow, item.RetrievedAt)
	assert.Equal(t, 1, item.Seq)
}

// TestStore_Query_Ordering tests tier, strength, recency and insertion tie-breaking.
func TestStore_Query_Ordering(t *testing.T) {
	st, s := newTestStore(t)
	root := s.RootClaimID
	older := fixedNow.Add(-time.Hour)

	records := []Record{
		{ClaimID: root, Tier: model.TierSocial, Strength: 1.0, Source: "social"},
		{ClaimID: root, Tier: model.TierPeerReviewed, Strength: 0.5, Source: "pr-weak"},
		{ClaimID: root, Tier: model.TierPeerReviewed, Strength: 0.9, Source: "pr-old", RetrievedAt: older},
		{ClaimID: root, Tier: model.TierPeerReviewed, Strength: 0.9, Source: "pr-new"},
		{ClaimID: root, Tier: model.TierPreprint, Strength: 0.7, Source: "pre-1"},
		{ClaimID: root, Tier: model.TierPreprint, Strength: 0.7, Source: "pre-2"},
	}
	for _, r := range records {
		_, _, err := st.Add(r)
		require.NoError(t, err)
	}

	got := st.Query(root)
	require.Len(t, got, len(records))

	var sources []string
	for _, item := range got {
		sources = append(sources, item.Source)
	}
	assert.Equal(t, []string{"pr-new", "pr-old", "pr-weak", "pre-1", "pre-2", "social"}, sources)
}

func TestStore_Query_OtherClaim(t *testing.T) {
	st, s := newTestStore(t)
	sub, _, err := s.AddClaim("Lead apatite lattice distorts under copper doping", model.PolarityAssertion)
	require.NoError(t, err)

	_, _, err = st.Add(Record{ClaimID: sub.ID, Tier: model.TierPreprint, Strength: 0.4, Source: "x"})
	require.NoError(t, err)

	assert.Empty(t, st.Query(s.RootClaimID))
	assert.Len(t, st.Query(sub.ID), 1)
}

func TestQualityWeight(t *testing.T) {
	tests := []struct {
		tier model.SourceTier
		want float64
	}{
		{model.TierPeerReviewed, 1.0},
		{model.TierPreprint, 0.7},
		{model.TierGeneralWeb, 0.3},
		{model.TierSocial, 0.1},
		{model.TierUnknown, 0.05},
		{model.SourceTier("bogus"), 0.05},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QualityWeight(tt.tier), string(tt.tier))
	}
}

// TestStore_ConcurrentAdd tests that concurrent writers are linearized by dedup.
func TestStore_ConcurrentAdd(t *testing.T) {
	st, s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _, _ = st.Add(Record{
					ClaimID:  s.RootClaimID,
					Tier:     model.TierGeneralWeb,
					Strength: 0.3,
					Source:   string(rune('a' + j)),
				})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, st.Len())
}

func TestNewStore_ReindexesExistingEvidence(t *testing.T) {
	st, s := newTestStore(t)
	rec := Record{ClaimID: s.RootClaimID, Tier: model.TierPreprint, Strength: 0.6, Source: "https://arxiv.org/abs/2"}
	_, _, err := st.Add(rec)
	require.NoError(t, err)

	reopened := NewStore(s)
	_, added, err := reopened.Add(rec)
	require.NoError(t, err)
	assert.False(t, added)

	next, added, err := reopened.Add(Record{ClaimID: s.RootClaimID, Tier: model.TierPreprint, Strength: 0.6, Source: "other"})
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 2, next.Seq)
}

func TestStore_Add_FinalizedSession(t *testing.T) {
	st, s := newTestStore(t)
	s.Finalize(fixedNow, false, "")

	_, _, err := st.Add(Record{ClaimID: s.RootClaimID, Tier: model.TierPreprint, Strength: 0.6, Source: "x"})
	assert.ErrorIs(t, err, model.ErrSessionFinalized)
}
