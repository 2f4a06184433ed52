package brief

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/assay/internal/model"
	"github.com/ppiankov/assay/internal/pipeline"
	"github.com/ppiankov/assay/internal/query"
	"github.com/ppiankov/assay/internal/search"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func loadGraphene(t *testing.T) *Brief {
	t.Helper()
	b, err := Load(filepath.Join("testdata", "graphene.yaml"))
	require.NoError(t, err)
	return b
}

func claimID(t *testing.T, text string) string {
	t.Helper()
	c, err := model.NewClaim(text, model.PolarityAssertion)
	require.NoError(t, err)
	return c.ID
}

func TestLoad(t *testing.T) {
	b := loadGraphene(t)

	assert.Equal(t, "Graphene membranes can desalinate seawater cheaply", b.Idea)
	assert.Equal(t, 0.6, b.ExtraordinarinessOr(0.5))
	assert.Len(t, b.Questions, 2)
	assert.Len(t, b.Claims, 3)
	assert.Len(t, b.Edges, 4)
	require.Len(t, b.Search.Results, 2)

	first := b.Search.Results[0]
	assert.Equal(t, []string{"graphene"}, first.Match)
	assert.Equal(t, "https://www.nature.com/articles/graphene-membranes", first.URL)
	assert.Equal(t, "journal", first.VenueType)
	require.NotNil(t, first.PublishedDate)
	assert.Equal(t, 2024, first.PublishedDate.Year())
	assert.Equal(t, time.May, first.PublishedDate.Month())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty idea", "idea: '  '\n", "idea is required"},
		{"unknown field", "idea: Graphene filters salt\nideas: oops\n", "field ideas not found"},
		{"extraordinariness range", "idea: Graphene filters salt\nextraordinariness: 1.5\n", "outside [0,1]"},
		{"root key", "idea: Graphene filters salt\nclaims:\n  - {key: root, text: x}\n", "key must be set"},
		{"duplicate key", "idea: Graphene filters salt\nclaims:\n  - {key: a, text: x}\n  - {key: a, text: y}\n", "duplicate key"},
		{"unknown edge ref", "idea: Graphene filters salt\nedges:\n  - {from: nope, to: root, kind: necessary}\n", "unknown claim \"nope\""},
		{"bad edge kind", "idea: Graphene filters salt\nclaims:\n  - {key: a, text: x}\nedges:\n  - {from: a, to: root, kind: maybe}\n", "unknown edge kind"},
		{"bad truth value", "idea: Graphene filters salt\nassertions:\n  - {claim: root, value: perhaps}\n", "unknown truth value"},
		{"bad tier", "idea: Graphene filters salt\nevidence:\n  - {claim: root, tier: tabloid, stance: supporting, strength: 0.5, source: s}\n", "unknown source tier"},
		{"bad strength", "idea: Graphene filters salt\nevidence:\n  - {claim: root, tier: social, stance: neutral, strength: 2, source: s}\n", "strength"},
		{"missing source", "idea: Graphene filters salt\nevidence:\n  - {claim: root, tier: social, stance: neutral, strength: 0.5}\n", "source is required"},
		{"bad dimension", "idea: Graphene filters salt\nevidence:\n  - {claim: root, tier: social, strength: 0.5, source: s, dimensions: [beauty]}\n", "unknown dimension"},
		{"result without url", "idea: Graphene filters salt\nsearch:\n  results:\n    - match: [x]\n      title: t\n", "url is required"},
		{"bad result stance", "idea: Graphene filters salt\nsearch:\n  results:\n    - {match: [x], url: 'https://a.example', stance: angry}\n", "unknown stance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExtraordinarinessDefault(t *testing.T) {
	b, err := Parse([]byte("idea: Graphene filters salt\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.5, b.ExtraordinarinessOr(0.5))
}

func TestClarify(t *testing.T) {
	b := loadGraphene(t)
	s, err := model.NewSession(b.Idea, 0.6, 8, testNow)
	require.NoError(t, err)

	require.NoError(t, b.Clarify(context.Background(), s))
	assert.Equal(t, []string{"Which salinity range is targeted?", "What counts as cheap?"}, s.OpenQuestions)

	// Repeating the first pass does not duplicate questions
	require.NoError(t, b.Clarify(context.Background(), s))
	assert.Len(t, s.OpenQuestions, 2)

	s.LoopCount = 1
	require.NoError(t, b.Clarify(context.Background(), s))
	assert.Equal(t, []string{"What counts as cheap?"}, s.OpenQuestions)
	assert.Equal(t, []string{"Which salinity range is targeted?"}, s.ResolvedQuestions)

	answer, ok := b.Answer("which salinity range is targeted?")
	assert.True(t, ok)
	assert.Equal(t, "Open seawater at roughly 35 g/L", answer)
	_, ok = b.Answer("What counts as cheap?")
	assert.False(t, ok)
}

func TestDecompose(t *testing.T) {
	b := loadGraphene(t)
	d, err := b.Decompose(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, d.Claims, 3)
	assert.Equal(t, pipeline.ClaimSpec{Key: "pores", Text: "Graphene pores reject salt ions", Polarity: model.PolarityAssertion}, d.Claims[0])
	require.Len(t, d.Edges, 4)
	assert.Equal(t, pipeline.EdgeSpec{From: "pores", To: "root", Kind: model.EdgeNecessary}, d.Edges[0])
	assert.Equal(t, []pipeline.AssertionSpec{{Claim: "pores", Value: model.TruthTrue}}, d.Assertions)

	require.Len(t, d.Evidence, 2)
	ev := d.Evidence[0]
	assert.Equal(t, "pores", ev.Claim)
	assert.Equal(t, model.TierPeerReviewed, ev.Record.Tier)
	assert.Equal(t, model.StanceSupporting, ev.Record.Stance)
	assert.Equal(t, 0.9, ev.Record.Strength)
	assert.Equal(t, []model.Dimension{model.DimensionEmpiricalSupport, model.DimensionTheoreticalSoundness}, ev.Record.Dimensions)
	assert.Equal(t, "brief", ev.Record.Strategy)
	assert.Empty(t, d.Evidence[1].Record.Dimensions)
}

func TestStance(t *testing.T) {
	b := loadGraphene(t)
	root := claimID(t, b.Idea)
	cost := claimID(t, "Membrane fabrication is cheap at scale")

	st, ok := b.Stance(root, "https://www.nature.com/articles/graphene-membranes")
	assert.True(t, ok)
	assert.Equal(t, model.StanceSupporting, st)

	st, ok = b.Stance(cost, "https://arxiv.org/abs/2401.00001")
	assert.True(t, ok)
	assert.Equal(t, model.StanceContradicting, st)

	_, ok = b.Stance(root, "https://arxiv.org/abs/2401.00001")
	assert.False(t, ok, "claim-bound annotation does not leak to other claims")

	_, ok = b.Stance(root, "https://unannotated.example")
	assert.False(t, ok)
}

func TestSearchService(t *testing.T) {
	b := loadGraphene(t)
	svc := b.SearchService()
	require.NotNil(t, svc)

	results, err := svc.Search(context.Background(), search.Request{Query: "graphene membranes cost", MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://www.nature.com/articles/graphene-membranes", results[0].URL)

	_, err = svc.Search(context.Background(), search.Request{Query: "graphene industry adoption"})
	assert.True(t, search.IsTransient(err))

	empty, err := Parse([]byte("idea: Graphene filters salt\n"))
	require.NoError(t, err)
	assert.Nil(t, empty.SearchService())
}

// TestBriefDrivesPipeline runs a full analysis offline from the brief
func TestBriefDrivesPipeline(t *testing.T) {
	b := loadGraphene(t)
	cfg := model.DefaultConfig()
	cfg.Search.Retries = 0

	c := pipeline.New(cfg, b.SearchService(),
		pipeline.WithClarifier(b),
		pipeline.WithDecomposer(b),
		pipeline.WithClock(func() time.Time { return testNow }),
		pipeline.WithFetcherOptions(query.WithStanceOracle(b)))

	s, err := c.Analyze(context.Background(), b.Idea, b.ExtraordinarinessOr(cfg.Analysis.Extraordinariness))
	require.NoError(t, err)

	assert.Equal(t, model.PhaseDone, s.Phase)
	assert.Equal(t, 1, s.LoopCount)
	assert.Equal(t, []string{"What counts as cheap?"}, s.OpenQuestions)
	assert.Len(t, s.Claims, 4)
	assert.Len(t, s.Graph.Fallacies, 1, "cost and fouling depend on each other")
	assert.NotEmpty(t, s.EvidenceGaps, "industry adoption queries hit the outage")

	var annotated bool
	for _, item := range s.Evidence {
		if item.Source == "https://www.nature.com/articles/graphene-membranes" && item.ClaimID == s.RootClaimID {
			assert.Equal(t, model.StanceSupporting, item.Stance)
			assert.Equal(t, model.TierPeerReviewed, item.Tier)
			annotated = true
		}
	}
	assert.True(t, annotated)
	assert.Greater(t, s.Dimensions[model.DimensionEmpiricalSupport].Posterior, s.Dimensions[model.DimensionEmpiricalSupport].Prior)
}
