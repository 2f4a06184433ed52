// Package brief loads analysis briefs: YAML files that carry an idea
// statement together with its pre-extracted propositions, evidence,
// clarifying questions and search fixtures.
//
// A Brief is the offline collaborator of the pipeline. It clarifies,
// decomposes, annotates result stances and answers searches.
package brief

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/assay/internal/evidence"
	"github.com/ppiankov/assay/internal/model"
	"github.com/ppiankov/assay/internal/pipeline"
	"github.com/ppiankov/assay/internal/search"
)

// Brief is one analysis request
type Brief struct {
	// Idea is the statement under evaluation; it becomes the root claim.
	Idea string `yaml:"idea"`

	// Extraordinariness in [0,1]; unset falls back to the configured default.
	Extraordinariness *float64 `yaml:"extraordinariness,omitempty"`

	// Questions are raised on the first pass. Answered ones are resolved
	// when the controller loops back to clarify.
	Questions []Question `yaml:"questions,omitempty"`

	Claims     []Claim     `yaml:"claims,omitempty"`
	Edges      []Edge      `yaml:"edges,omitempty"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
	Evidence   []Evidence  `yaml:"evidence,omitempty"`
	Search     Search      `yaml:"search,omitempty"`

	stances map[string][]stanceNote // Result URL -> annotations
	claimID map[string]string       // Claim key -> claim id
}

// Question is a clarifying question with an optional answer
type Question struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer,omitempty"`
}

// Claim is a sub-claim of the idea
type Claim struct {
	Key      string `yaml:"key"`
	Text     string `yaml:"text"`
	Polarity string `yaml:"polarity,omitempty"`
}

// Edge is a dependency between two claim keys; "root" names the idea
type Edge struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Kind string `yaml:"kind"`
}

// Assertion fixes the truth value of a claim
type Assertion struct {
	Claim string `yaml:"claim"`
	Value string `yaml:"value"`
}

// Evidence is a pre-collected evidence record
type Evidence struct {
	Claim      string   `yaml:"claim"`
	Tier       string   `yaml:"tier"`
	Stance     string   `yaml:"stance"`
	Strength   float64  `yaml:"strength"`
	Source     string   `yaml:"source"`
	Title      string   `yaml:"title,omitempty"`
	Dimensions []string `yaml:"dimensions,omitempty"`
}

// Search holds the canned search backend of a brief
type Search struct {
	Results []SearchResult         `yaml:"results,omitempty"`
	Outages []search.FixtureOutage `yaml:"outages,omitempty"`
}

// SearchResult is a fixture result with an optional stance annotation.
// Without Claim the stance applies to whichever claim the result lands on.
type SearchResult struct {
	Match         []string `yaml:"match"`
	search.Result `yaml:",inline"`
	Stance        string `yaml:"stance,omitempty"`
	Claim         string `yaml:"claim,omitempty"`
}

type stanceNote struct {
	claimID string // Empty applies to every claim
	stance  model.Stance
}

// Load reads and validates a brief file. Unknown fields are rejected.
func Load(path string) (*Brief, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read brief: %w", err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Parse decodes and validates a brief
func Parse(data []byte) (*Brief, error) {
	var b Brief
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("parse brief: %w", err)
	}
	if err := b.index(); err != nil {
		return nil, fmt.Errorf("invalid brief: %w", err)
	}
	return &b, nil
}

// index validates references and enumerations and builds the lookup tables
func (b *Brief) index() error {
	b.Idea = strings.TrimSpace(b.Idea)
	if b.Idea == "" {
		return errors.New("idea is required")
	}
	if e := b.Extraordinariness; e != nil && (*e < 0 || *e > 1) {
		return fmt.Errorf("extraordinariness %v outside [0,1]", *e)
	}

	root, err := model.NewClaim(b.Idea, model.PolarityAssertion)
	if err != nil {
		return fmt.Errorf("idea: %w", err)
	}
	b.claimID = map[string]string{pipeline.RootRef: root.ID}

	for i, c := range b.Claims {
		if c.Key == "" || c.Key == pipeline.RootRef {
			return fmt.Errorf("claims[%d]: key must be set and not %q", i, pipeline.RootRef)
		}
		if _, dup := b.claimID[c.Key]; dup {
			return fmt.Errorf("claims[%d]: duplicate key %q", i, c.Key)
		}
		pol, err := model.ParsePolarity(c.Polarity)
		if err != nil {
			return fmt.Errorf("claims[%d]: %w", i, err)
		}
		claim, err := model.NewClaim(c.Text, pol)
		if err != nil {
			return fmt.Errorf("claims[%d]: %w", i, err)
		}
		b.claimID[c.Key] = claim.ID
	}

	ref := func(field, key string) error {
		if key == "" {
			return nil
		}
		if _, ok := b.claimID[key]; !ok {
			return fmt.Errorf("%s: unknown claim %q", field, key)
		}
		return nil
	}

	for i, e := range b.Edges {
		if err := ref(fmt.Sprintf("edges[%d].from", i), e.From); err != nil {
			return err
		}
		if err := ref(fmt.Sprintf("edges[%d].to", i), e.To); err != nil {
			return err
		}
		if _, err := model.ParseEdgeKind(e.Kind); err != nil {
			return fmt.Errorf("edges[%d]: %w", i, err)
		}
	}
	for i, a := range b.Assertions {
		if err := ref(fmt.Sprintf("assertions[%d]", i), a.Claim); err != nil {
			return err
		}
		if _, err := model.ParseTruthValue(a.Value); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	for i, e := range b.Evidence {
		if err := ref(fmt.Sprintf("evidence[%d]", i), e.Claim); err != nil {
			return err
		}
		if _, err := e.record(); err != nil {
			return fmt.Errorf("evidence[%d]: %w", i, err)
		}
	}

	b.stances = make(map[string][]stanceNote)
	for i, r := range b.Search.Results {
		if strings.TrimSpace(r.URL) == "" {
			return fmt.Errorf("search.results[%d]: url is required", i)
		}
		if r.Stance == "" {
			continue
		}
		st, err := model.ParseStance(r.Stance)
		if err != nil {
			return fmt.Errorf("search.results[%d]: %w", i, err)
		}
		if err := ref(fmt.Sprintf("search.results[%d].claim", i), r.Claim); err != nil {
			return err
		}
		note := stanceNote{stance: st}
		if r.Claim != "" {
			note.claimID = b.claimID[r.Claim]
		}
		b.stances[r.URL] = append(b.stances[r.URL], note)
	}
	return nil
}

func (e Evidence) record() (evidence.Record, error) {
	tier, err := model.ParseSourceTier(e.Tier)
	if err != nil {
		return evidence.Record{}, err
	}
	stance, err := model.ParseStance(e.Stance)
	if err != nil {
		return evidence.Record{}, err
	}
	if e.Strength < 0 || e.Strength > 1 {
		return evidence.Record{}, fmt.Errorf("strength %v outside [0,1]", e.Strength)
	}
	if strings.TrimSpace(e.Source) == "" {
		return evidence.Record{}, errors.New("source is required")
	}
	dims := make([]model.Dimension, 0, len(e.Dimensions))
	for _, raw := range e.Dimensions {
		d, err := model.ParseDimension(raw)
		if err != nil {
			return evidence.Record{}, err
		}
		dims = append(dims, d)
	}
	return evidence.Record{
		Tier:       tier,
		Stance:     stance,
		Strength:   e.Strength,
		Source:     e.Source,
		Title:      e.Title,
		Dimensions: dims,
		Strategy:   "brief",
	}, nil
}

// ExtraordinarinessOr returns the brief's rating, or def when unset
func (b *Brief) ExtraordinarinessOr(def float64) float64 {
	if b.Extraordinariness == nil {
		return def
	}
	return *b.Extraordinariness
}

// Clarify raises every question on the first pass. On later passes it
// resolves the questions that have answers.
func (b *Brief) Clarify(_ context.Context, s *model.AnalysisSession) error {
	for _, q := range b.Questions {
		if s.LoopCount == 0 {
			s.AddOpenQuestion(q.Question)
		} else if strings.TrimSpace(q.Answer) != "" {
			s.ResolveQuestion(q.Question)
		}
	}
	return nil
}

// Answer returns the answer recorded for a question
func (b *Brief) Answer(question string) (string, bool) {
	for _, q := range b.Questions {
		if strings.EqualFold(strings.TrimSpace(q.Question), strings.TrimSpace(question)) && q.Answer != "" {
			return q.Answer, true
		}
	}
	return "", false
}

// Decompose returns the brief's claims, edges, assertions and evidence
func (b *Brief) Decompose(_ context.Context, _ *model.AnalysisSession) (*pipeline.Decomposition, error) {
	d := &pipeline.Decomposition{}
	for _, c := range b.Claims {
		pol, err := model.ParsePolarity(c.Polarity)
		if err != nil {
			return nil, err
		}
		d.Claims = append(d.Claims, pipeline.ClaimSpec{Key: c.Key, Text: c.Text, Polarity: pol})
	}
	for _, e := range b.Edges {
		kind, err := model.ParseEdgeKind(e.Kind)
		if err != nil {
			return nil, err
		}
		d.Edges = append(d.Edges, pipeline.EdgeSpec{From: e.From, To: e.To, Kind: kind})
	}
	for _, a := range b.Assertions {
		v, err := model.ParseTruthValue(a.Value)
		if err != nil {
			return nil, err
		}
		d.Assertions = append(d.Assertions, pipeline.AssertionSpec{Claim: a.Claim, Value: v})
	}
	for _, e := range b.Evidence {
		rec, err := e.record()
		if err != nil {
			return nil, err
		}
		d.Evidence = append(d.Evidence, pipeline.EvidenceSpec{Claim: e.Claim, Record: rec})
	}
	return d, nil
}

// Stance returns the annotated stance of a result URL for a claim. An
// annotation bound to a claim wins over an unbound one.
func (b *Brief) Stance(claimID, url string) (model.Stance, bool) {
	var fallback *stanceNote
	for i, note := range b.stances[url] {
		if note.claimID == claimID {
			return note.stance, true
		}
		if note.claimID == "" && fallback == nil {
			fallback = &b.stances[url][i]
		}
	}
	if fallback != nil {
		return fallback.stance, true
	}
	return "", false
}

// SearchService returns a fixture backend over the brief's results. A brief
// without results or outages returns nil.
func (b *Brief) SearchService() search.Service {
	if len(b.Search.Results) == 0 && len(b.Search.Outages) == 0 {
		return nil
	}
	entries := make([]search.FixtureEntry, len(b.Search.Results))
	for i, r := range b.Search.Results {
		entries[i] = search.FixtureEntry{Match: r.Match, Result: r.Result}
	}
	return search.NewFixtureService(entries, b.Search.Outages)
}
