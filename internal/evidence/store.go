// Package evidence holds deduplicated evidence records for a session's claims
// and orders them by source quality.
package evidence

import (
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/assay/internal/model"
)

// Record is an evidence candidate before deduplication
type Record struct {
	ClaimID     string
	Tier        model.SourceTier
	Stance      model.Stance
	Strength    float64
	Source      string // URL or snippet; part of the dedup key
	Title       string
	Dimensions  []model.Dimension
	Query       string
	Strategy    string
	RetrievedAt time.Time // Zero means "now" on the store clock
}

// Store is the single-writer ingestion path into a session's evidence map.
// Add is linearized by a mutex so concurrent fetchers can share one store.
type Store struct {
	mu      sync.Mutex
	session *model.AnalysisSession
	byKey   map[string]*model.EvidenceItem
	seq     int
	now     func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the clock used for RetrievedAt
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore attaches a store to the session, indexing any evidence it already holds
func NewStore(session *model.AnalysisSession, opts ...Option) *Store {
	s := &Store{
		session: session,
		byKey:   make(map[string]*model.EvidenceItem, len(session.Evidence)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if session.Evidence == nil {
		session.Evidence = make(map[string]*model.EvidenceItem)
	}
	for _, item := range session.Evidence {
		s.byKey[item.DedupKey] = item
		if item.Seq > s.seq {
			s.seq = item.Seq
		}
	}
	return s
}

// QualityWeight is the fixed tier weight used for ordering and likelihoods
func QualityWeight(tier model.SourceTier) float64 {
	return tier.Weight()
}

// Add ingests a record. A record whose dedup key already exists is a no-op
// and returns the stored item with added=false.
func (s *Store) Add(r Record) (*model.EvidenceItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.session.CheckMutable(); err != nil {
		return nil, false, err
	}
	if _, ok := s.session.Claims[r.ClaimID]; !ok {
		return nil, false, &model.InvalidClaimError{ClaimID: r.ClaimID, Reason: "evidence references unknown claim"}
	}

	tier := r.Tier
	if tier == "" {
		tier = model.TierUnknown
	}
	stance := r.Stance
	if stance == "" {
		stance = model.StanceNeutral
	}
	strength := model.ClampStrength(r.Strength)

	key := model.EvidenceDedupKey(r.ClaimID, tier, strength, r.Source)
	if existing, ok := s.byKey[key]; ok {
		return existing, false, nil
	}

	retrievedAt := r.RetrievedAt
	if retrievedAt.IsZero() {
		retrievedAt = s.now()
	}

	s.seq++
	item := &model.EvidenceItem{
		ID:          model.EvidenceID(key),
		ClaimID:     r.ClaimID,
		Tier:        tier,
		Stance:      stance,
		Strength:    strength,
		RetrievedAt: retrievedAt.UTC(),
		DedupKey:    key,
		Source:      r.Source,
		Title:       r.Title,
		Dimensions:  uniqueDimensions(r.Dimensions),
		Query:       r.Query,
		Strategy:    r.Strategy,
		Seq:         s.seq,
	}
	s.byKey[key] = item
	s.session.Evidence[item.ID] = item
	return item, true, nil
}

// Query returns the claim's evidence ordered by quality weight, strength and
// recency (all descending), then insertion order.
func (s *Store) Query(claimID string) []*model.EvidenceItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []*model.EvidenceItem
	for _, item := range s.session.Evidence {
		if item.ClaimID == claimID {
			items = append(items, item)
		}
	}
	SortByQuality(items)
	return items
}

// SortByQuality applies the store's deterministic ranking in place
func SortByQuality(items []*model.EvidenceItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if wa, wb := a.Tier.Weight(), b.Tier.Weight(); wa != wb {
			return wa > wb
		}
		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		if !a.RetrievedAt.Equal(b.RetrievedAt) {
			return a.RetrievedAt.After(b.RetrievedAt)
		}
		return a.Seq < b.Seq
	})
}

// All returns every item ordered by (claimId, evidenceId)
func (s *Store) All() []*model.EvidenceItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.EvidenceList()
}

// Len returns the number of stored items
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.session.Evidence)
}

// TierCounts counts stored items per source tier
func (s *Store) TierCounts() map[model.SourceTier]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[model.SourceTier]int)
	for _, item := range s.session.Evidence {
		counts[item.Tier]++
	}
	return counts
}

func uniqueDimensions(dims []model.Dimension) []model.Dimension {
	if len(dims) == 0 {
		return nil
	}
	seen := make(map[model.Dimension]bool, len(dims))
	out := make([]model.Dimension, 0, len(dims))
	for _, d := range dims {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}
