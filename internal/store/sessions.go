package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/assay/internal/model"
)

// Summary is the listing view of an archived session
type Summary struct {
	ID          string
	Idea        string
	Phase       model.Phase
	Incomplete  bool
	CreatedAt   time.Time
	FinalizedAt time.Time
	Buckets     map[model.Dimension]model.Bucket
	Posteriors  map[model.Dimension]float64
}

// Save archives a finalized session together with its dimension summary
func (s *Store) Save(ctx context.Context, session *model.AnalysisSession) error {
	if !session.IsFinalized() {
		return fmt.Errorf("save %s: %w", session.ID, ErrNotFinalized)
	}
	record, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("save %s: encode: %w", session.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save %s: begin: %w", session.ID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, idea_statement, phase, incomplete, created_at, finalized_at, record)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		session.ID,
		session.IdeaStatement,
		string(session.Phase),
		session.Incomplete,
		formatTime(session.CreatedAt),
		formatTime(*session.FinalizedAt),
		string(record),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", session.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("save %s: %w", session.ID, err)
	} else if n == 0 {
		return fmt.Errorf("save %s: %w", session.ID, ErrAlreadyArchived)
	}

	for _, d := range model.AllDimensions {
		cd, ok := session.Dimensions[d]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dimensions (session_id, name, posterior, bucket) VALUES (?, ?, ?, ?)`,
			session.ID, string(d), cd.Posterior, string(cd.Bucket),
		); err != nil {
			return fmt.Errorf("save %s: dimension %s: %w", session.ID, d, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save %s: commit: %w", session.ID, err)
	}
	return nil
}

// Load returns the archived session whose id equals or uniquely starts with id
func (s *Store) Load(ctx context.Context, id string) (*model.AnalysisSession, error) {
	if id == "" {
		return nil, fmt.Errorf("load: %w", ErrNotFound)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, record FROM sessions WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY id = ? DESC LIMIT 2`,
		id, escapeLike(id)+"%", id)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	defer rows.Close()

	type match struct{ id, record string }
	var found []match
	for rows.Next() {
		var m match
		if err := rows.Scan(&m.id, &m.record); err != nil {
			return nil, fmt.Errorf("load %s: %w", id, err)
		}
		found = append(found, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}

	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("load %s: %w", id, ErrNotFound)
	case len(found) > 1 && found[0].id != id:
		return nil, fmt.Errorf("load %s: %w", id, ErrAmbiguousID)
	}

	var session model.AnalysisSession
	if err := json.Unmarshal([]byte(found[0].record), &session); err != nil {
		return nil, fmt.Errorf("load %s: decode: %w", id, err)
	}
	return &session, nil
}

// List returns up to limit archived sessions, newest first. limit <= 0
// returns every session.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.idea_statement, s.phase, s.incomplete, s.created_at, s.finalized_at,
		       d.name, d.posterior, d.bucket
		FROM (
			SELECT * FROM sessions ORDER BY created_at DESC, id DESC LIMIT ?
		) s
		LEFT JOIN dimensions d ON d.session_id = s.id
		ORDER BY s.created_at DESC, s.id DESC, d.name
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum                Summary
			phase              string
			created, finalized string
			name, bucket       sql.NullString
			posterior          sql.NullFloat64
		)
		if err := rows.Scan(&sum.ID, &sum.Idea, &phase, &sum.Incomplete, &created, &finalized, &name, &posterior, &bucket); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}

		if len(out) == 0 || out[len(out)-1].ID != sum.ID {
			sum.Phase = model.Phase(phase)
			if sum.CreatedAt, err = parseTime(created); err != nil {
				return nil, fmt.Errorf("list sessions: %s: %w", sum.ID, err)
			}
			if sum.FinalizedAt, err = parseTime(finalized); err != nil {
				return nil, fmt.Errorf("list sessions: %s: %w", sum.ID, err)
			}
			sum.Buckets = make(map[model.Dimension]model.Bucket)
			sum.Posteriors = make(map[model.Dimension]float64)
			out = append(out, sum)
		}
		if name.Valid {
			last := &out[len(out)-1]
			d := model.Dimension(name.String)
			last.Buckets[d] = model.Bucket(bucket.String)
			last.Posteriors[d] = posterior.Float64
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// Count returns the number of archived sessions
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
