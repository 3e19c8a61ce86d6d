// Package patterns accumulates learned behavioral patterns with confidence
// scores and usage counters, and serves deterministic best-match retrieval.
package patterns

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/swarmstore/swarmstore/internal/store"
)

// Pattern is one learned behavior.
type Pattern struct {
	ID         string
	Type       string
	Data       []byte
	Confidence float64 // clamped to [0, 1]
	UsageCount int64
	CreatedAt  time.Time
	LastUsed   *time.Time
}

// Store persists patterns in the shared store.
type Store struct {
	db *store.DB
}

// NewStore returns a pattern store over db.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

// Put inserts or replaces a pattern. An empty id gets a fresh UUID; the
// confidence is clamped into [0, 1]. Replacing an existing id updates its
// type, data and confidence while keeping the usage counters. Returns the
// stored pattern.
func (s *Store) Put(ctx context.Context, p Pattern) (Pattern, error) {
	if p.Type == "" {
		return Pattern{}, fmt.Errorf("pattern type required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Confidence = min(max(p.Confidence, 0), 1)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns (id, type, pattern_data, confidence, usage_count, created_at, last_used)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			pattern_data = excluded.pattern_data,
			confidence = excluded.confidence`,
		p.ID, p.Type, p.Data, p.Confidence, p.UsageCount, p.CreatedAt, p.LastUsed)
	if err != nil {
		return Pattern{}, store.Wrap("put pattern", err)
	}
	return p, nil
}

// Best returns the pattern of the given type with the highest confidence.
// Ties go to the higher usage count, then the most recent last_used. The
// reduction is a fixed ORDER BY over a snapshot, so it is deterministic for
// a given table state.
func (s *Store) Best(ctx context.Context, patternType string) (Pattern, error) {
	return scanPattern(s.db.QueryRowContext(ctx, `
		SELECT id, type, pattern_data, confidence, usage_count, created_at, last_used
		FROM patterns WHERE type = ?
		ORDER BY confidence DESC, usage_count DESC, last_used DESC
		LIMIT 1`, patternType))
}

// RecordUse increments the pattern's usage counter and stamps last_used.
func (s *Store) RecordUse(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE patterns SET usage_count = usage_count + 1, last_used = ? WHERE id = ?",
		time.Now().UTC(), id)
	if err != nil {
		return store.Wrap("record pattern use", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Get returns one pattern by id.
func (s *Store) Get(ctx context.Context, id string) (Pattern, error) {
	return scanPattern(s.db.QueryRowContext(ctx, `
		SELECT id, type, pattern_data, confidence, usage_count, created_at, last_used
		FROM patterns WHERE id = ?`, id))
}

// List returns patterns of one type (empty = all), best first using the same
// ordering as Best.
func (s *Store) List(ctx context.Context, patternType string) ([]Pattern, error) {
	q := "SELECT id, type, pattern_data, confidence, usage_count, created_at, last_used FROM patterns"
	var args []any
	if patternType != "" {
		q += " WHERE type = ?"
		args = append(args, patternType)
	}
	q += " ORDER BY confidence DESC, usage_count DESC, last_used DESC"
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, store.Wrap("list patterns", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("list patterns", err)
	}
	return out, nil
}

// Delete removes one pattern.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM patterns WHERE id = ?", id)
	return store.Wrap("delete pattern", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (Pattern, error) {
	var p Pattern
	if err := row.Scan(&p.ID, &p.Type, &p.Data, &p.Confidence, &p.UsageCount,
		&p.CreatedAt, &p.LastUsed); err != nil {
		return Pattern{}, store.Wrap("load pattern", err)
	}
	return p, nil
}
