// Package metrics persists the read-mostly observability collections:
// append-only performance samples, immutable swarm-topology snapshot
// revisions, and in-place workflow checkpoints.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/swarmstore/swarmstore/internal/store"
)

// Sample is one performance measurement.
type Sample struct {
	ID        int64
	Name      string
	Value     float64
	Tags      map[string]string
	Timestamp time.Time
}

// Store persists metrics, topology snapshots and workflow checkpoints.
type Store struct {
	db *store.DB
}

// NewStore returns a metrics store over db.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

// Record appends one sample. Samples are never updated.
func (s *Store) Record(ctx context.Context, name string, value float64, tags map[string]string) error {
	if name == "" {
		return fmt.Errorf("metric name required")
	}
	if tags == nil {
		tags = map[string]string{}
	}
	blob, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO performance_metrics (metric_name, value, tags, timestamp)
		VALUES (?, ?, ?, ?)`,
		name, value, string(blob), time.Now().UTC())
	return store.Wrap("record metric", err)
}

// Range returns samples of name within [since, until], oldest first. A zero
// since or until leaves that side unbounded.
func (s *Store) Range(ctx context.Context, name string, since, until time.Time) ([]Sample, error) {
	q := "SELECT id, metric_name, value, tags, timestamp FROM performance_metrics WHERE metric_name = ?"
	args := []any{name}
	if !since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, since.UTC())
	}
	if !until.IsZero() {
		q += " AND timestamp <= ?"
		args = append(args, until.UTC())
	}
	q += " ORDER BY id"
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, store.Wrap("range metrics", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var m Sample
		var tags string
		if err := rows.Scan(&m.ID, &m.Name, &m.Value, &tags, &m.Timestamp); err != nil {
			return nil, store.Wrap("range metrics", err)
		}
		if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("range metrics", err)
	}
	return out, nil
}

// Trim bulk-deletes samples older than before; the retention path only.
func (s *Store) Trim(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM performance_metrics WHERE timestamp < ?", before.UTC())
	if err != nil {
		return 0, store.Wrap("trim metrics", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.Wrap("trim metrics", err)
	}
	return n, nil
}
