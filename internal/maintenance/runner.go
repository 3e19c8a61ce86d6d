// Package maintenance runs the housekeeping that keeps a coordination store
// healthy: the expiry sweep, vacuum, backup/restore, orphan cleanup and the
// event/metric retention trim. Every operation is idempotent and internally
// serialized, so overlapping runs are safe.
package maintenance

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/swarmstore/swarmstore/internal/store"
)

// Config controls retention windows and the cron schedule.
type Config struct {
	// EventRetention and MetricRetention bound the history kept by the
	// retention trim; zero disables trimming for that collection.
	EventRetention  time.Duration `json:"eventRetention" envconfig:"EVENT_RETENTION"`
	MetricRetention time.Duration `json:"metricRetention" envconfig:"METRIC_RETENTION"`

	// Cron specs (standard 5-field) for the scheduled runs; empty disables
	// that job.
	SweepSpec     string `json:"sweepSpec" envconfig:"SWEEP_SPEC"`
	VacuumSpec    string `json:"vacuumSpec" envconfig:"VACUUM_SPEC"`
	RetentionSpec string `json:"retentionSpec" envconfig:"RETENTION_SPEC"`
}

// DefaultConfig returns the stock maintenance schedule: sweep every five
// minutes, retention hourly, vacuum daily, thirty days of history.
func DefaultConfig() Config {
	return Config{
		EventRetention:  30 * 24 * time.Hour,
		MetricRetention: 30 * 24 * time.Hour,
		SweepSpec:       "*/5 * * * *",
		VacuumSpec:      "30 3 * * *",
		RetentionSpec:   "0 * * * *",
	}
}

// Runner executes maintenance operations against one store. Each operation
// holds its own mutex so concurrent invocations serialize instead of
// interleaving.
type Runner struct {
	db  *store.DB
	cfg Config

	sweepMu  sync.Mutex
	vacuumMu sync.Mutex
	backupMu sync.Mutex
	orphanMu sync.Mutex
	trimMu   sync.Mutex
}

// NewRunner returns a maintenance runner over db.
func NewRunner(db *store.DB, cfg Config) *Runner {
	return &Runner{db: db, cfg: cfg}
}

// SweepResult reports what one expiry sweep removed.
type SweepResult struct {
	Records  int64
	Sessions int64
}

// SweepExpired deletes records and sessions whose expiry has passed. It works
// from a snapshot of (id, expires_at) pairs taken at the start and re-checks
// the stored expiry inside each delete, so a row refreshed by a concurrent
// writer after the snapshot is left alone.
func (r *Runner) SweepExpired(ctx context.Context) (SweepResult, error) {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	now := time.Now().UTC()
	var res SweepResult

	type expiredRecord struct {
		key, namespace string
		expiresAt      time.Time
	}
	var records []expiredRecord
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, namespace, expires_at FROM memory_store
		WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return res, store.Wrap("sweep snapshot", err)
	}
	for rows.Next() {
		var e expiredRecord
		if err := rows.Scan(&e.key, &e.namespace, &e.expiresAt); err != nil {
			rows.Close()
			return res, store.Wrap("sweep snapshot", err)
		}
		records = append(records, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return res, store.Wrap("sweep snapshot", err)
	}
	rows.Close()

	for _, e := range records {
		// Re-validated delete: only removes the row if its expiry still
		// matches the snapshot and is still in the past.
		del, err := r.db.ExecContext(ctx, `
			DELETE FROM memory_store
			WHERE key = ? AND namespace = ? AND expires_at = ? AND expires_at <= ?`,
			e.key, e.namespace, e.expiresAt, now)
		if err != nil {
			return res, store.Wrap("sweep records", err)
		}
		if n, _ := del.RowsAffected(); n > 0 {
			res.Records += n
		}
	}

	type expiredSession struct {
		id        string
		expiresAt time.Time
	}
	var sessions []expiredSession
	rows, err = r.db.QueryContext(ctx, `
		SELECT id, expires_at FROM sessions
		WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return res, store.Wrap("sweep snapshot", err)
	}
	for rows.Next() {
		var e expiredSession
		if err := rows.Scan(&e.id, &e.expiresAt); err != nil {
			rows.Close()
			return res, store.Wrap("sweep snapshot", err)
		}
		sessions = append(sessions, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return res, store.Wrap("sweep snapshot", err)
	}
	rows.Close()

	for _, e := range sessions {
		del, err := r.db.ExecContext(ctx, `
			DELETE FROM sessions
			WHERE id = ? AND expires_at = ? AND expires_at <= ?`,
			e.id, e.expiresAt, now)
		if err != nil {
			return res, store.Wrap("sweep sessions", err)
		}
		if n, _ := del.RowsAffected(); n > 0 {
			res.Sessions += n
		}
	}

	if res.Records > 0 {
		r.db.FlushCache()
	}
	if res.Records > 0 || res.Sessions > 0 {
		slog.Info("Expiry sweep finished", "records", res.Records, "sessions", res.Sessions)
	}
	return res, nil
}

// Vacuum reclaims space from deleted and swept rows. Under WAL, readers keep
// running; writers are briefly blocked.
func (r *Runner) Vacuum(ctx context.Context) error {
	r.vacuumMu.Lock()
	defer r.vacuumMu.Unlock()

	if _, err := r.db.ExecContext(ctx, "VACUUM"); err != nil {
		return store.Wrap("vacuum", err)
	}
	slog.Info("Vacuum finished")
	return nil
}

// Orphan is an agent-memory row whose agent is no longer registered.
type Orphan struct {
	AgentID string
	Key     string
}

// FindOrphans returns agent-memory rows referencing deregistered agents.
// Normally empty: deregistration deletes memory in the same transaction,
// so orphans indicate writes that raced a deregistration.
func (r *Runner) FindOrphans(ctx context.Context) ([]Orphan, error) {
	r.orphanMu.Lock()
	defer r.orphanMu.Unlock()
	return r.findOrphansLocked(ctx)
}

func (r *Runner) findOrphansLocked(ctx context.Context) ([]Orphan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.agent_id, m.key
		FROM agent_memory m LEFT JOIN agents a ON a.id = m.agent_id
		WHERE a.id IS NULL
		ORDER BY m.agent_id, m.key`)
	if err != nil {
		return nil, store.Wrap("find orphans", err)
	}
	defer rows.Close()

	var out []Orphan
	for rows.Next() {
		var o Orphan
		if err := rows.Scan(&o.AgentID, &o.Key); err != nil {
			return nil, store.Wrap("find orphans", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("find orphans", err)
	}
	return out, nil
}

// CleanupOrphans deletes every orphaned agent-memory row and returns how
// many were removed.
func (r *Runner) CleanupOrphans(ctx context.Context) (int64, error) {
	r.orphanMu.Lock()
	defer r.orphanMu.Unlock()

	var n int64
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM agent_memory
			WHERE agent_id NOT IN (SELECT id FROM agents)`)
		if err != nil {
			return store.Wrap("cleanup orphans", err)
		}
		n, err = res.RowsAffected()
		return store.Wrap("cleanup orphans", err)
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("Orphan cleanup finished", "removed", n)
	}
	return n, nil
}

// TrimRetention applies the configured event and metric retention windows.
func (r *Runner) TrimRetention(ctx context.Context) error {
	r.trimMu.Lock()
	defer r.trimMu.Unlock()

	now := time.Now().UTC()
	if r.cfg.EventRetention > 0 {
		if _, err := r.db.ExecContext(ctx,
			"DELETE FROM events WHERE timestamp < ?", now.Add(-r.cfg.EventRetention)); err != nil {
			return store.Wrap("trim events", err)
		}
	}
	if r.cfg.MetricRetention > 0 {
		if _, err := r.db.ExecContext(ctx,
			"DELETE FROM performance_metrics WHERE timestamp < ?", now.Add(-r.cfg.MetricRetention)); err != nil {
			return store.Wrap("trim metrics", err)
		}
	}
	return nil
}
