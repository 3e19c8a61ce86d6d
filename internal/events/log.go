// Package events implements the append-only coordination event log: an
// audit/replay history of everything that happened in the swarm, queryable
// by time range and type. The only permitted deletion is the bulk retention
// trim run by maintenance.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmstore/swarmstore/internal/store"
)

// Event is one immutable history entry.
type Event struct {
	ID        int64
	EventID   string
	Type      string
	Source    string
	Data      []byte
	Timestamp time.Time
}

// Filter selects events for Query. Zero fields are unrestricted.
type Filter struct {
	Type  string
	Since time.Time
	Until time.Time
	Limit int
}

// Log is the append-only event history plus an in-process watch fan-out so
// co-resident components can react to coordination events without polling.
type Log struct {
	db *store.DB

	mu       sync.RWMutex
	watchers map[string][]func(Event)
}

// NewLog returns an event log over db.
func NewLog(db *store.DB) *Log {
	return &Log{db: db, watchers: make(map[string][]func(Event))}
}

// Append records an event and notifies watchers. Events are never mutated
// afterwards.
func (l *Log) Append(ctx context.Context, typ, source string, data []byte) (Event, error) {
	ev := Event{
		EventID:   uuid.NewString(),
		Type:      typ,
		Source:    source,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO events (event_id, type, source, data, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		ev.EventID, ev.Type, ev.Source, ev.Data, ev.Timestamp)
	if err != nil {
		return Event{}, store.Wrap("append event", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		ev.ID = id
	}
	l.notify(ev)
	return ev, nil
}

// Query returns events matching f in timestamp order (oldest first).
func (l *Log) Query(ctx context.Context, f Filter) ([]Event, error) {
	q := "SELECT id, event_id, type, source, data, timestamp FROM events WHERE 1=1"
	var args []any
	if f.Type != "" {
		q += " AND type = ?"
		args = append(args, f.Type)
	}
	if !f.Since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		q += " AND timestamp <= ?"
		args = append(args, f.Until.UTC())
	}
	q += " ORDER BY id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, store.Wrap("query events", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.Type, &ev.Source, &ev.Data, &ev.Timestamp); err != nil {
			return nil, store.Wrap("query events", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("query events", err)
	}
	return out, nil
}

// Trim bulk-deletes events older than before. This is the only deletion path
// and exists solely for the retention policy.
func (l *Log) Trim(ctx context.Context, before time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, "DELETE FROM events WHERE timestamp < ?", before.UTC())
	if err != nil {
		return 0, store.Wrap("trim events", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.Wrap("trim events", err)
	}
	return n, nil
}

// Watch registers fn for every appended event of the given type; an empty
// type watches everything. Callbacks run synchronously on the appender's
// goroutine and must not block.
func (l *Log) Watch(typ string, fn func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watchers[typ] = append(l.watchers[typ], fn)
}

func (l *Log) notify(ev Event) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, fn := range l.watchers[ev.Type] {
		fn(ev)
	}
	for _, fn := range l.watchers[""] {
		fn(ev)
	}
}
