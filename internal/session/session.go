// Package session provides cross-invocation context persistence keyed by an
// opaque session id. Sessions live in the shared coordination store and are
// reaped by the same expiry sweep as records.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/swarmstore/swarmstore/internal/store"
)

// createAttempts bounds id generation retries on the (practically
// unreachable) chance of a UUID collision.
const createAttempts = 3

// Session is one persisted conversation/invocation context.
type Session struct {
	ID           string
	Data         map[string]any
	CreatedAt    time.Time
	LastAccessed time.Time
	ExpiresAt    *time.Time
}

func (s Session) expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// Manager persists sessions in the shared store.
type Manager struct {
	db *store.DB
	// ttl applies to new and refreshed sessions; zero means sessions never
	// expire.
	ttl time.Duration
}

// NewManager returns a session manager over db. ttl controls how long an
// untouched session stays resumable.
func NewManager(db *store.DB, ttl time.Duration) *Manager {
	return &Manager{db: db, ttl: ttl}
}

// Create persists a new session with initialData and returns its id. Ids are
// random UUIDs; an insert conflict is retried a few times and then reported,
// which in practice never happens.
func (m *Manager) Create(ctx context.Context, initialData map[string]any) (string, error) {
	if initialData == nil {
		initialData = map[string]any{}
	}
	blob, err := json.Marshal(initialData)
	if err != nil {
		return "", fmt.Errorf("encode session data: %w", err)
	}
	now := time.Now().UTC()
	for range createAttempts {
		id := uuid.NewString()
		res, err := m.db.ExecContext(ctx, `
			INSERT INTO sessions (id, data, created_at, last_accessed, expires_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			id, string(blob), now, now, m.expiry(now))
		if err != nil {
			return "", store.Wrap("create session", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			return id, nil
		}
	}
	return "", &store.StorageError{Op: "create session", Err: errors.New("session id space exhausted")}
}

// Resume returns the session's data and refreshes last_accessed and expiry.
// Expired or unknown sessions return store.ErrNotFound.
func (m *Manager) Resume(ctx context.Context, id string) (map[string]any, error) {
	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.touch(ctx, id); err != nil {
		return nil, err
	}
	return s.Data, nil
}

// Update shallow-merges patch into the session's data and refreshes
// last_accessed and expiry. A key with a nil value removes that key.
// Expired or unknown sessions return store.ErrNotFound.
func (m *Manager) Update(ctx context.Context, id string, patch map[string]any) error {
	return m.db.WithTx(ctx, func(tx *sql.Tx) error {
		s, err := scanSession(tx.QueryRowContext(ctx,
			"SELECT id, data, created_at, last_accessed, expires_at FROM sessions WHERE id = ?", id))
		if err != nil {
			return err
		}
		if s.expired(time.Now().UTC()) {
			return store.ErrNotFound
		}
		for k, v := range patch {
			if v == nil {
				delete(s.Data, k)
				continue
			}
			s.Data[k] = v
		}
		blob, err := json.Marshal(s.Data)
		if err != nil {
			return fmt.Errorf("encode session data: %w", err)
		}
		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx,
			"UPDATE sessions SET data = ?, last_accessed = ?, expires_at = ? WHERE id = ?",
			string(blob), now, m.expiry(now), id)
		return store.Wrap("update session", err)
	})
}

// Get returns the session without refreshing last_accessed. Used by
// diagnostics and tests.
func (m *Manager) Get(ctx context.Context, id string) (Session, error) {
	return m.load(ctx, id)
}

// Close deletes the session. Closing an unknown session is a no-op.
func (m *Manager) Close(ctx context.Context, id string) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	return store.Wrap("close session", err)
}

func (m *Manager) expiry(now time.Time) *time.Time {
	if m.ttl <= 0 {
		return nil
	}
	t := now.Add(m.ttl)
	return &t
}

func (m *Manager) load(ctx context.Context, id string) (Session, error) {
	s, err := scanSession(m.db.QueryRowContext(ctx,
		"SELECT id, data, created_at, last_accessed, expires_at FROM sessions WHERE id = ?", id))
	if err != nil {
		return Session{}, err
	}
	if s.expired(time.Now().UTC()) {
		return Session{}, store.ErrNotFound
	}
	return s, nil
}

func (m *Manager) touch(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := m.db.ExecContext(ctx,
		"UPDATE sessions SET last_accessed = ?, expires_at = ? WHERE id = ?",
		now, m.expiry(now), id)
	return store.Wrap("touch session", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	var data string
	if err := row.Scan(&s.ID, &data, &s.CreatedAt, &s.LastAccessed, &s.ExpiresAt); err != nil {
		return Session{}, store.Wrap("load session", err)
	}
	if err := json.Unmarshal([]byte(data), &s.Data); err != nil {
		return Session{}, fmt.Errorf("decode session data: %w", err)
	}
	if s.Data == nil {
		s.Data = map[string]any{}
	}
	return s, nil
}
