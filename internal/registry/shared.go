package registry

import (
	"context"
	"time"

	"github.com/swarmstore/swarmstore/internal/store"
)

// SharedState is one versioned cross-agent value. Writers must present the
// version they read; the store rejects stale writes instead of locking.
type SharedState struct {
	Key       string
	Value     []byte
	UpdatedBy string
	Version   int64
	UpdatedAt time.Time
}

// GetShared returns the current value and version for key.
func (r *Registry) GetShared(ctx context.Context, key string) (SharedState, error) {
	var s SharedState
	err := r.db.QueryRowContext(ctx, `
		SELECT key, value, updated_by, version, updated_at
		FROM shared_state WHERE key = ?`, key).
		Scan(&s.Key, &s.Value, &s.UpdatedBy, &s.Version, &s.UpdatedAt)
	if err != nil {
		return SharedState{}, store.Wrap("get shared state", err)
	}
	return s, nil
}

// UpdateShared performs the conditional write that is the sole concurrency
// mechanism for shared state. expectedVersion 0 creates the key at version 1;
// otherwise the write succeeds only if the stored version still equals
// expectedVersion, bumping it by exactly one. A stale expectedVersion fails
// with store.ErrVersionConflict and the caller must re-read and recompute;
// updating a missing key with expectedVersion > 0 fails with
// store.ErrNotFound. Returns the new version.
func (r *Registry) UpdateShared(ctx context.Context, key string, value []byte, updatedBy string, expectedVersion int64) (int64, error) {
	now := time.Now().UTC()
	if expectedVersion == 0 {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO shared_state (key, value, updated_by, version, updated_at)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT(key) DO NOTHING`,
			key, value, updatedBy, now)
		if err != nil {
			return 0, store.Wrap("create shared state", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Someone created it first; the caller's view (absent) is stale.
			return 0, store.ErrVersionConflict
		}
		return 1, nil
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE shared_state
		SET value = ?, updated_by = ?, version = version + 1, updated_at = ?
		WHERE key = ? AND version = ?`,
		value, updatedBy, now, key, expectedVersion)
	if err != nil {
		return 0, store.Wrap("update shared state", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.Wrap("update shared state", err)
	}
	if n == 0 {
		var exists int
		if err := r.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM shared_state WHERE key = ?", key).Scan(&exists); err != nil {
			return 0, store.Wrap("update shared state", err)
		}
		if exists == 0 {
			return 0, store.ErrNotFound
		}
		return 0, store.ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

// DeleteShared removes a key regardless of version. Intended for operator
// cleanup, not for agent coordination paths.
func (r *Registry) DeleteShared(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM shared_state WHERE key = ?", key)
	return store.Wrap("delete shared state", err)
}
