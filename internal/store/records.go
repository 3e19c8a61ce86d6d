package store

import (
	"context"
	"strings"
	"time"
)

// DefaultNamespace is used whenever a caller passes an empty namespace.
const DefaultNamespace = "default"

// Record is one entry of the general key/value collection. Value and
// Metadata are opaque to the store.
type Record struct {
	Key       string
	Namespace string
	Value     []byte
	Metadata  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time
}

// Expired reports whether the record is logically absent at now. A record
// whose expiry equals now is already expired, so a zero TTL is unreadable
// immediately.
func (r Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

func normalizeNamespace(ns string) string {
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}

func cacheKey(namespace, key string) string {
	return namespace + "\x00" + key
}

// Put stores value under (key, namespace), overwriting any previous entry.
// The configured default TTL applies; records without one never expire.
func (d *DB) Put(ctx context.Context, namespace, key string, value, metadata []byte) error {
	var expires *time.Time
	if d.opts.DefaultTTL > 0 {
		t := time.Now().UTC().Add(d.opts.DefaultTTL)
		expires = &t
	}
	return d.putRecord(ctx, namespace, key, value, metadata, expires)
}

// PutTTL stores value with an explicit time-to-live. The TTL is converted to
// an absolute expiry at write time; a zero or negative TTL writes an entry
// that is already expired and therefore never readable.
func (d *DB) PutTTL(ctx context.Context, namespace, key string, value, metadata []byte, ttl time.Duration) error {
	t := time.Now().UTC().Add(ttl)
	return d.putRecord(ctx, namespace, key, value, metadata, &t)
}

func (d *DB) putRecord(ctx context.Context, namespace, key string, value, metadata []byte, expires *time.Time) error {
	namespace = normalizeNamespace(namespace)
	now := time.Now().UTC()
	_, err := d.ExecContext(ctx, `
		INSERT INTO memory_store (key, namespace, value, metadata, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key, namespace) DO UPDATE SET
			value = excluded.value,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`,
		key, namespace, value, metadata, now, now, expires)
	if err != nil {
		return Wrap("put record", err)
	}
	d.gen.Add(1)
	if d.cache != nil {
		d.cache.Remove(cacheKey(namespace, key))
	}
	return nil
}

// Get returns the value stored under (key, namespace). Expired entries are
// logically absent and return ErrNotFound even before any sweep runs.
func (d *DB) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	rec, err := d.GetRecord(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	return rec.Value, nil
}

// GetRecord returns the full record under (key, namespace), applying the
// same lazy-expiry rule as Get.
func (d *DB) GetRecord(ctx context.Context, namespace, key string) (Record, error) {
	namespace = normalizeNamespace(namespace)
	now := time.Now().UTC()
	if d.cache != nil && d.cacheFresh(ctx) {
		if rec, ok := d.cache.Get(cacheKey(namespace, key)); ok {
			if rec.Expired(now) {
				d.cache.Remove(cacheKey(namespace, key))
				return Record{}, ErrNotFound
			}
			return rec, nil
		}
	}
	gen := d.gen.Load()
	var rec Record
	err := d.QueryRowContext(ctx, `
		SELECT key, namespace, value, metadata, created_at, updated_at, expires_at
		FROM memory_store WHERE key = ? AND namespace = ?`,
		key, namespace).
		Scan(&rec.Key, &rec.Namespace, &rec.Value, &rec.Metadata, &rec.CreatedAt, &rec.UpdatedAt, &rec.ExpiresAt)
	if err != nil {
		return Record{}, Wrap("get record", err)
	}
	if rec.Expired(now) {
		return Record{}, ErrNotFound
	}
	// A write that committed while this row was in flight has already run
	// its invalidation; caching the row would pin the overwritten value.
	if d.cache != nil && d.gen.Load() == gen {
		d.cache.Add(cacheKey(namespace, key), rec)
	}
	return rec, nil
}

// Delete removes (key, namespace) and reports whether a row was present.
func (d *DB) Delete(ctx context.Context, namespace, key string) (bool, error) {
	namespace = normalizeNamespace(namespace)
	res, err := d.ExecContext(ctx,
		"DELETE FROM memory_store WHERE key = ? AND namespace = ?", key, namespace)
	if err != nil {
		return false, Wrap("delete record", err)
	}
	d.gen.Add(1)
	if d.cache != nil {
		d.cache.Remove(cacheKey(namespace, key))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, Wrap("delete record", err)
	}
	return n > 0, nil
}

// Scan returns up to limit live records in the namespace whose key starts
// with prefix, ordered by key. An empty prefix scans the whole namespace; a
// limit <= 0 means no limit. The result is a snapshot; Scan is safely
// re-invocable but not resumable mid-way.
func (d *DB) Scan(ctx context.Context, namespace, prefix string, limit int) ([]Record, error) {
	namespace = normalizeNamespace(namespace)
	now := time.Now().UTC()
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.QueryContext(ctx, `
		SELECT key, namespace, value, metadata, created_at, updated_at, expires_at
		FROM memory_store
		WHERE namespace = ? AND key LIKE ? ESCAPE '\'
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY key LIMIT ?`,
		namespace, escapeLike(prefix)+"%", now, limit)
	if err != nil {
		return nil, Wrap("scan records", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Key, &rec.Namespace, &rec.Value, &rec.Metadata,
			&rec.CreatedAt, &rec.UpdatedAt, &rec.ExpiresAt); err != nil {
			return nil, Wrap("scan records", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap("scan records", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
