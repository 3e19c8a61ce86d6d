// Package store implements the embedded coordination store shared by all
// agents of one swarm: a single SQLite file holding records, sessions, the
// agent and task registries, shared state, events, patterns, metrics,
// topology snapshots and consensus proposals.
//
// A single *DB handle is opened by the host process and passed explicitly to
// every component; there are no package-level singletons.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
)

// Options control how a store is opened.
type Options struct {
	// CacheSize is the number of records held in the in-process read cache.
	// Zero disables the cache.
	CacheSize int
	// BusyTimeout is the SQLite busy timeout for contended writes.
	BusyTimeout time.Duration
	// DefaultTTL is applied to records written without an explicit TTL.
	// Zero means such records never expire.
	DefaultTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
	return o
}

// DB is the shared store handle. It embeds *sql.DB so entity services can
// issue queries directly while the record cache and transaction helper stay
// in one place.
type DB struct {
	*sql.DB
	opts  Options
	cache *lru.Cache[string, Record]

	// gen counts committed record writes through this handle. Reads snapshot
	// it before querying and decline to cache a row when it moved, so a write
	// that landed mid-read can never be shadowed by a stale cache entry.
	gen atomic.Uint64

	// verConn is a pinned connection whose data_version counter SQLite bumps
	// whenever any other connection commits, including other processes. Nil
	// for in-memory stores, which have a single connection and no outside
	// writers.
	verMu   sync.Mutex
	verConn *sql.Conn
	dataVer int64
}

// Open opens the store at path, creating the file and schema if missing.
// A file that fails the SQLite integrity check refuses to open: the store
// never serves partial data from a corrupt medium.
//
// Transactions begin immediate: a deferred transaction that reads before
// writing cannot upgrade its lock under WAL once another writer has
// committed, and fails with SQLITE_BUSY without consulting the busy
// timeout. Taking the write lock at begin makes concurrent read-modify-write
// transactions queue on the busy timeout instead.
func Open(path string, opts Options) (*DB, error) {
	opts = opts.withDefaults()
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_txlock=immediate",
		path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, Wrap("open", err)
	}
	d, err := finishOpen(db, opts, true)
	if err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// OpenMemory opens a private in-memory store, used by tests and ephemeral
// swarms. The connection pool is capped at one so every query sees the same
// database.
func OpenMemory(opts Options) (*DB, error) {
	opts = opts.withDefaults()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, Wrap("open", err)
	}
	db.SetMaxOpenConns(1)
	d, err := finishOpen(db, opts, false)
	if err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func finishOpen(db *sql.DB, opts Options, pinVersionConn bool) (*DB, error) {
	var verdict string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&verdict); err != nil {
		return nil, Wrap("integrity check", err)
	}
	if verdict != "ok" {
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("integrity check failed: %s", verdict)}
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, Wrap("apply schema", err)
	}
	d := &DB{DB: db, opts: opts}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, Record](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("record cache: %w", err)
		}
		d.cache = cache
		if pinVersionConn {
			conn, err := db.Conn(context.Background())
			if err != nil {
				return nil, Wrap("pin version connection", err)
			}
			if err := conn.QueryRowContext(context.Background(), "PRAGMA data_version").Scan(&d.dataVer); err != nil {
				conn.Close()
				return nil, Wrap("pin version connection", err)
			}
			d.verConn = conn
		}
	}
	return d, nil
}

// Close releases the pinned version connection, if any, and closes the pool.
func (d *DB) Close() error {
	if d.verConn != nil {
		_ = d.verConn.Close()
	}
	return d.DB.Close()
}

// cacheFresh reports whether cached records may still be served. The pinned
// connection's data_version only moves when some other connection committed;
// data_version counters are per connection, so the comparison must always
// read through the same one. A move drops the whole cache, because the
// writer may live in another process and cannot invalidate per key.
func (d *DB) cacheFresh(ctx context.Context) bool {
	if d.verConn == nil {
		return true
	}
	d.verMu.Lock()
	defer d.verMu.Unlock()
	var v int64
	if err := d.verConn.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return false
	}
	if v != d.dataVer {
		d.dataVer = v
		d.cache.Purge()
		return false
	}
	return true
}

// DefaultTTL returns the configured default record TTL (zero = none).
func (d *DB) DefaultTTL() time.Duration { return d.opts.DefaultTTL }

// WithTx runs fn inside a single transaction. The transaction is committed
// if fn returns nil and fully rolled back if fn returns an error or panics,
// leaving no partial effect; errors from fn pass through unwrapped so
// sentinel checks keep working.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return Wrap("begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Wrap("transaction", ctxErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return Wrap("commit", err)
	}
	return nil
}

// Counts returns the current row count of every collection. Expired rows
// still physically present are included; this is a physical census used by
// status reporting and backup verification.
func (d *DB) Counts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(Collections))
	for _, table := range Collections {
		var n int64
		if err := d.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, Wrap("count "+table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// FlushCache drops every cached record. Called after bulk deletions such as
// the expiry sweep or a restore.
func (d *DB) FlushCache() {
	d.gen.Add(1)
	if d.cache != nil {
		d.cache.Purge()
	}
}
