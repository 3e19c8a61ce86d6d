package maintenance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/swarmstore/swarmstore/internal/store"
)

// Backup writes a self-consistent point-in-time copy of the store to dest as
// a zstd-compressed SQLite file. The snapshot is taken with VACUUM INTO,
// which runs inside its own read transaction and therefore never observes a
// torn write.
func (r *Runner) Backup(ctx context.Context, dest string) error {
	r.backupMu.Lock()
	defer r.backupMu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".swarmstore-backup-*")
	if err != nil {
		return fmt.Errorf("backup staging: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	// VACUUM INTO refuses to write over an existing file.
	os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	if _, err := r.db.ExecContext(ctx, "VACUUM INTO ?", tmpPath); err != nil {
		return store.Wrap("backup snapshot", err)
	}

	src, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("backup staging: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("backup destination: %w", err)
	}
	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		return fmt.Errorf("backup compression: %w", err)
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("backup write: %w", err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("backup write: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("backup write: %w", err)
	}
	slog.Info("Backup finished", "dest", dest)
	return nil
}

// Restore replaces the store's contents with the backup at src. The backup
// is decompressed and integrity-checked first; the live store is only
// touched once the copy is known good, and the row replacement itself is one
// transaction per the attached snapshot.
func (r *Runner) Restore(ctx context.Context, src string) error {
	r.backupMu.Lock()
	defer r.backupMu.Unlock()

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("restore source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp("", "swarmstore-restore-*.db")
	if err != nil {
		return fmt.Errorf("restore staging: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	dec, err := zstd.NewReader(in)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("restore decompression: %w", err)
	}
	_, err = io.Copy(tmp, dec.IOReadCloser())
	dec.Close()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("restore staging: %w", err)
	}

	// Refuse a corrupt or non-store backup before touching live data.
	check, err := store.Open(tmpPath, store.Options{})
	if err != nil {
		return fmt.Errorf("restore verification: %w", err)
	}
	check.Close()

	// ATTACH is per-connection, so the attach, the copy transaction and the
	// detach must all run on the same pinned connection.
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return store.Wrap("restore attach", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS restore_src", tmpPath); err != nil {
		return store.Wrap("restore attach", err)
	}
	defer conn.ExecContext(ctx, "DETACH DATABASE restore_src")

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return store.Wrap("restore begin", err)
	}
	for _, table := range store.Collections {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			tx.Rollback()
			return store.Wrap("restore clear "+table, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" SELECT * FROM restore_src."+table); err != nil {
			tx.Rollback()
			return store.Wrap("restore copy "+table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return store.Wrap("restore commit", err)
	}
	r.db.FlushCache()
	slog.Info("Restore finished", "src", src)
	return nil
}
