package maintenance

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/swarmstore/swarmstore/internal/consensus"
	"github.com/swarmstore/swarmstore/internal/events"
	"github.com/swarmstore/swarmstore/internal/patterns"
	"github.com/swarmstore/swarmstore/internal/registry"
	"github.com/swarmstore/swarmstore/internal/store"
)

// populate fills every collection so the round trip exercises the full
// schema.
func populate(t *testing.T, db *store.DB) {
	t.Helper()
	ctx := context.Background()

	if err := db.Put(ctx, "prefs", "theme", []byte("dark"), nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.PutTTL(ctx, "", "lease", []byte("held"), nil, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}

	reg := registry.New(db, nil)
	if _, err := reg.RegisterAgent(ctx, "a1", "coder", []string{"go"}, "alpha"); err != nil {
		t.Fatalf("register: %v", err)
	}
	task, err := reg.CreateTask(ctx, "work", registry.PriorityHigh, nil)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := reg.AssignTask(ctx, task.ID, "a1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := reg.SetAgentMemory(ctx, "a1", "scratch", []byte("wip")); err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, err := reg.UpdateShared(ctx, "plan", []byte("v1"), "a1", 0); err != nil {
		t.Fatalf("shared: %v", err)
	}

	log := events.NewLog(db)
	if _, err := log.Append(ctx, "task_assigned", "a1", []byte("{}")); err != nil {
		t.Fatalf("append: %v", err)
	}

	pats := patterns.NewStore(db)
	if _, err := pats.Put(ctx, patterns.Pattern{Type: "retry", Confidence: 0.8}); err != nil {
		t.Fatalf("pattern: %v", err)
	}

	ledger := consensus.NewLedger(db)
	if _, err := ledger.Propose(ctx, "ship", []byte("yes"), "a1", []string{"a1", "a2"}); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := ledger.Accept(ctx, "ship", "a1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "swarm.db"), store.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	populate(t, db)
	ctx := context.Background()
	r := NewRunner(db, DefaultConfig())

	before, err := db.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}

	dest := filepath.Join(dir, "backup.zst")
	if err := r.Backup(ctx, dest); err != nil {
		t.Fatalf("backup: %v", err)
	}

	// Mutate the live store after the backup instant.
	if err := db.Put(ctx, "prefs", "theme", []byte("light"), nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := db.Delete(ctx, "", "lease"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if err := r.Restore(ctx, dest); err != nil {
		t.Fatalf("restore: %v", err)
	}

	after, err := db.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("counts diverged:\n before %v\n after  %v", before, after)
	}

	// Values are back at the backup instant too.
	theme, err := db.Get(ctx, "prefs", "theme")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(theme) != "dark" {
		t.Fatalf("theme = %q, want pre-mutation value", theme)
	}
	if _, err := db.Get(ctx, "", "lease"); err != nil {
		t.Fatalf("deleted row not restored: %v", err)
	}

	st, err := consensus.NewLedger(db).GetState(ctx, "ship")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.AcceptedCount != 1 || st.TotalAcceptors != 2 {
		t.Fatalf("consensus tally lost: %d/%d", st.AcceptedCount, st.TotalAcceptors)
	}
}

func TestBackupIntoNewStore(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "orig.db"), store.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	populate(t, db)
	ctx := context.Background()

	dest := filepath.Join(dir, "backup.zst")
	if err := NewRunner(db, DefaultConfig()).Backup(ctx, dest); err != nil {
		t.Fatalf("backup: %v", err)
	}

	// A fresh, empty store can adopt the backup wholesale.
	fresh, err := store.Open(filepath.Join(dir, "fresh.db"), store.Options{})
	if err != nil {
		t.Fatalf("open fresh: %v", err)
	}
	t.Cleanup(func() { _ = fresh.Close() })
	if err := NewRunner(fresh, DefaultConfig()).Restore(ctx, dest); err != nil {
		t.Fatalf("restore: %v", err)
	}

	orig, err := db.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	adopted, err := fresh.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if !reflect.DeepEqual(orig, adopted) {
		t.Fatalf("counts diverged:\n orig    %v\n adopted %v", orig, adopted)
	}
}
