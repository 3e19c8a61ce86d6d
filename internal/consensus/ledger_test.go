package consensus

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/swarmstore/swarmstore/internal/store"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "swarm.db"), store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewLedger(db)
}

func TestProposeAcceptTally(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	p, err := l.Propose(ctx, "deploy_ready", []byte("true"), "coord", []string{"a1", "a2", "a3"})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if p.Version != 1 {
		t.Fatalf("first proposal version = %d, want 1", p.Version)
	}

	if err := l.Accept(ctx, "deploy_ready", "a1"); err != nil {
		t.Fatalf("accept a1: %v", err)
	}
	if err := l.Accept(ctx, "deploy_ready", "a2"); err != nil {
		t.Fatalf("accept a2: %v", err)
	}

	st, err := l.GetState(ctx, "deploy_ready")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.AcceptedCount != 2 || st.TotalAcceptors != 3 {
		t.Fatalf("tally = %d/%d, want 2/3", st.AcceptedCount, st.TotalAcceptors)
	}
	if string(st.Value) != "true" {
		t.Fatalf("value = %q", st.Value)
	}
	if !MeetsQuorum(st, 2) {
		t.Fatalf("majority quorum should be met at 2/3")
	}
	if MeetsQuorum(st, 3) {
		t.Fatalf("unanimity should not be met at 2/3")
	}
}

func TestAcceptIdempotent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.Propose(ctx, "k", nil, "coord", []string{"a1", "a2"}); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := l.Accept(ctx, "k", "a1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := l.Accept(ctx, "k", "a1"); err != nil {
		t.Fatalf("second accept: %v", err)
	}
	st, err := l.GetState(ctx, "k")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.AcceptedCount != 1 {
		t.Fatalf("double accept changed the tally: %d", st.AcceptedCount)
	}
}

func TestConcurrentAcceptsAllRecorded(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	acceptors := []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8"}
	if _, err := l.Propose(ctx, "rollout", []byte("go"), "coord", acceptors); err != nil {
		t.Fatalf("propose: %v", err)
	}

	// Every acceptor votes at once. The accepts contend on the same row and
	// must all land; a lost or failed vote would understate the tally.
	var wg sync.WaitGroup
	errs := make([]error, len(acceptors))
	for i, id := range acceptors {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = l.Accept(ctx, "rollout", id)
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("accept %s: %v", acceptors[i], err)
		}
	}
	st, err := l.GetState(ctx, "rollout")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.AcceptedCount != len(acceptors) || st.TotalAcceptors != len(acceptors) {
		t.Fatalf("tally = %d/%d, want %d/%d",
			st.AcceptedCount, st.TotalAcceptors, len(acceptors), len(acceptors))
	}
	if !MeetsQuorum(st, len(acceptors)) {
		t.Fatalf("unanimous vote should meet full quorum")
	}
}

func TestAcceptMisuse(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if err := l.Accept(ctx, "nothing", "a1"); !errors.Is(err, store.ErrUnknownProposal) {
		t.Fatalf("expected ErrUnknownProposal, got %v", err)
	}

	if _, err := l.Propose(ctx, "k", nil, "coord", []string{"a1"}); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := l.Accept(ctx, "k", "outsider"); !errors.Is(err, store.ErrNotInAcceptorSet) {
		t.Fatalf("expected ErrNotInAcceptorSet, got %v", err)
	}
}

func TestReProposeResetsAcceptances(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.Propose(ctx, "k", []byte("v1"), "coord", []string{"a1", "a2"}); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := l.Accept(ctx, "k", "a1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	p, err := l.Propose(ctx, "k", []byte("v2"), "coord", []string{"a1", "a2", "a3"})
	if err != nil {
		t.Fatalf("re-propose: %v", err)
	}
	if p.Version != 2 {
		t.Fatalf("version = %d, want 2", p.Version)
	}

	st, err := l.GetState(ctx, "k")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.AcceptedCount != 0 || st.TotalAcceptors != 3 {
		t.Fatalf("tally after re-propose = %d/%d, want 0/3", st.AcceptedCount, st.TotalAcceptors)
	}
	if string(st.Value) != "v2" {
		t.Fatalf("value = %q", st.Value)
	}
}

func TestAcceptorSetDeduped(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	p, err := l.Propose(ctx, "k", nil, "coord", []string{"a1", "a1", "a2"})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if len(p.Acceptors) != 2 {
		t.Fatalf("acceptor set = %v, want deduped 2", p.Acceptors)
	}
}

func TestDrop(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.Propose(ctx, "k", nil, "coord", []string{"a1"}); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := l.Drop(ctx, "k"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, err := l.GetState(ctx, "k"); !errors.Is(err, store.ErrUnknownProposal) {
		t.Fatalf("expected ErrUnknownProposal after drop, got %v", err)
	}
}
