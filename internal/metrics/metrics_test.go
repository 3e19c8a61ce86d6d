package metrics

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/swarmstore/swarmstore/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "swarm.db"), store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestRecordAndRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, v := range []float64{1, 2, 3} {
		if err := s.Record(ctx, "task_latency_ms", v, map[string]string{"agent": "a1"}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if err := s.Record(ctx, "queue_depth", 7, nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	samples, err := s.Range(ctx, "task_latency_ms", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	if samples[0].Value != 1 || samples[2].Value != 3 {
		t.Fatalf("samples out of order: %+v", samples)
	}
	if samples[0].Tags["agent"] != "a1" {
		t.Fatalf("tags = %v", samples[0].Tags)
	}
}

func TestRangeBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Record(ctx, "m", 1, nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	cut := time.Now().UTC()
	time.Sleep(20 * time.Millisecond)
	if err := s.Record(ctx, "m", 2, nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	recent, err := s.Range(ctx, "m", cut, time.Time{})
	if err != nil {
		t.Fatalf("range since: %v", err)
	}
	if len(recent) != 1 || recent[0].Value != 2 {
		t.Fatalf("since bound wrong: %+v", recent)
	}

	n, err := s.Trim(ctx, cut)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if n != 1 {
		t.Fatalf("trimmed %d, want 1", n)
	}
}

func TestTopologyRevisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.SaveTopology(ctx, TopologySnapshot{
		SwarmID:      "alpha",
		TopologyType: "mesh",
		Nodes:        []string{"a1", "a2"},
		Edges:        [][2]string{{"a1", "a2"}},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := s.SaveTopology(ctx, TopologySnapshot{
		SwarmID:      "alpha",
		TopologyType: "hierarchical",
		Nodes:        []string{"a1", "a2", "a3"},
		Edges:        [][2]string{{"a1", "a2"}, {"a1", "a3"}},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	latest, err := s.LatestTopology(ctx, "alpha")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != second.ID || latest.TopologyType != "hierarchical" {
		t.Fatalf("latest = %+v", latest)
	}

	history, err := s.TopologyHistory(ctx, "alpha")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].ID != first.ID {
		t.Fatalf("history = %+v", history)
	}
	// Earlier revisions are untouched by later saves.
	if len(history[0].Nodes) != 2 {
		t.Fatalf("first revision mutated: %+v", history[0])
	}

	if _, err := s.LatestTopology(ctx, "unknown"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWorkflowCheckpointOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w := WorkflowState{ID: "wf1", WorkflowType: "deploy", State: "step1", CheckpointData: []byte("a")}
	if err := s.Checkpoint(ctx, w); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	w.State = "step2"
	w.CheckpointData = []byte("b")
	if err := s.Checkpoint(ctx, w); err != nil {
		t.Fatalf("re-checkpoint: %v", err)
	}

	got, err := s.LoadWorkflow(ctx, "wf1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.State != "step2" || string(got.CheckpointData) != "b" {
		t.Fatalf("checkpoint not overwritten: %+v", got)
	}

	if err := s.DeleteWorkflow(ctx, "wf1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.LoadWorkflow(ctx, "wf1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
