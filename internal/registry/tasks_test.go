package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/swarmstore/swarmstore/internal/store"
)

func TestTaskStateMachine(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.RegisterAgent(ctx, "a1", "coder", nil, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	task, err := r.CreateTask(ctx, "build the thing", PriorityHigh, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != TaskPending {
		t.Fatalf("new task status = %s", task.Status)
	}

	// pending -> completed directly is illegal.
	if err := r.CompleteTask(ctx, task.ID, nil); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := r.AssignTask(ctx, task.ID, "a1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	got, err := r.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != TaskInProgress || got.AssignedTo != "a1" {
		t.Fatalf("after assign: status=%s assigned=%q", got.Status, got.AssignedTo)
	}
	if got.CompletedAt != nil {
		t.Fatalf("completed_at must stay unset until terminal")
	}

	// Assigning again is illegal from in_progress.
	if err := r.AssignTask(ctx, task.ID, "a1"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on re-assign, got %v", err)
	}

	if err := r.CompleteTask(ctx, task.ID, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err = r.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != TaskCompleted || got.CompletedAt == nil {
		t.Fatalf("after complete: status=%s completed_at=%v", got.Status, got.CompletedAt)
	}
	if string(got.Result) != `{"ok":true}` {
		t.Fatalf("result = %q", got.Result)
	}

	// Terminal states admit nothing.
	if err := r.CancelTask(ctx, task.ID); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from completed, got %v", err)
	}
}

func TestCancelFromPendingAndInProgress(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.RegisterAgent(ctx, "a1", "coder", nil, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	pending, err := r.CreateTask(ctx, "p", PriorityLow, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.CancelTask(ctx, pending.ID); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}

	running, err := r.CreateTask(ctx, "r", PriorityLow, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.AssignTask(ctx, running.ID, "a1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := r.CancelTask(ctx, running.ID); err != nil {
		t.Fatalf("cancel in_progress: %v", err)
	}
	got, err := r.GetTask(ctx, running.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != TaskCancelled || got.CompletedAt == nil {
		t.Fatalf("after cancel: status=%s completed_at=%v", got.Status, got.CompletedAt)
	}
}

func TestAssignBlockedByDependency(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.RegisterAgent(ctx, "a1", "coder", nil, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	t0, err := r.CreateTask(ctx, "prepare", PriorityMedium, nil)
	if err != nil {
		t.Fatalf("create t0: %v", err)
	}
	t1, err := r.CreateTask(ctx, "build", PriorityMedium, []string{t0.ID})
	if err != nil {
		t.Fatalf("create t1: %v", err)
	}

	if err := r.AssignTask(ctx, t1.ID, "a1"); !errors.Is(err, store.ErrDependencyNotSatisfied) {
		t.Fatalf("expected ErrDependencyNotSatisfied, got %v", err)
	}

	if err := r.AssignTask(ctx, t0.ID, "a1"); err != nil {
		t.Fatalf("assign t0: %v", err)
	}
	if err := r.CompleteTask(ctx, t0.ID, nil); err != nil {
		t.Fatalf("complete t0: %v", err)
	}

	if err := r.AssignTask(ctx, t1.ID, "a1"); err != nil {
		t.Fatalf("assign t1 after dependency completed: %v", err)
	}
	got, err := r.GetTask(ctx, t1.ID)
	if err != nil {
		t.Fatalf("get t1: %v", err)
	}
	if got.Status != TaskInProgress || got.AssignedTo != "a1" {
		t.Fatalf("t1 after assign: status=%s assigned=%q", got.Status, got.AssignedTo)
	}
}

func TestAssignMissingTaskOrAgent(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.RegisterAgent(ctx, "a1", "coder", nil, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	task, err := r.CreateTask(ctx, "t", PriorityMedium, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := r.AssignTask(ctx, "no-such-task", "a1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing task, got %v", err)
	}
	if err := r.AssignTask(ctx, task.ID, "no-such-agent"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing agent, got %v", err)
	}
	// A missing dependency id counts as unsatisfied, not as not-found.
	blocked, err := r.CreateTask(ctx, "b", PriorityMedium, []string{"ghost-dep"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.AssignTask(ctx, blocked.ID, "a1"); !errors.Is(err, store.ErrDependencyNotSatisfied) {
		t.Fatalf("expected ErrDependencyNotSatisfied for missing dep, got %v", err)
	}
}

func TestListTasksOrdering(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.CreateTask(ctx, "low", PriorityLow, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.CreateTask(ctx, "high", PriorityHigh, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.CreateTask(ctx, "medium", "", nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	tasks, err := r.ListTasks(ctx, TaskPending)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	if tasks[0].Description != "high" || tasks[1].Description != "medium" || tasks[2].Description != "low" {
		t.Fatalf("priority ordering wrong: %s, %s, %s",
			tasks[0].Description, tasks[1].Description, tasks[2].Description)
	}
}
