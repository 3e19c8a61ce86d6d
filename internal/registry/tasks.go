package registry

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

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Priority orders competing pending tasks.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// transitions is the legal task state machine. Anything not listed fails
// with store.ErrInvalidTransition.
var transitions = map[TaskStatus][]TaskStatus{
	TaskPending:    {TaskInProgress, TaskCancelled},
	TaskInProgress: {TaskCompleted, TaskFailed, TaskCancelled},
}

func canTransition(from, to TaskStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Task is one unit of shared work.
type Task struct {
	ID           string
	Description  string
	Status       TaskStatus
	Priority     Priority
	AssignedTo   string // empty when unassigned
	Dependencies []string
	Result       []byte
	CreatedAt    time.Time
	CompletedAt  *time.Time // set exactly when the status is terminal
}

// CreateTask registers a new pending task. Dependencies are task ids that
// must complete before this one can be assigned; they are not validated for
// existence here since upstream tasks may be created concurrently.
func (r *Registry) CreateTask(ctx context.Context, description string, priority Priority, dependencies []string) (Task, error) {
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return Task{}, fmt.Errorf("unknown priority %q", priority)
	}
	deps, err := json.Marshal(dependencies)
	if err != nil {
		return Task{}, fmt.Errorf("encode dependencies: %w", err)
	}
	t := Task{
		ID:           uuid.NewString(),
		Description:  description,
		Status:       TaskPending,
		Priority:     priority,
		Dependencies: dependencies,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tasks (id, description, status, priority, dependencies, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Description, t.Status, t.Priority, string(deps), t.CreatedAt)
	if err != nil {
		return Task{}, store.Wrap("create task", err)
	}
	r.record(ctx, "task_created", "", map[string]any{"task_id": t.ID, "priority": string(priority)})
	return t, nil
}

// AssignTask moves a pending task to in_progress and assigns it to agentID,
// atomically. It fails with store.ErrNotFound if the task or agent is
// missing, store.ErrDependencyNotSatisfied if any dependency is not
// completed, and store.ErrInvalidTransition if the task is not pending.
func (r *Registry) AssignTask(ctx context.Context, taskID, agentID string) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM agents WHERE id = ?", agentID).Scan(&exists); err != nil {
			return store.Wrap("assign task", err)
		}
		if exists == 0 {
			return store.ErrNotFound
		}
		t, err := loadTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if !canTransition(t.Status, TaskInProgress) {
			return store.ErrInvalidTransition
		}
		for _, dep := range t.Dependencies {
			var status TaskStatus
			err := tx.QueryRowContext(ctx,
				"SELECT status FROM tasks WHERE id = ?", dep).Scan(&status)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				// A missing dependency is by definition not completed.
				return store.ErrDependencyNotSatisfied
			case err != nil:
				return store.Wrap("assign task", err)
			case status != TaskCompleted:
				return store.ErrDependencyNotSatisfied
			}
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE tasks SET status = ?, assigned_to = ? WHERE id = ?",
			TaskInProgress, agentID, taskID)
		return store.Wrap("assign task", err)
	})
	if err != nil {
		return err
	}
	r.record(ctx, "task_assigned", agentID, map[string]any{"task_id": taskID})
	return nil
}

// CompleteTask finishes an in-progress task with an opaque result.
func (r *Registry) CompleteTask(ctx context.Context, taskID string, result []byte) error {
	return r.finishTask(ctx, taskID, TaskCompleted, result)
}

// FailTask marks an in-progress task failed; result typically carries the
// failure detail.
func (r *Registry) FailTask(ctx context.Context, taskID string, result []byte) error {
	return r.finishTask(ctx, taskID, TaskFailed, result)
}

// CancelTask cancels a pending or in-progress task.
func (r *Registry) CancelTask(ctx context.Context, taskID string) error {
	return r.finishTask(ctx, taskID, TaskCancelled, nil)
}

func (r *Registry) finishTask(ctx context.Context, taskID string, to TaskStatus, result []byte) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		t, err := loadTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if !canTransition(t.Status, to) {
			return store.ErrInvalidTransition
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE tasks SET status = ?, result = ?, completed_at = ? WHERE id = ?",
			to, result, time.Now().UTC(), taskID)
		return store.Wrap("finish task", err)
	})
	if err != nil {
		return err
	}
	r.record(ctx, "task_"+string(to), "", map[string]any{"task_id": taskID})
	return nil
}

// GetTask returns one task by id.
func (r *Registry) GetTask(ctx context.Context, taskID string) (Task, error) {
	return scanTask(r.db.QueryRowContext(ctx, `
		SELECT id, description, status, priority, assigned_to, dependencies, result, created_at, completed_at
		FROM tasks WHERE id = ?`, taskID))
}

// ListTasks returns tasks filtered by status (empty = all), high priority
// first, oldest first within a priority.
func (r *Registry) ListTasks(ctx context.Context, status TaskStatus) ([]Task, error) {
	q := `SELECT id, description, status, priority, assigned_to, dependencies, result, created_at, completed_at
		FROM tasks`
	var args []any
	if status != "" {
		q += " WHERE status = ?"
		args = append(args, status)
	}
	q += ` ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, created_at`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, store.Wrap("list tasks", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("list tasks", err)
	}
	return out, nil
}

func loadTask(ctx context.Context, tx *sql.Tx, taskID string) (Task, error) {
	return scanTask(tx.QueryRowContext(ctx, `
		SELECT id, description, status, priority, assigned_to, dependencies, result, created_at, completed_at
		FROM tasks WHERE id = ?`, taskID))
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var assigned sql.NullString
	var deps string
	if err := row.Scan(&t.ID, &t.Description, &t.Status, &t.Priority, &assigned,
		&deps, &t.Result, &t.CreatedAt, &t.CompletedAt); err != nil {
		return Task{}, store.Wrap("load task", err)
	}
	t.AssignedTo = assigned.String
	if err := json.Unmarshal([]byte(deps), &t.Dependencies); err != nil {
		return Task{}, fmt.Errorf("decode dependencies: %w", err)
	}
	return t, nil
}
