package metrics

import (
	"context"
	"time"

	"github.com/swarmstore/swarmstore/internal/store"
)

// WorkflowState is a resumable checkpoint, overwritten in place each time a
// workflow checkpoints.
type WorkflowState struct {
	ID             string
	WorkflowType   string
	State          string
	CheckpointData []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Checkpoint upserts the workflow's current checkpoint.
func (s *Store) Checkpoint(ctx context.Context, w WorkflowState) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_states (id, workflow_type, state, checkpoint_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workflow_type = excluded.workflow_type,
			state = excluded.state,
			checkpoint_data = excluded.checkpoint_data,
			updated_at = excluded.updated_at`,
		w.ID, w.WorkflowType, w.State, w.CheckpointData, now, now)
	return store.Wrap("checkpoint workflow", err)
}

// LoadWorkflow returns the latest checkpoint for id.
func (s *Store) LoadWorkflow(ctx context.Context, id string) (WorkflowState, error) {
	var w WorkflowState
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_type, state, checkpoint_data, created_at, updated_at
		FROM workflow_states WHERE id = ?`, id).
		Scan(&w.ID, &w.WorkflowType, &w.State, &w.CheckpointData, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return WorkflowState{}, store.Wrap("load workflow", err)
	}
	return w, nil
}

// DeleteWorkflow removes a finished workflow's checkpoint.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM workflow_states WHERE id = ?", id)
	return store.Wrap("delete workflow", err)
}
