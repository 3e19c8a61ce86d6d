package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/swarmstore/swarmstore/internal/store"
)

// AgentState is the lifecycle state of a registered agent.
type AgentState string

const (
	AgentIdle    AgentState = "idle"
	AgentBusy    AgentState = "busy"
	AgentError   AgentState = "error"
	AgentOffline AgentState = "offline"
)

// Valid reports whether s is a known agent state.
func (s AgentState) Valid() bool {
	switch s {
	case AgentIdle, AgentBusy, AgentError, AgentOffline:
		return true
	}
	return false
}

// Agent is one registered worker process.
type Agent struct {
	ID           string
	Type         string
	Capabilities []string
	State        AgentState
	SwarmID      string
	CreatedAt    time.Time
	LastActive   time.Time
}

// RegisterAgent adds an agent to the registry in the idle state. An id that
// is still registered fails with store.ErrDuplicateAgent; an id that was
// deregistered earlier may register again.
func (r *Registry) RegisterAgent(ctx context.Context, id, agentType string, capabilities []string, swarmID string) (Agent, error) {
	if id == "" {
		return Agent{}, fmt.Errorf("agent id required")
	}
	caps, err := json.Marshal(capabilities)
	if err != nil {
		return Agent{}, fmt.Errorf("encode capabilities: %w", err)
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO agents (id, type, capabilities, state, swarm_id, created_at, last_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, agentType, string(caps), AgentIdle, swarmID, now, now)
	if err != nil {
		return Agent{}, store.Wrap("register agent", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Agent{}, store.Wrap("register agent", err)
	}
	if n == 0 {
		return Agent{}, store.ErrDuplicateAgent
	}
	r.record(ctx, "agent_registered", id, map[string]any{"type": agentType, "swarm_id": swarmID})
	return Agent{
		ID: id, Type: agentType, Capabilities: capabilities,
		State: AgentIdle, SwarmID: swarmID, CreatedAt: now, LastActive: now,
	}, nil
}

// UpdateAgentState sets the agent's state and refreshes last_active.
func (r *Registry) UpdateAgentState(ctx context.Context, id string, state AgentState) error {
	if !state.Valid() {
		return fmt.Errorf("unknown agent state %q", state)
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE agents SET state = ?, last_active = ? WHERE id = ?",
		state, time.Now().UTC(), id)
	if err != nil {
		return store.Wrap("update agent state", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.Wrap("update agent state", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// TouchAgent refreshes last_active without changing state.
func (r *Registry) TouchAgent(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE agents SET last_active = ? WHERE id = ?", time.Now().UTC(), id)
	if err != nil {
		return store.Wrap("touch agent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetAgent returns one agent by id.
func (r *Registry) GetAgent(ctx context.Context, id string) (Agent, error) {
	return scanAgent(r.db.QueryRowContext(ctx, `
		SELECT id, type, capabilities, state, swarm_id, created_at, last_active
		FROM agents WHERE id = ?`, id))
}

// ListAgents returns the agents of one swarm, or all agents when swarmID is
// empty, ordered by id.
func (r *Registry) ListAgents(ctx context.Context, swarmID string) ([]Agent, error) {
	q := "SELECT id, type, capabilities, state, swarm_id, created_at, last_active FROM agents"
	var args []any
	if swarmID != "" {
		q += " WHERE swarm_id = ?"
		args = append(args, swarmID)
	}
	q += " ORDER BY id"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, store.Wrap("list agents", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("list agents", err)
	}
	return out, nil
}

// DeregisterAgent removes the agent, deletes its scratch memory and sends
// its in-progress tasks back to pending with no assignee, all in one
// transaction, so the work stays schedulable by the remaining swarm.
func (r *Registry) DeregisterAgent(ctx context.Context, id string) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM agents WHERE id = ?", id)
		if err != nil {
			return store.Wrap("deregister agent", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM agent_memory WHERE agent_id = ?", id); err != nil {
			return store.Wrap("deregister agent", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE tasks SET status = ?, assigned_to = NULL
			WHERE assigned_to = ? AND status = ?`,
			TaskPending, id, TaskInProgress)
		return store.Wrap("deregister agent", err)
	})
	if err != nil {
		return err
	}
	r.record(ctx, "agent_deregistered", id, nil)
	return nil
}

func scanAgent(row rowScanner) (Agent, error) {
	var a Agent
	var caps string
	if err := row.Scan(&a.ID, &a.Type, &caps, &a.State, &a.SwarmID, &a.CreatedAt, &a.LastActive); err != nil {
		return Agent{}, store.Wrap("load agent", err)
	}
	if err := json.Unmarshal([]byte(caps), &a.Capabilities); err != nil {
		return Agent{}, fmt.Errorf("decode capabilities: %w", err)
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
