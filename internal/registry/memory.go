package registry

import (
	"context"
	"time"

	"github.com/swarmstore/swarmstore/internal/store"
)

// MemoryEntry is one row of an agent's private scratch space. Entries are
// owned by the named agent and removed with it on deregistration.
type MemoryEntry struct {
	AgentID   string
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// SetAgentMemory upserts a scratch value for (agentID, key). The agent is
// not required to be registered; orphaned rows are found and removed by
// maintenance.
func (r *Registry) SetAgentMemory(ctx context.Context, agentID, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO agent_memory (agent_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		agentID, key, value, time.Now().UTC())
	return store.Wrap("set agent memory", err)
}

// GetAgentMemory returns the scratch value for (agentID, key).
func (r *Registry) GetAgentMemory(ctx context.Context, agentID, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT value FROM agent_memory WHERE agent_id = ? AND key = ?",
		agentID, key).Scan(&value)
	if err != nil {
		return nil, store.Wrap("get agent memory", err)
	}
	return value, nil
}

// ListAgentMemory returns every scratch entry of one agent, ordered by key.
func (r *Registry) ListAgentMemory(ctx context.Context, agentID string) ([]MemoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT agent_id, key, value, updated_at
		FROM agent_memory WHERE agent_id = ? ORDER BY key`, agentID)
	if err != nil {
		return nil, store.Wrap("list agent memory", err)
	}
	defer rows.Close()

	var out []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.AgentID, &e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, store.Wrap("list agent memory", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("list agent memory", err)
	}
	return out, nil
}

// DeleteAgentMemory removes one scratch entry.
func (r *Registry) DeleteAgentMemory(ctx context.Context, agentID, key string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM agent_memory WHERE agent_id = ? AND key = ?", agentID, key)
	return store.Wrap("delete agent memory", err)
}
