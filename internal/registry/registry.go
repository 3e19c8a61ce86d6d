// Package registry implements the coordination registries shared by all
// agents of a swarm: the agent registry, the task registry with its lifecycle
// state machine, optimistic-concurrency shared state, and per-agent scratch
// memory. All mutations go through the shared store handle; coordination
// mutations are mirrored into the event log as an audit trail.
package registry

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/swarmstore/swarmstore/internal/events"
	"github.com/swarmstore/swarmstore/internal/store"
)

// Registry provides agent, task, shared-state and agent-memory operations
// over one store.
type Registry struct {
	db  *store.DB
	log *events.Log
}

// New returns a registry over db. log may be nil to disable the audit trail
// (tests mostly run without it).
func New(db *store.DB, log *events.Log) *Registry {
	return &Registry{db: db, log: log}
}

// record appends an audit event. Audit failures never fail the operation
// that already committed; they are logged and dropped.
func (r *Registry) record(ctx context.Context, typ, source string, payload map[string]any) {
	if r.log == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("Audit payload encoding failed", "type", typ, "error", err)
		return
	}
	if _, err := r.log.Append(ctx, typ, source, data); err != nil {
		slog.Warn("Audit event append failed", "type", typ, "error", err)
	}
}
