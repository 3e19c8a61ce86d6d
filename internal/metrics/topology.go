package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/swarmstore/swarmstore/internal/store"
)

// TopologySnapshot is one immutable revision of a swarm's shape. A changed
// topology is a new snapshot, never an edit.
type TopologySnapshot struct {
	ID           int64
	SwarmID      string
	TopologyType string // e.g. mesh, hierarchical, ring, star
	Nodes        []string
	Edges        [][2]string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// SaveTopology appends a new snapshot revision for the swarm.
func (s *Store) SaveTopology(ctx context.Context, snap TopologySnapshot) (TopologySnapshot, error) {
	if snap.SwarmID == "" {
		return TopologySnapshot{}, fmt.Errorf("swarm id required")
	}
	if snap.Metadata == nil {
		snap.Metadata = map[string]any{}
	}
	nodes, err := json.Marshal(snap.Nodes)
	if err != nil {
		return TopologySnapshot{}, fmt.Errorf("encode nodes: %w", err)
	}
	edges, err := json.Marshal(snap.Edges)
	if err != nil {
		return TopologySnapshot{}, fmt.Errorf("encode edges: %w", err)
	}
	meta, err := json.Marshal(snap.Metadata)
	if err != nil {
		return TopologySnapshot{}, fmt.Errorf("encode metadata: %w", err)
	}
	snap.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO swarm_topology (swarm_id, topology_type, nodes, edges, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snap.SwarmID, snap.TopologyType, string(nodes), string(edges), string(meta), snap.CreatedAt)
	if err != nil {
		return TopologySnapshot{}, store.Wrap("save topology", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		snap.ID = id
	}
	return snap, nil
}

// LatestTopology returns the newest snapshot for swarmID.
func (s *Store) LatestTopology(ctx context.Context, swarmID string) (TopologySnapshot, error) {
	return scanTopology(s.db.QueryRowContext(ctx, `
		SELECT id, swarm_id, topology_type, nodes, edges, metadata, created_at
		FROM swarm_topology WHERE swarm_id = ?
		ORDER BY id DESC LIMIT 1`, swarmID))
}

// TopologyHistory returns all snapshot revisions for swarmID, oldest first.
func (s *Store) TopologyHistory(ctx context.Context, swarmID string) ([]TopologySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, swarm_id, topology_type, nodes, edges, metadata, created_at
		FROM swarm_topology WHERE swarm_id = ? ORDER BY id`, swarmID)
	if err != nil {
		return nil, store.Wrap("topology history", err)
	}
	defer rows.Close()

	var out []TopologySnapshot
	for rows.Next() {
		snap, err := scanTopology(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("topology history", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTopology(row rowScanner) (TopologySnapshot, error) {
	var snap TopologySnapshot
	var nodes, edges, meta string
	if err := row.Scan(&snap.ID, &snap.SwarmID, &snap.TopologyType,
		&nodes, &edges, &meta, &snap.CreatedAt); err != nil {
		return TopologySnapshot{}, store.Wrap("load topology", err)
	}
	if err := json.Unmarshal([]byte(nodes), &snap.Nodes); err != nil {
		return TopologySnapshot{}, fmt.Errorf("decode nodes: %w", err)
	}
	if err := json.Unmarshal([]byte(edges), &snap.Edges); err != nil {
		return TopologySnapshot{}, fmt.Errorf("decode edges: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &snap.Metadata); err != nil {
		return TopologySnapshot{}, fmt.Errorf("decode metadata: %w", err)
	}
	return snap, nil
}
