// Package consensus implements proposal/acceptance bookkeeping for
// single-decision coordination among a known set of acceptors. The ledger
// tracks acceptance counts faithfully; what counts as quorum is the
// caller's policy, never enforced here.
package consensus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/swarmstore/swarmstore/internal/store"
)

// Proposal is the live proposal row for one decision key.
type Proposal struct {
	Key       string
	Value     []byte
	Version   int64
	Proposer  string
	Acceptors []string // the fixed acceptor set for this version
	Accepted  []string // acceptors that have accepted, sorted
	UpdatedAt time.Time
}

// State is the tally callers apply their quorum policy to.
type State struct {
	Value          []byte
	Version        int64
	AcceptedCount  int
	TotalAcceptors int
}

// Ledger records proposals and acceptances in the shared store.
type Ledger struct {
	db *store.DB
}

// NewLedger returns a ledger over db.
func NewLedger(db *store.DB) *Ledger {
	return &Ledger{db: db}
}

// Propose creates or replaces the proposal for key: the value and acceptor
// set are installed, the accepted set resets to empty, and the version
// increments. Acceptances of an earlier version never carry over.
func (l *Ledger) Propose(ctx context.Context, key string, value []byte, proposer string, acceptors []string) (Proposal, error) {
	if len(acceptors) == 0 {
		return Proposal{}, fmt.Errorf("acceptor set must not be empty")
	}
	set := dedupe(acceptors)
	setBlob, err := json.Marshal(set)
	if err != nil {
		return Proposal{}, fmt.Errorf("encode acceptor set: %w", err)
	}
	now := time.Now().UTC()
	var p Proposal
	err = l.db.WithTx(ctx, func(tx *sql.Tx) error {
		var version int64
		err := tx.QueryRowContext(ctx,
			"SELECT version FROM consensus_proposals WHERE key = ?", key).Scan(&version)
		if err != nil && err != sql.ErrNoRows {
			return store.Wrap("propose", err)
		}
		version++
		_, err = tx.ExecContext(ctx, `
			INSERT INTO consensus_proposals (key, value, version, proposer, acceptor_set, accepted_by, updated_at)
			VALUES (?, ?, ?, ?, ?, '[]', ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				version = excluded.version,
				proposer = excluded.proposer,
				acceptor_set = excluded.acceptor_set,
				accepted_by = '[]',
				updated_at = excluded.updated_at`,
			key, value, version, proposer, string(setBlob), now)
		if err != nil {
			return store.Wrap("propose", err)
		}
		p = Proposal{
			Key: key, Value: value, Version: version,
			Proposer: proposer, Acceptors: set, Accepted: []string{}, UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return Proposal{}, err
	}
	return p, nil
}

// Accept records acceptorID's acceptance of the live proposal for key.
// Accepting twice is a no-op; an id outside the acceptor set fails with
// store.ErrNotInAcceptorSet; a key with no proposal fails with
// store.ErrUnknownProposal.
func (l *Ledger) Accept(ctx context.Context, key, acceptorID string) error {
	return l.db.WithTx(ctx, func(tx *sql.Tx) error {
		p, err := loadProposal(ctx, tx, key)
		if err != nil {
			return err
		}
		if !slices.Contains(p.Acceptors, acceptorID) {
			return store.ErrNotInAcceptorSet
		}
		if slices.Contains(p.Accepted, acceptorID) {
			return nil
		}
		accepted := append(p.Accepted, acceptorID)
		slices.Sort(accepted)
		blob, err := json.Marshal(accepted)
		if err != nil {
			return fmt.Errorf("encode accepted set: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE consensus_proposals SET accepted_by = ?, updated_at = ? WHERE key = ? AND version = ?",
			string(blob), time.Now().UTC(), key, p.Version)
		return store.Wrap("accept", err)
	})
}

// GetState returns the tally for key's live proposal.
func (l *Ledger) GetState(ctx context.Context, key string) (State, error) {
	var st State
	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		p, err := loadProposal(ctx, tx, key)
		if err != nil {
			return err
		}
		st = State{
			Value:          p.Value,
			Version:        p.Version,
			AcceptedCount:  len(p.Accepted),
			TotalAcceptors: len(p.Acceptors),
		}
		return nil
	})
	if err != nil {
		return State{}, err
	}
	return st, nil
}

// Get returns the full proposal row for key.
func (l *Ledger) Get(ctx context.Context, key string) (Proposal, error) {
	var p Proposal
	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = loadProposal(ctx, tx, key)
		return err
	})
	if err != nil {
		return Proposal{}, err
	}
	return p, nil
}

// Drop removes the proposal for key, ending the decision. Dropping an
// unknown key is a no-op.
func (l *Ledger) Drop(ctx context.Context, key string) error {
	_, err := l.db.ExecContext(ctx, "DELETE FROM consensus_proposals WHERE key = ?", key)
	return store.Wrap("drop proposal", err)
}

// MeetsQuorum is the common caller policy: the decision for st is reached
// once at least threshold acceptors have accepted. Majority is
// MeetsQuorum(st, st.TotalAcceptors/2+1); unanimity uses TotalAcceptors.
func MeetsQuorum(st State, threshold int) bool {
	if threshold <= 0 {
		return false
	}
	return st.AcceptedCount >= threshold
}

func loadProposal(ctx context.Context, tx *sql.Tx, key string) (Proposal, error) {
	var p Proposal
	var set, accepted string
	err := tx.QueryRowContext(ctx, `
		SELECT key, value, version, proposer, acceptor_set, accepted_by, updated_at
		FROM consensus_proposals WHERE key = ?`, key).
		Scan(&p.Key, &p.Value, &p.Version, &p.Proposer, &set, &accepted, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return Proposal{}, store.ErrUnknownProposal
	}
	if err != nil {
		return Proposal{}, store.Wrap("load proposal", err)
	}
	if err := json.Unmarshal([]byte(set), &p.Acceptors); err != nil {
		return Proposal{}, fmt.Errorf("decode acceptor set: %w", err)
	}
	if err := json.Unmarshal([]byte(accepted), &p.Accepted); err != nil {
		return Proposal{}, fmt.Errorf("decode accepted set: %w", err)
	}
	return p, nil
}

func dedupe(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
