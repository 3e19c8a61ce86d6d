package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Error taxonomy shared by every component built on the store. Callers
// discriminate with errors.Is.
var (
	// ErrNotFound is returned when a key, session, agent, task or proposal
	// is absent or has expired.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateAgent is returned when registering an agent id that is
	// already present.
	ErrDuplicateAgent = errors.New("agent already registered")

	// ErrInvalidTransition is returned for an illegal task status change.
	ErrInvalidTransition = errors.New("invalid task transition")

	// ErrDependencyNotSatisfied is returned when assigning a task whose
	// dependencies are not all completed.
	ErrDependencyNotSatisfied = errors.New("task dependency not satisfied")

	// ErrVersionConflict is returned by conditional shared-state writes when
	// the stored version no longer matches the expected one. Retryable: the
	// caller must re-read and recompute.
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnknownProposal is returned when accepting a key with no live
	// consensus proposal.
	ErrUnknownProposal = errors.New("unknown proposal")

	// ErrNotInAcceptorSet is returned when the accepting agent is not a
	// member of the proposal's acceptor set.
	ErrNotInAcceptorSet = errors.New("not in acceptor set")

	// ErrTimeout is returned when a caller-supplied deadline expired before
	// the operation completed. The operation leaves no partial effect.
	ErrTimeout = errors.New("operation timed out")
)

// StorageError wraps a failure of the underlying durable medium. It is never
// swallowed; a StorageError inside a transaction rolls that transaction back.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Wrap normalizes a low-level error into the store taxonomy: sql.ErrNoRows
// becomes ErrNotFound, an expired deadline becomes ErrTimeout, anything else
// is a StorageError for op. Returns nil for nil.
//
// Cancellation is not a timeout: a caller that cancelled on purpose must
// still see context.Canceled through errors.Is, so it only gains the op
// prefix.
func Wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return &StorageError{Op: op, Err: err}
	}
}
