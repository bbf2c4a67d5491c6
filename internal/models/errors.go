package models

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Engine error taxonomy. All public operations return one of these (wrapped)
// so callers can tell "nothing to allocate" from "data integrity violation"
// from "you clicked complete twice".
var (
	// ErrInvalidTransition is returned when an operation is attempted from a
	// state that does not permit it. Never retried.
	ErrInvalidTransition = errors.New("invalid order state transition")

	// ErrUnbalancedProduction is returned when a coating completion's output
	// lengths do not balance the consumed input quantities. No rolls are
	// created; the caller must correct the breakdown and resubmit.
	ErrUnbalancedProduction = errors.New("production output does not balance consumed input")

	// ErrNoAvailableStock is returned when an allocation finds zero usable
	// rolls. Not a failure of the business process; the demand stays unmet.
	ErrNoAvailableStock = errors.New("no available stock for allocation")

	// ErrConcurrencyConflict is returned on an optimistic-lock or transaction
	// conflict. The whole operation is safe to retry from scratch.
	ErrConcurrencyConflict = errors.New("concurrent modification conflict")

	// ErrNotAuthorized is returned when a mutating operation is invoked
	// without the operator authorization precondition.
	ErrNotAuthorized = errors.New("operation requires operator authorization")
)

// AsConcurrencyConflict folds PostgreSQL serialization failures and deadlock
// aborts (SQLSTATE 40001, 40P01) into ErrConcurrencyConflict. The aborted
// transaction applied nothing, so it carries the same retry contract as an
// optimistic-lock loss. Any other error passes through unchanged.
func AsConcurrencyConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%v: %w", err, ErrConcurrencyConflict)
	}
	return err
}
