/*
errors.go - Centralized error types for the allocation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match on sentinel errors with errors.Is() and extract detail
  from the structured types with errors.As().

ERROR CATEGORIES:
  1. Validation errors - Rejected input (bad risk percentage, unknown enum)
  2. Not-found / already-posted - Precondition failures on posting
  3. Consistency errors - A transactional invariant could not be satisfied;
     the attempted operation was fully rolled back and is safe to retry.

Every error is synchronous and local to a single operation: there is no
partial success and no background retry. A failed operation leaves stored
state exactly as it was before the call.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when caller input is rejected before any
	// state is created.
	ErrValidation = errors.New("validation failed")

	// ErrAllocationNotFound is returned when a referenced allocation
	// does not exist.
	ErrAllocationNotFound = errors.New("allocation not found")

	// ErrAlreadyPosted is returned when posting an allocation that is not
	// in Draft. Posting is one-way and one-time; a repeat post is an error,
	// never a no-op.
	ErrAlreadyPosted = errors.New("allocation already posted")

	// ErrConsistency is returned when a transactional invariant (atomic
	// posting, serialized balance update) could not be satisfied. The whole
	// operation was rolled back; retrying the call is safe.
	ErrConsistency = errors.New("ledger consistency violation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports which input field was rejected and why.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError identifies the missing allocation.
type NotFoundError struct {
	AllocationID AllocationID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("allocation %s not found", e.AllocationID)
}
func (e *NotFoundError) Unwrap() error { return ErrAllocationNotFound }

// AlreadyPostedError reports the state the allocation was actually in.
type AlreadyPostedError struct {
	AllocationID AllocationID
	Status       AllocationStatus
}

func (e *AlreadyPostedError) Error() string {
	return fmt.Sprintf("allocation %s cannot be posted: status is %s", e.AllocationID, e.Status)
}
func (e *AlreadyPostedError) Unwrap() error { return ErrAlreadyPosted }

// ConsistencyError wraps the storage failure that forced a rollback.
type ConsistencyError struct {
	Op  string
	Err error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: rolled back: %v", e.Op, e.Err)
}
// Unwrap exposes both the sentinel and the underlying cause, so callers can
// match errors.Is(err, ErrConsistency) as well as the storage error itself.
func (e *ConsistencyError) Unwrap() []error { return []error{ErrConsistency, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input or
// a precondition the caller can check.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrAlreadyPosted)
}

// IsNotFound returns true if the error indicates a missing allocation.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAllocationNotFound)
}

// IsRetryable returns true if the whole operation may succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConsistency)
}
