/*
errors.go - Centralized error taxonomy for the roster engine

PURPOSE:
  All engine error kinds in one place. The API layer classifies these with
  the helpers below to pick an HTTP status; none are silently swallowed.

ERROR CATEGORIES:
  1. Request errors - the caller asked for something malformed
  2. Input-consistency errors - the store contains data the engine refuses
     to build around (overlapping contracts)
  3. Concurrency errors - another build owns the scope
  4. Transient errors - the store timed out; retried once by the builder

NOT ERRORS:
  Per-day disqualification during a build (teaching conflict, rest
  conflict, nightly cap) is a warning on the build result, surfaced later
  through the validator's coverage check. "Couldn't place someone" is kept
  distinct from "the request itself is invalid".
*/
package roster

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned for a year/month outside the supported
	// range, or a malformed freeze date.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrNoEligibleCandidates is returned when the requested pool resolves
	// to nobody. An empty pool is a build failure, not an empty build.
	ErrNoEligibleCandidates = errors.New("no eligible candidates")

	// ErrOverlappingContract is returned when a person holds overlapping
	// contracts. The engine refuses to guess which post governs.
	ErrOverlappingContract = errors.New("overlapping contracts")

	// ErrStoreUnavailable is returned when the store adapter times out.
	// The builder retries exactly once, restarting cleanly.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrScopeLocked is returned when another build holds the same
	// (year, month, pool-or-post) scope. Callers should retry later.
	ErrScopeLocked = errors.New("build already in progress for scope")

	// ErrSlotNotFound is returned when a referenced slot doesn't exist.
	ErrSlotNotFound = errors.New("slot not found")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// OverlappingContractError identifies the person and contracts that
// violate the non-overlap invariant.
type OverlappingContractError struct {
	UserID      int64
	ContractIDs []int64
}

func (e *OverlappingContractError) Error() string {
	return fmt.Sprintf("overlapping contracts for user %d: %v", e.UserID, e.ContractIDs)
}

func (e *OverlappingContractError) Unwrap() error { return ErrOverlappingContract }

// InvalidPeriodError carries the rejected year/month.
type InvalidPeriodError struct {
	Year  int
	Month int
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("invalid period: year=%d month=%d", e.Year, e.Month)
}

func (e *InvalidPeriodError) Unwrap() error { return ErrInvalidPeriod }

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

// IsClientError returns true when the error is the caller's fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrNoEligibleCandidates)
}

// IsConflict returns true for state conflicts the caller should resolve
// or retry (not repeat verbatim).
func IsConflict(err error) bool {
	return errors.Is(err, ErrOverlappingContract) ||
		errors.Is(err, ErrScopeLocked)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSlotNotFound) || errors.Is(err, ErrNotFound)
}
