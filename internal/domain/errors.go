package domain

import "errors"

// Sentinel error kinds surfaced by the engine and store. Callers match with
// errors.Is; every layer wraps with %w so the kind survives context wrapping.
var (
	// ErrNoEligibleResource is returned when no resource passes the hard
	// eligibility filters. Fatal for the attempt - the engine never relaxes
	// rules silently to avoid it.
	ErrNoEligibleResource = errors.New("no eligible resource")

	// ErrContention is returned when a commit lost the re-validation race and
	// the bounded pipeline re-runs were exhausted. Transient - callers may
	// retry the whole operation.
	ErrContention = errors.New("allocation contention")

	// ErrInvalidRequirement is returned for malformed capability requirements,
	// rejected before any filtering runs.
	ErrInvalidRequirement = errors.New("invalid capability requirement")

	// ErrPersistence wraps store-level failures. Transient infrastructure
	// error - never masked as ErrNoEligibleResource.
	ErrPersistence = errors.New("persistence failure")

	// ErrAssignmentNotFound is returned when the referenced assignment
	// does not exist.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrAssignmentNotActive is returned when reassignment is requested for a
	// completed or cancelled assignment.
	ErrAssignmentNotActive = errors.New("assignment not active")

	// ErrReassignmentCapExceeded is returned by the opt-in policy layer when
	// an assignment has reached its configured reassignment cap.
	ErrReassignmentCapExceeded = errors.New("reassignment cap exceeded")
)

// ErrorKind returns the stable machine-readable code for a known error kind,
// or "internal" for anything else. Used by the CLI and audit events.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNoEligibleResource):
		return "no_eligible_resource"
	case errors.Is(err, ErrContention):
		return "contention"
	case errors.Is(err, ErrInvalidRequirement):
		return "invalid_requirement"
	case errors.Is(err, ErrAssignmentNotFound):
		return "assignment_not_found"
	case errors.Is(err, ErrAssignmentNotActive):
		return "assignment_not_active"
	case errors.Is(err, ErrReassignmentCapExceeded):
		return "reassignment_cap_exceeded"
	case errors.Is(err, ErrPersistence):
		return "persistence_failure"
	default:
		return "internal"
	}
}

// IsRetryable reports whether the error kind is transient and worth retrying
// from the caller's side (contention, store unavailability).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContention) || errors.Is(err, ErrPersistence)
}
