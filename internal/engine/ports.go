package engine

import (
	"context"
	"time"

	"github.com/hsk98/rota/internal/domain"
)

// Persistence is the store contract the engine consumes. internal/store
// implements it on SQLite; tests use in-memory fakes.
//
// CommitAllocation and CommitReassignment are the allocation ledger: each
// must re-verify `active AND current_load < maxActiveLoad` for the target
// resource inside a single transaction and return domain.ErrContention when
// the re-check fails. Counter fields (allocation_count, current_load,
// last_allocated_at) are mutated only through these two operations.
//
// For a single resource, commits are linearizable: no two commits may observe
// the same pre-increment counter value. No ordering is guaranteed across
// different resources.
//
// Implementations wrap infrastructure failures with domain.ErrPersistence so
// callers can distinguish "nothing to allocate" from "store broken".
type Persistence interface {
	// CandidateSnapshots returns a snapshot of every resource, with the
	// per-agent pairing recency and the allocation count since recentSince
	// that the filter and scorer consume. The snapshot may be stale; the
	// ledger re-validates at commit time.
	CandidateSnapshots(ctx context.Context, agentID string, recentSince time.Time) ([]domain.CandidateSnapshot, error)

	// GetAssignment loads one assignment. Returns domain.ErrAssignmentNotFound
	// if it does not exist.
	GetAssignment(ctx context.Context, id string) (domain.Assignment, error)

	// CommitAllocation atomically claims capacity on a.ResourceID and
	// persists the assignment row. Returns domain.ErrContention if the
	// capacity re-check fails.
	CommitAllocation(ctx context.Context, a domain.Assignment, maxActiveLoad int) error

	// CommitReassignment atomically claims capacity on rec.ToResourceID,
	// appends the successful record, rebinds the assignment (resource id,
	// reassignment count, match score, fallback flag) and releases one unit
	// of active load on rec.FromResourceID. Returns domain.ErrContention if
	// the capacity re-check fails.
	CommitReassignment(ctx context.Context, rec domain.ReassignmentRecord, matchScore float64, fallbackUsed bool, maxActiveLoad int) error

	// AppendFailedReassignment appends a success=false record without
	// mutating the assignment or any counter. A failed attempt is history,
	// not a committed state change.
	AppendFailedReassignment(ctx context.Context, rec domain.ReassignmentRecord) error

	// History returns the reassignment records of an assignment in append
	// order, failed attempts included.
	History(ctx context.Context, assignmentID string) ([]domain.ReassignmentRecord, error)
}

// AvailabilityFunc is the injected availability predicate: time-of-day,
// day-of-week and time-off decisions belong to the external scheduling
// collaborator, not to the engine. internal/availability provides a
// schedule-backed implementation.
type AvailabilityFunc func(resourceID string, at time.Time) bool

// AlwaysAvailable is the default predicate.
func AlwaysAvailable(string, time.Time) bool { return true }
