package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hsk98/rota/internal/domain"
)

// CommitAllocation atomically claims one unit of capacity on the chosen
// resource and persists the assignment row.
//
// The guarded UPDATE is the re-validation point: `active AND current_load <
// maxActiveLoad` is asserted again inside the transaction, because the
// snapshot the selector scored may be stale. Zero rows affected means the
// slot was lost to a concurrent commit - domain.ErrContention - and the
// caller re-runs the pipeline. Either everything in the transaction lands or
// nothing does.
//
// For a single resource this makes counter increments linearizable: the
// single writer connection plus the guard mean no two commits can observe
// the same pre-increment value.
func (s *Store) CommitAllocation(ctx context.Context, a domain.Assignment, maxActiveLoad int) error {
	reqsJSON, err := marshalRequirements(a.Requirements)
	if err != nil {
		return fmt.Errorf("commit allocation: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapPersistence("commit allocation: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	now := fmtTime(a.AssignedAt)

	// Claim the slot. The WHERE clause is the capacity re-check.
	res, err := tx.ExecContext(ctx, `
		UPDATE resources
		SET current_load = current_load + 1,
		    allocation_count = allocation_count + 1,
		    last_allocated_at = ?
		WHERE id = ? AND active = 1 AND current_load < ?
	`, now, a.ResourceID, maxActiveLoad)
	if err != nil {
		return wrapPersistence("commit allocation: claim slot", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapPersistence("commit allocation: rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("commit allocation: resource %s: %w", a.ResourceID, domain.ErrContention)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO assignments
		(id, agent_id, resource_id, external_ref, external_ref_name, status, method,
		 requirements, requirements_hash, match_score, fallback_used, assigned_at, reassignment_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, a.ID, a.AgentID, a.ResourceID, a.ExternalRef, a.ExternalRefName,
		string(a.Status), string(a.Method), reqsJSON, a.RequirementsHash,
		a.MatchScore, boolToInt(a.FallbackUsed), now)
	if err != nil {
		return wrapPersistence("commit allocation: insert assignment", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO allocation_log (resource_id, allocated_at) VALUES (?, ?)
	`, a.ResourceID, now); err != nil {
		return wrapPersistence("commit allocation: append log", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapPersistence("commit allocation: commit", err)
	}
	return nil
}

// CompleteAssignment marks an active assignment completed and releases its
// unit of active load. The allocation count stands - completed work is still
// history the fairness scorer should see.
func (s *Store) CompleteAssignment(ctx context.Context, id string) error {
	return s.closeAssignment(ctx, id, domain.StatusCompleted, false)
}

// CancelAssignment marks an active assignment cancelled, releases its active
// load and reverses the allocation count: cancelled bindings do not count
// against the resource in fairness terms.
func (s *Store) CancelAssignment(ctx context.Context, id string) error {
	return s.closeAssignment(ctx, id, domain.StatusCancelled, true)
}

func (s *Store) closeAssignment(ctx context.Context, id string, to domain.AssignmentStatus, reverseCount bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapPersistence("close assignment: begin tx", err)
	}
	defer tx.Rollback()

	var resourceID string
	err = tx.QueryRowContext(ctx,
		`SELECT resource_id FROM assignments WHERE id = ? AND status = 'active'`, id,
	).Scan(&resourceID)
	if errors.Is(err, sql.ErrNoRows) {
		// Either unknown or already closed; disambiguate for the caller.
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM assignments WHERE id = ?`, id).Scan(&n); err != nil {
			return wrapPersistence("close assignment: lookup", err)
		}
		if n == 0 {
			return fmt.Errorf("close assignment %s: %w", id, domain.ErrAssignmentNotFound)
		}
		return fmt.Errorf("close assignment %s: %w", id, domain.ErrAssignmentNotActive)
	}
	if err != nil {
		return wrapPersistence("close assignment: lookup", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE assignments SET status = ? WHERE id = ?`, string(to), id); err != nil {
		return wrapPersistence("close assignment: update status", err)
	}

	decrCount := 0
	if reverseCount {
		decrCount = 1
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE resources
		SET current_load = MAX(current_load - 1, 0),
		    allocation_count = MAX(allocation_count - ?, 0)
		WHERE id = ?
	`, decrCount, resourceID); err != nil {
		return wrapPersistence("close assignment: release load", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapPersistence("close assignment: commit", err)
	}
	return nil
}
