package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hsk98/rota/internal/domain"
)

// CommitReassignment atomically moves an assignment to a new resource:
// claims capacity on the target, appends the successful lineage record,
// rebinds the assignment row and releases one unit of active load on the
// previous resource. One transaction - a crash leaves either the old binding
// or the complete new one, never a half-move.
//
// The capacity guard on the target is the same re-validation as
// CommitAllocation; zero rows affected surfaces domain.ErrContention and the
// coordinator re-runs the pipeline.
func (s *Store) CommitReassignment(ctx context.Context, rec domain.ReassignmentRecord, matchScore float64, fallbackUsed bool, maxActiveLoad int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapPersistence("commit reassignment: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	now := fmtTime(rec.Timestamp)

	res, err := tx.ExecContext(ctx, `
		UPDATE resources
		SET current_load = current_load + 1,
		    allocation_count = allocation_count + 1,
		    last_allocated_at = ?
		WHERE id = ? AND active = 1 AND current_load < ?
	`, now, rec.ToResourceID, maxActiveLoad)
	if err != nil {
		return wrapPersistence("commit reassignment: claim slot", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapPersistence("commit reassignment: rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("commit reassignment: resource %s: %w", rec.ToResourceID, domain.ErrContention)
	}

	// Rebind before inserting the record: a stale sequence number must read
	// as contention, not as a unique-index violation on the lineage table.
	res, err = tx.ExecContext(ctx, `
		UPDATE assignments
		SET resource_id = ?,
		    reassignment_count = reassignment_count + 1,
		    match_score = ?,
		    fallback_used = ?
		WHERE id = ? AND status = 'active' AND reassignment_count = ?
	`, rec.ToResourceID, matchScore, boolToInt(fallbackUsed), rec.AssignmentID, rec.SequenceNumber-1)
	if err != nil {
		return wrapPersistence("commit reassignment: rebind", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return wrapPersistence("commit reassignment: rows affected", err)
	}
	if n == 0 {
		// The assignment moved (or closed) under us: a concurrent
		// reassignment claimed this sequence number first.
		return fmt.Errorf("commit reassignment: assignment %s sequence %d: %w",
			rec.AssignmentID, rec.SequenceNumber, domain.ErrContention)
	}

	if err := insertRecord(ctx, tx, rec); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE resources SET current_load = MAX(current_load - 1, 0) WHERE id = ?
	`, rec.FromResourceID); err != nil {
		return wrapPersistence("commit reassignment: release previous", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO allocation_log (resource_id, allocated_at) VALUES (?, ?)
	`, rec.ToResourceID, now); err != nil {
		return wrapPersistence("commit reassignment: append log", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapPersistence("commit reassignment: commit", err)
	}
	return nil
}

// AppendFailedReassignment appends a success=false lineage record. Nothing
// else moves: no counters, no rebind, no sequence number.
func (s *Store) AppendFailedReassignment(ctx context.Context, rec domain.ReassignmentRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapPersistence("append failed reassignment: begin tx", err)
	}
	defer tx.Rollback()

	if err := insertRecord(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapPersistence("append failed reassignment: commit", err)
	}
	return nil
}

// History returns an assignment's lineage in append order, failed attempts
// included. Ordering is by insertion time with id as the deterministic
// tie-break.
func (s *Store) History(ctx context.Context, assignmentID string) ([]domain.ReassignmentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, assignment_id, sequence_number, from_resource_id, to_resource_id,
		       reason, source, previous_match_score, new_match_score,
		       processing_ms, success, error_detail, created_at
		FROM reassignments
		WHERE assignment_id = ?
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, assignmentID)
	if err != nil {
		return nil, wrapPersistence("history", err)
	}
	defer rows.Close()

	records := []domain.ReassignmentRecord{}
	for rows.Next() {
		var (
			rec       domain.ReassignmentRecord
			seq       sql.NullInt64
			to        sql.NullString
			prevScore sql.NullFloat64
			newScore  sql.NullFloat64
			success   int
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.AssignmentID, &seq, &rec.FromResourceID, &to,
			&rec.Reason, (*string)(&rec.Source), &prevScore, &newScore,
			&rec.ProcessingMs, &success, &rec.ErrorDetail, &createdAt); err != nil {
			return nil, wrapPersistence("history", err)
		}

		if seq.Valid {
			rec.SequenceNumber = int(seq.Int64)
		}
		if to.Valid {
			rec.ToResourceID = to.String
		}
		if prevScore.Valid {
			v := prevScore.Float64
			rec.PreviousMatchScore = &v
		}
		if newScore.Valid {
			v := newScore.Float64
			rec.NewMatchScore = &v
		}
		rec.Success = success != 0
		if rec.Timestamp, err = parseTime(createdAt); err != nil {
			return nil, wrapPersistence("history", err)
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPersistence("history", err)
	}

	return records, nil
}

// insertRecord writes one lineage row. sequence_number is stored as NULL for
// failed attempts so the per-assignment unique index only governs successes.
func insertRecord(ctx context.Context, tx *sql.Tx, rec domain.ReassignmentRecord) error {
	var seq any
	if rec.Success {
		seq = rec.SequenceNumber
	}
	var to any
	if rec.ToResourceID != "" {
		to = rec.ToResourceID
	}
	var prev, next any
	if rec.PreviousMatchScore != nil {
		prev = *rec.PreviousMatchScore
	}
	if rec.NewMatchScore != nil {
		next = *rec.NewMatchScore
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO reassignments
		(id, assignment_id, sequence_number, from_resource_id, to_resource_id,
		 reason, source, previous_match_score, new_match_score,
		 processing_ms, success, error_detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.AssignmentID, seq, rec.FromResourceID, to,
		rec.Reason, string(rec.Source), prev, next,
		rec.ProcessingMs, boolToInt(rec.Success), rec.ErrorDetail, fmtTime(rec.Timestamp))
	if err != nil {
		return wrapPersistence("insert reassignment record", err)
	}
	return nil
}
