package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hsk98/rota/internal/domain"
)

const assignmentColumns = `
	id, agent_id, resource_id, external_ref, external_ref_name, status, method,
	requirements, requirements_hash, match_score, fallback_used, assigned_at, reassignment_count`

// GetAssignment loads a single assignment by id.
func (s *Store) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+assignmentColumns+` FROM assignments WHERE id = ?`, id)

	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Assignment{}, fmt.Errorf("get assignment %s: %w", id, domain.ErrAssignmentNotFound)
	}
	if err != nil {
		return domain.Assignment{}, wrapPersistence("get assignment", err)
	}
	return a, nil
}

// ListAssignments returns assignments ordered by assignment time, newest
// first. Pass an empty status to list all.
func (s *Store) ListAssignments(ctx context.Context, status domain.AssignmentStatus) ([]domain.Assignment, error) {
	query := `SELECT` + assignmentColumns + ` FROM assignments`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY assigned_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapPersistence("list assignments", err)
	}
	defer rows.Close()

	assignments := []domain.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, wrapPersistence("list assignments", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPersistence("list assignments", err)
	}

	return assignments, nil
}

func scanAssignment(sc scanner) (domain.Assignment, error) {
	var (
		a          domain.Assignment
		status     string
		method     string
		reqsJSON   string
		fallback   int
		assignedAt string
	)
	if err := sc.Scan(&a.ID, &a.AgentID, &a.ResourceID, &a.ExternalRef, &a.ExternalRefName,
		&status, &method, &reqsJSON, &a.RequirementsHash, &a.MatchScore,
		&fallback, &assignedAt, &a.ReassignmentCount); err != nil {
		return domain.Assignment{}, err
	}

	a.Status = domain.AssignmentStatus(status)
	a.Method = domain.AssignmentMethod(method)
	a.FallbackUsed = fallback != 0

	var err error
	if a.Requirements, err = unmarshalRequirements(reqsJSON); err != nil {
		return domain.Assignment{}, err
	}
	if a.AssignedAt, err = parseTime(assignedAt); err != nil {
		return domain.Assignment{}, err
	}
	return a, nil
}
