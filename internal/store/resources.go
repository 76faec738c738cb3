package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hsk98/rota/internal/domain"
)

// ErrResourceNotFound is returned for lookups of unknown resource ids.
var ErrResourceNotFound = errors.New("resource not found")

// ErrResourceExists is returned when creating a resource with a taken id.
var ErrResourceExists = errors.New("resource already exists")

// CreateResource inserts a new resource. Counter fields start at zero
// regardless of what the caller passes - only the ledger advances them.
func (s *Store) CreateResource(ctx context.Context, r domain.Resource) error {
	capsJSON, err := marshalCapabilities(r.Capabilities)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO resources (id, name, email, phone, active, capabilities, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, r.ID, r.Name, r.Email, r.Phone, boolToInt(r.Active), capsJSON, fmtTime(time.Now()))
	if err != nil {
		return wrapPersistence("create resource", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return wrapPersistence("create resource", err)
	}
	if n == 0 {
		return fmt.Errorf("create resource %s: %w", r.ID, ErrResourceExists)
	}
	return nil
}

// SetResourceActive toggles a resource's activation flag. Deactivation does
// not touch existing assignments; the eligibility filter simply stops
// offering the resource.
func (s *Store) SetResourceActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE resources SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return wrapPersistence("set resource active", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapPersistence("set resource active", err)
	}
	if n == 0 {
		return fmt.Errorf("set resource active %s: %w", id, ErrResourceNotFound)
	}
	return nil
}

// GetResource loads a single resource by id.
func (s *Store) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, active, capabilities,
		       current_load, allocation_count, last_allocated_at
		FROM resources WHERE id = ?
	`, id)

	r, err := s.scanResource(row, time.Now())
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Resource{}, fmt.Errorf("get resource %s: %w", id, ErrResourceNotFound)
	}
	if err != nil {
		return domain.Resource{}, wrapPersistence("get resource", err)
	}
	return r, nil
}

// ListResources returns all resources ordered by id.
func (s *Store) ListResources(ctx context.Context) ([]domain.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, phone, active, capabilities,
		       current_load, allocation_count, last_allocated_at
		FROM resources ORDER BY id ASC
	`)
	if err != nil {
		return nil, wrapPersistence("list resources", err)
	}
	defer rows.Close()

	now := time.Now()
	resources := []domain.Resource{}
	for rows.Next() {
		r, err := s.scanResource(rows, now)
		if err != nil {
			return nil, wrapPersistence("list resources", err)
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPersistence("list resources", err)
	}

	return resources, nil
}

// CandidateSnapshots reads every resource together with the per-agent
// pairing recency and the allocation-log count since recentSince. One round
// trip; the engine filters and scores in memory.
//
// The snapshot is point-in-time and may be stale by commit time - the
// ledger's transaction re-validates capacity, so staleness here is safe.
func (s *Store) CandidateSnapshots(ctx context.Context, agentID string, recentSince time.Time) ([]domain.CandidateSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.email, r.phone, r.active, r.capabilities,
		       r.current_load, r.allocation_count, r.last_allocated_at,
		       (SELECT COUNT(*) FROM allocation_log l
		        WHERE l.resource_id = r.id AND l.allocated_at >= ?) AS allocated_recently,
		       (SELECT MAX(a.assigned_at) FROM assignments a
		        WHERE a.resource_id = r.id AND a.agent_id = ? AND a.status = 'active') AS last_paired
		FROM resources r
		ORDER BY r.id ASC
	`, fmtTime(recentSince), agentID)
	if err != nil {
		return nil, wrapPersistence("candidate snapshots", err)
	}
	defer rows.Close()

	now := time.Now()
	var snaps []domain.CandidateSnapshot
	for rows.Next() {
		var (
			r          domain.Resource
			active     int
			capsJSON   string
			lastAlloc  sql.NullString
			recent     int
			lastPaired sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Email, &r.Phone, &active, &capsJSON,
			&r.CurrentLoad, &r.AllocationCount, &lastAlloc, &recent, &lastPaired); err != nil {
			return nil, wrapPersistence("candidate snapshots", err)
		}

		r.Active = active != 0
		if r.Capabilities, err = s.parseCapabilities(capsJSON, now); err != nil {
			return nil, wrapPersistence("candidate snapshots", err)
		}
		if r.LastAllocatedAt, err = parseNullTime(lastAlloc); err != nil {
			return nil, wrapPersistence("candidate snapshots", err)
		}
		paired, err := parseNullTime(lastPaired)
		if err != nil {
			return nil, wrapPersistence("candidate snapshots", err)
		}

		snaps = append(snaps, domain.CandidateSnapshot{
			Resource:            r,
			ActiveLoad:          r.CurrentLoad,
			AllocatedRecently:   recent,
			LastPairedWithAgent: paired,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPersistence("candidate snapshots", err)
	}

	return snaps, nil
}

// AdjustCounter overwrites a resource's allocation counter. This is the
// explicit rebalancing correction path - counters otherwise move only
// through ledger commits.
func (s *Store) AdjustCounter(ctx context.Context, c domain.AllocationCounter) error {
	var last any
	if c.LastAllocatedAt != nil {
		last = fmtTime(*c.LastAllocatedAt)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE resources SET allocation_count = ?, last_allocated_at = ? WHERE id = ?
	`, c.AllocationCount, last, c.ResourceID)
	if err != nil {
		return wrapPersistence("adjust counter", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapPersistence("adjust counter", err)
	}
	if n == 0 {
		return fmt.Errorf("adjust counter %s: %w", c.ResourceID, ErrResourceNotFound)
	}
	return nil
}

// GetCounter returns the allocation counter for one resource.
func (s *Store) GetCounter(ctx context.Context, resourceID string) (domain.AllocationCounter, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, allocation_count, last_allocated_at FROM resources WHERE id = ?`, resourceID)

	var (
		c         domain.AllocationCounter
		lastAlloc sql.NullString
	)
	err := row.Scan(&c.ResourceID, &c.AllocationCount, &lastAlloc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AllocationCounter{}, fmt.Errorf("get counter %s: %w", resourceID, ErrResourceNotFound)
	}
	if err != nil {
		return domain.AllocationCounter{}, wrapPersistence("get counter", err)
	}
	if c.LastAllocatedAt, err = parseNullTime(lastAlloc); err != nil {
		return domain.AllocationCounter{}, wrapPersistence("get counter", err)
	}
	return c, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanResource(sc scanner, now time.Time) (domain.Resource, error) {
	var (
		r         domain.Resource
		active    int
		capsJSON  string
		lastAlloc sql.NullString
	)
	if err := sc.Scan(&r.ID, &r.Name, &r.Email, &r.Phone, &active, &capsJSON,
		&r.CurrentLoad, &r.AllocationCount, &lastAlloc); err != nil {
		return domain.Resource{}, err
	}

	r.Active = active != 0

	var err error
	if r.Capabilities, err = s.parseCapabilities(capsJSON, now); err != nil {
		return domain.Resource{}, err
	}
	if r.LastAllocatedAt, err = parseNullTime(lastAlloc); err != nil {
		return domain.Resource{}, err
	}
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
