package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/hsk98/rota/internal/domain"
)

// ReassignmentCap is an opt-in policy wrapper that bounds how many times one
// assignment may be reassigned. The coordinator itself enforces no bound;
// deployments that want one wrap Reassign calls in this layer.
type ReassignmentCap struct {
	engine *Engine
	limit  int
}

// NewReassignmentCap wraps an engine with a per-assignment reassignment cap.
// A limit <= 0 disables the cap.
func NewReassignmentCap(e *Engine, limit int) *ReassignmentCap {
	return &ReassignmentCap{engine: e, limit: limit}
}

// Reassign checks the cap before delegating. Capped assignments return
// domain.ErrReassignmentCapExceeded without touching the pipeline, and no
// failure record is written: the cap is a policy refusal, not an attempt.
func (c *ReassignmentCap) Reassign(ctx context.Context, assignmentID, reason string, source domain.ReassignmentSource) (domain.ReassignmentRecord, error) {
	if c.limit > 0 {
		asg, err := c.engine.store.GetAssignment(ctx, assignmentID)
		if err != nil {
			return domain.ReassignmentRecord{}, fmt.Errorf("load assignment %s: %w", assignmentID, err)
		}
		if asg.ReassignmentCount >= c.limit {
			return domain.ReassignmentRecord{}, fmt.Errorf(
				"assignment %s at %d of %d reassignments: %w",
				assignmentID, asg.ReassignmentCount, c.limit, domain.ErrReassignmentCapExceeded)
		}
	}
	return c.engine.Reassign(ctx, assignmentID, reason, source)
}

// EmergencyBypass is the opt-in "never fully blocked" policy layer. When the
// core pipeline returns ErrNoEligibleResource, it allocates the least-loaded
// active resource with the load cap, cooldown and availability rules waived.
//
// This deliberately lives above the selector, never inside it: the core keeps
// its at-most-capacity guarantee, and deployments that accept overload in
// exchange for guaranteed availability opt in explicitly. Bypass allocations
// are committed with method manual_override so they stay visible in the data.
type EmergencyBypass struct {
	engine *Engine
}

// NewEmergencyBypass wraps an engine with the emergency fallback.
func NewEmergencyBypass(e *Engine) *EmergencyBypass {
	return &EmergencyBypass{engine: e}
}

// Allocate delegates to the core pipeline and falls back to the degraded path
// only on ErrNoEligibleResource. Every other outcome passes through.
func (b *EmergencyBypass) Allocate(ctx context.Context, req AllocationRequest) (*AllocationResult, error) {
	res, err := b.engine.Allocate(ctx, req)
	if err == nil || !errors.Is(err, domain.ErrNoEligibleResource) {
		return res, err
	}
	return b.allocateDegraded(ctx, req)
}

// allocateDegraded picks the least-loaded active resource, ties broken by
// ascending id, and commits with the capacity guard effectively disabled.
// Inactive resources are still never selected.
func (b *EmergencyBypass) allocateDegraded(ctx context.Context, req AllocationRequest) (*AllocationResult, error) {
	e := b.engine
	now := e.clock()

	snaps, err := e.store.CandidateSnapshots(ctx, req.AgentID, now.Add(-recentWindow))
	if err != nil {
		return nil, fmt.Errorf("load candidate snapshots: %w", err)
	}

	var active []domain.CandidateSnapshot
	for _, s := range snaps {
		if s.Resource.Active {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("emergency bypass: no active resource: %w", domain.ErrNoEligibleResource)
	}

	sort.Slice(active, func(i, j int) bool {
		if active[i].ActiveLoad != active[j].ActiveLoad {
			return active[i].ActiveLoad < active[j].ActiveLoad
		}
		return active[i].Resource.ID < active[j].Resource.ID
	})
	chosen := active[0]

	matches := matchScores([]domain.CandidateSnapshot{chosen}, req.Requirements)
	match := matches[chosen.Resource.ID]
	reqHash := domain.RequirementsFingerprint(req.Requirements)

	asg := domain.Assignment{
		ID:               e.ids.NewID(),
		AgentID:          req.AgentID,
		ResourceID:       chosen.Resource.ID,
		ExternalRef:      req.ExternalRef,
		ExternalRefName:  req.ExternalRefName,
		Status:           domain.StatusActive,
		Method:           domain.MethodManualOverride,
		Requirements:     req.Requirements,
		RequirementsHash: reqHash,
		MatchScore:       match.Score,
		FallbackUsed:     true,
		AssignedAt:       now,
	}

	// MaxInt32 disables the capacity guard while keeping the commit path -
	// and its counter mutations - identical to a normal allocation.
	if err := e.store.CommitAllocation(ctx, asg, math.MaxInt32); err != nil {
		return nil, fmt.Errorf("emergency commit for agent %s: %w", req.AgentID, err)
	}

	e.audit.Emit(ctx, AuditEvent{
		Seq:              e.seq.next(),
		Step:             StepCommit,
		Timestamp:        e.clock(),
		AgentID:          req.AgentID,
		AssignmentID:     asg.ID,
		ChosenID:         chosen.Resource.ID,
		MatchScore:       match.Score,
		FallbackUsed:     true,
		RequirementsHash: reqHash,
		Outcome:          OutcomeOK,
		Detail:           "emergency bypass: eligibility rules waived",
	})

	return &AllocationResult{
		Assignment:   asg,
		MatchScore:   match.Score,
		FallbackUsed: true,
		Attempts:     1,
	}, nil
}
