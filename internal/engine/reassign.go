package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hsk98/rota/internal/domain"
)

// Reassign replaces the bound resource on an existing assignment.
//
// The currently-bound resource and every resource the assignment was ever
// bound to join the exclusion set, and the full pipeline re-runs with the
// assignment's original capability requirements. On success the new record
// carries sequenceNumber = reassignmentCount + 1 and the before/after match
// scores. On pipeline failure a success=false record is still appended -
// history, not state - and the original binding stays intact.
//
// Processing duration is measured end to end across the whole re-run,
// contention retries included.
//
// The returned record is valid even when err is non-nil: it is the persisted
// failure record. No upper bound on reassignment count is enforced here;
// ReassignmentCap is the opt-in policy layer above this operation.
func (e *Engine) Reassign(ctx context.Context, assignmentID, reason string, source domain.ReassignmentSource) (domain.ReassignmentRecord, error) {
	if !domain.ValidSources[source] {
		return domain.ReassignmentRecord{}, fmt.Errorf("invalid reassignment source %q", source)
	}

	asg, err := e.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return domain.ReassignmentRecord{}, fmt.Errorf("load assignment %s: %w", assignmentID, err)
	}
	if asg.Status != domain.StatusActive {
		return domain.ReassignmentRecord{}, fmt.Errorf("assignment %s is %s: %w", assignmentID, asg.Status, domain.ErrAssignmentNotActive)
	}

	exclude, err := e.exclusionSet(ctx, asg)
	if err != nil {
		return domain.ReassignmentRecord{}, err
	}

	started := e.clock()
	prevScore := asg.MatchScore
	reqHash := domain.RequirementsFingerprint(asg.Requirements)

	var lastErr error
	for attempt := 1; attempt <= e.cfg.CommitRetries; attempt++ {
		sel, perr := e.runPipeline(ctx, asg.AgentID, asg.ID, asg.Requirements, reqHash, exclude)
		if perr != nil {
			return e.recordFailure(ctx, asg, reason, source, prevScore, started, perr)
		}

		newScore := sel.MatchScore
		rec := domain.ReassignmentRecord{
			ID:                 e.ids.NewID(),
			AssignmentID:       asg.ID,
			SequenceNumber:     asg.ReassignmentCount + 1,
			FromResourceID:     asg.ResourceID,
			ToResourceID:       sel.Chosen.Resource.ID,
			Reason:             reason,
			Source:             source,
			PreviousMatchScore: &prevScore,
			NewMatchScore:      &newScore,
			ProcessingMs:       e.clock().Sub(started).Milliseconds(),
			Success:            true,
			Timestamp:          e.clock(),
		}

		cerr := e.store.CommitReassignment(ctx, rec, sel.MatchScore, sel.FallbackUsed, e.cfg.MaxActiveLoad)
		if cerr == nil {
			e.audit.Emit(ctx, AuditEvent{
				Seq:              e.seq.next(),
				Step:             StepReassignment,
				Timestamp:        e.clock(),
				AgentID:          asg.AgentID,
				AssignmentID:     asg.ID,
				ChosenID:         rec.ToResourceID,
				FairnessScore:    sel.FairnessScore,
				MatchScore:       newScore,
				FallbackUsed:     sel.FallbackUsed,
				RequirementsHash: reqHash,
				Outcome:          OutcomeOK,
				Detail:           fmt.Sprintf("seq %d: %s -> %s", rec.SequenceNumber, rec.FromResourceID, rec.ToResourceID),
			})
			return rec, nil
		}
		if !errors.Is(cerr, domain.ErrContention) {
			return e.recordFailure(ctx, asg, reason, source, prevScore, started, cerr)
		}
		lastErr = cerr
	}

	return e.recordFailure(ctx, asg, reason, source, prevScore, started,
		fmt.Errorf("reassign %s: retries exhausted: %w", assignmentID, errors.Join(domain.ErrContention, lastErr)))
}

// exclusionSet accumulates every resource the assignment has ever been bound
// to: the current binding plus both sides of each successful rebind. A
// resource excluded once is never silently reused - when nothing else
// remains, the pipeline surfaces ErrNoEligibleResource instead.
func (e *Engine) exclusionSet(ctx context.Context, asg domain.Assignment) (map[string]bool, error) {
	exclude := map[string]bool{asg.ResourceID: true}

	history, err := e.store.History(ctx, asg.ID)
	if err != nil {
		return nil, fmt.Errorf("load history for assignment %s: %w", asg.ID, err)
	}
	for _, rec := range history {
		if !rec.Success {
			continue
		}
		exclude[rec.FromResourceID] = true
		if rec.ToResourceID != "" {
			exclude[rec.ToResourceID] = true
		}
	}
	return exclude, nil
}

// recordFailure appends the success=false record and emits the failure audit
// event. The assignment binding and reassignment count are untouched.
func (e *Engine) recordFailure(
	ctx context.Context,
	asg domain.Assignment,
	reason string,
	source domain.ReassignmentSource,
	prevScore float64,
	started time.Time,
	cause error,
) (domain.ReassignmentRecord, error) {
	rec := domain.ReassignmentRecord{
		ID:                 e.ids.NewID(),
		AssignmentID:       asg.ID,
		SequenceNumber:     0, // failed attempts do not advance the sequence
		FromResourceID:     asg.ResourceID,
		Reason:             reason,
		Source:             source,
		PreviousMatchScore: &prevScore,
		ProcessingMs:       e.clock().Sub(started).Milliseconds(),
		Success:            false,
		ErrorDetail:        cause.Error(),
		Timestamp:          e.clock(),
	}

	if aerr := e.store.AppendFailedReassignment(ctx, rec); aerr != nil {
		return rec, fmt.Errorf("append failure record for assignment %s: %w (original: %w)", asg.ID, aerr, cause)
	}

	e.audit.Emit(ctx, AuditEvent{
		Seq:          e.seq.next(),
		Step:         StepReassignment,
		Timestamp:    e.clock(),
		AgentID:      asg.AgentID,
		AssignmentID: asg.ID,
		Outcome:      OutcomeError,
		Detail:       cause.Error(),
	})

	return rec, cause
}
