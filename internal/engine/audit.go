package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Pipeline step names carried on audit events.
const (
	StepEligibility  = "eligibility"
	StepSelection    = "selection"
	StepCommit       = "commit"
	StepReassignment = "reassignment"
)

// Audit event outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeEmpty      = "no_eligible_resource"
	OutcomeContention = "contention"
	OutcomeError      = "error"
)

// AuditEvent is one structured record of a pipeline decision point. Every
// step emits exactly one event, success or failure. Seq is a process-local
// monotonic stamp so interleaved concurrent pipelines stay orderable.
type AuditEvent struct {
	Seq          int64     `json:"seq"`
	Step         string    `json:"step"`
	Timestamp    time.Time `json:"timestamp"`
	AgentID      string    `json:"agent_id,omitempty"`
	AssignmentID string    `json:"assignment_id,omitempty"`

	// Candidates are the resource ids considered at this step.
	Candidates []string `json:"candidates,omitempty"`

	// Rejected maps filtered-out resource ids to the rule that removed them.
	Rejected map[string]string `json:"rejected,omitempty"`

	ChosenID      string  `json:"chosen_id,omitempty"`
	FairnessScore float64 `json:"fairness_score,omitempty"`
	MatchScore    float64 `json:"match_score,omitempty"`
	FallbackUsed  bool    `json:"fallback_used,omitempty"`

	// RequirementsHash correlates events with the requirement set in play.
	RequirementsHash string `json:"requirements_hash,omitempty"`

	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// AuditEmitter receives pipeline events. The storage (or transport) behind an
// emitter is external to the engine; emitters must not block the pipeline on
// slow sinks.
type AuditEmitter interface {
	Emit(ctx context.Context, ev AuditEvent)
}

// SlogEmitter logs audit events through a structured logger. This is the
// default emitter.
type SlogEmitter struct {
	Logger *slog.Logger
}

// Emit writes the event at info level (warn for non-ok outcomes).
func (e SlogEmitter) Emit(_ context.Context, ev AuditEvent) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		"seq", ev.Seq,
		"step", ev.Step,
		"outcome", ev.Outcome,
	}
	if ev.AgentID != "" {
		attrs = append(attrs, "agent_id", ev.AgentID)
	}
	if ev.AssignmentID != "" {
		attrs = append(attrs, "assignment_id", ev.AssignmentID)
	}
	if ev.ChosenID != "" {
		attrs = append(attrs, "chosen_id", ev.ChosenID, "fairness_score", ev.FairnessScore, "match_score", ev.MatchScore)
	}
	if ev.FallbackUsed {
		attrs = append(attrs, "fallback_used", true)
	}
	if len(ev.Candidates) > 0 {
		attrs = append(attrs, "candidates", ev.Candidates)
	}
	if ev.Detail != "" {
		attrs = append(attrs, "detail", ev.Detail)
	}

	if ev.Outcome == OutcomeOK {
		logger.Info("assignment audit", attrs...)
	} else {
		logger.Warn("assignment audit", attrs...)
	}
}

// MultiEmitter fans one event out to several sinks in order.
type MultiEmitter []AuditEmitter

// Emit forwards the event to every sink.
func (m MultiEmitter) Emit(ctx context.Context, ev AuditEvent) {
	for _, e := range m {
		e.Emit(ctx, ev)
	}
}

// auditSeq stamps events with strictly increasing sequence numbers.
// Safe for concurrent use.
type auditSeq struct {
	n atomic.Int64
}

func (s *auditSeq) next() int64 {
	return s.n.Add(1)
}
