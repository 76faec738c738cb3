package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hsk98/rota/internal/domain"
)

// Defaults for Config fields left zero.
const (
	DefaultMaxActiveLoad  = 3
	DefaultCooldownWindow = 24 * time.Hour
	DefaultCommitRetries  = 3

	// CooldownDisabled turns duplicate-pairing prevention off. A zero
	// CooldownWindow means "unset" and takes the default, so disabling has to
	// be explicit.
	CooldownDisabled time.Duration = -1

	// recentWindow is the fixed recency window of the fairness formula.
	recentWindow = 24 * time.Hour
)

// Config carries the engine's tunable parameters. Zero values are replaced
// with the documented defaults at construction.
type Config struct {
	// MaxActiveLoad is the per-resource cap on concurrently active
	// assignments. Re-validated inside every ledger commit.
	MaxActiveLoad int

	// CooldownWindow blocks re-pairing a resource with the same agent while
	// an active pairing is this recent. CooldownDisabled turns the rule off;
	// zero means unset.
	CooldownWindow time.Duration

	// CommitRetries bounds full pipeline re-runs after commit contention
	// before ErrContention is surfaced to the caller.
	CommitRetries int

	// Weights are the fairness formula coefficients.
	Weights ScoreWeights
}

func (c Config) withDefaults() Config {
	if c.MaxActiveLoad <= 0 {
		c.MaxActiveLoad = DefaultMaxActiveLoad
	}
	if c.CooldownWindow == 0 {
		c.CooldownWindow = DefaultCooldownWindow
	}
	if c.CommitRetries <= 0 {
		c.CommitRetries = DefaultCommitRetries
	}
	if c.Weights == (ScoreWeights{}) {
		c.Weights = DefaultScoreWeights()
	}
	return c
}

// Clock supplies the evaluation instant. Injected for deterministic tests.
type Clock func() time.Time

// Engine runs the assignment pipeline. Safe for concurrent use: all mutable
// state lives behind the Persistence implementation's transactions.
type Engine struct {
	store     Persistence
	cfg       Config
	clock     Clock
	ids       IDGenerator
	audit     AuditEmitter
	available AvailabilityFunc
	seq       auditSeq
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg.withDefaults() }
}

// WithClock injects the time source. Used by tests and the harness.
func WithClock(clock Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithIDGenerator injects the identity generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(e *Engine) { e.ids = ids }
}

// WithAuditEmitter injects the audit sink. Combine sinks with MultiEmitter.
func WithAuditEmitter(emitter AuditEmitter) Option {
	return func(e *Engine) { e.audit = emitter }
}

// WithAvailability injects the external availability predicate.
func WithAvailability(fn AvailabilityFunc) Option {
	return func(e *Engine) { e.available = fn }
}

// New creates an Engine over the given persistence provider.
func New(store Persistence, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		cfg:       Config{}.withDefaults(),
		clock:     time.Now,
		ids:       UUIDv7Generator{},
		audit:     SlogEmitter{},
		available: AlwaysAvailable,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// AllocationRequest is one inbound "give me a resource" request.
type AllocationRequest struct {
	AgentID         string
	ExternalRef     string
	ExternalRefName string
	Requirements    []domain.CapabilityRequirement

	// Method defaults to capability_based when requirements are present,
	// fair_rotation otherwise.
	Method domain.AssignmentMethod
}

// AllocationResult is a successful allocation: the persisted assignment plus
// the selection report.
type AllocationResult struct {
	Assignment    domain.Assignment `json:"assignment"`
	FairnessScore float64           `json:"fairness_score"`
	MatchScore    float64           `json:"match_score"`
	FallbackUsed  bool              `json:"fallback_used"`
	RunnersUp     []RankedCandidate `json:"runners_up,omitempty"`

	// Attempts is the number of pipeline runs it took to commit (>1 means
	// contention was encountered and resolved by re-running).
	Attempts int `json:"attempts"`
}

// Allocate runs the full pipeline and commits the selection.
//
// On commit contention the whole pipeline re-runs - the eligible set may have
// changed - up to Config.CommitRetries times before domain.ErrContention is
// surfaced. Nothing is persisted for attempts that never reach commit.
func (e *Engine) Allocate(ctx context.Context, req AllocationRequest) (*AllocationResult, error) {
	if strings.TrimSpace(req.AgentID) == "" {
		return nil, fmt.Errorf("%w: agent id is required", domain.ErrInvalidRequirement)
	}
	if err := domain.ValidateRequirements(req.Requirements); err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = domain.MethodFairRotation
		if len(req.Requirements) > 0 {
			method = domain.MethodCapabilityBased
		}
	}
	reqHash := domain.RequirementsFingerprint(req.Requirements)

	for attempt := 1; attempt <= e.cfg.CommitRetries; attempt++ {
		sel, err := e.runPipeline(ctx, req.AgentID, "", req.Requirements, reqHash, nil)
		if err != nil {
			return nil, err
		}

		now := e.clock()
		asg := domain.Assignment{
			ID:               e.ids.NewID(),
			AgentID:          req.AgentID,
			ResourceID:       sel.Chosen.Resource.ID,
			ExternalRef:      req.ExternalRef,
			ExternalRefName:  req.ExternalRefName,
			Status:           domain.StatusActive,
			Method:           method,
			Requirements:     req.Requirements,
			RequirementsHash: reqHash,
			MatchScore:       sel.MatchScore,
			FallbackUsed:     sel.FallbackUsed,
			AssignedAt:       now,
		}

		err = e.store.CommitAllocation(ctx, asg, e.cfg.MaxActiveLoad)
		if err == nil {
			e.emitCommit(ctx, asg.ID, req.AgentID, sel, reqHash, OutcomeOK, "")
			return &AllocationResult{
				Assignment:    asg,
				FairnessScore: sel.FairnessScore,
				MatchScore:    sel.MatchScore,
				FallbackUsed:  sel.FallbackUsed,
				RunnersUp:     sel.RunnersUp,
				Attempts:      attempt,
			}, nil
		}
		if !errors.Is(err, domain.ErrContention) {
			e.emitCommit(ctx, asg.ID, req.AgentID, sel, reqHash, OutcomeError, err.Error())
			return nil, fmt.Errorf("commit allocation for agent %s: %w", req.AgentID, err)
		}

		// Lost the re-validation race. Re-run the full pipeline rather than
		// retrying the commit blindly: the eligible set may have changed.
		e.emitCommit(ctx, asg.ID, req.AgentID, sel, reqHash, OutcomeContention,
			fmt.Sprintf("attempt %d of %d", attempt, e.cfg.CommitRetries))
	}

	return nil, fmt.Errorf("allocate for agent %s: retries exhausted: %w", req.AgentID, domain.ErrContention)
}

// History returns the reassignment lineage of an assignment in append order.
func (e *Engine) History(ctx context.Context, assignmentID string) ([]domain.ReassignmentRecord, error) {
	recs, err := e.store.History(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("history for assignment %s: %w", assignmentID, err)
	}
	return recs, nil
}

// runPipeline executes filter -> scorer/matcher -> selector once against a
// fresh snapshot and emits the eligibility and selection audit events.
func (e *Engine) runPipeline(
	ctx context.Context,
	agentID, assignmentID string,
	reqs []domain.CapabilityRequirement,
	reqHash string,
	exclude map[string]bool,
) (*Selection, error) {
	now := e.clock()

	snaps, err := e.store.CandidateSnapshots(ctx, agentID, now.Add(-recentWindow))
	if err != nil {
		return nil, fmt.Errorf("load candidate snapshots: %w", err)
	}

	eligible, rejected := filterEligible(snaps, eligibilityParams{
		agentID:       agentID,
		now:           now,
		exclude:       exclude,
		maxActiveLoad: e.cfg.MaxActiveLoad,
		cooldown:      e.cfg.CooldownWindow,
		available:     e.available,
	})

	ev := AuditEvent{
		Seq:              e.seq.next(),
		Step:             StepEligibility,
		Timestamp:        now,
		AgentID:          agentID,
		AssignmentID:     assignmentID,
		Candidates:       resourceIDs(eligible),
		Rejected:         rejected,
		RequirementsHash: reqHash,
		Outcome:          OutcomeOK,
	}
	if len(eligible) == 0 {
		ev.Outcome = OutcomeEmpty
		e.audit.Emit(ctx, ev)
		return nil, fmt.Errorf("filter for agent %s: %w", agentID, domain.ErrNoEligibleResource)
	}
	e.audit.Emit(ctx, ev)

	fairness := fairnessScores(eligible, now, e.cfg.Weights)
	matches := matchScores(eligible, reqs)
	tier, fallbackUsed := preferredTier(eligible, matches)
	sel := selectCandidate(tier, fairness, matches, fallbackUsed)

	e.audit.Emit(ctx, AuditEvent{
		Seq:              e.seq.next(),
		Step:             StepSelection,
		Timestamp:        now,
		AgentID:          agentID,
		AssignmentID:     assignmentID,
		Candidates:       resourceIDs(tier),
		ChosenID:         sel.Chosen.Resource.ID,
		FairnessScore:    sel.FairnessScore,
		MatchScore:       sel.MatchScore,
		FallbackUsed:     sel.FallbackUsed,
		RequirementsHash: reqHash,
		Outcome:          OutcomeOK,
	})

	return &sel, nil
}

func (e *Engine) emitCommit(ctx context.Context, assignmentID, agentID string, sel *Selection, reqHash, outcome, detail string) {
	e.audit.Emit(ctx, AuditEvent{
		Seq:              e.seq.next(),
		Step:             StepCommit,
		Timestamp:        e.clock(),
		AgentID:          agentID,
		AssignmentID:     assignmentID,
		ChosenID:         sel.Chosen.Resource.ID,
		FairnessScore:    sel.FairnessScore,
		MatchScore:       sel.MatchScore,
		FallbackUsed:     sel.FallbackUsed,
		RequirementsHash: reqHash,
		Outcome:          outcome,
		Detail:           detail,
	})
}

func resourceIDs(snaps []domain.CandidateSnapshot) []string {
	ids := make([]string, len(snaps))
	for i, s := range snaps {
		ids[i] = s.Resource.ID
	}
	return ids
}
