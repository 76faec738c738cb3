// Package harness runs declarative YAML scenarios against the real engine on
// a fresh in-memory database, producing a deterministic transcript for golden
// file comparison plus pass/fail results for in-scenario expectations.
package harness

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hsk98/rota/internal/domain"
	"github.com/hsk98/rota/internal/engine"
	"github.com/hsk98/rota/internal/store"
	"github.com/hsk98/rota/internal/testutil"
)

// defaultStart is a Monday morning; scenarios that care pin their own.
const defaultStart = "2026-01-05T09:00:00Z"

// Result is the outcome of one scenario run.
type Result struct {
	// Transcript is one line per step, deterministic across runs.
	Transcript []string

	// Failures lists every expectation or assertion that did not hold.
	// Empty means the scenario passed.
	Failures []string
}

// Passed reports whether every expectation and assertion held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// Run executes a scenario on a fresh in-memory database with a frozen clock
// and sequential ids. Execution errors (as opposed to failed expectations)
// abort the run.
func Run(scenario *Scenario) (*Result, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open scenario store: %w", err)
	}
	defer st.Close()

	startStr := scenario.Start
	if startStr == "" {
		startStr = defaultStart
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return nil, fmt.Errorf("parse scenario start: %w", err)
	}
	clock := testutil.NewClock(start)

	cfg := engine.Config{
		MaxActiveLoad:  scenario.MaxActiveLoad,
		CooldownWindow: time.Duration(scenario.CooldownHours * float64(time.Hour)),
	}
	eng := engine.New(st,
		engine.WithConfig(cfg),
		engine.WithClock(clock.Now),
		engine.WithIDGenerator(engine.NewSequenceIDs("id")),
	)

	h := &runner{store: st, engine: eng, clock: clock, result: &Result{}}

	ctx := context.Background()
	if err := h.seed(ctx, scenario.Resources); err != nil {
		return nil, err
	}
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i+1, step); err != nil {
			return nil, err
		}
	}
	if err := h.checkAssertions(ctx, scenario.Assertions); err != nil {
		return nil, err
	}

	return h.result, nil
}

type runner struct {
	store  *store.Store
	engine *engine.Engine
	clock  *testutil.Clock
	result *Result

	// assignments maps allocate-step ordinal (1-based) to assignment id for
	// "@N" references.
	assignments []string
}

func (h *runner) seed(ctx context.Context, seeds []SeedResource) error {
	for _, seed := range seeds {
		name := seed.Name
		if name == "" {
			name = seed.ID
		}
		err := h.store.CreateResource(ctx, domain.Resource{
			ID:           seed.ID,
			Name:         name,
			Active:       !seed.Inactive,
			Capabilities: seed.Capabilities,
		})
		if err != nil {
			return fmt.Errorf("seed resource %s: %w", seed.ID, err)
		}

		if seed.AllocationCount > 0 || seed.LastAllocatedHoursAgo != nil {
			counter := domain.AllocationCounter{
				ResourceID:      seed.ID,
				AllocationCount: seed.AllocationCount,
			}
			if seed.LastAllocatedHoursAgo != nil {
				at := h.clock.Now().Add(-time.Duration(*seed.LastAllocatedHoursAgo * float64(time.Hour)))
				counter.LastAllocatedAt = &at
			}
			if err := h.store.AdjustCounter(ctx, counter); err != nil {
				return fmt.Errorf("seed counter %s: %w", seed.ID, err)
			}
		}
	}
	return nil
}

func (h *runner) executeStep(ctx context.Context, n int, step Step) error {
	switch {
	case step.Allocate != nil:
		return h.allocate(ctx, n, *step.Allocate, step.Expect)
	case step.Reassign != nil:
		return h.reassign(ctx, n, *step.Reassign, step.Expect)
	case step.Complete != "":
		return h.close(ctx, n, step.Complete, false)
	case step.Cancel != "":
		return h.close(ctx, n, step.Cancel, true)
	case step.AdvanceHours != 0:
		h.clock.Advance(time.Duration(step.AdvanceHours * float64(time.Hour)))
		h.log("step %d: advance %gh -> %s", n, step.AdvanceHours, h.clock.Now().Format(time.RFC3339))
		return nil
	}
	return fmt.Errorf("step %d: empty step", n)
}

func (h *runner) allocate(ctx context.Context, n int, step AllocateStep, expect *Expect) error {
	result, err := h.engine.Allocate(ctx, engine.AllocationRequest{
		AgentID:      step.Agent,
		ExternalRef:  step.Ref,
		Requirements: step.Require,
	})
	if err != nil {
		h.assignments = append(h.assignments, "") // keep @N ordinals stable
		h.log("step %d: allocate agent=%s -> error=%s", n, step.Agent, domain.ErrorKind(err))
		h.checkExpectError(n, expect, err)
		return nil
	}

	a := result.Assignment
	h.assignments = append(h.assignments, a.ID)
	h.log("step %d: allocate agent=%s -> resource=%s assignment=%s match=%.2f fallback=%v",
		n, step.Agent, a.ResourceID, a.ID, result.MatchScore, result.FallbackUsed)
	h.checkExpect(n, expect, a.ResourceID, result.MatchScore, result.FallbackUsed, nil)
	return nil
}

func (h *runner) reassign(ctx context.Context, n int, step ReassignStep, expect *Expect) error {
	id, err := h.resolve(step.Assignment)
	if err != nil {
		return fmt.Errorf("step %d: %w", n, err)
	}
	source := domain.ReassignmentSource(step.Source)
	if step.Source == "" {
		source = domain.SourceAgentRequest
	}

	rec, err := h.engine.Reassign(ctx, id, step.Reason, source)
	if err != nil {
		h.log("step %d: reassign %s -> error=%s", n, step.Assignment, domain.ErrorKind(err))
		h.checkExpectError(n, expect, err)
		return nil
	}

	var score *float64
	if rec.NewMatchScore != nil {
		score = rec.NewMatchScore
	}
	h.log("step %d: reassign %s: %s -> %s seq=%d", n, step.Assignment, rec.FromResourceID, rec.ToResourceID, rec.SequenceNumber)
	h.checkExpect(n, expect, rec.ToResourceID, 0, false, score)
	return nil
}

func (h *runner) close(ctx context.Context, n int, ref string, cancel bool) error {
	id, err := h.resolve(ref)
	if err != nil {
		return fmt.Errorf("step %d: %w", n, err)
	}
	verb := "complete"
	if cancel {
		verb = "cancel"
		err = h.store.CancelAssignment(ctx, id)
	} else {
		err = h.store.CompleteAssignment(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("step %d: %s %s: %w", n, verb, ref, err)
	}
	h.log("step %d: %s %s", n, verb, ref)
	return nil
}

// resolve maps an "@N" allocate-step reference to the assignment id it
// created.
func (h *runner) resolve(ref string) (string, error) {
	numStr, ok := strings.CutPrefix(ref, "@")
	if !ok {
		return ref, nil // literal assignment id
	}
	num, err := strconv.Atoi(numStr)
	if err != nil || num < 1 || num > len(h.assignments) {
		return "", fmt.Errorf("bad assignment reference %q", ref)
	}
	id := h.assignments[num-1]
	if id == "" {
		return "", fmt.Errorf("assignment reference %q points at a failed allocation", ref)
	}
	return id, nil
}

func (h *runner) checkExpect(n int, expect *Expect, resourceID string, matchScore float64, fallback bool, reassignScore *float64) {
	if expect == nil {
		return
	}
	if expect.Error != "" {
		h.fail("step %d: expected error %q, step succeeded", n, expect.Error)
	}
	if expect.Resource != "" && expect.Resource != resourceID {
		h.fail("step %d: expected resource %s, got %s", n, expect.Resource, resourceID)
	}
	if expect.Fallback != nil && *expect.Fallback != fallback {
		h.fail("step %d: expected fallback=%v, got %v", n, *expect.Fallback, fallback)
	}
	if expect.MatchScore != nil {
		got := matchScore
		if reassignScore != nil {
			got = *reassignScore
		}
		if got != *expect.MatchScore {
			h.fail("step %d: expected match score %.2f, got %.2f", n, *expect.MatchScore, got)
		}
	}
}

func (h *runner) checkExpectError(n int, expect *Expect, err error) {
	if expect == nil || expect.Error == "" {
		h.fail("step %d: unexpected error: %v", n, err)
		return
	}
	if kind := domain.ErrorKind(err); kind != expect.Error {
		h.fail("step %d: expected error %q, got %q", n, expect.Error, kind)
	}
}

func (h *runner) checkAssertions(ctx context.Context, assertions []Assertion) error {
	for _, a := range assertions {
		counter, err := h.store.GetCounter(ctx, a.Resource)
		if err != nil {
			if errors.Is(err, store.ErrResourceNotFound) {
				h.fail("assert %s: resource not found", a.Resource)
				continue
			}
			return fmt.Errorf("assert %s: %w", a.Resource, err)
		}
		if a.AllocationCount != nil && counter.AllocationCount != *a.AllocationCount {
			h.fail("assert %s: expected allocation_count=%d, got %d", a.Resource, *a.AllocationCount, counter.AllocationCount)
		}
		if a.CurrentLoad != nil {
			r, err := h.store.GetResource(ctx, a.Resource)
			if err != nil {
				return fmt.Errorf("assert %s: %w", a.Resource, err)
			}
			if r.CurrentLoad != *a.CurrentLoad {
				h.fail("assert %s: expected current_load=%d, got %d", a.Resource, *a.CurrentLoad, r.CurrentLoad)
			}
		}
	}
	return nil
}

func (h *runner) log(format string, args ...any) {
	h.result.Transcript = append(h.result.Transcript, fmt.Sprintf(format, args...))
}

func (h *runner) fail(format string, args ...any) {
	h.result.Failures = append(h.result.Failures, fmt.Sprintf(format, args...))
}
