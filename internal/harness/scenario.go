package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hsk98/rota/internal/domain"
)

// Scenario is a declarative end-to-end exercise of the assignment pipeline:
// seed resources, run allocation and reassignment steps against the real
// engine on a fresh database, then assert on the final counters.
type Scenario struct {
	// Name uniquely identifies this scenario; it is also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the fixed clock instant the scenario begins at (RFC3339).
	// Defaults to 2026-01-05T09:00:00Z, a Monday morning.
	Start string `yaml:"start,omitempty"`

	// MaxActiveLoad and CooldownHours override the engine defaults when > 0.
	MaxActiveLoad int     `yaml:"max_active_load,omitempty"`
	CooldownHours float64 `yaml:"cooldown_hours,omitempty"`

	// Resources are seeded before the first step. AllocationCount and
	// LastAllocatedHoursAgo pre-load counter state through the rebalancing
	// correction path.
	Resources []SeedResource `yaml:"resources"`

	// Steps run in order. Each step is exactly one of its fields.
	Steps []Step `yaml:"steps"`

	// Assertions validate final counter and load state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SeedResource is one resource to create before the steps run.
type SeedResource struct {
	ID                    string   `yaml:"id"`
	Name                  string   `yaml:"name,omitempty"`
	Capabilities          []string `yaml:"capabilities,omitempty"`
	Inactive              bool     `yaml:"inactive,omitempty"`
	AllocationCount       int      `yaml:"allocation_count,omitempty"`
	LastAllocatedHoursAgo *float64 `yaml:"last_allocated_hours_ago,omitempty"`
}

// Step is one scenario action. Exactly one of Allocate, Reassign, Complete,
// Cancel or AdvanceHours must be set.
type Step struct {
	Allocate *AllocateStep `yaml:"allocate,omitempty"`
	Reassign *ReassignStep `yaml:"reassign,omitempty"`

	// Complete / Cancel close the assignment created by an earlier allocate
	// step, referenced as "@N" (1-based allocate step ordinal).
	Complete string `yaml:"complete,omitempty"`
	Cancel   string `yaml:"cancel,omitempty"`

	// AdvanceHours moves the scenario clock forward.
	AdvanceHours float64 `yaml:"advance_hours,omitempty"`

	// Expect validates the step's outcome.
	Expect *Expect `yaml:"expect,omitempty"`
}

// AllocateStep requests an allocation for one agent.
type AllocateStep struct {
	Agent   string                         `yaml:"agent"`
	Ref     string                         `yaml:"ref,omitempty"`
	Require []domain.CapabilityRequirement `yaml:"require,omitempty"`
}

// ReassignStep rebinds the assignment created by an earlier allocate step.
type ReassignStep struct {
	Assignment string `yaml:"assignment"` // "@N" reference
	Reason     string `yaml:"reason,omitempty"`
	Source     string `yaml:"source,omitempty"` // defaults to agent_request
}

// Expect validates a step outcome. Zero-value fields are not checked.
type Expect struct {
	// Resource is the id the step must land on.
	Resource string `yaml:"resource,omitempty"`

	// Error is the expected error kind ("no_eligible_resource", ...).
	Error string `yaml:"error,omitempty"`

	Fallback   *bool    `yaml:"fallback,omitempty"`
	MatchScore *float64 `yaml:"match_score,omitempty"`
}

// Assertion checks final per-resource state.
type Assertion struct {
	Resource        string `yaml:"resource"`
	AllocationCount *int   `yaml:"allocation_count,omitempty"`
	CurrentLoad     *int   `yaml:"current_load,omitempty"`
}

// LoadScenario reads and validates one scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	var s Scenario
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks structural invariants before execution.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario has no name")
	}
	if len(s.Resources) == 0 {
		return fmt.Errorf("scenario seeds no resources")
	}
	seen := map[string]bool{}
	for _, r := range s.Resources {
		if r.ID == "" {
			return fmt.Errorf("seed resource has no id")
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate seed resource %s", r.ID)
		}
		seen[r.ID] = true
	}

	for i, step := range s.Steps {
		n := 0
		if step.Allocate != nil {
			n++
			if step.Allocate.Agent == "" {
				return fmt.Errorf("step %d: allocate has no agent", i+1)
			}
		}
		if step.Reassign != nil {
			n++
			if step.Reassign.Assignment == "" {
				return fmt.Errorf("step %d: reassign has no assignment reference", i+1)
			}
		}
		if step.Complete != "" {
			n++
		}
		if step.Cancel != "" {
			n++
		}
		if step.AdvanceHours != 0 {
			n++
		}
		if n != 1 {
			return fmt.Errorf("step %d: want exactly one action, got %d", i+1, n)
		}
	}

	for _, a := range s.Assertions {
		if !seen[a.Resource] {
			return fmt.Errorf("assertion references unknown resource %s", a.Resource)
		}
	}
	return nil
}
