package domain

import "time"

// AssignmentStatus is the lifecycle state of an assignment.
// Transitions out of StatusActive are driven by external callers
// (completion, cancellation) - never by the engine pipeline.
type AssignmentStatus string

const (
	StatusActive    AssignmentStatus = "active"
	StatusCompleted AssignmentStatus = "completed"
	StatusCancelled AssignmentStatus = "cancelled"
)

// AssignmentMethod records how an assignment was produced.
type AssignmentMethod string

const (
	MethodFairRotation    AssignmentMethod = "fair_rotation"
	MethodCapabilityBased AssignmentMethod = "capability_based"
	MethodManualOverride  AssignmentMethod = "manual_override"
)

// ReassignmentSource identifies who triggered a reassignment.
type ReassignmentSource string

const (
	SourceAgentRequest    ReassignmentSource = "agent_request"
	SourceSystemAutomatic ReassignmentSource = "system_automatic"
	SourceAdminOverride   ReassignmentSource = "admin_override"
)

// ValidSources defines the allowed reassignment sources.
var ValidSources = map[ReassignmentSource]bool{
	SourceAgentRequest:    true,
	SourceSystemAutomatic: true,
	SourceAdminOverride:   true,
}

// Resource is an allocatable consultant.
//
// AllocationCount and LastAllocatedAt are counter fields owned by the
// allocation ledger; CurrentLoad is the number of active assignments
// currently bound to the resource. No component other than the ledger
// may mutate these three fields.
type Resource struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Active          bool       `json:"active"`
	Capabilities    []string   `json:"capabilities"`
	CurrentLoad     int        `json:"current_load"`
	AllocationCount int        `json:"allocation_count"`
	LastAllocatedAt *time.Time `json:"last_allocated_at,omitempty"`
}

// HasCapability reports whether the resource declares the given capability.
// The id is compared in canonical (NFC) form.
func (r Resource) HasCapability(id string) bool {
	want := NormalizeCapability(id)
	for _, c := range r.Capabilities {
		if NormalizeCapability(c) == want {
			return true
		}
	}
	return false
}

// CapabilityRequirement is a requested capability with a caller-assigned
// priority. Priority 1 is the most important; larger values rank lower.
type CapabilityRequirement struct {
	ID       string `json:"id" yaml:"id"`
	Priority int    `json:"priority" yaml:"priority"`
}

// Assignment binds one requesting agent to one resource.
//
// ResourceID, ReassignmentCount, MatchScore and FallbackUsed are mutated only
// by the reassignment coordinator's committed rebinds; Status only by the
// external completion/cancellation operations.
type Assignment struct {
	ID                string                  `json:"id"`
	AgentID           string                  `json:"agent_id"`
	ResourceID        string                  `json:"resource_id"`
	ExternalRef       string                  `json:"external_ref"`
	ExternalRefName   string                  `json:"external_ref_name,omitempty"`
	Status            AssignmentStatus        `json:"status"`
	Method            AssignmentMethod        `json:"method"`
	Requirements      []CapabilityRequirement `json:"requirements,omitempty"`
	RequirementsHash  string                  `json:"requirements_hash,omitempty"`
	MatchScore        float64                 `json:"match_score"`
	FallbackUsed      bool                    `json:"fallback_used"`
	AssignedAt        time.Time               `json:"assigned_at"`
	ReassignmentCount int                     `json:"reassignment_count"`
}

// ReassignmentRecord is one entry in an assignment's rebind lineage.
// Records are append-only: once written they are never modified.
//
// SequenceNumber is 1-based and strictly increasing across the successful
// records of one assignment. Failed attempts carry SequenceNumber 0 - they
// are history, not committed state, and do not advance the sequence.
type ReassignmentRecord struct {
	ID                 string             `json:"id"`
	AssignmentID       string             `json:"assignment_id"`
	SequenceNumber     int                `json:"sequence_number"`
	FromResourceID     string             `json:"from_resource_id"`
	ToResourceID       string             `json:"to_resource_id,omitempty"`
	Reason             string             `json:"reason,omitempty"`
	Source             ReassignmentSource `json:"source"`
	PreviousMatchScore *float64           `json:"previous_match_score,omitempty"`
	NewMatchScore      *float64           `json:"new_match_score,omitempty"`
	ProcessingMs       int64              `json:"processing_ms"`
	Success            bool               `json:"success"`
	ErrorDetail        string             `json:"error_detail,omitempty"`
	Timestamp          time.Time          `json:"timestamp"`
}

// AllocationCounter is the per-resource view the fairness scorer reads.
// It is the single source of truth for historical load; mutations go
// exclusively through the ledger's atomic commit.
type AllocationCounter struct {
	ResourceID      string     `json:"resource_id"`
	AllocationCount int        `json:"allocation_count"`
	LastAllocatedAt *time.Time `json:"last_allocated_at,omitempty"`
}

// CandidateSnapshot is everything the eligibility filter and fairness scorer
// need about one resource, read in a single store round trip.
//
// A snapshot is a point-in-time read and may be stale by the time a
// selection commits; correctness is re-asserted inside the ledger's
// transaction, not here.
type CandidateSnapshot struct {
	Resource Resource

	// ActiveLoad is the number of active assignments bound to the resource.
	ActiveLoad int

	// AllocatedRecently is the number of ledger commits for this resource
	// within the scorer's recency window (24h).
	AllocatedRecently int

	// LastPairedWithAgent is the most recent time the resource was bound to
	// an active assignment for the requesting agent, for cooldown checks.
	// Nil when no such pairing exists.
	LastPairedWithAgent *time.Time
}
