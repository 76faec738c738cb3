package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNoEligibleResource, "no_eligible_resource"},
		{ErrContention, "contention"},
		{ErrInvalidRequirement, "invalid_requirement"},
		{ErrAssignmentNotFound, "assignment_not_found"},
		{ErrAssignmentNotActive, "assignment_not_active"},
		{ErrReassignmentCapExceeded, "reassignment_cap_exceeded"},
		{ErrPersistence, "persistence_failure"},
		{errors.New("anything else"), "internal"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestErrorKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("allocate for agent sdr-1: %w", ErrNoEligibleResource)
	if got := ErrorKind(err); got != "no_eligible_resource" {
		t.Errorf("ErrorKind(wrapped) = %q", got)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrContention) || !IsRetryable(fmt.Errorf("op: %w", ErrPersistence)) {
		t.Error("contention and persistence failures are retryable")
	}
	if IsRetryable(ErrNoEligibleResource) || IsRetryable(ErrInvalidRequirement) {
		t.Error("domain refusals are not retryable")
	}
}
