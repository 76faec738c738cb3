package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hsk98/rota/internal/domain"
)

func mustCreate(t *testing.T, s *Store, r domain.Resource) {
	t.Helper()
	if err := s.CreateResource(context.Background(), r); err != nil {
		t.Fatalf("CreateResource(%s) error = %v", r.ID, err)
	}
}

func TestCreateAndGetResource(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, domain.Resource{
		ID:           "alice",
		Name:         "Alice Liu",
		Email:        "alice@example.com",
		Active:       true,
		Capabilities: []string{"spanish", "enterprise"},
	})

	got, err := s.GetResource(ctx, "alice")
	if err != nil {
		t.Fatalf("GetResource() error = %v", err)
	}
	if got.Name != "Alice Liu" || !got.Active {
		t.Errorf("GetResource() = %+v", got)
	}
	if len(got.Capabilities) != 2 || got.Capabilities[0] != "spanish" {
		t.Errorf("capabilities = %v", got.Capabilities)
	}
	if got.CurrentLoad != 0 || got.AllocationCount != 0 || got.LastAllocatedAt != nil {
		t.Errorf("counters not zeroed: %+v", got)
	}
}

func TestCreateResourceIgnoresCallerCounters(t *testing.T) {
	s := openTestStore(t)

	mustCreate(t, s, domain.Resource{
		ID:              "bob",
		Name:            "Bob",
		Active:          true,
		AllocationCount: 99,
		CurrentLoad:     5,
	})

	got, err := s.GetResource(context.Background(), "bob")
	if err != nil {
		t.Fatalf("GetResource() error = %v", err)
	}
	if got.AllocationCount != 0 || got.CurrentLoad != 0 {
		t.Errorf("counters must start at zero, got %+v", got)
	}
}

func TestCreateResourceDuplicate(t *testing.T) {
	s := openTestStore(t)

	mustCreate(t, s, domain.Resource{ID: "alice", Name: "Alice", Active: true})
	err := s.CreateResource(context.Background(), domain.Resource{ID: "alice", Name: "Other", Active: true})
	if !errors.Is(err, ErrResourceExists) {
		t.Errorf("duplicate create error = %v, want ErrResourceExists", err)
	}
}

func TestGetResourceNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetResource(context.Background(), "ghost")
	if !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("error = %v, want ErrResourceNotFound", err)
	}
}

func TestSetResourceActive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, domain.Resource{ID: "alice", Name: "Alice", Active: true})

	if err := s.SetResourceActive(ctx, "alice", false); err != nil {
		t.Fatalf("SetResourceActive() error = %v", err)
	}
	got, _ := s.GetResource(ctx, "alice")
	if got.Active {
		t.Error("resource still active after deactivation")
	}

	if err := s.SetResourceActive(ctx, "ghost", true); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("error = %v, want ErrResourceNotFound", err)
	}
}

func TestListResourcesOrderedByID(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []string{"carol", "alice", "bob"} {
		mustCreate(t, s, domain.Resource{ID: id, Name: id, Active: true})
	}

	got, err := s.ListResources(context.Background())
	if err != nil {
		t.Fatalf("ListResources() error = %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	for i, r := range got {
		if r.ID != want[i] {
			t.Errorf("resource[%d] = %s, want %s", i, r.ID, want[i])
		}
	}
}

func TestAdjustCounter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, domain.Resource{ID: "alice", Name: "Alice", Active: true})

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	err := s.AdjustCounter(ctx, domain.AllocationCounter{
		ResourceID:      "alice",
		AllocationCount: 7,
		LastAllocatedAt: &at,
	})
	if err != nil {
		t.Fatalf("AdjustCounter() error = %v", err)
	}

	counter, err := s.GetCounter(ctx, "alice")
	if err != nil {
		t.Fatalf("GetCounter() error = %v", err)
	}
	if counter.AllocationCount != 7 {
		t.Errorf("allocation count = %d, want 7", counter.AllocationCount)
	}
	if counter.LastAllocatedAt == nil || !counter.LastAllocatedAt.Equal(at) {
		t.Errorf("last allocated = %v, want %v", counter.LastAllocatedAt, at)
	}

	if err := s.AdjustCounter(ctx, domain.AllocationCounter{ResourceID: "ghost"}); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("error = %v, want ErrResourceNotFound", err)
	}
}

func TestCandidateSnapshots(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

	mustCreate(t, s, domain.Resource{ID: "alice", Name: "Alice", Active: true})
	mustCreate(t, s, domain.Resource{ID: "bob", Name: "Bob", Active: true})

	// One committed allocation binding sdr-1 to alice.
	err := s.CommitAllocation(ctx, domain.Assignment{
		ID:         "asg-1",
		AgentID:    "sdr-1",
		ResourceID: "alice",
		Status:     domain.StatusActive,
		Method:     domain.MethodFairRotation,
		AssignedAt: now,
	}, 3)
	if err != nil {
		t.Fatalf("CommitAllocation() error = %v", err)
	}

	snaps, err := s.CandidateSnapshots(ctx, "sdr-1", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CandidateSnapshots() error = %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snaps))
	}

	alice, bob := snaps[0], snaps[1]
	if alice.ActiveLoad != 1 || alice.AllocatedRecently != 1 {
		t.Errorf("alice snapshot = load %d recent %d, want 1/1", alice.ActiveLoad, alice.AllocatedRecently)
	}
	if alice.LastPairedWithAgent == nil {
		t.Error("alice should be paired with sdr-1")
	}
	if bob.ActiveLoad != 0 || bob.AllocatedRecently != 0 || bob.LastPairedWithAgent != nil {
		t.Errorf("bob snapshot = %+v", bob)
	}

	// A different agent sees no pairing on alice.
	snaps, err = s.CandidateSnapshots(ctx, "sdr-2", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CandidateSnapshots() error = %v", err)
	}
	if snaps[0].LastPairedWithAgent != nil {
		t.Error("pairing must be per-agent")
	}

	// Outside the recency window the commit no longer counts.
	snaps, err = s.CandidateSnapshots(ctx, "sdr-1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("CandidateSnapshots() error = %v", err)
	}
	if snaps[0].AllocatedRecently != 0 {
		t.Errorf("recent = %d, want 0 outside window", snaps[0].AllocatedRecently)
	}
}
