package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsk98/rota/internal/domain"
	"github.com/hsk98/rota/internal/testutil"
)

// memStore is an in-memory Persistence implementation with the same
// commit-time re-validation semantics as the SQLite store.
type memStore struct {
	mu          sync.Mutex
	order       []string
	resources   map[string]*memResource
	assignments map[string]domain.Assignment
	history     map[string][]domain.ReassignmentRecord

	// contention fails the next N commits with ErrContention before the
	// re-validation runs, simulating lost races.
	contention int
}

type memResource struct {
	res        domain.Resource
	allocTimes []time.Time
}

func newMemStore(resources ...domain.Resource) *memStore {
	m := &memStore{
		resources:   map[string]*memResource{},
		assignments: map[string]domain.Assignment{},
		history:     map[string][]domain.ReassignmentRecord{},
	}
	for _, r := range resources {
		m.order = append(m.order, r.ID)
		m.resources[r.ID] = &memResource{res: r}
	}
	return m
}

func (m *memStore) CandidateSnapshots(_ context.Context, agentID string, recentSince time.Time) ([]domain.CandidateSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var snaps []domain.CandidateSnapshot
	for _, id := range m.order {
		mr := m.resources[id]
		snap := domain.CandidateSnapshot{
			Resource:   mr.res,
			ActiveLoad: mr.res.CurrentLoad,
		}
		for _, at := range mr.allocTimes {
			if !at.Before(recentSince) {
				snap.AllocatedRecently++
			}
		}
		for _, a := range m.assignments {
			if a.ResourceID == id && a.AgentID == agentID && a.Status == domain.StatusActive {
				at := a.AssignedAt
				if snap.LastPairedWithAgent == nil || at.After(*snap.LastPairedWithAgent) {
					snap.LastPairedWithAgent = &at
				}
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (m *memStore) GetAssignment(_ context.Context, id string) (domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return domain.Assignment{}, domain.ErrAssignmentNotFound
	}
	return a, nil
}

// claim re-validates and mutates the counter fields, mirroring the SQLite
// store's guarded UPDATE.
func (m *memStore) claim(id string, maxActiveLoad int, at time.Time) error {
	mr, ok := m.resources[id]
	if !ok {
		return fmt.Errorf("unknown resource %s: %w", id, domain.ErrPersistence)
	}
	if !mr.res.Active || mr.res.CurrentLoad >= maxActiveLoad {
		return domain.ErrContention
	}
	mr.res.CurrentLoad++
	mr.res.AllocationCount++
	t := at
	mr.res.LastAllocatedAt = &t
	mr.allocTimes = append(mr.allocTimes, at)
	return nil
}

func (m *memStore) CommitAllocation(_ context.Context, a domain.Assignment, maxActiveLoad int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contention > 0 {
		m.contention--
		return domain.ErrContention
	}
	if err := m.claim(a.ResourceID, maxActiveLoad, a.AssignedAt); err != nil {
		return err
	}
	m.assignments[a.ID] = a
	return nil
}

func (m *memStore) CommitReassignment(_ context.Context, rec domain.ReassignmentRecord, matchScore float64, fallbackUsed bool, maxActiveLoad int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contention > 0 {
		m.contention--
		return domain.ErrContention
	}

	a, ok := m.assignments[rec.AssignmentID]
	if !ok || a.Status != domain.StatusActive || a.ReassignmentCount != rec.SequenceNumber-1 {
		return domain.ErrContention
	}
	if err := m.claim(rec.ToResourceID, maxActiveLoad, rec.Timestamp); err != nil {
		return err
	}

	if from := m.resources[rec.FromResourceID]; from != nil && from.res.CurrentLoad > 0 {
		from.res.CurrentLoad--
	}
	a.ResourceID = rec.ToResourceID
	a.ReassignmentCount++
	a.MatchScore = matchScore
	a.FallbackUsed = fallbackUsed
	m.assignments[rec.AssignmentID] = a
	m.history[rec.AssignmentID] = append(m.history[rec.AssignmentID], rec)
	return nil
}

func (m *memStore) AppendFailedReassignment(_ context.Context, rec domain.ReassignmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[rec.AssignmentID] = append(m.history[rec.AssignmentID], rec)
	return nil
}

func (m *memStore) History(_ context.Context, assignmentID string) ([]domain.ReassignmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]domain.ReassignmentRecord, len(m.history[assignmentID]))
	copy(recs, m.history[assignmentID])
	return recs, nil
}

func (m *memStore) resource(t *testing.T, id string) domain.Resource {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.resources[id]
	require.True(t, ok, "unknown resource %s", id)
	return mr.res
}

// testStart is a fixed Monday morning.
var testStart = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func newTestEngine(store Persistence, opts ...Option) *Engine {
	base := []Option{
		WithClock(testutil.NewClock(testStart).Now),
		WithIDGenerator(NewSequenceIDs("id")),
		WithAuditEmitter(MultiEmitter{}),
	}
	return New(store, append(base, opts...)...)
}

func activeResource(id string, count int, caps ...string) domain.Resource {
	return domain.Resource{ID: id, Name: id, Active: true, Capabilities: caps, AllocationCount: count}
}

func TestAllocateRotatesEqualCounters(t *testing.T) {
	store := newMemStore(
		activeResource("alice", 5),
		activeResource("bob", 5),
		activeResource("carol", 5),
	)
	eng := newTestEngine(store)
	ctx := context.Background()

	var got []string
	for i := 0; i < 4; i++ {
		res, err := eng.Allocate(ctx, AllocationRequest{AgentID: fmt.Sprintf("sdr-%d", i+1)})
		require.NoError(t, err)
		got = append(got, res.Assignment.ResourceID)
	}

	// Equal counters break ties by ascending id; once everyone has been hit
	// the rotation wraps.
	assert.Equal(t, []string{"alice", "bob", "carol", "alice"}, got)
}

func TestAllocateDefaultsMethod(t *testing.T) {
	store := newMemStore(activeResource("alice", 0, "spanish"))
	eng := newTestEngine(store)
	ctx := context.Background()

	res, err := eng.Allocate(ctx, AllocationRequest{AgentID: "sdr-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.MethodFairRotation, res.Assignment.Method)

	res, err = eng.Allocate(ctx, AllocationRequest{
		AgentID:      "sdr-2",
		Requirements: []domain.CapabilityRequirement{{ID: "spanish", Priority: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MethodCapabilityBased, res.Assignment.Method)
}

func TestAllocateValidation(t *testing.T) {
	store := newMemStore(activeResource("alice", 0))
	eng := newTestEngine(store)
	ctx := context.Background()

	_, err := eng.Allocate(ctx, AllocationRequest{AgentID: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidRequirement)

	_, err = eng.Allocate(ctx, AllocationRequest{
		AgentID: "sdr-1",
		Requirements: []domain.CapabilityRequirement{
			{ID: "spanish", Priority: 1},
			{ID: "Spanish", Priority: 2}, // duplicate after normalization
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequirement)
}

func TestAllocateNoEligibleResource(t *testing.T) {
	inactive := activeResource("alice", 0)
	inactive.Active = false
	store := newMemStore(inactive)
	eng := newTestEngine(store)

	_, err := eng.Allocate(context.Background(), AllocationRequest{AgentID: "sdr-1"})
	assert.ErrorIs(t, err, domain.ErrNoEligibleResource)
}

func TestAllocateCapacityCap(t *testing.T) {
	store := newMemStore(activeResource("alice", 0))
	eng := newTestEngine(store, WithConfig(Config{MaxActiveLoad: 2}))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := eng.Allocate(ctx, AllocationRequest{AgentID: fmt.Sprintf("sdr-%d", i+1)})
		require.NoError(t, err)
	}

	// Third request finds the only resource at capacity.
	_, err := eng.Allocate(ctx, AllocationRequest{AgentID: "sdr-3"})
	assert.ErrorIs(t, err, domain.ErrNoEligibleResource)
	assert.Equal(t, 2, store.resource(t, "alice").CurrentLoad)
}

func TestAllocateCooldownBlocksRepairing(t *testing.T) {
	store := newMemStore(activeResource("alice", 0), activeResource("bob", 0))
	eng := newTestEngine(store)
	ctx := context.Background()

	first, err := eng.Allocate(ctx, AllocationRequest{AgentID: "sdr-1"})
	require.NoError(t, err)

	// Same agent again: the first pick is in cooldown, the other one wins
	// despite its worse fairness position.
	second, err := eng.Allocate(ctx, AllocationRequest{AgentID: "sdr-1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Assignment.ResourceID, second.Assignment.ResourceID)
}

func TestAllocateCooldownDisabledAllowsRepairing(t *testing.T) {
	store := newMemStore(activeResource("alice", 0))
	eng := newTestEngine(store, WithConfig(Config{CooldownWindow: CooldownDisabled}))
	ctx := context.Background()

	first, err := eng.Allocate(ctx, AllocationRequest{AgentID: "sdr-1"})
	require.NoError(t, err)

	// With the rule off the same pairing repeats immediately.
	second, err := eng.Allocate(ctx, AllocationRequest{AgentID: "sdr-1"})
	require.NoError(t, err)
	assert.Equal(t, first.Assignment.ResourceID, second.Assignment.ResourceID)
}

func TestConfigCooldownZeroMeansDefault(t *testing.T) {
	eng := newTestEngine(newMemStore(), WithConfig(Config{MaxActiveLoad: 2}))
	assert.Equal(t, DefaultCooldownWindow, eng.Config().CooldownWindow)
}

func TestAllocateRetriesOnContention(t *testing.T) {
	store := newMemStore(activeResource("alice", 0), activeResource("bob", 0))
	store.contention = 1
	eng := newTestEngine(store)

	res, err := eng.Allocate(context.Background(), AllocationRequest{AgentID: "sdr-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

func TestAllocateSurfacesContentionAfterRetries(t *testing.T) {
	store := newMemStore(activeResource("alice", 0))
	store.contention = 3 // every attempt loses the race
	eng := newTestEngine(store, WithConfig(Config{CommitRetries: 3}))

	_, err := eng.Allocate(context.Background(), AllocationRequest{AgentID: "sdr-1"})
	assert.ErrorIs(t, err, domain.ErrContention)
}

func TestAllocateConcurrentCommitsRespectCapacity(t *testing.T) {
	store := newMemStore(activeResource("alice", 0))
	eng := newTestEngine(store, WithConfig(Config{MaxActiveLoad: 3, CommitRetries: 5}))
	ctx := context.Background()

	const requests = 10
	var wg sync.WaitGroup
	results := make([]error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := eng.Allocate(ctx, AllocationRequest{AgentID: fmt.Sprintf("sdr-%d", n)})
			results[n] = err
		}(i)
	}
	wg.Wait()

	committed := 0
	for _, err := range results {
		if err == nil {
			committed++
		} else {
			assert.ErrorIs(t, err, domain.ErrNoEligibleResource)
		}
	}

	// Exactly capacity-many commits; the counter saw every one of them.
	r := store.resource(t, "alice")
	assert.Equal(t, 3, committed)
	assert.Equal(t, 3, r.CurrentLoad)
	assert.Equal(t, 3, r.AllocationCount)
}

func TestAllocateReportsRunnersUp(t *testing.T) {
	store := newMemStore(
		activeResource("alice", 1),
		activeResource("bob", 2),
		activeResource("carol", 3),
		activeResource("dave", 4),
	)
	eng := newTestEngine(store)

	res, err := eng.Allocate(context.Background(), AllocationRequest{AgentID: "sdr-1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Assignment.ResourceID)
	require.Len(t, res.RunnersUp, 2)
	assert.Equal(t, "bob", res.RunnersUp[0].ResourceID)
	assert.Equal(t, "carol", res.RunnersUp[1].ResourceID)
}
