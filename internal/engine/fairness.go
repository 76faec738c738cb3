package engine

import (
	"time"

	"github.com/hsk98/rota/internal/domain"
)

// ScoreWeights are the fairness formula coefficients. The defaults are the
// documented contract, not illustrations - change them only through
// configuration.
type ScoreWeights struct {
	// RecentAllocation penalizes each ledger commit within the last 24h.
	RecentAllocation float64 `json:"recent_allocation" yaml:"recent_allocation"`

	// ActiveLoad penalizes each currently-active assignment.
	ActiveLoad float64 `json:"active_load" yaml:"active_load"`

	// IdleCreditCap caps the idle-time reward (hours since last allocation
	// divided by 24) so long-idle resources cannot dominate indefinitely.
	IdleCreditCap float64 `json:"idle_credit_cap" yaml:"idle_credit_cap"`

	// NewResourceBoost is the one-time priority boost for resources that have
	// never been allocated, pulling them into rotation quickly.
	NewResourceBoost float64 `json:"new_resource_boost" yaml:"new_resource_boost"`
}

// DefaultScoreWeights returns the documented default coefficients.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		RecentAllocation: 2.0,
		ActiveLoad:       1.5,
		IdleCreditCap:    2.0,
		NewResourceBoost: 10.0,
	}
}

// fairnessScores computes the priority score for each eligible resource.
// Lower is higher priority.
//
//	score(r) = allocationCount(r) - mean(allocationCount over eligible)
//	         + RecentAllocation * allocatedWithin24h(r)
//	         + ActiveLoad * activeLoad(r)
//	         - min(hoursSince(lastAllocatedAt(r)) / 24, IdleCreditCap)
//	         - (neverAllocated(r) ? NewResourceBoost : 0)
//
// Ties are not resolved here; the selector breaks them by ascending
// resource id for determinism.
func fairnessScores(eligible []domain.CandidateSnapshot, now time.Time, w ScoreWeights) map[string]float64 {
	if len(eligible) == 0 {
		return nil
	}

	var total int
	for _, s := range eligible {
		total += s.Resource.AllocationCount
	}
	mean := float64(total) / float64(len(eligible))

	scores := make(map[string]float64, len(eligible))
	for _, s := range eligible {
		score := float64(s.Resource.AllocationCount) - mean
		score += w.RecentAllocation * float64(s.AllocatedRecently)
		score += w.ActiveLoad * float64(s.ActiveLoad)

		if s.Resource.LastAllocatedAt != nil {
			idle := now.Sub(*s.Resource.LastAllocatedAt).Hours() / 24.0
			if idle > w.IdleCreditCap {
				idle = w.IdleCreditCap
			}
			if idle > 0 {
				score -= idle
			}
		}

		if neverAllocated(s) {
			score -= w.NewResourceBoost
		}

		scores[s.Resource.ID] = score
	}

	return scores
}

// neverAllocated reports whether the resource has no allocation history at
// all, qualifying it for the one-time new-resource boost.
func neverAllocated(s domain.CandidateSnapshot) bool {
	return s.Resource.AllocationCount == 0 && s.Resource.LastAllocatedAt == nil
}
