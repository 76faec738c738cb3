package engine

import (
	"time"

	"github.com/hsk98/rota/internal/domain"
)

// Rejection reasons recorded on eligibility audit events.
const (
	rejectInactive    = "inactive"
	rejectAtCapacity  = "at_capacity"
	rejectCooldown    = "cooldown"
	rejectExcluded    = "excluded"
	rejectUnavailable = "unavailable"
)

type eligibilityParams struct {
	agentID       string
	now           time.Time
	exclude       map[string]bool
	maxActiveLoad int
	cooldown      time.Duration
	available     AvailabilityFunc
}

// filterEligible applies the hard eligibility rules to a candidate snapshot
// set. All rules must hold:
//
//   - the resource is active
//   - its active load is below the cap
//   - it is not in the exclusion set
//   - it was not bound to an active assignment for the same agent within the
//     cooldown window (duplicate-pairing prevention)
//   - the injected availability predicate holds at the evaluation instant
//
// An empty result is not handled here - the caller surfaces
// domain.ErrNoEligibleResource rather than relaxing any rule.
func filterEligible(snaps []domain.CandidateSnapshot, p eligibilityParams) (eligible []domain.CandidateSnapshot, rejected map[string]string) {
	rejected = make(map[string]string)

	for _, s := range snaps {
		id := s.Resource.ID
		switch {
		case !s.Resource.Active:
			rejected[id] = rejectInactive
		case s.ActiveLoad >= p.maxActiveLoad:
			rejected[id] = rejectAtCapacity
		case p.exclude[id]:
			rejected[id] = rejectExcluded
		case inCooldown(s.LastPairedWithAgent, p.now, p.cooldown):
			rejected[id] = rejectCooldown
		case !p.available(id, p.now):
			rejected[id] = rejectUnavailable
		default:
			eligible = append(eligible, s)
		}
	}

	return eligible, rejected
}

// inCooldown reports whether the resource's most recent active pairing with
// the requesting agent falls inside the cooldown window.
func inCooldown(lastPaired *time.Time, now time.Time, window time.Duration) bool {
	if lastPaired == nil || window <= 0 {
		return false
	}
	return now.Sub(*lastPaired) < window
}
