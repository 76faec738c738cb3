package engine

import "github.com/hsk98/rota/internal/domain"

// capabilityMatch is the match outcome for one resource.
type capabilityMatch struct {
	// Score is the fraction of requested capabilities the resource declares,
	// in [0,1]. With no requirements every resource scores 1.0.
	Score float64

	// Exact is true when Score == 1.0.
	Exact bool
}

// matchScores computes the capability match for every eligible resource.
// With an empty requirement sequence the matcher is a pass-through: every
// resource is trivially an exact match.
func matchScores(eligible []domain.CandidateSnapshot, reqs []domain.CapabilityRequirement) map[string]capabilityMatch {
	matches := make(map[string]capabilityMatch, len(eligible))

	if len(reqs) == 0 {
		for _, s := range eligible {
			matches[s.Resource.ID] = capabilityMatch{Score: 1.0, Exact: true}
		}
		return matches
	}

	for _, s := range eligible {
		have := 0
		for _, req := range reqs {
			if s.Resource.HasCapability(req.ID) {
				have++
			}
		}
		score := float64(have) / float64(len(reqs))
		matches[s.Resource.ID] = capabilityMatch{Score: score, Exact: have == len(reqs)}
	}

	return matches
}

// preferredTier partitions the eligible set into the tier the selector ranks.
//
// Two-phase policy: prefer the exact-match subset; when none exists, fall
// back to the highest-score subset and signal fallbackUsed. A tier where
// every resource scores 0 is still a valid, maximally degraded tier - a
// fairness-acceptable candidate is never turned into "no candidate" by
// capability matching alone.
func preferredTier(eligible []domain.CandidateSnapshot, matches map[string]capabilityMatch) (tier []domain.CandidateSnapshot, fallbackUsed bool) {
	var exact []domain.CandidateSnapshot
	for _, s := range eligible {
		if matches[s.Resource.ID].Exact {
			exact = append(exact, s)
		}
	}
	if len(exact) > 0 {
		return exact, false
	}
	if len(eligible) == 0 {
		return nil, false
	}

	best := 0.0
	for _, s := range eligible {
		if sc := matches[s.Resource.ID].Score; sc > best {
			best = sc
		}
	}
	for _, s := range eligible {
		if matches[s.Resource.ID].Score == best {
			tier = append(tier, s)
		}
	}
	return tier, true
}
