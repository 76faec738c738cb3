package engine

import (
	"sort"

	"github.com/hsk98/rota/internal/domain"
)

// maxRunnersUp bounds the alternative-candidates report.
const maxRunnersUp = 2

// RankedCandidate is one entry in the alternative-candidates report.
type RankedCandidate struct {
	ResourceID    string  `json:"resource_id"`
	FairnessScore float64 `json:"fairness_score"`
	MatchScore    float64 `json:"match_score"`
}

// Selection is the pipeline's final choice before commit.
type Selection struct {
	Chosen        domain.CandidateSnapshot
	FairnessScore float64
	MatchScore    float64
	FallbackUsed  bool
	RunnersUp     []RankedCandidate
}

// selectCandidate ranks the preferred tier by ascending fairness score, ties
// broken by ascending resource id, and picks the head. Up to two runners-up
// from the same tier are reported alongside.
//
// The tier is never empty here: an empty eligible set is surfaced as
// domain.ErrNoEligibleResource before the matcher runs, and the matcher never
// empties a non-empty tier. There is deliberately no emergency ignore-the-rules
// fallback at this layer; see EmergencyBypass for the opt-in policy above it.
func selectCandidate(tier []domain.CandidateSnapshot, fairness map[string]float64, matches map[string]capabilityMatch, fallbackUsed bool) Selection {
	ranked := make([]domain.CandidateSnapshot, len(tier))
	copy(ranked, tier)

	sort.Slice(ranked, func(i, j int) bool {
		si, sj := fairness[ranked[i].Resource.ID], fairness[ranked[j].Resource.ID]
		if si != sj {
			return si < sj
		}
		return ranked[i].Resource.ID < ranked[j].Resource.ID
	})

	chosen := ranked[0]
	sel := Selection{
		Chosen:        chosen,
		FairnessScore: fairness[chosen.Resource.ID],
		MatchScore:    matches[chosen.Resource.ID].Score,
		FallbackUsed:  fallbackUsed,
	}

	for _, s := range ranked[1:] {
		if len(sel.RunnersUp) == maxRunnersUp {
			break
		}
		sel.RunnersUp = append(sel.RunnersUp, RankedCandidate{
			ResourceID:    s.Resource.ID,
			FairnessScore: fairness[s.Resource.ID],
			MatchScore:    matches[s.Resource.ID].Score,
		})
	}

	return sel
}
