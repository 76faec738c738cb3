package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsk98/rota/internal/domain"
)

func defaultParams(now time.Time) eligibilityParams {
	return eligibilityParams{
		agentID:       "sdr-1",
		now:           now,
		maxActiveLoad: 3,
		cooldown:      24 * time.Hour,
		available:     AlwaysAvailable,
	}
}

func TestFilterEligibleRules(t *testing.T) {
	now := testStart
	paired := now.Add(-1 * time.Hour)
	pairedLongAgo := now.Add(-30 * time.Hour)

	inactive := plain("inactive")
	inactive.Resource.Active = false

	atCapacity := plain("at-capacity")
	atCapacity.ActiveLoad = 3

	cooled := plain("in-cooldown")
	cooled.LastPairedWithAgent = &paired

	pastCooldown := plain("past-cooldown")
	pastCooldown.LastPairedWithAgent = &pairedLongAgo

	snaps := []domain.CandidateSnapshot{
		plain("ok"), inactive, atCapacity, cooled, pastCooldown, plain("excluded"),
	}
	params := defaultParams(now)
	params.exclude = map[string]bool{"excluded": true}

	eligible, rejected := filterEligible(snaps, params)

	var ids []string
	for _, s := range eligible {
		ids = append(ids, s.Resource.ID)
	}
	assert.Equal(t, []string{"ok", "past-cooldown"}, ids)

	assert.Equal(t, map[string]string{
		"inactive":    "inactive",
		"at-capacity": "at_capacity",
		"in-cooldown": "cooldown",
		"excluded":    "excluded",
	}, rejected)
}

func TestFilterEligibleAvailability(t *testing.T) {
	params := defaultParams(testStart)
	params.available = func(id string, _ time.Time) bool { return id != "away" }

	eligible, rejected := filterEligible(
		[]domain.CandidateSnapshot{plain("here"), plain("away")}, params)

	require.Len(t, eligible, 1)
	assert.Equal(t, "here", eligible[0].Resource.ID)
	assert.Equal(t, "unavailable", rejected["away"])
}

func TestInCooldown(t *testing.T) {
	now := testStart
	recent := now.Add(-1 * time.Hour)
	old := now.Add(-25 * time.Hour)

	assert.True(t, inCooldown(&recent, now, 24*time.Hour))
	assert.False(t, inCooldown(&old, now, 24*time.Hour))
	assert.False(t, inCooldown(nil, now, 24*time.Hour))
	assert.False(t, inCooldown(&recent, now, 0), "zero window disables cooldown")
}
