package engine

import (
	"math"

	"crisisline/internal/domain"
)

const defaultConsensusThreshold = 75.0

// RosterSize counts the voters for a consensus round: every team member plus
// the lead when a team exists, otherwise just the creator.
func RosterSize(team *domain.Team) int {
	if team == nil {
		return 1
	}
	return len(team.MemberIDs) + 1
}

// RecordAgreement adds userID to the agreed set and recomputes the consensus
// state. Repeat agreements by the same user are no-ops. Once consensus is
// reached the percentage and reached flag stay latched; finalized_at is the
// caller's concern because it needs a clock.
func RecordAgreement(c *domain.ConsensusSettings, userID string, threshold float64) (changed bool) {
	for _, id := range c.AgreedBy {
		if id == userID {
			return false
		}
	}
	c.AgreedBy = append(c.AgreedBy, userID)
	recompute(c, threshold)
	return true
}

func recompute(c *domain.ConsensusSettings, threshold float64) {
	if threshold <= 0 {
		threshold = defaultConsensusThreshold
	}
	total := c.TotalTeamMembers
	if total < 1 {
		total = 1
	}
	pct := float64(len(c.AgreedBy)) / float64(total) * 100
	c.ConsensusPercentage = math.Round(pct*100) / 100
	if c.ConsensusPercentage >= threshold {
		c.ConsensusReached = true
	}
}

// NewConsensus seeds a round with the creator already agreed.
func NewConsensus(creatorID string, totalMembers int, settings domain.SepteSettings, threshold float64) domain.ConsensusSettings {
	c := domain.ConsensusSettings{
		AgreedBy:         []string{creatorID},
		TotalTeamMembers: totalMembers,
		FinalSettings:    settings,
	}
	recompute(&c, threshold)
	return c
}
