package engine

import (
	"fmt"
	"math"

	"crisisline/internal/domain"
)

// septePairTolerance absorbs floating-point representation error, not genuine
// logical slack.
const septePairTolerance = 0.1

// SepteError identifies the first opposing pair that does not sum to 100.
// It is the only user-facing error the engine raises.
type SepteError struct {
	Pair string
	Sum  float64
}

func (e SepteError) Error() string {
	return fmt.Sprintf("%s percentages must sum to 100, got %g", e.Pair, e.Sum)
}

type septePair struct {
	name string
	a, b float64
}

func septePairs(s domain.SepteSettings) []septePair {
	return []septePair{
		{"economic", s.EconomicCrisisPct, s.EconomicStabilityPct},
		{"social", s.SocialUnrestPct, s.SocialCohesionPct},
		{"environmental", s.EnvironmentalDegradationPct, s.EnvironmentalResiliencePct},
		{"political", s.PoliticalInstabilityPct, s.PoliticalStabilityPct},
		{"technological", s.TechnologicalDisruptionPct, s.TechnologicalAdvancementPct},
	}
}

// ValidateSepte checks each of the five opposing pairs and fails on the first
// violation; it does not collect all violations.
func ValidateSepte(s domain.SepteSettings) error {
	for _, p := range septePairs(s) {
		sum := p.a + p.b
		if math.Abs(sum-100.0) > septePairTolerance {
			return SepteError{Pair: p.name, Sum: sum}
		}
	}
	return nil
}

// SepteRiskLevel derives an adjustment's risk level from the mean of the five
// crisis-side percentages.
func SepteRiskLevel(s domain.SepteSettings) string {
	avg := (s.EconomicCrisisPct + s.SocialUnrestPct + s.EnvironmentalDegradationPct +
		s.PoliticalInstabilityPct + s.TechnologicalDisruptionPct) / 5
	switch {
	case avg >= 75:
		return "critical"
	case avg >= 60:
		return "high"
	case avg >= 40:
		return "medium"
	default:
		return "low"
	}
}
