package engine

import "math"

// Impact trends.
const (
	TrendIncreasing   = "increasing"
	TrendDecreasing   = "decreasing"
	TrendStable       = "stable"
	TrendManualUpdate = "manual_update"
)

// neutralImpact is returned when no sub-score is present at all.
const neutralImpact = 50.0

// ImpactWeights are applied positionally to the economic, social and
// environmental sub-scores.
type ImpactWeights struct {
	Economic      float64
	Social        float64
	Environmental float64
}

// DefaultImpactWeights is the fixed 0.4/0.3/0.3 split.
var DefaultImpactWeights = ImpactWeights{Economic: 0.4, Social: 0.3, Environmental: 0.3}

// AggregateImpact computes the weighted mean of the present sub-scores. Each
// present input keeps its positional weight and the sum is divided by the
// weights actually used, so a single present input passes through unchanged.
// With no inputs the neutral default of 50 is returned. Rounded to 2 decimals.
func AggregateImpact(economic, social, environmental *float64, w ImpactWeights) float64 {
	var sum, weightSum float64
	if economic != nil {
		sum += *economic * w.Economic
		weightSum += w.Economic
	}
	if social != nil {
		sum += *social * w.Social
		weightSum += w.Social
	}
	if environmental != nil {
		sum += *environmental * w.Environmental
		weightSum += w.Environmental
	}
	if weightSum == 0 {
		return neutralImpact
	}
	return math.Round(sum/weightSum*100) / 100
}

// InitialImpacts seeds the three sub-scores at scenario creation from the
// severity and the number of affected regions.
func InitialImpacts(severity, regionCount int) (economic, social, environmental float64) {
	base := float64(severity*10+regionCount*5) / 2
	return base * 0.9, base * 1.1, base * 0.8
}

// DeriveTrend classifies the direction of an automatic recalculation. Manual
// impact edits bypass this and force-set the manual_update trend instead.
func DeriveTrend(oldTotal, newTotal float64) string {
	switch {
	case newTotal > oldTotal:
		return TrendIncreasing
	case newTotal < oldTotal:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
