package engine

import "math"

// Classification holds the three mutually consistent outputs of the ABC
// classifier. They are always derived together, never set independently.
type Classification struct {
	Class          string
	ImpactCategory string
	PriorityScore  int
}

// defaultCategoryWeights is the fixed per-crisis-type multiplier table used
// when no config override is supplied. Unlisted types weigh 1.0.
var defaultCategoryWeights = map[string]float64{
	"pandemic":             1.3,
	"natural_disaster":     1.2,
	"environmental_crisis": 1.2,
	"economic_crisis":      1.1,
	"social_unrest":        1.0,
	"technological_crisis": 0.9,
}

// Classify maps severity (1-10), total impact (0-100) and crisis type to a
// priority tier. Bounding severity to 1-10 is the caller's responsibility.
func Classify(severity int, totalImpact float64, crisisType string, weights map[string]float64) Classification {
	if weights == nil {
		weights = defaultCategoryWeights
	}
	weight, ok := weights[crisisType]
	if !ok {
		weight = 1.0
	}
	score := (float64(severity)*10 + totalImpact) * weight / 2
	priority := int(math.Round(score / 10))
	switch {
	case score >= 75:
		return Classification{Class: "A", ImpactCategory: "high", PriorityScore: clamp(priority, 8, 10)}
	case score >= 50:
		return Classification{Class: "B", ImpactCategory: "medium", PriorityScore: clamp(priority, 4, 7)}
	default:
		return Classification{Class: "C", ImpactCategory: "low", PriorityScore: clamp(priority, 1, 3)}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
