// Package narrative produces the free-text analysis attached to a scenario
// adjustment. The engine treats the output as opaque strings; swapping this
// implementation for a remote text-generation service changes nothing else.
package narrative

import (
	"context"
	"fmt"

	"crisisline/internal/domain"
)

type Narrative struct {
	RealTimeAnalysis string
	ImpactSummary    string
	Recommendations  []string
}

type Generator interface {
	Analyze(ctx context.Context, a domain.ScenarioAdjustment) (Narrative, error)
}

// TemplateGenerator is the built-in deterministic generator. It renders the
// SEPTE parameters into plain prose without calling out anywhere.
type TemplateGenerator struct{}

func (TemplateGenerator) Analyze(_ context.Context, a domain.ScenarioAdjustment) (Narrative, error) {
	s := a.Settings
	n := Narrative{
		RealTimeAnalysis: fmt.Sprintf(
			"Scenario %q models an environment with %.0f%% economic crisis pressure, %.0f%% social unrest, %.0f%% environmental degradation, %.0f%% political instability and %.0f%% technological disruption. The dominant axis is %s.",
			a.AdjustmentName,
			s.EconomicCrisisPct, s.SocialUnrestPct, s.EnvironmentalDegradationPct,
			s.PoliticalInstabilityPct, s.TechnologicalDisruptionPct,
			dominantAxis(s)),
		ImpactSummary: fmt.Sprintf(
			"Stability reserves: economic %.0f%%, social cohesion %.0f%%, environmental resilience %.0f%%, political %.0f%%, technological advancement %.0f%%.",
			s.EconomicStabilityPct, s.SocialCohesionPct, s.EnvironmentalResiliencePct,
			s.PoliticalStabilityPct, s.TechnologicalAdvancementPct),
	}
	if s.EconomicCrisisPct >= 50 {
		n.Recommendations = append(n.Recommendations, "Secure liquidity and review supplier contracts for economic shock clauses.")
	}
	if s.SocialUnrestPct >= 50 {
		n.Recommendations = append(n.Recommendations, "Prepare workforce communication plans and flexible staffing arrangements.")
	}
	if s.EnvironmentalDegradationPct >= 50 {
		n.Recommendations = append(n.Recommendations, "Audit facilities for environmental exposure and continuity of utilities.")
	}
	if s.PoliticalInstabilityPct >= 50 {
		n.Recommendations = append(n.Recommendations, "Track regulatory changes and diversify jurisdictional dependencies.")
	}
	if s.TechnologicalDisruptionPct >= 50 {
		n.Recommendations = append(n.Recommendations, "Stress-test critical systems and rehearse degraded-mode operations.")
	}
	if len(n.Recommendations) == 0 {
		n.Recommendations = []string{"Maintain the current monitoring cadence; no axis exceeds the attention threshold."}
	}
	return n, nil
}

func dominantAxis(s domain.SepteSettings) string {
	axes := []struct {
		name string
		pct  float64
	}{
		{"economic", s.EconomicCrisisPct},
		{"social", s.SocialUnrestPct},
		{"environmental", s.EnvironmentalDegradationPct},
		{"political", s.PoliticalInstabilityPct},
		{"technological", s.TechnologicalDisruptionPct},
	}
	top := axes[0]
	for _, a := range axes[1:] {
		if a.pct > top.pct {
			top = a
		}
	}
	return top.name
}
