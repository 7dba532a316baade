package engine_test

import (
	"errors"
	"testing"

	"crisisline/internal/domain"
	"crisisline/internal/engine"
)

func TestSequenceLetters(t *testing.T) {
	cases := []struct {
		number int
		letter string
	}{
		{1, "A"}, {2, "B"}, {26, "Z"},
		{27, "AA"}, {28, "AB"}, {52, "AZ"}, {53, "BA"}, {702, "ZZ"},
	}
	for _, c := range cases {
		if got := engine.SequenceLetter(c.number); got != c.letter {
			t.Fatalf("letter for %d: got %s want %s", c.number, got, c.letter)
		}
	}
	n, letter := engine.AllocateSequence(0)
	if n != 1 || letter != "A" {
		t.Fatalf("first allocation: got %d/%s", n, letter)
	}
	n, letter = engine.AllocateSequence(26)
	if n != 27 || letter != "AA" {
		t.Fatalf("rollover allocation: got %d/%s", n, letter)
	}
}

func TestVersionBumps(t *testing.T) {
	v, major, minor, patch := engine.BumpVersion("1.2.3", engine.ChangePatch)
	if v != "1.2.4" || major != 1 || minor != 2 || patch != 4 {
		t.Fatalf("patch bump: got %s", v)
	}
	v, _, _, _ = engine.BumpVersion("1.2.3", engine.ChangeMinor)
	if v != "1.3.0" {
		t.Fatalf("minor bump: got %s", v)
	}
	v, _, _, _ = engine.BumpVersion("1.2.3", engine.ChangeMajor)
	if v != "2.0.0" {
		t.Fatalf("major bump: got %s", v)
	}
	// malformed versions degrade to 1.0.0 before bumping
	v, _, _, _ = engine.BumpVersion("garbage", engine.ChangePatch)
	if v != "1.0.1" {
		t.Fatalf("malformed bump: got %s", v)
	}
}

func TestChangeClassFor(t *testing.T) {
	if engine.ChangeClassFor([]string{"additional_context"}) != engine.ChangePatch {
		t.Fatalf("context change should be patch")
	}
	if engine.ChangeClassFor([]string{"additional_context", "timeline"}) != engine.ChangeMinor {
		t.Fatalf("timeline change should be minor")
	}
	if engine.ChangeClassFor([]string{"affected_regions"}) != engine.ChangeMinor {
		t.Fatalf("regions change should be minor")
	}
}

func f(v float64) *float64 { return &v }

func TestAggregateImpact(t *testing.T) {
	w := engine.DefaultImpactWeights
	if got := engine.AggregateImpact(f(36), f(44), f(32), w); got != 37.2 {
		t.Fatalf("all three: got %v", got)
	}
	// a single present input passes through unchanged
	if got := engine.AggregateImpact(f(80), nil, nil, w); got != 80 {
		t.Fatalf("single input: got %v", got)
	}
	if got := engine.AggregateImpact(nil, nil, nil, w); got != 50 {
		t.Fatalf("no inputs: got %v", got)
	}
}

func TestInitialImpacts(t *testing.T) {
	economic, social, environmental := engine.InitialImpacts(7, 2)
	// base = (70+10)/2 = 40
	if economic != 36 || social != 44 || environmental != 32 {
		t.Fatalf("got %v/%v/%v", economic, social, environmental)
	}
}

func TestDeriveTrend(t *testing.T) {
	if engine.DeriveTrend(40, 45) != engine.TrendIncreasing {
		t.Fatalf("increasing")
	}
	if engine.DeriveTrend(45, 40) != engine.TrendDecreasing {
		t.Fatalf("decreasing")
	}
	if engine.DeriveTrend(40, 40) != engine.TrendStable {
		t.Fatalf("stable")
	}
}

func TestClassify(t *testing.T) {
	c := engine.Classify(10, 100, "pandemic", nil)
	if c.Class != "A" || c.ImpactCategory != "high" || c.PriorityScore != 10 {
		t.Fatalf("top case: got %+v", c)
	}
	c = engine.Classify(5, 50, "social_unrest", nil)
	if c.Class != "B" || c.ImpactCategory != "medium" || c.PriorityScore != 5 {
		t.Fatalf("middle case: got %+v", c)
	}
	c = engine.Classify(1, 10, "technological_crisis", nil)
	if c.Class != "C" || c.ImpactCategory != "low" {
		t.Fatalf("low case: got %+v", c)
	}
	if c.PriorityScore < 1 || c.PriorityScore > 3 {
		t.Fatalf("low priority out of band: %d", c.PriorityScore)
	}
	// unknown crisis types weigh 1.0
	c = engine.Classify(5, 50, "alien_invasion", nil)
	if c.Class != "B" {
		t.Fatalf("default weight case: got %+v", c)
	}
}

func balancedSepte() domain.SepteSettings {
	return domain.SepteSettings{
		EconomicCrisisPct: 50, EconomicStabilityPct: 50,
		SocialUnrestPct: 50, SocialCohesionPct: 50,
		EnvironmentalDegradationPct: 50, EnvironmentalResiliencePct: 50,
		PoliticalInstabilityPct: 50, PoliticalStabilityPct: 50,
		TechnologicalDisruptionPct: 50, TechnologicalAdvancementPct: 50,
	}
}

func TestValidateSepte(t *testing.T) {
	if err := engine.ValidateSepte(balancedSepte()); err != nil {
		t.Fatalf("balanced settings: %v", err)
	}
	s := balancedSepte()
	s.SocialUnrestPct = 60
	err := engine.ValidateSepte(s)
	if err == nil {
		t.Fatalf("expected pair error")
	}
	var se engine.SepteError
	if !errors.As(err, &se) || se.Pair != "social" {
		t.Fatalf("expected social pair named, got %v", err)
	}
	// a tenth of a point of float error is tolerated
	s = balancedSepte()
	s.PoliticalInstabilityPct = 50.05
	if err := engine.ValidateSepte(s); err != nil {
		t.Fatalf("tolerance: %v", err)
	}
}

func TestSepteRiskLevel(t *testing.T) {
	s := balancedSepte()
	if got := engine.SepteRiskLevel(s); got != "medium" {
		t.Fatalf("balanced: got %s", got)
	}
	s.EconomicCrisisPct = 90
	s.SocialUnrestPct = 90
	s.EnvironmentalDegradationPct = 80
	s.PoliticalInstabilityPct = 80
	s.TechnologicalDisruptionPct = 80
	if got := engine.SepteRiskLevel(s); got != "critical" {
		t.Fatalf("critical: got %s", got)
	}
	s = domain.SepteSettings{EconomicCrisisPct: 10, SocialUnrestPct: 10}
	if got := engine.SepteRiskLevel(s); got != "low" {
		t.Fatalf("low: got %s", got)
	}
}

func TestConsensusLatch(t *testing.T) {
	c := engine.NewConsensus("lead", 4, balancedSepte(), 75)
	if c.ConsensusReached || c.ConsensusPercentage != 25 {
		t.Fatalf("after creation: %+v", c)
	}
	if !engine.RecordAgreement(&c, "m1", 75) {
		t.Fatalf("m1 should count")
	}
	if c.ConsensusReached {
		t.Fatalf("2 of 4 should not reach")
	}
	// repeat agreement is a no-op
	if engine.RecordAgreement(&c, "m1", 75) {
		t.Fatalf("repeat agreement should not count")
	}
	if !engine.RecordAgreement(&c, "m2", 75) {
		t.Fatalf("m2 should count")
	}
	if !c.ConsensusReached || c.ConsensusPercentage != 75 {
		t.Fatalf("3 of 4 should latch: %+v", c)
	}
}

func TestConsensusSoloRoster(t *testing.T) {
	c := engine.NewConsensus("solo", 1, balancedSepte(), 75)
	if !c.ConsensusReached || c.ConsensusPercentage != 100 {
		t.Fatalf("solo roster should reach immediately: %+v", c)
	}
}
