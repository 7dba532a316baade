package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"crisisline/internal/config"
	"crisisline/internal/db"
	"crisisline/internal/domain"
	"crisisline/internal/engine"
	"crisisline/internal/migrate"
	"crisisline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	for _, id := range []string{"user-1", "user-2", "user-3"} {
		u := domain.User{ID: id, Email: id + "@example.com", PasswordHash: "x", CreatedAt: "2026-01-01T00:00:00Z"}
		if err := eng.Repo.InsertUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func createScenario(t *testing.T, env testEnv) domain.Scenario {
	t.Helper()
	s, err := env.Engine.CreateScenario(env.Ctx, engine.ScenarioCreateOptions{
		Title:           "Port flooding",
		CrisisType:      "natural_disaster",
		Severity:        7,
		AffectedRegions: []string{"coastal-north", "coastal-south"},
		UserID:          "user-1",
		ActorID:         "user-1",
	})
	if err != nil {
		t.Fatalf("create scenario: %v", err)
	}
	return s
}

func TestCreateScenario(t *testing.T) {
	env := newTestEnv(t)
	s := createScenario(t, env)

	if s.SequenceNumber != 1 || s.SequenceLetter != "A" {
		t.Fatalf("sequence: got %d/%s", s.SequenceNumber, s.SequenceLetter)
	}
	if s.VersionNumber != "1.0.0" || s.RevisionCount != 0 || s.ModificationCount != 0 {
		t.Fatalf("fresh version state: %s rev=%d mod=%d", s.VersionNumber, s.RevisionCount, s.ModificationCount)
	}
	// base = (7*10 + 2*5)/2 = 40
	if *s.EconomicImpact != 36 || *s.SocialImpact != 44 || *s.EnvironmentalImpact != 32 {
		t.Fatalf("initial impacts: %v/%v/%v", *s.EconomicImpact, *s.SocialImpact, *s.EnvironmentalImpact)
	}
	if s.CalculatedTotalImpact != 37.2 || s.ImpactScore != 37.2 {
		t.Fatalf("total impact: %v", s.CalculatedTotalImpact)
	}
	// (70 + 37.2) * 1.2 / 2 = 64.32 -> B
	if s.ABCClassification != "B" || s.ImpactCategory != "medium" || s.PriorityScore != 6 {
		t.Fatalf("classification: %s/%s/%d", s.ABCClassification, s.ImpactCategory, s.PriorityScore)
	}
	if len(s.ChangeHistory) != 1 || s.ChangeHistory[0].Action != engine.ActionCreated {
		t.Fatalf("ledger seed: %+v", s.ChangeHistory)
	}
	if s.ImpactTrend != engine.TrendStable {
		t.Fatalf("trend: %s", s.ImpactTrend)
	}

	// second scenario for the same owner advances the sequence
	s2, err := env.Engine.CreateScenario(env.Ctx, engine.ScenarioCreateOptions{
		Title: "Grid failure", CrisisType: "technological_crisis", Severity: 4,
		UserID: "user-1", ActorID: "user-1",
	})
	if err != nil {
		t.Fatalf("second scenario: %v", err)
	}
	if s2.SequenceNumber != 2 || s2.SequenceLetter != "B" {
		t.Fatalf("second sequence: %d/%s", s2.SequenceNumber, s2.SequenceLetter)
	}
	// a different owner starts its own run
	s3, err := env.Engine.CreateScenario(env.Ctx, engine.ScenarioCreateOptions{
		Title: "Strike wave", CrisisType: "social_unrest", Severity: 5,
		UserID: "user-2", ActorID: "user-2",
	})
	if err != nil {
		t.Fatalf("other owner scenario: %v", err)
	}
	if s3.SequenceNumber != 1 || s3.SequenceLetter != "A" {
		t.Fatalf("other owner sequence: %d/%s", s3.SequenceNumber, s3.SequenceLetter)
	}
}

func TestCreateScenarioValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateScenario(env.Ctx, engine.ScenarioCreateOptions{
		CrisisType: "pandemic", Severity: 5, UserID: "user-1", ActorID: "user-1",
	})
	if err == nil {
		t.Fatalf("missing title should fail")
	}
	_, err = env.Engine.CreateScenario(env.Ctx, engine.ScenarioCreateOptions{
		Title: "x", CrisisType: "pandemic", Severity: 11, UserID: "user-1", ActorID: "user-1",
	})
	if err == nil {
		t.Fatalf("severity 11 should fail")
	}
	_, err = env.Engine.CreateScenario(env.Ctx, engine.ScenarioCreateOptions{
		Title: "x", CrisisType: "pandemic", Severity: 5, UserID: "nobody", ActorID: "nobody",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown user: got %v", err)
	}
}

func strPtr(s string) *string { return &s }

func TestAmendScenario(t *testing.T) {
	env := newTestEnv(t)
	s := createScenario(t, env)

	// patch-level change
	s, err := env.Engine.AmendScenario(env.Ctx, engine.ScenarioAmendOptions{
		ID: s.ID, UserID: "user-1", ActorID: "user-2",
		AdditionalContext: strPtr("Rail links also affected."),
	})
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if s.VersionNumber != "1.0.1" || s.ModificationCount != 1 || s.RevisionCount != 1 {
		t.Fatalf("patch amend: %s mod=%d rev=%d", s.VersionNumber, s.ModificationCount, s.RevisionCount)
	}
	if s.LastModifiedBy != "user-2" {
		t.Fatalf("last modified by: %s", s.LastModifiedBy)
	}
	last := s.ChangeHistory[len(s.ChangeHistory)-1]
	if last.Action != engine.ActionUpdated || last.Field != "additional_context" {
		t.Fatalf("ledger entry: %+v", last)
	}
	if last.OldValue == nil || *last.OldValue != "" || last.NewValue == nil || *last.NewValue != "Rail links also affected." {
		t.Fatalf("ledger values: %+v", last)
	}

	// minor-level change
	s, err = env.Engine.AmendScenario(env.Ctx, engine.ScenarioAmendOptions{
		ID: s.ID, UserID: "user-1", ActorID: "user-1",
		Timeline: strPtr("72 hours"),
	})
	if err != nil {
		t.Fatalf("minor amend: %v", err)
	}
	if s.VersionNumber != "1.1.0" || s.ModificationCount != 2 || s.RevisionCount != 2 {
		t.Fatalf("minor amend: %s mod=%d rev=%d", s.VersionNumber, s.ModificationCount, s.RevisionCount)
	}

	// resubmitting identical values is a no-op, not an error
	before := s
	s, err = env.Engine.AmendScenario(env.Ctx, engine.ScenarioAmendOptions{
		ID: s.ID, UserID: "user-1", ActorID: "user-1",
		Timeline: strPtr("72 hours"),
	})
	if err != nil {
		t.Fatalf("no-op amend: %v", err)
	}
	if s.VersionNumber != before.VersionNumber || s.ModificationCount != before.ModificationCount ||
		len(s.ChangeHistory) != len(before.ChangeHistory) {
		t.Fatalf("no-op amend mutated state: %s mod=%d", s.VersionNumber, s.ModificationCount)
	}

	// ownership scoping: another user cannot see or amend it
	_, err = env.Engine.AmendScenario(env.Ctx, engine.ScenarioAmendOptions{
		ID: s.ID, UserID: "user-2", ActorID: "user-2",
		Timeline: strPtr("1 week"),
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("cross-owner amend: got %v", err)
	}
}

func TestManualImpactUpdate(t *testing.T) {
	env := newTestEnv(t)
	s := createScenario(t, env)
	historyLen := len(s.ChangeHistory)

	s, err := env.Engine.ManualImpactUpdate(env.Ctx, engine.ManualImpactOptions{
		ID: s.ID, UserID: "user-1", ActorID: "user-1",
		Economic: f(90),
	})
	if err != nil {
		t.Fatalf("manual update: %v", err)
	}
	if *s.EconomicImpact != 90 {
		t.Fatalf("economic not applied: %v", *s.EconomicImpact)
	}
	// 0.4*90 + 0.3*44 + 0.3*32 = 58.8
	if s.CalculatedTotalImpact != 58.8 {
		t.Fatalf("recomputed total: %v", s.CalculatedTotalImpact)
	}
	if s.ImpactTrend != engine.TrendManualUpdate {
		t.Fatalf("trend: %s", s.ImpactTrend)
	}
	if s.VersionNumber != "1.0.1" || s.ModificationCount != 1 {
		t.Fatalf("manual bump: %s mod=%d", s.VersionNumber, s.ModificationCount)
	}
	// one manual_update record for the field, one recalculated for the total
	if len(s.ChangeHistory) != historyLen+2 {
		t.Fatalf("ledger growth: %d -> %d", historyLen, len(s.ChangeHistory))
	}
	manual := s.ChangeHistory[historyLen]
	if manual.Action != engine.ActionManualUpdate || manual.Field != "economic_impact" {
		t.Fatalf("manual record: %+v", manual)
	}
	recalc := s.ChangeHistory[historyLen+1]
	if recalc.Action != engine.ActionRecalculated || recalc.Field != "calculated_total_impact" {
		t.Fatalf("recalc record: %+v", recalc)
	}

	// setting the same value again changes nothing
	before := s
	s, err = env.Engine.ManualImpactUpdate(env.Ctx, engine.ManualImpactOptions{
		ID: s.ID, UserID: "user-1", ActorID: "user-1",
		Economic: f(90),
	})
	if err != nil {
		t.Fatalf("no-op manual update: %v", err)
	}
	if s.ModificationCount != before.ModificationCount || len(s.ChangeHistory) != len(before.ChangeHistory) {
		t.Fatalf("no-op manual update mutated state")
	}
}

func TestDeleteScenario(t *testing.T) {
	env := newTestEnv(t)
	s := createScenario(t, env)
	if err := env.Engine.DeleteScenario(env.Ctx, s.ID, "user-2", "user-2"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("cross-owner delete: got %v", err)
	}
	if err := env.Engine.DeleteScenario(env.Ctx, s.ID, "user-1", "user-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetScenario(env.Ctx, s.ID, "user-1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("scenario should be gone, got %v", err)
	}
}

func TestScenarioAnalytics(t *testing.T) {
	env := newTestEnv(t)
	s := createScenario(t, env)
	s, err := env.Engine.AmendScenario(env.Ctx, engine.ScenarioAmendOptions{
		ID: s.ID, UserID: "user-1", ActorID: "user-1",
		Stakeholders: strPtr("Port authority, logistics providers"),
	})
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	a, err := env.Engine.ScenarioAnalytics(env.Ctx, s.ID, "user-1")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if a.SequenceInfo.Letter != "A" || a.VersionInfo.VersionNumber != "1.1.0" {
		t.Fatalf("analytics rollup: %+v", a)
	}
	if a.ChangeSummary.TotalChanges != len(s.ChangeHistory) {
		t.Fatalf("change summary count: %d vs %d", a.ChangeSummary.TotalChanges, len(s.ChangeHistory))
	}
	if a.ChangeSummary.ActionCounts[engine.ActionCreated] != 1 || a.ChangeSummary.ActionCounts[engine.ActionUpdated] != 1 {
		t.Fatalf("action counts: %+v", a.ChangeSummary.ActionCounts)
	}
}

func TestOwnerAnalytics(t *testing.T) {
	env := newTestEnv(t)
	s := createScenario(t, env)
	if _, err := env.Engine.CreateScenario(env.Ctx, engine.ScenarioCreateOptions{
		Title: "Grid failure", CrisisType: "technological_crisis", Severity: 2,
		UserID: "user-1", ActorID: "user-1",
	}); err != nil {
		t.Fatalf("second scenario: %v", err)
	}
	if _, err := env.Engine.AmendScenario(env.Ctx, engine.ScenarioAmendOptions{
		ID: s.ID, UserID: "user-1", ActorID: "user-1",
		Timeline: strPtr("48 hours"),
	}); err != nil {
		t.Fatalf("amend: %v", err)
	}
	a, err := env.Engine.OwnerAnalytics(env.Ctx, "user-1")
	if err != nil {
		t.Fatalf("owner analytics: %v", err)
	}
	if a.TotalScenarios != 2 {
		t.Fatalf("total: %d", a.TotalScenarios)
	}
	if a.TotalModifications != 1 || a.MostModifiedID != s.ID || a.MostModifiedCount != 1 {
		t.Fatalf("modification stats: %+v", a)
	}
	count := 0
	for _, n := range a.ClassDistribution {
		count += n
	}
	if count != 2 {
		t.Fatalf("class distribution: %+v", a.ClassDistribution)
	}
}

func TestAdjustmentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	company, err := env.Engine.CreateCompany(env.Ctx, "Harbor Logistics", "logistics", "", "user-1")
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	adj, err := env.Engine.CreateAdjustment(env.Ctx, engine.AdjustmentOptions{
		CompanyID:      company.ID,
		AdjustmentName: "Baseline outlook",
		Settings:       balancedSepte(),
		ActorID:        "user-1",
	})
	if err != nil {
		t.Fatalf("create adjustment: %v", err)
	}
	if adj.RiskLevel != "medium" {
		t.Fatalf("risk level: %s", adj.RiskLevel)
	}
	if adj.RealTimeAnalysis == "" || adj.ImpactSummary == "" || len(adj.Recommendations) == 0 {
		t.Fatalf("narrative missing: %+v", adj)
	}

	// invalid pair is rejected with the pair named
	bad := balancedSepte()
	bad.TechnologicalDisruptionPct = 70
	_, err = env.Engine.CreateAdjustment(env.Ctx, engine.AdjustmentOptions{
		CompanyID: company.ID, AdjustmentName: "broken", Settings: bad, ActorID: "user-1",
	})
	var se engine.SepteError
	if !errors.As(err, &se) || se.Pair != "technological" {
		t.Fatalf("expected technological pair error, got %v", err)
	}

	hot := balancedSepte()
	hot.EconomicCrisisPct = 80
	hot.EconomicStabilityPct = 20
	updated, err := env.Engine.UpdateAdjustment(env.Ctx, engine.AdjustmentOptions{
		ID: adj.ID, CompanyID: company.ID,
		AdjustmentName: "Stressed outlook",
		Settings:       hot,
		ActorID:        "user-1",
	})
	if err != nil {
		t.Fatalf("update adjustment: %v", err)
	}
	if updated.ID != adj.ID || updated.AdjustmentName != "Stressed outlook" {
		t.Fatalf("identity or name: %+v", updated)
	}
	if updated.RealTimeAnalysis == adj.RealTimeAnalysis {
		t.Fatalf("narrative should be regenerated")
	}
}

func TestConsensusWorkflow(t *testing.T) {
	env := newTestEnv(t)
	company, err := env.Engine.CreateCompany(env.Ctx, "Harbor Logistics", "", "", "user-1")
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	team, err := env.Engine.CreateTeam(env.Ctx, company.ID, "Planning", "user-1", []string{"user-2", "user-3"}, "user-1")
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	adj, err := env.Engine.CreateAdjustment(env.Ctx, engine.AdjustmentOptions{
		CompanyID: company.ID, AdjustmentName: "Baseline", Settings: balancedSepte(), ActorID: "user-1",
	})
	if err != nil {
		t.Fatalf("create adjustment: %v", err)
	}

	c, err := env.Engine.CreateConsensus(env.Ctx, engine.ConsensusCreateOptions{
		CompanyID: company.ID, AdjustmentID: adj.ID, TeamID: &team.ID,
		ConsensusName: "Q1 signoff", ActorID: "user-1",
	})
	if err != nil {
		t.Fatalf("create consensus: %v", err)
	}
	if c.TotalTeamMembers != 3 {
		t.Fatalf("roster: %d", c.TotalTeamMembers)
	}
	if c.ConsensusReached || c.ConsensusPercentage != 33.33 {
		t.Fatalf("creator-only state: %+v", c)
	}
	if c.FinalSettings != adj.Settings {
		t.Fatalf("settings snapshot mismatch")
	}

	c, err = env.Engine.AgreeConsensus(env.Ctx, c.ID, company.ID, "user-2")
	if err != nil {
		t.Fatalf("agree user-2: %v", err)
	}
	if c.ConsensusReached || c.ConsensusPercentage != 66.67 {
		t.Fatalf("2 of 3 state: %+v", c)
	}
	// repeat agreement is idempotent
	c, err = env.Engine.AgreeConsensus(env.Ctx, c.ID, company.ID, "user-2")
	if err != nil || c.ConsensusPercentage != 66.67 {
		t.Fatalf("idempotent agree: %+v %v", c, err)
	}
	c, err = env.Engine.AgreeConsensus(env.Ctx, c.ID, company.ID, "user-3")
	if err != nil {
		t.Fatalf("agree user-3: %v", err)
	}
	if !c.ConsensusReached || c.ConsensusPercentage != 100 {
		t.Fatalf("3 of 3 state: %+v", c)
	}
	if c.FinalizedAt == nil {
		t.Fatalf("finalized_at not set")
	}
	finalized := *c.FinalizedAt
	// a late agreement changes nothing once latched
	c, err = env.Engine.AgreeConsensus(env.Ctx, c.ID, company.ID, "user-3")
	if err != nil || c.FinalizedAt == nil || *c.FinalizedAt != finalized {
		t.Fatalf("latched state disturbed: %+v %v", c, err)
	}
}

func TestConsensusSoloWorkflow(t *testing.T) {
	env := newTestEnv(t)
	company, err := env.Engine.CreateCompany(env.Ctx, "Solo Co", "", "", "user-1")
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	adj, err := env.Engine.CreateAdjustment(env.Ctx, engine.AdjustmentOptions{
		CompanyID: company.ID, AdjustmentName: "Solo", Settings: balancedSepte(), ActorID: "user-1",
	})
	if err != nil {
		t.Fatalf("create adjustment: %v", err)
	}
	c, err := env.Engine.CreateConsensus(env.Ctx, engine.ConsensusCreateOptions{
		CompanyID: company.ID, AdjustmentID: adj.ID,
		ConsensusName: "Solo signoff", ActorID: "user-1",
	})
	if err != nil {
		t.Fatalf("create consensus: %v", err)
	}
	if !c.ConsensusReached || c.TotalTeamMembers != 1 || c.FinalizedAt == nil {
		t.Fatalf("solo consensus: %+v", c)
	}
}
