package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"crisisline/internal/config"
	"crisisline/internal/domain"
	"crisisline/internal/events"
	"crisisline/internal/narrative"
	"crisisline/internal/repo"
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Narrative narrative.Generator
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Config:    cfg,
		Narrative: narrative.TemplateGenerator{},
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) impactWeights() ImpactWeights {
	if e.Config == nil {
		return DefaultImpactWeights
	}
	iw := e.Config.Engine.ImpactWeights
	if iw.Economic <= 0 && iw.Social <= 0 && iw.Environmental <= 0 {
		return DefaultImpactWeights
	}
	return ImpactWeights{Economic: iw.Economic, Social: iw.Social, Environmental: iw.Environmental}
}

func (e Engine) categoryWeights() map[string]float64 {
	if e.Config == nil || len(e.Config.Engine.CategoryWeights) == 0 {
		return nil
	}
	return e.Config.Engine.CategoryWeights
}

func (e Engine) consensusThreshold() float64 {
	if e.Config == nil || e.Config.Engine.ConsensusThreshold <= 0 {
		return defaultConsensusThreshold
	}
	return e.Config.Engine.ConsensusThreshold
}

// ScenarioCreateOptions are parameters for creating a scenario.
type ScenarioCreateOptions struct {
	Title             string
	Description       string
	CrisisType        string
	Severity          int
	AffectedRegions   []string
	KeyVariables      []string
	AdditionalContext string
	Stakeholders      string
	Timeline          string
	UserID            string
	ActorID           string
}

// CreateScenario allocates the sequence identity, seeds the impact scores,
// classifies and records the first ledger entry, all in one transaction.
func (e Engine) CreateScenario(ctx context.Context, opts ScenarioCreateOptions) (domain.Scenario, error) {
	if opts.Title == "" {
		return domain.Scenario{}, errors.New("title is required")
	}
	if opts.CrisisType == "" {
		return domain.Scenario{}, errors.New("crisis-type is required")
	}
	if opts.Severity < 1 || opts.Severity > 10 {
		return domain.Scenario{}, errors.New("severity must be between 1 and 10")
	}
	if opts.UserID == "" {
		return domain.Scenario{}, errors.New("user is required")
	}
	if _, err := e.Repo.GetUser(ctx, opts.UserID); err != nil {
		return domain.Scenario{}, err
	}

	// The count and the insert below are not atomic; see CountScenariosByOwner.
	count, err := e.Repo.CountScenariosByOwner(ctx, opts.UserID)
	if err != nil {
		return domain.Scenario{}, err
	}
	seqNumber, seqLetter := AllocateSequence(count)

	now := e.now().UTC()
	nowStr := now.Format(time.RFC3339)
	economic, social, environmental := InitialImpacts(opts.Severity, len(opts.AffectedRegions))
	total := AggregateImpact(&economic, &social, &environmental, e.impactWeights())
	cls := Classify(opts.Severity, total, opts.CrisisType, e.categoryWeights())

	s := domain.Scenario{
		ID:                uuid.New().String(),
		UserID:            opts.UserID,
		Title:             opts.Title,
		Description:       opts.Description,
		CrisisType:        opts.CrisisType,
		Severity:          opts.Severity,
		AffectedRegions:   opts.AffectedRegions,
		KeyVariables:      opts.KeyVariables,
		AdditionalContext: opts.AdditionalContext,
		Stakeholders:      opts.Stakeholders,
		Timeline:          opts.Timeline,
		SequenceNumber:    seqNumber,
		SequenceLetter:    seqLetter,
		ChangeHistory: []domain.ChangeRecord{
			NewChangeRecord(ActionCreated, "scenario", nil, canonicalValue(opts.Title), opts.ActorID, now),
		},
		LastModifiedBy:        opts.ActorID,
		ModificationCount:     0,
		VersionNumber:         FormatVersion(1, 0, 0),
		MajorVersion:          1,
		MinorVersion:          0,
		PatchVersion:          0,
		RevisionCount:         0,
		ABCClassification:     cls.Class,
		PriorityScore:         cls.PriorityScore,
		ImpactCategory:        cls.ImpactCategory,
		ImpactScore:           total,
		CalculatedTotalImpact: total,
		EconomicImpact:        &economic,
		SocialImpact:          &social,
		EnvironmentalImpact:   &environmental,
		ImpactTrend:           TrendStable,
		CreatedAt:             nowStr,
		UpdatedAt:             nowStr,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Scenario{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertScenario(ctx, tx, s); err != nil {
		return domain.Scenario{}, fmt.Errorf("insert scenario: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "scenario.created", s.UserID, "scenario", s.ID, opts.ActorID, events.EventPayload{
		"title":           s.Title,
		"sequence_letter": s.SequenceLetter,
		"classification":  s.ABCClassification,
	}); err != nil {
		return domain.Scenario{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Scenario{}, err
	}
	return s, nil
}

// ScenarioAmendOptions carries the amendable fields. Nil means "leave as is".
type ScenarioAmendOptions struct {
	ID                string
	UserID            string
	ActorID           string
	AffectedRegions   *[]string
	KeyVariables      *[]string
	AdditionalContext *string
	Stakeholders      *string
	Timeline          *string
}

// AmendScenario diffs the supplied fields against the stored scenario. When
// nothing actually changed the stored record is returned untouched; otherwise
// every changed field gets a ledger entry, the version is bumped and the
// scenario is reclassified.
func (e Engine) AmendScenario(ctx context.Context, opts ScenarioAmendOptions) (domain.Scenario, error) {
	s, err := e.Repo.GetScenario(ctx, opts.ID, opts.UserID)
	if err != nil {
		return s, err
	}
	now := e.now().UTC()

	var changedFields []string
	var records []domain.ChangeRecord
	record := func(field string, oldValue, newValue any) {
		changedFields = append(changedFields, field)
		records = append(records, NewChangeRecord(ActionUpdated, field, canonicalValue(oldValue), canonicalValue(newValue), opts.ActorID, now))
	}

	if opts.AffectedRegions != nil && valueChanged(s.AffectedRegions, *opts.AffectedRegions) {
		record("affected_regions", s.AffectedRegions, *opts.AffectedRegions)
		s.AffectedRegions = *opts.AffectedRegions
	}
	if opts.KeyVariables != nil && valueChanged(s.KeyVariables, *opts.KeyVariables) {
		record("key_variables", s.KeyVariables, *opts.KeyVariables)
		s.KeyVariables = *opts.KeyVariables
	}
	if opts.AdditionalContext != nil && *opts.AdditionalContext != s.AdditionalContext {
		record("additional_context", s.AdditionalContext, *opts.AdditionalContext)
		s.AdditionalContext = *opts.AdditionalContext
	}
	if opts.Stakeholders != nil && *opts.Stakeholders != s.Stakeholders {
		record("stakeholders", s.Stakeholders, *opts.Stakeholders)
		s.Stakeholders = *opts.Stakeholders
	}
	if opts.Timeline != nil && *opts.Timeline != s.Timeline {
		record("timeline", s.Timeline, *opts.Timeline)
		s.Timeline = *opts.Timeline
	}
	if len(changedFields) == 0 {
		return s, nil
	}

	s.ChangeHistory = append(s.ChangeHistory, records...)
	s.ModificationCount++
	s.LastModifiedBy = opts.ActorID

	class := ChangeClassFor(changedFields)
	s.VersionNumber, s.MajorVersion, s.MinorVersion, s.PatchVersion = BumpVersion(s.VersionNumber, class)
	s.RevisionCount++

	oldTotal := s.CalculatedTotalImpact
	newTotal := AggregateImpact(s.EconomicImpact, s.SocialImpact, s.EnvironmentalImpact, e.impactWeights())
	if newTotal != oldTotal {
		s.ChangeHistory = append(s.ChangeHistory,
			NewChangeRecord(ActionRecalculated, "calculated_total_impact", canonicalValue(oldTotal), canonicalValue(newTotal), opts.ActorID, now))
		s.ImpactTrend = DeriveTrend(oldTotal, newTotal)
	}
	s.CalculatedTotalImpact = newTotal
	s.ImpactScore = newTotal

	cls := Classify(s.Severity, s.CalculatedTotalImpact, s.CrisisType, e.categoryWeights())
	s.ABCClassification = cls.Class
	s.PriorityScore = cls.PriorityScore
	s.ImpactCategory = cls.ImpactCategory
	s.UpdatedAt = now.Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateScenario(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, "scenario.amended", s.UserID, "scenario", s.ID, opts.ActorID, events.EventPayload{
		"fields":  changedFields,
		"version": s.VersionNumber,
	}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

// ManualImpactOptions carries direct sub-score overrides. Nil means untouched.
type ManualImpactOptions struct {
	ID            string
	UserID        string
	ActorID       string
	Economic      *float64
	Social        *float64
	Environmental *float64
}

// ManualImpactUpdate replaces the supplied sub-scores, re-aggregates and
// forces the trend to manual_update. A call that changes nothing is a no-op.
func (e Engine) ManualImpactUpdate(ctx context.Context, opts ManualImpactOptions) (domain.Scenario, error) {
	s, err := e.Repo.GetScenario(ctx, opts.ID, opts.UserID)
	if err != nil {
		return s, err
	}
	now := e.now().UTC()

	changed := false
	apply := func(field string, current **float64, next *float64) {
		if next == nil || !valueChanged(*current, next) {
			return
		}
		s.ChangeHistory = append(s.ChangeHistory,
			NewChangeRecord(ActionManualUpdate, field, canonicalValue(*current), canonicalValue(next), opts.ActorID, now))
		v := *next
		*current = &v
		changed = true
	}
	apply("economic_impact", &s.EconomicImpact, opts.Economic)
	apply("social_impact", &s.SocialImpact, opts.Social)
	apply("environmental_impact", &s.EnvironmentalImpact, opts.Environmental)
	if !changed {
		return s, nil
	}

	oldTotal := s.CalculatedTotalImpact
	newTotal := AggregateImpact(s.EconomicImpact, s.SocialImpact, s.EnvironmentalImpact, e.impactWeights())
	if newTotal != oldTotal {
		s.ChangeHistory = append(s.ChangeHistory,
			NewChangeRecord(ActionRecalculated, "calculated_total_impact", canonicalValue(oldTotal), canonicalValue(newTotal), opts.ActorID, now))
	}
	s.CalculatedTotalImpact = newTotal
	s.ImpactScore = newTotal
	s.ImpactTrend = TrendManualUpdate

	s.ModificationCount++
	s.LastModifiedBy = opts.ActorID
	s.VersionNumber, s.MajorVersion, s.MinorVersion, s.PatchVersion = BumpVersion(s.VersionNumber, ChangePatch)
	s.RevisionCount++

	cls := Classify(s.Severity, s.CalculatedTotalImpact, s.CrisisType, e.categoryWeights())
	s.ABCClassification = cls.Class
	s.PriorityScore = cls.PriorityScore
	s.ImpactCategory = cls.ImpactCategory
	s.UpdatedAt = now.Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateScenario(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, "scenario.impacts.updated", s.UserID, "scenario", s.ID, opts.ActorID, events.EventPayload{
		"calculated_total_impact": s.CalculatedTotalImpact,
		"trend":                   s.ImpactTrend,
	}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

func (e Engine) DeleteScenario(ctx context.Context, id, userID, actorID string) error {
	s, err := e.Repo.GetScenario(ctx, id, userID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteScenario(ctx, tx, id, userID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "scenario.deleted", s.UserID, "scenario", s.ID, actorID, events.EventPayload{"title": s.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

// ScenarioAnalytics is the per-scenario rollup.
type ScenarioAnalytics struct {
	ScenarioID   string `json:"scenario_id"`
	Title        string `json:"title"`
	SequenceInfo struct {
		Number int    `json:"number"`
		Letter string `json:"letter"`
	} `json:"sequence_info"`
	Classification struct {
		Class          string `json:"abc_classification"`
		ImpactCategory string `json:"impact_category"`
		PriorityScore  int    `json:"priority_score"`
	} `json:"classification"`
	VersionInfo struct {
		VersionNumber string `json:"version_number"`
		MajorVersion  int    `json:"major_version"`
		MinorVersion  int    `json:"minor_version"`
		PatchVersion  int    `json:"patch_version"`
		RevisionCount int    `json:"revision_count"`
	} `json:"version_info"`
	ImpactAnalysis struct {
		ImpactScore           float64  `json:"impact_score"`
		CalculatedTotalImpact float64  `json:"calculated_total_impact"`
		EconomicImpact        *float64 `json:"economic_impact,omitempty"`
		SocialImpact          *float64 `json:"social_impact,omitempty"`
		EnvironmentalImpact   *float64 `json:"environmental_impact,omitempty"`
		ImpactTrend           string   `json:"impact_trend"`
	} `json:"impact_analysis"`
	ChangeSummary struct {
		TotalChanges   int            `json:"total_changes"`
		ActionCounts   map[string]int `json:"action_counts"`
		LastModifiedBy string         `json:"last_modified_by,omitempty"`
		LastModifiedAt string         `json:"last_modified_at,omitempty"`
	} `json:"change_summary"`
}

func (e Engine) ScenarioAnalytics(ctx context.Context, id, userID string) (ScenarioAnalytics, error) {
	s, err := e.Repo.GetScenario(ctx, id, userID)
	if err != nil {
		return ScenarioAnalytics{}, err
	}
	var a ScenarioAnalytics
	a.ScenarioID = s.ID
	a.Title = s.Title
	a.SequenceInfo.Number = s.SequenceNumber
	a.SequenceInfo.Letter = s.SequenceLetter
	a.Classification.Class = s.ABCClassification
	a.Classification.ImpactCategory = s.ImpactCategory
	a.Classification.PriorityScore = s.PriorityScore
	a.VersionInfo.VersionNumber = s.VersionNumber
	a.VersionInfo.MajorVersion = s.MajorVersion
	a.VersionInfo.MinorVersion = s.MinorVersion
	a.VersionInfo.PatchVersion = s.PatchVersion
	a.VersionInfo.RevisionCount = s.RevisionCount
	a.ImpactAnalysis.ImpactScore = s.ImpactScore
	a.ImpactAnalysis.CalculatedTotalImpact = s.CalculatedTotalImpact
	a.ImpactAnalysis.EconomicImpact = s.EconomicImpact
	a.ImpactAnalysis.SocialImpact = s.SocialImpact
	a.ImpactAnalysis.EnvironmentalImpact = s.EnvironmentalImpact
	a.ImpactAnalysis.ImpactTrend = s.ImpactTrend
	a.ChangeSummary.TotalChanges = len(s.ChangeHistory)
	a.ChangeSummary.ActionCounts = map[string]int{}
	for _, rec := range s.ChangeHistory {
		a.ChangeSummary.ActionCounts[rec.Action]++
	}
	a.ChangeSummary.LastModifiedBy = s.LastModifiedBy
	if n := len(s.ChangeHistory); n > 0 {
		a.ChangeSummary.LastModifiedAt = s.ChangeHistory[n-1].Timestamp
	}
	return a, nil
}

// OwnerAnalytics aggregates over all of one owner's scenarios.
type OwnerAnalytics struct {
	TotalScenarios       int            `json:"total_scenarios"`
	ClassDistribution    map[string]int `json:"class_distribution"`
	AverageImpact        float64        `json:"average_impact"`
	TotalModifications   int            `json:"total_modifications"`
	AverageModifications float64        `json:"average_modifications"`
	MostModifiedID       string         `json:"most_modified_id,omitempty"`
	MostModifiedTitle    string         `json:"most_modified_title,omitempty"`
	MostModifiedCount    int            `json:"most_modified_count,omitempty"`
}

func (e Engine) OwnerAnalytics(ctx context.Context, userID string) (OwnerAnalytics, error) {
	scenarios, err := e.Repo.ListScenarios(ctx, userID)
	if err != nil {
		return OwnerAnalytics{}, err
	}
	a := OwnerAnalytics{ClassDistribution: map[string]int{"A": 0, "B": 0, "C": 0}}
	a.TotalScenarios = len(scenarios)
	if len(scenarios) == 0 {
		return a, nil
	}
	var impactSum float64
	for _, s := range scenarios {
		a.ClassDistribution[s.ABCClassification]++
		impactSum += s.CalculatedTotalImpact
		a.TotalModifications += s.ModificationCount
		if s.ModificationCount > a.MostModifiedCount || a.MostModifiedID == "" {
			a.MostModifiedID = s.ID
			a.MostModifiedTitle = s.Title
			a.MostModifiedCount = s.ModificationCount
		}
	}
	n := float64(len(scenarios))
	a.AverageImpact = round2(impactSum / n)
	a.AverageModifications = round2(float64(a.TotalModifications) / n)
	return a, nil
}

func (e Engine) CreateCompany(ctx context.Context, name, industry, description, actorID string) (domain.Company, error) {
	if name == "" {
		return domain.Company{}, errors.New("name is required")
	}
	c := domain.Company{
		ID:          uuid.New().String(),
		Name:        name,
		Industry:    industry,
		Description: description,
		CreatedBy:   actorID,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Company{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCompany(ctx, tx, c); err != nil {
		return domain.Company{}, fmt.Errorf("insert company: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "company.created", c.ID, "company", c.ID, actorID, events.EventPayload{"name": c.Name}); err != nil {
		return domain.Company{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Company{}, err
	}
	return c, nil
}

func (e Engine) UpdateCompany(ctx context.Context, id, name, industry, description, actorID string) (domain.Company, error) {
	c, err := e.Repo.GetCompany(ctx, id)
	if err != nil {
		return domain.Company{}, err
	}
	if name != "" {
		c.Name = name
	}
	c.Industry = industry
	c.Description = description
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Company{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateCompany(ctx, tx, c); err != nil {
		return domain.Company{}, fmt.Errorf("update company: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "company.updated", c.ID, "company", c.ID, actorID, events.EventPayload{"name": c.Name}); err != nil {
		return domain.Company{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Company{}, err
	}
	return c, nil
}

func (e Engine) DeleteCompany(ctx context.Context, id, actorID string) error {
	c, err := e.Repo.GetCompany(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteCompany(ctx, tx, c.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "company.deleted", c.ID, "company", c.ID, actorID, events.EventPayload{"name": c.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) CreateTeam(ctx context.Context, companyID, name, leadID string, memberIDs []string, actorID string) (domain.Team, error) {
	if name == "" {
		return domain.Team{}, errors.New("name is required")
	}
	if _, err := e.Repo.GetCompany(ctx, companyID); err != nil {
		return domain.Team{}, err
	}
	t := domain.Team{
		ID:        uuid.New().String(),
		CompanyID: companyID,
		Name:      name,
		LeadID:    leadID,
		MemberIDs: memberIDs,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Team{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTeam(ctx, tx, t); err != nil {
		return domain.Team{}, fmt.Errorf("insert team: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "team.created", companyID, "team", t.ID, actorID, events.EventPayload{"name": t.Name, "members": len(t.MemberIDs)}); err != nil {
		return domain.Team{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Team{}, err
	}
	return t, nil
}

// AdjustmentOptions are parameters for creating or updating an adjustment.
type AdjustmentOptions struct {
	ID             string
	CompanyID      string
	ScenarioID     *string
	AdjustmentName string
	Settings       domain.SepteSettings
	ActorID        string
}

// CreateAdjustment validates the SEPTE pairs, derives the risk level and asks
// the narrative generator for the analysis text before inserting.
func (e Engine) CreateAdjustment(ctx context.Context, opts AdjustmentOptions) (domain.ScenarioAdjustment, error) {
	if opts.AdjustmentName == "" {
		return domain.ScenarioAdjustment{}, errors.New("adjustment-name is required")
	}
	if _, err := e.Repo.GetCompany(ctx, opts.CompanyID); err != nil {
		return domain.ScenarioAdjustment{}, err
	}
	if err := ValidateSepte(opts.Settings); err != nil {
		return domain.ScenarioAdjustment{}, err
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	a := domain.ScenarioAdjustment{
		ID:             uuid.New().String(),
		CompanyID:      opts.CompanyID,
		ScenarioID:     opts.ScenarioID,
		AdjustmentName: opts.AdjustmentName,
		CreatedBy:      opts.ActorID,
		Settings:       opts.Settings,
		RiskLevel:      SepteRiskLevel(opts.Settings),
		CreatedAt:      nowStr,
		UpdatedAt:      nowStr,
	}
	if err := e.applyNarrative(ctx, &a); err != nil {
		return domain.ScenarioAdjustment{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ScenarioAdjustment{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAdjustment(ctx, tx, a); err != nil {
		return domain.ScenarioAdjustment{}, fmt.Errorf("insert adjustment: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "adjustment.created", a.CompanyID, "adjustment", a.ID, opts.ActorID, events.EventPayload{
		"name":       a.AdjustmentName,
		"risk_level": a.RiskLevel,
	}); err != nil {
		return domain.ScenarioAdjustment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ScenarioAdjustment{}, err
	}
	return a, nil
}

// UpdateAdjustment replaces the mutable fields and regenerates the narrative.
// Identity and company scope are immutable.
func (e Engine) UpdateAdjustment(ctx context.Context, opts AdjustmentOptions) (domain.ScenarioAdjustment, error) {
	a, err := e.Repo.GetAdjustment(ctx, opts.ID, opts.CompanyID)
	if err != nil {
		return a, err
	}
	if err := ValidateSepte(opts.Settings); err != nil {
		return a, err
	}
	if opts.AdjustmentName != "" {
		a.AdjustmentName = opts.AdjustmentName
	}
	if opts.ScenarioID != nil {
		a.ScenarioID = opts.ScenarioID
	}
	a.Settings = opts.Settings
	a.RiskLevel = SepteRiskLevel(opts.Settings)
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.applyNarrative(ctx, &a); err != nil {
		return a, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAdjustment(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "adjustment.updated", a.CompanyID, "adjustment", a.ID, opts.ActorID, events.EventPayload{
		"name":       a.AdjustmentName,
		"risk_level": a.RiskLevel,
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

func (e Engine) applyNarrative(ctx context.Context, a *domain.ScenarioAdjustment) error {
	gen := e.Narrative
	if gen == nil {
		gen = narrative.TemplateGenerator{}
	}
	n, err := gen.Analyze(ctx, *a)
	if err != nil {
		return fmt.Errorf("narrative: %w", err)
	}
	a.RealTimeAnalysis = n.RealTimeAnalysis
	a.ImpactSummary = n.ImpactSummary
	a.Recommendations = n.Recommendations
	return nil
}

// ConsensusCreateOptions are parameters for opening a consensus round.
type ConsensusCreateOptions struct {
	CompanyID     string
	AdjustmentID  string
	TeamID        *string
	ConsensusName string
	ActorID       string
}

// CreateConsensus snapshots the adjustment's settings, fixes the roster and
// records the creator's agreement. A solo roster reaches consensus instantly.
func (e Engine) CreateConsensus(ctx context.Context, opts ConsensusCreateOptions) (domain.ConsensusSettings, error) {
	if opts.ConsensusName == "" {
		return domain.ConsensusSettings{}, errors.New("consensus-name is required")
	}
	adj, err := e.Repo.GetAdjustment(ctx, opts.AdjustmentID, opts.CompanyID)
	if err != nil {
		return domain.ConsensusSettings{}, err
	}
	total := 1
	if opts.TeamID != nil && *opts.TeamID != "" {
		team, err := e.Repo.GetTeam(ctx, *opts.TeamID)
		if err != nil {
			return domain.ConsensusSettings{}, err
		}
		if team.CompanyID != opts.CompanyID {
			return domain.ConsensusSettings{}, fmt.Errorf("team %s not in company %s", *opts.TeamID, opts.CompanyID)
		}
		total = RosterSize(&team)
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	c := NewConsensus(opts.ActorID, total, adj.Settings, e.consensusThreshold())
	c.ID = uuid.New().String()
	c.CompanyID = opts.CompanyID
	c.AdjustmentID = adj.ID
	c.TeamID = opts.TeamID
	c.ConsensusName = opts.ConsensusName
	c.CreatedBy = opts.ActorID
	c.CreatedAt = nowStr
	if c.ConsensusReached {
		c.FinalizedAt = &nowStr
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ConsensusSettings{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertConsensus(ctx, tx, c); err != nil {
		return domain.ConsensusSettings{}, fmt.Errorf("insert consensus: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "consensus.created", c.CompanyID, "consensus", c.ID, opts.ActorID, events.EventPayload{
		"name":    c.ConsensusName,
		"total":   c.TotalTeamMembers,
		"reached": c.ConsensusReached,
	}); err != nil {
		return domain.ConsensusSettings{}, err
	}
	if c.ConsensusReached {
		if err := e.Events.Append(ctx, tx, "consensus.reached", c.CompanyID, "consensus", c.ID, opts.ActorID, events.EventPayload{
			"percentage": c.ConsensusPercentage,
		}); err != nil {
			return domain.ConsensusSettings{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.ConsensusSettings{}, err
	}
	return c, nil
}

// AgreeConsensus records one user's agreement. Repeat calls by the same user
// return the current state without writing anything.
func (e Engine) AgreeConsensus(ctx context.Context, id, companyID, userID string) (domain.ConsensusSettings, error) {
	c, err := e.Repo.GetConsensus(ctx, id, companyID)
	if err != nil {
		return c, err
	}
	wasReached := c.ConsensusReached
	if !RecordAgreement(&c, userID, e.consensusThreshold()) {
		return c, nil
	}
	if c.ConsensusReached && c.FinalizedAt == nil {
		nowStr := e.now().UTC().Format(time.RFC3339)
		c.FinalizedAt = &nowStr
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateConsensus(ctx, tx, c); err != nil {
		return c, err
	}
	if err := e.Events.Append(ctx, tx, "consensus.agreed", c.CompanyID, "consensus", c.ID, userID, events.EventPayload{
		"percentage": c.ConsensusPercentage,
	}); err != nil {
		return c, err
	}
	if c.ConsensusReached && !wasReached {
		if err := e.Events.Append(ctx, tx, "consensus.reached", c.CompanyID, "consensus", c.ID, userID, events.EventPayload{
			"percentage": c.ConsensusPercentage,
		}); err != nil {
			return c, err
		}
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
