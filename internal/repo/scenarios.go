package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"crisisline/internal/domain"
)

const scenarioColumns = `id,user_id,title,COALESCE(description,''),crisis_type,severity_level,
COALESCE(affected_regions_json,'[]'),COALESCE(key_variables_json,'[]'),
COALESCE(additional_context,''),COALESCE(stakeholders,''),COALESCE(timeline,''),
sequence_number,sequence_letter,COALESCE(change_history_json,'[]'),
COALESCE(last_modified_by,''),modification_count,
version_number,major_version,minor_version,patch_version,revision_count,
abc_classification,priority_score,impact_category,
impact_score,calculated_total_impact,economic_impact,social_impact,environmental_impact,impact_trend,
created_at,updated_at`

// CountScenariosByOwner feeds the sequence allocator. The count and the
// subsequent insert are not transactional; concurrent creations for the same
// owner can race. Callers needing strict uniqueness must serialize per owner.
func (r Repo) CountScenariosByOwner(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM scenarios WHERE user_id=?`, userID).Scan(&n)
	return n, err
}

func (r Repo) InsertScenario(ctx context.Context, tx *sql.Tx, s domain.Scenario) error {
	regions, err := marshalJSON(s.AffectedRegions)
	if err != nil {
		return err
	}
	variables, err := marshalJSON(s.KeyVariables)
	if err != nil {
		return err
	}
	history, err := marshalJSON(s.ChangeHistory)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO scenarios(
id,user_id,title,description,crisis_type,severity_level,
affected_regions_json,key_variables_json,additional_context,stakeholders,timeline,
sequence_number,sequence_letter,change_history_json,last_modified_by,modification_count,
version_number,major_version,minor_version,patch_version,revision_count,
abc_classification,priority_score,impact_category,
impact_score,calculated_total_impact,economic_impact,social_impact,environmental_impact,impact_trend,
created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.UserID, s.Title, nullable(s.Description), s.CrisisType, s.Severity,
		regions, variables, nullable(s.AdditionalContext), nullable(s.Stakeholders), nullable(s.Timeline),
		s.SequenceNumber, s.SequenceLetter, history, nullable(s.LastModifiedBy), s.ModificationCount,
		s.VersionNumber, s.MajorVersion, s.MinorVersion, s.PatchVersion, s.RevisionCount,
		s.ABCClassification, s.PriorityScore, s.ImpactCategory,
		s.ImpactScore, s.CalculatedTotalImpact,
		nullableFloatPtr(s.EconomicImpact), nullableFloatPtr(s.SocialImpact), nullableFloatPtr(s.EnvironmentalImpact), s.ImpactTrend,
		s.CreatedAt, s.UpdatedAt)
	return err
}

// UpdateScenario writes back every engine-computed field. The sequence
// identity is deliberately not in the UPDATE list; it is assigned once.
func (r Repo) UpdateScenario(ctx context.Context, tx *sql.Tx, s domain.Scenario) error {
	regions, err := marshalJSON(s.AffectedRegions)
	if err != nil {
		return err
	}
	variables, err := marshalJSON(s.KeyVariables)
	if err != nil {
		return err
	}
	history, err := marshalJSON(s.ChangeHistory)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE scenarios SET
title=?,description=?,crisis_type=?,severity_level=?,
affected_regions_json=?,key_variables_json=?,additional_context=?,stakeholders=?,timeline=?,
change_history_json=?,last_modified_by=?,modification_count=?,
version_number=?,major_version=?,minor_version=?,patch_version=?,revision_count=?,
abc_classification=?,priority_score=?,impact_category=?,
impact_score=?,calculated_total_impact=?,economic_impact=?,social_impact=?,environmental_impact=?,impact_trend=?,
updated_at=? WHERE id=?`,
		s.Title, nullable(s.Description), s.CrisisType, s.Severity,
		regions, variables, nullable(s.AdditionalContext), nullable(s.Stakeholders), nullable(s.Timeline),
		history, nullable(s.LastModifiedBy), s.ModificationCount,
		s.VersionNumber, s.MajorVersion, s.MinorVersion, s.PatchVersion, s.RevisionCount,
		s.ABCClassification, s.PriorityScore, s.ImpactCategory,
		s.ImpactScore, s.CalculatedTotalImpact,
		nullableFloatPtr(s.EconomicImpact), nullableFloatPtr(s.SocialImpact), nullableFloatPtr(s.EnvironmentalImpact), s.ImpactTrend,
		s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanScenario(scan func(dest ...any) error) (domain.Scenario, error) {
	var s domain.Scenario
	var regions, variables, history string
	var economic, social, environmental sql.NullFloat64
	err := scan(
		&s.ID, &s.UserID, &s.Title, &s.Description, &s.CrisisType, &s.Severity,
		&regions, &variables, &s.AdditionalContext, &s.Stakeholders, &s.Timeline,
		&s.SequenceNumber, &s.SequenceLetter, &history,
		&s.LastModifiedBy, &s.ModificationCount,
		&s.VersionNumber, &s.MajorVersion, &s.MinorVersion, &s.PatchVersion, &s.RevisionCount,
		&s.ABCClassification, &s.PriorityScore, &s.ImpactCategory,
		&s.ImpactScore, &s.CalculatedTotalImpact, &economic, &social, &environmental, &s.ImpactTrend,
		&s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(regions), &s.AffectedRegions); err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(variables), &s.KeyVariables); err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(history), &s.ChangeHistory); err != nil {
		return s, err
	}
	if economic.Valid {
		s.EconomicImpact = &economic.Float64
	}
	if social.Valid {
		s.SocialImpact = &social.Float64
	}
	if environmental.Valid {
		s.EnvironmentalImpact = &environmental.Float64
	}
	return s, nil
}

// GetScenario fetches a scenario scoped to its owner. Ownership enforcement
// happens here, not in the engine.
func (r Repo) GetScenario(ctx context.Context, id, userID string) (domain.Scenario, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+scenarioColumns+` FROM scenarios WHERE id=? AND user_id=?`, id, userID)
	return scanScenario(row.Scan)
}

func (r Repo) ListScenarios(ctx context.Context, userID string) ([]domain.Scenario, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+scenarioColumns+` FROM scenarios WHERE user_id=? ORDER BY sequence_number ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Scenario
	for rows.Next() {
		s, err := scanScenario(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) DeleteScenario(ctx context.Context, tx *sql.Tx, id, userID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM scenarios WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
