package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"crisisline/internal/domain"
)

const adjustmentColumns = `id,company_id,scenario_id,adjustment_name,created_by,settings_json,
COALESCE(real_time_analysis,''),COALESCE(impact_summary,''),COALESCE(recommendations_json,'[]'),risk_level,
created_at,updated_at`

func (r Repo) InsertAdjustment(ctx context.Context, tx *sql.Tx, a domain.ScenarioAdjustment) error {
	settings, err := marshalJSON(a.Settings)
	if err != nil {
		return err
	}
	recs, err := marshalJSON(a.Recommendations)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO scenario_adjustments(
id,company_id,scenario_id,adjustment_name,created_by,settings_json,
real_time_analysis,impact_summary,recommendations_json,risk_level,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.CompanyID, nullableStringPtr(a.ScenarioID), a.AdjustmentName, a.CreatedBy, settings,
		nullable(a.RealTimeAnalysis), nullable(a.ImpactSummary), recs, a.RiskLevel, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) UpdateAdjustment(ctx context.Context, tx *sql.Tx, a domain.ScenarioAdjustment) error {
	settings, err := marshalJSON(a.Settings)
	if err != nil {
		return err
	}
	recs, err := marshalJSON(a.Recommendations)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE scenario_adjustments SET
scenario_id=?,adjustment_name=?,settings_json=?,
real_time_analysis=?,impact_summary=?,recommendations_json=?,risk_level=?,updated_at=?
WHERE id=? AND company_id=?`,
		nullableStringPtr(a.ScenarioID), a.AdjustmentName, settings,
		nullable(a.RealTimeAnalysis), nullable(a.ImpactSummary), recs, a.RiskLevel, a.UpdatedAt,
		a.ID, a.CompanyID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAdjustment(scan func(dest ...any) error) (domain.ScenarioAdjustment, error) {
	var a domain.ScenarioAdjustment
	var scenarioID sql.NullString
	var settings, recs string
	err := scan(&a.ID, &a.CompanyID, &scenarioID, &a.AdjustmentName, &a.CreatedBy, &settings,
		&a.RealTimeAnalysis, &a.ImpactSummary, &recs, &a.RiskLevel, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if scenarioID.Valid {
		a.ScenarioID = &scenarioID.String
	}
	if err := json.Unmarshal([]byte(settings), &a.Settings); err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(recs), &a.Recommendations); err != nil {
		return a, err
	}
	return a, nil
}

func (r Repo) GetAdjustment(ctx context.Context, id, companyID string) (domain.ScenarioAdjustment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+adjustmentColumns+` FROM scenario_adjustments WHERE id=? AND company_id=?`, id, companyID)
	return scanAdjustment(row.Scan)
}

func (r Repo) ListAdjustments(ctx context.Context, companyID string) ([]domain.ScenarioAdjustment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+adjustmentColumns+` FROM scenario_adjustments WHERE company_id=? ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ScenarioAdjustment
	for rows.Next() {
		a, err := scanAdjustment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// --- consensus ---

const consensusColumns = `id,company_id,adjustment_id,team_id,consensus_name,created_by,
agreed_by_json,total_team_members,consensus_percentage,consensus_reached,final_settings_json,
created_at,finalized_at`

func (r Repo) InsertConsensus(ctx context.Context, tx *sql.Tx, c domain.ConsensusSettings) error {
	agreed, err := marshalJSON(c.AgreedBy)
	if err != nil {
		return err
	}
	settings, err := marshalJSON(c.FinalSettings)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO consensus_settings(
id,company_id,adjustment_id,team_id,consensus_name,created_by,
agreed_by_json,total_team_members,consensus_percentage,consensus_reached,final_settings_json,
created_at,finalized_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.CompanyID, c.AdjustmentID, nullableStringPtr(c.TeamID), c.ConsensusName, c.CreatedBy,
		agreed, c.TotalTeamMembers, c.ConsensusPercentage, boolToInt(c.ConsensusReached), settings,
		c.CreatedAt, nullableStringPtr(c.FinalizedAt))
	return err
}

// UpdateConsensus persists agreement state only; the roster, snapshot and
// identity columns are fixed at creation.
func (r Repo) UpdateConsensus(ctx context.Context, tx *sql.Tx, c domain.ConsensusSettings) error {
	agreed, err := marshalJSON(c.AgreedBy)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE consensus_settings SET
agreed_by_json=?,consensus_percentage=?,consensus_reached=?,finalized_at=?
WHERE id=? AND company_id=?`,
		agreed, c.ConsensusPercentage, boolToInt(c.ConsensusReached), nullableStringPtr(c.FinalizedAt),
		c.ID, c.CompanyID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanConsensus(scan func(dest ...any) error) (domain.ConsensusSettings, error) {
	var c domain.ConsensusSettings
	var teamID, finalizedAt sql.NullString
	var agreed, settings string
	var reached int
	err := scan(&c.ID, &c.CompanyID, &c.AdjustmentID, &teamID, &c.ConsensusName, &c.CreatedBy,
		&agreed, &c.TotalTeamMembers, &c.ConsensusPercentage, &reached, &settings,
		&c.CreatedAt, &finalizedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if teamID.Valid {
		c.TeamID = &teamID.String
	}
	if finalizedAt.Valid {
		c.FinalizedAt = &finalizedAt.String
	}
	c.ConsensusReached = reached != 0
	if err := json.Unmarshal([]byte(agreed), &c.AgreedBy); err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(settings), &c.FinalSettings); err != nil {
		return c, err
	}
	return c, nil
}

func (r Repo) GetConsensus(ctx context.Context, id, companyID string) (domain.ConsensusSettings, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+consensusColumns+` FROM consensus_settings WHERE id=? AND company_id=?`, id, companyID)
	return scanConsensus(row.Scan)
}

func (r Repo) ListConsensus(ctx context.Context, companyID string) ([]domain.ConsensusSettings, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+consensusColumns+` FROM consensus_settings WHERE company_id=? ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ConsensusSettings
	for rows.Next() {
		c, err := scanConsensus(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
