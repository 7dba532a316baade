package server

import (
	"crisisline/internal/domain"
)

// Request payloads

type RegisterRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"8"`
	FullName string `json:"full_name,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type CreateScenarioRequest struct {
	Title             string   `json:"title"`
	Description       *string  `json:"description,omitempty"`
	CrisisType        string   `json:"crisis_type" enum:"natural_disaster,economic_crisis,social_unrest,pandemic,technological_crisis,environmental_crisis,other"`
	Severity          int      `json:"severity_level" minimum:"1" maximum:"10"`
	AffectedRegions   []string `json:"affected_regions,omitempty"`
	KeyVariables      []string `json:"key_variables,omitempty"`
	AdditionalContext *string  `json:"additional_context,omitempty"`
	Stakeholders      *string  `json:"stakeholders,omitempty"`
	Timeline          *string  `json:"timeline,omitempty"`
}

type AmendScenarioRequest struct {
	AffectedRegions   *[]string `json:"affected_regions,omitempty"`
	KeyVariables      *[]string `json:"key_variables,omitempty"`
	AdditionalContext *string   `json:"additional_context,omitempty"`
	Stakeholders      *string   `json:"stakeholders,omitempty"`
	Timeline          *string   `json:"timeline,omitempty"`
}

type ManualImpactRequest struct {
	EconomicImpact      *float64 `json:"economic_impact,omitempty" minimum:"0" maximum:"100"`
	SocialImpact        *float64 `json:"social_impact,omitempty" minimum:"0" maximum:"100"`
	EnvironmentalImpact *float64 `json:"environmental_impact,omitempty" minimum:"0" maximum:"100"`
}

type CreateCompanyRequest struct {
	Name        string  `json:"name"`
	Industry    *string `json:"industry,omitempty"`
	Description *string `json:"description,omitempty"`
}

type CreateTeamRequest struct {
	Name      string   `json:"name"`
	LeadID    *string  `json:"lead_id,omitempty"`
	MemberIDs []string `json:"member_ids,omitempty"`
}

type AdjustmentRequest struct {
	ScenarioID     *string              `json:"scenario_id,omitempty"`
	AdjustmentName string               `json:"adjustment_name"`
	Settings       domain.SepteSettings `json:"settings"`
}

type CreateConsensusRequest struct {
	AdjustmentID  string  `json:"adjustment_id"`
	TeamID        *string `json:"team_id,omitempty"`
	ConsensusName string  `json:"consensus_name"`
}

// Response payloads

type TokenResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ChangeRecordResponse struct {
	ID         string  `json:"id"`
	Timestamp  string  `json:"timestamp" format:"date-time"`
	Action     string  `json:"action" enum:"created,updated,recalculated,manual_update"`
	Field      string  `json:"field"`
	OldValue   *string `json:"old_value"`
	NewValue   *string `json:"new_value"`
	ModifiedBy string  `json:"modified_by"`
}

type ScenarioResponse struct {
	ID                string   `json:"id"`
	UserID            string   `json:"user_id"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	CrisisType        string   `json:"crisis_type"`
	Severity          int      `json:"severity_level"`
	AffectedRegions   []string `json:"affected_regions"`
	KeyVariables      []string `json:"key_variables"`
	AdditionalContext string   `json:"additional_context,omitempty"`
	Stakeholders      string   `json:"stakeholders,omitempty"`
	Timeline          string   `json:"timeline,omitempty"`

	SequenceNumber int    `json:"sequence_number"`
	SequenceLetter string `json:"sequence_letter"`

	LastModifiedBy    string `json:"last_modified_by,omitempty"`
	ModificationCount int    `json:"modification_count"`

	VersionNumber string `json:"version_number"`
	MajorVersion  int    `json:"major_version"`
	MinorVersion  int    `json:"minor_version"`
	PatchVersion  int    `json:"patch_version"`
	RevisionCount int    `json:"revision_count"`

	ABCClassification string `json:"abc_classification"`
	PriorityScore     int    `json:"priority_score"`
	ImpactCategory    string `json:"impact_category"`

	ImpactScore           float64  `json:"impact_score"`
	CalculatedTotalImpact float64  `json:"calculated_total_impact"`
	EconomicImpact        *float64 `json:"economic_impact,omitempty"`
	SocialImpact          *float64 `json:"social_impact,omitempty"`
	EnvironmentalImpact   *float64 `json:"environmental_impact,omitempty"`
	ImpactTrend           string   `json:"impact_trend"`

	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type CompanyResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Industry    string `json:"industry,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type TeamResponse struct {
	ID        string   `json:"id"`
	CompanyID string   `json:"company_id"`
	Name      string   `json:"name"`
	LeadID    string   `json:"lead_id,omitempty"`
	MemberIDs []string `json:"member_ids"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type AdjustmentResponse struct {
	ID               string               `json:"id"`
	CompanyID        string               `json:"company_id"`
	ScenarioID       *string              `json:"scenario_id,omitempty"`
	AdjustmentName   string               `json:"adjustment_name"`
	CreatedBy        string               `json:"created_by"`
	Settings         domain.SepteSettings `json:"settings"`
	RealTimeAnalysis string               `json:"real_time_analysis,omitempty"`
	ImpactSummary    string               `json:"impact_summary,omitempty"`
	Recommendations  []string             `json:"recommendations"`
	RiskLevel        string               `json:"risk_level"`
	CreatedAt        string               `json:"created_at" format:"date-time"`
	UpdatedAt        string               `json:"updated_at" format:"date-time"`
}

type ConsensusResponse struct {
	ID                  string               `json:"id"`
	CompanyID           string               `json:"company_id"`
	AdjustmentID        string               `json:"adjustment_id"`
	TeamID              *string              `json:"team_id,omitempty"`
	ConsensusName       string               `json:"consensus_name"`
	CreatedBy           string               `json:"created_by"`
	AgreedBy            []string             `json:"agreed_by"`
	TotalTeamMembers    int                  `json:"total_team_members"`
	ConsensusPercentage float64              `json:"consensus_percentage"`
	ConsensusReached    bool                 `json:"consensus_reached"`
	FinalSettings       domain.SepteSettings `json:"final_settings"`
	CreatedAt           string               `json:"created_at" format:"date-time"`
	FinalizedAt         *string              `json:"finalized_at,omitempty" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OwnerID    string `json:"owner_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Mappers

func userResponse(u domain.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, FullName: u.FullName, CreatedAt: u.CreatedAt}
}

func scenarioResponse(s domain.Scenario) ScenarioResponse {
	return ScenarioResponse{
		ID:                    s.ID,
		UserID:                s.UserID,
		Title:                 s.Title,
		Description:           s.Description,
		CrisisType:            s.CrisisType,
		Severity:              s.Severity,
		AffectedRegions:       nonNilSlice(s.AffectedRegions),
		KeyVariables:          nonNilSlice(s.KeyVariables),
		AdditionalContext:     s.AdditionalContext,
		Stakeholders:          s.Stakeholders,
		Timeline:              s.Timeline,
		SequenceNumber:        s.SequenceNumber,
		SequenceLetter:        s.SequenceLetter,
		LastModifiedBy:        s.LastModifiedBy,
		ModificationCount:     s.ModificationCount,
		VersionNumber:         s.VersionNumber,
		MajorVersion:          s.MajorVersion,
		MinorVersion:          s.MinorVersion,
		PatchVersion:          s.PatchVersion,
		RevisionCount:         s.RevisionCount,
		ABCClassification:     s.ABCClassification,
		PriorityScore:         s.PriorityScore,
		ImpactCategory:        s.ImpactCategory,
		ImpactScore:           s.ImpactScore,
		CalculatedTotalImpact: s.CalculatedTotalImpact,
		EconomicImpact:        s.EconomicImpact,
		SocialImpact:          s.SocialImpact,
		EnvironmentalImpact:   s.EnvironmentalImpact,
		ImpactTrend:           s.ImpactTrend,
		CreatedAt:             s.CreatedAt,
		UpdatedAt:             s.UpdatedAt,
	}
}

func mapScenarios(items []domain.Scenario) []ScenarioResponse {
	res := make([]ScenarioResponse, 0, len(items))
	for _, s := range items {
		res = append(res, scenarioResponse(s))
	}
	return res
}

func changeRecordResponse(r domain.ChangeRecord) ChangeRecordResponse {
	return ChangeRecordResponse{
		ID:         r.ID,
		Timestamp:  r.Timestamp,
		Action:     r.Action,
		Field:      r.Field,
		OldValue:   r.OldValue,
		NewValue:   r.NewValue,
		ModifiedBy: r.ModifiedBy,
	}
}

func mapChangeRecords(items []domain.ChangeRecord) []ChangeRecordResponse {
	res := make([]ChangeRecordResponse, 0, len(items))
	for _, r := range items {
		res = append(res, changeRecordResponse(r))
	}
	return res
}

func companyResponse(c domain.Company) CompanyResponse {
	return CompanyResponse{ID: c.ID, Name: c.Name, Industry: c.Industry, Description: c.Description, CreatedBy: c.CreatedBy, CreatedAt: c.CreatedAt}
}

func teamResponse(t domain.Team) TeamResponse {
	return TeamResponse{ID: t.ID, CompanyID: t.CompanyID, Name: t.Name, LeadID: t.LeadID, MemberIDs: nonNilSlice(t.MemberIDs), CreatedAt: t.CreatedAt}
}

func adjustmentResponse(a domain.ScenarioAdjustment) AdjustmentResponse {
	return AdjustmentResponse{
		ID:               a.ID,
		CompanyID:        a.CompanyID,
		ScenarioID:       a.ScenarioID,
		AdjustmentName:   a.AdjustmentName,
		CreatedBy:        a.CreatedBy,
		Settings:         a.Settings,
		RealTimeAnalysis: a.RealTimeAnalysis,
		ImpactSummary:    a.ImpactSummary,
		Recommendations:  nonNilSlice(a.Recommendations),
		RiskLevel:        a.RiskLevel,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func consensusResponse(c domain.ConsensusSettings) ConsensusResponse {
	return ConsensusResponse{
		ID:                  c.ID,
		CompanyID:           c.CompanyID,
		AdjustmentID:        c.AdjustmentID,
		TeamID:              c.TeamID,
		ConsensusName:       c.ConsensusName,
		CreatedBy:           c.CreatedBy,
		AgreedBy:            nonNilSlice(c.AgreedBy),
		TotalTeamMembers:    c.TotalTeamMembers,
		ConsensusPercentage: c.ConsensusPercentage,
		ConsensusReached:    c.ConsensusReached,
		FinalSettings:       c.FinalSettings,
		CreatedAt:           c.CreatedAt,
		FinalizedAt:         c.FinalizedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		OwnerID:    e.OwnerID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func nonNilSlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
