package domain

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FullName     string `json:"full_name,omitempty"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Company struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Industry    string `json:"industry,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Team struct {
	ID        string   `json:"id"`
	CompanyID string   `json:"company_id"`
	Name      string   `json:"name"`
	LeadID    string   `json:"lead_id,omitempty"`
	MemberIDs []string `json:"member_ids,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

// ChangeRecord is one immutable entry in a scenario's change ledger.
// Old and new values are canonical strings; nil means no prior/next value.
type ChangeRecord struct {
	ID         string  `json:"id"`
	Timestamp  string  `json:"timestamp" format:"date-time"`
	Action     string  `json:"action" enum:"created,updated,recalculated,manual_update"`
	Field      string  `json:"field"`
	OldValue   *string `json:"old_value"`
	NewValue   *string `json:"new_value"`
	ModifiedBy string  `json:"modified_by"`
}

type Scenario struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	CrisisType  string `json:"crisis_type" enum:"natural_disaster,economic_crisis,social_unrest,pandemic,technological_crisis,environmental_crisis,other"`
	Severity    int    `json:"severity_level" minimum:"1" maximum:"10"`

	AffectedRegions   []string `json:"affected_regions,omitempty"`
	KeyVariables      []string `json:"key_variables,omitempty"`
	AdditionalContext string   `json:"additional_context,omitempty"`
	Stakeholders      string   `json:"stakeholders,omitempty"`
	Timeline          string   `json:"timeline,omitempty"`

	SequenceNumber int    `json:"sequence_number"`
	SequenceLetter string `json:"sequence_letter"`

	ChangeHistory     []ChangeRecord `json:"change_history,omitempty"`
	LastModifiedBy    string         `json:"last_modified_by,omitempty"`
	ModificationCount int            `json:"modification_count"`

	VersionNumber string `json:"version_number"`
	MajorVersion  int    `json:"major_version"`
	MinorVersion  int    `json:"minor_version"`
	PatchVersion  int    `json:"patch_version"`
	RevisionCount int    `json:"revision_count"`

	ABCClassification string `json:"abc_classification" enum:"A,B,C"`
	PriorityScore     int    `json:"priority_score" minimum:"1" maximum:"10"`
	ImpactCategory    string `json:"impact_category" enum:"high,medium,low"`

	ImpactScore           float64  `json:"impact_score"`
	CalculatedTotalImpact float64  `json:"calculated_total_impact"`
	EconomicImpact        *float64 `json:"economic_impact,omitempty"`
	SocialImpact          *float64 `json:"social_impact,omitempty"`
	EnvironmentalImpact   *float64 `json:"environmental_impact,omitempty"`
	ImpactTrend           string   `json:"impact_trend" enum:"increasing,decreasing,stable,manual_update"`

	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// SepteSettings holds the five opposing percentage pairs of the SEPTE
// framework. Each pair must sum to 100.
type SepteSettings struct {
	EconomicCrisisPct           float64 `json:"economic_crisis_pct"`
	EconomicStabilityPct        float64 `json:"economic_stability_pct"`
	SocialUnrestPct             float64 `json:"social_unrest_pct"`
	SocialCohesionPct           float64 `json:"social_cohesion_pct"`
	EnvironmentalDegradationPct float64 `json:"environmental_degradation_pct"`
	EnvironmentalResiliencePct  float64 `json:"environmental_resilience_pct"`
	PoliticalInstabilityPct     float64 `json:"political_instability_pct"`
	PoliticalStabilityPct       float64 `json:"political_stability_pct"`
	TechnologicalDisruptionPct  float64 `json:"technological_disruption_pct"`
	TechnologicalAdvancementPct float64 `json:"technological_advancement_pct"`
}

type ScenarioAdjustment struct {
	ID             string  `json:"id"`
	CompanyID      string  `json:"company_id"`
	ScenarioID     *string `json:"scenario_id,omitempty"`
	AdjustmentName string  `json:"adjustment_name"`
	CreatedBy      string  `json:"created_by"`

	Settings SepteSettings `json:"settings"`

	RealTimeAnalysis string   `json:"real_time_analysis,omitempty"`
	ImpactSummary    string   `json:"impact_summary,omitempty"`
	Recommendations  []string `json:"recommendations,omitempty"`
	RiskLevel        string   `json:"risk_level" enum:"low,medium,high,critical"`

	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type ConsensusSettings struct {
	ID            string  `json:"id"`
	CompanyID     string  `json:"company_id"`
	AdjustmentID  string  `json:"adjustment_id"`
	TeamID        *string `json:"team_id,omitempty"`
	ConsensusName string  `json:"consensus_name"`
	CreatedBy     string  `json:"created_by"`

	AgreedBy            []string `json:"agreed_by"`
	TotalTeamMembers    int      `json:"total_team_members"`
	ConsensusPercentage float64  `json:"consensus_percentage"`
	ConsensusReached    bool     `json:"consensus_reached"`

	FinalSettings SepteSettings `json:"final_settings"`

	CreatedAt   string  `json:"created_at" format:"date-time"`
	FinalizedAt *string `json:"finalized_at,omitempty" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OwnerID    string `json:"owner_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
