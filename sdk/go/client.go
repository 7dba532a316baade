package crisislinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Crisisline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Scenario represents the API scenario model (partial).
type Scenario struct {
	ID                    string   `json:"id"`
	Title                 string   `json:"title"`
	CrisisType            string   `json:"crisis_type"`
	Severity              int      `json:"severity_level"`
	AffectedRegions       []string `json:"affected_regions"`
	SequenceNumber        int      `json:"sequence_number"`
	SequenceLetter        string   `json:"sequence_letter"`
	VersionNumber         string   `json:"version_number"`
	ABCClassification     string   `json:"abc_classification"`
	PriorityScore         int      `json:"priority_score"`
	ImpactCategory        string   `json:"impact_category"`
	CalculatedTotalImpact float64  `json:"calculated_total_impact"`
	ImpactTrend           string   `json:"impact_trend"`
	ModificationCount     int      `json:"modification_count"`
}

// Adjustment represents a company SEPTE adjustment (partial).
type Adjustment struct {
	ID               string         `json:"id"`
	CompanyID        string         `json:"company_id"`
	AdjustmentName   string         `json:"adjustment_name"`
	Settings         map[string]any `json:"settings"`
	RiskLevel        string         `json:"risk_level"`
	RealTimeAnalysis string         `json:"real_time_analysis"`
}

// Consensus represents a consensus round (partial).
type Consensus struct {
	ID                  string   `json:"id"`
	CompanyID           string   `json:"company_id"`
	AdjustmentID        string   `json:"adjustment_id"`
	ConsensusName       string   `json:"consensus_name"`
	AgreedBy            []string `json:"agreed_by"`
	TotalTeamMembers    int      `json:"total_team_members"`
	ConsensusPercentage float64  `json:"consensus_percentage"`
	ConsensusReached    bool     `json:"consensus_reached"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	OwnerID    string `json:"owner_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Payload    string `json:"payload_json"`
}

// Token is the register/login response.
type Token struct {
	Token string `json:"token"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Login exchanges credentials for a bearer token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (Token, error) {
	var resp Token
	err := c.do(ctx, http.MethodPost, "v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// CreateScenario creates a scenario.
func (c *Client) CreateScenario(ctx context.Context, title, crisisType string, severity int, regions []string) (Scenario, error) {
	body := map[string]any{
		"title":            title,
		"crisis_type":      crisisType,
		"severity_level":   severity,
		"affected_regions": regions,
	}
	var resp Scenario
	err := c.do(ctx, http.MethodPost, "v1/scenarios", body, &resp)
	return resp, err
}

// GetScenario fetches a scenario by id.
func (c *Client) GetScenario(ctx context.Context, id string) (Scenario, error) {
	var resp Scenario
	err := c.do(ctx, http.MethodGet, "v1/scenarios/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// AmendScenario patches scenario context fields. Only keys present in
// fields are changed.
func (c *Client) AmendScenario(ctx context.Context, id string, fields map[string]any) (Scenario, error) {
	var resp Scenario
	err := c.do(ctx, http.MethodPatch, "v1/scenarios/"+url.PathEscape(id)+"/amend", fields, &resp)
	return resp, err
}

// CreateAdjustment creates a company SEPTE adjustment.
func (c *Client) CreateAdjustment(ctx context.Context, companyID, name string, settings map[string]any) (Adjustment, error) {
	body := map[string]any{
		"adjustment_name": name,
		"settings":        settings,
	}
	var resp Adjustment
	endpoint := fmt.Sprintf("v1/companies/%s/scenario-adjustments", url.PathEscape(companyID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// AgreeConsensus records the caller's agreement on a consensus round.
func (c *Client) AgreeConsensus(ctx context.Context, companyID, consensusID string) (Consensus, error) {
	var resp Consensus
	endpoint := fmt.Sprintf("v1/companies/%s/consensus/%s/agree", url.PathEscape(companyID), url.PathEscape(consensusID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v1/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
