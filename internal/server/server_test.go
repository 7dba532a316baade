package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"crisisline/internal/config"
	"crisisline/internal/db"
	"crisisline/internal/engine"
	"crisisline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret"},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

// registerUser signs up a fresh user and returns bearer headers for it.
func registerUser(t *testing.T, srv *testServer, email string) map[string]string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/register", map[string]any{
		"email":     email,
		"password":  "correct-horse",
		"full_name": "Test User",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", res.StatusCode, string(data))
	}
	var token TokenResponse
	if err := json.Unmarshal(data, &token); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if token.Token == "" {
		t.Fatalf("expected token in register response")
	}
	return map[string]string{"Authorization": "Bearer " + token.Token}
}

func TestScenarioLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	auth := registerUser(t, srv, "planner@example.com")

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/scenarios", map[string]any{
		"title":            "Port flooding",
		"crisis_type":      "natural_disaster",
		"severity_level":   7,
		"affected_regions": []string{"coastal-north", "coastal-south"},
	}, auth)
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create scenario status %d: %s", createRes.StatusCode, string(data))
	}
	var created ScenarioResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal scenario: %v", err)
	}
	if created.SequenceLetter != "A" || created.VersionNumber != "1.0.0" {
		t.Fatalf("unexpected sequence/version: %s %s", created.SequenceLetter, created.VersionNumber)
	}
	if created.ABCClassification != "B" {
		t.Fatalf("expected class B, got %s", created.ABCClassification)
	}

	amendRes, amendBody := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/scenarios/"+created.ID+"/amend", map[string]any{
		"timeline": "first 72 hours",
	}, auth)
	if amendRes.StatusCode != http.StatusOK {
		t.Fatalf("amend status %d: %s", amendRes.StatusCode, string(amendBody))
	}
	var amended ScenarioResponse
	if err := json.Unmarshal(amendBody, &amended); err != nil {
		t.Fatalf("unmarshal amended: %v", err)
	}
	if amended.VersionNumber != "1.1.0" {
		t.Fatalf("timeline change should bump minor, got %s", amended.VersionNumber)
	}
	if amended.ModificationCount != 1 {
		t.Fatalf("expected 1 modification, got %d", amended.ModificationCount)
	}

	historyRes, historyBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/scenarios/"+created.ID+"/change-history", nil, auth)
	if historyRes.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", historyRes.StatusCode, string(historyBody))
	}
	var history []ChangeRecordResponse
	if err := json.Unmarshal(historyBody, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history) < 2 {
		t.Fatalf("expected create + amend ledger entries, got %d", len(history))
	}

	analyticsRes, analyticsBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/scenarios/"+created.ID+"/analytics", nil, auth)
	if analyticsRes.StatusCode != http.StatusOK {
		t.Fatalf("analytics status %d: %s", analyticsRes.StatusCode, string(analyticsBody))
	}
	var analytics engine.ScenarioAnalytics
	if err := json.Unmarshal(analyticsBody, &analytics); err != nil {
		t.Fatalf("unmarshal analytics: %v", err)
	}
	if analytics.VersionInfo.VersionNumber != "1.1.0" {
		t.Fatalf("analytics version %s", analytics.VersionInfo.VersionNumber)
	}

	deleteRes, deleteBody := doJSON(t, client, http.MethodDelete, srv.URL+"/v1/scenarios/"+created.ID, nil, auth)
	if deleteRes.StatusCode != http.StatusNoContent && deleteRes.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d: %s", deleteRes.StatusCode, string(deleteBody))
	}
	goneRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/scenarios/"+created.ID, nil, auth)
	if goneRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", goneRes.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/scenarios", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d: %s", res.StatusCode, string(body))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %q", envelope.Error.Code)
	}

	healthRes, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("health should be public, got %d", healthRes.StatusCode)
	}
}

func TestLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	registerUser(t, srv, "login@example.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"email":    "login@example.com",
		"password": "correct-horse",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var token TokenResponse
	if err := json.Unmarshal(data, &token); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}

	meRes, meBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + token.Token,
	})
	if meRes.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", meRes.StatusCode, string(meBody))
	}
	var me UserResponse
	if err := json.Unmarshal(meBody, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.Email != "login@example.com" {
		t.Fatalf("unexpected me email %q", me.Email)
	}

	badRes, _ := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"email":    "login@example.com",
		"password": "wrong",
	}, nil)
	if badRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on bad password, got %d", badRes.StatusCode)
	}
}

func TestAdjustmentValidationOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	auth := registerUser(t, srv, "septe@example.com")

	companyRes, companyBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/companies", map[string]any{
		"name":     "Harborwatch",
		"industry": "logistics",
	}, auth)
	if companyRes.StatusCode != http.StatusCreated {
		t.Fatalf("create company status %d: %s", companyRes.StatusCode, string(companyBody))
	}
	var company CompanyResponse
	if err := json.Unmarshal(companyBody, &company); err != nil {
		t.Fatalf("unmarshal company: %v", err)
	}

	settings := map[string]any{
		"economic_stability_pct":       50, "economic_crisis_pct": 50,
		"social_cohesion_pct":          40, "social_unrest_pct": 70,
		"environmental_resilience_pct": 50, "environmental_degradation_pct": 50,
		"political_stability_pct":      50, "political_instability_pct": 50,
		"technological_advancement_pct": 50, "technological_disruption_pct": 50,
	}
	badRes, badBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/companies/"+company.ID+"/scenario-adjustments", map[string]any{
		"adjustment_name": "Stress case",
		"settings":        settings,
	}, auth)
	if badRes.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 on unbalanced pair, got %d: %s", badRes.StatusCode, string(badBody))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(badBody, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "septe_pair_invalid" {
		t.Fatalf("expected septe_pair_invalid, got %q", envelope.Error.Code)
	}
	if envelope.Error.Details["pair"] != "social" {
		t.Fatalf("expected social pair in details, got %v", envelope.Error.Details)
	}

	settings["social_unrest_pct"] = 60
	goodRes, goodBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/companies/"+company.ID+"/scenario-adjustments", map[string]any{
		"adjustment_name": "Stress case",
		"settings":        settings,
	}, auth)
	if goodRes.StatusCode != http.StatusCreated {
		t.Fatalf("create adjustment status %d: %s", goodRes.StatusCode, string(goodBody))
	}
	var adj AdjustmentResponse
	if err := json.Unmarshal(goodBody, &adj); err != nil {
		t.Fatalf("unmarshal adjustment: %v", err)
	}
	if adj.RiskLevel == "" || adj.RealTimeAnalysis == "" {
		t.Fatalf("expected derived risk level and analysis text, got %+v", adj)
	}
}

func TestConsensusOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	auth := registerUser(t, srv, "lead@example.com")

	companyRes, companyBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/companies", map[string]any{
		"name": "Harborwatch",
	}, auth)
	if companyRes.StatusCode != http.StatusCreated {
		t.Fatalf("create company status %d: %s", companyRes.StatusCode, string(companyBody))
	}
	var company CompanyResponse
	if err := json.Unmarshal(companyBody, &company); err != nil {
		t.Fatalf("unmarshal company: %v", err)
	}

	settings := map[string]any{
		"economic_stability_pct":       50, "economic_crisis_pct": 50,
		"social_cohesion_pct":          50, "social_unrest_pct": 50,
		"environmental_resilience_pct": 50, "environmental_degradation_pct": 50,
		"political_stability_pct":      50, "political_instability_pct": 50,
		"technological_advancement_pct": 50, "technological_disruption_pct": 50,
	}
	adjRes, adjBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/companies/"+company.ID+"/scenario-adjustments", map[string]any{
		"adjustment_name": "Baseline",
		"settings":        settings,
	}, auth)
	if adjRes.StatusCode != http.StatusCreated {
		t.Fatalf("create adjustment status %d: %s", adjRes.StatusCode, string(adjBody))
	}
	var adj AdjustmentResponse
	if err := json.Unmarshal(adjBody, &adj); err != nil {
		t.Fatalf("unmarshal adjustment: %v", err)
	}

	consRes, consBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/companies/"+company.ID+"/consensus", map[string]any{
		"adjustment_id":  adj.ID,
		"consensus_name": "Adopt baseline",
	}, auth)
	if consRes.StatusCode != http.StatusCreated {
		t.Fatalf("create consensus status %d: %s", consRes.StatusCode, string(consBody))
	}
	var cons ConsensusResponse
	if err := json.Unmarshal(consBody, &cons); err != nil {
		t.Fatalf("unmarshal consensus: %v", err)
	}
	// No team: the roster is the creator alone, who auto-agrees.
	if !cons.ConsensusReached || cons.ConsensusPercentage != 100 {
		t.Fatalf("solo consensus should latch immediately: %+v", cons)
	}
	if cons.FinalizedAt == nil {
		t.Fatalf("expected finalized_at on latched consensus")
	}

	agreeRes, agreeBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/companies/"+company.ID+"/consensus/"+cons.ID+"/agree", nil, auth)
	if agreeRes.StatusCode != http.StatusOK {
		t.Fatalf("agree status %d: %s", agreeRes.StatusCode, string(agreeBody))
	}
	var after ConsensusResponse
	if err := json.Unmarshal(agreeBody, &after); err != nil {
		t.Fatalf("unmarshal consensus after agree: %v", err)
	}
	if after.FinalizedAt == nil || *after.FinalizedAt != *cons.FinalizedAt {
		t.Fatalf("finalized_at should not move on repeat agree: %v vs %v", after.FinalizedAt, cons.FinalizedAt)
	}
}
