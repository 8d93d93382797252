package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"permitline/internal/config"
	"permitline/internal/domain"
	"permitline/internal/tracker"
)

const testSecret = "test-secret"

var day1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*tracker.Tracker, *httptest.Server) {
	t.Helper()
	tr := tracker.New(config.Default())
	tr.Now = func() time.Time { return day1 }
	handler, err := New(Config{
		Tracker: tr,
		Auth:    AuthConfig{JWTSecret: testSecret},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return tr, srv
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, method, url, token string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, url, data, err)
		}
	}
	return res.StatusCode
}

func TestHealthIsOpen(t *testing.T) {
	_, srv := newTestServer(t)
	var body map[string]string
	if code := doJSON(t, http.MethodGet, srv.URL+"/v0/health", "", nil, &body); code != http.StatusOK {
		t.Fatalf("health status = %d", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("health body = %v", body)
	}
}

func TestAuthRequired(t *testing.T) {
	_, srv := newTestServer(t)
	code := doJSON(t, http.MethodGet, srv.URL+"/v0/applications/x", "", nil, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", code)
	}
	code = doJSON(t, http.MethodGet, srv.URL+"/v0/applications/x", "garbage-token", nil, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", code)
	}
}

func TestLegacyUserHeader(t *testing.T) {
	tr := tracker.New(config.Default())
	tr.Now = func() time.Time { return day1 }
	handler, err := New(Config{
		Tracker: tr,
		Auth:    AuthConfig{JWTSecret: testSecret, AllowLegacyUserHeader: true},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v0/applications",
		bytes.NewReader([]byte(`{"reference":"24/00001/HSE"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "legacy-user")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", res.StatusCode)
	}
	var app ApplicationResponse
	if err := json.NewDecoder(res.Body).Decode(&app); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if app.UserID != "legacy-user" {
		t.Fatalf("user = %s, want legacy-user", app.UserID)
	}
}

func TestApplicationLifecycle(t *testing.T) {
	_, srv := newTestServer(t)
	token := signToken(t, "u1")

	var created ApplicationResponse
	code := doJSON(t, http.MethodPost, srv.URL+"/v0/applications", token, CreateApplicationRequest{
		Reference: "24/00001/HSE",
		Address:   "1 High Street",
		TypeCode:  "householder",
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}
	if created.ID == "" || created.Status != domain.StatusSubmitted || len(created.Milestones) != 7 {
		t.Fatalf("created = %+v", created)
	}
	if created.UserID != "u1" {
		t.Fatalf("user = %s, want token subject", created.UserID)
	}

	var fetched ApplicationResponse
	code = doJSON(t, http.MethodGet, srv.URL+"/v0/applications/"+created.ID, token, nil, &fetched)
	if code != http.StatusOK || fetched.ID != created.ID {
		t.Fatalf("get status = %d app = %+v", code, fetched)
	}

	var updated ApplicationResponse
	code = doJSON(t, http.MethodPatch, srv.URL+"/v0/applications/"+created.ID+"/status", token,
		UpdateStatusRequest{Status: domain.StatusValidated, Notes: "all documents received"}, &updated)
	if code != http.StatusOK {
		t.Fatalf("update status = %d", code)
	}
	if updated.ValidatedAt == nil || len(updated.Alerts) != 1 {
		t.Fatalf("updated = %+v", updated)
	}

	code = doJSON(t, http.MethodPost, srv.URL+"/v0/applications/"+created.ID+"/documents", token,
		AddDocumentRequest{Name: "site-plan.pdf", Category: "drawings"}, &updated)
	if code != http.StatusCreated || len(updated.Documents) != 1 {
		t.Fatalf("add document status = %d docs = %+v", code, updated.Documents)
	}

	deadline := day1.AddDate(0, 0, 10).Format(time.RFC3339)
	code = doJSON(t, http.MethodPost, srv.URL+"/v0/applications/"+created.ID+"/communications", token,
		LogCommunicationRequest{Direction: "in", Summary: "requested elevations", ActionRequired: true, ActionDeadline: &deadline}, &updated)
	if code != http.StatusCreated || len(updated.Communications) != 1 {
		t.Fatalf("log comm status = %d comms = %+v", code, updated.Communications)
	}

	commID := updated.Communications[0].ID
	code = doJSON(t, http.MethodPost, srv.URL+"/v0/applications/"+created.ID+"/communications/"+commID+"/resolve", token, nil, &updated)
	if code != http.StatusOK || !updated.Communications[0].Resolved {
		t.Fatalf("resolve comm status = %d comms = %+v", code, updated.Communications)
	}

	var tl TimelineResponse
	code = doJSON(t, http.MethodGet, srv.URL+"/v0/applications/"+created.ID+"/timeline", token, nil, &tl)
	if code != http.StatusOK {
		t.Fatalf("timeline status = %d", code)
	}
	if tl.TotalDays != 56 || len(tl.Stages) != 5 {
		t.Fatalf("timeline = %+v", tl)
	}

	var alerts []AlertResponse
	code = doJSON(t, http.MethodGet, srv.URL+"/v0/applications/"+created.ID+"/alerts", token, nil, &alerts)
	if code != http.StatusOK || len(alerts) != 1 {
		t.Fatalf("alerts status = %d alerts = %+v", code, alerts)
	}

	var afterRead ApplicationResponse
	code = doJSON(t, http.MethodPost, srv.URL+"/v0/applications/"+created.ID+"/alerts/"+alerts[0].ID+"/read", token, nil, &afterRead)
	if code != http.StatusOK || afterRead.Alerts[0].ReadAt == nil {
		t.Fatalf("mark read status = %d app = %+v", code, afterRead)
	}

	var list []ApplicationResponse
	code = doJSON(t, http.MethodGet, srv.URL+"/v0/users/u1/applications", token, nil, &list)
	if code != http.StatusOK || len(list) != 1 {
		t.Fatalf("list status = %d len = %d", code, len(list))
	}

	var stats StatsResponse
	code = doJSON(t, http.MethodGet, srv.URL+"/v0/users/u1/stats", token, nil, &stats)
	if code != http.StatusOK || stats.Total != 1 {
		t.Fatalf("stats status = %d stats = %+v", code, stats)
	}
}

func TestErrorEnvelope(t *testing.T) {
	_, srv := newTestServer(t)
	token := signToken(t, "u1")

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	code := doJSON(t, http.MethodGet, srv.URL+"/v0/applications/missing", token, nil, &envelope)
	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("code = %q, want not_found", envelope.Error.Code)
	}

	code = doJSON(t, http.MethodPatch, srv.URL+"/v0/applications/missing/status", token,
		UpdateStatusRequest{Status: "nonsense"}, &envelope)
	if code != http.StatusBadRequest && code != http.StatusUnprocessableEntity {
		t.Fatalf("bad status value gave %d", code)
	}
}

func TestScanEndpoint(t *testing.T) {
	tr, srv := newTestServer(t)
	token := signToken(t, "u1")

	var created ApplicationResponse
	if code := doJSON(t, http.MethodPost, srv.URL+"/v0/applications", token, CreateApplicationRequest{
		Reference: "24/00002/FUL",
	}, &created); code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}

	// Jump the clock past the decision target.
	tr.Now = func() time.Time { return day1.AddDate(0, 0, 60) }

	var scan struct {
		Raised []AlertResponse `json:"raised"`
	}
	code := doJSON(t, http.MethodPost, srv.URL+"/v0/deadlines/scan", token, nil, &scan)
	if code != http.StatusOK {
		t.Fatalf("scan status = %d", code)
	}
	if len(scan.Raised) != 1 || scan.Raised[0].Type != domain.AlertDeadline || scan.Raised[0].Priority != domain.PriorityUrgent {
		t.Fatalf("raised = %+v", scan.Raised)
	}

	// Recorded alerts show up as pending on the application.
	var alerts []AlertResponse
	code = doJSON(t, http.MethodGet, srv.URL+"/v0/applications/"+created.ID+"/alerts", token, nil, &alerts)
	if code != http.StatusOK || len(alerts) != 1 {
		t.Fatalf("alerts status = %d alerts = %+v", code, alerts)
	}
}
