package permitlinesdk

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

// Client is a minimal Permitline HTTP API client.
type Client struct {
	BaseURL     string
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

// Application is the API application model (partial).
type Application struct {
	ID               string      `json:"id"`
	Reference        string      `json:"reference"`
	Address          string      `json:"address,omitempty"`
	TypeCode         string      `json:"type_code"`
	UserID           string      `json:"user_id"`
	Status           string      `json:"status"`
	Decision         string      `json:"decision,omitempty"`
	SubmittedAt      string      `json:"submitted_at"`
	TargetDecisionAt string      `json:"target_decision_at"`
	DecidedAt        *string     `json:"decided_at,omitempty"`
	Milestones       []Milestone `json:"milestones"`
	Alerts           []Alert     `json:"alerts"`
	UpdatedAt        string      `json:"updated_at"`
}

// Milestone is one scheduled procedural step.
type Milestone struct {
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	ScheduledAt string  `json:"scheduled_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// Alert is one raised notification.
type Alert struct {
	ID            string  `json:"id"`
	ApplicationID string  `json:"application_id"`
	Type          string  `json:"type"`
	Priority      string  `json:"priority"`
	Message       string  `json:"message"`
	CreatedAt     string  `json:"created_at"`
	ReadAt        *string `json:"read_at,omitempty"`
}

// Timeline is the derived progress view.
type Timeline struct {
	ApplicationID     string `json:"application_id"`
	Status            string `json:"status"`
	TotalDays         int    `json:"total_days"`
	ElapsedDays       int    `json:"elapsed_days"`
	RemainingDays     int    `json:"remaining_days"`
	PercentComplete   int    `json:"percent_complete"`
	PredictedDecision string `json:"predicted_decision_at"`
	OnTrack           bool   `json:"on_track"`
	Confidence        int    `json:"confidence"`
	Stages            []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"stages"`
}

// Stats summarizes a user's portfolio.
type Stats struct {
	UserID              string         `json:"user_id"`
	Total               int            `json:"total"`
	ByStatus            map[string]int `json:"by_status"`
	AverageDecisionDays float64        `json:"average_decision_days"`
	ApprovalRate        int            `json:"approval_rate"`
	PendingActions      int            `json:"pending_actions"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateApplication registers a submitted application.
func (c *Client) CreateApplication(ctx context.Context, reference, address, typeCode string) (Application, error) {
	body := map[string]any{
		"reference": reference,
		"address":   address,
		"type_code": typeCode,
	}
	var resp Application
	err := c.do(ctx, http.MethodPost, "v0/applications", body, &resp)
	return resp, err
}

// GetApplication fetches one application by id.
func (c *Client) GetApplication(ctx context.Context, id string) (Application, error) {
	var resp Application
	err := c.do(ctx, http.MethodGet, applicationPath(id, ""), nil, &resp)
	return resp, err
}

// UpdateStatus applies an authority status update.
func (c *Client) UpdateStatus(ctx context.Context, id, status, notes string) (Application, error) {
	body := map[string]any{"status": status}
	if notes != "" {
		body["notes"] = notes
	}
	var resp Application
	err := c.do(ctx, http.MethodPatch, applicationPath(id, "status"), body, &resp)
	return resp, err
}

// ResolveCommunication marks an action-required communication as dealt
// with.
func (c *Client) ResolveCommunication(ctx context.Context, id, commID string) (Application, error) {
	var resp Application
	endpoint := applicationPath(id, fmt.Sprintf("communications/%s/resolve", url.PathEscape(commID)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Timeline fetches the derived progress view.
func (c *Client) Timeline(ctx context.Context, id string) (Timeline, error) {
	var resp Timeline
	err := c.do(ctx, http.MethodGet, applicationPath(id, "timeline"), nil, &resp)
	return resp, err
}

// PendingAlerts returns an application's unread alerts.
func (c *Client) PendingAlerts(ctx context.Context, id string) ([]Alert, error) {
	var resp []Alert
	err := c.do(ctx, http.MethodGet, applicationPath(id, "alerts"), nil, &resp)
	return resp, err
}

// MarkAlertRead stamps an alert's read timestamp.
func (c *Client) MarkAlertRead(ctx context.Context, id, alertID string) (Application, error) {
	var resp Application
	endpoint := applicationPath(id, fmt.Sprintf("alerts/%s/read", url.PathEscape(alertID)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// UserApplications lists a user's applications, most recently updated first.
func (c *Client) UserApplications(ctx context.Context, userID string) ([]Application, error) {
	var resp []Application
	endpoint := fmt.Sprintf("v0/users/%s/applications", url.PathEscape(userID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UserStats fetches a user's portfolio statistics.
func (c *Client) UserStats(ctx context.Context, userID string) (Stats, error) {
	var resp Stats
	endpoint := fmt.Sprintf("v0/users/%s/stats", url.PathEscape(userID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ScanDeadlines triggers a deadline scan and returns the raised alerts.
func (c *Client) ScanDeadlines(ctx context.Context) ([]Alert, error) {
	var resp struct {
		Raised []Alert `json:"raised"`
	}
	err := c.do(ctx, http.MethodPost, "v0/deadlines/scan", nil, &resp)
	return resp.Raised, err
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
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
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

func applicationPath(id, p string) string {
	endpoint := fmt.Sprintf("v0/applications/%s", url.PathEscape(id))
	if p != "" {
		endpoint += "/" + strings.TrimLeft(p, "/")
	}
	return endpoint
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
