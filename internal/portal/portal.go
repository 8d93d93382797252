// Package portal fetches published application records from an external
// case-management portal. It is a read-only ingestion shim: callers decide
// what to do with the returned record; no tracking logic lives here.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a portal's public search API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New returns a portal client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 15 * time.Second,
	}
}

// Record is the subset of a portal's published application data that maps
// onto a tracked application.
type Record struct {
	Reference   string  `json:"reference"`
	Address     string  `json:"address"`
	Postcode    string  `json:"postcode"`
	Description string  `json:"description"`
	TypeCode    string  `json:"application_type"`
	Borough     string  `json:"borough"`
	Ward        string  `json:"ward"`
	Status      string  `json:"status"`
	ReceivedAt  string  `json:"valid_date"`
	DecidedAt   *string `json:"decision_date,omitempty"`
	Decision    string  `json:"decision,omitempty"`
}

// Fetch returns the published record for a planning reference, or an error
// when the portal has nothing for it. Portals are flaky; callers should
// treat any error here as "try again later", not as a tracked state.
func (c *Client) Fetch(ctx context.Context, reference string) (Record, error) {
	if strings.TrimSpace(reference) == "" {
		return Record{}, fmt.Errorf("reference is required")
	}
	endpoint := fmt.Sprintf("%s/applications/%s", strings.TrimRight(c.BaseURL, "/"), url.PathEscape(reference))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Record{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.Timeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("portal fetch %s: %w", reference, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return Record{}, fmt.Errorf("portal has no record for %s", reference)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return Record{}, fmt.Errorf("portal fetch %s: status %d: %s", reference, res.StatusCode, strings.TrimSpace(string(body)))
	}
	var rec Record
	if err := json.NewDecoder(res.Body).Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("portal fetch %s: decode: %w", reference, err)
	}
	if rec.Reference == "" {
		rec.Reference = reference
	}
	return rec, nil
}

// SubmittedAt parses the portal's received date; zero when absent or
// unparseable.
func (r Record) SubmittedAt() time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, r.ReceivedAt); err == nil {
			return t
		}
	}
	return time.Time{}
}
