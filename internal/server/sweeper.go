package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"permitline/internal/config"
	"permitline/internal/domain"
	"permitline/internal/tracker"
)

const (
	defaultSweepInterval  = time.Hour
	defaultWebhookTimeout = 5 * time.Second
)

// sweeper runs the deadline scan on a fixed interval, attaches the raised
// alerts, and delivers them to configured webhooks.
type sweeper struct {
	tracker  *tracker.Tracker
	webhooks []config.WebhookConfig
	interval time.Duration
	client   *http.Client
}

// StartSweeper launches the periodic deadline sweep. Returns a stop
// function; a nil tracker or config disables the sweep entirely.
func StartSweeper(tr *tracker.Tracker, cfg *config.Config) func() {
	if tr == nil || cfg == nil {
		return func() {}
	}
	interval := defaultSweepInterval
	if cfg.Alerts.SweepIntervalSecs > 0 {
		interval = time.Duration(cfg.Alerts.SweepIntervalSecs) * time.Second
	}
	s := &sweeper{
		tracker:  tr,
		webhooks: cfg.Webhooks,
		interval: interval,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
	}
	done := make(chan struct{})
	go s.run(done)
	return func() { close(done) }
}

func (s *sweeper) run(done <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.sweep()
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}

func (s *sweeper) sweep() {
	ctx := context.Background()
	alerts, err := s.tracker.CheckDeadlines(ctx)
	if err != nil {
		log.Printf("sweeper: scan failed: %v", err)
		return
	}
	if len(alerts) == 0 {
		return
	}
	if err := s.tracker.RecordAlerts(ctx, alerts); err != nil {
		log.Printf("sweeper: record alerts failed: %v", err)
		return
	}
	for _, hook := range s.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		filter := newAlertFilter(hook.AlertTypes)
		for _, al := range alerts {
			if !filter.match(al.Type) {
				continue
			}
			if err := s.postAlert(ctx, hook, al); err != nil {
				log.Printf("sweeper: deliver to %s failed: %v", hook.URL, err)
				break
			}
		}
	}
}

func (s *sweeper) postAlert(ctx context.Context, hook config.WebhookConfig, al domain.Alert) error {
	data, err := json.Marshal(alertResponse(al))
	if err != nil {
		return err
	}
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := s.client
	if timeout != s.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Permitline-Alert", al.Type)
	req.Header.Set("X-Permitline-Delivery", al.ID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Permitline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type alertFilter struct {
	all bool
	set map[string]struct{}
}

func newAlertFilter(types []string) alertFilter {
	if len(types) == 0 {
		return alertFilter{all: true}
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		key := strings.TrimSpace(t)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return alertFilter{all: true}
	}
	return alertFilter{set: set}
}

func (f alertFilter) match(alertType string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[alertType]
	return ok
}
