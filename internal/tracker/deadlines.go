package tracker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"permitline/internal/archive"
	"permitline/internal/dates"
	"permitline/internal/domain"
)

// CheckDeadlines sweeps every open application and synthesizes alerts for
// passed or imminent decision targets and for unresolved action-required
// communications. Stored records are not mutated; callers decide whether
// to attach the results via RecordAlerts. An application with an existing
// unread alert of the same type is skipped.
func (t *Tracker) CheckDeadlines(ctx context.Context) ([]domain.Alert, error) {
	now := t.now().UTC()
	window := t.Config.AlertWindowDays()
	var out []domain.Alert
	for _, app := range t.Store.All() {
		if domain.IsTerminal(app.Status) {
			continue
		}
		if !app.HasUnreadAlert(domain.AlertDeadline) {
			switch {
			case !app.TargetDecisionAt.After(now):
				out = append(out, domain.Alert{
					ID:            uuid.New().String(),
					ApplicationID: app.ID,
					Type:          domain.AlertDeadline,
					Priority:      domain.PriorityUrgent,
					Message:       fmt.Sprintf("Decision deadline passed for %s", app.Reference),
					CreatedAt:     now,
				})
			case dates.WithinDays(app.TargetDecisionAt, now, window):
				out = append(out, domain.Alert{
					ID:            uuid.New().String(),
					ApplicationID: app.ID,
					Type:          domain.AlertDeadline,
					Priority:      domain.PriorityHigh,
					Message:       fmt.Sprintf("Decision due soon for %s", app.Reference),
					CreatedAt:     now,
				})
			}
		}
		if app.HasUnreadAlert(domain.AlertActionRequired) {
			continue
		}
		for _, c := range app.Communications {
			if !c.ActionRequired || c.Resolved || c.ActionDeadline == nil {
				continue
			}
			if !dates.WithinDays(*c.ActionDeadline, now, window) {
				continue
			}
			priority := domain.PriorityHigh
			if !c.ActionDeadline.After(now) {
				priority = domain.PriorityUrgent
			}
			out = append(out, domain.Alert{
				ID:            uuid.New().String(),
				ApplicationID: app.ID,
				Type:          domain.AlertActionRequired,
				Priority:      priority,
				Message:       fmt.Sprintf("Action required on %s: %s", app.Reference, c.Summary),
				CreatedAt:     now,
			})
			break
		}
	}
	return out, nil
}

// RecordAlerts attaches scanner output back onto the owning applications.
// The serve-mode sweeper calls this before webhook delivery so alerts stay
// visible through PendingAlerts.
func (t *Tracker) RecordAlerts(ctx context.Context, alerts []domain.Alert) error {
	now := t.now().UTC()
	for _, al := range alerts {
		app, err := t.Store.Mutate(al.ApplicationID, func(app *domain.Application) error {
			app.Alerts = append(app.Alerts, al)
			app.UpdatedAt = now
			return nil
		})
		if err != nil {
			return fmt.Errorf("record alert for %s: %w", al.ApplicationID, err)
		}
		if err := t.persist(ctx, app); err != nil {
			return err
		}
		t.record(ctx, "alert.raised", al.ApplicationID, "", archive.Payload{
			"alert_type": al.Type,
			"priority":   al.Priority,
		})
	}
	return nil
}
