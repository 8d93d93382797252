// Package tracker is the lifecycle engine: it creates applications with a
// scheduled milestone skeleton, applies authority status updates, derives
// timeline predictions, and raises deadline alerts.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"permitline/internal/archive"
	"permitline/internal/config"
	"permitline/internal/dates"
	"permitline/internal/domain"
	"permitline/internal/schedule"
	"permitline/internal/store"
)

// Tracker owns the in-memory store and optionally mirrors every mutation to
// the durable archive. Snapshots and Journal may be nil for ephemeral use.
type Tracker struct {
	Store     *store.Store
	Snapshots *archive.Snapshots
	Journal   *archive.Journal
	Config    *config.Config
	Now       func() time.Time
}

// New returns a tracker over an empty store.
func New(cfg *config.Config) *Tracker {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Tracker{
		Store:  store.New(),
		Config: cfg,
		Now:    time.Now,
	}
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Reload replaces the store contents from archived snapshots.
func (t *Tracker) Reload(ctx context.Context) error {
	if t.Snapshots == nil {
		return nil
	}
	apps, err := t.Snapshots.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("reload archive: %w", err)
	}
	for _, app := range apps {
		t.Store.Put(app)
	}
	return nil
}

func (t *Tracker) persist(ctx context.Context, app domain.Application) error {
	if t.Snapshots == nil {
		return nil
	}
	return t.Snapshots.Save(ctx, app)
}

func (t *Tracker) record(ctx context.Context, entryType, applicationID, actorID string, payload archive.Payload) {
	if t.Journal == nil {
		return
	}
	// Journal failures never fail the operation itself.
	_ = t.Journal.Append(ctx, entryType, applicationID, actorID, payload)
}

// CreateOptions are parameters for registering an application.
type CreateOptions struct {
	Reference   string
	Address     string
	Postcode    string
	Description string
	TypeCode    string
	UserID      string
	Borough     string
	Ward        string
	SubmittedAt time.Time
}

// Create registers a submitted application and schedules its milestone
// skeleton. A zero SubmittedAt defaults to the current time.
func (t *Tracker) Create(ctx context.Context, opts CreateOptions) (domain.Application, error) {
	if opts.Reference == "" {
		return domain.Application{}, errors.New("reference is required")
	}
	if opts.UserID == "" {
		return domain.Application{}, errors.New("user is required")
	}
	if opts.TypeCode == "" {
		opts.TypeCode = "householder"
	}
	now := t.now().UTC()
	submitted := opts.SubmittedAt
	if submitted.IsZero() {
		submitted = now
	}
	submitted = submitted.UTC()
	period := t.Config.StatutoryPeriod(opts.TypeCode)

	app := domain.Application{
		ID:               uuid.New().String(),
		Reference:        opts.Reference,
		Address:          opts.Address,
		Postcode:         opts.Postcode,
		Description:      opts.Description,
		TypeCode:         opts.TypeCode,
		UserID:           opts.UserID,
		Borough:          opts.Borough,
		Ward:             opts.Ward,
		Status:           domain.StatusSubmitted,
		SubmittedAt:      submitted,
		TargetDecisionAt: schedule.TargetDecision(submitted, period),
		Milestones:       schedule.Schedule(submitted, period),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	t.Store.Put(app)
	if err := t.persist(ctx, app); err != nil {
		return app, err
	}
	t.record(ctx, "application.created", app.ID, app.UserID, archive.Payload{
		"reference": app.Reference,
		"type_code": app.TypeCode,
		"target":    app.TargetDecisionAt.Format(time.RFC3339),
	})
	return app, nil
}

// Get returns one application by id.
func (t *Tracker) Get(ctx context.Context, id string) (domain.Application, error) {
	return t.Store.Get(id)
}

// UpdateStatus applies an authority status update. Any status may follow
// any other; side effects depend only on the new status, and a high
// priority status-change alert is always raised, even when the status is
// unchanged.
func (t *Tracker) UpdateStatus(ctx context.Context, id, status, notes string) (domain.Application, error) {
	if !validStatus(status) {
		return domain.Application{}, fmt.Errorf("unknown status %q", status)
	}
	now := t.now().UTC()
	var oldStatus string
	app, err := t.Store.Mutate(id, func(app *domain.Application) error {
		oldStatus = app.Status
		app.Status = status
		// A decision date exists only while the status says so; a
		// re-opening update clears the stale outcome.
		if status != domain.StatusApproved && status != domain.StatusRefused {
			app.DecidedAt = nil
			app.Decision = ""
		}
		switch status {
		case domain.StatusValidated:
			stamp := now
			app.ValidatedAt = &stamp
			completeMilestone(app, domain.MilestoneValidation, now)
		case domain.StatusConsultation:
			completeMilestone(app, domain.MilestoneConsultationStart, now)
		case domain.StatusAssessment:
			completeMilestone(app, domain.MilestoneConsultationEnd, now)
		case domain.StatusApproved, domain.StatusRefused:
			stamp := now
			app.DecidedAt = &stamp
			app.Decision = status
			completeMilestone(app, domain.MilestoneDecision, now)
		case domain.StatusWithdrawn:
			app.Decision = domain.DecisionWithdrawn
		}
		message := fmt.Sprintf("Status changed from %s to %s", oldStatus, status)
		if notes != "" {
			message += ": " + notes
		}
		app.Alerts = append(app.Alerts, domain.Alert{
			ID:            uuid.New().String(),
			ApplicationID: app.ID,
			Type:          domain.AlertStatusChange,
			Priority:      domain.PriorityHigh,
			Message:       message,
			CreatedAt:     now,
		})
		app.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Application{}, err
	}
	if err := t.persist(ctx, app); err != nil {
		return app, err
	}
	t.record(ctx, "status.changed", app.ID, app.UserID, archive.Payload{
		"from": oldStatus,
		"to":   status,
	})
	return app, nil
}

// AddDocument records a submitted document's metadata.
func (t *Tracker) AddDocument(ctx context.Context, id, name, category string) (domain.Application, error) {
	if name == "" {
		return domain.Application{}, errors.New("document name is required")
	}
	now := t.now().UTC()
	app, err := t.Store.Mutate(id, func(app *domain.Application) error {
		app.Documents = append(app.Documents, domain.Document{
			ID:         uuid.New().String(),
			Name:       name,
			Category:   category,
			UploadedAt: now,
		})
		app.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Application{}, err
	}
	if err := t.persist(ctx, app); err != nil {
		return app, err
	}
	t.record(ctx, "document.added", app.ID, app.UserID, archive.Payload{"name": name})
	return app, nil
}

// CommunicationOptions are parameters for logging a communication.
type CommunicationOptions struct {
	Direction      string
	Summary        string
	ActionRequired bool
	ActionDeadline *time.Time
}

// LogCommunication appends an immutable communication entry.
func (t *Tracker) LogCommunication(ctx context.Context, id string, opts CommunicationOptions) (domain.Application, error) {
	if opts.Summary == "" {
		return domain.Application{}, errors.New("summary is required")
	}
	if opts.Direction != "in" && opts.Direction != "out" {
		return domain.Application{}, fmt.Errorf("unknown direction %q", opts.Direction)
	}
	now := t.now().UTC()
	app, err := t.Store.Mutate(id, func(app *domain.Application) error {
		app.Communications = append(app.Communications, domain.Communication{
			ID:             uuid.New().String(),
			Direction:      opts.Direction,
			Summary:        opts.Summary,
			ActionRequired: opts.ActionRequired,
			ActionDeadline: opts.ActionDeadline,
			LoggedAt:       now,
		})
		app.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Application{}, err
	}
	if err := t.persist(ctx, app); err != nil {
		return app, err
	}
	t.record(ctx, "communication.logged", app.ID, app.UserID, archive.Payload{
		"direction":       opts.Direction,
		"action_required": opts.ActionRequired,
	})
	return app, nil
}

// ResolveCommunication marks an action-required communication as dealt
// with, so the deadline scanner stops flagging it. Resolving an already
// resolved communication is a no-op.
func (t *Tracker) ResolveCommunication(ctx context.Context, id, commID string) (domain.Application, error) {
	now := t.now().UTC()
	app, err := t.Store.Mutate(id, func(app *domain.Application) error {
		for i := range app.Communications {
			if app.Communications[i].ID != commID {
				continue
			}
			if !app.Communications[i].Resolved {
				app.Communications[i].Resolved = true
				app.UpdatedAt = now
			}
			return nil
		}
		return fmt.Errorf("communication %s: %w", commID, store.ErrNotFound)
	})
	if err != nil {
		return domain.Application{}, err
	}
	if err := t.persist(ctx, app); err != nil {
		return app, err
	}
	t.record(ctx, "communication.resolved", app.ID, app.UserID, archive.Payload{
		"communication_id": commID,
	})
	return app, nil
}

// PendingAlerts returns the application's unread alerts in insertion order.
func (t *Tracker) PendingAlerts(ctx context.Context, id string) ([]domain.Alert, error) {
	app, err := t.Store.Get(id)
	if err != nil {
		return nil, err
	}
	return app.UnreadAlerts(), nil
}

// MarkAlertRead stamps an alert's read timestamp. Marking an already read
// alert is a no-op; the original timestamp stands.
func (t *Tracker) MarkAlertRead(ctx context.Context, id, alertID string) (domain.Application, error) {
	now := t.now().UTC()
	app, err := t.Store.Mutate(id, func(app *domain.Application) error {
		for i := range app.Alerts {
			if app.Alerts[i].ID != alertID {
				continue
			}
			if app.Alerts[i].ReadAt == nil {
				stamp := now
				app.Alerts[i].ReadAt = &stamp
				app.UpdatedAt = now
			}
			return nil
		}
		return fmt.Errorf("alert %s: %w", alertID, store.ErrNotFound)
	})
	if err != nil {
		return domain.Application{}, err
	}
	if err := t.persist(ctx, app); err != nil {
		return app, err
	}
	return app, nil
}

// UserApplications returns one user's applications, most recently updated
// first.
func (t *Tracker) UserApplications(ctx context.Context, userID string) ([]domain.Application, error) {
	return t.Store.ListByUser(userID), nil
}

func validStatus(status string) bool {
	for _, s := range domain.AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func completeMilestone(app *domain.Application, milestoneType string, now time.Time) {
	m := app.FindMilestone(milestoneType)
	if m == nil || m.Status == domain.MilestoneCompleted {
		return
	}
	m.Status = domain.MilestoneCompleted
	stamp := now
	m.CompletedAt = &stamp
}

// UserStats summarizes a user's portfolio.
func (t *Tracker) UserStats(ctx context.Context, userID string) (domain.Stats, error) {
	apps := t.Store.ListByUser(userID)
	stats := domain.Stats{
		UserID:   userID,
		Total:    len(apps),
		ByStatus: map[string]int{},
	}
	for _, s := range domain.AllStatuses {
		stats.ByStatus[s] = 0
	}
	var decided, approved int
	var decisionDays int
	for _, app := range apps {
		stats.ByStatus[app.Status]++
		if app.DecidedAt != nil {
			decided++
			decisionDays += dates.DaysBetween(app.SubmittedAt, *app.DecidedAt)
			if app.Decision == domain.DecisionApproved {
				approved++
			}
		}
		for _, al := range app.Alerts {
			if al.Type == domain.AlertActionRequired && al.ReadAt == nil {
				stats.PendingActions++
			}
		}
	}
	if decided > 0 {
		stats.AverageDecisionDays = float64(decisionDays) / float64(decided)
		stats.ApprovalRate = int(math.Round(100 * float64(approved) / float64(decided)))
	}
	return stats, nil
}
