package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"permitline/internal/config"
	"permitline/internal/domain"
	"permitline/internal/store"
)

var day1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr := New(config.Default())
	tr.Now = func() time.Time { return day1 }
	return tr
}

func mustCreate(t *testing.T, tr *Tracker, userID string) domain.Application {
	t.Helper()
	app, err := tr.Create(context.Background(), CreateOptions{
		Reference: "24/00001/HSE",
		Address:   "1 High Street",
		TypeCode:  "householder",
		UserID:    userID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return app
}

func TestCreateSchedulesSkeleton(t *testing.T) {
	tr := newTestTracker(t)
	app := mustCreate(t, tr, "u1")

	if app.Status != domain.StatusSubmitted {
		t.Fatalf("status = %s, want submitted", app.Status)
	}
	if len(app.Milestones) != 7 {
		t.Fatalf("milestones = %d, want 7", len(app.Milestones))
	}
	wantTarget := time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC)
	if !app.TargetDecisionAt.Equal(wantTarget) {
		t.Fatalf("target = %v, want %v", app.TargetDecisionAt, wantTarget)
	}
	sub := app.FindMilestone(domain.MilestoneSubmission)
	if sub == nil || sub.Status != domain.MilestoneCompleted {
		t.Fatal("submission milestone should be completed at creation")
	}
	if app.ID == "" || !app.UpdatedAt.Equal(app.CreatedAt) {
		t.Fatalf("identity fields wrong: id=%q created=%v updated=%v", app.ID, app.CreatedAt, app.UpdatedAt)
	}

	got, err := tr.Get(context.Background(), app.ID)
	if err != nil || got.Reference != app.Reference {
		t.Fatalf("get after create: %v %+v", err, got)
	}
}

func TestCreateRequiresReferenceAndUser(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.Create(context.Background(), CreateOptions{UserID: "u1"}); err == nil {
		t.Fatal("expected error for missing reference")
	}
	if _, err := tr.Create(context.Background(), CreateOptions{Reference: "r"}); err == nil {
		t.Fatal("expected error for missing user")
	}
}

func TestUpdateStatusSideEffects(t *testing.T) {
	tr := newTestTracker(t)
	app := mustCreate(t, tr, "u1")
	ctx := context.Background()

	tr.Now = func() time.Time { return day1.AddDate(0, 0, 6) }
	got, err := tr.UpdateStatus(ctx, app.ID, domain.StatusValidated, "all documents in order")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.ValidatedAt == nil || !got.ValidatedAt.Equal(day1.AddDate(0, 0, 6)) {
		t.Fatalf("ValidatedAt = %v", got.ValidatedAt)
	}
	ms := got.FindMilestone(domain.MilestoneValidation)
	if ms == nil || ms.Status != domain.MilestoneCompleted || ms.CompletedAt == nil {
		t.Fatalf("validation milestone not completed: %+v", ms)
	}
	if len(got.Alerts) != 1 || got.Alerts[0].Type != domain.AlertStatusChange || got.Alerts[0].Priority != domain.PriorityHigh {
		t.Fatalf("expected one high status-change alert, got %+v", got.Alerts)
	}

	got, err = tr.UpdateStatus(ctx, app.ID, domain.StatusConsultation, "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if m := got.FindMilestone(domain.MilestoneConsultationStart); m.Status != domain.MilestoneCompleted {
		t.Fatal("consultation-start milestone not completed")
	}

	got, err = tr.UpdateStatus(ctx, app.ID, domain.StatusAssessment, "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if m := got.FindMilestone(domain.MilestoneConsultationEnd); m.Status != domain.MilestoneCompleted {
		t.Fatal("consultation-end milestone not completed")
	}

	tr.Now = func() time.Time { return day1.AddDate(0, 0, 50) }
	got, err = tr.UpdateStatus(ctx, app.ID, domain.StatusApproved, "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DecidedAt == nil || got.Decision != domain.DecisionApproved {
		t.Fatalf("decision fields not stamped: %+v", got)
	}
	if m := got.FindMilestone(domain.MilestoneDecision); m.Status != domain.MilestoneCompleted {
		t.Fatal("decision milestone not completed")
	}
	if len(got.Alerts) != 4 {
		t.Fatalf("alerts = %d, want 4", len(got.Alerts))
	}
}

func TestUpdateStatusLenient(t *testing.T) {
	tr := newTestTracker(t)
	app := mustCreate(t, tr, "u1")
	ctx := context.Background()

	// Terminal to active is accepted; the authority is the source of truth.
	if _, err := tr.UpdateStatus(ctx, app.ID, domain.StatusRefused, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := tr.UpdateStatus(ctx, app.ID, domain.StatusAssessment, "decision overturned")
	if err != nil {
		t.Fatalf("backwards transition rejected: %v", err)
	}
	if got.Status != domain.StatusAssessment {
		t.Fatalf("status = %s", got.Status)
	}

	// Same-status update still raises an alert.
	before := len(got.Alerts)
	got, err = tr.UpdateStatus(ctx, app.ID, domain.StatusAssessment, "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(got.Alerts) != before+1 {
		t.Fatal("no-op status update should still raise an alert")
	}

	if _, err := tr.UpdateStatus(ctx, app.ID, "bogus", ""); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if _, err := tr.UpdateStatus(ctx, "missing", domain.StatusValidated, ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateStatusReopenClearsDecision(t *testing.T) {
	tr := newTestTracker(t)
	app := mustCreate(t, tr, "u1")
	ctx := context.Background()

	tr.Now = func() time.Time { return day1.AddDate(0, 0, 30) }
	if _, err := tr.UpdateStatus(ctx, app.ID, domain.StatusRefused, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := tr.UpdateStatus(ctx, app.ID, domain.StatusAssessment, "decision overturned")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DecidedAt != nil || got.Decision != "" {
		t.Fatalf("re-opened application kept decision state: DecidedAt=%v Decision=%q", got.DecidedAt, got.Decision)
	}

	// A re-opened application no longer counts as decided.
	stats, err := tr.UserStats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.AverageDecisionDays != 0 || stats.ApprovalRate != 0 {
		t.Fatalf("stats still count the withdrawn decision: %+v", stats)
	}

	// Approved then withdrawn: outcome is withdrawn, no decision date.
	if _, err := tr.UpdateStatus(ctx, app.ID, domain.StatusApproved, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = tr.UpdateStatus(ctx, app.ID, domain.StatusWithdrawn, "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DecidedAt != nil || got.Decision != domain.DecisionWithdrawn {
		t.Fatalf("withdrawn state wrong: DecidedAt=%v Decision=%q", got.DecidedAt, got.Decision)
	}
}

func TestDocumentsAndCommunications(t *testing.T) {
	tr := newTestTracker(t)
	app := mustCreate(t, tr, "u1")
	ctx := context.Background()

	got, err := tr.AddDocument(ctx, app.ID, "site-plan.pdf", "drawings")
	if err != nil {
		t.Fatalf("add document: %v", err)
	}
	if len(got.Documents) != 1 || got.Documents[0].Name != "site-plan.pdf" {
		t.Fatalf("documents = %+v", got.Documents)
	}

	deadline := day1.AddDate(0, 0, 14)
	got, err = tr.LogCommunication(ctx, app.ID, CommunicationOptions{
		Direction:      "in",
		Summary:        "Officer requested revised elevations",
		ActionRequired: true,
		ActionDeadline: &deadline,
	})
	if err != nil {
		t.Fatalf("log communication: %v", err)
	}
	if len(got.Communications) != 1 || !got.Communications[0].ActionRequired {
		t.Fatalf("communications = %+v", got.Communications)
	}

	if _, err := tr.LogCommunication(ctx, app.ID, CommunicationOptions{Direction: "sideways", Summary: "x"}); err == nil {
		t.Fatal("expected error for bad direction")
	}
}

func TestTimelineMidFlight(t *testing.T) {
	tr := newTestTracker(t)
	app := mustCreate(t, tr, "u1")

	tr.Now = func() time.Time { return day1.AddDate(0, 0, 14) }
	tl, err := tr.Timeline(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if tl.TotalDays != 56 || tl.ElapsedDays != 14 || tl.RemainingDays != 42 {
		t.Fatalf("days = %d/%d/%d, want 56/14/42", tl.TotalDays, tl.ElapsedDays, tl.RemainingDays)
	}
	if tl.PercentComplete != 25 {
		t.Fatalf("percent = %d, want 25", tl.PercentComplete)
	}
	// Only the submission milestone is complete, on schedule, so the
	// prediction sits on the target.
	if !tl.PredictedDecision.Equal(app.TargetDecisionAt) || !tl.OnTrack {
		t.Fatalf("predicted = %v onTrack = %v", tl.PredictedDecision, tl.OnTrack)
	}
	// 1 of 7 complete after 14 days is behind the expected pace of 4.
	if tl.Confidence != 42 {
		t.Fatalf("confidence = %d, want 42", tl.Confidence)
	}
	if len(tl.Stages) != 5 || tl.Stages[0].Status != "current" || tl.Stages[1].Status != "upcoming" {
		t.Fatalf("stages = %+v", tl.Stages)
	}
}

func TestTimelineDelayShiftsPrediction(t *testing.T) {
	tr := newTestTracker(t)
	app := mustCreate(t, tr, "u1")
	ctx := context.Background()

	// Validation scheduled for day 5, completed on day 19: slip of 14
	// days, averaged with the on-time submission gives +7.
	tr.Now = func() time.Time { return day1.AddDate(0, 0, 19) }
	if _, err := tr.UpdateStatus(ctx, app.ID, domain.StatusValidated, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	tl, err := tr.Timeline(ctx, app.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	want := app.TargetDecisionAt.AddDate(0, 0, 7)
	if !tl.PredictedDecision.Equal(want) {
		t.Fatalf("predicted = %v, want %v", tl.PredictedDecision, want)
	}
	if tl.OnTrack {
		t.Fatal("delayed application should not be on track")
	}
}

func TestTimelineDecided(t *testing.T) {
	tr := newTestTracker(t)
	app := mustCreate(t, tr, "u1")
	ctx := context.Background()

	decided := day1.AddDate(0, 0, 40)
	tr.Now = func() time.Time { return decided }
	if _, err := tr.UpdateStatus(ctx, app.ID, domain.StatusApproved, ""); err != nil {
		t.Fatalf("update: %v", err)
	}

	tr.Now = func() time.Time { return day1.AddDate(0, 0, 200) }
	tl, err := tr.Timeline(ctx, app.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if !tl.PredictedDecision.Equal(decided) {
		t.Fatalf("predicted = %v, want actual decision %v", tl.PredictedDecision, decided)
	}
	if tl.PercentComplete != 100 || tl.RemainingDays != 0 {
		t.Fatalf("percent = %d remaining = %d", tl.PercentComplete, tl.RemainingDays)
	}
	if !tl.OnTrack {
		t.Fatal("decided before target should be on track")
	}
	for _, st := range tl.Stages {
		if st.Status != "completed" {
			t.Fatalf("stage %s = %s, want completed", st.Name, st.Status)
		}
	}
}

func TestMarkAlertRead(t *testing.T) {
	tr := newTestTracker(t)
	app := mustCreate(t, tr, "u1")
	ctx := context.Background()

	got, err := tr.UpdateStatus(ctx, app.ID, domain.StatusValidated, "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	alertID := got.Alerts[0].ID

	pending, err := tr.PendingAlerts(ctx, app.ID)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, %v", pending, err)
	}

	got, err = tr.MarkAlertRead(ctx, app.ID, alertID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	first := got.Alerts[0].ReadAt
	if first == nil {
		t.Fatal("ReadAt not stamped")
	}

	// A second mark is a no-op; the original timestamp stands.
	tr.Now = func() time.Time { return day1.AddDate(0, 0, 9) }
	got, err = tr.MarkAlertRead(ctx, app.ID, alertID)
	if err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if !got.Alerts[0].ReadAt.Equal(*first) {
		t.Fatal("ReadAt changed on repeat mark")
	}

	if _, err := tr.MarkAlertRead(ctx, app.ID, "no-such-alert"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	pending, err = tr.PendingAlerts(ctx, app.ID)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending after read = %v, %v", pending, err)
	}
}

func TestUserApplicationsOrder(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	first := mustCreate(t, tr, "u1")
	second := mustCreate(t, tr, "u1")
	mustCreate(t, tr, "u2")

	tr.Now = func() time.Time { return day1.AddDate(0, 0, 2) }
	if _, err := tr.UpdateStatus(ctx, first.ID, domain.StatusValidated, ""); err != nil {
		t.Fatalf("update: %v", err)
	}

	apps, err := tr.UserApplications(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("len = %d, want 2", len(apps))
	}
	if apps[0].ID != first.ID || apps[1].ID != second.ID {
		t.Fatal("expected most recently updated first")
	}
}

func TestUserStats(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	a := mustCreate(t, tr, "u1")
	b := mustCreate(t, tr, "u1")
	c := mustCreate(t, tr, "u1")

	tr.Now = func() time.Time { return day1.AddDate(0, 0, 50) }
	if _, err := tr.UpdateStatus(ctx, a.ID, domain.StatusApproved, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	tr.Now = func() time.Time { return day1.AddDate(0, 0, 30) }
	if _, err := tr.UpdateStatus(ctx, b.ID, domain.StatusRefused, ""); err != nil {
		t.Fatalf("update: %v", err)
	}

	deadline := day1.AddDate(0, 0, 1)
	if _, err := tr.LogCommunication(ctx, c.ID, CommunicationOptions{
		Direction: "in", Summary: "send revised plans",
		ActionRequired: true, ActionDeadline: &deadline,
	}); err != nil {
		t.Fatalf("log: %v", err)
	}
	alerts, err := tr.CheckDeadlines(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := tr.RecordAlerts(ctx, alerts); err != nil {
		t.Fatalf("record: %v", err)
	}

	stats, err := tr.UserStats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("total = %d, want 3", stats.Total)
	}
	if stats.ByStatus[domain.StatusApproved] != 1 || stats.ByStatus[domain.StatusRefused] != 1 || stats.ByStatus[domain.StatusSubmitted] != 1 {
		t.Fatalf("by status = %v", stats.ByStatus)
	}
	if stats.ByStatus[domain.StatusDraft] != 0 {
		t.Fatal("every status should be present in the map")
	}
	if stats.AverageDecisionDays != 40 {
		t.Fatalf("avg decision days = %v, want 40", stats.AverageDecisionDays)
	}
	if stats.ApprovalRate != 50 {
		t.Fatalf("approval rate = %d, want 50", stats.ApprovalRate)
	}
	if stats.PendingActions != 1 {
		t.Fatalf("pending actions = %d, want 1", stats.PendingActions)
	}

	empty, err := tr.UserStats(ctx, "nobody")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if empty.Total != 0 || empty.AverageDecisionDays != 0 || empty.ApprovalRate != 0 {
		t.Fatalf("empty stats = %+v", empty)
	}
}
