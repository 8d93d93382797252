package archive

import (
	"context"
	"testing"
	"time"

	"permitline/internal/domain"
)

func openTestDB(t *testing.T) *Snapshots {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Snapshots{DB: db}
}

func TestOpenBringsSchemaCurrent(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != 1 {
		t.Fatalf("user_version = %d, want 1", version)
	}
	db.Close()

	// Reopening an up-to-date archive applies nothing and keeps data.
	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != 1 {
		t.Fatalf("user_version after reopen = %d, want 1", version)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	snaps := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	app := domain.Application{
		ID:               "app-1",
		Reference:        "24/00001/HSE",
		UserID:           "u1",
		Status:           domain.StatusSubmitted,
		SubmittedAt:      now,
		TargetDecisionAt: now.AddDate(0, 0, 56),
		Milestones: []domain.Milestone{
			{Type: domain.MilestoneValidation, Status: domain.MilestonePending, ScheduledAt: now.AddDate(0, 0, 5)},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := snaps.Save(ctx, app); err != nil {
		t.Fatalf("save: %v", err)
	}

	app.Status = domain.StatusValidated
	app.UpdatedAt = now.AddDate(0, 0, 3)
	if err := snaps.Save(ctx, app); err != nil {
		t.Fatalf("save again: %v", err)
	}

	loaded, err := snaps.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d applications, want 1", len(loaded))
	}
	got := loaded[0]
	if got.Status != domain.StatusValidated {
		t.Fatalf("status = %s, want validated", got.Status)
	}
	if got.Reference != app.Reference || len(got.Milestones) != 1 {
		t.Fatalf("snapshot fields lost: %+v", got)
	}
	if !got.TargetDecisionAt.Equal(app.TargetDecisionAt) {
		t.Fatalf("target = %v, want %v", got.TargetDecisionAt, app.TargetDecisionAt)
	}
}

func TestJournalAppendTail(t *testing.T) {
	snaps := openTestDB(t)
	ctx := context.Background()
	j := Journal{DB: snaps.DB, Now: func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }}

	for i, typ := range []string{"application.created", "status.changed", "alert.raised"} {
		if err := j.Append(ctx, typ, "app-1", "u1", Payload{"n": i}); err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}
	entries, err := j.Tail(ctx, 2)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("tail returned %d entries, want 2", len(entries))
	}
	if entries[0].Type != "alert.raised" || entries[1].Type != "status.changed" {
		t.Fatalf("unexpected tail order: %s, %s", entries[0].Type, entries[1].Type)
	}
	if entries[0].ApplicationID != "app-1" || entries[0].TS == "" {
		t.Fatalf("entry fields missing: %+v", entries[0])
	}
}
