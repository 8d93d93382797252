package tracker

import (
	"context"
	"math"

	"permitline/internal/dates"
	"permitline/internal/domain"
)

// Timeline derives the progress view of one application: elapsed and
// remaining day counts, completion percentage, a predicted decision date,
// and a confidence score.
func (t *Tracker) Timeline(ctx context.Context, id string) (domain.Timeline, error) {
	app, err := t.Store.Get(id)
	if err != nil {
		return domain.Timeline{}, err
	}
	now := t.now().UTC()

	total := dates.DaysBetween(app.SubmittedAt, app.TargetDecisionAt)
	if total < 1 {
		total = 1
	}
	elapsed := dates.DaysBetween(app.SubmittedAt, now)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := total - elapsed
	if remaining < 0 {
		remaining = 0
	}
	percent := int(math.Round(100 * float64(elapsed) / float64(total)))
	if percent > 100 {
		percent = 100
	}

	predicted := app.TargetDecisionAt
	if domain.IsTerminal(app.Status) && app.DecidedAt != nil {
		predicted = *app.DecidedAt
	} else if delay, ok := meanMilestoneDelay(app.Milestones); ok {
		predicted = dates.AddDays(app.TargetDecisionAt, delay)
	}

	completed := 0
	for _, m := range app.Milestones {
		if m.Status == domain.MilestoneCompleted {
			completed++
		}
	}

	return domain.Timeline{
		ApplicationID:     app.ID,
		Status:            app.Status,
		TotalDays:         total,
		ElapsedDays:       elapsed,
		RemainingDays:     remaining,
		PercentComplete:   percent,
		PredictedDecision: predicted,
		OnTrack:           !predicted.After(app.TargetDecisionAt),
		Confidence:        confidence(completed, len(app.Milestones), elapsed),
		Stages:            stages(app.Status),
	}, nil
}

// meanMilestoneDelay averages the signed slip, in days, of completed
// milestones against their scheduled dates. Rounded to the nearest day.
func meanMilestoneDelay(milestones []domain.Milestone) (int, bool) {
	var sum, n int
	for _, m := range milestones {
		if m.Status != domain.MilestoneCompleted || m.CompletedAt == nil {
			continue
		}
		sum += dates.DaysBetween(m.ScheduledAt, *m.CompletedAt)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return int(math.Round(float64(sum) / float64(n))), true
}

// confidence scores how much to trust the prediction: base 20, up to 50
// for milestone completion, plus 30 when progress keeps pace with the
// elapsed time expectation (15 when behind). Capped at 95; never certain.
func confidence(completed, total, elapsedDays int) int {
	if total == 0 {
		total = 1
	}
	score := 20 + int(math.Round(50*float64(completed)/float64(total)))
	if completed >= expectedCompletions(elapsedDays) {
		score += 30
	} else {
		score += 15
	}
	if score > 95 {
		score = 95
	}
	return score
}

// expectedCompletions is the rough number of milestones a healthy
// application has completed after the given number of elapsed days.
func expectedCompletions(elapsedDays int) int {
	switch {
	case elapsedDays < 5:
		return 1
	case elapsedDays < 10:
		return 2
	case elapsedDays < 30:
		return 4
	case elapsedDays < 45:
		return 5
	default:
		return 6
	}
}

var stageNames = []string{"submission", "validation", "consultation", "assessment", "decision"}

// stages projects the status onto the fixed five-stage public breakdown.
func stages(status string) []domain.TimelineStage {
	current := stageIndex(status)
	out := make([]domain.TimelineStage, len(stageNames))
	for i, name := range stageNames {
		st := "upcoming"
		switch {
		case current < 0 || i < current:
			st = "completed"
		case i == current:
			st = "current"
		}
		out[i] = domain.TimelineStage{Name: name, Status: st}
	}
	return out
}

// stageIndex maps a status to its stage; -1 means every stage is behind
// the application (terminal states).
func stageIndex(status string) int {
	switch status {
	case domain.StatusDraft, domain.StatusSubmitted:
		return 0
	case domain.StatusValidated:
		return 1
	case domain.StatusConsultation:
		return 2
	case domain.StatusAssessment, domain.StatusCommittee:
		return 3
	case domain.StatusDecision, domain.StatusAppeal:
		return 4
	default:
		return -1
	}
}
