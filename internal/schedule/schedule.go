// Package schedule builds the expected milestone skeleton for a newly
// submitted application. Scheduling is pure: the same submission date and
// statutory period always produce the same milestones.
package schedule

import (
	"time"

	"permitline/internal/dates"
	"permitline/internal/domain"
)

// Offsets in days from submission for the standard procedural skeleton.
// The consultation window runs 21 days from the end of validation.
const (
	offsetValidation        = 5
	offsetConsultationStart = 5
	offsetConsultationEnd   = 26
	offsetSiteVisit         = 19
	offsetOfficerReport     = 40
)

// Schedule returns the milestone skeleton for an application submitted at
// the given time with the given statutory determination period. The
// submission milestone is already completed; everything else is pending.
// The decision milestone lands on the target decision date.
func Schedule(submitted time.Time, periodDays int) []domain.Milestone {
	completed := submitted
	return []domain.Milestone{
		{
			Type:        domain.MilestoneSubmission,
			Status:      domain.MilestoneCompleted,
			ScheduledAt: submitted,
			CompletedAt: &completed,
		},
		pending(domain.MilestoneValidation, submitted, offsetValidation),
		pending(domain.MilestoneConsultationStart, submitted, offsetConsultationStart),
		pending(domain.MilestoneConsultationEnd, submitted, offsetConsultationEnd),
		pending(domain.MilestoneSiteVisit, submitted, offsetSiteVisit),
		pending(domain.MilestoneOfficerReport, submitted, offsetOfficerReport),
		pending(domain.MilestoneDecision, submitted, periodDays),
	}
}

// TargetDecision returns the statutory decision deadline for a submission.
func TargetDecision(submitted time.Time, periodDays int) time.Time {
	return dates.AddDays(submitted, periodDays)
}

func pending(milestoneType string, submitted time.Time, offsetDays int) domain.Milestone {
	return domain.Milestone{
		Type:        milestoneType,
		Status:      domain.MilestonePending,
		ScheduledAt: dates.AddDays(submitted, offsetDays),
	}
}
