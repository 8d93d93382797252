package domain

import "time"

// Status values reported by the planning authority. The tracker reflects
// whatever the authority says; it does not enforce an ordering.
const (
	StatusDraft        = "draft"
	StatusSubmitted    = "submitted"
	StatusValidated    = "validated"
	StatusConsultation = "consultation"
	StatusAssessment   = "assessment"
	StatusCommittee    = "committee"
	StatusDecision     = "decision"
	StatusApproved     = "approved"
	StatusRefused      = "refused"
	StatusWithdrawn    = "withdrawn"
	StatusAppeal       = "appeal"
)

// AllStatuses lists every valid status value, in lifecycle order.
var AllStatuses = []string{
	StatusDraft, StatusSubmitted, StatusValidated, StatusConsultation,
	StatusAssessment, StatusCommittee, StatusDecision, StatusApproved,
	StatusRefused, StatusWithdrawn, StatusAppeal,
}

// IsTerminal reports whether an application in this status will not
// progress further.
func IsTerminal(status string) bool {
	switch status {
	case StatusApproved, StatusRefused, StatusWithdrawn:
		return true
	}
	return false
}

// Decision outcomes.
const (
	DecisionApproved  = "approved"
	DecisionRefused   = "refused"
	DecisionWithdrawn = "withdrawn"
)

// Milestone types.
const (
	MilestoneSubmission          = "submission"
	MilestoneValidation          = "validation"
	MilestoneConsultationStart   = "consultation-start"
	MilestoneConsultationEnd     = "consultation-end"
	MilestoneSiteVisit           = "site-visit"
	MilestoneOfficerReport       = "officer-report"
	MilestoneCommitteeDate       = "committee-date"
	MilestoneDecision            = "decision"
	MilestoneConditionsDischarge = "conditions-discharge"
	MilestoneAppealLodged        = "appeal-lodged"
	MilestoneAppealDecision      = "appeal-decision"
)

// Milestone lifecycle states.
const (
	MilestonePending    = "pending"
	MilestoneInProgress = "in-progress"
	MilestoneCompleted  = "completed"
	MilestoneDelayed    = "delayed"
	MilestoneSkipped    = "skipped"
)

// Alert types.
const (
	AlertDeadline        = "deadline"
	AlertActionRequired  = "action-required"
	AlertStatusChange    = "status-change"
	AlertDocumentRequest = "document-request"
	AlertConsultation    = "consultation"
	AlertDecision        = "decision"
)

// Alert priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Application is the aggregate root: one tracked planning application with
// its scheduled milestones, submitted documents, logged communications and
// raised alerts.
type Application struct {
	ID          string `json:"id"`
	Reference   string `json:"reference"`
	Address     string `json:"address"`
	Postcode    string `json:"postcode,omitempty"`
	Description string `json:"description,omitempty"`
	TypeCode    string `json:"type_code"`
	UserID      string `json:"user_id"`
	Borough     string `json:"borough,omitempty"`
	Ward        string `json:"ward,omitempty"`

	Status   string `json:"status" enum:"draft,submitted,validated,consultation,assessment,committee,decision,approved,refused,withdrawn,appeal"`
	Decision string `json:"decision,omitempty" enum:"approved,refused,withdrawn"`

	SubmittedAt      time.Time  `json:"submitted_at"`
	ValidatedAt      *time.Time `json:"validated_at,omitempty"`
	TargetDecisionAt time.Time  `json:"target_decision_at"`
	DecidedAt        *time.Time `json:"decided_at,omitempty"`

	Milestones     []Milestone     `json:"milestones"`
	Documents      []Document      `json:"documents"`
	Communications []Communication `json:"communications"`
	Alerts         []Alert         `json:"alerts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Milestone is a scheduled procedural step owned by one application.
type Milestone struct {
	Type        string     `json:"type"`
	Status      string     `json:"status" enum:"pending,in-progress,completed,delayed,skipped"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Document is metadata for a submitted artifact; binary content lives
// elsewhere.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category,omitempty"`
	Accepted   bool      `json:"accepted"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Communication is a logged interaction with a caseworker or officer.
// Entries are immutable once logged.
type Communication struct {
	ID             string     `json:"id"`
	Direction      string     `json:"direction" enum:"in,out"`
	Summary        string     `json:"summary"`
	ActionRequired bool       `json:"action_required"`
	ActionDeadline *time.Time `json:"action_deadline,omitempty"`
	Resolved       bool       `json:"resolved"`
	LoggedAt       time.Time  `json:"logged_at"`
}

// Alert is an append-only notification; the only permitted mutation is
// stamping ReadAt once.
type Alert struct {
	ID            string     `json:"id"`
	ApplicationID string     `json:"application_id"`
	Type          string     `json:"type" enum:"deadline,action-required,status-change,document-request,consultation,decision"`
	Priority      string     `json:"priority" enum:"low,medium,high,urgent"`
	Message       string     `json:"message"`
	CreatedAt     time.Time  `json:"created_at"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
}

// FindMilestone returns a pointer to the milestone of the given type, or nil.
func (a *Application) FindMilestone(milestoneType string) *Milestone {
	for i := range a.Milestones {
		if a.Milestones[i].Type == milestoneType {
			return &a.Milestones[i]
		}
	}
	return nil
}

// UnreadAlerts returns alerts without a read timestamp, in insertion order.
func (a *Application) UnreadAlerts() []Alert {
	var out []Alert
	for _, al := range a.Alerts {
		if al.ReadAt == nil {
			out = append(out, al)
		}
	}
	return out
}

// HasUnreadAlert reports whether an unread alert of the given type exists.
func (a *Application) HasUnreadAlert(alertType string) bool {
	for _, al := range a.Alerts {
		if al.Type == alertType && al.ReadAt == nil {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hand out snapshots without
// sharing the owned slices.
func (a Application) Clone() Application {
	out := a
	out.Milestones = append([]Milestone(nil), a.Milestones...)
	out.Documents = append([]Document(nil), a.Documents...)
	out.Communications = append([]Communication(nil), a.Communications...)
	out.Alerts = append([]Alert(nil), a.Alerts...)
	return out
}

// Timeline is the derived progress view of one application.
type Timeline struct {
	ApplicationID     string          `json:"application_id"`
	Status            string          `json:"status"`
	TotalDays         int             `json:"total_days"`
	ElapsedDays       int             `json:"elapsed_days"`
	RemainingDays     int             `json:"remaining_days"`
	PercentComplete   int             `json:"percent_complete"`
	PredictedDecision time.Time       `json:"predicted_decision_at"`
	OnTrack           bool            `json:"on_track"`
	Confidence        int             `json:"confidence"`
	Stages            []TimelineStage `json:"stages"`
}

// TimelineStage is one entry of the fixed five-stage breakdown.
type TimelineStage struct {
	Name   string `json:"name"`
	Status string `json:"status" enum:"completed,current,upcoming"`
}

// Stats summarizes one user's application portfolio.
type Stats struct {
	UserID              string         `json:"user_id"`
	Total               int            `json:"total"`
	ByStatus            map[string]int `json:"by_status"`
	AverageDecisionDays float64        `json:"average_decision_days"`
	ApprovalRate        int            `json:"approval_rate"`
	PendingActions      int            `json:"pending_actions"`
}
