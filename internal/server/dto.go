package server

import (
	"time"

	"permitline/internal/domain"
)

// Request payloads

type CreateApplicationRequest struct {
	Reference   string  `json:"reference"`
	Address     string  `json:"address,omitempty"`
	Postcode    string  `json:"postcode,omitempty"`
	Description *string `json:"description,omitempty"`
	TypeCode    string  `json:"type_code,omitempty"`
	UserID      string  `json:"user_id,omitempty"`
	Borough     string  `json:"borough,omitempty"`
	Ward        string  `json:"ward,omitempty"`
	SubmittedAt *string `json:"submitted_at,omitempty" format:"date-time"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" enum:"draft,submitted,validated,consultation,assessment,committee,decision,approved,refused,withdrawn,appeal"`
	Notes  string `json:"notes,omitempty"`
}

type AddDocumentRequest struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

type LogCommunicationRequest struct {
	Direction      string  `json:"direction" enum:"in,out"`
	Summary        string  `json:"summary"`
	ActionRequired bool    `json:"action_required,omitempty"`
	ActionDeadline *string `json:"action_deadline,omitempty" format:"date-time"`
}

// Response payloads

type MilestoneResponse struct {
	Type        string  `json:"type"`
	Status      string  `json:"status" enum:"pending,in-progress,completed,delayed,skipped"`
	ScheduledAt string  `json:"scheduled_at" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
}

type DocumentResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category,omitempty"`
	Accepted   bool   `json:"accepted"`
	UploadedAt string `json:"uploaded_at" format:"date-time"`
}

type CommunicationResponse struct {
	ID             string  `json:"id"`
	Direction      string  `json:"direction" enum:"in,out"`
	Summary        string  `json:"summary"`
	ActionRequired bool    `json:"action_required"`
	ActionDeadline *string `json:"action_deadline,omitempty" format:"date-time"`
	Resolved       bool    `json:"resolved"`
	LoggedAt       string  `json:"logged_at" format:"date-time"`
}

type AlertResponse struct {
	ID            string  `json:"id"`
	ApplicationID string  `json:"application_id"`
	Type          string  `json:"type"`
	Priority      string  `json:"priority" enum:"low,medium,high,urgent"`
	Message       string  `json:"message"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	ReadAt        *string `json:"read_at,omitempty" format:"date-time"`
}

type ApplicationResponse struct {
	ID               string                  `json:"id"`
	Reference        string                  `json:"reference"`
	Address          string                  `json:"address,omitempty"`
	Postcode         string                  `json:"postcode,omitempty"`
	Description      string                  `json:"description,omitempty"`
	TypeCode         string                  `json:"type_code"`
	UserID           string                  `json:"user_id"`
	Borough          string                  `json:"borough,omitempty"`
	Ward             string                  `json:"ward,omitempty"`
	Status           string                  `json:"status"`
	Decision         string                  `json:"decision,omitempty"`
	SubmittedAt      string                  `json:"submitted_at" format:"date-time"`
	ValidatedAt      *string                 `json:"validated_at,omitempty" format:"date-time"`
	TargetDecisionAt string                  `json:"target_decision_at" format:"date-time"`
	DecidedAt        *string                 `json:"decided_at,omitempty" format:"date-time"`
	Milestones       []MilestoneResponse     `json:"milestones"`
	Documents        []DocumentResponse      `json:"documents"`
	Communications   []CommunicationResponse `json:"communications"`
	Alerts           []AlertResponse         `json:"alerts"`
	CreatedAt        string                  `json:"created_at" format:"date-time"`
	UpdatedAt        string                  `json:"updated_at" format:"date-time"`
}

type TimelineStageResponse struct {
	Name   string `json:"name"`
	Status string `json:"status" enum:"completed,current,upcoming"`
}

type TimelineResponse struct {
	ApplicationID     string                  `json:"application_id"`
	Status            string                  `json:"status"`
	TotalDays         int                     `json:"total_days"`
	ElapsedDays       int                     `json:"elapsed_days"`
	RemainingDays     int                     `json:"remaining_days"`
	PercentComplete   int                     `json:"percent_complete"`
	PredictedDecision string                  `json:"predicted_decision_at" format:"date-time"`
	OnTrack           bool                    `json:"on_track"`
	Confidence        int                     `json:"confidence"`
	Stages            []TimelineStageResponse `json:"stages"`
}

type StatsResponse struct {
	UserID              string         `json:"user_id"`
	Total               int            `json:"total"`
	ByStatus            map[string]int `json:"by_status"`
	AverageDecisionDays float64        `json:"average_decision_days"`
	ApprovalRate        int            `json:"approval_rate"`
	PendingActions      int            `json:"pending_actions"`
}

// Conversion helpers

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func applicationResponse(app domain.Application) ApplicationResponse {
	out := ApplicationResponse{
		ID:               app.ID,
		Reference:        app.Reference,
		Address:          app.Address,
		Postcode:         app.Postcode,
		Description:      app.Description,
		TypeCode:         app.TypeCode,
		UserID:           app.UserID,
		Borough:          app.Borough,
		Ward:             app.Ward,
		Status:           app.Status,
		Decision:         app.Decision,
		SubmittedAt:      formatTime(app.SubmittedAt),
		ValidatedAt:      formatTimePtr(app.ValidatedAt),
		TargetDecisionAt: formatTime(app.TargetDecisionAt),
		DecidedAt:        formatTimePtr(app.DecidedAt),
		Milestones:       []MilestoneResponse{},
		Documents:        []DocumentResponse{},
		Communications:   []CommunicationResponse{},
		Alerts:           []AlertResponse{},
		CreatedAt:        formatTime(app.CreatedAt),
		UpdatedAt:        formatTime(app.UpdatedAt),
	}
	for _, m := range app.Milestones {
		out.Milestones = append(out.Milestones, MilestoneResponse{
			Type:        m.Type,
			Status:      m.Status,
			ScheduledAt: formatTime(m.ScheduledAt),
			CompletedAt: formatTimePtr(m.CompletedAt),
		})
	}
	for _, d := range app.Documents {
		out.Documents = append(out.Documents, DocumentResponse{
			ID:         d.ID,
			Name:       d.Name,
			Category:   d.Category,
			Accepted:   d.Accepted,
			UploadedAt: formatTime(d.UploadedAt),
		})
	}
	for _, c := range app.Communications {
		out.Communications = append(out.Communications, CommunicationResponse{
			ID:             c.ID,
			Direction:      c.Direction,
			Summary:        c.Summary,
			ActionRequired: c.ActionRequired,
			ActionDeadline: formatTimePtr(c.ActionDeadline),
			Resolved:       c.Resolved,
			LoggedAt:       formatTime(c.LoggedAt),
		})
	}
	for _, al := range app.Alerts {
		out.Alerts = append(out.Alerts, alertResponse(al))
	}
	return out
}

func alertResponse(al domain.Alert) AlertResponse {
	return AlertResponse{
		ID:            al.ID,
		ApplicationID: al.ApplicationID,
		Type:          al.Type,
		Priority:      al.Priority,
		Message:       al.Message,
		CreatedAt:     formatTime(al.CreatedAt),
		ReadAt:        formatTimePtr(al.ReadAt),
	}
}

func mapAlerts(alerts []domain.Alert) []AlertResponse {
	out := []AlertResponse{}
	for _, al := range alerts {
		out = append(out, alertResponse(al))
	}
	return out
}

func mapApplications(apps []domain.Application) []ApplicationResponse {
	out := []ApplicationResponse{}
	for _, app := range apps {
		out = append(out, applicationResponse(app))
	}
	return out
}

func timelineResponse(tl domain.Timeline) TimelineResponse {
	stages := []TimelineStageResponse{}
	for _, st := range tl.Stages {
		stages = append(stages, TimelineStageResponse(st))
	}
	return TimelineResponse{
		ApplicationID:     tl.ApplicationID,
		Status:            tl.Status,
		TotalDays:         tl.TotalDays,
		ElapsedDays:       tl.ElapsedDays,
		RemainingDays:     tl.RemainingDays,
		PercentComplete:   tl.PercentComplete,
		PredictedDecision: formatTime(tl.PredictedDecision),
		OnTrack:           tl.OnTrack,
		Confidence:        tl.Confidence,
		Stages:            stages,
	}
}

func statsResponse(s domain.Stats) StatsResponse {
	return StatsResponse(s)
}
