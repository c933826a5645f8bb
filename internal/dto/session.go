package dto

import "github.com/noah-isme/tutoring-api/internal/models"

// ScheduleSessionRequest asks for a new session for a student and subject.
// TutorID is re-validated against the student's assignments.
type ScheduleSessionRequest struct {
	StudentID         string `json:"student_id" validate:"required"`
	Subject           string `json:"subject" validate:"required"`
	TutorID           string `json:"tutor_id" validate:"required"`
	ClassDate         string `json:"class_date"`
	ClassTime         string `json:"class_time"`
	Reschedule        bool   `json:"is_rescheduled"`
	OriginalClassDate string `json:"original_class_date"`
}

// MarkAttendanceRequest records the outcome of a session.
type MarkAttendanceRequest struct {
	StudentID string               `json:"student_id" validate:"required"`
	Status    models.SessionStatus `json:"status" validate:"required,oneof=completed missed"`
	Summary   string               `json:"summary"`
}

// SessionListFilter narrows the sessions returned to a viewer.
type SessionListFilter struct {
	StudentID string `form:"student_id"`
	Subject   string `form:"subject"`
	Status    string `form:"status" validate:"omitempty,oneof=scheduled completed missed"`
}

// SessionView is a session rendered for one viewer's timezone.
type SessionView struct {
	models.Session
	DisplayDate string `json:"display_date"`
	DisplayTime string `json:"display_time"`
	ViewerZone  string `json:"viewer_zone"`
	IsDue       bool   `json:"is_due"`
}

// RescheduleTarget is a missed session an administrator may make up.
type RescheduleTarget struct {
	SessionID   string `json:"session_id"`
	ClassDate   string `json:"class_date"`
	ClassTime   string `json:"class_time"`
	DisplayTime string `json:"display_time"`
	TutorName   string `json:"tutor_name"`
	Summary     string `json:"summary,omitempty"`
}
