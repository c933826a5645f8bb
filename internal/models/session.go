package models

import (
	"strings"
	"time"

	"github.com/noah-isme/tutoring-api/pkg/civiltime"
)

// SessionStatus represents the attendance lifecycle of a lesson session.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusMissed    SessionStatus = "missed"

	// sessionStatusPending is a legacy spelling of scheduled still present in stored rows.
	sessionStatusPending SessionStatus = "pending"
)

// NormalizeSessionStatus folds legacy aliases into the canonical status.
func NormalizeSessionStatus(status SessionStatus) SessionStatus {
	s := SessionStatus(strings.ToLower(strings.TrimSpace(string(status))))
	switch s {
	case "", sessionStatusPending:
		return SessionStatusScheduled
	default:
		return s
	}
}

// AwaitingAttendanceStatuses lists stored values treated as scheduled.
func AwaitingAttendanceStatuses() []string {
	return []string{string(SessionStatusScheduled), string(sessionStatusPending)}
}

// Terminal reports whether no transition is defined out of the status.
func (s SessionStatus) Terminal() bool {
	switch NormalizeSessionStatus(s) {
	case SessionStatusCompleted, SessionStatusMissed:
		return true
	default:
		return false
	}
}

// ValidAttendanceOutcome reports whether the status can be recorded by a tutor.
func (s SessionStatus) ValidAttendanceOutcome() bool {
	return s == SessionStatusCompleted || s == SessionStatusMissed
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to SessionStatus) bool {
	return NormalizeSessionStatus(from) == SessionStatusScheduled && to.ValidAttendanceOutcome()
}

// Session is a single scheduled lesson between one tutor and one student.
// Names are snapshots taken at scheduling time and are not rewritten on rename.
type Session struct {
	ID                string        `db:"id" json:"id"`
	StudentID         string        `db:"student_id" json:"student_id"`
	StudentName       string        `db:"student_name" json:"student_name"`
	TutorID           string        `db:"tutor_id" json:"tutor_id"`
	TutorName         string        `db:"tutor_name" json:"tutor_name"`
	Subject           string        `db:"subject" json:"subject"`
	ClassDate         string        `db:"class_date" json:"class_date"`
	ClassTime         string        `db:"class_time" json:"class_time"`
	Status            SessionStatus `db:"status" json:"status"`
	IsRescheduled     bool          `db:"is_rescheduled" json:"is_rescheduled"`
	OriginalClassDate string        `db:"original_class_date" json:"original_class_date"`
	Summary           string        `db:"summary" json:"summary"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// Normalize applies read-time migrations to a stored row.
func (s *Session) Normalize() {
	if s == nil {
		return
	}
	s.Status = NormalizeSessionStatus(s.Status)
	if !s.IsRescheduled {
		s.OriginalClassDate = ""
	}
}

// AwaitingAttendance reports whether the session is still scheduled.
func (s *Session) AwaitingAttendance() bool {
	return s != nil && NormalizeSessionStatus(s.Status) == SessionStatusScheduled
}

// IsDue reports whether attendance should be recorded: scheduled and already started.
func (s *Session) IsDue(now time.Time) bool {
	if s == nil {
		return false
	}
	return civiltime.IsDue(s.ClassDate, s.ClassTime, s.AwaitingAttendance(), now)
}

// StartsAt returns the reference instant, or the zero time when the stored values are malformed.
func (s *Session) StartsAt() time.Time {
	instant, err := civiltime.ToReferenceInstant(s.ClassDate, s.ClassTime)
	if err != nil {
		return time.Time{}
	}
	return instant
}

// SessionFilter narrows session listings. Empty fields are ignored.
type SessionFilter struct {
	StudentID string
	TutorID   string
	Subject   string
	ClassDate string
	Statuses  []string
}

// AttendanceUpdate carries the terminal status written by a tutor.
type AttendanceUpdate struct {
	SessionID string
	StudentID string
	Status    SessionStatus
	Summary   string
	UpdatedAt time.Time
}
