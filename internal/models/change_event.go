package models

import (
	"fmt"
	"time"
)

// ChangeKind identifies which document family a change touched.
type ChangeKind string

const (
	ChangeKindSession  ChangeKind = "session"
	ChangeKindProgress ChangeKind = "progress"
)

// ChangeEvent is published after every committed write so live viewers can reload.
type ChangeEvent struct {
	Kind       ChangeKind `json:"kind"`
	Action     string     `json:"action"`
	SessionID  string     `json:"session_id,omitempty"`
	StudentID  string     `json:"student_id,omitempty"`
	TutorID    string     `json:"tutor_id,omitempty"`
	Subject    string     `json:"subject,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// StudentSessionsChannel is the feed of session changes for one student.
func StudentSessionsChannel(studentID string) string {
	return fmt.Sprintf("sessions:student:%s", studentID)
}

// TutorSessionsChannel is the feed of session changes for one tutor.
func TutorSessionsChannel(tutorID string) string {
	return fmt.Sprintf("sessions:tutor:%s", tutorID)
}

// AllSessionsChannel carries every session change, for administrators.
const AllSessionsChannel = "sessions:all"

// ProgressChannel is the feed of ledger changes for one student and subject.
func ProgressChannel(studentID, subject string) string {
	return fmt.Sprintf("progress:%s:%s", studentID, subject)
}

// Channels returns every channel the event must be published on.
func (e ChangeEvent) Channels() []string {
	switch e.Kind {
	case ChangeKindSession:
		channels := []string{AllSessionsChannel}
		if e.StudentID != "" {
			channels = append(channels, StudentSessionsChannel(e.StudentID))
		}
		if e.TutorID != "" {
			channels = append(channels, TutorSessionsChannel(e.TutorID))
		}
		return channels
	case ChangeKindProgress:
		return []string{ProgressChannel(e.StudentID, e.Subject)}
	default:
		return nil
	}
}
