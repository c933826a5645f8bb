package dto

import "github.com/noah-isme/tutoring-api/internal/models"

// AppendChapterRequest records a completed chapter.
type AppendChapterRequest struct {
	ChapterNumber string `json:"chapter_number"`
	ChapterName   string `json:"chapter_name"`
}

// RemoveChapterRequest deletes a recorded chapter label.
type RemoveChapterRequest struct {
	Label string `json:"label" validate:"required"`
}

// ProgressView is a ledger with the most recent entry surfaced.
type ProgressView struct {
	models.ProgressLedger
	Latest string `json:"latest"`
}

// RosterSubject is one subject a tutor teaches a student.
type RosterSubject struct {
	Subject       string `json:"subject"`
	LatestChapter string `json:"latest_chapter,omitempty"`
}

// RosterEntry is a student as seen from a tutor's dashboard.
type RosterEntry struct {
	StudentID          string          `json:"student_id"`
	CustomID           string          `json:"custom_id"`
	Name               string          `json:"name"`
	ClassLevel         string          `json:"class_level,omitempty"`
	Syllabus           string          `json:"syllabus,omitempty"`
	PermanentClassLink string          `json:"permanent_class_link,omitempty"`
	Subjects           []RosterSubject `json:"subjects"`
}
