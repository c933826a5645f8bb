package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ProgressLedger is the ordered list of curriculum units a student completed in a subject.
type ProgressLedger struct {
	StudentID         string         `db:"student_id" json:"student_id"`
	Subject           string         `db:"subject" json:"subject"`
	CompletedChapters pq.StringArray `db:"completed_chapters" json:"completed_chapters"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// EmptyProgressLedger returns the ledger shape used before the first append.
func EmptyProgressLedger(studentID, subject string) *ProgressLedger {
	return &ProgressLedger{StudentID: studentID, Subject: subject, CompletedChapters: pq.StringArray{}}
}

// ChapterLabel normalises a chapter number and name into the stored label.
func ChapterLabel(number, name string) string {
	return fmt.Sprintf("Ch %s: %s", strings.TrimSpace(number), strings.TrimSpace(name))
}

// Latest returns the most recently recorded label.
func (p *ProgressLedger) Latest() string {
	if p == nil || len(p.CompletedChapters) == 0 {
		return ""
	}
	return p.CompletedChapters[len(p.CompletedChapters)-1]
}

// Contains reports whether the exact label is already recorded.
func (p *ProgressLedger) Contains(label string) bool {
	if p == nil {
		return false
	}
	for _, existing := range p.CompletedChapters {
		if existing == label {
			return true
		}
	}
	return false
}

// RemoveFirst deletes the first exact match and reports whether anything changed.
func (p *ProgressLedger) RemoveFirst(label string) bool {
	if p == nil {
		return false
	}
	for i, existing := range p.CompletedChapters {
		if existing == label {
			p.CompletedChapters = append(p.CompletedChapters[:i:i], p.CompletedChapters[i+1:]...)
			return true
		}
	}
	return false
}
