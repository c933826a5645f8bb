package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-api/internal/models"
	"github.com/noah-isme/tutoring-api/pkg/civiltime"
	appErrors "github.com/noah-isme/tutoring-api/pkg/errors"
	"github.com/noah-isme/tutoring-api/pkg/export"
)

// Export formats accepted by ExportStudentSessions.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type tableRenderer interface {
	Render(table export.Table) ([]byte, error)
	ContentType() string
}

type exportSessionSource interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
}

type exportStudentSource interface {
	LoadStudent(ctx context.Context, studentID string) (*models.User, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders a student's session history for download.
type ExportService struct {
	sessions  exportSessionSource
	students  exportStudentSource
	renderers map[string]tableRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the bundled exporters.
func NewExportService(sessions exportSessionSource, students exportStudentSource, logger *zap.Logger, csv, pdf tableRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		sessions:  sessions,
		students:  students,
		renderers: map[string]tableRenderer{ExportFormatCSV: csv, ExportFormatPDF: pdf},
		logger:    logger,
		now:       time.Now,
	}
}

// ExportStudentSessions renders every session of a student in chronological order,
// with display date and time in the reference zone.
func (s *ExportService) ExportStudentSessions(ctx context.Context, studentID, format string, actor *models.JWTClaims) (*ExportFile, error) {
	if err := requireAdmin(actor, "only administrators can export sessions"); err != nil {
		return nil, err
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	student, err := s.students.LoadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.List(ctx, models.SessionFilter{StudentID: student.ID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	sortSessions(sessions)

	payload, err := renderer.Render(sessionTable(student, sessions))
	if err != nil {
		s.logger.Error("failed to render session export", zap.String("student_id", student.ID), zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	return &ExportFile{
		Filename:    exportFilename(student, format, s.now()),
		ContentType: renderer.ContentType(),
		Payload:     payload,
	}, nil
}

func sessionTable(student *models.User, sessions []models.Session) export.Table {
	table := export.Table{
		Title: fmt.Sprintf("Class history: %s", student.Name),
		Columns: []export.Column{
			{Title: "Date", Weight: 1.2},
			{Title: "Time", Weight: 1},
			{Title: "Subject", Weight: 1.5},
			{Title: "Tutor", Weight: 1.5},
			{Title: "Status", Weight: 1},
			{Title: "Rescheduled From", Weight: 1.2},
			{Title: "Summary", Weight: 4},
		},
		Rows: make([][]string, 0, len(sessions)),
	}
	for _, session := range sessions {
		session.Normalize()
		table.Rows = append(table.Rows, []string{
			civiltime.DisplayDate(session.ClassDate, session.ClassTime, civiltime.ReferenceZone),
			civiltime.FormatDisplayTime(session.ClassDate, session.ClassTime, civiltime.ReferenceZone),
			session.Subject,
			session.TutorName,
			string(session.Status),
			session.OriginalClassDate,
			session.Summary,
		})
	}
	return table
}

func exportFilename(student *models.User, format string, now time.Time) string {
	id := student.CustomID
	if id == "" {
		id = student.ID
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-")
	return fmt.Sprintf("sessions_%s_%s.%s", replacer.Replace(id), now.UTC().Format("20060102_150405"), format)
}
