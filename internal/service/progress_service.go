package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-api/internal/dto"
	"github.com/noah-isme/tutoring-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-api/pkg/errors"
)

const (
	progressOperationAppend = "append"
	progressOperationRemove = "remove"
)

type progressRepository interface {
	Get(ctx context.Context, studentID, subject string) (*models.ProgressLedger, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.ProgressLedger, error)
	AppendChapter(ctx context.Context, studentID, subject, label string, at time.Time) (bool, error)
	RemoveChapter(ctx context.Context, studentID, subject, label string, at time.Time) (bool, error)
}

type assignmentDirectory interface {
	Resolve(ctx context.Context, studentID, subject string) (*models.User, models.Assignment, error)
	StudentsForTutor(ctx context.Context, tutorID string) ([]models.User, error)
}

// ProgressService maintains the ordered chapter ledgers.
type ProgressService struct {
	repo        progressRepository
	assignments assignmentDirectory
	notifier    changeNotifier
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewProgressService constructs the service.
func NewProgressService(repo progressRepository, assignments assignmentDirectory, notifier changeNotifier, metrics *MetricsService, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{repo: repo, assignments: assignments, notifier: notifier, metrics: metrics, logger: logger, now: time.Now}
}

// AppendChapter records "Ch {n}: {name}" at the end of the ledger, creating it on first use.
// Recording an identical label twice fails with ErrChapterAlreadyRecorded.
func (s *ProgressService) AppendChapter(ctx context.Context, studentID, subject string, req dto.AppendChapterRequest, actor *models.JWTClaims) (*dto.ProgressView, error) {
	ctx, span := tracer.Start(ctx, "ProgressService.AppendChapter", trace.WithAttributes(
		attribute.String("student.id", studentID),
		attribute.String("subject", subject),
	))
	defer span.End()

	if err := s.requireBoundTutor(ctx, studentID, subject, actor); err != nil {
		return nil, err
	}
	number := strings.TrimSpace(req.ChapterNumber)
	name := strings.TrimSpace(req.ChapterName)
	if number == "" || name == "" {
		return nil, appErrors.ErrInvalidChapterInput
	}

	label := models.ChapterLabel(number, name)
	appended, err := s.repo.AppendChapter(ctx, studentID, subject, label, s.now().UTC())
	if err != nil {
		span.RecordError(err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record chapter")
	}
	if !appended {
		return nil, appErrors.Clone(appErrors.ErrChapterAlreadyRecorded, "chapter already recorded: "+label)
	}

	s.metrics.RecordProgressUpdate(progressOperationAppend)
	s.notify(ctx, studentID, subject, progressOperationAppend)
	return s.load(ctx, studentID, subject)
}

// RemoveChapter deletes the first exact match of label. Removing an absent label is a no-op.
func (s *ProgressService) RemoveChapter(ctx context.Context, studentID, subject string, req dto.RemoveChapterRequest, actor *models.JWTClaims) (*dto.ProgressView, error) {
	if err := s.requireBoundTutor(ctx, studentID, subject, actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Label) == "" {
		return nil, appErrors.ErrInvalidChapterInput
	}

	removed, err := s.repo.RemoveChapter(ctx, studentID, subject, req.Label, s.now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove chapter")
	}
	if removed {
		s.metrics.RecordProgressUpdate(progressOperationRemove)
		s.notify(ctx, studentID, subject, progressOperationRemove)
	}
	return s.load(ctx, studentID, subject)
}

// Get returns the ledger to the student, the bound tutor or an administrator.
// A ledger that was never written reads as empty.
func (s *ProgressService) Get(ctx context.Context, studentID, subject string, actor *models.JWTClaims) (*dto.ProgressView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleStudent:
		if actor.UserID != studentID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only view their own progress")
		}
	case models.RoleTutor:
		if err := s.requireBoundTutor(ctx, studentID, subject, actor); err != nil {
			return nil, err
		}
	default:
		return nil, appErrors.ErrForbidden
	}
	return s.load(ctx, studentID, subject)
}

// Roster lists the tutor's students with the subjects they teach each one and the latest chapter.
func (s *ProgressService) Roster(ctx context.Context, actor *models.JWTClaims) ([]dto.RosterEntry, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleTutor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only tutors have a roster")
	}
	students, err := s.assignments.StudentsForTutor(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	roster := make([]dto.RosterEntry, 0, len(students))
	for _, student := range students {
		latest := make(map[string]string)
		ledgers, err := s.repo.ListByStudent(ctx, student.ID)
		if err != nil {
			s.logger.Warn("failed to load progress for roster", zap.String("student_id", student.ID), zap.Error(err))
		}
		for i := range ledgers {
			latest[ledgers[i].Subject] = ledgers[i].Latest()
		}

		entry := dto.RosterEntry{
			StudentID:          student.ID,
			CustomID:           student.CustomID,
			Name:               student.Name,
			ClassLevel:         student.ClassLevel,
			Syllabus:           student.Syllabus,
			PermanentClassLink: student.PermanentClassLink,
		}
		for _, subject := range SubjectsTaughtBy(student.Assignments, actor.UserID) {
			entry.Subjects = append(entry.Subjects, dto.RosterSubject{Subject: subject, LatestChapter: latest[subject]})
		}
		roster = append(roster, entry)
	}
	return roster, nil
}

func (s *ProgressService) requireBoundTutor(ctx context.Context, studentID, subject string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleTutor {
		return appErrors.Clone(appErrors.ErrForbidden, "only the assigned tutor can change progress")
	}
	_, assignment, err := s.assignments.Resolve(ctx, studentID, subject)
	if err != nil {
		return err
	}
	if assignment.TutorID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "tutor is not assigned to this subject")
	}
	return nil
}

func (s *ProgressService) load(ctx context.Context, studentID, subject string) (*dto.ProgressView, error) {
	ledger, err := s.repo.Get(ctx, studentID, subject)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress")
		}
		ledger = models.EmptyProgressLedger(studentID, subject)
	}
	return &dto.ProgressView{ProgressLedger: *ledger, Latest: ledger.Latest()}, nil
}

func (s *ProgressService) notify(ctx context.Context, studentID, subject, action string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, models.ChangeEvent{
		Kind:      models.ChangeKindProgress,
		Action:    action,
		StudentID: studentID,
		Subject:   subject,
	})
}
