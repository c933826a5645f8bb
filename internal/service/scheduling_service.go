package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-api/internal/dto"
	"github.com/noah-isme/tutoring-api/internal/models"
	"github.com/noah-isme/tutoring-api/pkg/civiltime"
	appErrors "github.com/noah-isme/tutoring-api/pkg/errors"
)

var tracer = otel.Tracer("github.com/noah-isme/tutoring-api/internal/service")

type sessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
	MarkAttendance(ctx context.Context, update models.AttendanceUpdate) error
	Delete(ctx context.Context, id string) error
}

type studentResolver interface {
	Resolve(ctx context.Context, studentID, subject string) (*models.User, models.Assignment, error)
}

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SchedulingService creates sessions from a student's assignments and renders them per viewer.
type SchedulingService struct {
	sessions  sessionRepository
	students  studentResolver
	profiles  profileRepository
	notifier  changeNotifier
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSchedulingService constructs the service.
func NewSchedulingService(sessions sessionRepository, students studentResolver, profiles profileRepository, notifier changeNotifier, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SchedulingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulingService{
		sessions:  sessions,
		students:  students,
		profiles:  profiles,
		notifier:  notifier,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// ScheduleSession writes one new scheduled session. The client supplied tutor id
// is checked against the assignment, never trusted.
func (s *SchedulingService) ScheduleSession(ctx context.Context, req dto.ScheduleSessionRequest, actor *models.JWTClaims) (*models.Session, error) {
	ctx, span := tracer.Start(ctx, "SchedulingService.ScheduleSession", trace.WithAttributes(
		attribute.String("student.id", req.StudentID),
		attribute.String("subject", req.Subject),
		attribute.Bool("rescheduled", req.Reschedule),
	))
	defer span.End()

	if err := requireAdmin(actor, "only administrators can schedule sessions"); err != nil {
		return nil, err
	}
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.Subject = strings.TrimSpace(req.Subject)
	req.TutorID = strings.TrimSpace(req.TutorID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	if _, err := civiltime.ToReferenceInstant(req.ClassDate, req.ClassTime); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidDateOrTime.Code, appErrors.ErrInvalidDateOrTime.Status, appErrors.ErrInvalidDateOrTime.Message)
	}

	student, assignment, err := s.students.Resolve(ctx, req.StudentID, req.Subject)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if assignment.TutorID != req.TutorID {
		return nil, appErrors.ErrTutorMismatch
	}

	originalDate := ""
	if req.Reschedule {
		if _, err := civiltime.ParseDate(req.OriginalClassDate); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidDateOrTime.Code, appErrors.ErrInvalidDateOrTime.Status, "original class date is required (YYYY-MM-DD)")
		}
		originalDate = strings.TrimSpace(req.OriginalClassDate)
		missed, err := s.sessions.List(ctx, models.SessionFilter{
			StudentID: student.ID,
			Subject:   req.Subject,
			ClassDate: originalDate,
			Statuses:  []string{string(models.SessionStatusMissed)},
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up missed session")
		}
		if len(missed) == 0 {
			return nil, appErrors.ErrOriginalSessionNotMissed
		}
	}

	tutorName := assignment.TutorName
	if tutorName == "" {
		if tutor, err := s.profiles.FindByID(ctx, assignment.TutorID); err == nil {
			tutorName = tutor.Name
		}
	}

	session := &models.Session{
		StudentID:         student.ID,
		StudentName:       student.Name,
		TutorID:           assignment.TutorID,
		TutorName:         tutorName,
		Subject:           assignment.Subject,
		ClassDate:         strings.TrimSpace(req.ClassDate),
		ClassTime:         strings.TrimSpace(req.ClassTime),
		Status:            models.SessionStatusScheduled,
		IsRescheduled:     req.Reschedule,
		OriginalClassDate: originalDate,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		span.RecordError(err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	s.metrics.RecordSessionScheduled(session.IsRescheduled)
	s.afterSessionWrite(ctx, session, "scheduled")
	s.audit(ctx, actor, models.AuditActionSessionSchedule, session.ID, nil, session)
	return session, nil
}

// RescheduleTargets lists the missed sessions of the pair, the only valid make-up targets.
func (s *SchedulingService) RescheduleTargets(ctx context.Context, studentID, subject string, actor *models.JWTClaims) ([]dto.RescheduleTarget, error) {
	if err := requireAdmin(actor, "only administrators can reschedule sessions"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(studentID) == "" || strings.TrimSpace(subject) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id and subject are required")
	}
	missed, err := s.sessions.List(ctx, models.SessionFilter{
		StudentID: studentID,
		Subject:   subject,
		Statuses:  []string{string(models.SessionStatusMissed)},
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list missed sessions")
	}
	sortSessions(missed)
	targets := make([]dto.RescheduleTarget, 0, len(missed))
	for _, session := range missed {
		targets = append(targets, dto.RescheduleTarget{
			SessionID:   session.ID,
			ClassDate:   session.ClassDate,
			ClassTime:   session.ClassTime,
			DisplayTime: civiltime.To12Hour(session.ClassTime),
			TutorName:   session.TutorName,
			Summary:     session.Summary,
		})
	}
	return targets, nil
}

// ListForViewer returns the sessions visible to actor rendered in their timezone,
// ordered by start instant.
func (s *SchedulingService) ListForViewer(ctx context.Context, actor *models.JWTClaims, filter dto.SessionListFilter) ([]dto.SessionView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(filter); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session filter")
	}

	query := models.SessionFilter{StudentID: filter.StudentID, Subject: filter.Subject}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleTutor:
		query.TutorID = actor.UserID
	case models.RoleStudent:
		query.StudentID = actor.UserID
	default:
		return nil, appErrors.ErrForbidden
	}
	if filter.Status == string(models.SessionStatusScheduled) {
		query.Statuses = models.AwaitingAttendanceStatuses()
	} else if filter.Status != "" {
		query.Statuses = []string{filter.Status}
	}

	sessions, err := s.loadSessions(ctx, actor, query)
	if err != nil {
		return nil, err
	}
	zone := s.viewerZone(ctx, actor.UserID)
	now := s.now()
	views := make([]dto.SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, RenderSessionView(session, zone, now))
	}
	return views, nil
}

// DeleteSession hard deletes a session.
func (s *SchedulingService) DeleteSession(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := requireAdmin(actor, "only administrators can delete sessions"); err != nil {
		return err
	}
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrSessionNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrSessionNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	s.afterSessionWrite(ctx, session, "deleted")
	s.audit(ctx, actor, models.AuditActionSessionDelete, session.ID, session, nil)
	return nil
}

// RenderSessionView projects a stored session into a viewer's timezone.
func RenderSessionView(session models.Session, zone string, now time.Time) dto.SessionView {
	session.Normalize()
	return dto.SessionView{
		Session:     session,
		DisplayDate: civiltime.DisplayDate(session.ClassDate, session.ClassTime, zone),
		DisplayTime: civiltime.FormatDisplayTime(session.ClassDate, session.ClassTime, zone),
		ViewerZone:  zone,
		IsDue:       session.IsDue(now),
	}
}

type freshReadKey struct{}

// withFreshRead marks ctx so session listings skip the cache in both directions.
func withFreshRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshReadKey{}, true)
}

func isFreshRead(ctx context.Context) bool {
	fresh, _ := ctx.Value(freshReadKey{}).(bool)
	return fresh
}

func (s *SchedulingService) loadSessions(ctx context.Context, actor *models.JWTClaims, query models.SessionFilter) ([]models.Session, error) {
	useCache := !isFreshRead(ctx)
	key := SessionListKey(actor.Role, actor.UserID, query)
	if useCache {
		var cached []models.Session
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached, nil
		}
	}
	generation := s.cache.Generation()
	sessions, err := s.sessions.List(ctx, query)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	sortSessions(sessions)
	if useCache {
		_ = s.cache.SetIfCurrent(ctx, key, sessions, generation)
	}
	return sessions, nil
}

// viewerZone falls back to the reference zone when the profile cannot be read.
func (s *SchedulingService) viewerZone(ctx context.Context, userID string) string {
	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		s.logger.Debug("viewer profile unavailable, using reference zone", zap.String("user_id", userID), zap.Error(err))
		return civiltime.ReferenceZone
	}
	return civiltime.ViewerZone(profile.Timezone)
}

func (s *SchedulingService) afterSessionWrite(ctx context.Context, session *models.Session, action string) {
	s.cache.InvalidateSessionViews(ctx, session.StudentID, session.TutorID)
	if s.notifier != nil {
		s.notifier.Notify(ctx, models.ChangeEvent{
			Kind:      models.ChangeKindSession,
			Action:    action,
			SessionID: session.ID,
			StudentID: session.StudentID,
			TutorID:   session.TutorID,
			Subject:   session.Subject,
		})
	}
}

func (s *SchedulingService) audit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, before, after interface{}) {
	entry := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "session",
		ResourceID: &resourceID,
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	if err := s.profiles.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record session audit log", zap.String("action", action), zap.Error(err))
	}
}

// sortSessions orders by reference instant; rows with malformed date or time go last.
func sortSessions(sessions []models.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i].StartsAt(), sessions[j].StartsAt()
		switch {
		case a.IsZero():
			return false
		case b.IsZero():
			return true
		default:
			return a.Before(b)
		}
	})
}

func requireAdmin(actor *models.JWTClaims, message string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, message)
	}
	return nil
}
