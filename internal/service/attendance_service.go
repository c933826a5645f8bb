package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-api/internal/dto"
	"github.com/noah-isme/tutoring-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-api/pkg/errors"
)

// AttendanceService moves sessions from scheduled to a terminal status.
type AttendanceService struct {
	sessions  sessionRepository
	notifier  changeNotifier
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(sessions sessionRepository, notifier changeNotifier, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		sessions:  sessions,
		notifier:  notifier,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// MarkAttendance records completed or missed on a scheduled session. A completed
// session needs a summary. Concurrent callers race on a conditional update; the
// loser gets ErrSessionNotPending.
func (s *AttendanceService) MarkAttendance(ctx context.Context, sessionID string, req dto.MarkAttendanceRequest, actor *models.JWTClaims) (*models.Session, error) {
	ctx, span := tracer.Start(ctx, "AttendanceService.MarkAttendance", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("status", string(req.Status)),
	))
	defer span.End()

	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.StudentID != req.StudentID {
		return nil, appErrors.ErrSessionNotFound
	}
	if actor.Role != models.RoleAdmin && !(actor.Role == models.RoleTutor && actor.UserID == session.TutorID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned tutor can mark attendance")
	}
	if !models.CanTransition(session.Status, req.Status) {
		return nil, appErrors.ErrSessionNotPending
	}
	if req.Status == models.SessionStatusCompleted && strings.TrimSpace(req.Summary) == "" {
		return nil, appErrors.ErrSummaryRequired
	}

	update := models.AttendanceUpdate{
		SessionID: session.ID,
		StudentID: session.StudentID,
		Status:    req.Status,
		Summary:   req.Summary,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.sessions.MarkAttendance(ctx, update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.explainLostUpdate(ctx, sessionID)
		}
		span.RecordError(err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	session.Status = update.Status
	session.Summary = update.Summary
	session.UpdatedAt = update.UpdatedAt

	s.metrics.RecordAttendance(update.Status)
	s.cache.InvalidateSessionViews(ctx, session.StudentID, session.TutorID)
	if s.notifier != nil {
		s.notifier.Notify(ctx, models.ChangeEvent{
			Kind:      models.ChangeKindSession,
			Action:    string(update.Status),
			SessionID: session.ID,
			StudentID: session.StudentID,
			TutorID:   session.TutorID,
			Subject:   session.Subject,
		})
	}
	s.logger.Info("attendance recorded",
		zap.String("session_id", session.ID),
		zap.String("status", string(update.Status)),
		zap.String("actor_id", actor.UserID))
	return session, nil
}

// explainLostUpdate re-reads a session whose conditional update matched nothing.
func (s *AttendanceService) explainLostUpdate(ctx context.Context, sessionID string) error {
	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrSessionNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload session")
	}
	return appErrors.ErrSessionNotPending
}
