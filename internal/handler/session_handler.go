package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-api/internal/dto"
	"github.com/noah-isme/tutoring-api/internal/middleware"
	"github.com/noah-isme/tutoring-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-api/pkg/errors"
	"github.com/noah-isme/tutoring-api/pkg/response"
)

type sessionService interface {
	ScheduleSession(ctx context.Context, req dto.ScheduleSessionRequest, actor *models.JWTClaims) (*models.Session, error)
	RescheduleTargets(ctx context.Context, studentID, subject string, actor *models.JWTClaims) ([]dto.RescheduleTarget, error)
	ListForViewer(ctx context.Context, actor *models.JWTClaims, filter dto.SessionListFilter) ([]dto.SessionView, error)
	DeleteSession(ctx context.Context, id string, actor *models.JWTClaims) error
}

type attendanceService interface {
	MarkAttendance(ctx context.Context, sessionID string, req dto.MarkAttendanceRequest, actor *models.JWTClaims) (*models.Session, error)
}

// SessionHandler exposes scheduling and attendance endpoints.
type SessionHandler struct {
	sessions   sessionService
	attendance attendanceService
}

// NewSessionHandler builds a new handler.
func NewSessionHandler(sessions sessionService, attendance attendanceService) *SessionHandler {
	return &SessionHandler{sessions: sessions, attendance: attendance}
}

// List godoc
// @Summary List sessions visible to the caller
// @Description Students see their own sessions, tutors the sessions they teach and administrators everything. Times are projected into the caller's timezone.
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param student_id query string false "Student filter"
// @Param subject query string false "Subject filter"
// @Param status query string false "scheduled, completed or missed"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	var filter dto.SessionListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session filter"))
		return
	}
	views, err := h.sessions.ListForViewer(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(views))
	if len(views) > 0 {
		middleware.SetMeta(c, "viewer_zone", views[0].ViewerZone)
	}
	response.JSON(c, http.StatusOK, views, nil, middleware.ExtractMeta(c))
}

// RescheduleTargets godoc
// @Summary Missed sessions that can be made up
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param student_id query string true "Student ID"
// @Param subject query string true "Subject"
// @Success 200 {object} response.Envelope
// @Router /sessions/reschedule-targets [get]
func (h *SessionHandler) RescheduleTargets(c *gin.Context) {
	studentID := c.Query("student_id")
	subject := c.Query("subject")
	if studentID == "" || subject == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student_id and subject are required"))
		return
	}
	targets, err := h.sessions.RescheduleTargets(c.Request.Context(), studentID, subject, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, targets, nil)
}

// Schedule godoc
// @Summary Schedule a session
// @Description Class date and time are civil values in the scheduling reference zone.
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.ScheduleSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Schedule(c *gin.Context) {
	var req dto.ScheduleSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	session, err := h.sessions.ScheduleSession(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Delete godoc
// @Summary Delete a session
// @Tags Sessions
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.sessions.DeleteSession(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAttendance godoc
// @Summary Record a session outcome
// @Description Attendance is recorded once. A completed session needs a non-blank summary.
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param payload body dto.MarkAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/attendance [post]
func (h *SessionHandler) MarkAttendance(c *gin.Context) {
	var req dto.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}
	session, err := h.attendance.MarkAttendance(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}
