package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-api/internal/dto"
	"github.com/noah-isme/tutoring-api/internal/models"
	"github.com/noah-isme/tutoring-api/internal/service"
	appErrors "github.com/noah-isme/tutoring-api/pkg/errors"
	"github.com/noah-isme/tutoring-api/pkg/response"
)

type userAdminService interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error)
	CreateUser(ctx context.Context, req dto.CreateUserRequest, actor *models.JWTClaims) (*models.User, error)
	UpdateUser(ctx context.Context, id string, req dto.UpdateUserRequest, actor *models.JWTClaims) (*models.User, error)
	DeleteUser(ctx context.Context, id string, actor *models.JWTClaims, ip, userAgent string) (*dto.DeleteUserResponse, error)
}

type assignmentAdminService interface {
	Replace(ctx context.Context, studentID string, req dto.ReplaceAssignmentsRequest, actor *models.JWTClaims) (*models.User, error)
}

type sessionExporter interface {
	ExportStudentSessions(ctx context.Context, studentID, format string, actor *models.JWTClaims) (*service.ExportFile, error)
}

// AdminHandler is the privileged-write relay. Every route re-checks the
// caller's role in the service layer.
type AdminHandler struct {
	users       userAdminService
	assignments assignmentAdminService
	sessions    sessionService
	exporter    sessionExporter
}

// NewAdminHandler builds a new handler.
func NewAdminHandler(users userAdminService, assignments assignmentAdminService, sessions sessionService, exporter sessionExporter) *AdminHandler {
	return &AdminHandler{users: users, assignments: assignments, sessions: sessions, exporter: exporter}
}

// ListUsers godoc
// @Summary List users
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param role query string false "admin, tutor or student"
// @Param tutor_uid query string false "Students bound to this tutor"
// @Param search query string false "Name, email or custom id"
// @Param sort_by query string false "Sort by"
// @Param sort_order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	var filter models.UserFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	if role := c.Query("role"); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}
	filter.TutorUID = c.Query("tutor_uid")
	filter.Search = c.Query("search")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	users, pagination, err := h.users.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// CreateUser godoc
// @Summary Onboard a student, tutor or administrator
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateUserRequest true "User payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/create-user [post]
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid user payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	user, err := h.users.CreateUser(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.CreateUserResponse{UID: user.ID, CustomID: user.CustomID})
}

// UpdateUser godoc
// @Summary Edit a profile and its assignments
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param uid path string true "User ID"
// @Param payload body dto.UpdateUserRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /admin/update-user/{uid} [put]
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var req dto.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid user payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	user, err := h.users.UpdateUser(c.Request.Context(), c.Param("uid"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// DeleteUser godoc
// @Summary Delete a user and their sessions
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param uid path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/delete-user/{uid} [delete]
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	res, err := h.users.DeleteUser(c.Request.Context(), c.Param("uid"), claimsFromContext(c), c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ReplaceAssignments godoc
// @Summary Overwrite a student's subject to tutor bindings
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param payload body dto.ReplaceAssignmentsRequest true "Assignments"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/assignments [put]
func (h *AdminHandler) ReplaceAssignments(c *gin.Context) {
	var req dto.ReplaceAssignmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignments payload"))
		return
	}
	user, err := h.assignments.Replace(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// ScheduleClass godoc
// @Summary Schedule a session through the relay
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.ScheduleSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /admin/schedule-class [post]
func (h *AdminHandler) ScheduleClass(c *gin.Context) {
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
	response.Created(c, gin.H{"class_id": session.ID, "session": session})
}

// DeleteClass godoc
// @Summary Delete a session through the relay
// @Tags Admin
// @Security BearerAuth
// @Param classId path string true "Session ID"
// @Success 204
// @Router /admin/class/{classId} [delete]
func (h *AdminHandler) DeleteClass(c *gin.Context) {
	if err := h.sessions.DeleteSession(c.Request.Context(), c.Param("classId"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportSessions godoc
// @Summary Download a student's session history
// @Tags Admin
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /admin/students/{id}/sessions/export [get]
func (h *AdminHandler) ExportSessions(c *gin.Context) {
	file, err := h.exporter.ExportStudentSessions(c.Request.Context(), c.Param("id"), c.Query("format"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}
