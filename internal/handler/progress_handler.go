package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-api/internal/dto"
	"github.com/noah-isme/tutoring-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-api/pkg/errors"
	"github.com/noah-isme/tutoring-api/pkg/response"
)

type progressService interface {
	Get(ctx context.Context, studentID, subject string, actor *models.JWTClaims) (*dto.ProgressView, error)
	AppendChapter(ctx context.Context, studentID, subject string, req dto.AppendChapterRequest, actor *models.JWTClaims) (*dto.ProgressView, error)
	RemoveChapter(ctx context.Context, studentID, subject string, req dto.RemoveChapterRequest, actor *models.JWTClaims) (*dto.ProgressView, error)
	Roster(ctx context.Context, actor *models.JWTClaims) ([]dto.RosterEntry, error)
}

// ProgressHandler exposes the chapter ledger.
type ProgressHandler struct {
	service progressService
}

// NewProgressHandler builds a new handler.
func NewProgressHandler(service progressService) *ProgressHandler {
	return &ProgressHandler{service: service}
}

// Get godoc
// @Summary Completed chapters for a student and subject
// @Tags Progress
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param subject path string true "Subject"
// @Success 200 {object} response.Envelope
// @Router /progress/{studentId}/{subject} [get]
func (h *ProgressHandler) Get(c *gin.Context) {
	view, err := h.service.Get(c.Request.Context(), c.Param("studentId"), subjectParam(c), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// AppendChapter godoc
// @Summary Record a completed chapter
// @Tags Progress
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param subject path string true "Subject"
// @Param payload body dto.AppendChapterRequest true "Chapter payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /progress/{studentId}/{subject}/chapters [post]
func (h *ProgressHandler) AppendChapter(c *gin.Context) {
	var req dto.AppendChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid chapter payload"))
		return
	}
	view, err := h.service.AppendChapter(c.Request.Context(), c.Param("studentId"), subjectParam(c), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// RemoveChapter godoc
// @Summary Remove a recorded chapter
// @Tags Progress
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param subject path string true "Subject"
// @Param payload body dto.RemoveChapterRequest true "Chapter label"
// @Success 200 {object} response.Envelope
// @Router /progress/{studentId}/{subject}/chapters [delete]
func (h *ProgressHandler) RemoveChapter(c *gin.Context) {
	var req dto.RemoveChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid chapter payload"))
		return
	}
	view, err := h.service.RemoveChapter(c.Request.Context(), c.Param("studentId"), subjectParam(c), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Roster godoc
// @Summary Students taught by the caller
// @Tags Progress
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /tutors/me/students [get]
func (h *ProgressHandler) Roster(c *gin.Context) {
	roster, err := h.service.Roster(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}
