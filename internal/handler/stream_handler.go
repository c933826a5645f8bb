package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-api/internal/dto"
	"github.com/noah-isme/tutoring-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-api/pkg/errors"
	"github.com/noah-isme/tutoring-api/pkg/response"
)

const defaultHeartbeat = 15 * time.Second

type subscriptionService interface {
	WatchSessions(ctx context.Context, actor *models.JWTClaims, filter dto.SessionListFilter) (<-chan []dto.SessionView, error)
	WatchProgress(ctx context.Context, studentID, subject string, actor *models.JWTClaims) (<-chan *dto.ProgressView, error)
}

// StreamHandler pushes live session and progress snapshots over server-sent events.
type StreamHandler struct {
	service   subscriptionService
	heartbeat time.Duration
}

// NewStreamHandler builds a new handler. A non-positive heartbeat uses 15s.
func NewStreamHandler(service subscriptionService, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &StreamHandler{service: service, heartbeat: heartbeat}
}

// Sessions godoc
// @Summary Live session list
// @Description Emits a "sessions" event with the full visible list whenever it changes.
// @Tags Streams
// @Produce text/event-stream
// @Security BearerAuth
// @Param student_id query string false "Student filter"
// @Param subject query string false "Subject filter"
// @Param status query string false "Status filter"
// @Router /stream/sessions [get]
func (h *StreamHandler) Sessions(c *gin.Context) {
	var filter dto.SessionListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session filter"))
		return
	}
	stream, err := h.service.WatchSessions(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	serveEvents(c, "sessions", stream, h.heartbeat)
}

// Progress godoc
// @Summary Live progress ledger
// @Tags Streams
// @Produce text/event-stream
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param subject path string true "Subject"
// @Router /stream/progress/{studentId}/{subject} [get]
func (h *StreamHandler) Progress(c *gin.Context) {
	stream, err := h.service.WatchProgress(c.Request.Context(), c.Param("studentId"), subjectParam(c), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveEvents(c, "progress", stream, h.heartbeat)
}

// serveEvents writes every value from stream as an SSE event until the client
// goes away or the stream closes.
func serveEvents[T any](c *gin.Context, event string, stream <-chan T, heartbeat time.Duration) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		case value, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(event, value)
			return true
		}
	})
}
