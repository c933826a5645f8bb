package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-api/internal/dto"
	"github.com/noah-isme/tutoring-api/internal/handler"
	"github.com/noah-isme/tutoring-api/internal/models"
	"github.com/noah-isme/tutoring-api/internal/service"
	"github.com/noah-isme/tutoring-api/pkg/config"
)

type staticTokens struct{ claims *models.JWTClaims }

func (s staticTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	return s.claims, nil
}

type discardAudit struct{}

func (discardAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error { return nil }

type recordingProgress struct{ studentID, subject string }

func (r *recordingProgress) Get(ctx context.Context, studentID, subject string, actor *models.JWTClaims) (*dto.ProgressView, error) {
	r.studentID, r.subject = studentID, subject
	return &dto.ProgressView{}, nil
}

func (r *recordingProgress) AppendChapter(ctx context.Context, studentID, subject string, req dto.AppendChapterRequest, actor *models.JWTClaims) (*dto.ProgressView, error) {
	return &dto.ProgressView{}, nil
}

func (r *recordingProgress) RemoveChapter(ctx context.Context, studentID, subject string, req dto.RemoveChapterRequest, actor *models.JWTClaims) (*dto.ProgressView, error) {
	return &dto.ProgressView{}, nil
}

func (r *recordingProgress) Roster(ctx context.Context, actor *models.JWTClaims) ([]dto.RosterEntry, error) {
	return nil, nil
}

func TestRouterDecodesSubjectSegments(t *testing.T) {
	gin.SetMode(gin.TestMode)
	progress := &recordingProgress{}
	cfg := &config.Config{Env: "test", APIPrefix: "/api/v1"}
	tokens := staticTokens{claims: &models.JWTClaims{UserID: "S", Role: models.RoleStudent}}
	router := newRouter(cfg, zap.NewNop(), service.NewMetricsService(), tokens, discardAudit{}, routeHandlers{
		progress: handler.NewProgressHandler(progress),
	})

	cases := []struct {
		path    string
		subject string
	}{
		{"/api/v1/progress/S/Further%20Maths", "Further Maths"},
		{"/api/v1/progress/S/Maths%2FStatistics", "Maths/Statistics"},
	}
	for _, tc := range cases {
		t.Run(tc.subject, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			req.Header.Set("Authorization", "Bearer token")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "S", progress.studentID)
			assert.Equal(t, tc.subject, progress.subject)
		})
	}
}
