package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-api/internal/handler"
	"github.com/noah-isme/tutoring-api/internal/middleware"
	"github.com/noah-isme/tutoring-api/internal/models"
	"github.com/noah-isme/tutoring-api/internal/service"
	"github.com/noah-isme/tutoring-api/pkg/config"
	"github.com/noah-isme/tutoring-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutoring-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutoring-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	auth     *handler.AuthHandler
	sessions *handler.SessionHandler
	progress *handler.ProgressHandler
	admin    *handler.AdminHandler
	streams  *handler.StreamHandler
	metrics  *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, tokens middleware.TokenValidator, audit middleware.AuditWriter, h routeHandlers) *gin.Engine {
	r := gin.New()
	// match on the escaped path so a subject containing "/" can be sent as %2F
	r.UseRawPath = true
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, cfg.APIPrefix+"/stream"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", h.auth.Login)
	api.GET("/zones", h.auth.Zones)

	secured := api.Group("")
	secured.Use(middleware.JWT(tokens))

	admin := middleware.RequireRoles(models.RoleAdmin)
	tutor := middleware.RequireRoles(models.RoleTutor)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTutor)

	secured.GET("/me", h.auth.Me)
	secured.PUT("/me/timezone", h.auth.UpdateTimezone)

	secured.GET("/sessions", h.sessions.List)
	secured.GET("/sessions/reschedule-targets", admin, h.sessions.RescheduleTargets)
	secured.POST("/sessions", admin, h.sessions.Schedule)
	secured.DELETE("/sessions/:id", admin, h.sessions.Delete)
	secured.POST("/sessions/:id/attendance", staff,
		middleware.Audit(audit, logr, "MARK_ATTENDANCE", "sessions", "id"), h.sessions.MarkAttendance)

	secured.GET("/progress/:studentId/:subject", h.progress.Get)
	secured.POST("/progress/:studentId/:subject/chapters", tutor,
		middleware.Audit(audit, logr, "APPEND_CHAPTER", "progress", "studentId"), h.progress.AppendChapter)
	secured.DELETE("/progress/:studentId/:subject/chapters", tutor,
		middleware.Audit(audit, logr, "REMOVE_CHAPTER", "progress", "studentId"), h.progress.RemoveChapter)
	secured.GET("/tutors/me/students", tutor, h.progress.Roster)

	secured.PUT("/students/:id/assignments", admin, h.admin.ReplaceAssignments)

	relay := secured.Group("/admin", admin)
	relay.GET("/users", h.admin.ListUsers)
	relay.POST("/create-user", h.admin.CreateUser)
	relay.PUT("/update-user/:uid", h.admin.UpdateUser)
	relay.DELETE("/delete-user/:uid", h.admin.DeleteUser)
	relay.POST("/schedule-class", h.admin.ScheduleClass)
	relay.DELETE("/class/:classId", h.admin.DeleteClass)
	relay.GET("/students/:id/sessions/export", h.admin.ExportSessions)
	relay.GET("/metrics", h.metrics.Summary)

	if h.streams != nil {
		streams := api.Group("/stream", middleware.StreamJWT(tokens))
		streams.GET("/sessions", h.streams.Sessions)
		streams.GET("/progress/:studentId/:subject", h.streams.Progress)
	}

	return r
}
