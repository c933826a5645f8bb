package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutoring-api/api/swagger"
	"github.com/noah-isme/tutoring-api/internal/handler"
	"github.com/noah-isme/tutoring-api/internal/repository"
	"github.com/noah-isme/tutoring-api/internal/service"
	"github.com/noah-isme/tutoring-api/pkg/cache"
	"github.com/noah-isme/tutoring-api/pkg/config"
	"github.com/noah-isme/tutoring-api/pkg/database"
	"github.com/noah-isme/tutoring-api/pkg/logger"
	"github.com/noah-isme/tutoring-api/pkg/tracing"
)

// @title Tutoring API
// @version 1.0.0
// @description Back office for one-to-one tutoring: scheduling, attendance, chapter progress and live updates.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg, logr)
	if err != nil {
		logr.Warn("tracing disabled", zap.Error(err))
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	feed := repository.NewChangeFeedRepository(redisClient, logr)

	notifier := service.NewChangeNotifier(feed, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Scheduling.SessionCacheTTL, logr, cfg.Scheduling.CacheEnabled)
	assignmentSvc := service.NewAssignmentService(userRepo, validate, logr)
	userSvc := service.NewUserService(userRepo, assignmentSvc, notifier, cacheSvc, validate, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	schedulingSvc := service.NewSchedulingService(sessionRepo, assignmentSvc, userRepo, notifier, cacheSvc, metrics, validate, logr)
	attendanceSvc := service.NewAttendanceService(sessionRepo, notifier, cacheSvc, metrics, validate, logr)
	progressSvc := service.NewProgressService(progressRepo, assignmentSvc, notifier, metrics, logr)
	exportSvc := service.NewExportService(sessionRepo, assignmentSvc, logr, nil, nil)

	var streamHandler *handler.StreamHandler
	if cfg.Live.Enabled {
		subscriptions := service.NewSubscriptionService(feed, schedulingSvc, progressSvc, metrics, logr)
		streamHandler = handler.NewStreamHandler(subscriptions, cfg.Live.Heartbeat)
	}

	handlers := routeHandlers{
		auth:     handler.NewAuthHandler(authSvc, userSvc),
		sessions: handler.NewSessionHandler(schedulingSvc, attendanceSvc),
		progress: handler.NewProgressHandler(progressSvc),
		admin:    handler.NewAdminHandler(userSvc, assignmentSvc, schedulingSvc, exportSvc),
		streams:  streamHandler,
		metrics: handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
			"postgres": db.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}),
	}

	router := newRouter(cfg, logr, metrics, authSvc, userRepo, handlers)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logr.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}
