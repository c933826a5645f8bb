package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const sessionCachePrefix = "sessions"

// CacheService caches session listings per viewer scope and records hit ratios.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
	// generation advances on every session invalidation; fills computed under an
	// older generation are dropped.
	generation atomic.Uint64
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Generation reports the current session invalidation generation.
func (s *CacheService) Generation() uint64 {
	if s == nil {
		return 0
	}
	return s.generation.Load()
}

// SetIfCurrent stores value only when no invalidation happened since generation was read.
func (s *CacheService) SetIfCurrent(ctx context.Context, key string, value interface{}, generation uint64) error {
	if !s.Enabled() || s.generation.Load() != generation {
		return nil
	}
	return s.Set(ctx, key, value, 0)
}

// Invalidate removes cached values for the provided pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// SessionListKey builds the cache key of a role scoped session listing.
func SessionListKey(role models.UserRole, viewerID string, filter models.SessionFilter) string {
	parts := []string{sessionCachePrefix, string(role)}
	if role != models.RoleAdmin {
		parts = append(parts, viewerID)
	}
	parts = append(parts, filter.StudentID, filter.Subject, strings.Join(filter.Statuses, ","))
	return strings.Join(parts, ":")
}

// InvalidateSessionViews drops every cached listing that could contain a session of the pair.
func (s *CacheService) InvalidateSessionViews(ctx context.Context, studentID, tutorID string) {
	if !s.Enabled() {
		return
	}
	s.generation.Add(1)
	patterns := []string{fmt.Sprintf("%s:%s:*", sessionCachePrefix, models.RoleAdmin)}
	if studentID != "" {
		patterns = append(patterns, fmt.Sprintf("%s:%s:%s:*", sessionCachePrefix, models.RoleStudent, studentID))
	}
	if tutorID != "" {
		patterns = append(patterns, fmt.Sprintf("%s:%s:%s:*", sessionCachePrefix, models.RoleTutor, tutorID))
	}
	for _, pattern := range patterns {
		_ = s.Invalidate(ctx, pattern)
	}
}
