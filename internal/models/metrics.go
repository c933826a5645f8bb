package models

import "time"

// SystemMetrics is a point-in-time summary of request, cache and domain activity.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	SessionsScheduled        uint64    `json:"sessions_scheduled"`
	AttendanceMarked         uint64    `json:"attendance_marked"`
	ProgressUpdates          uint64    `json:"progress_updates"`
	LiveSubscribers          int64     `json:"live_subscribers"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
