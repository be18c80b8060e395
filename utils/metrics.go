package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Storage Metrics
	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Duration of shared storage operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "backend"},
	)

	// Authentication Metrics
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"status", "type"}, // success/failure, login/refresh/logout/2fa
	)

	// Coordination Metrics
	ActiveTabs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_active_tabs",
			Help: "Number of live instances sharing the session",
		},
	)

	SessionConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_conflicts_total",
			Help: "Total number of detected session conflicts",
		},
		[]string{"action"},
	)

	LockAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_lock_acquisitions_total",
			Help: "Total number of session lock attempts",
		},
		[]string{"operation", "outcome"}, // acquired/contended/error
	)

	Heartbeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_heartbeats_total",
			Help: "Total number of heartbeats written by this instance",
		},
	)

	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_health_checks_total",
			Help: "Total number of health checks by resulting status",
		},
		[]string{"status"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_errors_total",
			Help: "Total number of internal errors",
		},
		[]string{"category", "reason"},
	)
)

func TrackStorageOperation(operation, backend string) *prometheus.Timer {
	return prometheus.NewTimer(StorageOperationDuration.WithLabelValues(operation, backend))
}

func TrackAuthAttempt(status, attemptType string) {
	AuthAttempts.WithLabelValues(status, attemptType).Inc()
}

func TrackConflict(action string) {
	SessionConflicts.WithLabelValues(action).Inc()
}

func TrackLockAttempt(operation, outcome string) {
	LockAcquisitions.WithLabelValues(operation, outcome).Inc()
}

func TrackHealthCheck(status string) {
	HealthChecks.WithLabelValues(status).Inc()
}

func TrackError(category, reason string) {
	ErrorsTotal.WithLabelValues(category, reason).Inc()
}
