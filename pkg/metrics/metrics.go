// Package metrics provides Prometheus metrics for the KMS service
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the KMS service
type Metrics struct {
	// Lifecycle transition metrics
	TransitionsTotal        *prometheus.CounterVec
	TransitionFailuresTotal *prometheus.CounterVec

	// Expiry scanner metrics
	ExpiryScansTotal           prometheus.Counter
	ExpiryScanDuration         prometheus.Histogram
	DocumentsMarkedExpired     prometheus.Counter
	DocumentsMarkedNearExpired prometheus.Counter

	// Intake pipeline metrics
	CollectedDocumentsTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	m := &Metrics{}

	m.TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kms_lifecycle_transitions_total",
			Help: "Total number of successful lifecycle transitions",
		},
		[]string{"operation"},
	)

	m.TransitionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kms_lifecycle_transition_failures_total",
			Help: "Total number of rejected lifecycle transitions",
		},
		[]string{"operation", "code"},
	)

	m.ExpiryScansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kms_expiry_scans_total",
			Help: "Total number of expiry scan cycles",
		},
	)

	m.ExpiryScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kms_expiry_scan_duration_seconds",
			Help:    "Duration of expiry scan cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.DocumentsMarkedExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kms_documents_marked_expired_total",
			Help: "Total number of documents moved to expired by the scanner",
		},
	)

	m.DocumentsMarkedNearExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kms_documents_marked_near_expired_total",
			Help: "Total number of documents moved to near-expired by the scanner",
		},
	)

	m.CollectedDocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kms_collected_documents_total",
			Help: "Total number of collected documents by pipeline outcome",
		},
		[]string{"status"},
	)

	return m
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
