// Package metrics provides Prometheus metrics for sharefs operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharefs_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sharefs_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Blob store operation metrics
	BlobOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharefs_blob_ops_total",
			Help: "Total number of blob store operations",
		},
		[]string{"backend", "operation"},
	)

	BlobOpErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharefs_blob_op_errors_total",
			Help: "Total number of failed blob store operations",
		},
		[]string{"backend", "operation"},
	)

	// File lifecycle metrics
	FileUploadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharefs_file_uploads_total",
			Help: "Total number of files created",
		},
	)

	FileDeletionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharefs_file_deletions_total",
			Help: "Total number of files deleted",
		},
	)

	FileDownloadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharefs_file_downloads_total",
			Help: "Total number of download URLs minted for authenticated principals",
		},
	)

	OrphanedBlobsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharefs_orphaned_blobs_total",
			Help: "Total number of blobs left behind after a failed rollback",
		},
	)

	// Share token metrics
	ShareIssuesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharefs_share_issues_total",
			Help: "Total number of share tokens issued",
		},
	)

	ShareRevocationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharefs_share_revocations_total",
			Help: "Total number of share tokens revoked",
		},
	)

	// ShareResolutionsTotal tracks resolution outcomes by internal category.
	// The anonymous HTTP response never exposes the category; this counter is
	// the operator-facing view of it.
	ShareResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharefs_share_resolutions_total",
			Help: "Total number of share token resolutions by outcome",
		},
		[]string{"outcome"},
	)

	ShareCleanupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharefs_share_cleanups_total",
			Help: "Total number of share tokens removed by the cleanup worker",
		},
		[]string{"reason"},
	)

	// Authorization metrics
	AuthzDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharefs_authz_denials_total",
			Help: "Total number of authorization denials by required role",
		},
		[]string{"required_role"},
	)
)
