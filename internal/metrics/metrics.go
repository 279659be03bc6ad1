// Package metrics exposes the orchestrator's Prometheus metrics. The teacher
// already carried prometheus/client_golang as an indirect dependency (pulled
// in transitively); this promotes it to a direct one and wires counters and
// histograms around the runner, scheduler, and notification dispatch.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ExecutionsTotal counts completed runs, labeled by kind (backup/restore)
	// and final status.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dbackup",
		Name:      "executions_total",
		Help:      "Total number of completed executions.",
	}, []string{"kind", "status"})

	// ExecutionDuration observes wall-clock run time per kind.
	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dbackup",
		Name:      "execution_duration_seconds",
		Help:      "Execution duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s .. ~2.3h
	}, []string{"kind"})

	// ArtifactBytes observes the size of uploaded artifacts per destination type.
	ArtifactBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dbackup",
		Name:      "artifact_bytes",
		Help:      "Size of uploaded backup artifacts in bytes.",
		Buckets:   prometheus.ExponentialBuckets(1<<20, 4, 12), // 1MiB .. ~4TiB
	}, []string{"destination_type"})

	// SchedulerTicksSkipped counts cron ticks skipped because the per-job
	// mutex was already held (spec §4.6).
	SchedulerTicksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dbackup",
		Name:      "scheduler_ticks_skipped_total",
		Help:      "Cron ticks skipped because the job's previous run was still in flight.",
	}, []string{"job_id"})

	// NotificationsTotal counts channel delivery attempts, labeled by channel
	// type and outcome.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dbackup",
		Name:      "notifications_total",
		Help:      "Total notification delivery attempts.",
	}, []string{"channel_type", "status"})
)

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
