package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrinext_jobs_processed_total",
		Help: "Jobs processed by the run loop, by job type and result.",
	}, []string{"job_type", "result"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agrinext_job_run_duration_seconds",
		Help:    "Duration of one worker run loop invocation.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	escalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrinext_job_escalations_total",
		Help: "Jobs that crossed the repeated-failure escalation threshold.",
	})

	// WebhookReconciled is incremented by the webhook reconciliation handler,
	// by result (processed, retried, exhausted).
	WebhookReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrinext_webhook_reconcile_total",
		Help: "Webhook reconciliation attempts, by result.",
	}, []string{"result"})
)
