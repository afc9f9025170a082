// Package handlers contains the job handlers executed by the worker engine.
//
// Every handler here is idempotent or keys its side effects on natural
// identifiers from the payload, because delivery is at-least-once. Validation
// failures (missing payload fields) are ordinary failures: they consume the
// retry budget like any other error until the job dead-letters.
package handlers

import (
	"github.com/AgriNextGen/agrinext-jobs/internal/audit"
	"github.com/AgriNextGen/agrinext-jobs/internal/config"
	"github.com/AgriNextGen/agrinext-jobs/internal/store"
	"github.com/AgriNextGen/agrinext-jobs/internal/worker"
)

// Job types handled by this package. The recurring loop types are defined in
// the worker package because the pool schedules them.
const (
	JobTypeNotifyDeliver   = "notify_deliver_v1"
	JobTypeAnalyticsRollup = "analytics_rollup_daily_v1"
	JobTypePaymentsCleanup = "payments_cleanup_stale_v1"
	JobTypePaymentsRecon   = "payments_reconcile_v1"
	JobTypeRefundInitiate  = "refund_initiate_v1"
	JobTypeTriageSuggest   = "triage_suggest_v1"
	JobTypeTimelineSummary = "timeline_summary_v1"
)

// Deps carries the collaborators handlers close over. Mailer and Gateway are
// interfaces so tests can substitute fakes.
type Deps struct {
	Store   *store.Store
	Sink    *audit.Sink
	Cfg     *config.Config
	Mailer  Mailer
	Gateway RefundGateway
}

// RegisterAll registers every job type exactly once.
func RegisterAll(reg *worker.Registry, d Deps) {
	reg.Register(JobTypeNotifyDeliver, notifyDeliver(d))
	reg.Register(JobTypeAnalyticsRollup, analyticsRollup(d))
	reg.Register(JobTypePaymentsCleanup, paymentsCleanupStale(d))
	reg.Register(JobTypePaymentsRecon, paymentsReconcile(d))
	reg.Register(JobTypeRefundInitiate, refundInitiate(d))
	reg.Register(JobTypeTriageSuggest, triageSuggest(d))
	reg.Register(JobTypeTimelineSummary, timelineSummary(d))
	reg.Register(worker.JobTypeWebhookReconcile, webhookReconcile(d))
	reg.Register(worker.JobTypeOpsScan, opsInboxScan(d))
}
