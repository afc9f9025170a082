package worker

import (
	"context"
	"log/slog"

	"github.com/AgriNextGen/agrinext-jobs/internal/audit"
	"github.com/AgriNextGen/agrinext-jobs/internal/store"
)

// Reporter emits the additive observability around repeatedly failing jobs:
// security events at the escalation threshold and ops inbox items at
// dead-letter. It never influences the retry state machine and all of its
// writes are best-effort.
type Reporter struct {
	store *store.Store
	sink  *audit.Sink
	log   *slog.Logger
}

// NewReporter creates a Reporter.
func NewReporter(st *store.Store, sink *audit.Sink) *Reporter {
	return &Reporter{store: st, sink: sink, log: slog.Default()}
}

// RepeatedFailure records a medium-severity security event for a job that has
// just crossed the escalation threshold. Called exactly once per crossing,
// not on every attempt past it.
func (r *Reporter) RepeatedFailure(ctx context.Context, job store.Job, attempts int, failure error) {
	escalations.Inc()
	r.sink.SecurityEvent(ctx, "job_repeated_failure", store.SeverityMedium, job.ID.String(), map[string]any{
		"job_type": job.JobType,
		"attempts": attempts,
		"error":    failure.Error(),
	})
}

// DeadLetter records the terminal failure of a job: a high-severity security
// event plus an open ops inbox item so a human sees the dead-lettered work.
func (r *Reporter) DeadLetter(ctx context.Context, job store.Job, attempts int, failure error) {
	r.sink.SecurityEvent(ctx, "job_dead_lettered", store.SeverityHigh, job.ID.String(), map[string]any{
		"job_type": job.JobType,
		"attempts": attempts,
		"error":    failure.Error(),
	})
	err := r.store.UpsertOpsItem(ctx, "job_dead_lettered", "job", job.ID.String(),
		store.SeverityHigh,
		"job "+job.JobType+" exhausted its retry budget",
		job.Payload)
	if err != nil {
		// Ops inbox write is observability, not outcome recording; failing it
		// must not fail the job.
		r.log.Error("dead-letter ops item write failed", "job_id", job.ID, "error", err)
	}
}
