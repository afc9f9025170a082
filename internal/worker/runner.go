package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AgriNextGen/agrinext-jobs/internal/backoff"
	"github.com/AgriNextGen/agrinext-jobs/internal/store"
)

// RunSummary is the aggregate outcome of one run loop invocation.
type RunSummary struct {
	RunID     uuid.UUID `json:"run_id"`
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
}

// RunnerConfig holds the engine tuning parameters (sourced from config.Config).
type RunnerConfig struct {
	BatchSize           int
	EscalationThreshold int
	HandlerTimeout      time.Duration
}

// Runner executes one processing pass at a time: claim a batch, dispatch each
// job to its handler, record per-job outcomes, and book-keep the run. Multiple
// Runner instances (in separate processes) coordinate solely through the
// store's atomic claim.
type Runner struct {
	store    *store.Store
	registry *Registry
	reporter *Reporter
	workerID string
	cfg      RunnerConfig
	log      *slog.Logger
}

// NewRunner creates a Runner. A random workerID distinguishes this process in
// the locked_by column and in job_runs rows.
func NewRunner(st *store.Store, reg *Registry, rep *Reporter, cfg RunnerConfig) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = 3
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = time.Minute
	}
	return &Runner{
		store:    st,
		registry: reg,
		reporter: rep,
		workerID: uuid.New().String(),
		cfg:      cfg,
		log:      slog.Default(),
	}
}

// WorkerID returns this runner's worker identity.
func (r *Runner) WorkerID() string { return r.workerID }

// RunOnce executes one processing pass over up to batchSize jobs
// (batchSize <= 0 uses the configured default). A claim-phase or bookkeeping
// error aborts the run and is returned; individual handler failures never do —
// they are persisted as per-job outcomes and reflected in the summary.
func (r *Runner) RunOnce(ctx context.Context, batchSize int) (RunSummary, error) {
	if batchSize <= 0 {
		batchSize = r.cfg.BatchSize
	}
	started := time.Now()

	runID, err := r.store.CreateRun(ctx, r.workerID)
	if err != nil {
		return RunSummary{}, fmt.Errorf("create run: %w", err)
	}
	summary := RunSummary{RunID: runID}

	jobs, err := r.store.ClaimJobs(ctx, r.workerID, batchSize)
	if err != nil {
		// Fail fast before touching any job; nothing is partially attributed.
		if finishErr := r.store.FinishRun(ctx, runID, 0, 0, 0); finishErr != nil {
			r.log.Error("finish run after claim failure", "run_id", runID, "error", finishErr)
		}
		return summary, fmt.Errorf("claim jobs: %w", err)
	}

	for _, job := range jobs {
		summary.Processed++
		if r.processJob(ctx, job) {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	if err := r.store.FinishRun(ctx, runID, summary.Processed, summary.Succeeded, summary.Failed); err != nil {
		return summary, fmt.Errorf("finish run: %w", err)
	}

	runDuration.Observe(time.Since(started).Seconds())
	if summary.Processed > 0 {
		r.log.Info("run complete",
			"run_id", runID, "worker_id", r.workerID,
			"processed", summary.Processed, "succeeded", summary.Succeeded, "failed", summary.Failed)
	}
	return summary, nil
}

// processJob dispatches one claimed job and records its outcome. Reports
// whether the job succeeded. An error from one job never propagates to the
// rest of the batch.
func (r *Runner) processJob(ctx context.Context, job store.Job) bool {
	execErr := r.dispatch(ctx, job)

	if execErr == nil {
		if err := r.store.RecordSuccess(ctx, job.ID); err != nil {
			// The outcome write failed: the job stays claimed (recovered by the
			// stale-lock sweep) and is not counted as succeeded anywhere.
			r.log.Error("record success", "job_id", job.ID, "error", err)
			return false
		}
		jobsProcessed.WithLabelValues(job.JobType, "succeeded").Inc()
		return true
	}

	attempts := job.Attempts + 1
	nextRunAt := backoff.NextRunAt(time.Now(), attempts, job.MaxAttempts)
	dead := nextRunAt == nil

	result := "failed"
	if dead {
		result = "dead"
	}
	jobsProcessed.WithLabelValues(job.JobType, result).Inc()
	r.log.Warn("job failed",
		"job_id", job.ID, "job_type", job.JobType,
		"attempts", attempts, "dead", dead, "error", execErr)

	if err := r.store.RecordFailure(ctx, job.ID, attempts, nextRunAt, execErr.Error()); err != nil {
		r.log.Error("record failure", "job_id", job.ID, "error", err)
	}

	// Escalation fires exactly once, when the attempt count reaches the
	// threshold — not again on later attempts. Independent of dead-lettering.
	if attempts == r.cfg.EscalationThreshold {
		r.reporter.RepeatedFailure(ctx, job, attempts, execErr)
	}
	if dead {
		r.reporter.DeadLetter(ctx, job, attempts, execErr)
	}
	return false
}

// dispatch resolves and invokes the handler under the per-job timeout,
// converting unknown types and panics into ordinary failures.
func (r *Runner) dispatch(ctx context.Context, job store.Job) (err error) {
	h, ok := r.registry.Resolve(job.JobType)
	if !ok {
		return fmt.Errorf("unknown job_type: %s", job.JobType)
	}

	jctx, cancel := context.WithTimeout(ctx, r.cfg.HandlerTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h(jctx, job.Payload)
}
