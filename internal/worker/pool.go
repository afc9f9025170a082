package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AgriNextGen/agrinext-jobs/internal/store"
)

// Recurring self-hosted job types. The reconciliation and ops-scan loops are
// themselves jobs executed by the engine; the pool enqueues them on their own
// schedules with a dedupe key so overlapping ticks cannot pile up duplicates.
const (
	JobTypeWebhookReconcile = "webhook_reconcile_v1"
	JobTypeOpsScan          = "ops_inbox_scan_v1"

	recurringDedupeKey = "recurring"
)

// PoolConfig holds polling cadence and recovery tuning for a Pool.
// MaxAttempts is the retry budget stamped onto the recurring jobs the pool
// enqueues; it is independent of the escalation threshold.
type PoolConfig struct {
	PollInterval      time.Duration
	StaleLockAfter    time.Duration
	ReconcileInterval time.Duration
	OpsScanInterval   time.Duration
	MaxAttempts       int
}

// Pool drives a Runner on a schedule: a claim ticker invoking RunOnce, a
// stale-lock recovery ticker that frees jobs from crashed workers, and
// recurring-enqueue tickers for the self-hosted job types.
type Pool struct {
	store  *store.Store
	runner *Runner
	cfg    PoolConfig
	log    *slog.Logger
}

// NewPool creates a Pool around runner. Zero config fields get defaults.
func NewPool(st *store.Store, runner *Runner, cfg PoolConfig) *Pool {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.StaleLockAfter <= 0 {
		cfg.StaleLockAfter = 5 * time.Minute
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 5 * time.Minute
	}
	if cfg.OpsScanInterval <= 0 {
		cfg.OpsScanInterval = 15 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Pool{store: st, runner: runner, cfg: cfg, log: slog.Default()}
}

// Start runs the pool until ctx is cancelled. When ctx is cancelled the
// in-flight pass completes and Start returns after all goroutines exit.
func (p *Pool) Start(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runPolling(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runStaleRecovery(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runRecurringEnqueue(ctx)
	}()

	wg.Wait()
	p.log.Info("worker pool stopped", "worker_id", p.runner.WorkerID())
}

// runPolling invokes RunOnce on every tick. Uses time.NewTicker (not
// time.After) to avoid timer leaks.
func (p *Pool) runPolling(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.log.Info("worker polling started",
		"worker_id", p.runner.WorkerID(), "interval", p.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("worker polling stopping")
			return
		case <-ticker.C:
			if _, err := p.runner.RunOnce(ctx, 0); err != nil {
				// Claim-phase errors abort the pass, not the pool; the next
				// tick tries again.
				p.log.Error("run pass failed", "error", err)
			}
		}
	}
}

// runStaleRecovery periodically frees claim markers left behind by crashed
// workers so their jobs become claimable again.
func (p *Pool) runStaleRecovery(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.StaleLockAfter / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.store.RecoverStaleLocks(ctx, p.cfg.StaleLockAfter)
			if err != nil {
				p.log.Error("stale lock recovery failed", "error", err)
				continue
			}
			if n > 0 {
				p.log.Info("recovered stale job locks", "count", n)
			}
		}
	}
}

// runRecurringEnqueue keeps the self-hosted loops scheduled. The dedupe key
// makes each enqueue a no-op while a pending instance of the type exists.
func (p *Pool) runRecurringEnqueue(ctx context.Context) {
	reconcile := time.NewTicker(p.cfg.ReconcileInterval)
	opsScan := time.NewTicker(p.cfg.OpsScanInterval)
	defer reconcile.Stop()
	defer opsScan.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconcile.C:
			p.enqueueRecurring(ctx, JobTypeWebhookReconcile)
		case <-opsScan.C:
			p.enqueueRecurring(ctx, JobTypeOpsScan)
		}
	}
}

func (p *Pool) enqueueRecurring(ctx context.Context, jobType string) {
	id, enqueued, err := p.store.EnqueueUniqueJob(ctx, jobType, nil, recurringDedupeKey, p.cfg.MaxAttempts)
	if err != nil {
		p.log.Error("recurring enqueue failed", "job_type", jobType, "error", err)
		return
	}
	if enqueued {
		p.log.Debug("recurring job enqueued", "job_type", jobType, "job_id", id)
	}
}
