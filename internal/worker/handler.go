// Package worker is the job processing engine: a handler registry, a run
// loop that claims batches from the jobs table and records per-job outcomes,
// and a polling pool that drives the loop plus stale-lock recovery.
//
// Handlers are registered per job_type before the loop starts. Delivery is
// at-least-once: a handler may be invoked more than once for the same job
// under crash scenarios and must be idempotent or key its side effects on the
// payload's natural identifiers.
package worker

import (
	"context"
	"encoding/json"
)

// Handler is the function executed for each claimed job. A non-nil return
// value triggers retry logic (the fixed backoff schedule up to max_attempts,
// then dead status). A nil return marks the job succeeded.
//
// Handlers must not swallow errors they want retried, but may intentionally
// swallow errors on best-effort side channels such as audit logging.
type Handler func(ctx context.Context, payload json.RawMessage) error
