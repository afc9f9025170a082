// ABOUTME: Integration tests for the run loop — retry scheduling, dead-lettering,
// ABOUTME: single-shot escalation, and failure isolation within a batch.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/AgriNextGen/agrinext-jobs/internal/audit"
	"github.com/AgriNextGen/agrinext-jobs/internal/store"
	"github.com/AgriNextGen/agrinext-jobs/internal/testutil"
	"github.com/AgriNextGen/agrinext-jobs/internal/worker"
)

// newTestRunner builds a runner over the test database with the given registry.
func newTestRunner(s *testutil.TestDB, reg *worker.Registry) *worker.Runner {
	sink := audit.NewSink(s.Store)
	return worker.NewRunner(s.Store, reg, worker.NewReporter(s.Store, sink), worker.RunnerConfig{
		BatchSize:           10,
		EscalationThreshold: 3,
		HandlerTimeout:      5 * time.Second,
	})
}

// enqueueDue enqueues a job already eligible for claiming.
func enqueueDue(t *testing.T, s *testutil.TestDB, jobType string, payload json.RawMessage) uuid.UUID {
	t.Helper()
	runAfter := time.Now().Add(-time.Minute)
	id, err := s.EnqueueJob(context.Background(), jobType, payload, 0, &runAfter)
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	return id
}

// makeDue clears the backoff delay so the job is claimable on the next pass.
func makeDue(t *testing.T, s *testutil.TestDB, id uuid.UUID) {
	t.Helper()
	_, err := s.Pool().Exec(context.Background(),
		`UPDATE jobs SET next_run_at = now() - interval '1 second'
		 WHERE id=$1 AND next_run_at IS NOT NULL`, id)
	if err != nil {
		t.Fatalf("makeDue: %v", err)
	}
}

func TestRunOnceSuccess(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	var gotPayload string
	reg := worker.NewRegistry()
	reg.Register("echo", func(_ context.Context, payload json.RawMessage) error {
		gotPayload = string(payload)
		return nil
	})
	runner := newTestRunner(s, reg)

	id := enqueueDue(t, s, "echo", json.RawMessage(`{"n":1}`))

	summary, err := runner.RunOnce(ctx, 0)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Processed != 1 || summary.Succeeded != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 1 processed, 1 succeeded", summary)
	}
	if gotPayload != `{"n":1}` {
		t.Errorf("handler payload = %q", gotPayload)
	}

	row, err := s.GetJob(ctx, id)
	if err != nil || row == nil {
		t.Fatalf("GetJob: %v", err)
	}
	if row.Status != store.JobSucceeded {
		t.Errorf("status = %q, want succeeded", row.Status)
	}
	if row.Attempts != 0 {
		t.Errorf("attempts = %d, want 0 (success does not consume an attempt)", row.Attempts)
	}
}

func TestRunOnceUnknownJobType(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	runner := newTestRunner(s, worker.NewRegistry())
	id := enqueueDue(t, s, "does_not_exist", nil)

	before := time.Now()
	summary, err := runner.RunOnce(ctx, 0)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Processed != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 1 processed, 1 failed", summary)
	}

	row, err := s.GetJob(ctx, id)
	if err != nil || row == nil {
		t.Fatalf("GetJob: %v", err)
	}
	if row.Status != store.JobFailed {
		t.Errorf("status = %q, want failed (unknown type is an ordinary failure)", row.Status)
	}
	if row.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", row.Attempts)
	}
	if row.LastError == nil || !strings.Contains(*row.LastError, "unknown job_type: does_not_exist") {
		t.Errorf("last_error = %v, want unknown job_type message", row.LastError)
	}
	if row.NextRunAt == nil {
		t.Fatal("next_run_at is nil, want first-attempt backoff")
	}
	delay := row.NextRunAt.Sub(before)
	if delay < 50*time.Second || delay > 70*time.Second {
		t.Errorf("retry delay = %v, want ~60s", delay)
	}
}

func TestDeadLetterAfterMaxAttemptsWithSingleEscalation(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	reg := worker.NewRegistry()
	reg.Register("always_fails", func(context.Context, json.RawMessage) error {
		return errors.New("downstream unavailable")
	})
	runner := newTestRunner(s, reg)

	id := enqueueDue(t, s, "always_fails", nil)

	for attempt := 1; attempt <= 5; attempt++ {
		summary, err := runner.RunOnce(ctx, 0)
		if err != nil {
			t.Fatalf("RunOnce #%d: %v", attempt, err)
		}
		if summary.Processed != 1 || summary.Failed != 1 {
			t.Fatalf("RunOnce #%d summary = %+v, want 1 failed", attempt, summary)
		}
		makeDue(t, s, id)
	}

	row, err := s.GetJob(ctx, id)
	if err != nil || row == nil {
		t.Fatalf("GetJob: %v", err)
	}
	if row.Status != store.JobDead {
		t.Fatalf("status = %q after 5 attempts, want dead", row.Status)
	}
	if row.Attempts != 5 {
		t.Errorf("attempts = %d, want 5", row.Attempts)
	}
	if row.NextRunAt != nil {
		t.Errorf("next_run_at = %v, want nil on a dead job", row.NextRunAt)
	}

	// A sixth pass finds nothing: dead jobs are invisible to the claim.
	summary, err := runner.RunOnce(ctx, 0)
	if err != nil {
		t.Fatalf("RunOnce after death: %v", err)
	}
	if summary.Processed != 0 {
		t.Fatalf("processed %d jobs after death, want 0", summary.Processed)
	}

	// The escalation fired exactly once, at the third attempt, despite the
	// fourth and fifth failures.
	n, err := s.CountSecurityEvents(ctx, "job_repeated_failure", id.String())
	if err != nil {
		t.Fatalf("CountSecurityEvents: %v", err)
	}
	if n != 1 {
		t.Errorf("job_repeated_failure events = %d, want exactly 1", n)
	}

	n, err = s.CountSecurityEvents(ctx, "job_dead_lettered", id.String())
	if err != nil {
		t.Fatalf("CountSecurityEvents: %v", err)
	}
	if n != 1 {
		t.Errorf("job_dead_lettered events = %d, want exactly 1", n)
	}

	// Dead-lettering also surfaces in the ops inbox.
	items, err := s.ListOpsItems(ctx, store.OpsItemFilter{Status: "open", ItemType: "job_dead_lettered", Limit: 10})
	if err != nil {
		t.Fatalf("ListOpsItems: %v", err)
	}
	if len(items) != 1 || items[0].EntityID != id.String() {
		t.Fatalf("dead-letter ops items = %d, want 1 for the job", len(items))
	}
}

func TestHandlerPanicBecomesFailure(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	reg := worker.NewRegistry()
	reg.Register("panics", func(context.Context, json.RawMessage) error {
		panic("nil map write")
	})
	runner := newTestRunner(s, reg)

	id := enqueueDue(t, s, "panics", nil)

	summary, err := runner.RunOnce(ctx, 0)
	if err != nil {
		t.Fatalf("RunOnce: %v (a panicking handler must not abort the run)", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 1 failed", summary)
	}

	row, err := s.GetJob(ctx, id)
	if err != nil || row == nil {
		t.Fatalf("GetJob: %v", err)
	}
	if row.Status != store.JobFailed {
		t.Errorf("status = %q, want failed", row.Status)
	}
	if row.LastError == nil || !strings.Contains(*row.LastError, "handler panic") {
		t.Errorf("last_error = %v, want handler panic message", row.LastError)
	}
}

func TestFailureIsolationWithinBatch(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	reg := worker.NewRegistry()
	reg.Register("good", func(context.Context, json.RawMessage) error { return nil })
	reg.Register("bad", func(context.Context, json.RawMessage) error {
		return errors.New("nope")
	})
	runner := newTestRunner(s, reg)

	goodID := enqueueDue(t, s, "good", nil)
	badID := enqueueDue(t, s, "bad", nil)
	good2ID := enqueueDue(t, s, "good", nil)

	summary, err := runner.RunOnce(ctx, 0)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Processed != 3 || summary.Succeeded != 2 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 3/2/1", summary)
	}

	for _, id := range []uuid.UUID{goodID, good2ID} {
		row, _ := s.GetJob(ctx, id)
		if row == nil || row.Status != store.JobSucceeded {
			t.Errorf("good job %v not succeeded", id)
		}
	}
	row, _ := s.GetJob(ctx, badID)
	if row == nil || row.Status != store.JobFailed {
		t.Error("bad job not failed")
	}
}

func TestRunOnceBatchSizeOverride(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	reg := worker.NewRegistry()
	reg.Register("work", func(context.Context, json.RawMessage) error { return nil })
	runner := newTestRunner(s, reg)

	for i := 0; i < 4; i++ {
		enqueueDue(t, s, "work", nil)
	}

	summary, err := runner.RunOnce(ctx, 2)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Processed != 2 {
		t.Fatalf("processed %d with override 2, want 2", summary.Processed)
	}

	summary, err = runner.RunOnce(ctx, 0)
	if err != nil {
		t.Fatalf("RunOnce (default): %v", err)
	}
	if summary.Processed != 2 {
		t.Fatalf("processed %d on second pass, want the remaining 2", summary.Processed)
	}
}
