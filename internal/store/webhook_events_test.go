// ABOUTME: Integration tests for store/webhook_events.go — retry scheduling and exhaustion.
package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/AgriNextGen/agrinext-jobs/internal/store"
	"github.com/AgriNextGen/agrinext-jobs/internal/testutil"
)

// mustInsertWebhookEvent inserts a webhook event or fatals.
func mustInsertWebhookEvent(t *testing.T, s *testutil.TestDB, ctx context.Context, eventID string) uuid.UUID {
	t.Helper()
	id, err := s.InsertWebhookEvent(ctx, "gateway", eventID, store.GatewayPaymentCaptured,
		json.RawMessage(`{"order_id":"not-a-real-order"}`))
	if err != nil {
		t.Fatalf("InsertWebhookEvent: %v", err)
	}
	return id
}

func TestRetryableWebhookEventsSelection(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	due := mustInsertWebhookEvent(t, s, ctx, "evt-due")
	future := mustInsertWebhookEvent(t, s, ctx, "evt-future")
	pending := mustInsertWebhookEvent(t, s, ctx, "evt-pending")
	exhausted := mustInsertWebhookEvent(t, s, ctx, "evt-exhausted")

	if err := s.RetryWebhookEvent(ctx, due, 1, time.Now().Add(-time.Minute), "apply failed"); err != nil {
		t.Fatalf("RetryWebhookEvent(due): %v", err)
	}
	if err := s.RetryWebhookEvent(ctx, future, 1, time.Now().Add(time.Hour), "apply failed"); err != nil {
		t.Fatalf("RetryWebhookEvent(future): %v", err)
	}
	if err := s.ExhaustWebhookEvent(ctx, exhausted, 5, "apply failed"); err != nil {
		t.Fatalf("ExhaustWebhookEvent: %v", err)
	}

	events, err := s.RetryableWebhookEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RetryableWebhookEvents: %v", err)
	}
	if len(events) != 1 || events[0].ID != due {
		t.Fatalf("retryable = %d events, want only the due failed one", len(events))
	}
	_ = pending // still pending: never swept, handled on ingest

	ex, err := s.ExhaustedWebhookEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ExhaustedWebhookEvents: %v", err)
	}
	if len(ex) != 1 || ex[0].ID != exhausted {
		t.Fatalf("exhausted = %d events, want only the exhausted one", len(ex))
	}
}

func TestExhaustWebhookEventKeepsForensicRecord(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	id := mustInsertWebhookEvent(t, s, ctx, "evt-1")
	if err := s.ExhaustWebhookEvent(ctx, id, 5, "no such order"); err != nil {
		t.Fatalf("ExhaustWebhookEvent: %v", err)
	}

	ev, err := s.GetWebhookEvent(ctx, id)
	if err != nil || ev == nil {
		t.Fatalf("GetWebhookEvent: %v", err)
	}
	if ev.ProcessingStatus != store.WebhookFailed {
		t.Errorf("status = %q, want failed (exhausted rows stay failed)", ev.ProcessingStatus)
	}
	if ev.NextRetryAt != nil {
		t.Errorf("next_retry_at = %v, want nil", ev.NextRetryAt)
	}
	if ev.Attempts != 5 {
		t.Errorf("attempts = %d, want 5", ev.Attempts)
	}
	if ev.LastError == nil || *ev.LastError != "no such order" {
		t.Errorf("last_error = %v, want preserved", ev.LastError)
	}
}

func TestMarkWebhookProcessed(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	id := mustInsertWebhookEvent(t, s, ctx, "evt-1")
	if err := s.RetryWebhookEvent(ctx, id, 2, time.Now().Add(-time.Minute), "transient"); err != nil {
		t.Fatalf("RetryWebhookEvent: %v", err)
	}
	if err := s.MarkWebhookProcessed(ctx, id); err != nil {
		t.Fatalf("MarkWebhookProcessed: %v", err)
	}

	ev, err := s.GetWebhookEvent(ctx, id)
	if err != nil || ev == nil {
		t.Fatalf("GetWebhookEvent: %v", err)
	}
	if ev.ProcessingStatus != store.WebhookProcessed {
		t.Errorf("status = %q, want processed", ev.ProcessingStatus)
	}
	if ev.ProcessedAt == nil {
		t.Error("processed_at not set")
	}
	if ev.NextRetryAt != nil || ev.LastError != nil {
		t.Errorf("retry state not cleared: next_retry_at=%v last_error=%v", ev.NextRetryAt, ev.LastError)
	}

	events, err := s.RetryableWebhookEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RetryableWebhookEvents: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("processed event still swept: %d events", len(events))
	}
}

func TestInsertWebhookEventRejectsDuplicates(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	mustInsertWebhookEvent(t, s, ctx, "evt-1")
	if _, err := s.InsertWebhookEvent(ctx, "gateway", "evt-1", store.GatewayPaymentCaptured, nil); err == nil {
		t.Fatal("duplicate (provider, event_id) insert succeeded, want unique violation")
	}
}
