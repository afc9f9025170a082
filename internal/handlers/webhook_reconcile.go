package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AgriNextGen/agrinext-jobs/internal/backoff"
	"github.com/AgriNextGen/agrinext-jobs/internal/store"
	"github.com/AgriNextGen/agrinext-jobs/internal/worker"
)

// webhookReconcile handles webhook_reconcile_v1, the redelivery loop for
// failed provider notifications. Each due event is re-applied through the
// idempotent gateway-state operation (keyed by provider event_id, so the
// effect is exactly-once despite at-least-once delivery). An event reaching
// the attempt ceiling is exhausted: high-severity ops item plus security
// event, then left failed with no next_retry_at as a forensic record.
func webhookReconcile(d Deps) worker.Handler {
	return func(ctx context.Context, _ json.RawMessage) error {
		events, err := d.Store.RetryableWebhookEvents(ctx, d.Cfg.WebhookBatchSize)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := reconcileOne(ctx, d, ev); err != nil {
				return err
			}
		}
		return nil
	}
}

// reconcileOne attempts one event and records its new state. Only store
// errors propagate; an application failure moves the event along its own
// retry schedule without failing the sweep.
func reconcileOne(ctx context.Context, d Deps, ev store.WebhookEvent) error {
	applyErr := applyWebhookEvent(ctx, d, ev)
	if applyErr == nil {
		worker.WebhookReconciled.WithLabelValues("processed").Inc()
		return d.Store.MarkWebhookProcessed(ctx, ev.ID)
	}

	attempts := ev.Attempts + 1
	slog.Warn("webhook event application failed",
		"event_id", ev.EventID, "provider", ev.Provider,
		"attempts", attempts, "error", applyErr)

	if attempts >= d.Cfg.WebhookMaxAttempts {
		worker.WebhookReconciled.WithLabelValues("exhausted").Inc()
		d.Sink.SecurityEvent(ctx, "webhook_exhausted", store.SeverityHigh, ev.EventID, map[string]any{
			"provider":   ev.Provider,
			"event_type": ev.EventType,
			"attempts":   attempts,
			"error":      applyErr.Error(),
		})
		metadata, _ := json.Marshal(map[string]any{"provider": ev.Provider, "event_type": ev.EventType})
		if err := d.Store.UpsertOpsItem(ctx,
			"webhook_exhausted", "webhook_event", ev.ID.String(),
			store.SeverityHigh,
			fmt.Sprintf("webhook event %s/%s failed %d times", ev.Provider, ev.EventID, attempts),
			metadata,
		); err != nil {
			return err
		}
		return d.Store.ExhaustWebhookEvent(ctx, ev.ID, attempts, applyErr.Error())
	}

	worker.WebhookReconciled.WithLabelValues("retried").Inc()
	nextRetry := time.Now().Add(backoff.Delay(attempts))
	return d.Store.RetryWebhookEvent(ctx, ev.ID, attempts, nextRetry, applyErr.Error())
}

// applyWebhookEvent re-applies a stored provider payload to the business
// tables.
func applyWebhookEvent(ctx context.Context, d Deps, ev store.WebhookEvent) error {
	var p struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return fmt.Errorf("decode event payload: %w", err)
	}
	if p.OrderID == "" {
		return errors.New("event payload has no order_id")
	}
	orderID, err := uuid.Parse(p.OrderID)
	if err != nil {
		return fmt.Errorf("invalid order_id in event payload: %w", err)
	}

	_, err = d.Store.ApplyGatewayState(ctx, ev.EventID, orderID, ev.EventType)
	return err
}
