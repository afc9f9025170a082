package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AgriNextGen/agrinext-jobs/internal/store"
	"github.com/AgriNextGen/agrinext-jobs/internal/worker"
)

// opsInboxScan handles ops_inbox_scan_v1: a stateless sweep over the business
// tables for anomaly conditions, upserting one deduplicated ops inbox item
// per detected condition. The sweep needs no retry machinery of its own — it
// is naturally idempotent and re-runs on its own schedule.
func opsInboxScan(d Deps) worker.Handler {
	return func(ctx context.Context, _ json.RawMessage) error {
		if err := scanStalePickups(ctx, d); err != nil {
			return err
		}
		if err := scanStalePayments(ctx, d); err != nil {
			return err
		}
		if err := scanOverduePayouts(ctx, d); err != nil {
			return err
		}
		return scanExhaustedWebhooks(ctx, d)
	}
}

func scanStalePickups(ctx context.Context, d Deps) error {
	orders, err := d.Store.StalePickupOrders(ctx, d.Cfg.StalePickupAfter, sweepBatchLimit)
	if err != nil {
		return err
	}
	for _, o := range orders {
		metadata, _ := json.Marshal(map[string]any{"stale_after": d.Cfg.StalePickupAfter.String()})
		if err := d.Store.UpsertOpsItem(ctx,
			"order_stuck_ready", "order", o.ID.String(),
			store.SeverityMedium,
			fmt.Sprintf("order %s has been ready for pickup for over %s", o.ID, d.Cfg.StalePickupAfter),
			metadata,
		); err != nil {
			return err
		}
	}
	return nil
}

func scanStalePayments(ctx context.Context, d Deps) error {
	orders, err := d.Store.StaleInitiatedPayments(ctx, d.Cfg.StalePaymentAfter, sweepBatchLimit)
	if err != nil {
		return err
	}
	for _, o := range orders {
		metadata, _ := json.Marshal(map[string]any{"created_at": o.CreatedAt.Format(time.RFC3339)})
		if err := d.Store.UpsertOpsItem(ctx,
			"payment_stale_initiated", "order", o.ID.String(),
			store.SeverityMedium,
			fmt.Sprintf("order %s payment still initiated after %s", o.ID, d.Cfg.StalePaymentAfter),
			metadata,
		); err != nil {
			return err
		}
	}
	return nil
}

func scanOverduePayouts(ctx context.Context, d Deps) error {
	payouts, err := d.Store.OverduePayouts(ctx, sweepBatchLimit)
	if err != nil {
		return err
	}
	for _, p := range payouts {
		metadata, _ := json.Marshal(map[string]any{
			"producer_id":  p.ProducerID,
			"amount_cents": p.AmountCents,
			"due_at":       p.DueAt.Format(time.RFC3339),
		})
		if err := d.Store.UpsertOpsItem(ctx,
			"payout_overdue", "payout", p.ID.String(),
			store.SeverityMedium,
			fmt.Sprintf("payout %s to producer %s is past due", p.ID, p.ProducerID),
			metadata,
		); err != nil {
			return err
		}
	}
	return nil
}

func scanExhaustedWebhooks(ctx context.Context, d Deps) error {
	events, err := d.Store.ExhaustedWebhookEvents(ctx, sweepBatchLimit)
	if err != nil {
		return err
	}
	for _, ev := range events {
		metadata, _ := json.Marshal(map[string]any{"provider": ev.Provider, "event_type": ev.EventType})
		if err := d.Store.UpsertOpsItem(ctx,
			"webhook_exhausted", "webhook_event", ev.ID.String(),
			store.SeverityHigh,
			fmt.Sprintf("webhook event %s/%s exhausted its retries", ev.Provider, ev.EventID),
			metadata,
		); err != nil {
			return err
		}
	}
	return nil
}
