package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AgriNextGen/agrinext-jobs/internal/store"
	"github.com/AgriNextGen/agrinext-jobs/internal/worker"
)

const sweepBatchLimit = 500

// paymentsCleanupStale handles payments_cleanup_stale_v1: orders whose
// payment has sat in 'initiated' beyond the configured threshold are marked
// failed. Idempotent — re-running only affects rows still matching the stale
// predicate.
func paymentsCleanupStale(d Deps) worker.Handler {
	return func(ctx context.Context, _ json.RawMessage) error {
		stale, err := d.Store.StaleInitiatedPayments(ctx, d.Cfg.StalePaymentAfter, sweepBatchLimit)
		if err != nil {
			return err
		}
		for _, o := range stale {
			changed, err := d.Store.MarkOrderPaymentFailed(ctx, o.ID)
			if err != nil {
				return err
			}
			if changed {
				d.Sink.WorkflowEvent(ctx, "order", o.ID.String(), "payment_marked_failed", map[string]any{
					"reason": "stale initiated payment",
				})
			}
		}
		return nil
	}
}

// paymentsReconcile handles payments_reconcile_v1: for each stale order,
// consult the latest known gateway event. A captured payment is applied
// idempotently (keyed by provider event id); an order the gateway never
// reported on raises an ops inbox item instead of failing the job, leaving a
// human-visible trace without crashing the sweep.
func paymentsReconcile(d Deps) worker.Handler {
	return func(ctx context.Context, _ json.RawMessage) error {
		stale, err := d.Store.StaleInitiatedPayments(ctx, d.Cfg.StalePaymentAfter, sweepBatchLimit)
		if err != nil {
			return err
		}
		for _, o := range stale {
			ev, err := d.Store.LatestGatewayEvent(ctx, o.ID)
			if err != nil {
				return err
			}
			if ev == nil {
				metadata, _ := json.Marshal(map[string]any{"order_id": o.ID})
				if err := d.Store.UpsertOpsItem(ctx,
					"payment_unreconciled", "order", o.ID.String(),
					store.SeverityMedium,
					fmt.Sprintf("order %s has a stale initiated payment and no gateway event", o.ID),
					metadata,
				); err != nil {
					return err
				}
				continue
			}

			applied, err := d.Store.ApplyGatewayState(ctx, ev.EventID, o.ID, ev.EventType)
			if err != nil {
				return err
			}
			if applied {
				d.Sink.WorkflowEvent(ctx, "order", o.ID.String(), "gateway_state_applied", map[string]any{
					"provider_event_id": ev.EventID,
					"event_type":        ev.EventType,
				})
			}
		}
		return nil
	}
}
