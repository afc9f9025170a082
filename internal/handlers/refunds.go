package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AgriNextGen/agrinext-jobs/internal/store"
	"github.com/AgriNextGen/agrinext-jobs/internal/worker"
)

// RefundGateway initiates a refund with the payment provider. Implementations
// must be idempotent per refund id: the handler may call InitiateRefund more
// than once for the same refund under retry.
type RefundGateway interface {
	InitiateRefund(ctx context.Context, refundID uuid.UUID, amountCents int64) error
}

// NewRefundGateway returns the default gateway client. The provider
// integration lives behind this interface; the default implementation logs
// and succeeds so the envelope is exercisable without provider credentials.
func NewRefundGateway() RefundGateway {
	return loggingGateway{}
}

type loggingGateway struct{}

func (loggingGateway) InitiateRefund(_ context.Context, refundID uuid.UUID, amountCents int64) error {
	slog.Info("refund initiated with provider", "refund_id", refundID, "amount_cents", amountCents)
	return nil
}

// refundInitiate handles refund_initiate_v1: validate the refund is approved,
// move it to processing, and call the provider. A provider failure marks the
// refund failed AND raises a high-severity ops inbox item, then re-raises so
// the job retries on the normal backoff schedule.
func refundInitiate(d Deps) worker.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p struct {
			RefundID string `json:"refund_id"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("refund_initiate: decode payload: %w", err)
		}
		if p.RefundID == "" {
			return errors.New("refund_initiate: missing refund_id")
		}
		id, err := uuid.Parse(p.RefundID)
		if err != nil {
			return fmt.Errorf("refund_initiate: invalid refund_id: %w", err)
		}

		r, err := d.Store.GetRefund(ctx, id)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("refund_initiate: refund %s not found", id)
		}

		switch r.Status {
		case "approved":
			if _, err := d.Store.MarkRefundProcessing(ctx, id); err != nil {
				return err
			}
		case "processing":
			// A previous attempt crashed between the state transition and the
			// provider call; proceed — the gateway is idempotent per refund id.
		default:
			return fmt.Errorf("refund_initiate: refund %s is not approved (status %s)", id, r.Status)
		}

		if err := d.Gateway.InitiateRefund(ctx, id, r.AmountCents); err != nil {
			if markErr := d.Store.MarkRefundFailed(ctx, id, err.Error()); markErr != nil {
				slog.Error("mark refund failed", "refund_id", id, "error", markErr)
			}
			metadata, _ := json.Marshal(map[string]any{"order_id": r.OrderID, "error": err.Error()})
			if opsErr := d.Store.UpsertOpsItem(ctx,
				"refund_provider_failure", "refund", id.String(),
				store.SeverityHigh,
				fmt.Sprintf("provider call failed for refund %s", id),
				metadata,
			); opsErr != nil {
				slog.Error("refund ops item write failed", "refund_id", id, "error", opsErr)
			}
			return fmt.Errorf("refund_initiate: provider call: %w", err)
		}

		d.Sink.WorkflowEvent(ctx, "refund", id.String(), "refund_initiated", map[string]any{
			"amount_cents": r.AmountCents,
		})
		return nil
	}
}
