package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/AgriNextGen/agrinext-jobs/internal/worker"
)

// notifyDeliver handles notify_deliver_v1: deliver one queued notification by
// email and mark it delivered. Idempotent via the natural key — an
// already-delivered notification is a no-op success, so redelivery under
// at-least-once execution sends at most one extra email and never rewrites
// delivered_at.
func notifyDeliver(d Deps) worker.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p struct {
			NotificationID string `json:"notification_id"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("notify_deliver: decode payload: %w", err)
		}
		if p.NotificationID == "" {
			return errors.New("notify_deliver: missing notification_id")
		}
		id, err := uuid.Parse(p.NotificationID)
		if err != nil {
			return fmt.Errorf("notify_deliver: invalid notification_id: %w", err)
		}

		n, err := d.Store.GetNotification(ctx, id)
		if err != nil {
			return err
		}
		if n == nil {
			return fmt.Errorf("notify_deliver: notification %s not found", id)
		}
		if n.Status == "delivered" {
			return nil
		}

		if err := d.Mailer.Send(ctx, n.RecipientEmail, n.Subject, n.Body); err != nil {
			return fmt.Errorf("notify_deliver: %w", err)
		}
		if err := d.Store.MarkNotificationDelivered(ctx, id); err != nil {
			return err
		}
		d.Sink.WorkflowEvent(ctx, "notification", id.String(), "notification_delivered", nil)
		return nil
	}
}
