// ABOUTME: Store methods for orders/payments and the idempotent gateway-state apply.
// ABOUTME: ApplyGatewayState is keyed by provider event id via the payment_events marker table.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Gateway event types understood by ApplyGatewayState.
const (
	GatewayPaymentCaptured = "payment.captured"
	GatewayPaymentFailed   = "payment.failed"
	GatewayRefundCompleted = "refund.completed"
)

// ErrUnknownGatewayEvent is returned when a gateway event type has no mapping
// to an order payment state.
var ErrUnknownGatewayEvent = errors.New("unknown gateway event type")

// OrderRef identifies an order in sweep results.
type OrderRef struct {
	ID            uuid.UUID
	PaymentStatus string
	CreatedAt     time.Time
}

// StaleInitiatedPayments returns orders whose payment has been sitting in
// 'initiated' for longer than olderThan, oldest first.
func (s *Store) StaleInitiatedPayments(ctx context.Context, olderThan time.Duration, limit int) ([]OrderRef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, payment_status, created_at
		FROM orders
		WHERE payment_status = 'initiated'
		  AND created_at < now() - ($1 * interval '1 second')
		ORDER BY created_at ASC
		LIMIT $2`, int(olderThan.Seconds()), limit)
	if err != nil {
		return nil, fmt.Errorf("stale initiated payments: %w", err)
	}
	defer rows.Close()
	return scanOrderRefs(rows)
}

// StalePickupOrders returns orders stuck in ready_for_pickup longer than
// olderThan, oldest first.
func (s *Store) StalePickupOrders(ctx context.Context, olderThan time.Duration, limit int) ([]OrderRef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, payment_status, created_at
		FROM orders
		WHERE status = 'ready_for_pickup'
		  AND ready_at IS NOT NULL
		  AND ready_at < now() - ($1 * interval '1 second')
		ORDER BY ready_at ASC
		LIMIT $2`, int(olderThan.Seconds()), limit)
	if err != nil {
		return nil, fmt.Errorf("stale pickup orders: %w", err)
	}
	defer rows.Close()
	return scanOrderRefs(rows)
}

// MarkOrderPaymentFailed moves an order's payment from initiated to failed.
// Only rows still matching the stale predicate are touched, so re-running the
// cleanup is a no-op for already-failed orders. Returns whether a row changed.
func (s *Store) MarkOrderPaymentFailed(ctx context.Context, orderID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET payment_status = 'failed', updated_at = now()
		WHERE id = $1 AND payment_status = 'initiated'`, orderID)
	if err != nil {
		return false, fmt.Errorf("mark order payment failed %s: %w", orderID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ApplyGatewayState applies a provider payment event to an order, exactly
// once per provider event id. The marker insert and the order update share a
// transaction: a second call with the same providerEventID sees the conflict
// and leaves the order untouched. Returns applied=false on the duplicate path.
func (s *Store) ApplyGatewayState(ctx context.Context, providerEventID string, orderID uuid.UUID, eventType string) (bool, error) {
	newStatus, ok := map[string]string{
		GatewayPaymentCaptured: "captured",
		GatewayPaymentFailed:   "failed",
		GatewayRefundCompleted: "refunded",
	}[eventType]
	if !ok {
		return false, fmt.Errorf("apply gateway state: %w: %q", ErrUnknownGatewayEvent, eventType)
	}

	applied := false
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO payment_events (provider_event_id, order_id, event_type)
			VALUES ($1, $2, $3)
			ON CONFLICT (provider_event_id) DO NOTHING`,
			providerEventID, orderID, eventType)
		if err != nil {
			return fmt.Errorf("insert payment event marker: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil // already applied
		}
		if _, err := tx.Exec(ctx, `
			UPDATE orders SET payment_status = $2, updated_at = now()
			WHERE id = $1`, orderID, newStatus); err != nil {
			return fmt.Errorf("update order payment status: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("apply gateway state %s: %w", providerEventID, err)
	}
	return applied, nil
}

// CreateOrder inserts an order row. Used by test fixtures and the enqueuing
// surfaces outside this service.
func (s *Store) CreateOrder(ctx context.Context, status, paymentStatus string, totalCents int64, readyAt *time.Time) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO orders (status, payment_status, total_cents, ready_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, status, paymentStatus, totalCents, readyAt).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create order: %w", err)
	}
	return id, nil
}

// OrderPaymentStatus reads the payment_status of an order, or "" if missing.
func (s *Store) OrderPaymentStatus(ctx context.Context, orderID uuid.UUID) (string, error) {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT payment_status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("order payment status %s: %w", orderID, err)
	}
	return status, nil
}

func scanOrderRefs(rows pgx.Rows) ([]OrderRef, error) {
	var result []OrderRef
	for rows.Next() {
		var o OrderRef
		if err := rows.Scan(&o.ID, &o.PaymentStatus, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}
