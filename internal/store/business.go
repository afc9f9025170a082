// ABOUTME: Store methods for notifications, refunds, payouts, analytics rollups,
// ABOUTME: and triage suggestions — the business rows handlers mutate.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ── Notifications ─────────────────────────────────────────────────────────────

// Notification is a queued customer notification.
type Notification struct {
	ID             uuid.UUID
	RecipientEmail string
	Subject        string
	Body           string
	Status         string
	DeliveredAt    *time.Time
	CreatedAt      time.Time
}

// GetNotification returns the notification with the given id, or nil if missing.
func (s *Store) GetNotification(ctx context.Context, id uuid.UUID) (*Notification, error) {
	var n Notification
	err := s.pool.QueryRow(ctx, `
		SELECT id, recipient_email, subject, body, status, delivered_at, created_at
		FROM notifications WHERE id = $1`, id).
		Scan(&n.ID, &n.RecipientEmail, &n.Subject, &n.Body, &n.Status, &n.DeliveredAt, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification %s: %w", id, err)
	}
	return &n, nil
}

// MarkNotificationDelivered transitions a queued notification to delivered.
// Already-delivered rows are left alone, so redelivery under at-least-once
// execution does not move delivered_at.
func (s *Store) MarkNotificationDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'delivered', delivered_at = now()
		WHERE id = $1 AND status = 'queued'`, id)
	if err != nil {
		return fmt.Errorf("mark notification delivered %s: %w", id, err)
	}
	return nil
}

// CreateNotification inserts a queued notification row.
func (s *Store) CreateNotification(ctx context.Context, recipient, subject, body string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notifications (recipient_email, subject, body)
		VALUES ($1, $2, $3) RETURNING id`, recipient, subject, body).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create notification: %w", err)
	}
	return id, nil
}

// ── Refunds ───────────────────────────────────────────────────────────────────

// Refund is a refund request against an order.
type Refund struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	Status        string
	AmountCents   int64
	FailureReason *string
	CreatedAt     time.Time
}

// GetRefund returns the refund with the given id, or nil if missing.
func (s *Store) GetRefund(ctx context.Context, id uuid.UUID) (*Refund, error) {
	var r Refund
	err := s.pool.QueryRow(ctx, `
		SELECT id, order_id, status, amount_cents, failure_reason, created_at
		FROM refunds WHERE id = $1`, id).
		Scan(&r.ID, &r.OrderID, &r.Status, &r.AmountCents, &r.FailureReason, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get refund %s: %w", id, err)
	}
	return &r, nil
}

// MarkRefundProcessing moves an approved refund to processing. Returns
// whether the transition happened — false means the refund was not approved.
func (s *Store) MarkRefundProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refunds SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status = 'approved'`, id)
	if err != nil {
		return false, fmt.Errorf("mark refund processing %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkRefundFailed records a provider-call failure on a refund.
func (s *Store) MarkRefundFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refunds SET status = 'failed', failure_reason = $2, updated_at = now()
		WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("mark refund failed %s: %w", id, err)
	}
	return nil
}

// CreateRefund inserts a refund row in the given status.
func (s *Store) CreateRefund(ctx context.Context, orderID uuid.UUID, status string, amountCents int64) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO refunds (order_id, status, amount_cents)
		VALUES ($1, $2, $3) RETURNING id`, orderID, status, amountCents).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create refund: %w", err)
	}
	return id, nil
}

// ── Payouts ───────────────────────────────────────────────────────────────────

// PayoutRef identifies an overdue payout in sweep results.
type PayoutRef struct {
	ID          uuid.UUID
	ProducerID  uuid.UUID
	AmountCents int64
	DueAt       time.Time
}

// OverduePayouts returns scheduled payouts whose due date has passed, oldest
// first.
func (s *Store) OverduePayouts(ctx context.Context, limit int) ([]PayoutRef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, producer_id, amount_cents, due_at
		FROM payouts
		WHERE status = 'scheduled' AND due_at < now()
		ORDER BY due_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("overdue payouts: %w", err)
	}
	defer rows.Close()

	var result []PayoutRef
	for rows.Next() {
		var p PayoutRef
		if err := rows.Scan(&p.ID, &p.ProducerID, &p.AmountCents, &p.DueAt); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// ── Analytics ─────────────────────────────────────────────────────────────────

// RecomputeDailyMetrics recomputes the aggregate row for day from the orders
// and refunds tables, overwriting any previous value. Re-running for the same
// day yields the same row — the rollup is idempotent by construction.
func (s *Store) RecomputeDailyMetrics(ctx context.Context, day time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO daily_metrics (day, orders_count, revenue_cents, refunds_count, computed_at)
		SELECT $1::date,
		       COUNT(*) FILTER (WHERE o.id IS NOT NULL),
		       COALESCE(SUM(o.total_cents) FILTER (WHERE o.payment_status = 'captured'), 0),
		       (SELECT COUNT(*) FROM refunds r WHERE r.created_at::date = $1::date),
		       now()
		FROM orders o
		WHERE o.created_at::date = $1::date
		ON CONFLICT (day) DO UPDATE SET
		    orders_count  = EXCLUDED.orders_count,
		    revenue_cents = EXCLUDED.revenue_cents,
		    refunds_count = EXCLUDED.refunds_count,
		    computed_at   = EXCLUDED.computed_at`, day)
	if err != nil {
		return fmt.Errorf("recompute daily metrics %s: %w", day.Format("2006-01-02"), err)
	}
	return nil
}

// ── Triage ────────────────────────────────────────────────────────────────────

// InsertTriageSuggestion records a heuristic triage suggestion for a ticket.
func (s *Store) InsertTriageSuggestion(ctx context.Context, ticketID, category, priority, summary string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO triage_suggestions (ticket_id, category, priority, summary)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		ticketID, category, priority, summary).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert triage suggestion: %w", err)
	}
	return id, nil
}
