// ABOUTME: Store methods for the webhook_events reconciliation queue.
// ABOUTME: Exhausted events keep their row (forensic record) but lose next_retry_at.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Webhook event processing statuses.
const (
	WebhookPending   = "pending"
	WebhookProcessed = "processed"
	WebhookFailed    = "failed"
)

// WebhookEvent is an inbound provider notification awaiting durable
// application to the business tables.
type WebhookEvent struct {
	ID               uuid.UUID
	Provider         string
	EventID          string
	EventType        string
	Payload          json.RawMessage
	ProcessingStatus string
	Attempts         int
	NextRetryAt      *time.Time
	LastError        *string
	ProcessedAt      *time.Time
	CreatedAt        time.Time
}

const webhookColumns = "id, provider, event_id, event_type, payload, processing_status, attempts, next_retry_at, last_error, processed_at, created_at"

// InsertWebhookEvent records an inbound provider notification. Duplicate
// (provider, event_id) pairs are rejected by the unique constraint; the
// caller treats that as an already-received event.
func (s *Store) InsertWebhookEvent(ctx context.Context, provider, eventID, eventType string, payload json.RawMessage) (uuid.UUID, error) {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO webhook_events (provider, event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, provider, eventID, eventType, payload).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert webhook event: %w", err)
	}
	return id, nil
}

// RetryableWebhookEvents returns up to limit failed events that are due for
// another reconciliation attempt, oldest first. Events with a NULL
// next_retry_at are exhausted and never returned.
func (s *Store) RetryableWebhookEvents(ctx context.Context, limit int) ([]WebhookEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+webhookColumns+`
		FROM webhook_events
		WHERE processing_status = 'failed'
		  AND next_retry_at IS NOT NULL
		  AND next_retry_at <= now()
		ORDER BY next_retry_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("retryable webhook events: %w", err)
	}
	defer rows.Close()
	return scanWebhookEvents(rows)
}

// MarkWebhookProcessed transitions an event to its terminal success state.
func (s *Store) MarkWebhookProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET processing_status = 'processed', processed_at = now(),
		    next_retry_at = NULL, last_error = NULL
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark webhook processed %s: %w", id, err)
	}
	return nil
}

// RetryWebhookEvent records a failed application attempt and schedules the
// next one at nextRetryAt.
func (s *Store) RetryWebhookEvent(ctx context.Context, id uuid.UUID, attempts int, nextRetryAt time.Time, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET processing_status = 'failed', attempts = $2, next_retry_at = $3, last_error = $4
		WHERE id = $1`, id, attempts, nextRetryAt, lastError)
	if err != nil {
		return fmt.Errorf("retry webhook event %s: %w", id, err)
	}
	return nil
}

// ExhaustWebhookEvent records the final failed attempt. The row stays failed
// with no next_retry_at: excluded from future sweeps but queryable as a
// forensic record.
func (s *Store) ExhaustWebhookEvent(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET processing_status = 'failed', attempts = $2, next_retry_at = NULL, last_error = $3
		WHERE id = $1`, id, attempts, lastError)
	if err != nil {
		return fmt.Errorf("exhaust webhook event %s: %w", id, err)
	}
	return nil
}

// GetWebhookEvent returns the event with the given id, or nil if not found.
func (s *Store) GetWebhookEvent(ctx context.Context, id uuid.UUID) (*WebhookEvent, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+webhookColumns+" FROM webhook_events WHERE id = $1", id)
	ev, err := scanWebhookEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook event %s: %w", id, err)
	}
	return ev, nil
}

// ExhaustedWebhookEvents returns failed events with no retry scheduled, up to
// limit, newest first. Used by the ops inbox scanner.
func (s *Store) ExhaustedWebhookEvents(ctx context.Context, limit int) ([]WebhookEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+webhookColumns+`
		FROM webhook_events
		WHERE processing_status = 'failed' AND next_retry_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("exhausted webhook events: %w", err)
	}
	defer rows.Close()
	return scanWebhookEvents(rows)
}

// LatestGatewayEvent returns the most recent webhook event referencing the
// given order in its payload, or nil when the gateway never reported one.
func (s *Store) LatestGatewayEvent(ctx context.Context, orderID uuid.UUID) (*WebhookEvent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+webhookColumns+`
		FROM webhook_events
		WHERE payload->>'order_id' = $1
		ORDER BY created_at DESC
		LIMIT 1`, orderID.String())
	ev, err := scanWebhookEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest gateway event for order %s: %w", orderID, err)
	}
	return ev, nil
}

func scanWebhookEvents(rows pgx.Rows) ([]WebhookEvent, error) {
	var result []WebhookEvent
	for rows.Next() {
		ev, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		result = append(result, *ev)
	}
	return result, rows.Err()
}

func scanWebhookEvent(row pgx.Row) (*WebhookEvent, error) {
	var ev WebhookEvent
	err := row.Scan(&ev.ID, &ev.Provider, &ev.EventID, &ev.EventType, &ev.Payload,
		&ev.ProcessingStatus, &ev.Attempts, &ev.NextRetryAt, &ev.LastError,
		&ev.ProcessedAt, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
