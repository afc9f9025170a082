// ABOUTME: Store methods for ops_inbox_items — deduplicated operational alerts.
// ABOUTME: Upsert targets the partial unique index on open items; second detection updates in place.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Ops item severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// OpsItem is a human-actionable alert keyed by (item_type, entity_type,
// entity_id). At most one open item exists per key.
type OpsItem struct {
	ID         uuid.UUID
	ItemType   string
	EntityType string
	EntityID   string
	Severity   string
	Summary    string
	Metadata   json.RawMessage
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
}

// UpsertOpsItem creates an open ops inbox item or, when an open item with the
// same natural key exists, overwrites its severity, summary, and metadata.
// Never produces duplicate open rows for one condition.
func (s *Store) UpsertOpsItem(ctx context.Context, itemType, entityType, entityID, severity, summary string, metadata json.RawMessage) error {
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ops_inbox_items (item_type, entity_type, entity_id, severity, summary, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (item_type, entity_type, entity_id) WHERE status = 'open'
		DO UPDATE SET severity = EXCLUDED.severity,
		              summary  = EXCLUDED.summary,
		              metadata = EXCLUDED.metadata,
		              updated_at = now()`,
		itemType, entityType, entityID, severity, summary, metadata)
	if err != nil {
		return fmt.Errorf("upsert ops item: %w", err)
	}
	return nil
}

// ResolveOpsItem closes an open item. Resolving an already-resolved or
// missing item reports found=false.
func (s *Store) ResolveOpsItem(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ops_inbox_items
		SET status = 'resolved', resolved_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'open'`, id)
	if err != nil {
		return false, fmt.Errorf("resolve ops item %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetOpsItem returns the item with the given id, or nil if not found.
func (s *Store) GetOpsItem(ctx context.Context, id uuid.UUID) (*OpsItem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, item_type, entity_type, entity_id, severity, summary, metadata,
		       status, created_at, updated_at, resolved_at
		FROM ops_inbox_items WHERE id = $1`, id)
	item, err := scanOpsItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ops item %s: %w", id, err)
	}
	return item, nil
}

// OpsItemFilter narrows ListOpsItems. Zero values mean "no filter".
type OpsItemFilter struct {
	Status   string
	ItemType string
	Severity string
	Limit    int
}

// ListOpsItems returns ops inbox items newest-first with optional filters.
func (s *Store) ListOpsItems(ctx context.Context, f OpsItemFilter) ([]OpsItem, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	sb := psql.Select("id, item_type, entity_type, entity_id, severity, summary, metadata, status, created_at, updated_at, resolved_at").
		From("ops_inbox_items").
		OrderBy("created_at DESC, id DESC").
		Limit(uint64(f.Limit)) //nolint:gosec // G115: limit validated by caller

	if f.Status != "" {
		sb = sb.Where(sq.Eq{"status": f.Status})
	}
	if f.ItemType != "" {
		sb = sb.Where(sq.Eq{"item_type": f.ItemType})
	}
	if f.Severity != "" {
		sb = sb.Where(sq.Eq{"severity": f.Severity})
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("list ops items: build query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ops items: %w", err)
	}
	defer rows.Close()

	var result []OpsItem
	for rows.Next() {
		item, err := scanOpsItem(rows)
		if err != nil {
			return nil, fmt.Errorf("list ops items: scan: %w", err)
		}
		result = append(result, *item)
	}
	return result, rows.Err()
}

func scanOpsItem(row pgx.Row) (*OpsItem, error) {
	var item OpsItem
	err := row.Scan(&item.ID, &item.ItemType, &item.EntityType, &item.EntityID,
		&item.Severity, &item.Summary, &item.Metadata, &item.Status,
		&item.CreatedAt, &item.UpdatedAt, &item.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
