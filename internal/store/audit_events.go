// ABOUTME: Raw inserts for the security_events and workflow_events audit tables.
// ABOUTME: Best-effort wrapping (log-and-swallow) lives in internal/audit, not here.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// InsertSecurityEvent appends a security event row.
func (s *Store) InsertSecurityEvent(ctx context.Context, eventType, severity, subjectKey string, metadata json.RawMessage) error {
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO security_events (event_type, severity, subject_key, metadata)
		VALUES ($1, $2, $3, $4)`, eventType, severity, subjectKey, metadata)
	if err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

// InsertWorkflowEvent appends a workflow event row for a business entity.
func (s *Store) InsertWorkflowEvent(ctx context.Context, entityType, entityID, eventType string, metadata json.RawMessage) error {
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_events (entity_type, entity_id, event_type, metadata)
		VALUES ($1, $2, $3, $4)`, entityType, entityID, eventType, metadata)
	if err != nil {
		return fmt.Errorf("insert workflow event: %w", err)
	}
	return nil
}

// WorkflowEventTypes returns the event_type values recorded for an entity,
// oldest first, up to limit. Feeds the timeline summary fallback.
func (s *Store) WorkflowEventTypes(ctx context.Context, entityType, entityID string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_type FROM workflow_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC
		LIMIT $3`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("workflow event types: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var et string
		if err := rows.Scan(&et); err != nil {
			return nil, fmt.Errorf("workflow event types: scan: %w", err)
		}
		result = append(result, et)
	}
	return result, rows.Err()
}

// CountSecurityEvents counts security events for a subject key and event
// type. Used by tests asserting single-emission escalation semantics.
func (s *Store) CountSecurityEvents(ctx context.Context, eventType, subjectKey string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM security_events
		WHERE event_type = $1 AND subject_key = $2`, eventType, subjectKey).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count security events: %w", err)
	}
	return count, nil
}
