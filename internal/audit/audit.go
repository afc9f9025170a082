// Package audit is the best-effort event sink for security and workflow
// events. Audit logging must never fail the operation being audited: every
// method logs its own store failure and returns nothing.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/AgriNextGen/agrinext-jobs/internal/store"
)

// Sink writes audit rows through the store, swallowing errors.
type Sink struct {
	store *store.Store
	log   *slog.Logger
}

// NewSink creates a Sink backed by st.
func NewSink(st *store.Store) *Sink {
	return &Sink{store: st, log: slog.Default()}
}

// SecurityEvent records a security/audit event. metadata may be nil.
func (s *Sink) SecurityEvent(ctx context.Context, eventType, severity, subjectKey string, metadata map[string]any) {
	raw := marshalMetadata(metadata)
	if err := s.store.InsertSecurityEvent(ctx, eventType, severity, subjectKey, raw); err != nil {
		s.log.Error("security event sink write failed",
			"event_type", eventType, "subject_key", subjectKey, "error", err)
	}
}

// WorkflowEvent records a workflow event for a business entity. metadata may
// be nil.
func (s *Sink) WorkflowEvent(ctx context.Context, entityType, entityID, eventType string, metadata map[string]any) {
	raw := marshalMetadata(metadata)
	if err := s.store.InsertWorkflowEvent(ctx, entityType, entityID, eventType, raw); err != nil {
		s.log.Error("workflow event sink write failed",
			"entity_type", entityType, "entity_id", entityID, "event_type", eventType, "error", err)
	}
}

func marshalMetadata(metadata map[string]any) json.RawMessage {
	if metadata == nil {
		return nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		// Unmarshalable metadata (chan, func) is a programming error; record
		// the event with empty metadata rather than dropping it.
		slog.Error("audit metadata marshal failed", "error", err)
		return nil
	}
	return raw
}
