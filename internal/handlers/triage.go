package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AgriNextGen/agrinext-jobs/internal/triage"
	"github.com/AgriNextGen/agrinext-jobs/internal/worker"
)

// triageSuggest handles triage_suggest_v1: classify a support ticket with the
// deterministic keyword heuristic and record a suggestion. Subject and body
// are optional — the handler never fails because an external AI provider is
// unavailable; the heuristic fallback is the implementation.
func triageSuggest(d Deps) worker.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p struct {
			TicketID string `json:"ticket_id"`
			Subject  string `json:"subject"`
			Body     string `json:"body"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("triage_suggest: decode payload: %w", err)
		}
		if p.TicketID == "" {
			return errors.New("triage_suggest: missing ticket_id")
		}

		s := triage.Classify(p.Subject, p.Body)
		id, err := d.Store.InsertTriageSuggestion(ctx, p.TicketID, s.Category, s.Priority, s.Summary)
		if err != nil {
			return err
		}
		d.Sink.WorkflowEvent(ctx, "ticket", p.TicketID, "triage_suggested", map[string]any{
			"suggestion_id": id,
			"category":      s.Category,
			"priority":      s.Priority,
		})
		return nil
	}
}

// timelineSummary handles timeline_summary_v1: reduce an entity's workflow
// event history to an aggregate-count summary, flagging failure-heavy
// timelines. Like triage_suggest, it is a deterministic non-LLM fallback.
func timelineSummary(d Deps) worker.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p struct {
			EntityType string `json:"entity_type"`
			EntityID   string `json:"entity_id"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("timeline_summary: decode payload: %w", err)
		}
		if p.EntityType == "" || p.EntityID == "" {
			return errors.New("timeline_summary: missing entity_type or entity_id")
		}

		types, err := d.Store.WorkflowEventTypes(ctx, p.EntityType, p.EntityID, 200)
		if err != nil {
			return err
		}
		summary, priority := triage.SummarizeTimeline(types)
		if _, err := d.Store.InsertTriageSuggestion(ctx, p.EntityID, "timeline", priority, summary); err != nil {
			return err
		}
		return nil
	}
}
