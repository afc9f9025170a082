// ABOUTME: HTTP handlers for the ops inbox: list open alerts and resolve one.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/AgriNextGen/agrinext-jobs/internal/store"
)

// registerOpsInboxRoutes registers the ops inbox endpoints:
//
//	GET  /ops-inbox                    — list items (default: open only)
//	POST /ops-inbox/{item_id}/resolve  — close an open item
func registerOpsInboxRoutes(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-ops-inbox",
		Method:      http.MethodGet,
		Path:        "/ops-inbox",
		Summary:     "List ops inbox items",
		Tags:        []string{"OpsInbox"},
	}, listOpsItemsHandler(s))

	huma.Register(api, huma.Operation{
		OperationID: "resolve-ops-item",
		Method:      http.MethodPost,
		Path:        "/ops-inbox/{item_id}/resolve",
		Summary:     "Resolve an ops inbox item",
		Tags:        []string{"OpsInbox"},
	}, resolveOpsItemHandler(s))
}

// OpsItemEntry is the API representation of an ops inbox item.
type OpsItemEntry struct {
	ID         string          `json:"id"`
	ItemType   string          `json:"item_type"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Severity   string          `json:"severity"`
	Summary    string          `json:"summary"`
	Metadata   json.RawMessage `json:"metadata"`
	Status     string          `json:"status"`
	CreatedAt  string          `json:"created_at"` // RFC3339
	UpdatedAt  string          `json:"updated_at"` // RFC3339
	ResolvedAt *string         `json:"resolved_at,omitempty"`
}

type ListOpsItemsInput struct {
	Status   string `query:"status" enum:"open,resolved" default:"open"`
	ItemType string `query:"item_type" required:"false"`
	Severity string `query:"severity" enum:"low,medium,high" required:"false"`
	Limit    int    `query:"limit" default:"100" minimum:"1" maximum:"500"`
}

type ListOpsItemsOutput struct {
	Body struct {
		Items []OpsItemEntry `json:"items"`
	}
}

func listOpsItemsHandler(s *store.Store) func(context.Context, *ListOpsItemsInput) (*ListOpsItemsOutput, error) {
	return func(ctx context.Context, input *ListOpsItemsInput) (*ListOpsItemsOutput, error) {
		items, err := s.ListOpsItems(ctx, store.OpsItemFilter{
			Status:   input.Status,
			ItemType: input.ItemType,
			Severity: input.Severity,
			Limit:    input.Limit,
		})
		if err != nil {
			return nil, huma.Error500InternalServerError("list ops items failed", err)
		}

		out := &ListOpsItemsOutput{}
		out.Body.Items = []OpsItemEntry{}
		for _, item := range items {
			entry := OpsItemEntry{
				ID:         item.ID.String(),
				ItemType:   item.ItemType,
				EntityType: item.EntityType,
				EntityID:   item.EntityID,
				Severity:   item.Severity,
				Summary:    item.Summary,
				Metadata:   item.Metadata,
				Status:     item.Status,
				CreatedAt:  item.CreatedAt.UTC().Format(time.RFC3339),
				UpdatedAt:  item.UpdatedAt.UTC().Format(time.RFC3339),
			}
			if item.ResolvedAt != nil {
				r := item.ResolvedAt.UTC().Format(time.RFC3339)
				entry.ResolvedAt = &r
			}
			out.Body.Items = append(out.Body.Items, entry)
		}
		return out, nil
	}
}

type ResolveOpsItemInput struct {
	ItemID string `path:"item_id" format:"uuid"`
}

type ResolveOpsItemOutput struct {
	Body struct {
		Resolved bool `json:"resolved"`
	}
}

func resolveOpsItemHandler(s *store.Store) func(context.Context, *ResolveOpsItemInput) (*ResolveOpsItemOutput, error) {
	return func(ctx context.Context, input *ResolveOpsItemInput) (*ResolveOpsItemOutput, error) {
		id, err := uuid.Parse(input.ItemID)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid item id", err)
		}
		found, err := s.ResolveOpsItem(ctx, id)
		if err != nil {
			return nil, huma.Error500InternalServerError("resolve failed", err)
		}
		if !found {
			return nil, huma.Error404NotFound("no open item with that id")
		}
		out := &ResolveOpsItemOutput{}
		out.Body.Resolved = true
		return out, nil
	}
}
