// ABOUTME: HTTP handlers for the jobs read surface: list with filters and single-job detail.
// ABOUTME: Keyset pagination on (created_at DESC, id DESC), cursor format <RFC3339Nano>/<uuid>.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/AgriNextGen/agrinext-jobs/internal/store"
)

// registerJobRoutes registers the job read endpoints:
//
//	GET /jobs           — paginated list with status/type filters
//	GET /jobs/{job_id}  — single job detail
func registerJobRoutes(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List jobs",
		Description: "Paginated job list, newest first, with optional status and job_type filters.",
		Tags:        []string{"Jobs"},
	}, listJobsHandler(s))

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}",
		Summary:     "Get job detail",
		Tags:        []string{"Jobs"},
	}, getJobHandler(s))
}

// JobItem is the list-view representation of a job.
type JobItem struct {
	ID          string          `json:"id"`
	JobType     string          `json:"job_type"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	NextRunAt   *string         `json:"next_run_at,omitempty"` // RFC3339
	LastError   *string         `json:"last_error,omitempty"`
	CreatedAt   string          `json:"created_at"` // RFC3339
	UpdatedAt   string          `json:"updated_at"` // RFC3339
	Payload     json.RawMessage `json:"payload,omitempty"`
}

type ListJobsInput struct {
	Status  string `query:"status" enum:"pending,succeeded,failed,dead" required:"false" doc:"Filter by status"`
	JobType string `query:"job_type" required:"false" doc:"Filter by job type"`
	Cursor  string `query:"cursor" required:"false" doc:"Opaque pagination cursor from a previous response"`
	Limit   int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
}

type ListJobsOutput struct {
	Body struct {
		Items      []JobItem `json:"items"`
		NextCursor *string   `json:"next_cursor,omitempty"`
	}
}

func listJobsHandler(s *store.Store) func(context.Context, *ListJobsInput) (*ListJobsOutput, error) {
	return func(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
		f := store.JobFilter{
			Status:  input.Status,
			JobType: input.JobType,
			Limit:   input.Limit + 1, // fetch one extra to detect next page
		}
		if input.Cursor != "" {
			t, id, err := decodeCursor(input.Cursor)
			if err != nil {
				return nil, huma.Error400BadRequest("invalid cursor", err)
			}
			f.AfterTime = &t
			f.AfterID = &id
		}

		rows, err := s.ListJobs(ctx, f)
		if err != nil {
			return nil, huma.Error500InternalServerError("list jobs failed", err)
		}

		out := &ListJobsOutput{}
		out.Body.Items = []JobItem{}
		hasMore := len(rows) > input.Limit
		if hasMore {
			rows = rows[:input.Limit]
		}
		for _, row := range rows {
			out.Body.Items = append(out.Body.Items, toJobItem(row, false))
		}
		if hasMore {
			last := rows[len(rows)-1]
			c := encodeCursor(last.CreatedAt, last.ID)
			out.Body.NextCursor = &c
		}
		return out, nil
	}
}

type GetJobInput struct {
	JobID string `path:"job_id" format:"uuid"`
}

type GetJobOutput struct {
	Body JobItem
}

func getJobHandler(s *store.Store) func(context.Context, *GetJobInput) (*GetJobOutput, error) {
	return func(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
		id, err := uuid.Parse(input.JobID)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid job id", err)
		}
		row, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, huma.Error500InternalServerError("get job failed", err)
		}
		if row == nil {
			return nil, huma.Error404NotFound("job not found")
		}
		return &GetJobOutput{Body: toJobItem(*row, true)}, nil
	}
}

func toJobItem(row store.JobRow, includePayload bool) JobItem {
	item := JobItem{
		ID:          row.ID.String(),
		JobType:     row.JobType,
		Status:      row.Status,
		Attempts:    row.Attempts,
		MaxAttempts: row.MaxAttempts,
		LastError:   row.LastError,
		CreatedAt:   row.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   row.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if row.NextRunAt != nil {
		s := row.NextRunAt.UTC().Format(time.RFC3339)
		item.NextRunAt = &s
	}
	if includePayload {
		item.Payload = row.Payload
	}
	return item
}

// encodeCursor encodes (time, uuid) as a stable string cursor.
// Format: <RFC3339Nano>/<uuid>
func encodeCursor(t time.Time, id uuid.UUID) string {
	return t.UTC().Format(time.RFC3339Nano) + "/" + id.String()
}

func decodeCursor(cursor string) (time.Time, uuid.UUID, error) {
	idx := strings.LastIndex(cursor, "/")
	if idx < 0 {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor")
	}
	t, err := time.Parse(time.RFC3339Nano, cursor[:idx])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor time: %w", err)
	}
	id, err := uuid.Parse(cursor[idx+1:])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor id: %w", err)
	}
	return t, id, nil
}
