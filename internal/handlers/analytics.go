package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AgriNextGen/agrinext-jobs/internal/worker"
)

// analyticsRollup handles analytics_rollup_daily_v1: recompute the aggregate
// row for one day. Idempotent because re-running overwrites the same row with
// the same recomputed values rather than appending.
func analyticsRollup(d Deps) worker.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p struct {
			Day string `json:"day"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("analytics_rollup: decode payload: %w", err)
		}
		if p.Day == "" {
			return errors.New("analytics_rollup: missing day")
		}
		day, err := time.Parse("2006-01-02", p.Day)
		if err != nil {
			return fmt.Errorf("analytics_rollup: invalid day %q: %w", p.Day, err)
		}

		if err := d.Store.RecomputeDailyMetrics(ctx, day); err != nil {
			return err
		}
		d.Sink.WorkflowEvent(ctx, "daily_metrics", p.Day, "rollup_recomputed", nil)
		return nil
	}
}
