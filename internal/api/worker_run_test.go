// ABOUTME: Tests for the worker trigger endpoint's auth and input validation.
// ABOUTME: No database needed — rejection paths fire before the runner is touched.
package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AgriNextGen/agrinext-jobs/internal/config"
)

func newTestHandler() http.Handler {
	cfg := &config.Config{WorkerRunSecret: "test-secret", AppEnv: "test"}
	// nil store and runner: the paths under test reject before using either.
	return NewServer(nil, cfg, nil).Handler()
}

func TestWorkerRunRejectsMissingSecret(t *testing.T) {
	t.Parallel()
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/internal/worker/run", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWorkerRunRejectsWrongSecret(t *testing.T) {
	t.Parallel()
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/internal/worker/run", nil)
	req.Header.Set("X-Worker-Secret", "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWorkerRunRejectsBadBatchSize(t *testing.T) {
	t.Parallel()
	h := newTestHandler()

	for _, raw := range []string{"0", "-1", "501", "abc"} {
		req := httptest.NewRequest(http.MethodPost, "/internal/worker/run?batch_size="+raw, nil)
		req.Header.Set("X-Worker-Secret", "test-secret")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("batch_size=%q: status = %d, want 400", raw, rec.Code)
		}
	}
}

func TestHealthzWithoutStore(t *testing.T) {
	t.Parallel()
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}
