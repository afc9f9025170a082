// ABOUTME: POST /internal/worker/run — shared-secret trigger for one processing pass.
// ABOUTME: Always 200 with aggregate counts when the pass ran; non-200 only for auth/claim/bookkeeping failures.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// maxBatchOverride bounds the caller-supplied batch size.
const maxBatchOverride = 500

// workerRunHandler triggers one run loop pass. Authorization is a shared
// secret in X-Worker-Secret; individual handler failures are reflected in the
// counts, never in the status code.
func (srv *Server) workerRunHandler(w http.ResponseWriter, r *http.Request) {
	if !srv.runLimiter.Allow() {
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	secret := r.Header.Get("X-Worker-Secret")
	if secret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(srv.cfg.WorkerRunSecret)) != 1 {
		writeJSONError(w, http.StatusUnauthorized, "missing or invalid worker secret")
		return
	}

	batchSize := 0
	if raw := r.URL.Query().Get("batch_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxBatchOverride {
			writeJSONError(w, http.StatusBadRequest, "batch_size must be an integer between 1 and 500")
			return
		}
		batchSize = n
	}

	summary, err := srv.runner.RunOnce(r.Context(), batchSize)
	if err != nil {
		// Claim-phase or bookkeeping failure: the run aborted before or after
		// job processing, nothing partially attributed.
		slog.Error("worker run failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "run failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		slog.Error("encode run summary", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
