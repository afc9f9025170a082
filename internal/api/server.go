// ABOUTME: HTTP server struct, constructor, and handler wiring.
// ABOUTME: Plain chi for infra + the worker trigger; huma (OpenAPI 3.1) for the /api/v1 read surface.
package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/AgriNextGen/agrinext-jobs/internal/config"
	"github.com/AgriNextGen/agrinext-jobs/internal/store"
	"github.com/AgriNextGen/agrinext-jobs/internal/worker"
)

// Server holds the dependencies for the HTTP layer.
type Server struct {
	store      *store.Store
	cfg        *config.Config
	runner     *worker.Runner
	runLimiter *rate.Limiter
}

// NewServer creates a Server. runner is the engine instance the trigger
// endpoint drives on demand.
func NewServer(s *store.Store, cfg *config.Config, runner *worker.Runner) *Server {
	// One trigger per second with a small burst: the endpoint exists for
	// external schedulers, not for load.
	return &Server{
		store:      s,
		cfg:        cfg,
		runner:     runner,
		runLimiter: rate.NewLimiter(rate.Limit(1), 5),
	}
}

// Handler builds and returns the http.Handler.
func (srv *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Security headers first so they appear on every response including errors.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	// 1 MB global body limit — nothing on this surface needs large bodies.
	r.Use(middleware.RequestSize(1 << 20))
	r.Use(middleware.Recoverer)

	// ── Infrastructure endpoints ──────────────────────────────────────────────
	r.Get("/healthz", srv.healthzHandler)
	r.Handle("/metrics", promhttp.Handler())

	// ── Worker trigger (shared secret, not part of the public API) ────────────
	r.Post("/internal/worker/run", srv.workerRunHandler)

	// ── API v1 sub-router with huma (OpenAPI 3.1) ─────────────────────────────
	apiRouter := chi.NewRouter()
	humaConfig := huma.DefaultConfig("AgriNext Jobs API", "0.1.0")
	humaConfig.Info.Description = "Read surface for the durable job engine: jobs, runs, and the ops inbox"
	api := humachi.New(apiRouter, humaConfig)
	registerJobRoutes(api, srv.store)
	registerOpsInboxRoutes(api, srv.store)

	r.Mount("/api/v1", apiRouter)
	return r
}

// healthzHandler reports liveness plus a database ping.
func (srv *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if srv.store != nil {
		if err := srv.store.Pool().Ping(r.Context()); err != nil {
			http.Error(w, `{"status":"degraded"}`, http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
