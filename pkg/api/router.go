package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chunkvault/chunkvault/internal/logger"
	"github.com/chunkvault/chunkvault/pkg/api/handlers"
	"github.com/chunkvault/chunkvault/pkg/coordinator"
	"github.com/chunkvault/chunkvault/pkg/ledger"
	"github.com/chunkvault/chunkvault/pkg/scheduler"
	"github.com/chunkvault/chunkvault/pkg/store"
)

// NewRouter wires the admin routes behind the standard middleware stack.
//
// Routes:
//   - GET  /health              - liveness probe
//   - GET  /health/ready        - readiness probe (ledger + store)
//   - POST /api/v1/gc/runs      - trigger a collection run
//   - GET  /api/v1/gc/runs      - run history
//   - GET  /api/v1/gc/status    - pending set, schedule, lock holder
//   - POST /api/v1/gc/halt      - emergency stop
//   - POST /api/v1/gc/resume    - re-enable collection
func NewRouter(chunkStore store.Store, ldg *ledger.Ledger, sched *scheduler.Scheduler, coord coordinator.Coordinator) http.Handler {
	r := chi.NewRouter()

	// Middleware stack, order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	healthHandler := handlers.NewHealthHandler(chunkStore, ldg)
	gcHandler := handlers.NewGCHandler(sched, ldg, coord)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Route("/api/v1/gc", func(r chi.Router) {
		r.Post("/runs", gcHandler.TriggerRun)
		r.Get("/runs", gcHandler.History)
		r.Get("/status", gcHandler.Status)
		r.Post("/halt", gcHandler.Halt)
		r.Post("/resume", gcHandler.Resume)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger logs each request with the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
