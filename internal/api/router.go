package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hestia-platform/esign/internal/metrics"
)

// NewRouter wires the handler into a chi router with the standard
// middleware stack.
func NewRouter(h *Handler, version string, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: version})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Post("/tsa", h.TSARespond)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", h.Register)
			r.Get("/{id}", h.Download)
			r.Post("/{id}/certify", h.Certify)
			r.Post("/{id}/cancel", h.Cancel)
			r.Post("/{id}/finalize", h.Finalize)
			r.Get("/{id}/status", h.Status)
			r.Get("/{id}/journal", h.Journal)
		})
		r.Post("/sign/{token}", h.Sign)
	})

	return r
}

// requestLogger logs one line per request with method, path, status and
// duration.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
