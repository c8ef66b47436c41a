package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"orderflow/internal/observability"
)

// NewRouter mounts the API routes. ws may be nil when the realtime feed is
// disabled, metrics when counting is.
func NewRouter(handler *Handler, ws http.Handler, logger *slog.Logger, metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Post("/orders", instrument(metrics, "SubmitOrder", handler.SubmitOrder))
	r.Get("/orders/{id}", instrument(metrics, "GetOrder", handler.GetOrder))
	r.Patch("/orders/{id}/status", instrument(metrics, "UpdateStatus", handler.UpdateStatus))
	r.Post("/orders/{id}/cancel", instrument(metrics, "CancelOrder", handler.CancelOrder))
	r.Get("/customers/{id}/orders", instrument(metrics, "ListCustomerOrders", handler.ListCustomerOrders))
	r.Get("/healthz", handler.Healthz)

	if ws != nil {
		r.Handle("/ws/orders", ws)
	}

	return r
}

// instrument opens a metrics span per call. Responses of 400 and above count
// as operation errors.
func instrument(metrics *observability.Metrics, operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		span := metrics.Start(operation)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next(ww, r)
		if ww.Status() >= http.StatusBadRequest {
			span.End(fmt.Errorf("http %d", ww.Status()))
			return
		}
		span.End(nil)
	}
}

// requestLogger emits one structured line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
