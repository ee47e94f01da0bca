package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/cartengine/internal/session"
	"github.com/utafrali/cartengine/pkg/health"
	"github.com/utafrali/cartengine/pkg/middleware"
)

// NewRouter creates a chi router with all cart engine routes registered.
func NewRouter(
	sessions *session.Manager,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("cart-engine"))
	r.Use(middleware.Tracing("cart-engine"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Cart API endpoints
	cartHandler := NewCartHandler(sessions, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(SessionIDFromHeader)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)

			r.Post("/lines", cartHandler.AddLine)
			r.Put("/lines/{productId}", cartHandler.SetQuantity)
			r.Patch("/lines/{productId}/variant", cartHandler.UpdateVariant)
			r.Delete("/lines/{productId}", cartHandler.RemoveLine)
		})

		r.Put("/session/actor", cartHandler.SetActor)
	})

	return r
}
