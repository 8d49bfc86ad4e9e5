package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/auth"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/metrics"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Catalog *CatalogHandler
	Cart    *CartHandler
	Order   *OrderHandler
	Payment *PaymentHandler
}

type RouterOptions struct {
	Verifier *auth.Verifier
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	DB       Pinger
	// Idempotency is applied to order and payment creation when set.
	Idempotency func(http.Handler) http.Handler
}

func NewRouter(h Handlers, opts RouterOptions) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware)
	}

	router.Get("/health", healthHandler(opts.DB))
	if opts.Gatherer != nil {
		router.Method(http.MethodGet, "/metrics", metrics.Handler(opts.Gatherer))
	}

	router.Group(func(r chi.Router) {
		r.Use(opts.Verifier.Middleware)

		h.Catalog.RegisterRoutes(r)
		h.Cart.RegisterRoutes(r)
		h.Order.RegisterRoutes(r, opts.Idempotency)
		h.Payment.RegisterRoutes(r, opts.Idempotency)
	})

	return router
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				log.Error().Err(err).Msg("Health check failed: database unreachable")
				respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
