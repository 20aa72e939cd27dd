package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/contentpress/bakerd/internal/api/handler"
	apimw "github.com/contentpress/bakerd/internal/api/middleware"
	"github.com/contentpress/bakerd/internal/executor"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. The surface is deliberately small: liveness, a Prometheus
// scrape endpoint, and an executor snapshot for operators.
func NewRouter(
	pool *executor.Pool,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer) // recover panics, return 500
	r.Use(chimw.RealIP)    // trust X-Forwarded-For / X-Real-IP
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	eh := handler.NewExecutorHandler(pool)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Get("/api/v1/executor", eh.Snapshot)

	return r
}
