package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/infra/observability"
	"github.com/boddenberg/acquiring-core-go/internal/port"
	"github.com/boddenberg/acquiring-core-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the router exposes over HTTP. Nil services
// leave their routes answering 503.
type Deps struct {
	Registration *service.RegistrationPipeline
	Refunds      *service.RefundOrchestrator
	Companies    *service.CompanyService
	Transactions port.TransactionStore
	Tokens       *service.TokenService
	Store        Pinger
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := d.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(d.Store, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/summary", metricsSummaryHandler(metrics))

		r.Group(func(r chi.Router) {
			if d.Tokens != nil {
				r.Use(ServiceAuthMiddleware(d.Tokens, logger))
			} else {
				r.Use(denyAll)
			}

			// =============================================
			// Transactions
			// =============================================
			r.Post("/transactions", registerTransactionHandler(d.Registration, logger))
			r.Get("/transactions/{transactionId}", getTransactionHandler(d.Transactions, logger))
			r.Post("/transactions/{transactionId}/refund", refundTransactionHandler(d.Refunds, d.Transactions, logger))
			r.Post("/transactions/{transactionId}/refund/register", registerRefundHandler(d.Refunds, d.Transactions, logger))

			// =============================================
			// Companies & splits
			// =============================================
			r.Put("/companies/{companyId}/default-split-rules", updateDefaultSplitRulesHandler(d.Companies, logger))
			r.Post("/splits/simulate", simulateSplitHandler(logger))
		})
	})

	return r
}

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "authentication is not configured")
	})
}

func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" is not configured")
}

// ============================================================
// Health & metrics
// ============================================================

func healthzHandler(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "acquiring-api", Status: "healthy", LastChecked: now},
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			start := time.Now()
			err := store.Ping(ctx)
			cancel()
			status := "healthy"
			if err != nil {
				status = "unhealthy"
				logger.Warn("healthz: store ping failed", zap.Error(err))
			}
			services = append(services, domain.ServiceHealth{
				Name: "store", Status: status,
				LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		code := http.StatusOK
		if overallStatus == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func metricsSummaryHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetCoreSnapshot())
	}
}
