package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/observability"
	"github.com/boddenberg/listas-backoffice-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger is the readiness probe of a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles everything the router dispatches to. A nil Auth
// disables the whole API surface and leaves only the ops endpoints.
type Services struct {
	Store       Pinger
	Auth        *service.AuthService
	Clients     *service.ClientService
	Lists       *service.ListService
	ListGroups  *service.ListGroupService
	Forms       *service.FormService
	Submissions *service.SubmissionService
	Payments    *service.PaymentService
	Dashboard   *service.DashboardService
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, corsOrigins []string, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "asaas-access-token"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Store, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/ops/metrics", opsMetricsHandler(metrics))

	if svc.Auth == nil {
		r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusServiceUnavailable, "API indisponível: autenticação não configurada")
		}))
		return r
	}

	// =============================================
	// Public routes
	// =============================================
	r.Post("/auth/login", loginHandler(svc.Auth, logger))
	r.With(OptionalAuthMiddleware(svc.Auth, logger)).Post("/clients", signupHandler(svc.Clients, logger))
	if svc.Payments != nil {
		r.Post("/cobranca/webhook", webhookHandler(svc.Payments, logger))
	}

	// =============================================
	// Protected routes
	// =============================================
	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(svc.Auth, logger))

		// Clients
		r.Get("/clients", listClientsHandler(svc.Clients, logger))
		r.Get("/clients/me/fees", feesHandler(svc.Clients, logger))
		r.Get("/clients/{id}", getClientHandler(svc.Clients, logger))
		r.Put("/clients/{id}/services/{serviceId}", setServiceCostHandler(svc.Clients, logger))

		// Lists. {ref} is the protocol on reads and the numeric id on status changes.
		r.Post("/list", saveListHandler(svc.Lists, logger))
		r.Get("/list", listListsHandler(svc.Lists, logger))
		r.Post("/list/import", importListHandler(svc.Lists, logger))
		r.Get("/list/{ref}", getListHandler(svc.Lists, logger))
		r.Get("/list/{ref}/export", exportListHandler(svc.Lists, logger))
		r.Put("/list/{ref}/status", setListStatusHandler(svc.Lists, logger))

		// List groups
		r.Post("/list-groups", createListGroupHandler(svc.ListGroups, logger))
		r.Get("/list-groups", listListGroupsHandler(svc.ListGroups, logger))
		r.Get("/list-groups/{id}", getListGroupHandler(svc.ListGroups, logger))
		r.Put("/list-groups/{id}", updateListGroupHandler(svc.ListGroups, logger))
		r.Delete("/list-groups/{id}", deleteListGroupHandler(svc.ListGroups, logger))

		// Services & forms
		r.Post("/services", createServiceHandler(svc.Forms, logger))
		r.Get("/services", listServicesHandler(svc.Forms, logger))
		r.Post("/services/{id}/forms", createFormHandler(svc.Forms, logger))
		r.Get("/services/{id}/forms", listFormsHandler(svc.Forms, logger))
		r.Get("/services/{id}/form", activeFormHandler(svc.Forms, logger))
		r.Post("/forms/{id}/activate", activateFormHandler(svc.Forms, logger))

		// Submissions
		r.Post("/submissions", createSubmissionHandler(svc.Submissions, logger))
		r.Get("/submissions", listSubmissionsHandler(svc.Submissions, logger))
		r.Get("/submissions/{id}", getSubmissionHandler(svc.Submissions, logger))
		r.Post("/submissions/{id}/invalidate", invalidateSubmissionHandler(svc.Submissions, logger))
		r.Post("/submissions/{id}/resubmit", resubmitSubmissionHandler(svc.Submissions, logger))
		r.Post("/submissions/{id}/approve", approveSubmissionHandler(svc.Submissions, logger))
		r.Put("/submissions/{id}/status", setSubmissionStatusHandler(svc.Submissions, logger))

		// Payments
		r.Post("/cobranca/pix", createChargeHandler(svc.Payments, logger))
		r.Post("/cobranca/comprovante", uploadReceiptHandler(svc.Payments, logger))
		r.Post("/cobranca/aprovar/{id}", approveReceiptHandler(svc.Payments, logger))
		r.Post("/cobranca/confirmar-afiliado", confirmAffiliateHandler(svc.Payments, logger))
		r.Get("/cobranca/status/{kind}/{id}", paymentStatusHandler(svc.Payments, logger))
		r.Get("/cobranca/comprovante/{kind}/{id}", receiptHandler(svc.Payments, logger))
		r.Get("/cobranca/grupo/{groupPaymentId}/total", groupTotalHandler(svc.Payments, logger))

		// Dashboard
		r.Get("/dashboard", dashboardHandler(svc.Dashboard, logger))
	})

	return r
}

// ============================================================
// Ops
// ============================================================

func healthzHandler(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "backoffice-api", Status: "healthy", LastChecked: now},
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			start := time.Now()
			err := store.Ping(ctx)
			h := domain.ServiceHealth{
				Name:        "postgres",
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			}
			if err != nil {
				logger.Warn("healthz: database ping failed", zap.Error(err))
				h.Status = "unhealthy"
				h.Error = "database unreachable"
			}
			services = append(services, h)
		}

		overall, code := "healthy", http.StatusOK
		for _, s := range services {
			if s.Status == "unhealthy" {
				overall, code = "unhealthy", http.StatusServiceUnavailable
				break
			}
		}

		writeJSON(w, code, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func opsMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetOpsSnapshot())
	}
}
