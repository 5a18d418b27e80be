package handler

import (
	"net/http"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Autenticação & clientes
// ============================================================

func loginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /auth/login")
		defer span.End()

		var req domain.LoginRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp, err := authSvc.Login(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// signupHandler is public. A logged-in admin or affiliate creating an
// account for someone else passes through the same endpoint.
func signupHandler(svc *service.ClientService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /clients")
		defer span.End()

		var req domain.SignupRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var caller *domain.Caller
		if c, ok := CallerFromContext(ctx); ok {
			caller = &c
		}

		client, err := svc.Signup(ctx, caller, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int64("client.id", client.ID))
		writeJSON(w, http.StatusCreated, client)
	}
}

func listClientsHandler(svc *service.ClientService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /clients")
		defer span.End()

		clients, err := svc.List(ctx, mustCaller(r), queryView(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if clients == nil {
			clients = []domain.Client{}
		}
		writeJSON(w, http.StatusOK, clients)
	}
}

func getClientHandler(svc *service.ClientService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /clients/{id}")
		defer span.End()

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		client, err := svc.Get(ctx, mustCaller(r), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, client)
	}
}

func feesHandler(svc *service.ClientService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /clients/me/fees")
		defer span.End()

		fees, err := svc.Fees(ctx, mustCaller(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, fees)
	}
}

func setServiceCostHandler(svc *service.ClientService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /clients/{id}/services/{serviceId}")
		defer span.End()

		clientID, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		serviceID, err := pathID(r, "serviceId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var req struct {
			Cost *float64 `json:"cost"`
		}
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if req.Cost == nil {
			handleServiceError(w, &domain.ErrValidation{Field: "cost", Message: "obrigatório"}, logger)
			return
		}

		us, err := svc.SetServiceCost(ctx, mustCaller(r), clientID, serviceID, *req.Cost)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, us)
	}
}

// ============================================================
// Dashboard
// ============================================================

func dashboardHandler(svc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /dashboard")
		defer span.End()

		clientID, err := queryID(r, "client_id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		year, err := queryInt(r, "year")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		dash, err := svc.Get(ctx, mustCaller(r), clientID, queryView(r), year)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, dash)
	}
}
