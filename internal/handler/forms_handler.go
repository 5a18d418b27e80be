package handler

import (
	"net/http"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Serviços & formulários
// ============================================================

func createServiceHandler(svc *service.FormService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /services")
		defer span.End()

		var in domain.Service
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		created, err := svc.CreateService(ctx, mustCaller(r), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func listServicesHandler(svc *service.FormService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /services")
		defer span.End()

		services, err := svc.ListServices(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if services == nil {
			services = []domain.Service{}
		}
		writeJSON(w, http.StatusOK, services)
	}
}

func createFormHandler(svc *service.FormService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /services/{id}/forms")
		defer span.End()

		serviceID, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req struct {
			Fields []domain.FormFieldInput `json:"fields"`
		}
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		form, err := svc.CreateForm(ctx, mustCaller(r), serviceID, req.Fields)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, form)
	}
}

func listFormsHandler(svc *service.FormService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /services/{id}/forms")
		defer span.End()

		serviceID, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		forms, err := svc.ListForms(ctx, serviceID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if forms == nil {
			forms = []domain.ServiceForm{}
		}
		writeJSON(w, http.StatusOK, forms)
	}
}

func activeFormHandler(svc *service.FormService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /services/{id}/form")
		defer span.End()

		serviceID, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		form, err := svc.ActiveForm(ctx, serviceID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, form)
	}
}

func activateFormHandler(svc *service.FormService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /forms/{id}/activate")
		defer span.End()

		formID, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		form, err := svc.Activate(ctx, mustCaller(r), formID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, form)
	}
}
