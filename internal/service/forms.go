package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

var formTracer = otel.Tracer("service/forms")

// FormService manages services and their versioned forms.
type FormService struct {
	store  port.Store
	logger *zap.Logger
}

// NewFormService creates a form service.
func NewFormService(store port.Store, logger *zap.Logger) *FormService {
	return &FormService{store: store, logger: logger}
}

func (s *FormService) CreateService(ctx context.Context, caller domain.Caller, in *domain.Service) (*domain.Service, error) {
	ctx, span := formTracer.Start(ctx, "FormService.CreateService")
	defer span.End()

	if err := requireAdmin(caller, "criar serviço"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "nome do serviço é obrigatório"}
	}
	svc, err := s.store.CreateService(ctx, &domain.Service{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Active:      true,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("service created", zap.Int64("service_id", svc.ID), zap.String("name", svc.Name))
	return svc, nil
}

func (s *FormService) ListServices(ctx context.Context) ([]domain.Service, error) {
	ctx, span := formTracer.Start(ctx, "FormService.ListServices")
	defer span.End()

	return s.store.ListServices(ctx)
}

// CreateForm adds a new inactive version to a service.
func (s *FormService) CreateForm(ctx context.Context, caller domain.Caller, serviceID int64, fields []domain.FormFieldInput) (*domain.ServiceForm, error) {
	ctx, span := formTracer.Start(ctx, "FormService.CreateForm")
	defer span.End()
	span.SetAttributes(attribute.Int64("service.id", serviceID))

	if err := requireAdmin(caller, "criar formulário"); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, &domain.ErrValidation{Field: "fields", Message: "o formulário precisa de ao menos um campo"}
	}
	form := &domain.ServiceForm{ServiceID: serviceID}
	for i, f := range fields {
		label := strings.TrimSpace(f.Label)
		if label == "" {
			return nil, &domain.ErrValidation{Field: "fields", Message: fmt.Sprintf("campo %d sem rótulo", i+1)}
		}
		if !f.Type.Valid() {
			return nil, &domain.ErrValidation{Field: "fields", Message: fmt.Sprintf("campo %d com tipo inválido: %s", i+1, f.Type)}
		}
		form.Fields = append(form.Fields, domain.FormField{Label: label, Type: f.Type, Required: f.Required})
	}

	var out *domain.ServiceForm
	err := s.store.WithTx(ctx, func(tx port.Repos) error {
		if _, err := tx.GetServiceForUpdate(ctx, serviceID); err != nil {
			return err
		}
		created, err := tx.CreateForm(ctx, form)
		out = created
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("form version created",
		zap.Int64("service_id", serviceID),
		zap.Int64("form_id", out.ID),
		zap.Int("version", out.Version),
	)
	return out, nil
}

// Activate makes formID the single active version of its service:
// every sibling is deactivated, then the form is activated, in one
// transaction serialized on the service row.
func (s *FormService) Activate(ctx context.Context, caller domain.Caller, formID int64) (*domain.ServiceForm, error) {
	ctx, span := formTracer.Start(ctx, "FormService.Activate")
	defer span.End()
	span.SetAttributes(attribute.Int64("form.id", formID))

	if err := requireAdmin(caller, "ativar formulário"); err != nil {
		return nil, err
	}
	var out *domain.ServiceForm
	err := s.store.WithTx(ctx, func(tx port.Repos) error {
		form, err := tx.GetForm(ctx, formID)
		if err != nil {
			return err
		}
		if _, err := tx.GetServiceForUpdate(ctx, form.ServiceID); err != nil {
			return err
		}
		if err := tx.DeactivateForms(ctx, form.ServiceID); err != nil {
			return err
		}
		if err := tx.ActivateForm(ctx, formID); err != nil {
			return err
		}
		form.Active = true
		out = form
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("form activated", zap.Int64("service_id", out.ServiceID), zap.Int64("form_id", formID))
	return out, nil
}

// ActiveForm returns the active version of a service with ordered fields.
func (s *FormService) ActiveForm(ctx context.Context, serviceID int64) (*domain.ServiceForm, error) {
	ctx, span := formTracer.Start(ctx, "FormService.ActiveForm")
	defer span.End()

	return s.store.GetActiveForm(ctx, serviceID)
}

func (s *FormService) ListForms(ctx context.Context, serviceID int64) ([]domain.ServiceForm, error) {
	ctx, span := formTracer.Start(ctx, "FormService.ListForms")
	defer span.End()

	if _, err := s.store.GetService(ctx, serviceID); err != nil {
		return nil, err
	}
	return s.store.ListForms(ctx, serviceID)
}
