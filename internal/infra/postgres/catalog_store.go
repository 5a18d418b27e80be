package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

const serviceColumns = `id, name, description, active, created_at`

func scanService(row pgx.Row) (*domain.Service, error) {
	var sv domain.Service
	if err := row.Scan(&sv.ID, &sv.Name, &sv.Description, &sv.Active, &sv.CreatedAt); err != nil {
		return nil, err
	}
	return &sv, nil
}

// CreateService inserts a service.
func (s *Store) CreateService(ctx context.Context, sv *domain.Service) (*domain.Service, error) {
	q := `INSERT INTO services (name, description, active) VALUES ($1, $2, $3) RETURNING ` + serviceColumns
	out, err := scanService(s.q.QueryRow(ctx, q, sv.Name, sv.Description, sv.Active))
	if err != nil {
		return nil, persistence("create service", err)
	}
	return out, nil
}

// GetService selects a service by id.
func (s *Store) GetService(ctx context.Context, id int64) (*domain.Service, error) {
	sv, err := scanService(s.q.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id=$1`, id))
	if err != nil {
		return nil, notFoundOr(err, "service", id, "get service")
	}
	return sv, nil
}

// GetServiceForUpdate locks a service row, serializing form activation.
func (s *Store) GetServiceForUpdate(ctx context.Context, id int64) (*domain.Service, error) {
	sv, err := scanService(s.q.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, "service", id, "lock service")
	}
	return sv, nil
}

// ListServices returns every service.
func (s *Store) ListServices(ctx context.Context) ([]domain.Service, error) {
	rows, err := s.q.Query(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY id`)
	if err != nil {
		return nil, persistence("list services", err)
	}
	defer rows.Close()

	var out []domain.Service
	for rows.Next() {
		sv, err := scanService(rows)
		if err != nil {
			return nil, persistence("scan service", err)
		}
		out = append(out, *sv)
	}
	return out, persistence("list services", rows.Err())
}

// CreateForm inserts an inactive form at the next version together with its fields.
func (s *Store) CreateForm(ctx context.Context, f *domain.ServiceForm) (*domain.ServiceForm, error) {
	const ins = `
INSERT INTO service_forms (service_id, version, active)
SELECT $1, COALESCE(MAX(version), 0) + 1, false FROM service_forms WHERE service_id=$1
RETURNING id, service_id, version, active, created_at`
	out := domain.ServiceForm{}
	err := s.q.QueryRow(ctx, ins, f.ServiceID).Scan(&out.ID, &out.ServiceID, &out.Version, &out.Active, &out.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ErrConflict{Message: "versão de formulário criada concorrentemente"}
		}
		return nil, persistence("create form", err)
	}

	const field = `
INSERT INTO form_fields (service_form_id, label, type, required, position)
VALUES ($1, $2, $3, $4, $5) RETURNING id`
	for i, fd := range f.Fields {
		fd.ServiceFormID = out.ID
		fd.Position = i + 1
		if err := s.q.QueryRow(ctx, field, out.ID, fd.Label, string(fd.Type), fd.Required, fd.Position).Scan(&fd.ID); err != nil {
			return nil, persistence("create form field", err)
		}
		out.Fields = append(out.Fields, fd)
	}
	return &out, nil
}

func (s *Store) formFields(ctx context.Context, formID int64) ([]domain.FormField, error) {
	const q = `
SELECT id, service_form_id, label, type, required, position
FROM form_fields WHERE service_form_id=$1 ORDER BY position, id`
	rows, err := s.q.Query(ctx, q, formID)
	if err != nil {
		return nil, persistence("list form fields", err)
	}
	defer rows.Close()

	var out []domain.FormField
	for rows.Next() {
		var fd domain.FormField
		if err := rows.Scan(&fd.ID, &fd.ServiceFormID, &fd.Label, &fd.Type, &fd.Required, &fd.Position); err != nil {
			return nil, persistence("scan form field", err)
		}
		out = append(out, fd)
	}
	return out, persistence("list form fields", rows.Err())
}

func (s *Store) getForm(ctx context.Context, q string, arg any) (*domain.ServiceForm, error) {
	var f domain.ServiceForm
	if err := s.q.QueryRow(ctx, q, arg).Scan(&f.ID, &f.ServiceID, &f.Version, &f.Active, &f.CreatedAt); err != nil {
		return nil, notFoundOr(err, "service_form", arg, "get form")
	}
	fields, err := s.formFields(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	f.Fields = fields
	return &f, nil
}

// GetForm selects a form with its ordered fields.
func (s *Store) GetForm(ctx context.Context, id int64) (*domain.ServiceForm, error) {
	return s.getForm(ctx, `SELECT id, service_id, version, active, created_at FROM service_forms WHERE id=$1`, id)
}

// GetActiveForm selects the active form of a service.
func (s *Store) GetActiveForm(ctx context.Context, serviceID int64) (*domain.ServiceForm, error) {
	return s.getForm(ctx, `SELECT id, service_id, version, active, created_at FROM service_forms WHERE service_id=$1 AND active`, serviceID)
}

// ListForms returns every version of a service's form without fields.
func (s *Store) ListForms(ctx context.Context, serviceID int64) ([]domain.ServiceForm, error) {
	const q = `SELECT id, service_id, version, active, created_at FROM service_forms WHERE service_id=$1 ORDER BY version`
	rows, err := s.q.Query(ctx, q, serviceID)
	if err != nil {
		return nil, persistence("list forms", err)
	}
	defer rows.Close()

	var out []domain.ServiceForm
	for rows.Next() {
		var f domain.ServiceForm
		if err := rows.Scan(&f.ID, &f.ServiceID, &f.Version, &f.Active, &f.CreatedAt); err != nil {
			return nil, persistence("scan form", err)
		}
		out = append(out, f)
	}
	return out, persistence("list forms", rows.Err())
}

// DeactivateForms clears the active flag on every form of a service.
func (s *Store) DeactivateForms(ctx context.Context, serviceID int64) error {
	_, err := s.q.Exec(ctx, `UPDATE service_forms SET active=false WHERE service_id=$1 AND active`, serviceID)
	return persistence("deactivate forms", err)
}

// ActivateForm sets the active flag on one form.
func (s *Store) ActivateForm(ctx context.Context, formID int64) error {
	tag, err := s.q.Exec(ctx, `UPDATE service_forms SET active=true WHERE id=$1`, formID)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ErrConflict{Message: "outro formulário já está ativo"}
		}
		return persistence("activate form", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "service_form", ID: itoa(formID)}
	}
	return nil
}
