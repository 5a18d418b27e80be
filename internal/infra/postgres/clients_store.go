package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

const clientColumns = `id, username, document, email, password_hash, role, affiliate_id,
price_consult, api_key, uses_pix, pix_key, active, created_at`

func scanClient(row pgx.Row) (*domain.Client, error) {
	var c domain.Client
	err := row.Scan(&c.ID, &c.Username, &c.Document, &c.Email, &c.PasswordHash, &c.Role, &c.AffiliateID,
		&c.PriceConsult, &c.APIKey, &c.UsesPix, &c.PixKey, &c.Active, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateClient inserts a client. Duplicate document or email yields *domain.ErrConflict.
func (s *Store) CreateClient(ctx context.Context, c *domain.Client) (*domain.Client, error) {
	const q = `
INSERT INTO clients (username, document, email, password_hash, role, affiliate_id,
  price_consult, api_key, uses_pix, pix_key, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + clientColumns
	out, err := scanClient(s.q.QueryRow(ctx, q, c.Username, c.Document, c.Email, c.PasswordHash, int16(c.Role),
		c.AffiliateID, c.PriceConsult, c.APIKey, c.UsesPix, c.PixKey, c.Active))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ErrConflict{Message: "documento ou e-mail já cadastrado"}
		}
		return nil, persistence("create client", err)
	}
	return out, nil
}

// GetClient selects a client by id.
func (s *Store) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	q := `SELECT ` + clientColumns + ` FROM clients WHERE id=$1`
	c, err := scanClient(s.q.QueryRow(ctx, q, id))
	if err != nil {
		return nil, notFoundOr(err, "client", id, "get client")
	}
	return c, nil
}

// GetClientByEmail selects a client by e-mail.
func (s *Store) GetClientByEmail(ctx context.Context, email string) (*domain.Client, error) {
	q := `SELECT ` + clientColumns + ` FROM clients WHERE lower(email)=lower($1)`
	c, err := scanClient(s.q.QueryRow(ctx, q, email))
	if err != nil {
		return nil, notFoundOr(err, "client", email, "get client by email")
	}
	return c, nil
}

// ListClients returns the clients visible under scope.
func (s *Store) ListClients(ctx context.Context, scope domain.Scope) ([]domain.Client, error) {
	var w where
	w.scope(scope, "id", "affiliate_id")
	q := `SELECT ` + clientColumns + ` FROM clients` + w.String() + ` ORDER BY id`

	rows, err := s.q.Query(ctx, q, w.args...)
	if err != nil {
		return nil, persistence("list clients", err)
	}
	defer rows.Close()

	var out []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, persistence("scan client", err)
		}
		out = append(out, *c)
	}
	return out, persistence("list clients", rows.Err())
}

// GetUserService returns the negotiated cost for (clientID, serviceID).
func (s *Store) GetUserService(ctx context.Context, clientID, serviceID int64) (*domain.UserService, error) {
	const q = `SELECT client_id, service_id, cost FROM user_services WHERE client_id=$1 AND service_id=$2`
	var us domain.UserService
	if err := s.q.QueryRow(ctx, q, clientID, serviceID).Scan(&us.ClientID, &us.ServiceID, &us.Cost); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.ErrNotFound{Resource: "user_service", ID: fmt.Sprintf("%d/%d", clientID, serviceID)}
		}
		return nil, persistence("get user service", err)
	}
	return &us, nil
}

// UpsertUserService creates or replaces a negotiated cost.
func (s *Store) UpsertUserService(ctx context.Context, us domain.UserService) error {
	const q = `
INSERT INTO user_services (client_id, service_id, cost) VALUES ($1, $2, $3)
ON CONFLICT (client_id, service_id) DO UPDATE SET cost = EXCLUDED.cost`
	_, err := s.q.Exec(ctx, q, us.ClientID, us.ServiceID, us.Cost)
	return persistence("upsert user service", err)
}
