package postgres

import (
	"context"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

// RecordCharge stores an issued gateway charge. Recording the same payment
// id twice keeps the first row.
func (s *Store) RecordCharge(ctx context.Context, c *domain.IssuedCharge) error {
	const q = `
INSERT INTO payment_charges (payment_id, kind, entity_id, amount, route, encoded_image, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (payment_id) DO NOTHING`
	_, err := s.q.Exec(ctx, q, c.PaymentID, string(c.Kind), c.EntityID, c.Amount, string(c.Route),
		c.EncodedImage, c.Payload)
	return persistence("record charge", err)
}

// GetCharge returns the issued charge with the given gateway id.
func (s *Store) GetCharge(ctx context.Context, paymentID string) (*domain.IssuedCharge, error) {
	const q = `
SELECT payment_id, kind, entity_id, amount, route, encoded_image, payload, created_at
FROM payment_charges WHERE payment_id=$1`
	var (
		c           domain.IssuedCharge
		kind, route string
	)
	err := s.q.QueryRow(ctx, q, paymentID).Scan(&c.PaymentID, &kind, &c.EntityID, &c.Amount, &route,
		&c.EncodedImage, &c.Payload, &c.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "charge", paymentID, "get charge")
	}
	c.Kind, c.Route = domain.PayableKind(kind), domain.RouteKind(route)
	return &c, nil
}
