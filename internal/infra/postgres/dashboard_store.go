package postgres

import (
	"context"
	"fmt"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

// payableTable returns table, owner column and affiliate column for kind.
func payableTable(kind domain.PayableKind) (table, owner, affiliate string, err error) {
	switch kind {
	case domain.PayableList:
		return "lists", "client_id", "affiliate_id", nil
	case domain.PayableSubmission:
		return "submissions", "user_id", "affiliate_id", nil
	}
	return "", "", "", &domain.ErrValidation{Field: "kind", Message: fmt.Sprintf("unknown kind %q", kind)}
}

// CountByStatus groups the scoped rows of kind by status.
func (s *Store) CountByStatus(ctx context.Context, kind domain.PayableKind, scope domain.Scope) ([]domain.StatusCount, error) {
	table, owner, aff, err := payableTable(kind)
	if err != nil {
		return nil, err
	}
	var w where
	w.scope(scope, owner, aff)
	q := `SELECT status, COUNT(*) FROM ` + table + w.String() + ` GROUP BY status ORDER BY status`

	rows, err := s.q.Query(ctx, q, w.args...)
	if err != nil {
		return nil, persistence("count by status", err)
	}
	defer rows.Close()

	var out []domain.StatusCount
	for rows.Next() {
		var c domain.StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, persistence("scan status count", err)
		}
		out = append(out, c)
	}
	return out, persistence("count by status", rows.Err())
}

// RevenueByMonth sums price of paid rows of kind per month of year.
func (s *Store) RevenueByMonth(ctx context.Context, kind domain.PayableKind, scope domain.Scope, year int) ([]domain.MonthlyRevenue, error) {
	table, owner, aff, err := payableTable(kind)
	if err != nil {
		return nil, err
	}
	var w where
	w.scope(scope, owner, aff)
	w.and("payed")
	w.and("EXTRACT(YEAR FROM created_at) = " + w.arg(year))
	q := `SELECT EXTRACT(MONTH FROM created_at)::int AS month, COALESCE(SUM(price), 0)
FROM ` + table + w.String() + ` GROUP BY month ORDER BY month`

	rows, err := s.q.Query(ctx, q, w.args...)
	if err != nil {
		return nil, persistence("revenue by month", err)
	}
	defer rows.Close()

	var out []domain.MonthlyRevenue
	for rows.Next() {
		var m domain.MonthlyRevenue
		if err := rows.Scan(&m.Month, &m.Total); err != nil {
			return nil, persistence("scan revenue", err)
		}
		out = append(out, m)
	}
	return out, persistence("revenue by month", rows.Err())
}
