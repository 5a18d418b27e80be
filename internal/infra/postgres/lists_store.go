package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

const listColumns = `id, list_name, status, protocol, client_id, affiliate_id, list_group_id, price,
names_quantity, list_payment_id, comprovante_url, group_payment_id, confirmed_affiliate_list, payed,
created_at, updated_at`

func scanList(row pgx.Row) (*domain.List, error) {
	var l domain.List
	err := row.Scan(&l.ID, &l.Name, &l.Status, &l.Protocol, &l.ClientID, &l.AffiliateID, &l.ListGroupID,
		&l.Price, &l.NamesQuantity, &l.ListPaymentID, &l.ComprovanteURL, &l.GroupPaymentID,
		&l.ConfirmedAffiliateList, &l.Payed, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) queryLists(ctx context.Context, op, q string, args ...any) ([]domain.List, error) {
	rows, err := s.q.Query(ctx, q, args...)
	if err != nil {
		return nil, persistence(op, err)
	}
	defer rows.Close()

	var out []domain.List
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, persistence(op, err)
		}
		out = append(out, *l)
	}
	return out, persistence(op, rows.Err())
}

// CreateList inserts the list row. Names are written with ReplaceNames.
func (s *Store) CreateList(ctx context.Context, l *domain.List) (*domain.List, error) {
	const q = `
INSERT INTO lists (list_name, status, protocol, client_id, affiliate_id, list_group_id, price,
  names_quantity, confirmed_affiliate_list, payed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + listColumns
	out, err := scanList(s.q.QueryRow(ctx, q, l.Name, string(l.Status), l.Protocol, l.ClientID, l.AffiliateID,
		l.ListGroupID, l.Price, l.NamesQuantity, l.ConfirmedAffiliateList, l.Payed))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ErrConflict{Message: "protocolo já utilizado"}
		}
		return nil, persistence("create list", err)
	}
	return out, nil
}

// GetList selects a list by id.
func (s *Store) GetList(ctx context.Context, id int64) (*domain.List, error) {
	l, err := scanList(s.q.QueryRow(ctx, `SELECT `+listColumns+` FROM lists WHERE id=$1`, id))
	if err != nil {
		return nil, notFoundOr(err, "list", id, "get list")
	}
	return l, nil
}

// GetListByProtocol selects a list by its protocol.
func (s *Store) GetListByProtocol(ctx context.Context, protocol string) (*domain.List, error) {
	l, err := scanList(s.q.QueryRow(ctx, `SELECT `+listColumns+` FROM lists WHERE protocol=$1`, protocol))
	if err != nil {
		return nil, notFoundOr(err, "list", protocol, "get list by protocol")
	}
	return l, nil
}

// GetListForUpdate selects and locks a list.
func (s *Store) GetListForUpdate(ctx context.Context, id int64) (*domain.List, error) {
	l, err := scanList(s.q.QueryRow(ctx, `SELECT `+listColumns+` FROM lists WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, "list", id, "lock list")
	}
	return l, nil
}

// FindListByPaymentIDForUpdate locks the list correlated to a gateway charge,
// either the current one or any earlier charge recorded in payment_charges.
func (s *Store) FindListByPaymentIDForUpdate(ctx context.Context, paymentID string) (*domain.List, error) {
	q := `SELECT ` + listColumns + ` FROM lists
WHERE list_payment_id=$1
   OR id = (SELECT entity_id FROM payment_charges WHERE payment_id=$1 AND kind=$2)
ORDER BY id LIMIT 1 FOR UPDATE`
	l, err := scanList(s.q.QueryRow(ctx, q, paymentID, string(domain.PayableList)))
	if err != nil {
		return nil, notFoundOr(err, "list", paymentID, "lock list by payment id")
	}
	return l, nil
}

// ListsByIDsForUpdate locks the given lists in id order.
func (s *Store) ListsByIDsForUpdate(ctx context.Context, ids []int64) ([]domain.List, error) {
	q := `SELECT ` + listColumns + ` FROM lists WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	return s.queryLists(ctx, "lock lists", q, ids)
}

// ListsByGroupPaymentForUpdate locks every list sharing a group payment.
func (s *Store) ListsByGroupPaymentForUpdate(ctx context.Context, groupPaymentID int64) ([]domain.List, error) {
	q := `SELECT ` + listColumns + ` FROM lists WHERE group_payment_id=$1 ORDER BY id FOR UPDATE`
	return s.queryLists(ctx, "lock group payment lists", q, groupPaymentID)
}

// PaidListsInGroupForUpdate locks the paid members of a list group.
func (s *Store) PaidListsInGroupForUpdate(ctx context.Context, listGroupID int64) ([]domain.List, error) {
	q := `SELECT ` + listColumns + ` FROM lists WHERE list_group_id=$1 AND payed ORDER BY id FOR UPDATE`
	return s.queryLists(ctx, "lock paid group lists", q, listGroupID)
}

// ListLists returns one page of lists matching f and the total count.
func (s *Store) ListLists(ctx context.Context, f domain.ListFilter) ([]domain.List, int, error) {
	var w where
	w.scope(f.Scope, "client_id", "affiliate_id")
	if f.Status != "" {
		w.and("status = " + w.arg(string(f.Status)))
	}
	if f.GroupID != nil {
		w.and("list_group_id = " + w.arg(*f.GroupID))
	}
	w.createdBetween("created_at", f.From, f.To)

	var total int
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM lists`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, persistence("count lists", err)
	}

	q := `SELECT ` + listColumns + ` FROM lists` + w.String() + ` ORDER BY created_at DESC, id DESC`
	q += w.page(f.Limit, f.Offset)
	out, err := s.queryLists(ctx, "list lists", q, w.args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateListContent writes the editable content columns and stamps updated_at.
func (s *Store) UpdateListContent(ctx context.Context, l *domain.List) error {
	const q = `
UPDATE lists SET list_name=$2, price=$3, names_quantity=$4, list_group_id=$5, updated_at=now()
WHERE id=$1
RETURNING updated_at`
	err := s.q.QueryRow(ctx, q, l.ID, l.Name, l.Price, l.NamesQuantity, l.ListGroupID).Scan(&l.UpdatedAt)
	return notFoundOr(err, "list", l.ID, "update list")
}

// SaveListState writes status and payment columns and stamps updated_at.
func (s *Store) SaveListState(ctx context.Context, l *domain.List) error {
	const q = `
UPDATE lists SET status=$2, payed=$3, list_payment_id=$4, comprovante_url=$5, group_payment_id=$6,
  confirmed_affiliate_list=$7, updated_at=now()
WHERE id=$1
RETURNING updated_at`
	err := s.q.QueryRow(ctx, q, l.ID, string(l.Status), l.Payed, l.ListPaymentID, l.ComprovanteURL,
		l.GroupPaymentID, l.ConfirmedAffiliateList).Scan(&l.UpdatedAt)
	if isUniqueViolation(err) {
		return &domain.ErrConflict{Message: "cobrança já vinculada a outro registro"}
	}
	return notFoundOr(err, "list", l.ID, "save list state")
}

// ReplaceNames deletes a list's names and bulk-inserts the new set.
func (s *Store) ReplaceNames(ctx context.Context, listID int64, names []domain.NamesList) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM names_list WHERE list_id=$1`, listID); err != nil {
		return persistence("delete names", err)
	}
	if len(names) == 0 {
		return nil
	}
	_, err := s.q.CopyFrom(ctx, pgx.Identifier{"names_list"}, []string{"nome", "cpf", "list_id"},
		pgx.CopyFromSlice(len(names), func(i int) ([]any, error) {
			return []any{names[i].Nome, names[i].CPF, listID}, nil
		}))
	return persistence("copy names", err)
}

// GetNames returns a list's names in insertion order.
func (s *Store) GetNames(ctx context.Context, listID int64) ([]domain.NamesList, error) {
	rows, err := s.q.Query(ctx, `SELECT id, nome, cpf, list_id FROM names_list WHERE list_id=$1 ORDER BY id`, listID)
	if err != nil {
		return nil, persistence("get names", err)
	}
	defer rows.Close()

	var out []domain.NamesList
	for rows.Next() {
		var n domain.NamesList
		if err := rows.Scan(&n.ID, &n.Nome, &n.CPF, &n.ListID); err != nil {
			return nil, persistence("scan name", err)
		}
		out = append(out, n)
	}
	return out, persistence("get names", rows.Err())
}
