package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

const listGroupColumns = `id, name, expires_at, status, admin, created_at`

func scanListGroup(row pgx.Row) (*domain.ListGroup, error) {
	var g domain.ListGroup
	if err := row.Scan(&g.ID, &g.Name, &g.ExpiresAt, &g.Status, &g.Admin, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateListGroup inserts a group.
func (s *Store) CreateListGroup(ctx context.Context, g *domain.ListGroup) (*domain.ListGroup, error) {
	const q = `
INSERT INTO list_groups (name, expires_at, status, admin) VALUES ($1, $2, $3, $4)
RETURNING ` + listGroupColumns
	out, err := scanListGroup(s.q.QueryRow(ctx, q, g.Name, g.ExpiresAt, string(g.Status), g.Admin))
	if err != nil {
		return nil, persistence("create list group", err)
	}
	return out, nil
}

// GetListGroup selects a group by id.
func (s *Store) GetListGroup(ctx context.Context, id int64) (*domain.ListGroup, error) {
	g, err := scanListGroup(s.q.QueryRow(ctx, `SELECT `+listGroupColumns+` FROM list_groups WHERE id=$1`, id))
	if err != nil {
		return nil, notFoundOr(err, "list_group", id, "get list group")
	}
	return g, nil
}

// GetListGroupForUpdate selects and locks a group.
func (s *Store) GetListGroupForUpdate(ctx context.Context, id int64) (*domain.ListGroup, error) {
	q := `SELECT ` + listGroupColumns + ` FROM list_groups WHERE id=$1 FOR UPDATE`
	g, err := scanListGroup(s.q.QueryRow(ctx, q, id))
	if err != nil {
		return nil, notFoundOr(err, "list_group", id, "lock list group")
	}
	return g, nil
}

// ListListGroups returns every group, newest first.
func (s *Store) ListListGroups(ctx context.Context) ([]domain.ListGroup, error) {
	rows, err := s.q.Query(ctx, `SELECT `+listGroupColumns+` FROM list_groups ORDER BY expires_at DESC, id DESC`)
	if err != nil {
		return nil, persistence("list list groups", err)
	}
	defer rows.Close()

	var out []domain.ListGroup
	for rows.Next() {
		g, err := scanListGroup(rows)
		if err != nil {
			return nil, persistence("scan list group", err)
		}
		out = append(out, *g)
	}
	return out, persistence("list list groups", rows.Err())
}

// OpenListGroup returns the scheduled window that closes first after now.
func (s *Store) OpenListGroup(ctx context.Context, now time.Time) (*domain.ListGroup, error) {
	q := `SELECT ` + listGroupColumns + `
FROM list_groups WHERE admin = false AND expires_at > $1
ORDER BY expires_at, id LIMIT 1`
	g, err := scanListGroup(s.q.QueryRow(ctx, q, now))
	if err != nil {
		return nil, notFoundOr(err, "list_group", "open", "open list group")
	}
	return g, nil
}

// SaveListGroupStatus writes a group's status.
func (s *Store) SaveListGroupStatus(ctx context.Context, id int64, status domain.ListStatus) error {
	tag, err := s.q.Exec(ctx, `UPDATE list_groups SET status=$2 WHERE id=$1`, id, string(status))
	if err != nil {
		return persistence("save list group status", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "list_group", ID: itoa(id)}
	}
	return nil
}

// DeleteListGroup detaches member lists and removes the group.
func (s *Store) DeleteListGroup(ctx context.Context, id int64) error {
	if _, err := s.q.Exec(ctx, `UPDATE lists SET list_group_id=NULL WHERE list_group_id=$1`, id); err != nil {
		return persistence("detach lists", err)
	}
	tag, err := s.q.Exec(ctx, `DELETE FROM list_groups WHERE id=$1`, id)
	if err != nil {
		return persistence("delete list group", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "list_group", ID: itoa(id)}
	}
	return nil
}
