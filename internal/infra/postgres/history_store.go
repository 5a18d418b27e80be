package postgres

import (
	"context"
	"fmt"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

// AppendHistory inserts one timeline row.
func (s *Store) AppendHistory(ctx context.Context, h domain.StatusHistory) error {
	if _, ok := h.Kind(); !ok {
		return &domain.ErrValidation{Field: "status_history", Message: "exactly one owner must be set"}
	}
	const q = `INSERT INTO status_history (list_id, list_group_id, submission_id, status, updated_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := s.q.Exec(ctx, q, h.ListID, h.ListGroupID, h.SubmissionID, h.Status, h.UpdatedAt)
	return persistence("append history", err)
}

// ListHistory returns an entity's timeline in chronological order.
func (s *Store) ListHistory(ctx context.Context, kind domain.EntityKind, id int64) ([]domain.StatusHistory, error) {
	var col string
	switch kind {
	case domain.KindList:
		col = "list_id"
	case domain.KindListGroup:
		col = "list_group_id"
	case domain.KindSubmission:
		col = "submission_id"
	default:
		return nil, &domain.ErrValidation{Field: "kind", Message: fmt.Sprintf("unknown entity kind %q", kind)}
	}

	q := `SELECT id, list_id, list_group_id, submission_id, status, updated_at
FROM status_history WHERE ` + col + `=$1 ORDER BY updated_at, id`
	rows, err := s.q.Query(ctx, q, id)
	if err != nil {
		return nil, persistence("list history", err)
	}
	defer rows.Close()

	var out []domain.StatusHistory
	for rows.Next() {
		var h domain.StatusHistory
		if err := rows.Scan(&h.ID, &h.ListID, &h.ListGroupID, &h.SubmissionID, &h.Status, &h.UpdatedAt); err != nil {
			return nil, persistence("scan history", err)
		}
		out = append(out, h)
	}
	return out, persistence("list history", rows.Err())
}

// InsertAppLog persists one audit entry.
func (s *Store) InsertAppLog(ctx context.Context, e *domain.AppLog) error {
	const q = `
INSERT INTO app_logs (level, message, context, client_id, list_id, list_group_id, data)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	var data any
	if len(e.Data) > 0 {
		data = string(e.Data)
	}
	_, err := s.q.Exec(ctx, q, string(e.Level), e.Message, e.Context, e.ClientID, e.ListID, e.ListGroupID, data)
	return persistence("insert app log", err)
}
