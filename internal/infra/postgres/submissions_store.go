package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

const submissionColumns = `id, user_id, service_form_id, service_id, price, status, protocol, affiliate_id,
service_payment_id, comprovante_url, group_payment_id, confirmed_affiliate_list, payed, created_at, updated_at`

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var sb domain.Submission
	err := row.Scan(&sb.ID, &sb.UserID, &sb.ServiceFormID, &sb.ServiceID, &sb.Price, &sb.Status, &sb.Protocol,
		&sb.AffiliateID, &sb.ServicePaymentID, &sb.ComprovanteURL, &sb.GroupPaymentID,
		&sb.ConfirmedAffiliateList, &sb.Payed, &sb.CreatedAt, &sb.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sb, nil
}

func (s *Store) querySubmissions(ctx context.Context, op, q string, args ...any) ([]domain.Submission, error) {
	rows, err := s.q.Query(ctx, q, args...)
	if err != nil {
		return nil, persistence(op, err)
	}
	defer rows.Close()

	var out []domain.Submission
	for rows.Next() {
		sb, err := scanSubmission(rows)
		if err != nil {
			return nil, persistence(op, err)
		}
		out = append(out, *sb)
	}
	return out, persistence(op, rows.Err())
}

// CreateSubmission inserts the submission row. Answers are written with InsertAnswers.
func (s *Store) CreateSubmission(ctx context.Context, sb *domain.Submission) (*domain.Submission, error) {
	const q = `
INSERT INTO submissions (user_id, service_form_id, service_id, price, status, protocol, affiliate_id,
  confirmed_affiliate_list, payed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + submissionColumns
	out, err := scanSubmission(s.q.QueryRow(ctx, q, sb.UserID, sb.ServiceFormID, sb.ServiceID, sb.Price,
		string(sb.Status), sb.Protocol, sb.AffiliateID, sb.ConfirmedAffiliateList, sb.Payed))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ErrConflict{Message: "protocolo já utilizado"}
		}
		return nil, persistence("create submission", err)
	}
	return out, nil
}

// InsertAnswers bulk-inserts the answers of a submission.
func (s *Store) InsertAnswers(ctx context.Context, submissionID int64, answers []domain.Answer) error {
	if len(answers) == 0 {
		return nil
	}
	_, err := s.q.CopyFrom(ctx, pgx.Identifier{"answers"}, []string{"submission_id", "form_field_id", "value"},
		pgx.CopyFromSlice(len(answers), func(i int) ([]any, error) {
			return []any{submissionID, answers[i].FormFieldID, answers[i].Value}, nil
		}))
	return persistence("insert answers", err)
}

// GetSubmission selects a submission by id.
func (s *Store) GetSubmission(ctx context.Context, id int64) (*domain.Submission, error) {
	sb, err := scanSubmission(s.q.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=$1`, id))
	if err != nil {
		return nil, notFoundOr(err, "submission", id, "get submission")
	}
	return sb, nil
}

// GetSubmissionForUpdate selects and locks a submission.
func (s *Store) GetSubmissionForUpdate(ctx context.Context, id int64) (*domain.Submission, error) {
	q := `SELECT ` + submissionColumns + ` FROM submissions WHERE id=$1 FOR UPDATE`
	sb, err := scanSubmission(s.q.QueryRow(ctx, q, id))
	if err != nil {
		return nil, notFoundOr(err, "submission", id, "lock submission")
	}
	return sb, nil
}

// FindSubmissionByPaymentIDForUpdate locks the submission correlated to a gateway
// charge, either the current one or any earlier charge recorded in payment_charges.
func (s *Store) FindSubmissionByPaymentIDForUpdate(ctx context.Context, paymentID string) (*domain.Submission, error) {
	q := `SELECT ` + submissionColumns + ` FROM submissions
WHERE service_payment_id=$1
   OR id = (SELECT entity_id FROM payment_charges WHERE payment_id=$1 AND kind=$2)
ORDER BY id LIMIT 1 FOR UPDATE`
	sb, err := scanSubmission(s.q.QueryRow(ctx, q, paymentID, string(domain.PayableSubmission)))
	if err != nil {
		return nil, notFoundOr(err, "submission", paymentID, "lock submission by payment id")
	}
	return sb, nil
}

// SubmissionsByIDsForUpdate locks the given submissions in id order.
func (s *Store) SubmissionsByIDsForUpdate(ctx context.Context, ids []int64) ([]domain.Submission, error) {
	q := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	return s.querySubmissions(ctx, "lock submissions", q, ids)
}

// SubmissionsByGroupPaymentForUpdate locks every submission sharing a group payment.
func (s *Store) SubmissionsByGroupPaymentForUpdate(ctx context.Context, groupPaymentID int64) ([]domain.Submission, error) {
	q := `SELECT ` + submissionColumns + ` FROM submissions WHERE group_payment_id=$1 ORDER BY id FOR UPDATE`
	return s.querySubmissions(ctx, "lock group payment submissions", q, groupPaymentID)
}

// ListSubmissions returns one page of submissions matching f and the total count.
func (s *Store) ListSubmissions(ctx context.Context, f domain.SubmissionFilter) ([]domain.Submission, int, error) {
	var w where
	w.scope(f.Scope, "user_id", "affiliate_id")
	if f.Status != "" {
		w.and("status = " + w.arg(string(f.Status)))
	}
	if f.ServiceID != 0 {
		w.and("service_id = " + w.arg(f.ServiceID))
	}
	w.createdBetween("created_at", f.From, f.To)

	var total int
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM submissions`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, persistence("count submissions", err)
	}

	q := `SELECT ` + submissionColumns + ` FROM submissions` + w.String() + ` ORDER BY created_at DESC, id DESC`
	q += w.page(f.Limit, f.Offset)
	out, err := s.querySubmissions(ctx, "list submissions", q, w.args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// SaveSubmissionState writes status and payment columns and stamps updated_at.
func (s *Store) SaveSubmissionState(ctx context.Context, sb *domain.Submission) error {
	const q = `
UPDATE submissions SET status=$2, payed=$3, service_payment_id=$4, comprovante_url=$5, group_payment_id=$6,
  confirmed_affiliate_list=$7, updated_at=now()
WHERE id=$1
RETURNING updated_at`
	err := s.q.QueryRow(ctx, q, sb.ID, string(sb.Status), sb.Payed, sb.ServicePaymentID, sb.ComprovanteURL,
		sb.GroupPaymentID, sb.ConfirmedAffiliateList).Scan(&sb.UpdatedAt)
	if isUniqueViolation(err) {
		return &domain.ErrConflict{Message: "cobrança já vinculada a outro registro"}
	}
	return notFoundOr(err, "submission", sb.ID, "save submission state")
}

// GetAnswers returns a submission's answers joined with their field definitions.
func (s *Store) GetAnswers(ctx context.Context, submissionID int64) ([]domain.Answer, error) {
	const q = `
SELECT a.id, a.submission_id, a.form_field_id, a.value, a.invalid_reason,
       f.id, f.service_form_id, f.label, f.type, f.required, f.position
FROM answers a JOIN form_fields f ON f.id = a.form_field_id
WHERE a.submission_id=$1 ORDER BY f.position, f.id`
	rows, err := s.q.Query(ctx, q, submissionID)
	if err != nil {
		return nil, persistence("get answers", err)
	}
	defer rows.Close()

	var out []domain.Answer
	for rows.Next() {
		var (
			a  domain.Answer
			fd domain.FormField
		)
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.FormFieldID, &a.Value, &a.InvalidReason,
			&fd.ID, &fd.ServiceFormID, &fd.Label, &fd.Type, &fd.Required, &fd.Position); err != nil {
			return nil, persistence("scan answer", err)
		}
		a.Field = &fd
		out = append(out, a)
	}
	return out, persistence("get answers", rows.Err())
}

// SetAnswerInvalid records an admin rejection reason on one answer.
func (s *Store) SetAnswerInvalid(ctx context.Context, submissionID, fieldID int64, reason string) error {
	const q = `UPDATE answers SET invalid_reason=$3 WHERE submission_id=$1 AND form_field_id=$2`
	return s.execAnswer(ctx, q, "set answer invalid", submissionID, fieldID, reason)
}

// UpdateAnswerValue stores a corrected value and clears the rejection reason.
func (s *Store) UpdateAnswerValue(ctx context.Context, submissionID, fieldID int64, value string) error {
	const q = `UPDATE answers SET value=$3, invalid_reason=NULL WHERE submission_id=$1 AND form_field_id=$2`
	return s.execAnswer(ctx, q, "update answer", submissionID, fieldID, value)
}

func (s *Store) execAnswer(ctx context.Context, q, op string, submissionID, fieldID int64, v string) error {
	tag, err := s.q.Exec(ctx, q, submissionID, fieldID, v)
	if err != nil {
		return persistence(op, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "answer", ID: fmt.Sprintf("%d/%d", submissionID, fieldID)}
	}
	return nil
}

