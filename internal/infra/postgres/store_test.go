package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

func newStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewStore(&DB{Pool: mock}), mock
}

func ptr[T any](v T) *T { return &v }

func TestStore_WithTx_CommitsSequenceAndHistory(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO protocol_counters (kind, value) VALUES ($1, 1)`)).
		WithArgs(domain.CounterList).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(int64(42)))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO status_history (list_id, list_group_id, submission_id, status, updated_at)`)).
		WithArgs(ptr(int64(9)), (*int64)(nil), (*int64)(nil), string(domain.ListAwaitingPayment), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	var seq int64
	err := s.WithTx(ctx, func(tx port.Repos) error {
		var err error
		if seq, err = tx.NextSequence(ctx, domain.CounterList); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, domain.NewStatusHistory(domain.KindList, 9, string(domain.ListAwaitingPayment), at))
	})
	require.NoError(t, err)
	require.Equal(t, int64(42), seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	ctx := context.Background()
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM lists WHERE id=$1 FOR UPDATE`)).
		WithArgs(int64(3)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(tx port.Repos) error {
		if _, err := tx.GetListForUpdate(ctx, 3); err != nil {
			var nf *domain.ErrNotFound
			require.True(t, errors.As(err, &nf))
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTx_NestedJoinsOuter(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := s.WithTx(ctx, func(tx port.Repos) error {
		return tx.(*Store).WithTx(ctx, func(port.Repos) error {
			calls++
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GroupPaymentTotal(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT\s+COALESCE`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"total", "lists", "submissions"}).AddRow(400.0, 3, 0))

	got, err := s.GroupPaymentTotal(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 400.0, got.Total)
	require.Equal(t, 3, got.Lists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GroupPaymentTotal_UnknownGroup(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT\s+COALESCE`).
		WithArgs(int64(8)).
		WillReturnRows(pgxmock.NewRows([]string{"total", "lists", "submissions"}).AddRow(0.0, 0, 0))

	_, err := s.GroupPaymentTotal(context.Background(), 8)
	var nf *domain.ErrNotFound
	require.True(t, errors.As(err, &nf))
}

func TestStore_ReplaceNames_DeletesThenCopies(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM names_list WHERE list_id=$1`)).
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"names_list"}, []string{"nome", "cpf", "list_id"}).
		WillReturnResult(2)

	err := s.ReplaceNames(context.Background(), 5, []domain.NamesList{
		{Nome: "Ana", CPF: "11111111111"},
		{Nome: "Bia", CPF: "22222222222"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveListState_NotFound(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE lists SET status=$2`)).
		WithArgs(int64(11), string(domain.ListPaymentSettled), true, (*string)(nil), (*string)(nil),
			(*int64)(nil), false).
		WillReturnError(pgx.ErrNoRows)

	err := s.SaveListState(context.Background(), &domain.List{ID: 11, Status: domain.ListPaymentSettled, Payed: true})
	var nf *domain.ErrNotFound
	require.True(t, errors.As(err, &nf))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveListState_StampsUpdatedAt(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stamped := time.Date(2024, 6, 2, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`updated_at=now()`)).
		WithArgs(int64(11), string(domain.ListPaymentSettled), true, ptr("qr_1"), (*string)(nil),
			(*int64)(nil), false).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(stamped))

	l := &domain.List{ID: 11, Status: domain.ListPaymentSettled, Payed: true, ListPaymentID: ptr("qr_1"),
		CreatedAt: created, UpdatedAt: created}
	require.NoError(t, s.SaveListState(context.Background(), l))
	require.Equal(t, stamped, l.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveSubmissionState_StampsUpdatedAt(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stamped := time.Date(2024, 6, 2, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE submissions SET status=$2`)).
		WithArgs(int64(4), string(domain.SubmissionPaymentApproved), true, (*string)(nil), (*string)(nil),
			(*int64)(nil), false).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(stamped))

	sb := &domain.Submission{ID: 4, Status: domain.SubmissionPaymentApproved, Payed: true, UpdatedAt: created}
	require.NoError(t, s.SaveSubmissionState(context.Background(), sb))
	require.True(t, sb.UpdatedAt.After(created))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateListContent_StampsUpdatedAt(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stamped := time.Date(2024, 6, 2, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE lists SET list_name=$2`)).
		WithArgs(int64(11), "Lote", 30.0, 3, (*int64)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(stamped))

	l := &domain.List{ID: 11, Name: "Lote", Price: 30, NamesQuantity: 3, UpdatedAt: created}
	require.NoError(t, s.UpdateListContent(context.Background(), l))
	require.Equal(t, stamped, l.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateClient_DuplicateIsConflict(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO clients`)).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := s.CreateClient(context.Background(), &domain.Client{Email: "a@b.c", Role: domain.RoleCustomer})
	var conflict *domain.ErrConflict
	require.True(t, errors.As(err, &conflict))
}

func TestStore_GetUserService_Missing(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM user_services WHERE client_id=$1 AND service_id=$2`)).
		WithArgs(int64(30), int64(1)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetUserService(context.Background(), 30, 1)
	var nf *domain.ErrNotFound
	require.True(t, errors.As(err, &nf))
	require.Equal(t, "user_service", nf.Resource)
}

func TestStore_GetList_Scans(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	now := time.Now()

	cols := []string{"id", "list_name", "status", "protocol", "client_id", "affiliate_id", "list_group_id",
		"price", "names_quantity", "list_payment_id", "comprovante_url", "group_payment_id",
		"confirmed_affiliate_list", "payed", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM lists WHERE id=$1`)).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(int64(1), "Lista A", domain.ListAwaitingPayment,
			"20240501_100000-1", int64(30), ptr(int64(2)), nil, 50.0, 5, ptr("qr_1"), nil, nil,
			false, false, now, now))

	l, err := s.GetList(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, domain.ListAwaitingPayment, l.Status)
	require.Equal(t, 50.0, l.Price)
	require.Equal(t, int64(2), *l.AffiliateID)
	require.Equal(t, "qr_1", *l.ListPaymentID)
	require.Nil(t, l.ListGroupID)
}

func TestStore_AppendHistory_RejectsAmbiguousOwner(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	err := s.AppendHistory(context.Background(), domain.StatusHistory{ListID: ptr(int64(1)), SubmissionID: ptr(int64(1))})
	var ve *domain.ErrValidation
	require.True(t, errors.As(err, &ve))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindListByPaymentID_MatchesRecordedCharge(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	now := time.Now()

	cols := []string{"id", "list_name", "status", "protocol", "client_id", "affiliate_id", "list_group_id",
		"price", "names_quantity", "list_payment_id", "comprovante_url", "group_payment_id",
		"confirmed_affiliate_list", "payed", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT entity_id FROM payment_charges WHERE payment_id=$1 AND kind=$2`)).
		WithArgs("pix_1", string(domain.PayableList)).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(int64(5), "Lista A", domain.ListAwaitingPayment,
			"20240501_100000-000001", int64(30), nil, nil, 30.0, 3, ptr("pix_2"), nil, nil,
			false, false, now, now))

	l, err := s.FindListByPaymentIDForUpdate(context.Background(), "pix_1")
	require.NoError(t, err)
	require.Equal(t, int64(5), l.ID)
	require.Equal(t, "pix_2", *l.ListPaymentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RecordAndGetCharge(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (payment_id) DO NOTHING`)).
		WithArgs("pix_1", "list", int64(5), 20.0, "platform", "iVBOR", "000201").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM payment_charges WHERE payment_id=$1`)).
		WithArgs("pix_1").
		WillReturnRows(pgxmock.NewRows([]string{"payment_id", "kind", "entity_id", "amount", "route",
			"encoded_image", "payload", "created_at"}).
			AddRow("pix_1", "list", int64(5), 20.0, "platform", "iVBOR", "000201", at))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM payment_charges WHERE payment_id=$1`)).
		WithArgs("pix_9").
		WillReturnError(pgx.ErrNoRows)

	require.NoError(t, s.RecordCharge(ctx, &domain.IssuedCharge{
		PaymentID: "pix_1", Kind: domain.PayableList, EntityID: 5, Amount: 20,
		Route: domain.RoutePlatform, EncodedImage: "iVBOR", Payload: "000201",
	}))

	c, err := s.GetCharge(ctx, "pix_1")
	require.NoError(t, err)
	require.Equal(t, domain.PayableList, c.Kind)
	require.True(t, c.Covers(20))
	require.Equal(t, at, c.CreatedAt)

	_, err = s.GetCharge(ctx, "pix_9")
	var nf *domain.ErrNotFound
	require.True(t, errors.As(err, &nf))
	require.NoError(t, mock.ExpectationsWereMet())
}
