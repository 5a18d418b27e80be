package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

var tracer = otel.Tracer("postgres")

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store implements port.Store. A Store returned inside WithTx is bound
// to that transaction.
type Store struct {
	db   *DB
	q    querier
	inTx bool
}

var _ port.Store = (*Store)(nil)

// NewStore constructs the entity store.
func NewStore(db *DB) *Store { return &Store{db: db, q: db.Pool} }

// WithTx runs fn inside a single transaction and commits when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx port.Repos) error) (err error) {
	if s.inTx {
		return fn(s)
	}

	ctx, span := tracer.Start(ctx, "postgres.WithTx")
	defer span.End()

	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return persistence("begin", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = persistence("commit", e)
		}
	}()

	return fn(&Store{db: s.db, q: tx, inTx: true})
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Pool.Ping(ctx)
}

// NextSequence atomically increments the counter for kind and returns the new value.
func (s *Store) NextSequence(ctx context.Context, kind string) (int64, error) {
	const q = `
INSERT INTO protocol_counters (kind, value) VALUES ($1, 1)
ON CONFLICT (kind) DO UPDATE SET value = protocol_counters.value + 1
RETURNING value`
	var v int64
	if err := s.q.QueryRow(ctx, q, kind).Scan(&v); err != nil {
		return 0, persistence("next sequence", err)
	}
	return v, nil
}

// GroupPaymentTotal sums price across every list and submission sharing the group.
func (s *Store) GroupPaymentTotal(ctx context.Context, groupPaymentID int64) (*domain.GroupTotal, error) {
	const q = `
SELECT
  COALESCE((SELECT SUM(price) FROM lists WHERE group_payment_id=$1), 0)
    + COALESCE((SELECT SUM(price) FROM submissions WHERE group_payment_id=$1), 0),
  (SELECT COUNT(*) FROM lists WHERE group_payment_id=$1),
  (SELECT COUNT(*) FROM submissions WHERE group_payment_id=$1)`
	out := domain.GroupTotal{GroupPaymentID: groupPaymentID}
	if err := s.q.QueryRow(ctx, q, groupPaymentID).Scan(&out.Total, &out.Lists, &out.Submissions); err != nil {
		return nil, persistence("group payment total", err)
	}
	if out.Lists+out.Submissions == 0 {
		return nil, &domain.ErrNotFound{Resource: "group_payment", ID: fmt.Sprint(groupPaymentID)}
	}
	return &out, nil
}
