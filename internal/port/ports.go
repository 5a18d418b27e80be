// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"io"
	"time"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

// Store is the Entity Store. Reads and single-statement writes go straight
// through Repos; every logical transition runs inside WithTx.
type Store interface {
	Repos

	// WithTx runs fn in one transaction. fn's error rolls everything back.
	// Nested calls join the outer transaction.
	WithTx(ctx context.Context, fn func(tx Repos) error) error

	Ping(ctx context.Context) error
}

// Repos groups every repository the services use.
type Repos interface {
	ClientRepo
	ListRepo
	ListGroupRepo
	CatalogRepo
	SubmissionRepo
	ChargeRepo
	HistoryRepo
	AppLogRepo
	DashboardRepo

	// NextSequence atomically increments and returns the counter for kind.
	NextSequence(ctx context.Context, kind string) (int64, error)

	// GroupPaymentTotal sums price across lists and submissions sharing groupPaymentID.
	GroupPaymentTotal(ctx context.Context, groupPaymentID int64) (*domain.GroupTotal, error)
}

// PaymentGateway creates PIX charges on the third-party gateway.
type PaymentGateway interface {
	CreatePixCharge(ctx context.Context, amount float64, externalReference, token string) (*domain.PixCharge, error)
}

// BlobStore persists receipts and form uploads.
type BlobStore interface {
	Save(ctx context.Context, folder, filename string, data []byte) (key string, err error)
	Retrieve(ctx context.Context, folder, key string) (*domain.BlobFile, error)
}

// AuditSink receives AppLog entries. Record never fails the caller.
type AuditSink interface {
	Record(ctx context.Context, entry domain.AppLog)
}

// EventLedger remembers processed webhook deliveries.
type EventLedger interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string, ttl time.Duration) error
}

// NamesSheet reads and writes NamesList spreadsheets.
type NamesSheet interface {
	ReadNames(r io.Reader) ([]domain.NamesList, error)
	WriteList(list *domain.List) ([]byte, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
