package service

import (
	"context"
	"time"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

// Protocols is the Protocol Generator. Sequences come from an atomic
// per-kind counter inside the creating transaction, and the protocol
// columns are unique, so two creations can never share a protocol.
type Protocols struct {
	now func() time.Time
}

// NewProtocols creates a generator using the wall clock.
func NewProtocols() *Protocols { return &Protocols{now: time.Now} }

// Next returns the protocol for a new list or submission.
func (p *Protocols) Next(ctx context.Context, tx port.Repos, kind domain.PayableKind) (string, error) {
	switch kind {
	case domain.PayableList:
		seq, err := tx.NextSequence(ctx, domain.CounterList)
		if err != nil {
			return "", err
		}
		return domain.ListProtocol(p.now(), seq), nil
	case domain.PayableSubmission:
		seq, err := tx.NextSequence(ctx, domain.CounterSubmission)
		if err != nil {
			return "", err
		}
		return domain.SubmissionProtocol(p.now(), seq), nil
	}
	return "", &domain.ErrValidation{Field: "kind", Message: "tipo inválido"}
}

// NextGroupPaymentID allocates a fresh group_payment_id.
func (p *Protocols) NextGroupPaymentID(ctx context.Context, tx port.Repos) (int64, error) {
	return tx.NextSequence(ctx, domain.CounterGroupPayment)
}
