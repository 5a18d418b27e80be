package service

import (
	"context"
	"errors"
	"math"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

// Pricing is the Pricing Resolver. The billed fee comes from the payer's
// negotiated UserService cost; the display fee comes from price_consult,
// resolved through the referring affiliate for end customers. The two
// are never interchanged.
type Pricing struct{}

// BilledFee is the per-item cost clientID pays for serviceID.
func (Pricing) BilledFee(ctx context.Context, repo port.ClientRepo, clientID, serviceID int64) (float64, error) {
	us, err := repo.GetUserService(ctx, clientID, serviceID)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			return 0, &domain.ErrServiceNotConfigured{ClientID: clientID, ServiceID: serviceID}
		}
		return 0, err
	}
	return us.Cost, nil
}

// ComputePrice is BilledFee multiplied by the item count, rounded to cents.
func (p Pricing) ComputePrice(ctx context.Context, repo port.ClientRepo, clientID, serviceID int64, items int) (float64, error) {
	if items < 0 {
		return 0, &domain.ErrValidation{Field: "items", Message: "quantidade inválida"}
	}
	fee, err := p.BilledFee(ctx, repo, clientID, serviceID)
	if err != nil {
		return 0, err
	}
	return math.Round(fee*float64(items)*100) / 100, nil
}

// DisplayFee is the per-item price shown to the client in the UI.
func (Pricing) DisplayFee(ctx context.Context, repo port.ClientRepo, client *domain.Client) (float64, error) {
	if client.Role != domain.RoleCustomer || !client.HasAffiliate() {
		return client.PriceConsult, nil
	}
	aff, err := repo.GetClient(ctx, *client.AffiliateID)
	if err != nil {
		return 0, err
	}
	return aff.PriceConsult, nil
}

// Fees returns both fees for list consultation.
func (p Pricing) Fees(ctx context.Context, repo port.ClientRepo, client *domain.Client) (*domain.Fees, error) {
	display, err := p.DisplayFee(ctx, repo, client)
	if err != nil {
		return nil, err
	}
	billed, err := p.BilledFee(ctx, repo, client.ID, domain.ListConsultationServiceID)
	if err != nil {
		return nil, err
	}
	return &domain.Fees{DisplayFee: display, BilledFee: billed}, nil
}
