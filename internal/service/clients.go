package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

var clientTracer = otel.Tracer("service/clients")

const minPasswordLen = 6

// ClientService manages accounts, referrals and negotiated pricing.
type ClientService struct {
	store       port.Store
	pricing     Pricing
	defaultCost float64
	logger      *zap.Logger
}

// NewClientService creates the client service. defaultCost seeds the
// list consultation price of every new account.
func NewClientService(store port.Store, defaultCost float64, logger *zap.Logger) *ClientService {
	return &ClientService{store: store, defaultCost: defaultCost, logger: logger}
}

// ============================================================
// Signup: POST /clients
// ============================================================

// Signup creates an account. caller is nil for public signups, which
// may only create end customers. Affiliates always refer whoever they
// create; admins never carry an affiliate.
func (s *ClientService) Signup(ctx context.Context, caller *domain.Caller, req *domain.SignupRequest) (*domain.Client, error) {
	ctx, span := clientTracer.Start(ctx, "ClientService.Signup")
	defer span.End()

	c, err := s.newClient(req)
	if err != nil {
		return nil, err
	}
	if err := s.resolveReferral(ctx, caller, c); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("role", int(c.Role)))

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	c.PasswordHash = hash

	var created *domain.Client
	err = s.store.WithTx(ctx, func(tx port.Repos) error {
		var err error
		if created, err = tx.CreateClient(ctx, c); err != nil {
			return err
		}
		return tx.UpsertUserService(ctx, domain.UserService{
			ClientID:  created.ID,
			ServiceID: domain.ListConsultationServiceID,
			Cost:      s.defaultCost,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("client created",
		zap.Int64("client_id", created.ID),
		zap.String("role", created.Role.String()),
		zap.Int64p("affiliate_id", created.AffiliateID),
	)
	return created, nil
}

func (s *ClientService) newClient(req *domain.SignupRequest) (*domain.Client, error) {
	c := &domain.Client{
		Username:     strings.TrimSpace(req.Username),
		Document:     digitsOnly(req.Document),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Role:         req.Role,
		AffiliateID:  req.AffiliateID,
		PriceConsult: req.PriceConsult,
		APIKey:       strings.TrimSpace(req.APIKey),
		UsesPix:      req.UsesPix,
		PixKey:       strings.TrimSpace(req.PixKey),
		Active:       true,
	}
	if c.Role == 0 {
		c.Role = domain.RoleCustomer
	}
	switch {
	case c.Username == "":
		return nil, &domain.ErrValidation{Field: "username", Message: "nome é obrigatório"}
	case len(c.Document) != 11 && len(c.Document) != 14:
		return nil, &domain.ErrValidation{Field: "document", Message: "CPF ou CNPJ inválido"}
	case len(req.Password) < minPasswordLen:
		return nil, &domain.ErrValidation{Field: "password", Message: fmt.Sprintf("senha deve ter ao menos %d caracteres", minPasswordLen)}
	case !c.Role.Valid():
		return nil, &domain.ErrValidation{Field: "role", Message: "perfil inválido"}
	case c.PriceConsult < 0:
		return nil, &domain.ErrValidation{Field: "price_consult", Message: "valor não pode ser negativo"}
	case c.UsesPix && c.PixKey == "":
		return nil, &domain.ErrValidation{Field: "pix_key", Message: "chave PIX é obrigatória"}
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return nil, &domain.ErrValidation{Field: "email", Message: "e-mail inválido"}
	}
	return c, nil
}

func (s *ClientService) resolveReferral(ctx context.Context, caller *domain.Caller, c *domain.Client) error {
	switch {
	case caller == nil:
		if c.Role != domain.RoleCustomer {
			return &domain.ErrForbidden{Action: "criar conta com este perfil"}
		}
	case caller.IsAffiliate():
		if c.Role == domain.RoleAdmin {
			return &domain.ErrForbidden{Action: "criar administrador"}
		}
		id := caller.ID
		c.AffiliateID = &id
		return nil
	case caller.IsAdmin():
		if c.Role == domain.RoleAdmin {
			c.AffiliateID = nil
			return nil
		}
	default:
		return &domain.ErrForbidden{Action: "criar clientes"}
	}

	if c.AffiliateID == nil || *c.AffiliateID == 0 {
		c.AffiliateID = nil
		return nil
	}
	aff, err := s.store.GetClient(ctx, *c.AffiliateID)
	if err != nil {
		if isNotFound(err) {
			return &domain.ErrValidation{Field: "affiliateId", Message: "afiliado não encontrado"}
		}
		return err
	}
	if aff.Role != domain.RoleAffiliate || !aff.Active {
		return &domain.ErrValidation{Field: "affiliateId", Message: "cliente indicado não é um afiliado"}
	}
	return nil
}

// ============================================================
// Reads: GET /clients, GET /clients/{id}, GET /clients/me/fees
// ============================================================

func (s *ClientService) List(ctx context.Context, caller domain.Caller, view domain.View) ([]domain.Client, error) {
	ctx, span := clientTracer.Start(ctx, "ClientService.List")
	defer span.End()

	if caller.Role == domain.RoleCustomer {
		c, err := s.store.GetClient(ctx, caller.ID)
		if err != nil {
			return nil, err
		}
		return []domain.Client{*c}, nil
	}
	return s.store.ListClients(ctx, domain.ScopeFor(caller, nil, view))
}

func (s *ClientService) Get(ctx context.Context, caller domain.Caller, id int64) (*domain.Client, error) {
	ctx, span := clientTracer.Start(ctx, "ClientService.Get")
	defer span.End()

	c, err := s.store.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(caller, c.ID, c.AffiliateID) {
		return nil, &domain.ErrNotFound{Resource: "client", ID: fmt.Sprint(id)}
	}
	return c, nil
}

// Fees returns the caller's display and billed list consultation fees.
func (s *ClientService) Fees(ctx context.Context, caller domain.Caller) (*domain.Fees, error) {
	ctx, span := clientTracer.Start(ctx, "ClientService.Fees")
	defer span.End()

	c, err := s.store.GetClient(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	return s.pricing.Fees(ctx, s.store, c)
}

// ============================================================
// Pricing: PUT /clients/{id}/services/{serviceId}
// ============================================================

// SetServiceCost sets the negotiated per-item cost of a client. Admins
// may price anyone; affiliates only the clients they referred.
func (s *ClientService) SetServiceCost(ctx context.Context, caller domain.Caller, clientID, serviceID int64, cost float64) (*domain.UserService, error) {
	ctx, span := clientTracer.Start(ctx, "ClientService.SetServiceCost")
	defer span.End()
	span.SetAttributes(attribute.Int64("client.id", clientID), attribute.Int64("service.id", serviceID))

	if cost < 0 {
		return nil, &domain.ErrValidation{Field: "cost", Message: "valor não pode ser negativo"}
	}
	c, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !(caller.IsAffiliate() && referredBy(c.AffiliateID, caller.ID)) {
		return nil, &domain.ErrForbidden{Action: "definir preço deste cliente"}
	}
	if _, err := s.store.GetService(ctx, serviceID); err != nil {
		return nil, err
	}

	us := domain.UserService{ClientID: clientID, ServiceID: serviceID, Cost: cost}
	if err := s.store.UpsertUserService(ctx, us); err != nil {
		return nil, err
	}
	s.logger.Info("service cost updated",
		zap.Int64("client_id", clientID),
		zap.Int64("service_id", serviceID),
		zap.Float64("cost", cost),
		zap.Int64("by", caller.ID),
	)
	return &us, nil
}
