package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

var listTracer = otel.Tracer("service/lists")

// ListService handles list creation, updates and reads.
type ListService struct {
	store     port.Store
	engine    *Engine
	protocols *Protocols
	pricing   Pricing
	sheet     port.NamesSheet
	logger    *zap.Logger
	now       func() time.Time
}

// NewListService creates a list service.
func NewListService(store port.Store, engine *Engine, protocols *Protocols, sheet port.NamesSheet, logger *zap.Logger) *ListService {
	return &ListService{
		store:     store,
		engine:    engine,
		protocols: protocols,
		sheet:     sheet,
		logger:    logger,
		now:       time.Now,
	}
}

// ============================================================
// Create / update: POST /list
// ============================================================

// Save creates the list when in.ID is zero and replaces it otherwise.
func (s *ListService) Save(ctx context.Context, caller domain.Caller, in *domain.ListInput) (*domain.List, error) {
	if err := validateListInput(in); err != nil {
		return nil, err
	}
	if in.ID == 0 {
		return s.create(ctx, caller, in)
	}
	return s.update(ctx, caller, in)
}

func (s *ListService) create(ctx context.Context, caller domain.Caller, in *domain.ListInput) (*domain.List, error) {
	ctx, span := listTracer.Start(ctx, "ListService.Create")
	defer span.End()

	ownerID := caller.ID
	if caller.IsAdmin() && in.ClientID != 0 {
		ownerID = in.ClientID
	}
	owner, err := s.store.GetClient(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get owner: %w", err)
	}

	l := &domain.List{
		Name:          strings.TrimSpace(in.Name),
		ClientID:      owner.ID,
		AffiliateID:   owner.AffiliateID,
		NamesQuantity: len(in.Names),
	}
	trigger := domain.TriggerCreate
	if caller.IsAdmin() {
		// Admin-created lists skip payment entirely.
		trigger = domain.TriggerAdminCreate
		l.Status = domain.ListPaymentApproved
	} else {
		l.Status = domain.ListAwaitingPayment
		if l.Price, err = s.pricing.ComputePrice(ctx, s.store, owner.ID, domain.ListConsultationServiceID, len(in.Names)); err != nil {
			return nil, err
		}
	}
	if l.ListGroupID, err = s.resolveGroup(ctx, in.ListGroupID); err != nil {
		return nil, err
	}

	var change *Change
	err = s.store.WithTx(ctx, func(tx port.Repos) error {
		protocol, err := s.protocols.Next(ctx, tx, domain.PayableList)
		if err != nil {
			return err
		}
		l.Protocol = protocol
		created, err := tx.CreateList(ctx, l)
		if err != nil {
			return err
		}
		if err := tx.ReplaceNames(ctx, created.ID, in.Names); err != nil {
			return err
		}
		change, err = s.engine.Created(ctx, tx, domain.KindList, created.ID, string(created.Status), trigger, &created.ClientID)
		if err != nil {
			return err
		}
		l = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.engine.Audit(ctx, change)

	span.SetAttributes(attribute.Int64("list.id", l.ID), attribute.String("protocol", l.Protocol))
	s.logger.Info("list created",
		zap.Int64("list_id", l.ID),
		zap.String("protocol", l.Protocol),
		zap.Int64("client_id", l.ClientID),
		zap.Int("names", l.NamesQuantity),
		zap.Float64("price", l.Price),
	)
	l.Names = in.Names
	return l, nil
}

// update replaces name, names and price. Concurrent updates are
// last-write-wins; the row lock only serializes them.
func (s *ListService) update(ctx context.Context, caller domain.Caller, in *domain.ListInput) (*domain.List, error) {
	ctx, span := listTracer.Start(ctx, "ListService.Update")
	defer span.End()
	span.SetAttributes(attribute.Int64("list.id", in.ID))

	var out *domain.List
	err := s.store.WithTx(ctx, func(tx port.Repos) error {
		l, err := tx.GetListForUpdate(ctx, in.ID)
		if err != nil {
			return err
		}
		if !caller.IsAdmin() && l.ClientID != caller.ID {
			return &domain.ErrForbidden{Action: "alterar lista de outro cliente"}
		}
		if l.Payed || !l.Status.PrePayment() {
			return &domain.ErrConflict{Message: "lista não pode ser alterada após o pagamento"}
		}

		price, err := s.pricing.ComputePrice(ctx, tx, l.ClientID, domain.ListConsultationServiceID, len(in.Names))
		if err != nil {
			return err
		}
		l.Name = strings.TrimSpace(in.Name)
		l.NamesQuantity = len(in.Names)
		l.Price = price
		if in.ListGroupID != nil {
			if _, err := tx.GetListGroup(ctx, *in.ListGroupID); err != nil {
				return err
			}
			l.ListGroupID = in.ListGroupID
		}
		if err := tx.UpdateListContent(ctx, l); err != nil {
			return err
		}
		if err := tx.ReplaceNames(ctx, l.ID, in.Names); err != nil {
			return err
		}
		l.Names = in.Names
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("list updated",
		zap.Int64("list_id", out.ID),
		zap.String("protocol", out.Protocol),
		zap.Int("names", out.NamesQuantity),
		zap.Float64("price", out.Price),
	)
	return out, nil
}

// resolveGroup validates an explicit group or falls back to the open window.
func (s *ListService) resolveGroup(ctx context.Context, groupID *int64) (*int64, error) {
	if groupID != nil && *groupID != 0 {
		if _, err := s.store.GetListGroup(ctx, *groupID); err != nil {
			return nil, err
		}
		return groupID, nil
	}
	g, err := s.store.OpenListGroup(ctx, s.now())
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &g.ID, nil
}

func validateListInput(in *domain.ListInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return &domain.ErrValidation{Field: "list_name", Message: "nome da lista é obrigatório"}
	}
	if len(in.Names) == 0 {
		return &domain.ErrValidation{Field: "names", Message: "a lista precisa de ao menos um nome"}
	}
	for i := range in.Names {
		n := &in.Names[i]
		n.Nome = strings.TrimSpace(n.Nome)
		n.CPF = strings.TrimSpace(n.CPF)
		if n.Nome == "" || n.CPF == "" {
			return &domain.ErrValidation{
				Field:   "names",
				Message: fmt.Sprintf("item %d: nome e CPF são obrigatórios", i+1),
			}
		}
	}
	return nil
}

// ============================================================
// Reads
// ============================================================

// Get returns a list by protocol with names, history and group total.
// Rows outside the caller's scope are reported as not found.
func (s *ListService) Get(ctx context.Context, caller domain.Caller, protocol string) (*domain.ListDetail, error) {
	ctx, span := listTracer.Start(ctx, "ListService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("protocol", protocol))

	l, err := s.visible(ctx, caller, protocol)
	if err != nil {
		return nil, err
	}
	if l.Names, err = s.store.GetNames(ctx, l.ID); err != nil {
		return nil, err
	}
	detail := &domain.ListDetail{List: l}
	if detail.History, err = s.store.ListHistory(ctx, domain.KindList, l.ID); err != nil {
		return nil, err
	}
	if l.GroupPaymentID != nil {
		total, err := s.store.GroupPaymentTotal(ctx, *l.GroupPaymentID)
		if err != nil {
			return nil, err
		}
		detail.GroupPaymentTotal = &total.Total
	}
	owner, err := s.store.GetClient(ctx, l.ClientID)
	if err != nil {
		return nil, err
	}
	if detail.DisplayFee, err = s.pricing.DisplayFee(ctx, s.store, owner); err != nil {
		return nil, err
	}
	return detail, nil
}

// List returns one page of lists visible to the caller.
func (s *ListService) List(ctx context.Context, caller domain.Caller, clientID *int64, view domain.View, f domain.ListFilter) ([]domain.List, int, error) {
	ctx, span := listTracer.Start(ctx, "ListService.List")
	defer span.End()

	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, &domain.ErrValidation{Field: "status", Message: "status inválido"}
	}
	f.Scope = domain.ScopeFor(caller, clientID, view)
	return s.store.ListLists(ctx, f)
}

// SetStatus is the admin free-text status change for a single list.
func (s *ListService) SetStatus(ctx context.Context, caller domain.Caller, id int64, status domain.ListStatus) (*domain.List, error) {
	ctx, span := listTracer.Start(ctx, "ListService.SetStatus")
	defer span.End()

	if err := requireAdmin(caller, "alterar status da lista"); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "status inválido"}
	}
	var (
		out    *domain.List
		change *Change
	)
	err := s.store.WithTx(ctx, func(tx port.Repos) error {
		l, err := tx.GetListForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if change, err = s.engine.ApplyList(ctx, tx, l, status, domain.TriggerAdminSet, nil); err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.engine.Audit(ctx, change)
	return out, nil
}

// Export renders a visible list as an xlsx workbook.
func (s *ListService) Export(ctx context.Context, caller domain.Caller, protocol string) (*domain.List, []byte, error) {
	ctx, span := listTracer.Start(ctx, "ListService.Export")
	defer span.End()

	l, err := s.visible(ctx, caller, protocol)
	if err != nil {
		return nil, nil, err
	}
	if l.Names, err = s.store.GetNames(ctx, l.ID); err != nil {
		return nil, nil, err
	}
	data, err := s.sheet.WriteList(l)
	if err != nil {
		return nil, nil, fmt.Errorf("write list sheet: %w", err)
	}
	return l, data, nil
}

// Import parses a names spreadsheet. Nothing is stored.
func (s *ListService) Import(_ context.Context, r io.Reader) ([]domain.NamesList, error) {
	return s.sheet.ReadNames(r)
}

func (s *ListService) visible(ctx context.Context, caller domain.Caller, protocol string) (*domain.List, error) {
	l, err := s.store.GetListByProtocol(ctx, protocol)
	if err != nil {
		return nil, err
	}
	if !canSee(caller, l.ClientID, l.AffiliateID) {
		return nil, &domain.ErrNotFound{Resource: "list", ID: protocol}
	}
	return l, nil
}
