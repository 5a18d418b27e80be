package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

var groupTracer = otel.Tracer("service/list_groups")

// ListGroupService manages processing windows. All mutations are admin-only.
type ListGroupService struct {
	store  port.Store
	engine *Engine
	logger *zap.Logger
}

// NewListGroupService creates a list group service.
func NewListGroupService(store port.Store, engine *Engine, logger *zap.Logger) *ListGroupService {
	return &ListGroupService{store: store, engine: engine, logger: logger}
}

// Create opens a new group in status "aguardando pagamento".
func (s *ListGroupService) Create(ctx context.Context, caller domain.Caller, in *domain.ListGroupInput) (*domain.ListGroup, error) {
	ctx, span := groupTracer.Start(ctx, "ListGroupService.Create")
	defer span.End()

	if err := requireAdmin(caller, "criar grupo de listas"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "nome do grupo é obrigatório"}
	}
	if in.ExpiresAt.IsZero() {
		return nil, &domain.ErrValidation{Field: "expires_at", Message: "prazo do grupo é obrigatório"}
	}

	var (
		out    *domain.ListGroup
		change *Change
	)
	err := s.store.WithTx(ctx, func(tx port.Repos) error {
		g, err := tx.CreateListGroup(ctx, &domain.ListGroup{
			Name:      strings.TrimSpace(in.Name),
			ExpiresAt: in.ExpiresAt,
			Admin:     in.Admin,
			Status:    domain.ListAwaitingPayment,
		})
		if err != nil {
			return err
		}
		change, err = s.engine.Created(ctx, tx, domain.KindListGroup, g.ID, string(g.Status), domain.TriggerAdminCreate, nil)
		out = g
		return err
	})
	if err != nil {
		return nil, err
	}
	s.engine.Audit(ctx, change)
	s.logger.Info("list group created", zap.Int64("list_group_id", out.ID), zap.Time("expires_at", out.ExpiresAt))
	return out, nil
}

// Get returns a group with the member lists visible to the caller.
func (s *ListGroupService) Get(ctx context.Context, caller domain.Caller, id int64) (*domain.ListGroup, error) {
	ctx, span := groupTracer.Start(ctx, "ListGroupService.Get")
	defer span.End()
	span.SetAttributes(attribute.Int64("list_group.id", id))

	g, err := s.store.GetListGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	lists, _, err := s.store.ListLists(ctx, domain.ListFilter{
		Scope:   domain.ScopeFor(caller, nil, domain.ViewAll),
		GroupID: &id,
		Limit:   500,
	})
	if err != nil {
		return nil, err
	}
	g.Lists = lists
	return g, nil
}

// List returns every group.
func (s *ListGroupService) List(ctx context.Context) ([]domain.ListGroup, error) {
	ctx, span := groupTracer.Start(ctx, "ListGroupService.List")
	defer span.End()

	return s.store.ListListGroups(ctx)
}

// UpdateStatus sets the group's status and cascades it to the group's
// paid lists only. Unpaid members keep their status.
func (s *ListGroupService) UpdateStatus(ctx context.Context, caller domain.Caller, id int64, status domain.ListStatus) (*domain.ListGroup, error) {
	ctx, span := groupTracer.Start(ctx, "ListGroupService.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.Int64("list_group.id", id), attribute.String("status", string(status)))

	if err := requireAdmin(caller, "alterar status do grupo"); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "status inválido"}
	}

	var (
		out     *domain.ListGroup
		changes []*Change
	)
	err := s.store.WithTx(ctx, func(tx port.Repos) error {
		g, err := tx.GetListGroupForUpdate(ctx, id)
		if err != nil {
			return err
		}
		c, err := s.engine.ApplyListGroup(ctx, tx, g, status)
		if err != nil {
			return err
		}
		changes = append(changes, c)

		paid, err := tx.PaidListsInGroupForUpdate(ctx, id)
		if err != nil {
			return err
		}
		for i := range paid {
			c, err := s.engine.ApplyList(ctx, tx, &paid[i], status, domain.TriggerGroupCascade, nil)
			if err != nil {
				return err
			}
			changes = append(changes, c)
		}
		g.Lists = paid
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.engine.Audit(ctx, changes...)
	s.logger.Info("list group status updated",
		zap.Int64("list_group_id", id),
		zap.String("status", string(status)),
		zap.Int("cascaded", len(out.Lists)),
	)
	return out, nil
}

// Delete removes the group and detaches its lists.
func (s *ListGroupService) Delete(ctx context.Context, caller domain.Caller, id int64) error {
	ctx, span := groupTracer.Start(ctx, "ListGroupService.Delete")
	defer span.End()

	if err := requireAdmin(caller, "remover grupo de listas"); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(tx port.Repos) error {
		return tx.DeleteListGroup(ctx, id)
	})
}
