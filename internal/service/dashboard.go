package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

var dashboardTracer = otel.Tracer("service/dashboard")

// DashboardService computes the scoped aggregates of GET /dashboard.
type DashboardService struct {
	repo   port.DashboardRepo
	logger *zap.Logger
	now    func() time.Time
}

func NewDashboardService(repo port.DashboardRepo, logger *zap.Logger) *DashboardService {
	return &DashboardService{repo: repo, logger: logger, now: time.Now}
}

// Get runs the four aggregates concurrently. year defaults to the current year.
func (s *DashboardService) Get(ctx context.Context, caller domain.Caller, clientID *int64, view domain.View, year int) (*domain.Dashboard, error) {
	ctx, span := dashboardTracer.Start(ctx, "DashboardService.Get")
	defer span.End()

	if year == 0 {
		year = s.now().Year()
	}
	if year < 2000 || year > 9999 {
		return nil, &domain.ErrValidation{Field: "year", Message: "ano inválido"}
	}
	span.SetAttributes(attribute.Int("year", year), attribute.String("role", caller.Role.String()))

	scope := domain.ScopeFor(caller, clientID, view)
	d := &domain.Dashboard{Year: year}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.ListsByStatus, err = s.repo.CountByStatus(gctx, domain.PayableList, scope)
		return err
	})
	g.Go(func() error {
		var err error
		d.SubmissionsByStatus, err = s.repo.CountByStatus(gctx, domain.PayableSubmission, scope)
		return err
	})
	g.Go(func() error {
		var err error
		d.ListRevenue, err = s.repo.RevenueByMonth(gctx, domain.PayableList, scope, year)
		return err
	})
	g.Go(func() error {
		var err error
		d.SubmissionRevenue, err = s.repo.RevenueByMonth(gctx, domain.PayableSubmission, scope, year)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("dashboard aggregates failed", zap.Int64("caller", caller.ID), zap.Error(err))
		return nil, err
	}

	for _, c := range d.ListsByStatus {
		d.TotalLists += c.Count
	}
	for _, c := range d.SubmissionsByStatus {
		d.TotalSubmissions += c.Count
	}
	return d, nil
}
