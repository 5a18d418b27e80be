// Package service provides the business logic layer (use cases) of the
// back-office: lists, submissions, payments and the status engine they share.
package service

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/observability"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

var engineTracer = otel.Tracer("service/engine")

// Change is one applied status change. Changes are audited after the
// transaction that produced them commits.
type Change struct {
	Kind     domain.EntityKind
	ID       int64
	From     string
	To       string
	Trigger  domain.Trigger
	ClientID *int64
}

// Engine is the Status Transition Engine. It is the only code that
// writes status columns, and it pairs every status change with one
// StatusHistory row inside the caller's transaction.
type Engine struct {
	audit   port.AuditSink
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewEngine creates the transition engine.
func NewEngine(audit port.AuditSink, metrics *observability.Metrics, logger *zap.Logger) *Engine {
	return &Engine{audit: audit, metrics: metrics, logger: logger, now: time.Now}
}

// Created records the initial status of a freshly inserted row.
func (e *Engine) Created(ctx context.Context, tx port.Repos, kind domain.EntityKind, id int64, status string, trigger domain.Trigger, clientID *int64) (*Change, error) {
	if err := tx.AppendHistory(ctx, domain.NewStatusHistory(kind, id, status, e.now())); err != nil {
		return nil, err
	}
	e.metrics.IncrTransition(kind, trigger)
	return &Change{Kind: kind, ID: id, To: status, Trigger: trigger, ClientID: clientID}, nil
}

// ApplyList checks the transition against l's current state, applies
// patch (payment columns) and the new status, and saves the row.
// History is appended only when the status value actually changes;
// the returned Change is nil then.
func (e *Engine) ApplyList(ctx context.Context, tx port.Repos, l *domain.List, to domain.ListStatus, trigger domain.Trigger, patch func(*domain.List)) (*Change, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.ApplyList")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("list.id", l.ID),
		attribute.String("trigger", string(trigger)),
		attribute.String("to", string(to)),
	)

	from := l.Status
	if !domain.ListTransitionAllowed(trigger, from, to, l.Payed) {
		return nil, &domain.ErrInvalidTransition{Entity: string(domain.KindList), ID: l.ID, From: string(from), To: string(to)}
	}
	if patch != nil {
		patch(l)
	}
	l.Status = to
	if err := tx.SaveListState(ctx, l); err != nil {
		return nil, err
	}
	if from == to {
		return nil, nil
	}
	if err := tx.AppendHistory(ctx, domain.NewStatusHistory(domain.KindList, l.ID, string(to), e.now())); err != nil {
		return nil, err
	}
	e.metrics.IncrTransition(domain.KindList, trigger)
	e.logger.Info("list status changed",
		zap.Int64("list_id", l.ID),
		zap.String("protocol", l.Protocol),
		zap.String("from", string(from)),
		zap.String("status", string(to)),
		zap.String("trigger", string(trigger)),
	)
	return &Change{Kind: domain.KindList, ID: l.ID, From: string(from), To: string(to), Trigger: trigger, ClientID: &l.ClientID}, nil
}

// ApplySubmission is ApplyList for service form submissions.
func (e *Engine) ApplySubmission(ctx context.Context, tx port.Repos, s *domain.Submission, to domain.SubmissionStatus, trigger domain.Trigger, patch func(*domain.Submission)) (*Change, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.ApplySubmission")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("submission.id", s.ID),
		attribute.String("trigger", string(trigger)),
		attribute.String("to", string(to)),
	)

	from := s.Status
	if !domain.SubmissionTransitionAllowed(trigger, from, to, s.Payed) {
		return nil, &domain.ErrInvalidTransition{Entity: string(domain.KindSubmission), ID: s.ID, From: string(from), To: string(to)}
	}
	if patch != nil {
		patch(s)
	}
	s.Status = to
	if err := tx.SaveSubmissionState(ctx, s); err != nil {
		return nil, err
	}
	if from == to {
		return nil, nil
	}
	if err := tx.AppendHistory(ctx, domain.NewStatusHistory(domain.KindSubmission, s.ID, string(to), e.now())); err != nil {
		return nil, err
	}
	e.metrics.IncrTransition(domain.KindSubmission, trigger)
	e.logger.Info("submission status changed",
		zap.Int64("submission_id", s.ID),
		zap.String("protocol", s.Protocol),
		zap.String("from", string(from)),
		zap.String("status", string(to)),
		zap.String("trigger", string(trigger)),
	)
	return &Change{Kind: domain.KindSubmission, ID: s.ID, From: string(from), To: string(to), Trigger: trigger, ClientID: &s.UserID}, nil
}

// ApplyListGroup sets a group's status. Groups only change by admin action.
func (e *Engine) ApplyListGroup(ctx context.Context, tx port.Repos, g *domain.ListGroup, to domain.ListStatus) (*Change, error) {
	if !to.Valid() {
		return nil, &domain.ErrInvalidTransition{Entity: string(domain.KindListGroup), ID: g.ID, From: string(g.Status), To: string(to)}
	}
	from := g.Status
	if from == to {
		return nil, nil
	}
	if err := tx.SaveListGroupStatus(ctx, g.ID, to); err != nil {
		return nil, err
	}
	g.Status = to
	if err := tx.AppendHistory(ctx, domain.NewStatusHistory(domain.KindListGroup, g.ID, string(to), e.now())); err != nil {
		return nil, err
	}
	e.metrics.IncrTransition(domain.KindListGroup, domain.TriggerAdminSet)
	return &Change{Kind: domain.KindListGroup, ID: g.ID, From: string(from), To: string(to), Trigger: domain.TriggerAdminSet}, nil
}

// Audit writes one AppLog row per change. Nil changes are skipped.
func (e *Engine) Audit(ctx context.Context, changes ...*Change) {
	for _, c := range changes {
		if c == nil {
			continue
		}
		data, _ := json.Marshal(map[string]any{
			"from":    c.From,
			"to":      c.To,
			"trigger": c.Trigger,
		})
		entry := domain.AppLog{
			Level:    domain.LogInfo,
			Message:  "status alterado para " + c.To,
			Context:  string(c.Kind) + "." + string(c.Trigger),
			ClientID: c.ClientID,
			Data:     data,
		}
		id := c.ID
		switch c.Kind {
		case domain.KindList:
			entry.ListID = &id
		case domain.KindListGroup:
			entry.ListGroupID = &id
		}
		e.audit.Record(ctx, entry)
	}
}

func jsonData(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
