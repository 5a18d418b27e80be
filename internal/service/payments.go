package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/observability"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

var paymentTracer = otel.Tracer("service/payments")

const webhookLedger = "webhook"

// PaymentConfig holds the payment routing and webhook settings.
type PaymentConfig struct {
	PlatformAPIKey string
	ForcePlatform  bool // DEV: never route to an affiliate's gateway account
	WebhookToken   string
	DedupeTTL      time.Duration
}

// PaymentService is the Payment Reconciliation Component: charges,
// webhooks, manual receipts and approvals all converge on the engine.
type PaymentService struct {
	store     port.Store
	gateway   port.PaymentGateway
	blobs     port.BlobStore
	ledger    port.EventLedger
	engine    *Engine
	protocols *Protocols
	audit     port.AuditSink
	cfg       PaymentConfig
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewPaymentService creates the payment service.
func NewPaymentService(
	store port.Store,
	gateway port.PaymentGateway,
	blobs port.BlobStore,
	ledger port.EventLedger,
	engine *Engine,
	protocols *Protocols,
	audit port.AuditSink,
	cfg PaymentConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		store:     store,
		gateway:   gateway,
		blobs:     blobs,
		ledger:    ledger,
		engine:    engine,
		protocols: protocols,
		audit:     audit,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// payable is the read-only view of a list or submission the payment
// paths share.
type payable struct {
	kind           domain.PayableKind
	id             int64
	ownerID        int64
	affiliateID    *int64
	price          float64
	status         string
	payed          bool
	prePayment     bool
	acknowledged   bool
	comprovanteURL *string
	paymentID      *string
}

func listPayable(l *domain.List) *payable {
	return &payable{
		kind: domain.PayableList, id: l.ID, ownerID: l.ClientID, affiliateID: l.AffiliateID,
		price: l.Price, status: string(l.Status), payed: l.Payed,
		prePayment: l.Status.PrePayment(), acknowledged: l.Status.PaymentAcknowledged(),
		comprovanteURL: l.ComprovanteURL, paymentID: l.ListPaymentID,
	}
}

func submissionPayable(s *domain.Submission) *payable {
	return &payable{
		kind: domain.PayableSubmission, id: s.ID, ownerID: s.UserID, affiliateID: s.AffiliateID,
		price: s.Price, status: string(s.Status), payed: s.Payed,
		prePayment: s.Status.PrePayment(), acknowledged: s.Status.PaymentAcknowledged(),
		comprovanteURL: s.ComprovanteURL, paymentID: s.ServicePaymentID,
	}
}

func (s *PaymentService) load(ctx context.Context, caller domain.Caller, kind domain.PayableKind, id int64) (*payable, error) {
	var p *payable
	switch kind {
	case domain.PayableList:
		l, err := s.store.GetList(ctx, id)
		if err != nil {
			return nil, err
		}
		p = listPayable(l)
	case domain.PayableSubmission:
		sub, err := s.store.GetSubmission(ctx, id)
		if err != nil {
			return nil, err
		}
		p = submissionPayable(sub)
	default:
		return nil, &domain.ErrValidation{Field: "kind", Message: "tipo deve ser list ou submission"}
	}
	if !canSee(caller, p.ownerID, p.affiliateID) {
		return nil, &domain.ErrNotFound{Resource: string(kind), ID: fmt.Sprint(id)}
	}
	return p, nil
}

// ============================================================
// Routing & charges: POST /cobranca/pix
// ============================================================

// ResolveRoute picks the gateway account (or manual PIX key) a payer pays into.
// End customers referred by an affiliate pay the affiliate, except in DEV.
func (s *PaymentService) ResolveRoute(ctx context.Context, repo port.ClientRepo, payer *domain.Client) (*domain.PaymentRoute, error) {
	if payer.Role == domain.RoleCustomer && payer.HasAffiliate() && !s.cfg.ForcePlatform {
		aff, err := repo.GetClient(ctx, *payer.AffiliateID)
		if err != nil {
			return nil, err
		}
		switch {
		case aff.APIKey != "":
			return &domain.PaymentRoute{Kind: domain.RouteAffiliate, Token: aff.APIKey, AffiliateID: &aff.ID}, nil
		case aff.UsesPix && aff.PixKey != "":
			return &domain.PaymentRoute{Kind: domain.RoutePixKey, PixKey: aff.PixKey, AffiliateID: &aff.ID}, nil
		}
	}
	if s.cfg.PlatformAPIKey != "" {
		return &domain.PaymentRoute{Kind: domain.RoutePlatform, Token: s.cfg.PlatformAPIKey}, nil
	}
	return nil, &domain.ErrMissingPaymentMethod{ClientID: payer.ID}
}

// CreateCharge creates a PIX charge for an unpaid list or submission and
// stores the gateway charge id on the row. Nothing is stored when the
// gateway call fails. A charge already issued for the current price is
// returned again instead of issuing a new one; when a new charge replaces
// an older one, the older id stays recorded and keeps settling the row.
func (s *PaymentService) CreateCharge(ctx context.Context, caller domain.Caller, req *domain.ChargeRequest) (*domain.Charge, error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.CreateCharge")
	defer span.End()
	span.SetAttributes(attribute.String("kind", string(req.Kind)), attribute.Int64("entity.id", req.ID))

	p, err := s.load(ctx, caller, req.Kind, req.ID)
	if err != nil {
		return nil, err
	}
	if p.payed || !p.prePayment {
		return nil, &domain.ErrConflict{Message: "pagamento já registrado"}
	}
	if p.price <= 0 {
		return nil, &domain.ErrValidation{Field: "price", Message: "valor da cobrança inválido"}
	}

	if p.paymentID != nil {
		prev, err := s.store.GetCharge(ctx, *p.paymentID)
		switch {
		case err == nil && prev.Covers(p.price) && prev.Payload != "":
			s.logger.Info("pix charge reused",
				zap.String("kind", string(p.kind)),
				zap.Int64("id", p.id),
				zap.String("payment_id", prev.PaymentID),
			)
			return &domain.Charge{
				Kind: p.kind, EntityID: p.id, ChargeID: prev.PaymentID, Amount: prev.Amount,
				EncodedImage: prev.EncodedImage, Payload: prev.Payload, Route: prev.Route, Reused: true,
			}, nil
		case err != nil && !isNotFound(err):
			return nil, fmt.Errorf("get issued charge: %w", err)
		}
	}

	payer, err := s.store.GetClient(ctx, p.ownerID)
	if err != nil {
		return nil, fmt.Errorf("get payer: %w", err)
	}
	route, err := s.ResolveRoute(ctx, s.store, payer)
	if err != nil {
		return nil, err
	}

	charge := &domain.Charge{Kind: p.kind, EntityID: p.id, Amount: p.price, Route: route.Kind}
	s.metrics.IncrCharge(route.Kind)
	if route.Kind == domain.RoutePixKey {
		charge.PixKey = route.PixKey
		return charge, nil
	}

	pix, err := s.gateway.CreatePixCharge(ctx, p.price, domain.ExternalReference(p.kind, p.id), route.Token)
	if err != nil {
		s.audit.Record(ctx, domain.AppLog{
			Level:    domain.LogError,
			Message:  "falha ao criar cobrança PIX",
			Context:  "payments.create_charge",
			ClientID: &p.ownerID,
			ListID:   listRef(p),
			Data:     jsonData(map[string]any{"kind": p.kind, "id": p.id, "error": err.Error()}),
		})
		return nil, err
	}

	issued := &domain.IssuedCharge{
		PaymentID: pix.ID, Kind: p.kind, EntityID: p.id, Amount: p.price, Route: route.Kind,
		EncodedImage: pix.EncodedImage, Payload: pix.Payload,
	}
	err = s.store.WithTx(ctx, func(tx port.Repos) error {
		switch p.kind {
		case domain.PayableList:
			l, err := tx.GetListForUpdate(ctx, p.id)
			if err != nil {
				return err
			}
			if l.Payed || !l.Status.PrePayment() {
				return &domain.ErrConflict{Message: "pagamento já registrado"}
			}
			if err := keepCharge(ctx, tx, p.kind, l.ID, l.Price, l.ListPaymentID); err != nil {
				return err
			}
			if err := tx.RecordCharge(ctx, issued); err != nil {
				return err
			}
			l.ListPaymentID = &pix.ID
			return tx.SaveListState(ctx, l)
		default:
			sub, err := tx.GetSubmissionForUpdate(ctx, p.id)
			if err != nil {
				return err
			}
			if sub.Payed || !sub.Status.PrePayment() {
				return &domain.ErrConflict{Message: "pagamento já registrado"}
			}
			if err := keepCharge(ctx, tx, p.kind, sub.ID, sub.Price, sub.ServicePaymentID); err != nil {
				return err
			}
			if err := tx.RecordCharge(ctx, issued); err != nil {
				return err
			}
			sub.ServicePaymentID = &pix.ID
			return tx.SaveSubmissionState(ctx, sub)
		}
	})
	if err != nil {
		s.logger.Warn("charge created at gateway but not stored",
			zap.String("kind", string(p.kind)),
			zap.Int64("id", p.id),
			zap.String("payment_id", pix.ID),
			zap.Error(err),
		)
		return nil, err
	}

	charge.ChargeID = pix.ID
	charge.EncodedImage = pix.EncodedImage
	charge.Payload = pix.Payload
	s.logger.Info("pix charge created",
		zap.String("kind", string(p.kind)),
		zap.Int64("id", p.id),
		zap.String("payment_id", pix.ID),
		zap.String("route", string(route.Kind)),
		zap.Float64("amount", p.price),
	)
	return charge, nil
}

// keepCharge makes sure the charge id about to be replaced on a row is
// recorded, so a payer holding the older QR code is still reconciled.
func keepCharge(ctx context.Context, tx port.Repos, kind domain.PayableKind, id int64, price float64, current *string) error {
	if current == nil || *current == "" {
		return nil
	}
	return tx.RecordCharge(ctx, &domain.IssuedCharge{PaymentID: *current, Kind: kind, EntityID: id, Amount: price})
}

// ============================================================
// Webhook: POST /cobranca/webhook
// ============================================================

// HandleWebhook applies a gateway push. It never returns an error: every
// delivery is answered 200 and the outcome is informational. A delivery
// is applied at most once; redeliveries are caught by the event ledger
// and, authoritatively, by the row's payed/status guard.
func (s *PaymentService) HandleWebhook(ctx context.Context, token string, ev *domain.WebhookEvent) *domain.WebhookResult {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	res := s.handleWebhook(ctx, token, ev)
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	s.metrics.IncrWebhook(res.Outcome)

	fields := []zap.Field{zap.String("outcome", string(res.Outcome)), zap.String("message", res.Message)}
	if ev != nil {
		fields = append(fields, zap.String("event", ev.Event), zap.String("payment_id", ev.CorrelationID()))
	}
	if res.Outcome == domain.WebhookInvalid {
		s.logger.Warn("webhook rejected", fields...)
	} else {
		s.logger.Info("webhook processed", fields...)
	}
	return res
}

func (s *PaymentService) handleWebhook(ctx context.Context, token string, ev *domain.WebhookEvent) *domain.WebhookResult {
	if s.cfg.WebhookToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.WebhookToken)) != 1 {
		return &domain.WebhookResult{Outcome: domain.WebhookInvalid, Message: "token do webhook inválido"}
	}
	if ev == nil || ev.Event == "" || ev.Payment == nil {
		return &domain.WebhookResult{Outcome: domain.WebhookInvalid, Message: "event e payment são obrigatórios"}
	}
	paymentID := ev.CorrelationID()
	if paymentID == "" {
		return &domain.WebhookResult{Outcome: domain.WebhookInvalid, Message: "payment sem identificador"}
	}

	var settle bool
	switch ev.Event {
	case domain.EventPaymentReceived:
		settle = true
	case domain.EventPaymentRejected, domain.EventPaymentFailed:
		settle = false
	default:
		return &domain.WebhookResult{Outcome: domain.WebhookIgnored, Message: "evento sem efeito: " + ev.Event}
	}

	key := ev.DedupeKey()
	seen, err := s.ledger.Seen(ctx, key)
	switch {
	case err != nil:
		s.logger.Warn("webhook ledger unavailable", zap.String("key", key), zap.Error(err))
	case seen:
		s.metrics.IncrLedgerHit(webhookLedger)
		return &domain.WebhookResult{Outcome: domain.WebhookDuplicate, Message: "evento já processado"}
	default:
		s.metrics.IncrLedgerMiss(webhookLedger)
	}

	var (
		res    *domain.WebhookResult
		change *Change
	)
	err = s.store.WithTx(ctx, func(tx port.Repos) error {
		var err error
		res, change, err = s.webhookList(ctx, tx, paymentID, settle)
		if isNotFound(err) {
			res, change, err = s.webhookSubmission(ctx, tx, paymentID, settle)
		}
		if isNotFound(err) {
			res = &domain.WebhookResult{Outcome: domain.WebhookNoMatch, Message: "nenhuma lista ou formulário para o pagamento"}
			return nil
		}
		return err
	})
	if err != nil {
		s.logger.Error("webhook apply failed", zap.String("payment_id", paymentID), zap.Error(err))
		s.audit.Record(ctx, domain.AppLog{
			Level:   domain.LogError,
			Message: "falha ao processar webhook",
			Context: "payments.webhook",
			Data:    jsonData(map[string]any{"event": ev.Event, "payment_id": paymentID, "error": err.Error()}),
		})
		return &domain.WebhookResult{Outcome: domain.WebhookIgnored, Message: "erro ao processar evento"}
	}

	if res.Outcome == domain.WebhookApplied || res.Outcome == domain.WebhookDuplicate {
		if err := s.ledger.Remember(ctx, key, s.cfg.DedupeTTL); err != nil {
			s.logger.Warn("webhook ledger remember failed", zap.String("key", key), zap.Error(err))
		}
	}
	s.engine.Audit(ctx, change)
	if res.Outcome == domain.WebhookNoMatch {
		s.audit.Record(ctx, domain.AppLog{
			Level:   domain.LogWarn,
			Message: "webhook sem correspondência",
			Context: "payments.webhook",
			Data:    jsonData(map[string]any{"event": ev.Event, "payment_id": paymentID}),
		})
	}
	return res
}

func (s *PaymentService) webhookList(ctx context.Context, tx port.Repos, paymentID string, settle bool) (*domain.WebhookResult, *Change, error) {
	l, err := tx.FindListByPaymentIDForUpdate(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	res := &domain.WebhookResult{Kind: domain.PayableList, ID: l.ID}
	if l.Payed || !l.Status.PrePayment() {
		res.Outcome, res.Status, res.Message = domain.WebhookDuplicate, string(l.Status), "pagamento já registrado"
		return res, nil, nil
	}

	var change *Change
	if settle {
		to := domain.ListPaymentApproved
		if l.HasAffiliate() {
			to = domain.ListPaymentConfirmed
		}
		change, err = s.engine.ApplyList(ctx, tx, l, to, domain.TriggerWebhookReceived, func(l *domain.List) {
			l.Payed = true
		})
	} else {
		change, err = s.engine.ApplyList(ctx, tx, l, domain.ListPaymentError, domain.TriggerWebhookFailed, nil)
	}
	if err != nil {
		return nil, nil, err
	}
	res.Status = string(l.Status)
	if change == nil {
		res.Outcome, res.Message = domain.WebhookDuplicate, "status inalterado"
		return res, nil, nil
	}
	res.Outcome, res.Message = domain.WebhookApplied, "status atualizado"
	return res, change, nil
}

func (s *PaymentService) webhookSubmission(ctx context.Context, tx port.Repos, paymentID string, settle bool) (*domain.WebhookResult, *Change, error) {
	sub, err := tx.FindSubmissionByPaymentIDForUpdate(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	res := &domain.WebhookResult{Kind: domain.PayableSubmission, ID: sub.ID}
	if sub.Payed || !sub.Status.PrePayment() {
		res.Outcome, res.Status, res.Message = domain.WebhookDuplicate, string(sub.Status), "pagamento já registrado"
		return res, nil, nil
	}

	var change *Change
	if settle {
		to := domain.SubmissionPaymentApproved
		if sub.HasAffiliate() {
			to = domain.SubmissionPaymentConfirmed
		}
		change, err = s.engine.ApplySubmission(ctx, tx, sub, to, domain.TriggerWebhookReceived, func(s *domain.Submission) {
			s.Payed = true
		})
	} else {
		change, err = s.engine.ApplySubmission(ctx, tx, sub, domain.SubmissionPaymentError, domain.TriggerWebhookFailed, nil)
	}
	if err != nil {
		return nil, nil, err
	}
	res.Status = string(sub.Status)
	if change == nil {
		res.Outcome, res.Message = domain.WebhookDuplicate, "status inalterado"
		return res, nil, nil
	}
	res.Outcome, res.Message = domain.WebhookApplied, "status atualizado"
	return res, change, nil
}

// ============================================================
// Manual receipts: POST /cobranca/comprovante
// ============================================================

// UploadReceipt stores a proof of payment for one or more rows. Several
// rows share a freshly allocated group_payment_id.
func (s *PaymentService) UploadReceipt(ctx context.Context, caller domain.Caller, up *domain.ReceiptUpload) (*domain.ReceiptResult, error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.UploadReceipt")
	defer span.End()

	if !up.Kind.Valid() {
		return nil, &domain.ErrValidation{Field: "kind", Message: "tipo deve ser list ou submission"}
	}
	ids := uniqueIDs(up.IDs)
	if len(ids) == 0 {
		return nil, &domain.ErrValidation{Field: "ids", Message: "informe ao menos um id"}
	}
	if len(up.Data) == 0 {
		return nil, &domain.ErrValidation{Field: "file", Message: "comprovante é obrigatório"}
	}
	span.SetAttributes(attribute.String("kind", string(up.Kind)), attribute.Int("ids", len(ids)))

	key, err := s.blobs.Save(ctx, domain.FolderReceipts, up.Filename, up.Data)
	if err != nil {
		return nil, err
	}

	result := &domain.ReceiptResult{Kind: up.Kind, IDs: ids, ComprovanteURL: key}
	var changes []*Change
	err = s.store.WithTx(ctx, func(tx port.Repos) error {
		var gid *int64
		if len(ids) > 1 {
			g, err := s.protocols.NextGroupPaymentID(ctx, tx)
			if err != nil {
				return err
			}
			gid = &g
		}
		result.GroupPaymentID = gid

		var err error
		if up.Kind == domain.PayableList {
			changes, result.Status, err = s.receiptLists(ctx, tx, caller, ids, key, gid)
		} else {
			changes, result.Status, err = s.receiptSubmissions(ctx, tx, caller, ids, key, gid)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.engine.Audit(ctx, changes...)

	s.logger.Info("receipt uploaded",
		zap.String("kind", string(up.Kind)),
		zap.Int64s("ids", ids),
		zap.String("key", key),
		zap.Int64p("group_payment_id", result.GroupPaymentID),
	)
	return result, nil
}

func (s *PaymentService) receiptLists(ctx context.Context, tx port.Repos, caller domain.Caller, ids []int64, key string, gid *int64) ([]*Change, string, error) {
	rows, err := tx.ListsByIDsForUpdate(ctx, ids)
	if err != nil {
		return nil, "", err
	}
	if len(rows) != len(ids) {
		return nil, "", &domain.ErrNotFound{Resource: "list", ID: fmt.Sprint(ids)}
	}
	for _, l := range rows {
		if !canSee(caller, l.ClientID, l.AffiliateID) {
			return nil, "", &domain.ErrForbidden{Action: fmt.Sprintf("enviar comprovante da lista %d", l.ID)}
		}
		if l.Payed || !l.Status.PrePayment() {
			return nil, "", &domain.ErrConflict{Message: fmt.Sprintf("lista %d já está paga", l.ID)}
		}
	}
	to := domain.ListAwaitingPaymentReview
	if caller.IsAffiliate() {
		to = domain.ListAwaitingPaymentConfirmation
	}
	changes := make([]*Change, 0, len(rows))
	for i := range rows {
		c, err := s.engine.ApplyList(ctx, tx, &rows[i], to, domain.TriggerReceiptUpload, func(l *domain.List) {
			l.ComprovanteURL = &key
			if gid != nil {
				l.GroupPaymentID = gid
			}
		})
		if err != nil {
			return nil, "", err
		}
		changes = append(changes, c)
	}
	return changes, string(to), nil
}

func (s *PaymentService) receiptSubmissions(ctx context.Context, tx port.Repos, caller domain.Caller, ids []int64, key string, gid *int64) ([]*Change, string, error) {
	rows, err := tx.SubmissionsByIDsForUpdate(ctx, ids)
	if err != nil {
		return nil, "", err
	}
	if len(rows) != len(ids) {
		return nil, "", &domain.ErrNotFound{Resource: "submission", ID: fmt.Sprint(ids)}
	}
	for _, sub := range rows {
		if !canSee(caller, sub.UserID, sub.AffiliateID) {
			return nil, "", &domain.ErrForbidden{Action: fmt.Sprintf("enviar comprovante do formulário %d", sub.ID)}
		}
		if sub.Payed || !sub.Status.PrePayment() {
			return nil, "", &domain.ErrConflict{Message: fmt.Sprintf("formulário %d já está pago", sub.ID)}
		}
	}
	to := domain.SubmissionAwaitingPaymentReview
	if caller.IsAffiliate() {
		to = domain.SubmissionAwaitingPaymentConfirmation
	}
	changes := make([]*Change, 0, len(rows))
	for i := range rows {
		c, err := s.engine.ApplySubmission(ctx, tx, &rows[i], to, domain.TriggerReceiptUpload, func(sub *domain.Submission) {
			sub.ComprovanteURL = &key
			if gid != nil {
				sub.GroupPaymentID = gid
			}
		})
		if err != nil {
			return nil, "", err
		}
		changes = append(changes, c)
	}
	return changes, string(to), nil
}

// ============================================================
// Approvals: POST /cobranca/aprovar/{id}, /cobranca/confirmar-afiliado
// ============================================================

// ApproveReceipt settles a row and every row sharing its group payment.
// When byGroup is set, id is the group_payment_id itself. An admin
// settles the payment; an affiliate acknowledges the first hop and still
// owes the platform.
func (s *PaymentService) ApproveReceipt(ctx context.Context, caller domain.Caller, kind domain.PayableKind, id int64, byGroup bool) (*domain.ApprovalResult, error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.ApproveReceipt")
	defer span.End()
	span.SetAttributes(attribute.String("kind", string(kind)), attribute.Int64("id", id), attribute.Bool("by_group", byGroup))

	if !caller.IsAdmin() && !caller.IsAffiliate() {
		return nil, &domain.ErrForbidden{Action: "aprovar comprovante"}
	}
	if !kind.Valid() {
		return nil, &domain.ErrValidation{Field: "kind", Message: "tipo deve ser list ou submission"}
	}

	result := &domain.ApprovalResult{Kind: kind}
	var changes []*Change
	err := s.store.WithTx(ctx, func(tx port.Repos) error {
		var err error
		if kind == domain.PayableList {
			changes, result.IDs, result.Status, err = s.approveLists(ctx, tx, caller, id, byGroup)
		} else {
			changes, result.IDs, result.Status, err = s.approveSubmissions(ctx, tx, caller, id, byGroup)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.engine.Audit(ctx, changes...)
	s.logger.Info("receipt approved",
		zap.String("kind", string(kind)),
		zap.Int64s("ids", result.IDs),
		zap.String("status", result.Status),
		zap.String("role", caller.Role.String()),
	)
	return result, nil
}

func (s *PaymentService) approveLists(ctx context.Context, tx port.Repos, caller domain.Caller, id int64, byGroup bool) ([]*Change, []int64, string, error) {
	var rows []domain.List
	gid := id
	if !byGroup {
		l, err := tx.GetListForUpdate(ctx, id)
		if err != nil {
			return nil, nil, "", err
		}
		if l.GroupPaymentID == nil {
			rows = []domain.List{*l}
		} else {
			gid = *l.GroupPaymentID
		}
	}
	if rows == nil {
		var err error
		if rows, err = tx.ListsByGroupPaymentForUpdate(ctx, gid); err != nil {
			return nil, nil, "", err
		}
		if len(rows) == 0 {
			return nil, nil, "", &domain.ErrNotFound{Resource: "group_payment", ID: fmt.Sprint(gid)}
		}
	}

	to := domain.ListPaymentSettled
	if !caller.IsAdmin() {
		to = domain.ListAwaitingDispatchConfirmation
	}
	changes := make([]*Change, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for i := range rows {
		l := &rows[i]
		if !caller.IsAdmin() && !referredBy(l.AffiliateID, caller.ID) {
			return nil, nil, "", &domain.ErrForbidden{Action: fmt.Sprintf("aprovar pagamento da lista %d", l.ID)}
		}
		c, err := s.engine.ApplyList(ctx, tx, l, to, domain.TriggerReceiptApproval, func(l *domain.List) {
			l.ConfirmedAffiliateList = l.HasAffiliate()
			l.Payed = true
		})
		if err != nil {
			return nil, nil, "", err
		}
		changes = append(changes, c)
		ids = append(ids, l.ID)
	}
	return changes, ids, string(to), nil
}

func (s *PaymentService) approveSubmissions(ctx context.Context, tx port.Repos, caller domain.Caller, id int64, byGroup bool) ([]*Change, []int64, string, error) {
	var rows []domain.Submission
	gid := id
	if !byGroup {
		sub, err := tx.GetSubmissionForUpdate(ctx, id)
		if err != nil {
			return nil, nil, "", err
		}
		if sub.GroupPaymentID == nil {
			rows = []domain.Submission{*sub}
		} else {
			gid = *sub.GroupPaymentID
		}
	}
	if rows == nil {
		var err error
		if rows, err = tx.SubmissionsByGroupPaymentForUpdate(ctx, gid); err != nil {
			return nil, nil, "", err
		}
		if len(rows) == 0 {
			return nil, nil, "", &domain.ErrNotFound{Resource: "group_payment", ID: fmt.Sprint(gid)}
		}
	}

	to := domain.SubmissionPaymentSettled
	if !caller.IsAdmin() {
		to = domain.SubmissionAwaitingDispatchConfirmation
	}
	changes := make([]*Change, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for i := range rows {
		sub := &rows[i]
		if !caller.IsAdmin() && !referredBy(sub.AffiliateID, caller.ID) {
			return nil, nil, "", &domain.ErrForbidden{Action: fmt.Sprintf("aprovar pagamento do formulário %d", sub.ID)}
		}
		c, err := s.engine.ApplySubmission(ctx, tx, sub, to, domain.TriggerReceiptApproval, func(sub *domain.Submission) {
			sub.ConfirmedAffiliateList = sub.HasAffiliate()
			sub.Payed = true
		})
		if err != nil {
			return nil, nil, "", err
		}
		changes = append(changes, c)
		ids = append(ids, sub.ID)
	}
	return changes, ids, string(to), nil
}

// ConfirmAffiliate marks rows as forwarded upstream by their affiliate.
func (s *PaymentService) ConfirmAffiliate(ctx context.Context, caller domain.Caller, kind domain.PayableKind, ids []int64) (*domain.ApprovalResult, error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.ConfirmAffiliate")
	defer span.End()

	if !caller.IsAdmin() && !caller.IsAffiliate() {
		return nil, &domain.ErrForbidden{Action: "confirmar envio do afiliado"}
	}
	if !kind.Valid() {
		return nil, &domain.ErrValidation{Field: "kind", Message: "tipo deve ser list ou submission"}
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, &domain.ErrValidation{Field: "ids", Message: "informe ao menos um id"}
	}

	result := &domain.ApprovalResult{Kind: kind, IDs: ids}
	var changes []*Change
	err := s.store.WithTx(ctx, func(tx port.Repos) error {
		if kind == domain.PayableList {
			rows, err := tx.ListsByIDsForUpdate(ctx, ids)
			if err != nil {
				return err
			}
			if len(rows) != len(ids) {
				return &domain.ErrNotFound{Resource: "list", ID: fmt.Sprint(ids)}
			}
			for i := range rows {
				l := &rows[i]
				if !canSee(caller, l.ClientID, l.AffiliateID) {
					return &domain.ErrForbidden{Action: fmt.Sprintf("confirmar lista %d", l.ID)}
				}
				c, err := s.engine.ApplyList(ctx, tx, l, domain.ListForwardedByAffiliate, domain.TriggerAffiliateConfirm, func(l *domain.List) {
					l.ConfirmedAffiliateList = true
				})
				if err != nil {
					return err
				}
				changes = append(changes, c)
			}
			result.Status = string(domain.ListForwardedByAffiliate)
			return nil
		}

		rows, err := tx.SubmissionsByIDsForUpdate(ctx, ids)
		if err != nil {
			return err
		}
		if len(rows) != len(ids) {
			return &domain.ErrNotFound{Resource: "submission", ID: fmt.Sprint(ids)}
		}
		for i := range rows {
			sub := &rows[i]
			if !canSee(caller, sub.UserID, sub.AffiliateID) {
				return &domain.ErrForbidden{Action: fmt.Sprintf("confirmar formulário %d", sub.ID)}
			}
			c, err := s.engine.ApplySubmission(ctx, tx, sub, domain.SubmissionForwardedByAffiliate, domain.TriggerAffiliateConfirm, func(sub *domain.Submission) {
				sub.ConfirmedAffiliateList = true
			})
			if err != nil {
				return err
			}
			changes = append(changes, c)
		}
		result.Status = string(domain.SubmissionForwardedByAffiliate)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.engine.Audit(ctx, changes...)
	return result, nil
}

// ============================================================
// Reads: status polling, receipt retrieval, group totals
// ============================================================

// Status is the polling read model. Done turns true once any payment
// acknowledgement has happened; polling never changes state.
func (s *PaymentService) Status(ctx context.Context, caller domain.Caller, kind domain.PayableKind, id int64) (*domain.PaymentStatus, error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.Status")
	defer span.End()

	p, err := s.load(ctx, caller, kind, id)
	if err != nil {
		return nil, err
	}
	return &domain.PaymentStatus{
		Kind:   p.kind,
		ID:     p.id,
		Status: p.status,
		Payed:  p.payed,
		Done:   p.payed || p.acknowledged,
	}, nil
}

// Receipt retrieves the uploaded proof of payment of a row.
func (s *PaymentService) Receipt(ctx context.Context, caller domain.Caller, kind domain.PayableKind, id int64) (*domain.BlobFile, error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.Receipt")
	defer span.End()

	p, err := s.load(ctx, caller, kind, id)
	if err != nil {
		return nil, err
	}
	if p.comprovanteURL == nil || *p.comprovanteURL == "" {
		return nil, &domain.ErrNotFound{Resource: "comprovante", ID: fmt.Sprint(id)}
	}
	return s.blobs.Retrieve(ctx, domain.FolderReceipts, *p.comprovanteURL)
}

// GroupTotal sums price across every row sharing groupPaymentID.
func (s *PaymentService) GroupTotal(ctx context.Context, caller domain.Caller, groupPaymentID int64) (*domain.GroupTotal, error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.GroupTotal")
	defer span.End()

	if !caller.IsAdmin() && !caller.IsAffiliate() {
		return nil, &domain.ErrForbidden{Action: "consultar total do grupo de pagamento"}
	}
	return s.store.GroupPaymentTotal(ctx, groupPaymentID)
}

func referredBy(affiliateID *int64, callerID int64) bool {
	return affiliateID != nil && *affiliateID == callerID
}

func listRef(p *payable) *int64 {
	if p.kind != domain.PayableList {
		return nil
	}
	id := p.id
	return &id
}
