package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

var submissionTracer = otel.Tracer("service/submissions")

// maxParallelFiles bounds concurrent blob store calls per request.
const maxParallelFiles = 4

// SubmissionService handles filled service forms.
type SubmissionService struct {
	store     port.Store
	blobs     port.BlobStore
	engine    *Engine
	protocols *Protocols
	pricing   Pricing
	logger    *zap.Logger
}

// NewSubmissionService creates a submission service.
func NewSubmissionService(store port.Store, blobs port.BlobStore, engine *Engine, protocols *Protocols, logger *zap.Logger) *SubmissionService {
	return &SubmissionService{store: store, blobs: blobs, engine: engine, protocols: protocols, logger: logger}
}

// Create validates the answers against the service's active form, stores
// file answers in the blob store and inserts the submission awaiting payment.
func (s *SubmissionService) Create(ctx context.Context, caller domain.Caller, in *domain.SubmissionInput, files []domain.FileUpload) (*domain.Submission, error) {
	ctx, span := submissionTracer.Start(ctx, "SubmissionService.Create")
	defer span.End()
	span.SetAttributes(attribute.Int64("service.id", in.ServiceID))

	if in.ServiceID == 0 {
		return nil, &domain.ErrValidation{Field: "service_id", Message: "serviço é obrigatório"}
	}
	form, err := s.store.GetActiveForm(ctx, in.ServiceID)
	if err != nil {
		return nil, err
	}
	owner, err := s.store.GetClient(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("get owner: %w", err)
	}
	price, err := s.pricing.ComputePrice(ctx, s.store, owner.ID, in.ServiceID, 1)
	if err != nil {
		return nil, err
	}

	values := make(map[int64]string, len(in.Answers)+len(files))
	for id, v := range in.Answers {
		values[id] = strings.TrimSpace(v)
	}
	fields := fieldIndex(form.Fields)
	if err := checkUploads(fields, files); err != nil {
		return nil, err
	}
	if err := checkAnswers(fields, values); err != nil {
		return nil, err
	}
	keys, err := s.upload(ctx, files)
	if err != nil {
		return nil, err
	}
	for id, key := range keys {
		values[id] = key
	}
	answers := make([]domain.Answer, 0, len(form.Fields))
	for _, f := range form.Fields {
		v := values[f.ID]
		if err := validateAnswer(f, v); err != nil {
			return nil, err
		}
		if v == "" {
			continue
		}
		answers = append(answers, domain.Answer{FormFieldID: f.ID, Value: v})
	}

	sub := &domain.Submission{
		UserID:        owner.ID,
		ServiceFormID: form.ID,
		ServiceID:     in.ServiceID,
		Price:         price,
		Status:        domain.SubmissionAwaitingPayment,
		AffiliateID:   owner.AffiliateID,
	}
	var change *Change
	err = s.store.WithTx(ctx, func(tx port.Repos) error {
		protocol, err := s.protocols.Next(ctx, tx, domain.PayableSubmission)
		if err != nil {
			return err
		}
		sub.Protocol = protocol
		created, err := tx.CreateSubmission(ctx, sub)
		if err != nil {
			return err
		}
		if err := tx.InsertAnswers(ctx, created.ID, answers); err != nil {
			return err
		}
		change, err = s.engine.Created(ctx, tx, domain.KindSubmission, created.ID, string(created.Status), domain.TriggerCreate, &created.UserID)
		sub = created
		return err
	})
	if err != nil {
		return nil, err
	}
	s.engine.Audit(ctx, change)

	s.logger.Info("submission created",
		zap.Int64("submission_id", sub.ID),
		zap.String("protocol", sub.Protocol),
		zap.Int64("client_id", sub.UserID),
		zap.Float64("price", sub.Price),
	)
	sub.Answers = answers
	return sub, nil
}

// Get returns a visible submission with answers and history. File answers
// are fetched concurrently; a broken file leaves Answer.File nil.
func (s *SubmissionService) Get(ctx context.Context, caller domain.Caller, id int64) (*domain.SubmissionDetail, error) {
	ctx, span := submissionTracer.Start(ctx, "SubmissionService.Get")
	defer span.End()
	span.SetAttributes(attribute.Int64("submission.id", id))

	sub, err := s.visible(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if sub.Answers, err = s.store.GetAnswers(ctx, sub.ID); err != nil {
		return nil, err
	}
	s.resolveFiles(ctx, sub.Answers)

	detail := &domain.SubmissionDetail{Submission: sub}
	if detail.History, err = s.store.ListHistory(ctx, domain.KindSubmission, sub.ID); err != nil {
		return nil, err
	}
	if sub.GroupPaymentID != nil {
		total, err := s.store.GroupPaymentTotal(ctx, *sub.GroupPaymentID)
		if err != nil {
			return nil, err
		}
		detail.GroupPaymentTotal = &total.Total
	}
	return detail, nil
}

// List returns one page of submissions visible to the caller.
func (s *SubmissionService) List(ctx context.Context, caller domain.Caller, clientID *int64, view domain.View, f domain.SubmissionFilter) ([]domain.Submission, int, error) {
	ctx, span := submissionTracer.Start(ctx, "SubmissionService.List")
	defer span.End()

	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, &domain.ErrValidation{Field: "status", Message: "status inválido"}
	}
	f.Scope = domain.ScopeFor(caller, clientID, view)
	return s.store.ListSubmissions(ctx, f)
}

// Invalidate rejects the named answers with a reason each.
func (s *SubmissionService) Invalidate(ctx context.Context, caller domain.Caller, id int64, reasons map[int64]string) (*domain.Submission, error) {
	ctx, span := submissionTracer.Start(ctx, "SubmissionService.Invalidate")
	defer span.End()
	span.SetAttributes(attribute.Int64("submission.id", id))

	if err := requireAdmin(caller, "reprovar formulário"); err != nil {
		return nil, err
	}
	if len(reasons) == 0 {
		return nil, &domain.ErrValidation{Field: "fields", Message: "informe ao menos um campo reprovado"}
	}

	var (
		out    *domain.Submission
		change *Change
	)
	err := s.store.WithTx(ctx, func(tx port.Repos) error {
		sub, err := tx.GetSubmissionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		form, err := tx.GetForm(ctx, sub.ServiceFormID)
		if err != nil {
			return err
		}
		fields := fieldIndex(form.Fields)
		answers, err := tx.GetAnswers(ctx, sub.ID)
		if err != nil {
			return err
		}
		answered := make(map[int64]bool, len(answers))
		for _, a := range answers {
			answered[a.FormFieldID] = true
		}
		for _, fieldID := range sortedKeys(reasons) {
			reason := strings.TrimSpace(reasons[fieldID])
			if _, ok := fields[fieldID]; !ok {
				return &domain.ErrValidation{Field: "fields", Message: fmt.Sprintf("campo %d não pertence ao formulário", fieldID)}
			}
			if !answered[fieldID] {
				return &domain.ErrValidation{Field: "fields", Message: fmt.Sprintf("campo %d não foi respondido", fieldID)}
			}
			if reason == "" {
				return &domain.ErrValidation{Field: "fields", Message: fmt.Sprintf("campo %d sem motivo", fieldID)}
			}
			if err := tx.SetAnswerInvalid(ctx, sub.ID, fieldID, reason); err != nil {
				return err
			}
		}
		if change, err = s.engine.ApplySubmission(ctx, tx, sub, domain.SubmissionFormRejected, domain.TriggerFormInvalidate, nil); err != nil {
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.engine.Audit(ctx, change)
	return out, nil
}

// Resubmit stores corrected values for the rejected answers and moves the
// submission back to review. Every rejected answer must be corrected.
func (s *SubmissionService) Resubmit(ctx context.Context, caller domain.Caller, id int64, values map[int64]string, files []domain.FileUpload) (*domain.Submission, error) {
	ctx, span := submissionTracer.Start(ctx, "SubmissionService.Resubmit")
	defer span.End()
	span.SetAttributes(attribute.Int64("submission.id", id))

	current, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.UserID != caller.ID {
		return nil, &domain.ErrForbidden{Action: "corrigir formulário de outro cliente"}
	}
	if current.Status != domain.SubmissionFormRejected {
		return nil, &domain.ErrConflict{Message: "formulário não está reprovado"}
	}
	form, err := s.store.GetForm(ctx, current.ServiceFormID)
	if err != nil {
		return nil, err
	}
	fields := fieldIndex(form.Fields)
	if err := checkUploads(fields, files); err != nil {
		return nil, err
	}
	keys, err := s.upload(ctx, files)
	if err != nil {
		return nil, err
	}
	corrected := make(map[int64]string, len(values)+len(keys))
	for fid, v := range values {
		if f, ok := fields[fid]; ok && f.Type == domain.FieldFile {
			return nil, &domain.ErrValidation{Field: f.Label, Message: "envie o arquivo do campo"}
		}
		corrected[fid] = strings.TrimSpace(v)
	}
	for fid, key := range keys {
		corrected[fid] = key
	}

	var (
		out    *domain.Submission
		change *Change
	)
	err = s.store.WithTx(ctx, func(tx port.Repos) error {
		sub, err := tx.GetSubmissionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		answers, err := tx.GetAnswers(ctx, sub.ID)
		if err != nil {
			return err
		}
		rejected := make(map[int64]bool)
		for _, a := range answers {
			if a.InvalidReason != nil {
				rejected[a.FormFieldID] = true
			}
		}
		for _, fid := range sortedKeys(corrected) {
			if !rejected[fid] {
				return &domain.ErrValidation{Field: "fields", Message: fmt.Sprintf("campo %d não foi reprovado", fid)}
			}
		}
		for fid := range rejected {
			v, ok := corrected[fid]
			if !ok {
				return &domain.ErrValidation{Field: fields[fid].Label, Message: "campo reprovado precisa ser corrigido"}
			}
			if err := validateAnswer(fields[fid], v); err != nil {
				return err
			}
		}
		for _, fid := range sortedKeys(corrected) {
			if err := tx.UpdateAnswerValue(ctx, sub.ID, fid, corrected[fid]); err != nil {
				return err
			}
		}
		if change, err = s.engine.ApplySubmission(ctx, tx, sub, domain.SubmissionAwaitingReview, domain.TriggerFormResubmit, nil); err != nil {
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.engine.Audit(ctx, change)
	return out, nil
}

// Approve accepts the submitted answers.
func (s *SubmissionService) Approve(ctx context.Context, caller domain.Caller, id int64) (*domain.Submission, error) {
	if err := requireAdmin(caller, "aprovar formulário"); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, domain.SubmissionApproved, domain.TriggerFormApprove)
}

// SetStatus is the admin free-text status change (serviceUpdateStatus).
func (s *SubmissionService) SetStatus(ctx context.Context, caller domain.Caller, id int64, status domain.SubmissionStatus) (*domain.Submission, error) {
	if err := requireAdmin(caller, "alterar status do formulário"); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "status inválido"}
	}
	return s.transition(ctx, id, status, domain.TriggerAdminSet)
}

func (s *SubmissionService) transition(ctx context.Context, id int64, to domain.SubmissionStatus, trigger domain.Trigger) (*domain.Submission, error) {
	ctx, span := submissionTracer.Start(ctx, "SubmissionService.Transition")
	defer span.End()
	span.SetAttributes(attribute.Int64("submission.id", id), attribute.String("trigger", string(trigger)))

	var (
		out    *domain.Submission
		change *Change
	)
	err := s.store.WithTx(ctx, func(tx port.Repos) error {
		sub, err := tx.GetSubmissionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if change, err = s.engine.ApplySubmission(ctx, tx, sub, to, trigger, nil); err != nil {
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.engine.Audit(ctx, change)
	return out, nil
}

func (s *SubmissionService) visible(ctx context.Context, caller domain.Caller, id int64) (*domain.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(caller, sub.UserID, sub.AffiliateID) {
		return nil, &domain.ErrNotFound{Resource: "submission", ID: fmt.Sprint(id)}
	}
	return sub, nil
}

// upload stores files concurrently and returns the blob key per field.
func (s *SubmissionService) upload(ctx context.Context, files []domain.FileUpload) (map[int64]string, error) {
	keys := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFiles)
	for i, f := range files {
		g.Go(func() error {
			key, err := s.blobs.Save(gctx, domain.FolderForms, f.Filename, f.Data)
			if err != nil {
				return err
			}
			keys[i] = key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(files))
	for i, f := range files {
		out[f.FieldID] = keys[i]
	}
	return out, nil
}

// resolveFiles attaches blob contents to file answers. Failures are logged.
func (s *SubmissionService) resolveFiles(ctx context.Context, answers []domain.Answer) {
	var g errgroup.Group
	g.SetLimit(maxParallelFiles)
	for i := range answers {
		a := &answers[i]
		if a.Field == nil || a.Field.Type != domain.FieldFile || a.Value == "" {
			continue
		}
		g.Go(func() error {
			file, err := s.blobs.Retrieve(ctx, domain.FolderForms, a.Value)
			if err != nil {
				s.logger.Warn("submission: file unavailable",
					zap.Int64("submission_id", a.SubmissionID),
					zap.Int64("field_id", a.FormFieldID),
					zap.Error(err),
				)
				return nil
			}
			a.File = file
			return nil
		})
	}
	_ = g.Wait()
}

func fieldIndex(fields []domain.FormField) map[int64]domain.FormField {
	out := make(map[int64]domain.FormField, len(fields))
	for _, f := range fields {
		out[f.ID] = f
	}
	return out
}

// checkUploads rejects files aimed at unknown or non-file fields.
func checkUploads(fields map[int64]domain.FormField, files []domain.FileUpload) error {
	seen := make(map[int64]bool, len(files))
	for _, f := range files {
		fd, ok := fields[f.FieldID]
		if !ok || fd.Type != domain.FieldFile {
			return &domain.ErrValidation{Field: "files", Message: fmt.Sprintf("campo %d não aceita arquivo", f.FieldID)}
		}
		if seen[f.FieldID] {
			return &domain.ErrValidation{Field: fd.Label, Message: "apenas um arquivo por campo"}
		}
		if len(f.Data) == 0 {
			return &domain.ErrValidation{Field: fd.Label, Message: "arquivo vazio"}
		}
		seen[f.FieldID] = true
	}
	return nil
}

// checkAnswers validates text answers before any file is uploaded.
// File fields only accept uploads; required ones are checked after upload.
func checkAnswers(fields map[int64]domain.FormField, values map[int64]string) error {
	for _, id := range sortedKeys(values) {
		f, ok := fields[id]
		if !ok {
			return &domain.ErrValidation{Field: "answers", Message: fmt.Sprintf("campo %d não pertence ao formulário", id)}
		}
		if f.Type == domain.FieldFile {
			if values[id] != "" {
				return &domain.ErrValidation{Field: f.Label, Message: "envie o arquivo do campo"}
			}
			continue
		}
		if err := validateAnswer(f, values[id]); err != nil {
			return err
		}
	}
	for _, id := range sortedKeys(fields) {
		f := fields[id]
		if f.Required && f.Type != domain.FieldFile && values[id] == "" {
			return &domain.ErrValidation{Field: f.Label, Message: "campo obrigatório"}
		}
	}
	return nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
