package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Cobrança (PIX, webhook, comprovantes)
// ============================================================

// webhookTokenHeader carries the shared secret configured on the gateway.
const webhookTokenHeader = "asaas-access-token"

func createChargeHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /cobranca/pix")
		defer span.End()

		var req domain.ChargeRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		kind, err := payableKind(string(req.Kind))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		req.Kind = kind
		span.SetAttributes(attribute.String("payable.kind", string(kind)), attribute.Int64("payable.id", req.ID))

		charge, err := svc.CreateCharge(ctx, mustCaller(r), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		status := http.StatusCreated
		if charge.Reused {
			status = http.StatusOK
		}
		writeJSON(w, status, charge)
	}
}

// webhookHandler always answers 200 so the gateway stops retrying.
// The body tells what happened to the delivery.
func webhookHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /cobranca/webhook")
		defer span.End()

		var ev *domain.WebhookEvent
		var body domain.WebhookEvent
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			logger.Warn("webhook: undecodable body", zap.Error(err))
		} else {
			ev = &body
		}

		res := svc.HandleWebhook(ctx, r.Header.Get(webhookTokenHeader), ev)
		span.SetAttributes(attribute.String("webhook.outcome", string(res.Outcome)))
		writeJSON(w, http.StatusOK, res)
	}
}

// uploadReceiptHandler takes multipart: kind, ids (repeated or comma
// separated) and the file under "comprovante".
func uploadReceiptHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /cobranca/comprovante")
		defer span.End()

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			handleServiceError(w, &domain.ErrValidation{Field: "comprovante", Message: "formulário multipart inválido"}, logger)
			return
		}

		kind, err := payableKind(r.FormValue("kind"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		ids, err := formIDs(r.MultipartForm.Value["ids"])
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		name, contentType, data, err := readFile(r, "comprovante")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := svc.UploadReceipt(ctx, mustCaller(r), &domain.ReceiptUpload{
			Kind:        kind,
			IDs:         ids,
			Filename:    name,
			ContentType: contentType,
			Data:        data,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func formIDs(values []string) ([]int64, error) {
	var ids []int64
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, &domain.ErrValidation{Field: "ids", Message: "identificador inválido: " + part}
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, &domain.ErrValidation{Field: "ids", Message: "informe ao menos um identificador"}
	}
	return ids, nil
}

func approveReceiptHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /cobranca/aprovar/{id}")
		defer span.End()

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req struct {
			Kind  domain.PayableKind `json:"kind"`
			Group bool               `json:"group"`
		}
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}
		kind, err := payableKind(string(req.Kind))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := svc.ApproveReceipt(ctx, mustCaller(r), kind, id, req.Group)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func confirmAffiliateHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /cobranca/confirmar-afiliado")
		defer span.End()

		var req struct {
			Kind domain.PayableKind `json:"kind"`
			IDs  []int64            `json:"ids"`
		}
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		kind, err := payableKind(string(req.Kind))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := svc.ConfirmAffiliate(ctx, mustCaller(r), kind, req.IDs)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func paymentStatusHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /cobranca/status/{kind}/{id}")
		defer span.End()

		kind, err := payableKind(chi.URLParam(r, "kind"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		st, err := svc.Status(ctx, mustCaller(r), kind, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// receiptHandler returns the receipt as JSON (base64 for images and PDFs),
// or the raw bytes with ?raw=true.
func receiptHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /cobranca/comprovante/{kind}/{id}")
		defer span.End()

		kind, err := payableKind(chi.URLParam(r, "kind"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		file, err := svc.Receipt(ctx, mustCaller(r), kind, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if raw, _ := strconv.ParseBool(r.URL.Query().Get("raw")); raw {
			w.Header().Set("Content-Type", file.ContentType)
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write(file.Data); err != nil {
				logger.Warn("receipt: write failed", zap.String("key", file.Key), zap.Error(err))
			}
			return
		}
		writeJSON(w, http.StatusOK, file)
	}
}

func groupTotalHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /cobranca/grupo/{groupPaymentId}/total")
		defer span.End()

		id, err := pathID(r, "groupPaymentId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		total, err := svc.GroupTotal(ctx, mustCaller(r), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, total)
	}
}
