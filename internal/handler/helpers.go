package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

// maxUploadBytes bounds multipart bodies (receipts and form files).
const maxUploadBytes = 20 << 20

type errorResponse struct {
	Error    string `json:"error"`
	Detalhes string `json:"detalhes,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeErrorDetail(w http.ResponseWriter, status int, msg, detail string) {
	writeJSON(w, status, errorResponse{Error: msg, Detalhes: detail})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "corpo da requisição inválido"}
	}
	return nil
}

func parsePagination(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = 20
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 && ps <= 100 {
			pageSize = ps
		}
	}
	return
}

// pathID reads a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ErrValidation{Field: name, Message: "identificador inválido"}
	}
	return id, nil
}

// queryID reads an optional positive integer query parameter.
func queryID(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, &domain.ErrValidation{Field: name, Message: "identificador inválido"}
	}
	return &id, nil
}

// queryInt reads an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &domain.ErrValidation{Field: name, Message: "número inválido"}
	}
	return n, nil
}

// queryDate accepts YYYY-MM-DD or RFC3339.
func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, &domain.ErrValidation{Field: name, Message: "data inválida, use AAAA-MM-DD"}
}

func queryView(r *http.Request) domain.View {
	return domain.View(strings.ToLower(r.URL.Query().Get("view")))
}

func payableKind(raw string) (domain.PayableKind, error) {
	k := domain.PayableKind(strings.ToLower(strings.TrimSpace(raw)))
	if k == "" {
		k = domain.PayableList
	}
	if !k.Valid() {
		return "", &domain.ErrValidation{Field: "kind", Message: "tipo deve ser list ou submission"}
	}
	return k, nil
}

// readFile reads one multipart file part. A missing part yields nil data.
func readFile(r *http.Request, field string) (name, contentType string, data []byte, err error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", "", nil, nil
	}
	if err != nil {
		return "", "", nil, &domain.ErrValidation{Field: field, Message: "arquivo inválido"}
	}
	defer f.Close()
	data, err = io.ReadAll(f)
	if err != nil {
		return "", "", nil, fmt.Errorf("read upload %s: %w", field, err)
	}
	return hdr.Filename, hdr.Header.Get("Content-Type"), data, nil
}

// paginate wraps one page of results in the response envelope.
func paginate[T any](items []T, total, page, pageSize int) domain.ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return domain.ListResponse[T]{
		Data:     items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  page*pageSize < total,
	}
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var unauthorized *domain.ErrUnauthorized
	var forbidden *domain.ErrForbidden
	var conflict *domain.ErrConflict
	var notConfigured *domain.ErrServiceNotConfigured
	var missingMethod *domain.ErrMissingPaymentMethod
	var invalidTransition *domain.ErrInvalidTransition
	var external *domain.ErrExternalService
	var persistence *domain.ErrPersistence

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeErrorDetail(w, http.StatusNotFound, "Recurso não encontrado", err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeErrorDetail(w, http.StatusBadRequest, "Dados inválidos", validation.Field+": "+validation.Message)
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeErrorDetail(w, http.StatusForbidden, "Acesso negado", forbidden.Action)
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeErrorDetail(w, http.StatusConflict, "Operação não permitida no estado atual", err.Error())
	case errors.As(err, &invalidTransition):
		logger.Info("invalid transition", zap.String("error", err.Error()))
		writeErrorDetail(w, http.StatusConflict, "Transição de status inválida", err.Error())
	case errors.As(err, &notConfigured):
		logger.Info("service not configured",
			zap.Int64("client_id", notConfigured.ClientID),
			zap.Int64("service_id", notConfigured.ServiceID),
		)
		writeErrorDetail(w, http.StatusUnprocessableEntity, "Serviço não configurado para o cliente", err.Error())
	case errors.As(err, &missingMethod):
		logger.Warn("missing payment method", zap.Int64("client_id", missingMethod.ClientID))
		writeErrorDetail(w, http.StatusUnprocessableEntity, "Nenhum método de pagamento configurado", err.Error())
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(err))
		writeErrorDetail(w, http.StatusBadGateway, "Falha no serviço externo", external.Service)
	case errors.As(err, &persistence):
		logger.Error("persistence error", zap.String("op", persistence.Op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Erro interno ao acessar os dados")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Erro interno")
	}
}
