package handler

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Formulários preenchidos (submissions)
// ============================================================

// answerPrefix names multipart parts carrying answers: field_<formFieldId>.
// Text parts become values, file parts become uploads.
const answerPrefix = "field_"

// submissionForm is the decoded body of a create or resubmit request.
type submissionForm struct {
	ServiceID int64
	Values    map[int64]string
	Files     []domain.FileUpload
}

// parseSubmissionForm accepts multipart (text + files) or a JSON body
// with text answers only.
func parseSubmissionForm(w http.ResponseWriter, r *http.Request) (*submissionForm, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var in domain.SubmissionInput
		if err := decodeJSON(r, &in); err != nil {
			return nil, err
		}
		return &submissionForm{ServiceID: in.ServiceID, Values: in.Answers}, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, &domain.ErrValidation{Field: "body", Message: "formulário multipart inválido"}
	}

	out := &submissionForm{Values: map[int64]string{}}
	if raw := r.FormValue("service_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &domain.ErrValidation{Field: "service_id", Message: "identificador inválido"}
		}
		out.ServiceID = id
	}

	for key, values := range r.MultipartForm.Value {
		fieldID, ok := answerFieldID(key)
		if !ok || len(values) == 0 {
			continue
		}
		out.Values[fieldID] = values[0]
	}
	for key, headers := range r.MultipartForm.File {
		fieldID, ok := answerFieldID(key)
		if !ok {
			continue
		}
		for _, hdr := range headers {
			f, err := hdr.Open()
			if err != nil {
				return nil, &domain.ErrValidation{Field: key, Message: "arquivo inválido"}
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, &domain.ErrValidation{Field: key, Message: "arquivo ilegível"}
			}
			out.Files = append(out.Files, domain.FileUpload{FieldID: fieldID, Filename: hdr.Filename, Data: data})
		}
	}
	return out, nil
}

func answerFieldID(key string) (int64, bool) {
	if !strings.HasPrefix(key, answerPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(key, answerPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func createSubmissionHandler(svc *service.SubmissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /submissions")
		defer span.End()

		form, err := parseSubmissionForm(w, r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		in := &domain.SubmissionInput{ServiceID: form.ServiceID, Answers: form.Values}

		sub, err := svc.Create(ctx, mustCaller(r), in, form.Files)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("protocol", sub.Protocol))
		writeJSON(w, http.StatusCreated, sub)
	}
}

func listSubmissionsHandler(svc *service.SubmissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /submissions")
		defer span.End()

		clientID, err := queryID(r, "client_id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		serviceID, err := queryID(r, "service_id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		from, err := queryDate(r, "from")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		to, err := queryDate(r, "to")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		page, pageSize := parsePagination(r)

		f := domain.SubmissionFilter{
			Status: domain.SubmissionStatus(r.URL.Query().Get("status")),
			From:   from,
			To:     to,
			Limit:  pageSize,
			Offset: (page - 1) * pageSize,
		}
		if serviceID != nil {
			f.ServiceID = *serviceID
		}

		subs, total, err := svc.List(ctx, mustCaller(r), clientID, queryView(r), f)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, paginate(subs, total, page, pageSize))
	}
}

func getSubmissionHandler(svc *service.SubmissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /submissions/{id}")
		defer span.End()

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		detail, err := svc.Get(ctx, mustCaller(r), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func invalidateSubmissionHandler(svc *service.SubmissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /submissions/{id}/invalidate")
		defer span.End()

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req struct {
			Reasons map[int64]string `json:"reasons"`
		}
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		sub, err := svc.Invalidate(ctx, mustCaller(r), id, req.Reasons)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

func resubmitSubmissionHandler(svc *service.SubmissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /submissions/{id}/resubmit")
		defer span.End()

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		form, err := parseSubmissionForm(w, r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		sub, err := svc.Resubmit(ctx, mustCaller(r), id, form.Values, form.Files)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

func approveSubmissionHandler(svc *service.SubmissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /submissions/{id}/approve")
		defer span.End()

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		sub, err := svc.Approve(ctx, mustCaller(r), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

func setSubmissionStatusHandler(svc *service.SubmissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /submissions/{id}/status")
		defer span.End()

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req struct {
			Status domain.SubmissionStatus `json:"status"`
		}
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		sub, err := svc.SetStatus(ctx, mustCaller(r), id, req.Status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}
