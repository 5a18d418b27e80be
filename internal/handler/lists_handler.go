package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Listas
// ============================================================

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// saveListHandler creates a list when id is zero and updates it otherwise.
func saveListHandler(svc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /list")
		defer span.End()

		var in domain.ListInput
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		list, err := svc.Save(ctx, mustCaller(r), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("protocol", list.Protocol))

		status := http.StatusOK
		if in.ID == 0 {
			status = http.StatusCreated
		}
		writeJSON(w, status, list)
	}
}

func listListsHandler(svc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /list")
		defer span.End()

		clientID, err := queryID(r, "client_id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		groupID, err := queryID(r, "list_group_id")
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

		f := domain.ListFilter{
			Status:  domain.ListStatus(r.URL.Query().Get("status")),
			GroupID: groupID,
			From:    from,
			To:      to,
			Limit:   pageSize,
			Offset:  (page - 1) * pageSize,
		}
		lists, total, err := svc.List(ctx, mustCaller(r), clientID, queryView(r), f)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, paginate(lists, total, page, pageSize))
	}
}

func getListHandler(svc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /list/{protocol}")
		defer span.End()

		protocol := chi.URLParam(r, "ref")
		span.SetAttributes(attribute.String("protocol", protocol))

		detail, err := svc.Get(ctx, mustCaller(r), protocol)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func exportListHandler(svc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /list/{protocol}/export")
		defer span.End()

		list, data, err := svc.Export(ctx, mustCaller(r), chi.URLParam(r, "ref"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="lista-%s.xlsx"`, list.Protocol))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			logger.Warn("export: write failed", zap.String("protocol", list.Protocol), zap.Error(err))
		}
	}
}

// importListHandler parses an uploaded workbook into names. Nothing is stored;
// the client posts the names back through POST /list.
func importListHandler(svc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /list/import")
		defer span.End()

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			handleServiceError(w, &domain.ErrValidation{Field: "file", Message: "formulário multipart inválido"}, logger)
			return
		}
		_, _, data, err := readFile(r, "file")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if len(data) == 0 {
			handleServiceError(w, &domain.ErrValidation{Field: "file", Message: "arquivo obrigatório"}, logger)
			return
		}

		names, err := svc.Import(ctx, bytes.NewReader(data))
		if err != nil {
			handleServiceError(w, &domain.ErrValidation{Field: "file", Message: err.Error()}, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"names": names, "names_quantity": len(names)})
	}
}

func setListStatusHandler(svc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /list/{id}/status")
		defer span.End()

		id, err := pathID(r, "ref")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req struct {
			Status domain.ListStatus `json:"status"`
		}
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		list, err := svc.SetStatus(ctx, mustCaller(r), id, req.Status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// ============================================================
// Grupos de listas
// ============================================================

func createListGroupHandler(svc *service.ListGroupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /list-groups")
		defer span.End()

		var in domain.ListGroupInput
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		group, err := svc.Create(ctx, mustCaller(r), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, group)
	}
}

func listListGroupsHandler(svc *service.ListGroupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /list-groups")
		defer span.End()

		groups, err := svc.List(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if groups == nil {
			groups = []domain.ListGroup{}
		}
		writeJSON(w, http.StatusOK, groups)
	}
}

func getListGroupHandler(svc *service.ListGroupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /list-groups/{id}")
		defer span.End()

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		group, err := svc.Get(ctx, mustCaller(r), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, group)
	}
}

func updateListGroupHandler(svc *service.ListGroupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /list-groups/{id}")
		defer span.End()

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req struct {
			Status domain.ListStatus `json:"status"`
		}
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		group, err := svc.UpdateStatus(ctx, mustCaller(r), id, req.Status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, group)
	}
}

func deleteListGroupHandler(svc *service.ListGroupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /list-groups/{id}")
		defer span.End()

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := svc.Delete(ctx, mustCaller(r), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "Grupo removido", ID: id})
	}
}
