package recordapi

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/hengadev/errsx"

	"github.com/linnemanlabs/fieldtriage/internal/patient"
	"github.com/linnemanlabs/fieldtriage/internal/records"
)

func (a *API) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var in records.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badRequest(w)
		return
	}

	id, err := a.svc.Create(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err, "failed to create record")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("fieldtriage.record.id", id))

	a.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (a *API) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("fieldtriage.record.id", id))

	rec, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "failed to get record")
		return
	}
	if !ok {
		a.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	a.writeJSON(w, http.StatusOK, rec)
}

// handleListRecords serves the board: all records most urgent first, or
// filtered by ?status= / ?priority= (level name).
func (a *API) handleListRecords(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	priority := r.URL.Query().Get("priority")

	var (
		recs []*patient.Record
		err  error
	)
	switch {
	case status != "":
		if !patient.ValidStatus(patient.Status(status)) {
			badRequest(w)
			return
		}
		recs, err = a.svc.ByStatus(r.Context(), patient.Status(status))
	case priority != "":
		if !patient.ValidLevel(patient.Level(priority)) {
			badRequest(w)
			return
		}
		recs, err = a.svc.ByPriority(r.Context(), patient.Level(priority))
	default:
		recs, err = a.svc.List(r.Context())
	}
	if err != nil {
		a.writeError(w, r, err, "failed to list records")
		return
	}
	if recs == nil {
		recs = []*patient.Record{}
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (a *API) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req records.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}
	if req.Status != nil && !patient.ValidStatus(*req.Status) {
		badRequest(w)
		return
	}

	rec, err := a.svc.Update(r.Context(), id, req)
	if err != nil {
		a.writeError(w, r, err, "failed to update record")
		return
	}
	a.writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := a.svc.Delete(r.Context(), id); err != nil {
		a.writeError(w, r, err, "failed to delete record")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkStatusRequest struct {
	IDs    []string       `json:"ids"`
	Status patient.Status `json:"status"`
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

func (a *API) handleBulkSetStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}
	if !patient.ValidStatus(req.Status) {
		badRequest(w)
		return
	}

	res := a.svc.BulkSetStatus(r.Context(), req.IDs, req.Status)
	a.writeJSON(w, http.StatusOK, bulkResponse(res))
}

func (a *API) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}

	res := a.svc.BulkDelete(r.Context(), req.IDs)
	a.writeJSON(w, http.StatusOK, bulkResponse(res))
}

func bulkResponse(res *records.BulkResult) map[string]any {
	succeeded := res.Succeeded
	if succeeded == nil {
		succeeded = []string{}
	}
	return map[string]any{
		"succeeded": succeeded,
		"errors":    errorStrings(res.Errors),
	}
}

func errorStrings(m errsx.Map) map[string]string {
	out := make(map[string]string, len(m))
	for k, err := range m {
		out[k] = err.Error()
	}
	return out
}
