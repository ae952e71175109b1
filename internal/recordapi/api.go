// Package recordapi exposes the record service and the triage
// classifier over HTTP for the on-device presentation layer. It is a
// loopback-facing surface, not multi-device sync.
package recordapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/fieldtriage/internal/assist"
	"github.com/linnemanlabs/fieldtriage/internal/patient"
	"github.com/linnemanlabs/fieldtriage/internal/records"
	"github.com/linnemanlabs/fieldtriage/internal/seal"
)

// RecordService defines the business operations recordapi needs.
type RecordService interface {
	Create(ctx context.Context, in records.CreateInput) (string, error)
	Get(ctx context.Context, id string) (*patient.Record, bool, error)
	Update(ctx context.Context, id string, req records.UpdateRequest) (*patient.Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*patient.Record, error)
	ByStatus(ctx context.Context, status patient.Status) ([]*patient.Record, error)
	ByPriority(ctx context.Context, level patient.Level) ([]*patient.Record, error)
	BulkSetStatus(ctx context.Context, ids []string, status patient.Status) *records.BulkResult
	BulkDelete(ctx context.Context, ids []string) *records.BulkResult
	ExportAll(ctx context.Context) (*records.Envelope, error)
	ExportSelected(ctx context.Context, ids []string) (*records.Envelope, error)
	Import(ctx context.Context, env *records.Envelope) *records.ImportResult
	StorageStats(ctx context.Context) (*records.StorageStats, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	svc      RecordService
	analyzer assist.Analyzer // optional; nil means assist is unconfigured
}

// New creates a new API handler. The analyzer may be nil.
func New(logger log.Logger, svc RecordService, analyzer assist.Analyzer) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("record service is required"))
	}
	return &API{
		logger:   logger,
		svc:      svc,
		analyzer: analyzer,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/records", func(r chi.Router) {
			r.Post("/", a.handleCreateRecord)
			r.Get("/", a.handleListRecords)
			r.Get("/{id}", a.handleGetRecord)
			r.Patch("/{id}", a.handleUpdateRecord)
			r.Delete("/{id}", a.handleDeleteRecord)

			r.Post("/bulk/status", a.handleBulkSetStatus)
			r.Post("/bulk/delete", a.handleBulkDelete)

			r.Get("/export", a.handleExportAll)
			r.Post("/export", a.handleExportSelected)
			r.Post("/import", a.handleImport)
		})

		r.Get("/storage/stats", a.handleStorageStats)

		r.Route("/triage", func(r chi.Router) {
			r.Get("/rules", a.handleTriageRules)
			r.Post("/preview", a.handleTriagePreview)
			r.Post("/validate", a.handleTriageValidate)
		})

		r.Post("/assist", a.handleAssist)
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, records.ErrNotFound):
		a.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, records.ErrConflict):
		a.writeJSON(w, http.StatusConflict, map[string]string{"error": "conflict"})
	case errors.Is(err, seal.ErrDecryptFailed):
		// The record exists but its blob is unreadable under the
		// current key. Not the same as absent.
		a.logger.Error(r.Context(), err, msg)
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "decrypt_failed"})
	case errors.Is(err, seal.ErrKeyUnavailable):
		a.logger.Error(r.Context(), err, msg)
		a.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "key_unavailable"})
	default:
		a.logger.Error(r.Context(), err, msg)
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func badRequest(w http.ResponseWriter) {
	http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
}
