package recordapi

import (
	"encoding/json"
	"net/http"

	"github.com/linnemanlabs/fieldtriage/internal/records"
)

func (a *API) handleExportAll(w http.ResponseWriter, r *http.Request) {
	env, err := a.svc.ExportAll(r.Context())
	if err != nil {
		a.writeError(w, r, err, "failed to export records")
		return
	}
	if env.Records == nil {
		env.Records = []*records.EncryptedRecord{}
	}
	a.writeJSON(w, http.StatusOK, env)
}

type exportSelectedRequest struct {
	IDs []string `json:"ids"`
}

func (a *API) handleExportSelected(w http.ResponseWriter, r *http.Request) {
	var req exportSelectedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}

	env, err := a.svc.ExportSelected(r.Context(), req.IDs)
	if err != nil {
		a.writeError(w, r, err, "failed to export records")
		return
	}
	if env.Records == nil {
		env.Records = []*records.EncryptedRecord{}
	}
	a.writeJSON(w, http.StatusOK, env)
}

func (a *API) handleImport(w http.ResponseWriter, r *http.Request) {
	var env records.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		badRequest(w)
		return
	}

	res := a.svc.Import(r.Context(), &env)

	imported := res.Imported
	if imported == nil {
		imported = []string{}
	}
	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"batchId":  res.BatchID,
		"imported": imported,
		"warnings": warnings,
		"errors":   errorStrings(res.Errors),
	})
}

func (a *API) handleStorageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.StorageStats(r.Context())
	if err != nil {
		a.writeError(w, r, err, "failed to compute storage stats")
		return
	}
	a.writeJSON(w, http.StatusOK, stats)
}
