package recordapi

import (
	"encoding/json"
	"net/http"

	"github.com/linnemanlabs/fieldtriage/internal/patient"
	"github.com/linnemanlabs/fieldtriage/internal/triage"
)

// previewInput is the subset of a record the classifier looks at. The
// presentation layer sends it as the responder fills the form, before
// anything is persisted.
type previewInput struct {
	AgeGroup patient.AgeGroup  `json:"ageGroup"`
	Vitals   patient.Vitals    `json:"vitals"`
	Mobility *patient.Mobility `json:"mobility,omitempty"`
}

func (in previewInput) record() *patient.Record {
	return &patient.Record{
		AgeGroup: in.AgeGroup,
		Vitals:   in.Vitals,
		Mobility: in.Mobility,
	}
}

// handleTriageRules serves the decision table in evaluation order.
func (a *API) handleTriageRules(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{"rules": triage.Rules()})
}

// handleTriagePreview runs the classifier without persisting anything,
// returning the assessment and the validation report together.
func (a *API) handleTriagePreview(w http.ResponseWriter, r *http.Request) {
	var in previewInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badRequest(w)
		return
	}

	rec := in.record()
	a.writeJSON(w, http.StatusOK, map[string]any{
		"assessment": triage.Assess(rec),
		"validation": triage.Validate(rec),
	})
}

func (a *API) handleTriageValidate(w http.ResponseWriter, r *http.Request) {
	var in previewInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badRequest(w)
		return
	}
	a.writeJSON(w, http.StatusOK, triage.Validate(in.record()))
}

type assistRequest struct {
	Text string `json:"text"`
}

// handleAssist asks the configured analyzer to prefill record fields
// from free text. 503 when no analyzer is configured; the rest of the
// system works without one.
func (a *API) handleAssist(w http.ResponseWriter, r *http.Request) {
	if a.analyzer == nil {
		a.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "assist not configured"})
		return
	}

	var req assistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		badRequest(w)
		return
	}

	sug, err := a.analyzer.Analyze(r.Context(), req.Text)
	if err != nil {
		a.writeError(w, r, err, "assist analyze failed")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"suggestion": sug})
}
