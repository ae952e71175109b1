package recordapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/fieldtriage/internal/assist"
	"github.com/linnemanlabs/fieldtriage/internal/patient"
	"github.com/linnemanlabs/fieldtriage/internal/records"
	"github.com/linnemanlabs/fieldtriage/internal/records/memstore"
	"github.com/linnemanlabs/fieldtriage/internal/seal"
)

const stableBody = `{
	"ageGroup": "adult",
	"vitals": {
		"pulse": 80,
		"breathing": "normal",
		"circulation": "normal",
		"consciousness": "alert"
	},
	"injuries": ["laceration left arm"]
}`

func newTestService(t *testing.T) *records.Service {
	t.Helper()
	sealer, err := seal.New(bytes.Repeat([]byte{0x42}, seal.KeySize))
	if err != nil {
		t.Fatalf("seal.New: %v", err)
	}
	return records.NewService(memstore.New(), sealer, nil, nil)
}

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	api := New(nil, newTestService(t), nil)
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body != "" {
		rd = strings.NewReader(body)
	} else {
		rd = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func createRecord(t *testing.T, r chi.Router, body string) string {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/api/v1/records", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if resp["id"] == "" {
		t.Fatal("create response missing id")
	}
	return resp["id"]
}

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, newTestService(t), nil)
	if api == nil {
		t.Fatal("New returned nil API")
	}
	if api.logger == nil {
		t.Fatal("New left logger nil; expected Nop logger")
	}
}

func TestNew_WithLogger(t *testing.T) {
	t.Parallel()

	api := New(log.Nop(), newTestService(t), nil)
	if api.logger == nil {
		t.Fatal("New left logger nil")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil, nil) did not panic; expected panic for nil service")
		}
	}()
	New(nil, nil, nil)
}

// Routing

func TestRegisterRoutes_Records(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"POST valid record", http.MethodPost, "/api/v1/records", stableBody, http.StatusCreated},
		{"POST invalid JSON", http.MethodPost, "/api/v1/records", `{bad`, http.StatusBadRequest},
		{"GET list", http.MethodGet, "/api/v1/records", "", http.StatusOK},
		{"GET missing id", http.MethodGet, "/api/v1/records/nope", "", http.StatusNotFound},
		{"PATCH missing id", http.MethodPatch, "/api/v1/records/nope", `{"notes":"x"}`, http.StatusNotFound},
		{"DELETE missing id", http.MethodDelete, "/api/v1/records/nope", "", http.StatusNotFound},
		{"PUT not allowed", http.MethodPut, "/api/v1/records", "", http.StatusMethodNotAllowed},
		{"GET unknown path", http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
		{"GET wrong version", http.MethodGet, "/api/v2/records", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := doJSON(t, r, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

// Record lifecycle over HTTP

func TestCreateAndGetRecord(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	id := createRecord(t, r, stableBody)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/records/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got patient.Record
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if got.ID != id {
		t.Errorf("ID = %q, want %q", got.ID, id)
	}
	if got.Priority.Level != patient.LevelYellow {
		t.Errorf("Priority = %q, want yellow", got.Priority.Level)
	}
	if got.Status != patient.StatusActive {
		t.Errorf("Status = %q, want active", got.Status)
	}
}

func TestUpdateRecord(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	id := createRecord(t, r, stableBody)

	rec := doJSON(t, r, http.MethodPatch, "/api/v1/records/"+id, `{"status":"treated"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var got patient.Record
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if got.Status != patient.StatusTreated {
		t.Errorf("Status = %q, want treated", got.Status)
	}
	// Status alone never recomputes priority.
	if got.Priority.Level != patient.LevelYellow {
		t.Errorf("Priority = %q, want unchanged yellow", got.Priority.Level)
	}

	// A vitals patch recomputes.
	rec = doJSON(t, r, http.MethodPatch, "/api/v1/records/"+id, `{"vitals":{"pulse":200}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, want %d", rec.Code, http.StatusOK)
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if got.Priority.Level != patient.LevelRed {
		t.Errorf("Priority = %q, want red after pulse 200", got.Priority.Level)
	}
}

func TestUpdateRecord_InvalidStatus(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	id := createRecord(t, r, stableBody)

	rec := doJSON(t, r, http.MethodPatch, "/api/v1/records/"+id, `{"status":"bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestDeleteRecord(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	id := createRecord(t, r, stableBody)

	rec := doJSON(t, r, http.MethodDelete, "/api/v1/records/"+id, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	rec = doJSON(t, r, http.MethodGet, "/api/v1/records/"+id, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestListRecords_Filters(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	stable := createRecord(t, r, stableBody)

	urgentBody := strings.Replace(stableBody, `"pulse": 80`, `"pulse": 200`, 1)
	urgent := createRecord(t, r, urgentBody)

	if rec := doJSON(t, r, http.MethodPatch, "/api/v1/records/"+stable, `{"status":"treated"}`); rec.Code != http.StatusOK {
		t.Fatalf("patch = %d", rec.Code)
	}

	tests := []struct {
		name    string
		query   string
		wantIDs []string
	}{
		{"all", "", []string{urgent, stable}}, // urgency ordering: red first
		{"by status", "?status=active", []string{urgent}},
		{"by priority", "?priority=red", []string{urgent}},
		{"empty result", "?priority=black", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, r, http.MethodGet, "/api/v1/records"+tt.query, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			var resp struct {
				Records []patient.Record `json:"records"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.Records) != len(tt.wantIDs) {
				t.Fatalf("len = %d, want %d", len(resp.Records), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if resp.Records[i].ID != id {
					t.Errorf("records[%d] = %q, want %q", i, resp.Records[i].ID, id)
				}
			}
		})
	}

	if rec := doJSON(t, r, http.MethodGet, "/api/v1/records?status=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if rec := doJSON(t, r, http.MethodGet, "/api/v1/records?priority=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad priority filter = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// Bulk operations

func TestBulkSetStatus(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	a := createRecord(t, r, stableBody)
	b := createRecord(t, r, stableBody)

	body := fmt.Sprintf(`{"ids":[%q,"bogus",%q],"status":"transferred"}`, a, b)
	rec := doJSON(t, r, http.MethodPost, "/api/v1/records/bulk/status", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Succeeded []string          `json:"succeeded"`
		Errors    map[string]string `json:"errors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Succeeded) != 2 {
		t.Errorf("succeeded = %v, want 2 ids", resp.Succeeded)
	}
	if _, ok := resp.Errors["bogus"]; !ok {
		t.Error("expected per-id error for bogus")
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/records/bulk/status", `{"ids":[],"status":"bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestBulkDelete(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	a := createRecord(t, r, stableBody)

	body := fmt.Sprintf(`{"ids":[%q,"bogus"]}`, a)
	rec := doJSON(t, r, http.MethodPost, "/api/v1/records/bulk/delete", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Succeeded []string          `json:"succeeded"`
		Errors    map[string]string `json:"errors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Succeeded) != 1 || resp.Succeeded[0] != a {
		t.Errorf("succeeded = %v, want [%s]", resp.Succeeded, a)
	}
	if len(resp.Errors) != 1 {
		t.Errorf("errors = %v, want 1 entry", resp.Errors)
	}
}

// Export / import

func TestExportImportRoundTrip(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	id := createRecord(t, r, stableBody)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/records/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d, want %d", rec.Code, http.StatusOK)
	}
	var env records.Envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Version != records.EnvelopeVersion {
		t.Errorf("version = %q, want %q", env.Version, records.EnvelopeVersion)
	}
	if len(env.Records) != 1 {
		t.Fatalf("exported %d records, want 1", len(env.Records))
	}

	// Delete locally, then import the envelope back.
	if rec := doJSON(t, r, http.MethodDelete, "/api/v1/records/"+id, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}

	envJSON, _ := json.Marshal(&env)
	rec = doJSON(t, r, http.MethodPost, "/api/v1/records/import", string(envJSON))
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		BatchID  string            `json:"batchId"`
		Imported []string          `json:"imported"`
		Errors   map[string]string `json:"errors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode import result: %v", err)
	}
	if resp.BatchID == "" {
		t.Error("import result missing batch id")
	}
	if len(resp.Imported) != 1 || resp.Imported[0] != id {
		t.Fatalf("imported = %v, want [%s]", resp.Imported, id)
	}

	if rec := doJSON(t, r, http.MethodGet, "/api/v1/records/"+id, ""); rec.Code != http.StatusOK {
		t.Errorf("get after import = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestExportSelected(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	a := createRecord(t, r, stableBody)
	_ = createRecord(t, r, stableBody)

	body := fmt.Sprintf(`{"ids":[%q,"gone"]}`, a)
	rec := doJSON(t, r, http.MethodPost, "/api/v1/records/export", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var env records.Envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if len(env.Records) != 1 || env.Records[0].ID != a {
		t.Errorf("records = %d, want only %s", len(env.Records), a)
	}
}

func TestStorageStats(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	_ = createRecord(t, r, stableBody)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/storage/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var stats records.StorageStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("total = %d, want 1", stats.Total)
	}
	if !stats.Approximate {
		t.Error("stats must be flagged approximate")
	}
}

// Triage endpoints

func TestTriageRules(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/api/v1/triage/rules", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Rules []struct {
			ID    string `json:"id"`
			Level string `json:"level"`
		} `json:"rules"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Rules) != 5 {
		t.Fatalf("rules = %d, want 5", len(resp.Rules))
	}
	if resp.Rules[0].ID != "walking_wounded" {
		t.Errorf("first rule = %q, want walking_wounded", resp.Rules[0].ID)
	}
}

func TestTriagePreview(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)

	body := `{"ageGroup":"adult","vitals":{"breathing":"absent"}}`
	rec := doJSON(t, r, http.MethodPost, "/api/v1/triage/preview", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Assessment struct {
			Priority patient.Priority `json:"priority"`
		} `json:"assessment"`
		Validation struct {
			Errors []string `json:"errors"`
		} `json:"validation"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Assessment.Priority.Level != patient.LevelBlack {
		t.Errorf("preview level = %q, want black", resp.Assessment.Priority.Level)
	}
	if len(resp.Validation.Errors) == 0 {
		t.Error("expected validation errors for missing consciousness/circulation")
	}
}

func TestTriageValidate(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)

	body := `{"ageGroup":"adult","vitals":{"breathing":"normal","circulation":"normal","consciousness":"alert"}}`
	rec := doJSON(t, r, http.MethodPost, "/api/v1/triage/validate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var rep struct {
		Errors   []string `json:"errors"`
		Warnings []string `json:"warnings"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rep.Errors) != 0 {
		t.Errorf("errors = %v, want none", rep.Errors)
	}
	if len(rep.Warnings) == 0 {
		t.Error("expected warnings for unmeasured pulse/respiratory rate")
	}
}

// Assist

type stubAnalyzer struct {
	sug *assist.Suggestion
	err error
}

func (s *stubAnalyzer) Analyze(context.Context, string) (*assist.Suggestion, error) {
	return s.sug, s.err
}

func TestAssist_Unconfigured(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/v1/assist", `{"text":"patient walking, alert"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestAssist_Configured(t *testing.T) {
	t.Parallel()

	amb := patient.MobilityAmbulatory
	api := New(nil, newTestService(t), &stubAnalyzer{sug: &assist.Suggestion{Mobility: &amb}})
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/assist", `{"text":"patient walking, alert"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Suggestion assist.Suggestion `json:"suggestion"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Suggestion.Mobility == nil || *resp.Suggestion.Mobility != patient.MobilityAmbulatory {
		t.Errorf("suggestion mobility = %v, want ambulatory", resp.Suggestion.Mobility)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/assist", `{"text":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty text = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// Fuzz

func FuzzCreateRecord(f *testing.F) {
	sealer, err := seal.New(bytes.Repeat([]byte{0x42}, seal.KeySize))
	if err != nil {
		f.Fatalf("seal.New: %v", err)
	}
	svc := records.NewService(memstore.New(), sealer, nil, nil)
	api := New(nil, svc, nil)
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	seeds := []string{
		"",
		"{}",
		stableBody,
		`{"vitals":{"pulse":"not a number"}}`,
		`{invalid json`,
		`{"vitals":{"breathing":"absent"},"injuries":null}`,
		"\x00\x01\x02\xff\xfe",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, body string) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		// Must not panic
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated && rec.Code != http.StatusBadRequest {
			t.Errorf("POST /api/v1/records with body len=%d = %d, want 201 or 400", len(body), rec.Code)
		}
	})
}
