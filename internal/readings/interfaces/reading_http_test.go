package interfaces

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"utility-billing/internal/audit"
	"utility-billing/internal/auth"
	portfoliomem "utility-billing/internal/portfolio/infrastructure/memory"
	readingsapp "utility-billing/internal/readings/application"
	readings "utility-billing/internal/readings/domain"
	readingmem "utility-billing/internal/readings/infrastructure/memory"
	"utility-billing/internal/readings/validation"
)

type readingFixture struct {
	handler  http.Handler
	recorder *audit.Recorder
}

func newReadingFixture(t *testing.T) readingFixture {
	t.Helper()
	store := readingmem.NewReadingStore()
	directory := portfoliomem.NewDirectory()
	directory.PutMeter(readings.Meter{ID: "m-1", PropertyID: "p-1", ProviderID: "grid", ServiceType: readings.ServiceElectricity})

	batch, err := validation.NewBatchValidator(validation.NewValidator(validation.DefaultConfig()), store, validation.WithHistorySource(store))
	if err != nil {
		t.Fatalf("batch validator: %v", err)
	}
	intake, err := readingsapp.NewValidationService(store, directory, batch)
	if err != nil {
		t.Fatalf("validation service: %v", err)
	}
	recorder := audit.NewRecorder()
	corrector, err := readingsapp.NewCorrectionService(store, recorder, nil, nil)
	if err != nil {
		t.Fatalf("correction service: %v", err)
	}
	h, err := NewReadingHandler(intake, corrector, store, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	wrapped := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), auth.RoleOperator, "clerk-1")))
	})
	return readingFixture{handler: wrapped, recorder: recorder}
}

func (f readingFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, httptest.NewRequest(method, path, &buf))
	return resp
}

func TestReadingHTTPFlow(t *testing.T) {
	f := newReadingFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/readings", map[string]string{
		"meter_id": "m-1", "reading_date": "2026-02-01", "value": "1100",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("record: expected 201, got %d (%s)", resp.Code, resp.Body.String())
	}
	var created readingResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != "pending" || created.EnteredBy != "clerk-1" || created.InputMethod != "manual" {
		t.Fatalf("unexpected reading %+v", created)
	}

	resp = f.do(t, http.MethodPost, "/api/v1/readings/validate", map[string]any{"reading_ids": []string{created.ID}})
	if resp.Code != http.StatusOK {
		t.Fatalf("validate: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	var verdict struct {
		Results []resultResponse `json:"results"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &verdict); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(verdict.Results) != 1 || verdict.Results[0].Outcome != string(validation.OutcomeFlagged) {
		t.Fatalf("expected flagged first reading, got %+v", verdict.Results)
	}

	resp = f.do(t, http.MethodPost, "/api/v1/readings/validate", map[string]any{"reading_ids": []string{created.ID}})
	if resp.Code != http.StatusConflict {
		t.Fatalf("revalidate: expected 409, got %d", resp.Code)
	}

	resp = f.do(t, http.MethodPost, "/api/v1/readings/"+created.ID+"/corrections", map[string]string{"value": "1110", "reason": "misread digit"})
	if resp.Code != http.StatusOK {
		t.Fatalf("correct: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	var corrected readingResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &corrected); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if corrected.Status != "pending" || len(corrected.Corrections) != 1 || corrected.Corrections[0].Actor != "clerk-1" {
		t.Fatalf("unexpected corrected reading %+v", corrected)
	}
	if entries := f.recorder.Entries(); len(entries) != 1 || entries[0].Action != audit.ActionReadingCorrect {
		t.Fatalf("unexpected audit entries %+v", entries)
	}

	resp = f.do(t, http.MethodGet, "/api/v1/readings/"+created.ID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.Code)
	}
}

func TestReadingHTTPErrors(t *testing.T) {
	f := newReadingFixture(t)
	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown meter", http.MethodPost, "/api/v1/readings", map[string]string{"meter_id": "ghost", "reading_date": "2026-02-01", "value": "5"}, http.StatusUnprocessableEntity},
		{"non numeric value", http.MethodPost, "/api/v1/readings", map[string]string{"meter_id": "m-1", "reading_date": "2026-02-01", "value": "abc"}, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/v1/readings", map[string]string{"meter_id": "m-1", "reading_date": "01/02/2026", "value": "5"}, http.StatusBadRequest},
		{"negative value", http.MethodPost, "/api/v1/readings", map[string]string{"meter_id": "m-1", "reading_date": "2026-02-01", "value": "-5"}, http.StatusBadRequest},
		{"empty batch", http.MethodPost, "/api/v1/readings/validate", map[string]any{"reading_ids": []string{}}, http.StatusBadRequest},
		{"missing reading", http.MethodGet, "/api/v1/readings/nope", nil, http.StatusNotFound},
		{"missing reason", http.MethodPost, "/api/v1/readings/nope/corrections", map[string]string{"value": "5"}, http.StatusBadRequest},
		{"correct missing", http.MethodPost, "/api/v1/readings/nope/corrections", map[string]string{"value": "5", "reason": "x"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if resp := f.do(t, tc.method, tc.path, tc.body); resp.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, resp.Code, resp.Body.String())
			}
		})
	}
}
