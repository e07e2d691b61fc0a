package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spendguard/internal/model"
	"spendguard/internal/repository"
)

type mockService struct {
	result      model.IngestResult
	processErr  error
	summary     model.SpendingSummary
	summaryErr  error
	currentHour *model.HourAggregate
	gotEvent    model.WebhookEvent
	gotHours    int
}

func (m *mockService) ProcessEvent(_ context.Context, ev model.WebhookEvent) (model.IngestResult, error) {
	m.gotEvent = ev
	return m.result, m.processErr
}

func (m *mockService) Summary(_ context.Context, hours int) (model.SpendingSummary, error) {
	m.gotHours = hours
	return m.summary, m.summaryErr
}

func (m *mockService) CurrentHour(_ context.Context) (model.HourAggregate, error) {
	if m.currentHour == nil {
		return model.HourAggregate{}, repository.ErrAggregateNotFound
	}
	return *m.currentHour, nil
}

func (m *mockService) RefreshAggregate(_ context.Context, hour time.Time) (model.HourAggregate, error) {
	return model.HourAggregate{}, nil
}

func (m *mockService) LimitMicros() int64 { return 10_000_000 }

func newTestMux(svc *mockService, secret string, insecure bool) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(svc, secret, insecure).Register(mux)
	return mux
}

func postWebhook(mux *http.ServeMux, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestWebhook_ValidSignature(t *testing.T) {
	svc := &mockService{result: model.IngestResult{
		HourStart:       time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC),
		TotalCostMicros: 2_500_000,
		RequestCount:    1,
	}}
	mux := newTestMux(svc, "secret", false)

	body, _ := json.Marshal(model.WebhookEvent{
		RequestID: "req-1",
		Metadata:  model.WebhookMetadata{Cost: 2.50},
	})

	w := postWebhook(mux, body, sign(body, "secret"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}

	var res model.IngestResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if res.TotalCostMicros != 2_500_000 || res.RequestCount != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if svc.gotEvent.RequestID != "req-1" {
		t.Errorf("service got %+v", svc.gotEvent)
	}
}

func TestWebhook_InvalidSignature(t *testing.T) {
	svc := &mockService{}
	mux := newTestMux(svc, "secret", false)

	body := []byte(`{"request_id":"req-1","metadata":{"cost":1}}`)

	w := postWebhook(mux, body, sign(body, "wrong"))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if svc.gotEvent.RequestID != "" {
		t.Error("service must not be called on bad signature")
	}

	w = postWebhook(mux, body, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing signature: status = %d, want 401", w.Code)
	}
}

func TestWebhook_InsecureModeSkipsVerification(t *testing.T) {
	svc := &mockService{}
	mux := newTestMux(svc, "", true)

	body := []byte(`{"request_id":"req-1","metadata":{"cost":1}}`)
	w := postWebhook(mux, body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 in insecure mode", w.Code)
	}
}

func TestWebhook_InvalidJSON(t *testing.T) {
	svc := &mockService{}
	mux := newTestMux(svc, "secret", false)

	body := []byte(`{not json`)
	w := postWebhook(mux, body, sign(body, "secret"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWebhook_InvalidEvent(t *testing.T) {
	svc := &mockService{processErr: fmt.Errorf("%w: negative cost", repository.ErrInvalidEvent)}
	mux := newTestMux(svc, "secret", false)

	body := []byte(`{"request_id":"req-1","metadata":{"cost":-0.01}}`)
	w := postWebhook(mux, body, sign(body, "secret"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWebhook_ProcessingFailure(t *testing.T) {
	svc := &mockService{processErr: errors.New("db down")}
	mux := newTestMux(svc, "secret", false)

	body := []byte(`{"request_id":"req-1","metadata":{"cost":1}}`)
	w := postWebhook(mux, body, sign(body, "secret"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	svc := &mockService{
		summary: model.SpendingSummary{TotalRequests: 7, TotalCostMicros: 3_500_000, HoursAnalyzed: 24},
		currentHour: &model.HourAggregate{
			HourStart:       time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC),
			TotalCostMicros: 1_000_000,
			RequestCount:    2,
		},
	}
	mux := newTestMux(svc, "secret", false)

	req := httptest.NewRequest(http.MethodGet, "/spending-summary", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if svc.gotHours != 24 {
		t.Errorf("default hours = %d, want 24", svc.gotHours)
	}

	var res struct {
		Status      string                `json:"status"`
		Data        model.SpendingSummary `json:"data"`
		HourlyLimit string                `json:"hourly_limit"`
		CurrentHour *model.HourAggregate  `json:"current_hour"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if res.Status != "success" || res.Data.TotalRequests != 7 {
		t.Errorf("unexpected response %+v", res)
	}
	if res.HourlyLimit != "$10.0000" {
		t.Errorf("hourly_limit = %q", res.HourlyLimit)
	}
	if res.CurrentHour == nil || res.CurrentHour.RequestCount != 2 {
		t.Errorf("current_hour = %+v", res.CurrentHour)
	}

	// An untouched current hour is simply omitted.
	svc.currentHour = nil
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/spending-summary", nil))
	var bare map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &bare); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if _, ok := bare["current_hour"]; ok {
		t.Error("current_hour should be omitted when absent")
	}
}

func TestSummaryEndpoint_HoursParam(t *testing.T) {
	svc := &mockService{}
	mux := newTestMux(svc, "secret", false)

	req := httptest.NewRequest(http.MethodGet, "/spending-summary?hours=48", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK || svc.gotHours != 48 {
		t.Errorf("hours=48: status %d, got %d", w.Code, svc.gotHours)
	}

	// Clamped to one week.
	req = httptest.NewRequest(http.MethodGet, "/spending-summary?hours=9999", nil)
	mux.ServeHTTP(httptest.NewRecorder(), req)
	if svc.gotHours != 168 {
		t.Errorf("hours=9999 clamped to %d, want 168", svc.gotHours)
	}

	req = httptest.NewRequest(http.MethodGet, "/spending-summary?hours=0", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("hours=0: status = %d, want 400", w.Code)
	}
}

func TestHealth(t *testing.T) {
	mux := newTestMux(&mockService{}, "secret", false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var res map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if res["status"] != "healthy" {
		t.Errorf("status field = %v", res["status"])
	}
}

func TestRoot(t *testing.T) {
	mux := newTestMux(&mockService{}, "secret", false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var res struct {
		Service     string            `json:"service"`
		HourlyLimit string            `json:"hourly_limit"`
		Endpoints   map[string]string `json:"endpoints"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if res.Service != "spendguard" {
		t.Errorf("service = %q", res.Service)
	}
	if res.Endpoints["webhook"] != "/webhook" {
		t.Errorf("endpoints = %v", res.Endpoints)
	}
}
