package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spendguard/internal/model"
	"spendguard/internal/repository"
	"spendguard/internal/service"
)

const serviceVersion = "1.0.0"

type Handler struct {
	svc      service.SpendingService
	secret   string
	insecure bool
}

func NewHandler(svc service.SpendingService, secret string, insecure bool) *Handler {
	return &Handler{svc: svc, secret: secret, insecure: insecure}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook", h.Webhook)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /spending-summary", h.Summary)
	mux.HandleFunc("GET /{$}", h.Root)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Webhook ingests one billed event from the upstream platform. The body
// is read raw first because the signature covers the exact bytes sent.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "unreadable_body")
		return
	}

	if !h.insecure {
		if !VerifySignature(body, r.Header.Get(SignatureHeader), h.secret) {
			slog.Warn("webhook rejected: invalid signature")
			h.respondError(w, http.StatusUnauthorized, "invalid_signature")
			return
		}
	}

	var ev model.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	res, err := h.svc.ProcessEvent(r.Context(), ev)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidEvent) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("webhook processing failed", "request_id", ev.RequestID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "processing_failed")
		return
	}

	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Summary reports spending over the last N hours (default 24, capped at
// one week).
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "invalid_hours")
			return
		}
		hours = min(n, 168)
	}

	summary, err := h.svc.Summary(r.Context(), hours)
	if err != nil {
		slog.Error("spending summary failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "summary_failed")
		return
	}

	resp := map[string]any{
		"status":              "success",
		"data":                summary,
		"hourly_limit_micros": h.svc.LimitMicros(),
		"hourly_limit":        model.FormatDollars(h.svc.LimitMicros()),
	}

	// Cached read, no recompute; absent simply means no spend this hour.
	if agg, err := h.svc.CurrentHour(r.Context()); err == nil {
		resp["current_hour"] = agg
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"service":      "spendguard",
		"version":      serviceVersion,
		"status":       "running",
		"hourly_limit": model.FormatDollars(h.svc.LimitMicros()),
		"endpoints": map[string]string{
			"webhook":          "/webhook",
			"health":           "/health",
			"spending_summary": "/spending-summary",
			"metrics":          "/metrics",
		},
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
