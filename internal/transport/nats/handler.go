package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"spendguard/internal/model"
	"spendguard/internal/service"
)

// TopicBilledEvents is the ingest topic for deployments that deliver
// billed events over the bus instead of (or alongside) the HTTP webhook.
const TopicBilledEvents = "billing.events"

// Handler queue-subscribes to the billed-events topic and delegates to the
// spending service. Redelivery is safe: the ledger's idempotency key
// deduplicates, so at-least-once semantics cost nothing here.
type Handler struct {
	svc  service.SpendingService
	nc   *nats.Conn
	subs []*nats.Subscription
}

func NewHandler(svc service.SpendingService, nc *nats.Conn) *Handler {
	return &Handler{svc: svc, nc: nc}
}

// Start subscribes and blocks until ctx is cancelled (graceful shutdown).
func (h *Handler) Start(ctx context.Context) error {
	sub, err := h.nc.QueueSubscribe(TopicBilledEvents, "spendguard_ingest", func(m *nats.Msg) {
		var ev model.WebhookEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			slog.Error("nats: failed to unmarshal billed event", "error", err)
			return
		}
		res, err := h.svc.ProcessEvent(ctx, ev)
		if err != nil {
			slog.Error("nats: event processing failed", "request_id", ev.RequestID, "error", err)
			return
		}
		if res.AlertSent {
			slog.Info("nats: ingest fired hourly alert", "hour_start", res.HourStart)
		}
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, sub)

	slog.Info("NATS ingest handler is running")

	// Block until context is cancelled.
	<-ctx.Done()
	slog.Info("NATS ingest handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}
