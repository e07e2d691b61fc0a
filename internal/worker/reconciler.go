package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"spendguard/internal/model"
	"spendguard/internal/service"
)

// AggregateReconciler listens for recorded spend events and re-runs the
// aggregate refresh for each bucket it sees. The inline refresh during
// ingest can read a total that a concurrent insert immediately makes
// stale; because refresh is a full recompute from the ledger, this second
// pass is idempotent and closes that window across instances.
type AggregateReconciler struct {
	svc      service.SpendingService
	natsConn *nats.Conn
}

func NewAggregateReconciler(svc service.SpendingService, nc *nats.Conn) *AggregateReconciler {
	return &AggregateReconciler{
		svc:      svc,
		natsConn: nc,
	}
}

// Run subscribes to the recorded-events topic and blocks until ctx is
// cancelled.
func (w *AggregateReconciler) Run(ctx context.Context) error {
	// QueueSubscribe: with several instances running, each recorded event
	// is reconciled by exactly one member of the group.
	sub, err := w.natsConn.QueueSubscribe(service.TopicRecorded, "reconcile_group", func(m *nats.Msg) {
		var event model.RecordedEvent
		if err := json.Unmarshal(m.Data, &event); err != nil {
			slog.Error("reconciler: failed to unmarshal recorded event", "error", err)
			return
		}

		agg, err := w.svc.RefreshAggregate(ctx, event.HourStart)
		if err != nil {
			slog.Error("reconciler: aggregate refresh failed",
				"hour_start", event.HourStart,
				"key", event.IdempotencyKey,
				"error", err,
			)
			return
		}

		slog.Debug("reconciler: bucket refreshed",
			"hour_start", agg.HourStart,
			"total", agg.TotalCostMicros,
			"count", agg.RequestCount,
		)
	})

	if err != nil {
		return fmt.Errorf("reconciler: failed to subscribe to NATS: %w", err)
	}

	slog.Info("Aggregate reconciler is running")

	// Wait for shutdown signal.
	<-ctx.Done()

	slog.Info("Reconciler received shutdown signal, draining subscription...")
	return sub.Drain()
}

// Start implements the infrastructure.Server interface.
func (w *AggregateReconciler) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is via ctx).
func (w *AggregateReconciler) Stop(ctx context.Context) error {
	return nil
}
