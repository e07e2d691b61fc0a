package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"spendguard/internal/metrics"
	"spendguard/internal/model"
	"spendguard/internal/repository"
)

const (
	TopicRecorded   = "spending.recorded"
	TopicAlertFired = "spending.alert_fired"
)

// SpendingService is the business surface all transports depend on,
// never the concrete engine.
type SpendingService interface {
	ProcessEvent(ctx context.Context, ev model.WebhookEvent) (model.IngestResult, error)
	Summary(ctx context.Context, hours int) (model.SpendingSummary, error)
	CurrentHour(ctx context.Context) (model.HourAggregate, error)
	RefreshAggregate(ctx context.Context, hour time.Time) (model.HourAggregate, error)
	LimitMicros() int64
}

// Storage contracts the engine orchestrates. The repository types satisfy
// them; tests substitute mocks.
type Ledger interface {
	Record(ctx context.Context, ev model.BilledEvent) (repository.RecordOutcome, error)
	Summary(ctx context.Context, since time.Time, hours int) (model.SpendingSummary, error)
}

type Aggregator interface {
	Refresh(ctx context.Context, hour time.Time) (model.HourAggregate, error)
	Get(ctx context.Context, hour time.Time) (model.HourAggregate, error)
}

type Deduplicator interface {
	TryClaim(ctx context.Context, hour time.Time, alertType string) (bool, error)
	Finalize(ctx context.Context, hour time.Time, alertType string, totalSpendMicros, overageMicros int64) error
}

type AlertDispatcher interface {
	Dispatch(ctx context.Context, payload model.AlertPayload) map[string]bool
}

// Engine processes one billed event end to end: validate, record in the
// ledger, refresh the hour aggregate, and fire the limit alert exactly
// once per hour bucket. Safe for concurrent use; all cross-instance races
// resolve at the storage layer's unique constraints.
type Engine struct {
	ledger      Ledger
	aggregator  Aggregator
	alerts      Deduplicator
	notifier    AlertDispatcher
	bus         repository.MessageBus
	limitMicros int64
	now         func() time.Time
}

func NewEngine(ledger Ledger, aggregator Aggregator, alerts Deduplicator, notifier AlertDispatcher, bus repository.MessageBus, limitMicros int64) *Engine {
	return &Engine{
		ledger:      ledger,
		aggregator:  aggregator,
		alerts:      alerts,
		notifier:    notifier,
		bus:         bus,
		limitMicros: limitMicros,
		now:         time.Now,
	}
}

func (e *Engine) LimitMicros() int64 { return e.limitMicros }

// ProcessEvent drives one event through the state machine. Buckets by
// ingest time, not the payload's own timestamp, so caller clock skew
// cannot scatter one burst across buckets. Storage failures abort and
// surface (the upstream retries; the idempotency key makes that safe),
// notifier failures never do.
func (e *Engine) ProcessEvent(ctx context.Context, we model.WebhookEvent) (model.IngestResult, error) {
	timer := time.Now()
	defer func() {
		metrics.ProcessingDuration.Observe(time.Since(timer).Seconds())
	}()

	costMicros := model.MicrosFromDollars(we.Metadata.Cost)
	if costMicros < 0 {
		return model.IngestResult{}, fmt.Errorf("%w: negative cost", repository.ErrInvalidEvent)
	}
	if we.RequestID == "" {
		return model.IngestResult{}, fmt.Errorf("%w: missing request_id", repository.ErrInvalidEvent)
	}

	// Zero-cost deliveries are informational, not billable: accepted at
	// the boundary, never written to the ledger.
	if costMicros == 0 {
		metrics.SkippedEvents.Inc()
		slog.Info("zero-cost event skipped", "request_id", we.RequestID)
		return model.IngestResult{Skipped: true}, nil
	}

	now := e.now()
	hour := model.HourBucket(now)

	outcome, err := e.ledger.Record(ctx, model.BilledEvent{
		IdempotencyKey: we.RequestID,
		OccurredAt:     now,
		CostMicros:     costMicros,
		Model:          we.Model,
		Provider:       we.Provider,
		UserID:         we.UserID,
		TokenCount:     we.Metadata.TotalTokens,
	})
	if err != nil {
		return model.IngestResult{}, fmt.Errorf("record event: %w", err)
	}

	duplicate := outcome == repository.OutcomeAlreadyPresent
	if duplicate {
		metrics.DuplicateEvents.Inc()
		slog.Info("duplicate delivery ignored", "request_id", we.RequestID)
	} else {
		metrics.EventsIngested.Inc()
		e.publish(TopicRecorded, model.RecordedEvent{
			IdempotencyKey: we.RequestID,
			HourStart:      hour,
			CostMicros:     costMicros,
			CreatedAt:      now,
		})
	}

	// Recompute, never increment: a duplicate that the ledger ignored
	// must not move the total. Runs even for duplicates so a retried
	// delivery still answers with the current total.
	agg, err := e.aggregator.Refresh(ctx, hour)
	if err != nil {
		return model.IngestResult{}, fmt.Errorf("refresh aggregate: %w", err)
	}

	res := model.IngestResult{
		HourStart:       hour,
		TotalCostMicros: agg.TotalCostMicros,
		RequestCount:    agg.RequestCount,
		Duplicate:       duplicate,
	}

	if agg.TotalCostMicros > e.limitMicros {
		sent, err := e.fireAlert(ctx, hour, agg)
		if err != nil {
			return model.IngestResult{}, err
		}
		res.AlertSent = sent
	}

	return res, nil
}

// fireAlert attempts the once-per-bucket claim and, if this caller won,
// dispatches and finalizes. Losing the claim race is the normal case for
// every event after the threshold crossing.
func (e *Engine) fireAlert(ctx context.Context, hour time.Time, agg model.HourAggregate) (bool, error) {
	claimed, err := e.alerts.TryClaim(ctx, hour, model.AlertTypeHourlyLimitExceeded)
	if err != nil {
		return false, fmt.Errorf("claim alert: %w", err)
	}
	if !claimed {
		return false, nil
	}

	payload := model.AlertPayload{
		HourStart:        hour,
		TotalSpendMicros: agg.TotalCostMicros,
		LimitMicros:      e.limitMicros,
		OverageMicros:    agg.TotalCostMicros - e.limitMicros,
		RequestCount:     agg.RequestCount,
	}

	slog.Warn("hourly spending limit exceeded",
		"hour_start", hour,
		"total_spend", model.FormatDollars(payload.TotalSpendMicros),
		"limit", model.FormatDollars(payload.LimitMicros),
		"overage", model.FormatDollars(payload.OverageMicros),
		"request_count", payload.RequestCount,
	)

	results := e.notifier.Dispatch(ctx, payload)
	slog.Info("alert dispatched", "hour_start", hour, "results", results)

	// Finalized whether or not any channel succeeded: the claim row is
	// the dedup guarantee, a failed delivery must not reopen it.
	if err := e.alerts.Finalize(ctx, hour, model.AlertTypeHourlyLimitExceeded, payload.TotalSpendMicros, payload.OverageMicros); err != nil {
		return false, err
	}

	metrics.AlertsFired.Inc()
	e.publish(TopicAlertFired, payload)
	return true, nil
}

// Summary reports totals over the trailing N hours.
func (e *Engine) Summary(ctx context.Context, hours int) (model.SpendingSummary, error) {
	since := e.now().Add(-time.Duration(hours) * time.Hour)
	return e.ledger.Summary(ctx, since, hours)
}

// CurrentHour reads the materialized aggregate for the in-progress bucket
// without recomputing. Returns ErrAggregateNotFound when the hour has no
// spend yet.
func (e *Engine) CurrentHour(ctx context.Context) (model.HourAggregate, error) {
	return e.aggregator.Get(ctx, model.HourBucket(e.now()))
}

// RefreshAggregate recomputes one bucket; used by the reconcile worker.
func (e *Engine) RefreshAggregate(ctx context.Context, hour time.Time) (model.HourAggregate, error) {
	return e.aggregator.Refresh(ctx, hour)
}

func (e *Engine) publish(topic string, v any) {
	if e.bus == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := e.bus.Publish(topic, data); err != nil {
		slog.Warn("bus publish failed", "topic", topic, "error", err)
	}
}
