package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"spendguard/internal/model"
)

var (
	ErrInvalidEvent      = errors.New("invalid billed event")
	ErrAggregateNotFound = errors.New("hour aggregate not found")
)

// RecordOutcome reports whether a ledger insert created a new row or hit
// an already-recorded idempotency key.
type RecordOutcome int

const (
	OutcomeInserted RecordOutcome = iota
	OutcomeAlreadyPresent
)

// LedgerRepo is the append-only record of billed events in Postgres.
// The table's unique constraint on idempotency_key is what makes retried
// webhook deliveries safe.
type LedgerRepo struct {
	db *pgxpool.Pool
}

func NewLedgerRepo(db *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// Record inserts the event if its idempotency key is unseen. Concurrent
// calls with the same key resolve at the unique index: exactly one gets
// OutcomeInserted, the rest OutcomeAlreadyPresent.
func (r *LedgerRepo) Record(ctx context.Context, ev model.BilledEvent) (RecordOutcome, error) {
	if ev.CostMicros < 0 {
		return 0, fmt.Errorf("%w: negative cost", ErrInvalidEvent)
	}

	query := `
		INSERT INTO billed_events (idempotency_key, occurred_at, cost_micros, model, provider, user_id, token_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING`

	tag, err := r.db.Exec(ctx, query,
		ev.IdempotencyKey,
		ev.OccurredAt,
		ev.CostMicros,
		nullIfEmpty(ev.Model),
		nullIfEmpty(ev.Provider),
		nullIfEmpty(ev.UserID),
		ev.TokenCount,
	)
	if err != nil {
		return 0, fmt.Errorf("insert billed event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return OutcomeAlreadyPresent, nil
	}
	return OutcomeInserted, nil
}

// SumAndCount totals cost and counts events in the half-open interval
// [start, end).
func (r *LedgerRepo) SumAndCount(ctx context.Context, start, end time.Time) (int64, int64, error) {
	query := `
		SELECT COALESCE(SUM(cost_micros), 0), COUNT(*)
		FROM billed_events
		WHERE occurred_at >= $1 AND occurred_at < $2`

	var total, count int64
	if err := r.db.QueryRow(ctx, query, start, end).Scan(&total, &count); err != nil {
		return 0, 0, fmt.Errorf("sum billed events: %w", err)
	}
	return total, count, nil
}

// EventsInRange returns the raw events in [start, end), oldest first.
func (r *LedgerRepo) EventsInRange(ctx context.Context, start, end time.Time) ([]model.BilledEvent, error) {
	query := `
		SELECT idempotency_key, occurred_at, cost_micros,
		       COALESCE(model, ''), COALESCE(provider, ''), COALESCE(user_id, ''),
		       COALESCE(token_count, 0)
		FROM billed_events
		WHERE occurred_at >= $1 AND occurred_at < $2
		ORDER BY occurred_at`

	rows, err := r.db.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query billed events: %w", err)
	}
	defer rows.Close()

	var events []model.BilledEvent
	for rows.Next() {
		var ev model.BilledEvent
		if err := rows.Scan(&ev.IdempotencyKey, &ev.OccurredAt, &ev.CostMicros,
			&ev.Model, &ev.Provider, &ev.UserID, &ev.TokenCount); err != nil {
			return nil, fmt.Errorf("scan billed event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Summary reports totals over the trailing window for the reporting
// endpoint.
func (r *LedgerRepo) Summary(ctx context.Context, since time.Time, hours int) (model.SpendingSummary, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(cost_micros), 0),
		       COALESCE(AVG(cost_micros), 0)::bigint,
		       MIN(occurred_at),
		       MAX(occurred_at)
		FROM billed_events
		WHERE occurred_at >= $1`

	var s model.SpendingSummary
	var first, last *time.Time
	if err := r.db.QueryRow(ctx, query, since).Scan(
		&s.TotalRequests, &s.TotalCostMicros, &s.AvgCostMicros, &first, &last,
	); err != nil {
		return model.SpendingSummary{}, fmt.Errorf("spending summary: %w", err)
	}
	s.FirstRequest = first
	s.LastRequest = last
	s.HoursAnalyzed = hours
	return s, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
