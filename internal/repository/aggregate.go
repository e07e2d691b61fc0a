package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"spendguard/internal/model"
)

// AggregateRepo maintains the materialized per-hour aggregate. Postgres
// holds the durable row, Redis the hot copy. The aggregate is never
// authoritative: every refresh recomputes it from the ledger, so duplicate
// deliveries that the ledger ignored can never inflate the total.
type AggregateRepo struct {
	db          *pgxpool.Pool
	redisClient *redis.Client
}

func NewAggregateRepo(db *pgxpool.Pool, rdb *redis.Client) *AggregateRepo {
	return &AggregateRepo{db: db, redisClient: rdb}
}

// Refresh recomputes total and count for the bucket's half-open hour from
// the ledger, upserts the hour_aggregates row and rewrites the cache.
// A concurrent insert landing between the read and the write leaves the
// row stale by one event; the next refresh of that bucket repairs it.
func (r *AggregateRepo) Refresh(ctx context.Context, hour time.Time) (model.HourAggregate, error) {
	hour = model.HourBucket(hour)
	hourEnd := hour.Add(time.Hour)

	query := `
		SELECT COALESCE(SUM(cost_micros), 0), COUNT(*)
		FROM billed_events
		WHERE occurred_at >= $1 AND occurred_at < $2`

	agg := model.HourAggregate{HourStart: hour}
	if err := r.db.QueryRow(ctx, query, hour, hourEnd).Scan(&agg.TotalCostMicros, &agg.RequestCount); err != nil {
		return model.HourAggregate{}, fmt.Errorf("recompute hour aggregate: %w", err)
	}

	upsert := `
		INSERT INTO hour_aggregates (hour_start, total_cost_micros, request_count, last_updated)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (hour_start) DO UPDATE
		SET total_cost_micros = EXCLUDED.total_cost_micros,
		    request_count     = EXCLUDED.request_count,
		    last_updated      = EXCLUDED.last_updated
		RETURNING last_updated`

	if err := r.db.QueryRow(ctx, upsert, hour, agg.TotalCostMicros, agg.RequestCount).Scan(&agg.LastUpdated); err != nil {
		return model.HourAggregate{}, fmt.Errorf("upsert hour aggregate: %w", err)
	}

	// Cache write failure is not a storage failure: Postgres already holds
	// the fresh row and Get falls back to it.
	_ = r.cacheSet(ctx, agg)
	return agg, nil
}

// Get returns the cached aggregate without recomputing. On a Redis miss it
// falls back to Postgres and warms the cache. Returns ErrAggregateNotFound
// for buckets no event has ever touched.
func (r *AggregateRepo) Get(ctx context.Context, hour time.Time) (model.HourAggregate, error) {
	hour = model.HourBucket(hour)

	data, err := r.redisClient.Get(ctx, cacheKey(hour)).Bytes()
	if err == nil {
		var agg model.HourAggregate
		if jsonErr := json.Unmarshal(data, &agg); jsonErr == nil {
			return agg, nil
		}
		// Corrupt cache entry: fall through to Postgres and overwrite it.
	} else if !errors.Is(err, redis.Nil) {
		return model.HourAggregate{}, fmt.Errorf("read aggregate cache: %w", err)
	}

	query := `
		SELECT hour_start, total_cost_micros, request_count, last_updated
		FROM hour_aggregates
		WHERE hour_start = $1`

	var agg model.HourAggregate
	err = r.db.QueryRow(ctx, query, hour).Scan(&agg.HourStart, &agg.TotalCostMicros, &agg.RequestCount, &agg.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.HourAggregate{}, ErrAggregateNotFound
	}
	if err != nil {
		return model.HourAggregate{}, fmt.Errorf("read hour aggregate: %w", err)
	}

	_ = r.cacheSet(ctx, agg)
	return agg, nil
}

func (r *AggregateRepo) cacheSet(ctx context.Context, agg model.HourAggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return err
	}
	// Buckets stop changing shortly after the hour elapses; two hours of
	// TTL covers late deliveries without growing the keyspace forever.
	return r.redisClient.Set(ctx, cacheKey(agg.HourStart), data, 2*time.Hour).Err()
}

func cacheKey(hour time.Time) string {
	return "houragg:" + hour.UTC().Format("2006-01-02T15")
}
