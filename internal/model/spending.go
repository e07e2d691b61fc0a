package model

import "time"

const AlertTypeHourlyLimitExceeded = "hourly_limit_exceeded"

// BilledEvent is one reported unit of cost, stored exactly once per
// idempotency key regardless of how many times the upstream delivers it.
type BilledEvent struct {
	IdempotencyKey string    `json:"idempotency_key"`
	OccurredAt     time.Time `json:"occurred_at"`
	CostMicros     int64     `json:"cost_micros"`
	Model          string    `json:"model,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	TokenCount     int64     `json:"token_count,omitempty"`
}

// WebhookEvent is the inbound payload shape delivered by the upstream
// usage platform.
type WebhookEvent struct {
	RequestID string          `json:"request_id"`
	UserID    string          `json:"user_id,omitempty"`
	Model     string          `json:"model,omitempty"`
	Provider  string          `json:"provider,omitempty"`
	Metadata  WebhookMetadata `json:"metadata"`
}

type WebhookMetadata struct {
	Cost        float64 `json:"cost"`
	TotalTokens int64   `json:"totalTokens,omitempty"`
}

// HourAggregate is the materialized per-hour summary. It is a cache: both
// fields are always recomputable from the ledger for that bucket.
type HourAggregate struct {
	HourStart       time.Time `json:"hour_start"`
	TotalCostMicros int64     `json:"total_cost_micros"`
	RequestCount    int64     `json:"request_count"`
	LastUpdated     time.Time `json:"last_updated"`
}

// AlertPayload is what every notifier channel receives when an hourly
// limit is exceeded.
type AlertPayload struct {
	HourStart        time.Time `json:"hour_start"`
	TotalSpendMicros int64     `json:"total_spend_micros"`
	LimitMicros      int64     `json:"limit_micros"`
	OverageMicros    int64     `json:"overage_micros"`
	RequestCount     int64     `json:"request_count"`
}

// IngestResult is returned to the caller after processing one event.
type IngestResult struct {
	HourStart       time.Time `json:"hour_start"`
	TotalCostMicros int64     `json:"total_cost_micros"`
	RequestCount    int64     `json:"request_count"`
	Duplicate       bool      `json:"duplicate"`
	AlertSent       bool      `json:"alert_sent"`
	Skipped         bool      `json:"skipped"`
}

// RecordedEvent is published on the bus after a ledger insert.
type RecordedEvent struct {
	IdempotencyKey string    `json:"idempotency_key"`
	HourStart      time.Time `json:"hour_start"`
	CostMicros     int64     `json:"cost_micros"`
	CreatedAt      time.Time `json:"created_at"`
}

// SpendingSummary covers the last N hours for the reporting endpoint.
type SpendingSummary struct {
	TotalRequests   int64      `json:"total_requests"`
	TotalCostMicros int64      `json:"total_cost_micros"`
	AvgCostMicros   int64      `json:"avg_cost_per_request_micros"`
	FirstRequest    *time.Time `json:"first_request,omitempty"`
	LastRequest     *time.Time `json:"last_request,omitempty"`
	HoursAnalyzed   int        `json:"hours_analyzed"`
}

// HourBucket floors t to its hour-aligned UTC window start. Two events
// share a bucket iff their floored timestamps are equal.
func HourBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
