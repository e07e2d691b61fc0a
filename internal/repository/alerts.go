package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"spendguard/internal/model"
)

// AlertRepo enforces at-most-one alert per (hour bucket, alert type).
// The claim is the unique insert itself, not a check-then-insert: two
// racing callers resolve at the primary key and exactly one wins.
type AlertRepo struct {
	db *pgxpool.Pool
}

func NewAlertRepo(db *pgxpool.Pool) *AlertRepo {
	return &AlertRepo{db: db}
}

// TryClaim inserts a stub alert record for the bucket. The caller that
// gets claimed=true owns notification dispatch and must Finalize
// afterwards; everyone else must not dispatch.
func (r *AlertRepo) TryClaim(ctx context.Context, hour time.Time, alertType string) (bool, error) {
	query := `
		INSERT INTO alerts_sent (hour_start, alert_type)
		VALUES ($1, $2)
		ON CONFLICT (hour_start, alert_type) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, model.HourBucket(hour), alertType)
	if err != nil {
		return false, fmt.Errorf("claim alert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Finalize fills in the readings at firing time. It runs whether or not
// delivery succeeded; the claim row already guarantees no second attempt
// for this bucket.
func (r *AlertRepo) Finalize(ctx context.Context, hour time.Time, alertType string, totalSpendMicros, overageMicros int64) error {
	query := `
		UPDATE alerts_sent
		SET total_spend_micros = $3, overage_micros = $4, sent_at = now()
		WHERE hour_start = $1 AND alert_type = $2`

	if _, err := r.db.Exec(ctx, query, model.HourBucket(hour), alertType, totalSpendMicros, overageMicros); err != nil {
		return fmt.Errorf("finalize alert: %w", err)
	}
	return nil
}
