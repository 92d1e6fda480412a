package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wakti/backend/internal/db"
	"github.com/wakti/backend/internal/models"
)

// PostgresSubscriptionRepository reads billing state from PostgreSQL. It
// implements the gate's subscription fetcher.
type PostgresSubscriptionRepository struct {
	pool db.Pool
}

// NewPostgresSubscriptionRepository constructs a subscription repository backed by PostgreSQL.
func NewPostgresSubscriptionRepository(pool db.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

// FetchSubscription resolves the current billing record for the user.
// A user without a subscription row gets a zero record, not an error; the
// gate treats that as unsubscribed.
func (r *PostgresSubscriptionRepository) FetchSubscription(ctx context.Context, userID string) (models.SubscriptionRecord, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.SubscriptionRecord{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT user_id, is_subscribed, status, next_billing_date, plan_name, free_access_start_at
        FROM subscriptions
        WHERE user_id = $1
    `, userID)

	var (
		rec             models.SubscriptionRecord
		nextBillingDate sql.NullTime
		planName        sql.NullString
		freeAccessStart sql.NullTime
	)
	if err := row.Scan(&rec.UserID, &rec.IsSubscribed, &rec.Status, &nextBillingDate, &planName, &freeAccessStart); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SubscriptionRecord{UserID: userID}, nil
		}
		return models.SubscriptionRecord{}, fmt.Errorf("select subscription: %w", err)
	}

	if nextBillingDate.Valid {
		t := nextBillingDate.Time.UTC()
		rec.NextBillingDate = &t
	}
	if planName.Valid {
		rec.PlanName = planName.String
	}
	if freeAccessStart.Valid {
		t := freeAccessStart.Time.UTC()
		rec.FreeAccessStart = &t
	}

	return rec, nil
}

// Upsert writes the billing record, replacing any previous row for the user.
func (r *PostgresSubscriptionRepository) Upsert(ctx context.Context, rec models.SubscriptionRecord) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO subscriptions (user_id, is_subscribed, status, next_billing_date, plan_name, free_access_start_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id)
        DO UPDATE SET is_subscribed = EXCLUDED.is_subscribed, status = EXCLUDED.status,
                      next_billing_date = EXCLUDED.next_billing_date, plan_name = EXCLUDED.plan_name,
                      free_access_start_at = EXCLUDED.free_access_start_at
    `, rec.UserID, rec.IsSubscribed, rec.Status, rec.NextBillingDate, nullableString(rec.PlanName), rec.FreeAccessStart)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
