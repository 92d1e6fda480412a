package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wakti/backend/internal/db"
	"github.com/wakti/backend/internal/models"
)

// PostgresSnapshotCache is the durable per-user snapshot cache. Writes are
// last-writer-wins; the gate enforces the freshness TTL at read time.
type PostgresSnapshotCache struct {
	pool db.Pool
}

// NewPostgresSnapshotCache constructs a snapshot cache backed by PostgreSQL.
func NewPostgresSnapshotCache(pool db.Pool) *PostgresSnapshotCache {
	return &PostgresSnapshotCache{pool: pool}
}

// Get returns the stored snapshot for the cache key, if any.
func (c *PostgresSnapshotCache) Get(ctx context.Context, key string) (models.SubscriptionSnapshot, bool, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return models.SubscriptionSnapshot{}, false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var payload []byte
	row := conn.QueryRow(ctx, `SELECT payload FROM subscription_snapshots WHERE cache_key = $1`, key)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SubscriptionSnapshot{}, false, nil
		}
		return models.SubscriptionSnapshot{}, false, fmt.Errorf("select snapshot: %w", err)
	}

	var snapshot models.SubscriptionSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return models.SubscriptionSnapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}

	return snapshot, true, nil
}

// Put stores the snapshot under the cache key, replacing any previous value.
func (c *PostgresSnapshotCache) Put(ctx context.Context, key string, snapshot models.SubscriptionSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO subscription_snapshots (cache_key, payload, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (cache_key)
        DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
    `, key, payload)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	return nil
}
