package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wakti/backend/internal/db"
	"github.com/wakti/backend/internal/models"
)

// PostgresRecordingRepository persists finalized recording metadata.
type PostgresRecordingRepository struct {
	pool db.Pool
}

// NewPostgresRecordingRepository constructs a recording repository backed by PostgreSQL.
func NewPostgresRecordingRepository(pool db.Pool) *PostgresRecordingRepository {
	return &PostgresRecordingRepository{pool: pool}
}

// Create persists the recording row, including partial pipeline output for
// failed recordings so a manual retry can pick up where the pipeline stopped.
func (r *PostgresRecordingRepository) Create(ctx context.Context, rec models.Recording) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO recordings (id, owner_id, kind, duration_seconds, segment_count,
                                asset_path, asset_url, transcript, summary,
                                status, failed_stage, created_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `, rec.ID, rec.OwnerID, rec.Kind, rec.DurationSecs, rec.SegmentCount,
		rec.AssetPath, rec.AssetURL, rec.Transcript, rec.Summary,
		rec.Status, rec.FailedStage, rec.CreatedAt, rec.CompletedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert recording: %w", err)
	}

	return nil
}

// FindByID fetches a single recording.
func (r *PostgresRecordingRepository) FindByID(ctx context.Context, id string) (models.Recording, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Recording{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, owner_id, kind, duration_seconds, segment_count,
               asset_path, asset_url, transcript, summary,
               status, failed_stage, created_at, completed_at
        FROM recordings
        WHERE id = $1
    `, id)

	rec, err := scanRecording(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Recording{}, ErrNotFound
		}
		return models.Recording{}, fmt.Errorf("select recording: %w", err)
	}
	return rec, nil
}

// ListForOwner returns the owner's recordings, newest first.
func (r *PostgresRecordingRepository) ListForOwner(ctx context.Context, ownerID string) ([]models.Recording, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, owner_id, kind, duration_seconds, segment_count,
               asset_path, asset_url, transcript, summary,
               status, failed_stage, created_at, completed_at
        FROM recordings
        WHERE owner_id = $1
        ORDER BY created_at DESC
    `, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var recordings []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		recordings = append(recordings, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recordings: %w", err)
	}

	return recordings, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (models.Recording, error) {
	var (
		rec         models.Recording
		completedAt sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Kind, &rec.DurationSecs, &rec.SegmentCount,
		&rec.AssetPath, &rec.AssetURL, &rec.Transcript, &rec.Summary,
		&rec.Status, &rec.FailedStage, &rec.CreatedAt, &completedAt); err != nil {
		return models.Recording{}, err
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		rec.CompletedAt = &t
	}
	return rec, nil
}
