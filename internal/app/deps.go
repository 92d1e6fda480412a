package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/wakti/backend/internal/access"
	"github.com/wakti/backend/internal/auth"
	"github.com/wakti/backend/internal/config"
	"github.com/wakti/backend/internal/db"
	"github.com/wakti/backend/internal/handlers"
	"github.com/wakti/backend/internal/middleware"
	"github.com/wakti/backend/internal/pipeline"
	"github.com/wakti/backend/internal/recording"
	"github.com/wakti/backend/internal/repositories"
	"github.com/wakti/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. The returned cleanup stops background gate timers and watchers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	sessionStore := repositories.NewPostgresSessionStore(pool)
	sessions := auth.NewManager(15*time.Minute, 24*time.Hour, sessionStore)

	marker := access.NewRecentLoginMarker(cfg.LoginEvidenceWindow)
	evidence := access.NewEvidence(marker)

	gate := access.NewGate(
		repositories.NewPostgresSubscriptionRepository(pool),
		repositories.NewPostgresSnapshotCache(pool),
		evidence,
		logger,
		access.Options{
			FetchTimeout:       cfg.SubscriptionFetchTimeout,
			CacheTTL:           cfg.SnapshotCacheTTL,
			GracePeriod:        cfg.BillingGracePeriod,
			FreeAccessDuration: cfg.FreeAccessDuration,
			PaywallInterval:    cfg.PaywallRecheckInterval,
			OwnerEmails:        cfg.OwnerEmails,
		},
	)

	store, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		gate.Close()
		return handlers.Dependencies{}, nil, err
	}

	pipe := recording.Pipeline{
		Uploader:    pipeline.NewAssetUploader(store, "recordings"),
		Transcriber: pipeline.NewEdgeClient(cfg.TranscribeURL, cfg.PipelineTimeout),
		Summarizer:  pipeline.NewEdgeClient(cfg.SummarizeURL, cfg.PipelineTimeout),
	}

	deps := handlers.Dependencies{
		Users:               repositories.NewPostgresUserRepository(pool),
		Sessions:            sessions,
		Marker:              marker,
		Gate:                gate,
		Recordings:          repositories.NewPostgresRecordingRepository(pool),
		Pipeline:            pipe,
		RecordingMaxSeconds: cfg.RecordingMaxSeconds,
		AuthLimiter:         middleware.NewIPRateLimiter(10, time.Minute, 5, 10*time.Minute),
	}

	cleanup := func(context.Context) error {
		gate.Close()
		return nil
	}

	return deps, cleanup, nil
}
