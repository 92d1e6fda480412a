package app

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wakti/backend/internal/config"
)

type fakePool struct{}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (fakePool) Close() {}

func TestBuildDependencies(t *testing.T) {
	cfg := config.Config{
		SubscriptionFetchTimeout: 3 * time.Second,
		SnapshotCacheTTL:         30 * time.Minute,
		BillingGracePeriod:       24 * time.Hour,
		LoginEvidenceWindow:      10 * time.Second,
		PaywallRecheckInterval:   10 * time.Second,
		FreeAccessDuration:       72 * time.Hour,
		RecordingMaxSeconds:      7200,
		TranscribeURL:            "http://localhost:9000/functions/v1/transcribe",
		SummarizeURL:             "http://localhost:9000/functions/v1/summarize",
		PipelineTimeout:          time.Minute,
		ObjectStore:              config.ObjectStoreConfig{Bucket: "test-bucket", Endpoint: "http://localhost:9000", Region: "us-east-1"},
	}

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	deps, cleanup, err := buildDependencies(context.Background(), fakePool{}, cfg, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleanup == nil {
		t.Fatal("expected cleanup function")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = cleanup(ctx)
	}()

	if deps.Users == nil {
		t.Fatal("expected user repository to be configured")
	}
	if deps.Sessions == nil {
		t.Fatal("expected session manager to be configured")
	}
	if deps.Marker == nil {
		t.Fatal("expected login marker to be configured")
	}
	if deps.Gate == nil {
		t.Fatal("expected access gate to be configured")
	}
	if deps.Recordings == nil {
		t.Fatal("expected recording repository to be configured")
	}
	if deps.Pipeline.Uploader == nil || deps.Pipeline.Transcriber == nil || deps.Pipeline.Summarizer == nil {
		t.Fatal("expected recording pipeline stages to be configured")
	}
	if deps.RecordingMaxSeconds != 7200 {
		t.Fatalf("expected recording ceiling plumbed through, got %d", deps.RecordingMaxSeconds)
	}
	if deps.AuthLimiter == nil {
		t.Fatal("expected auth rate limiter to be configured")
	}
}
