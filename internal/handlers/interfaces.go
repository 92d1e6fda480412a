package handlers

import (
	"context"

	"github.com/wakti/backend/internal/access"
	"github.com/wakti/backend/internal/models"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// SessionManager issues and refreshes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID, email string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string)
}

// LoginMarker records successful logins as short-lived session evidence.
type LoginMarker interface {
	Mark(userID, email string)
	Clear(userID string)
}

// AccessGate evaluates the access decision for a session and manages the
// per-user paywall re-check watcher.
type AccessGate interface {
	Check(ctx context.Context, req access.CheckRequest) access.Result
	WatchPaywall(userID, route string)
	StopWatch(userID string)
}

// RecordingStore captures persistence for finalized recordings.
type RecordingStore interface {
	Create(ctx context.Context, rec models.Recording) error
	FindByID(ctx context.Context, id string) (models.Recording, error)
	ListForOwner(ctx context.Context, ownerID string) ([]models.Recording, error)
}
