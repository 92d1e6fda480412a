package handlers

import (
	"net/http"
	"time"

	"github.com/wakti/backend/internal/recording"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Marker: deps.Marker, Limiter: deps.AuthLimiter, NowFunc: deps.NowFunc}
	accessCheck := AccessHandler{Gate: deps.Gate}
	recordings := RecordingHandler{Recordings: deps.Recordings, Pipeline: deps.Pipeline, MaxSeconds: deps.RecordingMaxSeconds, NowFunc: deps.NowFunc}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("/api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", auth.Logout)
	mux.HandleFunc("/api/v1/access/check", accessCheck.Check)
	mux.HandleFunc("/api/v1/recordings", recordings.Finalize)
	mux.HandleFunc("/api/v1/recordings/feed", recordings.Feed)
	mux.HandleFunc("/api/v1/recordings/get", recordings.Get)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users               UserStore
	Sessions            SessionManager
	Marker              LoginMarker
	Gate                AccessGate
	Recordings          RecordingStore
	Pipeline            recording.Pipeline
	RecordingMaxSeconds int
	AuthLimiter         RateLimiter
	NowFunc             func() time.Time
}
