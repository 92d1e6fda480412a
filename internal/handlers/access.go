package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wakti/backend/internal/access"
	"github.com/wakti/backend/internal/logging"
	"github.com/wakti/backend/internal/models"
)

// AccessHandler exposes the subscription gate over HTTP.
type AccessHandler struct {
	Gate AccessGate
}

// Check handles POST /api/v1/access/check requests. The gate itself never
// fails, so the endpoint always answers 200 with a renderable decision.
func (h AccessHandler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Gate == nil {
		logger.Error("access gate unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "access service unavailable"})
		return
	}

	var req accessCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid access check payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	result := h.Gate.Check(ctx, access.CheckRequest{
		Session: access.SessionInfo{
			HasUser:    req.UserID != "",
			HasSession: req.UserID != "",
			UserID:     req.UserID,
			Email:      req.Email,
		},
		Route: req.Route,
	})

	// Unpaid accounts get a watcher so the paywall flag flips when the
	// free-access window lapses between checks; paid ones drop theirs.
	if req.UserID != "" {
		if result.NeedsPayment {
			h.Gate.WatchPaywall(req.UserID, req.Route)
		} else {
			h.Gate.StopWatch(req.UserID)
		}
	}

	respondJSON(ctx, w, http.StatusOK, accessCheckResponse{
		Decision:     result.Decision.String(),
		NeedsPayment: result.NeedsPayment,
		ShowPaywall:  result.ShowPaywall,
		Source:       result.Source,
		Snapshot:     result.Snapshot,
	})
}

type accessCheckRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Route  string `json:"route"`
}

type accessCheckResponse struct {
	Decision     string                       `json:"decision"`
	NeedsPayment bool                         `json:"needsPayment"`
	ShowPaywall  bool                         `json:"showPaywall"`
	Source       string                       `json:"source"`
	Snapshot     *models.SubscriptionSnapshot `json:"snapshot,omitempty"`
}
