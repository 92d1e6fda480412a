package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/wakti/backend/internal/access"
	"github.com/wakti/backend/internal/logging"
)

// AccessGate is the decision surface consumed by RequireAccess.
type AccessGate interface {
	Check(ctx context.Context, req access.CheckRequest) access.Result
}

// AccessOptions tunes RequireAccess enforcement.
type AccessOptions struct {
	// HardBlock withholds the response with 402 when the gate blocks a
	// signed-in account. The default is soft: the decision rides along in
	// response headers and the client renders the paywall overlay itself.
	HardBlock bool
}

// RequireAccess evaluates the subscription gate for each request. Session
// identity is read from the X-User-Id and X-User-Email headers set by the
// authenticating proxy; absent identity falls through to the gate's own
// evidence sources before blocking.
func RequireAccess(gate AccessGate, opts AccessOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
			email := strings.TrimSpace(strings.ToLower(r.Header.Get("X-User-Email")))

			result := gate.Check(ctx, access.CheckRequest{
				Session: access.SessionInfo{
					HasUser:    userID != "",
					HasSession: userID != "",
					UserID:     userID,
					Email:      email,
				},
				Route: r.URL.Path,
			})

			w.Header().Set("X-Access-Decision", result.Decision.String())
			w.Header().Set("X-Access-Source", result.Source)
			w.Header().Set("X-Needs-Payment", strconv.FormatBool(result.NeedsPayment))
			w.Header().Set("X-Show-Paywall", strconv.FormatBool(result.ShowPaywall))

			if result.Source == access.SourceNone {
				logging.FromContext(ctx).Warn("access check without session", "path", r.URL.Path)
				writeAccessError(w, http.StatusUnauthorized, "sign in required")
				return
			}

			if opts.HardBlock && result.Decision == access.DecisionBlocked {
				logging.FromContext(ctx).Info("access hard-blocked", "userId", userID, "path", r.URL.Path, "source", result.Source)
				writeAccessError(w, http.StatusPaymentRequired, "subscription required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAccessError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
