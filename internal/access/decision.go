package access

import "github.com/wakti/backend/internal/models"

// Decision is the three-way outcome of an access check.
type Decision int

const (
	// DecisionLoading means no authoritative answer exists yet; callers should
	// show a placeholder rather than protected content or a paywall.
	DecisionLoading Decision = iota
	// DecisionBlocked means the account has no valid subscription. Protected
	// content is still delivered; enforcement is the paywall overlay's job.
	DecisionBlocked
	// DecisionAllowed means protected content may render.
	DecisionAllowed
)

func (d Decision) String() string {
	switch d {
	case DecisionBlocked:
		return "blocked"
	case DecisionAllowed:
		return "allowed"
	default:
		return "loading"
	}
}

// Result sources, recorded so callers and logs can tell how a decision was reached.
const (
	SourceNone     = "no-session"
	SourceOwner    = "owner"
	SourceFresh    = "fresh"
	SourceCache    = "cache"
	SourceFailOpen = "failopen"
	SourceError    = "error"
)

// Result is the derived access decision for one check. It is never persisted.
type Result struct {
	Decision     Decision
	NeedsPayment bool
	ShowPaywall  bool
	Source       string
	Snapshot     *models.SubscriptionSnapshot
}
