package access

import (
	"time"

	"github.com/wakti/backend/internal/models"
)

// EvaluateRecord computes subscription validity at the provided instant.
//
// An active subscription with a billing date stays valid through the grace
// period after that date, with needsPayment flipping as soon as the date
// passes. An active subscription without a billing date is an administrative
// grant and never expires. Everything else is invalid and owes payment.
func EvaluateRecord(rec models.SubscriptionRecord, now time.Time, grace time.Duration) (valid, needsPayment bool) {
	if !rec.IsSubscribed || rec.Status != models.SubscriptionStatusActive {
		return false, true
	}

	if rec.NextBillingDate == nil {
		return true, false
	}

	due := rec.NextBillingDate.UTC()
	if now.After(due.Add(grace)) {
		return false, true
	}
	return true, now.After(due)
}

// SnapshotFromRecord folds a resolved record into a cacheable snapshot.
func SnapshotFromRecord(rec models.SubscriptionRecord, now time.Time, grace time.Duration) models.SubscriptionSnapshot {
	valid, needsPayment := EvaluateRecord(rec, now, grace)
	detail := rec
	return models.SubscriptionSnapshot{
		IsSubscribed: valid,
		NeedsPayment: needsPayment,
		Details:      &detail,
		CapturedAt:   now.UnixMilli(),
	}
}
