package models

import "time"

// User represents an account within the WAKTI platform.
type User struct {
	ID          string
	Email       string
	Password    string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// SubscriptionRecord is the billing state returned by the subscription collaborator.
type SubscriptionRecord struct {
	UserID          string
	IsSubscribed    bool
	Status          string
	NextBillingDate *time.Time
	PlanName        string
	FreeAccessStart *time.Time
}

// SubscriptionStatusActive is the only status that grants access on its own.
const SubscriptionStatusActive = "active"

// SubscriptionSnapshot is a timestamped copy of a resolved subscription used
// for optimistic rendering while a fresh fetch is in flight.
type SubscriptionSnapshot struct {
	IsSubscribed bool                `json:"isSubscribed"`
	NeedsPayment bool                `json:"needsPayment"`
	Details      *SubscriptionRecord `json:"subscriptionDetails,omitempty"`
	CapturedAt   int64               `json:"ts"` // epoch millis
}

// CapturedTime converts the epoch-millis capture stamp to a time.Time.
func (s SubscriptionSnapshot) CapturedTime() time.Time {
	return time.UnixMilli(s.CapturedAt).UTC()
}

// Recording stores metadata for a finalized voice recording.
type Recording struct {
	ID           string
	OwnerID      string
	Kind         string
	DurationSecs int
	SegmentCount int
	AssetPath    string
	AssetURL     string
	Transcript   string
	Summary      string
	Status       string
	FailedStage  string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

const (
	RecordingStatusProcessing = "processing"
	RecordingStatusReady      = "ready"
	RecordingStatusFailed     = "failed"
)

// RecordingSegment is one contiguous capture interval, immutable once committed.
type RecordingSegment struct {
	Blob         []byte
	DurationSecs int
	PartNumber   int
	MIMEType     string
}
