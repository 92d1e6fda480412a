package access

import (
	"context"
	"sync"
	"time"
)

// SessionInfo is the session evidence consumed by the gate. It is owned by the
// auth collaborator; the gate only reads it.
type SessionInfo struct {
	HasUser    bool
	HasSession bool
	UserID     string
	Email      string
}

func (s SessionInfo) positive() bool {
	return (s.HasUser || s.HasSession) && s.UserID != ""
}

// EvidenceSource reports session evidence from one provider. The second return
// value indicates a positive signal.
type EvidenceSource interface {
	SessionEvidence(ctx context.Context) (SessionInfo, bool)
}

// EvidenceSourceFunc adapts a function to the EvidenceSource interface.
type EvidenceSourceFunc func(ctx context.Context) (SessionInfo, bool)

// SessionEvidence implements EvidenceSource.
func (f EvidenceSourceFunc) SessionEvidence(ctx context.Context) (SessionInfo, bool) {
	return f(ctx)
}

// Evidence queries an ordered list of session providers and returns the first
// positive signal. Multiple sources exist because the live auth state can lag
// for a few seconds after a login redirect; fallback markers bridge that gap.
type Evidence struct {
	sources []EvidenceSource
}

// NewEvidence builds an aggregator over the provided sources, ordered by trust.
func NewEvidence(sources ...EvidenceSource) *Evidence {
	return &Evidence{sources: sources}
}

// Resolve returns the first positive session signal, or false when every
// source comes back empty.
func (e *Evidence) Resolve(ctx context.Context) (SessionInfo, bool) {
	if e == nil {
		return SessionInfo{}, false
	}
	for _, src := range e.sources {
		if src == nil {
			continue
		}
		if info, ok := src.SessionEvidence(ctx); ok && info.positive() {
			return info, true
		}
	}
	return SessionInfo{}, false
}

// RecentLoginMarker is an evidence source fed by the login flow. A marked
// login counts as session evidence for the configured window, after which the
// marker silently expires.
type RecentLoginMarker struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]loginMark
}

type loginMark struct {
	info SessionInfo
	at   time.Time
}

// NewRecentLoginMarker constructs a marker source honoring logins for the window.
func NewRecentLoginMarker(window time.Duration) *RecentLoginMarker {
	if window <= 0 {
		window = 10 * time.Second
	}
	return &RecentLoginMarker{
		window:  window,
		now:     time.Now,
		entries: make(map[string]loginMark),
	}
}

// Mark records a successful login for the user.
func (m *RecentLoginMarker) Mark(userID, email string) {
	if userID == "" {
		return
	}
	m.mu.Lock()
	m.entries[userID] = loginMark{
		info: SessionInfo{HasUser: true, HasSession: true, UserID: userID, Email: email},
		at:   m.now(),
	}
	m.mu.Unlock()
}

// Clear drops the marker, typically on logout.
func (m *RecentLoginMarker) Clear(userID string) {
	m.mu.Lock()
	delete(m.entries, userID)
	m.mu.Unlock()
}

// SessionEvidence reports the most recent unexpired login, if any.
func (m *RecentLoginMarker) SessionEvidence(_ context.Context) (SessionInfo, bool) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		best  loginMark
		found bool
	)
	for userID, entry := range m.entries {
		if now.Sub(entry.at) > m.window {
			delete(m.entries, userID)
			continue
		}
		if !found || entry.at.After(best.at) {
			best = entry
			found = true
		}
	}
	if !found {
		return SessionInfo{}, false
	}
	return best.info, true
}

// WithNowFunc allows tests to override the time source.
func (m *RecentLoginMarker) WithNowFunc(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
