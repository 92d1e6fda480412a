package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wakti/backend/internal/access"
	"github.com/wakti/backend/internal/models"
)

type gateStub struct {
	result  access.Result
	last    access.CheckRequest
	watched []string
	stopped []string
}

func (g *gateStub) Check(_ context.Context, req access.CheckRequest) access.Result {
	g.last = req
	return g.result
}

func (g *gateStub) WatchPaywall(userID, route string) {
	g.watched = append(g.watched, userID+":"+route)
}

func (g *gateStub) StopWatch(userID string) {
	g.stopped = append(g.stopped, userID)
}

func TestAccessHandlerCheck(t *testing.T) {
	due := time.Now().UTC().Add(10 * 24 * time.Hour)
	gate := &gateStub{result: access.Result{
		Decision: access.DecisionAllowed,
		Source:   access.SourceFresh,
		Snapshot: &models.SubscriptionSnapshot{
			IsSubscribed: true,
			CapturedAt:   time.Now().UnixMilli(),
			Details:      &models.SubscriptionRecord{UserID: "user-1", IsSubscribed: true, Status: models.SubscriptionStatusActive, NextBillingDate: &due},
		},
	}}
	handler := AccessHandler{Gate: gate}

	body, err := json.Marshal(accessCheckRequest{UserID: "user-1", Email: "User@Example.com", Route: "/dashboard"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/access/check", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Check(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp accessCheckResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Decision != "allowed" || resp.Source != access.SourceFresh {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Snapshot == nil || !resp.Snapshot.IsSubscribed {
		t.Fatalf("expected snapshot in response: %+v", resp.Snapshot)
	}

	if !gate.last.Session.HasUser || gate.last.Session.UserID != "user-1" {
		t.Fatalf("unexpected session forwarded to gate: %+v", gate.last.Session)
	}
	if gate.last.Session.Email != "user@example.com" {
		t.Fatalf("expected normalized email, got %q", gate.last.Session.Email)
	}
	if gate.last.Route != "/dashboard" {
		t.Fatalf("unexpected route: %q", gate.last.Route)
	}

	// A paid account must not keep a paywall watcher alive.
	if len(gate.watched) != 0 {
		t.Fatalf("unexpected watchers started: %v", gate.watched)
	}
	if len(gate.stopped) != 1 || gate.stopped[0] != "user-1" {
		t.Fatalf("expected watcher stopped for user-1, got %v", gate.stopped)
	}
}

func TestAccessHandlerCheckStartsPaywallWatcher(t *testing.T) {
	gate := &gateStub{result: access.Result{Decision: access.DecisionBlocked, NeedsPayment: true, Source: access.SourceFresh}}
	handler := AccessHandler{Gate: gate}

	body, err := json.Marshal(accessCheckRequest{UserID: "user-1", Route: "/dashboard"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/access/check", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Check(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	if len(gate.watched) != 1 || gate.watched[0] != "user-1:/dashboard" {
		t.Fatalf("expected watcher for user-1 on /dashboard, got %v", gate.watched)
	}
	if len(gate.stopped) != 0 {
		t.Fatalf("unexpected watcher stops: %v", gate.stopped)
	}
}

func TestAccessHandlerCheckAnonymous(t *testing.T) {
	gate := &gateStub{result: access.Result{Decision: access.DecisionBlocked, Source: access.SourceNone}}
	handler := AccessHandler{Gate: gate}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/access/check", bytes.NewReader([]byte(`{"route":"/dashboard"}`)))
	rec := httptest.NewRecorder()

	handler.Check(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp accessCheckResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Decision != "blocked" || resp.Source != access.SourceNone {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if gate.last.Session.HasUser {
		t.Fatalf("expected anonymous session, got %+v", gate.last.Session)
	}
}
