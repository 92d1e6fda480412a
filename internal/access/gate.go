package access

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wakti/backend/internal/models"
)

// SubscriptionFetcher resolves the current billing state for a user. No
// latency bound is guaranteed, hence the gate's own fetch budget.
type SubscriptionFetcher interface {
	FetchSubscription(ctx context.Context, userID string) (models.SubscriptionRecord, error)
}

// Options tunes the gate. Zero values fall back to production defaults.
type Options struct {
	FetchTimeout       time.Duration
	RetryDelay         time.Duration
	CacheTTL           time.Duration
	GracePeriod        time.Duration
	FreeAccessDuration time.Duration
	PaywallInterval    time.Duration
	CacheNamespace     string
	OwnerEmails        []string
	AccountRoutes      []string
}

// CheckRequest carries the inputs for one access evaluation.
type CheckRequest struct {
	Session SessionInfo
	Route   string
}

// Gate decides whether protected content is allowed, blocked behind a
// paywall, or still loading. Fetch failures degrade rather than propagate:
// timeouts fail open with at most one deferred retry per user per gate
// lifetime, and hard errors fall back to blocked/needs-payment.
type Gate struct {
	fetcher  SubscriptionFetcher
	cache    SnapshotCache
	evidence *Evidence
	logger   *slog.Logger

	fetchTimeout    time.Duration
	retryDelay      time.Duration
	cacheTTL        time.Duration
	grace           time.Duration
	freeAccess      time.Duration
	paywallInterval time.Duration
	namespace       string
	owners          map[string]struct{}
	accountRoutes   []string

	now      func() time.Time
	schedule func(time.Duration, func()) func()

	onUpdate func(userID string, result Result)

	mu       sync.Mutex
	closed   bool
	inFlight map[string]bool
	retried  map[string]bool
	last     map[string]Result
	cancels  []func()
	watchers map[string]chan struct{}
}

// NewGate constructs a gate over the provided collaborators.
func NewGate(fetcher SubscriptionFetcher, cache SnapshotCache, evidence *Evidence, logger *slog.Logger, opts Options) *Gate {
	if fetcher == nil {
		panic("access: subscription fetcher must not be nil")
	}
	if cache == nil {
		cache = NewMemorySnapshotCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 3 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = opts.FetchTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Minute
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 24 * time.Hour
	}
	if opts.FreeAccessDuration <= 0 {
		opts.FreeAccessDuration = 72 * time.Hour
	}
	if opts.PaywallInterval <= 0 {
		opts.PaywallInterval = 10 * time.Second
	}
	if opts.CacheNamespace == "" {
		opts.CacheNamespace = "wakti_subscription"
	}
	if len(opts.AccountRoutes) == 0 {
		opts.AccountRoutes = []string{"/account", "/settings/billing"}
	}

	owners := make(map[string]struct{}, len(opts.OwnerEmails))
	for _, email := range opts.OwnerEmails {
		email = strings.TrimSpace(strings.ToLower(email))
		if email != "" {
			owners[email] = struct{}{}
		}
	}

	return &Gate{
		fetcher:  fetcher,
		cache:    cache,
		evidence: evidence,
		logger:   logger,

		fetchTimeout:    opts.FetchTimeout,
		retryDelay:      opts.RetryDelay,
		cacheTTL:        opts.CacheTTL,
		grace:           opts.GracePeriod,
		freeAccess:      opts.FreeAccessDuration,
		paywallInterval: opts.PaywallInterval,
		namespace:       opts.CacheNamespace,
		owners:          owners,
		accountRoutes:   opts.AccountRoutes,

		now: func() time.Time { return time.Now().UTC() },
		schedule: func(d time.Duration, fn func()) func() {
			timer := time.AfterFunc(d, fn)
			return func() { timer.Stop() }
		},

		inFlight: make(map[string]bool),
		retried:  make(map[string]bool),
		last:     make(map[string]Result),
		watchers: make(map[string]chan struct{}),
	}
}

// SetUpdateFunc registers a callback invoked when a deferred retry or the
// paywall watcher produces a new result. Must be set before the first Check.
func (g *Gate) SetUpdateFunc(fn func(userID string, result Result)) {
	g.onUpdate = fn
}

// Check evaluates access for the session. It never returns an error: every
// failure mode degrades to a renderable decision.
func (g *Gate) Check(ctx context.Context, req CheckRequest) Result {
	info := req.Session
	if !info.positive() && g.evidence != nil {
		if resolved, ok := g.evidence.Resolve(ctx); ok {
			info = resolved
		}
	}
	if !info.positive() {
		return Result{Decision: DecisionBlocked, Source: SourceNone}
	}

	if _, ok := g.owners[strings.ToLower(info.Email)]; ok {
		result := Result{Decision: DecisionAllowed, Source: SourceOwner}
		g.remember(info.UserID, result)
		return result
	}

	g.mu.Lock()
	if g.closed {
		result, ok := g.last[info.UserID]
		g.mu.Unlock()
		if ok {
			return result
		}
		return Result{Decision: DecisionLoading}
	}
	if g.inFlight[info.UserID] {
		result, ok := g.last[info.UserID]
		g.mu.Unlock()
		if ok {
			return result
		}
		return g.optimistic(ctx, info, req.Route)
	}
	g.inFlight[info.UserID] = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.inFlight, info.UserID)
		g.mu.Unlock()
	}()

	result := g.evaluate(ctx, info, req.Route)
	g.remember(info.UserID, result)
	return result
}

// Close cancels any pending retry timers and paywall watchers. Callbacks
// scheduled before Close observe the closed flag and become no-ops.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	cancels := g.cancels
	g.cancels = nil
	for _, stop := range g.watchers {
		close(stop)
	}
	g.watchers = make(map[string]chan struct{})
	g.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (g *Gate) evaluate(ctx context.Context, info SessionInfo, route string) Result {
	fetchCtx, cancel := context.WithTimeout(ctx, g.fetchTimeout)
	defer cancel()

	type outcome struct {
		rec models.SubscriptionRecord
		err error
	}

	ch := make(chan outcome, 1)
	go func() {
		rec, err := g.fetcher.FetchSubscription(fetchCtx, info.UserID)
		ch <- outcome{rec: rec, err: err}
	}()

	select {
	case out := <-ch:
		if out.err == nil {
			return g.resolve(ctx, info, route, out.rec)
		}
		if fetchCtx.Err() != nil {
			return g.degrade(ctx, info, route)
		}
		g.logger.Warn("subscription fetch failed", "userId", info.UserID, "error", out.err)
		return Result{Decision: DecisionBlocked, NeedsPayment: true, Source: SourceError,
			ShowPaywall: g.paywallDue(nil, route)}
	case <-fetchCtx.Done():
		// The losing fetch result is discarded when it eventually settles.
		return g.degrade(ctx, info, route)
	}
}

// resolve folds a freshly fetched record into a decision and persists the snapshot.
func (g *Gate) resolve(ctx context.Context, info SessionInfo, route string, rec models.SubscriptionRecord) Result {
	now := g.now()
	snapshot := SnapshotFromRecord(rec, now, g.grace)

	key := CacheKey(g.namespace, info.UserID)
	if err := g.cache.Put(ctx, key, snapshot); err != nil {
		g.logger.Warn("snapshot cache write failed", "userId", info.UserID, "error", err)
	}

	decision := DecisionBlocked
	if snapshot.IsSubscribed {
		decision = DecisionAllowed
	}

	return Result{
		Decision:     decision,
		NeedsPayment: snapshot.NeedsPayment,
		ShowPaywall:  snapshot.NeedsPayment && g.paywallDue(&rec, route),
		Source:       SourceFresh,
		Snapshot:     &snapshot,
	}
}

// degrade handles the fetch-timeout path: a fresh cached snapshot wins,
// otherwise fail open and arm the single deferred retry.
func (g *Gate) degrade(ctx context.Context, info SessionInfo, route string) Result {
	if snapshot, ok := g.freshSnapshot(ctx, info.UserID); ok {
		decision := DecisionBlocked
		if snapshot.IsSubscribed {
			decision = DecisionAllowed
		}
		return Result{
			Decision:     decision,
			NeedsPayment: snapshot.NeedsPayment,
			ShowPaywall:  snapshot.NeedsPayment && g.paywallDue(snapshot.Details, route),
			Source:       SourceCache,
			Snapshot:     &snapshot,
		}
	}

	g.scheduleRetry(info, route)
	g.logger.Info("subscription fetch timed out, failing open", "userId", info.UserID)
	return Result{Decision: DecisionAllowed, Source: SourceFailOpen}
}

func (g *Gate) optimistic(ctx context.Context, info SessionInfo, route string) Result {
	if snapshot, ok := g.freshSnapshot(ctx, info.UserID); ok && snapshot.IsSubscribed {
		return Result{
			Decision:     DecisionAllowed,
			NeedsPayment: snapshot.NeedsPayment,
			ShowPaywall:  snapshot.NeedsPayment && g.paywallDue(snapshot.Details, route),
			Source:       SourceCache,
			Snapshot:     &snapshot,
		}
	}
	return Result{Decision: DecisionLoading}
}

func (g *Gate) freshSnapshot(ctx context.Context, userID string) (models.SubscriptionSnapshot, bool) {
	snapshot, ok, err := g.cache.Get(ctx, CacheKey(g.namespace, userID))
	if err != nil {
		g.logger.Warn("snapshot cache read failed", "userId", userID, "error", err)
		return models.SubscriptionSnapshot{}, false
	}
	if !ok {
		return models.SubscriptionSnapshot{}, false
	}
	if g.now().Sub(snapshot.CapturedTime()) > g.cacheTTL {
		return models.SubscriptionSnapshot{}, false
	}
	return snapshot, true
}

// scheduleRetry arms at most one deferred re-check per user per gate lifetime.
func (g *Gate) scheduleRetry(info SessionInfo, route string) {
	g.mu.Lock()
	if g.closed || g.retried[info.UserID] {
		g.mu.Unlock()
		return
	}
	g.retried[info.UserID] = true
	cancel := g.schedule(g.retryDelay, func() { g.retryCheck(info, route) })
	g.cancels = append(g.cancels, cancel)
	g.mu.Unlock()
}

func (g *Gate) retryCheck(info SessionInfo, route string) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), g.fetchTimeout)
	defer cancel()

	rec, err := g.fetcher.FetchSubscription(ctx, info.UserID)
	if err != nil {
		g.logger.Info("deferred subscription retry failed", "userId", info.UserID, "error", err)
		return
	}

	result := g.resolve(context.Background(), info, route, rec)
	g.remember(info.UserID, result)
	g.notify(info.UserID, result)
}

func (g *Gate) remember(userID string, result Result) {
	g.mu.Lock()
	g.last[userID] = result
	g.mu.Unlock()
}

func (g *Gate) notify(userID string, result Result) {
	g.mu.Lock()
	closed := g.closed
	fn := g.onUpdate
	g.mu.Unlock()
	if closed || fn == nil {
		return
	}
	fn(userID, result)
}

// paywallDue reports whether the paywall overlay should open for an
// unsubscribed account on the given route. Account-management routes are
// exempt so the user can always reach billing. A missing free-access window
// counts as expired.
func (g *Gate) paywallDue(rec *models.SubscriptionRecord, route string) bool {
	for _, prefix := range g.accountRoutes {
		if prefix != "" && strings.HasPrefix(route, prefix) {
			return false
		}
	}
	if rec == nil || rec.FreeAccessStart == nil {
		return true
	}
	return g.now().After(rec.FreeAccessStart.Add(g.freeAccess))
}

// WatchPaywall re-evaluates the free-access window for an unsubscribed user
// on a fixed interval, notifying through the update callback when the paywall
// flag changes. A second watch for the same user replaces the first.
func (g *Gate) WatchPaywall(userID, route string) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	if stop, ok := g.watchers[userID]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	g.watchers[userID] = stop
	g.mu.Unlock()

	go g.watchLoop(userID, route, stop)
}

// StopWatch cancels the paywall watcher for the user, if any.
func (g *Gate) StopWatch(userID string) {
	g.mu.Lock()
	if stop, ok := g.watchers[userID]; ok {
		close(stop)
		delete(g.watchers, userID)
	}
	g.mu.Unlock()
}

func (g *Gate) watchLoop(userID, route string, stop chan struct{}) {
	ticker := time.NewTicker(g.paywallInterval)
	defer ticker.Stop()

	var lastShown *bool
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			g.mu.Lock()
			result, ok := g.last[userID]
			closed := g.closed
			g.mu.Unlock()
			if closed {
				return
			}
			if !ok || !result.NeedsPayment {
				continue
			}

			var rec *models.SubscriptionRecord
			if result.Snapshot != nil {
				rec = result.Snapshot.Details
			}
			due := g.paywallDue(rec, route)
			if lastShown != nil && *lastShown == due {
				continue
			}
			lastShown = &due

			result.ShowPaywall = due
			g.remember(userID, result)
			g.notify(userID, result)
		}
	}
}
