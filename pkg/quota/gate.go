package quota

import (
	"context"
	"errors"
	"time"

	"github.com/baketa-translate/core/pkg/business/xrelay"
	"github.com/baketa-translate/core/pkg/observability/xmetrics"
	"github.com/baketa-translate/core/pkg/util/xid"
	"github.com/baketa-translate/core/pkg/xlate"
)

const componentName = "quota"

// relayClient is the subset of *xrelay.Client the gate needs, kept as
// an interface so tests can fake the relay without an httptest server.
type relayClient interface {
	GetQuotaStatus(ctx context.Context, sessionToken string) (xlate.MonthlyUsage, error)
	SyncInit(ctx context.Context, sessionToken string) (xrelay.SyncInitResult, error)
	RedeemPromotion(ctx context.Context, code, sessionToken string) (xrelay.PromotionResult, error)
	SyncBonusTokens(ctx context.Context, sessionToken string, deltas map[string]int) ([]xlate.BonusToken, error)
}

// Gate is the Quota/License Gate: the router's pre-call guard and
// post-call reconciler for cloud-backed translate calls.
type Gate interface {
	// Check enforces spec §4.10's pre-call rules for a cloud dispatch.
	// A non-nil error is always an *xlate.Error the router can inspect
	// for retryability (PlanNotSupported/QuotaExceeded/SessionInvalid
	// are all non-retryable: the router should move to the next
	// backend, not retry this one).
	Check(ctx context.Context, sessionToken string) error

	// Reconcile applies spec §4.10's post-call bookkeeping for one
	// cloud response: server-authoritative replace when MonthlyUsage
	// is attached, local additive increment otherwise, and a
	// quota-exceeded snapshot update without counting as success.
	Reconcile(ctx context.Context, sessionToken string, resp xlate.TranslationResponse)

	// Subscribe returns a live feed of change events for one session.
	Subscribe(sessionToken string) *Subscription
}

// Querier exposes the current license snapshot without mutating it —
// mirrors xlimit.Querier's optional-interface shape.
type Querier interface {
	Query(ctx context.Context, sessionToken string) (xlate.LicenseState, error)
}

// Resetter discards a session's local state, forcing the next Check
// to treat it as never-synced — mirrors xlimit.Resetter.
type Resetter interface {
	Reset(ctx context.Context, sessionToken string) error
}

// QuotaGate is the default Gate implementation: an in-memory
// per-session registry backed by a LicenseStore snapshot and a
// UsageLedger audit trail, with bonus-token and promotion mutations
// going through the relay client for server reconciliation.
type QuotaGate struct {
	registry    *registry
	broadcaster *broadcaster
	relay       relayClient
	store       LicenseStore
	ledger      UsageLedger
	ids         *xid.Generator
	observer    xmetrics.Observer
	now         func() time.Time
}

// Option configures a QuotaGate at construction.
type Option func(*QuotaGate)

// WithLicenseStore attaches a persistent snapshot store; without one
// the gate is purely in-memory and forgets state across restarts.
func WithLicenseStore(store LicenseStore) Option {
	return func(g *QuotaGate) { g.store = store }
}

// WithUsageLedger attaches an append-only audit trail for reconciled
// usage; without one Reconcile only updates in-memory state.
func WithUsageLedger(ledger UsageLedger) Option {
	return func(g *QuotaGate) { g.ledger = ledger }
}

// WithIDGenerator supplies the sonyflake-backed generator used to
// stamp new BonusToken ids (e.g. for locally-originated grants); the
// gate only ever reads ids for tokens it receives from the relay, so
// this is optional and only needed by callers that mint bonuses
// locally.
func WithIDGenerator(gen *xid.Generator) Option {
	return func(g *QuotaGate) { g.ids = gen }
}

func WithObserver(observer xmetrics.Observer) Option {
	return func(g *QuotaGate) { g.observer = observer }
}

// withClock overrides the gate's time source; test-only.
func withClock(now func() time.Time) Option {
	return func(g *QuotaGate) { g.now = now }
}

// NewGate builds a QuotaGate over relay, the client used to fetch
// server-authoritative state and push bonus-ledger syncs.
func NewGate(relay relayClient, opts ...Option) *QuotaGate {
	g := &QuotaGate{
		registry:    newRegistry(),
		broadcaster: newBroadcaster(),
		relay:       relay,
		observer:    xmetrics.NoopObserver{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check implements Gate.
func (g *QuotaGate) Check(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return xlate.NewSessionInvalidError("missing session token")
	}

	_, span := xmetrics.Start(ctx, g.observer, xmetrics.SpanOptions{
		Component: componentName, Operation: "check", Kind: xmetrics.KindClient,
	})
	var err error
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	s := g.registry.get(sessionToken)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.license.Plan == "" {
		err = xlate.NewSessionInvalidError("session has no synced license state")
		return err
	}
	if s.license.Plan == planCloudUnsupported {
		err = xlate.NewPlanNotSupportedError("current plan does not support cloud translation")
		return err
	}
	if s.license.Monthly.Exceeded() && bonusRemainingLocked(s, g.now()) <= 0 {
		err = xlate.NewQuotaExceededError("monthly quota exhausted and no bonus tokens remain")
		return err
	}
	return nil
}

// Reconcile implements Gate.
func (g *QuotaGate) Reconcile(ctx context.Context, sessionToken string, resp xlate.TranslationResponse) {
	s := g.registry.get(sessionToken)
	now := g.now()

	s.mu.Lock()
	var evt *Event
	switch {
	case resp.Success:
		if resp.MonthlyUsage != nil {
			s.license.Monthly = *resp.MonthlyUsage
		} else {
			s.license.Monthly.TokensUsed += resp.Usage.TotalTokens()
		}
		s.license.LastServerSync = now
		snap := s.cloneLocked()
		evt = &Event{Kind: EventLicenseUpdated, SessionToken: sessionToken, License: snap}
	case resp.Error != nil && errors.Is(resp.Error, xlate.ErrQuotaExceeded):
		if resp.MonthlyUsage != nil {
			s.license.Monthly = *resp.MonthlyUsage
		}
		snap := s.cloneLocked()
		evt = &Event{Kind: EventLicenseUpdated, SessionToken: sessionToken, License: snap}
	}
	s.mu.Unlock()

	if evt != nil {
		g.broadcaster.publish(*evt)
	}
	if g.ledger != nil {
		g.appendLedger(ctx, sessionToken, resp, now)
	}
	if g.store != nil {
		_ = g.store.Save(ctx, sessionToken, s.snapshot())
	}
}

func (g *QuotaGate) appendLedger(ctx context.Context, sessionToken string, resp xlate.TranslationResponse, now time.Time) {
	quotaExceeded := resp.Error != nil && errors.Is(resp.Error, xlate.ErrQuotaExceeded)
	record := UsageRecord{
		SessionToken:  sessionToken,
		RequestID:     resp.RequestID,
		OccurredAt:    now,
		InputTokens:   resp.Usage.InputTokens,
		OutputTokens:  resp.Usage.OutputTokens,
		ImageTokens:   resp.Usage.ImageTokens,
		QuotaExceeded: quotaExceeded,
	}
	_ = g.ledger.Append(ctx, []UsageRecord{record})
}

// Subscribe implements Gate.
func (g *QuotaGate) Subscribe(sessionToken string) *Subscription {
	return g.broadcaster.subscribe()
}

// Query implements Querier.
func (g *QuotaGate) Query(ctx context.Context, sessionToken string) (xlate.LicenseState, error) {
	return g.registry.get(sessionToken).snapshot(), nil
}

// Sessions returns every session token the gate currently tracks — the
// Scheduler's per-tick work list for bonus-sync and rollover jobs.
func (g *QuotaGate) Sessions() []string {
	return g.registry.tokens()
}

// Reset implements Resetter.
func (g *QuotaGate) Reset(ctx context.Context, sessionToken string) error {
	g.registry.reset(sessionToken)
	return nil
}

// SyncInit fetches the coalesced startup bundle from the relay and
// seeds the session's in-memory state from it, used once at session
// start before any translate call reaches the gate.
func (g *QuotaGate) SyncInit(ctx context.Context, sessionToken string) (xrelay.SyncInitResult, error) {
	bundle, err := g.relay.SyncInit(ctx, sessionToken)
	if err != nil {
		return xrelay.SyncInitResult{}, err
	}

	s := g.registry.get(sessionToken)
	now := g.now()
	s.mu.Lock()
	s.license.Monthly = bundle.Quota
	s.license.Bonuses = bundle.BonusTokens
	s.license.Promotion = bundle.Promotion
	if bundle.Promotion != nil {
		s.license.Plan = bundle.Promotion.Plan
		s.license.ExpiresAt = bundle.Promotion.ExpiresAt
	} else if s.license.Plan == "" {
		s.license.Plan = "free"
	}
	s.license.LastServerSync = now
	snap := s.cloneLocked()
	s.mu.Unlock()

	g.broadcaster.publish(Event{Kind: EventLicenseUpdated, SessionToken: sessionToken, License: snap})
	if g.store != nil {
		_ = g.store.Save(ctx, sessionToken, snap)
	}
	return bundle, nil
}

// RedeemPromotion posts code to the relay and applies the extension-
// vs-fresh-expiry policy (spec §4.10) to the session's local state
// once the relay confirms the redemption.
func (g *QuotaGate) RedeemPromotion(ctx context.Context, sessionToken, code string) (xrelay.PromotionResult, error) {
	result, err := g.relay.RedeemPromotion(ctx, code, sessionToken)
	if err != nil {
		return xrelay.PromotionResult{}, err
	}

	s := g.registry.get(sessionToken)
	now := g.now()
	s.mu.Lock()
	applyPromotionLocked(s, code, result.Plan, now)
	snap := s.cloneLocked()
	s.mu.Unlock()

	g.broadcaster.publish(Event{Kind: EventPromotionChanged, SessionToken: sessionToken, License: snap})
	if g.store != nil {
		_ = g.store.Save(ctx, sessionToken, snap)
	}
	return result, nil
}

// ConsumeBonus withdraws amount tokens from the session's bonus
// ledger in ascending-expiry order (spec §4.10's consume(amount)),
// returning the amount actually withdrawn.
func (g *QuotaGate) ConsumeBonus(sessionToken string, amount int) int {
	s := g.registry.get(sessionToken)
	now := g.now()

	s.mu.Lock()
	consumed, touched := consumeBonusLocked(s, amount, now)
	var snap xlate.LicenseState
	if len(touched) > 0 {
		snap = s.cloneLocked()
	}
	s.mu.Unlock()

	if len(touched) > 0 {
		g.broadcaster.publish(Event{Kind: EventBonusChanged, SessionToken: sessionToken, License: snap})
	}
	return consumed
}

// SyncBonusLedger pushes the session's pending bonus-token deltas to
// the relay and, on success, replaces the synced ids' Used counts
// with the server's echo (spec §4.10's sync_to_server).
func (g *QuotaGate) SyncBonusLedger(ctx context.Context, sessionToken string) error {
	s := g.registry.get(sessionToken)

	s.mu.Lock()
	deltas := pendingDeltasLocked(s)
	s.mu.Unlock()
	if len(deltas) == 0 {
		return nil
	}

	echoed, err := g.relay.SyncBonusTokens(ctx, sessionToken, deltas)
	if err != nil {
		return err
	}

	s.mu.Lock()
	applyServerBonusEcho(s, echoed, deltas)
	snap := s.cloneLocked()
	s.mu.Unlock()

	g.broadcaster.publish(Event{Kind: EventBonusChanged, SessionToken: sessionToken, License: snap})
	if g.store != nil {
		_ = g.store.Save(ctx, sessionToken, snap)
	}
	return nil
}

var (
	_ Gate     = (*QuotaGate)(nil)
	_ Querier  = (*QuotaGate)(nil)
	_ Resetter = (*QuotaGate)(nil)
)
