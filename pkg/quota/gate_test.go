package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baketa-translate/core/pkg/business/xrelay"
	"github.com/baketa-translate/core/pkg/xlate"
)

type fakeRelay struct {
	syncInitResult    xrelay.SyncInitResult
	syncInitErr       error
	redeemResult      xrelay.PromotionResult
	redeemErr         error
	quotaStatus       xlate.MonthlyUsage
	quotaStatusErr    error
	syncBonusEcho     []xlate.BonusToken
	syncBonusErr      error
	lastSyncedDeltas  map[string]int
}

func (f *fakeRelay) GetQuotaStatus(ctx context.Context, sessionToken string) (xlate.MonthlyUsage, error) {
	return f.quotaStatus, f.quotaStatusErr
}

func (f *fakeRelay) SyncInit(ctx context.Context, sessionToken string) (xrelay.SyncInitResult, error) {
	return f.syncInitResult, f.syncInitErr
}

func (f *fakeRelay) RedeemPromotion(ctx context.Context, code, sessionToken string) (xrelay.PromotionResult, error) {
	return f.redeemResult, f.redeemErr
}

func (f *fakeRelay) SyncBonusTokens(ctx context.Context, sessionToken string, deltas map[string]int) ([]xlate.BonusToken, error) {
	f.lastSyncedDeltas = deltas
	return f.syncBonusEcho, f.syncBonusErr
}

func TestCheckRejectsMissingSessionToken(t *testing.T) {
	g := NewGate(&fakeRelay{})
	err := g.Check(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, xlate.ErrSessionInvalid)
}

func TestCheckRejectsNeverSyncedSession(t *testing.T) {
	g := NewGate(&fakeRelay{})
	err := g.Check(context.Background(), "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, xlate.ErrSessionInvalid)
}

func TestCheckRejectsPlanNotSupported(t *testing.T) {
	relay := &fakeRelay{syncInitResult: xrelay.SyncInitResult{
		Promotion: &xlate.PromotionState{Plan: "suspended", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	g := NewGate(relay)
	_, err := g.SyncInit(context.Background(), "tok")
	require.NoError(t, err)

	err = g.Check(context.Background(), "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, xlate.ErrPlanNotSupported)
}

func TestCheckRejectsQuotaExceededWithNoBonus(t *testing.T) {
	relay := &fakeRelay{syncInitResult: xrelay.SyncInitResult{
		Quota: xlate.MonthlyUsage{YearMonth: "2025-01", TokensUsed: 100, TokensLimit: 100},
	}}
	g := NewGate(relay)
	_, err := g.SyncInit(context.Background(), "tok")
	require.NoError(t, err)

	err = g.Check(context.Background(), "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, xlate.ErrQuotaExceeded)
}

func TestCheckRejectsQuotaExceededWithOnlyExpiredBonus(t *testing.T) {
	expired := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	relay := &fakeRelay{syncInitResult: xrelay.SyncInitResult{
		Quota:       xlate.MonthlyUsage{YearMonth: "2025-01", TokensUsed: 100, TokensLimit: 100},
		BonusTokens: []xlate.BonusToken{{ID: "b1", Granted: 50, ExpiresAt: &expired}},
	}}
	g := NewGate(relay, withClock(func() time.Time { return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC) }))
	_, err := g.SyncInit(context.Background(), "tok")
	require.NoError(t, err)

	err = g.Check(context.Background(), "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, xlate.ErrQuotaExceeded)
}

func TestCheckAllowsQuotaExceededWithBonusRemaining(t *testing.T) {
	relay := &fakeRelay{syncInitResult: xrelay.SyncInitResult{
		Quota:       xlate.MonthlyUsage{YearMonth: "2025-01", TokensUsed: 100, TokensLimit: 100},
		BonusTokens: []xlate.BonusToken{{ID: "b1", Granted: 50}},
	}}
	g := NewGate(relay)
	_, err := g.SyncInit(context.Background(), "tok")
	require.NoError(t, err)

	require.NoError(t, g.Check(context.Background(), "tok"))
}

func TestReconcileSuccessReplacesServerSnapshot(t *testing.T) {
	g := NewGate(&fakeRelay{syncInitResult: xrelay.SyncInitResult{
		Quota: xlate.MonthlyUsage{YearMonth: "2025-01", TokensUsed: 10, TokensLimit: 100},
	}})
	_, err := g.SyncInit(context.Background(), "tok")
	require.NoError(t, err)

	g.Reconcile(context.Background(), "tok", xlate.TranslationResponse{
		Success:      true,
		MonthlyUsage: &xlate.MonthlyUsage{YearMonth: "2025-01", TokensUsed: 55, TokensLimit: 100},
	})

	state, _ := g.Query(context.Background(), "tok")
	assert.Equal(t, 55, state.Monthly.TokensUsed)
}

func TestReconcileSuccessAppliesLocalAdditiveIncrement(t *testing.T) {
	g := NewGate(&fakeRelay{syncInitResult: xrelay.SyncInitResult{
		Quota: xlate.MonthlyUsage{YearMonth: "2025-01", TokensUsed: 10, TokensLimit: 100},
	}})
	_, err := g.SyncInit(context.Background(), "tok")
	require.NoError(t, err)

	g.Reconcile(context.Background(), "tok", xlate.TranslationResponse{
		Success: true,
		Usage:   xlate.TokenUsage{InputTokens: 5, OutputTokens: 5},
	})

	state, _ := g.Query(context.Background(), "tok")
	assert.Equal(t, 20, state.Monthly.TokensUsed)
}

func TestReconcileQuotaExceededUpdatesSnapshotWithoutSuccess(t *testing.T) {
	g := NewGate(&fakeRelay{syncInitResult: xrelay.SyncInitResult{
		Quota: xlate.MonthlyUsage{YearMonth: "2025-01", TokensUsed: 10, TokensLimit: 100},
	}})
	_, err := g.SyncInit(context.Background(), "tok")
	require.NoError(t, err)

	g.Reconcile(context.Background(), "tok", xlate.TranslationResponse{
		Success: false,
		Error:   xlate.NewQuotaExceededError("overage"),
		MonthlyUsage: &xlate.MonthlyUsage{YearMonth: "2025-01", TokensUsed: 120000, TokensLimit: 100000},
	})

	state, _ := g.Query(context.Background(), "tok")
	assert.Equal(t, 120000, state.Monthly.TokensUsed)
	assert.True(t, state.Monthly.Exceeded())
}

func TestRedeemPromotionAppliesExtensionPolicy(t *testing.T) {
	existingExpiry := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	g := NewGate(&fakeRelay{redeemResult: xrelay.PromotionResult{Plan: "pro", ExpiresAt: "2025-07-01T00:00:00Z"}},
		withClock(func() time.Time { return time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC) }))

	s := g.registry.get("tok")
	s.license.Plan = "pro"
	s.license.Promotion = &xlate.PromotionState{Code: "OLD", Plan: "pro", ExpiresAt: existingExpiry}

	_, err := g.RedeemPromotion(context.Background(), "tok", "NEWCODE")
	require.NoError(t, err)

	state, _ := g.Query(context.Background(), "tok")
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), state.Promotion.ExpiresAt)
}

func TestSubscribeReceivesReconcileEvent(t *testing.T) {
	g := NewGate(&fakeRelay{})
	sub := g.Subscribe("tok")
	defer sub.Close()

	g.registry.get("tok").license.Plan = "free"
	g.Reconcile(context.Background(), "tok", xlate.TranslationResponse{Success: true, Usage: xlate.TokenUsage{InputTokens: 1}})

	select {
	case evt := <-sub.Events():
		assert.Equal(t, EventLicenseUpdated, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a license-updated event")
	}
}

func TestConsumeBonusThenSyncLedgerRoundTrips(t *testing.T) {
	relay := &fakeRelay{syncBonusEcho: []xlate.BonusToken{{ID: "b1", Granted: 100, Used: 30}}}
	g := NewGate(relay)
	g.registry.get("tok").license.Bonuses = []xlate.BonusToken{{ID: "b1", Granted: 100}}

	consumed := g.ConsumeBonus("tok", 30)
	assert.Equal(t, 30, consumed)

	require.NoError(t, g.SyncBonusLedger(context.Background(), "tok"))
	assert.Equal(t, map[string]int{"b1": 30}, relay.lastSyncedDeltas)

	state, _ := g.Query(context.Background(), "tok")
	assert.Equal(t, 30, state.Bonuses[0].Used)
}

func TestResetForgetsLocalState(t *testing.T) {
	g := NewGate(&fakeRelay{})
	g.registry.get("tok").license.Plan = "pro"

	require.NoError(t, g.Reset(context.Background(), "tok"))

	err := g.Check(context.Background(), "tok")
	assert.ErrorIs(t, err, xlate.ErrSessionInvalid)
}
