package xrelay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baketa-translate/core/pkg/xlate"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(Config{BaseURL: server.URL, MaxRetries: 2, RetryBackoff: time.Millisecond})
	require.NoError(t, err)
	return client, server
}

func TestNewRejectsMissingBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrMissingHost)
}

func TestTranslateImageSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/translate", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"request_id":"r1","translated_text":"hola","detected_language":"en","provider_id":"p1"}`))
	})

	resp, err := client.TranslateImage(context.Background(), xlate.TranslationRequest{
		RequestID: "r1", SourceText: "aGVsbG8=", SourceLang: "en", TargetLang: "es",
	}, "session-token", "p1")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "hola", resp.TranslatedText)
}

func TestTranslateImageMissingSessionToken(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called without a session token")
	})
	_, err := client.TranslateImage(context.Background(), xlate.TranslationRequest{}, "", "p1")
	require.Error(t, err)
	assert.True(t, xlate.IsRetryable(err) == false)
	var xe *xlate.Error
	require.ErrorAs(t, err, &xe)
	assert.ErrorIs(t, xe, xlate.ErrSessionInvalid)
}

func TestTranslateImageMapsUnauthorized(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED"}}`))
	})
	_, err := client.TranslateImage(context.Background(), xlate.TranslationRequest{}, "tok", "p1")
	require.Error(t, err)
	var xe *xlate.Error
	require.ErrorAs(t, err, &xe)
	assert.ErrorIs(t, xe, xlate.ErrSessionInvalid)
}

func TestTranslateImageMapsQuotaExceededWithSnapshot(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"QUOTA_EXCEEDED"},"monthly_usage":{"year_month":"2025-01","tokens_used":120000,"tokens_limit":100000}}`))
	})
	_, err := client.TranslateImage(context.Background(), xlate.TranslationRequest{}, "tok", "p1")
	require.Error(t, err)

	var qe *quotaExceededErr
	require.ErrorAs(t, err, &qe)
	require.NotNil(t, qe.MonthlyUsage())
	assert.Equal(t, 120000, qe.MonthlyUsage().TokensUsed)

	var xe *xlate.Error
	require.ErrorAs(t, err, &xe)
	assert.ErrorIs(t, xe, xlate.ErrQuotaExceeded)
}

func TestTranslateImageMapsPlanNotSupported(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"PLAN_NOT_SUPPORTED"}}`))
	})
	_, err := client.TranslateImage(context.Background(), xlate.TranslationRequest{}, "tok", "p1")
	require.Error(t, err)
	var xe *xlate.Error
	require.ErrorAs(t, err, &xe)
	assert.ErrorIs(t, xe, xlate.ErrPlanNotSupported)
}

func TestTranslateImageRetriesRateLimitedThenSucceeds(t *testing.T) {
	var attempts int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":"RATE_LIMITED"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"translated_text":"ok"}`))
	})

	resp, err := client.TranslateImage(context.Background(), xlate.TranslationRequest{}, "tok", "p1")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestTranslateImageDoesNotRetryPlanNotSupported(t *testing.T) {
	var attempts int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"PLAN_NOT_SUPPORTED"}}`))
	})

	_, err := client.TranslateImage(context.Background(), xlate.TranslationRequest{}, "tok", "p1")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestGetQuotaStatusCoalescesConcurrentCallers(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"monthly_usage":{"year_month":"2025-01","tokens_used":10,"tokens_limit":100}}`))
	})

	usage, err := client.GetQuotaStatus(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, 10, usage.TokensUsed)

	usage2, err := client.GetQuotaStatus(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, usage, usage2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSyncInitReturnsBundle(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"consent":true,"quota":{"year_month":"2025-01","tokens_used":0,"tokens_limit":100},"bonus_tokens":[{"id":"b1","granted":50}]}`))
	})

	result, err := client.SyncInit(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, result.Consent)
	require.Len(t, result.BonusTokens, 1)
	assert.Equal(t, "b1", result.BonusTokens[0].ID)
}

func TestGetBonusTokensStatusReturnsLedger(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/bonus-tokens/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"bonus_tokens":[{"id":"b1","source":"promotion","granted":100,"used":20}]}`))
	})

	tokens, err := client.GetBonusTokensStatus(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "b1", tokens[0].ID)
	assert.Equal(t, 80, tokens[0].Remaining())
}

func TestSyncBonusTokensPostsDeltasAndReturnsEcho(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/bonus-tokens/sync", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"bonus_tokens":[{"id":"b1","source":"promotion","granted":100,"used":35}]}`))
	})

	tokens, err := client.SyncBonusTokens(context.Background(), "tok", map[string]int{"b1": 35})
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, 35, tokens[0].Used)
}

func TestRedeemPromotionSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/promotion/redeem", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"plan":"pro","expires_at":"2025-12-31T00:00:00Z"}`))
	})

	result, err := client.RedeemPromotion(context.Background(), "CODE123", "tok")
	require.NoError(t, err)
	assert.Equal(t, "pro", result.Plan)
	assert.Equal(t, "2025-12-31T00:00:00Z", result.ExpiresAt)
}
