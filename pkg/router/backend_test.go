package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baketa-translate/core/pkg/xlate"
)

type fakeCloudTranslator struct {
	resp xlate.TranslationResponse
	err  error
}

func (f *fakeCloudTranslator) TranslateImage(ctx context.Context, req xlate.TranslationRequest, sessionToken, providerID string) (xlate.TranslationResponse, error) {
	return f.resp, f.err
}

func TestCloudBackendPassesThroughSuccess(t *testing.T) {
	client := &fakeCloudTranslator{resp: xlate.TranslationResponse{Success: true, TranslatedText: "hi"}}
	backend := NewCloudBackend(client, "primary")

	resp := backend.Translate(context.Background(), xlate.TranslationRequest{RequestID: "r1", SessionToken: "tok"})
	require.True(t, resp.Success)
	assert.Equal(t, "hi", resp.TranslatedText)
}

func TestCloudBackendMapsPlainXlateError(t *testing.T) {
	client := &fakeCloudTranslator{err: xlate.NewSessionInvalidError("expired")}
	backend := NewCloudBackend(client, "primary")

	resp := backend.Translate(context.Background(), xlate.TranslationRequest{RequestID: "r1"})
	require.False(t, resp.Success)
	require.Error(t, resp.Error)
	assert.ErrorIs(t, resp.Error, xlate.ErrSessionInvalid)
}

// quotaExceededLike mimics xrelay's unexported quotaExceededErr shape:
// an embedded *xlate.Error (promoting Error/RetryableErr/Is) plus an
// exported MonthlyUsage() accessor, since the real type isn't
// reachable from this package.
type quotaExceededLike struct {
	*xlate.Error
	monthly *xlate.MonthlyUsage
}

func (q *quotaExceededLike) MonthlyUsage() *xlate.MonthlyUsage { return q.monthly }

func TestCloudBackendRecoversMonthlyUsageFromQuotaExceeded(t *testing.T) {
	usage := &xlate.MonthlyUsage{YearMonth: "2025-01", TokensUsed: 120000, TokensLimit: 100000}
	err := &quotaExceededLike{Error: xlate.NewQuotaExceededError("over limit"), monthly: usage}
	client := &fakeCloudTranslator{err: err}
	backend := NewCloudBackend(client, "primary")

	resp := backend.Translate(context.Background(), xlate.TranslationRequest{RequestID: "r1"})
	require.False(t, resp.Success)
	require.Error(t, resp.Error)
	assert.ErrorIs(t, resp.Error, xlate.ErrQuotaExceeded)
	assert.False(t, resp.Error.Retryable)
	require.NotNil(t, resp.MonthlyUsage)
	assert.Equal(t, 120000, resp.MonthlyUsage.TokensUsed)
}

func TestCloudBackendFallsBackToInternalError(t *testing.T) {
	client := &fakeCloudTranslator{err: errors.New("boom")}
	backend := NewCloudBackend(client, "primary")

	resp := backend.Translate(context.Background(), xlate.TranslationRequest{RequestID: "r1"})
	require.False(t, resp.Success)
	require.Error(t, resp.Error)
	assert.ErrorIs(t, resp.Error, xlate.ErrInternal)
}
