package router

import (
	"context"

	"github.com/baketa-translate/core/pkg/localengine"
	"github.com/baketa-translate/core/pkg/subprocclient"
	"github.com/baketa-translate/core/pkg/xlate"
)

// Backend is the uniform shape the router dispatches a translate call
// through, regardless of which of the three concrete implementations
// (local engine, subprocess client, cloud relay) sits behind it.
type Backend interface {
	Translate(ctx context.Context, req xlate.TranslationRequest) xlate.TranslationResponse
}

// localBackend adapts the local ONNX engine to Backend. The engine's
// Translate is synchronous and ignores ctx (greedy decode has no
// internal suspension point), so ctx is only checked up front — a
// caller that cancels mid-decode gets the result of the decode already
// in flight, not a truncated one, since the decode loop here is not a
// cancellation point per spec §4.3.
type localBackend struct {
	engine *localengine.Engine
}

// NewLocalBackend wraps a local engine as a router Backend.
func NewLocalBackend(engine *localengine.Engine) Backend {
	return &localBackend{engine: engine}
}

func (b *localBackend) Translate(ctx context.Context, req xlate.TranslationRequest) xlate.TranslationResponse {
	if err := ctx.Err(); err != nil {
		return xlate.TranslationResponse{RequestID: req.RequestID, Error: xlate.NewInternalError(err)}
	}
	return b.engine.Translate(req)
}

// subprocessBackend adapts the breaker-wrapped subprocess client.
type subprocessBackend struct {
	client *subprocclient.BreakerClient
}

// NewSubprocessBackend wraps a breaker-guarded subprocess client as a
// router Backend.
func NewSubprocessBackend(client *subprocclient.BreakerClient) Backend {
	return &subprocessBackend{client: client}
}

func (b *subprocessBackend) Translate(ctx context.Context, req xlate.TranslationRequest) xlate.TranslationResponse {
	return b.client.Translate(ctx, req)
}

// cloudTranslator is the subset of *xrelay.Client the cloud backend
// needs, kept as an interface so router tests don't need a real HTTP
// client.
type cloudTranslator interface {
	TranslateImage(ctx context.Context, req xlate.TranslationRequest, sessionToken, providerID string) (xlate.TranslationResponse, error)
}

// cloudBackend adapts the relay HTTP client. Quota/license gating
// happens in Router, not here — the backend only carries out the
// dispatch the gate already approved.
type cloudBackend struct {
	client     cloudTranslator
	providerID string
}

// NewCloudBackend wraps a relay client as a router Backend. providerID
// is the primary or secondary cloud provider identifier to send on
// every request (spec §6 CloudTranslation.PrimaryProviderId /
// SecondaryProviderId).
func NewCloudBackend(client cloudTranslator, providerID string) Backend {
	return &cloudBackend{client: client, providerID: providerID}
}

func (b *cloudBackend) Translate(ctx context.Context, req xlate.TranslationRequest) xlate.TranslationResponse {
	resp, err := b.client.TranslateImage(ctx, req, req.SessionToken, b.providerID)
	if err != nil {
		xerr, monthly := classifyCloudError(err)
		return xlate.TranslationResponse{
			RequestID:    req.RequestID,
			Success:      false,
			Error:        xerr,
			MonthlyUsage: monthly,
		}
	}
	return resp
}

// monthlyUsageCarrier is implemented by the relay's quota-exceeded
// error (xrelay keeps the concrete type unexported; this is the
// public shape it exposes for exactly this purpose).
type monthlyUsageCarrier interface {
	MonthlyUsage() *xlate.MonthlyUsage
}

// classifyCloudError recovers a concrete *xlate.Error (and, for the
// quota-exceeded case, the attached server snapshot) from whatever
// *xrelay.Client.TranslateImage returned. The relay's quota-exceeded
// error wraps *xlate.Error by embedding rather than by a type the
// router package can see, so it is handled via its exported
// MonthlyUsage() accessor and errors.Is against the Kind sentinels
// instead of a direct type assertion.
func classifyCloudError(err error) (*xlate.Error, *xlate.MonthlyUsage) {
	if xe, ok := err.(*xlate.Error); ok {
		return xe, nil
	}
	if muc, ok := err.(monthlyUsageCarrier); ok {
		retryable := false
		if re, ok := err.(interface{ RetryableErr() bool }); ok {
			retryable = re.RetryableErr()
		}
		xe := xlate.NewQuotaExceededError(err.Error())
		xe.Retryable = retryable
		return xe, muc.MonthlyUsage()
	}
	return xlate.NewInternalError(err), nil
}
