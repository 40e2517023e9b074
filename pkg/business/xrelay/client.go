package xrelay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/baketa-translate/core/pkg/resilience/xretry"
	"github.com/baketa-translate/core/pkg/xlate"
)

const (
	pathTranslateImage  = "/api/translate"
	pathQuotaStatus     = "/api/quota/status"
	pathSyncInit        = "/api/sync/init"
	pathRedeemPromotion = "/api/promotion/redeem"
	pathBonusStatus     = "/api/bonus-tokens/status"
	pathBonusSync       = "/api/bonus-tokens/sync"

	keyQuotaStatus = "get_quota_status"
	keySyncInit    = "sync_init"
)

// Config configures a Client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int           // default 3
	RetryBackoff  time.Duration // default 1s
	CoalesceTTL   time.Duration // default 30s, applies to get_quota_status/sync_init
	HTTPClientCfg HTTPClientConfig
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.CoalesceTTL <= 0 {
		c.CoalesceTTL = 30 * time.Second
	}
	return c
}

// Client is the stateless HTTP client for the cloud translation relay.
// Base URL and per-request timeout are fixed at construction; the
// bearer session token is supplied per call, since the relay treats it
// as externally managed state, not something this client refreshes.
type Client struct {
	http      *httpClient
	retryer   *xretry.Retryer
	coalescer *coalescer
}

// SyncInitResult is the startup-sync payload returned by sync_init.
type SyncInitResult struct {
	Promotion        *xlate.PromotionState
	Consent          bool
	BonusTokens      []xlate.BonusToken
	Quota            xlate.MonthlyUsage
	PartialFailure   bool
	FailedComponents []string
}

// PromotionResult is the outcome of redeeming a promotion code.
type PromotionResult struct {
	Plan      string
	ExpiresAt string
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingHost
	}
	cfg = cfg.withDefaults()
	hcfg := cfg.HTTPClientCfg
	hcfg.BaseURL = cfg.BaseURL
	if hcfg.Timeout <= 0 {
		hcfg.Timeout = cfg.Timeout
	}
	return &Client{
		http: newHTTPClient(hcfg),
		retryer: xretry.NewRetryer(
			xretry.WithRetryPolicy(xretry.NewFixedRetry(cfg.MaxRetries)),
			xretry.WithBackoffPolicy(xretry.NewFixedBackoff(cfg.RetryBackoff)),
		),
		coalescer: newCoalescer(cfg.CoalesceTTL),
	}, nil
}

// TranslateImage posts one image-translation request to the relay.
func (c *Client) TranslateImage(ctx context.Context, req xlate.TranslationRequest, sessionToken, providerID string) (xlate.TranslationResponse, error) {
	if sessionToken == "" {
		return xlate.TranslationResponse{}, xlate.NewSessionInvalidError("missing session token")
	}

	mimeType := req.ImageMimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	wireReq := translateImageRequest{
		Provider:       providerID,
		ImageBase64:    req.SourceText,
		MimeType:       mimeType,
		SourceLanguage: req.SourceLang,
		TargetLanguage: req.TargetLang,
		Context:        req.Context,
		RequestID:      req.RequestID,
	}

	result, err := xretry.DoWithResult(ctx, c.retryer, func(ctx context.Context) (translateImageResponse, error) {
		raw, doErr := c.http.do(ctx, "POST", pathTranslateImage, sessionToken, wireReq)
		if doErr != nil {
			return translateImageResponse{}, doErr
		}
		if raw.statusCode >= 400 {
			return translateImageResponse{}, mapTranslateError(raw.statusCode, raw.body)
		}
		var resp translateImageResponse
		if len(raw.body) > 0 {
			if unmarshalErr := json.Unmarshal(raw.body, &resp); unmarshalErr != nil {
				return translateImageResponse{}, NewPermanentError(unmarshalErr)
			}
		}
		return resp, nil
	})
	if err != nil {
		return xlate.TranslationResponse{}, translateRelayErr(err)
	}

	items := make([]xlate.TranslatedItem, 0, len(result.Texts))
	for _, item := range result.Texts {
		items = append(items, itemFromWire(item))
	}

	var monthly *xlate.MonthlyUsage
	if result.MonthlyUsage != nil {
		u := monthlyUsageFromWire(*result.MonthlyUsage)
		monthly = &u
	}

	return xlate.TranslationResponse{
		RequestID:        result.RequestID,
		Success:          result.Success,
		DetectedLanguage: result.DetectedLanguage,
		TranslatedText:   result.TranslatedText,
		Items:            items,
		Provider:         result.ProviderID,
		Usage:            tokenUsageFromWire(result.TokenUsage),
		ProcessingTime:   time.Duration(result.ProcessingTimeMs * float64(time.Millisecond)),
		MonthlyUsage:     monthly,
	}, nil
}

func tokenUsageFromWire(w tokenUsageWire) xlate.TokenUsage {
	return xlate.TokenUsage{InputTokens: w.InputTokens, OutputTokens: w.OutputTokens, ImageTokens: w.ImageTokens}
}

func monthlyUsageFromWire(w monthlyUsageWire) xlate.MonthlyUsage {
	return xlate.MonthlyUsage{YearMonth: w.YearMonth, TokensUsed: w.TokensUsed, TokensLimit: w.TokensLimit}
}

func itemFromWire(w translatedItemWire) xlate.TranslatedItem {
	item := xlate.TranslatedItem{Text: w.Text}
	if w.Box != nil {
		item.Box = &xlate.BoundingBox{X: w.Box.X, Y: w.Box.Y, Width: w.Box.Width, Height: w.Box.Height}
	}
	return item
}

func bonusTokenFromWire(w bonusTokenWire) xlate.BonusToken {
	b := xlate.BonusToken{ID: w.ID, Source: w.Source, Granted: w.Granted, Used: w.Used}
	if w.ExpiresAt != nil {
		if t, parseErr := time.Parse(time.RFC3339, *w.ExpiresAt); parseErr == nil {
			b.ExpiresAt = &t
		}
	}
	return b
}

func promotionFromWire(w promotionStateWire) xlate.PromotionState {
	p := xlate.PromotionState{Code: w.Code, Plan: w.Plan}
	if t, err := time.Parse(time.RFC3339, w.AppliedAt); err == nil {
		p.AppliedAt = t
	}
	if t, err := time.Parse(time.RFC3339, w.ExpiresAt); err == nil {
		p.ExpiresAt = t
	}
	return p
}

// classifiedError is what the per-status mapping functions return
// inside the retry loop: it implements Retryable() bool so the
// xretry policy can decide whether to try the same call again, and it
// carries everything translateRelayErr needs to build the final
// xlate.Error once the loop is done retrying (or gives up).
type classifiedError struct {
	kind         xlate.Kind
	message      string
	statusCode   int
	retryable    bool
	monthlyUsage *xlate.MonthlyUsage
}

func (e *classifiedError) Error() string   { return string(e.kind) + ": " + e.message }
func (e *classifiedError) Retryable() bool { return e.retryable }

// mapTranslateError implements spec §4.9's status-to-kind mapping for
// translate_image, with 403 splitting on the body's error code: a
// quota-exceeded body (edge case: cloud quota already spent) carries
// its own MonthlyUsage snapshot so the gate can update its local view,
// while any other 403 means the current plan doesn't support cloud
// translation at all.
func mapTranslateError(statusCode int, body []byte) error {
	switch statusCode {
	case 401:
		return &classifiedError{kind: xlate.KindSessionInvalid, message: "relay rejected session token"}
	case 403:
		var parsed struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
			MonthlyUsage *monthlyUsageWire `json:"monthly_usage"`
		}
		_ = json.Unmarshal(body, &parsed)
		if parsed.Error.Code == "QUOTA_EXCEEDED" {
			ce := &classifiedError{kind: xlate.KindQuotaExceeded, message: "cloud quota exceeded"}
			if parsed.MonthlyUsage != nil {
				u := monthlyUsageFromWire(*parsed.MonthlyUsage)
				ce.monthlyUsage = &u
			}
			return ce
		}
		return &classifiedError{kind: xlate.KindPlanNotSupported, message: "plan does not support cloud translation"}
	case 429:
		return &classifiedError{kind: xlate.KindRateLimited, message: "relay rate limit exceeded", retryable: true}
	default:
		return apiClassifiedError(statusCode, body)
	}
}

func apiClassifiedError(statusCode int, body []byte) error {
	apiErr := parseAPIError(statusCode, body)
	return &classifiedError{
		kind:       xlate.KindAPIError,
		message:    apiErr.Error(),
		statusCode: statusCode,
		retryable:  apiErr.Retryable(),
	}
}

// translateRelayErr maps a transport/coalescer-level error into the
// shared xlate taxonomy, once the retry loop is done with it.
func translateRelayErr(err error) error {
	switch e := err.(type) {
	case *classifiedError:
		switch e.kind {
		case xlate.KindSessionInvalid:
			return xlate.NewSessionInvalidError(e.message)
		case xlate.KindPlanNotSupported:
			return xlate.NewPlanNotSupportedError(e.message)
		case xlate.KindQuotaExceeded:
			xe := xlate.NewQuotaExceededError(e.message)
			if e.monthlyUsage != nil {
				return &quotaExceededErr{Error: xe, monthlyUsage: e.monthlyUsage}
			}
			return xe
		case xlate.KindRateLimited:
			return xlate.NewRateLimitedError(e.message)
		default:
			return xlate.NewAPIError(e.statusCode, e.message, !e.retryable)
		}
	case *TemporaryError:
		return xlate.NewNetworkError(e.Unwrap())
	case *PermanentError:
		return xlate.NewInternalError(e.Unwrap())
	default:
		return xlate.NewInternalError(err)
	}
}

// quotaExceededErr carries the server's monthly_usage snapshot
// alongside the quota-exceeded classification, so the gate's
// post-call reconciliation (spec §4.10) can update the local snapshot
// from the same response that reported the overage.
type quotaExceededErr struct {
	*xlate.Error
	monthlyUsage *xlate.MonthlyUsage
}

// MonthlyUsage returns the server-reported usage snapshot attached to
// a quota-exceeded response.
func (e *quotaExceededErr) MonthlyUsage() *xlate.MonthlyUsage { return e.monthlyUsage }

// GetQuotaStatus returns the server-authoritative monthly usage view,
// coalesced across concurrent callers per spec §4.9.
func (c *Client) GetQuotaStatus(ctx context.Context, sessionToken string) (xlate.MonthlyUsage, error) {
	if sessionToken == "" {
		return xlate.MonthlyUsage{}, xlate.NewSessionInvalidError("missing session token")
	}

	v, err := c.coalescer.do(keyQuotaStatus, func() (any, error) {
		return xretry.DoWithResult(ctx, c.retryer, func(ctx context.Context) (xlate.MonthlyUsage, error) {
			raw, doErr := c.http.do(ctx, "GET", pathQuotaStatus, sessionToken, nil)
			if doErr != nil {
				return xlate.MonthlyUsage{}, doErr
			}
			if raw.statusCode >= 400 {
				return xlate.MonthlyUsage{}, mapGenericError(raw.statusCode, raw.body)
			}
			var resp quotaStatusResponse
			if unmarshalErr := json.Unmarshal(raw.body, &resp); unmarshalErr != nil {
				return xlate.MonthlyUsage{}, NewPermanentError(unmarshalErr)
			}
			return monthlyUsageFromWire(resp.MonthlyUsage), nil
		})
	})
	if err != nil {
		return xlate.MonthlyUsage{}, translateRelayErr(err)
	}
	return v.(xlate.MonthlyUsage), nil
}

// SyncInit fetches the coalesced startup-sync bundle.
func (c *Client) SyncInit(ctx context.Context, sessionToken string) (SyncInitResult, error) {
	if sessionToken == "" {
		return SyncInitResult{}, xlate.NewSessionInvalidError("missing session token")
	}

	v, err := c.coalescer.do(keySyncInit, func() (any, error) {
		return xretry.DoWithResult(ctx, c.retryer, func(ctx context.Context) (SyncInitResult, error) {
			raw, doErr := c.http.do(ctx, "GET", pathSyncInit, sessionToken, nil)
			if doErr != nil {
				return SyncInitResult{}, doErr
			}
			if raw.statusCode >= 400 {
				return SyncInitResult{}, mapGenericError(raw.statusCode, raw.body)
			}
			var resp syncInitResponse
			if unmarshalErr := json.Unmarshal(raw.body, &resp); unmarshalErr != nil {
				return SyncInitResult{}, NewPermanentError(unmarshalErr)
			}

			bonuses := make([]xlate.BonusToken, 0, len(resp.BonusTokens))
			for _, b := range resp.BonusTokens {
				bonuses = append(bonuses, bonusTokenFromWire(b))
			}
			var promo *xlate.PromotionState
			if resp.Promotion != nil {
				p := promotionFromWire(*resp.Promotion)
				promo = &p
			}
			return SyncInitResult{
				Promotion:        promo,
				Consent:          resp.Consent,
				BonusTokens:      bonuses,
				Quota:            monthlyUsageFromWire(resp.Quota),
				PartialFailure:   resp.PartialFailure,
				FailedComponents: resp.FailedComponents,
			}, nil
		})
	})
	if err != nil {
		return SyncInitResult{}, translateRelayErr(err)
	}
	return v.(SyncInitResult), nil
}

// RedeemPromotion posts a promotion code to the relay.
func (c *Client) RedeemPromotion(ctx context.Context, code, sessionToken string) (PromotionResult, error) {
	if sessionToken == "" {
		return PromotionResult{}, xlate.NewSessionInvalidError("missing session token")
	}

	result, err := xretry.DoWithResult(ctx, c.retryer, func(ctx context.Context) (redeemPromotionResponse, error) {
		raw, doErr := c.http.do(ctx, "POST", pathRedeemPromotion, sessionToken, redeemPromotionRequest{Code: code})
		if doErr != nil {
			return redeemPromotionResponse{}, doErr
		}
		if raw.statusCode >= 400 {
			return redeemPromotionResponse{}, mapGenericError(raw.statusCode, raw.body)
		}
		var resp redeemPromotionResponse
		if unmarshalErr := json.Unmarshal(raw.body, &resp); unmarshalErr != nil {
			return redeemPromotionResponse{}, NewPermanentError(unmarshalErr)
		}
		return resp, nil
	})
	if err != nil {
		return PromotionResult{}, translateRelayErr(err)
	}
	return PromotionResult{Plan: result.PlanType, ExpiresAt: result.ExpiresAt}, nil
}

// GetBonusTokensStatus fetches the server's current bonus-token ledger
// snapshot for a session, used to seed or refresh the local ledger.
func (c *Client) GetBonusTokensStatus(ctx context.Context, sessionToken string) ([]xlate.BonusToken, error) {
	if sessionToken == "" {
		return nil, xlate.NewSessionInvalidError("missing session token")
	}

	result, err := xretry.DoWithResult(ctx, c.retryer, func(ctx context.Context) (bonusTokensStatusResponse, error) {
		raw, doErr := c.http.do(ctx, "GET", pathBonusStatus, sessionToken, nil)
		if doErr != nil {
			return bonusTokensStatusResponse{}, doErr
		}
		if raw.statusCode >= 400 {
			return bonusTokensStatusResponse{}, mapGenericError(raw.statusCode, raw.body)
		}
		var resp bonusTokensStatusResponse
		if unmarshalErr := json.Unmarshal(raw.body, &resp); unmarshalErr != nil {
			return bonusTokensStatusResponse{}, NewPermanentError(unmarshalErr)
		}
		return resp, nil
	})
	if err != nil {
		return nil, translateRelayErr(err)
	}
	tokens := make([]xlate.BonusToken, 0, len(result.BonusTokens))
	for _, w := range result.BonusTokens {
		tokens = append(tokens, bonusTokenFromWire(w))
	}
	return tokens, nil
}

// SyncBonusTokens pushes the ledger's pending per-bonus used-token
// deltas to the relay and returns the server's echoed snapshot for the
// synced ids, which the caller takes as authoritative (spec §4.10:
// sync_to_server replaces local used counts with the server echo and
// clears the synced pending deltas).
func (c *Client) SyncBonusTokens(ctx context.Context, sessionToken string, deltas map[string]int) ([]xlate.BonusToken, error) {
	if sessionToken == "" {
		return nil, xlate.NewSessionInvalidError("missing session token")
	}

	wireDeltas := make([]bonusDeltaWire, 0, len(deltas))
	for id, used := range deltas {
		wireDeltas = append(wireDeltas, bonusDeltaWire{ID: id, UsedTokens: used})
	}

	result, err := xretry.DoWithResult(ctx, c.retryer, func(ctx context.Context) (syncBonusTokensResponse, error) {
		raw, doErr := c.http.do(ctx, "POST", pathBonusSync, sessionToken, syncBonusTokensRequest{Deltas: wireDeltas})
		if doErr != nil {
			return syncBonusTokensResponse{}, doErr
		}
		if raw.statusCode >= 400 {
			return syncBonusTokensResponse{}, mapGenericError(raw.statusCode, raw.body)
		}
		var resp syncBonusTokensResponse
		if unmarshalErr := json.Unmarshal(raw.body, &resp); unmarshalErr != nil {
			return syncBonusTokensResponse{}, NewPermanentError(unmarshalErr)
		}
		return resp, nil
	})
	if err != nil {
		return nil, translateRelayErr(err)
	}
	tokens := make([]xlate.BonusToken, 0, len(result.BonusTokens))
	for _, w := range result.BonusTokens {
		tokens = append(tokens, bonusTokenFromWire(w))
	}
	return tokens, nil
}

// mapGenericError applies the shared 401/403/429/5xx mapping (spec
// §4.9) to endpoints that don't need translate_image's quota-exceeded
// body inspection.
func mapGenericError(statusCode int, body []byte) error {
	switch statusCode {
	case 401:
		return &classifiedError{kind: xlate.KindSessionInvalid, message: "relay rejected session token"}
	case 403:
		return &classifiedError{kind: xlate.KindPlanNotSupported, message: "plan does not support this operation"}
	case 429:
		return &classifiedError{kind: xlate.KindRateLimited, message: "relay rate limit exceeded", retryable: true}
	default:
		return apiClassifiedError(statusCode, body)
	}
}
