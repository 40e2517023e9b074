// Package xrelay is a stateless HTTP client for the cloud translation
// relay: image translation, quota status, startup sync, and promotion
// redemption, all bearer-authenticated with a caller-supplied session
// token.
package xrelay

// All wire types here are snake_case JSON DTOs, kept distinct from the
// pkg/xlate domain types per the module's wire-boundary convention
// (mirrors pkg/subprocclient/wire.go): client.go translates between
// the two at the edge, so a relay payload shape change never reaches
// into domain code.

// translateImageRequest is the wire body for POST /api/translate.
type translateImageRequest struct {
	Provider       string `json:"provider"`
	ImageBase64    string `json:"image_base64"`
	MimeType       string `json:"mime_type"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Context        string `json:"context,omitempty"`
	RequestID      string `json:"request_id"`
}

// boundingBoxWire locates one translated text item within the source image.
type boundingBoxWire struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// translatedItemWire is one piece of translated text.
type translatedItemWire struct {
	Text string           `json:"text"`
	Box  *boundingBoxWire `json:"box,omitempty"`
}

// tokenUsageWire is the token accounting attached to one translate call.
type tokenUsageWire struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	ImageTokens  int `json:"image_tokens"`
}

// monthlyUsageWire is a single year-month's counter against the plan limit.
type monthlyUsageWire struct {
	YearMonth   string `json:"year_month"`
	TokensUsed  int    `json:"tokens_used"`
	TokensLimit int    `json:"tokens_limit"`
	IsExceeded  bool   `json:"is_exceeded"`
}

// bonusTokenWire is a grant of allowance tokens outside the monthly quota.
type bonusTokenWire struct {
	ID        string  `json:"id"`
	Source    string  `json:"source"`
	Granted   int     `json:"granted"`
	Used      int     `json:"used"`
	ExpiresAt *string `json:"expires_at,omitempty"`
}

// promotionStateWire describes an applied promotion code.
type promotionStateWire struct {
	Code      string `json:"code"`
	Plan      string `json:"plan"`
	AppliedAt string `json:"applied_at"`
	ExpiresAt string `json:"expires_at"`
}

// translateImageResponse is the wire reply from POST /api/translate.
type translateImageResponse struct {
	Success          bool                 `json:"success"`
	RequestID        string               `json:"request_id"`
	DetectedText     string               `json:"detected_text"`
	TranslatedText   string               `json:"translated_text"`
	DetectedLanguage string               `json:"detected_language"`
	ProviderID       string               `json:"provider_id"`
	TokenUsage       tokenUsageWire       `json:"token_usage"`
	ProcessingTimeMs float64              `json:"processing_time_ms"`
	Texts            []translatedItemWire `json:"texts,omitempty"`
	MonthlyUsage     *monthlyUsageWire    `json:"monthly_usage,omitempty"`
}

// quotaStatusResponse is the wire reply from GET /api/quota/status.
type quotaStatusResponse struct {
	Success        bool             `json:"success"`
	MonthlyUsage   monthlyUsageWire `json:"monthly_usage"`
	Plan           string           `json:"plan"`
	HasBonusTokens bool             `json:"has_bonus_tokens"`
}

// syncInitResponse is the wire reply from GET /api/sync/init.
type syncInitResponse struct {
	Promotion        *promotionStateWire `json:"promotion,omitempty"`
	Consent          bool                `json:"consent"`
	BonusTokens      []bonusTokenWire    `json:"bonus_tokens,omitempty"`
	Quota            monthlyUsageWire    `json:"quota"`
	PartialFailure   bool                `json:"partial_failure"`
	FailedComponents []string            `json:"failed_components,omitempty"`
}

// bonusDeltaWire is one pending-consumption snapshot sent to
// POST /api/bonus-tokens/sync.
type bonusDeltaWire struct {
	ID         string `json:"id"`
	UsedTokens int    `json:"used_tokens"`
}

// bonusTokensStatusResponse is the wire reply from
// GET /api/bonus-tokens/status.
type bonusTokensStatusResponse struct {
	Success     bool             `json:"success"`
	BonusTokens []bonusTokenWire `json:"bonus_tokens"`
}

// syncBonusTokensRequest is the wire body for POST /api/bonus-tokens/sync.
type syncBonusTokensRequest struct {
	Deltas []bonusDeltaWire `json:"deltas"`
}

// syncBonusTokensResponse echoes the server's accepted used-count for
// every synced bonus id, which the ledger takes as authoritative.
type syncBonusTokensResponse struct {
	Success     bool             `json:"success"`
	BonusTokens []bonusTokenWire `json:"bonus_tokens"`
}

// redeemPromotionRequest is the wire body for POST /api/promotion/redeem.
type redeemPromotionRequest struct {
	Code string `json:"code"`
}

// redeemPromotionResponse is the wire reply for POST /api/promotion/redeem.
type redeemPromotionResponse struct {
	Success   bool   `json:"success"`
	PlanType  string `json:"plan_type"`
	ExpiresAt string `json:"expires_at"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}
