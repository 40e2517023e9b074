// Package xlate holds the data model shared by every translation
// backend and by the router: requests/responses, usage accounting,
// licensing state, and the ordered backend route. Every other package
// in this module depends on xlate; xlate depends on nothing in this
// module.
package xlate

import "time"

// TranslationRequest is the unit of work a caller submits to the
// router. The same value flows to whichever backend the router picks
// (local engine, subprocess, or cloud relay): for the text backends
// SourceText is the text to translate; for the cloud relay's image
// path SourceText carries the base64-encoded image payload and
// ImageMimeType its media type, since relay's translate_image
// operation does OCR and translation in one call.
type TranslationRequest struct {
	RequestID     string
	SourceText    string
	SourceLang    string
	TargetLang    string
	Context       string
	SessionToken  string
	ImageMimeType string
}

// BoundingBox locates a translated text item within a captured image,
// used by the cloud relay's multi-item OCR-adjacent responses.
type BoundingBox struct {
	X, Y, Width, Height float64
}

// TranslatedItem is one piece of translated text, optionally located.
type TranslatedItem struct {
	Text string
	Box  *BoundingBox
}

// TranslationResponse is the unit of result the router returns.
//
// Invariant: exactly one of Success and Error is populated in the
// meaningful sense — Success true implies Error is nil; Success false
// implies Error is non-nil. Callers should treat both-set or
// neither-set as a bug upstream, not a valid state.
type TranslationResponse struct {
	RequestID        string
	Success          bool
	DetectedLanguage string
	TranslatedText   string
	Items            []TranslatedItem
	Provider         string
	Usage            TokenUsage
	ProcessingTime   time.Duration
	Error            *Error
	MonthlyUsage     *MonthlyUsage
}

// Validate reports whether the response satisfies the
// success-xor-error invariant. Callers that construct a
// TranslationResponse by hand (tests, wire-boundary adapters) should
// call this before returning it across the backend boundary.
func (r TranslationResponse) Validate() error {
	hasError := r.Error != nil
	if r.Success == hasError {
		return newInternalError("translation response violates success/error invariant")
	}
	return nil
}

// TokenUsage is the token accounting attached to one translate call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	ImageTokens  int
}

// TotalTokens is the derived sum of all counted token kinds.
func (u TokenUsage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens + u.ImageTokens
}

// MonthlyUsage is a single year-month's counter against the plan limit.
type MonthlyUsage struct {
	YearMonth  string // "YYYY-MM"
	TokensUsed int
	TokensLimit int
}

// Exceeded reports whether usage has reached or passed the limit.
func (m MonthlyUsage) Exceeded() bool {
	return m.TokensLimit > 0 && m.TokensUsed >= m.TokensLimit
}

// BonusToken is a grant of allowance tokens outside the monthly quota.
//
// Invariant: 0 <= Used <= Granted.
type BonusToken struct {
	ID        string
	Source    string
	Granted   int
	Used      int
	ExpiresAt *time.Time
}

// Remaining is the derived unused balance, clamped to zero.
func (b BonusToken) Remaining() int {
	r := b.Granted - b.Used
	if r < 0 {
		return 0
	}
	return r
}

// PromotionState describes an applied promotion code.
type PromotionState struct {
	Code      string
	Plan      string
	AppliedAt time.Time
	ExpiresAt time.Time
}

// Valid reports whether the promotion is still in effect at now.
func (p PromotionState) Valid(now time.Time) bool {
	return now.Before(p.ExpiresAt)
}

// LicenseState is the full licensing snapshot for one session.
type LicenseState struct {
	Plan           string
	ExpiresAt      time.Time
	Monthly        MonthlyUsage
	Bonuses        []BonusToken
	Promotion      *PromotionState
	LastServerSync time.Time
}

// BackendKind identifies one of the three translation backends.
type BackendKind string

const (
	BackendLocal      BackendKind = "local"
	BackendSubprocess BackendKind = "subprocess"
	BackendCloud      BackendKind = "cloud"
)

// BackendPolicy is the per-backend retry/timeout configuration used by
// a BackendRoute.
type BackendPolicy struct {
	MaxRetries int
	Timeout    time.Duration
}

// BackendRoute is the ordered fallback chain the router walks for one
// translate call.
type BackendRoute struct {
	Preference []BackendKind
	Policies   map[BackendKind]BackendPolicy
}

// PolicyFor returns the configured policy for a backend, or a
// conservative zero-value default policy if none was configured.
func (r BackendRoute) PolicyFor(kind BackendKind) BackendPolicy {
	if p, ok := r.Policies[kind]; ok {
		return p
	}
	return BackendPolicy{MaxRetries: 1, Timeout: 10 * time.Second}
}
