package quota

import (
	"time"

	"github.com/baketa-translate/core/pkg/xlate"
)

// planCloudUnsupported is the plan identifier the relay uses for a
// session explicitly barred from cloud translation (e.g. suspended
// for abuse) — distinct from "free", which can still reach the cloud
// backend through bonus-token allowance.
const planCloudUnsupported = "suspended"

// planRank orders plan identifiers for the "Pro-or-higher" check in
// the extension policy below. Unknown plan strings rank as Free (the
// conservative default — an unrecognized plan never short-circuits a
// fresh expiry into an extension).
var planRank = map[string]int{
	"free":    0,
	"pro":     1,
	"premium": 2,
}

func rankOf(plan string) int {
	return planRank[plan]
}

// isProOrHigher reports whether plan outranks the free tier.
func isProOrHigher(plan string) bool {
	return rankOf(plan) >= planRank["pro"]
}

// applyPromotionLocked mutates s's promotion state and plan per spec
// §4.10's extension policy: redeeming a code while already on a valid
// Pro-or-higher promotion extends that promotion's expiry by one
// month rather than overwriting it with a fresh one; any other case
// (no promotion, expired promotion, or a free-tier plan) gets a fresh
// one-month grant starting now. Caller must hold s.mu.
func applyPromotionLocked(s *sessionState, code, plan string, now time.Time) {
	existing := s.license.Promotion
	if existing != nil && existing.Valid(now) && isProOrHigher(s.license.Plan) {
		extended := *existing
		extended.Code = code
		extended.Plan = plan
		extended.ExpiresAt = existing.ExpiresAt.AddDate(0, 1, 0)
		s.license.Promotion = &extended
	} else {
		s.license.Promotion = &xlate.PromotionState{
			Code:      code,
			Plan:      plan,
			AppliedAt: now,
			ExpiresAt: now.AddDate(0, 1, 0),
		}
	}
	s.license.Plan = plan
	s.license.ExpiresAt = s.license.Promotion.ExpiresAt
}
