package quota

import (
	"sync"
	"time"

	"github.com/baketa-translate/core/pkg/xlate"
)

// sessionState is the mutable per-session license snapshot plus the
// bonus ledger's pending-delta set. Spec §5: "monthly-usage
// reconciliation is serialized by a single mutex per user session" and
// "bonus-token ledger mutations are serialized under the same
// section" — one mutex covers both here, since they're the same
// critical section in practice (a reconcile can touch both the
// monthly counter and the bonus ledger in one call).
type sessionState struct {
	mu      sync.Mutex
	license xlate.LicenseState
	// pending holds, per bonus id, consumption recorded locally but not
	// yet echoed back by the server via sync_to_server.
	pending map[string]int
}

func newSessionState(license xlate.LicenseState) *sessionState {
	return &sessionState{license: license, pending: make(map[string]int)}
}

// snapshot returns a deep-enough copy for callers outside the lock —
// Bonuses is reallocated so a caller can't mutate the gate's slice.
func (s *sessionState) snapshot() xlate.LicenseState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneLocked()
}

func (s *sessionState) cloneLocked() xlate.LicenseState {
	l := s.license
	l.Bonuses = append([]xlate.BonusToken(nil), s.license.Bonuses...)
	return l
}

// registry holds one sessionState per session token, created lazily on
// first touch. A session with no prior server sync starts with a zero
// LicenseState; the gate's pre-call check on an empty snapshot treats
// "never synced" the same as "exceeded" until sync_init populates it,
// matching the spec's "session token missing/invalid" rejection for
// state the gate knows nothing about.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*sessionState)}
}

func (r *registry) get(sessionToken string) *sessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionToken]
	if !ok {
		s = newSessionState(xlate.LicenseState{})
		r.sessions[sessionToken] = s
	}
	return s
}

func (r *registry) reset(sessionToken string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionToken)
}

// tokens returns every session token currently tracked, in no
// particular order — the Scheduler's per-tick work list.
func (r *registry) tokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tokens := make([]string, 0, len(r.sessions))
	for t := range r.sessions {
		tokens = append(tokens, t)
	}
	return tokens
}

// currentYearMonth is the gate's clock source for monthly-usage keys,
// a single indirection point so tests can fix the "current" month.
func currentYearMonth(now time.Time) string {
	return now.Format("2006-01")
}
