package quota

import (
	"sort"
	"time"

	"github.com/baketa-translate/core/pkg/xlate"
)

// usableBonuses returns the indices of bonuses with remaining balance
// that haven't expired as of now, ordered ascending by expiry (ties
// broken by ascending id per spec §4.4/§4.10), with no-expiry bonuses
// sorted last — they never go stale, so dated grants are spent first.
func usableBonuses(bonuses []xlate.BonusToken, now time.Time) []int {
	idx := make([]int, 0, len(bonuses))
	for i, b := range bonuses {
		if b.Remaining() <= 0 {
			continue
		}
		if b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
			continue
		}
		idx = append(idx, i)
	}
	sort.Slice(idx, func(i, j int) bool {
		a, b := bonuses[idx[i]], bonuses[idx[j]]
		switch {
		case a.ExpiresAt == nil && b.ExpiresAt == nil:
			return a.ID < b.ID
		case a.ExpiresAt == nil:
			return false
		case b.ExpiresAt == nil:
			return true
		case !a.ExpiresAt.Equal(*b.ExpiresAt):
			return a.ExpiresAt.Before(*b.ExpiresAt)
		default:
			return a.ID < b.ID
		}
	})
	return idx
}

// consumeBonusLocked withdraws up to amount tokens from s's usable
// bonuses in ascending-expiry order, mutating Used in place and
// accumulating a pending delta per touched bonus id. Caller must hold
// s.mu. Returns the total actually consumed, which may be less than
// amount if the ledger runs dry, and the set of bonus ids touched (for
// the caller to decide whether a change event is warranted).
func consumeBonusLocked(s *sessionState, amount int, now time.Time) (consumed int, touched []string) {
	if amount <= 0 {
		return 0, nil
	}
	outstanding := amount
	for _, i := range usableBonuses(s.license.Bonuses, now) {
		if outstanding <= 0 {
			break
		}
		b := &s.license.Bonuses[i]
		withdraw := b.Remaining()
		if withdraw > outstanding {
			withdraw = outstanding
		}
		if withdraw <= 0 {
			continue
		}
		b.Used += withdraw
		s.pending[b.ID] += withdraw
		outstanding -= withdraw
		consumed += withdraw
		touched = append(touched, b.ID)
	}
	return consumed, touched
}

// bonusRemainingLocked sums the usable remaining balance across every
// non-expired bonus — used by the pre-call check, which must agree
// with consumeBonusLocked/usableBonuses on what "remains" so a session
// whose only bonuses have already expired is not admitted on the
// strength of a balance that consumption can never actually withdraw.
func bonusRemainingLocked(s *sessionState, now time.Time) int {
	total := 0
	for _, b := range s.license.Bonuses {
		if b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
			continue
		}
		total += b.Remaining()
	}
	return total
}

// applyServerBonusEcho replaces each synced bonus's Used count with
// the server's echoed value and clears its pending delta, resolving a
// concurrent local consume against an in-flight sync by the spec's
// monotonicity rule: max(local_used_new, pending_used_existing).
func applyServerBonusEcho(s *sessionState, echoed []xlate.BonusToken, syncedIDs map[string]int) {
	byID := make(map[string]xlate.BonusToken, len(echoed))
	for _, b := range echoed {
		byID[b.ID] = b
	}
	for i := range s.license.Bonuses {
		b := &s.license.Bonuses[i]
		serverView, ok := byID[b.ID]
		if !ok {
			continue
		}
		if _, wasSynced := syncedIDs[b.ID]; !wasSynced {
			continue
		}
		pendingSinceSend := s.pending[b.ID] - syncedIDs[b.ID]
		newUsed := serverView.Used
		if pendingSinceSend > 0 && b.Used > newUsed {
			newUsed = b.Used
		}
		b.Used = newUsed
		if pendingSinceSend > 0 {
			s.pending[b.ID] = pendingSinceSend
		} else {
			delete(s.pending, b.ID)
		}
	}
}

// pendingDeltasLocked snapshots the ledger's unsynced consumption as a
// {id: used_tokens} map suitable for sync_to_server, using each
// bonus's current Used count (not the delta itself) per spec §4.10's
// "{id, used_tokens}" wire shape.
func pendingDeltasLocked(s *sessionState) map[string]int {
	if len(s.pending) == 0 {
		return nil
	}
	usedByID := make(map[string]int, len(s.license.Bonuses))
	for _, b := range s.license.Bonuses {
		usedByID[b.ID] = b.Used
	}
	snapshot := make(map[string]int, len(s.pending))
	for id := range s.pending {
		snapshot[id] = usedByID[id]
	}
	return snapshot
}
