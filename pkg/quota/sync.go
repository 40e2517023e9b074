package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/baketa-translate/core/pkg/distributed/xcron"
	"github.com/baketa-translate/core/pkg/distributed/xdlock"
)

// Scheduler runs the gate's two background duties on a cron schedule,
// each guarded by a distributed lock so only one process instance
// performs it at a time in a multi-instance deployment: periodic
// bonus-ledger sync_to_server, and monthly-usage rollover checks.
type Scheduler struct {
	cron       xcron.Scheduler
	lockFactory xdlock.Factory
	gate       *QuotaGate
	sessions   func() []string
}

// NewScheduler wires a cron scheduler (its locker backed by the same
// xdlock.Factory used for ad-hoc sync guarding below) to gate.
// sessions supplies the set of session tokens with pending work on
// each tick — the gate itself doesn't track a global session list, so
// the caller (the daemon wiring layer) supplies it.
func NewScheduler(gate *QuotaGate, lockFactory xdlock.Factory, sessions func() []string) (*Scheduler, error) {
	adapter, err := xcron.NewXdlockAdapter(lockFactory)
	if err != nil {
		return nil, fmt.Errorf("quota: build cron locker: %w", err)
	}
	return &Scheduler{
		cron:        xcron.New(xcron.WithLocker(adapter)),
		lockFactory: lockFactory,
		gate:        gate,
		sessions:    sessions,
	}, nil
}

// Start registers the periodic jobs and starts the scheduler.
// bonusSyncSpec and rolloverSpec are cron expressions, e.g.
// "@every 5m" and "@every 1h".
func (s *Scheduler) Start(bonusSyncSpec, rolloverSpec string) error {
	if _, err := s.cron.AddFunc(bonusSyncSpec, s.syncAllBonusLedgers, xcron.WithName("quota-bonus-sync")); err != nil {
		return fmt.Errorf("quota: register bonus-sync job: %w", err)
	}
	if _, err := s.cron.AddFunc(rolloverSpec, s.checkRollover, xcron.WithName("quota-monthly-rollover")); err != nil {
		return fmt.Errorf("quota: register rollover job: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop gracefully stops the scheduler, waiting for in-flight runs.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) syncAllBonusLedgers(ctx context.Context) error {
	var firstErr error
	for _, sessionToken := range s.sessions() {
		if err := s.gate.SyncBonusLedger(ctx, sessionToken); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// checkRollover re-fetches the server's quota view for every tracked
// session once a month boundary is crossed, so a session that never
// makes a translate call in the new month still has a correct
// TokensUsed=0 snapshot instead of carrying over last month's figure.
func (s *Scheduler) checkRollover(ctx context.Context) error {
	now := time.Now()
	thisMonth := currentYearMonth(now)

	var firstErr error
	for _, sessionToken := range s.sessions() {
		state := s.gate.registry.get(sessionToken)
		state.mu.Lock()
		stale := state.license.Monthly.YearMonth != "" && state.license.Monthly.YearMonth != thisMonth
		state.mu.Unlock()
		if !stale {
			continue
		}
		usage, err := s.gate.relay.GetQuotaStatus(ctx, sessionToken)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		state.mu.Lock()
		state.license.Monthly = usage
		snap := state.cloneLocked()
		state.mu.Unlock()
		s.gate.broadcaster.publish(Event{Kind: EventLicenseUpdated, SessionToken: sessionToken, License: snap})
	}
	return firstErr
}

// SyncBonusLedgerGuarded performs an ad-hoc (non-cron-scheduled)
// bonus-ledger sync for one session, guarded by an xdlock lease so a
// concurrent scheduled run and an ad-hoc caller (e.g. the router,
// triggered by a just-observed low-balance warning) never race on the
// same session's pending-delta snapshot.
func (s *Scheduler) SyncBonusLedgerGuarded(ctx context.Context, sessionToken string) error {
	handle, err := s.lockFactory.TryLock(ctx, "quota:bonus-sync:"+sessionToken, xdlock.WithExpiry(30*time.Second))
	if err != nil {
		return fmt.Errorf("quota: acquire bonus-sync lock: %w", err)
	}
	if handle == nil {
		return nil // a scheduled run already holds it; this tick is a no-op
	}
	defer func() { _ = handle.Unlock(ctx) }()

	return s.gate.SyncBonusLedger(ctx, sessionToken)
}
