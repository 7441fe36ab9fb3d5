package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/analyticspro/walletlens/internal/domain/model"
	"github.com/analyticspro/walletlens/internal/domain/port/driven"
)

// RefreshService reprocesses the newest page snapshot on a fixed short
// interval while the session is active: extract, fold, swap the shared
// ledger, and re-point the freeze countdown. Every cycle is a full recompute
// of the whole snapshot, never an incremental merge, so repeated cycles over
// an unchanged snapshot are idempotent.
type RefreshService struct {
	snapshots driven.SnapshotStore
	extractor driven.LedgerExtractor
	session   *SessionService
	countdown *Countdown
	interval  time.Duration
	keep      int
	rate      float64

	refreshCh chan chan error

	mu          sync.RWMutex
	ledger      *model.Ledger
	balance     *model.WalletBalance
	refreshedAt time.Time
}

// NewRefreshService creates a RefreshService. keep bounds the snapshot
// history retained after each ingest; rate is the coin-to-currency
// conversion applied when summarizing.
func NewRefreshService(
	snapshots driven.SnapshotStore,
	extractor driven.LedgerExtractor,
	session *SessionService,
	countdown *Countdown,
	interval time.Duration,
	keep int,
	rate float64,
) *RefreshService {
	return &RefreshService{
		snapshots: snapshots,
		extractor: extractor,
		session:   session,
		countdown: countdown,
		interval:  interval,
		keep:      keep,
		rate:      rate,
		refreshCh: make(chan chan error),
	}
}

// Start begins the refresh loop. It runs an immediate cycle, then cycles on
// the configured interval, and services manual refresh requests in between.
// Start blocks until the context is canceled.
func (s *RefreshService) Start(ctx context.Context) {
	if err := s.cycle(ctx); err != nil {
		slog.Error("initial refresh failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.countdown.Stop()
			slog.Info("refresh service stopped")
			return
		case <-ticker.C:
			if err := s.cycle(ctx); err != nil {
				slog.Error("refresh cycle failed", "error", err)
			}
		case done := <-s.refreshCh:
			done <- s.cycle(ctx)
		}
	}
}

// RefreshNow triggers a refresh cycle out of band, bypassing the interval.
// It blocks until the cycle completes or the context is canceled.
func (s *RefreshService) RefreshNow(ctx context.Context) error {
	done := make(chan error, 1)

	select {
	case s.refreshCh <- done:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ingest stores a newly captured snapshot, prunes the history, and triggers
// an immediate refresh. It returns the snapshot's assigned ID.
func (s *RefreshService) Ingest(ctx context.Context, body []byte) (string, error) {
	snap := model.Snapshot{
		ID:         uuid.NewString(),
		Body:       body,
		CapturedAt: time.Now().UTC(),
	}
	if err := s.snapshots.Put(ctx, snap); err != nil {
		return "", err
	}

	if err := s.snapshots.Prune(ctx, s.keep); err != nil {
		slog.Warn("snapshot prune failed", "error", err)
	}

	if err := s.RefreshNow(ctx); err != nil {
		return snap.ID, err
	}
	return snap.ID, nil
}

// cycle is one full recompute over the newest snapshot. Skipped while the
// session is locked, so the extraction pipeline only runs behind the gate.
func (s *RefreshService) cycle(ctx context.Context) error {
	if !s.session.Active() {
		return nil
	}

	snap, err := s.snapshots.Latest(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}

	start := time.Now()
	records, err := s.extractor.Extract(snap.Body)
	if err != nil {
		return err
	}

	ledger := BuildLedger(records)

	// Header figures are cosmetic; a page without them is not a failed cycle.
	balance, err := s.extractor.Balance(snap.Body)
	if err != nil {
		slog.Warn("balance extraction failed", "error", err)
	}

	s.mu.Lock()
	s.ledger = ledger
	s.balance = balance
	s.refreshedAt = time.Now()
	s.mu.Unlock()

	s.retarget(ctx, ledger)

	slog.Debug("refresh cycle complete",
		"snapshot", snap.ID,
		"records", len(records),
		"days", len(ledger.Days),
		"withdrawals", len(ledger.Withdrawals),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return nil
}

// retarget re-selects the soonest future thaw and restarts the countdown when
// the candidate changed. The old tick loop is always cancelled before a new
// one starts; with no future thaw the countdown is stopped outright.
func (s *RefreshService) retarget(ctx context.Context, ledger *model.Ledger) {
	thaw := SelectThaw(ledger, time.Now())
	if thaw == nil {
		s.countdown.Stop()
		return
	}

	if current, ok := s.countdown.Target(); ok && current.Equal(thaw.ThawAt) {
		return
	}
	s.countdown.Start(ctx, thaw.ThawAt, thaw.Amount)
	slog.Info("countdown retargeted", "thaw_at", thaw.ThawAt, "amount", thaw.Amount)
}

// Summary projects the current ledger over the given filter. ok is false
// before the first completed refresh.
func (s *RefreshService) Summary(filter Filter) (Summary, bool) {
	s.mu.RLock()
	ledger := s.ledger
	balance := s.balance
	s.mu.RUnlock()

	if ledger == nil {
		return Summary{}, false
	}
	sum := Summarize(ledger, filter, time.Now(), s.rate)
	sum.Balance = balance
	return sum, true
}

// Withdrawals returns the lifetime withdrawal list from the current ledger.
func (s *RefreshService) Withdrawals() []model.WithdrawalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ledger == nil {
		return nil
	}
	out := make([]model.WithdrawalRecord, len(s.ledger.Withdrawals))
	copy(out, s.ledger.Withdrawals)
	return out
}

// RefreshedAt returns the completion time of the last refresh cycle.
func (s *RefreshService) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}
