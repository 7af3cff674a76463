// Package scheduler decides when an unattended wallet sync should run and
// hands the work to the executor.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/alexjbarnes/wallet-sync/internal/errors"
	"github.com/alexjbarnes/wallet-sync/internal/models"
)

// Markers persists the two scheduling timestamps.
type Markers interface {
	LastLogin() (time.Time, bool, error)
	SetLastLogin(t time.Time) error
	LastSync() (time.Time, bool, error)
}

// Syncer runs a full sync cycle.
type Syncer interface {
	StartAutoSync(ctx context.Context) (models.SyncSummary, error)
}

// Config controls when auto sync fires.
type Config struct {
	Enabled bool
	// AbsenceThreshold forces a sync when the last login is at least
	// this old, even on the same calendar day.
	AbsenceThreshold time.Duration
	// SettleDelay defers the sync after a session start.
	SettleDelay time.Duration
	// RecheckInterval repeats the session-start check while the daemon
	// runs. Zero disables it.
	RecheckInterval time.Duration
}

// Scheduler is a decision function over the persisted markers plus a
// deferred trigger. It keeps no state of its own.
type Scheduler struct {
	markers Markers
	syncer  Syncer
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a scheduler.
func New(markers Markers, syncer Syncer, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		markers: markers,
		syncer:  syncer,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "scheduler")),
		now:     time.Now,
	}
}

// ShouldAutoSync reports whether an unattended sync is due: on first run
// (either marker missing), when the last login fell on an earlier
// calendar day, or when the user has been away for at least the absence
// threshold. Always false when auto sync is disabled. An unreadable
// marker counts as missing.
func (s *Scheduler) ShouldAutoSync() bool {
	if !s.cfg.Enabled {
		return false
	}

	lastLogin, ok, err := s.markers.LastLogin()
	if err != nil {
		s.logger.Warn("reading last login", slog.String("error", err.Error()))
		return true
	}
	if !ok {
		return true
	}

	if _, ok, err := s.markers.LastSync(); err != nil || !ok {
		if err != nil {
			s.logger.Warn("reading last sync", slog.String("error", err.Error()))
		}
		return true
	}

	now := s.now()
	if !sameDay(lastLogin, now) {
		return true
	}

	return now.Sub(lastLogin) >= s.cfg.AbsenceThreshold
}

// sameDay compares calendar dates in b's location.
func sameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()

	return ay == by && am == bm && ad == bd
}

// UpdateLoginTimestamp records now as the last login.
func (s *Scheduler) UpdateLoginTimestamp() error {
	return s.markers.SetLastLogin(s.now())
}

// TriggerSync runs a sync cycle immediately.
func (s *Scheduler) TriggerSync(ctx context.Context) (models.SyncSummary, error) {
	return s.syncer.StartAutoSync(ctx)
}

// OnSessionStart evaluates ShouldAutoSync, records the login, and if a
// sync is due runs it after the settle delay. It reports whether a cycle
// ran.
func (s *Scheduler) OnSessionStart(ctx context.Context) bool {
	due := s.ShouldAutoSync()

	if err := s.UpdateLoginTimestamp(); err != nil {
		s.logger.Warn("recording login", slog.String("error", err.Error()))
	}

	if !due {
		s.logger.Debug("auto sync not due")
		return false
	}

	if s.cfg.SettleDelay > 0 {
		timer := time.NewTimer(s.cfg.SettleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}

	summary, err := s.TriggerSync(ctx)
	switch {
	case errors.Is(err, apperrors.ErrSyncInProgress):
		s.logger.Info("auto sync skipped, cycle already running")
		return false
	case errors.Is(err, apperrors.ErrNoWallets):
		s.logger.Info("auto sync skipped, no wallets")
		return false
	case err != nil:
		s.logger.Error("auto sync failed", slog.String("error", err.Error()))
		return false
	}

	s.logger.Info("auto sync finished",
		slog.Int("successful", summary.Successful),
		slog.Int("failed", summary.Failed),
	)

	return true
}

// Run performs the session-start check and then repeats it every
// RecheckInterval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.OnSessionStart(ctx)

	if s.cfg.RecheckInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.cfg.RecheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.OnSessionStart(ctx)
		}
	}
}
