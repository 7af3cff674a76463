// Package executor runs wallet syncs against the backend with bounded,
// per-wallet retry and reports progress into the shared store.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/alexjbarnes/wallet-sync/internal/errors"
	"github.com/alexjbarnes/wallet-sync/internal/metrics"
	"github.com/alexjbarnes/wallet-sync/internal/models"
	"github.com/alexjbarnes/wallet-sync/internal/syncstate"
)

// Backend is the REST surface the executor drives.
type Backend interface {
	ListWallets(ctx context.Context) ([]models.Wallet, error)
	SyncWallet(ctx context.Context, walletID string) (*models.SyncResult, error)
}

// SyncRecorder persists when the last full cycle finished.
type SyncRecorder interface {
	SetLastSync(t time.Time) error
}

// Config bounds retries and parallelism.
type Config struct {
	// MaxRetries is how many times a failed wallet is retried after its
	// first attempt.
	MaxRetries int
	// RetryDelay is the linear backoff unit: retry n waits n*RetryDelay.
	RetryDelay time.Duration
	// Concurrency caps simultaneous wallet syncs. Zero means no cap.
	Concurrency int
}

// Executor syncs wallets. Only one full cycle runs at a time.
type Executor struct {
	backend  Backend
	store    *syncstate.Store
	recorder SyncRecorder
	cfg      Config
	logger   *slog.Logger

	running atomic.Bool
}

// New creates an executor. recorder may be nil.
func New(backend Backend, store *syncstate.Store, recorder SyncRecorder, cfg Config, logger *slog.Logger) *Executor {
	return &Executor{
		backend:  backend,
		store:    store,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "executor")),
	}
}

// SyncWallet makes one sync attempt. The wallet is marked syncing first
// and completed on success. A wallet already settled for this cycle is
// left alone and the backend is not called. A failure is returned without
// touching the store; the caller decides whether to retry.
func (e *Executor) SyncWallet(ctx context.Context, walletID string) error {
	if !e.store.MarkSyncing(walletID) {
		return nil
	}

	start := time.Now()
	res, err := e.backend.SyncWallet(ctx, walletID)
	metrics.WalletSyncDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		return err
	}

	e.store.MarkCompleted(walletID, res.SyncedData, time.Time{})

	return nil
}

// SyncWalletWithRetry syncs one wallet, retrying up to MaxRetries times
// with linear backoff. On exhaustion or cancellation the wallet is marked
// failed. If the push stream settles the wallet while a retry is pending,
// that outcome stands and no further attempts are made.
func (e *Executor) SyncWalletWithRetry(ctx context.Context, walletID string) bool {
	logger := e.logger.With(slog.String("wallet_id", walletID))

	for attempt := 0; ; attempt++ {
		err := e.SyncWallet(ctx, walletID)
		if err == nil {
			// The stream may have settled the wallet first; the stored
			// terminal state is the outcome either way.
			status, ok := e.settled(walletID)
			if !ok {
				// Reset for a newer cycle after our write landed.
				status = models.StatusCompleted
			}
			metrics.WalletSyncs.WithLabelValues(string(status)).Inc()
			logger.Debug("wallet synced",
				slog.Int("attempts", attempt+1),
				slog.String("status", string(status)),
			)

			return status == models.StatusCompleted
		}

		if status, ok := e.settled(walletID); ok {
			logger.Debug("wallet settled elsewhere", slog.String("status", string(status)))
			return status == models.StatusCompleted
		}

		if attempt >= e.cfg.MaxRetries || ctx.Err() != nil {
			return e.fail(logger, walletID, fmt.Sprintf("sync failed after %d attempts: %v", attempt+1, err))
		}

		wait := e.cfg.RetryDelay * time.Duration(attempt+1)
		metrics.WalletSyncRetries.Inc()
		logger.Warn("wallet sync failed, retrying",
			slog.String("error", err.Error()),
			slog.Int("retry", attempt+1),
			slog.Duration("wait", wait),
		)

		if !sleep(ctx, wait) {
			return e.fail(logger, walletID, fmt.Sprintf("sync cancelled: %v", ctx.Err()))
		}

		if status, ok := e.settled(walletID); ok {
			logger.Debug("wallet settled during retry wait", slog.String("status", string(status)))
			return status == models.StatusCompleted
		}
	}
}

// settled returns the wallet's status if something else has already put
// it in a terminal state.
func (e *Executor) settled(walletID string) (models.SyncStatus, bool) {
	w, ok := e.store.Wallet(walletID)
	if !ok || !w.Status.IsTerminal() {
		return "", false
	}

	return w.Status, true
}

func (e *Executor) fail(logger *slog.Logger, walletID, msg string) bool {
	e.store.MarkFailed(walletID, msg)
	metrics.WalletSyncs.WithLabelValues("failed").Inc()
	logger.Warn("wallet sync gave up", slog.String("error", msg))

	return false
}

// StartAutoSync syncs every wallet concurrently and waits for all of them.
// A failing wallet never cancels its siblings. It returns an error only
// when the wallet list cannot be fetched, is empty, or another cycle is
// already running.
func (e *Executor) StartAutoSync(ctx context.Context) (models.SyncSummary, error) {
	if !e.running.CompareAndSwap(false, true) {
		return models.SyncSummary{}, apperrors.ErrSyncInProgress
	}
	defer e.running.Store(false)

	wallets, err := e.backend.ListWallets(ctx)
	if err != nil {
		return models.SyncSummary{}, fmt.Errorf("starting sync cycle: %w", err)
	}

	ids := walletIDs(wallets)
	if len(ids) == 0 {
		return models.SyncSummary{}, apperrors.ErrNoWallets
	}

	cycleID := uuid.NewString()
	logger := e.logger.With(slog.String("cycle_id", cycleID))
	logger.Info("sync cycle started", slog.Int("wallets", len(ids)))

	for _, id := range ids {
		e.store.ResetForNewCycle(id)
	}
	e.store.SetAutoSyncing(true, cycleID)
	defer e.store.SetAutoSyncing(false, "")

	start := time.Now()

	var successful, failed atomic.Int64

	var g errgroup.Group
	if e.cfg.Concurrency > 0 {
		g.SetLimit(e.cfg.Concurrency)
	}

	for _, id := range ids {
		g.Go(func() error {
			if e.SyncWalletWithRetry(ctx, id) {
				successful.Add(1)
			} else {
				failed.Add(1)
			}

			return nil
		})
	}

	_ = g.Wait()

	finished := time.Now()
	e.store.SetLastSyncTime(finished)
	if e.recorder != nil {
		if err := e.recorder.SetLastSync(finished); err != nil {
			logger.Warn("recording last sync time", slog.String("error", err.Error()))
		}
	}

	summary := models.SyncSummary{
		Successful: int(successful.Load()),
		Failed:     int(failed.Load()),
	}

	logger.Info("sync cycle finished",
		slog.Int("successful", summary.Successful),
		slog.Int("failed", summary.Failed),
		slog.Duration("elapsed", finished.Sub(start)),
	)

	return summary, nil
}

// SyncOne starts a fresh cycle for a single wallet, as a manual "sync now".
// It is refused while a full cycle is running.
func (e *Executor) SyncOne(ctx context.Context, walletID string) (bool, error) {
	if walletID == "" {
		return false, apperrors.ErrWalletNotFound
	}

	if e.running.Load() {
		return false, apperrors.ErrSyncInProgress
	}

	e.store.ResetForNewCycle(walletID)

	return e.SyncWalletWithRetry(ctx, walletID), nil
}

// Running reports whether a full cycle is in progress.
func (e *Executor) Running() bool {
	return e.running.Load()
}

// walletIDs returns the unique non-empty IDs in list order.
func walletIDs(wallets []models.Wallet) []string {
	seen := make(map[string]struct{}, len(wallets))
	ids := make([]string, 0, len(wallets))

	for _, w := range wallets {
		if w.ID == "" {
			continue
		}
		if _, ok := seen[w.ID]; ok {
			continue
		}
		seen[w.ID] = struct{}{}
		ids = append(ids, w.ID)
	}

	return ids
}

// sleep waits for d or until ctx is done. Returns false if cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
