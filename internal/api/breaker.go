package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/alexjbarnes/wallet-sync/internal/errors"
	"github.com/alexjbarnes/wallet-sync/internal/metrics"
	"github.com/alexjbarnes/wallet-sync/internal/models"
	gobreaker "github.com/sony/gobreaker/v2"
)

// WalletService is the subset of the REST API the sync executor needs.
type WalletService interface {
	ListWallets(ctx context.Context) ([]models.Wallet, error)
	SyncWallet(ctx context.Context, walletID string) (*models.SyncResult, error)
}

// BreakerSettings tunes the circuit breaker around SyncWallet.
type BreakerSettings struct {
	// MinRequests is how many calls must be seen in the current window
	// before the failure ratio is considered.
	MinRequests uint32
	// FailureRatio at or above which the circuit opens.
	FailureRatio float64
	// Interval resets counts while closed.
	Interval time.Duration
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// HalfOpenRequests is how many probes are allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerSettings opens after 60% of at least 10 calls fail and
// probes again after a minute.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:      10,
		FailureRatio:     0.6,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		HalfOpenRequests: 3,
	}
}

// BreakerClient wraps a WalletService so a failing backend is not hammered
// by every wallet's retries. Calls rejected by an open circuit fail with
// ErrBreakerOpen.
type BreakerClient struct {
	next   WalletService
	cb     *gobreaker.CircuitBreaker[*models.SyncResult]
	logger *slog.Logger
}

// NewBreakerClient wraps next with a circuit breaker.
func NewBreakerClient(next WalletService, settings BreakerSettings, logger *slog.Logger) *BreakerClient {
	b := &BreakerClient{next: next, logger: logger}

	metrics.BreakerState.Set(0)

	b.cb = gobreaker.NewCircuitBreaker[*models.SyncResult](gobreaker.Settings{
		Name:        "wallet-sync-api",
		MaxRequests: settings.HalfOpenRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}

			ratio := float64(counts.TotalFailures) / float64(counts.Requests)

			return ratio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.BreakerState.Set(stateValue(to))
		},
		// A cancelled caller says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return b
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// ListWallets is passed through without breaker accounting.
func (b *BreakerClient) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	return b.next.ListWallets(ctx)
}

// SyncWallet runs the wrapped call through the circuit breaker.
func (b *BreakerClient) SyncWallet(ctx context.Context, walletID string) (*models.SyncResult, error) {
	res, err := b.cb.Execute(func() (*models.SyncResult, error) {
		return b.next.SyncWallet(ctx, walletID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("syncing wallet %s: %w: %w", walletID, apperrors.ErrBreakerOpen, err)
	}

	return res, err
}

// State reports the breaker's current state name.
func (b *BreakerClient) State() string {
	return b.cb.State().String()
}
