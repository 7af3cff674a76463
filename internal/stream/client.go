package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/alexjbarnes/wallet-sync/internal/errors"
	"github.com/alexjbarnes/wallet-sync/internal/metrics"
	"github.com/alexjbarnes/wallet-sync/internal/models"
	"github.com/alexjbarnes/wallet-sync/internal/syncstate"
)

const (
	// inboundChanSize is the buffer between the reader goroutine and the
	// event loop.
	inboundChanSize = 64

	// maxBackoffShift caps the exponent so base<<shift cannot overflow.
	maxBackoffShift = 30
)

// Config tunes reconnection and liveness detection.
type Config struct {
	BackoffBase          time.Duration
	BackoffMax           time.Duration
	Jitter               time.Duration
	MaxReconnectAttempts int

	// HeartbeatTimeout is how long the connection may go without a
	// heartbeat event before it is treated as dead.
	HeartbeatTimeout time.Duration

	// ConnectThrottle makes StartTracking a no-op if a connection was
	// attempted less than this long ago, reconnects included.
	ConnectThrottle time.Duration

	// ResetCooldown delays the first connect after ResetConnection.
	ResetCooldown time.Duration

	// UserID, when set, is compared against connection_established.
	UserID string

	// OnError receives wallet failures reported by the server and
	// reconnect exhaustion. It must not block.
	OnError func(error)
}

// DefaultConfig matches the server's 30s heartbeat cadence.
func DefaultConfig() Config {
	return Config{
		BackoffBase:          time.Second,
		BackoffMax:           30 * time.Second,
		Jitter:               time.Second,
		MaxReconnectAttempts: 10,
		HeartbeatTimeout:     45 * time.Second,
		ConnectThrottle:      5 * time.Second,
		ResetCooldown:        time.Second,
	}
}

// Client supervises the push stream. At most one supervisor goroutine runs
// at a time; it owns the transport connection and every timer. Stopping
// the client cancels the supervisor and waits for it, so nothing touches
// the store afterwards.
type Client struct {
	transport Transport
	store     *syncstate.Store
	cfg       Config
	logger    *slog.Logger

	mu       sync.Mutex
	parent   context.Context
	throttle *rate.Sometimes
	cancel   context.CancelFunc
	done     chan struct{}

	// jitter returns a random duration in [0, n). Replaced in tests.
	jitter func(n time.Duration) time.Duration
}

// NewClient creates a stream client that writes into store.
func NewClient(transport Transport, store *syncstate.Store, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		transport: transport,
		store:     store,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "stream")),
		throttle:  newThrottle(cfg.ConnectThrottle),
		jitter:    randomJitter,
	}
}

// newThrottle returns a limiter whose first Do always runs. A zero
// Sometimes would run only once, so no window means run every time.
func newThrottle(window time.Duration) *rate.Sometimes {
	if window <= 0 {
		return &rate.Sometimes{Every: 1}
	}

	return &rate.Sometimes{Interval: window}
}

func randomJitter(n time.Duration) time.Duration {
	if n <= 0 {
		return 0
	}

	return time.Duration(rand.Int64N(int64(n))) //nolint:gosec // G404: math/rand is fine for reconnect jitter, no security impact
}

// StartTracking starts the supervisor if it is not already running. Calls
// within the throttle window of the latest connection attempt are ignored. Once the
// reconnect budget is exhausted, it returns ErrReconnectExhausted until
// ResetConnection is called. The supervisor lives until ctx is done or
// StopTracking is called.
func (c *Client) StartTracking(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runningLocked() {
		return nil
	}

	if c.store.Connection().Phase == models.PhaseFailed {
		return fmt.Errorf("starting stream: %w", apperrors.ErrReconnectExhausted)
	}

	started := false
	c.throttle.Do(func() {
		c.parent = ctx
		c.startLocked(0)
		started = true
	})

	if !started {
		c.logger.Debug("start tracking throttled")
	}

	return nil
}

// StopTracking cancels the supervisor and blocks until it has exited,
// taking any open connection and pending timers with it. Safe to call
// repeatedly.
func (c *Client) StopTracking() {
	if !c.stop() {
		return
	}

	c.setConnected(false)
	c.logger.Info("stream tracking stopped")
}

func (c *Client) stop() bool {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return false
	}

	cancel()
	<-done

	return true
}

// ResetConnection tears down any connection, clears the reconnect
// counters and error, and starts again after the reset cooldown. This is
// the only way out of the failed phase.
func (c *Client) ResetConnection() {
	c.stop()

	c.store.SetReconnectState(0, c.cfg.BackoffBase)
	c.store.SetConnectionError("")
	c.store.SetConnectionPhase(models.PhaseDisconnected)
	metrics.StreamConnected.Set(metrics.BoolGauge(false))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throttle = newThrottle(c.cfg.ConnectThrottle)
	if c.runningLocked() {
		return
	}

	c.logger.Info("stream connection reset", slog.Duration("cooldown", c.cfg.ResetCooldown))
	c.startLocked(c.cfg.ResetCooldown)
}

func (c *Client) setConnected(v bool) {
	c.store.SetConnectionStatus(v)
	metrics.StreamConnected.Set(metrics.BoolGauge(v))
}

// Running reports whether a supervisor is active.
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.runningLocked()
}

func (c *Client) runningLocked() bool {
	if c.done == nil {
		return false
	}

	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// startLocked launches the supervisor. Caller holds mu.
func (c *Client) startLocked(delay time.Duration) {
	parent := c.parent
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	c.cancel, c.done = cancel, done

	go func() {
		defer close(done)
		c.supervise(ctx, delay)
	}()
}

// supervise is the connection state machine. It returns when ctx is done
// or the reconnect budget is spent.
func (c *Client) supervise(ctx context.Context, delay time.Duration) {
	if delay > 0 && !sleep(ctx, delay) {
		return
	}

	attempts := 0

	for {
		c.store.SetConnectionPhase(models.PhaseConnecting)

		err := c.connect(ctx, &attempts)
		if ctx.Err() != nil {
			return
		}

		c.setConnected(false)

		if attempts >= c.cfg.MaxReconnectAttempts {
			c.store.SetConnectionPhase(models.PhaseFailed)
			c.store.SetConnectionError(fmt.Sprintf("live updates unavailable: %v", err))
			c.logger.Error("stream reconnect attempts exhausted",
				slog.Int("attempts", attempts),
				slog.String("error", err.Error()),
			)
			c.notify(fmt.Errorf("%w after %d attempts: %w", apperrors.ErrReconnectExhausted, attempts, err))

			return
		}

		attempts++
		delay := c.backoff(attempts)
		c.store.SetReconnectState(attempts, delay)
		metrics.StreamReconnects.Inc()

		c.logger.Warn("stream lost, reconnecting",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempts),
			slog.Duration("backoff", delay),
		)

		if !sleep(ctx, delay) {
			return
		}
	}
}

// connect opens one connection and consumes it until it fails. A
// successful open resets the attempt counter.
func (c *Client) connect(ctx context.Context, attempts *int) error {
	c.markAttempt()

	r, err := c.transport.Open(ctx)
	if err != nil {
		return err
	}

	*attempts = 0
	c.store.SetReconnectState(0, c.cfg.BackoffBase)
	c.setConnected(true)
	c.logger.Info("stream connected")

	return c.consume(ctx, r)
}

// markAttempt restarts the StartTracking throttle window, so it counts
// from the most recent connection attempt rather than the last call.
func (c *Client) markAttempt() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.throttle = newThrottle(c.cfg.ConnectThrottle)
	c.throttle.Do(func() {})
}

type inbound struct {
	data []byte
	err  error
}

// consume runs the event loop for one connection. A reader goroutine
// feeds inbound events; the loop also watches the heartbeat deadline.
// The reader has exited by the time consume returns.
func (c *Client) consume(ctx context.Context, r EventReader) error {
	readCtx, cancel := context.WithCancel(ctx)
	ch := make(chan inbound, inboundChanSize)
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		for {
			data, err := r.Next(readCtx)
			select {
			case ch <- inbound{data: data, err: err}:
			case <-readCtx.Done():
				return
			}

			if err != nil {
				return
			}
		}
	}()

	defer func() {
		cancel()
		r.Close()
		<-readerDone
	}()

	deadline := time.NewTimer(c.cfg.HeartbeatTimeout)
	defer deadline.Stop()

	for {
		select {
		case msg := <-ch:
			if msg.err != nil {
				if errors.Is(msg.err, apperrors.ErrStreamClosed) {
					return msg.err
				}
				return fmt.Errorf("reading event: %w", msg.err)
			}

			if c.handleEvent(msg.data) == models.EventHeartbeat {
				deadline.Reset(c.cfg.HeartbeatTimeout)
			}

		case <-deadline.C:
			metrics.StreamHeartbeatTimeouts.Inc()
			c.logger.Warn("no heartbeat, closing stream", slog.Duration("timeout", c.cfg.HeartbeatTimeout))

			return apperrors.ErrHeartbeatTimeout

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// backoff returns the delay before reconnect attempt n (1-based):
// min(base * 2^(n-1), max) plus jitter.
func (c *Client) backoff(n int) time.Duration {
	return backoffDelay(n, c.cfg.BackoffBase, c.cfg.BackoffMax) + c.jitter(c.cfg.Jitter)
}

func backoffDelay(n int, base, maxDelay time.Duration) time.Duration {
	shift := min(max(n-1, 0), maxBackoffShift)

	d := base << shift
	if d <= 0 || d > maxDelay {
		d = maxDelay
	}

	return d
}

func (c *Client) notify(err error) {
	if c.cfg.OnError != nil {
		c.cfg.OnError(err)
	}
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
