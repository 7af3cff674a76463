package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/wallet-sync/internal/api"
	"github.com/alexjbarnes/wallet-sync/internal/auth"
	"github.com/alexjbarnes/wallet-sync/internal/config"
	"github.com/alexjbarnes/wallet-sync/internal/executor"
	"github.com/alexjbarnes/wallet-sync/internal/logging"
	"github.com/alexjbarnes/wallet-sync/internal/mcpserver"
	"github.com/alexjbarnes/wallet-sync/internal/scheduler"
	"github.com/alexjbarnes/wallet-sync/internal/server"
	"github.com/alexjbarnes/wallet-sync/internal/state"
	"github.com/alexjbarnes/wallet-sync/internal/stream"
	"github.com/alexjbarnes/wallet-sync/internal/syncstate"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("wallet-sync starting",
		slog.String("version", Version),
		slog.String("transport", cfg.StreamTransport),
		slog.Bool("auto_sync", cfg.AutoSyncEnabled),
		slog.Bool("control", cfg.EnableControl),
	)

	appState, err := state.LoadAt(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	backend := api.NewBreakerClient(
		api.NewClient(cfg.APIBaseURL, cfg.APIToken, &http.Client{Timeout: cfg.APIRequestTimeout}),
		api.DefaultBreakerSettings(),
		logger,
	)

	store := syncstate.New()

	exec := executor.New(backend, store, appState, executor.Config{
		MaxRetries:  cfg.SyncMaxRetries,
		RetryDelay:  cfg.SyncRetryDelay,
		Concurrency: cfg.SyncConcurrency,
	}, logger)

	sched := scheduler.New(appState, exec, scheduler.Config{
		Enabled:          cfg.AutoSyncEnabled,
		AbsenceThreshold: cfg.AutoSyncAbsenceThreshold,
		SettleDelay:      cfg.AutoSyncSettleDelay,
		RecheckInterval:  cfg.AutoSyncRecheckInterval,
	}, logger)

	streamLogger := logger.With(slog.String("component", "stream"))
	streamClient := stream.NewClient(newTransport(cfg), store, stream.Config{
		BackoffBase:          cfg.StreamBackoffBase,
		BackoffMax:           cfg.StreamBackoffMax,
		Jitter:               cfg.StreamBackoffJitter,
		MaxReconnectAttempts: cfg.StreamMaxReconnectAttempts,
		HeartbeatTimeout:     cfg.HeartbeatTimeout(),
		ConnectThrottle:      cfg.StreamConnectThrottle,
		ResetCooldown:        cfg.StreamResetCooldown,
		UserID:               cfg.UserID,
		OnError: func(err error) {
			streamLogger.Warn("stream reported error", slog.String("error", err.Error()))
		},
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := streamClient.StartTracking(gctx); err != nil {
			return fmt.Errorf("starting stream: %w", err)
		}
		<-gctx.Done()
		streamClient.StopTracking()
		return nil
	})

	g.Go(func() error {
		return sched.Run(gctx)
	})

	if cfg.EnableControl {
		g.Go(func() error {
			return runControl(gctx, cfg, mcpserver.Deps{
				Store:   store,
				Trigger: sched,
				Wallets: exec,
				Stream:  streamClient,
			}, logger)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("wallet-sync stopped")
	return nil
}

func newTransport(cfg *config.Config) stream.Transport {
	if cfg.StreamTransport == config.TransportWebSocket {
		return stream.NewWebSocketTransport(cfg.StreamURL(), cfg.APIToken)
	}
	// No client timeout: the stream is long lived and liveness is
	// tracked by the heartbeat deadline.
	return stream.NewSSETransport(cfg.StreamURL(), cfg.APIToken, &http.Client{})
}

func runControl(ctx context.Context, cfg *config.Config, deps mcpserver.Deps, logger *slog.Logger) error {
	controlLogger := logger.With(slog.String("component", "control"))

	keys, err := cfg.ParseControlAPIKeys()
	if err != nil {
		return fmt.Errorf("parsing control API keys: %w", err)
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "wallet-sync", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, deps)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	mux := server.NewMux(server.MuxConfig{
		Keys:       auth.NewKeySet(keys),
		Store:      deps.Store,
		MCPHandler: mcpHandler,
		Logger:     controlLogger,
	})

	controlLogger.Info("starting control server",
		slog.String("listen", cfg.ControlListenAddr),
		slog.Int("keys", len(keys)),
	)

	return server.Serve(ctx, server.New(cfg.ControlListenAddr, mux), controlLogger)
}
