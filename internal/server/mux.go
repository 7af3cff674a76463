// Package server provides the HTTP control server for wallet-sync.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alexjbarnes/wallet-sync/internal/auth"
	"github.com/alexjbarnes/wallet-sync/internal/syncstate"
)

const shutdownTimeout = 10 * time.Second

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Keys       *auth.KeySet
	Store      *syncstate.Store
	MCPHandler http.Handler
	Logger     *slog.Logger
}

// NewMux builds the HTTP mux. Everything except /healthz is protected by
// the Bearer API key middleware.
func NewMux(cfg MuxConfig) *http.ServeMux {
	authMiddleware := auth.Middleware(cfg.Keys, cfg.Logger)
	protect := func(h http.Handler) http.Handler {
		return authMiddleware(accessLog(cfg.Logger, h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.Handle("GET /status", protect(handleStatus(cfg.Store, cfg.Logger)))
	mux.Handle("GET /metrics", protect(promhttp.Handler()))
	if cfg.MCPHandler != nil {
		mux.Handle("/mcp", protect(cfg.MCPHandler))
	}

	return mux
}

// accessLog records who called an authenticated endpoint. It must run
// inside auth.Middleware.
func accessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info("control request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("user_id", auth.RequestUserID(r.Context())),
			slog.String("ip", auth.RequestRemoteIP(r.Context())),
		)
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStatus(store *syncstate.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")

		if err := json.NewEncoder(w).Encode(store.Snapshot()); err != nil {
			logger.Warn("writing status", slog.String("error", err.Error()))
		}
	}
}

// New returns an http.Server with conservative timeouts.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
}

// Serve runs srv until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("control server listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down control server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down control server: %w", err)
	}

	return nil
}
