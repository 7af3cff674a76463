package errors

import "errors"

// Configuration and input errors.
var (
	ErrNoWallets      = errors.New("no wallets configured")
	ErrWalletNotFound = errors.New("wallet not found")
	ErrInvalidToken   = errors.New("invalid or expired token")
)

// Sync cycle errors.
var (
	ErrSyncInProgress = errors.New("sync cycle already in progress")
)

// Server/transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
	ErrBreakerOpen = errors.New("sync service temporarily unavailable")
)

// Push stream errors.
var (
	ErrStreamClosed       = errors.New("push stream closed by server")
	ErrHeartbeatTimeout   = errors.New("heartbeat timeout")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)
