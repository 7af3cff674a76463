package models

import "time"

// Wallet is a tracked external account as listed by the backend.
type Wallet struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Address string `json:"address,omitempty"`
}

// SyncResult is the backend's reply to a single wallet refresh.
type SyncResult struct {
	WalletID   string   `json:"walletId"`
	Success    bool     `json:"success"`
	Message    string   `json:"message,omitempty"`
	SyncedData []string `json:"syncedData,omitempty"`
}

// ProgressEvent is one message on the push stream. Only Type is always
// present; which other fields are required depends on Type.
type ProgressEvent struct {
	Type                   string   `json:"type"`
	UserID                 string   `json:"userId,omitempty"`
	WalletID               string   `json:"walletId,omitempty"`
	Progress               *float64 `json:"progress,omitempty"`
	Status                 string   `json:"status,omitempty"`
	Message                string   `json:"message,omitempty"`
	Error                  string   `json:"error,omitempty"`
	Timestamp              string   `json:"timestamp,omitempty"`
	StartedAt              string   `json:"startedAt,omitempty"`
	CompletedAt            string   `json:"completedAt,omitempty"`
	SyncedData             []string `json:"syncedData,omitempty"`
	EstimatedTimeRemaining *float64 `json:"estimatedTimeRemaining,omitempty"`
}

// Push stream event types.
const (
	EventConnectionEstablished = "connection_established"
	EventWalletSyncProgress    = "wallet_sync_progress"
	EventWalletSyncCompleted   = "wallet_sync_completed"
	EventWalletSyncFailed      = "wallet_sync_failed"
	EventHeartbeat             = "heartbeat"
)

// ParseEventTime parses an ISO-8601 timestamp from the stream. The zero
// time is returned for empty or unparseable input.
func ParseEventTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}

	return t
}
