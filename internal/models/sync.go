// Package models defines types shared across internal packages.
package models

import "time"

// SyncStatus is the per-wallet position in the sync pipeline.
type SyncStatus string

const (
	StatusQueued              SyncStatus = "queued"
	StatusSyncing             SyncStatus = "syncing"
	StatusSyncingAssets       SyncStatus = "syncing_assets"
	StatusSyncingTransactions SyncStatus = "syncing_transactions"
	StatusSyncingNFTs         SyncStatus = "syncing_nfts"
	StatusSyncingDeFi         SyncStatus = "syncing_defi"
	StatusCompleted           SyncStatus = "completed"
	StatusFailed              SyncStatus = "failed"
)

// IsTerminal reports whether no further updates are accepted for the
// current cycle once a wallet reaches this status.
func (s SyncStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusSyncing, StatusSyncingAssets, StatusSyncingTransactions,
		StatusSyncingNFTs, StatusSyncingDeFi, StatusCompleted, StatusFailed:
		return true
	}

	return false
}

// WalletSyncState is the sync progress of one wallet in the current cycle.
type WalletSyncState struct {
	WalletID    string     `json:"wallet_id"`
	Progress    int        `json:"progress"`
	Status      SyncStatus `json:"status"`
	Message     string     `json:"message,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	SyncedData  []string   `json:"synced_data,omitempty"`

	// EstimatedRemaining is the server's estimate, zero when unknown.
	EstimatedRemaining time.Duration `json:"estimated_remaining,omitempty"`
}

// ConnPhase is the push stream's connection state machine position.
type ConnPhase string

const (
	PhaseDisconnected ConnPhase = "disconnected"
	PhaseConnecting   ConnPhase = "connecting"
	PhaseConnected    ConnPhase = "connected"
	PhaseFailed       ConnPhase = "failed"
)

// ConnectionState describes the health of the push stream.
type ConnectionState struct {
	Connected         bool          `json:"connected"`
	Phase             ConnPhase     `json:"phase"`
	ReconnectAttempts int           `json:"reconnect_attempts"`
	Backoff           time.Duration `json:"backoff"`
	Error             string        `json:"error,omitempty"`
}

// SyncStats aggregates the wallet map for presentation.
type SyncStats struct {
	Total           int        `json:"total"`
	Synced          int        `json:"synced"`
	Failed          int        `json:"failed"`
	InProgress      int        `json:"in_progress"`
	OverallProgress int        `json:"overall_progress"`
	IsAutoSyncing   bool       `json:"is_auto_syncing"`
	LastSyncTime    *time.Time `json:"last_sync_time,omitempty"`
	CycleID         string     `json:"cycle_id,omitempty"`
}

// SyncSummary is the outcome of one fan-out over a user's wallets.
type SyncSummary struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}
