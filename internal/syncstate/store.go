// Package syncstate holds the in-memory source of truth for wallet sync
// progress and push stream health. Every mutation decides for itself
// whether it applies, so concurrent writers (the executor and the stream
// client) never need to read-modify-write a snapshot.
package syncstate

import (
	"slices"
	"sync"
	"time"

	"github.com/alexjbarnes/wallet-sync/internal/models"
)

// Store is safe for concurrent use. Snapshots returned from read methods
// are copies and never alias internal state.
type Store struct {
	mu sync.RWMutex

	wallets map[string]*models.WalletSyncState
	conn    models.ConnectionState

	autoSyncing bool
	lastSync    *time.Time
	cycleID     string

	// version increases by one on every applied mutation. Rejected
	// mutations leave it untouched.
	version uint64

	now func() time.Time
}

// New returns an empty store with a disconnected stream.
func New() *Store {
	return &Store{
		wallets: make(map[string]*models.WalletSyncState),
		conn:    models.ConnectionState{Phase: models.PhaseDisconnected},
		now:     time.Now,
	}
}

// wallet returns the entry for id, creating a queued one if missing.
// Caller holds mu.
func (s *Store) wallet(id string) *models.WalletSyncState {
	w, ok := s.wallets[id]
	if !ok {
		w = &models.WalletSyncState{WalletID: id, Status: models.StatusQueued}
		s.wallets[id] = w
	}

	return w
}

// ResetForNewCycle puts a wallet back to queued with no progress, error
// or timestamps. It is the only way out of a terminal state.
func (s *Store) ResetForNewCycle(walletID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wallets[walletID] = &models.WalletSyncState{
		WalletID: walletID,
		Status:   models.StatusQueued,
	}
	s.version++
}

// MarkSyncing moves a queued wallet into the generic syncing stage and
// stamps StartedAt. A wallet already in a finer stage keeps it. Returns
// false if the wallet is already terminal.
func (s *Store) MarkSyncing(walletID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.wallet(walletID)
	if w.Status.IsTerminal() {
		return false
	}

	if w.Status != models.StatusQueued {
		return true
	}

	now := s.now()
	w.Status = models.StatusSyncing
	w.StartedAt = &now
	s.version++

	return true
}

// UpdateProgress records a non-terminal progress update. Progress is
// clamped to 0..100 and never moves backwards within a cycle. Updates to
// terminal wallets and updates carrying a terminal or unknown status are
// rejected and return false.
func (s *Store) UpdateProgress(walletID string, progress int, status models.SyncStatus, message string) bool {
	if status.IsTerminal() || !status.Valid() {
		return false
	}

	progress = max(0, min(progress, 100))

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.wallet(walletID)
	if w.Status.IsTerminal() {
		return false
	}

	w.Status = status
	w.Progress = max(w.Progress, progress)
	if message != "" {
		w.Message = message
	}
	if w.StartedAt == nil && status != models.StatusQueued {
		now := s.now()
		w.StartedAt = &now
	}
	s.version++

	return true
}

// SetEstimatedRemaining records the server's remaining-time estimate for
// a non-terminal wallet.
func (s *Store) SetEstimatedRemaining(walletID string, d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletID]
	if !ok || w.Status.IsTerminal() || w.EstimatedRemaining == d {
		return false
	}

	w.EstimatedRemaining = d
	s.version++

	return true
}

// MarkCompleted sets the terminal completed state. Progress keeps its last
// reported value. A zero completedAt means now. Returns false, changing
// nothing, if the wallet is already terminal.
func (s *Store) MarkCompleted(walletID string, syncedData []string, completedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.wallet(walletID)
	if w.Status.IsTerminal() {
		return false
	}

	if completedAt.IsZero() {
		completedAt = s.now()
	}

	w.Status = models.StatusCompleted
	w.CompletedAt = &completedAt
	w.SyncedData = slices.Clone(syncedData)
	w.Error = ""
	w.EstimatedRemaining = 0
	s.version++

	return true
}

// MarkFailed sets the terminal failed state with the given error text.
// Returns false, changing nothing, if the wallet is already terminal.
func (s *Store) MarkFailed(walletID, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.wallet(walletID)
	if w.Status.IsTerminal() {
		return false
	}

	now := s.now()
	w.Status = models.StatusFailed
	w.Error = errMsg
	w.CompletedAt = &now
	w.EstimatedRemaining = 0
	s.version++

	return true
}

// Wallet returns a copy of one wallet's state.
func (s *Store) Wallet(walletID string) (models.WalletSyncState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return models.WalletSyncState{}, false
	}

	return copyWallet(w), true
}

// Wallets returns a copy of every wallet's state keyed by ID.
func (s *Store) Wallets() map[string]models.WalletSyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.WalletSyncState, len(s.wallets))
	for id, w := range s.wallets {
		out[id] = copyWallet(w)
	}

	return out
}

func copyWallet(w *models.WalletSyncState) models.WalletSyncState {
	c := *w
	c.SyncedData = slices.Clone(w.SyncedData)
	if w.StartedAt != nil {
		t := *w.StartedAt
		c.StartedAt = &t
	}
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		c.CompletedAt = &t
	}

	return c
}

// Version returns the mutation counter.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.version
}
