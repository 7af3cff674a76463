package syncstate

import (
	"time"

	"github.com/alexjbarnes/wallet-sync/internal/models"
)

// Snapshot is a consistent copy of everything presentation reads.
type Snapshot struct {
	Wallets    map[string]models.WalletSyncState `json:"wallets"`
	Connection models.ConnectionState            `json:"connection"`
	Stats      models.SyncStats                  `json:"stats"`
	Version    uint64                            `json:"version"`
}

// SetAutoSyncing flags whether an unattended cycle is running. Starting
// a cycle records its ID.
func (s *Store) SetAutoSyncing(syncing bool, cycleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.autoSyncing = syncing
	if cycleID != "" {
		s.cycleID = cycleID
	}
	s.version++
}

// SetLastSyncTime records when the last full cycle finished.
func (s *Store) SetLastSyncTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSync = &t
	s.version++
}

// Stats recomputes the aggregate view from the wallet map.
func (s *Store) Stats() models.SyncStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.statsLocked()
}

func (s *Store) statsLocked() models.SyncStats {
	st := models.SyncStats{
		Total:         len(s.wallets),
		IsAutoSyncing: s.autoSyncing,
		CycleID:       s.cycleID,
	}
	if s.lastSync != nil {
		t := *s.lastSync
		st.LastSyncTime = &t
	}

	sum := 0
	for _, w := range s.wallets {
		switch w.Status {
		case models.StatusCompleted:
			st.Synced++
			sum += 100
		case models.StatusFailed:
			st.Failed++
			sum += 100
		default:
			st.InProgress++
			sum += w.Progress
		}
	}
	if st.Total > 0 {
		st.OverallProgress = sum / st.Total
	}

	return st
}

// Snapshot returns wallets, connection and stats read under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallets := make(map[string]models.WalletSyncState, len(s.wallets))
	for id, w := range s.wallets {
		wallets[id] = copyWallet(w)
	}

	return Snapshot{
		Wallets:    wallets,
		Connection: s.conn,
		Stats:      s.statsLocked(),
		Version:    s.version,
	}
}
