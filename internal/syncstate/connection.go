package syncstate

import (
	"time"

	"github.com/alexjbarnes/wallet-sync/internal/models"
)

// SetConnectionStatus records stream liveness. Going live clears any
// previous connection error and moves the phase to connected; going down
// moves it to disconnected unless the stream has already given up.
func (s *Store) SetConnectionStatus(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.Connected = connected
	if connected {
		s.conn.Phase = models.PhaseConnected
		s.conn.Error = ""
	} else if s.conn.Phase != models.PhaseFailed {
		s.conn.Phase = models.PhaseDisconnected
	}
	s.version++
}

// SetConnectionPhase records the stream state machine position. Entering
// any phase other than connected also clears the connected flag.
func (s *Store) SetConnectionPhase(phase models.ConnPhase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.Phase = phase
	if phase != models.PhaseConnected {
		s.conn.Connected = false
	}
	s.version++
}

// SetConnectionError records a connection-level error for presentation.
// An empty message clears it.
func (s *Store) SetConnectionError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.Error = message
	s.version++
}

// SetReconnectState records the reconnect counter and the delay before the
// next attempt.
func (s *Store) SetReconnectState(attempts int, backoff time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.ReconnectAttempts = attempts
	s.conn.Backoff = backoff
	s.version++
}

// Connection returns a copy of the stream state.
func (s *Store) Connection() models.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.conn
}
