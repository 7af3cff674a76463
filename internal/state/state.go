// Package state persists the scheduling markers that decide whether an
// unattended sync should run. Nothing else survives a restart.
package state

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.wallet-sync/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	schedulerBucket = []byte("scheduler")
	lastSyncKey     = []byte("last_sync")
	lastLoginKey    = []byte("last_login")
)

// State wraps a bbolt database holding the scheduling markers.
type State struct {
	db *bolt.DB
}

// DefaultPath returns ~/.wallet-sync/state.db.
func DefaultPath() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(dir, ".wallet-sync", "state.db"), nil
}

// LoadAt opens the state database at path, creating it and its parent
// directory if needed.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(schedulerBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// LastSync returns when the last full sync cycle finished. The bool is
// false when no cycle has ever been recorded.
func (s *State) LastSync() (time.Time, bool, error) {
	return s.getTime(lastSyncKey)
}

// SetLastSync records the end of a full sync cycle.
func (s *State) SetLastSync(t time.Time) error {
	return s.putTime(lastSyncKey, t)
}

// LastLogin returns the previous session start. The bool is false on a
// fresh install.
func (s *State) LastLogin() (time.Time, bool, error) {
	return s.getTime(lastLoginKey)
}

// SetLastLogin records a session start.
func (s *State) SetLastLogin(t time.Time) error {
	return s.putTime(lastLoginKey, t)
}

func (s *State) getTime(key []byte) (time.Time, bool, error) {
	var (
		t     time.Time
		found bool
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(schedulerBucket).Get(key)
		if v == nil {
			return nil
		}

		if err := t.UnmarshalText(v); err != nil {
			return fmt.Errorf("decoding %s: %w", key, err)
		}

		found = true

		return nil
	})

	return t, found, err
}

func (s *State) putTime(key []byte, t time.Time) error {
	data, err := t.MarshalText()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(schedulerBucket).Put(key, data)
	})
}
