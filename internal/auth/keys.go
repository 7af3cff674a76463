// Package auth guards the control server with static API keys.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// APIKeyPrefix distinguishes control keys from other bearer tokens.
	APIKeyPrefix = "ws_"

	// APIKeyMinLen is the prefix plus 32 hex characters (128 bits).
	APIKeyMinLen = len(APIKeyPrefix) + 32
)

// APIKey is a pre-configured key and the user it authenticates.
type APIKey struct {
	UserID string
	Key    string
}

// CheckKeyFormat reports why key cannot be a control key, or nil.
func CheckKeyFormat(key string) error {
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return fmt.Errorf("API key must start with %q prefix", APIKeyPrefix)
	}

	if len(key) < APIKeyMinLen {
		return fmt.Errorf("API key too short (minimum %d characters)", APIKeyMinLen)
	}

	if _, err := hex.DecodeString(key[len(APIKeyPrefix):]); err != nil {
		return fmt.Errorf("API key contains non-hex characters after %q prefix", APIKeyPrefix)
	}

	return nil
}

// ParseKeys parses a comma separated "user:ws_<hex>" list. Blank entries
// are skipped; each user may appear once.
func ParseKeys(list string) ([]APIKey, error) {
	seen := make(map[string]struct{})

	var keys []APIKey

	for _, pair := range strings.Split(list, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		n := len(keys) + 1

		userID, key, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("entry %d: missing ':'", n)
		}

		if userID == "" || key == "" {
			return nil, fmt.Errorf("entry %d: empty user or key", n)
		}

		if err := CheckKeyFormat(key); err != nil {
			return nil, fmt.Errorf("entry %d: %w", n, err)
		}

		if _, dup := seen[userID]; dup {
			return nil, fmt.Errorf("entry %d: duplicate user_id %q", n, userID)
		}

		seen[userID] = struct{}{}
		keys = append(keys, APIKey{UserID: userID, Key: key})
	}

	return keys, nil
}

type keyEntry struct {
	userID string
	hash   [sha256.Size]byte
}

// KeySet validates presented keys in constant time. Only SHA-256 digests
// of the configured keys are kept in memory.
type KeySet struct {
	entries []keyEntry
}

// NewKeySet builds a KeySet from parsed configuration entries.
func NewKeySet(keys []APIKey) *KeySet {
	ks := &KeySet{entries: make([]keyEntry, 0, len(keys))}
	for _, k := range keys {
		ks.entries = append(ks.entries, keyEntry{
			userID: k.UserID,
			hash:   sha256.Sum256([]byte(k.Key)),
		})
	}

	return ks
}

// Validate returns the user ID owning key, or "" if the key is unknown.
// Every entry is compared so timing does not reveal which one matched.
func (ks *KeySet) Validate(key string) string {
	h := sha256.Sum256([]byte(key))

	var userID string
	for _, e := range ks.entries {
		if subtle.ConstantTimeCompare(h[:], e.hash[:]) == 1 {
			userID = e.userID
		}
	}

	return userID
}
