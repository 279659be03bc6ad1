// Package apikey implements the bearer-token credential the Job Trigger API
// accepts (spec §6): a capability-bearing key, hashed at rest, verified on
// every request by hash lookup rather than a signed/stateful token scheme —
// simpler than an RS256-signed JWT since there is no session/refresh
// lifecycle to model, only possession of a secret plus a capability list.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skyfay/dbackup/internal/db"
	"github.com/skyfay/dbackup/internal/repositories"
)

// Capability is one of the closed set of permissions a key can carry
// (spec §6: "jobs:execute" for trigger, "jobs:read" for poll).
type Capability string

const (
	CapJobsExecute Capability = "jobs:execute"
	CapJobsRead    Capability = "jobs:read"
)

const keyPrefix = "dbk_"

var (
	// ErrInvalidKey is returned when the raw key has no matching hash on record.
	ErrInvalidKey = errors.New("apikey: invalid key")
	// ErrRevoked is returned when the key matches a record that has been revoked.
	ErrRevoked = errors.New("apikey: key revoked")
	// ErrMissingCapability is returned when a valid key lacks the capability
	// required by the endpoint it was presented to.
	ErrMissingCapability = errors.New("apikey: missing required capability")
)

// Manager verifies bearer tokens presented to the Job Trigger API and issues
// new ones from the CLI.
type Manager struct {
	keys repositories.APIKeyRepository
}

// New builds a Manager backed by the given repository.
func New(keys repositories.APIKeyRepository) *Manager {
	return &Manager{keys: keys}
}

// Issue generates a new random key, persists its hash and capabilities, and
// returns the raw key string. The raw value is returned exactly once — it is
// never recoverable from storage.
func (m *Manager) Issue(ctx context.Context, name string, caps []Capability) (rawKey string, record *db.APIKey, err error) {
	raw, err := generateRawKey()
	if err != nil {
		return "", nil, fmt.Errorf("apikey: generating key: %w", err)
	}

	record = &db.APIKey{
		Name:         name,
		KeyHash:      hashKey(raw),
		Capabilities: joinCapabilities(caps),
	}
	if err := m.keys.Create(ctx, record); err != nil {
		return "", nil, fmt.Errorf("apikey: persisting key: %w", err)
	}
	return raw, record, nil
}

// Revoke marks a key unusable. Already-issued tokens are never recalled
// from a caller — revocation only prevents future Verify calls from
// succeeding.
func (m *Manager) Revoke(ctx context.Context, id uuid.UUID) error {
	return m.keys.Revoke(ctx, id)
}

// Verify looks up rawKey by its hash, rejects revoked keys, and requires the
// presented key carry every capability in need. On success it touches the
// key's last-used timestamp (best-effort, errors are not fatal to the call).
func (m *Manager) Verify(ctx context.Context, rawKey string, need ...Capability) (*db.APIKey, error) {
	rec, err := m.keys.GetByHash(ctx, hashKey(rawKey))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("apikey: lookup: %w", err)
	}
	if rec.RevokedAt != nil {
		return nil, ErrRevoked
	}
	for _, cap := range need {
		if !hasCapability(rec.Capabilities, cap) {
			return nil, ErrMissingCapability
		}
	}

	if err := m.keys.Touch(ctx, rec.ID, time.Now().UTC()); err != nil {
		return rec, nil
	}
	return rec, nil
}

func generateRawKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return keyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashKey returns the hex-encoded SHA-256 digest of a raw key. Constant-time
// comparison is unnecessary here since the lookup goes through an indexed
// equality query rather than a manual byte comparison; hasCapability below
// is where subtle.ConstantTimeCompare is used.
func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func joinCapabilities(caps []Capability) string {
	parts := make([]string, len(caps))
	for i, c := range caps {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func hasCapability(stored string, want Capability) bool {
	for _, c := range strings.Split(stored, ",") {
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(c)), []byte(want)) == 1 {
			return true
		}
	}
	return false
}
