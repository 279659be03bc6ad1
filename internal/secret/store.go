// Package secret implements the orchestrator's secret store (spec §4.10).
// A single system master key (32 bytes, AES-256) is supplied at startup and
// never persisted. Source/destination/channel credentials are sealed with
// that key directly; encryption-profile data keys are generated or imported
// independently and wrapped ("envelope encrypted") with the master key so
// that rotating the master key never requires re-encrypting backup data.
//
// The AES-256-GCM sealing scheme matches db.EncryptedString's format:
// nonce prefixed to ciphertext, base64-encoded for storage.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/skyfay/dbackup/internal/apperr"
)

const keySize = 32

// Store seals and opens values with a single master key.
type Store struct {
	masterKey []byte
}

// New builds a Store from a 32-byte master key.
func New(masterKey []byte) (*Store, error) {
	if len(masterKey) != keySize {
		return nil, apperr.New(apperr.KindConfig, "secret.New",
			fmt.Sprintf("master key must be exactly %d bytes, got %d", keySize, len(masterKey)))
	}
	key := make([]byte, keySize)
	copy(key, masterKey)
	return &Store{masterKey: key}, nil
}

// Seal encrypts plaintext with the master key and returns a base64-encoded
// string of the form base64(nonce || ciphertext || tag). An empty plaintext
// seals to an empty string without invoking AES-GCM.
func (s *Store) Seal(plaintext string) (string, error) {
	return seal(s.masterKey, plaintext)
}

// Open decrypts a value previously produced by Seal.
func (s *Store) Open(sealed string) (string, error) {
	return open(s.masterKey, sealed)
}

// GenerateDataKey produces a new random 32-byte encryption-profile data key,
// returned as a 64-character hex string for display/export.
func (s *Store) GenerateDataKey() (string, error) {
	raw := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "secret.GenerateDataKey", "reading random bytes", err)
	}
	return hex.EncodeToString(raw), nil
}

// ImportDataKey validates an externally supplied 64-hex-character data key
// (spec §3, Encryption profile "import by 64-hex key").
func (s *Store) ImportDataKey(hexKey string) (string, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return "", apperr.Wrap(apperr.KindConfig, "secret.ImportDataKey", "key is not valid hex", err)
	}
	if len(raw) != keySize {
		return "", apperr.New(apperr.KindConfig, "secret.ImportDataKey",
			fmt.Sprintf("key must decode to %d bytes, got %d", keySize, len(raw)))
	}
	return hexKey, nil
}

// WrapDataKey envelope-encrypts a hex-encoded data key with the master key,
// producing the value persisted on the encryption profile row.
func (s *Store) WrapDataKey(hexKey string) (string, error) {
	return s.Seal(hexKey)
}

// UnwrapDataKey reverses WrapDataKey and returns the raw 32 bytes ready for
// use by the codec package.
func (s *Store) UnwrapDataKey(wrapped string) ([]byte, error) {
	hexKey, err := s.Open(wrapped)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "secret.UnwrapDataKey", "unwrapped key is not valid hex", err)
	}
	if len(raw) != keySize {
		return nil, apperr.New(apperr.KindInternal, "secret.UnwrapDataKey", "unwrapped key has wrong length")
	}
	return raw, nil
}

func seal(key []byte, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "secret.seal", "creating AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "secret.seal", "creating GCM", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "secret.seal", "generating nonce", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func open(key []byte, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", apperr.Wrap(apperr.KindConfig, "secret.open", "decoding base64", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "secret.open", "creating AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "secret.open", "creating GCM", err)
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", apperr.New(apperr.KindConfig, "secret.open", "ciphertext shorter than nonce")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.KindAuth, "secret.open", "decrypting value", err)
	}
	return string(plaintext), nil
}

// active is the process-wide Store used by db.EncryptedString, mirroring the
// teacher's package-level encryptionKey. Set once at startup via Init.
var active *Store

// Init installs the process-wide Store. Must be called before any database
// operation touching an EncryptedString field.
func Init(masterKey []byte) error {
	s, err := New(masterKey)
	if err != nil {
		return err
	}
	active = s
	return nil
}

// Default returns the process-wide Store installed by Init, or nil if Init
// has not been called yet.
func Default() *Store { return active }
