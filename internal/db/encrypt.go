package db

import (
	"database/sql/driver"
	"fmt"

	"github.com/skyfay/dbackup/internal/secret"
)

// EncryptedString is a string type that is transparently encrypted with
// AES-256-GCM before being written to the database, and decrypted after
// being read. Use it for any sensitive column (credentials, tokens, webhook
// secrets). Encryption itself is delegated to the secret package so the
// master key has a single owner; this type is a thin GORM adapter over it.
//
// The value stored in the database is a base64-encoded string in the format:
//
//	base64(nonce + ciphertext)
//
// An empty EncryptedString is stored as an empty string without encryption.
type EncryptedString string

// Value implements driver.Valuer. Called by GORM before writing to the database.
func (e EncryptedString) Value() (driver.Value, error) {
	store := secret.Default()
	if store == nil {
		return nil, fmt.Errorf("db: secret store not initialized, call secret.Init first")
	}
	sealed, err := store.Seal(string(e))
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

// Scan implements sql.Scanner. Called by GORM after reading from the database.
func (e *EncryptedString) Scan(value interface{}) error {
	if value == nil {
		*e = ""
		return nil
	}

	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("db: EncryptedString.Scan: expected string, got %T", value)
	}

	store := secret.Default()
	if store == nil {
		return fmt.Errorf("db: secret store not initialized, call secret.Init first")
	}

	plain, err := store.Open(str)
	if err != nil {
		return err
	}
	*e = EncryptedString(plain)
	return nil
}
