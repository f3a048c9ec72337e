package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ericfisherdev/wabridge/internal/domain/model"
	"github.com/ericfisherdev/wabridge/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Entry values are encrypted with AES-256-GCM before write and decrypted after read.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for AES-256-GCM,
// or nil, in which case Load and Save fail with driven.ErrEncryptionKeyNotSet.
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key}
}

// Load returns all stored entries, decrypted. An empty table yields an empty blob.
func (r *CredentialRepo) Load(ctx context.Context) (model.CredentialBlob, error) {
	if r.key == nil {
		return nil, &driven.StorageError{Op: "load", Err: driven.ErrEncryptionKeyNotSet}
	}

	const query = `SELECT name, value FROM credential_entries ORDER BY name`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, &driven.StorageError{Op: "load", Err: fmt.Errorf("query credential entries: %w", err)}
	}
	defer rows.Close()

	blob := model.CredentialBlob{}
	for rows.Next() {
		var name, encrypted string
		if err := rows.Scan(&name, &encrypted); err != nil {
			return nil, &driven.StorageError{Op: "load", Err: fmt.Errorf("scan credential entry: %w", err)}
		}

		plaintext, err := r.decrypt(encrypted)
		if err != nil {
			return nil, &driven.StorageError{Op: "load", Err: fmt.Errorf("decrypt credential entry %q: %w", name, err)}
		}
		if !json.Valid(plaintext) {
			return nil, &driven.StorageError{Op: "load", Err: fmt.Errorf("corrupt credential entry %q", name)}
		}

		blob[name] = json.RawMessage(plaintext)
	}
	if err := rows.Err(); err != nil {
		return nil, &driven.StorageError{Op: "load", Err: fmt.Errorf("iterate credential entries: %w", err)}
	}

	return blob, nil
}

// Save replaces all stored entries with blob inside a single transaction.
func (r *CredentialRepo) Save(ctx context.Context, blob model.CredentialBlob) error {
	if r.key == nil {
		return &driven.StorageError{Op: "save", Err: driven.ErrEncryptionKeyNotSet}
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return &driven.StorageError{Op: "save", Err: fmt.Errorf("begin transaction: %w", err)}
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM credential_entries`); err != nil {
		return &driven.StorageError{Op: "save", Err: fmt.Errorf("clear credential entries: %w", err)}
	}

	const insert = `INSERT INTO credential_entries (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`
	for name, value := range blob {
		encrypted, err := r.encrypt(value)
		if err != nil {
			return &driven.StorageError{Op: "save", Err: fmt.Errorf("encrypt credential entry %q: %w", name, err)}
		}
		if _, err := tx.ExecContext(ctx, insert, name, encrypted); err != nil {
			return &driven.StorageError{Op: "save", Err: fmt.Errorf("insert credential entry %q: %w", name, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &driven.StorageError{Op: "save", Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// Delete removes every stored entry.
func (r *CredentialRepo) Delete(ctx context.Context) error {
	if _, err := r.db.Writer.ExecContext(ctx, `DELETE FROM credential_entries`); err != nil {
		return &driven.StorageError{Op: "delete", Err: err}
	}
	return nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded string
// containing the nonce (12 bytes) prepended to the ciphertext.
func (r *CredentialRepo) encrypt(plaintext []byte) (string, error) {
	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *CredentialRepo) decrypt(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := r.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm.Open: %w", err)
	}

	return plaintext, nil
}

func (r *CredentialRepo) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
