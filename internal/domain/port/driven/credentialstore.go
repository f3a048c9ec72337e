package driven

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericfisherdev/wabridge/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by encrypted CredentialStore backends when
// WABRIDGE_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set WABRIDGE_SECRET_KEY")

// StorageError reports a credential storage failure. Without readable
// credentials the process cannot establish a session, so callers at startup
// treat it as fatal.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("credential storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// CredentialStore defines the driven port for persisting the opaque credential blob.
type CredentialStore interface {
	// Load returns the stored blob, or an empty blob when nothing has been
	// stored yet. Unreadable or corrupt storage yields a *StorageError.
	Load(ctx context.Context) (model.CredentialBlob, error)

	// Save replaces the stored blob. Entries missing from blob are removed.
	Save(ctx context.Context, blob model.CredentialBlob) error

	// Delete removes all stored credentials so the next start re-pairs.
	Delete(ctx context.Context) error
}
