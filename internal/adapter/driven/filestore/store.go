// Package filestore implements the CredentialStore port as a directory of
// JSON files, one per credential entry.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ericfisherdev/wabridge/internal/domain/model"
	"github.com/ericfisherdev/wabridge/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*Store)(nil)

const (
	fileExt  = ".json"
	dirMode  = 0o700
	fileMode = 0o600
)

// Store keeps each credential entry in <dir>/<escaped name>.json.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates a Store rooted at dir. The directory is created on first use.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Load reads every entry in the directory. A missing directory yields an
// empty blob; unreadable files or invalid JSON yield a *driven.StorageError.
func (s *Store) Load(_ context.Context) (model.CredentialBlob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return model.CredentialBlob{}, nil
	}
	if err != nil {
		return nil, &driven.StorageError{Op: "load", Err: err}
	}

	blob := make(model.CredentialBlob, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}

		name, err := url.PathUnescape(strings.TrimSuffix(entry.Name(), fileExt))
		if err != nil {
			return nil, &driven.StorageError{Op: "load", Err: fmt.Errorf("decode file name %q: %w", entry.Name(), err)}
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, &driven.StorageError{Op: "load", Err: err}
		}
		if !json.Valid(data) {
			return nil, &driven.StorageError{Op: "load", Err: fmt.Errorf("corrupt credential file %q", entry.Name())}
		}

		blob[name] = json.RawMessage(data)
	}

	return blob, nil
}

// Save writes every entry of blob atomically and removes files for entries
// no longer present.
func (s *Store) Save(_ context.Context, blob model.CredentialBlob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return &driven.StorageError{Op: "save", Err: err}
	}

	keep := make(map[string]bool, len(blob))
	for name, value := range blob {
		file := fileName(name)
		keep[file] = true
		if err := writeFile(filepath.Join(s.dir, file), value); err != nil {
			return &driven.StorageError{Op: "save", Err: fmt.Errorf("write %q: %w", name, err)}
		}
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return &driven.StorageError{Op: "save", Err: err}
	}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), fileExt) || keep[entry.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return &driven.StorageError{Op: "save", Err: err}
		}
	}

	if err := syncDir(s.dir); err != nil {
		return &driven.StorageError{Op: "save", Err: err}
	}
	return nil
}

// Delete removes the credential directory and everything in it.
func (s *Store) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.dir); err != nil {
		return &driven.StorageError{Op: "delete", Err: err}
	}
	return nil
}

func fileName(name string) string {
	return url.PathEscape(name) + fileExt
}

// writeFile writes data via a synced temp file, then atomically replaces path.
func writeFile(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	// Best-effort cleanup if anything fails before rename.
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(fileMode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
