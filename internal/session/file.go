// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aplane-algo/zklogin/internal/crypto"
	"github.com/aplane-algo/zklogin/internal/fsutil"
	"github.com/aplane-algo/zklogin/internal/util"
)

// DefaultFileName is the session file name inside the data directory.
const DefaultFileName = "session.json"

// FileStore persists the session as JSON, optionally sealed under a passphrase.
type FileStore struct {
	path       string
	passphrase *crypto.Secret
	lock       sync.Mutex
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// WithPassphrase enables encryption at rest. The passphrase is copied;
// the caller can zero its slice.
func (f *FileStore) WithPassphrase(passphrase []byte) *FileStore {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.passphrase != nil {
		f.passphrase.Destroy()
	}
	f.passphrase = crypto.NewSecret(passphrase)
	return f
}

// Path returns the session file path.
func (f *FileStore) Path() string {
	return f.path
}

// Close wipes the cached passphrase.
func (f *FileStore) Close() {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.passphrase != nil {
		f.passphrase.Destroy()
		f.passphrase = nil
	}
}

func (f *FileStore) encrypted() bool {
	return f.passphrase != nil && !f.passphrase.IsEmpty()
}

// Save writes s atomically.
func (f *FileStore) Save(_ context.Context, s *Session) error {
	if err := s.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	defer crypto.ZeroBytes(data)

	f.lock.Lock()
	defer f.lock.Unlock()

	if f.encrypted() {
		err = f.passphrase.Use(func(p []byte) error {
			sealed, err := crypto.Encrypt(data, p)
			if err != nil {
				return err
			}
			return fsutil.WriteFileAtomic(f.path, sealed)
		})
	} else {
		err = fsutil.WriteFileAtomic(f.path, data)
	}
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	util.Debug("session saved", "id", s.ID, "path", f.path, "encrypted", f.encrypted())
	return nil
}

// Load reads the session. A missing, unreadable or incomplete record is
// reported as ErrNoSession; an incomplete one also matches ErrIncomplete.
func (f *FileStore) Load(_ context.Context) (*Session, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	defer crypto.ZeroBytes(data)

	if crypto.IsEncrypted(data) {
		if !f.encrypted() {
			return nil, ErrLocked
		}
		var plain []byte
		err := f.passphrase.Use(func(p []byte) error {
			var err error
			plain, err = crypto.Decrypt(data, p)
			return err
		})
		if err != nil {
			return nil, err
		}
		defer crypto.ZeroBytes(plain)
		data = plain
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrNoSession, ErrIncomplete, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	return &s, nil
}

// Clear removes the session file.
func (f *FileStore) Clear(_ context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	util.Debug("session cleared", "path", f.path)
	return nil
}

// watchDebounce coalesces the create/rename pair an atomic write produces.
const watchDebounce = 100 * time.Millisecond

// Watch signals on the returned channel whenever the session file is
// created, replaced or removed. The channel closes when ctx is done.
// The parent directory is watched because atomic writes replace the inode.
func (f *FileStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	dir := filepath.Dir(f.path)
	if err := fsutil.MkdirAll(dir); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch session directory: %w", err)
	}

	changes := make(chan struct{}, 1)
	notify := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}

	go func() {
		defer close(changes)
		defer func() { _ = watcher.Close() }()

		var (
			debounce *time.Timer
			fire     <-chan time.Time
		)
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case <-fire:
				fire = nil
				notify()

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(f.path) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.NewTimer(watchDebounce)
				fire = debounce.C

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				util.Log().Warn("session watcher error", "error", err)
			}
		}
	}()

	return changes, nil
}

var _ Store = (*FileStore)(nil)
