// ABOUTME: Advisory lock file guarding read-modify-write cycles on the JSON store.
// ABOUTME: Acquired with O_EXCL, polled until the context ends, stale locks are broken.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	lockPollInterval = 50 * time.Millisecond
	defaultStaleLock = 10 * time.Minute
)

// ErrLocked is returned when the lock could not be acquired before the context ended.
var ErrLocked = errors.New("store is locked by another sync")

// fileLock is an advisory lock represented by the existence of a file.
type fileLock struct {
	path  string
	token string
	stale time.Duration
}

// lockInfo is written into the lock file for diagnostics and ownership checks.
type lockInfo struct {
	Token    string    `json:"token"`
	PID      int       `json:"pid"`
	Acquired time.Time `json:"acquired"`
}

func newFileLock(path string, stale time.Duration) *fileLock {
	if stale <= 0 {
		stale = defaultStaleLock
	}
	return &fileLock{path: path, stale: stale}
}

// Lock blocks until the lock is held or ctx is done.
func (l *fileLock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0750); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	token := uuid.NewString()
	info, err := json.Marshal(lockInfo{Token: token, PID: os.Getpid(), Acquired: time.Now().UTC()})
	if err != nil {
		return err
	}

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err == nil {
			_, werr := f.Write(info)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(l.path)
				return fmt.Errorf("failed to write lock file: %w", errors.Join(werr, cerr))
			}
			l.token = token
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lock file: %w", err)
		}

		l.breakIfStale()

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrLocked, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Unlock releases the lock if this holder still owns it.
func (l *fileLock) Unlock() error {
	if l.token == "" {
		return nil
	}
	defer func() { l.token = "" }()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err == nil && info.Token != l.token {
		// Someone broke our lock as stale and took it over.
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// breakIfStale removes a lock file older than the stale threshold.
func (l *fileLock) breakIfStale() {
	st, err := os.Stat(l.path)
	if err != nil || time.Since(st.ModTime()) <= l.stale {
		return
	}
	seen, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	l.breakStale(seen)
}

// breakStale moves the lock file aside under a unique name, so only one waiter can
// claim it, and deletes it only if it still holds the stale content seen earlier.
// A fresh lock taken in between is put back.
func (l *fileLock) breakStale(seen []byte) {
	aside := fmt.Sprintf("%s.stale-%s", l.path, uuid.NewString())
	if err := os.Rename(l.path, aside); err != nil {
		return
	}
	got, err := os.ReadFile(aside)
	if err == nil && !bytes.Equal(got, seen) {
		if err := os.Link(aside, l.path); err != nil && !os.IsExist(err) {
			_ = os.Rename(aside, l.path)
			return
		}
	}
	_ = os.Remove(aside)
}
