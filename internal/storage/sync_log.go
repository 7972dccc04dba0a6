// ABOUTME: Persistence for the SyncLog audit summary as a small JSON document.
// ABOUTME: Records every sync attempt; failures additionally carry the error message.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/2389-research/postsync/internal/models"
)

// SyncLogStore reads and updates the sync log file.
type SyncLogStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time
}

// NewSyncLogStore creates a sync log store at path.
func NewSyncLogStore(path string, opts ...Option) *SyncLogStore {
	o := buildOptions(opts)
	return &SyncLogStore{path: path, logger: o.logger, now: time.Now}
}

// Load returns the current sync log. A missing or unreadable log is a zero SyncLog.
func (s *SyncLogStore) Load() (models.SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// RecordSuccess bumps the sync count and clears any previous error.
func (s *SyncLogStore) RecordSuccess(runID string, newPosts int, lastProcessedID string) (models.SyncLog, error) {
	return s.record(func(l *models.SyncLog) {
		l.NewPostsThisSync = newPosts
		if lastProcessedID != "" {
			l.LastProcessedID = lastProcessedID
		}
		l.LastRunID = runID
		l.LastError = ""
	})
}

// RecordFailure bumps the sync count and stores the error message.
func (s *SyncLogStore) RecordFailure(runID string, runErr error) (models.SyncLog, error) {
	return s.record(func(l *models.SyncLog) {
		l.NewPostsThisSync = 0
		l.LastRunID = runID
		if runErr != nil {
			l.LastError = runErr.Error()
		}
	})
}

func (s *SyncLogStore) record(apply func(*models.SyncLog)) (models.SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.load()
	if err != nil {
		return l, err
	}
	l.LastSync = s.now().UTC()
	l.TotalSyncs++
	apply(&l)

	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return l, fmt.Errorf("failed to encode sync log: %w", err)
	}
	if err := atomicWrite(s.path, append(data, '\n'), 0644); err != nil {
		return l, fmt.Errorf("failed to write sync log: %w", err)
	}
	return l, nil
}

func (s *SyncLogStore) load() (models.SyncLog, error) {
	var l models.SyncLog
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return l, fmt.Errorf("failed to read sync log: %w", err)
	}
	if err := json.Unmarshal(data, &l); err != nil {
		s.logger.Warn("sync log is corrupt, starting a new one", "path", s.path, "error", err)
		return models.SyncLog{}, nil
	}
	return l, nil
}
