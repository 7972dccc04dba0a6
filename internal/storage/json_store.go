// ABOUTME: JSON-file post store with atomic replace and lock-guarded updates.
// ABOUTME: Reads both a bare array and an object with a "posts" key.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/2389-research/postsync/internal/models"
)

// JSONPostStore stores the post list as a single JSON document.
type JSONPostStore struct {
	path   string
	lock   *fileLock
	mu     sync.Mutex // serializes writers within this process
	logger *slog.Logger
	now    func() time.Time
}

// storeFile is the document written to disk.
type storeFile struct {
	Posts       []models.Post `json:"posts"`
	LastUpdated time.Time     `json:"lastUpdated"`
	Count       int           `json:"count"`
}

// NewJSONPostStore creates a store backed by the JSON file at path.
func NewJSONPostStore(path string, opts ...Option) (*JSONPostStore, error) {
	if path == "" {
		return nil, fmt.Errorf("post store path is required")
	}
	o := buildOptions(opts)
	return &JSONPostStore{
		path:   path,
		lock:   newFileLock(path+".lock", 0),
		logger: o.logger,
		now:    time.Now,
	}, nil
}

// Path returns the backing file path.
func (s *JSONPostStore) Path() string {
	return s.path
}

// Load returns the persisted posts. Corrupt content is logged and treated as empty.
func (s *JSONPostStore) Load(ctx context.Context) ([]models.Post, error) {
	return s.readRecovering()
}

// Save atomically replaces the persisted posts.
func (s *JSONPostStore) Save(ctx context.Context, posts []models.Post) error {
	return s.Update(ctx, func([]models.Post) ([]models.Post, error) {
		return posts, nil
	})
}

// Update holds the lock file across the read, fn, and the write.
func (s *JSONPostStore) Update(ctx context.Context, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(ctx); err != nil {
		return err
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release post store lock", "path", s.path, "error", err)
		}
	}()

	existing, err := s.readRecovering()
	if err != nil {
		return err
	}
	next, err := fn(existing)
	if err != nil {
		return err
	}
	return s.write(next)
}

// Close releases any resources held by the store.
func (s *JSONPostStore) Close() error {
	return nil
}

func (s *JSONPostStore) readRecovering() ([]models.Post, error) {
	posts, err := s.read()
	var corrupt *CorruptStoreError
	if errors.As(err, &corrupt) {
		s.logger.Warn("post store is corrupt, continuing with an empty store", "path", s.path, "error", corrupt.Err)
		return []models.Post{}, nil
	}
	return posts, err
}

func (s *JSONPostStore) read() ([]models.Post, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.Post{}, nil
		}
		return nil, fmt.Errorf("failed to read post store: %w", err)
	}
	posts, skipped, err := decodePosts(s.path, data)
	if skipped > 0 {
		s.logger.Warn("skipped unreadable posts in store", "path", s.path, "skipped", skipped)
	}
	return posts, err
}

func (s *JSONPostStore) write(posts []models.Post) error {
	if posts == nil {
		posts = []models.Post{}
	}
	doc := storeFile{
		Posts:       posts,
		LastUpdated: s.now().UTC(),
		Count:       len(posts),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode posts: %w", err)
	}
	if err := atomicWrite(s.path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write post store: %w", err)
	}
	return nil
}

// decodePosts accepts a bare JSON array or an object with a "posts" array. Elements
// that cannot be decoded as a post are skipped and counted; only a malformed document
// is a CorruptStoreError.
func decodePosts(path string, data []byte) ([]models.Post, int, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []models.Post{}, 0, nil
	}

	var elems []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, 0, &CorruptStoreError{Path: path, Err: err}
		}
	case '{':
		var doc struct {
			Posts *[]json.RawMessage `json:"posts"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, 0, &CorruptStoreError{Path: path, Err: err}
		}
		if doc.Posts == nil {
			return nil, 0, &CorruptStoreError{Path: path, Err: fmt.Errorf("object has no posts array")}
		}
		elems = *doc.Posts
	default:
		return nil, 0, &CorruptStoreError{Path: path, Err: fmt.Errorf("unexpected leading byte %q", trimmed[0])}
	}

	posts := make([]models.Post, 0, len(elems))
	skipped := 0
	for _, raw := range elems {
		var p models.Post
		if err := json.Unmarshal(raw, &p); err != nil {
			skipped++
			continue
		}
		posts = append(posts, p)
	}
	return posts, skipped, nil
}

func nonNil(posts []models.Post) []models.Post {
	if posts == nil {
		return []models.Post{}
	}
	return posts
}
