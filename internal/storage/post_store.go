// ABOUTME: Interface definition for the durable post store and its shared helpers.
// ABOUTME: Defines load/save/update, listing options, and the corrupt-store error.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/2389-research/postsync/internal/merge"
	"github.com/2389-research/postsync/internal/models"
)

// UpdateFunc computes the next store state from the current one.
type UpdateFunc func(existing []models.Post) ([]models.Post, error)

// PostStore defines operations for post persistence.
type PostStore interface {
	// Load returns the persisted posts. A missing store is an empty list.
	Load(ctx context.Context) ([]models.Post, error)

	// Save atomically replaces the persisted posts.
	Save(ctx context.Context, posts []models.Post) error

	// Update runs a read-modify-write cycle while holding the store's writer lock.
	// Nothing is written when fn returns an error.
	Update(ctx context.Context, fn UpdateFunc) error

	// Close releases any resources held by the store.
	Close() error
}

// CorruptStoreError reports persisted state that could not be parsed.
// Stores recover from it by treating the state as empty.
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt post store %s: %v", e.Path, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

// Option configures a store.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for store warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// StoreInfo summarizes a post store for status output.
type StoreInfo struct {
	Posts      int
	Version    int64 // write count, only for stores that track it
	HasVersion bool
}

// Inspect counts the stored posts and, for versioned stores, reads the write count.
func Inspect(ctx context.Context, store PostStore) (StoreInfo, error) {
	posts, err := store.Load(ctx)
	if err != nil {
		return StoreInfo{}, fmt.Errorf("failed to load posts: %w", err)
	}
	info := StoreInfo{Posts: len(posts)}
	if v, ok := store.(interface {
		Version(ctx context.Context) (int64, error)
	}); ok {
		n, err := v.Version(ctx)
		if err != nil {
			return info, fmt.Errorf("failed to read store version: %w", err)
		}
		info.Version, info.HasVersion = n, true
	}
	return info, nil
}

// ListPostsOptions configures filtering and pagination for listing posts.
type ListPostsOptions struct {
	Limit        int
	Offset       int
	TagFilter    string
	SourceFilter string
}

// ListPosts loads posts from store and applies the filter options.
func ListPosts(ctx context.Context, store PostStore, opts ListPostsOptions) ([]models.Post, error) {
	posts, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return FilterPosts(posts, opts), nil
}

// FilterPosts applies tag and source filters, then offset and limit. A zero limit means 10.
func FilterPosts(posts []models.Post, opts ListPostsOptions) []models.Post {
	tag := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(opts.TagFilter), "#"))
	var out []models.Post
	for _, p := range posts {
		if tag != "" && !slices.Contains(p.Tags, tag) {
			continue
		}
		if opts.SourceFilter != "" && p.Source != opts.SourceFilter {
			continue
		}
		out = append(out, p)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil
		}
		out = out[opts.Offset:]
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > len(out) {
		limit = len(out)
	}
	return out[:limit]
}

// FindPost returns the stored post whose identity key, activity id, or URL equals ref.
func FindPost(posts []models.Post, ref string) (models.Post, bool) {
	for _, p := range posts {
		if string(merge.IdentityOf(p)) == ref || (p.ActivityID != "" && p.ActivityID == ref) || (p.URL != "" && p.URL == ref) {
			return p, true
		}
	}
	return models.Post{}, false
}
