// ABOUTME: Source adapter reading posts from a local JSON export.
// ABOUTME: Used for imports and manual backfills; accepts any shape FromRaw understands.
package source

import (
	"context"
	"fmt"
	"os"

	"github.com/2389-research/postsync/internal/models"
)

// FileSource reads candidate posts from a JSON file.
type FileSource struct {
	path  string
	label string
}

// NewFileSource creates a file adapter. The label defaults to "file".
func NewFileSource(path, label string) *FileSource {
	if label == "" {
		label = "file"
	}
	return &FileSource{path: path, label: label}
}

// Name implements Adapter.
func (s *FileSource) Name() string { return s.label }

// Fetch implements Adapter.
func (s *FileSource) Fetch(ctx context.Context, maxCount int) ([]models.Post, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	records, err := decodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}

	posts := make([]models.Post, 0, len(records))
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		posts = append(posts, FromRaw(r, s.label))
		if maxCount > 0 && len(posts) >= maxCount {
			break
		}
	}
	return posts, nil
}
