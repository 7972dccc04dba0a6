// ABOUTME: SQLite-backed post store, one row per post in store order.
// ABOUTME: Updates run inside a write transaction so concurrent syncs serialize.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389-research/postsync/internal/merge"
	"github.com/2389-research/postsync/internal/models"
)

// SQLitePostStore stores posts in a SQLite database.
type SQLitePostStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// NewSQLitePostStore opens (and migrates) the database at path.
func NewSQLitePostStore(path string, opts ...Option) (*SQLitePostStore, error) {
	if path == "" {
		return nil, fmt.Errorf("post store path is required")
	}
	o := buildOptions(opts)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &SQLitePostStore{db: db, path: path, logger: o.logger, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLitePostStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS posts (
	  position INTEGER PRIMARY KEY,
	  post_key TEXT NOT NULL,
	  activity_id TEXT,
	  published_at INTEGER,
	  data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_posts_key ON posts(post_key);
	CREATE TABLE IF NOT EXISTS store_meta (
	  id INTEGER PRIMARY KEY CHECK (id=1),
	  version INTEGER NOT NULL,
	  updated_at INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO store_meta(id, version, updated_at) VALUES (1, 0, 0);
	`)
	return err
}

// Load returns the persisted posts in store order. Rows that fail to decode are skipped.
func (s *SQLitePostStore) Load(ctx context.Context) ([]models.Post, error) {
	return s.loadPosts(ctx, s.db)
}

// Save replaces every stored post in a single transaction.
func (s *SQLitePostStore) Save(ctx context.Context, posts []models.Post) error {
	return s.Update(ctx, func([]models.Post) ([]models.Post, error) {
		return posts, nil
	})
}

// Update runs fn inside a write transaction. The version bump takes SQLite's
// write lock before the read, so a concurrent Update waits instead of racing.
func (s *SQLitePostStore) Update(ctx context.Context, fn UpdateFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE store_meta SET version = version + 1, updated_at = ? WHERE id = 1`, s.now().Unix()); err != nil {
		return fmt.Errorf("failed to lock post store: %w", err)
	}

	existing, err := s.loadPosts(ctx, tx)
	if err != nil {
		return err
	}
	next, err := fn(existing)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM posts`); err != nil {
		return fmt.Errorf("failed to clear posts: %w", err)
	}
	for i, p := range next {
		data, mErr := json.Marshal(p)
		if mErr != nil {
			err = fmt.Errorf("failed to encode post: %w", mErr)
			return err
		}
		var published *int64
		if p.HasDate() {
			ts := p.PublishedAt.Unix()
			published = &ts
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO posts(position, post_key, activity_id, published_at, data) VALUES(?,?,?,?,?)`,
			i, string(merge.IdentityOf(p)), p.ActivityID, published, string(data),
		); err != nil {
			return fmt.Errorf("failed to insert post: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit posts: %w", err)
	}
	return nil
}

// Version returns the number of completed or attempted updates.
func (s *SQLitePostStore) Version(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM store_meta WHERE id = 1`).Scan(&v)
	return v, err
}

// Close closes the database.
func (s *SQLitePostStore) Close() error {
	return s.db.Close()
}

func (s *SQLitePostStore) loadPosts(ctx context.Context, q queryer) ([]models.Post, error) {
	rows, err := q.QueryContext(ctx, `SELECT position, data FROM posts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	posts := []models.Post{}
	for rows.Next() {
		var pos int
		var data string
		if err := rows.Scan(&pos, &data); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		var p models.Post
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			corrupt := &CorruptStoreError{Path: fmt.Sprintf("%s#%d", s.path, pos), Err: err}
			s.logger.Warn("skipping corrupt post row", "error", corrupt)
			continue
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
