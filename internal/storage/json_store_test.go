// ABOUTME: Tests for the JSON-file post store.
// ABOUTME: Covers legacy shapes, corrupt recovery, atomic saves, and concurrent updates.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/2389-research/postsync/internal/merge"
	"github.com/2389-research/postsync/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestJSONStore(t *testing.T) *JSONPostStore {
	t.Helper()
	store, err := NewJSONPostStore(filepath.Join(t.TempDir(), "posts.json"), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewJSONPostStore error: %v", err)
	}
	return store
}

func TestJSONLoadMissingFileIsEmpty(t *testing.T) {
	store := newTestJSONStore(t)
	posts, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if posts == nil || len(posts) != 0 {
		t.Errorf("expected empty non-nil list, got %v", posts)
	}
}

func TestJSONSaveLoadRoundtrip(t *testing.T) {
	store := newTestJSONStore(t)
	ctx := context.Background()

	want := samplePosts()
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d posts, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ActivityID != want[i].ActivityID || !got[i].PublishedAt.Equal(want[i].PublishedAt) {
			t.Errorf("post %d mismatch: got %+v, want %+v", i, got[i], want[i])
		}
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	var doc struct {
		Posts       []json.RawMessage `json:"posts"`
		Count       int               `json:"count"`
		LastUpdated string            `json:"lastUpdated"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("stored file is not the object form: %v", err)
	}
	if doc.Count != 2 || len(doc.Posts) != 2 || doc.LastUpdated == "" {
		t.Errorf("unexpected document header: count=%d posts=%d lastUpdated=%q", doc.Count, len(doc.Posts), doc.LastUpdated)
	}
}

func TestJSONLoadBareArrayWithLegacyKeys(t *testing.T) {
	store := newTestJSONStore(t)
	legacy := `[{"id":"77","url":"https://www.linkedin.com/in/someone/recent-activity/","text":"an older post body","date":"2023-05-01"}]`
	if err := os.WriteFile(store.Path(), []byte(legacy), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	posts, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	p := posts[0]
	if p.ActivityID != "77" || p.Content != "an older post body" {
		t.Errorf("legacy keys not mapped: %+v", p)
	}
	if p.PublishedAt.Format("2006-01-02") != "2023-05-01" {
		t.Errorf("legacy date not parsed: %v", p.PublishedAt)
	}
}

func TestJSONBadRecordDoesNotDropStore(t *testing.T) {
	store := newTestJSONStore(t)
	ctx := context.Background()
	legacy := `[
  {"id":"1","text":"the first legacy post","date":"2024-01-01"},
  {"id":"2","text":"the second legacy post","date":"2024-01-02"},
  {"id":"3","text":"a post with a bad date","date":"Jan 3, 2024"},
  {"id":4,"text":"a record with a numeric id"}
]`
	if err := os.WriteFile(store.Path(), []byte(legacy), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	posts, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("expected 3 readable posts, got %d: %+v", len(posts), posts)
	}
	if posts[2].ActivityID != "3" || posts[2].HasDate() {
		t.Errorf("bad date should load as an undated post, got %+v", posts[2])
	}

	err = store.Update(ctx, func(existing []models.Post) ([]models.Post, error) {
		return append([]models.Post{{ActivityID: "5", Content: "a freshly synced post", Tags: []string{}}}, existing...), nil
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	posts, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(posts) != 4 {
		t.Fatalf("Update lost posts: got %d, want 4", len(posts))
	}
	for i, id := range []string{"5", "1", "2", "3"} {
		if posts[i].ActivityID != id {
			t.Errorf("posts[%d] = %q, want %q", i, posts[i].ActivityID, id)
		}
	}
}

func TestJSONCorruptFileIsEmpty(t *testing.T) {
	for name, content := range map[string]string{
		"truncated":    `{"posts":[{"url":`,
		"not json":     `hello`,
		"no posts key": `{"items":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			store := newTestJSONStore(t)
			if err := os.WriteFile(store.Path(), []byte(content), 0644); err != nil {
				t.Fatalf("WriteFile error: %v", err)
			}
			posts, err := store.Load(context.Background())
			if err != nil {
				t.Fatalf("expected recovery, got error: %v", err)
			}
			if len(posts) != 0 {
				t.Errorf("expected empty list, got %d posts", len(posts))
			}
		})
	}
}

func TestJSONDecodeReportsCorruptStoreError(t *testing.T) {
	_, _, err := decodePosts("x.json", []byte(`[1,2`))
	var corrupt *CorruptStoreError
	if !errors.As(err, &corrupt) || corrupt.Path != "x.json" {
		t.Errorf("expected CorruptStoreError for x.json, got %v", err)
	}
}

func TestJSONSaveLeavesNoTempFiles(t *testing.T) {
	store := newTestJSONStore(t)
	if err := store.Save(context.Background(), samplePosts()); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	if err != nil {
		t.Fatalf("ReadDir error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "posts.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only posts.json, got %v", names)
	}
}

func TestJSONUpdateErrorWritesNothing(t *testing.T) {
	store := newTestJSONStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, samplePosts()); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	err := store.Update(ctx, func(existing []models.Post) ([]models.Post, error) {
		return nil, fmt.Errorf("boom")
	})
	if err == nil {
		t.Fatal("expected update error")
	}
	posts, _ := store.Load(ctx)
	if len(posts) != 2 {
		t.Errorf("expected store unchanged, got %d posts", len(posts))
	}
	if _, err := os.Stat(store.Path() + ".lock"); !os.IsNotExist(err) {
		t.Errorf("expected lock file released, stat err=%v", err)
	}
}

func TestJSONConcurrentUpdatesLoseNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "posts.json")
	ctx := context.Background()

	// Separate store values model separate processes sharing the file.
	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store, err := NewJSONPostStore(path, WithLogger(quietLogger()))
			if err != nil {
				errs <- err
				return
			}
			candidate := models.Post{
				ActivityID:  fmt.Sprintf("%d", i),
				Content:     fmt.Sprintf("post number %d from a concurrent writer", i),
				PublishedAt: time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
			}
			errs <- store.Update(ctx, func(existing []models.Post) ([]models.Post, error) {
				return merge.Merge(existing, []models.Post{candidate}, 50), nil
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Update error: %v", err)
		}
	}

	store, _ := NewJSONPostStore(path, WithLogger(quietLogger()))
	posts, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(posts) != writers {
		t.Errorf("expected %d posts, got %d", writers, len(posts))
	}
}

func TestNewJSONPostStoreRequiresPath(t *testing.T) {
	if _, err := NewJSONPostStore(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestFilterPosts(t *testing.T) {
	posts := []models.Post{
		{ActivityID: "1", Tags: []string{"go"}, Source: "rapidapi"},
		{ActivityID: "2", Tags: []string{"rust"}, Source: "linkedin"},
		{ActivityID: "3", Tags: []string{"go", "k8s"}, Source: "linkedin"},
	}

	got := FilterPosts(posts, ListPostsOptions{TagFilter: "go"})
	if len(got) != 2 || got[0].ActivityID != "1" || got[1].ActivityID != "3" {
		t.Errorf("tag filter: got %+v", got)
	}
	for _, filter := range []string{"Go", "#go", " #GO "} {
		if got := FilterPosts(posts, ListPostsOptions{TagFilter: filter}); len(got) != 2 {
			t.Errorf("tag filter %q: got %+v", filter, got)
		}
	}
	got = FilterPosts(posts, ListPostsOptions{SourceFilter: "linkedin", Limit: 1})
	if len(got) != 1 || got[0].ActivityID != "2" {
		t.Errorf("source filter with limit: got %+v", got)
	}
	got = FilterPosts(posts, ListPostsOptions{Offset: 5})
	if len(got) != 0 {
		t.Errorf("offset past end: got %+v", got)
	}
}

func TestFindPost(t *testing.T) {
	posts := samplePosts()
	if p, ok := FindPost(posts, "id:1"); !ok || p.ActivityID != "1" {
		t.Errorf("find by key failed: %+v %v", p, ok)
	}
	if p, ok := FindPost(posts, "2"); !ok || p.ActivityID != "2" {
		t.Errorf("find by activity id failed: %+v %v", p, ok)
	}
	if _, ok := FindPost(posts, "nope"); ok {
		t.Error("expected no match")
	}
}

func TestInspectJSONStoreHasNoVersion(t *testing.T) {
	store := newTestJSONStore(t)
	if err := store.Save(context.Background(), samplePosts()); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	info, err := Inspect(context.Background(), store)
	if err != nil {
		t.Fatalf("Inspect error: %v", err)
	}
	if info.Posts != 2 || info.HasVersion {
		t.Errorf("Inspect = %+v, want 2 posts without a version", info)
	}
}
