// ABOUTME: Tests for markdown article materialization.
// ABOUTME: Covers naming, frontmatter, skip-if-present, collisions, and no rewrites.
package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/postsync/internal/models"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"Hello, World!", 50, "hello-world"},
		{"  Shipping v2.0 -- today  ", 50, "shipping-v20-today"},
		{"Ünïcödé only ✨", 50, "ncd-only"},
		{"!!!", 50, "post"},
		{"one two three four", 9, "one-two-t"},
		{"trailing hyphen cut", 9, "trailing"},
	}
	for _, tt := range tests {
		if got := Slug(tt.in, tt.max); got != tt.want {
			t.Errorf("Slug(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestTitleFromContent(t *testing.T) {
	p := models.Post{Content: "First line here\nsecond line"}
	if got := Title(p); got != "First line here" {
		t.Errorf("Title = %q", got)
	}
	p = models.Post{Title: "Explicit", Content: "body"}
	if got := Title(p); got != "Explicit" {
		t.Errorf("Title = %q", got)
	}
	long := strings.Repeat("word ", 40)
	if got := Title(models.Post{Content: long}); !strings.HasSuffix(got, "...") || len([]rune(got)) > 83 {
		t.Errorf("expected truncated title, got %q", got)
	}
}

func TestArticleFilename(t *testing.T) {
	w := NewArticleWriter(t.TempDir(), ArticleOptions{Source: "linkedin"})
	p := models.Post{Content: "Launching our new product today", PublishedAt: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)}
	if got := w.Filename(p); got != "2024-03-05-linkedin-launching-our-new-product-today.md" {
		t.Errorf("Filename = %q", got)
	}
}

func TestArticleWriteRendersFrontmatter(t *testing.T) {
	dir := t.TempDir()
	w := NewArticleWriter(dir, ArticleOptions{})
	p := models.Post{
		ActivityID:  "123",
		URL:         "https://www.linkedin.com/feed/update/urn:li:activity:123",
		Content:     "Launching our new product today #launch",
		PublishedAt: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		Tags:        []string{"launch"},
		Engagement:  models.Engagement{Likes: 4, Comments: 2, Shares: 1},
	}

	path, created, err := w.Write(p)
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if !created {
		t.Error("expected a new file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	yamlStr, body := parseFrontmatter(string(data))
	var fm articleFrontmatter
	if err := yaml.Unmarshal([]byte(yamlStr), &fm); err != nil {
		t.Fatalf("frontmatter unmarshal error: %v", err)
	}
	if fm.Layout != "post" || fm.PostKey != "id:123" || fm.Likes != 4 || fm.Shares != 1 || fm.Date != "2024-03-05T10:00:00Z" {
		t.Errorf("unexpected frontmatter: %+v", fm)
	}
	if fm.OriginalURL != p.URL || len(fm.Tags) != 1 {
		t.Errorf("unexpected frontmatter url/tags: %+v", fm)
	}
	if !strings.Contains(body, p.Content) || !strings.Contains(body, "("+p.URL+")") {
		t.Errorf("body missing content or link: %q", body)
	}
}

func TestArticleWriteSkipsMaterializedPost(t *testing.T) {
	dir := t.TempDir()
	w := NewArticleWriter(dir, ArticleOptions{})
	p := models.Post{Content: "A post without an id yet", PublishedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}

	first, created, err := w.Write(p)
	if err != nil || !created {
		t.Fatalf("first Write: created=%v err=%v", created, err)
	}
	before, _ := os.ReadFile(first)

	// The same post, later enriched with an id, must not produce a second article.
	p.ActivityID = "555"
	p.Engagement.Likes = 99
	second, created, err := w.Write(p)
	if err != nil {
		t.Fatalf("second Write error: %v", err)
	}
	if created || second != first {
		t.Errorf("expected existing article %s, got %s created=%v", first, second, created)
	}
	after, _ := os.ReadFile(first)
	if string(before) != string(after) {
		t.Error("existing article was rewritten")
	}
}

func TestArticleCollisionGetsTimestampSuffix(t *testing.T) {
	dir := t.TempDir()
	w := NewArticleWriter(dir, ArticleOptions{})
	w.now = func() time.Time { return time.Unix(1700000000, 0) }
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	a := models.Post{ActivityID: "1", Title: "Same title", Content: "first distinct body text", PublishedAt: day}
	b := models.Post{ActivityID: "2", Title: "Same title", Content: "second distinct body text", PublishedAt: day}

	pa, _, err := w.Write(a)
	if err != nil {
		t.Fatalf("Write a: %v", err)
	}
	pb, created, err := w.Write(b)
	if err != nil || !created {
		t.Fatalf("Write b: created=%v err=%v", created, err)
	}
	if filepath.Base(pa) != "2024-01-02-linkedin-same-title.md" {
		t.Errorf("unexpected first name %s", filepath.Base(pa))
	}
	if filepath.Base(pb) != "2024-01-02-linkedin-same-title-1700000000.md" {
		t.Errorf("unexpected collision name %s", filepath.Base(pb))
	}
}

func TestArticleDifferentIDsSameContentAreDistinct(t *testing.T) {
	dir := t.TempDir()
	w := NewArticleWriter(dir, ArticleOptions{})
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	paths, created, err := w.WriteAll([]models.Post{
		{ActivityID: "1", Content: "identical repost body", PublishedAt: day},
		{ActivityID: "2", Content: "identical repost body", PublishedAt: day},
	})
	if err != nil {
		t.Fatalf("WriteAll error: %v", err)
	}
	if !created[0] || !created[1] || paths[0] == paths[1] {
		t.Errorf("expected two articles, got %v %v", paths, created)
	}
}

func TestArticleDifferentPermalinksSameContentAreDistinct(t *testing.T) {
	dir := t.TempDir()
	w := NewArticleWriter(dir, ArticleOptions{})
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	posts := []models.Post{
		{URL: "https://www.linkedin.com/feed/update/urn:li:share:1/", Content: "Happy new year everyone!", PublishedAt: day},
		{URL: "https://www.linkedin.com/feed/update/urn:li:share:2/", Content: "Happy new year everyone!", PublishedAt: day.AddDate(1, 0, 0)},
	}

	paths, created, err := w.WriteAll(posts)
	if err != nil {
		t.Fatalf("WriteAll error: %v", err)
	}
	if !created[0] || !created[1] || paths[0] == paths[1] {
		t.Errorf("expected two articles, got %v %v", paths, created)
	}

	// A fresh writer rescans the directory and must still tell them apart.
	_, created, err = NewArticleWriter(dir, ArticleOptions{}).WriteAll(posts)
	if err != nil {
		t.Fatalf("second WriteAll error: %v", err)
	}
	if created[0] || created[1] {
		t.Errorf("articles rewritten on rescan: %v", created)
	}
}
