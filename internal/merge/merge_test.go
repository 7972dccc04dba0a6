// ABOUTME: Tests for the pure merge of candidates into the post store.
// ABOUTME: Covers idempotence, dedup, cap, ordering, enrichment, and the content floor.
package merge

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/2389-research/postsync/internal/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func post(id, date, content string) models.Post {
	p := models.Post{ActivityID: id, Content: content, Tags: []string{}}
	if date != "" {
		p.PublishedAt = day(date)
	}
	return p
}

// randomPosts builds posts that deliberately collide on ids, URLs and content.
func randomPosts(r *rand.Rand, n int) []models.Post {
	posts := make([]models.Post, 0, n)
	for i := 0; i < n; i++ {
		p := models.Post{
			Content:     fmt.Sprintf("post body number %d with enough text", r.Intn(8)),
			PublishedAt: day("2024-01-01").Add(time.Duration(r.Intn(30)) * 24 * time.Hour),
			Tags:        []string{},
		}
		switch r.Intn(3) {
		case 0:
			p.ActivityID = fmt.Sprintf("7%d", r.Intn(6))
		case 1:
			p.URL = fmt.Sprintf("https://www.linkedin.com/posts/jane_%d", r.Intn(6))
		}
		if r.Intn(5) == 0 {
			p.Content = "tiny"
		}
		posts = append(posts, p)
	}
	return posts
}

func TestMergeEmptyCandidatesIsIdentity(t *testing.T) {
	existing := []models.Post{
		post("3", "2024-01-03", "third post content here"),
		post("2", "2024-01-02", "second post content here"),
		post("1", "2024-01-01", "first post content here"),
	}

	got := Merge(existing, nil, 10)
	if !reflect.DeepEqual(got, existing) {
		t.Errorf("Merge(S, nil) = %v, want %v", got, existing)
	}

	got = Merge(existing, []models.Post{}, 2)
	if !reflect.DeepEqual(got, existing[:2]) {
		t.Errorf("Merge(S, []) with cap 2 = %v, want %v", got, existing[:2])
	}
}

func TestMergeDoesNotModifyInputs(t *testing.T) {
	existing := []models.Post{{ActivityID: "A", Content: "existing content", PublishedAt: day("2024-01-01"), Tags: []string{"x"}}}
	candidates := []models.Post{{ActivityID: "A", URL: "https://www.linkedin.com/posts/jane_a", Content: "  existing content  "}}

	Merge(existing, candidates, 10)

	if existing[0].URL != "" {
		t.Errorf("existing post was mutated: %+v", existing[0])
	}
	if candidates[0].Content != "  existing content  " {
		t.Errorf("candidate was mutated: %+v", candidates[0])
	}
}

func TestMergeNoDuplicates(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		existing := Merge(nil, randomPosts(r, r.Intn(12)), 10)
		candidates := randomPosts(r, r.Intn(12))

		got := Merge(existing, candidates, 10)

		seen := make(map[Key]bool)
		for _, p := range got {
			k := IdentityOf(p)
			if seen[k] {
				t.Fatalf("iteration %d: duplicate key %s in %v", i, k, got)
			}
			seen[k] = true
		}
	}
}

func TestMergeCapRespected(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		limit := 1 + r.Intn(6)
		existing := randomPosts(r, r.Intn(10))
		candidates := randomPosts(r, r.Intn(10))

		got := Merge(existing, candidates, limit)
		if len(got) > limit {
			t.Fatalf("iteration %d: len = %d, cap = %d", i, len(got), limit)
		}
	}
}

func TestMergeIdempotentOnRepeat(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	for i := 0; i < 100; i++ {
		existing := Merge(nil, randomPosts(r, 6), 20)
		candidates := randomPosts(r, 6)

		once := Merge(existing, candidates, 20)
		twice := Merge(once, candidates, 20)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("iteration %d: merging the same candidates twice changed the store\nonce:  %v\ntwice: %v", i, once, twice)
		}
		if again := Merge(once, nil, 20); !reflect.DeepEqual(again, once) {
			t.Fatalf("iteration %d: Merge(S, nil) != S", i)
		}
	}
}

func TestMergeNewFirstOrdering(t *testing.T) {
	existing := []models.Post{
		post("2", "2024-01-02", "older post number two"),
		post("1", "2024-01-01", "older post number one"),
	}
	candidates := []models.Post{
		post("5", "2024-02-03", "brand new post number five"),
		post("4", "2024-02-02", "brand new post number four"),
		post("3", "2024-02-01", "brand new post number three"),
	}

	got := Merge(existing, candidates, 10)
	if len(got) != 5 {
		t.Fatalf("expected 5 posts, got %d", len(got))
	}
	for i, c := range candidates {
		if got[i].ActivityID != c.ActivityID {
			t.Errorf("position %d: got %s, want %s", i, got[i].ActivityID, c.ActivityID)
		}
	}
}

func TestMergeStableTieBreak(t *testing.T) {
	existing := []models.Post{post("old", "2024-01-01", "existing post with same date")}
	candidates := []models.Post{
		post("new1", "2024-01-01", "candidate one with the same date"),
		post("new2", "2024-01-01", "candidate two with the same date"),
	}

	got := Merge(existing, candidates, 10)
	want := []string{"new1", "new2", "old"}
	for i, id := range want {
		if got[i].ActivityID != id {
			t.Fatalf("order = %v, want %v", ids(got), want)
		}
	}
}

func TestMergeMissingDatesSortLast(t *testing.T) {
	existing := []models.Post{post("dated", "2024-01-01", "existing post with a date")}
	candidates := []models.Post{post("undated", "", "candidate post without a date")}

	got := Merge(existing, candidates, 10)
	if ids(got)[0] != "dated" || ids(got)[1] != "undated" {
		t.Errorf("order = %v, want [dated undated]", ids(got))
	}

	got = Merge(existing, candidates, 1)
	if len(got) != 1 || got[0].ActivityID != "dated" {
		t.Errorf("undated post should be evicted first, got %v", ids(got))
	}
}

func TestMergeContentFloor(t *testing.T) {
	candidates := []models.Post{
		{URL: "https://www.linkedin.com/posts/jane_short", Content: "short", PublishedAt: day("2024-03-01")},
		{Content: "   padded   ", PublishedAt: day("2024-03-01")},
	}

	report := MergeWithReport(nil, candidates, Options{MaxSize: 10, MinContentLength: 10})
	if len(report.Posts) != 0 {
		t.Errorf("expected short candidates to be rejected, got %v", report.Posts)
	}
	if report.Rejected != 2 {
		t.Errorf("Rejected = %d, want 2", report.Rejected)
	}
}

func TestMergeEnrichmentScenario(t *testing.T) {
	existing := []models.Post{post("A", "2024-01-01", "the original post A")}
	candidates := []models.Post{
		{ActivityID: "A", PublishedAt: day("2024-01-01"), URL: "https://x/A"},
		{ActivityID: "B", PublishedAt: day("2024-01-02"), Content: "valid content here"},
	}

	report := MergeWithReport(existing, candidates, Options{MaxSize: 10})
	got := report.Posts

	if len(got) != 2 {
		t.Fatalf("expected 2 posts, got %d: %v", len(got), got)
	}
	if got[0].ActivityID != "B" || got[1].ActivityID != "A" {
		t.Fatalf("order = %v, want [B A]", ids(got))
	}
	if got[1].URL != "https://x/A" {
		t.Errorf("A.URL = %q, want https://x/A", got[1].URL)
	}
	if got[1].Content != "the original post A" {
		t.Errorf("enrichment must not replace content, got %q", got[1].Content)
	}
	if report.Enriched != 1 {
		t.Errorf("Enriched = %d, want 1", report.Enriched)
	}
	if len(report.Added) != 1 || report.Added[0].ActivityID != "B" {
		t.Errorf("Added = %v, want [B]", ids(report.Added))
	}
}

func TestMergeEnrichmentFillsMissingActivityID(t *testing.T) {
	existing := []models.Post{
		{URL: "https://www.linkedin.com/in/jane", Content: "Shipping the new release today #golang", PublishedAt: day("2024-01-05"), Tags: []string{"golang"}},
		post("X", "2024-01-01", "an unrelated older post"),
	}
	candidate := models.Post{
		ActivityID: "7123",
		URL:        "https://www.linkedin.com/feed/update/urn:li:activity:7123/",
		Content:    "Shipping the new release today #golang",
		// later extraction time must not move the stored post
		PublishedAt: day("2024-02-01"),
	}

	once := Merge(existing, []models.Post{candidate}, 10)
	twice := Merge(once, []models.Post{candidate}, 10)

	if len(once) != 2 {
		t.Fatalf("expected 2 posts, got %v", once)
	}
	if once[0].ActivityID != "7123" || once[0].URL != candidate.URL {
		t.Errorf("expected enrichment of first post, got %+v", once[0])
	}
	if !once[0].PublishedAt.Equal(day("2024-01-05")) {
		t.Errorf("enrichment moved the post date to %v", once[0].PublishedAt)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("enrichment is not idempotent:\nonce:  %v\ntwice: %v", once, twice)
	}
}

func TestMergeDifferentActivityIDsNeverMatch(t *testing.T) {
	existing := []models.Post{post("A", "2024-01-01", "identical content in both posts")}
	candidates := []models.Post{post("B", "2024-01-02", "identical content in both posts")}

	got := Merge(existing, candidates, 10)
	if len(got) != 2 {
		t.Errorf("expected posts with different activity ids to both be kept, got %v", ids(got))
	}
}

func TestMergeDuplicateWithinCandidates(t *testing.T) {
	candidates := []models.Post{
		{Content: "Same post seen by two scrapers!", PublishedAt: day("2024-01-02")},
		{Content: "same post seen by two scrapers", PublishedAt: day("2024-01-02"), ActivityID: "9"},
	}

	report := MergeWithReport(nil, candidates, Options{MaxSize: 10})
	if len(report.Posts) != 1 {
		t.Fatalf("expected 1 post, got %v", report.Posts)
	}
	if report.Posts[0].ActivityID != "9" {
		t.Errorf("expected second sighting to enrich the first, got %+v", report.Posts[0])
	}
}

func TestMergeEvictsOldestAtCap(t *testing.T) {
	existing := make([]models.Post, 0, 10)
	for i := 10; i >= 1; i-- {
		existing = append(existing, post(fmt.Sprintf("p%d", i), fmt.Sprintf("2024-01-%02d", i), fmt.Sprintf("existing post number %d", i)))
	}
	candidates := []models.Post{post("new", "2024-02-01", "a brand new valid post")}

	report := MergeWithReport(existing, candidates, Options{MaxSize: 10})
	got := report.Posts
	if len(got) != 10 {
		t.Fatalf("expected 10 posts, got %d", len(got))
	}
	if got[0].ActivityID != "new" {
		t.Errorf("expected new post first, got %s", got[0].ActivityID)
	}
	for _, p := range got {
		if p.ActivityID == "p1" {
			t.Error("expected oldest post p1 to be evicted")
		}
	}
	if report.Evicted != 1 {
		t.Errorf("Evicted = %d, want 1", report.Evicted)
	}
}

func TestMergeEmptyExisting(t *testing.T) {
	candidates := []models.Post{
		{ActivityID: "1", Content: "  first candidate body  ", PublishedAt: day("2024-01-02")},
		{ActivityID: "2", Content: "second candidate #Go #go", PublishedAt: day("2024-01-01")},
		{ActivityID: "3", Content: "third candidate body", PublishedAt: day("2023-12-31")},
	}

	got := Merge(nil, candidates, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(got))
	}
	if got[0].Content != "first candidate body" {
		t.Errorf("expected trimmed content, got %q", got[0].Content)
	}
	if !reflect.DeepEqual(got[1].Tags, []string{"go"}) {
		t.Errorf("expected derived tags [go], got %v", got[1].Tags)
	}
}

func TestMergeAddedExcludesEvictedCandidates(t *testing.T) {
	existing := []models.Post{post("recent", "2024-05-01", "a recent existing post")}
	candidates := []models.Post{post("ancient", "2020-01-01", "an ancient candidate post")}

	report := MergeWithReport(existing, candidates, Options{MaxSize: 1})
	if len(report.Added) != 0 {
		t.Errorf("evicted candidate should not be reported as added, got %v", ids(report.Added))
	}
}

func TestMergeKeepsDistinctPermalinksWithSameText(t *testing.T) {
	existing := []models.Post{
		{URL: "https://www.linkedin.com/feed/update/urn:li:share:2/", Content: "Happy new year everyone!", PublishedAt: day("2024-01-02"), Tags: []string{}},
		{URL: "https://www.linkedin.com/feed/update/urn:li:share:1/", Content: "Happy new year everyone!", PublishedAt: day("2023-01-01"), Tags: []string{}},
	}

	if got := Merge(existing, nil, 10); !reflect.DeepEqual(got, existing) {
		t.Fatalf("Merge(S, nil) = %v, want %v", got, existing)
	}

	third := models.Post{URL: "https://www.linkedin.com/feed/update/urn:li:share:3/", Content: "Happy new year everyone!", PublishedAt: day("2025-01-01")}
	report := MergeWithReport(existing, []models.Post{third}, Options{MaxSize: 10})
	if len(report.Posts) != 3 {
		t.Fatalf("expected 3 posts, got %d: %v", len(report.Posts), report.Posts)
	}
	if len(report.Added) != 1 || report.Added[0].URL != third.URL {
		t.Errorf("Added = %v, want the share:3 post", report.Added)
	}
	if report.Duplicates != 0 || report.Enriched != 0 {
		t.Errorf("distinct permalink was treated as a known post: %+v", report)
	}
}

func TestMergeKeepsPermalinkOfIdentifiedPost(t *testing.T) {
	existing := []models.Post{{
		ActivityID:  "A",
		URL:         "https://www.linkedin.com/feed/update/urn:li:activity:1/",
		Content:     "an identified post with a permalink",
		PublishedAt: day("2024-01-01"),
		Tags:        []string{},
	}}
	candidate := existing[0]
	candidate.URL = "https://www.linkedin.com/posts/jane_other-slug"

	report := MergeWithReport(existing, []models.Post{candidate}, Options{MaxSize: 10})
	if report.Posts[0].URL != existing[0].URL {
		t.Errorf("URL of a post with an activity id was replaced: %q", report.Posts[0].URL)
	}
	if report.Duplicates != 1 || report.Enriched != 0 {
		t.Errorf("expected a plain duplicate, got %+v", report)
	}
}

func TestMergeReplacesGenericURLOfUnidentifiedPost(t *testing.T) {
	existing := []models.Post{{
		URL:         "https://www.linkedin.com/in/jane/recent-activity/all/",
		Content:     "a post scraped from the activity page",
		PublishedAt: day("2024-01-01"),
		Tags:        []string{},
	}}
	candidate := models.Post{URL: "https://www.linkedin.com/posts/jane_scraped", Content: "A post scraped from the activity page."}

	report := MergeWithReport(existing, []models.Post{candidate}, Options{MaxSize: 10})
	if len(report.Posts) != 1 || report.Posts[0].URL != candidate.URL {
		t.Fatalf("expected the permalink to be adopted, got %v", report.Posts)
	}
	if report.Enriched != 1 {
		t.Errorf("Enriched = %d, want 1", report.Enriched)
	}
}

func ids(posts []models.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ActivityID
	}
	return out
}
