// ABOUTME: Tests for post decoding and timestamp parsing.
// ABOUTME: Covers legacy JSON keys, zero dates, and Clone isolation.
package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2024-03-01T10:20:30Z", time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)},
		{"2024-03-01T10:20:30.500Z", time.Date(2024, 3, 1, 10, 20, 30, 500000000, time.UTC)},
		{"2024-03-01T10:20:30", time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)},
		{"2024-03-01 10:20:30", time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"0001-01-01T00:00:00Z", time.Time{}},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.input)
		if err != nil {
			t.Fatalf("ParseTime(%q) error: %v", tt.input, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTime(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if _, err := ParseTime("2w"); err == nil {
		t.Error("expected relative date to fail")
	}
}

func TestUnmarshalCanonical(t *testing.T) {
	data := `{"activityId":"7","url":"https://example.com/7","content":"hello world","publishedAt":"2024-01-02T00:00:00Z","tags":["go"],"engagement":{"likes":3,"comments":1,"shares":0}}`

	var p Post
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if p.ActivityID != "7" || p.Content != "hello world" || p.Engagement.Likes != 3 {
		t.Errorf("unexpected post: %+v", p)
	}
	if !p.HasDate() || p.PublishedAt.Day() != 2 {
		t.Errorf("unexpected date: %v", p.PublishedAt)
	}
}

func TestUnmarshalLegacyKeys(t *testing.T) {
	data := `{"id":"42","url":"","text":"legacy content here","date":"2023-12-31"}`

	var p Post
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if p.ActivityID != "42" || p.Content != "legacy content here" {
		t.Errorf("legacy keys not applied: %+v", p)
	}
	if p.PublishedAt.Year() != 2023 {
		t.Errorf("legacy date not applied: %v", p.PublishedAt)
	}
}

func TestUnmarshalCanonicalWinsOverLegacy(t *testing.T) {
	data := `{"activityId":"1","id":"2","content":"new","text":"old"}`

	var p Post
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if p.ActivityID != "1" || p.Content != "new" {
		t.Errorf("canonical keys should win: %+v", p)
	}
	if p.HasDate() {
		t.Error("missing date should stay unknown")
	}
}

func TestUnmarshalBadDateIsUnknown(t *testing.T) {
	var p Post
	if err := json.Unmarshal([]byte(`{"id":"7","text":"still a good post","date":"Jan 3, 2024"}`), &p); err != nil {
		t.Fatalf("a bad date must not fail the record: %v", err)
	}
	if p.HasDate() {
		t.Errorf("expected zero date, got %v", p.PublishedAt)
	}
	if p.ActivityID != "7" || p.Content != "still a good post" {
		t.Errorf("other fields were lost: %+v", p)
	}
}

func TestZeroDateRoundTrip(t *testing.T) {
	data, err := json.Marshal(Post{Content: "no date"})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var p Post
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if p.HasDate() {
		t.Errorf("zero date should stay zero, got %v", p.PublishedAt)
	}
}

func TestCloneIsolatesTags(t *testing.T) {
	orig := Post{Tags: []string{"a", "b"}}
	c := orig.Clone()
	c.Tags[0] = "changed"
	if orig.Tags[0] != "a" {
		t.Error("Clone shares tags with the original")
	}
}
