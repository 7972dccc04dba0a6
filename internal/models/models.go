// ABOUTME: Core data models for synced posts and the sync audit log.
// ABOUTME: Provides the canonical Post shape, engagement counts, and SyncLog.
package models

import (
	"encoding/json"
	"slices"
	"time"
)

const (
	// DefaultMaxPosts caps the post store when no limit is configured.
	DefaultMaxPosts = 50

	// DefaultMinContentLength is the minimum normalized content length, in runes.
	DefaultMinContentLength = 10
)

// Engagement holds reaction counts for a post. Unknown counts stay zero.
type Engagement struct {
	Likes    int `json:"likes" yaml:"likes"`
	Comments int `json:"comments" yaml:"comments"`
	Shares   int `json:"shares" yaml:"shares"`
}

// Post is the canonical persisted unit of the post store.
type Post struct {
	ActivityID  string     `json:"activityId,omitempty"` // platform-assigned id, empty when unknown
	URL         string     `json:"url"`
	Title       string     `json:"title,omitempty"`
	Content     string     `json:"content"`
	PublishedAt time.Time  `json:"publishedAt"` // zero when unknown
	Tags        []string   `json:"tags"`
	Engagement  Engagement `json:"engagement"`
	Source      string     `json:"source,omitempty"` // diagnostics only
}

// postJSON is the wire shape of Post, used to accept legacy keys on read.
type postJSON struct {
	ActivityID  string     `json:"activityId"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	PublishedAt string     `json:"publishedAt"`
	Tags        []string   `json:"tags"`
	Engagement  Engagement `json:"engagement"`
	Source      string     `json:"source"`

	// Keys written by older sync runs.
	LegacyID   string `json:"id"`
	LegacyText string `json:"text"`
	LegacyDate string `json:"date"`
}

// UnmarshalJSON decodes a Post, falling back to legacy keys when canonical ones are absent.
// A date that cannot be parsed leaves PublishedAt zero.
func (p *Post) UnmarshalJSON(data []byte) error {
	var raw postJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Post{
		ActivityID: raw.ActivityID,
		URL:        raw.URL,
		Title:      raw.Title,
		Content:    raw.Content,
		Tags:       raw.Tags,
		Engagement: raw.Engagement,
		Source:     raw.Source,
	}
	if p.ActivityID == "" {
		p.ActivityID = raw.LegacyID
	}
	if p.Content == "" {
		p.Content = raw.LegacyText
	}
	date := raw.PublishedAt
	if date == "" {
		date = raw.LegacyDate
	}
	// An unparsable date is treated as unknown so one bad record never fails a whole store.
	if t, err := ParseTime(date); date != "" && err == nil {
		p.PublishedAt = t
	}
	return nil
}

// timeLayouts lists the timestamp formats accepted from stores and upstream payloads.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp or bare date. The zero-value marker
// "0001-01-01T00:00:00Z" parses to the zero time.
func ParseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// HasDate reports whether the post carries a publish timestamp.
func (p Post) HasDate() bool {
	return !p.PublishedAt.IsZero()
}

// Clone returns a copy of the post that shares no slices with the original.
func (p Post) Clone() Post {
	p.Tags = slices.Clone(p.Tags)
	return p
}

// SyncLog is the summarized audit record of sync runs. It is never deleted.
type SyncLog struct {
	LastSync         time.Time `json:"lastSync"`
	TotalSyncs       int       `json:"totalSyncs"`
	NewPostsThisSync int       `json:"newPostsThisSync"`
	LastProcessedID  string    `json:"lastProcessedId,omitempty"`
	LastRunID        string    `json:"lastRunId,omitempty"`
	LastError        string    `json:"lastError,omitempty"`
}
