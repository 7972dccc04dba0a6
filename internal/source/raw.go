// ABOUTME: Maps the many upstream JSON shapes of a LinkedIn post into models.Post.
// ABOUTME: This is the only place that knows about upstream field names.
package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/2389-research/postsync/internal/models"
)

var (
	activityURNPattern  = regexp.MustCompile(`urn:li:activity:(\d+)`)
	activitySlugPattern = regexp.MustCompile(`activity-(\d+)`)
	otherURNPattern     = regexp.MustCompile(`urn:li:(share|ugcPost):(\d+)`)
	digitsPattern       = regexp.MustCompile(`^\d+$`)
)

// Field lookup orders, first match wins. Dotted keys descend into nested objects.
var (
	contentKeys = []string{"content", "commentary", "text", "content.text", "postText", "description", "commentary.text"}
	idKeys      = []string{"activityId", "activity_id", "activityUrn", "urn", "id", "postUrl", "post_url", "url", "shareUrl"}
	urlKeys     = []string{"url", "postUrl", "post_url", "shareUrl", "permalink"}
	dateKeys    = []string{"publishedAt", "posted_at", "postedAt", "postedDate", "postedDateTimestamp", "createdAt", "created.time", "time", "date"}
	likeKeys    = []string{"engagement.likes", "likes", "totalReactionCount", "numLikes", "likeCount", "likesCount", "stats.total_reactions"}
	commentKeys = []string{"engagement.comments", "commentsCount", "comments", "numComments", "commentCount", "stats.comments"}
	shareKeys   = []string{"engagement.shares", "repostsCount", "shares", "numShares", "shareCount", "reposts", "stats.reposts"}
	titleKeys   = []string{"title"}
	tagKeys     = []string{"tags", "hashtags"}
)

// FromRaw normalizes one upstream record. It never fabricates an activity id: records
// without one keep an empty id and are identified by URL or content downstream.
func FromRaw(raw map[string]any, source string) models.Post {
	p := models.Post{Source: source}

	p.Content = firstString(raw, contentKeys)
	p.Title = firstString(raw, titleKeys)

	for _, k := range idKeys {
		if v, ok := lookup(raw, k); ok {
			if id := ActivityIDFrom(v); id != "" {
				p.ActivityID = id
				break
			}
		}
	}

	for _, k := range urlKeys {
		s := asString(mustLookup(raw, k))
		if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
			p.URL = s
			break
		}
	}
	if p.URL == "" {
		p.URL = permalinkFor(raw, p.ActivityID)
	}

	for _, k := range dateKeys {
		if v, ok := lookup(raw, k); ok {
			if t, ok := asTime(v); ok {
				p.PublishedAt = t
				break
			}
		}
	}

	p.Engagement = models.Engagement{
		Likes:    firstInt(raw, likeKeys),
		Comments: firstInt(raw, commentKeys),
		Shares:   firstInt(raw, shareKeys),
	}

	for _, k := range tagKeys {
		if v, ok := lookup(raw, k); ok {
			if tags := asStrings(v); len(tags) > 0 {
				p.Tags = tags
				break
			}
		}
	}
	return p
}

// ActivityIDFrom extracts a numeric activity id from a URN, a URL, or a bare id.
func ActivityIDFrom(v any) string {
	s := asString(v)
	if s == "" {
		return ""
	}
	if m := activityURNPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := activitySlugPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if digitsPattern.MatchString(s) {
		return s
	}
	return ""
}

// permalinkFor builds a feed permalink from an activity id or a share/ugcPost URN.
func permalinkFor(raw map[string]any, activityID string) string {
	if activityID != "" {
		return "https://www.linkedin.com/feed/update/urn:li:activity:" + activityID + "/"
	}
	for _, k := range []string{"id", "urn", "shareUrn"} {
		if m := otherURNPattern.FindStringSubmatch(asString(mustLookup(raw, k))); m != nil {
			return fmt.Sprintf("https://www.linkedin.com/feed/update/urn:li:%s:%s/", m[1], m[2])
		}
	}
	return ""
}

func lookup(raw map[string]any, key string) (any, bool) {
	var cur any = raw
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func mustLookup(raw map[string]any, key string) any {
	v, _ := lookup(raw, key)
	return v
}

func firstString(raw map[string]any, keys []string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(asString(mustLookup(raw, k))); s != "" {
			return s
		}
	}
	return ""
}

func firstInt(raw map[string]any, keys []string) int {
	for _, k := range keys {
		if v, ok := lookup(raw, k); ok {
			if n, ok := asInt(v); ok {
				return n
			}
		}
	}
	return 0
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		if x == math.Trunc(x) {
			return strconv.FormatFloat(x, 'f', 0, 64)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return ""
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), true
	case int:
		return x, true
	case int64:
		return int(x), true
	case json.Number:
		n, err := x.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(x), ",", ""))
		return n, err == nil
	case []any:
		return len(x), true
	}
	return 0, false
}

// asTime accepts ISO-8601 strings, epoch numbers (milliseconds or seconds), and objects
// carrying a "timestamp" or "date" field.
func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		if digitsPattern.MatchString(s) {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return time.Time{}, false
			}
			return epoch(n), true
		}
		t, err := models.ParseTime(s)
		return t, err == nil && !t.IsZero()
	case float64:
		return epoch(int64(x)), x > 0
	case int64:
		return epoch(x), x > 0
	case int:
		return epoch(int64(x)), x > 0
	case json.Number:
		n, err := x.Int64()
		return epoch(n), err == nil && n > 0
	case map[string]any:
		for _, k := range []string{"timestamp", "date", "time"} {
			if inner, ok := x[k]; ok {
				if t, ok := asTime(inner); ok {
					return t, true
				}
			}
		}
	}
	return time.Time{}, false
}

// epoch treats values past 1e11 as milliseconds.
func epoch(n int64) time.Time {
	if n > 1e11 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func asStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s := asString(item)
			if m, ok := item.(map[string]any); ok {
				s = firstString(m, []string{"name", "tag", "text"})
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// decodeRecords accepts a bare array, or an object holding the array under a known key.
func decodeRecords(data []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var anyDoc any
	if err := dec.Decode(&anyDoc); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return recordsFrom(anyDoc)
}

func recordsFrom(doc any) ([]map[string]any, error) {
	switch x := doc.(type) {
	case []any:
		out := make([]map[string]any, 0, len(x))
		for _, item := range x {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out, nil
	case map[string]any:
		for _, k := range []string{"posts", "data", "elements", "items", "results"} {
			if inner, ok := x[k]; ok {
				if nested, ok := inner.(map[string]any); ok {
					return recordsFrom(nested)
				}
				if _, ok := inner.([]any); ok {
					return recordsFrom(inner)
				}
			}
		}
		return nil, fmt.Errorf("payload has no post array")
	}
	return nil, fmt.Errorf("unexpected payload type %T", doc)
}
