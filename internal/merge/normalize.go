// ABOUTME: Candidate normalization applied before posts enter the store.
// ABOUTME: Trims content, enforces the content floor, and derives hashtag tags.
package merge

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/2389-research/postsync/internal/models"
)

// ErrContentTooShort marks a candidate whose normalized content is below the minimum length.
var ErrContentTooShort = errors.New("content too short")

// ValidationError reports why a candidate was rejected.
type ValidationError struct {
	Key Key
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("candidate %s rejected: %v", e.Key, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

var (
	hashtagPattern  = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_&/#])#([\p{L}\p{N}_]{2,50})`)
	blankRunPattern = regexp.MustCompile(`\n{3,}`)
)

// Normalize trims a candidate and fills derived fields. It returns a *ValidationError
// when the trimmed content has fewer than minLength runes.
func Normalize(post models.Post, minLength int) (models.Post, error) {
	if minLength <= 0 {
		minLength = models.DefaultMinContentLength
	}
	post = post.Clone()
	post.ActivityID = strings.TrimSpace(post.ActivityID)
	post.URL = strings.TrimSpace(post.URL)
	post.Title = strings.TrimSpace(post.Title)
	post.Content = normalizeContent(post.Content)

	if utf8.RuneCountInString(post.Content) < minLength {
		return post, &ValidationError{Key: IdentityOf(post), Err: ErrContentTooShort}
	}

	if len(post.Tags) == 0 {
		post.Tags = ExtractTags(post.Content)
	} else {
		post.Tags = DedupeTags(post.Tags)
	}
	return post, nil
}

// normalizeContent trims surrounding whitespace, normalizes line endings,
// and squeezes runs of blank lines.
func normalizeContent(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = blankRunPattern.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

// ExtractTags returns the distinct lowercase hashtags in content, in order of appearance.
func ExtractTags(content string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(content, -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, m[1])
	}
	return DedupeTags(tags)
}

// DedupeTags lowercases tags, strips a leading '#', and drops blanks and duplicates.
func DedupeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
