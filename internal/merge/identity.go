// ABOUTME: Derives the deduplication key of a post from its id, URL, or content.
// ABOUTME: Also classifies generic profile URLs that cannot identify a single post.
package merge

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/2389-research/postsync/internal/models"
)

// fingerprintLength is the number of characters of normalized content kept in a fingerprint.
const fingerprintLength = 100

// Key identifies a post for deduplication. Keys carry a kind prefix: "id:", "url:" or "fp:".
type Key string

// IdentityOf returns the dedup key of a post. Priority: activity id, then a specific
// permalink, then a normalized-content fingerprint.
func IdentityOf(post models.Post) Key {
	if id := strings.TrimSpace(post.ActivityID); id != "" {
		return Key("id:" + id)
	}
	if u, ok := CanonicalURL(post.URL); ok {
		return Key("url:" + u)
	}
	return Key("fp:" + Fingerprint(post.Content))
}

// Fingerprint lowercases and trims content, collapses every run of non-alphanumeric
// characters into a single space, and keeps the first 100 characters.
func Fingerprint(content string) string {
	var b strings.Builder
	pendingSpace := false
	n := 0
	for _, r := range strings.ToLower(strings.TrimSpace(content)) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			if n+1 >= fingerprintLength {
				break
			}
			b.WriteRune(' ')
			n++
			pendingSpace = false
		}
		b.WriteRune(r)
		n++
		if n >= fingerprintLength {
			break
		}
	}
	return b.String()
}

// CanonicalURL normalizes a specific post permalink. It returns false for empty,
// unparsable, or generic (profile-level) URLs.
func CanonicalURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	path := strings.TrimRight(u.Path, "/")
	if isGenericPath(path) {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	return host + path, true
}

// IsGenericURL reports whether a URL cannot identify a single post.
func IsGenericURL(raw string) bool {
	_, ok := CanonicalURL(raw)
	return !ok
}

// isGenericPath matches empty paths and profile pages such as /in/jane,
// /in/jane/recent-activity/all and /in/jane/detail/recent-activity/shares.
func isGenericPath(path string) bool {
	segments := strings.FieldsFunc(strings.ToLower(path), func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return true
	}
	if segments[0] != "in" && segments[0] != "company" {
		return false
	}
	if len(segments) <= 2 {
		return true
	}
	switch segments[2] {
	case "recent-activity", "detail":
		return true
	}
	return false
}
