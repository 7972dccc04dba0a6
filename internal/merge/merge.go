// ABOUTME: Pure merge of freshly fetched candidates into the existing post list.
// ABOUTME: Dedupes by identity, enriches known posts, sorts newest first, and caps size.
package merge

import (
	"errors"
	"slices"

	"github.com/2389-research/postsync/internal/models"
)

// Options configures a merge. Zero values fall back to the model defaults.
type Options struct {
	MaxSize          int
	MinContentLength int
}

// Report is the outcome of a merge.
type Report struct {
	Posts      []models.Post // next store state
	Added      []models.Post // new posts that survived the cap, in store order
	Enriched   int           // known posts that gained an activity id or permalink
	Duplicates int           // candidates that matched a known post and changed nothing
	Rejected   int           // candidates dropped by validation
	Evicted    int           // posts dropped from the tail by the cap
}

// Merge returns the next store state for existing posts and fresh candidates.
// It is pure: inputs are never modified.
func Merge(existing, candidates []models.Post, maxSize int) []models.Post {
	return MergeWithReport(existing, candidates, Options{MaxSize: maxSize}).Posts
}

// MergeWithReport merges candidates into existing and reports what changed.
func MergeWithReport(existing, candidates []models.Post, opts Options) Report {
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = models.DefaultMaxPosts
	}

	var report Report
	idx := newIndex()

	// Stored posts are deduped by key only, so merge(S, nil) == S for any valid store.
	known := make([]*models.Post, 0, len(existing))
	seen := make(map[Key]bool, len(existing))
	for _, p := range existing {
		k := IdentityOf(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		p := p.Clone()
		known = append(known, &p)
		idx.add(&p)
	}

	var fresh []*models.Post
	for _, c := range candidates {
		n, err := Normalize(c, opts.MinContentLength)
		match, how := idx.lookup(n)

		if err != nil {
			// Short content may still enrich a post it identifies exactly,
			// but it never enters the store on its own.
			var verr *ValidationError
			if match != nil && how != byFingerprint && errors.As(err, &verr) {
				if enrich(match, n) {
					report.Enriched++
					idx.add(match)
				} else {
					report.Duplicates++
				}
				continue
			}
			report.Rejected++
			continue
		}

		if match != nil {
			if enrich(match, n) {
				report.Enriched++
				idx.add(match)
			} else {
				report.Duplicates++
			}
			continue
		}

		p := n
		fresh = append(fresh, &p)
		idx.add(&p)
	}

	combined := make([]models.Post, 0, len(fresh)+len(known))
	freshKeys := make(map[Key]bool, len(fresh))
	for _, p := range fresh {
		combined = append(combined, *p)
		freshKeys[IdentityOf(*p)] = true
	}
	for _, p := range known {
		combined = append(combined, *p)
	}

	if len(fresh) > 0 {
		// Stable: equal or missing dates keep new-before-existing order.
		slices.SortStableFunc(combined, func(a, b models.Post) int {
			return b.PublishedAt.Compare(a.PublishedAt)
		})
	}

	combined = dedupeByKey(combined)

	if len(combined) > maxSize {
		report.Evicted = len(combined) - maxSize
		combined = combined[:maxSize]
	}

	for _, p := range combined {
		if freshKeys[IdentityOf(p)] {
			report.Added = append(report.Added, p)
		}
	}

	report.Posts = combined
	return report
}

// enrich copies the identity of src onto dst when dst lacks one: a missing activity
// id is filled, and the permalink is replaced unless dst already has an activity id
// and a specific URL. Content, date and tags are never touched, so applying the same
// enrichment twice is a no-op.
func enrich(dst *models.Post, src models.Post) bool {
	lacksIdentity := dst.ActivityID == ""
	changed := false
	if lacksIdentity && src.ActivityID != "" {
		dst.ActivityID = src.ActivityID
		changed = true
	}
	srcURL, srcOK := CanonicalURL(src.URL)
	dstURL, dstOK := CanonicalURL(dst.URL)
	if srcOK && srcURL != dstURL && (lacksIdentity || !dstOK) {
		dst.URL = src.URL
		changed = true
	}
	return changed
}

// dedupeByKey keeps the first post for each identity key.
func dedupeByKey(posts []models.Post) []models.Post {
	seen := make(map[Key]bool, len(posts))
	out := posts[:0]
	for _, p := range posts {
		k := IdentityOf(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}

type matchKind int

const (
	noMatch matchKind = iota
	byActivityID
	byPermalink
	byFingerprint
)

// index finds the stored post a candidate refers to, by any of its identity fields.
type index struct {
	byID  map[string]*models.Post
	byURL map[string][]*models.Post
	byFP  map[string][]*models.Post
}

func newIndex() *index {
	return &index{
		byID:  make(map[string]*models.Post),
		byURL: make(map[string][]*models.Post),
		byFP:  make(map[string][]*models.Post),
	}
}

// add registers every identity field of p. Calling it again after enrichment
// registers the newly filled fields.
func (x *index) add(p *models.Post) {
	if p.ActivityID != "" {
		if _, ok := x.byID[p.ActivityID]; !ok {
			x.byID[p.ActivityID] = p
		}
	}
	if u, ok := CanonicalURL(p.URL); ok && !slices.Contains(x.byURL[u], p) {
		x.byURL[u] = append(x.byURL[u], p)
	}
	if fp := Fingerprint(p.Content); fp != "" && !slices.Contains(x.byFP[fp], p) {
		x.byFP[fp] = append(x.byFP[fp], p)
	}
}

// lookup returns the indexed post c refers to. Two different activity ids never
// match, and neither do two different specific permalinks.
func (x *index) lookup(c models.Post) (*models.Post, matchKind) {
	if c.ActivityID != "" {
		if p := x.byID[c.ActivityID]; p != nil {
			return p, byActivityID
		}
	}
	cURL, cHasURL := CanonicalURL(c.URL)
	compatible := func(p *models.Post) bool {
		if p.ActivityID != "" && c.ActivityID != "" && p.ActivityID != c.ActivityID {
			return false
		}
		if pURL, ok := CanonicalURL(p.URL); ok && cHasURL && pURL != cURL {
			return false
		}
		return true
	}
	if cHasURL {
		for _, p := range x.byURL[cURL] {
			if compatible(p) {
				return p, byPermalink
			}
		}
	}
	if fp := Fingerprint(c.Content); fp != "" {
		for _, p := range x.byFP[fp] {
			if compatible(p) {
				return p, byFingerprint
			}
		}
	}
	return nil, noMatch
}
