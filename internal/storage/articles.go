// ABOUTME: Materializes newly synced posts as Jekyll-style markdown files.
// ABOUTME: Derives date-source-slug filenames and never rewrites an existing article.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/postsync/internal/merge"
	"github.com/2389-research/postsync/internal/models"
)

const (
	defaultSlugLength  = 50
	defaultTitleLength = 80
	maxCollisionTries  = 5
)

// ArticleOptions configures article file naming and the frontmatter template.
type ArticleOptions struct {
	Source     string // filename segment and frontmatter source, e.g. "linkedin"
	Ext        string // file extension without the dot
	Layout     string // Jekyll layout name
	SlugLength int
}

// ArticleWriter writes one markdown file per post into a directory.
type ArticleWriter struct {
	dir  string
	opts ArticleOptions
	mu   sync.Mutex
	now  func() time.Time
}

// articleFrontmatter is the YAML frontmatter for article files.
type articleFrontmatter struct {
	Layout      string   `yaml:"layout"`
	Title       string   `yaml:"title"`
	Date        string   `yaml:"date"`
	OriginalURL string   `yaml:"original_url,omitempty"`
	ActivityID  string   `yaml:"activity_id,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Likes       int      `yaml:"likes"`
	Comments    int      `yaml:"comments"`
	Shares      int      `yaml:"shares"`
	Source      string   `yaml:"source"`
	PostKey     string   `yaml:"post_key"`
	Fingerprint string   `yaml:"fingerprint"`
}

// NewArticleWriter creates an article writer for dir.
func NewArticleWriter(dir string, opts ArticleOptions) *ArticleWriter {
	if opts.Source == "" {
		opts.Source = "linkedin"
	}
	if opts.Ext == "" {
		opts.Ext = "md"
	}
	opts.Ext = strings.TrimPrefix(opts.Ext, ".")
	if opts.Layout == "" {
		opts.Layout = "post"
	}
	if opts.SlugLength <= 0 {
		opts.SlugLength = defaultSlugLength
	}
	return &ArticleWriter{dir: dir, opts: opts, now: time.Now}
}

// Dir returns the article directory.
func (w *ArticleWriter) Dir() string {
	return w.dir
}

// Filename derives {date}-{source}-{slug}.{ext} for a post.
func (w *ArticleWriter) Filename(post models.Post) string {
	date := post.PublishedAt
	if date.IsZero() {
		date = w.now()
	}
	return fmt.Sprintf("%s-%s-%s.%s",
		date.UTC().Format("2006-01-02"), Slug(w.opts.Source, 20), Slug(Title(post), w.opts.SlugLength), w.opts.Ext)
}

// Render produces the full article document for a post.
func (w *ArticleWriter) Render(post models.Post) (string, error) {
	date := post.PublishedAt
	if date.IsZero() {
		date = w.now()
	}
	fm := articleFrontmatter{
		Layout:      w.opts.Layout,
		Title:       Title(post),
		Date:        formatTime(date),
		OriginalURL: post.URL,
		ActivityID:  post.ActivityID,
		Tags:        post.Tags,
		Likes:       post.Engagement.Likes,
		Comments:    post.Engagement.Comments,
		Shares:      post.Engagement.Shares,
		Source:      w.opts.Source,
		PostKey:     string(merge.IdentityOf(post)),
		Fingerprint: merge.Fingerprint(post.Content),
	}

	var body strings.Builder
	body.WriteString("\n")
	body.WriteString(post.Content)
	body.WriteString("\n")
	if post.URL != "" {
		body.WriteString("\n---\n\n")
		body.WriteString(fmt.Sprintf("[View the original post](%s)\n", post.URL))
	}

	content, err := renderFrontmatter(fm, body.String())
	if err != nil {
		return "", fmt.Errorf("failed to render article: %w", err)
	}
	return content, nil
}

// Write materializes a single post. It returns the article path and whether a new file was created.
func (w *ArticleWriter) Write(post models.Post) (string, bool, error) {
	paths, created, err := w.WriteAll([]models.Post{post})
	if err != nil {
		return "", false, err
	}
	return paths[0], created[0], nil
}

// WriteAll materializes posts that have no article yet. Posts already on disk are
// skipped and their existing path is returned.
func (w *ArticleWriter) WriteAll(posts []models.Post) ([]string, []bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0750); err != nil {
		return nil, nil, fmt.Errorf("failed to create article directory: %w", err)
	}
	idx, err := w.scan()
	if err != nil {
		return nil, nil, err
	}

	paths := make([]string, 0, len(posts))
	created := make([]bool, 0, len(posts))
	for _, post := range posts {
		if existing, ok := idx.find(post); ok {
			paths = append(paths, existing)
			created = append(created, false)
			continue
		}
		path, err := w.create(post)
		if err != nil {
			return paths, created, err
		}
		idx.add(path, articleIdentity{
			key:         string(merge.IdentityOf(post)),
			activityID:  post.ActivityID,
			url:         post.URL,
			fingerprint: merge.Fingerprint(post.Content),
		})
		paths = append(paths, path)
		created = append(created, true)
	}
	return paths, created, nil
}

// create writes a new file, adding a timestamp suffix when the derived name is taken.
func (w *ArticleWriter) create(post models.Post) (string, error) {
	content, err := w.Render(post)
	if err != nil {
		return "", err
	}

	name := w.Filename(post)
	base := strings.TrimSuffix(name, "."+w.opts.Ext)
	candidates := []string{name}
	stamp := w.now().Unix()
	for i := 0; i < maxCollisionTries; i++ {
		if i == 0 {
			candidates = append(candidates, fmt.Sprintf("%s-%d.%s", base, stamp, w.opts.Ext))
		} else {
			candidates = append(candidates, fmt.Sprintf("%s-%d-%d.%s", base, stamp, i+1, w.opts.Ext))
		}
	}

	for _, candidate := range candidates {
		path := filepath.Join(w.dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", fmt.Errorf("failed to create article: %w", err)
		}
		_, werr := f.WriteString(content)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			_ = os.Remove(path)
			if werr == nil {
				werr = cerr
			}
			return "", fmt.Errorf("failed to write article: %w", werr)
		}
		return path, nil
	}
	return "", fmt.Errorf("failed to find a free filename for %s", name)
}

// articleIdentity is what an article file records about the post it holds.
type articleIdentity struct {
	key         string
	activityID  string
	url         string
	fingerprint string
}

// articleIndex maps post identity fields to article paths.
type articleIndex struct {
	byKey map[string]string
	byID  map[string]string
	byFP  map[string][]articleRef
}

type articleRef struct {
	path       string
	activityID string
	url        string // canonical permalink, empty when generic
}

func (x *articleIndex) add(path string, id articleIdentity) {
	if id.key != "" {
		x.byKey[id.key] = path
	}
	if id.activityID != "" {
		x.byID[id.activityID] = path
	}
	if id.fingerprint != "" {
		canonical, _ := merge.CanonicalURL(id.url)
		x.byFP[id.fingerprint] = append(x.byFP[id.fingerprint], articleRef{path: path, activityID: id.activityID, url: canonical})
	}
}

// find matches by key, then activity id, then content fingerprint. An article whose
// activity id or specific permalink differs from the post's never matches.
func (x *articleIndex) find(post models.Post) (string, bool) {
	if p, ok := x.byKey[string(merge.IdentityOf(post))]; ok {
		return p, true
	}
	if post.ActivityID != "" {
		if p, ok := x.byID[post.ActivityID]; ok {
			return p, true
		}
	}
	postURL, _ := merge.CanonicalURL(post.URL)
	for _, ref := range x.byFP[merge.Fingerprint(post.Content)] {
		if ref.activityID != "" && post.ActivityID != "" && ref.activityID != post.ActivityID {
			continue
		}
		if ref.url != "" && postURL != "" && ref.url != postURL {
			continue
		}
		return ref.path, true
	}
	return "", false
}

// scan reads the frontmatter of every article in the directory.
func (w *ArticleWriter) scan() (*articleIndex, error) {
	idx := &articleIndex{
		byKey: make(map[string]string),
		byID:  make(map[string]string),
		byFP:  make(map[string][]articleRef),
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "."+w.opts.Ext) {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		yamlStr, body := parseFrontmatter(string(data))
		if yamlStr == "" {
			continue
		}
		var fm articleFrontmatter
		if err := yaml.Unmarshal([]byte(yamlStr), &fm); err != nil {
			continue
		}
		fp := fm.Fingerprint
		if fp == "" {
			fp = merge.Fingerprint(articleBody(body))
		}
		idx.add(path, articleIdentity{key: fm.PostKey, activityID: fm.ActivityID, url: fm.OriginalURL, fingerprint: fp})
	}
	return idx, nil
}

// articleBody strips the trailing link block from a rendered article body.
func articleBody(body string) string {
	if i := strings.LastIndex(body, "\n---\n"); i >= 0 {
		body = body[:i]
	}
	return strings.TrimSpace(body)
}

// Title returns the post title, or the first line of its content shortened to 80 characters.
func Title(post models.Post) string {
	if t := strings.TrimSpace(post.Title); t != "" {
		return t
	}
	line := strings.TrimSpace(post.Content)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if utf8.RuneCountInString(line) > defaultTitleLength {
		line = truncateWords(line, defaultTitleLength) + "..."
	}
	return line
}

// truncateWords cuts s to at most maxLen runes, preferring a word boundary.
func truncateWords(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	cut := string(runes[:maxLen])
	if i := strings.LastIndexByte(cut, ' '); i > maxLen/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

// Slug lowercases text, drops everything but ASCII letters, digits and spaces,
// joins words with hyphens and truncates to maxLen characters.
func Slug(text string, maxLen int) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '-':
			b.WriteRune(' ')
		}
	}
	slug := strings.Join(strings.Fields(b.String()), "-")
	if maxLen > 0 && len(slug) > maxLen {
		slug = slug[:maxLen]
	}
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "post"
	}
	return slug
}
