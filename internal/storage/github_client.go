// ABOUTME: HTTP client publishing the post list to a file in a GitHub repository.
// ABOUTME: Uses the contents API with the blob sha for optimistic concurrency.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389-research/postsync/internal/httpx"
	"github.com/2389-research/postsync/internal/models"
)

// DefaultGitHubAPIURL is the public GitHub REST endpoint.
const DefaultGitHubAPIURL = "https://api.github.com"

// GitHubOptions identifies the repository file the posts are published to.
type GitHubOptions struct {
	BaseURL string
	Token   string
	Owner   string
	Repo    string
	Branch  string
	Path    string
}

// GitHubClient reads and writes the published post file.
type GitHubClient struct {
	opts   GitHubOptions
	client *httpx.Client
	now    func() time.Time
}

// contentsResponse maps the fields of GET /repos/{owner}/{repo}/contents/{path} we use.
type contentsResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// contentsPayload is the body of PUT /repos/{owner}/{repo}/contents/{path}.
type contentsPayload struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

// NewGitHubClient creates a client. A nil http client gets the defaults.
func NewGitHubClient(opts GitHubOptions, client *httpx.Client) *GitHubClient {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultGitHubAPIURL
	}
	if opts.Path == "" {
		opts.Path = "data/linkedin-posts.json"
	}
	if client == nil {
		client = httpx.New(httpx.Options{})
	}
	return &GitHubClient{opts: opts, client: client, now: time.Now}
}

func (g *GitHubClient) contentsURL() string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.opts.BaseURL,
		url.PathEscape(g.opts.Owner), url.PathEscape(g.opts.Repo), strings.TrimLeft(g.opts.Path, "/"))
}

func (g *GitHubClient) auth(req *http.Request) {
	if g.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.opts.Token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}

// getFile returns the decoded file content and blob sha. A missing file returns empty values.
func (g *GitHubClient) getFile(ctx context.Context) ([]byte, string, error) {
	resp, err := g.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		u := g.contentsURL()
		if g.opts.Branch != "" {
			u += "?ref=" + url.QueryEscape(g.opts.Branch)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		g.auth(req)
		return req, nil
	})
	if err != nil {
		var se *httpx.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("github request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var cr contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, "", fmt.Errorf("failed to decode response: %w", err)
	}
	if cr.Encoding != "" && cr.Encoding != "base64" {
		return nil, "", fmt.Errorf("unsupported content encoding %q", cr.Encoding)
	}
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(cr.Content, "\n", ""))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode file content: %w", err)
	}
	return data, cr.SHA, nil
}

func (g *GitHubClient) putFile(ctx context.Context, content []byte, sha, message string) error {
	body, err := json.Marshal(contentsPayload{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     sha,
		Branch:  g.opts.Branch,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal contents: %w", err)
	}

	resp, err := g.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.contentsURL(), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		g.auth(req)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// ReadPosts fetches the published post list. A missing file is an empty list.
func (g *GitHubClient) ReadPosts(ctx context.Context) ([]models.Post, error) {
	data, _, err := g.getFile(ctx)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return []models.Post{}, nil
	}
	posts, _, err := decodePosts(g.opts.Path, data)
	return posts, err
}

// PublishPosts writes posts to the repository file. It returns false without writing when the
// remote file already holds the same posts. A sha conflict is retried once with a fresh sha.
func (g *GitHubClient) PublishPosts(ctx context.Context, posts []models.Post) (bool, error) {
	posts = nonNil(posts)
	want, err := json.Marshal(posts)
	if err != nil {
		return false, fmt.Errorf("failed to encode posts: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		current, sha, err := g.getFile(ctx)
		if err != nil {
			return false, err
		}
		if current != nil {
			if remote, _, derr := decodePosts(g.opts.Path, current); derr == nil {
				if have, merr := json.Marshal(remote); merr == nil && bytes.Equal(have, want) {
					return false, nil
				}
			}
		}

		doc, err := json.MarshalIndent(storeFile{
			Posts:       posts,
			LastUpdated: g.now().UTC(),
			Count:       len(posts),
		}, "", "  ")
		if err != nil {
			return false, fmt.Errorf("failed to encode posts: %w", err)
		}
		message := fmt.Sprintf("Update LinkedIn posts (%d posts)", len(posts))

		err = g.putFile(ctx, append(doc, '\n'), sha, message)
		if err == nil {
			return true, nil
		}
		var se *httpx.StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusConflict || se.StatusCode == http.StatusUnprocessableEntity) && attempt == 0 {
			continue
		}
		return false, fmt.Errorf("failed to publish posts: %w", err)
	}
	return false, fmt.Errorf("failed to publish posts: sha conflict persisted")
}
