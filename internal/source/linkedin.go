// ABOUTME: Source adapter for the official LinkedIn REST posts API.
// ABOUTME: Takes an injected oauth2.TokenSource and checks token validity before each fetch.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/2389-research/postsync/internal/httpx"
	"github.com/2389-research/postsync/internal/models"
)

const (
	// DefaultLinkedInURL is the LinkedIn REST API root.
	DefaultLinkedInURL = "https://api.linkedin.com"

	// DefaultLinkedInTokenURL is LinkedIn's OAuth2 token endpoint.
	DefaultLinkedInTokenURL = "https://www.linkedin.com/oauth/v2/accessToken"

	linkedInVersion = "202401"
	maxPageSize     = 100
)

// ErrTokenInvalid is returned when the token provider yields an expired or empty token.
var ErrTokenInvalid = errors.New("linkedin access token is missing or expired")

// LinkedInOptions configures a LinkedInSource.
type LinkedInOptions struct {
	BaseURL   string
	PersonURN string // author URN, e.g. urn:li:person:abc123
}

// LinkedInSource fetches the author's posts with an OAuth2 bearer token.
type LinkedInSource struct {
	opts   LinkedInOptions
	tokens oauth2.TokenSource
	client *httpx.Client
}

// NewLinkedInSource creates the adapter. A nil client gets the defaults.
func NewLinkedInSource(opts LinkedInOptions, tokens oauth2.TokenSource, client *httpx.Client) (*LinkedInSource, error) {
	if tokens == nil {
		return nil, fmt.Errorf("linkedin token source is required")
	}
	if opts.PersonURN == "" {
		return nil, fmt.Errorf("linkedin person urn is required")
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultLinkedInURL
	}
	if client == nil {
		client = httpx.New(httpx.Options{})
	}
	return &LinkedInSource{opts: opts, tokens: tokens, client: client}, nil
}

// TokenConfig holds the credentials for building a LinkedIn token source.
type TokenConfig struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// NewTokenSource returns a refreshing token source when refresh credentials are present,
// and a static one otherwise.
func NewTokenSource(ctx context.Context, cfg TokenConfig) oauth2.TokenSource {
	tok := &oauth2.Token{AccessToken: cfg.AccessToken, RefreshToken: cfg.RefreshToken, TokenType: "Bearer"}
	if cfg.RefreshToken == "" || cfg.ClientID == "" {
		return oauth2.StaticTokenSource(tok)
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultLinkedInTokenURL
	}
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}
	// An empty access token is refreshed on first use.
	return conf.TokenSource(ctx, tok)
}

// Name implements Adapter.
func (s *LinkedInSource) Name() string { return "linkedin" }

// Fetch implements Adapter.
func (s *LinkedInSource) Fetch(ctx context.Context, maxCount int) ([]models.Post, error) {
	tok, err := s.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain linkedin token: %w", err)
	}
	if !tok.Valid() {
		return nil, ErrTokenInvalid
	}

	count := maxCount
	if count <= 0 || count > maxPageSize {
		count = maxPageSize
	}
	u, err := url.Parse(s.opts.BaseURL + "/rest/posts")
	if err != nil {
		return nil, fmt.Errorf("invalid linkedin url: %w", err)
	}
	q := u.Query()
	q.Set("q", "author")
	q.Set("author", s.opts.PersonURN)
	q.Set("count", strconv.Itoa(count))
	q.Set("sortBy", "LAST_MODIFIED")
	u.RawQuery = q.Encode()

	resp, err := s.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		tok.SetAuthHeader(req)
		req.Header.Set("LinkedIn-Version", linkedInVersion)
		req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("linkedin request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read linkedin response: %w", err)
	}
	records, err := decodeRecords(data)
	if err != nil {
		return nil, err
	}

	posts := make([]models.Post, 0, len(records))
	for _, r := range records {
		posts = append(posts, FromRaw(r, s.Name()))
		if maxCount > 0 && len(posts) >= maxCount {
			break
		}
	}
	return posts, nil
}
