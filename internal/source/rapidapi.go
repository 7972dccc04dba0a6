// ABOUTME: Source adapter for a RapidAPI-hosted LinkedIn profile posts endpoint.
// ABOUTME: Sends X-RapidAPI-Key/Host headers through the rate-limited retrying client.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/2389-research/postsync/internal/httpx"
	"github.com/2389-research/postsync/internal/models"
)

// DefaultRapidAPIURL is the default RapidAPI LinkedIn data endpoint.
const DefaultRapidAPIURL = "https://linkedin-data-api.p.rapidapi.com"

// RapidAPIOptions configures a RapidAPISource.
type RapidAPIOptions struct {
	BaseURL  string
	APIKey   string
	Profile  string // LinkedIn username whose posts are fetched
	Endpoint string // path of the posts endpoint
}

// RapidAPISource fetches a profile's recent posts from RapidAPI.
type RapidAPISource struct {
	opts   RapidAPIOptions
	client *httpx.Client
}

// NewRapidAPISource creates the adapter. A nil client gets the defaults.
func NewRapidAPISource(opts RapidAPIOptions, client *httpx.Client) (*RapidAPISource, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("rapidapi key is required")
	}
	if opts.Profile == "" {
		return nil, fmt.Errorf("rapidapi profile is required")
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultRapidAPIURL
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "/get-profile-posts"
	}
	if client == nil {
		client = httpx.New(httpx.Options{})
	}
	return &RapidAPISource{opts: opts, client: client}, nil
}

// Name implements Adapter.
func (s *RapidAPISource) Name() string { return "rapidapi" }

// Fetch implements Adapter.
func (s *RapidAPISource) Fetch(ctx context.Context, maxCount int) ([]models.Post, error) {
	data, err := s.get(ctx)
	if err != nil {
		return nil, err
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

func (s *RapidAPISource) get(ctx context.Context) ([]byte, error) {
	u, err := url.Parse(s.opts.BaseURL + s.opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid rapidapi url: %w", err)
	}
	q := u.Query()
	q.Set("username", s.opts.Profile)
	u.RawQuery = q.Encode()

	resp, err := s.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-RapidAPI-Key", s.opts.APIKey)
		req.Header.Set("X-RapidAPI-Host", u.Host)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("rapidapi request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rapidapi response: %w", err)
	}
	return data, nil
}

// Ping requests the posts endpoint once and reports whether the credentials work.
func (s *RapidAPISource) Ping(ctx context.Context) error {
	data, err := s.get(ctx)
	if err != nil {
		return err
	}
	if _, err := decodeRecords(data); err != nil {
		return fmt.Errorf("unexpected rapidapi response: %w", err)
	}
	return nil
}
