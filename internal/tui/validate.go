// ABOUTME: Connection validation for the RapidAPI LinkedIn posts endpoint.
// ABOUTME: Tests credentials by fetching the profile's posts once, without retries.
package tui

import (
	"context"
	"time"

	"github.com/2389-research/postsync/internal/httpx"
	"github.com/2389-research/postsync/internal/source"
)

// ValidateConnection tests the RapidAPI credentials against the given profile.
// The context allows cancellation when the user quits during validation.
func ValidateConnection(ctx context.Context, apiURL, apiKey, profile string) error {
	client := httpx.New(httpx.Options{Timeout: 10 * time.Second, MaxAttempts: 1})
	src, err := source.NewRapidAPISource(source.RapidAPIOptions{
		BaseURL: apiURL,
		APIKey:  apiKey,
		Profile: profile,
	}, client)
	if err != nil {
		return err
	}
	return src.Ping(ctx)
}
