// ABOUTME: Source adapter interface and the concurrent collector that runs adapters.
// ABOUTME: A failing adapter yields zero candidates and a FetchError, never a panic or abort.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389-research/postsync/internal/models"
)

// DefaultTimeout bounds a single adapter fetch when none is configured.
const DefaultTimeout = 60 * time.Second

// Adapter fetches candidate posts from one upstream.
type Adapter interface {
	// Name is the adapter's diagnostic label, copied into Post.Source.
	Name() string

	// Fetch returns at most maxCount candidates, already in canonical shape.
	Fetch(ctx context.Context, maxCount int) ([]models.Post, error)
}

// FetchError records a failed adapter fetch. It is recovered: the run continues without
// that adapter's candidates.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s failed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Collection is the outcome of running every adapter once.
type Collection struct {
	Candidates []models.Post
	Errors     []*FetchError
	Succeeded  int
}

// AllFailed reports whether there were adapters and none of them succeeded.
func (c Collection) AllFailed() bool {
	return c.Succeeded == 0 && len(c.Errors) > 0
}

// Collect runs adapters concurrently, each bounded by timeout. Candidates are returned in
// adapter order so merge results do not depend on scheduling.
func Collect(ctx context.Context, adapters []Adapter, maxCount int, timeout time.Duration, logger *slog.Logger) Collection {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	type outcome struct {
		posts []models.Post
		err   error
	}
	outcomes := make([]outcome, len(adapters))

	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func(i int, a Adapter) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = outcome{err: fmt.Errorf("adapter panicked: %v", r)}
				}
			}()

			fctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			posts, err := a.Fetch(fctx, maxCount)
			if err == nil && fctx.Err() != nil {
				err = fctx.Err()
			}
			outcomes[i] = outcome{posts: posts, err: err}
			logger.Debug("fetched candidates", "source", a.Name(), "count", len(posts), "duration", time.Since(start), "error", err)
		}(i, a)
	}
	wg.Wait()

	var c Collection
	for i, o := range outcomes {
		name := adapters[i].Name()
		if o.err != nil {
			fe := &FetchError{Source: name, Err: o.err}
			logger.Warn("source fetch failed, continuing without it", "source", name, "error", o.err)
			c.Errors = append(c.Errors, fe)
			continue
		}
		c.Succeeded++
		posts := o.posts
		if maxCount > 0 && len(posts) > maxCount {
			posts = posts[:maxCount]
		}
		for _, p := range posts {
			if p.Source == "" {
				p.Source = name
			}
			c.Candidates = append(c.Candidates, p)
		}
	}
	return c
}
