// ABOUTME: Builds stores, source adapters, and sinks from the loaded config.
// ABOUTME: Shared by the sync, import, and mcp commands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389-research/postsync/internal/config"
	"github.com/2389-research/postsync/internal/httpx"
	"github.com/2389-research/postsync/internal/notify"
	"github.com/2389-research/postsync/internal/source"
	"github.com/2389-research/postsync/internal/storage"
	"github.com/2389-research/postsync/internal/syncer"
)

func openStore(cfg *config.Config, logger *slog.Logger) (storage.PostStore, error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		store, err := storage.NewSQLitePostStore(cfg.Store.Path, storage.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite post store: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewJSONPostStore(cfg.Store.Path, storage.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open post store: %w", err)
		}
		return store, nil
	}
}

// buildAdapters returns every configured source, in a stable order.
func buildAdapters(ctx context.Context, cfg *config.Config) ([]source.Adapter, error) {
	var adapters []source.Adapter

	if cfg.HasRapidAPI() {
		r := cfg.Sources.RapidAPI
		src, err := source.NewRapidAPISource(source.RapidAPIOptions{
			BaseURL: r.BaseURL,
			APIKey:  r.APIKey,
			Profile: r.Profile,
		}, httpx.New(httpx.Options{RPS: r.RPS}))
		if err != nil {
			return nil, fmt.Errorf("failed to configure rapidapi source: %w", err)
		}
		adapters = append(adapters, src)
	}

	if cfg.HasLinkedIn() {
		l := cfg.Sources.LinkedIn
		tokens := source.NewTokenSource(ctx, source.TokenConfig{
			AccessToken:  l.AccessToken,
			RefreshToken: l.RefreshToken,
			ClientID:     l.ClientID,
			ClientSecret: l.ClientSecret,
			TokenURL:     l.TokenURL,
		})
		src, err := source.NewLinkedInSource(source.LinkedInOptions{
			BaseURL:   l.BaseURL,
			PersonURN: l.PersonURN,
		}, tokens, httpx.New(httpx.Options{}))
		if err != nil {
			return nil, fmt.Errorf("failed to configure linkedin source: %w", err)
		}
		adapters = append(adapters, src)
	}

	if cfg.Sources.File != "" {
		adapters = append(adapters, source.NewFileSource(cfg.Sources.File, ""))
	}

	return adapters, nil
}

// sinks holds the optional outputs of a sync run and what must be closed afterwards.
type sinks struct {
	opts     []syncer.Option
	notifier *notify.Publisher
}

func (s *sinks) Close() {
	if s.notifier != nil {
		s.notifier.Close()
	}
}

func buildSinks(cfg *config.Config, logger *slog.Logger) *sinks {
	s := &sinks{
		opts: []syncer.Option{
			syncer.WithLogger(logger),
			syncer.WithSyncLog(globalSyncLog),
		},
	}

	if cfg.Blog.Enabled {
		s.opts = append(s.opts, syncer.WithArticles(storage.NewArticleWriter(cfg.Blog.Dir, storage.ArticleOptions{
			Source:     cfg.Blog.Source,
			Ext:        cfg.Blog.Ext,
			Layout:     cfg.Blog.Layout,
			SlugLength: cfg.Blog.SlugLength,
		})))
	}

	if cfg.HasGitHub() {
		s.opts = append(s.opts, syncer.WithRemote(newGitHubClient(cfg)))
	}

	if cfg.HasNotify() {
		pub, err := notify.Connect(cfg.Notify.NATSURL, cfg.Notify.Subject)
		if err != nil {
			// Announcements are best-effort; the sync still runs.
			logger.Warn("nats unavailable, new posts will not be announced", "error", err)
		} else {
			s.notifier = pub
			s.opts = append(s.opts, syncer.WithNotifier(pub))
		}
	}

	return s
}

func newGitHubClient(cfg *config.Config) *storage.GitHubClient {
	g := cfg.GitHub
	return storage.NewGitHubClient(storage.GitHubOptions{
		BaseURL: g.BaseURL,
		Token:   g.Token,
		Owner:   g.Owner,
		Repo:    g.Repo,
		Branch:  g.Branch,
		Path:    g.Path,
	}, httpx.New(httpx.Options{}))
}

func syncConfig(cfg *config.Config) syncer.Config {
	return syncer.Config{
		MaxPosts:         cfg.Store.MaxPosts,
		MinContentLength: cfg.Store.MinContentLength,
		FetchCount:       cfg.Sources.FetchCount,
		Timeout:          time.Duration(cfg.Sources.Timeout),
	}
}

// newSyncer wires a Syncer over the global store. Callers must Close the returned sinks.
func newSyncer(adapters []source.Adapter) (*syncer.Syncer, *sinks) {
	s := buildSinks(globalConfig, globalLogger)
	return syncer.New(globalStore, adapters, syncConfig(globalConfig), s.opts...), s
}
