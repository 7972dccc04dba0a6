// ABOUTME: Orchestrates one sync pass: fetch, merge under the store lock, then fan out.
// ABOUTME: Articles, GitHub publishing and NATS announcements are optional, best-effort sinks.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389-research/postsync/internal/merge"
	"github.com/2389-research/postsync/internal/metrics"
	"github.com/2389-research/postsync/internal/models"
	"github.com/2389-research/postsync/internal/source"
	"github.com/2389-research/postsync/internal/storage"
)

var (
	// ErrWriteFailure means the merged post list could not be persisted.
	ErrWriteFailure = errors.New("failed to write post store")

	// ErrNothingWorked means every source failed and the store could not be written either.
	ErrNothingWorked = errors.New("all sources failed and the post store is unwritable")
)

// ArticleSink materializes posts as files, skipping posts that already have one.
type ArticleSink interface {
	WriteAll(posts []models.Post) ([]string, []bool, error)
}

// RemoteSink publishes the full post list somewhere else.
type RemoteSink interface {
	PublishPosts(ctx context.Context, posts []models.Post) (bool, error)
}

// Notifier announces new posts.
type Notifier interface {
	PublishPosts(ctx context.Context, runID string, posts []models.Post) error
}

// SyncLog records the outcome of each run.
type SyncLog interface {
	RecordSuccess(runID string, newPosts int, lastProcessedID string) (models.SyncLog, error)
	RecordFailure(runID string, runErr error) (models.SyncLog, error)
}

// Config holds the run parameters.
type Config struct {
	MaxPosts         int
	MinContentLength int
	FetchCount       int           // per-adapter candidate limit
	Timeout          time.Duration // per-adapter fetch timeout
}

// Result summarizes a sync run.
type Result struct {
	RunID           string        `json:"runId"`
	Timestamp       time.Time     `json:"timestamp"`
	DryRun          bool          `json:"dryRun,omitempty"`
	Candidates      int           `json:"candidates"`
	NewPosts        int           `json:"newPosts"`
	TotalPosts      int           `json:"totalPosts"`
	Enriched        int           `json:"enriched"`
	Duplicates      int           `json:"duplicates"`
	Rejected        int           `json:"rejected"`
	Evicted         int           `json:"evicted"`
	ArticlesWritten int           `json:"articlesWritten"`
	Published       bool          `json:"published"`
	FetchErrors     []string      `json:"fetchErrors,omitempty"`
	Warnings        []string      `json:"warnings,omitempty"`
	Added           []models.Post `json:"added,omitempty"`
}

// Syncer runs sync passes against one store.
type Syncer struct {
	store    storage.PostStore
	adapters []source.Adapter
	syncLog  SyncLog
	articles ArticleSink
	remote   RemoteSink
	notifier Notifier
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithArticles enables article materialization.
func WithArticles(a ArticleSink) Option { return func(s *Syncer) { s.articles = a } }

// WithRemote enables publishing the post list.
func WithRemote(r RemoteSink) Option { return func(s *Syncer) { s.remote = r } }

// WithNotifier enables new-post announcements.
func WithNotifier(n Notifier) Option { return func(s *Syncer) { s.notifier = n } }

// WithSyncLog enables the audit summary.
func WithSyncLog(l SyncLog) Option { return func(s *Syncer) { s.syncLog = l } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Syncer.
func New(store storage.PostStore, adapters []source.Adapter, cfg Config, opts ...Option) *Syncer {
	if cfg.MaxPosts <= 0 {
		cfg.MaxPosts = models.DefaultMaxPosts
	}
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = models.DefaultMinContentLength
	}
	if cfg.FetchCount <= 0 {
		cfg.FetchCount = cfg.MaxPosts
	}
	s := &Syncer{
		store:    store,
		adapters: adapters,
		cfg:      cfg,
		logger:   slog.Default(),
		tracer:   otel.Tracer("postsync/syncer"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one sync pass. Source failures are recovered; a store write failure is returned.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	return s.run(ctx, false)
}

// Preview runs fetch and merge without writing anything.
func (s *Syncer) Preview(ctx context.Context) (Result, error) {
	return s.run(ctx, true)
}

func (s *Syncer) run(ctx context.Context, dryRun bool) (res Result, err error) {
	start := s.now()
	res = Result{RunID: uuid.NewString(), Timestamp: start.UTC(), DryRun: dryRun}
	logger := s.logger.With("run_id", res.RunID)

	ctx, span := s.tracer.Start(ctx, "sync.run", trace.WithAttributes(
		attribute.String("run_id", res.RunID),
		attribute.Bool("dry_run", dryRun),
	))
	defer func() {
		span.SetAttributes(attribute.Int("new_posts", res.NewPosts), attribute.Int("total_posts", res.TotalPosts))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !dryRun {
		metrics.SyncRuns.Inc()
		defer metrics.ObserveSyncDuration(start)
	}

	coll := source.Collect(ctx, s.adapters, s.cfg.FetchCount, s.cfg.Timeout, logger)
	res.Candidates = len(coll.Candidates)
	for _, fe := range coll.Errors {
		res.FetchErrors = append(res.FetchErrors, fe.Error())
		if !dryRun {
			metrics.IncFetchError(fe.Source)
		}
	}

	opts := merge.Options{MaxSize: s.cfg.MaxPosts, MinContentLength: s.cfg.MinContentLength}
	var report merge.Report

	if dryRun {
		existing, lerr := s.store.Load(ctx)
		if lerr != nil {
			return res, fmt.Errorf("failed to load post store: %w", lerr)
		}
		report = merge.MergeWithReport(existing, coll.Candidates, opts)
		s.fillReport(&res, report)
		return res, nil
	}

	uerr := s.store.Update(ctx, func(existing []models.Post) ([]models.Post, error) {
		report = merge.MergeWithReport(existing, coll.Candidates, opts)
		return report.Posts, nil
	})
	if uerr != nil {
		err = fmt.Errorf("%w: %w", ErrWriteFailure, uerr)
		if coll.AllFailed() {
			err = fmt.Errorf("%w: %w", ErrNothingWorked, err)
		}
		metrics.SyncFailures.Inc()
		logger.Error("sync failed", "error", err)
		if s.syncLog != nil {
			if _, lerr := s.syncLog.RecordFailure(res.RunID, err); lerr != nil {
				logger.Warn("failed to record sync failure", "error", lerr)
			}
		}
		return res, err
	}
	s.fillReport(&res, report)

	metrics.PostsAdded.Add(float64(res.NewPosts))
	metrics.PostsEnriched.Add(float64(res.Enriched))
	metrics.CandidatesRejected.Add(float64(res.Rejected))
	metrics.StorePosts.Set(float64(res.TotalPosts))

	s.fanOut(ctx, logger, &res, report)

	if s.syncLog != nil {
		lastID := ""
		if len(report.Added) > 0 {
			lastID = string(merge.IdentityOf(report.Added[0]))
		}
		if _, lerr := s.syncLog.RecordSuccess(res.RunID, res.NewPosts, lastID); lerr != nil {
			logger.Warn("failed to record sync", "error", lerr)
			res.Warnings = append(res.Warnings, lerr.Error())
		}
	}

	logger.Info("sync complete",
		"new", res.NewPosts, "total", res.TotalPosts, "enriched", res.Enriched,
		"rejected", res.Rejected, "fetch_errors", len(res.FetchErrors), "duration", time.Since(start))
	return res, nil
}

func (s *Syncer) fillReport(res *Result, report merge.Report) {
	res.NewPosts = len(report.Added)
	res.TotalPosts = len(report.Posts)
	res.Enriched = report.Enriched
	res.Duplicates = report.Duplicates
	res.Rejected = report.Rejected
	res.Evicted = report.Evicted
	res.Added = report.Added
}

// fanOut feeds the optional sinks. Their failures become warnings: the store is already saved.
func (s *Syncer) fanOut(ctx context.Context, logger *slog.Logger, res *Result, report merge.Report) {
	warn := func(msg string, err error) {
		logger.Warn(msg, "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", msg, err))
	}

	// Every stored post is offered so articles missed by a failed run are backfilled;
	// posts that already have an article are skipped by the sink.
	if s.articles != nil && len(report.Posts) > 0 {
		_, created, err := s.articles.WriteAll(report.Posts)
		for _, c := range created {
			if c {
				res.ArticlesWritten++
			}
		}
		metrics.ArticlesWritten.Add(float64(res.ArticlesWritten))
		if err != nil {
			warn("failed to write articles", err)
		}
	}

	if s.remote != nil {
		published, err := s.remote.PublishPosts(ctx, report.Posts)
		if err != nil {
			warn("failed to publish posts", err)
		}
		res.Published = published
	}

	if s.notifier != nil && len(report.Added) > 0 {
		if err := s.notifier.PublishPosts(ctx, res.RunID, report.Added); err != nil {
			warn("failed to announce new posts", err)
		}
	}
}

// RunLoop runs a pass immediately and then on every interval tick until ctx is cancelled.
func (s *Syncer) RunLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	if _, err := s.Run(ctx); err != nil {
		s.logger.Error("scheduled sync failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync loop stopped")
			return ctx.Err()
		case <-t.C:
			if _, err := s.Run(ctx); err != nil {
				s.logger.Error("scheduled sync failed", "error", err)
			}
		}
	}
}
