// ABOUTME: CLI commands that run sync passes: sync and import.
// ABOUTME: Supports one-shot, dry-run, and watch (scheduled) modes with optional JSON output.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389-research/postsync/internal/merge"
	"github.com/2389-research/postsync/internal/metrics"
	"github.com/2389-research/postsync/internal/source"
	"github.com/2389-research/postsync/internal/storage"
	"github.com/2389-research/postsync/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch posts from every configured source",
	Long: `Fetch posts from every configured source, merge them into the post store,
and fan new posts out to the blog directory, GitHub, and NATS when configured.

With --watch the sync repeats on --interval until interrupted.`,
	RunE: runSync,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge posts from a JSON export file",
	Long:  "Merge posts from a JSON export (array or object with a posts key) into the post store.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

// Flags
var (
	syncWatch    bool
	syncInterval time.Duration
	syncDryRun   bool
	syncJSON     bool
)

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(importCmd)

	syncCmd.Flags().BoolVar(&syncWatch, "watch", false, "Keep running and sync on every interval")
	syncCmd.Flags().DurationVar(&syncInterval, "interval", time.Hour, "Time between syncs in watch mode")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Show what would change without writing")
	syncCmd.Flags().BoolVar(&syncJSON, "json", false, "Print the run result as JSON")

	importCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Show what would change without writing")
	importCmd.Flags().BoolVar(&syncJSON, "json", false, "Print the run result as JSON")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	adapters, err := buildAdapters(ctx, globalConfig)
	if err != nil {
		return err
	}
	if len(adapters) == 0 {
		return fmt.Errorf("no sources configured - run 'postsync setup' or edit the config file")
	}

	s, sinks := newSyncer(adapters)
	defer sinks.Close()

	if syncWatch {
		if syncDryRun {
			return fmt.Errorf("--watch and --dry-run cannot be combined")
		}
		return watch(ctx, s)
	}
	return runOnce(ctx, s)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, sinks := newSyncer([]source.Adapter{source.NewFileSource(args[0], "import")})
	defer sinks.Close()

	return runOnce(ctx, s)
}

func runOnce(ctx context.Context, s *syncer.Syncer) error {
	run := s.Run
	if syncDryRun {
		run = s.Preview
	}
	res, err := run(ctx)
	if err != nil {
		return err
	}
	return printResult(res)
}

func watch(ctx context.Context, s *syncer.Syncer) error {
	if addr := globalConfig.Metrics.Addr; addr != "" {
		srv, err := metrics.StartServer(addr, globalLogger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	globalLogger.Info("watching for new posts", "interval", syncInterval)
	err := s.RunLoop(ctx, syncInterval)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printResult(res syncer.Result) error {
	if syncJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if res.DryRun {
		fmt.Println("Dry run: nothing was written.")
	}
	fmt.Printf("%d new, %d enriched, %d duplicates, %d rejected (%d posts stored)\n",
		res.NewPosts, res.Enriched, res.Duplicates, res.Rejected, res.TotalPosts)
	for _, p := range res.Added {
		fmt.Printf("  + %s  %s\n", merge.IdentityOf(p), storage.Title(p))
	}
	if res.ArticlesWritten > 0 {
		fmt.Printf("%d articles written to %s\n", res.ArticlesWritten, globalConfig.Blog.Dir)
	}
	if res.Published {
		fmt.Printf("Published to %s/%s\n", globalConfig.GitHub.Owner, globalConfig.GitHub.Repo)
	}
	for _, fe := range res.FetchErrors {
		fmt.Fprintf(os.Stderr, "source error: %s\n", fe)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	return nil
}
