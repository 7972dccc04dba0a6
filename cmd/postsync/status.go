// ABOUTME: CLI command reporting the last sync run and the configured sources.
// ABOUTME: Reads the sync log and post store, and the published copy only with --remote.
package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/2389-research/postsync/internal/config"
	"github.com/2389-research/postsync/internal/models"
	"github.com/2389-research/postsync/internal/storage"
)

var statusRemote bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last sync and what is configured",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusRemote, "remote", false, "also count the posts published to GitHub")
	rootCmd.AddCommand(statusCmd)
}

// postReader reads the published post list.
type postReader interface {
	ReadPosts(ctx context.Context) ([]models.Post, error)
}

func runStatus(cmd *cobra.Command, args []string) error {
	var remote postReader
	if statusRemote && globalConfig.HasGitHub() {
		remote = newGitHubClient(globalConfig)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return writeStatus(ctx, cmd.OutOrStdout(), globalConfig, globalStore, globalSyncLog, remote)
}

func writeStatus(ctx context.Context, w io.Writer, cfg *config.Config, store storage.PostStore, syncLog *storage.SyncLogStore, remote postReader) error {
	info, err := storage.Inspect(ctx, store)
	if err != nil {
		return err
	}
	l, err := syncLog.Load()
	if err != nil {
		return fmt.Errorf("failed to read sync log: %w", err)
	}

	fmt.Fprintf(w, "Store:    %s (%s, %d/%d posts)\n", cfg.Store.Path, cfg.Store.Backend, info.Posts, cfg.Store.MaxPosts)
	if info.HasVersion {
		fmt.Fprintf(w, "Version:  %d\n", info.Version)
	}
	if l.TotalSyncs == 0 {
		fmt.Fprintln(w, "Last sync: never")
	} else {
		fmt.Fprintf(w, "Last sync: %s (run %s, %d new)\n", l.LastSync.Local().Format("2006-01-02 15:04:05"), l.LastRunID, l.NewPostsThisSync)
		fmt.Fprintf(w, "Syncs:    %d\n", l.TotalSyncs)
		if l.LastError != "" {
			fmt.Fprintf(w, "Last error: %s\n", l.LastError)
		}
	}

	fmt.Fprintln(w, "Sources:")
	fmt.Fprintf(w, "  rapidapi  %s\n", enabled(cfg.HasRapidAPI()))
	fmt.Fprintf(w, "  linkedin  %s\n", enabled(cfg.HasLinkedIn()))
	fmt.Fprintf(w, "  file      %s\n", enabled(cfg.Sources.File != ""))
	fmt.Fprintln(w, "Outputs:")
	fmt.Fprintf(w, "  blog      %s\n", enabled(cfg.Blog.Enabled))
	fmt.Fprintf(w, "  github    %s\n", enabled(cfg.HasGitHub()))
	if remote != nil {
		published, err := remote.ReadPosts(ctx)
		if err != nil {
			fmt.Fprintf(w, "  published unavailable: %v\n", err)
		} else {
			fmt.Fprintf(w, "  published %d posts on GitHub\n", len(published))
		}
	}
	fmt.Fprintf(w, "  nats      %s\n", enabled(cfg.HasNotify()))
	return nil
}

func enabled(ok bool) string {
	if ok {
		return "configured"
	}
	return "-"
}
