// ABOUTME: CLI commands for reading the post store.
// ABOUTME: Provides list and show subcommands with tag and source filtering.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389-research/postsync/internal/merge"
	"github.com/2389-research/postsync/internal/models"
	"github.com/2389-research/postsync/internal/storage"
)

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Read stored posts",
	Long:  "List and inspect posts in the post store.",
}

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored posts, newest first",
	RunE:  runPostsList,
}

var postsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show one post",
	Long:  "Show one post by identity key (id:..., url:..., fp:...), activity id, or URL.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPostsShow,
}

// Flags
var (
	postsLimit  int
	postsOffset int
	postsTag    string
	postsSource string
	postsJSON   bool
)

func init() {
	rootCmd.AddCommand(postsCmd)
	postsCmd.AddCommand(postsListCmd)
	postsCmd.AddCommand(postsShowCmd)

	postsListCmd.Flags().IntVar(&postsLimit, "limit", 10, "Maximum number of posts to show")
	postsListCmd.Flags().IntVar(&postsOffset, "offset", 0, "Number of posts to skip")
	postsListCmd.Flags().StringVar(&postsTag, "tag", "", "Filter by tag")
	postsListCmd.Flags().StringVar(&postsSource, "source", "", "Filter by source")
	postsListCmd.Flags().BoolVar(&postsJSON, "json", false, "Print posts as JSON")
	postsShowCmd.Flags().BoolVar(&postsJSON, "json", false, "Print the post as JSON")
}

func runPostsList(cmd *cobra.Command, args []string) error {
	posts, err := storage.ListPosts(context.Background(), globalStore, storage.ListPostsOptions{
		Limit:        postsLimit,
		Offset:       postsOffset,
		TagFilter:    postsTag,
		SourceFilter: postsSource,
	})
	if err != nil {
		return fmt.Errorf("failed to list posts: %w", err)
	}

	if postsJSON {
		if posts == nil {
			posts = []models.Post{}
		}
		return printJSON(posts)
	}

	if len(posts) == 0 {
		fmt.Println("No posts found.")
		return nil
	}

	for _, post := range posts {
		printPostHeader(post)
		fmt.Printf("%s\n\n", storage.Title(post))
	}
	return nil
}

func runPostsShow(cmd *cobra.Command, args []string) error {
	posts, err := globalStore.Load(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load posts: %w", err)
	}
	post, ok := storage.FindPost(posts, args[0])
	if !ok {
		return fmt.Errorf("post %s not found", args[0])
	}

	if postsJSON {
		return printJSON(post)
	}

	printPostHeader(post)
	if post.URL != "" {
		fmt.Printf("URL: %s\n", post.URL)
	}
	fmt.Printf("Engagement: %d likes, %d comments, %d shares\n\n",
		post.Engagement.Likes, post.Engagement.Comments, post.Engagement.Shares)
	fmt.Println(post.Content)
	return nil
}

func printPostHeader(post models.Post) {
	date := "unknown date"
	if post.HasDate() {
		date = post.PublishedAt.Format("2006-01-02")
	}
	fmt.Printf("--- %s [%s]", merge.IdentityOf(post), date)
	if len(post.Tags) > 0 {
		fmt.Printf(" #%s", strings.Join(post.Tags, " #"))
	}
	if post.Source != "" {
		fmt.Printf(" via %s", post.Source)
	}
	fmt.Println()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
