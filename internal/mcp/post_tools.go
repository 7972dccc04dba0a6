// ABOUTME: MCP tool implementations for synced posts.
// ABOUTME: Registers sync_posts, read_posts, get_post, and sync_status tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389-research/postsync/internal/merge"
	"github.com/2389-research/postsync/internal/models"
	"github.com/2389-research/postsync/internal/storage"
)

func (s *Server) registerPostTools() {
	s.mcp.AddTool(&gomcp.Tool{
		Name:        "sync_posts",
		Description: "Fetch posts from every configured source and merge them into the post store.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"dry_run": {"type": "boolean", "description": "Report what would change without writing anything"}
			}
		}`),
	}, s.handleSyncPosts)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "read_posts",
		Description: "Retrieve stored posts, newest first, with optional filtering.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {"type": "number", "description": "Maximum number of posts to retrieve (default 10)"},
				"offset": {"type": "number", "description": "Number of posts to skip (default 0)"},
				"tag_filter": {"type": "string", "description": "Filter posts by tag"},
				"source_filter": {"type": "string", "description": "Filter posts by the source that fetched them"}
			}
		}`),
	}, s.handleReadPosts)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "get_post",
		Description: "Show one stored post by identity key, activity id, or URL.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"ref": {"type": "string", "description": "Identity key (id:..., url:..., fp:...), activity id, or URL", "minLength": 1}
			},
			"required": ["ref"]
		}`),
	}, s.handleGetPost)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "sync_status",
		Description: "Report the last sync run and the number of stored posts.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}, s.handleSyncStatus)
}

func (s *Server) handleSyncPosts(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		DryRun bool `json:"dry_run"`
	}
	if err := unmarshalArgs(req, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if s.runner == nil {
		return toolError("sync is not configured"), nil
	}

	run := s.runner.Run
	if args.DryRun {
		run = s.runner.Preview
	}
	res, err := run(ctx)
	if err != nil {
		s.logger.Error("sync tool failed", "error", err)
		return toolError("sync failed: %v", err), nil
	}

	var sb strings.Builder
	if res.DryRun {
		sb.WriteString("Dry run: nothing was written.\n")
	}
	fmt.Fprintf(&sb, "Run %s: %d new, %d enriched, %d duplicates, %d rejected, %d total\n",
		res.RunID, res.NewPosts, res.Enriched, res.Duplicates, res.Rejected, res.TotalPosts)
	for _, fe := range res.FetchErrors {
		fmt.Fprintf(&sb, "Source error: %s\n", fe)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&sb, "Warning: %s\n", w)
	}
	for _, p := range res.Added {
		fmt.Fprintf(&sb, "+ %s %s\n", merge.IdentityOf(p), storage.Title(p))
	}

	return textResult(sb.String()), nil
}

func (s *Server) handleReadPosts(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		Limit        int    `json:"limit"`
		Offset       int    `json:"offset"`
		TagFilter    string `json:"tag_filter"`
		SourceFilter string `json:"source_filter"`
	}
	if err := unmarshalArgs(req, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}

	posts, err := storage.ListPosts(ctx, s.store, storage.ListPostsOptions{
		Limit:        args.Limit,
		Offset:       args.Offset,
		TagFilter:    args.TagFilter,
		SourceFilter: args.SourceFilter,
	})
	if err != nil {
		return toolError("failed to list posts: %v", err), nil
	}

	if len(posts) == 0 {
		return textResult("No posts found."), nil
	}

	var sb strings.Builder
	for _, post := range posts {
		writePost(&sb, post)
	}
	return textResult(sb.String()), nil
}

func (s *Server) handleGetPost(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		Ref string `json:"ref"`
	}
	if err := unmarshalArgs(req, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if args.Ref == "" {
		return toolError("ref is required"), nil
	}

	posts, err := s.store.Load(ctx)
	if err != nil {
		return toolError("failed to load posts: %v", err), nil
	}
	post, ok := storage.FindPost(posts, args.Ref)
	if !ok {
		return toolError("post %s not found", args.Ref), nil
	}

	var sb strings.Builder
	writePost(&sb, post)
	if post.URL != "" {
		fmt.Fprintf(&sb, "URL: %s\n", post.URL)
	}
	fmt.Fprintf(&sb, "Engagement: %d likes, %d comments, %d shares\n",
		post.Engagement.Likes, post.Engagement.Comments, post.Engagement.Shares)
	return textResult(sb.String()), nil
}

func (s *Server) handleSyncStatus(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	posts, err := s.store.Load(ctx)
	if err != nil {
		return toolError("failed to load posts: %v", err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Stored posts: %d\n", len(posts))
	if len(posts) > 0 && posts[0].HasDate() {
		fmt.Fprintf(&sb, "Newest post: %s\n", posts[0].PublishedAt.Format("2006-01-02"))
	}

	if s.status == nil {
		return textResult(sb.String()), nil
	}
	l, err := s.status.Load()
	if err != nil {
		return toolError("failed to read sync log: %v", err), nil
	}
	if l.TotalSyncs == 0 {
		sb.WriteString("No sync has run yet.\n")
		return textResult(sb.String()), nil
	}
	fmt.Fprintf(&sb, "Last sync: %s (run %s)\n", l.LastSync.Format("2006-01-02 15:04:05"), l.LastRunID)
	fmt.Fprintf(&sb, "Total syncs: %d\n", l.TotalSyncs)
	fmt.Fprintf(&sb, "New posts last sync: %d\n", l.NewPostsThisSync)
	if l.LastError != "" {
		fmt.Fprintf(&sb, "Last error: %s\n", l.LastError)
	}
	return textResult(sb.String()), nil
}

func writePost(sb *strings.Builder, post models.Post) {
	date := "unknown date"
	if post.HasDate() {
		date = post.PublishedAt.Format("2006-01-02")
	}
	fmt.Fprintf(sb, "---\n%s [%s]", merge.IdentityOf(post), date)
	if len(post.Tags) > 0 {
		fmt.Fprintf(sb, " #%s", strings.Join(post.Tags, " #"))
	}
	if post.Source != "" {
		fmt.Fprintf(sb, " via %s", post.Source)
	}
	fmt.Fprintf(sb, "\n%s\n", post.Content)
}

// unmarshalArgs decodes tool arguments; absent arguments leave args untouched.
func unmarshalArgs(req *gomcp.CallToolRequest, args any) error {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	return json.Unmarshal(req.Params.Arguments, args)
}

func textResult(text string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}
