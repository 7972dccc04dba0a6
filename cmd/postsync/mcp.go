// ABOUTME: MCP server command implementation for postsync.
// ABOUTME: Starts the MCP server in stdio mode for AI agent integration.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcppkg "github.com/2389-research/postsync/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server (stdio mode)",
	Long: `Start the Model Context Protocol server for AI agent integration.

The MCP server communicates via stdio, allowing AI agents to read synced
posts, check sync status, and trigger a sync.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := []mcppkg.ServerOption{
		mcppkg.WithStatus(globalSyncLog),
		mcppkg.WithLogger(globalLogger),
		mcppkg.WithVersion(version),
	}

	adapters, err := buildAdapters(ctx, globalConfig)
	if err != nil {
		return err
	}
	if len(adapters) > 0 {
		s, sinks := newSyncer(adapters)
		defer sinks.Close()
		opts = append(opts, mcppkg.WithRunner(s))
	}

	server, err := mcppkg.NewServer(globalStore, opts...)
	if err != nil {
		return err
	}

	return server.Serve(ctx)
}
