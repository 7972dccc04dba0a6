// ABOUTME: MCP server initialization and configuration for postsync.
// ABOUTME: Exposes sync, post reading, and sync status tools for AI agent access.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389-research/postsync/internal/models"
	"github.com/2389-research/postsync/internal/storage"
	"github.com/2389-research/postsync/internal/syncer"
)

// Runner performs sync passes.
type Runner interface {
	Run(ctx context.Context) (syncer.Result, error)
	Preview(ctx context.Context) (syncer.Result, error)
}

// StatusSource reads the sync audit summary.
type StatusSource interface {
	Load() (models.SyncLog, error)
}

// Server wraps the MCP server with the post store and sync runner.
type Server struct {
	mcp     *gomcp.Server
	store   storage.PostStore
	runner  Runner
	status  StatusSource
	logger  *slog.Logger
	version string
}

// ServerOption configures optional Server dependencies.
type ServerOption func(*Server)

// WithRunner enables the sync_posts tool.
func WithRunner(r Runner) ServerOption {
	return func(s *Server) {
		s.runner = r
	}
}

// WithStatus enables sync log details in sync_status.
func WithStatus(st StatusSource) ServerOption {
	return func(s *Server) {
		s.status = st
	}
}

// WithLogger sets the logger for tool calls.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVersion sets the version reported to clients.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		if v != "" {
			s.version = v
		}
	}
}

// NewServer creates an MCP server backed by the post store.
func NewServer(store storage.PostStore, opts ...ServerOption) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("post store is required")
	}

	s := &Server{
		store:   store,
		logger:  slog.Default(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = gomcp.NewServer(
		&gomcp.Implementation{
			Name:    "postsync",
			Version: s.version,
		},
		nil,
	)

	s.registerPostTools()

	return s, nil
}

// Serve starts the MCP server in stdio mode.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcp.Run(ctx, &gomcp.StdioTransport{})
}
