// ABOUTME: Root Cobra command and global flags for the postsync CLI.
// ABOUTME: Sets up lifecycle hooks for logging, config loading, and store initialization.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/2389-research/postsync/internal/config"
	"github.com/2389-research/postsync/internal/storage"
)

var version = "dev"

var globalConfig *config.Config
var globalLogger *slog.Logger
var globalStore storage.PostStore
var globalSyncLog *storage.SyncLogStore

// Global flags
var (
	flagConfigPath  string
	flagVerbose     bool
	flagLogJSON     bool
	flagMetricsAddr string
)

var rootCmd = &cobra.Command{
	Use:     "postsync",
	Short:   "Sync your LinkedIn posts into a local store and blog",
	Version: version,
	Long: `
██████╗  ██████╗ ███████╗████████╗███████╗██╗   ██╗███╗   ██╗ ██████╗
██╔══██╗██╔═══██╗██╔════╝╚══██╔══╝██╔════╝╚██╗ ██╔╝████╗  ██║██╔════╝
██████╔╝██║   ██║███████╗   ██║   ███████╗ ╚████╔╝ ██╔██╗ ██║██║
██╔═══╝ ██║   ██║╚════██║   ██║   ╚════██║  ╚██╔╝  ██║╚██╗██║██║
██║     ╚██████╔╝███████║   ██║   ███████║   ██║   ██║ ╚████║╚██████╗
╚═╝      ╚═════╝ ╚══════╝   ╚═╝   ╚══════╝   ╚═╝   ╚═╝  ╚═══╝ ╚═════╝

Pulls your LinkedIn posts from one or more sources, keeps a deduplicated
post store, and turns new posts into blog articles.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		globalLogger = newLogger(flagVerbose, flagLogJSON)
		slog.SetDefault(globalLogger)

		if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "setup" {
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if flagMetricsAddr != "" {
			cfg.Metrics.Addr = flagMetricsAddr
		}
		globalConfig = cfg

		store, err := openStore(cfg, globalLogger)
		if err != nil {
			return err
		}
		globalStore = store
		globalSyncLog = storage.NewSyncLogStore(cfg.Store.SyncLogPath, storage.WithLogger(globalLogger))

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if globalStore != nil {
			_ = globalStore.Close()
			globalStore = nil
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Config file (default $XDG_CONFIG_HOME/postsync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Log as JSON")
	rootCmd.PersistentFlags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func configPath() (string, error) {
	if flagConfigPath != "" {
		return config.ExpandPath(flagConfigPath)
	}
	return config.GetConfigPath()
}

func loadConfig() (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	return config.LoadFrom(path)
}

func newLogger(verbose, asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if asJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
