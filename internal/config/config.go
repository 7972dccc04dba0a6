// ABOUTME: Configuration management for postsync with YAML config loading.
// ABOUTME: Handles store, source, sink and notification settings, env secrets, and ~ expansion.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/postsync/internal/models"
)

// Store backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config stores postsync configuration loaded from ~/.config/postsync/config.yaml.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Blog    BlogConfig    `yaml:"blog"`
	Sources SourcesConfig `yaml:"sources"`
	GitHub  GitHubConfig  `yaml:"github"`
	Notify  NotifyConfig  `yaml:"notify"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig selects and tunes the post store.
type StoreConfig struct {
	Backend          string `yaml:"backend"`
	Path             string `yaml:"path"`
	MaxPosts         int    `yaml:"max_posts"`
	MinContentLength int    `yaml:"min_content_length"`
	SyncLogPath      string `yaml:"sync_log_path"`
}

// BlogConfig controls markdown article materialization.
type BlogConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir"`
	Source     string `yaml:"source"`
	Ext        string `yaml:"ext"`
	Layout     string `yaml:"layout"`
	SlugLength int    `yaml:"slug_length"`
}

// SourcesConfig holds per-adapter settings and shared fetch limits.
type SourcesConfig struct {
	RapidAPI   RapidAPIConfig `yaml:"rapidapi"`
	LinkedIn   LinkedInConfig `yaml:"linkedin"`
	File       string         `yaml:"file"`
	Timeout    Duration       `yaml:"timeout"`
	FetchCount int            `yaml:"fetch_count"`
}

// RapidAPIConfig holds RapidAPI scraper settings.
type RapidAPIConfig struct {
	APIKey  string  `yaml:"api_key"`
	BaseURL string  `yaml:"base_url"`
	Profile string  `yaml:"profile"`
	RPS     float64 `yaml:"rps"`
}

// LinkedInConfig holds official LinkedIn API credentials.
type LinkedInConfig struct {
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
	PersonURN    string `yaml:"person_urn"`
	BaseURL      string `yaml:"base_url"`
}

// GitHubConfig identifies the repository file the post list is published to.
type GitHubConfig struct {
	Token   string `yaml:"token"`
	Owner   string `yaml:"owner"`
	Repo    string `yaml:"repo"`
	Branch  string `yaml:"branch"`
	Path    string `yaml:"path"`
	BaseURL string `yaml:"base_url"`
}

// NotifyConfig holds NATS announcement settings.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// MetricsConfig holds the metrics listener address.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Duration is a time.Duration that reads and writes as a Go duration string.
type Duration time.Duration

// UnmarshalYAML accepts "45s" style strings or a bare number of seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	if parsed, err := time.ParseDuration(s); err == nil {
		*d = Duration(parsed)
		return nil
	}
	var secs int
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	if d == 0 {
		return "", nil
	}
	return time.Duration(d).String(), nil
}

// HasRapidAPI returns true if the RapidAPI source is configured.
func (c *Config) HasRapidAPI() bool {
	return c.Sources.RapidAPI.APIKey != "" && c.Sources.RapidAPI.Profile != ""
}

// HasLinkedIn returns true if the official LinkedIn source is configured.
func (c *Config) HasLinkedIn() bool {
	l := c.Sources.LinkedIn
	return l.PersonURN != "" && (l.AccessToken != "" || (l.RefreshToken != "" && l.ClientID != ""))
}

// HasGitHub returns true if publishing to GitHub is configured.
func (c *Config) HasGitHub() bool {
	return c.GitHub.Token != "" && c.GitHub.Owner != "" && c.GitHub.Repo != ""
}

// HasNotify returns true if NATS announcements are configured.
func (c *Config) HasNotify() bool {
	return c.Notify.NATSURL != ""
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() error {
	if c.Store.Backend == "" {
		c.Store.Backend = BackendJSON
	}
	if c.Store.MaxPosts <= 0 {
		c.Store.MaxPosts = models.DefaultMaxPosts
	}
	if c.Store.MinContentLength <= 0 {
		c.Store.MinContentLength = models.DefaultMinContentLength
	}
	if c.Sources.Timeout <= 0 {
		c.Sources.Timeout = Duration(60 * time.Second)
	}
	if c.Sources.FetchCount <= 0 {
		c.Sources.FetchCount = c.Store.MaxPosts
	}
	if c.Blog.Source == "" {
		c.Blog.Source = "linkedin"
	}
	if c.Blog.Ext == "" {
		c.Blog.Ext = "md"
	}
	if c.Blog.SlugLength <= 0 {
		c.Blog.SlugLength = 50
	}
	if c.GitHub.Branch == "" {
		c.GitHub.Branch = "main"
	}

	dataDir, err := DataDir()
	if err != nil {
		return err
	}
	if c.Store.Path == "" {
		name := "linkedin-posts.json"
		if c.Store.Backend == BackendSQLite {
			name = "linkedin-posts.db"
		}
		c.Store.Path = filepath.Join(dataDir, name)
	}
	if c.Store.SyncLogPath == "" {
		c.Store.SyncLogPath = filepath.Join(dataDir, "sync-log.json")
	}
	if c.Blog.Dir == "" {
		c.Blog.Dir = filepath.Join(dataDir, "_posts")
	}
	return nil
}

// ResolveEnv fills empty secrets and addresses from the environment.
func (c *Config) ResolveEnv() {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&c.Sources.RapidAPI.APIKey, "RAPIDAPI_KEY")
	fill(&c.Sources.LinkedIn.AccessToken, "LINKEDIN_ACCESS_TOKEN")
	fill(&c.Sources.LinkedIn.ClientSecret, "LINKEDIN_CLIENT_SECRET")
	fill(&c.GitHub.Token, "GITHUB_TOKEN")
	fill(&c.Notify.NATSURL, "NATS_URL")
	fill(&c.Metrics.Addr, "METRICS_ADDR")
}

// Validate checks values that defaults cannot fix.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("unknown store backend %q (want %s or %s)", c.Store.Backend, BackendJSON, BackendSQLite)
	}
	if c.Sources.RapidAPI.RPS < 0 {
		return fmt.Errorf("sources.rapidapi.rps must not be negative")
	}
	return nil
}

// expandPaths expands ~ in every path setting.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Store.Path, &c.Store.SyncLogPath, &c.Blog.Dir, &c.Sources.File} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// DataDir returns the default data directory.
func DataDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "postsync"), nil
}

// GetConfigPath returns the config file path.
func GetConfigPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "postsync", "config.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// Load reads config from the default path.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadRaw reads the file as written, without defaults or env secrets. Used when the
// config is edited and saved back. A missing file yields an empty config.
func LoadRaw(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadFrom reads config from path, applies defaults and env secrets, and validates it.
// A missing file yields the default config.
func LoadFrom(path string) (*Config, error) {
	cfg, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	cfg.ResolveEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the default path.
func (c *Config) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes config to path with owner-only permissions.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
