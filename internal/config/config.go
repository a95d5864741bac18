// Package config loads ftsindex settings from defaults, the user config,
// the project's .ftsindex.yaml and FTSINDEX_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
	"github.com/Aman-CERP/ftsindex/internal/index"
)

// DataDirName is the per-project directory holding the index, database and socket.
const DataDirName = ".ftsindex"

// Config is the complete ftsindex configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Paths    PathsConfig    `yaml:"paths" json:"paths"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Crawler  CrawlerConfig  `yaml:"crawler" json:"crawler"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Server   ServerConfig   `yaml:"server" json:"server"`
}

// PathsConfig configures which paths the crawler skips.
type PathsConfig struct {
	// Exclude holds gitignore-style patterns; project patterns are appended to the defaults.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// PipelineConfig tunes the indexing service. Durations use time.ParseDuration syntax.
type PipelineConfig struct {
	PreprocessWorkers  int    `yaml:"preprocess_workers" json:"preprocess_workers"`
	IndexWorkers       int    `yaml:"index_workers" json:"index_workers"`
	IndexQueueCapacity int    `yaml:"index_queue_capacity" json:"index_queue_capacity"`
	BusyThreshold      int    `yaml:"busy_threshold" json:"busy_threshold"`
	CommitThreshold    int    `yaml:"commit_threshold" json:"commit_threshold"`
	CommitInterval     string `yaml:"commit_interval" json:"commit_interval"`
	RunPollTimeout     string `yaml:"run_poll_timeout" json:"run_poll_timeout"`
	ItemPollTimeout    string `yaml:"item_poll_timeout" json:"item_poll_timeout"`
	ShutdownTimeout    string `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	ItemQueueHighWater int    `yaml:"item_queue_high_water" json:"item_queue_high_water"`
	SequenceCacheSize  int    `yaml:"sequence_cache_size" json:"sequence_cache_size"`
}

// CrawlerConfig configures file discovery.
type CrawlerConfig struct {
	WatchDebounce  string `yaml:"watch_debounce" json:"watch_debounce"`
	RescanInterval string `yaml:"rescan_interval" json:"rescan_interval"`
	// MaxFileSize is the largest file read for indexing, in bytes.
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`
}

// StoreConfig configures on-disk state.
type StoreConfig struct {
	// DataDir is relative to the project root unless absolute.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// ParticipantRetention is how long unseen participant rows are kept.
	ParticipantRetention string `yaml:"participant_retention" json:"participant_retention"`
	// SQLiteCacheMB is the sqlite page cache size.
	SQLiteCacheMB int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	// SocketPath defaults to <data dir>/ftsindex.sock.
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	// MetricsAddr enables the Prometheus endpoint when set, e.g. "127.0.0.1:9464".
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	LogLevel    string `yaml:"log_level" json:"log_level"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/go.sum",
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	p := index.DefaultConfig()
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Exclude: append([]string(nil), defaultExcludePatterns...),
		},
		Pipeline: PipelineConfig{
			PreprocessWorkers:  p.PreprocessWorkers,
			IndexWorkers:       p.IndexWorkers,
			IndexQueueCapacity: p.IndexQueueCapacity,
			BusyThreshold:      p.BusyThreshold,
			CommitThreshold:    p.CommitThreshold,
			CommitInterval:     p.CommitInterval.String(),
			RunPollTimeout:     p.RunPollTimeout.String(),
			ItemPollTimeout:    p.ItemPollTimeout.String(),
			ShutdownTimeout:    p.ShutdownTimeout.String(),
			ItemQueueHighWater: p.ItemQueueHighWater,
			SequenceCacheSize:  p.SequenceCacheSize,
		},
		Crawler: CrawlerConfig{
			WatchDebounce:  "200ms",
			RescanInterval: "30s",
			MaxFileSize:    1 << 20,
		},
		Store: StoreConfig{
			DataDir:              DataDirName,
			ParticipantRetention: "168h",
			SQLiteCacheMB:        64,
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
	}
}

// GetUserConfigPath returns the user configuration file:
// $XDG_CONFIG_HOME/ftsindex/config.yaml, or ~/.config/ftsindex/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ftsindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ftsindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "ftsindex", "config.yaml")
}

// Load builds the configuration for the project in dir, in increasing precedence:
//  1. Defaults
//  2. User config
//  3. Project config (.ftsindex.yaml or .ftsindex.yml)
//  4. FTSINDEX_* environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectConfigPath returns the project config file in dir, preferring .yaml over .yml.
// ok is false when neither exists.
func ProjectConfigPath(dir string) (path string, ok bool) {
	for _, name := range []string{".ftsindex.yaml", ".ftsindex.yml"} {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p, true
		}
	}
	return filepath.Join(dir, ".ftsindex.yaml"), false
}

func (c *Config) loadFromFile(dir string) error {
	if path, ok := ProjectConfigPath(dir); ok {
		return c.loadYAML(path)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fterrors.ConfigError("failed to read config file", err).WithDetail("path", path)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fterrors.ConfigError("failed to parse config file", err).WithDetail("path", path)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies the non-zero values of other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	p, o := &c.Pipeline, other.Pipeline
	mergeInt(&p.PreprocessWorkers, o.PreprocessWorkers)
	mergeInt(&p.IndexWorkers, o.IndexWorkers)
	mergeInt(&p.IndexQueueCapacity, o.IndexQueueCapacity)
	mergeInt(&p.BusyThreshold, o.BusyThreshold)
	mergeInt(&p.CommitThreshold, o.CommitThreshold)
	mergeString(&p.CommitInterval, o.CommitInterval)
	mergeString(&p.RunPollTimeout, o.RunPollTimeout)
	mergeString(&p.ItemPollTimeout, o.ItemPollTimeout)
	mergeString(&p.ShutdownTimeout, o.ShutdownTimeout)
	mergeInt(&p.ItemQueueHighWater, o.ItemQueueHighWater)
	mergeInt(&p.SequenceCacheSize, o.SequenceCacheSize)

	mergeString(&c.Crawler.WatchDebounce, other.Crawler.WatchDebounce)
	mergeString(&c.Crawler.RescanInterval, other.Crawler.RescanInterval)
	if other.Crawler.MaxFileSize != 0 {
		c.Crawler.MaxFileSize = other.Crawler.MaxFileSize
	}

	mergeString(&c.Store.DataDir, other.Store.DataDir)
	mergeString(&c.Store.ParticipantRetention, other.Store.ParticipantRetention)
	mergeInt(&c.Store.SQLiteCacheMB, other.Store.SQLiteCacheMB)

	mergeString(&c.Server.SocketPath, other.Server.SocketPath)
	mergeString(&c.Server.MetricsAddr, other.Server.MetricsAddr)
	mergeString(&c.Server.LogLevel, other.Server.LogLevel)
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// applyEnvOverrides applies FTSINDEX_* environment variables. Unparseable
// numbers are ignored.
func (c *Config) applyEnvOverrides() {
	envInt("FTSINDEX_PREPROCESS_WORKERS", &c.Pipeline.PreprocessWorkers)
	envInt("FTSINDEX_INDEX_WORKERS", &c.Pipeline.IndexWorkers)
	envInt("FTSINDEX_COMMIT_THRESHOLD", &c.Pipeline.CommitThreshold)
	envInt("FTSINDEX_BUSY_THRESHOLD", &c.Pipeline.BusyThreshold)
	envString("FTSINDEX_COMMIT_INTERVAL", &c.Pipeline.CommitInterval)
	envString("FTSINDEX_SHUTDOWN_TIMEOUT", &c.Pipeline.ShutdownTimeout)
	envString("FTSINDEX_DATA_DIR", &c.Store.DataDir)
	envString("FTSINDEX_SOCKET", &c.Server.SocketPath)
	envString("FTSINDEX_METRICS_ADDR", &c.Server.MetricsAddr)
	envString("FTSINDEX_LOG_LEVEL", &c.Server.LogLevel)
	if v := os.Getenv("FTSINDEX_EXCLUDE"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Paths.Exclude = append(c.Paths.Exclude, p)
			}
		}
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// Validate checks ranges and that every duration parses.
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.PreprocessWorkers < 0 {
		return invalid("pipeline.preprocess_workers must be non-negative, got %d", p.PreprocessWorkers)
	}
	for name, v := range map[string]int{
		"pipeline.index_workers":         p.IndexWorkers,
		"pipeline.index_queue_capacity":  p.IndexQueueCapacity,
		"pipeline.busy_threshold":        p.BusyThreshold,
		"pipeline.commit_threshold":      p.CommitThreshold,
		"pipeline.item_queue_high_water": p.ItemQueueHighWater,
		"pipeline.sequence_cache_size":   p.SequenceCacheSize,
	} {
		if v <= 0 {
			return invalid("%s must be positive, got %d", name, v)
		}
	}
	for name, v := range map[string]string{
		"pipeline.commit_interval":    p.CommitInterval,
		"pipeline.run_poll_timeout":   p.RunPollTimeout,
		"pipeline.item_poll_timeout":  p.ItemPollTimeout,
		"pipeline.shutdown_timeout":   p.ShutdownTimeout,
		"crawler.watch_debounce":      c.Crawler.WatchDebounce,
		"crawler.rescan_interval":     c.Crawler.RescanInterval,
		"store.participant_retention": c.Store.ParticipantRetention,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return invalid("%s must be a duration like \"2s\", got %q", name, v)
		}
		if d <= 0 {
			return invalid("%s must be positive, got %s", name, v)
		}
	}
	if c.Crawler.MaxFileSize <= 0 {
		return invalid("crawler.max_file_size must be positive, got %d", c.Crawler.MaxFileSize)
	}
	if c.Store.DataDir == "" {
		return invalid("store.data_dir must not be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return invalid("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fterrors.New(fterrors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...), nil)
}

// IndexConfig converts the pipeline section for index.NewService. Call after Validate.
func (c *Config) IndexConfig() index.Config {
	p := c.Pipeline
	return index.Config{
		PreprocessWorkers:  p.PreprocessWorkers,
		IndexWorkers:       p.IndexWorkers,
		IndexQueueCapacity: p.IndexQueueCapacity,
		BusyThreshold:      p.BusyThreshold,
		CommitThreshold:    p.CommitThreshold,
		CommitInterval:     mustDuration(p.CommitInterval),
		RunPollTimeout:     mustDuration(p.RunPollTimeout),
		ItemPollTimeout:    mustDuration(p.ItemPollTimeout),
		ShutdownTimeout:    mustDuration(p.ShutdownTimeout),
		ItemQueueHighWater: p.ItemQueueHighWater,
		SequenceCacheSize:  p.SequenceCacheSize,
	}
}

// WatchDebounce returns the crawler debounce window.
func (c *Config) WatchDebounce() time.Duration { return mustDuration(c.Crawler.WatchDebounce) }

// RescanInterval returns the crawler fallback rescan interval.
func (c *Config) RescanInterval() time.Duration { return mustDuration(c.Crawler.RescanInterval) }

// ParticipantRetention returns how long unseen participants are kept.
func (c *Config) ParticipantRetention() time.Duration {
	return mustDuration(c.Store.ParticipantRetention)
}

// mustDuration returns zero for unparseable input; Validate rejects it first.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// DataPath resolves the data directory for the project at root.
func (c *Config) DataPath(root string) string {
	if filepath.IsAbs(c.Store.DataDir) {
		return c.Store.DataDir
	}
	return filepath.Join(root, c.Store.DataDir)
}

// SocketPath resolves the control socket for the project at root.
func (c *Config) SocketPath(root string) string {
	if c.Server.SocketPath != "" {
		return c.Server.SocketPath
	}
	return filepath.Join(c.DataPath(root), "ftsindex.sock")
}

// IndexPath resolves the search index directory for the project at root.
func (c *Config) IndexPath(root string) string {
	return filepath.Join(c.DataPath(root), "index")
}

// DatabasePath resolves the side-table database for the project at root.
func (c *Config) DatabasePath(root string) string {
	return filepath.Join(c.DataPath(root), "ftsindex.db")
}

// WriteYAML writes the configuration to path, backing up any existing file first.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if _, err := BackupFile(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fterrors.ConfigError("failed to write config file", err).WithDetail("path", path)
	}
	return nil
}

// FindProjectRoot walks up from startDir to the nearest directory holding
// .git or a project config. It returns startDir itself when none is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	dir := absDir
	for {
		if dirExists(filepath.Join(dir, ".git")) {
			return dir, nil
		}
		if _, ok := ProjectConfigPath(dir); ok {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return absDir, nil
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
