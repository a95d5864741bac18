// Package daemon runs the indexing service as a long-lived process and
// exposes it over a Unix socket, so CLI commands can pause, resume, commit,
// enqueue and search without opening the index themselves.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds configuration for the daemon.
type Config struct {
	// SocketPath is the Unix domain socket for control requests.
	SocketPath string

	// PIDPath records the daemon's process id. A sibling .lock file guards it.
	PIDPath string

	// Timeout bounds one client request.
	Timeout time.Duration

	// ShutdownGracePeriod bounds how long in-flight connections may finish on shutdown.
	ShutdownGracePeriod time.Duration

	// MaintenanceInterval schedules the participant purge. Zero disables it.
	MaintenanceInterval time.Duration

	// MetricsAddr serves /metrics when non-empty.
	MetricsAddr string
}

// DefaultConfig places the socket and PID file in dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		SocketPath:          filepath.Join(dataDir, "ftsindex.sock"),
		PIDPath:             filepath.Join(dataDir, "ftsindex.pid"),
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
		MaintenanceInterval: 24 * time.Hour,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	if c.MaintenanceInterval < 0 {
		return fmt.Errorf("maintenance interval cannot be negative")
	}
	return nil
}

// EnsureDir creates the socket and PID directories.
func (c Config) EnsureDir() error {
	for _, dir := range []string{filepath.Dir(c.SocketPath), filepath.Dir(c.PIDPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create daemon directory: %w", err)
		}
	}
	return nil
}
