package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// LogFileName is the active log file; rotated copies get a numeric suffix.
const LogFileName = "ftsindex.log"

// DefaultLogDir returns ~/.ftsindex/logs, falling back to the temp directory.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ftsindex", "logs")
	}
	return filepath.Join(home, ".ftsindex", "logs")
}

// LogPath returns the log file for a project data directory, or the
// per-user log file when dataDir is empty.
func LogPath(dataDir string) string {
	if dataDir == "" {
		return filepath.Join(DefaultLogDir(), LogFileName)
	}
	return filepath.Join(dataDir, "logs", LogFileName)
}

// FindLogFile returns the first existing log among explicit, the project log
// and the per-user log.
func FindLogFile(explicit, dataDir string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return explicit, nil
	}

	var checked []string
	for _, p := range []string{LogPath(dataDir), LogPath("")} {
		if dataDir == "" && len(checked) > 0 {
			break
		}
		checked = append(checked, p)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no log file found, checked %v\nstart the daemon with: ftsindex serve", checked)
}
