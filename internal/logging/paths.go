package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.eywa/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".eywa", "logs")
	}
	return filepath.Join(home, ".eywa", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "eywa.log")
}

// PathUnder returns the log file path inside the given data directory.
func PathUnder(dataDir string) string {
	return filepath.Join(dataDir, "logs", "eywa.log")
}
