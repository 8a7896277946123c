package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDir returns the default data directory.
// On Unix: ~/.cellgraph
// On Windows: %USERPROFILE%\.cellgraph
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cellgraph"), nil
}

// DefaultPath returns the default store file for backend inside dir.
func DefaultPath(dir string, backend Backend) string {
	switch backend {
	case BackendBolt:
		return filepath.Join(dir, "world.bolt")
	default:
		return filepath.Join(dir, "world.db")
	}
}
