package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the default data directory based on the host OS.
// It prefers standard locations when available and falls back to a dotdir
// in the user's home directory.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "logmux")
	}

	// macOS: ~/Library/Application Support/logmux
	if isDir(filepath.Join(homeDir, "Library")) {
		return filepath.Join(homeDir, "Library", "Application Support", "logmux")
	}

	// Windows: %USERPROFILE%/AppData/Local/logmux
	if isDir(filepath.Join(homeDir, "AppData")) {
		return filepath.Join(homeDir, "AppData", "Local", "logmux")
	}

	return filepath.Join(homeDir, ".logmux")
}

// ContainerPath returns the default on-disk location of the named container.
func (c Config) ContainerPath(name string) string {
	return filepath.Join(c.DataDir, "containers", name)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
