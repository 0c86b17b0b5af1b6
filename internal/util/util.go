// Package util provides small filesystem and path helpers shared across
// the server and the embedded analytics client.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath normalizes a configuration path for consistent reuse.
// It handles:
//   - "$XDG_CONFIG_HOME/..." -> expands XDG_CONFIG_HOME (falling back to ~/.config)
//   - "~..." -> expands to the user's home directory
//   - anything else -> cleaned as-is
func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "$XDG_CONFIG_HOME") {
		xdg := os.Getenv("XDG_CONFIG_HOME")
		if xdg == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolve path: %w", err)
			}
			xdg = filepath.Join(home, ".config")
		}
		remainder := strings.TrimLeft(strings.TrimPrefix(path, "$XDG_CONFIG_HOME"), "/\\")
		if remainder == "" {
			return filepath.Clean(xdg), nil
		}
		return filepath.Clean(filepath.Join(xdg, filepath.FromSlash(remainder))), nil
	}

	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve path: %w", err)
		}
		remainder := strings.TrimLeft(strings.TrimPrefix(path, "~"), "/\\")
		if remainder == "" {
			return filepath.Clean(home), nil
		}
		return filepath.Clean(filepath.Join(home, filepath.FromSlash(remainder))), nil
	}

	return filepath.Clean(path), nil
}

// ConfigDir returns the toolstats configuration directory following the
// XDG Base Directory spec: $XDG_CONFIG_HOME/toolstats or ~/.config/toolstats.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "toolstats")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "toolstats")
	}
	return ""
}

// FileExists reports whether path exists and is stat-able.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
