package client

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/quickutil/toolstats/internal/util"
)

const sessionFileName = "session"

// defaultSessionPath is the durable session id location, the filesystem
// analogue of browser local storage.
func defaultSessionPath() string {
	dir := util.ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, sessionFileName)
}

// loadOrCreateSessionID returns the persisted session identifier,
// generating and saving a fresh UUID on first use. Deleting the file
// rotates the identity: the next call mints a new one.
func loadOrCreateSessionID(path string) (string, error) {
	if path == "" {
		// No resolvable home directory; a process-lifetime id still works.
		return uuid.NewString(), nil
	}

	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return id, err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return id, err
	}
	return id, nil
}
