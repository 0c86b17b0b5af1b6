package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/quickutil/toolstats/internal/json"
	"github.com/quickutil/toolstats/internal/util"
)

const (
	CredentialsFileName = "credentials.json"
	AdminKeyLength      = 16 // 32-char hex string
	CredentialsVersion  = 1
)

// Credentials stores the generated admin key on disk. There is no default
// key: if no key can be resolved the admin routes stay disabled.
type Credentials struct {
	AdminKey  string    `json:"admin-key"`
	CreatedAt time.Time `json:"created-at"`
	Version   int       `json:"version"`
}

var (
	credCache   *Credentials
	credCacheMu sync.RWMutex
)

// CredentialsFilePath returns $XDG_CONFIG_HOME/toolstats/credentials.json,
// falling back to ~/.config/toolstats/credentials.json.
func CredentialsFilePath() string {
	dir := util.ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, CredentialsFileName)
}

// GenerateAdminKey returns a new random hex key.
func GenerateAdminKey() (string, error) {
	b := make([]byte, AdminKeyLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// LoadCredentials resolves the admin key with priority: ENV > cache > file.
// Returns nil when no key is configured anywhere.
func LoadCredentials() (*Credentials, error) {
	if key := strings.TrimSpace(os.Getenv("ADMIN_KEY")); key != "" {
		return &Credentials{AdminKey: key, CreatedAt: time.Now(), Version: CredentialsVersion}, nil
	}

	credCacheMu.RLock()
	if credCache != nil {
		c := *credCache
		credCacheMu.RUnlock()
		return &c, nil
	}
	credCacheMu.RUnlock()

	path := CredentialsFilePath()
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	if creds.AdminKey == "" {
		return nil, nil
	}

	credCacheMu.Lock()
	credCache = &creds
	credCacheMu.Unlock()

	return &creds, nil
}

// SaveCredentials writes creds to the XDG credentials file with 0600 perms.
func SaveCredentials(creds *Credentials) error {
	path := CredentialsFilePath()
	if path == "" {
		return fmt.Errorf("cannot determine credentials path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if creds.Version == 0 {
		creds.Version = CredentialsVersion
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}

	credCacheMu.Lock()
	credCache = creds
	credCacheMu.Unlock()

	return nil
}

// CreateCredentials generates and persists a new admin key, returning it.
func CreateCredentials() (string, error) {
	key, err := GenerateAdminKey()
	if err != nil {
		return "", err
	}
	creds := &Credentials{AdminKey: key, CreatedAt: time.Now(), Version: CredentialsVersion}
	if err := SaveCredentials(creds); err != nil {
		return "", err
	}
	return key, nil
}

// GetAdminKey returns the resolved admin key or empty when unset.
func GetAdminKey() string {
	creds, _ := LoadCredentials()
	if creds == nil {
		return ""
	}
	return creds.AdminKey
}

// InvalidateCredentialsCache drops the in-process cache. Used by tests and init.
func InvalidateCredentialsCache() {
	credCacheMu.Lock()
	credCache = nil
	credCacheMu.Unlock()
}
