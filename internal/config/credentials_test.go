package config

import (
	"encoding/hex"
	"testing"
)

func TestGenerateAdminKey(t *testing.T) {
	key, err := GenerateAdminKey()
	if err != nil {
		t.Fatalf("GenerateAdminKey: %v", err)
	}
	if len(key) != AdminKeyLength*2 {
		t.Errorf("len = %d, want %d hex chars", len(key), AdminKeyLength*2)
	}
	if _, err := hex.DecodeString(key); err != nil {
		t.Errorf("key %q is not hex: %v", key, err)
	}

	other, err := GenerateAdminKey()
	if err != nil {
		t.Fatalf("GenerateAdminKey: %v", err)
	}
	if key == other {
		t.Error("two generated keys are identical")
	}
}

func TestCredentialsRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ADMIN_KEY", "")
	InvalidateCredentialsCache()
	t.Cleanup(InvalidateCredentialsCache)

	if got := GetAdminKey(); got != "" {
		t.Fatalf("GetAdminKey = %q before provisioning, want empty", got)
	}

	key, err := CreateCredentials()
	if err != nil {
		t.Fatalf("CreateCredentials: %v", err)
	}
	if got := GetAdminKey(); got != key {
		t.Errorf("GetAdminKey = %q, want created key %q", got, key)
	}

	// A fresh read after dropping the cache must hit the file.
	InvalidateCredentialsCache()
	if got := GetAdminKey(); got != key {
		t.Errorf("GetAdminKey after cache drop = %q, want %q", got, key)
	}
}

func TestAdminKeyEnvOverridesFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ADMIN_KEY", "")
	InvalidateCredentialsCache()
	t.Cleanup(InvalidateCredentialsCache)

	if _, err := CreateCredentials(); err != nil {
		t.Fatalf("CreateCredentials: %v", err)
	}

	t.Setenv("ADMIN_KEY", "env-wins")
	if got := GetAdminKey(); got != "env-wins" {
		t.Errorf("GetAdminKey = %q, want env override", got)
	}
}
