// Package env provides helpers for reading environment variables with
// fallback keys and basic type conversion.
package env

import (
	"os"
	"strconv"
	"strings"
)

// LookupEnv returns the first non-empty trimmed value among the given keys.
func LookupEnv(keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed, true
			}
		}
	}
	return "", false
}

// LookupEnvInt parses the first matching variable as an integer.
func LookupEnvInt(keys ...string) (int, bool) {
	value, ok := LookupEnv(keys...)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}

// LookupEnvBool interprets the first matching variable as a boolean.
// "true", "1" and "yes" (case-insensitive) are true.
func LookupEnvBool(keys ...string) (bool, bool) {
	value, ok := LookupEnv(keys...)
	if !ok {
		return false, false
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true, true
	default:
		return false, true
	}
}
