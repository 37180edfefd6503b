package utils

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ZeroOr if value is zero value returns the defaultValue
func ZeroOr[T comparable](value, defaultValue T) T {
	var zero T
	if zero == value {
		return defaultValue
	}
	return value
}

// ExpandPath expands path "." or "~"
func ExpandPath(path string) (string, error) {
	// expand local directory
	if strings.HasPrefix(path, ".") {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(cwd, path[1:]), nil
	}
	// expand ~ as shortcut for home directory
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// HashKey returns the hex encoded BLAKE2b-256 digest of the parts,
// each part terminated by a NUL byte.
func HashKey(parts ...string) string {
	h, _ := blake2b.New256(nil)
	for _, part := range parts {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
