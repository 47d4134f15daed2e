package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const (
	// keys longer than this are replaced with their hash to keep
	// filenames within filesystem limits
	maxSafeKeyLength = 200
)

// MakeHash returns a hex-encoded sha256 hash of the given string
func MakeHash(str string) string {
	hash := sha256.Sum256([]byte(str))
	return hex.EncodeToString(hash[:])
}

// SanitizeKey converts a cache key into a string safe to use as a filename
func SanitizeKey(key string) string {
	if len(key) > maxSafeKeyLength {
		return MakeHash(key)
	}

	var sb strings.Builder
	sb.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '.', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

// JoinPath joins path elements
func JoinPath(dir string, elems ...string) string {
	all := append([]string{dir}, elems...)
	return filepath.Join(all...)
}
