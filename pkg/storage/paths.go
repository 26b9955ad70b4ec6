// Package storage persists per-account collections as single JSON documents
// with atomic replacement and a serialized writer queue per document.
package storage

import (
	"path/filepath"
	"strings"
)

// SanitizeAccountID maps an account identifier to a filesystem-safe path
// segment. Every rune outside [A-Za-z0-9._-] becomes an underscore; an empty
// result falls back to a single underscore so the path stays well formed.
func SanitizeAccountID(accountID string) string {
	var b strings.Builder
	for _, r := range accountID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// AccountsRoot returns the directory holding every account's namespace.
func AccountsRoot(dataDir string) string {
	return filepath.Join(dataDir, "accounts")
}

// AccountDir returns the storage directory for an account under the data
// directory.
func AccountDir(dataDir, accountID string) string {
	return filepath.Join(AccountsRoot(dataDir), SanitizeAccountID(accountID))
}

// MediaDir returns the directory holding an account's imported media files.
func MediaDir(dataDir, accountID string) string {
	return filepath.Join(AccountDir(dataDir, accountID), "media")
}
