package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CleanPath sanitizes a file path to prevent path traversal attacks
func CleanPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	// Clean the path (removes .., ., //)
	cleaned := filepath.Clean(path)

	// Detect path traversal attempts
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("path traversal detected: %s", path)
	}

	return cleaned, nil
}

// ValidateBackupPath ensures backup path is safe
func ValidateBackupPath(path string) (string, error) {
	cleaned, err := CleanPath(path)
	if err != nil {
		return "", err
	}

	// Convert to absolute path
	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// ValidateArtifactKey checks that a storage key carries one of the two
// extensions Pipeline.Restore knows how to replay: .gz (this tool's own
// gzip-wrapped pg_dump custom format) or .dump (an externally supplied,
// uncompressed custom-format dump, per spec's "accepted on read" clause).
// Unlike ValidateBackupPath, a storage key is never resolved to a
// filesystem path here — Backend.Reader owns that translation.
func ValidateArtifactKey(key string) error {
	ext := strings.ToLower(filepath.Ext(key))
	switch ext {
	case ".gz", ".dump":
		return nil
	default:
		return fmt.Errorf("invalid artifact extension: %s (must be .gz or .dump)", ext)
	}
}
