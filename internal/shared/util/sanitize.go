package util

import (
	"errors"
	"strings"
)

// DefaultFileName is used when an upload carries no usable file name.
const DefaultFileName = "photo"

// SanitizeFileName removes path separators and rejects traversal patterns.
// Browsers may send blank names for pasted images, so those fall back to DefaultFileName.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errors.New("invalid file name")
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" {
		return DefaultFileName, nil
	}
	return s, nil
}
