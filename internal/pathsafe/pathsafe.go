// Package pathsafe validates host-supplied relative paths before any
// file access under the meetings root (spec.md §6 Path safety).
package pathsafe

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrEscape is returned when a relative path is absolute, contains a
// parent-directory component, or canonicalizes outside root.
var ErrEscape = errors.New("pathsafe: path escapes meetings root")

// Resolve validates rel against root and returns the joined absolute
// path. rel must not be absolute, must contain no ".." components, and
// must remain under root after cleaning.
func Resolve(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", ErrEscape
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == ".." {
			return "", ErrEscape
		}
	}

	cleanRoot := filepath.Clean(root)
	joined := filepath.Join(cleanRoot, rel)

	relToRoot, err := filepath.Rel(cleanRoot, joined)
	if err != nil || relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(filepath.Separator)) {
		return "", ErrEscape
	}
	return joined, nil
}
