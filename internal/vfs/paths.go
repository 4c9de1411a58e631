package vfs

import (
	"path/filepath"
	"strings"
)

// SafeJoin resolves a virtual path against root and returns the
// canonical absolute path, or ErrAccessDenied if the result would lie
// outside root. Leading separators are stripped so absolute inputs
// cannot override the root, and ".." sequences are normalized away
// before the containment check.
func SafeJoin(root, rel string) (string, error) {
	rel = strings.ReplaceAll(rel, "\\", "/")
	rel = strings.TrimLeft(rel, "/")

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", ErrAccessDenied
	}
	if rel == "" {
		return absRoot, nil
	}

	abs := filepath.Clean(filepath.Join(absRoot, filepath.FromSlash(rel)))
	if abs != absRoot && !strings.HasPrefix(abs, absRoot+string(filepath.Separator)) {
		return "", ErrAccessDenied
	}
	return abs, nil
}

// SplitArchivePath scans the segments of a virtual path and splits it
// at the first segment whose name ends with an archive extension
// (case-insensitive). It returns the archive-relative path, the path
// inside the archive (empty when the virtual path addresses the
// archive root), and whether a boundary was found. Only the first
// boundary is honored; archives nested inside archives are not
// traversable.
func SplitArchivePath(rel string) (archive, internal string, ok bool) {
	rel = strings.TrimLeft(strings.ReplaceAll(rel, "\\", "/"), "/")
	if rel == "" {
		return "", "", false
	}
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		if strings.HasSuffix(strings.ToLower(part), ".zip") {
			return strings.Join(parts[:i+1], "/"), strings.Join(parts[i+1:], "/"), true
		}
	}
	return rel, "", false
}
