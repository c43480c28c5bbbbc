package fs

import (
	"path/filepath"
	"strings"

	"faultfs/internal/logging"
)

var (
	pathLogger = logging.GetLogger().WithPrefix("path")
)

// validName reports whether name can be used as a single directory entry.
// Names arrive from the kernel, but nothing stops a hand-crafted request
// from carrying a separator and stepping outside the target root.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsRune(name, filepath.Separator) && !strings.ContainsRune(name, 0)
}

// joinChild returns the real path of entry name inside parentPath.
func joinChild(parentPath, name string) (string, error) {
	if !validName(name) {
		pathLogger.Warn("Rejecting entry name %q under %q", name, parentPath)
		return "", ErrInvalidName
	}
	child := filepath.Join(parentPath, name)
	pathLogger.Trace("Joined child path: %q + %q -> %q", parentPath, name, child)
	return child, nil
}

// parentOf returns the real path of the directory containing path, never
// climbing above root.
func parentOf(root, path string) string {
	if path == root {
		return root
	}
	return filepath.Dir(path)
}
