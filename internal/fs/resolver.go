package fs

import (
	"os"
	"path/filepath"

	"faultfs/internal/logging"
)

// RootInode is the inode number the kernel uses for the mount root. It
// always denotes the target root, whatever the real inode of that
// directory is.
const RootInode uint64 = 1

var (
	resolveLogger = logging.GetLogger().WithPrefix("resolve")
)

// Resolver maps inode numbers back to real paths under the target root.
//
// There is no table: every call walks the tree and compares inode numbers,
// so the cost grows with the size of the tree. Mutations of the tree while
// a walk is running give undefined matches.
type Resolver struct {
	root string
}

// NewResolver creates a Resolver for the given (absolute, clean) root.
func NewResolver(root string) *Resolver {
	return &Resolver{root: root}
}

// Root returns the target root path.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve returns the first path under the root whose inode is ino, in
// lexical walk order. Hardlinked objects resolve to whichever name sorts
// first. Unreadable subtrees are skipped.
func (r *Resolver) Resolve(ino uint64) (string, error) {
	if ino == RootInode {
		return r.root, nil
	}

	resolveLogger.Trace("Walking %q for inode %d", r.root, ino)
	var found string
	visited := 0
	err := filepath.Walk(r.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == r.root {
				return err
			}
			resolveLogger.Debug("Skipping %q during inode walk: %v", path, err)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// Skip the root itself
		if path == r.root {
			return nil
		}
		visited++

		if entryIno, ok := inodeOfInfo(info); ok && entryIno == ino {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		resolveLogger.Error("Failed to walk target root: %v", err)
		return "", err
	}

	if found == "" {
		resolveLogger.Debug("Inode %d not found after visiting %d entries", ino, visited)
		return "", os.ErrNotExist
	}

	resolveLogger.Trace("Resolved inode %d -> %q after %d entries", ino, found, visited)
	return found, nil
}
