package fs

import (
	"errors"
	"os"
	"syscall"

	"faultfs/internal/logging"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// DirEntry is one line of a directory listing.
type DirEntry struct {
	Inode uint64
	Name  string
	Type  FileType
}

// Lookup returns the attributes of entry name inside directory parent.
func (f *FaultFS) Lookup(parent uint64, name string) (Attributes, error) {
	dirLogger.Debug("Looking up %q in inode %d", name, parent)
	path, err := f.resolveChild(OpLookup, parent, name)
	if err != nil {
		return Attributes{}, err
	}
	return f.attributes(OpLookup, path)
}

// Mkdir creates directory name inside parent, then sets its mode
// explicitly so the process umask does not apply. A failing chmod leaves
// the directory in place.
func (f *FaultFS) Mkdir(parent uint64, name string, mode os.FileMode) (Attributes, error) {
	path, err := f.resolveChild(OpMkdir, parent, name)
	if err != nil {
		return Attributes{}, err
	}

	dirLogger.Info("Creating directory %q with mode %v", path, mode)
	if err := os.Mkdir(path, mode); err != nil {
		return Attributes{}, newError(OpMkdir, path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		dirLogger.Warn("Directory %q created but chmod failed: %v", path, err)
		return Attributes{}, newError(OpMkdir, path, err)
	}
	return f.attributes(OpMkdir, path)
}

// Rmdir removes the empty directory name inside parent.
func (f *FaultFS) Rmdir(parent uint64, name string) error {
	path, err := f.resolveChild(OpRmdir, parent, name)
	if err != nil {
		return err
	}

	dirLogger.Info("Removing directory %q", path)
	if err := rmdir(path); err != nil {
		return newErrorKind(OpRmdir, path, rmdirKind(err), err)
	}
	return nil
}

// rmdirKind maps rmdir failures onto the kinds rmdir is allowed to report.
func rmdirKind(err error) Kind {
	switch {
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return KindPermissionDenied
	case errors.Is(err, syscall.ENOTEMPTY), errors.Is(err, syscall.EEXIST):
		return KindNotEmpty
	case errors.Is(err, syscall.ENOENT):
		return KindNotFound
	default:
		return KindUnsupported
	}
}

// Unlink removes the non-directory entry name inside parent. Every removal
// failure is reported as not found.
func (f *FaultFS) Unlink(parent uint64, name string) error {
	path, err := f.resolveChild(OpUnlink, parent, name)
	if err != nil {
		return err
	}

	dirLogger.Info("Removing file %q", path)
	if err := unlink(path); err != nil {
		return newErrorKind(OpUnlink, path, KindNotFound, err)
	}
	return nil
}

// Mknod creates a node of the given raw mode (type and permission bits)
// and device number. Nodes of an unsupported type are created but the call
// fails, as their attributes cannot be reported.
func (f *FaultFS) Mknod(parent uint64, name string, mode uint32, dev uint32) (Attributes, error) {
	path, err := f.resolveChild(OpMknod, parent, name)
	if err != nil {
		return Attributes{}, err
	}

	dirLogger.Info("Creating node %q with mode %#o dev %d", path, mode, dev)
	if err := mknod(path, mode, dev); err != nil {
		return Attributes{}, newError(OpMknod, path, err)
	}
	return f.attributes(OpMknod, path)
}

// Rename moves name in parent to newName in newParent with a single
// rename(2).
func (f *FaultFS) Rename(parent uint64, name string, newParent uint64, newName string) error {
	oldPath, err := f.resolveChild(OpRename, parent, name)
	if err != nil {
		return err
	}
	newPath, err := f.resolveChild(OpRename, newParent, newName)
	if err != nil {
		return err
	}

	dirLogger.Info("Renaming %q to %q", oldPath, newPath)
	if err := os.Rename(oldPath, newPath); err != nil {
		return newError(OpRename, oldPath, err)
	}
	return nil
}

// Symlink creates entry name in parent pointing at target and returns the
// link's attributes.
func (f *FaultFS) Symlink(parent uint64, name string, target string) (Attributes, error) {
	path, err := f.resolveChild(OpSymlink, parent, name)
	if err != nil {
		return Attributes{}, err
	}

	dirLogger.Info("Creating symlink %q -> %q", path, target)
	if err := os.Symlink(target, path); err != nil {
		return Attributes{}, newError(OpSymlink, path, err)
	}
	return f.attributes(OpSymlink, path)
}

// Link creates a hard link newName in newParent to the object ino.
func (f *FaultFS) Link(ino uint64, newParent uint64, newName string) (Attributes, error) {
	source, err := f.resolve(OpLink, ino)
	if err != nil {
		return Attributes{}, err
	}
	path, err := f.resolveChild(OpLink, newParent, newName)
	if err != nil {
		return Attributes{}, err
	}

	dirLogger.Info("Linking %q to %q", path, source)
	if err := os.Link(source, path); err != nil {
		return Attributes{}, newError(OpLink, path, err)
	}
	return f.attributes(OpLink, path)
}

// ReadDir lists directory ino starting at entry index offset. The listing
// is ".", "..", then the children in name order. A child of an
// unsupported type fails the whole listing.
func (f *FaultFS) ReadDir(ino uint64, offset int64) ([]DirEntry, error) {
	path, err := f.resolve(OpReadDir, ino)
	if err != nil {
		return nil, err
	}

	children, err := os.ReadDir(path)
	if err != nil {
		return nil, newError(OpReadDir, path, err)
	}

	parentIno, err := f.inodeOf(parentOf(f.resolver.Root(), path))
	if err != nil {
		return nil, newError(OpReadDir, path, err)
	}

	entries := make([]DirEntry, 0, len(children)+2)
	entries = append(entries,
		DirEntry{Inode: ino, Name: ".", Type: TypeDirectory},
		DirEntry{Inode: parentIno, Name: "..", Type: TypeDirectory},
	)

	for _, child := range children {
		childPath, err := joinChild(path, child.Name())
		if err != nil {
			return nil, newError(OpReadDir, path, err)
		}
		attr, err := AttributesOf(childPath)
		if err != nil {
			dirLogger.Warn("Cannot list %q: %v", childPath, err)
			return nil, newError(OpReadDir, childPath, err)
		}
		entries = append(entries, DirEntry{
			Inode: attr.Inode,
			Name:  child.Name(),
			Type:  attr.Type,
		})
	}

	dirLogger.Debug("Directory %q contains %d entries", path, len(entries))
	if offset <= 0 {
		return entries, nil
	}
	if offset >= int64(len(entries)) {
		return nil, nil
	}
	return entries[offset:], nil
}
