package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"faultfs/internal/logging"
)

var (
	fsLogger = logging.GetLogger().WithPrefix("faultfs")
)

// Options tunes a FaultFS instance. The zero value is usable.
type Options struct {
	// Coin decides which half of each write survives. Defaults to a
	// clock-seeded random coin.
	Coin Coin
	// Recorder is told about every injected fault. Optional.
	Recorder FaultRecorder
	// FaultLogPerSecond bounds debug log lines about injected faults.
	FaultLogPerSecond float64
}

// FaultFS is the passthrough engine. Requests address objects by inode;
// each operation resolves the inode to a real path under the target root,
// performs the native call and translates the result.
//
// Every write persists only half of its payload while reporting the full
// length as written.
type FaultFS struct {
	resolver *Resolver
	handles  *HandleTable
	faults   *FaultInjector
}

// New creates a FaultFS over targetRoot, which must be an existing
// directory. The path is cleaned and made absolute.
func New(targetRoot string, opts Options) (*FaultFS, error) {
	fsLogger.Info("Creating fault-injecting filesystem")

	root, err := filepath.Abs(targetRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target root %q: %w", targetRoot, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("target root not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("target root %q is not a directory", root)
	}
	fsLogger.Debug("Target root: %s", root)

	coin := opts.Coin
	if coin == nil {
		coin = NewRandomCoin(0)
	}

	return &FaultFS{
		resolver: NewResolver(root),
		handles:  NewHandleTable(),
		faults:   NewFaultInjector(coin, opts.Recorder, opts.FaultLogPerSecond),
	}, nil
}

// Root returns the absolute target root.
func (f *FaultFS) Root() string {
	return f.resolver.Root()
}

// OpenHandles returns the number of live file handles.
func (f *FaultFS) OpenHandles() int {
	return f.handles.Len()
}

// Close releases every handle still open, e.g. after the kernel went away
// without sending the matching releases.
func (f *FaultFS) Close() error {
	if n := f.handles.Len(); n > 0 {
		fsLogger.Warn("Closing %d file handles left open", n)
	}
	return f.handles.CloseAll()
}

// resolve maps ino to a real path, wrapping failures for op.
func (f *FaultFS) resolve(op string, ino uint64) (string, error) {
	path, err := f.resolver.Resolve(ino)
	if err != nil {
		return "", newError(op, "", fmt.Errorf("inode %d: %w", ino, err))
	}
	return path, nil
}

// resolveChild maps parent to a real path and joins name onto it.
func (f *FaultFS) resolveChild(op string, parent uint64, name string) (string, error) {
	parentPath, err := f.resolve(op, parent)
	if err != nil {
		return "", err
	}
	child, err := joinChild(parentPath, name)
	if err != nil {
		return "", newError(op, parentPath, err)
	}
	return child, nil
}

// attributes returns the attributes of path for op, reporting the root
// directory under RootInode.
func (f *FaultFS) attributes(op string, path string) (Attributes, error) {
	attr, err := AttributesOf(path)
	if err != nil {
		return Attributes{}, newError(op, path, err)
	}
	if path == f.resolver.Root() {
		attr.Inode = RootInode
	}
	return attr, nil
}

// inodeOf returns the inode number the kernel should see for path.
func (f *FaultFS) inodeOf(path string) (uint64, error) {
	if path == f.resolver.Root() {
		return RootInode, nil
	}
	return InodeOf(path)
}

// Getattr returns the attributes of ino.
func (f *FaultFS) Getattr(ino uint64) (Attributes, error) {
	path, err := f.resolve(OpGetattr, ino)
	if err != nil {
		return Attributes{}, err
	}
	return f.attributes(OpGetattr, path)
}

// SetattrRequest lists the changes a setattr call asks for. Nil fields are
// left alone. Atime and Mtime are accepted but never applied.
type SetattrRequest struct {
	Size  *uint64
	Mode  *os.FileMode
	Uid   *uint32
	Gid   *uint32
	Atime *time.Time
	Mtime *time.Time
}

// Setattr applies size, mode and ownership changes in that order, each only
// if requested, and returns the resulting attributes. A failing step leaves
// earlier steps applied.
func (f *FaultFS) Setattr(ino uint64, req SetattrRequest) (Attributes, error) {
	path, err := f.resolve(OpSetattr, ino)
	if err != nil {
		return Attributes{}, err
	}

	if req.Size != nil {
		fsLogger.Debug("Truncating %q to %d bytes", path, *req.Size)
		if err := os.Truncate(path, int64(*req.Size)); err != nil {
			return Attributes{}, newError(OpSetattr, path, err)
		}
	}

	if req.Mode != nil {
		fsLogger.Debug("Changing mode of %q to %v", path, *req.Mode)
		if err := os.Chmod(path, *req.Mode); err != nil {
			return Attributes{}, newError(OpSetattr, path, err)
		}
	}

	if req.Uid != nil || req.Gid != nil {
		uid, gid := -1, -1
		if req.Uid != nil {
			uid = int(*req.Uid)
		}
		if req.Gid != nil {
			gid = int(*req.Gid)
		}
		fsLogger.Debug("Changing owner of %q to %d:%d", path, uid, gid)
		if err := os.Lchown(path, uid, gid); err != nil {
			return Attributes{}, newError(OpSetattr, path, err)
		}
	}

	if req.Atime != nil || req.Mtime != nil {
		fsLogger.Trace("Ignoring timestamp update for %q", path)
	}

	return f.attributes(OpSetattr, path)
}

// Readlink returns the target text of the symlink ino.
func (f *FaultFS) Readlink(ino uint64) (string, error) {
	path, err := f.resolve(OpReadlink, ino)
	if err != nil {
		return "", err
	}
	target, err := os.Readlink(path)
	if err != nil {
		return "", newError(OpReadlink, path, err)
	}
	return target, nil
}

// Statfs returns the statistics of the volume holding ino.
func (f *FaultFS) Statfs(ino uint64) (StatfsInfo, error) {
	path, err := f.resolve(OpStatfs, ino)
	if err != nil {
		return StatfsInfo{}, err
	}
	info, err := statfs(path)
	if err != nil {
		return StatfsInfo{}, newError(OpStatfs, path, err)
	}
	return info, nil
}
