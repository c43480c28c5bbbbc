// internal/fs/interfaces.go

package fs

import "os"

// NodeOperations are the operations addressed by inode alone.
type NodeOperations interface {
	Getattr(ino uint64) (Attributes, error)
	Setattr(ino uint64, req SetattrRequest) (Attributes, error)
	Readlink(ino uint64) (string, error)
	Statfs(ino uint64) (StatfsInfo, error)
}

// DirectoryOperations are the operations that create, remove or list
// entries of a directory.
type DirectoryOperations interface {
	Lookup(parent uint64, name string) (Attributes, error)
	Mkdir(parent uint64, name string, mode os.FileMode) (Attributes, error)
	Rmdir(parent uint64, name string) error
	Unlink(parent uint64, name string) error
	Mknod(parent uint64, name string, mode uint32, dev uint32) (Attributes, error)
	Rename(parent uint64, name string, newParent uint64, newName string) error
	Symlink(parent uint64, name string, target string) (Attributes, error)
	Link(ino uint64, newParent uint64, newName string) (Attributes, error)
	ReadDir(ino uint64, offset int64) ([]DirEntry, error)
}

// HandleOperations are the operations on open file handles.
type HandleOperations interface {
	Open(ino uint64, flags int) (uint64, error)
	Read(fh uint64, offset int64, size int) ([]byte, error)
	Write(fh uint64, offset int64, data []byte) (int, error)
	Flush(fh uint64) error
	Fsync(fh uint64) error
	Release(fh uint64) error
	OpenHandles() int
}

// Operations is everything a transport needs to serve a mount.
type Operations interface {
	NodeOperations
	DirectoryOperations
	HandleOperations
}

var _ Operations = (*FaultFS)(nil)
