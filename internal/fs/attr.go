package fs

import (
	"os"
	"time"
)

// FileType is the classification reported for every object under the
// target root.
type FileType int

const (
	// TypeUnsupported covers devices, sockets and FIFOs
	TypeUnsupported FileType = iota
	TypeRegularFile
	TypeDirectory
	TypeSymlink
)

func (t FileType) String() string {
	switch t {
	case TypeRegularFile:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeSymlink:
		return "symlink"
	default:
		return "unsupported"
	}
}

// Attributes is a point-in-time snapshot of an object's metadata. It is
// never cached.
type Attributes struct {
	Inode     uint64
	Size      uint64
	Blocks    uint64 // 512-byte blocks
	Atime     time.Time
	Mtime     time.Time
	Ctime     time.Time
	Perm      os.FileMode // permission, setuid, setgid and sticky bits only
	Nlink     uint32
	Uid       uint32
	Gid       uint32
	Rdev      uint64
	BlockSize uint32
	Type      FileType
}

// StatfsInfo carries the volume statistics of the filesystem holding the
// target root.
type StatfsInfo struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	Namelen uint32
	Frsize  uint32
}

// AttributesOf returns the attributes of path without following a final
// symlink. Objects of an unsupported type fail with KindUnsupported.
func AttributesOf(path string) (Attributes, error) {
	attr, err := rawAttributesOf(path)
	if err != nil {
		return Attributes{}, err
	}
	if attr.Type == TypeUnsupported {
		return Attributes{}, ErrUnsupportedType
	}
	return attr, nil
}

// rawAttributesOf is AttributesOf without the type check.
func rawAttributesOf(path string) (Attributes, error) {
	st, err := lstat(path)
	if err != nil {
		return Attributes{}, err
	}
	return attributesFromStat(st), nil
}

// InodeOf returns the real inode number of path.
func InodeOf(path string) (uint64, error) {
	st, err := lstat(path)
	if err != nil {
		return 0, err
	}
	return st.Ino, nil
}
