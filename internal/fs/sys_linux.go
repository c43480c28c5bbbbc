//go:build linux

package fs

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func lstat(path string) (*unix.Stat_t, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return nil, &os.PathError{Op: "lstat", Path: path, Err: err}
	}
	return &st, nil
}

func attributesFromStat(st *unix.Stat_t) Attributes {
	return Attributes{
		Inode:     st.Ino,
		Size:      safeInt64ToUint64(int64(st.Size)),
		Blocks:    safeInt64ToUint64(int64(st.Blocks)),
		Atime:     timespecToTime(st.Atim),
		Mtime:     timespecToTime(st.Mtim),
		Ctime:     timespecToTime(st.Ctim),
		Perm:      permFromMode(st.Mode),
		Nlink:     uint32(st.Nlink),
		Uid:       st.Uid,
		Gid:       st.Gid,
		Rdev:      uint64(st.Rdev),
		BlockSize: safeInt64ToUint32(int64(st.Blksize)),
		Type:      typeFromMode(st.Mode),
	}
}

func timespecToTime(ts unix.Timespec) time.Time {
	return time.Unix(ts.Unix())
}

func typeFromMode(mode uint32) FileType {
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return TypeDirectory
	case unix.S_IFLNK:
		return TypeSymlink
	case unix.S_IFREG:
		return TypeRegularFile
	default:
		return TypeUnsupported
	}
}

func permFromMode(mode uint32) os.FileMode {
	perm := os.FileMode(mode & 0o777)
	if mode&unix.S_ISUID != 0 {
		perm |= os.ModeSetuid
	}
	if mode&unix.S_ISGID != 0 {
		perm |= os.ModeSetgid
	}
	if mode&unix.S_ISVTX != 0 {
		perm |= os.ModeSticky
	}
	return perm
}

// inodeOfInfo extracts the inode from a FileInfo produced by os.Lstat.
func inodeOfInfo(info os.FileInfo) (uint64, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return st.Ino, true
}

func mknod(path string, mode uint32, dev uint32) error {
	if err := unix.Mknod(path, mode, int(dev)); err != nil {
		return &os.PathError{Op: "mknod", Path: path, Err: err}
	}
	return nil
}

func unlink(path string) error {
	if err := unix.Unlink(path); err != nil {
		return &os.PathError{Op: "unlink", Path: path, Err: err}
	}
	return nil
}

func rmdir(path string) error {
	if err := unix.Rmdir(path); err != nil {
		return &os.PathError{Op: "rmdir", Path: path, Err: err}
	}
	return nil
}

func statfs(path string) (StatfsInfo, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return StatfsInfo{}, &os.PathError{Op: "statfs", Path: path, Err: err}
	}
	return StatfsInfo{
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  st.Bavail,
		Files:   st.Files,
		Ffree:   st.Ffree,
		Bsize:   safeInt64ToUint32(int64(st.Bsize)),
		Namelen: safeInt64ToUint32(int64(st.Namelen)),
		Frsize:  safeInt64ToUint32(int64(st.Frsize)),
	}, nil
}
