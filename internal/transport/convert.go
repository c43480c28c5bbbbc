package transport

import (
	"errors"
	"os"
	"syscall"
	"time"

	"faultfs/internal/fs"

	"bazil.org/fuse"
)

// attrValid is how long the kernel may cache attributes and entries. The
// target tree can change underneath the mount, so keep it short.
const attrValid = time.Second

// toErrno maps an engine error to the errno sent to the kernel. This is
// the only place where error kinds become native codes.
func toErrno(err error) fuse.Errno {
	switch fs.KindOf(err) {
	case fs.KindNotFound:
		return fuse.Errno(syscall.ENOENT)
	case fs.KindPermissionDenied:
		return fuse.Errno(syscall.EACCES)
	case fs.KindNotEmpty:
		return fuse.Errno(syscall.ENOTEMPTY)
	case fs.KindUnsupported:
		return fuse.Errno(syscall.ENOTSUP)
	case fs.KindInvalidHandle:
		return fuse.Errno(syscall.EBADF)
	}

	var errno syscall.Errno
	var fsErr *fs.Error
	if errors.As(err, &fsErr) {
		errno = fsErr.Errno()
	}
	if errno == 0 {
		transportLogger.Debug("No errno for %v, replying EIO", err)
		return fuse.Errno(syscall.EIO)
	}
	return fuse.Errno(errno)
}

// toFuseAttr converts engine attributes to the wire record.
func toFuseAttr(a fs.Attributes) fuse.Attr {
	return fuse.Attr{
		Valid:     attrValid,
		Inode:     a.Inode,
		Size:      a.Size,
		Blocks:    a.Blocks,
		Atime:     a.Atime,
		Mtime:     a.Mtime,
		Ctime:     a.Ctime,
		Crtime:    a.Ctime,
		Mode:      fileMode(a),
		Nlink:     a.Nlink,
		Uid:       a.Uid,
		Gid:       a.Gid,
		Rdev:      uint32(a.Rdev),
		BlockSize: a.BlockSize,
	}
}

// fileMode combines the type and permission bits the way os.FileMode
// expects them.
func fileMode(a fs.Attributes) os.FileMode {
	switch a.Type {
	case fs.TypeDirectory:
		return os.ModeDir | a.Perm
	case fs.TypeSymlink:
		return os.ModeSymlink | a.Perm
	default:
		return a.Perm
	}
}

// unixMode converts a mode decoded by bazil back into raw mode_t bits for
// mknod.
func unixMode(m os.FileMode) uint32 {
	mode := uint32(m.Perm())
	switch {
	case m&os.ModeCharDevice != 0:
		mode |= syscall.S_IFCHR
	case m&os.ModeDevice != 0:
		mode |= syscall.S_IFBLK
	case m&os.ModeNamedPipe != 0:
		mode |= syscall.S_IFIFO
	case m&os.ModeSocket != 0:
		mode |= syscall.S_IFSOCK
	case m&os.ModeDir != 0:
		mode |= syscall.S_IFDIR
	case m&os.ModeSymlink != 0:
		mode |= syscall.S_IFLNK
	default:
		mode |= syscall.S_IFREG
	}
	if m&os.ModeSetuid != 0 {
		mode |= syscall.S_ISUID
	}
	if m&os.ModeSetgid != 0 {
		mode |= syscall.S_ISGID
	}
	if m&os.ModeSticky != 0 {
		mode |= syscall.S_ISVTX
	}
	return mode
}

func direntType(t fs.FileType) fuse.DirentType {
	switch t {
	case fs.TypeDirectory:
		return fuse.DT_Dir
	case fs.TypeSymlink:
		return fuse.DT_Link
	case fs.TypeRegularFile:
		return fuse.DT_File
	default:
		return fuse.DT_Unknown
	}
}

// encodeDirents serializes a listing into the kernel's dirent stream.
func encodeDirents(entries []fs.DirEntry) []byte {
	var data []byte
	for _, e := range entries {
		data = fuse.AppendDirent(data, fuse.Dirent{
			Inode: e.Inode,
			Type:  direntType(e.Type),
			Name:  e.Name,
		})
	}
	return data
}

func lookupResponse(a fs.Attributes) fuse.LookupResponse {
	return fuse.LookupResponse{
		Node:       fuse.NodeID(a.Inode),
		EntryValid: attrValid,
		Attr:       toFuseAttr(a),
	}
}

func statfsResponse(info fs.StatfsInfo) *fuse.StatfsResponse {
	return &fuse.StatfsResponse{
		Blocks:  info.Blocks,
		Bfree:   info.Bfree,
		Bavail:  info.Bavail,
		Files:   info.Files,
		Ffree:   info.Ffree,
		Bsize:   info.Bsize,
		Namelen: info.Namelen,
		Frsize:  info.Frsize,
	}
}

// setattrRequest picks the fields the kernel marked valid.
func setattrRequest(req *fuse.SetattrRequest) fs.SetattrRequest {
	var out fs.SetattrRequest
	if req.Valid.Size() {
		size := req.Size
		out.Size = &size
	}
	if req.Valid.Mode() {
		mode := req.Mode &^ os.ModeType
		out.Mode = &mode
	}
	if req.Valid.Uid() {
		uid := req.Uid
		out.Uid = &uid
	}
	if req.Valid.Gid() {
		gid := req.Gid
		out.Gid = &gid
	}
	if req.Valid.Atime() {
		atime := req.Atime
		out.Atime = &atime
	}
	if req.Valid.Mtime() {
		mtime := req.Mtime
		out.Mtime = &mtime
	}
	return out
}
