package fs

import (
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCoin replays a fixed sequence of flips, cycling when exhausted.
type scriptedCoin struct {
	flips []bool
	calls int
}

func (c *scriptedCoin) Flip() bool {
	v := c.flips[c.calls%len(c.flips)]
	c.calls++
	return v
}

type fakeRecorder struct {
	faults []Fault
}

func (r *fakeRecorder) RecordFault(f Fault) {
	r.faults = append(r.faults, f)
}

func setupTestFS(t *testing.T, flips ...bool) (*FaultFS, string) {
	t.Helper()
	targetDir := t.TempDir()

	if len(flips) == 0 {
		flips = []bool{true}
	}
	vfs, err := New(targetDir, Options{Coin: &scriptedCoin{flips: flips}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vfs.Close() })

	return vfs, vfs.Root()
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		fullPath := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644))
	}
}

func inodeOf(t *testing.T, path string) uint64 {
	t.Helper()
	ino, err := InodeOf(path)
	require.NoError(t, err)
	return ino
}

func TestNewRejectsBadRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(file, Options{})
	assert.Error(t, err)
}

func TestRootIsCleanAbsolute(t *testing.T) {
	target := t.TempDir()
	vfs, err := New(filepath.Join(target, "."), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vfs.Close() })

	assert.Equal(t, target, vfs.Root())
	path, err := vfs.resolve(OpGetattr, RootInode)
	require.NoError(t, err)
	assert.Equal(t, vfs.Root(), path)
}

func TestLookup(t *testing.T) {
	vfs, root := setupTestFS(t)
	writeTree(t, root, map[string]string{"dir1/file.txt": "test"})

	t.Run("ExistingEntry", func(t *testing.T) {
		attr, err := vfs.Lookup(RootInode, "dir1")
		require.NoError(t, err)
		assert.Equal(t, TypeDirectory, attr.Type)
		assert.Equal(t, inodeOf(t, filepath.Join(root, "dir1")), attr.Inode)

		fileAttr, err := vfs.Lookup(attr.Inode, "file.txt")
		require.NoError(t, err)
		assert.Equal(t, TypeRegularFile, fileAttr.Type)
		assert.Equal(t, uint64(4), fileAttr.Size)
	})

	t.Run("MissingEntry", func(t *testing.T) {
		_, err := vfs.Lookup(RootInode, "nope")
		require.Error(t, err)
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("MissingParent", func(t *testing.T) {
		_, err := vfs.Lookup(^uint64(0), "file.txt")
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("InvalidName", func(t *testing.T) {
		_, err := vfs.Lookup(RootInode, "../etc")
		assert.Equal(t, KindUnsupported, KindOf(err))
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		require.NoError(t, syscall.Mkfifo(filepath.Join(root, "pipe"), 0o644))
		defer os.Remove(filepath.Join(root, "pipe"))

		_, err := vfs.Lookup(RootInode, "pipe")
		assert.Equal(t, KindUnsupported, KindOf(err))
	})
}

func TestGetattrRoot(t *testing.T) {
	vfs, _ := setupTestFS(t)

	attr, err := vfs.Getattr(RootInode)
	require.NoError(t, err)
	assert.Equal(t, RootInode, attr.Inode)
	assert.Equal(t, TypeDirectory, attr.Type)
}

func TestMkdir(t *testing.T) {
	vfs, root := setupTestFS(t)

	attr, err := vfs.Mkdir(RootInode, "newdir", 0o777)
	require.NoError(t, err)
	assert.Equal(t, TypeDirectory, attr.Type)

	// The explicit chmod bypasses the process umask
	info, err := os.Stat(filepath.Join(root, "newdir"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o777), info.Mode().Perm())

	_, err = vfs.Mkdir(RootInode, "newdir", 0o755)
	assert.Equal(t, KindIO, KindOf(err))
}

func TestRmdir(t *testing.T) {
	vfs, root := setupTestFS(t)
	writeTree(t, root, map[string]string{"full/file.txt": "x"})
	require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0o755))

	t.Run("Empty", func(t *testing.T) {
		require.NoError(t, vfs.Rmdir(RootInode, "empty"))
		_, err := os.Stat(filepath.Join(root, "empty"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("NotEmpty", func(t *testing.T) {
		err := vfs.Rmdir(RootInode, "full")
		require.Error(t, err)
		assert.Equal(t, KindNotEmpty, KindOf(err))
	})

	t.Run("Missing", func(t *testing.T) {
		err := vfs.Rmdir(RootInode, "missing")
		require.Error(t, err)
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("NotADirectory", func(t *testing.T) {
		full, err := vfs.Lookup(RootInode, "full")
		require.NoError(t, err)
		err = vfs.Rmdir(full.Inode, "file.txt")
		assert.Equal(t, KindUnsupported, KindOf(err))
	})
}

func TestUnlink(t *testing.T) {
	vfs, root := setupTestFS(t)
	writeTree(t, root, map[string]string{"file.txt": "x"})
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))

	require.NoError(t, vfs.Unlink(RootInode, "file.txt"))
	_, err := vfs.Lookup(RootInode, "file.txt")
	assert.Equal(t, KindNotFound, KindOf(err))

	// Every unlink failure is reported as not found
	assert.Equal(t, KindNotFound, KindOf(vfs.Unlink(RootInode, "file.txt")))
	assert.Equal(t, KindNotFound, KindOf(vfs.Unlink(RootInode, "dir")))
	_, err = os.Stat(filepath.Join(root, "dir"))
	assert.NoError(t, err, "unlink must not remove directories")
}

func TestMknod(t *testing.T) {
	vfs, root := setupTestFS(t)

	attr, err := vfs.Mknod(RootInode, "regular", syscall.S_IFREG|0o640, 0)
	require.NoError(t, err)
	assert.Equal(t, TypeRegularFile, attr.Type)
	assert.Equal(t, inodeOf(t, filepath.Join(root, "regular")), attr.Inode)

	_, err = vfs.Mknod(RootInode, "fifo", syscall.S_IFIFO|0o640, 0)
	assert.Equal(t, KindUnsupported, KindOf(err))
	_, statErr := os.Lstat(filepath.Join(root, "fifo"))
	assert.NoError(t, statErr, "the node stays behind")
}

func TestRename(t *testing.T) {
	vfs, root := setupTestFS(t)
	writeTree(t, root, map[string]string{"src/a": "payload"})
	require.NoError(t, os.Mkdir(filepath.Join(root, "dst"), 0o755))

	src, err := vfs.Lookup(RootInode, "src")
	require.NoError(t, err)
	dst, err := vfs.Lookup(RootInode, "dst")
	require.NoError(t, err)
	before, err := vfs.Lookup(src.Inode, "a")
	require.NoError(t, err)

	require.NoError(t, vfs.Rename(src.Inode, "a", dst.Inode, "b"))

	_, err = vfs.Lookup(src.Inode, "a")
	assert.Equal(t, KindNotFound, KindOf(err))

	after, err := vfs.Lookup(dst.Inode, "b")
	require.NoError(t, err)
	assert.Equal(t, before.Inode, after.Inode)
	assert.Equal(t, before.Size, after.Size)
	assert.Equal(t, before.Type, after.Type)

	err = vfs.Rename(src.Inode, "a", dst.Inode, "c")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestSymlinkAndReadlink(t *testing.T) {
	vfs, root := setupTestFS(t)
	writeTree(t, root, map[string]string{"target.txt": "x"})

	attr, err := vfs.Symlink(RootInode, "link", "target.txt")
	require.NoError(t, err)
	assert.Equal(t, TypeSymlink, attr.Type)
	assert.Equal(t, inodeOf(t, filepath.Join(root, "link")), attr.Inode)

	target, err := vfs.Readlink(attr.Inode)
	require.NoError(t, err)
	assert.Equal(t, "target.txt", target)

	file, err := vfs.Lookup(RootInode, "target.txt")
	require.NoError(t, err)
	_, err = vfs.Readlink(file.Inode)
	assert.Equal(t, KindIO, KindOf(err))
}

func TestLink(t *testing.T) {
	vfs, root := setupTestFS(t)
	writeTree(t, root, map[string]string{"orig.txt": "x", "sub/keep": ""})

	orig, err := vfs.Lookup(RootInode, "orig.txt")
	require.NoError(t, err)
	sub, err := vfs.Lookup(RootInode, "sub")
	require.NoError(t, err)

	attr, err := vfs.Link(orig.Inode, sub.Inode, "hard.txt")
	require.NoError(t, err)
	assert.Equal(t, orig.Inode, attr.Inode)
	assert.Equal(t, uint32(2), attr.Nlink)

	// Either name may come back; both denote the same object
	path, err := vfs.resolver.Resolve(orig.Inode)
	require.NoError(t, err)
	assert.Equal(t, orig.Inode, inodeOf(t, path))
}

func TestReadDir(t *testing.T) {
	vfs, root := setupTestFS(t)
	writeTree(t, root, map[string]string{
		"b.txt":       "b",
		"a.txt":       "a",
		"sub/c.txt":   "c",
		"sub/deep/d":  "d",
		"sub/deep/e":  "e",
		"sub/deep/ff": "f",
	})
	require.NoError(t, os.Symlink("a.txt", filepath.Join(root, "link")))

	t.Run("Root", func(t *testing.T) {
		entries, err := vfs.ReadDir(RootInode, 0)
		require.NoError(t, err)

		names := make([]string, len(entries))
		types := make(map[string]FileType)
		for i, e := range entries {
			names[i] = e.Name
			types[e.Name] = e.Type
		}
		assert.Equal(t, []string{".", "..", "a.txt", "b.txt", "link", "sub"}, names)
		assert.Equal(t, TypeSymlink, types["link"])
		assert.Equal(t, TypeDirectory, types["sub"])
		assert.Equal(t, RootInode, entries[0].Inode)
		assert.Equal(t, RootInode, entries[1].Inode)
	})

	t.Run("Offset", func(t *testing.T) {
		sub, err := vfs.Lookup(RootInode, "sub")
		require.NoError(t, err)
		deep, err := vfs.Lookup(sub.Inode, "deep")
		require.NoError(t, err)

		all, err := vfs.ReadDir(deep.Inode, 0)
		require.NoError(t, err)
		require.Len(t, all, 5)
		assert.Equal(t, sub.Inode, all[1].Inode)

		rest, err := vfs.ReadDir(deep.Inode, 3)
		require.NoError(t, err)
		assert.Equal(t, all[3:], rest)

		past, err := vfs.ReadDir(deep.Inode, 10)
		require.NoError(t, err)
		assert.Empty(t, past)
	})

	t.Run("UnsupportedChild", func(t *testing.T) {
		require.NoError(t, syscall.Mkfifo(filepath.Join(root, "sub", "pipe"), 0o644))
		sub, err := vfs.Lookup(RootInode, "sub")
		require.NoError(t, err)

		_, err = vfs.ReadDir(sub.Inode, 0)
		assert.Equal(t, KindUnsupported, KindOf(err))
	})
}

func TestSetattr(t *testing.T) {
	vfs, root := setupTestFS(t)
	writeTree(t, root, map[string]string{"file.txt": "0123456789"})
	file, err := vfs.Lookup(RootInode, "file.txt")
	require.NoError(t, err)

	t.Run("Size", func(t *testing.T) {
		size := uint64(4)
		attr, err := vfs.Setattr(file.Inode, SetattrRequest{Size: &size})
		require.NoError(t, err)
		assert.Equal(t, size, attr.Size)
	})

	t.Run("Mode", func(t *testing.T) {
		mode := os.FileMode(0o600)
		attr, err := vfs.Setattr(file.Inode, SetattrRequest{Mode: &mode})
		require.NoError(t, err)
		assert.Equal(t, mode, attr.Perm)
	})

	t.Run("Owner", func(t *testing.T) {
		uid, gid := uint32(os.Getuid()), uint32(os.Getgid())
		attr, err := vfs.Setattr(file.Inode, SetattrRequest{Uid: &uid, Gid: &gid})
		require.NoError(t, err)
		assert.Equal(t, uid, attr.Uid)
		assert.Equal(t, gid, attr.Gid)
	})

	t.Run("TimesIgnored", func(t *testing.T) {
		before, err := vfs.Getattr(file.Inode)
		require.NoError(t, err)

		past := before.Mtime.Add(-48 * time.Hour)
		attr, err := vfs.Setattr(file.Inode, SetattrRequest{Atime: &past, Mtime: &past})
		require.NoError(t, err)
		assert.Equal(t, before.Mtime, attr.Mtime)
	})
}

func TestStatfs(t *testing.T) {
	vfs, _ := setupTestFS(t)

	info, err := vfs.Statfs(RootInode)
	require.NoError(t, err)
	assert.NotZero(t, info.Blocks)
	assert.NotZero(t, info.Bsize)
	assert.NotZero(t, info.Namelen)
}

func TestReadDirNamesSorted(t *testing.T) {
	vfs, root := setupTestFS(t)
	names := []string{"zeta", "alpha", "mid"}
	for _, n := range names {
		writeTree(t, root, map[string]string{n: n})
	}

	entries, err := vfs.ReadDir(RootInode, 2)
	require.NoError(t, err)

	got := make([]string, 0, len(entries))
	for _, e := range entries {
		got = append(got, e.Name)
	}
	sort.Strings(names)
	assert.Equal(t, names, got)
}
