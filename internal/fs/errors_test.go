package fs

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"not exist", os.ErrNotExist, KindNotFound},
		{"enoent", &os.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}, KindNotFound},
		{"eacces", syscall.EACCES, KindPermissionDenied},
		{"eperm", syscall.EPERM, KindPermissionDenied},
		{"enotempty", syscall.ENOTEMPTY, KindNotEmpty},
		{"invalid handle", ErrInvalidHandle, KindInvalidHandle},
		{"unsupported type", ErrUnsupportedType, KindUnsupported},
		{"invalid name", fmt.Errorf("wrapped: %w", ErrInvalidName), KindUnsupported},
		{"other errno", syscall.EROFS, KindIO},
		{"plain error", errors.New("boom"), KindIO},
		{"explicit kind wins", newErrorKind(OpUnlink, "/x", KindNotFound, syscall.EISDIR), KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	err := newError(OpRead, "/target/file", syscall.EIO)
	assert.Equal(t, "operation read on /target/file failed (io error): input/output error", err.Error())
	assert.Equal(t, syscall.EIO, err.Errno())
	assert.ErrorIs(t, err, syscall.EIO)

	noPath := newError(OpRelease, "", ErrInvalidHandle)
	assert.Equal(t, "operation release failed (invalid handle): invalid file handle", noPath.Error())
	assert.Equal(t, syscall.Errno(0), noPath.Errno())
}

func TestRmdirKind(t *testing.T) {
	assert.Equal(t, KindPermissionDenied, rmdirKind(syscall.EACCES))
	assert.Equal(t, KindPermissionDenied, rmdirKind(syscall.EPERM))
	assert.Equal(t, KindNotEmpty, rmdirKind(syscall.ENOTEMPTY))
	assert.Equal(t, KindNotEmpty, rmdirKind(syscall.EEXIST))
	assert.Equal(t, KindNotFound, rmdirKind(syscall.ENOENT))
	assert.Equal(t, KindUnsupported, rmdirKind(syscall.EBUSY))
}
