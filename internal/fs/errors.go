// Package fs implements the faultfs operation engine.
//
// This file contains the closed set of error kinds every operation reports
// and the helpers that classify native failures into them.
package fs

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"syscall"

	"faultfs/internal/logging"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")

	// ErrInvalidHandle indicates a file handle that was never issued or
	// has already been released
	ErrInvalidHandle = errors.New("invalid file handle")

	// ErrUnsupportedType indicates an object that is neither a directory,
	// a regular file nor a symlink
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrInvalidName indicates an entry name that is empty, contains a
	// separator or refers to the directory itself or its parent
	ErrInvalidName = errors.New("invalid entry name")
)

// Kind classifies every failure the engine reports.
type Kind int

const (
	// KindIO is a native failure not covered by another kind. The native
	// errno, if any, is preserved in the wrapped error.
	KindIO Kind = iota
	KindNotFound
	KindPermissionDenied
	KindNotEmpty
	KindUnsupported
	KindInvalidHandle
)

var kindNames = map[Kind]string{
	KindIO:               "io error",
	KindNotFound:         "not found",
	KindPermissionDenied: "permission denied",
	KindNotEmpty:         "not empty",
	KindUnsupported:      "unsupported",
	KindInvalidHandle:    "invalid handle",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error wraps a failed operation with the operation name, the real path it
// touched and the kind it was classified as.
type Error struct {
	Op   string // Operation that failed (e.g., "lookup", "write")
	Path string // Real path under the target root, if one was resolved
	Kind Kind   // Classification reported to the transport
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("operation %s failed (%s): %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("operation %s on %s failed (%s): %v", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

// Errno returns the native error number carried by the wrapped error, or
// zero if there is none.
func (e *Error) Errno() syscall.Errno {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}
	return 0
}

// KindOf returns the kind of err. Errors that did not pass through the
// engine are classified on the spot.
func KindOf(err error) Kind {
	var fsErr *Error
	if errors.As(err, &fsErr) {
		return fsErr.Kind
	}
	return classify(err)
}

// classify maps a native or sentinel error to the nearest kind.
func classify(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidHandle):
		return KindInvalidHandle
	case errors.Is(err, ErrUnsupportedType), errors.Is(err, ErrInvalidName):
		return KindUnsupported
	case errors.Is(err, iofs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, iofs.ErrPermission):
		return KindPermissionDenied
	case errors.Is(err, syscall.ENOTEMPTY):
		return KindNotEmpty
	default:
		return KindIO
	}
}

// newError wraps err, classifying it with the generic rules.
func newError(op string, path string, err error) *Error {
	return newErrorKind(op, path, classify(err), err)
}

// newErrorKind wraps err with an explicit kind, for operations whose
// mapping differs from the generic one.
func newErrorKind(op string, path string, kind Kind, err error) *Error {
	fsErr := &Error{
		Op:   op,
		Path: path,
		Kind: kind,
		Err:  err,
	}
	errLogger.Debug("%v", fsErr)
	return fsErr
}

// Operation names for consistent logging, error reporting and metrics
const (
	OpLookup   = "lookup"
	OpGetattr  = "getattr"
	OpSetattr  = "setattr"
	OpMkdir    = "mkdir"
	OpRmdir    = "rmdir"
	OpUnlink   = "unlink"
	OpMknod    = "mknod"
	OpRename   = "rename"
	OpSymlink  = "symlink"
	OpLink     = "link"
	OpReadlink = "readlink"
	OpStatfs   = "statfs"
	OpReadDir  = "readdir"
	OpOpen     = "open"
	OpRead     = "read"
	OpWrite    = "write"
	OpFlush    = "flush"
	OpFsync    = "fsync"
	OpRelease  = "release"
)
