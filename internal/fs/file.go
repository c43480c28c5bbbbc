package fs

import (
	"errors"
	"io"
	"os"

	"faultfs/internal/logging"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("file")
)

// Open opens ino for reading and writing, creating it if it vanished, and
// returns a new handle. The requested flags are logged and otherwise
// ignored: every handle can read and write.
func (f *FaultFS) Open(ino uint64, flags int) (uint64, error) {
	path, err := f.resolve(OpOpen, ino)
	if err != nil {
		return 0, err
	}

	fileLogger.Debug("Opening %q (requested flags %#x)", path, flags)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return 0, newError(OpOpen, path, err)
	}

	fh := f.handles.Insert(file)
	fileLogger.Debug("Opened %q as handle %d", path, fh)
	return fh, nil
}

// handle returns the file behind fh for op.
func (f *FaultFS) handle(op string, fh uint64) (*os.File, error) {
	file, err := f.handles.Get(fh)
	if err != nil {
		return nil, newError(op, "", err)
	}
	return file, nil
}

// Read returns up to size bytes from offset. Fewer bytes are returned,
// without error, when the file ends first.
func (f *FaultFS) Read(fh uint64, offset int64, size int) ([]byte, error) {
	file, err := f.handle(OpRead, fh)
	if err != nil {
		return nil, err
	}

	fileLogger.Trace("Reading %d bytes from %q at offset %d", size, file.Name(), offset)
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, newError(OpRead, file.Name(), err)
	}

	buf := make([]byte, size)
	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, newError(OpRead, file.Name(), err)
	}
	return buf[:n], nil
}

// Write persists one half of data at offset and reports len(data) as
// written. Which half survives is decided by the fault injector's coin,
// and the surviving half always lands at offset.
func (f *FaultFS) Write(fh uint64, offset int64, data []byte) (int, error) {
	file, err := f.handle(OpWrite, fh)
	if err != nil {
		return 0, err
	}

	payload, half := f.faults.Truncate(data)
	fileLogger.Trace("Writing %d of %d bytes (%s half) to %q at offset %d",
		len(payload), len(data), half, file.Name(), offset)

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return 0, newError(OpWrite, file.Name(), err)
	}
	if _, err := file.Write(payload); err != nil {
		return 0, newError(OpWrite, file.Name(), err)
	}

	f.faults.record(file.Name(), offset, half, len(data), len(payload))
	return len(data), nil
}

// Flush is called on every close of a descriptor sharing fh. os.File keeps
// no user-space buffer, so this only checks that the handle is live.
func (f *FaultFS) Flush(fh uint64) error {
	file, err := f.handle(OpFlush, fh)
	if err != nil {
		return err
	}
	fileLogger.Trace("Flushing %q", file.Name())
	return nil
}

// Fsync commits the file behind fh to stable storage.
func (f *FaultFS) Fsync(fh uint64) error {
	file, err := f.handle(OpFsync, fh)
	if err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		return newError(OpFsync, file.Name(), err)
	}
	return nil
}

// Release removes fh from the table and closes its file. Releasing the
// same handle twice fails with KindInvalidHandle.
func (f *FaultFS) Release(fh uint64) error {
	file, err := f.handles.Remove(fh)
	if err != nil {
		return newError(OpRelease, "", err)
	}

	fileLogger.Debug("Closing handle %d (%q)", fh, file.Name())
	if err := file.Close(); err != nil {
		return newError(OpRelease, file.Name(), err)
	}
	return nil
}
