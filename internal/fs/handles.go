package fs

import (
	"os"
	"sync"
)

// HandleTable owns the files opened through the filesystem, keyed by a
// handle id that is never reused while the table lives.
//
// The dispatch loop is single-threaded; the mutex only keeps readers such
// as the metrics gauge from observing a half-updated map. Concurrent I/O on
// the same handle still races on the file's seek position.
type HandleTable struct {
	mu    sync.Mutex
	next  uint64
	files map[uint64]*os.File
}

// NewHandleTable creates an empty table whose first handle is 1.
func NewHandleTable() *HandleTable {
	return &HandleTable{
		next:  1,
		files: make(map[uint64]*os.File),
	}
}

// Insert stores f and returns its new handle.
func (t *HandleTable) Insert(f *os.File) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	fh := t.next
	t.next++
	t.files[fh] = f
	return fh
}

// Get returns the file behind fh.
func (t *HandleTable) Get(fh uint64) (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.files[fh]
	if !ok {
		return nil, ErrInvalidHandle
	}
	return f, nil
}

// Remove deletes fh from the table and hands its file to the caller, who
// becomes responsible for closing it.
func (t *HandleTable) Remove(fh uint64) (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.files[fh]
	if !ok {
		return nil, ErrInvalidHandle
	}
	delete(t.files, fh)
	return f, nil
}

// Len returns the number of live handles.
func (t *HandleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}

// CloseAll closes and forgets every live handle. It returns the first
// close error.
func (t *HandleTable) CloseAll() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for fh, f := range t.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(t.files, fh)
	}
	return firstErr
}
