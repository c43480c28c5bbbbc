// Package transport connects the faultfs engine to the kernel through
// bazil.org/fuse's raw request interface.
//
// Requests are addressed by node id, and node ids are the real inode
// numbers of the target tree (with 1 for the root), so no node table is
// kept here either.
package transport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"faultfs/internal/fs"
	"faultfs/internal/logging"

	"bazil.org/fuse"
	"bazil.org/fuse/fuseutil"
)

var (
	transportLogger = logging.GetLogger().WithPrefix("transport")
)

// Observer is told about every served request.
type Observer interface {
	ObserveRequest(op string, err error, elapsed time.Duration)
	SetOpenHandles(n int)
}

type noopObserver struct{}

func (noopObserver) ObserveRequest(string, error, time.Duration) {}
func (noopObserver) SetOpenHandles(int)                         {}

// Server reads requests from a FUSE connection one at a time and answers
// each before reading the next.
type Server struct {
	conn     *fuse.Conn
	ops      fs.Operations
	observer Observer
}

// NewServer creates a Server. observer may be nil.
func NewServer(conn *fuse.Conn, ops fs.Operations, observer Observer) *Server {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Server{
		conn:     conn,
		ops:      ops,
		observer: observer,
	}
}

// Serve runs the request loop until the filesystem is unmounted.
func (s *Server) Serve() error {
	transportLogger.Info("Serving filesystem...")
	for {
		req, err := s.conn.ReadRequest()
		if err != nil {
			if errors.Is(err, io.EOF) {
				transportLogger.Debug("Connection closed, stopping request loop")
				return nil
			}
			return fmt.Errorf("failed to read request: %w", err)
		}

		transportLogger.Trace("<- %v", req)
		s.dispatch(req)
	}
}

// dispatch serves one request and records its outcome.
func (s *Server) dispatch(req fuse.Request) {
	start := time.Now()
	op, err := s.handle(req)
	if op != "" {
		s.observer.ObserveRequest(op, err, time.Since(start))
	}
	if err != nil && !noReply(req) {
		errno := toErrno(err)
		transportLogger.Debug("-> %s failed: %v (%v)", op, err, errno)
		req.RespondError(errno)
	}
}

// handle answers req on success and returns the operation name plus any
// error, which the caller turns into an errno reply.
func (s *Server) handle(req fuse.Request) (string, error) {
	switch r := req.(type) {
	case *fuse.LookupRequest:
		resp, err := s.lookup(r)
		if err != nil {
			return fs.OpLookup, err
		}
		r.Respond(resp)
		return fs.OpLookup, nil

	case *fuse.GetattrRequest:
		resp, err := s.getattr(r)
		if err != nil {
			return fs.OpGetattr, err
		}
		r.Respond(resp)
		return fs.OpGetattr, nil

	case *fuse.SetattrRequest:
		resp, err := s.setattr(r)
		if err != nil {
			return fs.OpSetattr, err
		}
		r.Respond(resp)
		return fs.OpSetattr, nil

	case *fuse.MkdirRequest:
		resp, err := s.mkdir(r)
		if err != nil {
			return fs.OpMkdir, err
		}
		r.Respond(resp)
		return fs.OpMkdir, nil

	case *fuse.RemoveRequest:
		op, err := s.remove(r)
		if err != nil {
			return op, err
		}
		r.Respond()
		return op, nil

	case *fuse.MknodRequest:
		resp, err := s.mknod(r)
		if err != nil {
			return fs.OpMknod, err
		}
		r.Respond(resp)
		return fs.OpMknod, nil

	case *fuse.RenameRequest:
		if err := s.ops.Rename(uint64(r.Node), r.OldName, uint64(r.NewDir), r.NewName); err != nil {
			return fs.OpRename, err
		}
		r.Respond()
		return fs.OpRename, nil

	case *fuse.SymlinkRequest:
		resp, err := s.symlink(r)
		if err != nil {
			return fs.OpSymlink, err
		}
		r.Respond(resp)
		return fs.OpSymlink, nil

	case *fuse.LinkRequest:
		resp, err := s.link(r)
		if err != nil {
			return fs.OpLink, err
		}
		r.Respond(resp)
		return fs.OpLink, nil

	case *fuse.ReadlinkRequest:
		target, err := s.ops.Readlink(uint64(r.Node))
		if err != nil {
			return fs.OpReadlink, err
		}
		r.Respond(target)
		return fs.OpReadlink, nil

	case *fuse.StatfsRequest:
		info, err := s.ops.Statfs(uint64(r.Node))
		if err != nil {
			return fs.OpStatfs, err
		}
		r.Respond(statfsResponse(info))
		return fs.OpStatfs, nil

	case *fuse.OpenRequest:
		resp, err := s.open(r)
		if err != nil {
			return fs.OpOpen, err
		}
		r.Respond(resp)
		return fs.OpOpen, nil

	case *fuse.ReadRequest:
		op, resp, err := s.read(r)
		if err != nil {
			return op, err
		}
		r.Respond(resp)
		return op, nil

	case *fuse.WriteRequest:
		resp, err := s.write(r)
		if err != nil {
			return fs.OpWrite, err
		}
		r.Respond(resp)
		return fs.OpWrite, nil

	case *fuse.FlushRequest:
		if err := s.ops.Flush(uint64(r.Handle)); err != nil {
			return fs.OpFlush, err
		}
		r.Respond()
		return fs.OpFlush, nil

	case *fuse.FsyncRequest:
		if !r.Dir {
			if err := s.ops.Fsync(uint64(r.Handle)); err != nil {
				return fs.OpFsync, err
			}
		}
		r.Respond()
		return fs.OpFsync, nil

	case *fuse.ReleaseRequest:
		if err := s.release(r); err != nil {
			return fs.OpRelease, err
		}
		r.Respond()
		return fs.OpRelease, nil

	case *fuse.AccessRequest:
		r.Respond()
		return "", nil

	case *fuse.ForgetRequest:
		// Nothing to forget: node ids are inode numbers.
		r.Respond()
		return "", nil

	case *fuse.BatchForgetRequest:
		r.Respond()
		return "", nil

	case *fuse.InterruptRequest:
		r.Respond()
		return "", nil

	case *fuse.DestroyRequest:
		transportLogger.Info("Kernel requested destroy")
		r.Respond()
		return "", nil

	default:
		transportLogger.Debug("Unsupported request: %v", req)
		req.RespondError(fuse.ENOSYS)
		return "", nil
	}
}

// noReply reports whether the kernel expects no answer at all to req,
// not even an error.
func noReply(req fuse.Request) bool {
	switch req.(type) {
	case *fuse.ForgetRequest, *fuse.BatchForgetRequest:
		return true
	}
	return false
}

func (s *Server) lookup(r *fuse.LookupRequest) (*fuse.LookupResponse, error) {
	attr, err := s.ops.Lookup(uint64(r.Node), r.Name)
	if err != nil {
		return nil, err
	}
	resp := lookupResponse(attr)
	return &resp, nil
}

func (s *Server) getattr(r *fuse.GetattrRequest) (*fuse.GetattrResponse, error) {
	attr, err := s.ops.Getattr(uint64(r.Node))
	if err != nil {
		return nil, err
	}
	return &fuse.GetattrResponse{Attr: toFuseAttr(attr)}, nil
}

func (s *Server) setattr(r *fuse.SetattrRequest) (*fuse.SetattrResponse, error) {
	attr, err := s.ops.Setattr(uint64(r.Node), setattrRequest(r))
	if err != nil {
		return nil, err
	}
	return &fuse.SetattrResponse{Attr: toFuseAttr(attr)}, nil
}

func (s *Server) mkdir(r *fuse.MkdirRequest) (*fuse.MkdirResponse, error) {
	attr, err := s.ops.Mkdir(uint64(r.Node), r.Name, r.Mode&^os.ModeType)
	if err != nil {
		return nil, err
	}
	return &fuse.MkdirResponse{LookupResponse: lookupResponse(attr)}, nil
}

func (s *Server) remove(r *fuse.RemoveRequest) (string, error) {
	if r.Dir {
		return fs.OpRmdir, s.ops.Rmdir(uint64(r.Node), r.Name)
	}
	return fs.OpUnlink, s.ops.Unlink(uint64(r.Node), r.Name)
}

func (s *Server) mknod(r *fuse.MknodRequest) (*fuse.LookupResponse, error) {
	attr, err := s.ops.Mknod(uint64(r.Node), r.Name, unixMode(r.Mode), r.Rdev)
	if err != nil {
		return nil, err
	}
	resp := lookupResponse(attr)
	return &resp, nil
}

func (s *Server) symlink(r *fuse.SymlinkRequest) (*fuse.SymlinkResponse, error) {
	attr, err := s.ops.Symlink(uint64(r.Node), r.NewName, r.Target)
	if err != nil {
		return nil, err
	}
	return &fuse.SymlinkResponse{LookupResponse: lookupResponse(attr)}, nil
}

func (s *Server) link(r *fuse.LinkRequest) (*fuse.LookupResponse, error) {
	attr, err := s.ops.Link(uint64(r.OldNode), uint64(r.Node), r.NewName)
	if err != nil {
		return nil, err
	}
	resp := lookupResponse(attr)
	return &resp, nil
}

// open hands out a table handle for files. Directories get handle 0: the
// listing is rebuilt on every read, so there is nothing to keep.
func (s *Server) open(r *fuse.OpenRequest) (*fuse.OpenResponse, error) {
	if r.Dir {
		if _, err := s.ops.Getattr(uint64(r.Node)); err != nil {
			return nil, err
		}
		return &fuse.OpenResponse{}, nil
	}

	fh, err := s.ops.Open(uint64(r.Node), int(r.Flags))
	if err != nil {
		return nil, err
	}
	s.observer.SetOpenHandles(s.ops.OpenHandles())

	// Direct I/O keeps the page cache from merging or splitting writes, so
	// every application write reaches the fault injector as issued.
	return &fuse.OpenResponse{
		Handle: fuse.HandleID(fh),
		Flags:  fuse.OpenDirectIO,
	}, nil
}

// read serves both file reads and directory listings. Listings are built
// whole and sliced at the byte offset the kernel resumes from.
func (s *Server) read(r *fuse.ReadRequest) (string, *fuse.ReadResponse, error) {
	if r.Dir {
		entries, err := s.ops.ReadDir(uint64(r.Node), 0)
		if err != nil {
			return fs.OpReadDir, nil, err
		}
		resp := &fuse.ReadResponse{Data: make([]byte, 0, r.Size)}
		fuseutil.HandleRead(r, resp, encodeDirents(entries))
		return fs.OpReadDir, resp, nil
	}

	data, err := s.ops.Read(uint64(r.Handle), r.Offset, r.Size)
	if err != nil {
		return fs.OpRead, nil, err
	}
	return fs.OpRead, &fuse.ReadResponse{Data: data}, nil
}

func (s *Server) write(r *fuse.WriteRequest) (*fuse.WriteResponse, error) {
	n, err := s.ops.Write(uint64(r.Handle), r.Offset, r.Data)
	if err != nil {
		return nil, err
	}
	return &fuse.WriteResponse{Size: n}, nil
}

func (s *Server) release(r *fuse.ReleaseRequest) error {
	if r.Dir {
		return nil
	}
	err := s.ops.Release(uint64(r.Handle))
	s.observer.SetOpenHandles(s.ops.OpenHandles())
	return err
}
