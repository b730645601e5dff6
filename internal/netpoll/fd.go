// Package netpoll implements spec.md C2 (non-blocking descriptor) and C4
// (readiness registrar): a shared-ownership kernel-handle wrapper plus a
// level-triggered epoll/kqueue readiness loop.
//
// The registrar backend is adapted in place from the teacher's
// connstate poller (poll.go/poll_linux.go/poll_bsd.go/poll_cache.go):
// same dual epoll/kqueue split and EINTR-as-no-events handling, widened
// from a single "remote closed" bit to full Readable/Writable interest
// sets, and moved off cgo onto golang.org/x/sys/unix so FD has a single
// non-blocking syscall surface (Read/Write/Accept/Close) instead of
// reaching into net.Conn.
package netpoll

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Kind is the result of a descriptor kind query.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindSocket
	KindRegularFile
	KindDirectory
)

// ErrorKind enumerates the IOError kinds from spec.md §7.
type ErrorKind uint8

const (
	KindWouldBlock ErrorKind = iota
	KindInterrupted
	KindBadDescriptor
	KindClosed
	KindOther
)

// IOError pairs a low-level errno with the kind the session logic
// switches on.
type IOError struct {
	Kind ErrorKind
	Err  error
}

func (e *IOError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "netpoll: io error"
}

func (e *IOError) Unwrap() error { return e.Err }

func classify(err error) *IOError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, unix.EAGAIN):
		return &IOError{Kind: KindWouldBlock, Err: err}
	case errors.Is(err, unix.EINTR):
		return &IOError{Kind: KindInterrupted, Err: err}
	case errors.Is(err, unix.EBADF):
		return &IOError{Kind: KindBadDescriptor, Err: err}
	default:
		return &IOError{Kind: KindOther, Err: err}
	}
}

// FD is a shared-ownership handle over a kernel descriptor. The kernel
// close happens exactly once, when the reference count drops to zero.
// Copying an FD (via Ref) increments the count; Close decrements it.
type FD struct {
	fd   int32 // -1 once closed
	refs int32
}

// New wraps a raw, already-non-blocking descriptor with refcount 1.
func New(raw int) *FD {
	return &FD{fd: int32(raw), refs: 1}
}

// Sys returns the raw descriptor value. Valid only while refcount > 0.
func (f *FD) Sys() int { return int(atomic.LoadInt32(&f.fd)) }

// Ref increments the reference count and returns f for chaining.
func (f *FD) Ref() *FD {
	atomic.AddInt32(&f.refs, 1)
	return f
}

// Close decrements the reference count; the underlying kernel descriptor
// is closed exactly when the count reaches zero.
func (f *FD) Close() error {
	if atomic.AddInt32(&f.refs, -1) > 0 {
		return nil
	}
	raw := atomic.SwapInt32(&f.fd, -1)
	if raw < 0 {
		return nil
	}
	return unix.Close(int(raw))
}

// SetNonblock sets O_NONBLOCK on the descriptor.
func (f *FD) SetNonblock() error {
	return unix.SetNonblock(f.Sys(), true)
}

// SetCloseOnExec sets FD_CLOEXEC.
func (f *FD) SetCloseOnExec() {
	unix.CloseOnExec(f.Sys())
}

// SetReuseAddr sets SO_REUSEADDR. Only meaningful for sockets.
func (f *FD) SetReuseAddr() error {
	return unix.SetsockoptInt(f.Sys(), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

// Stat queries the descriptor's kind (socket/regular file/directory).
func (f *FD) Stat() (Kind, error) {
	var st unix.Stat_t
	if err := unix.Fstat(f.Sys(), &st); err != nil {
		return KindUnknown, classify(err)
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFSOCK:
		return KindSocket, nil
	case unix.S_IFREG:
		return KindRegularFile, nil
	case unix.S_IFDIR:
		return KindDirectory, nil
	default:
		return KindUnknown, nil
	}
}

// Read performs a single non-blocking read. A zero-length result with a
// nil error means the peer performed an orderly shutdown (EOF).
func (f *FD) Read(p []byte) (int, error) {
	n, err := unix.Read(f.Sys(), p)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// Write performs a single non-blocking write.
func (f *FD) Write(p []byte) (int, error) {
	n, err := unix.Write(f.Sys(), p)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}
