//go:build linux

package netpoll

import (
	"time"

	"golang.org/x/sys/unix"
)

type epollRegistrar struct {
	epfd int
}

func newPlatformRegistrar() (Registrar, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollRegistrar{epfd: epfd}, nil
}

func toEpollEvents(interest Interest) uint32 {
	var ev uint32
	if interest&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if interest&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Register/Modify store the low 32 bits of key in the epoll_event data
// field, mirroring the original EpollManager.cpp's `event.data.fd = fd;` —
// here it's the caller's opaque token (typically the fd number) rather
// than strictly the fd, so a session can be found in O(1) from the event.
// Wait hands those 32 bits back as Event.Key.
func (r *epollRegistrar) Register(fd *FD, key uint64, interest Interest) error {
	ev := unix.EpollEvent{Events: toEpollEvents(interest)}
	ev.Fd = int32(key)
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd.Sys(), &ev)
}

func (r *epollRegistrar) Modify(fd *FD, key uint64, interest Interest) error {
	ev := unix.EpollEvent{Events: toEpollEvents(interest)}
	ev.Fd = int32(key)
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd.Sys(), &ev)
}

func (r *epollRegistrar) Unregister(fd *FD) error {
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd.Sys(), nil)
	if err == unix.ENOENT || err == unix.EBADF {
		return nil
	}
	return err
}

func (r *epollRegistrar) Wait(timeout time.Duration, out []Event) ([]Event, error) {
	if cap(out) == 0 {
		out = make([]Event, 0, 128)
	}
	raw := make([]unix.EpollEvent, cap(out))
	msec := int(timeout / time.Millisecond)
	n, err := unix.EpollWait(r.epfd, raw, msec)
	if err != nil {
		if err == unix.EINTR {
			return out[:0], nil
		}
		return out[:0], err
	}
	out = out[:0]
	for i := 0; i < n; i++ {
		var interest Interest
		if raw[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			interest |= Readable
		}
		if raw[i].Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			interest |= Writable
		}
		out = append(out, Event{Key: uint64(uint32(raw[i].Fd)), Ready: interest})
	}
	return out, nil
}

func (r *epollRegistrar) Close() error {
	return unix.Close(r.epfd)
}
