//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package netpoll

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueueRegistrar adapts the teacher's connstate poll_bsd.go kqueue
// backend from a single EVFILT_READ "remote closed" watch into full
// Readable/Writable interest sets: each Register/Modify issues the
// EV_ADD/EV_DELETE pair needed so exactly the requested filters are
// armed, matching epollRegistrar's semantics on Linux.
//
// kqueue identifies events by Ident (the fd number), so — unlike the
// Linux backend, which can stash an arbitrary token in epoll_event.data
// — the caller's key must equal the fd's Sys() value here.
type kqueueRegistrar struct {
	kq int
}

func newPlatformRegistrar() (Registrar, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueRegistrar{kq: kq}, nil
}

func (r *kqueueRegistrar) changeFilters(fd *FD, interest Interest) error {
	mk := func(filter int16, enable bool) unix.Kevent_t {
		flags := uint16(unix.EV_DELETE)
		if enable {
			flags = unix.EV_ADD | unix.EV_ENABLE
		}
		return unix.Kevent_t{
			Ident:  uint64(fd.Sys()),
			Filter: filter,
			Flags:  flags,
		}
	}
	changes := []unix.Kevent_t{
		mk(unix.EVFILT_READ, interest&Readable != 0),
		mk(unix.EVFILT_WRITE, interest&Writable != 0),
	}
	_, err := unix.Kevent(r.kq, changes, nil, nil)
	return err
}

func (r *kqueueRegistrar) Register(fd *FD, key uint64, interest Interest) error {
	return r.changeFilters(fd, interest)
}

func (r *kqueueRegistrar) Modify(fd *FD, key uint64, interest Interest) error {
	return r.changeFilters(fd, interest)
}

func (r *kqueueRegistrar) Unregister(fd *FD) error {
	return r.changeFilters(fd, 0)
}

func (r *kqueueRegistrar) Wait(timeout time.Duration, out []Event) ([]Event, error) {
	if cap(out) == 0 {
		out = make([]Event, 0, 128)
	}
	raw := make([]unix.Kevent_t, cap(out))
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	n, err := unix.Kevent(r.kq, nil, raw, &ts)
	if err != nil {
		if err == unix.EINTR {
			return out[:0], nil
		}
		return out[:0], err
	}
	out = out[:0]
	merged := map[uint64]Interest{}
	order := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		key := raw[i].Ident
		var interest Interest
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			interest = Readable
		case unix.EVFILT_WRITE:
			interest = Writable
		}
		if raw[i].Flags&unix.EV_EOF != 0 {
			interest |= Readable
		}
		if _, ok := merged[key]; !ok {
			order = append(order, key)
		}
		merged[key] |= interest
	}
	for _, key := range order {
		out = append(out, Event{Key: key, Ready: merged[key]})
	}
	return out, nil
}

func (r *kqueueRegistrar) Close() error {
	return unix.Close(r.kq)
}
