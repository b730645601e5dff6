package netpoll

import (
	"errors"
	"net"

	"github.com/webserv-go/webserv/endpoint"
	"golang.org/x/sys/unix"
)

var errUnsupportedFamily = errors.New("netpoll: unsupported socket family")

// MinBacklog is the listen backlog floor spec.md §4.4 requires.
const MinBacklog = 128

// Listener is a bound, listening, non-blocking endpoint (spec.md C5).
type Listener struct {
	fd *FD
	ep endpoint.Endpoint
}

// Listen creates, binds, and listens on ep with SO_REUSEADDR and the
// given backlog (raised to MinBacklog if smaller), then marks the
// descriptor non-blocking and close-on-exec.
func Listen(ep endpoint.Endpoint, backlog int) (*Listener, error) {
	if backlog < MinBacklog {
		backlog = MinBacklog
	}
	domain := unix.AF_INET
	if ep.Family() == endpoint.IPv6 {
		domain = unix.AF_INET6
	}
	raw, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	fd := New(raw)
	if err := fd.SetReuseAddr(); err != nil {
		fd.Close()
		return nil, err
	}
	if err := bind(fd, ep); err != nil {
		fd.Close()
		return nil, err
	}
	if err := unix.Listen(raw, backlog); err != nil {
		fd.Close()
		return nil, err
	}
	if err := fd.SetNonblock(); err != nil {
		fd.Close()
		return nil, err
	}
	fd.SetCloseOnExec()
	return &Listener{fd: fd, ep: ep}, nil
}

func bind(fd *FD, ep endpoint.Endpoint) error {
	if ep.Family() == endpoint.IPv6 {
		var sa unix.SockaddrInet6
		sa.Port = int(ep.Port())
		copy(sa.Addr[:], ep.IP().To16())
		return unix.Bind(fd.Sys(), &sa)
	}
	var sa unix.SockaddrInet4
	sa.Port = int(ep.Port())
	copy(sa.Addr[:], ep.IP().To4())
	return unix.Bind(fd.Sys(), &sa)
}

// FD returns the underlying listening descriptor (for registrar
// registration).
func (l *Listener) FD() *FD { return l.fd }

// Endpoint returns the endpoint this listener is bound to.
func (l *Listener) Endpoint() endpoint.Endpoint { return l.ep }

// Close closes the listening descriptor.
func (l *Listener) Close() error { return l.fd.Close() }

// AcceptOne accepts a single pending connection. It returns
// (nil, nil, nil) when the accept queue is drained (EAGAIN/EWOULDBLOCK),
// matching spec.md §4.4's "accept_one returns None when drained".
// Callers loop on AcceptOne per readiness event to bound tail latency
// under level-triggered notification.
func (l *Listener) AcceptOne() (*FD, *endpoint.Endpoint, error) {
	nfd, sa, err := unix.Accept4(l.fd.Sys(), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, nil, nil
		}
		return nil, nil, classify(err)
	}
	remote, err := sockaddrToEndpoint(sa)
	if err != nil {
		unix.Close(nfd)
		return nil, nil, err
	}
	return New(nfd), &remote, nil
}

func sockaddrToEndpoint(sa unix.Sockaddr) (endpoint.Endpoint, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make([]byte, 4)
		copy(ip, v.Addr[:])
		return endpoint.Parse(ipString(ip), v.Port)
	case *unix.SockaddrInet6:
		ip := make([]byte, 16)
		copy(ip, v.Addr[:])
		return endpoint.Parse(ipString(ip), v.Port)
	default:
		return endpoint.Endpoint{}, errUnsupportedFamily
	}
}

func ipString(b []byte) string {
	return net.IP(b).String()
}
