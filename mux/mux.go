// Package mux implements spec.md C11: the single-threaded connection
// multiplexer loop that waits on the readiness registrar, accepts new
// connections, and advances each session's state machine.
package mux

import (
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/webserv-go/webserv/endpoint"
	"github.com/webserv-go/webserv/internal/netpoll"
	"github.com/webserv-go/webserv/session"
	"github.com/webserv-go/webserv/vhost"
)

const (
	waitTimeout     = 1000 * time.Millisecond
	idleSweepPeriod = 1 * time.Second
	listenBacklog   = 128
)

// Multiplexer owns every listening socket and every accepted session in
// one process, driven by a single event-loop goroutine (spec.md §4.11).
type Multiplexer struct {
	registrar   netpoll.Registrar
	vhosts      *vhost.Map
	idleTimeout time.Duration
	log         *log.Entry

	listeners map[uint64]*netpoll.Listener
	sessions  map[uint64]*session.Session

	running   atomic.Bool
	lastSweep time.Time
}

// New builds a Multiplexer over vhosts. idleTimeout of 0 uses each
// session's own default.
func New(vhosts *vhost.Map, idleTimeout time.Duration, logger *log.Entry) (*Multiplexer, error) {
	registrar, err := netpoll.New()
	if err != nil {
		return nil, err
	}
	m := &Multiplexer{
		registrar:   registrar,
		vhosts:      vhosts,
		idleTimeout: idleTimeout,
		log:         logger,
		listeners:   make(map[uint64]*netpoll.Listener),
		sessions:    make(map[uint64]*session.Session),
	}
	m.running.Store(true)
	return m, nil
}

// Listen opens and registers a listening socket for every endpoint the
// server map needs (spec.md C5/C11).
func (m *Multiplexer) Listen(eps []endpoint.Endpoint) error {
	for _, ep := range eps {
		l, err := netpoll.Listen(ep, listenBacklog)
		if err != nil {
			return err
		}
		key := uint64(l.FD().Sys())
		if err := m.registrar.Register(l.FD(), key, netpoll.Readable); err != nil {
			return err
		}
		m.listeners[key] = l
		m.log.WithField("endpoint", ep.String()).Info("listening")
	}
	return nil
}

// Stop requests the loop exit after its current iteration. Safe to call
// from a signal handler.
func (m *Multiplexer) Stop() { m.running.Store(false) }

// Run executes the event loop until Stop is called or Wait returns a
// fatal error.
func (m *Multiplexer) Run() error {
	events := make([]netpoll.Event, 0, 128)
	m.lastSweep = time.Now()
	for m.running.Load() {
		ready, err := m.registrar.Wait(waitTimeout, events)
		if err != nil {
			return err
		}
		for _, ev := range ready {
			if l, ok := m.listeners[ev.Key]; ok {
				m.acceptAll(l)
				continue
			}
			m.dispatch(ev)
		}
		m.sweepIdle()
	}
	m.shutdown()
	return nil
}

// acceptAll drains a listening socket's backlog in one event, per
// spec.md §4.11 step 2.
func (m *Multiplexer) acceptAll(l *netpoll.Listener) {
	for {
		fd, remote, err := l.AcceptOne()
		if err != nil {
			m.log.WithError(err).Warn("accept failed")
			return
		}
		if fd == nil {
			return // drained (EAGAIN)
		}
		fd.SetCloseOnExec()
		key := uint64(fd.Sys())
		s := session.New(fd, key, m.registrar, l.Endpoint(), *remote, m.vhosts, m.idleTimeout,
			m.log.WithField("local", l.Endpoint().String()))
		if err := s.Start(); err != nil {
			m.log.WithError(err).Warn("session start failed")
			fd.Close()
			continue
		}
		m.sessions[key] = s
	}
}

func (m *Multiplexer) dispatch(ev netpoll.Event) {
	s, ok := m.sessions[ev.Key]
	if !ok {
		return
	}
	if ev.Ready&netpoll.Readable != 0 {
		s.OnReadable()
	}
	if s.State() != session.StateClosed && ev.Ready&netpoll.Writable != 0 {
		s.OnWritable()
	}
	if s.State() == session.StateClosed {
		delete(m.sessions, ev.Key)
	}
}

func (m *Multiplexer) sweepIdle() {
	now := time.Now()
	if now.Sub(m.lastSweep) < idleSweepPeriod {
		return
	}
	m.lastSweep = now
	for key, s := range m.sessions {
		if now.After(s.Deadline()) {
			s.OnTimeout()
			// OnTimeout may have queued a 408 and switched to StateWriting
			// instead of closing outright; keep the session registered so
			// dispatch's writable events still reach it.
			if s.State() == session.StateClosed {
				delete(m.sessions, key)
			}
		}
	}
}

func (m *Multiplexer) shutdown() {
	for _, s := range m.sessions {
		s.Close()
	}
	for _, l := range m.listeners {
		l.Close()
	}
	m.registrar.Close()
}
