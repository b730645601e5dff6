// Package session implements spec.md C10: the per-connection state
// machine that drives an httpparse.Parser over a non-blocking socket,
// dispatches completed requests to handlers, and serializes the
// response back onto the wire.
package session

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/webserv-go/webserv/concurrency/gopool"
	"github.com/webserv-go/webserv/config"
	"github.com/webserv-go/webserv/endpoint"
	"github.com/webserv-go/webserv/handlers"
	"github.com/webserv-go/webserv/httpparse"
	"github.com/webserv-go/webserv/internal/bufring"
	"github.com/webserv-go/webserv/internal/netpoll"
	"github.com/webserv-go/webserv/location"
	"github.com/webserv-go/webserv/unsafex"
	"github.com/webserv-go/webserv/vhost"
)

// State mirrors spec.md §4.10's connection lifecycle.
type State int

const (
	StateAccepted State = iota
	StateReading
	StateProcessing
	StateWriting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateReading:
		return "reading"
	case StateProcessing:
		return "processing"
	case StateWriting:
		return "writing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	defaultIdleTimeout  = 30 * time.Second
	inputRingCapacity   = 4 * 1024
	outputRingCapacity  = 8 * 1024
	perEventReadBudget  = 64 * 1024
	perEventWriteBudget = 64 * 1024
	fileReadChunk       = 32 * 1024
)

// Session owns one accepted client connection end to end.
type Session struct {
	fd         *netpoll.FD
	key        uint64
	registrar  netpoll.Registrar
	local      endpoint.Endpoint
	remote     endpoint.Endpoint
	vhosts     *vhost.Map
	log        *log.Entry
	idleTO     time.Duration
	deadline   time.Time
	state      State
	in         *bufring.Ring
	out        *bufring.Ring
	parser     *httpparse.Parser
	body       *bodyStore
	server     *config.VirtualServer
	policy     location.Policy
	closeAfter bool

	pendingFile *pendingFile
	bytesIn     int64
	bytesOut    int64
	reqBytesIn  int64 // bytes read for the request currently in flight; reset once it completes

	lastMethod string
	lastPath   string
	lastStatus int
}

type pendingFile struct {
	path      string
	remaining int64
	offset    int64
	f         fileReader
}

type fileReader interface {
	ReadAt(p []byte, off int64) (int, error)
	Close() error
}

// New constructs a session in the ACCEPTED state for fd, accepted on
// local and identified by key for registrar operations.
func New(fd *netpoll.FD, key uint64, registrar netpoll.Registrar, local, remote endpoint.Endpoint, vhosts *vhost.Map, idleTimeout time.Duration, logger *log.Entry) *Session {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	s := &Session{
		fd:        fd,
		key:       key,
		registrar: registrar,
		local:     local,
		remote:    remote,
		vhosts:    vhosts,
		log:       logger,
		idleTO:    idleTimeout,
		state:     StateAccepted,
		in:        bufring.New(inputRingCapacity),
		out:       bufring.New(outputRingCapacity),
		parser:    httpparse.NewParser(httpparse.DefaultLimits),
	}
	s.armDeadline()
	return s
}

func (s *Session) armDeadline() { s.deadline = time.Now().Add(s.idleTO) }

// Deadline returns when the session should be timed out if idle.
func (s *Session) Deadline() time.Time { return s.deadline }

// State returns the session's current lifecycle state.
func (s *Session) State() State { return s.state }

// Key returns the registrar key this session was registered under.
func (s *Session) Key() uint64 { return s.key }

// FD returns the underlying client descriptor.
func (s *Session) FD() *netpoll.FD { return s.fd }

// Start registers the session for readability, completing the
// ACCEPTED -> READING transition.
func (s *Session) Start() error {
	if err := s.registrar.Register(s.fd, s.key, netpoll.Readable); err != nil {
		return err
	}
	s.state = StateReading
	s.log.WithField("remote", s.remote.String()).Debug("session accepted")
	return nil
}

// OnTimeout is called by the multiplexer's idle sweep when Deadline has
// passed with no progress. Per spec.md §4.11: a connection that's
// mid-request (some of the current request has arrived but the response
// hasn't started) with nothing already queued on the wire gets a 408
// instead of a silent drop; a connection idling between keep-alive
// requests, or one already streaming a response, is just closed.
func (s *Session) OnTimeout() {
	s.log.WithField("state", s.state.String()).Debug("session idle timeout")
	if s.state == StateReading && s.reqBytesIn > 0 && s.out.Readable() == 0 {
		s.armDeadline()
		s.processErrorStatus(408, true)
		return
	}
	s.Close()
}

// OnReadable drains the socket into the input ring and feeds the
// parser, bounded per spec.md §4.10 to preserve fairness across
// sessions sharing one event-loop iteration.
func (s *Session) OnReadable() {
	if s.state != StateReading {
		return
	}
	budget := perEventReadBudget
	made := false
	for budget > 0 {
		s.in.Reserve(4096)
		chunk := s.in.Writable()
		if chunk > budget {
			chunk = budget
		}
		if chunk == 0 {
			break
		}
		scratch := make([]byte, chunk)
		n, err := s.fd.Read(scratch)
		if err != nil {
			if ioErr, ok := err.(*netpoll.IOError); ok && ioErr.Kind == netpoll.KindWouldBlock {
				break
			}
			s.closeWithLog("read error")
			return
		}
		if n == 0 {
			s.closeWithLog("peer closed during read")
			return
		}
		s.in.Write(scratch[:n])
		s.bytesIn += int64(n)
		s.reqBytesIn += int64(n)
		budget -= n
		made = true
	}
	if made {
		s.armDeadline()
	}
	s.advanceParser()
}

func (s *Session) advanceParser() {
	for {
		ev := s.parser.Feed(s.in)
		switch ev {
		case httpparse.EventNeedMore:
			return
		case httpparse.EventHeadersParsed:
			if !s.beginBody() {
				return
			}
		case httpparse.EventComplete:
			s.process()
			return
		case httpparse.EventError:
			s.processError(s.parser.Err())
			return
		}
	}
}

func (s *Session) beginBody() bool {
	req := s.parser.Request()
	host, hasHost := req.Host()
	if req.Version == "HTTP/1.1" && !hasHost {
		s.processErrorStatus(400, true)
		return false
	}
	srv, ok := s.vhosts.Resolve(s.local, host)
	if !ok {
		s.processErrorStatus(400, true)
		return false
	}
	s.server = srv
	s.body = newBodyStore()
	ev := s.parser.BeginBody(srv.ClientMaxBodySize, s.body)
	if ev == httpparse.EventError {
		s.processError(s.parser.Err())
		return false
	}
	return true
}

func (s *Session) process() {
	s.state = StateProcessing
	req := s.parser.Request()

	if s.server == nil {
		host, hasHost := req.Host()
		if req.Version == "HTTP/1.1" && !hasHost {
			s.processErrorStatus(400, true)
			return
		}
		srv, ok := s.vhosts.Resolve(s.local, host)
		if !ok {
			s.processErrorStatus(400, true)
			return
		}
		s.server = srv
	}

	resolver := location.NewResolver(s.server)
	s.policy = resolver.Resolve(req.Path)

	bodyReader, _ := s.readerOrNil()
	bodySize := int64(0)
	if s.body != nil {
		bodySize = s.body.Size()
	}

	method := config.Method(req.Method)
	ctx := &handlers.Context{
		Method:   method,
		Path:     req.Path,
		Target:   req.Target,
		Headers:  req.Headers,
		Policy:   s.policy,
		Server:   s.server,
		Body:     bodyReader,
		BodySize: bodySize,
	}
	resp := handlers.Dispatch(ctx)
	s.lastMethod = req.Method
	s.lastPath = req.Path
	s.lastStatus = resp.Status
	s.writeResponse(resp, req.Version, req.KeepAliveRequested)
}

func (s *Session) readerOrNil() (io.Reader, error) {
	if s.body == nil {
		return nil, nil
	}
	return s.body.Reader()
}

func (s *Session) processError(e *httpparse.Error) {
	status := 500
	force := true
	if e != nil {
		status = e.Status
		force = status != 413
	}
	s.processErrorStatus(status, force)
}

func (s *Session) processErrorStatus(status int, forceClose bool) {
	s.state = StateProcessing
	resp := handlers.ResolveErrorPage(s.server, status)
	resp.ForceClose = forceClose
	s.lastMethod = "-"
	s.lastPath = "-"
	s.lastStatus = resp.Status
	s.writeResponse(resp, "HTTP/1.1", false)
}

func (s *Session) writeResponse(resp *handlers.Response, version string, reqKeepAlive bool) {
	// reqKeepAlive already carries the per-version default (HTTP/1.1 on,
	// HTTP/1.0 off) as adjusted by the request's Connection header.
	keepAlive := reqKeepAlive && !resp.ForceClose
	if s.server != nil && !s.server.KeepAlive {
		keepAlive = false
	}
	s.closeAfter = !keepAlive

	head := buildHead(resp, keepAlive)
	s.out.Reserve(len(head))
	s.out.Write(head)

	if resp.File != nil {
		s.pendingFile = &pendingFile{path: resp.File.Path, remaining: resp.File.Size}
	} else if len(resp.Body) > 0 {
		s.out.Reserve(len(resp.Body))
		s.out.Write(resp.Body)
	}

	if s.body != nil {
		s.body.Close()
		s.body = nil
	}

	s.state = StateWriting
	if err := s.registrar.Modify(s.fd, s.key, netpoll.Writable); err != nil {
		s.closeWithLog("registrar modify failed")
	}
}

func buildHead(resp *handlers.Response, keepAlive bool) []byte {
	var b strings.Builder
	reason := handlers.ReasonPhrase(resp.Status)
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", resp.Status, reason)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123))
	b.WriteString("Server: webserv\r\n")
	if resp.ContentType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", resp.ContentType)
	}
	fmt.Fprintf(&b, "Content-Length: %s\r\n", strconv.FormatInt(resp.ContentLength(), 10))
	if resp.HasLastModified {
		fmt.Fprintf(&b, "Last-Modified: %s\r\n", resp.LastModified.UTC().Format(time.RFC1123))
	}
	if resp.HasLocation {
		fmt.Fprintf(&b, "Location: %s\r\n", resp.Location)
	}
	if len(resp.Allow) > 0 {
		names := make([]string, len(resp.Allow))
		for i, m := range resp.Allow {
			names[i] = string(m)
		}
		fmt.Fprintf(&b, "Allow: %s\r\n", strings.Join(names, ", "))
	}
	if keepAlive {
		b.WriteString("Connection: keep-alive\r\n")
	} else {
		b.WriteString("Connection: close\r\n")
	}
	b.WriteString("\r\n")
	// b.String() already owns a private copy of the builder's buffer, so
	// handing it to the output ring (which copies it again via Write)
	// doesn't need a second allocation here.
	return unsafex.StringToBinary(b.String())
}

// OnWritable drains the output ring and any staged file into the
// socket, bounded per event for fairness (spec.md §4.10).
func (s *Session) OnWritable() {
	if s.state != StateWriting {
		return
	}
	budget := perEventWriteBudget
	for budget > 0 {
		if s.out.Readable() > 0 {
			n, done := s.drainRing(budget)
			budget -= n
			if !done {
				return
			}
			continue
		}
		if s.pendingFile != nil {
			n, done := s.drainFile(budget)
			budget -= n
			if !done {
				return
			}
			continue
		}
		break
	}
	if s.out.Readable() == 0 && s.pendingFile == nil {
		s.finishResponse()
	}
}

func (s *Session) drainRing(budget int) (int, bool) {
	n := s.out.Readable()
	if n > budget {
		n = budget
	}
	buf := make([]byte, n)
	s.out.Peek(buf)
	written, err := s.fd.Write(buf)
	if err != nil {
		if ioErr, ok := err.(*netpoll.IOError); ok && ioErr.Kind == netpoll.KindWouldBlock {
			return 0, false
		}
		s.closeWithLog("write error")
		return 0, false
	}
	s.out.Consume(written)
	s.bytesOut += int64(written)
	s.armDeadline()
	return written, true
}

func (s *Session) drainFile(budget int) (int, bool) {
	pf := s.pendingFile
	if pf.f == nil {
		f, err := openFile(pf.path)
		if err != nil {
			s.closeWithLog("open staged file failed")
			return 0, false
		}
		pf.f = f
	}
	n := fileReadChunk
	if n > budget {
		n = budget
	}
	if int64(n) > pf.remaining {
		n = int(pf.remaining)
	}
	if n == 0 {
		pf.f.Close()
		s.pendingFile = nil
		return 0, true
	}
	buf := make([]byte, n)
	read, err := pf.f.ReadAt(buf, pf.offset)
	if err != nil && read == 0 {
		pf.f.Close()
		s.closeWithLog("read staged file failed")
		return 0, false
	}
	written, werr := s.fd.Write(buf[:read])
	if werr != nil {
		if ioErr, ok := werr.(*netpoll.IOError); ok && ioErr.Kind == netpoll.KindWouldBlock {
			return 0, false
		}
		pf.f.Close()
		s.closeWithLog("write error")
		return 0, false
	}
	pf.offset += int64(written)
	pf.remaining -= int64(written)
	s.bytesOut += int64(written)
	s.armDeadline()
	if pf.remaining == 0 {
		pf.f.Close()
		s.pendingFile = nil
	}
	return written, true
}

func (s *Session) logAccess() {
	entry := s.log
	method, path, status := s.lastMethod, s.lastPath, s.lastStatus
	remote := s.remote.String()
	gopool.Go(func() {
		entry.WithFields(log.Fields{
			"method": method,
			"path":   path,
			"status": status,
			"remote": remote,
		}).Info("request")
	})
}

func (s *Session) finishResponse() {
	s.logAccess()
	if s.closeAfter {
		s.closeWithLog("response complete, connection closing")
		return
	}
	s.parser.Reset()
	s.server = nil
	s.policy = location.Policy{}
	s.reqBytesIn = 0
	s.state = StateReading
	if err := s.registrar.Modify(s.fd, s.key, netpoll.Readable); err != nil {
		s.closeWithLog("registrar modify failed")
		return
	}
	s.armDeadline()
	s.advanceParser()
}

func (s *Session) closeWithLog(reason string) {
	s.log.WithFields(log.Fields{
		"reason":    reason,
		"remote":    s.remote.String(),
		"bytes_in":  s.bytesIn,
		"bytes_out": s.bytesOut,
	}).Debug("closing session")
	s.Close()
}

// Close releases every resource the session owns: the descriptor, the
// ring buffers, and any spilled body file.
func (s *Session) Close() {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.registrar.Unregister(s.fd)
	if s.body != nil {
		s.body.Close()
	}
	if s.pendingFile != nil && s.pendingFile.f != nil {
		s.pendingFile.f.Close()
	}
	s.in.Close()
	s.out.Close()
	s.fd.Close()
}
