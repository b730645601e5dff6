// Package httpparse implements spec.md C7: an incremental HTTP/1.1
// request parser that consumes bytes from an internal/bufring.Ring and
// never blocks, never backtracks further than its own internal line
// buffer, and is restartable across pipelined requests.
package httpparse

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/webserv-go/webserv/internal/bufring"
	"github.com/webserv-go/webserv/internal/hack"
)

// Event is the outcome of one Feed call.
type Event int

const (
	// EventNeedMore means every available byte was consumed and no
	// further state transition is possible until more bytes arrive.
	EventNeedMore Event = iota
	// EventHeadersParsed means the request line and header block are
	// complete. The caller must inspect Request() and then call
	// BeginBody before further Feed calls make progress.
	EventHeadersParsed
	// EventComplete means the full request (headers and body) is parsed.
	EventComplete
	// EventError means parsing failed; Err() holds the status/cause.
	EventError
)

// BodySink receives decoded body bytes in order. Implementations choose
// where those bytes live (in-memory buffer, spilled temp file); spec.md
// §4.6 assigns that storage decision to the session (C10), not the parser.
type BodySink interface {
	Write(p []byte) (int, error)
}

type state int

const (
	stateRequestLine state = iota
	stateHeaders
	stateHeadersDone
	stateBodyIdentity
	stateBodyChunked
	stateBodyNone
	stateComplete
	stateError
)

type chunkState int

const (
	chunkSize chunkState = iota
	chunkData
	chunkDataCRLF
	chunkTrailer
)

var crlf = []byte("\r\n")

// Parser is one request's worth of incremental HTTP/1.1 decoding state.
// Not safe for concurrent use; one Parser belongs to one session.
type Parser struct {
	limits Limits

	state state
	err   *Error

	req Request

	headerBytes int
	headerCount int
	hasTE       bool
	teIsChunked bool

	sink          BodySink
	maxBodySize   int64
	bodyRemaining int64
	bodyWritten   int64

	chunk          chunkState
	chunkRemaining int64
}

// NewParser constructs a Parser ready for the first request on a fresh
// connection. Zero-valued limits fall back to DefaultLimits.
func NewParser(limits Limits) *Parser {
	return &Parser{limits: limits.orDefault(), state: stateRequestLine}
}

// Request returns the parsed request. Valid once Feed has returned
// EventHeadersParsed or EventComplete.
func (p *Parser) Request() *Request { return &p.req }

// Err returns the failure that produced EventError, or nil.
func (p *Parser) Err() *Error { return p.err }

// Reset clears per-request scratch state so the Parser can decode the
// next pipelined request, without touching any bytes still buffered in
// the caller's ring (spec.md §4.6: "preserves buffered bytes that may
// belong to the next request").
func (p *Parser) Reset() {
	*p = Parser{limits: p.limits, state: stateRequestLine}
}

func (p *Parser) fail(e *Error) Event {
	p.state = stateError
	p.err = e
	return EventError
}

// Feed advances the state machine using bytes available in r, consuming
// everything it can make progress on. It returns as soon as no further
// transition is possible without more input, without blocking.
func (p *Parser) Feed(r *bufring.Ring) Event {
	for {
		switch p.state {
		case stateRequestLine:
			line, ev, ok := p.readLine(r, p.limits.MaxRequestLine, errRequestLineTooLong)
			if !ok {
				return ev
			}
			if err := p.parseRequestLine(line); err != nil {
				return p.fail(err)
			}
			p.state = stateHeaders

		case stateHeaders:
			if r.Readable() == 0 {
				return EventNeedMore
			}
			idx := r.Find(crlf)
			if idx < 0 {
				if r.Readable() > p.limits.MaxHeaderBytes-p.headerBytes {
					return p.fail(errHeadersTooLarge())
				}
				return EventNeedMore
			}
			if idx == 0 {
				r.Consume(2)
				if err := p.finishHeaders(); err != nil {
					return p.fail(err)
				}
				p.state = stateHeadersDone
				return EventHeadersParsed
			}
			if p.headerBytes+idx > p.limits.MaxHeaderBytes {
				return p.fail(errHeadersTooLarge())
			}
			if p.headerCount >= p.limits.MaxHeaderCount {
				return p.fail(errTooManyHeaders())
			}
			line := make([]byte, idx)
			r.Peek(line)
			r.Consume(idx + 2)
			p.headerBytes += idx
			if line[0] == ' ' || line[0] == '\t' {
				return p.fail(errHeaderContinuation())
			}
			if err := p.addHeaderLine(line); err != nil {
				return p.fail(err)
			}

		case stateHeadersDone:
			// Waiting for the caller to call BeginBody.
			return EventHeadersParsed

		case stateBodyIdentity:
			if p.bodyRemaining == 0 {
				p.state = stateComplete
				return EventComplete
			}
			n := r.Readable()
			if n == 0 {
				return EventNeedMore
			}
			if int64(n) > p.bodyRemaining {
				n = int(p.bodyRemaining)
			}
			buf := make([]byte, n)
			r.Read(buf)
			if _, err := p.sink.Write(buf); err != nil {
				return p.fail(newError(500, "body write failed"))
			}
			p.bodyRemaining -= int64(n)
			if p.bodyRemaining == 0 {
				p.state = stateComplete
				return EventComplete
			}

		case stateBodyChunked:
			ev, done := p.feedChunked(r)
			if done {
				return ev
			}

		case stateBodyNone:
			p.state = stateComplete
			return EventComplete

		case stateComplete:
			return EventComplete

		case stateError:
			return EventError
		}
	}
}

// readLine extracts one CRLF-terminated line up to maxLen bytes,
// consuming the line and its CRLF from r. ok is false if more data is
// needed; in that case ev tells the caller what to return (EventNeedMore
// or, via tooLongErr, EventError once the limit is provably exceeded).
func (p *Parser) readLine(r *bufring.Ring, maxLen int, tooLongErr func() *Error) ([]byte, Event, bool) {
	idx := r.Find(crlf)
	if idx < 0 {
		if r.Readable() > maxLen {
			return nil, p.fail(tooLongErr()), false
		}
		return nil, EventNeedMore, false
	}
	if idx > maxLen {
		return nil, p.fail(tooLongErr()), false
	}
	line := make([]byte, idx)
	r.Peek(line)
	r.Consume(idx + 2)
	return line, EventNeedMore, true
}

func (p *Parser) parseRequestLine(line []byte) *Error {
	parts := bytes.SplitN(line, []byte(" "), 3)
	if len(parts) != 3 {
		return errMalformedRequestLine()
	}
	// line is a one-shot allocation owned solely by this call, so the
	// []byte -> string conversions below can skip the copy.
	method := hack.ByteSliceToString(parts[0])
	if method == "" || !isValidToken(method) {
		return errMalformedRequestLine()
	}
	target := hack.ByteSliceToString(parts[1])
	if target == "" {
		return errMalformedRequestLine()
	}
	version := hack.ByteSliceToString(parts[2])
	switch version {
	case "HTTP/1.0", "HTTP/1.1":
	default:
		return errUnsupportedVersion()
	}
	p.req.Method = method
	p.req.Target = target
	p.req.Version = version
	if qi := strings.IndexByte(target, '?'); qi >= 0 {
		p.req.Path = target[:qi]
		p.req.Query = target[qi+1:]
	} else {
		p.req.Path = target
	}
	p.req.KeepAliveRequested = version == "HTTP/1.1"
	return nil
}

func isValidToken(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isTchar(s[i]) {
			return false
		}
	}
	return true
}

func isTchar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

func (p *Parser) addHeaderLine(line []byte) *Error {
	ci := bytes.IndexByte(line, ':')
	if ci <= 0 {
		return errMalformedHeader()
	}
	name := strings.TrimSpace(hack.ByteSliceToString(line[:ci]))
	value := strings.TrimSpace(hack.ByteSliceToString(line[ci+1:]))
	if name == "" || !isValidToken(name) {
		return errMalformedHeader()
	}

	if strings.EqualFold(name, "Content-Length") {
		if p.req.HasContentLength {
			return errDuplicateContentLen()
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return errMalformedHeader()
		}
		p.req.ContentLength = n
		p.req.HasContentLength = true
	}
	if strings.EqualFold(name, "Transfer-Encoding") {
		p.hasTE = true
		// Last coding in the list governs; anything other than a bare
		// "chunked" (ignoring case/whitespace around commas) is unsupported.
		codings := strings.Split(value, ",")
		last := strings.ToLower(strings.TrimSpace(codings[len(codings)-1]))
		p.teIsChunked = last == "chunked"
		if !p.teIsChunked {
			return errUnknownTransferEnc()
		}
	}
	if strings.EqualFold(name, "Connection") {
		for _, tok := range strings.Split(value, ",") {
			switch strings.ToLower(strings.TrimSpace(tok)) {
			case "close":
				p.req.KeepAliveRequested = false
			case "keep-alive":
				p.req.KeepAliveRequested = true
			}
		}
	}

	p.req.Headers = append(p.req.Headers, Header{Name: name, Value: value})
	p.headerCount++
	return nil
}

func (p *Parser) finishHeaders() *Error {
	if p.req.HasContentLength && p.hasTE {
		return errConflictingLengthTE()
	}
	switch {
	case p.hasTE && p.teIsChunked:
		p.req.Mode = BodyChunked
	case p.req.HasContentLength && p.req.ContentLength > 0:
		p.req.Mode = BodyIdentity
	default:
		p.req.Mode = BodyNone
	}
	return nil
}

// BeginBody commits to a body-size ceiling and a destination sink, then
// arms the appropriate body state. The caller (the session) resolves
// maxBodySize from the virtual server once the Host header is known,
// which is why this is a separate step from Feed reaching
// EventHeadersParsed.
func (p *Parser) BeginBody(maxBodySize int64, sink BodySink) Event {
	p.sink = sink
	p.maxBodySize = maxBodySize
	switch p.req.Mode {
	case BodyIdentity:
		if p.req.ContentLength > maxBodySize {
			return p.fail(errBodyTooLarge())
		}
		p.bodyRemaining = p.req.ContentLength
		p.state = stateBodyIdentity
	case BodyChunked:
		p.chunk = chunkSize
		p.state = stateBodyChunked
	default:
		p.state = stateBodyNone
	}
	return EventNeedMore
}

// feedChunked advances the chunked sub-state-machine (spec.md §4.6). It
// returns done=true when Feed should return ev to its caller, done=false
// to keep looping in Feed's outer switch (another chunk-sub-state made
// progress without exhausting the ring).
func (p *Parser) feedChunked(r *bufring.Ring) (ev Event, done bool) {
	switch p.chunk {
	case chunkSize:
		line, e, ok := p.readLine(r, 64, errChunkMalformed)
		if !ok {
			return e, true
		}
		size, perr := parseChunkSize(line)
		if perr != nil {
			return p.fail(perr), true
		}
		if size == 0 {
			p.chunk = chunkTrailer
			return EventNeedMore, false
		}
		p.bodyWritten += size
		if p.bodyWritten > p.maxBodySize {
			return p.fail(errBodyTooLarge()), true
		}
		p.chunkRemaining = size
		p.chunk = chunkData
		return EventNeedMore, false

	case chunkData:
		n := r.Readable()
		if n == 0 {
			return EventNeedMore, true
		}
		if int64(n) > p.chunkRemaining {
			n = int(p.chunkRemaining)
		}
		buf := make([]byte, n)
		r.Read(buf)
		if _, err := p.sink.Write(buf); err != nil {
			return p.fail(newError(500, "body write failed")), true
		}
		p.chunkRemaining -= int64(n)
		if p.chunkRemaining == 0 {
			p.chunk = chunkDataCRLF
		}
		return EventNeedMore, false

	case chunkDataCRLF:
		if r.Readable() < 2 {
			return EventNeedMore, true
		}
		var tail [2]byte
		r.Peek(tail[:])
		if tail[0] != '\r' || tail[1] != '\n' {
			return p.fail(errChunkMalformed()), true
		}
		r.Consume(2)
		p.chunk = chunkSize
		return EventNeedMore, false

	case chunkTrailer:
		line, e, ok := p.readLine(r, p.limits.MaxHeaderBytes, errHeadersTooLarge)
		if !ok {
			return e, true
		}
		if len(line) == 0 {
			p.state = stateComplete
			return EventComplete, true
		}
		// Trailer lines are read and discarded (spec.md §4.6 /
		// SPEC_FULL.md §3: original_source's ChunkedParser drops them too).
		return EventNeedMore, false
	}
	return EventNeedMore, true
}

func parseChunkSize(line []byte) (int64, *Error) {
	if si := bytes.IndexByte(line, ';'); si >= 0 {
		line = line[:si]
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return 0, errChunkMalformed()
	}
	n, err := strconv.ParseInt(string(line), 16, 64)
	if err != nil || n < 0 {
		return 0, errChunkMalformed()
	}
	return n, nil
}
