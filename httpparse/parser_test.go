package httpparse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webserv-go/webserv/internal/bufring"
)

func feedAll(t *testing.T, p *Parser, raw string, chunkSize int) (Event, *bytes.Buffer) {
	t.Helper()
	r := bufring.New(4096)
	defer r.Close()
	sink := &bytes.Buffer{}

	data := []byte(raw)
	var ev Event
	bodyBegun := false
	for off := 0; off < len(data) || off == 0; {
		n := chunkSize
		if off+n > len(data) {
			n = len(data) - off
		}
		r.Reserve(n)
		r.Write(data[off : off+n])
		off += n

		ev = p.Feed(r)
		if ev == EventHeadersParsed && !bodyBegun {
			bodyBegun = true
			ev = p.BeginBody(1<<20, sink)
			ev = p.Feed(r)
		}
		if ev == EventComplete || ev == EventError {
			break
		}
		if n == 0 {
			break
		}
	}
	return ev, sink
}

func TestParsesSimpleGetRequest(t *testing.T) {
	p := NewParser(DefaultLimits)
	raw := "GET /index.html HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n"
	ev, _ := feedAll(t, p, raw, len(raw))
	require.Equal(t, EventComplete, ev)
	req := p.Request()
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/index.html", req.Path)
	assert.Equal(t, "HTTP/1.1", req.Version)
	host, ok := req.Host()
	assert.True(t, ok)
	assert.Equal(t, "example.com", host)
	assert.False(t, req.KeepAliveRequested)
	assert.Equal(t, BodyNone, req.Mode)
}

func TestByteSplitInvariance(t *testing.T) {
	raw := "POST /upload HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello"
	for chunk := 1; chunk <= len(raw); chunk++ {
		p := NewParser(DefaultLimits)
		ev, sink := feedAll(t, p, raw, chunk)
		require.Equal(t, EventComplete, ev, "chunk size %d", chunk)
		assert.Equal(t, "hello", sink.String(), "chunk size %d", chunk)
	}
}

func TestParsesIdentityBody(t *testing.T) {
	p := NewParser(DefaultLimits)
	raw := "POST /upload HTTP/1.1\r\nHost: x\r\nContent-Length: 11\r\n\r\nhello world"
	ev, sink := feedAll(t, p, raw, len(raw))
	require.Equal(t, EventComplete, ev)
	assert.Equal(t, "hello world", sink.String())
}

func TestParsesChunkedBody(t *testing.T) {
	p := NewParser(DefaultLimits)
	raw := "POST /upload HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	ev, sink := feedAll(t, p, raw, len(raw))
	require.Equal(t, EventComplete, ev)
	assert.Equal(t, "hello world", sink.String())
}

func TestChunkedToleratesExtensionsAndTrailers(t *testing.T) {
	p := NewParser(DefaultLimits)
	raw := "POST /upload HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5;foo=bar\r\nhello\r\n0\r\nX-Trailer: ignored\r\n\r\n"
	ev, sink := feedAll(t, p, raw, len(raw))
	require.Equal(t, EventComplete, ev)
	assert.Equal(t, "hello", sink.String())
}

func TestMalformedChunkMissingTerminatorErrors(t *testing.T) {
	p := NewParser(DefaultLimits)
	raw := "POST /upload HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhelloXX0\r\n\r\n"
	ev, _ := feedAll(t, p, raw, len(raw))
	require.Equal(t, EventError, ev)
	assert.Equal(t, 400, p.Err().Status)
}

func TestRequestLineTooLong(t *testing.T) {
	p := NewParser(Limits{MaxRequestLine: 16, MaxHeaderBytes: 1024, MaxHeaderCount: 10})
	raw := "GET /this/path/is/way/too/long/for/the/limit HTTP/1.1\r\n\r\n"
	ev, _ := feedAll(t, p, raw, len(raw))
	require.Equal(t, EventError, ev)
	assert.Equal(t, 414, p.Err().Status)
}

func TestTooManyHeadersRejected(t *testing.T) {
	p := NewParser(Limits{MaxRequestLine: 1024, MaxHeaderBytes: 8192, MaxHeaderCount: 3})
	raw := "GET / HTTP/1.1\r\nHost: x\r\nA: 1\r\nB: 2\r\nC: 3\r\n\r\n"
	ev, _ := feedAll(t, p, raw, len(raw))
	require.Equal(t, EventError, ev)
	assert.Equal(t, 431, p.Err().Status)
}

func TestHeaderCountAtLimitAccepted(t *testing.T) {
	p := NewParser(Limits{MaxRequestLine: 1024, MaxHeaderBytes: 8192, MaxHeaderCount: 3})
	raw := "GET / HTTP/1.1\r\nHost: x\r\nA: 1\r\nB: 2\r\n\r\n"
	ev, _ := feedAll(t, p, raw, len(raw))
	require.Equal(t, EventComplete, ev)
}

func TestUnsupportedVersion(t *testing.T) {
	p := NewParser(DefaultLimits)
	raw := "GET / HTTP/2.0\r\n\r\n"
	ev, _ := feedAll(t, p, raw, len(raw))
	require.Equal(t, EventError, ev)
	assert.Equal(t, 505, p.Err().Status)
}

func TestMalformedRequestLine(t *testing.T) {
	p := NewParser(DefaultLimits)
	raw := "GET /\r\n\r\n"
	ev, _ := feedAll(t, p, raw, len(raw))
	require.Equal(t, EventError, ev)
	assert.Equal(t, 400, p.Err().Status)
}

func TestHeaderFoldingRejected(t *testing.T) {
	p := NewParser(DefaultLimits)
	raw := "GET / HTTP/1.1\r\nHost: example.com\r\n X-Folded: yes\r\n\r\n"
	ev, _ := feedAll(t, p, raw, len(raw))
	require.Equal(t, EventError, ev)
	assert.Equal(t, 400, p.Err().Status)
}

func TestDuplicateContentLengthRejected(t *testing.T) {
	p := NewParser(DefaultLimits)
	raw := "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\nContent-Length: 5\r\n\r\nhello"
	ev, _ := feedAll(t, p, raw, len(raw))
	require.Equal(t, EventError, ev)
	assert.Equal(t, 400, p.Err().Status)
}

func TestConflictingLengthAndTransferEncodingRejected(t *testing.T) {
	p := NewParser(DefaultLimits)
	raw := "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\nhello"
	ev, _ := feedAll(t, p, raw, len(raw))
	require.Equal(t, EventError, ev)
	assert.Equal(t, 400, p.Err().Status)
}

func TestUnknownTransferEncodingRejected(t *testing.T) {
	p := NewParser(DefaultLimits)
	raw := "POST / HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: gzip\r\n\r\n"
	ev, _ := feedAll(t, p, raw, len(raw))
	require.Equal(t, EventError, ev)
	assert.Equal(t, 501, p.Err().Status)
}

func TestBodyExceedingMaxSizeRejected(t *testing.T) {
	p := NewParser(DefaultLimits)
	r := bufring.New(4096)
	defer r.Close()
	raw := "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 100\r\n\r\n"
	r.Write([]byte(raw))
	ev := p.Feed(r)
	require.Equal(t, EventHeadersParsed, ev)
	ev = p.BeginBody(10, &bytes.Buffer{})
	assert.Equal(t, EventError, ev)
	assert.Equal(t, 413, p.Err().Status)
}

func TestResetPreservesBufferedBytesForPipelining(t *testing.T) {
	p := NewParser(DefaultLimits)
	r := bufring.New(4096)
	defer r.Close()

	first := "GET /a HTTP/1.1\r\nHost: x\r\nConnection: keep-alive\r\n\r\n"
	second := "GET /b HTTP/1.1\r\nHost: x\r\n\r\n"
	r.Write([]byte(first + second))

	ev := p.Feed(r)
	require.Equal(t, EventHeadersParsed, ev)
	ev = p.BeginBody(0, &bytes.Buffer{})
	ev = p.Feed(r)
	require.Equal(t, EventComplete, ev)
	assert.Equal(t, "/a", p.Request().Path)

	p.Reset()
	ev = p.Feed(r)
	require.Equal(t, EventHeadersParsed, ev)
	ev = p.BeginBody(0, &bytes.Buffer{})
	ev = p.Feed(r)
	require.Equal(t, EventComplete, ev)
	assert.Equal(t, "/b", p.Request().Path)
}

func TestKeepAliveDefaultsByVersion(t *testing.T) {
	p := NewParser(DefaultLimits)
	raw := "GET / HTTP/1.0\r\nHost: x\r\n\r\n"
	ev, _ := feedAll(t, p, raw, len(raw))
	require.Equal(t, EventComplete, ev)
	assert.False(t, p.Request().KeepAliveRequested)

	p2 := NewParser(DefaultLimits)
	raw2 := "GET / HTTP/1.0\r\nHost: x\r\nConnection: keep-alive\r\n\r\n"
	ev2, _ := feedAll(t, p2, raw2, len(raw2))
	require.Equal(t, EventComplete, ev2)
	assert.True(t, p2.Request().KeepAliveRequested)
}
