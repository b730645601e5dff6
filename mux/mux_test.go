//go:build linux

package mux

import (
	"io"
	"net"
	"os"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/webserv-go/webserv/config"
	"github.com/webserv-go/webserv/endpoint"
	"github.com/webserv-go/webserv/vhost"
)

// TestMultiplexerServesRealConnection exercises the full accept/read/write
// path over a real TCP socket, end to end through Run, instead of driving
// a Session directly as the session package's tests do.
func TestMultiplexerServesRealConnection(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/index.html", []byte("hello from mux"), 0o644))

	ep := endpoint.MustParse("127.0.0.1", 18282)
	server := &config.VirtualServer{
		Root:              dir,
		Indexes:           []string{"index.html"},
		KeepAlive:         true,
		ClientMaxBodySize: 1 << 20,
		ResolvedEndpoints: []endpoint.Endpoint{ep},
	}
	vhosts := vhost.Build([]*config.VirtualServer{server})

	logger := log.New()
	logger.SetLevel(log.ErrorLevel)

	m, err := New(vhosts, 30*time.Second, logger.WithField("test", true))
	require.NoError(t, err)
	require.NoError(t, m.Listen([]endpoint.Endpoint{ep}))

	runDone := make(chan error, 1)
	go func() { runDone <- m.Run() }()
	defer func() {
		m.Stop()
		<-runDone
	}()

	conn, err := net.DialTimeout("tcp", "127.0.0.1:18282", 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	body, err := io.ReadAll(conn)
	require.NoError(t, err)
	require.Contains(t, string(body), "200")
	require.Contains(t, string(body), "hello from mux")
}
