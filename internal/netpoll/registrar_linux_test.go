//go:build linux

package netpoll

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webserv-go/webserv/endpoint"
)

func TestListenAcceptAndReadiness(t *testing.T) {
	// endpoint.Parse rejects port 0, so use a fixed high port instead.
	ep := endpoint.MustParse("127.0.0.1", 18181)

	l, err := Listen(ep, 128)
	require.NoError(t, err)
	defer l.Close()

	reg, err := New()
	require.NoError(t, err)
	defer reg.Close()

	require.NoError(t, reg.Register(l.FD(), uint64(l.FD().Sys()), Readable))

	dialDone := make(chan error, 1)
	go func() {
		c, err := net.DialTimeout("tcp", "127.0.0.1:18181", time.Second)
		if err == nil {
			defer c.Close()
			c.Write([]byte("hi"))
		}
		dialDone <- err
	}()

	events, err := reg.Wait(2*time.Second, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, uint64(l.FD().Sys()), events[0].Key)
	require.NotZero(t, events[0].Ready&Readable)

	client, remote, err := l.AcceptOne()
	require.NoError(t, err)
	require.NotNil(t, client)
	require.NotNil(t, remote)
	client.Close()

	require.NoError(t, <-dialDone)
}
