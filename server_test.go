package mainmemory

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) net.Addr {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1"
	cfg.Port = 0
	cfg.Threads = 2
	srv := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		go func() {
			for srv.Addr() == nil {
				time.Sleep(time.Millisecond)
			}
			close(started)
		}()
		srv.Serve(ctx)
	}()
	<-started
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv.Addr()
}

func TestServerServesASCII(t *testing.T) {
	addr := startTestServer(t)
	c, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer c.Close()

	r := bufio.NewReader(c)
	c.SetDeadline(time.Now().Add(3 * time.Second))
	_, err = c.Write([]byte("set hello 0 0 5\r\nworld\r\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "STORED\r\n", line)

	_, err = c.Write([]byte("get hello\r\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "VALUE hello 0 5\r\n", line)
}
