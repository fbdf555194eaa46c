package conn

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/ehrlich-b/mainmemory/internal/command"
	"github.com/ehrlich-b/mainmemory/internal/dispatch"
	"github.com/ehrlich-b/mainmemory/internal/protocol/binary"
	"github.com/ehrlich-b/mainmemory/internal/table"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) (client net.Conn, done chan error) {
	t.Helper()
	tbl := table.New(table.Options{NParts: 1, VolumeBudget: 1 << 20})
	router := dispatch.New(dispatch.ModeDirect)
	exec := command.NewRouted(tbl, []*dispatch.Router{router})

	client, server := net.Pipe()
	sess := NewSession(server, exec, "test-1.0")

	done = make(chan error, 1)
	go func() { done <- sess.Serve() }()
	t.Cleanup(func() {
		client.Close()
		router.Close()
	})
	return client, done
}

func writeAndExpect(t *testing.T, client net.Conn, r *bufio.Reader, send, want string) {
	t.Helper()
	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte(send))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, want, line)
}

func TestSessionAsciiSetGet(t *testing.T) {
	client, _ := newTestSession(t)
	r := bufio.NewReader(client)

	writeAndExpect(t, client, r, "set foo 0 0 3\r\nbar\r\n", "STORED\r\n")

	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("get foo\r\n"))
	require.NoError(t, err)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "VALUE foo 0 3\r\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "bar\r\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "END\r\n", line)
}

func TestSessionAsciiMiss(t *testing.T) {
	client, _ := newTestSession(t)
	r := bufio.NewReader(client)

	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("get nope\r\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "END\r\n", line)
}

func TestSessionAsciiQuit(t *testing.T) {
	client, done := newTestSession(t)
	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("quit\r\n"))
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not exit after quit")
	}
}

func TestSessionBinarySetGet(t *testing.T) {
	client, _ := newTestSession(t)

	key := []byte("k")
	value := []byte("v1")
	extras := make([]byte, 8)

	req := make([]byte, binary.HeaderLen+len(extras)+len(key)+len(value))
	h := binary.Header{
		Magic:   binary.MagicRequest,
		Opcode:  binary.OpSet,
		KeyLen:  uint16(len(key)),
		ExtLen:  uint8(len(extras)),
		BodyLen: uint32(len(extras) + len(key) + len(value)),
		Opaque:  42,
	}
	h.Encode(req)
	copy(req[binary.HeaderLen:], extras)
	copy(req[binary.HeaderLen+len(extras):], key)
	copy(req[binary.HeaderLen+len(extras)+len(key):], value)

	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write(req)
	require.NoError(t, err)

	var respHdr [binary.HeaderLen]byte
	_, err = readFull(client, respHdr[:])
	require.NoError(t, err)
	resp := binary.Decode(respHdr[:])
	require.Equal(t, binary.OpSet, resp.Opcode)
	require.Equal(t, uint16(binary.StatusNoError), resp.StatusOrVBucket)
	require.Equal(t, uint32(42), resp.Opaque)

	// Now GET it back.
	getReq := make([]byte, binary.HeaderLen+len(key))
	gh := binary.Header{
		Magic:   binary.MagicRequest,
		Opcode:  binary.OpGet,
		KeyLen:  uint16(len(key)),
		BodyLen: uint32(len(key)),
		Opaque:  7,
	}
	gh.Encode(getReq)
	copy(getReq[binary.HeaderLen:], key)

	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = client.Write(getReq)
	require.NoError(t, err)

	_, err = readFull(client, respHdr[:])
	require.NoError(t, err)
	resp = binary.Decode(respHdr[:])
	require.Equal(t, uint16(binary.StatusNoError), resp.StatusOrVBucket)
	require.Equal(t, uint8(4), resp.ExtLen)

	body := make([]byte, resp.BodyLen)
	_, err = readFull(client, body)
	require.NoError(t, err)
	require.Equal(t, value, body[4:])
}

func readFull(c net.Conn, buf []byte) (int, error) {
	c.SetDeadline(time.Now().Add(2 * time.Second))
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
