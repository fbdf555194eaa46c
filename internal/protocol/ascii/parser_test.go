package ascii

import (
	"strings"
	"testing"

	"github.com/ehrlich-b/mainmemory/internal/membuf"
	"github.com/stretchr/testify/assert"
)

func TestParseGet(t *testing.T) {
	buf := membuf.New()
	buf.Write([]byte("get foo bar\r\n"))
	p := &Parser{}
	cmd, err := p.TryParse(buf)
	assert.NoError(t, err)
	assert.Equal(t, KindGet, cmd.Kind)
	assert.Equal(t, [][]byte{[]byte("foo"), []byte("bar")}, cmd.Keys)
	assert.True(t, buf.Empty())
}

func TestParseGetIncompleteWithoutCRLF(t *testing.T) {
	buf := membuf.New()
	buf.Write([]byte("get foo"))
	p := &Parser{}
	_, err := p.TryParse(buf)
	assert.Equal(t, Incomplete, err)
	assert.Equal(t, 7, buf.Len(), "incomplete parse must not consume anything")
}

func TestParseSetWithValue(t *testing.T) {
	buf := membuf.New()
	buf.Write([]byte("set foo 5 0 3\r\nbar\r\n"))
	p := &Parser{}
	cmd, err := p.TryParse(buf)
	assert.NoError(t, err)
	assert.Equal(t, KindSet, cmd.Kind)
	assert.Equal(t, uint32(5), cmd.Flags)
	assert.Equal(t, 3, cmd.Bytes)
	assert.Equal(t, "bar", string(cmd.Value))
	assert.True(t, buf.Empty())
}

func TestParseSetIncompleteWaitsForValue(t *testing.T) {
	buf := membuf.New()
	buf.Write([]byte("set foo 0 0 10\r\nshort"))
	p := &Parser{}
	_, err := p.TryParse(buf)
	assert.Equal(t, Incomplete, err)
}

func TestParseNoreply(t *testing.T) {
	buf := membuf.New()
	buf.Write([]byte("set foo 0 0 3 noreply\r\nbar\r\n"))
	p := &Parser{}
	cmd, err := p.TryParse(buf)
	assert.NoError(t, err)
	assert.True(t, cmd.NoReply)
}

func TestParseKeyTooLong(t *testing.T) {
	buf := membuf.New()
	longKey := strings.Repeat("k", MaxKeyLen+1)
	buf.Write([]byte("get " + longKey + "\r\n"))
	p := &Parser{}
	_, err := p.TryParse(buf)
	assert.Error(t, err)
	perr, ok := err.(*Error)
	assert.True(t, ok)
	assert.True(t, perr.ClientError)
}

func TestParseUnknownCommand(t *testing.T) {
	buf := membuf.New()
	buf.Write([]byte("bogus\r\n"))
	p := &Parser{}
	_, err := p.TryParse(buf)
	assert.Error(t, err)
	assert.True(t, buf.Empty(), "malformed line is consumed so the session can continue")
}

func TestParseIncrDecr(t *testing.T) {
	buf := membuf.New()
	buf.Write([]byte("incr foo 5\r\n"))
	p := &Parser{}
	cmd, err := p.TryParse(buf)
	assert.NoError(t, err)
	assert.Equal(t, KindIncr, cmd.Kind)
	assert.Equal(t, int64(5), cmd.Delta)
}

func TestParseCAS(t *testing.T) {
	buf := membuf.New()
	buf.Write([]byte("cas foo 0 0 3 42\r\nbar\r\n"))
	p := &Parser{}
	cmd, err := p.TryParse(buf)
	assert.NoError(t, err)
	assert.Equal(t, KindCAS, cmd.Kind)
	assert.Equal(t, uint64(42), cmd.CAS)
}

func TestParseMultipleCommandsPipelined(t *testing.T) {
	buf := membuf.New()
	buf.Write([]byte("get a\r\nget b\r\n"))
	p := &Parser{}

	cmd1, err := p.TryParse(buf)
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a")}, cmd1.Keys)

	cmd2, err := p.TryParse(buf)
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("b")}, cmd2.Keys)
	assert.True(t, buf.Empty())
}

func TestParseFlushAll(t *testing.T) {
	buf := membuf.New()
	buf.Write([]byte("flush_all\r\n"))
	p := &Parser{}
	cmd, err := p.TryParse(buf)
	assert.NoError(t, err)
	assert.Equal(t, KindFlushAll, cmd.Kind)
}

func TestParseQuitAndVersion(t *testing.T) {
	buf := membuf.New()
	buf.Write([]byte("version\r\nquit\r\n"))
	p := &Parser{}

	cmd, err := p.TryParse(buf)
	assert.NoError(t, err)
	assert.Equal(t, KindVersion, cmd.Kind)

	cmd, err = p.TryParse(buf)
	assert.NoError(t, err)
	assert.Equal(t, KindQuit, cmd.Kind)
}
