package membuf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferWriteRead(t *testing.T) {
	b := New()
	n, err := b.Write([]byte("hello world"))
	assert.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, 11, b.Len())

	out := make([]byte, 5)
	n, err = b.Read(out)
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(out))
	assert.Equal(t, 6, b.Len())
}

func TestBufferSpanningChunks(t *testing.T) {
	b := New()
	big := bytes.Repeat([]byte("x"), size8k*3+17)
	_, err := b.Write(big)
	assert.NoError(t, err)
	assert.Equal(t, len(big), b.Len())

	out := make([]byte, len(big))
	total := 0
	for total < len(big) {
		n, err := b.Read(out[total:])
		assert.NoError(t, err)
		total += n
	}
	assert.Equal(t, big, out)
	assert.True(t, b.Empty())
}

func TestBufferSplice(t *testing.T) {
	b := New()
	_, _ = b.Write([]byte("abc"))

	released := false
	ext := []byte("EXTERNAL")
	b.Splice(ext, func() { released = true })
	_, _ = b.Write([]byte("def"))

	out := make([]byte, b.Len())
	n, err := b.Read(out)
	assert.NoError(t, err)
	assert.Equal(t, "abcEXTERNALdef", string(out[:n]))
	assert.True(t, released)
}

func TestBufferSpliceReleaseOnlyAfterConsumed(t *testing.T) {
	b := New()
	released := false
	b.Splice([]byte("xyz"), func() { released = true })

	small := make([]byte, 1)
	_, _ = b.Read(small)
	assert.False(t, released)

	rest := make([]byte, 2)
	_, _ = b.Read(rest)
	assert.True(t, released)
}

func TestBufferDiscard(t *testing.T) {
	b := New()
	_, _ = b.Write([]byte("0123456789"))
	n := b.Discard(4)
	assert.Equal(t, 4, n)
	assert.Equal(t, 6, b.Len())

	out := make([]byte, 6)
	_, _ = b.Read(out)
	assert.Equal(t, "456789", string(out))
}

func TestBufferPeekByte(t *testing.T) {
	b := New()
	_, _ = b.Write([]byte("abc"))
	v, ok := b.PeekByte(1)
	assert.True(t, ok)
	assert.Equal(t, byte('b'), v)
	assert.Equal(t, 3, b.Len(), "peek must not consume")

	_, ok = b.PeekByte(10)
	assert.False(t, ok)
}

func TestBufferFillFromAndFlushTo(t *testing.T) {
	b := New()
	src := bytes.NewBufferString("incoming payload")
	n, err := b.FillFrom(src)
	assert.NoError(t, err)
	assert.Equal(t, len("incoming payload"), n)

	var dst bytes.Buffer
	written, err := b.FlushTo(&dst, b.Len())
	assert.NoError(t, err)
	assert.Equal(t, n, written)
	assert.Equal(t, "incoming payload", dst.String())
	assert.True(t, b.Empty())
}

func TestBufferWriteToDrainsEverything(t *testing.T) {
	b := New()
	_, _ = b.Write(bytes.Repeat([]byte("z"), 100))
	b.Splice([]byte("ext"), nil)
	_, _ = b.Write([]byte("tail"))

	var dst bytes.Buffer
	n, err := b.WriteTo(&dst)
	assert.NoError(t, err)
	assert.Equal(t, int64(107), n)
	assert.True(t, b.Empty())
}

func TestBufferResetReleasesExternalSegments(t *testing.T) {
	b := New()
	released := false
	b.Splice([]byte("borrowed"), func() { released = true })
	b.Reset()
	assert.True(t, released)
	assert.True(t, b.Empty())
}
