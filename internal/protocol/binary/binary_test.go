package binary

import (
	"testing"

	"github.com/ehrlich-b/mainmemory/internal/membuf"
	"github.com/stretchr/testify/assert"
)

func buildGetRequest(key string) []byte {
	h := Header{Magic: MagicRequest, Opcode: OpGet, KeyLen: uint16(len(key)), BodyLen: uint32(len(key))}
	b := make([]byte, HeaderLen+len(key))
	h.Encode(b)
	copy(b[HeaderLen:], key)
	return b
}

func TestTryParseGet(t *testing.T) {
	buf := membuf.New()
	buf.Write(buildGetRequest("hello"))

	req, err := TryParse(buf)
	assert.NoError(t, err)
	assert.Equal(t, OpGet, req.Header.Opcode)
	assert.Equal(t, "hello", string(req.Key))
	assert.True(t, buf.Empty())
}

func TestTryParseIncompleteHeader(t *testing.T) {
	buf := membuf.New()
	buf.Write([]byte{MagicRequest, byte(OpGet)})

	_, err := TryParse(buf)
	assert.Equal(t, Incomplete, err)
	assert.Equal(t, 2, buf.Len())
}

func TestTryParseBadMagic(t *testing.T) {
	buf := membuf.New()
	req := buildGetRequest("k")
	req[0] = 0x00
	buf.Write(req)

	_, err := TryParse(buf)
	assert.Equal(t, ErrBadMagic, err)
}

func TestTryParseSetWithExtras(t *testing.T) {
	key := "k"
	value := "v"
	extras := make([]byte, 8)
	SetExtras{Flags: 9, ExpTime: 0}.Encode(extras)

	bodyLen := len(extras) + len(key) + len(value)
	h := Header{Magic: MagicRequest, Opcode: OpSet, KeyLen: uint16(len(key)), ExtLen: 8, BodyLen: uint32(bodyLen)}
	b := make([]byte, HeaderLen+bodyLen)
	h.Encode(b)
	copy(b[HeaderLen:], extras)
	copy(b[HeaderLen+8:], key)
	copy(b[HeaderLen+8+len(key):], value)

	buf := membuf.New()
	buf.Write(b)

	req, err := TryParse(buf)
	assert.NoError(t, err)
	assert.Equal(t, "k", string(req.Key))
	assert.Equal(t, "v", string(req.Value))
	ex := DecodeSetExtras(req.Extras)
	assert.Equal(t, uint32(9), ex.Flags)
}

func TestTryParseRejectsBadLengthsForSet(t *testing.T) {
	h := Header{Magic: MagicRequest, Opcode: OpSet, KeyLen: 1, ExtLen: 8, BodyLen: 9} // key+8 == body, invalid (needs <)
	b := make([]byte, HeaderLen)
	h.Encode(b)
	buf := membuf.New()
	buf.Write(b)
	buf.Write(make([]byte, 9)) // pretend body present too, doesn't matter; error short-circuits on header

	_, err := TryParse(buf)
	assert.Error(t, err)
	assert.NotEqual(t, ErrBadMagic, err)
}

func TestEncodeResponseRoundTrips(t *testing.T) {
	buf := membuf.New()
	EncodeResponse(buf, OpGet, StatusNoError, 42, 7, nil, nil, []byte("value"))

	full := make([]byte, buf.Len())
	buf.Read(full)
	h := Decode(full[:HeaderLen])
	assert.Equal(t, Status(StatusNoError), Status(h.StatusOrVBucket))
	assert.Equal(t, uint32(42), h.Opaque)
	assert.Equal(t, uint64(7), h.CAS)
	assert.Equal(t, "value", string(full[HeaderLen:]))
}

func TestMultipleRequestsPipelined(t *testing.T) {
	buf := membuf.New()
	buf.Write(buildGetRequest("a"))
	buf.Write(buildGetRequest("bb"))

	req1, err := TryParse(buf)
	assert.NoError(t, err)
	assert.Equal(t, "a", string(req1.Key))

	req2, err := TryParse(buf)
	assert.NoError(t, err)
	assert.Equal(t, "bb", string(req2.Key))
}
