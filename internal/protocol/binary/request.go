package binary

import (
	"fmt"

	"github.com/ehrlich-b/mainmemory/internal/membuf"
)

// Request is one fully-decoded binary command: header plus extras/key/
// value body slices, all pointing into the connection's receive buffer's
// lifetime (callers that need to retain them past the next TryParse must
// copy).
type Request struct {
	Header Header
	Extras []byte
	Key    []byte
	Value  []byte
}

// errInvalid reports a length-validation failure (or a bad magic byte,
// via ErrBadMagic) distinct from "incomplete". The session sends no reply
// for a length failure, since the header is not returned; it drops the
// connection on ErrBadMagic.
type errInvalid struct{ msg string }

func (e *errInvalid) Error() string { return e.msg }

// ErrBadMagic is returned when the first byte of a request isn't
// MagicRequest; the spec treats this as session-fatal.
var ErrBadMagic = &errInvalid{"binary: bad request magic"}

// Incomplete is returned when the header or body hasn't fully arrived.
var Incomplete error = incompleteError{}

type incompleteError struct{}

func (incompleteError) Error() string { return "binary: incomplete request" }

// TryParse reads one request from the head of buf. It never consumes
// anything on Incomplete. A non-Incomplete error still consumes the
// header (and body, if it was available) so the session can carry on
// with the next frame, except ErrBadMagic which consumes nothing and
// which the caller must treat as session-fatal without assuming further
// bytes are sane framing.
func TryParse(buf *membuf.Buffer) (*Request, error) {
	first, ok := buf.PeekByte(0)
	if !ok {
		return nil, Incomplete
	}
	if first != MagicRequest {
		return nil, ErrBadMagic
	}
	if buf.Len() < HeaderLen {
		return nil, Incomplete
	}

	var hdrBytes [HeaderLen]byte
	for i := 0; i < HeaderLen; i++ {
		hdrBytes[i], _ = buf.PeekByte(i)
	}
	h := Decode(hdrBytes[:])

	if err := validateLengths(h); err != nil {
		skip := HeaderLen
		if buf.Len() >= HeaderLen+int(h.BodyLen) {
			skip += int(h.BodyLen)
		}
		buf.Discard(skip)
		return nil, err
	}

	total := HeaderLen + int(h.BodyLen)
	if buf.Len() < total {
		return nil, Incomplete
	}

	buf.Discard(HeaderLen)
	body := make([]byte, h.BodyLen)
	buf.Read(body)

	req := &Request{Header: h}
	req.Extras = body[:h.ExtLen]
	req.Key = body[h.ExtLen : int(h.ExtLen)+int(h.KeyLen)]
	req.Value = body[int(h.ExtLen)+int(h.KeyLen):]
	return req, nil
}

// validateLengths applies the spec's per-opcode ext_len/key_len/body_len
// table.
func validateLengths(h Header) error {
	bodyLen := int(h.BodyLen)
	keyLen := int(h.KeyLen)
	extLen := int(h.ExtLen)

	bad := func() error {
		return &errInvalid{fmt.Sprintf("binary: invalid lengths for opcode 0x%02x", h.Opcode)}
	}

	switch h.Opcode {
	case OpGet, OpGetQ, OpGetK, OpGetKQ, OpDelete, OpDeleteQ:
		if extLen != 0 || keyLen == 0 || keyLen != bodyLen {
			return bad()
		}
	case OpSet, OpAdd, OpReplace, OpSetQ, OpAddQ, OpReplaceQ:
		if extLen != 8 || keyLen == 0 || keyLen+8 > bodyLen {
			return bad()
		}
	case OpAppend, OpPrepend, OpAppendQ, OpPrependQ:
		if extLen != 0 || keyLen == 0 || keyLen > bodyLen {
			return bad()
		}
	case OpIncrement, OpDecrement, OpIncrementQ, OpDecrementQ:
		if extLen != 20 || keyLen == 0 || keyLen+20 != bodyLen {
			return bad()
		}
	case OpFlush, OpFlushQ:
		if (extLen != 0 && extLen != 4) || keyLen != 0 || bodyLen != extLen {
			return bad()
		}
	case OpNoop, OpVersion, OpStat, OpQuit, OpQuitQ:
		// No further constraint per the spec's table.
	default:
		return &errInvalid{fmt.Sprintf("binary: unknown opcode 0x%02x", h.Opcode)}
	}
	return nil
}

// EncodeResponse writes a response header (and optional extras/key/value
// body) into buf.
func EncodeResponse(buf *membuf.Buffer, opcode Opcode, status Status, opaque uint32, cas uint64, extras, key, value []byte) {
	var hdr [HeaderLen]byte
	h := Header{
		Magic:           MagicResponse,
		Opcode:          opcode,
		KeyLen:          uint16(len(key)),
		ExtLen:          uint8(len(extras)),
		StatusOrVBucket: uint16(status),
		BodyLen:         uint32(len(extras) + len(key) + len(value)),
		Opaque:          opaque,
		CAS:             cas,
	}
	h.Encode(hdr[:])
	buf.Write(hdr[:])
	if len(extras) > 0 {
		buf.Write(extras)
	}
	if len(key) > 0 {
		buf.Write(key)
	}
	if len(value) > 0 {
		buf.Write(value)
	}
}
