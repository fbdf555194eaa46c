// Package binary implements the memcached binary protocol: a fixed
// 24-byte header framing a variable-length extras/key/value body.
// Opcodes, status codes, and the per-opcode length validation rules are
// grounded on memcache/binary.h/binary.c; the struct<->wire encode/decode
// shape mirrors the fixed-layout binary marshalling the reference
// io_uring backend uses for its own submission/completion structs.
package binary

import "encoding/binary"

const (
	MagicRequest  = 0x80
	MagicResponse = 0x81

	HeaderLen = 24
)

// Opcode identifies the operation a request header names.
type Opcode uint8

const (
	OpGet        Opcode = 0x00
	OpSet        Opcode = 0x01
	OpAdd        Opcode = 0x02
	OpReplace    Opcode = 0x03
	OpDelete     Opcode = 0x04
	OpIncrement  Opcode = 0x05
	OpDecrement  Opcode = 0x06
	OpQuit       Opcode = 0x07
	OpFlush      Opcode = 0x08
	OpGetQ       Opcode = 0x09
	OpNoop       Opcode = 0x0a
	OpVersion    Opcode = 0x0b
	OpGetK       Opcode = 0x0c
	OpGetKQ      Opcode = 0x0d
	OpAppend     Opcode = 0x0e
	OpPrepend    Opcode = 0x0f
	OpStat       Opcode = 0x10
	OpSetQ       Opcode = 0x11
	OpAddQ       Opcode = 0x12
	OpReplaceQ   Opcode = 0x13
	OpDeleteQ    Opcode = 0x14
	OpIncrementQ Opcode = 0x15
	OpDecrementQ Opcode = 0x16
	OpQuitQ      Opcode = 0x17
	OpFlushQ     Opcode = 0x18
	OpAppendQ    Opcode = 0x19
	OpPrependQ   Opcode = 0x1a
)

// Status is a response's outcome code.
type Status uint16

const (
	StatusNoError          Status = 0x00
	StatusKeyNotFound      Status = 0x01
	StatusKeyExists        Status = 0x02
	StatusValueTooLarge    Status = 0x03
	StatusInvalidArguments Status = 0x04
	StatusItemNotStored    Status = 0x05
	StatusNonNumericValue  Status = 0x06
	StatusUnknownCommand   Status = 0x81
	StatusOutOfMemory      Status = 0x82
)

// Header is the 24-byte frame every binary request and response starts
// with. StatusOrVBucket holds a request's vbucket id (unused here, always
// 0) or a response's Status, matching the wire protocol's overlapping
// field.
type Header struct {
	Magic           uint8
	Opcode          Opcode
	KeyLen          uint16
	ExtLen          uint8
	DataType        uint8
	StatusOrVBucket uint16
	BodyLen         uint32
	Opaque          uint32
	CAS             uint64
}

// Decode parses a 24-byte header from b.
func Decode(b []byte) Header {
	_ = b[23]
	return Header{
		Magic:           b[0],
		Opcode:          Opcode(b[1]),
		KeyLen:          binary.BigEndian.Uint16(b[2:4]),
		ExtLen:          b[4],
		DataType:        b[5],
		StatusOrVBucket: binary.BigEndian.Uint16(b[6:8]),
		BodyLen:         binary.BigEndian.Uint32(b[8:12]),
		Opaque:          binary.BigEndian.Uint32(b[12:16]),
		CAS:             binary.BigEndian.Uint64(b[16:24]),
	}
}

// Encode writes h into the first 24 bytes of b, which must be at least
// HeaderLen long.
func (h Header) Encode(b []byte) {
	_ = b[23]
	b[0] = h.Magic
	b[1] = byte(h.Opcode)
	binary.BigEndian.PutUint16(b[2:4], h.KeyLen)
	b[4] = h.ExtLen
	b[5] = h.DataType
	binary.BigEndian.PutUint16(b[6:8], h.StatusOrVBucket)
	binary.BigEndian.PutUint32(b[8:12], h.BodyLen)
	binary.BigEndian.PutUint32(b[12:16], h.Opaque)
	binary.BigEndian.PutUint64(b[16:24], h.CAS)
}

// SetExtras is the {flags, exptime} extras layout of set/add/replace.
type SetExtras struct {
	Flags   uint32
	ExpTime uint32
}

func DecodeSetExtras(b []byte) SetExtras {
	return SetExtras{Flags: binary.BigEndian.Uint32(b[0:4]), ExpTime: binary.BigEndian.Uint32(b[4:8])}
}

func (e SetExtras) Encode(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], e.Flags)
	binary.BigEndian.PutUint32(b[4:8], e.ExpTime)
}

// DeltaExtras is the {delta, initial, exptime} layout of incr/decr.
type DeltaExtras struct {
	Delta   uint64
	Initial uint64
	ExpTime uint32
}

func DecodeDeltaExtras(b []byte) DeltaExtras {
	return DeltaExtras{
		Delta:   binary.BigEndian.Uint64(b[0:8]),
		Initial: binary.BigEndian.Uint64(b[8:16]),
		ExpTime: binary.BigEndian.Uint32(b[16:20]),
	}
}

// FlushExtras is the optional {exptime} layout of flush.
type FlushExtras struct {
	ExpTime uint32
}

func DecodeFlushExtras(b []byte) FlushExtras {
	return FlushExtras{ExpTime: binary.BigEndian.Uint32(b[0:4])}
}
