package ascii

import (
	"strconv"

	"github.com/ehrlich-b/mainmemory/internal/membuf"
)

// WriteValueHeader writes one "VALUE <key> <flags> <bytes>[ <cas>]\r\n"
// line; the data block and trailing CRLF are the caller's job (typically
// via buf.Splice so the entry's bytes aren't copied).
func WriteValueHeader(buf *membuf.Buffer, key []byte, flags uint32, length int, cas uint64, withCAS bool) {
	buf.Write([]byte("VALUE "))
	buf.Write(key)
	buf.Write([]byte{' '})
	buf.Write([]byte(strconv.FormatUint(uint64(flags), 10)))
	buf.Write([]byte{' '})
	buf.Write([]byte(strconv.Itoa(length)))
	if withCAS {
		buf.Write([]byte{' '})
		buf.Write([]byte(strconv.FormatUint(cas, 10)))
	}
	buf.Write([]byte("\r\n"))
}

// WriteEnd writes the terminating "END\r\n" line of a get/gets or stats
// response.
func WriteEnd(buf *membuf.Buffer) { buf.Write([]byte("END\r\n")) }

// WriteStat writes one "STAT <name> <value>\r\n" line of a stats response.
func WriteStat(buf *membuf.Buffer, name string, value uint64) {
	buf.Write([]byte("STAT "))
	buf.Write([]byte(name))
	buf.Write([]byte{' '})
	buf.Write([]byte(strconv.FormatUint(value, 10)))
	buf.Write([]byte("\r\n"))
}

// WriteLine writes a bare status line (STORED, NOT_STORED, EXISTS,
// DELETED, NOT_FOUND, OK, TOUCHED, VERSION ..., ERROR, ...).
func WriteLine(buf *membuf.Buffer, s string) {
	buf.Write([]byte(s))
	buf.Write([]byte("\r\n"))
}

// WriteUint64 writes a bare "<value>\r\n" line, used for incr/decr replies.
func WriteUint64(buf *membuf.Buffer, v uint64) {
	buf.Write([]byte(strconv.FormatUint(v, 10)))
	buf.Write([]byte("\r\n"))
}
