// Package ascii parses the memcached text protocol: a line-oriented
// command header followed, for storage commands, by a fixed-length data
// block. The reference parser (memcache/parser.c) is a hand-rolled
// character-by-character state machine kept that way for raw throughput
// in C; in Go the idiomatic equivalent scans for the header's terminating
// CRLF in the connection's receive buffer and tokenizes it once found,
// giving the same "never blocks, restores position and reports
// incomplete" contract without hand-unrolled states.
package ascii

// Kind distinguishes the command families the parser recognises.
type Kind int

const (
	KindGet Kind = iota
	KindGets
	KindSet
	KindAdd
	KindReplace
	KindAppend
	KindPrepend
	KindCAS
	KindIncr
	KindDecr
	KindDelete
	KindTouch
	KindFlushAll
	KindVersion
	KindQuit
	KindStats
	KindSlabs
	KindVerbosity
	KindError // malformed command, recognised well enough to skip past
)

// MaxKeyLen is the protocol's key-length ceiling; parsing fails a
// command whose key exceeds it.
const MaxKeyLen = 250

// Command is one parsed request, populated with only the fields its
// Kind uses.
type Command struct {
	Kind    Kind
	Keys    [][]byte // get/gets: one or more; others: exactly one (if any)
	Flags   uint32
	ExpTime int64
	Bytes   int
	CAS     uint64
	Delta   int64
	NoReply bool
	Value   []byte // storage commands: the data block read after the header

	Verbosity int
}

// Error is a parse failure the caller reports to the client (distinct
// from "incomplete", which isn't an error at all).
type Error struct {
	// ClientError is true for "CLIENT_ERROR ..." (bad input format);
	// false for the bare "ERROR\r\n" (unrecognised command).
	ClientError bool
	Msg         string
	// Consumed is how many bytes TryParse discarded from buf to reach
	// this error, for the caller's cumulative junk-byte accounting.
	Consumed int
}

func (e *Error) Error() string { return e.Msg }

// Incomplete is the sentinel TryParse returns when the header (and, for
// storage commands, the trailing data block) isn't fully buffered yet.
// The caller should wait for more bytes and retry; TryParse does not
// consume anything from buf in this case.
var Incomplete error = incompleteError{}

type incompleteError struct{}

func (incompleteError) Error() string { return "ascii: incomplete command" }

// maxHeaderScan bounds how far the parser looks for a header's
// terminating CRLF before giving up and reporting a protocol error,
// mirroring the reference's bounded look-ahead span.
const maxHeaderScan = 8192
