package ascii

import (
	"strconv"

	"github.com/ehrlich-b/mainmemory/internal/membuf"
)

// Parser tokenizes memcached text commands out of a connection's receive
// buffer. A Parser is not safe for concurrent use; each connection owns
// one.
type Parser struct{}

// TryParse attempts to read one complete command from the head of buf.
// It returns (nil, Incomplete) without consuming anything if the header
// line (or, for storage commands, the data block that follows it) isn't
// fully buffered yet. A non-nil, non-Incomplete error means the bytes
// that make up the malformed line were still consumed from buf so the
// connection can recover and continue on the next line.
func (p *Parser) TryParse(buf *membuf.Buffer) (*Command, error) {
	line, lineLen, ok := peekLine(buf)
	if !ok {
		if lineLen >= maxHeaderScan {
			buf.Discard(lineLen)
			return nil, &Error{ClientError: false, Msg: "ERROR", Consumed: lineLen}
		}
		return nil, Incomplete
	}

	fields := splitFields(line)
	if len(fields) == 0 {
		buf.Discard(lineLen)
		return nil, &Error{Msg: "ERROR", Consumed: lineLen}
	}

	cmd, err := dispatch(string(fields[0]), fields[1:])
	if err != nil {
		buf.Discard(lineLen)
		if perr, ok := err.(*Error); ok {
			perr.Consumed = lineLen
		}
		return nil, err
	}

	switch cmd.Kind {
	case KindSet, KindAdd, KindReplace, KindAppend, KindPrepend, KindCAS:
	default:
		buf.Discard(lineLen)
		return cmd, nil
	}

	// Storage command: demand Bytes data bytes plus the trailing CRLF
	// beyond the header line already peeked.
	need := lineLen + cmd.Bytes + 2
	if buf.Len() < need {
		return nil, Incomplete
	}

	buf.Discard(lineLen)
	value := make([]byte, cmd.Bytes)
	n, _ := buf.Read(value)
	if n != cmd.Bytes {
		return nil, &Error{Msg: "CLIENT_ERROR bad data chunk", Consumed: lineLen + n}
	}
	var crlf [2]byte
	crn, _ := buf.Read(crlf[:])
	if crlf[0] != '\r' || crlf[1] != '\n' {
		return nil, &Error{Msg: "CLIENT_ERROR bad data chunk", Consumed: lineLen + n + crn}
	}
	cmd.Value = value
	return cmd, nil
}

// peekLine scans buf (without consuming) for a CRLF-terminated line.
// found is false either because the line hasn't fully arrived yet, or
// (when scanned == maxHeaderScan) because no line that short exists —
// the caller distinguishes the two via scanned.
func peekLine(buf *membuf.Buffer) (line []byte, scanned int, found bool) {
	for i := 0; i < maxHeaderScan; i++ {
		b, ok := buf.PeekByte(i)
		if !ok {
			return nil, i, false
		}
		if b == '\n' && i > 0 {
			prev, _ := buf.PeekByte(i - 1)
			if prev == '\r' {
				line = make([]byte, i-1)
				for j := 0; j < i-1; j++ {
					line[j], _ = buf.PeekByte(j)
				}
				return line, i + 1, true
			}
		}
	}
	return nil, maxHeaderScan, false
}

func splitFields(line []byte) [][]byte {
	var fields [][]byte
	start := -1
	for i, b := range line {
		if b == ' ' {
			if start >= 0 {
				fields = append(fields, line[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, line[start:])
	}
	return fields
}

func dispatch(name string, args [][]byte) (*Command, error) {
	switch name {
	case "get", "gets":
		return parseGet(name, args)
	case "set", "add", "replace", "append", "prepend":
		return parseStore(name, args)
	case "cas":
		return parseCAS(args)
	case "incr", "decr":
		return parseIncrDecr(name, args)
	case "delete":
		return parseDelete(args)
	case "touch":
		return parseTouch(args)
	case "flush_all":
		return parseFlushAll(args)
	case "version":
		return &Command{Kind: KindVersion}, nil
	case "quit":
		return &Command{Kind: KindQuit}, nil
	case "stats":
		return &Command{Kind: KindStats}, nil
	case "slabs":
		return &Command{Kind: KindSlabs}, nil
	case "verbosity":
		return parseVerbosity(args)
	default:
		return nil, &Error{Msg: "ERROR"}
	}
}

func parseGet(name string, args [][]byte) (*Command, error) {
	if len(args) == 0 {
		return nil, &Error{Msg: "ERROR"}
	}
	keys := make([][]byte, 0, len(args))
	for _, a := range args {
		if len(a) > MaxKeyLen {
			return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR bad command line format"}
		}
		keys = append(keys, a)
	}
	kind := KindGet
	if name == "gets" {
		kind = KindGets
	}
	return &Command{Kind: kind, Keys: keys}, nil
}

var storeKinds = map[string]Kind{
	"set":     KindSet,
	"add":     KindAdd,
	"replace": KindReplace,
	"append":  KindAppend,
	"prepend": KindPrepend,
}

func parseStore(name string, args [][]byte) (*Command, error) {
	if len(args) < 4 || len(args) > 5 {
		return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR bad command line format"}
	}
	if len(args[0]) > MaxKeyLen {
		return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR bad command line format"}
	}
	flags, err1 := parseUint32(args[1])
	exp, err2 := parseInt64(args[2])
	bytes, err3 := parseInt(args[3])
	if err1 != nil || err2 != nil || err3 != nil || bytes < 0 {
		return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR bad command line format"}
	}
	noreply := false
	if len(args) == 5 {
		if string(args[4]) != "noreply" {
			return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR bad command line format"}
		}
		noreply = true
	}
	return &Command{
		Kind:    storeKinds[name],
		Keys:    [][]byte{args[0]},
		Flags:   flags,
		ExpTime: normalizeExpTime(exp),
		Bytes:   bytes,
		NoReply: noreply,
	}, nil
}

func parseCAS(args [][]byte) (*Command, error) {
	if len(args) < 5 || len(args) > 6 {
		return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR bad command line format"}
	}
	if len(args[0]) > MaxKeyLen {
		return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR bad command line format"}
	}
	flags, err1 := parseUint32(args[1])
	exp, err2 := parseInt64(args[2])
	bytes, err3 := parseInt(args[3])
	cas, err4 := parseUint64(args[4])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || bytes < 0 {
		return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR bad command line format"}
	}
	noreply := false
	if len(args) == 6 {
		if string(args[5]) != "noreply" {
			return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR bad command line format"}
		}
		noreply = true
	}
	return &Command{
		Kind:    KindCAS,
		Keys:    [][]byte{args[0]},
		Flags:   flags,
		ExpTime: normalizeExpTime(exp),
		Bytes:   bytes,
		CAS:     cas,
		NoReply: noreply,
	}, nil
}

func parseIncrDecr(name string, args [][]byte) (*Command, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR bad command line format"}
	}
	delta, err := parseInt64(args[1])
	if err != nil || delta < 0 {
		return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR invalid numeric delta argument"}
	}
	noreply := len(args) == 3 && string(args[2]) == "noreply"
	kind := KindIncr
	if name == "decr" {
		kind = KindDecr
	}
	return &Command{Kind: kind, Keys: [][]byte{args[0]}, Delta: delta, NoReply: noreply}, nil
}

func parseDelete(args [][]byte) (*Command, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR bad command line format"}
	}
	noreply := len(args) == 2 && string(args[1]) == "noreply"
	return &Command{Kind: KindDelete, Keys: [][]byte{args[0]}, NoReply: noreply}, nil
}

func parseTouch(args [][]byte) (*Command, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR bad command line format"}
	}
	exp, err := parseInt64(args[1])
	if err != nil {
		return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR invalid exptime argument"}
	}
	noreply := len(args) == 3 && string(args[2]) == "noreply"
	return &Command{Kind: KindTouch, Keys: [][]byte{args[0]}, ExpTime: normalizeExpTime(exp), NoReply: noreply}, nil
}

func parseFlushAll(args [][]byte) (*Command, error) {
	cmd := &Command{Kind: KindFlushAll}
	for _, a := range args {
		if string(a) == "noreply" {
			cmd.NoReply = true
			continue
		}
		exp, err := parseInt64(a)
		if err != nil {
			return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR bad command line format"}
		}
		cmd.ExpTime = normalizeExpTime(exp)
	}
	return cmd, nil
}

func parseVerbosity(args [][]byte) (*Command, error) {
	if len(args) < 1 {
		return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR bad command line format"}
	}
	n, err := parseInt(args[0])
	if err != nil {
		return nil, &Error{ClientError: true, Msg: "CLIENT_ERROR bad command line format"}
	}
	return &Command{Kind: KindVerbosity, Verbosity: n}, nil
}

// normalizeExpTime applies the memcached convention: values up to 30
// days are a relative offset from now; larger values are an absolute
// Unix timestamp already.
func normalizeExpTime(exp int64) int64 {
	const thirtyDays = 60 * 60 * 24 * 30
	if exp == 0 {
		return 0
	}
	if exp <= thirtyDays {
		return nowUnix() + exp
	}
	return exp
}

// nowUnix is overridable by tests.
var nowUnix = func() int64 { return realNow() }

func parseUint32(b []byte) (uint32, error) {
	v, err := strconv.ParseUint(string(b), 10, 32)
	return uint32(v), err
}

func parseUint64(b []byte) (uint64, error) {
	return strconv.ParseUint(string(b), 10, 64)
}

func parseInt64(b []byte) (int64, error) {
	return strconv.ParseInt(string(b), 10, 64)
}

func parseInt(b []byte) (int, error) {
	v, err := strconv.ParseInt(string(b), 10, 64)
	return int(v), err
}
