package conn

import (
	"strconv"

	"github.com/ehrlich-b/mainmemory/internal/command"
	"github.com/ehrlich-b/mainmemory/internal/protocol/binary"
)

var storeModeByOpcode = map[binary.Opcode]command.StoreMode{
	binary.OpSet:      command.ModeSet,
	binary.OpSetQ:     command.ModeSet,
	binary.OpAdd:      command.ModeAdd,
	binary.OpAddQ:     command.ModeAdd,
	binary.OpReplace:  command.ModeReplace,
	binary.OpReplaceQ: command.ModeReplace,
}

var quietOpcode = map[binary.Opcode]bool{
	binary.OpGetQ: true, binary.OpGetKQ: true,
	binary.OpSetQ: true, binary.OpAddQ: true, binary.OpReplaceQ: true,
	binary.OpDeleteQ: true, binary.OpIncrementQ: true, binary.OpDecrementQ: true,
	binary.OpAppendQ: true, binary.OpPrependQ: true,
	binary.OpQuitQ: true, binary.OpFlushQ: true,
}

// handleBinary executes one parsed binary request and writes its
// response, mirroring memcache/command.c's mc_command_execute_binary_*
// family. Quiet (*Q) opcodes suppress their success reply; errors get a
// response so the client can resynchronize, except a GetQ/GetKQ miss,
// which is also silent.
func (s *Session) handleBinary(req *binary.Request) {
	switch req.Header.Opcode {
	case binary.OpGet, binary.OpGetQ, binary.OpGetK, binary.OpGetKQ:
		s.handleBinaryGet(req)

	case binary.OpSet, binary.OpSetQ, binary.OpAdd, binary.OpAddQ, binary.OpReplace, binary.OpReplaceQ:
		s.handleBinaryStore(req)

	case binary.OpAppend, binary.OpAppendQ, binary.OpPrepend, binary.OpPrependQ:
		s.handleBinaryAlter(req)

	case binary.OpIncrement, binary.OpIncrementQ, binary.OpDecrement, binary.OpDecrementQ:
		s.handleBinaryDelta(req)

	case binary.OpDelete, binary.OpDeleteQ:
		e, found := s.exec.Delete(req.Key)
		if found {
			s.exec.Release(e)
		}
		if !found {
			s.reply(req, binary.StatusKeyNotFound, nil, nil, nil, 0)
			return
		}
		if !quietOpcode[req.Header.Opcode] {
			s.reply(req, binary.StatusNoError, nil, nil, nil, 0)
		}

	case binary.OpNoop:
		s.reply(req, binary.StatusNoError, nil, nil, nil, 0)

	case binary.OpVersion:
		s.reply(req, binary.StatusNoError, nil, nil, []byte(s.version), 0)

	case binary.OpStat:
		s.handleBinaryStat(req)

	case binary.OpFlush, binary.OpFlushQ:
		s.exec.FlushAll()
		if !quietOpcode[req.Header.Opcode] {
			s.reply(req, binary.StatusNoError, nil, nil, nil, 0)
		}

	case binary.OpQuit, binary.OpQuitQ:
		if !quietOpcode[req.Header.Opcode] {
			s.reply(req, binary.StatusNoError, nil, nil, nil, 0)
		}
		s.quitting = true

	default:
		s.reply(req, binary.StatusUnknownCommand, nil, nil, nil, 0)
	}
}

func (s *Session) handleBinaryGet(req *binary.Request) {
	withKey := req.Header.Opcode == binary.OpGetK || req.Header.Opcode == binary.OpGetKQ
	quiet := quietOpcode[req.Header.Opcode]

	e, found := s.exec.Get(req.Key)
	if !found {
		if !quiet {
			s.reply(req, binary.StatusKeyNotFound, nil, nil, nil, 0)
		}
		return
	}

	var extras [4]byte
	binary.SetExtras{Flags: e.Flags}.Encode(extras[:4])
	var key []byte
	if withKey {
		key = req.Key
	}

	var hdr [binary.HeaderLen]byte
	h := binary.Header{
		Magic:           binary.MagicResponse,
		Opcode:          req.Header.Opcode,
		KeyLen:          uint16(len(key)),
		ExtLen:          4,
		StatusOrVBucket: uint16(binary.StatusNoError),
		BodyLen:         uint32(4 + len(key) + len(e.Value())),
		Opaque:          req.Header.Opaque,
		CAS:             e.Stamp,
	}
	h.Encode(hdr[:])
	s.tx.Write(hdr[:])
	s.tx.Write(extras[:4])
	if len(key) > 0 {
		s.tx.Write(key)
	}
	entry := e
	s.tx.Splice(entry.Value(), func() { s.exec.Release(entry) })
}

func (s *Session) handleBinaryStore(req *binary.Request) {
	mode := storeModeByOpcode[req.Header.Opcode]
	quiet := quietOpcode[req.Header.Opcode]
	extras := binary.DecodeSetExtras(req.Extras)

	cas := req.Header.CAS
	if mode == command.ModeSet && cas != 0 {
		mode = command.ModeCAS
	}

	res := s.exec.Store(mode, req.Key, req.Value, extras.Flags, normalizeExpTime(int64(extras.ExpTime)), cas)

	switch {
	case res.Stored:
		if !quiet {
			s.reply(req, binary.StatusNoError, nil, nil, nil, res.Stamp)
		}
	case res.Existed:
		s.reply(req, binary.StatusKeyExists, nil, nil, nil, 0)
	default:
		switch req.Header.Opcode {
		case binary.OpAdd, binary.OpAddQ:
			s.reply(req, binary.StatusKeyExists, nil, nil, nil, 0)
		case binary.OpReplace, binary.OpReplaceQ:
			s.reply(req, binary.StatusKeyNotFound, nil, nil, nil, 0)
		default:
			s.reply(req, binary.StatusItemNotStored, nil, nil, nil, 0)
		}
	}
}

func (s *Session) handleBinaryAlter(req *binary.Request) {
	quiet := quietOpcode[req.Header.Opcode]
	prepend := req.Header.Opcode == binary.OpPrepend || req.Header.Opcode == binary.OpPrependQ

	res := s.exec.Alter(req.Key, req.Value, prepend)
	if !res.Stored {
		s.reply(req, binary.StatusItemNotStored, nil, nil, nil, 0)
		return
	}
	if !quiet {
		s.reply(req, binary.StatusNoError, nil, nil, nil, res.Stamp)
	}
}

func (s *Session) handleBinaryDelta(req *binary.Request) {
	quiet := quietOpcode[req.Header.Opcode]
	decr := req.Header.Opcode == binary.OpDecrement || req.Header.Opcode == binary.OpDecrementQ
	extras := binary.DecodeDeltaExtras(req.Extras)

	vivify := extras.ExpTime != 0xffffffff
	expTime := int64(0)
	if vivify {
		expTime = normalizeExpTime(int64(extras.ExpTime))
	}
	res := s.exec.IncrDecr(req.Key, extras.Delta, decr, vivify, extras.Initial, expTime)

	switch {
	case res.NonNumeric:
		s.reply(req, binary.StatusNonNumericValue, nil, nil, nil, 0)
	case !res.Found && !res.Created:
		s.reply(req, binary.StatusKeyNotFound, nil, nil, nil, 0)
	default:
		if quiet {
			return
		}
		var value [8]byte
		putUint64(value[:], res.Value)
		s.reply(req, binary.StatusNoError, nil, nil, value[:], 0)
	}
}

// handleBinaryStat replies with one packet per counter followed by a
// packet with an empty key, the binary protocol's stats terminator
// (mirrors memcache/command.c's mc_command_execute_binary_stat, which
// frames each STAT line as its own response rather than one END line).
func (s *Session) handleBinaryStat(req *binary.Request) {
	stats := s.exec.Stats()
	writeStat := func(name string, value uint64) {
		s.reply(req, binary.StatusNoError, nil, []byte(name), []byte(strconv.FormatUint(value, 10)), 0)
	}
	writeStat("cmd_get", stats.GetOps)
	writeStat("cmd_set", stats.SetOps)
	writeStat("delete_hits", stats.DeleteOps)
	writeStat("incr_hits", stats.IncrOps)
	writeStat("touch_hits", stats.TouchOps)
	writeStat("cmd_flush", stats.FlushOps)
	writeStat("get_hits", stats.Hits)
	writeStat("get_misses", stats.Misses)
	writeStat("total_items", stats.StoredOK)
	writeStat("evictions", stats.Evictions)
	writeStat("expired_unfetched", stats.ExpiredReaps)
	writeStat("bytes_read", stats.BytesRead)
	writeStat("bytes_written", stats.BytesWritten)
	writeStat("curr_items", uint64(stats.CurrentEntries))
	writeStat("bytes", uint64(stats.CurrentVolume))
	writeStat("uptime", stats.UptimeNs/1e9)
	s.reply(req, binary.StatusNoError, nil, nil, nil, 0)
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// reply writes a standard response header plus body for req, reusing its
// opcode and opaque.
func (s *Session) reply(req *binary.Request, status binary.Status, extras, key, value []byte, cas uint64) {
	binary.EncodeResponse(s.tx, req.Header.Opcode, status, req.Header.Opaque, cas, extras, key, value)
}
