package conn

import (
	"github.com/ehrlich-b/mainmemory/internal/command"
	"github.com/ehrlich-b/mainmemory/internal/protocol/ascii"
)

var storeModeByKind = map[ascii.Kind]command.StoreMode{
	ascii.KindSet:     command.ModeSet,
	ascii.KindAdd:     command.ModeAdd,
	ascii.KindReplace: command.ModeReplace,
}

// handleAscii executes one parsed ASCII command and queues its reply
// (unless NoReply suppresses it), mirroring memcache/command.c's
// mc_command_execute_ascii_* family one case at a time.
func (s *Session) handleAscii(cmd *ascii.Command) {
	switch cmd.Kind {
	case ascii.KindGet, ascii.KindGets:
		withCAS := cmd.Kind == ascii.KindGets
		for _, key := range cmd.Keys {
			s.writeAsciiValue(key, withCAS)
		}
		ascii.WriteEnd(s.tx)

	case ascii.KindSet, ascii.KindAdd, ascii.KindReplace:
		res := s.exec.Store(storeModeByKind[cmd.Kind], cmd.Keys[0], cmd.Value, cmd.Flags, cmd.ExpTime, 0)
		if cmd.NoReply {
			return
		}
		if res.Stored {
			ascii.WriteLine(s.tx, "STORED")
		} else {
			ascii.WriteLine(s.tx, "NOT_STORED")
		}

	case ascii.KindCAS:
		res := s.exec.Store(command.ModeCAS, cmd.Keys[0], cmd.Value, cmd.Flags, cmd.ExpTime, cmd.CAS)
		if cmd.NoReply {
			return
		}
		switch {
		case res.Stored:
			ascii.WriteLine(s.tx, "STORED")
		case res.Existed:
			ascii.WriteLine(s.tx, "EXISTS")
		default:
			ascii.WriteLine(s.tx, "NOT_FOUND")
		}

	case ascii.KindAppend, ascii.KindPrepend:
		res := s.exec.Alter(cmd.Keys[0], cmd.Value, cmd.Kind == ascii.KindPrepend)
		if cmd.NoReply {
			return
		}
		if res.Stored {
			ascii.WriteLine(s.tx, "STORED")
		} else {
			ascii.WriteLine(s.tx, "NOT_STORED")
		}

	case ascii.KindIncr, ascii.KindDecr:
		res := s.exec.IncrDecr(cmd.Keys[0], uint64(cmd.Delta), cmd.Kind == ascii.KindDecr, false, 0, 0)
		if cmd.NoReply {
			return
		}
		switch {
		case res.NonNumeric:
			ascii.WriteLine(s.tx, "CLIENT_ERROR cannot increment or decrement non-numeric value")
		case !res.Found:
			ascii.WriteLine(s.tx, "NOT_FOUND")
		default:
			ascii.WriteUint64(s.tx, res.Value)
		}

	case ascii.KindDelete:
		e, found := s.exec.Delete(cmd.Keys[0])
		if found {
			s.exec.Release(e)
		}
		if cmd.NoReply {
			return
		}
		if found {
			ascii.WriteLine(s.tx, "DELETED")
		} else {
			ascii.WriteLine(s.tx, "NOT_FOUND")
		}

	case ascii.KindTouch:
		found := s.exec.Touch(cmd.Keys[0], cmd.ExpTime)
		if cmd.NoReply {
			return
		}
		if found {
			ascii.WriteLine(s.tx, "TOUCHED")
		} else {
			ascii.WriteLine(s.tx, "NOT_FOUND")
		}

	case ascii.KindFlushAll:
		s.exec.FlushAll()
		if !cmd.NoReply {
			ascii.WriteLine(s.tx, "OK")
		}

	case ascii.KindVersion:
		ascii.WriteLine(s.tx, "VERSION "+s.version)

	case ascii.KindVerbosity:
		s.verbosity = cmd.Verbosity
		if s.verbosity > 2 {
			s.verbosity = 2
		}
		if !cmd.NoReply {
			ascii.WriteLine(s.tx, "OK")
		}

	case ascii.KindStats:
		stats := s.exec.Stats()
		ascii.WriteStat(s.tx, "cmd_get", stats.GetOps)
		ascii.WriteStat(s.tx, "cmd_set", stats.SetOps)
		ascii.WriteStat(s.tx, "delete_hits", stats.DeleteOps)
		ascii.WriteStat(s.tx, "incr_hits", stats.IncrOps)
		ascii.WriteStat(s.tx, "touch_hits", stats.TouchOps)
		ascii.WriteStat(s.tx, "cmd_flush", stats.FlushOps)
		ascii.WriteStat(s.tx, "get_hits", stats.Hits)
		ascii.WriteStat(s.tx, "get_misses", stats.Misses)
		ascii.WriteStat(s.tx, "total_items", stats.StoredOK)
		ascii.WriteStat(s.tx, "evictions", stats.Evictions)
		ascii.WriteStat(s.tx, "expired_unfetched", stats.ExpiredReaps)
		ascii.WriteStat(s.tx, "bytes_read", stats.BytesRead)
		ascii.WriteStat(s.tx, "bytes_written", stats.BytesWritten)
		ascii.WriteStat(s.tx, "curr_items", uint64(stats.CurrentEntries))
		ascii.WriteStat(s.tx, "bytes", uint64(stats.CurrentVolume))
		ascii.WriteStat(s.tx, "uptime", stats.UptimeNs/1e9)
		ascii.WriteEnd(s.tx)

	case ascii.KindSlabs:
		ascii.WriteLine(s.tx, "SERVER_ERROR not implemented")

	case ascii.KindQuit:
		s.quitting = true

	default:
		ascii.WriteLine(s.tx, "ERROR")
	}
}

// writeAsciiValue writes one "VALUE ..." block for key if it's present,
// splicing the entry's live bytes directly into the transmit buffer and
// releasing the cache's reference only once those bytes have actually
// been flushed to the socket.
func (s *Session) writeAsciiValue(key []byte, withCAS bool) {
	e, found := s.exec.Get(key)
	if !found {
		return
	}
	ascii.WriteValueHeader(s.tx, key, e.Flags, len(e.Value()), e.Stamp, withCAS)
	entry := e
	s.tx.Splice(entry.Value(), func() { s.exec.Release(entry) })
	s.tx.Write([]byte("\r\n"))
}
