// Package conn implements the per-connection session glue: buffered
// socket I/O, protocol auto-detection between the ASCII and binary
// memcached dialects, and translation of each parsed command into a
// command.RoutedExecutor call plus a wire-format reply. Grounded on the
// reference's memcache/state.c connection state machine and
// memcache/memcache.c's read-parse-execute-write turn, adapted from its
// non-blocking-fd-plus-fiber shape onto one goroutine per connection:
// Go's runtime netpoller already gives a blocking net.Conn.Read the M:N
// scheduling the reference hand-rolled with epoll, so a session needs no
// readiness registration of its own; the accept loop gets the same benefit
// from a plain blocking net.Listener.Accept.
package conn

import (
	"io"
	"net"

	"github.com/ehrlich-b/mainmemory/internal/command"
	"github.com/ehrlich-b/mainmemory/internal/membuf"
	"github.com/ehrlich-b/mainmemory/internal/protocol/ascii"
	"github.com/ehrlich-b/mainmemory/internal/protocol/binary"
)

// trashThreshold bounds how much malformed ASCII input a session tolerates
// before it gives up on resynchronizing and drops the connection, matching
// the binary path's immediate drop on a bad magic byte.
const trashThreshold = 1024

// Session is the state one client connection needs across its lifetime:
// the buffered reader/writer pair, a protocol-specific parser, and a
// handle on the shared cache.
type Session struct {
	nc   net.Conn
	rx   *membuf.Buffer
	tx   *membuf.Buffer
	exec *command.RoutedExecutor

	parser ascii.Parser

	version   string
	verbosity int
	quitting  bool

	junkBytes int
	trash     bool
}

// NewSession wraps nc for one client's lifetime. version is reported by
// the ASCII "version" command and the binary version opcode.
func NewSession(nc net.Conn, exec *command.RoutedExecutor, version string) *Session {
	return &Session{
		nc:      nc,
		rx:      membuf.New(),
		tx:      membuf.New(),
		exec:    exec,
		version: version,
	}
}

// Serve runs the connection's read-parse-execute-write loop until the
// peer disconnects, the client sends quit, or an I/O error occurs.
func (s *Session) Serve() error {
	defer s.nc.Close()
	// Any splice callback still pending when the connection dies (a get's
	// VALUE spliced into tx, an in-flight read never consumed out of rx)
	// must still run so its cache entry's reference is released.
	defer s.tx.Reset()
	defer s.rx.Reset()

	for {
		n, readErr := s.rx.FillFrom(s.nc)
		if n > 0 {
			if err := s.processBuffered(); err != nil {
				s.flush()
				return err
			}
			if err := s.flush(); err != nil {
				return err
			}
			if s.quitting {
				return nil
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}

func (s *Session) flush() error {
	_, err := s.tx.WriteTo(s.nc)
	return err
}

// processBuffered drains every complete command currently sitting in rx,
// detecting the protocol from the lead byte of whatever command starts
// next (memcached connections never mix protocols mid-stream, but
// nothing stops checking fresh each time: the check is a single peek).
func (s *Session) processBuffered() error {
	for {
		first, ok := s.rx.PeekByte(0)
		if !ok {
			return nil
		}

		if first == binary.MagicRequest {
			req, err := binary.TryParse(s.rx)
			if err == binary.Incomplete {
				return nil
			}
			if err == binary.ErrBadMagic {
				s.trash = true
				return err
			}
			if err != nil {
				// Length-validation failure: the header was already
				// discarded and we have no opaque/opcode to reply
				// against, so just drop back into the loop for the next
				// command.
				s.junkBytes += binary.HeaderLen
				if s.junkBytes > trashThreshold {
					s.trash = true
					return err
				}
				continue
			}
			s.handleBinary(req)
			if s.quitting {
				return nil
			}
			continue
		}

		cmd, err := s.parser.TryParse(s.rx)
		if err == ascii.Incomplete {
			return nil
		}
		if err != nil {
			if perr, ok := err.(*ascii.Error); ok {
				ascii.WriteLine(s.tx, perr.Msg)
				s.junkBytes += perr.Consumed
			}
			if s.junkBytes > trashThreshold {
				s.trash = true
				return err
			}
			continue
		}
		s.handleAscii(cmd)
		if s.quitting {
			return nil
		}
	}
}
