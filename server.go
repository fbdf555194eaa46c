package mainmemory

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ehrlich-b/mainmemory/internal/command"
	"github.com/ehrlich-b/mainmemory/internal/conn"
	"github.com/ehrlich-b/mainmemory/internal/dispatch"
	"github.com/ehrlich-b/mainmemory/internal/fiber"
	"github.com/ehrlich-b/mainmemory/internal/logging"
	"github.com/ehrlich-b/mainmemory/internal/table"
)

// maintainInterval is how often a partition's system fiber wakes to run
// a stride/eviction pass.
const maintainInterval = 50 * time.Millisecond

// Version is reported by the ASCII "version" command and the binary
// version opcode.
const Version = "1.6.0-mainmemory"

// Config configures a Server. Defaults mirror the launcher flags: bind
// 127.0.0.1:11211, a 64 MiB volume budget split evenly across partitions,
// one partition per thread, direct dispatch.
type Config struct {
	Addr   string
	Port   int
	Volume int64
	// Threads is both the partition count and the dispatch.Mode shard
	// count; each thread owns an equal slice of Volume.
	Threads int
	// DispatchMode selects how a connection reaches a partition it
	// doesn't own: direct (call inline, caller blocks), delegate (hand
	// off to the owner), or combine (batch through a shared queue).
	DispatchMode dispatch.Mode
	Logger       *logging.Logger
}

// DefaultConfig returns the launcher's documented defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1",
		Port:         11211,
		Volume:       64 << 20,
		Threads:      1,
		DispatchMode: dispatch.ModeDirect,
	}
}

// Server is a running MainMemory cache listener: one shared table of
// partitions, one dispatch.Router per partition, and an accept loop that
// spins up a Session per connection.
type Server struct {
	cfg     Config
	tbl     *table.Table
	exec    *command.RoutedExecutor
	routers []*dispatch.Router
	metrics *Metrics
	log     *logging.Logger

	ln      net.Listener
	strands []*fiber.Strand

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// New builds a Server from cfg without starting it. Zero-valued fields
// in cfg are filled from DefaultConfig.
func New(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.Volume == 0 {
		cfg.Volume = def.Volume
	}
	if cfg.Threads == 0 {
		cfg.Threads = def.Threads
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	tbl := table.New(table.Options{
		NParts:       cfg.Threads,
		VolumeBudget: cfg.Volume,
	})
	routers := make([]*dispatch.Router, tbl.NParts())
	for i := range routers {
		routers[i] = dispatch.New(cfg.DispatchMode)
	}

	metrics := NewMetrics()
	return &Server{
		cfg:     cfg,
		tbl:     tbl,
		exec:    command.NewRoutedWithObserver(tbl, routers, NewMetricsObserver(metrics)),
		routers: routers,
		metrics: metrics,
		log:     cfg.Logger,
	}
}

// Metrics returns the server's live metrics, safe to read concurrently
// with Serve.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Addr returns the listener's bound address; only valid after Serve has
// started accepting.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve binds the configured address and accepts connections until ctx
// is cancelled or Close is called. It blocks until the listener stops.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Addr, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapError("server.serve listen "+addr, err)
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		ln.Close()
		return NewError("server.serve", CodeInternal, "already serving")
	}
	s.ln = ln
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.maintain()

	s.log.Infof("listening on %s (partitions=%d mode=%v)", ln.Addr(), s.tbl.NParts(), s.cfg.DispatchMode)
	s.metrics.StartTime.Store(time.Now().UnixNano())

	go func() {
		<-s.ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return err
			}
		}
		s.wg.Add(1)
		go s.serveConn(nc)
	}
}

func (s *Server) serveConn(nc net.Conn) {
	defer s.wg.Done()
	sess := conn.NewSession(nc, s.exec, Version)
	if err := sess.Serve(); err != nil {
		s.log.Debugf("connection %s closed: %v", nc.RemoteAddr(), err)
	}
}

// maintain starts one strand per partition, each running a single system
// fiber that alternates a stride/eviction pass with sleeping until its
// next wakeup. This mirrors the reference's per-partition maintenance
// fiber rather than a single global ticker, so a busy partition's
// maintenance work never competes with an idle one's for a shared
// goroutine's attention.
func (s *Server) maintain() {
	s.strands = make([]*fiber.Strand, s.tbl.NParts())
	handles := make([]fiber.Handle, len(s.strands))
	for i := range s.strands {
		idx := i
		strand := fiber.New(func() int64 { return time.Now().UnixNano() })
		s.strands[i] = strand
		f := strand.Spawn(func(f *fiber.Fiber) {
			for {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if n := s.tbl.MaintainPartition(idx); n > 0 {
					s.metrics.RecordEviction(uint64(n))
				}
				f.Sleep(time.Now().Add(maintainInterval).UnixNano())
			}
		}, fiber.PriorityLow)
		handles[i] = f.Handle()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			strand.Run()
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-s.ctx.Done()
		for i, strand := range s.strands {
			strand.Wake(handles[i])
			strand.Stop()
		}
	}()
}

// Close stops accepting connections and waits until every open
// connection's session has returned (a session ends when its client
// disconnects or quits) and the maintenance strands have stopped.
func (s *Server) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	for _, r := range s.routers {
		r.Close()
	}
	s.metrics.Stop()
	return nil
}
