package mainmemory

import (
	"net"
	"testing"

	"github.com/ehrlich-b/mainmemory/internal/command"
	"github.com/ehrlich-b/mainmemory/internal/conn"
	"github.com/ehrlich-b/mainmemory/internal/dispatch"
	"github.com/ehrlich-b/mainmemory/internal/table"
)

// TestHarness wires an in-process client connection to a live Session,
// for package-level tests that want to exercise the wire protocol
// without binding a real socket.
type TestHarness struct {
	Client net.Conn
	Exec   *command.RoutedExecutor
	Table  *table.Table

	routers []*dispatch.Router
	done    chan error
}

// NewTestHarness builds a one-partition table and a Session served over
// a net.Pipe, returning the client end for the test to drive. Call
// Close when done to let the Session's goroutine unwind.
func NewTestHarness(t *testing.T, mode dispatch.Mode) *TestHarness {
	t.Helper()

	tbl := table.New(table.Options{
		NParts:       1,
		VolumeBudget: 16 << 20,
	})
	routers := []*dispatch.Router{dispatch.New(mode)}
	exec := command.NewRouted(tbl, routers)

	client, server := net.Pipe()
	sess := conn.NewSession(server, exec, Version)

	h := &TestHarness{
		Client:  client,
		Exec:    exec,
		Table:   tbl,
		routers: routers,
		done:    make(chan error, 1),
	}
	go func() { h.done <- sess.Serve() }()

	t.Cleanup(h.Close)
	return h
}

// Close closes the client side of the pipe and waits for the Session's
// goroutine to return.
func (h *TestHarness) Close() {
	h.Client.Close()
	<-h.done
	for _, r := range h.routers {
		r.Close()
	}
}

// NewTestTable builds a table sized for unit tests that don't need a
// full Server: a single partition, a fixed clock, and a small volume
// budget.
func NewTestTable(nowUnix int64) *table.Table {
	return table.New(table.Options{
		NParts:       1,
		VolumeBudget: 16 << 20,
		Now:          func() int64 { return nowUnix },
	})
}
