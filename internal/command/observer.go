package command

// StoreOutcome classifies a Store call's result for an Observer, mirroring
// memcache/command.c's stats counters (stored/not-stored/exists/oom).
type StoreOutcome int

const (
	StoreOutcomeStored StoreOutcome = iota
	StoreOutcomeNotStored
	StoreOutcomeExists
	StoreOutcomeOutOfMemory
)

// StatsSnapshot is a point-in-time view of accumulated counters, enough
// to format a "stats"/STAT response without internal/protocol depending
// on whatever concrete metrics type backs the Observer.
type StatsSnapshot struct {
	GetOps, SetOps, DeleteOps, IncrOps, TouchOps, FlushOps uint64
	Hits, Misses                                           uint64
	StoredOK, NotStored, Exists, CASMismatch                uint64
	Evictions, ExpiredReaps, OOMRejects                     uint64
	BytesRead, BytesWritten                                 uint64
	CurrentEntries, CurrentVolume                           int64
	UptimeNs                                                uint64
}

// Observer receives per-operation outcomes so a caller can aggregate
// metrics without internal/command depending on any particular metrics
// implementation; RoutedExecutor calls these synchronously from
// the same goroutine that ran the operation, mirroring the reference's
// stats sink threaded through every mc_command_execute_* handler.
type Observer interface {
	ObserveGet(hit bool, bytes uint64, latencyNs uint64)
	ObserveSet(outcome StoreOutcome, bytes uint64, latencyNs uint64)
	ObserveDelete(hit bool, latencyNs uint64)
	ObserveIncrDecr(hit bool, latencyNs uint64)
	ObserveTouch(hit bool, latencyNs uint64)
	ObserveFlush(latencyNs uint64)
	Snapshot() StatsSnapshot
}

// noOpObserver discards every observation; the default when a caller
// doesn't wire one in.
type noOpObserver struct{}

func (noOpObserver) ObserveGet(bool, uint64, uint64)         {}
func (noOpObserver) ObserveSet(StoreOutcome, uint64, uint64) {}
func (noOpObserver) ObserveDelete(bool, uint64)              {}
func (noOpObserver) ObserveIncrDecr(bool, uint64)            {}
func (noOpObserver) ObserveTouch(bool, uint64)               {}
func (noOpObserver) ObserveFlush(uint64)                     {}
func (noOpObserver) Snapshot() StatsSnapshot                 { return StatsSnapshot{} }
