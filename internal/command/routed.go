package command

import (
	"time"

	"github.com/ehrlich-b/mainmemory/internal/dispatch"
	"github.com/ehrlich-b/mainmemory/internal/table"
)

// RoutedExecutor wraps an Executor with one dispatch.Router per
// partition, so a connection fiber that doesn't own a key's partition
// still reaches it correctly for whatever Mode the server was configured
// with (direct/delegate/combine), instead of every caller assuming it is
// already running on the owning thread.
type RoutedExecutor struct {
	ex      *Executor
	tbl     *table.Table
	routers []*dispatch.Router
	obs     Observer
}

// NewRouted builds a RoutedExecutor with no metrics observer wired in.
// len(routers) must equal tbl.NParts(), one router per partition index.
func NewRouted(tbl *table.Table, routers []*dispatch.Router) *RoutedExecutor {
	return &RoutedExecutor{ex: New(tbl), tbl: tbl, routers: routers, obs: noOpObserver{}}
}

// NewRoutedWithObserver builds a RoutedExecutor that reports every
// operation's outcome and latency to obs (e.g. a *mainmemory.MetricsObserver).
func NewRoutedWithObserver(tbl *table.Table, routers []*dispatch.Router, obs Observer) *RoutedExecutor {
	if obs == nil {
		obs = noOpObserver{}
	}
	return &RoutedExecutor{ex: New(tbl), tbl: tbl, routers: routers, obs: obs}
}

// Stats returns the wired Observer's current counters, or a zero
// StatsSnapshot if none was configured, with CurrentEntries/CurrentVolume
// filled in live from the table (the Observer tracks flow counters, not
// live gauges, since eviction/expiry can change table size without a
// corresponding Executor call).
func (r *RoutedExecutor) Stats() StatsSnapshot {
	snap := r.obs.Snapshot()
	snap.CurrentEntries = r.tbl.Entries()
	snap.CurrentVolume = r.tbl.Volume()
	return snap
}

func (r *RoutedExecutor) routerFor(key []byte) *dispatch.Router {
	h := table.Hash(key)
	return r.routers[r.tbl.IndexFor(h)]
}

type getResult struct {
	e     *table.Entry
	found bool
}

// Get looks up key through the owning partition's router.
func (r *RoutedExecutor) Get(key []byte) (*table.Entry, bool) {
	start := time.Now()
	out := dispatch.Execute(r.routerFor(key), func() getResult {
		e, found := r.ex.Get(key)
		return getResult{e, found}
	})
	bytes := uint64(0)
	if out.found {
		bytes = uint64(len(out.e.Value()))
	}
	r.obs.ObserveGet(out.found, bytes, uint64(time.Since(start)))
	return out.e, out.found
}

// storeOutcome classifies a StoreResult for the Observer.
func storeOutcome(res StoreResult) StoreOutcome {
	switch {
	case res.Stored:
		return StoreOutcomeStored
	case res.Existed:
		return StoreOutcomeExists
	default:
		return StoreOutcomeNotStored
	}
}

// Store runs Store through the owning partition's router.
func (r *RoutedExecutor) Store(mode StoreMode, key, value []byte, flags uint32, expTime int64, cas uint64) StoreResult {
	start := time.Now()
	res := dispatch.Execute(r.routerFor(key), func() StoreResult {
		return r.ex.Store(mode, key, value, flags, expTime, cas)
	})
	r.obs.ObserveSet(storeOutcome(res), uint64(len(value)), uint64(time.Since(start)))
	return res
}

// Alter runs Alter through the owning partition's router.
func (r *RoutedExecutor) Alter(key, extra []byte, prepend bool) StoreResult {
	start := time.Now()
	res := dispatch.Execute(r.routerFor(key), func() StoreResult {
		return r.ex.Alter(key, extra, prepend)
	})
	r.obs.ObserveSet(storeOutcome(res), uint64(len(extra)), uint64(time.Since(start)))
	return res
}

// IncrDecr runs IncrDecr through the owning partition's router.
func (r *RoutedExecutor) IncrDecr(key []byte, delta uint64, decr bool, vivify bool, initial uint64, expTime int64) DeltaResult {
	start := time.Now()
	res := dispatch.Execute(r.routerFor(key), func() DeltaResult {
		return r.ex.IncrDecr(key, delta, decr, vivify, initial, expTime)
	})
	r.obs.ObserveIncrDecr(res.Found || res.Created, uint64(time.Since(start)))
	return res
}

// Delete runs Delete through the owning partition's router.
func (r *RoutedExecutor) Delete(key []byte) (*table.Entry, bool) {
	start := time.Now()
	out := dispatch.Execute(r.routerFor(key), func() getResult {
		e, found := r.ex.Delete(key)
		return getResult{e, found}
	})
	r.obs.ObserveDelete(out.found, uint64(time.Since(start)))
	return out.e, out.found
}

// Touch runs Touch through the owning partition's router.
func (r *RoutedExecutor) Touch(key []byte, expTime int64) bool {
	start := time.Now()
	found := dispatch.Execute(r.routerFor(key), func() bool {
		return r.ex.Touch(key, expTime)
	})
	r.obs.ObserveTouch(found, uint64(time.Since(start)))
	return found
}

// Release returns an entry's reference through its owning partition's
// router, matching however Get/Delete reached it.
func (r *RoutedExecutor) Release(e *table.Entry) {
	router := r.routers[r.tbl.IndexFor(e.Hash)]
	dispatch.Execute(router, func() struct{} {
		r.ex.Release(e)
		return struct{}{}
	})
}

// FlushAll flushes every partition directly; Partition.Flush takes its
// own lock so no router hop is needed for a table-wide sweep.
func (r *RoutedExecutor) FlushAll() {
	start := time.Now()
	defer func() { r.obs.ObserveFlush(uint64(time.Since(start))) }()
	r.ex.FlushAll()
}
