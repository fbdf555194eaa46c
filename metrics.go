package mainmemory

import (
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/mainmemory/internal/command"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks cache performance and operational statistics for a
// MainMemory server, aggregated across every partition.
type Metrics struct {
	// Command counters.
	GetOps    atomic.Uint64
	SetOps    atomic.Uint64
	DeleteOps atomic.Uint64
	IncrOps   atomic.Uint64
	TouchOps  atomic.Uint64
	FlushOps  atomic.Uint64

	// Outcome counters.
	Hits         atomic.Uint64
	Misses       atomic.Uint64
	StoredOK     atomic.Uint64
	NotStored    atomic.Uint64
	Exists       atomic.Uint64
	CASMismatch  atomic.Uint64
	Evictions    atomic.Uint64
	ExpiredReaps atomic.Uint64
	OOMRejects   atomic.Uint64

	// Byte counters.
	BytesRead    atomic.Uint64
	BytesWritten atomic.Uint64

	// Live table state, moved only by SetTableState; the table does not
	// call it.
	CurrentEntries atomic.Int64
	CurrentVolume  atomic.Int64

	// Performance tracking.
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Server lifecycle.
	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordGet records a get/gets lookup.
func (m *Metrics) RecordGet(hit bool, bytes uint64, latencyNs uint64) {
	m.GetOps.Add(1)
	if hit {
		m.Hits.Add(1)
		m.BytesRead.Add(bytes)
	} else {
		m.Misses.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordSet records a set/add/replace/append/prepend/cas store.
func (m *Metrics) RecordSet(outcome StoreOutcome, bytes uint64, latencyNs uint64) {
	m.SetOps.Add(1)
	switch outcome {
	case StoreOutcomeStored:
		m.StoredOK.Add(1)
		m.BytesWritten.Add(bytes)
	case StoreOutcomeNotStored:
		m.NotStored.Add(1)
	case StoreOutcomeExists:
		m.Exists.Add(1)
	case StoreOutcomeOutOfMemory:
		m.OOMRejects.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordDelete records a delete operation.
func (m *Metrics) RecordDelete(hit bool, latencyNs uint64) {
	m.DeleteOps.Add(1)
	if hit {
		m.Hits.Add(1)
	} else {
		m.Misses.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordIncrDecr records an incr/decr operation.
func (m *Metrics) RecordIncrDecr(hit bool, latencyNs uint64) {
	m.IncrOps.Add(1)
	if hit {
		m.Hits.Add(1)
	} else {
		m.Misses.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordTouch records a touch operation.
func (m *Metrics) RecordTouch(hit bool, latencyNs uint64) {
	m.TouchOps.Add(1)
	if hit {
		m.Hits.Add(1)
	} else {
		m.Misses.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordCASMismatch records a cas/update rejected due to a stale stamp.
func (m *Metrics) RecordCASMismatch() {
	m.CASMismatch.Add(1)
}

// RecordEviction records n entries reclaimed by the CLOCK evictor.
func (m *Metrics) RecordEviction(n uint64) {
	m.Evictions.Add(n)
}

// RecordExpiredReap records n entries reclaimed lazily on lookup/flush.
func (m *Metrics) RecordExpiredReap(n uint64) {
	m.ExpiredReaps.Add(n)
}

// RecordFlush records a flush_all.
func (m *Metrics) RecordFlush(latencyNs uint64) {
	m.FlushOps.Add(1)
	m.recordLatency(latencyNs)
}

// SetTableState adjusts the live entry/volume gauges by the given deltas.
// Partitions do not call it; RoutedExecutor.Stats reads the live counts
// from the table instead.
func (m *Metrics) SetTableState(deltaEntries, deltaVolume int64) {
	m.CurrentEntries.Add(deltaEntries)
	m.CurrentVolume.Add(deltaVolume)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the server as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// StoreOutcome classifies the result of a storage command for metrics.
// Aliased to internal/command's type (rather than redeclared) so a single
// *MetricsObserver satisfies both this package's Observer and
// internal/command.Observer with one ObserveSet method.
type StoreOutcome = command.StoreOutcome

const (
	StoreOutcomeStored      = command.StoreOutcomeStored
	StoreOutcomeNotStored   = command.StoreOutcomeNotStored
	StoreOutcomeExists      = command.StoreOutcomeExists
	StoreOutcomeOutOfMemory = command.StoreOutcomeOutOfMemory
)

// MetricsSnapshot is a point-in-time snapshot of metrics, safe to serve from
// a `stats` command handler without holding any lock.
type MetricsSnapshot struct {
	GetOps, SetOps, DeleteOps, IncrOps, TouchOps, FlushOps uint64

	Hits, Misses                                uint64
	StoredOK, NotStored, Exists, CASMismatch     uint64
	Evictions, ExpiredReaps, OOMRejects          uint64
	BytesRead, BytesWritten                      uint64
	CurrentEntries, CurrentVolume                int64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns, LatencyP99Ns, LatencyP999Ns uint64
	LatencyHistogram                          [numLatencyBuckets]uint64

	HitRate float64 // Hits / (Hits+Misses), percentage.
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		GetOps:         m.GetOps.Load(),
		SetOps:         m.SetOps.Load(),
		DeleteOps:      m.DeleteOps.Load(),
		IncrOps:        m.IncrOps.Load(),
		TouchOps:       m.TouchOps.Load(),
		FlushOps:       m.FlushOps.Load(),
		Hits:           m.Hits.Load(),
		Misses:         m.Misses.Load(),
		StoredOK:       m.StoredOK.Load(),
		NotStored:      m.NotStored.Load(),
		Exists:         m.Exists.Load(),
		CASMismatch:    m.CASMismatch.Load(),
		Evictions:      m.Evictions.Load(),
		ExpiredReaps:   m.ExpiredReaps.Load(),
		OOMRejects:     m.OOMRejects.Load(),
		BytesRead:      m.BytesRead.Load(),
		BytesWritten:   m.BytesWritten.Load(),
		CurrentEntries: m.CurrentEntries.Load(),
		CurrentVolume:  m.CurrentVolume.Load(),
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if total := snap.Hits + snap.Misses; total > 0 {
		snap.HitRate = float64(snap.Hits) / float64(total) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Observer allows pluggable metrics collection, mirroring the command
// handlers' call sites 1:1 so a caller can swap in e.g. a Prometheus
// exporter without touching internal/command.
type Observer interface {
	ObserveGet(hit bool, bytes uint64, latencyNs uint64)
	ObserveSet(outcome StoreOutcome, bytes uint64, latencyNs uint64)
	ObserveDelete(hit bool, latencyNs uint64)
	ObserveIncrDecr(hit bool, latencyNs uint64)
	ObserveFlush(latencyNs uint64)
	ObserveEviction(n uint64)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveGet(bool, uint64, uint64)         {}
func (NoOpObserver) ObserveSet(StoreOutcome, uint64, uint64) {}
func (NoOpObserver) ObserveDelete(bool, uint64)              {}
func (NoOpObserver) ObserveIncrDecr(bool, uint64)            {}
func (NoOpObserver) ObserveFlush(uint64)                     {}
func (NoOpObserver) ObserveEviction(uint64)                  {}

// MetricsObserver implements Observer by recording into a *Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveGet(hit bool, bytes uint64, latencyNs uint64) {
	o.metrics.RecordGet(hit, bytes, latencyNs)
}

func (o *MetricsObserver) ObserveSet(outcome StoreOutcome, bytes uint64, latencyNs uint64) {
	o.metrics.RecordSet(outcome, bytes, latencyNs)
}

func (o *MetricsObserver) ObserveDelete(hit bool, latencyNs uint64) {
	o.metrics.RecordDelete(hit, latencyNs)
}

func (o *MetricsObserver) ObserveIncrDecr(hit bool, latencyNs uint64) {
	o.metrics.RecordIncrDecr(hit, latencyNs)
}

func (o *MetricsObserver) ObserveFlush(latencyNs uint64) {
	o.metrics.RecordFlush(latencyNs)
}

func (o *MetricsObserver) ObserveEviction(n uint64) {
	o.metrics.RecordEviction(n)
}

// ObserveTouch satisfies internal/command.Observer; not part of the
// narrower root Observer interface above.
func (o *MetricsObserver) ObserveTouch(hit bool, latencyNs uint64) {
	o.metrics.RecordTouch(hit, latencyNs)
}

// Snapshot satisfies internal/command.Observer, letting
// command.RoutedExecutor.Stats (behind the ASCII "stats" and binary STAT
// handlers) format a reply
// without internal/command importing this package.
func (o *MetricsObserver) Snapshot() command.StatsSnapshot {
	s := o.metrics.Snapshot()
	return command.StatsSnapshot{
		GetOps:         s.GetOps,
		SetOps:         s.SetOps,
		DeleteOps:      s.DeleteOps,
		IncrOps:        s.IncrOps,
		TouchOps:       s.TouchOps,
		FlushOps:       s.FlushOps,
		Hits:           s.Hits,
		Misses:         s.Misses,
		StoredOK:       s.StoredOK,
		NotStored:      s.NotStored,
		Exists:         s.Exists,
		CASMismatch:    s.CASMismatch,
		Evictions:      s.Evictions,
		ExpiredReaps:   s.ExpiredReaps,
		OOMRejects:     s.OOMRejects,
		BytesRead:      s.BytesRead,
		BytesWritten:   s.BytesWritten,
		CurrentEntries: s.CurrentEntries,
		CurrentVolume:  s.CurrentVolume,
		UptimeNs:       s.UptimeNs,
	}
}

var _ Observer = (*MetricsObserver)(nil)
var _ command.Observer = (*MetricsObserver)(nil)
