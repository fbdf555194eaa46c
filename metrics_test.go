package mainmemory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsGetSet(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	assert.Zero(t, snap.GetOps+snap.SetOps)

	m.RecordGet(true, 3, 1_000_000)  // hit, 1ms
	m.RecordGet(false, 0, 500_000)   // miss
	m.RecordSet(StoreOutcomeStored, 3, 2_000_000)

	snap = m.Snapshot()
	assert.EqualValues(t, 2, snap.GetOps)
	assert.EqualValues(t, 1, snap.SetOps)
	assert.EqualValues(t, 1, snap.Hits)
	assert.EqualValues(t, 1, snap.Misses)
	assert.EqualValues(t, 1, snap.StoredOK)
	assert.EqualValues(t, 3, snap.BytesRead)
	assert.EqualValues(t, 3, snap.BytesWritten)

	expectedHitRate := 50.0
	assert.InDelta(t, expectedHitRate, snap.HitRate, 0.1)
}

func TestMetricsStoreOutcomes(t *testing.T) {
	m := NewMetrics()

	m.RecordSet(StoreOutcomeNotStored, 0, 1000)
	m.RecordSet(StoreOutcomeExists, 0, 1000)
	m.RecordSet(StoreOutcomeOutOfMemory, 0, 1000)

	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.NotStored)
	assert.EqualValues(t, 1, snap.Exists)
	assert.EqualValues(t, 1, snap.OOMRejects)
}

func TestMetricsTableState(t *testing.T) {
	m := NewMetrics()

	m.SetTableState(10, 2048)
	m.SetTableState(-3, -512)

	snap := m.Snapshot()
	assert.EqualValues(t, 7, snap.CurrentEntries)
	assert.EqualValues(t, 1536, snap.CurrentVolume)
}

func TestMetricsEvictionAndReap(t *testing.T) {
	m := NewMetrics()

	m.RecordEviction(5)
	m.RecordExpiredReap(2)
	m.RecordCASMismatch()

	snap := m.Snapshot()
	assert.EqualValues(t, 5, snap.Evictions)
	assert.EqualValues(t, 2, snap.ExpiredReaps)
	assert.EqualValues(t, 1, snap.CASMismatch)
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()

	m.RecordGet(true, 1024, 1_000_000)
	m.RecordSet(StoreOutcomeStored, 1024, 2_000_000)

	snap := m.Snapshot()
	assert.EqualValues(t, 1_500_000, snap.AvgLatencyNs)
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()
	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	assert.GreaterOrEqual(t, snap.UptimeNs, uint64(10*time.Millisecond))

	m.Stop()
	time.Sleep(5 * time.Millisecond)

	snap2 := m.Snapshot()
	assert.LessOrEqual(t, snap2.UptimeNs, snap.UptimeNs+uint64(2*time.Millisecond))
}

func TestObserver(t *testing.T) {
	observer := &NoOpObserver{}
	assert.NotPanics(t, func() {
		observer.ObserveGet(true, 1024, 1000)
		observer.ObserveSet(StoreOutcomeStored, 1024, 1000)
		observer.ObserveDelete(true, 1000)
		observer.ObserveIncrDecr(true, 1000)
		observer.ObserveFlush(1000)
		observer.ObserveEviction(1)
	})

	m := NewMetrics()
	metricsObserver := NewMetricsObserver(m)

	metricsObserver.ObserveGet(true, 1024, 1000)
	metricsObserver.ObserveSet(StoreOutcomeStored, 2048, 1000)

	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.GetOps)
	assert.EqualValues(t, 1, snap.SetOps)
	assert.EqualValues(t, 1024, snap.BytesRead)
	assert.EqualValues(t, 2048, snap.BytesWritten)
}

func TestMetricsHistogramPercentiles(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordGet(true, 1024, 500_000) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordSet(StoreOutcomeStored, 1024, 5_000_000) // 5ms
	}
	m.RecordSet(StoreOutcomeStored, 1024, 50_000_000) // 50ms, the P99

	snap := m.Snapshot()
	assert.EqualValues(t, 100, snap.GetOps+snap.SetOps)
	assert.InDelta(t, 500_000, snap.LatencyP50Ns, 600_000)
	assert.GreaterOrEqual(t, snap.LatencyP99Ns, uint64(5_000_000))

	var totalInBuckets uint64
	for _, c := range snap.LatencyHistogram {
		totalInBuckets += c
	}
	assert.NotZero(t, totalInBuckets)
}
