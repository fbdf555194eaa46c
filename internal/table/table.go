package table

import (
	"time"

	"github.com/ehrlich-b/mainmemory/internal/hash"
)

const (
	defaultNBucketsMax = 16 * 1024 * 1024
	defaultEntriesMax  = 16 * 1024 * 1024
	volumeReserve      = 64 * 1024
	evictBatch         = 32
)

// Table is the fixed set of partitions the cache is sharded across. The
// low PartBits of a key's hash select a partition; table construction
// fixes the partition count as a power of two for the lifetime of the
// process.
type Table struct {
	Parts    []*Partition
	partBits uint
	partMask uint32
}

// Options configures Table construction.
type Options struct {
	NParts       int   // must be a power of two
	VolumeBudget int64 // total bytes across all partitions
	Now          func() int64
}

// New builds a table with opts.NParts partitions, each budgeted an equal
// share of opts.VolumeBudget.
func New(opts Options) *Table {
	n := nextPow2(opts.NParts)
	partBits := uint(0)
	for (1 << partBits) < n {
		partBits++
	}

	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}

	perPart := opts.VolumeBudget / int64(n)
	t := &Table{
		partBits: partBits,
		partMask: uint32(n - 1),
	}
	for i := 0; i < n; i++ {
		t.Parts = append(t.Parts, NewPartition(Config{
			Index:        i,
			PartBits:     partBits,
			NBuckets:     256,
			NBucketsMax:  defaultNBucketsMax,
			EntriesMax:   defaultEntriesMax,
			VolumeBudget: perPart,
			NParts:       uint64(n),
			Now:          now,
		}))
	}
	return t
}

func nextPow2(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Hash computes the routing hash for a key.
func Hash(key []byte) uint32 { return hash.FNV1a(key) }

// PartitionFor returns the partition that owns hash, using the table's
// low part_bits.
func (t *Table) PartitionFor(h uint32) *Partition {
	return t.Parts[h&t.partMask]
}

// IndexFor returns the partition index hash routes to, for callers (e.g.
// internal/dispatch routing) that need the index rather than the
// Partition itself.
func (t *Table) IndexFor(h uint32) int {
	return int(h & t.partMask)
}

// PartBits reports how many low hash bits select a partition; the
// remaining upper bits index a partition's own buckets.
func (t *Table) PartBits() uint { return t.partBits }

// NParts reports the partition count.
func (t *Table) NParts() int { return len(t.Parts) }

// MaintainOnce runs one round of stride/eviction maintenance across every
// partition. Intended for callers that don't run one system fiber per
// partition (e.g. a single-threaded test table). Returns the total number
// of entries evicted across all partitions.
func (t *Table) MaintainOnce() int {
	total := 0
	for i := range t.Parts {
		total += t.MaintainPartition(i)
	}
	return total
}

// MaintainPartition runs one round of stride/eviction maintenance for a
// single partition, the unit of work a per-partition system fiber (see
// internal/fiber) performs on each wakeup. Returns the number of entries
// evicted, for the caller's eviction metrics.
func (t *Table) MaintainPartition(i int) int {
	p := t.Parts[i]
	reserve := volumeReserve / int64(len(t.Parts))
	if p.NeedsStride() {
		p.Stride()
	}
	if p.NeedsEviction(reserve) {
		return p.Evict(reserve, evictBatch)
	}
	return 0
}

// FlushAll flushes every partition, used by the ASCII/binary flush_all
// command which has no notion of per-key routing.
func (t *Table) FlushAll() {
	for _, p := range t.Parts {
		p.Flush()
	}
}

// Entries reports the total number of live entries across every
// partition, for the stats/STAT commands' curr_items counter.
func (t *Table) Entries() int64 {
	var n int64
	for _, p := range t.Parts {
		n += int64(p.NEntries())
	}
	return n
}

// Volume reports the total byte volume of live entries across every
// partition, for the stats/STAT commands' bytes counter.
func (t *Table) Volume() int64 {
	var n int64
	for _, p := range t.Parts {
		n += p.Volume()
	}
	return n
}
