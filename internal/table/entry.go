// Package table implements the partitioned cache table: a hash table
// sharded across worker threads with incremental ("strided") resize,
// CLOCK-style eviction keyed to a per-partition volume budget, and
// reference-counted entries so readers can safely touch data that a
// concurrent writer is in the process of replacing.
//
// The algorithms are grounded on memcache/table.c and memcache/entry.c of
// the reference implementation; the slab-of-slots layout is kept (entry
// identity is slot index, independent of its bucket chain) but backed by a
// growable Go slice instead of a manually mmap'd reservation, since Go's
// GC already gives every slot a stable address for the lifetime of the
// table without that reservation trick.
package table

import "sync/atomic"

// State identifies an entry's lifecycle stage. Negative values are the
// fixed states; non-negative values are one of the 32 CLOCK recency
// levels a USED entry can occupy.
type State int32

const (
	// StateFree marks a slot sitting on the partition's free list.
	StateFree State = -2
	// StateNotUsed marks a slot that has been unlinked from its bucket
	// chain (by delete, update, flush, or eviction) but whose last
	// reference has not yet dropped, so the slot cannot be reused yet.
	StateNotUsed State = -1

	// UsedMin is the CLOCK recency level assigned to a freshly linked
	// entry and the floor the clock hand's one-notch decay stops at.
	UsedMin State = 0
	// UsedMax is the saturating ceiling a hit bumps recency toward.
	UsedMax State = 31

	numRecencyLevels = 32
)

// Entry is one slot in a partition's backing array. It holds the key and
// value bytes concatenated in a single owned block, plus the bookkeeping
// the table and the CLOCK evictor need. An Entry is reachable from at
// most one bucket chain at a time (via next) while USED, and from the
// free list (via next, reused) while FREE.
type Entry struct {
	Hash     uint32
	KeyLen   uint8
	ValueLen uint32
	Flags    uint32
	ExpTime  int64 // absolute Unix seconds; 0 means "never expires"
	Stamp    uint64

	// Data is key bytes immediately followed by value bytes.
	Data []byte

	refCount atomic.Int32
	State    State

	next *Entry // bucket chain link, or free-list link while FREE
}

// Key returns the key portion of Data.
func (e *Entry) Key() []byte { return e.Data[:e.KeyLen] }

// Value returns the value portion of Data.
func (e *Entry) Value() []byte { return e.Data[e.KeyLen:] }

// Ref increments the entry's reference count. Callers that obtain an
// Entry from a lookup must eventually call Unref exactly once.
func (e *Entry) Ref() { e.refCount.Add(1) }

// Unref drops a reference. It does not itself free anything; the
// partition that owns the slot reclaims it once the count reaches zero
// and the slot has been unlinked (State == StateNotUsed or StateFree).
func (e *Entry) Unref() int32 { return e.refCount.Add(-1) }

// RefCount reports the current reference count.
func (e *Entry) RefCount() int32 { return e.refCount.Load() }

// bumpRecency saturates State toward UsedMax on a cache hit.
func (e *Entry) bumpRecency() {
	if e.State < UsedMax {
		e.State++
	}
}

// decayRecency is the CLOCK hand's miss-side step: one notch toward
// UsedMin per sweep pass.
func (e *Entry) decayRecency() {
	if e.State > UsedMin {
		e.State--
	}
}

// expired reports whether the entry's absolute expiry time has passed,
// or it was stamped before the partition's last flush_all.
func (e *Entry) expired(nowUnix int64, flushStamp uint64) bool {
	if e.Stamp < flushStamp {
		return true
	}
	return e.ExpTime != 0 && e.ExpTime <= nowUnix
}

// entrySize is the volume contribution of an entry with the given key
// and value lengths: the table's "size" accounting unit.
func entrySize(keyLen int, valueLen int) int64 {
	const overhead = 48 // struct + slice header approximation
	return int64(overhead + keyLen + valueLen)
}
