package table

import "sync"

// stride is the number of source buckets migrated per incremental resize
// step (memcache/table.c's MC_TABLE_STRIDE).
const stride = 64

// Partition is one shard of the cache table, owned by exactly one worker
// thread under the direct routing mode, or reached through the delegate
// future queue / combiner ring under the other two (internal/dispatch
// builds those routing modes on top of the methods here; Partition itself
// only guarantees the locking spec's invariants, not which goroutine calls
// it).
type Partition struct {
	// mu is the "lookup lock": held for a chain walk plus at most one
	// link/unlink, and for the CLOCK sweep. Never held across a
	// suspension point.
	mu sync.Mutex
	// freeMu is the free-list lock, separate from mu so that allocation
	// stalls (extending the slot array) never block lookups in flight.
	freeMu sync.Mutex

	index    int
	partBits uint

	buckets  []*Entry // chain heads; len is always a power of two
	nbuckets uint32

	slots        []*Entry // slot array; identity of an Entry is its index
	entriesEnd   int
	freeHead     *Entry // free-list stack, linked through Entry.next
	nbucketsMax  uint32
	entriesMax   int
	nentries     int
	clockHand    int
	volume       int64
	volumeBudget int64

	stamp      uint64
	nparts     uint64
	flushStamp uint64

	nowFunc func() int64
}

// Config bundles the fixed parameters a Table hands each Partition at
// construction.
type Config struct {
	Index        int
	PartBits     uint
	NBuckets     uint32
	NBucketsMax  uint32
	EntriesMax   int
	VolumeBudget int64
	NParts       uint64
	Now          func() int64
}

// NewPartition allocates a partition with its initial bucket array sized
// to Config.NBuckets.
func NewPartition(cfg Config) *Partition {
	p := &Partition{
		index:        cfg.Index,
		partBits:     cfg.PartBits,
		buckets:      make([]*Entry, cfg.NBuckets),
		nbuckets:     cfg.NBuckets,
		nbucketsMax:  cfg.NBucketsMax,
		entriesMax:   cfg.EntriesMax,
		volumeBudget: cfg.VolumeBudget,
		stamp:        uint64(cfg.Index),
		nparts:       cfg.NParts,
		nowFunc:      cfg.Now,
	}
	return p
}

// Index returns the partition's position in the owning table.
func (p *Partition) Index() int { return p.index }

// Volume reports the current byte volume of live entries.
func (p *Partition) Volume() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// NEntries reports the current number of linked (USED) entries.
func (p *Partition) NEntries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nentries
}

func (p *Partition) now() int64 {
	if p.nowFunc != nil {
		return p.nowFunc()
	}
	return 0
}

// bucketIndex maps a hash to its current bucket, folding indices that
// haven't been split yet back into the lower half so in-flight resizes
// never require readers to take a different lock path.
func (p *Partition) bucketIndex(hash uint32) uint32 {
	used := p.nbuckets
	size := nextPow2u32(used)
	mask := size - 1
	index := (hash >> p.partBits) & mask
	if index >= used {
		index -= size / 2
	}
	return index
}

func nextPow2u32(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}

// unlinkFromChain removes e (whose predecessor in the chain is prev, or
// nil at the head) from its bucket chain under mu, marks it StateNotUsed
// and drops its volume and entry count from the partition's totals.
func (p *Partition) unlinkFromChain(bucket uint32, e *Entry, prev *Entry) {
	if prev == nil {
		p.buckets[bucket] = e.next
	} else {
		prev.next = e.next
	}
	e.next = nil
	e.State = StateNotUsed
	p.volume -= entrySize(int(e.KeyLen), int(e.ValueLen))
	p.nentries--
}

// Lookup finds the live entry matching hash+key, lazily reaping any
// expired nodes found along the way. On a hit it takes a reference and
// bumps the CLOCK recency; the caller must Unref when done.
func (p *Partition) Lookup(hash uint32, key []byte) (*Entry, bool) {
	var reap []*Entry

	p.mu.Lock()
	bucket := p.bucketIndex(hash)
	var prev *Entry
	var found *Entry
	now := p.now()

	e := p.buckets[bucket]
	for e != nil {
		next := e.next
		if e.expired(now, p.flushStamp) {
			p.unlinkFromChain(bucket, e, prev)
			reap = append(reap, e)
			e = next
			continue
		}
		if e.Hash == hash && sameKey(e.Key(), key) {
			e.Ref()
			e.bumpRecency()
			found = e
			break
		}
		prev = e
		e = next
	}
	p.mu.Unlock()

	p.reapBatch(reap)
	return found, found != nil
}

func sameKey(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// reapBatch drops references on entries unlinked during a chain walk,
// freeing their slots once the last reference goes away.
func (p *Partition) reapBatch(entries []*Entry) {
	for _, e := range entries {
		if e.Unref() == 0 {
			p.freeSlot(e)
		}
	}
}

// Create allocates a fresh, as-yet-unlinked entry carrying the given key
// and value bytes, evicting cold entries first if the partition has no
// spare slot. It returns nil if even eviction can't make room.
func (p *Partition) Create(hash uint32, key, value []byte, flags uint32, expTime int64) *Entry {
	data := make([]byte, len(key)+len(value))
	copy(data, key)
	copy(data[len(key):], value)

	e := p.acquireSlot()
	if e == nil {
		if p.evict(1) == 0 {
			return nil
		}
		e = p.acquireSlot()
		if e == nil {
			return nil
		}
	}
	e.Hash = hash
	e.KeyLen = uint8(len(key))
	e.ValueLen = uint32(len(value))
	e.Flags = flags
	e.ExpTime = expTime
	e.Data = data
	e.State = UsedMin
	e.next = nil
	e.refCount.Store(1)
	return e
}

// acquireSlot pops a slot from the free list, or extends the slot array
// into reserved void space. Returns nil if the partition is at capacity.
func (p *Partition) acquireSlot() *Entry {
	p.freeMu.Lock()
	defer p.freeMu.Unlock()

	if p.freeHead != nil {
		e := p.freeHead
		p.freeHead = e.next
		e.next = nil
		return e
	}
	if p.entriesMax > 0 && p.entriesEnd >= p.entriesMax {
		return nil
	}
	e := &Entry{}
	p.slots = append(p.slots, e)
	p.entriesEnd++
	return e
}

// freeSlot returns a fully-dereferenced slot to the free list.
func (p *Partition) freeSlot(e *Entry) {
	e.Data = nil
	e.State = StateFree
	p.freeMu.Lock()
	e.next = p.freeHead
	p.freeHead = e
	p.freeMu.Unlock()
}

// Insert links a brand-new entry at its bucket's head if no live entry
// with the same hash+key already exists. On a collision it returns the
// existing entry (still live, not referenced by this call) and false;
// the caller is expected to discard the new entry via CancelNew.
func (p *Partition) Insert(e *Entry) (old *Entry, inserted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.bucketIndex(e.Hash)
	if existing := p.findLive(bucket, e.Hash, e.Key()); existing != nil {
		return existing, false
	}

	e.Stamp = p.stamp
	p.stamp += p.nparts
	e.next = p.buckets[bucket]
	p.buckets[bucket] = e
	p.volume += entrySize(int(e.KeyLen), int(e.ValueLen))
	p.nentries++
	return nil, true
}

// CancelNew releases a freshly Create'd entry that was never linked,
// because Insert/Update found an existing match.
func (p *Partition) CancelNew(e *Entry) {
	if e.Unref() == 0 {
		p.freeSlot(e)
	}
}

// Release drops a reference on e, freeing its slot once the count
// reaches zero. Callers outside the package use this instead of reaching
// into the unexported free list directly, e.g. to dispose of an entry
// Lookup or Update/Delete handed back once they're done reading it.
func (p *Partition) Release(e *Entry) {
	if e.Unref() == 0 {
		p.freeSlot(e)
	}
}

func (p *Partition) findLive(bucket uint32, hash uint32, key []byte) *Entry {
	now := p.now()
	e := p.buckets[bucket]
	for e != nil {
		if !e.expired(now, p.flushStamp) && e.Hash == hash && sameKey(e.Key(), key) {
			return e
		}
		e = e.next
	}
	return nil
}

// Update replaces the live entry matching new's hash+key, provided cas is
// zero or matches the existing entry's Stamp. matched reports whether a
// live entry was found at all; casOK reports whether the replacement
// actually happened (false on a CAS mismatch, in which case old is the
// current entry so the caller can report EXISTS/the current value).
func (p *Partition) Update(e *Entry, cas uint64) (old *Entry, matched bool, casOK bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.bucketIndex(e.Hash)
	var prev *Entry
	cur := p.buckets[bucket]
	now := p.now()
	for cur != nil {
		if cur.expired(now, p.flushStamp) {
			next := cur.next
			p.unlinkFromChain(bucket, cur, prev)
			if cur.Unref() == 0 {
				p.freeSlot(cur)
			}
			cur = next
			continue
		}
		if cur.Hash == e.Hash && sameKey(cur.Key(), e.Key()) {
			if cas != 0 && cas != cur.Stamp {
				return cur, true, false
			}
			p.unlinkFromChain(bucket, cur, prev)
			e.Stamp = p.stamp
			p.stamp += p.nparts
			e.next = p.buckets[bucket]
			p.buckets[bucket] = e
			p.volume += entrySize(int(e.KeyLen), int(e.ValueLen))
			p.nentries++
			return cur, true, true
		}
		prev = cur
		cur = cur.next
	}
	return nil, false, false
}

// Upsert replaces a matching live entry regardless of CAS, or inserts new
// if none exists.
func (p *Partition) Upsert(e *Entry) (old *Entry) {
	old, matched, _ := p.Update(e, 0)
	if matched {
		return old
	}
	p.Insert(e)
	return nil
}

// Delete unlinks the live entry matching hash+key, if any.
func (p *Partition) Delete(hash uint32, key []byte) (old *Entry, found bool) {
	p.mu.Lock()
	bucket := p.bucketIndex(hash)
	var prev *Entry
	e := p.buckets[bucket]
	now := p.now()
	for e != nil {
		next := e.next
		if e.expired(now, p.flushStamp) {
			p.unlinkFromChain(bucket, e, prev)
			if e.Unref() == 0 {
				p.freeSlot(e)
			}
			e = next
			continue
		}
		if e.Hash == hash && sameKey(e.Key(), key) {
			p.unlinkFromChain(bucket, e, prev)
			p.mu.Unlock()
			return e, true
		}
		prev = e
		e = next
	}
	p.mu.Unlock()
	return nil, false
}

// Flush bumps flush_stamp so every entry stamped before now reads as
// logically absent; physical reclamation happens lazily on next touch.
func (p *Partition) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushStamp = p.stamp
}

// NeedsEviction reports whether the partition is over its volume budget
// by more than reserve bytes.
func (p *Partition) NeedsEviction(reserve int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume+reserve > p.volumeBudget
}

// evict runs one CLOCK sweep, reclaiming at most nrequired victims.
// Returns the number of victims reclaimed.
func (p *Partition) evict(nrequired int) int {
	p.mu.Lock()
	var victims []*Entry
	bound := p.entriesEnd
	now := p.now()

	for swept := 0; swept < bound && len(victims) < nrequired; swept++ {
		if p.entriesEnd == 0 {
			break
		}
		p.clockHand = (p.clockHand + 1) % p.entriesEnd
		e := p.slots[p.clockHand]
		if e.State < UsedMin {
			continue
		}
		if e.expired(now, p.flushStamp) || e.State == UsedMin {
			bucket := p.bucketIndex(e.Hash)
			p.unlinkChainEntry(bucket, e)
			victims = append(victims, e)
			continue
		}
		e.decayRecency()
	}
	p.mu.Unlock()

	for _, e := range victims {
		if e.Unref() == 0 {
			p.freeSlot(e)
		}
	}
	return len(victims)
}

// Evict runs CLOCK sweeps (yielding between rounds is the caller's
// responsibility, e.g. a fiber calling this repeatedly) until volume
// drops back under budget or a round reclaims nothing. Returns the total
// number of entries reclaimed, for the caller's eviction metrics.
func (p *Partition) Evict(reserve int64, batch int) int {
	total := 0
	for p.NeedsEviction(reserve) {
		n := p.evict(batch)
		total += n
		if n == 0 {
			return total
		}
	}
	return total
}

// unlinkChainEntry walks bucket's chain to unlink e specifically, used by
// the evictor which finds entries via the slot array, not the chain.
func (p *Partition) unlinkChainEntry(bucket uint32, target *Entry) {
	var prev *Entry
	e := p.buckets[bucket]
	for e != nil {
		if e == target {
			p.unlinkFromChain(bucket, e, prev)
			return
		}
		prev = e
		e = e.next
	}
}

// NeedsStride reports whether the bucket array has fallen far enough
// behind entry count to warrant another incremental resize step.
func (p *Partition) NeedsStride() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint32(p.nentries) > p.nbuckets*2 && p.nbuckets < p.nbucketsMax
}

// Stride performs one incremental resize step: doubling the backing
// bucket array if nbuckets is currently a power of two, then splitting
// `stride` source buckets into their two post-split chains.
func (p *Partition) Stride() {
	p.mu.Lock()
	defer p.mu.Unlock()

	used := p.nbuckets
	var halfSize uint32
	if isPow2(used) {
		halfSize = used
		newSize := used * 2
		grown := make([]*Entry, newSize)
		copy(grown, p.buckets)
		p.buckets = grown
	} else {
		halfSize = prevPow2(used)
	}

	target := used
	source := used - halfSize
	mask := halfSize*2 - 1

	for count := uint32(0); count < stride && source < halfSize; count++ {
		var sHead, tHead *Entry
		e := p.buckets[source]
		for e != nil {
			next := e.next
			index := (e.Hash >> p.partBits) & mask
			if index == source {
				e.next = sHead
				sHead = e
			} else {
				e.next = tHead
				tHead = e
			}
			e = next
		}
		p.buckets[source] = sHead
		p.buckets[target] = tHead
		source++
		target++
	}

	p.nbuckets = target
	if p.nbuckets > p.nbucketsMax {
		p.nbuckets = p.nbucketsMax
	}
}

func isPow2(n uint32) bool { return n != 0 && n&(n-1) == 0 }

func prevPow2(n uint32) uint32 {
	p := uint32(1)
	for p*2 <= n {
		p *= 2
	}
	return p
}
