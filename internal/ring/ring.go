// Package ring implements the bounded single-slot-stamp ring buffer of
// spec §3/§4.A: a fixed array of slots, each carrying a publication stamp
// equal to the producer/consumer cursor value that owns it. MPMC is the
// general case; MPSC is a thin specialization that skips the
// consumer-side CAS since only one consumer exists.
package ring

import (
	"sync"

	"github.com/ehrlich-b/mainmemory/internal/atomicx"

	"sync/atomic"
)

// MPMC is a bounded multi-producer/multi-consumer ring buffer of size-2^n
// slots. The zero value is not usable; construct with NewMPMC.
type MPMC[T any] struct {
	mask uint64
	pad0 [7]uint64 // keep head/tail on separate cache lines
	head atomic.Uint64
	pad1 [7]uint64
	tail atomic.Uint64
	pad2 [7]uint64

	slots []mpmcSlot[T]

	// consumerLock serializes the "locked consumer" mode used by the
	// combiner dispatch route: whoever holds the ticket drains a batch
	// under one critical section instead of every caller racing the CAS.
	consumerLock sync.Mutex
}

type mpmcSlot[T any] struct {
	stamp atomic.Uint64
	value T
}

// NewMPMC creates a ring with capacity rounded up to the next power of two.
func NewMPMC[T any](capacity int) *MPMC[T] {
	size := nextPow2(capacity)
	r := &MPMC[T]{
		mask:  uint64(size - 1),
		slots: make([]mpmcSlot[T], size),
	}
	for i := range r.slots {
		r.slots[i].stamp.Store(uint64(i))
	}
	return r
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

// TryEnqueue attempts to publish v without blocking. It returns false if
// the ring is full.
func (r *MPMC[T]) TryEnqueue(v T) bool {
	for {
		tail := r.tail.Load()
		slot := &r.slots[tail&r.mask]
		stamp := slot.stamp.Load()

		switch {
		case stamp == tail:
			if r.tail.CompareAndSwap(tail, tail+1) {
				slot.value = v
				slot.stamp.Store(tail + 1)
				return true
			}
		case stamp < tail:
			return false
		default:
			// Another producer published and wrapped past us; retry.
		}
	}
}

// Enqueue publishes v, spinning with the shared back-off discipline while
// the ring is full.
func (r *MPMC[T]) Enqueue(v T) {
	var b atomicx.Backoff
	for !r.TryEnqueue(v) {
		b.Spin()
	}
}

// TryDequeue attempts to take the oldest published value without
// blocking. It returns (zero, false) if the ring is empty.
func (r *MPMC[T]) TryDequeue() (T, bool) {
	for {
		head := r.head.Load()
		slot := &r.slots[head&r.mask]
		stamp := slot.stamp.Load()

		switch {
		case stamp == head+1:
			if r.head.CompareAndSwap(head, head+1) {
				v := slot.value
				var zero T
				slot.value = zero
				slot.stamp.Store(head + r.mask + 1)
				return v, true
			}
		case stamp < head+1:
			var zero T
			return zero, false
		default:
			// Another consumer is ahead of us; retry.
		}
	}
}

// Dequeue takes the oldest value, spinning with back-off while the ring is
// empty.
func (r *MPMC[T]) Dequeue() T {
	var b atomicx.Backoff
	for {
		if v, ok := r.TryDequeue(); ok {
			return v
		}
		b.Spin()
	}
}

// LockConsumer acquires the ticket lock used by the combiner dispatch mode:
// only the ticket holder drains the ring, batching many producers' actions
// into one critical section.
func (r *MPMC[T]) LockConsumer() {
	r.consumerLock.Lock()
}

// TryLockConsumer attempts to acquire the ticket lock without blocking.
func (r *MPMC[T]) TryLockConsumer() bool {
	return r.consumerLock.TryLock()
}

// UnlockConsumer releases the ticket lock.
func (r *MPMC[T]) UnlockConsumer() {
	r.consumerLock.Unlock()
}

// DrainBatch pops up to max pending values under the consumer lock. Used by
// the combiner: whichever caller wins the ticket executes every action
// enqueued by its peers in a single pass.
func (r *MPMC[T]) DrainBatch(max int, fn func(T)) int {
	r.LockConsumer()
	defer r.UnlockConsumer()

	n := 0
	for n < max {
		v, ok := r.TryDequeue()
		if !ok {
			break
		}
		fn(v)
		n++
	}
	return n
}

// MPSC is a multi-producer/single-consumer specialization: the producer
// side is identical to MPMC, but the single consumer never contends with
// itself, so it can advance head with a plain load/store instead of a CAS.
type MPSC[T any] struct {
	inner *MPMC[T]
}

// NewMPSC creates an MPSC ring with capacity rounded up to a power of two.
func NewMPSC[T any](capacity int) *MPSC[T] {
	return &MPSC[T]{inner: NewMPMC[T](capacity)}
}

// Enqueue publishes v from any producer goroutine.
func (r *MPSC[T]) Enqueue(v T) { r.inner.Enqueue(v) }

// TryEnqueue attempts to publish v without blocking.
func (r *MPSC[T]) TryEnqueue(v T) bool { return r.inner.TryEnqueue(v) }

// TryDequeue takes the oldest value from the single consumer goroutine.
// Safe only when called from exactly one goroutine at a time.
func (r *MPSC[T]) TryDequeue() (T, bool) {
	head := r.inner.head.Load()
	slot := &r.inner.slots[head&r.inner.mask]
	if slot.stamp.Load() != head+1 {
		var zero T
		return zero, false
	}
	v := slot.value
	var zero T
	slot.value = zero
	r.inner.head.Store(head + 1)
	slot.stamp.Store(head + r.inner.mask + 1)
	return v, true
}

// Dequeue blocks with back-off until a value is available.
func (r *MPSC[T]) Dequeue() T {
	var b atomicx.Backoff
	for {
		if v, ok := r.TryDequeue(); ok {
			return v
		}
		b.Spin()
	}
}
