// Package atomicx provides the contention back-off primitive shared by the
// ring, combiner, and partition locks. Go's memory model already gives us
// acquire/release semantics through sync/atomic, so this package supplies
// only the one piece the standard library omits: a spin-then-yield
// discipline for busy-waiting on a slot or lock that is expected to be
// held briefly.
package atomicx

import "runtime"

// smallThreshold mirrors MM_BACKOFF_SMALL: below it callers spin in place;
// above it each step first offers the caller's yield hook and spins only if
// the hook is absent or declines, and once the count passes 0xffff a step
// yields (hook or runtime.Gosched) and resets the count.
const smallThreshold = 0xff

// spinFixed issues count pause hints, one per unit of the caller's
// counter. The generic (non-x86) back-off in the
// original source made this a no-op; we deliberately do not assume that —
// every iteration issues a true spin-loop hint regardless of architecture,
// per the specification's open question on this point.
func spinFixed(count uint32) {
	for ; count > 0; count-- {
		procPause()
	}
}

// Backoff implements the counter-driven helper of spec §4.A: short
// contention spins in place, long contention yields the OS thread (or,
// when a Yield hook is installed, cooperatively yields the calling fiber
// instead).
type Backoff struct {
	count uint32
	// Yield, if non-nil, is consulted before descheduling the OS thread.
	// It returns true if it parked/rescheduled the caller by some other
	// means (e.g. the fiber scheduler yielding to another fiber), in
	// which case Backoff does not also call runtime.Gosched.
	Yield func() bool
}

// Spin performs one back-off step and updates the wait count kept in b for
// the next Spin call. A fresh Backoff starts with a zero count.
func (b *Backoff) Spin() {
	if b.count < smallThreshold {
		spinFixed(b.count)
		b.count = b.count + b.count + 1
		return
	}

	if b.count > 0xffff {
		b.yieldOrReschedule()
		b.count = 0
		return
	}

	if b.Yield == nil || !b.Yield() {
		spinFixed(b.count & 0xfff)
	}
	b.count = b.count + b.count + 1
}

// Reset clears accumulated contention count, e.g. once a lock is acquired.
func (b *Backoff) Reset() {
	b.count = 0
}

func (b *Backoff) yieldOrReschedule() {
	if b.Yield != nil && b.Yield() {
		return
	}
	runtime.Gosched()
}
