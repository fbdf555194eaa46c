package fiber

import "sync"

// WaitSet is the "multi-waiter with lock" shape: any number of fibers,
// possibly pinned to different strands, can wait on it; Broadcast wakes
// every one of them. Used where a shared entity (e.g. a partition's
// free-list draining, a connection shutdown signal) has more than one
// potential waiter.
type WaitSet struct {
	mu      sync.Mutex
	waiters []Handle
}

// Wait enqueues the calling fiber and blocks until Signal or Broadcast
// wakes it.
func (w *WaitSet) Wait(f *Fiber) {
	w.mu.Lock()
	w.waiters = append(w.waiters, f.Handle())
	w.mu.Unlock()
	f.Block()
}

// Signal wakes exactly one waiter, if any, FIFO.
func (w *WaitSet) Signal() {
	w.mu.Lock()
	if len(w.waiters) == 0 {
		w.mu.Unlock()
		return
	}
	h := w.waiters[0]
	w.waiters = w.waiters[1:]
	w.mu.Unlock()
	h.f.strand.Wake(h)
}

// Broadcast wakes every currently-waiting fiber.
func (w *WaitSet) Broadcast() {
	w.mu.Lock()
	pending := w.waiters
	w.waiters = nil
	w.mu.Unlock()
	for _, h := range pending {
		h.f.strand.Wake(h)
	}
}

// UniqueWaitSlot is the "unique-waiter" shape: a single-slot atomic
// waiter, cheaper than WaitSet when only one fiber can ever be parked on
// the entity at a time (e.g. a connection's own read-readiness wait).
type UniqueWaitSlot struct {
	mu sync.Mutex
	h  *Handle
}

// Wait parks the calling fiber in the slot. Panics (mirroring the
// source's "double-wake of a non-blocked fiber" fatal condition) if
// another fiber is already parked here.
func (u *UniqueWaitSlot) Wait(f *Fiber) {
	u.mu.Lock()
	if u.h != nil {
		u.mu.Unlock()
		panic("fiber: UniqueWaitSlot already occupied")
	}
	h := f.Handle()
	u.h = &h
	u.mu.Unlock()
	f.Block()
}

// Signal wakes the parked fiber, if any.
func (u *UniqueWaitSlot) Signal() {
	u.mu.Lock()
	h := u.h
	u.h = nil
	u.mu.Unlock()
	if h != nil {
		h.f.strand.Wake(*h)
	}
}
