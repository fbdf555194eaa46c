// Package dispatch implements the three routing modes table operations
// can reach their owning partition by: direct (caller already is the
// owner), delegate (a future posted to the owner's inbox), and combine
// (an action queued on the partition's MPMC ring, drained in a batch by
// whichever caller wins the consumer ticket). All three present the same
// blocking call to the caller; they differ only in who ends up running
// the action. Grounded on base/combiner.h's ring/ticket-lock pairing and
// core/future.h's post-and-block handoff.
package dispatch

import (
	"github.com/ehrlich-b/mainmemory/internal/atomicx"
	"github.com/ehrlich-b/mainmemory/internal/ring"
)

// Mode selects how a Router reaches its partition's critical section.
type Mode int

const (
	// ModeDirect runs the action inline in the calling goroutine. Correct
	// whenever the caller already is that partition's owner fiber.
	ModeDirect Mode = iota
	// ModeDelegate posts the action to a dedicated owner goroutine and
	// blocks on its completion, preserving FIFO order across callers.
	ModeDelegate
	// ModeCombine queues the action on an MPMC ring; whichever caller
	// wins the consumer ticket lock drains and runs a batch of pending
	// actions under one critical section.
	ModeCombine

	combineRingSize  = 1024
	delegateRingSize = 1024
	combineBatchMax  = 64
)

type job struct {
	run  func()
	done chan struct{}
}

// Router dispatches closures to a single partition's owning context
// according to Mode. The zero value is not usable; construct with New.
type Router struct {
	mode    Mode
	inbox   *ring.MPSC[*job] // delegate mode
	combine *ring.MPMC[*job] // combine mode
	quit    chan struct{}
}

// New creates a Router in the given mode. Delegate mode spawns an owner
// goroutine that runs until Close; combine mode needs no dedicated
// goroutine since any caller can become the consumer.
func New(mode Mode) *Router {
	r := &Router{mode: mode, quit: make(chan struct{})}
	switch mode {
	case ModeDelegate:
		r.inbox = ring.NewMPSC[*job](delegateRingSize)
		go r.ownerLoop()
	case ModeCombine:
		r.combine = ring.NewMPMC[*job](combineRingSize)
	}
	return r
}

// Close stops the delegate owner goroutine, if any. Safe to call on a
// direct- or combine-mode Router as a no-op.
func (r *Router) Close() {
	if r.mode == ModeDelegate {
		close(r.quit)
	}
}

func (r *Router) ownerLoop() {
	for {
		select {
		case <-r.quit:
			return
		default:
		}
		j, ok := r.inbox.TryDequeue()
		if !ok {
			continue
		}
		j.run()
		close(j.done)
	}
}

// Execute runs fn according to the router's mode and returns its result,
// blocking the caller until fn has actually run.
func Execute[T any](r *Router, fn func() T) T {
	switch r.mode {
	case ModeDirect:
		return fn()
	case ModeDelegate:
		var result T
		j := &job{done: make(chan struct{})}
		j.run = func() { result = fn() }
		r.inbox.Enqueue(j)
		<-j.done
		return result
	case ModeCombine:
		var result T
		j := &job{done: make(chan struct{})}
		j.run = func() { result = fn() }
		r.combine.Enqueue(j)
		drainCombineUntil(r.combine, j.done)
		return result
	default:
		return fn()
	}
}

// drainCombineUntil participates in the combine ring: if it can win the
// consumer ticket it drains a batch (running every pending action,
// including possibly ones besides the caller's own), otherwise it waits
// for its own job to be completed by whichever caller is draining.
func drainCombineUntil(r *ring.MPMC[*job], done chan struct{}) {
	var b atomicx.Backoff
	for {
		select {
		case <-done:
			return
		default:
		}
		if !r.TryLockConsumer() {
			b.Spin()
			continue
		}
		for n := 0; n < combineBatchMax; n++ {
			j, ok := r.TryDequeue()
			if !ok {
				break
			}
			j.run()
			close(j.done)
		}
		r.UnlockConsumer()
	}
}
