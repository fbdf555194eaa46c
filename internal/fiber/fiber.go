// Package fiber implements the cooperative per-thread scheduler each
// worker owns: a 32-priority-bin run-queue, a current fiber, a timer
// queue, and explicit suspension points (yield/block/wait_on/sleep).
// Go has no user-space stack switching, so a Fiber here is a goroutine
// that only proceeds while it holds the strand's baton; Yield/Block hand
// the baton back to the strand's scheduling loop exactly at the points
// the source's mm_fiber_yield/mm_fiber_block would perform a raw context
// switch. Fibers never migrate strands, matching the source's guarantee
// that a fiber resumes only on the thread that spawned it.
package fiber

import (
	"time"

	"github.com/ehrlich-b/mainmemory/internal/timer"
)

// Priority levels a fiber can run at; the run-queue serves the lowest
// bin first, so 0 is highest and 31 is lowest.
const (
	PriorityIdle   = 31
	PriorityLow    = 24
	PriorityNormal = 16
	PriorityHigh   = 8
	PriorityMax    = 0
)

type fiberState int

const (
	stateRunnable fiberState = iota
	stateRunning
	stateBlocked
	stateDone
)

// Fiber is one cooperatively-scheduled unit of work pinned to the strand
// that spawned it.
type Fiber struct {
	strand   *Strand
	priority int
	entry    func(*Fiber)

	state fiberState

	resume  chan struct{} // strand -> fiber: you may run now
	yielded chan struct{} // fiber -> strand: I've suspended or finished
}

// Yield pushes the current fiber to the tail of its priority bin and
// lets the strand pick the next runnable fiber, resuming this one later
// in its turn.
func (f *Fiber) Yield() {
	f.state = stateRunnable
	f.yielded <- struct{}{}
	<-f.resume
}

// Block marks the fiber blocked; it will not run again until some other
// fiber calls Wake on its handle. Used for explicit suspension where the
// fiber itself arranges its own wakeup (e.g. after registering on a
// waitset).
func (f *Fiber) Block() {
	f.state = stateBlocked
	f.yielded <- struct{}{}
	<-f.resume
}

// Sleep blocks the fiber until deadline (the strand's monotonic clock)
// passes, then it becomes runnable again.
func (f *Fiber) Sleep(deadline int64) {
	s := f.strand
	s.timers.Insert(deadline, func() { s.Wake(f.Handle()) })
	f.Block()
}

// Strand returns the strand this fiber is pinned to.
func (f *Fiber) Strand() *Strand { return f.strand }

// Handle returns a stable reference other goroutines can use to Wake
// this fiber from a waitset or a delegate completion.
type Handle struct{ f *Fiber }

// Handle returns a wakeable handle for this fiber.
func (f *Fiber) Handle() Handle { return Handle{f} }

// Strand is a single OS thread's cooperative scheduler: one run-queue,
// one timer queue, and the baton-passing loop that lets exactly one
// fiber run at a time.
type Strand struct {
	rq      runQueue
	timers  *timer.Queue
	current *Fiber
	wake    chan *Fiber // cross-goroutine wake requests funnel through here
	quit    chan struct{}
	nowFunc func() int64
}

// New creates a strand. now should return the strand's monotonic clock
// in nanoseconds; it is read whenever the run loop waits for timers.
func New(now func() int64) *Strand {
	return &Strand{
		timers:  timer.New(now()),
		wake:    make(chan *Fiber, 256),
		quit:    make(chan struct{}),
		nowFunc: now,
	}
}

// Spawn creates a new fiber pinned to this strand and enqueues it as
// runnable. Must be called from the strand's own run loop goroutine, or
// before Run starts.
func (s *Strand) Spawn(entry func(*Fiber), priority int) *Fiber {
	f := &Fiber{
		strand:   s,
		priority: priority,
		entry:    entry,
		state:    stateRunnable,
		resume:   make(chan struct{}),
		yielded:  make(chan struct{}),
	}
	go f.loop()
	s.rq.push(f)
	return f
}

func (f *Fiber) loop() {
	<-f.resume
	f.entry(f)
	f.state = stateDone
	f.yielded <- struct{}{}
}

// Wake marks a blocked fiber runnable again. Safe to call from any
// goroutine, including other strands' fibers (the spec's cross-thread
// wake path); the actual run-queue push happens on the owning strand's
// run loop to avoid racing its single-threaded bins.
func (s *Strand) Wake(h Handle) {
	select {
	case s.wake <- h.f:
	case <-s.quit:
	}
}

// Stop asks the run loop to exit once the current turn completes.
func (s *Strand) Stop() { close(s.quit) }

// Run drives the strand's scheduling loop until Stop is called and the
// run-queue drains. It is the strand's "thread main": pop next runnable
// fiber, resume it, wait for it to yield/block/finish, process cross-
// thread wakes, fire due timers, repeat.
func (s *Strand) Run() {
	for {
		select {
		case <-s.quit:
			if s.rq.empty() {
				return
			}
		default:
		}

		s.drainWakes()
		for _, fn := range s.timers.Advance(s.nowFunc()) {
			fn()
		}

		f := s.rq.pop()
		if f == nil {
			var timeout <-chan time.Time
			if next, ok := s.timers.NextDeadline(); ok {
				timeout = time.After(time.Duration(next - s.nowFunc()))
			}
			select {
			case h := <-s.wake:
				s.admit(h)
			case <-timeout:
			case <-s.quit:
				return
			}
			continue
		}

		s.current = f
		f.state = stateRunning
		f.resume <- struct{}{}
		<-f.yielded
		s.current = nil

		if f.state == stateRunnable {
			s.rq.push(f)
		}
		// stateBlocked: waits for an explicit Wake.
		// stateDone: dropped.
	}
}

func (s *Strand) drainWakes() {
	for {
		select {
		case f := <-s.wake:
			s.admit(f)
		default:
			return
		}
	}
}

func (s *Strand) admit(f *Fiber) {
	if f.state == stateBlocked {
		f.state = stateRunnable
		s.rq.push(f)
	}
}

// Current returns the fiber presently executing on this strand, or nil
// outside of a fiber's entry call.
func (s *Strand) Current() *Fiber { return s.current }

// Timers exposes the strand's timer queue for components (e.g. the
// eviction/stride system fibers) that need to schedule their own
// periodic wakeups without going through Sleep.
func (s *Strand) Timers() *timer.Queue { return s.timers }
