//go:build cgo

package atomicx

/*
// procPauseImpl issues the cheapest true spin-loop hint for the host
// architecture. Mirrors the teacher's x86-64 sfence/mfence intrinsics
// (internal/uring/barrier.go in the reference tree) but for the PAUSE/YIELD
// spin hint instead of a memory fence.
#if defined(__x86_64__) || defined(__i386__)
static inline void procPauseImpl(void) {
    __asm__ __volatile__("pause" ::: "memory");
}
#elif defined(__aarch64__)
static inline void procPauseImpl(void) {
    __asm__ __volatile__("yield" ::: "memory");
}
#else
static inline void procPauseImpl(void) {
    __asm__ __volatile__("" ::: "memory");
}
#endif
*/
import "C"

// procPause issues one spin-loop hint. Unlike the source's generic
// fallback (whose lock_pause is a documented no-op), every architecture
// here executes a real instruction or at minimum a compiler memory
// barrier that prevents the loop from being optimized away.
func procPause() {
	C.procPauseImpl()
}
