//go:build !cgo

package atomicx

import "runtime"

// procPause is the cgo-free fallback: it cooperatively yields instead of
// truly spinning. This is a deliberate deviation from a literal no-op —
// the specification's open question on this exact point says not to
// assume the generic path can be a no-op.
func procPause() {
	runtime.Gosched()
}
