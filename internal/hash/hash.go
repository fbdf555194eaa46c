// Package hash provides the key hash used to route requests to partitions
// and to compare entries within a bucket chain.
package hash

const (
	fnvOffset32 = uint32(0x811c9dc5)
	fnvPrime32  = uint32(0x01000193)
)

// FNV1a computes the 32-bit FNV-1a hash of data. The hash is exchangeable:
// the only contract callers may rely on is a reasonably uniform 32-bit
// value over byte strings, not this specific algorithm. A CRC32-C fast
// path (the original's SSE 4.2 path) is not wired in — no portable
// intrinsic for it is available without cgo, and FNV-1a is uniform enough
// for bucket routing and chain comparison.
func FNV1a(data []byte) uint32 {
	h := fnvOffset32
	for _, b := range data {
		h ^= uint32(b)
		h *= fnvPrime32
	}
	return h
}
