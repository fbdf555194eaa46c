package conn

import "time"

// normalizeExpTime applies memcached's exptime convention to a binary
// request's raw extras field: values up to 30 days are a relative offset
// from now, larger values are already an absolute Unix timestamp. The
// ASCII parser applies the identical rule at parse time
// (internal/protocol/ascii/parser.go's normalizeExpTime); the binary
// protocol carries exptime as a raw wire field with no such parse-time
// hook, so the session applies it here before the value ever reaches the
// cache table.
func normalizeExpTime(exp int64) int64 {
	const thirtyDays = 60 * 60 * 24 * 30
	if exp == 0 {
		return 0
	}
	if exp <= thirtyDays {
		return time.Now().Unix() + exp
	}
	return exp
}
