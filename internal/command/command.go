// Package command implements the cache operations the ASCII and binary
// protocol front ends both drive: get/gets, the four store variants
// (set/add/replace/cas), append/prepend, incr/decr, delete, touch, and
// flush_all. Each operation is grounded on memcache/command.c and
// memcache/action.c's mc_action_* helpers, translated from their
// lookup/create/insert/update/alter step sequence onto the table
// package's Lookup/Insert/Update/Delete primitives.
//
// Executor is deliberately protocol-agnostic: it returns plain Go values,
// not wire bytes. internal/protocol/ascii and internal/protocol/binary
// each format an Executor result their own way.
package command

import (
	"strconv"

	"github.com/ehrlich-b/mainmemory/internal/table"
)

// StoreMode selects which of the four memcached store semantics Store
// applies.
type StoreMode int

const (
	// ModeSet unconditionally replaces or inserts.
	ModeSet StoreMode = iota
	// ModeAdd inserts only if the key doesn't already exist.
	ModeAdd
	// ModeReplace replaces only if the key already exists.
	ModeReplace
	// ModeCAS replaces only if the key exists and its stamp matches.
	ModeCAS
)

// MaxNumLen is the width of the decimal ASCII text a numeric entry (one
// incr/decr has ever touched) is stored as; 2^64-1 is 20 digits.
const MaxNumLen = 20

// Executor runs cache operations against a table.
type Executor struct {
	tbl *table.Table
}

// New builds an Executor over tbl.
func New(tbl *table.Table) *Executor {
	return &Executor{tbl: tbl}
}

// Get looks up key. On a hit the returned entry carries a reference the
// caller must pass to Release once it has finished reading
// Flags/Value/Stamp (e.g. after splicing the value into a connection's
// transmit buffer).
func (ex *Executor) Get(key []byte) (*table.Entry, bool) {
	h := table.Hash(key)
	part := ex.tbl.PartitionFor(h)
	return part.Lookup(h, key)
}

// StoreResult reports the outcome of Store.
type StoreResult struct {
	// Stored is true if the new value was linked into the table.
	Stored bool
	// Existed reports whether a live entry with this key was present
	// before the call (used by add to report NOT_STORED, and by cas to
	// distinguish EXISTS from NOT_STORED).
	Existed bool
	// CASMatched is true for ModeCAS when Existed && the supplied stamp
	// matched; meaningless for the other modes.
	CASMatched bool
	// Stamp is the new entry's stamp on success, or the current entry's
	// stamp on a CAS mismatch (so the caller can report it back, as the
	// binary protocol does).
	Stamp uint64
}

// Store applies mode's semantics for key/value. cas is only consulted
// under ModeCAS.
func (ex *Executor) Store(mode StoreMode, key, value []byte, flags uint32, expTime int64, cas uint64) StoreResult {
	h := table.Hash(key)
	part := ex.tbl.PartitionFor(h)

	switch mode {
	case ModeAdd:
		e := part.Create(h, key, value, flags, expTime)
		if e == nil {
			return StoreResult{}
		}
		old, inserted := part.Insert(e)
		if !inserted {
			part.CancelNew(e)
			return StoreResult{Existed: true}
		}
		return StoreResult{Stored: true, Stamp: e.Stamp, Existed: old != nil}

	case ModeSet:
		e := part.Create(h, key, value, flags, expTime)
		if e == nil {
			return StoreResult{}
		}
		old := part.Upsert(e)
		if old != nil {
			releaseOld(old, part)
		}
		return StoreResult{Stored: true, Stamp: e.Stamp, Existed: old != nil}

	case ModeReplace:
		e := part.Create(h, key, value, flags, expTime)
		if e == nil {
			return StoreResult{}
		}
		old, matched, _ := part.Update(e, 0)
		if !matched {
			part.CancelNew(e)
			return StoreResult{}
		}
		releaseOld(old, part)
		return StoreResult{Stored: true, Existed: true, Stamp: e.Stamp}

	case ModeCAS:
		e := part.Create(h, key, value, flags, expTime)
		if e == nil {
			return StoreResult{}
		}
		old, matched, casOK := part.Update(e, cas)
		if !matched {
			part.CancelNew(e)
			return StoreResult{}
		}
		if !casOK {
			part.CancelNew(e)
			return StoreResult{Existed: true, Stamp: old.Stamp}
		}
		releaseOld(old, part)
		return StoreResult{Stored: true, Existed: true, CASMatched: true, Stamp: e.Stamp}
	}
	return StoreResult{}
}

// releaseOld drops the reference Update/Upsert's caller inherits on the
// entry it displaced; the slot frees once any concurrent reader's
// reference drains too.
func releaseOld(old *table.Entry, part *table.Partition) {
	part.Release(old)
}

// Alter applies append (or prepend) to the live value of key, retrying
// if a concurrent writer changes the entry between the read and the
// compare-and-link (mirroring mc_command_append/prepend's retry-on-stamp
// loop in the reference).
func (ex *Executor) Alter(key, extra []byte, prepend bool) StoreResult {
	h := table.Hash(key)
	part := ex.tbl.PartitionFor(h)

	for {
		old, found := part.Lookup(h, key)
		if !found {
			return StoreResult{}
		}

		newLen := len(old.Value()) + len(extra)
		combined := make([]byte, newLen)
		if prepend {
			copy(combined, extra)
			copy(combined[len(extra):], old.Value())
		} else {
			copy(combined, old.Value())
			copy(combined[len(old.Value()):], extra)
		}

		e := part.Create(h, key, combined, old.Flags, old.ExpTime)
		if e == nil {
			part.Release(old)
			return StoreResult{}
		}

		prevStamp := old.Stamp
		part.Release(old)

		replaced, matched, casOK := part.Update(e, prevStamp)
		if !matched {
			part.CancelNew(e)
			return StoreResult{}
		}
		if !casOK {
			// The entry changed underneath us; retry against its
			// current value.
			part.CancelNew(e)
			continue
		}
		releaseOld(replaced, part)
		return StoreResult{Stored: true, Existed: true, Stamp: e.Stamp}
	}
}

// DeltaResult reports the outcome of IncrDecr.
type DeltaResult struct {
	// Found is true if a matching entry existed (whether or not it held
	// a numeric value).
	Found bool
	// NonNumeric is true if Found but the existing value isn't a valid
	// unsigned decimal.
	NonNumeric bool
	// Created is true if a new entry was vivified from Initial (binary
	// protocol only).
	Created bool
	Value   uint64
}

// IncrDecr applies delta to the numeric value stored at key. If the key
// is absent and vivify is true, it creates it from initial instead
// (binary protocol's incr/decr with an expiration other than the
// "don't create" sentinel); ASCII incr/decr never vivifies.
func (ex *Executor) IncrDecr(key []byte, delta uint64, decr bool, vivify bool, initial uint64, expTime int64) DeltaResult {
	h := table.Hash(key)
	part := ex.tbl.PartitionFor(h)

	for {
		old, found := part.Lookup(h, key)
		if !found {
			if !vivify {
				return DeltaResult{}
			}
			text := strconv.AppendUint(nil, initial, 10)
			e := part.Create(h, key, text, 0, expTime)
			if e == nil {
				return DeltaResult{}
			}
			_, inserted := part.Insert(e)
			if !inserted {
				part.CancelNew(e)
				continue
			}
			return DeltaResult{Found: false, Created: true, Value: initial}
		}

		value, ok := parseNumeric(old.Value())
		if !ok {
			part.Release(old)
			return DeltaResult{Found: true, NonNumeric: true}
		}
		if decr {
			if delta > value {
				value = 0
			} else {
				value -= delta
			}
		} else {
			value += delta
		}

		text := strconv.AppendUint(nil, value, 10)
		e := part.Create(h, key, text, old.Flags, old.ExpTime)
		if e == nil {
			part.Release(old)
			return DeltaResult{}
		}

		prevStamp := old.Stamp
		part.Release(old)

		replaced, matched, casOK := part.Update(e, prevStamp)
		if !matched {
			part.CancelNew(e)
			return DeltaResult{}
		}
		if !casOK {
			part.CancelNew(e)
			continue
		}
		releaseOld(replaced, part)
		return DeltaResult{Found: true, Value: value}
	}
}

// parseNumeric matches memcached's incr/decr rule: the stored value must
// be nothing but ASCII decimal digits, at most MaxNumLen of them.
func parseNumeric(value []byte) (uint64, bool) {
	if len(value) == 0 || len(value) > MaxNumLen {
		return 0, false
	}
	for _, b := range value {
		if b < '0' || b > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseUint(string(value), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Delete removes the live entry matching key, if any. The returned entry
// (when found) still holds its pre-delete reference; callers that don't
// need its bytes after the call should pass it to Release.
func (ex *Executor) Delete(key []byte) (*table.Entry, bool) {
	h := table.Hash(key)
	part := ex.tbl.PartitionFor(h)
	return part.Delete(h, key)
}

// Release drops a reference an earlier Get/Delete call handed the
// caller, freeing the entry's slot once the count reaches zero.
func (ex *Executor) Release(e *table.Entry) {
	ex.tbl.PartitionFor(e.Hash).Release(e)
}

// Touch updates the expiration time of a live entry, publishing a new
// Entry with the same value and flags rather than mutating the live one
// in place: the table's invariant is that a published Entry is immutable,
// and ExpTime is read by other goroutines under the partition lock (
// Lookup, evict's expired() check) with no lock held here otherwise. Uses
// the same create/update/retry-on-stamp-mismatch shape as Alter.
func (ex *Executor) Touch(key []byte, expTime int64) bool {
	h := table.Hash(key)
	part := ex.tbl.PartitionFor(h)

	for {
		old, found := part.Lookup(h, key)
		if !found {
			return false
		}

		e := part.Create(h, key, old.Value(), old.Flags, expTime)
		if e == nil {
			part.Release(old)
			return false
		}

		prevStamp := old.Stamp
		part.Release(old)

		replaced, matched, casOK := part.Update(e, prevStamp)
		if !matched {
			part.CancelNew(e)
			return false
		}
		if !casOK {
			part.CancelNew(e)
			continue
		}
		releaseOld(replaced, part)
		return true
	}
}

// FlushAll invalidates every live entry across the table immediately.
// Callers implementing a delayed flush_all (a future exptime) are
// expected to schedule this call through internal/timer rather than the
// Executor tracking delayed flush state itself.
func (ex *Executor) FlushAll() {
	ex.tbl.FlushAll()
}
