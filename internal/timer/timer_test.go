package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueFiresAllDueEntries(t *testing.T) {
	q := New(0)
	var order []int
	q.Insert(10, func() { order = append(order, 1) })
	q.Insert(5, func() { order = append(order, 2) })
	q.Insert(20, func() { order = append(order, 3) })

	due := q.Advance(100)
	for _, fn := range due {
		fn()
	}
	assert.ElementsMatch(t, []int{1, 2, 3}, order)
}

func TestQueueDoesNotFireFutureEntries(t *testing.T) {
	q := New(0)
	fired := false
	q.Insert(1_000_000_000, func() { fired = true })

	due := q.Advance(1000)
	assert.Empty(t, due)
	assert.False(t, fired)
}

func TestQueueCancel(t *testing.T) {
	q := New(0)
	fired := false
	e := q.Insert(10, func() { fired = true })
	q.Cancel(e)

	due := q.Advance(100)
	for _, fn := range due {
		fn()
	}
	assert.False(t, fired)
}

func TestQueuePromotesOverflowEntries(t *testing.T) {
	q := NewSized(0, 10, 4) // tiny window: 4 buckets of width 10 = 40ns near-window
	fired := false
	// Deadline is well beyond the initial near window, so it lands in overflow.
	q.Insert(1000, func() { fired = true })

	due := q.Advance(500)
	assert.Empty(t, due)
	assert.False(t, fired)

	due = q.Advance(1001)
	for _, fn := range due {
		fn()
	}
	assert.True(t, fired)
}

func TestQueueNextDeadline(t *testing.T) {
	q := New(0)
	_, ok := q.NextDeadline()
	assert.False(t, ok)

	q.Insert(50, func() {})
	q.Insert(10, func() {})
	d, ok := q.NextDeadline()
	assert.True(t, ok)
	assert.Equal(t, int64(10), d)
}
