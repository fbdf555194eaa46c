package atomicx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackoffSpinDoesNotPanic(t *testing.T) {
	var b Backoff
	assert.NotPanics(t, func() {
		for i := 0; i < 20; i++ {
			b.Spin()
		}
	})
}

func TestBackoffUsesYieldHook(t *testing.T) {
	var b Backoff
	called := 0
	b.Yield = func() bool {
		called++
		return true
	}

	// Drive the counter past the small threshold so Spin consults Yield.
	for i := 0; i < 20; i++ {
		b.Spin()
	}
	assert.Greater(t, called, 0)
}

func TestBackoffReset(t *testing.T) {
	var b Backoff
	for i := 0; i < 20; i++ {
		b.Spin()
	}
	b.Reset()
	assert.Zero(t, b.count)
}
