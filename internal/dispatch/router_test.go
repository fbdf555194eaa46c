package dispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectModeRunsInline(t *testing.T) {
	r := New(ModeDirect)
	defer r.Close()

	ran := false
	result := Execute(r, func() int {
		ran = true
		return 7
	})
	assert.True(t, ran)
	assert.Equal(t, 7, result)
}

func TestDelegateModeRunsEveryAction(t *testing.T) {
	r := New(ModeDelegate)
	defer r.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			Execute(r, func() int {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return i
			})
		}(i)
	}
	wg.Wait()
	assert.Len(t, order, 50)
}

func TestCombineModeRunsEveryAction(t *testing.T) {
	r := New(ModeCombine)
	defer r.Close()

	var counter int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Execute(r, func() struct{} {
				mu.Lock()
				counter++
				mu.Unlock()
				return struct{}{}
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, counter)
}

func TestDelegateModeReturnsResult(t *testing.T) {
	r := New(ModeDelegate)
	defer r.Close()

	sum := Execute(r, func() int { return 2 + 2 })
	assert.Equal(t, 4, sum)
}
