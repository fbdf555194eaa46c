package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMPMCBasicFIFO(t *testing.T) {
	r := NewMPMC[int](4)
	assert.True(t, r.TryEnqueue(1))
	assert.True(t, r.TryEnqueue(2))

	v, ok := r.TryDequeue()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = r.TryDequeue()
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = r.TryDequeue()
	assert.False(t, ok)
}

func TestMPMCFullReturnsFalse(t *testing.T) {
	r := NewMPMC[int](2) // rounds up to 2
	assert.True(t, r.TryEnqueue(1))
	assert.True(t, r.TryEnqueue(2))
	assert.False(t, r.TryEnqueue(3))
}

func TestMPMCCapacityRoundsUpToPow2(t *testing.T) {
	r := NewMPMC[int](3)
	assert.Equal(t, uint64(3), r.mask) // 4-slot ring, mask = 3
}

func TestMPMCConcurrentProducersConsumers(t *testing.T) {
	const n = 10000
	r := NewMPMC[int](64)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			r.Enqueue(i)
		}
	}()

	sum := 0
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			sum += r.Dequeue()
		}
	}()

	wg.Wait()
	expected := n * (n - 1) / 2
	assert.Equal(t, expected, sum)
}

func TestMPMCDrainBatch(t *testing.T) {
	r := NewMPMC[int](16)
	for i := 0; i < 5; i++ {
		r.Enqueue(i)
	}

	var got []int
	n := r.DrainBatch(3, func(v int) { got = append(got, v) })
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{0, 1, 2}, got)

	n = r.DrainBatch(10, func(v int) { got = append(got, v) })
	assert.Equal(t, 2, n)
}

func TestMPSCFIFO(t *testing.T) {
	r := NewMPSC[string](4)
	r.Enqueue("a")
	r.Enqueue("b")

	v, ok := r.TryDequeue()
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	v = r.Dequeue()
	assert.Equal(t, "b", v)
}

func TestMPSCConcurrentProducers(t *testing.T) {
	const producers = 4
	const perProducer = 2000
	r := NewMPSC[int](64)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				r.Enqueue(1)
			}
		}()
	}

	sum := 0
	done := make(chan struct{})
	go func() {
		for i := 0; i < producers*perProducer; i++ {
			sum += r.Dequeue()
		}
		close(done)
	}()

	wg.Wait()
	<-done
	assert.Equal(t, producers*perProducer, sum)
}
