package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func seq(start, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(start + i)
	}
	return out
}

func TestNewSampleRingRejectsInvalidCapacity(t *testing.T) {
	t.Parallel()

	for _, c := range []int{0, -1} {
		_, err := NewSampleRing(c)
		require.Error(t, err)
	}
}

func TestSampleRingFIFO(t *testing.T) {
	t.Parallel()

	const capacity = 10
	tests := []struct {
		name   string
		chunks []int
	}{
		{"under capacity", []int{3, 4}},
		{"exact capacity", []int{10}},
		{"small chunks overflow", []int{4, 4, 4, 4}},
		{"chunk larger than capacity", []int{25}},
		{"mixed", []int{7, 1, 12, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, err := NewSampleRing(capacity)
			require.NoError(t, err)

			var all []int16
			next := 0
			for _, n := range tt.chunks {
				chunk := seq(next, n)
				next += n
				all = append(all, chunk...)
				r.Push(chunk)

				snap := r.Snapshot()
				assert.LessOrEqual(t, len(snap), capacity)
				want := all
				if len(want) > capacity {
					want = want[len(want)-capacity:]
				}
				assert.Equal(t, want, snap)
				assert.Equal(t, len(want), r.Len())
				assert.Equal(t, len(want) == capacity, r.IsFull())
			}
		})
	}
}

func TestSampleRingSnapshotIsNonDestructive(t *testing.T) {
	t.Parallel()

	r, err := NewSampleRing(4)
	require.NoError(t, err)
	r.Push([]int16{1, 2, 3})

	first := r.Snapshot()
	second := r.Snapshot()
	assert.Equal(t, first, second)
	assert.Equal(t, 3, r.Len())

	first[0] = 99
	assert.Equal(t, []int16{1, 2, 3}, r.Snapshot(), "snapshot is a copy")

	r.Push([]int16{4, 5})
	assert.Equal(t, []int16{2, 3, 4, 5}, r.Snapshot())
}

func TestSampleRingEmptyAndReset(t *testing.T) {
	t.Parallel()

	r, err := NewSampleRing(3)
	require.NoError(t, err)

	assert.Empty(t, r.Snapshot())
	assert.False(t, r.IsFull())
	assert.InDelta(t, 0.0, r.FillRatio(), 1e-9)

	r.Push(nil)
	assert.Equal(t, 0, r.Len())

	r.Push([]int16{1, 2, 3})
	assert.True(t, r.IsFull())
	assert.InDelta(t, 1.0, r.FillRatio(), 1e-9)

	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 3, r.Cap())
}

func TestSampleRingConcurrentPushAndSnapshot(t *testing.T) {
	t.Parallel()

	const capacity = 64
	r, err := NewSampleRing(capacity)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 500 {
			r.Push(seq(i, 7))
		}
	}()
	go func() {
		defer wg.Done()
		for range 500 {
			snap := r.Snapshot()
			assert.LessOrEqual(t, len(snap), capacity)
		}
	}()
	wg.Wait()

	assert.True(t, r.IsFull())
}
