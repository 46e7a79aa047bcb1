package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingOverwritesOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 3; i++ {
		_, ok := r.Push(i)
		assert.False(t, ok)
	}
	evicted, ok := r.Push(4)
	require.True(t, ok)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, []int{2, 3, 4}, r.Items())
	assert.Equal(t, 3, r.Len())
}

func TestRingLast(t *testing.T) {
	r := New[string](4)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		r.Push(s)
	}
	assert.Equal(t, []string{"d", "e"}, r.Last(2))
	assert.Equal(t, []string{"b", "c", "d", "e"}, r.Last(10))
	assert.Nil(t, r.Last(0))
}

func TestRingRemoveFunc(t *testing.T) {
	r := New[int](4)
	for i := 1; i <= 6; i++ {
		r.Push(i)
	}
	removed := r.RemoveFunc(func(v int) bool { return v%2 == 0 })
	assert.Equal(t, 2, removed)
	assert.Equal(t, []int{3, 5}, r.Items())

	r.Push(7)
	r.Push(8)
	r.Push(9)
	assert.Equal(t, []int{5, 7, 8, 9}, r.Items())
}

func TestRingClearAndMinimumCapacity(t *testing.T) {
	r := New[int](0)
	assert.Equal(t, 1, r.Cap())
	r.Push(1)
	r.Push(2)
	assert.Equal(t, []int{2}, r.Items())
	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Items())
}
