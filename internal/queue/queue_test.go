package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capacity 3, drop-oldest, enqueue 1..5, dequeues yield 3,4,5, queueFull
// fires exactly twice.
func TestDropOldestOverflowScenario(t *testing.T) {
	q := New[int](3, DropOldest)
	fullCount := 0
	q.OnFull(func() { fullCount++ })

	for _, v := range []int{1, 2, 3, 4, 5} {
		ok, err := q.Enqueue(v, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}

	assert.Equal(t, 2, fullCount)

	var got []int
	for {
		v, _, ok := q.Dequeue()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 4, 5}, got)
}

func TestDropNewestRejectsWithoutMutation(t *testing.T) {
	q := New[int](2, DropNewest)
	fullCount := 0
	q.OnFull(func() { fullCount++ })

	ok, err := q.Enqueue(1, nil)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = q.Enqueue(2, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = q.Enqueue(3, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, fullCount)

	v, _, _ := q.Dequeue()
	assert.Equal(t, 1, v)
	v, _, _ = q.Dequeue()
	assert.Equal(t, 2, v)
}

func TestErrorPolicyRaises(t *testing.T) {
	q := New[int](1, Error)
	ok, err := q.Enqueue(1, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = q.Enqueue(2, nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrFull)
}

// For any capacity C and any sequence of enqueue/dequeue calls, the queue's
// size must stay within [0, C].
func TestSizeInvariantAcrossRandomSequence(t *testing.T) {
	const capacity = 4
	q := New[int](capacity, DropOldest)

	ops := []int{1, 1, 1, 0, 1, 1, 0, 0, 1, 1, 1, 1, 1, 0, 1, 0, 0, 0, 1}
	for _, op := range ops {
		if op == 1 {
			_, _ = q.Enqueue(42, nil)
		} else {
			q.Dequeue()
		}
		size := q.Len()
		if size < 0 || size > capacity {
			t.Fatalf("size invariant violated: %d not in [0,%d]", size, capacity)
		}
	}
}

func TestDequeueEmptyReturnsFalse(t *testing.T) {
	q := New[int](1, DropOldest)
	_, _, ok := q.Dequeue()
	assert.False(t, ok)
}
