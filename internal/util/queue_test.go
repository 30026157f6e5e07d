package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int](4)
	for i := 0; i < 3000; i++ {
		q.Push(i)
	}
	require.Equal(t, 3000, q.Len())

	for i := 0; i < 3000; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}

	_, ok := q.Pop()
	assert.False(t, ok)
	assert.True(t, q.Empty())
}

func TestQueueInterleaved(t *testing.T) {
	q := NewQueue[int](0)
	next := 0
	for round := 0; round < 10; round++ {
		for i := 0; i < 500; i++ {
			q.Push(round*500 + i)
		}
		for i := 0; i < 300; i++ {
			v, ok := q.Pop()
			require.True(t, ok)
			require.Equal(t, next, v)
			next++
		}
	}
	assert.Equal(t, 5000-next, q.Len())
	assert.Equal(t, 5000-next, q.Clear())
	assert.Equal(t, 0, q.Len())
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue[int](0)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8000, q.Len())
}
