package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue(t *testing.T) {
	assert := assert.New(t)

	t.Run("Empty Queue", func(t *testing.T) {
		q := New[string](2)

		assert.True(q.IsEmpty())
		assert.Equal(0, q.Length())
		_, ok := q.Dequeue()
		assert.False(ok)
		_, ok = q.Peek()
		assert.False(ok)
	})

	t.Run("FIFO order", func(t *testing.T) {
		q := New[string](0)
		for _, s := range []string{"a", "b", "c"} {
			assert.True(q.Enqueue(s))
		}

		head, ok := q.Peek()
		assert.True(ok)
		assert.Equal("a", head)

		for _, want := range []string{"a", "b", "c"} {
			got, ok := q.Dequeue()
			assert.True(ok)
			assert.Equal(want, got)
		}
		assert.True(q.IsEmpty())
	})

	t.Run("Overflow is dropped", func(t *testing.T) {
		q := New[int](2)
		assert.True(q.Enqueue(1))
		assert.True(q.Enqueue(2))
		assert.True(q.IsFull())
		assert.False(q.Enqueue(3))
		assert.Equal(2, q.Length())
		assert.Equal(1, q.Dropped())

		q.Reset()
		assert.True(q.IsEmpty())
		assert.Equal(1, q.Dropped())
		assert.True(q.Enqueue(4))
	})
}
